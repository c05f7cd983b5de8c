package entity

import (
	"math"
	"time"
)

// Grant is a time-boxed bypass of code verification, keyed by the stable
// user id. Generation increases on every grant so a deferred expiry created
// for an older grant can tell it has been superseded.
type Grant struct {
	UserID     string    `json:"user_id" bson:"user_id"`
	Handle     string    `json:"handle" bson:"handle"`
	Expiry     time.Time `json:"expiry" bson:"expiry"`
	Generation uint64    `json:"generation" bson:"generation"`
}

func (g Grant) Active(now time.Time) bool {
	return now.Before(g.Expiry)
}

// RemainingMinutes rounds up so a fresh grant of d minutes reports d.
func (g Grant) RemainingMinutes(now time.Time) int {
	left := g.Expiry.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Minutes()))
}

// PendingCode is an issued and not yet redeemed verification code.
type PendingCode struct {
	Handle    string    `json:"handle"`
	Code      string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	// ExpiresAt is zero when codes never expire.
	ExpiresAt time.Time `json:"expires_at"`
}

func (p PendingCode) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}
