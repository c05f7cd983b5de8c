package entity

import (
	"net/http"
	"strings"
	"time"

	"github.com/skylinesee/reeQute/lib/validate"
)

// CodeRequest is the body of request-code and check-status.
type CodeRequest struct {
	DiscordUsername string `json:"discordUsername" validate:"required"`
}

func (c *CodeRequest) Bind(_ *http.Request) error {
	c.DiscordUsername = strings.TrimSpace(c.DiscordUsername)
	return validate.Struct(c)
}

// RedeemRequest is the body of verify. The code is compared verbatim.
type RedeemRequest struct {
	DiscordUsername string `json:"discordUsername" validate:"required"`
	Code            string `json:"code" validate:"required"`
}

func (v *RedeemRequest) Bind(_ *http.Request) error {
	v.DiscordUsername = strings.TrimSpace(v.DiscordUsername)
	return validate.Struct(v)
}

// Result is the outcome of a verification operation that the facade
// renders back to its caller.
type Result struct {
	Success   bool
	Message   string
	Temporary bool
	// ExpiresIn and Expiry are set only when Temporary is true.
	ExpiresIn int
	Expiry    time.Time
}

func TemporaryResult(message string, g Grant, now time.Time) *Result {
	return &Result{
		Success:   true,
		Message:   message,
		Temporary: true,
		ExpiresIn: g.RemainingMinutes(now),
		Expiry:    g.Expiry,
	}
}
