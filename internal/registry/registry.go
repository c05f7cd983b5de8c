// Package registry keeps the in-memory verification state: pending codes
// keyed by the submitted handle and temporary access grants keyed by the
// stable user id. Nothing here survives a restart.
package registry

import (
	"errors"

	"github.com/skylinesee/reeQute/entity"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrExpired         = errors.New("expired")
	ErrMismatch        = errors.New("code mismatch")
	ErrInvalidDuration = errors.New("duration must be a positive number of minutes")
)

// Revoked reports which artifacts a Revoke call actually removed.
type Revoked struct {
	Codes int
	Grant bool
}

type Registry interface {
	// PutCode stores code for handle, replacing any pending one.
	PutCode(handle, code string) entity.PendingCode
	// TakeCode returns and removes the pending code for handle.
	TakeCode(handle string) (string, error)
	// Redeem removes the pending code only when submitted equals it.
	// A mismatch leaves the code in place and returns ErrMismatch.
	Redeem(handle, submitted string) error
	Codes() []entity.PendingCode

	GrantTempAccess(userID, handle string, minutes int) (entity.Grant, error)
	// CheckTempAccess returns the active grant, or ErrExpired after removing
	// a grant found past its expiry, or ErrNotFound.
	CheckTempAccess(userID string) (entity.Grant, error)
	// ExpireGrant removes the grant only if it still carries generation
	// and is past its expiry. Safe to call any number of times.
	ExpireGrant(userID string, generation uint64) bool
	Grants() []entity.Grant

	// Revoke drops the grant held by userID and every code whose handle has
	// the same name as handle, with or without a discriminator.
	Revoke(userID, handle string) Revoked
	ClearAll() (codes, grants int)
	// Sweep removes expired codes and grants.
	Sweep() (codes, grants int)
}
