package core

import (
	"context"
	"log/slog"

	"github.com/skylinesee/reeQute/entity"
	"github.com/skylinesee/reeQute/internal/alert"
	"github.com/skylinesee/reeQute/lib/sl"
)

// VerificationService is the part of the verification service exposed
// over HTTP and to the operator status channel.
type VerificationService interface {
	RequestCode(ctx context.Context, handle string) (*entity.Result, error)
	RedeemCode(ctx context.Context, handle, code string) (*entity.Result, error)
	CheckStatus(ctx context.Context, handle string) (*entity.Result, error)
	CategoryID() string
	PendingCodes() []entity.PendingCode
	ActiveGrants() []entity.Grant
}

type Presence interface {
	Connected() bool
}

type Core struct {
	vs       VerificationService
	presence Presence
	log      *slog.Logger
}

func New(vs VerificationService, presence Presence, log *slog.Logger) *Core {
	if vs == nil {
		panic("verification service is nil")
	}
	return &Core{
		vs:       vs,
		presence: presence,
		log:      log.With(sl.Module("core")),
	}
}

func (c *Core) RequestCode(ctx context.Context, handle string) (*entity.Result, error) {
	return c.vs.RequestCode(ctx, handle)
}

func (c *Core) RedeemCode(ctx context.Context, handle, code string) (*entity.Result, error) {
	return c.vs.RedeemCode(ctx, handle, code)
}

func (c *Core) CheckStatus(ctx context.Context, handle string) (*entity.Result, error) {
	return c.vs.CheckStatus(ctx, handle)
}

func (c *Core) BotConnected() bool {
	if c.presence == nil {
		return false
	}
	return c.presence.Connected()
}

func (c *Core) Snapshot() alert.Snapshot {
	return alert.Snapshot{
		BotConnected: c.BotConnected(),
		CategoryID:   c.vs.CategoryID(),
		PendingCodes: len(c.vs.PendingCodes()),
		ActiveGrants: len(c.vs.ActiveGrants()),
	}
}
