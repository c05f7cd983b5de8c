// Package verification implements the code and temporary access state
// machine on top of the registry, the room provisioner and the bridge loop.
//
// RequestCode, RedeemCode and CheckStatus are safe to call from any
// goroutine; they reach the platform only through the bridge. The
// administrative operations take an already resolved member and must run on
// the bridge loop, which is where chat commands execute.
package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skylinesee/reeQute/entity"
	"github.com/skylinesee/reeQute/internal/bridge"
	"github.com/skylinesee/reeQute/internal/provision"
	"github.com/skylinesee/reeQute/internal/registry"
	"github.com/skylinesee/reeQute/lib/clock"
	"github.com/skylinesee/reeQute/lib/sl"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrNoCode       = errors.New("no verification code found for this user")
	ErrInvalidCode  = errors.New("invalid verification code")
	ErrUserNotFound = errors.New("user not found")
)

const DefaultConfirmTimeout = 30 * time.Second

type Provisioner interface {
	CategoryID() string
	SetCategory(ctx context.Context, id string) (*entity.Category, error)
	Resolve(ctx context.Context, handle string) (*entity.Member, error)
	Deliver(ctx context.Context, handle, code string) (*provision.Delivery, error)
	RemoveRoom(ctx context.Context, member entity.Member) (bool, error)
	ClearRooms(ctx context.Context) (provision.ClearReport, error)
	Notify(ctx context.Context, userID, text string)
}

type Bridge interface {
	Submit(name string, fn bridge.Func) (string, error)
	Call(ctx context.Context, name string, fn bridge.Func) error
	Schedule(d time.Duration, name string, fn bridge.Func) clock.Timer
}

// Recorder receives every state transition. Implementations must not block.
type Recorder interface {
	Record(ev *entity.AuditEvent)
}

type Options struct {
	CodeLength     int
	ConfirmTimeout time.Duration
}

// GrantOutcome is the result of GrantManual. Grant is nil for a permanent
// verification.
type GrantOutcome struct {
	Permanent bool
	Grant     *entity.Grant
}

// RevokeReport lists what RevokeAndCleanup removed. RoomErr is set when
// the room could not be checked or deleted.
type RevokeReport struct {
	Code    bool
	Grant   bool
	Room    bool
	RoomErr error
}

func (r RevokeReport) Empty() bool {
	return !r.Code && !r.Grant && !r.Room
}

type ClearReport struct {
	Rooms  provision.ClearReport
	Codes  int
	Grants int
}

type Service struct {
	registry   registry.Registry
	prov       Provisioner
	bridge     Bridge
	clock      clock.Clock
	log        *slog.Logger
	codeLength int
	confirm    *Confirmations
	recorders  []Recorder
}

func New(reg registry.Registry, prov Provisioner, br Bridge, clk clock.Clock, log *slog.Logger, opts Options) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	if opts.CodeLength <= 0 {
		opts.CodeLength = DefaultCodeLength
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = DefaultConfirmTimeout
	}
	return &Service{
		registry:   reg,
		prov:       prov,
		bridge:     br,
		clock:      clk,
		log:        log.With(sl.Module("verification")),
		codeLength: opts.CodeLength,
		confirm:    NewConfirmations(clk, opts.ConfirmTimeout),
	}
}

func (s *Service) AddRecorder(r Recorder) {
	s.recorders = append(s.recorders, r)
}

func (s *Service) record(kind entity.AuditKind, handle, userID, actor, detail string) {
	ev := &entity.AuditEvent{
		ID:        uuid.NewString(),
		Kind:      kind,
		Handle:    handle,
		UserID:    userID,
		Actor:     actor,
		Detail:    detail,
		CreatedAt: s.clock.Now(),
	}
	for _, r := range s.recorders {
		r.Record(ev)
	}
}

// RequestCode issues a fresh code for handle and schedules its delivery.
// Success means a delivery attempt was queued, not that the user got it;
// the outcome of delivery is only logged.
func (s *Service) RequestCode(_ context.Context, handle string) (*entity.Result, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, fmt.Errorf("%w: discord username is required", ErrValidation)
	}
	code, err := GenerateCode(s.codeLength)
	if err != nil {
		return nil, err
	}
	s.registry.PutCode(handle, code)
	s.record(entity.AuditCodeRequested, handle, "", "", "")

	log := s.log.With(sl.Handle(handle))
	_, err = s.bridge.Submit("deliver-code", func(ctx context.Context) error {
		d, err := s.prov.Deliver(ctx, handle, code)
		if errors.Is(err, provision.ErrMemberNotFound) {
			log.Warn("code not delivered: no member matches handle")
			return nil
		}
		if err != nil {
			return fmt.Errorf("delivering code to %s: %w", handle, err)
		}
		s.record(entity.AuditCodeDelivered, handle, d.Member.ID, "", deliveryDetail(d))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling delivery: %w", err)
	}
	log.Info("verification code issued")
	return &entity.Result{Success: true, Message: "Verification code sent"}, nil
}

func deliveryDetail(d *provision.Delivery) string {
	switch {
	case d.Direct:
		return "direct"
	case d.Created:
		return "room created"
	default:
		return "room"
	}
}

// RedeemCode checks a submitted code. An active temporary grant short
// circuits the check and leaves any pending code alone.
func (s *Service) RedeemCode(ctx context.Context, handle, submitted string) (*entity.Result, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" || submitted == "" {
		return nil, fmt.Errorf("%w: username and code are required", ErrValidation)
	}
	log := s.log.With(sl.Handle(handle))

	member, err := s.resolve(ctx, handle)
	switch {
	case err == nil:
		g, err := s.registry.CheckTempAccess(member.ID)
		if err == nil {
			log.Info("redeemed through temporary access")
			return entity.TemporaryResult("Verification successful (temporary access)", g, s.clock.Now()), nil
		}
		if errors.Is(err, registry.ErrExpired) {
			s.record(entity.AuditGrantExpired, handle, member.ID, "", "found expired")
		}
	case errors.Is(err, ErrUserNotFound):
	default:
		log.Warn("temporary access not checked", sl.Err(err))
	}

	err = s.registry.Redeem(handle, submitted)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return nil, ErrNoCode
	case errors.Is(err, registry.ErrMismatch):
		log.Info("invalid code submitted")
		return nil, ErrInvalidCode
	case err != nil:
		return nil, err
	}

	userID := ""
	if member != nil {
		userID = member.ID
	}
	s.record(entity.AuditCodeRedeemed, handle, userID, "", "")
	log.Info("code redeemed")
	return &entity.Result{Success: true, Message: "Verification successful"}, nil
}

// CheckStatus reports the temporary access state of the member behind
// handle. An expired grant is removed and reported as absent.
func (s *Service) CheckStatus(ctx context.Context, handle string) (*entity.Result, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, fmt.Errorf("%w: discord username is required", ErrValidation)
	}
	member, err := s.resolve(ctx, handle)
	if err != nil {
		return nil, err
	}

	g, err := s.registry.CheckTempAccess(member.ID)
	switch {
	case err == nil:
		return entity.TemporaryResult("Temporary access active", g, s.clock.Now()), nil
	case errors.Is(err, registry.ErrExpired):
		s.record(entity.AuditGrantExpired, handle, member.ID, "", "found expired")
	case !errors.Is(err, registry.ErrNotFound):
		return nil, err
	}
	return &entity.Result{Success: false, Message: "No active temporary access"}, nil
}

// resolve looks the handle up on the loop and waits for the answer.
func (s *Service) resolve(ctx context.Context, handle string) (*entity.Member, error) {
	var member *entity.Member
	err := s.bridge.Call(ctx, "resolve-member", func(ctx context.Context) error {
		m, err := s.prov.Resolve(ctx, handle)
		if err != nil {
			return err
		}
		member = m
		return nil
	})
	if errors.Is(err, provision.ErrMemberNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", handle, err)
	}
	return member, nil
}

func (s *Service) SetCategory(ctx context.Context, id string) (*entity.Category, error) {
	return s.prov.SetCategory(ctx, id)
}

func (s *Service) CategoryID() string {
	return s.prov.CategoryID()
}

// Resolve is the loop-side member lookup used by chat commands.
func (s *Service) Resolve(ctx context.Context, handle string) (*entity.Member, error) {
	m, err := s.prov.Resolve(ctx, handle)
	if errors.Is(err, provision.ErrMemberNotFound) {
		return nil, ErrUserNotFound
	}
	return m, err
}

// GrantManual verifies member out of band. Zero minutes is a permanent
// verification that leaves no registry state; a positive duration creates a
// temporary grant and schedules its removal.
func (s *Service) GrantManual(ctx context.Context, actor string, member entity.Member, minutes int) (*GrantOutcome, error) {
	if minutes < 0 {
		return nil, fmt.Errorf("%w: minutes must not be negative", ErrValidation)
	}
	log := s.log.With(
		slog.String("user_id", member.ID),
		slog.String("actor", actor),
	)

	if minutes == 0 {
		s.record(entity.AuditPermanent, member.Tag(), member.ID, actor, "")
		s.prov.Notify(ctx, member.ID, "You have been verified by a moderator.")
		log.Info("member verified permanently")
		return &GrantOutcome{Permanent: true}, nil
	}

	g, err := s.registry.GrantTempAccess(member.ID, member.Tag(), minutes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	s.bridge.Schedule(g.Expiry.Sub(s.clock.Now()), "expire-grant", func(ctx context.Context) error {
		if s.registry.ExpireGrant(g.UserID, g.Generation) {
			s.record(entity.AuditGrantExpired, g.Handle, g.UserID, "", "timer")
			s.log.With(slog.String("user_id", g.UserID)).Info("temporary access expired")
		}
		return nil
	})

	s.record(entity.AuditGrantCreated, member.Tag(), member.ID, actor, fmt.Sprintf("%d minutes", minutes))
	s.prov.Notify(ctx, member.ID, fmt.Sprintf("You have been granted temporary access for %d minutes.", minutes))
	log.With(
		slog.Int("minutes", minutes),
		slog.Time("expiry", g.Expiry),
	).Info("temporary access granted")
	return &GrantOutcome{Grant: &g}, nil
}

// RevokeAndCleanup removes the member's grant, pending codes and room.
func (s *Service) RevokeAndCleanup(ctx context.Context, actor string, member entity.Member) RevokeReport {
	removed := s.registry.Revoke(member.ID, member.Tag())
	report := RevokeReport{
		Code:  removed.Codes > 0,
		Grant: removed.Grant,
	}
	report.Room, report.RoomErr = s.prov.RemoveRoom(ctx, member)

	if !report.Empty() {
		s.record(entity.AuditRevoked, member.Tag(), member.ID, actor,
			fmt.Sprintf("code=%t grant=%t room=%t", report.Code, report.Grant, report.Room))
	}
	s.log.With(
		slog.String("user_id", member.ID),
		slog.String("actor", actor),
		slog.Bool("code", report.Code),
		slog.Bool("grant", report.Grant),
		slog.Bool("room", report.Room),
	).Info("verification revoked")
	return report
}

// ClearAll deletes every room in the category and empties the registry.
// Without a usable category nothing is changed.
func (s *Service) ClearAll(ctx context.Context, actor string) (ClearReport, error) {
	rooms, err := s.prov.ClearRooms(ctx)
	if err != nil {
		return ClearReport{}, err
	}
	codes, grants := s.registry.ClearAll()
	report := ClearReport{Rooms: rooms, Codes: codes, Grants: grants}

	s.record(entity.AuditCleared, "", "", actor,
		fmt.Sprintf("rooms=%d codes=%d grants=%d", rooms.Deleted, codes, grants))
	s.log.With(
		slog.String("actor", actor),
		slog.Int("rooms", rooms.Deleted),
		slog.Int("codes", codes),
		slog.Int("grants", grants),
	).Warn("verification data cleared")
	return report, nil
}

// RequestClearAll opens a confirmation prompt for actor in channel. If
// ConfirmClearAll sees "confirm" from the same actor in the same channel
// before the timeout, the clear runs and onDone gets its result. Otherwise,
// or when a newer prompt replaces this one, onCancel runs on the loop and
// nothing changes.
func (s *Service) RequestClearAll(actorID, channelID string, onDone func(ctx context.Context, r ClearReport, err error), onCancel func(ctx context.Context, reason CancelReason)) {
	s.confirm.Await(confirmKey(actorID, channelID),
		func() {
			_, err := s.bridge.Submit("clear-all", func(ctx context.Context) error {
				r, err := s.ClearAll(ctx, actorID)
				onDone(ctx, r, err)
				return nil
			})
			if err != nil {
				s.log.Error("clear-all not scheduled", sl.Err(err))
			}
		},
		func(reason CancelReason) {
			_, err := s.bridge.Submit("clear-all-cancelled", func(ctx context.Context) error {
				onCancel(ctx, reason)
				return nil
			})
			if err != nil {
				s.log.Warn("clear-all cancellation not reported", sl.Err(err))
			}
		},
	)
	s.log.With(
		slog.String("actor", actorID),
		slog.String("channel_id", channelID),
	).Info("clear-all awaiting confirmation")
}

// ConfirmClearAll reports whether content confirmed an open prompt for
// actor in channel.
func (s *Service) ConfirmClearAll(actorID, channelID, content string) bool {
	if !strings.EqualFold(strings.TrimSpace(content), "confirm") {
		return false
	}
	return s.confirm.Resolve(confirmKey(actorID, channelID))
}

func (s *Service) PendingCodes() []entity.PendingCode {
	return s.registry.Codes()
}

func (s *Service) ActiveGrants() []entity.Grant {
	return s.registry.Grants()
}

// StartJanitor sweeps expired codes and grants on the loop every interval
// until ctx is done.
func (s *Service) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, err := s.bridge.Submit("sweep", func(ctx context.Context) error {
					codes, grants := s.registry.Sweep()
					if codes > 0 || grants > 0 {
						s.log.With(
							slog.Int("codes", codes),
							slog.Int("grants", grants),
						).Debug("expired entries swept")
					}
					return nil
				})
				if err != nil {
					s.log.Warn("sweep not scheduled", sl.Err(err))
				}
			}
		}
	}()
}
