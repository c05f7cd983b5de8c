package verification_test

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/skylinesee/reeQute/entity"
	"github.com/skylinesee/reeQute/internal/bridge"
	"github.com/skylinesee/reeQute/internal/provision"
	"github.com/skylinesee/reeQute/internal/provision/fakeplatform"
	"github.com/skylinesee/reeQute/internal/registry"
	"github.com/skylinesee/reeQute/internal/verification"
	"github.com/skylinesee/reeQute/lib/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	guildID    = "500"
	categoryID = "600"
)

var (
	alice  = entity.Member{ID: "42", Username: "alice", Discriminator: "0"}
	bob    = entity.Member{ID: "43", Username: "bob", Discriminator: "0"}
	codeRe = regexp.MustCompile(`\*\*(\d{6})\*\*`)
)

type recorder struct {
	mu     sync.Mutex
	events []entity.AuditEvent
}

func (r *recorder) Record(ev *entity.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *ev)
}

func (r *recorder) kinds() []entity.AuditKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]entity.AuditKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

type env struct {
	svc  *verification.Service
	reg  *registry.Memory
	fp   *fakeplatform.Platform
	loop *bridge.Loop
	clk  *clock.FakeClock
	rec  *recorder
	ctx  context.Context
}

func setup(t *testing.T) *env {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.Fake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	fp := fakeplatform.New(guildID)
	fp.AddCategory(categoryID, "Verification")
	fp.AddMember(alice)
	fp.AddMember(bob)

	reg := registry.NewMemory(clk, 15*time.Minute)
	prov := provision.New(fp, log, provision.Options{CategoryID: categoryID})
	loop := bridge.New(log, 16, clk)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = loop.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-loop.Done()
	})

	svc := verification.New(reg, prov, loop, clk, log, verification.Options{})
	rec := &recorder{}
	svc.AddRecorder(rec)
	return &env{svc: svc, reg: reg, fp: fp, loop: loop, clk: clk, rec: rec, ctx: ctx}
}

// flush waits until every task queued so far has run.
func (e *env) flush(t *testing.T) {
	t.Helper()
	require.NoError(t, e.loop.Call(context.Background(), "flush", func(context.Context) error { return nil }))
}

// onLoop runs fn on the loop the way chat commands do.
func (e *env) onLoop(t *testing.T, fn func(ctx context.Context)) {
	t.Helper()
	require.NoError(t, e.loop.Call(context.Background(), "test", func(ctx context.Context) error {
		fn(ctx)
		return nil
	}))
}

func (e *env) deliveredCode(t *testing.T) string {
	t.Helper()
	msgs := e.fp.Messages()
	require.NotEmpty(t, msgs)
	m := codeRe.FindStringSubmatch(msgs[len(msgs)-1].Text)
	require.Len(t, m, 2)
	return m[1]
}

func TestRequestAndRedeem(t *testing.T) {
	e := setup(t)

	res, err := e.svc.RequestCode(e.ctx, "  alice ")
	require.NoError(t, err)
	assert.True(t, res.Success)
	e.flush(t)

	require.Len(t, e.fp.Rooms(), 1)
	assert.Equal(t, "verify-alice", e.fp.Rooms()[0].Name)
	code := e.deliveredCode(t)

	_, err = e.svc.RedeemCode(e.ctx, "alice", "000000x")
	assert.ErrorIs(t, err, verification.ErrInvalidCode)

	res, err = e.svc.RedeemCode(e.ctx, "alice", code)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.Temporary)
	assert.Equal(t, "Verification successful", res.Message)

	_, err = e.svc.RedeemCode(e.ctx, "alice", code)
	assert.ErrorIs(t, err, verification.ErrNoCode, "codes are single use")

	assert.Equal(t, []entity.AuditKind{
		entity.AuditCodeRequested,
		entity.AuditCodeDelivered,
		entity.AuditCodeRedeemed,
	}, e.rec.kinds())
}

func TestRequestCodeValidation(t *testing.T) {
	e := setup(t)
	_, err := e.svc.RequestCode(e.ctx, "   ")
	assert.ErrorIs(t, err, verification.ErrValidation)
	_, err = e.svc.RedeemCode(e.ctx, "alice", "")
	assert.ErrorIs(t, err, verification.ErrValidation)
}

func TestRequestCodeUnknownMember(t *testing.T) {
	e := setup(t)

	res, err := e.svc.RequestCode(e.ctx, "mallory")
	require.NoError(t, err)
	assert.True(t, res.Success)
	e.flush(t)

	assert.Empty(t, e.fp.Rooms())
	assert.Empty(t, e.fp.Messages())
	assert.Len(t, e.reg.Codes(), 1, "the code is still stored under the submitted handle")
}

func TestRequestCodeReplacesPrevious(t *testing.T) {
	e := setup(t)

	_, err := e.svc.RequestCode(e.ctx, "alice")
	require.NoError(t, err)
	e.flush(t)
	first := e.deliveredCode(t)

	_, err = e.svc.RequestCode(e.ctx, "alice")
	require.NoError(t, err)
	e.flush(t)
	second := e.deliveredCode(t)

	assert.Len(t, e.fp.Rooms(), 1, "room is reused")
	if first != second {
		_, err = e.svc.RedeemCode(e.ctx, "alice", first)
		assert.ErrorIs(t, err, verification.ErrInvalidCode)
	}
	_, err = e.svc.RedeemCode(e.ctx, "alice", second)
	assert.NoError(t, err)
}

func TestCodeExpires(t *testing.T) {
	e := setup(t)

	_, err := e.svc.RequestCode(e.ctx, "alice")
	require.NoError(t, err)
	e.flush(t)
	code := e.deliveredCode(t)

	e.clk.Advance(16 * time.Minute)
	_, err = e.svc.RedeemCode(e.ctx, "alice", code)
	assert.ErrorIs(t, err, verification.ErrNoCode)
}

func TestTemporaryGrantLifecycle(t *testing.T) {
	e := setup(t)

	var out *verification.GrantOutcome
	e.onLoop(t, func(ctx context.Context) {
		var err error
		out, err = e.svc.GrantManual(ctx, "mod", alice, 30)
		require.NoError(t, err)
	})
	require.NotNil(t, out.Grant)
	assert.False(t, out.Permanent)

	dm := e.fp.Messages()
	require.Len(t, dm, 1)
	assert.True(t, dm[0].Direct)
	assert.Contains(t, dm[0].Text, "30 minutes")

	res, err := e.svc.CheckStatus(e.ctx, "alice")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Temporary)
	assert.Equal(t, 30, res.ExpiresIn)
	assert.Equal(t, e.clk.Now().Add(30*time.Minute), res.Expiry)

	res, err = e.svc.RedeemCode(e.ctx, "alice", "anything")
	require.NoError(t, err, "an active grant bypasses the code")
	assert.True(t, res.Temporary)

	e.clk.Advance(30 * time.Minute)
	e.flush(t)
	assert.Empty(t, e.svc.ActiveGrants())

	res, err = e.svc.CheckStatus(e.ctx, "alice")
	require.NoError(t, err)
	assert.False(t, res.Success)

	_, err = e.svc.RedeemCode(e.ctx, "alice", "anything")
	assert.ErrorIs(t, err, verification.ErrNoCode)
	assert.Contains(t, e.rec.kinds(), entity.AuditGrantExpired)
}

func TestRedeemRecordsLazyExpiry(t *testing.T) {
	e := setup(t)

	_, err := e.reg.GrantTempAccess(alice.ID, "alice", 5)
	require.NoError(t, err)
	e.clk.Advance(5 * time.Minute)

	_, err = e.svc.RedeemCode(e.ctx, "alice", "123456")
	assert.ErrorIs(t, err, verification.ErrNoCode)
	assert.Empty(t, e.svc.ActiveGrants())

	e.rec.mu.Lock()
	defer e.rec.mu.Unlock()
	require.Len(t, e.rec.events, 1)
	assert.Equal(t, entity.AuditGrantExpired, e.rec.events[0].Kind)
	assert.Equal(t, alice.ID, e.rec.events[0].UserID)
	assert.Equal(t, "found expired", e.rec.events[0].Detail)
}

func TestClearAllReplacedPromptIsCancelled(t *testing.T) {
	e := setup(t)

	reasons := make(chan verification.CancelReason, 2)
	open := func() {
		e.svc.RequestClearAll("mod", "chan-1", func(context.Context, verification.ClearReport, error) {
			t.Error("clear must not run")
		}, func(_ context.Context, reason verification.CancelReason) {
			reasons <- reason
		})
	}
	e.onLoop(t, func(context.Context) { open() })
	e.onLoop(t, func(context.Context) { open() })
	e.flush(t)

	select {
	case r := <-reasons:
		assert.Equal(t, verification.CancelReplaced, r)
	case <-time.After(time.Second):
		t.Fatal("replaced prompt not cancelled")
	}
	assert.Equal(t, 1, e.clk.Pending(), "only the newer prompt is waiting")
}

func TestRegrantSurvivesOldTimer(t *testing.T) {
	e := setup(t)

	e.onLoop(t, func(ctx context.Context) {
		_, err := e.svc.GrantManual(ctx, "mod", alice, 10)
		require.NoError(t, err)
	})
	e.clk.Advance(5 * time.Minute)
	e.onLoop(t, func(ctx context.Context) {
		_, err := e.svc.GrantManual(ctx, "mod", alice, 60)
		require.NoError(t, err)
	})

	e.clk.Advance(6 * time.Minute)
	e.flush(t)

	res, err := e.svc.CheckStatus(e.ctx, "alice")
	require.NoError(t, err)
	assert.True(t, res.Success, "the first timer must not drop the newer grant")
	assert.Equal(t, 54, res.ExpiresIn)
}

func TestPermanentGrant(t *testing.T) {
	e := setup(t)

	e.onLoop(t, func(ctx context.Context) {
		out, err := e.svc.GrantManual(ctx, "mod", alice, 0)
		require.NoError(t, err)
		assert.True(t, out.Permanent)
		assert.Nil(t, out.Grant)

		_, err = e.svc.GrantManual(ctx, "mod", alice, -1)
		assert.ErrorIs(t, err, verification.ErrValidation)
	})
	assert.Empty(t, e.svc.ActiveGrants())
	assert.Equal(t, 0, e.clk.Pending())
	assert.Contains(t, e.rec.kinds(), entity.AuditPermanent)
}

func TestCheckStatusUnknownUser(t *testing.T) {
	e := setup(t)
	_, err := e.svc.CheckStatus(e.ctx, "mallory")
	assert.ErrorIs(t, err, verification.ErrUserNotFound)

	res, err := e.svc.CheckStatus(e.ctx, "bob")
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestRevokeAndCleanup(t *testing.T) {
	e := setup(t)

	_, err := e.svc.RequestCode(e.ctx, "alice")
	require.NoError(t, err)
	e.flush(t)

	var report verification.RevokeReport
	e.onLoop(t, func(ctx context.Context) {
		_, err := e.svc.GrantManual(ctx, "mod", alice, 30)
		require.NoError(t, err)
		report = e.svc.RevokeAndCleanup(ctx, "mod", alice)
	})
	assert.True(t, report.Code)
	assert.True(t, report.Grant)
	assert.True(t, report.Room)
	assert.NoError(t, report.RoomErr)
	assert.Empty(t, e.fp.Rooms())
	assert.Empty(t, e.svc.PendingCodes())
	assert.Empty(t, e.svc.ActiveGrants())

	e.onLoop(t, func(ctx context.Context) {
		report = e.svc.RevokeAndCleanup(ctx, "mod", bob)
	})
	assert.True(t, report.Empty())
}

func TestClearAllWithConfirmation(t *testing.T) {
	e := setup(t)

	for _, h := range []string{"alice", "bob"} {
		_, err := e.svc.RequestCode(e.ctx, h)
		require.NoError(t, err)
	}
	e.flush(t)
	require.Len(t, e.fp.Rooms(), 2)
	e.onLoop(t, func(ctx context.Context) {
		_, err := e.svc.GrantManual(ctx, "mod", bob, 30)
		require.NoError(t, err)
	})
	require.Len(t, e.svc.ActiveGrants(), 1)

	done := make(chan verification.ClearReport, 1)
	e.onLoop(t, func(ctx context.Context) {
		e.svc.RequestClearAll("mod", "chan-1", func(_ context.Context, r verification.ClearReport, err error) {
			assert.NoError(t, err)
			done <- r
		}, func(context.Context, verification.CancelReason) {
			t.Error("unexpected cancellation")
		})
	})

	e.onLoop(t, func(ctx context.Context) {
		assert.False(t, e.svc.ConfirmClearAll("other", "chan-1", "confirm"), "another actor cannot confirm")
		assert.False(t, e.svc.ConfirmClearAll("mod", "chan-2", "confirm"), "another channel cannot confirm")
		assert.False(t, e.svc.ConfirmClearAll("mod", "chan-1", "yes"))
		assert.True(t, e.svc.ConfirmClearAll("mod", "chan-1", " CONFIRM "))
	})

	select {
	case r := <-done:
		assert.Equal(t, 2, r.Rooms.Deleted)
		assert.Equal(t, 2, r.Codes)
		assert.Equal(t, 1, r.Grants)
	case <-time.After(time.Second):
		t.Fatal("clear did not run")
	}
	assert.Empty(t, e.fp.Rooms())
	assert.Empty(t, e.svc.PendingCodes())
	assert.Empty(t, e.svc.ActiveGrants())
}

func TestClearAllTimesOut(t *testing.T) {
	e := setup(t)

	_, err := e.svc.RequestCode(e.ctx, "alice")
	require.NoError(t, err)
	e.flush(t)

	cancelled := make(chan struct{})
	e.onLoop(t, func(ctx context.Context) {
		e.svc.RequestClearAll("mod", "chan-1", func(context.Context, verification.ClearReport, error) {
			t.Error("clear must not run")
		}, func(_ context.Context, reason verification.CancelReason) {
			assert.Equal(t, verification.CancelTimeout, reason)
			close(cancelled)
		})
	})

	e.clk.Advance(verification.DefaultConfirmTimeout)
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("timeout not reported")
	}
	assert.False(t, e.svc.ConfirmClearAll("mod", "chan-1", "confirm"))
	assert.Len(t, e.fp.Rooms(), 1)
	assert.Len(t, e.svc.PendingCodes(), 1)
}

func TestClearAllWithoutCategory(t *testing.T) {
	e := setup(t)

	_, err := e.svc.RequestCode(e.ctx, "alice")
	require.NoError(t, err)
	e.flush(t)
	e.fp.RemoveCategory(categoryID)

	e.onLoop(t, func(ctx context.Context) {
		_, err := e.svc.ClearAll(ctx, "mod")
		assert.ErrorIs(t, err, provision.ErrCategoryMissing)
	})
	assert.Len(t, e.svc.PendingCodes(), 1, "registry is left alone")
}
