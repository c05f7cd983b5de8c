package provision_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/skylinesee/reeQute/entity"
	"github.com/skylinesee/reeQute/internal/provision"
	"github.com/skylinesee/reeQute/internal/provision/fakeplatform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	guildID    = "500"
	categoryID = "600"
)

var (
	alice = entity.Member{ID: "42", Username: "alice", Discriminator: "0"}
	carol = entity.Member{ID: "77", Username: "Carol", Discriminator: "1234"}
)

func setup(t *testing.T, opts provision.Options) (*provision.Provisioner, *fakeplatform.Platform) {
	t.Helper()
	fp := fakeplatform.New(guildID)
	fp.AddCategory(categoryID, "Verification")
	fp.AddMember(entity.Member{ID: "1", Username: "alice", Bot: true})
	fp.AddMember(alice)
	fp.AddMember(carol)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return provision.New(fp, log, opts), fp
}

func TestResolve(t *testing.T) {
	p, _ := setup(t, provision.Options{})
	ctx := context.Background()

	m, err := p.Resolve(ctx, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, "42", m.ID, "bots are skipped")

	m, err = p.Resolve(ctx, "carol#1234")
	require.NoError(t, err)
	assert.Equal(t, "77", m.ID)

	_, err = p.Resolve(ctx, "carol#0001")
	assert.ErrorIs(t, err, provision.ErrMemberNotFound)
	_, err = p.Resolve(ctx, "")
	assert.ErrorIs(t, err, provision.ErrMemberNotFound)
}

func TestDeliverCreatesRoomOnce(t *testing.T) {
	p, fp := setup(t, provision.Options{CategoryID: categoryID})
	ctx := context.Background()

	d, err := p.Deliver(ctx, "alice", "123456")
	require.NoError(t, err)
	assert.True(t, d.Created)
	assert.Equal(t, "verify-alice", d.Room.Name)

	created := fp.Created()
	require.Len(t, created, 1)
	spec := created[0]
	assert.Equal(t, categoryID, spec.ParentID)
	require.Len(t, spec.Overwrites, 3)
	assert.Equal(t, entity.Overwrite{ID: guildID, Kind: entity.OverwriteRole, Deny: entity.PermView}, spec.Overwrites[0])
	assert.Equal(t, "42", spec.Overwrites[1].ID)
	assert.NotZero(t, spec.Overwrites[1].Allow&entity.PermSend)
	assert.Equal(t, fp.Self, spec.Overwrites[2].ID)

	d, err = p.Deliver(ctx, "alice", "654321")
	require.NoError(t, err)
	assert.False(t, d.Created, "existing room is reused")
	assert.Len(t, fp.Created(), 1)

	msgs := fp.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, d.Room.ID, msgs[1].To)
	assert.Contains(t, msgs[1].Text, "**654321**")
	assert.Contains(t, msgs[1].Text, "<@42>")
}

func TestDeliverUnknownMemberIsNoop(t *testing.T) {
	p, fp := setup(t, provision.Options{CategoryID: categoryID})

	_, err := p.Deliver(context.Background(), "mallory", "123456")
	assert.ErrorIs(t, err, provision.ErrMemberNotFound)
	assert.Empty(t, fp.Created())
	assert.Empty(t, fp.Messages())
}

func TestDeliverWithoutCategoryNotifiesMember(t *testing.T) {
	p, fp := setup(t, provision.Options{})

	_, err := p.Deliver(context.Background(), "alice", "123456")
	assert.ErrorIs(t, err, provision.ErrCategoryUnset)

	msgs := fp.Messages()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Direct)
	assert.Equal(t, "42", msgs[0].To)
	assert.NotContains(t, msgs[0].Text, "123456")
}

func TestDeliverMissingCategory(t *testing.T) {
	p, fp := setup(t, provision.Options{CategoryID: categoryID})
	fp.RemoveCategory(categoryID)

	_, err := p.Deliver(context.Background(), "alice", "123456")
	assert.ErrorIs(t, err, provision.ErrCategoryMissing)
	assert.Empty(t, fp.Created())
}

func TestDeliverFallsBackToDirect(t *testing.T) {
	p, fp := setup(t, provision.Options{CategoryID: categoryID, DirectFallback: true})
	fp.FailCreate = fakeplatform.ErrForbidden

	d, err := p.Deliver(context.Background(), "alice", "123456")
	require.NoError(t, err)
	assert.True(t, d.Direct)

	msgs := fp.Messages()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Direct)
	assert.Contains(t, msgs[0].Text, "123456")
}

func TestDeliverFailsWithoutFallback(t *testing.T) {
	p, fp := setup(t, provision.Options{CategoryID: categoryID})
	fp.FailCreate = fakeplatform.ErrForbidden

	_, err := p.Deliver(context.Background(), "alice", "123456")
	assert.ErrorIs(t, err, fakeplatform.ErrForbidden)
	assert.Empty(t, fp.Messages())
}

func TestDeliverBothPathsFail(t *testing.T) {
	p, fp := setup(t, provision.Options{CategoryID: categoryID, DirectFallback: true})
	fp.FailSend = fakeplatform.ErrForbidden
	fp.FailDirect = fakeplatform.ErrForbidden

	d, err := p.Deliver(context.Background(), "alice", "123456")
	assert.ErrorIs(t, err, fakeplatform.ErrForbidden)
	assert.False(t, d.Direct)
}

func TestSetCategory(t *testing.T) {
	p, fp := setup(t, provision.Options{})
	fp.AddRoom(entity.Room{ID: "700", Name: "general"})
	ctx := context.Background()

	_, err := p.SetCategory(ctx, "700")
	assert.ErrorIs(t, err, provision.ErrNotCategory)
	_, err = p.SetCategory(ctx, "999")
	assert.ErrorIs(t, err, provision.ErrCategoryMissing)
	assert.Empty(t, p.CategoryID())

	cat, err := p.SetCategory(ctx, categoryID)
	require.NoError(t, err)
	assert.Equal(t, "Verification", cat.Name)
	assert.Equal(t, categoryID, p.CategoryID())
}

func TestRemoveRoom(t *testing.T) {
	p, fp := setup(t, provision.Options{CategoryID: categoryID})
	ctx := context.Background()

	removed, err := p.RemoveRoom(ctx, alice)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = p.Deliver(ctx, "alice", "123456")
	require.NoError(t, err)
	removed, err = p.RemoveRoom(ctx, alice)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Empty(t, fp.Rooms())
}

func TestClearRoomsCollectsFailures(t *testing.T) {
	p, fp := setup(t, provision.Options{CategoryID: categoryID})
	fp.AddRoom(entity.Room{ID: "r1", ParentID: categoryID, Name: "verify-a"})
	fp.AddRoom(entity.Room{ID: "r2", ParentID: categoryID, Name: "verify-b"})
	fp.AddRoom(entity.Room{ID: "r3", ParentID: "other", Name: "general"})
	fp.FailDelete["r2"] = fakeplatform.ErrForbidden

	report, err := p.ClearRooms(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, []string{"verify-b"}, report.Failed)
	assert.Len(t, fp.Rooms(), 2)
}

func TestClearRoomsNeedsCategory(t *testing.T) {
	p, _ := setup(t, provision.Options{})
	_, err := p.ClearRooms(context.Background())
	assert.ErrorIs(t, err, provision.ErrCategoryUnset)
}
