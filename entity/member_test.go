package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseHandle(t *testing.T) {
	h := ParseHandle("  carol#1234 ")
	assert.Equal(t, "carol#1234", h.Raw)
	assert.Equal(t, "carol", h.Name)
	assert.Equal(t, "1234", h.Discriminator)
	assert.True(t, h.IsComposite())

	h = ParseHandle("@Alice")
	assert.Equal(t, "Alice", h.Name)
	assert.False(t, h.IsComposite())
}

func TestHandleMatches(t *testing.T) {
	carol := Member{ID: "7", Username: "Carol", Discriminator: "1234"}

	assert.True(t, ParseHandle("carol").Matches(carol))
	assert.True(t, ParseHandle("CAROL#1234").Matches(carol))
	assert.False(t, ParseHandle("carol#9999").Matches(carol))
	assert.False(t, ParseHandle("caro").Matches(carol))
	assert.False(t, ParseHandle("").Matches(Member{}))
}

func TestHandleSameName(t *testing.T) {
	assert.True(t, ParseHandle("carol#1234").SameName("carol"))
	assert.True(t, ParseHandle("carol").SameName("Carol#1234"))
	assert.False(t, ParseHandle("carol").SameName("carl"))
}

func TestRoomName(t *testing.T) {
	assert.Equal(t, "verify-alice", RoomName("Alice"))
	assert.Equal(t, "verify-j-doe_1", RoomName("j.doe_1"))
	assert.True(t, IsRoomName("verify-bob"))
	assert.False(t, IsRoomName("general"))
	assert.Equal(t, "verify-bob", Member{Username: "Bob"}.RoomName())
}

func TestMemberTag(t *testing.T) {
	assert.Equal(t, "bob", Member{Username: "bob", Discriminator: "0"}.Tag())
	assert.Equal(t, "bob#0042", Member{Username: "bob", Discriminator: "0042"}.Tag())
	assert.Equal(t, "<@42>", Member{ID: "42"}.Mention())
}

func TestGrantRemainingMinutes(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	g := Grant{Expiry: now.Add(10 * time.Minute)}

	assert.True(t, g.Active(now))
	assert.Equal(t, 10, g.RemainingMinutes(now))
	assert.Equal(t, 1, g.RemainingMinutes(now.Add(9*time.Minute+30*time.Second)))
	assert.False(t, g.Active(now.Add(10*time.Minute)))
	assert.Equal(t, 0, g.RemainingMinutes(now.Add(11*time.Minute)))
}
