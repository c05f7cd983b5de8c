package entity

import (
	"fmt"
	"strings"
)

const roomPrefix = "verify-"

// Member is a guild member as seen by the bot. ID is the platform snowflake
// and never changes; Username and Discriminator are display data.
type Member struct {
	ID            string `json:"id" bson:"user_id"`
	GuildID       string `json:"guild_id" bson:"guild_id"`
	Username      string `json:"username" bson:"username"`
	Discriminator string `json:"discriminator,omitempty" bson:"discriminator,omitempty"`
	Bot           bool   `json:"bot,omitempty" bson:"-"`
}

// Tag renders the member as name or name#discriminator. Migrated accounts
// report discriminator "0", which is not shown.
func (m Member) Tag() string {
	if m.Discriminator == "" || m.Discriminator == "0" {
		return m.Username
	}
	return fmt.Sprintf("%s#%s", m.Username, m.Discriminator)
}

func (m Member) Mention() string {
	return fmt.Sprintf("<@%s>", m.ID)
}

// RoomName is the deterministic verification room name for the member.
func (m Member) RoomName() string {
	return RoomName(m.Username)
}

// Handle is a user reference as typed by a person: either a bare name or a
// name#discriminator composite. Leading "@" is ignored.
type Handle struct {
	Raw           string
	Name          string
	Discriminator string
}

func ParseHandle(raw string) Handle {
	raw = strings.TrimSpace(raw)
	h := Handle{Raw: raw}
	name := strings.TrimPrefix(raw, "@")
	if n, disc, ok := strings.Cut(name, "#"); ok {
		h.Name = n
		h.Discriminator = disc
		return h
	}
	h.Name = name
	return h
}

func (h Handle) IsComposite() bool {
	return h.Discriminator != ""
}

// Matches reports whether the member answers to this handle: the name always
// compares case-insensitively, the discriminator (when given) exactly.
func (h Handle) Matches(m Member) bool {
	if h.Name == "" || !strings.EqualFold(h.Name, m.Username) {
		return false
	}
	if h.IsComposite() {
		return h.Discriminator == m.Discriminator
	}
	return true
}

// SameName reports whether another raw handle refers to the same name,
// ignoring any discriminator on either side.
func (h Handle) SameName(other string) bool {
	o := ParseHandle(other)
	return h.Name != "" && strings.EqualFold(h.Name, o.Name)
}

// RoomName lowercases the name and replaces anything a text channel name
// cannot carry with "-", so lookups match what the platform stores.
func RoomName(name string) string {
	var sb strings.Builder
	sb.WriteString(roomPrefix)
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			sb.WriteRune(r)
		default:
			sb.WriteRune('-')
		}
	}
	return sb.String()
}

func IsRoomName(name string) bool {
	return strings.HasPrefix(name, roomPrefix)
}
