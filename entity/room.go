package entity

// Permission is a platform-neutral subset of channel permissions the bot
// hands out on verification rooms.
type Permission int64

const (
	PermView Permission = 1 << iota
	PermSend
	PermReadHistory
)

type OverwriteKind int

const (
	OverwriteRole OverwriteKind = iota
	OverwriteMember
)

// Overwrite is a per-role or per-member permission override on a room.
type Overwrite struct {
	ID    string
	Kind  OverwriteKind
	Allow Permission
	Deny  Permission
}

// Room is a text channel. ParentID is the category holding it.
type Room struct {
	ID       string `json:"id"`
	GuildID  string `json:"guild_id"`
	ParentID string `json:"parent_id"`
	Name     string `json:"name"`
}

// Category is the parent channel verification rooms are created under,
// with its current children.
type Category struct {
	ID      string
	GuildID string
	Name    string
	Rooms   []Room
}

func (c *Category) FindRoom(name string) *Room {
	for i := range c.Rooms {
		if c.Rooms[i].Name == name {
			return &c.Rooms[i]
		}
	}
	return nil
}

// RoomSpec describes a room to create.
type RoomSpec struct {
	GuildID    string
	ParentID   string
	Name       string
	Topic      string
	Overwrites []Overwrite
}
