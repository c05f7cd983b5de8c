// Package fakeplatform is an in-memory provision.Platform for tests.
package fakeplatform

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/skylinesee/reeQute/entity"
	"github.com/skylinesee/reeQute/internal/provision"
)

var ErrForbidden = errors.New("403 Forbidden: Missing Permissions")

// Message is a message sent to a room or a user.
type Message struct {
	To     string
	Text   string
	Direct bool
}

type Platform struct {
	mu sync.Mutex

	Self       string
	GuildID    string
	members    []entity.Member
	categories map[string]string
	rooms      map[string]entity.Room
	created    []entity.RoomSpec
	messages   []Message
	nextID     int

	FailCreate  error
	FailSend    error
	FailDirect  error
	FailDelete  map[string]error
	FailMembers error
}

func New(guildID string) *Platform {
	return &Platform{
		Self:       "1000",
		GuildID:    guildID,
		categories: make(map[string]string),
		rooms:      make(map[string]entity.Room),
		FailDelete: make(map[string]error),
	}
}

func (p *Platform) AddMember(m entity.Member) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m.GuildID == "" {
		m.GuildID = p.GuildID
	}
	p.members = append(p.members, m)
}

func (p *Platform) AddCategory(id, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.categories[id] = name
}

func (p *Platform) AddRoom(r entity.Room) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r.GuildID == "" {
		r.GuildID = p.GuildID
	}
	p.rooms[r.ID] = r
}

func (p *Platform) RemoveCategory(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.categories, id)
}

func (p *Platform) SelfID() string {
	return p.Self
}

func (p *Platform) Members(_ context.Context) ([]entity.Member, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailMembers != nil {
		return nil, p.FailMembers
	}
	out := make([]entity.Member, len(p.members))
	copy(out, p.members)
	return out, nil
}

func (p *Platform) Category(_ context.Context, id string) (*entity.Category, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	name, ok := p.categories[id]
	if !ok {
		if _, isRoom := p.rooms[id]; isRoom {
			return nil, provision.ErrNotCategory
		}
		return nil, fmt.Errorf("404 Not Found: Unknown Channel %s", id)
	}
	cat := &entity.Category{ID: id, GuildID: p.GuildID, Name: name}
	for _, r := range p.rooms {
		if r.ParentID == id {
			cat.Rooms = append(cat.Rooms, r)
		}
	}
	return cat, nil
}

func (p *Platform) CreateRoom(_ context.Context, spec entity.RoomSpec) (*entity.Room, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailCreate != nil {
		return nil, p.FailCreate
	}
	p.nextID++
	r := entity.Room{
		ID:       fmt.Sprintf("room-%d", p.nextID),
		GuildID:  spec.GuildID,
		ParentID: spec.ParentID,
		Name:     spec.Name,
	}
	p.rooms[r.ID] = r
	p.created = append(p.created, spec)
	return &r, nil
}

func (p *Platform) DeleteRoom(_ context.Context, roomID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.FailDelete[roomID]; err != nil {
		return err
	}
	if _, ok := p.rooms[roomID]; !ok {
		return fmt.Errorf("404 Not Found: Unknown Channel %s", roomID)
	}
	delete(p.rooms, roomID)
	return nil
}

func (p *Platform) SendMessage(_ context.Context, roomID, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailSend != nil {
		return p.FailSend
	}
	p.messages = append(p.messages, Message{To: roomID, Text: text})
	return nil
}

func (p *Platform) SendDirect(_ context.Context, userID, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailDirect != nil {
		return p.FailDirect
	}
	p.messages = append(p.messages, Message{To: userID, Text: text, Direct: true})
	return nil
}

func (p *Platform) Rooms() []entity.Room {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]entity.Room, 0, len(p.rooms))
	for _, r := range p.rooms {
		out = append(out, r)
	}
	return out
}

func (p *Platform) Created() []entity.RoomSpec {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]entity.RoomSpec, len(p.created))
	copy(out, p.created)
	return out
}

func (p *Platform) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}
