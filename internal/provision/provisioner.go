// Package provision resolves handles to guild members and gives each member
// a private verification room under the configured category.
//
// All methods except CategoryID talk to the platform and are expected to run
// on the bridge loop.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/skylinesee/reeQute/entity"
	"github.com/skylinesee/reeQute/lib/sl"
)

var (
	ErrMemberNotFound  = errors.New("member not found")
	ErrCategoryUnset   = errors.New("verification category not set")
	ErrCategoryMissing = errors.New("verification category not found")
	ErrNotCategory     = errors.New("channel is not a category")
)

const (
	roomPermissions = entity.PermView | entity.PermSend | entity.PermReadHistory
	roomTopic       = "Private verification channel"
)

// Platform is what the provisioner needs from the chat client.
type Platform interface {
	SelfID() string
	// Members lists members of every guild the bot is in.
	Members(ctx context.Context) ([]entity.Member, error)
	// Category returns ErrNotCategory when id names a non-category channel.
	Category(ctx context.Context, id string) (*entity.Category, error)
	CreateRoom(ctx context.Context, spec entity.RoomSpec) (*entity.Room, error)
	DeleteRoom(ctx context.Context, roomID string) error
	SendMessage(ctx context.Context, roomID, text string) error
	SendDirect(ctx context.Context, userID, text string) error
}

type Options struct {
	CategoryID string
	// DirectFallback sends the code by direct message when the room cannot
	// be created or written to.
	DirectFallback bool
}

// Delivery describes where a code ended up.
type Delivery struct {
	Member  entity.Member
	Room    *entity.Room
	Created bool
	Direct  bool
}

// ClearReport is the outcome of ClearRooms.
type ClearReport struct {
	Deleted int
	Failed  []string
}

type Provisioner struct {
	platform Platform
	log      *slog.Logger
	fallback bool

	mu         sync.RWMutex
	categoryID string
}

func New(platform Platform, log *slog.Logger, opts Options) *Provisioner {
	return &Provisioner{
		platform:   platform,
		log:        log.With(sl.Module("provision")),
		fallback:   opts.DirectFallback,
		categoryID: opts.CategoryID,
	}
}

func (p *Provisioner) CategoryID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.categoryID
}

// SetCategory checks that id is a category and makes it the parent for
// new verification rooms.
func (p *Provisioner) SetCategory(ctx context.Context, id string) (*entity.Category, error) {
	cat, err := p.platform.Category(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotCategory) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrCategoryMissing, err)
	}
	p.mu.Lock()
	p.categoryID = cat.ID
	p.mu.Unlock()

	p.log.With(
		slog.String("category_id", cat.ID),
		slog.String("name", cat.Name),
	).Info("verification category set")
	return cat, nil
}

// Resolve finds the first member answering to handle. With several matches
// the winner depends on platform listing order.
func (p *Provisioner) Resolve(ctx context.Context, handle string) (*entity.Member, error) {
	h := entity.ParseHandle(handle)
	if h.Name == "" {
		return nil, ErrMemberNotFound
	}
	members, err := p.platform.Members(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	for i := range members {
		if members[i].Bot {
			continue
		}
		if h.Matches(members[i]) {
			m := members[i]
			return &m, nil
		}
	}
	return nil, ErrMemberNotFound
}

func (p *Provisioner) category(ctx context.Context) (*entity.Category, error) {
	id := p.CategoryID()
	if id == "" {
		return nil, ErrCategoryUnset
	}
	cat, err := p.platform.Category(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCategoryMissing, err)
	}
	return cat, nil
}

// Deliver resolves handle, makes sure the member's room exists and posts
// the code there. An unknown handle creates nothing. A missing category is
// reported to the member directly.
func (p *Provisioner) Deliver(ctx context.Context, handle, code string) (*Delivery, error) {
	log := p.log.With(sl.Handle(handle))

	member, err := p.Resolve(ctx, handle)
	if err != nil {
		return nil, err
	}
	d := &Delivery{Member: *member}
	log = log.With(slog.String("user_id", member.ID))

	cat, err := p.category(ctx)
	if err != nil {
		notice := "Verification is not configured on this server yet. Please contact a moderator."
		if dmErr := p.platform.SendDirect(ctx, member.ID, notice); dmErr != nil {
			log.Warn("configuration notice not delivered", sl.Err(dmErr))
		}
		return d, err
	}

	room, created, err := p.ensureRoom(ctx, cat, *member)
	if err == nil {
		d.Room = room
		d.Created = created
		err = p.platform.SendMessage(ctx, room.ID, roomMessage(*member, code))
		if err == nil {
			log.With(
				slog.String("room_id", room.ID),
				slog.Bool("created", created),
			).Info("code delivered")
			return d, nil
		}
	}
	if !p.fallback {
		return d, fmt.Errorf("room delivery: %w", err)
	}

	log.Warn("room delivery failed, falling back to direct message", sl.Err(err))
	if dmErr := p.platform.SendDirect(ctx, member.ID, directMessage(code)); dmErr != nil {
		return d, fmt.Errorf("direct delivery: %w", errors.Join(err, dmErr))
	}
	d.Direct = true
	log.Info("code delivered by direct message")
	return d, nil
}

func (p *Provisioner) ensureRoom(ctx context.Context, cat *entity.Category, member entity.Member) (*entity.Room, bool, error) {
	name := member.RoomName()
	if room := cat.FindRoom(name); room != nil {
		return room, false, nil
	}
	room, err := p.platform.CreateRoom(ctx, entity.RoomSpec{
		GuildID:  cat.GuildID,
		ParentID: cat.ID,
		Name:     name,
		Topic:    roomTopic,
		Overwrites: []entity.Overwrite{
			// the guild id doubles as the default role id
			{ID: cat.GuildID, Kind: entity.OverwriteRole, Deny: entity.PermView},
			{ID: member.ID, Kind: entity.OverwriteMember, Allow: roomPermissions},
			{ID: p.platform.SelfID(), Kind: entity.OverwriteMember, Allow: roomPermissions},
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("creating room %s: %w", name, err)
	}
	return room, true, nil
}

// RemoveRoom deletes the member's room. It reports false when none exists.
func (p *Provisioner) RemoveRoom(ctx context.Context, member entity.Member) (bool, error) {
	cat, err := p.category(ctx)
	if err != nil {
		return false, err
	}
	room := cat.FindRoom(member.RoomName())
	if room == nil {
		return false, nil
	}
	if err = p.platform.DeleteRoom(ctx, room.ID); err != nil {
		return false, fmt.Errorf("deleting room %s: %w", room.Name, err)
	}
	p.log.With(
		slog.String("room", room.Name),
		slog.String("user_id", member.ID),
	).Info("room deleted")
	return true, nil
}

// ClearRooms deletes every channel in the category. Failures are collected
// per room and do not stop the sweep.
func (p *Provisioner) ClearRooms(ctx context.Context) (ClearReport, error) {
	var report ClearReport
	cat, err := p.category(ctx)
	if err != nil {
		return report, err
	}
	for _, room := range cat.Rooms {
		if err = p.platform.DeleteRoom(ctx, room.ID); err != nil {
			p.log.With(slog.String("room", room.Name)).Warn("room not deleted", sl.Err(err))
			report.Failed = append(report.Failed, room.Name)
			continue
		}
		report.Deleted++
	}
	p.log.With(
		slog.Int("deleted", report.Deleted),
		slog.Int("failed", len(report.Failed)),
	).Info("verification rooms cleared")
	return report, nil
}

// Notify sends a best-effort direct message.
func (p *Provisioner) Notify(ctx context.Context, userID, text string) {
	if err := p.platform.SendDirect(ctx, userID, text); err != nil {
		p.log.With(slog.String("user_id", userID)).Debug("direct message not delivered", sl.Err(err))
	}
}

func roomMessage(member entity.Member, code string) string {
	return fmt.Sprintf("%s your verification code is: **%s**\nEnter this code on the website to complete verification.",
		member.Mention(), code)
}

func directMessage(code string) string {
	return fmt.Sprintf("Your verification code is: **%s**\nEnter this code on the website to complete verification.", code)
}
