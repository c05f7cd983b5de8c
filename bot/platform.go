package bot

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/skylinesee/reeQute/entity"
	"github.com/skylinesee/reeQute/internal/provision"
)

const membersPageSize = 1000

// Platform is the discordgo implementation of provision.Platform and of
// the reply surface the commands need.
type Platform struct {
	session *discordgo.Session
}

func NewPlatform(session *discordgo.Session) *Platform {
	return &Platform{session: session}
}

func (p *Platform) SelfID() string {
	if p.session.State == nil || p.session.State.User == nil {
		return ""
	}
	return p.session.State.User.ID
}

func (p *Platform) guildIDs() []string {
	if p.session.State == nil {
		return nil
	}
	p.session.State.RLock()
	defer p.session.State.RUnlock()
	ids := make([]string, 0, len(p.session.State.Guilds))
	for _, g := range p.session.State.Guilds {
		ids = append(ids, g.ID)
	}
	return ids
}

// Members pages through every guild the session is in.
func (p *Platform) Members(ctx context.Context) ([]entity.Member, error) {
	var list []entity.Member
	for _, guildID := range p.guildIDs() {
		after := ""
		for {
			page, err := p.session.GuildMembers(guildID, after, membersPageSize, discordgo.WithContext(ctx))
			if err != nil {
				return nil, fmt.Errorf("guild %s members: %w", guildID, err)
			}
			for _, m := range page {
				if m.User == nil {
					continue
				}
				list = append(list, toMember(m.User, guildID))
			}
			if len(page) < membersPageSize {
				break
			}
			after = page[len(page)-1].User.ID
		}
	}
	return list, nil
}

func (p *Platform) Category(ctx context.Context, id string) (*entity.Category, error) {
	ch, err := p.session.Channel(id, discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	if ch.Type != discordgo.ChannelTypeGuildCategory {
		return nil, provision.ErrNotCategory
	}
	channels, err := p.session.GuildChannels(ch.GuildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("guild %s channels: %w", ch.GuildID, err)
	}
	cat := &entity.Category{ID: ch.ID, GuildID: ch.GuildID, Name: ch.Name}
	for _, c := range channels {
		if c.ParentID == ch.ID {
			cat.Rooms = append(cat.Rooms, entity.Room{
				ID:       c.ID,
				GuildID:  c.GuildID,
				ParentID: c.ParentID,
				Name:     c.Name,
			})
		}
	}
	return cat, nil
}

func (p *Platform) CreateRoom(ctx context.Context, spec entity.RoomSpec) (*entity.Room, error) {
	overwrites := make([]*discordgo.PermissionOverwrite, 0, len(spec.Overwrites))
	for _, o := range spec.Overwrites {
		overwrites = append(overwrites, toOverwrite(o))
	}
	ch, err := p.session.GuildChannelCreateComplex(spec.GuildID, discordgo.GuildChannelCreateData{
		Name:                 spec.Name,
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                spec.Topic,
		ParentID:             spec.ParentID,
		PermissionOverwrites: overwrites,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	return &entity.Room{ID: ch.ID, GuildID: ch.GuildID, ParentID: ch.ParentID, Name: ch.Name}, nil
}

func (p *Platform) DeleteRoom(ctx context.Context, roomID string) error {
	_, err := p.session.ChannelDelete(roomID, discordgo.WithContext(ctx))
	return err
}

func (p *Platform) SendMessage(ctx context.Context, roomID, text string) error {
	_, err := p.Send(ctx, roomID, text)
	return err
}

func (p *Platform) SendDirect(ctx context.Context, userID, text string) error {
	ch, err := p.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("opening direct channel: %w", err)
	}
	_, err = p.Send(ctx, ch.ID, text)
	return err
}

// Send posts text and returns the new message id.
func (p *Platform) Send(ctx context.Context, channelID, text string) (string, error) {
	msg, err := p.session.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (p *Platform) Edit(ctx context.Context, channelID, messageID, text string) error {
	_, err := p.session.ChannelMessageEdit(channelID, messageID, text, discordgo.WithContext(ctx))
	return err
}

// Permissions returns the effective permission bits of userID in channelID.
func (p *Platform) Permissions(ctx context.Context, userID, channelID string) (Permission, error) {
	bits, err := p.session.UserChannelPermissions(userID, channelID, discordgo.WithContext(ctx))
	if err != nil {
		return 0, err
	}
	return fromBits(bits), nil
}

func toOverwrite(o entity.Overwrite) *discordgo.PermissionOverwrite {
	kind := discordgo.PermissionOverwriteTypeMember
	if o.Kind == entity.OverwriteRole {
		kind = discordgo.PermissionOverwriteTypeRole
	}
	return &discordgo.PermissionOverwrite{
		ID:    o.ID,
		Type:  kind,
		Allow: toBits(o.Allow),
		Deny:  toBits(o.Deny),
	}
}

func toBits(p entity.Permission) int64 {
	var bits int64
	if p&entity.PermView != 0 {
		bits |= discordgo.PermissionViewChannel
	}
	if p&entity.PermSend != 0 {
		bits |= discordgo.PermissionSendMessages
	}
	if p&entity.PermReadHistory != 0 {
		bits |= discordgo.PermissionReadMessageHistory
	}
	return bits
}
