// Package bot connects to Discord and exposes the moderator command surface.
//
//   - bot.go      session lifecycle and inbound message routing
//   - platform.go discordgo adapter for provision.Platform and replies
//   - commands.go prefix commands and their permission gates
//   - helpers.go  parsing and formatting shared by the commands
//
// Gateway handlers only translate events; every command body runs as a
// task on the bridge loop, which is also where all REST calls happen.
package bot

import (
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"

	"github.com/skylinesee/reeQute/entity"
	"github.com/skylinesee/reeQute/lib/sl"
)

type Bot struct {
	log       *slog.Logger
	session   *discordgo.Session
	platform  *Platform
	commands  *Commands
	connected atomic.Bool
}

// New creates the session. Commands must be attached with SetCommands
// before Start.
func New(token string, log *slog.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent

	b := &Bot{
		log:      log.With(sl.Module("discord")),
		session:  session,
		platform: NewPlatform(session),
	}
	session.AddHandler(b.onReady)
	session.AddHandler(b.onResumed)
	session.AddHandler(b.onDisconnect)
	session.AddHandler(b.onMessage)
	return b, nil
}

func (b *Bot) Platform() *Platform {
	return b.platform
}

func (b *Bot) SetCommands(c *Commands) {
	b.commands = c
}

// Connected reports whether the gateway session is ready.
func (b *Bot) Connected() bool {
	return b.connected.Load()
}

func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("opening gateway: %w", err)
	}
	return nil
}

func (b *Bot) Stop() {
	b.log.Info("closing discord session")
	b.connected.Store(false)
	if err := b.session.Close(); err != nil {
		b.log.Warn("closing session", sl.Err(err))
	}
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	b.connected.Store(true)
	b.log.With(
		slog.String("user", r.User.Username),
		slog.Int("guilds", len(r.Guilds)),
	).Info("discord session ready")
}

func (b *Bot) onResumed(_ *discordgo.Session, _ *discordgo.Resumed) {
	b.connected.Store(true)
	b.log.Info("discord session resumed")
}

func (b *Bot) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	b.connected.Store(false)
	b.log.Warn("discord session disconnected")
}

func (b *Bot) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if b.commands == nil || m.Author == nil || m.Author.Bot {
		return
	}
	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}
	if m.GuildID == "" {
		return
	}
	b.commands.Dispatch(toMessage(m))
}

func toMessage(m *discordgo.MessageCreate) Message {
	msg := Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Author:    toMember(m.Author, m.GuildID),
		Content:   strings.TrimSpace(m.Content),
	}
	for _, u := range m.Mentions {
		if u == nil {
			continue
		}
		msg.Mentions = append(msg.Mentions, toMember(u, m.GuildID))
	}
	return msg
}

func toMember(u *discordgo.User, guildID string) entity.Member {
	return entity.Member{
		ID:            u.ID,
		GuildID:       guildID,
		Username:      u.Username,
		Discriminator: u.Discriminator,
		Bot:           u.Bot,
	}
}
