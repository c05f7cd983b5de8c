// Package alert mirrors operational log records to Telegram admin chats.
//
// Records at ERROR and above go out immediately. Lower levels that pass the
// logger's threshold are batched into a digest flushed on an interval.
// Admins can also ask the bot for a one-line /status of the service.
package alert

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers"

	"github.com/skylinesee/reeQute/lib/sl"
)

// Snapshot is what /status reports.
type Snapshot struct {
	BotConnected bool
	CategoryID   string
	PendingCodes int
	ActiveGrants int
}

type StatusSource interface {
	Snapshot() Snapshot
}

type Options struct {
	AdminIDs       []int64
	DigestInterval time.Duration
}

type Notifier struct {
	log      *slog.Logger
	api      *tgbotapi.Bot
	admins   []int64
	updater  *ext.Updater
	digest   *DigestBuffer
	status   StatusSource
	interval time.Duration
}

func NewNotifier(apiKey string, log *slog.Logger, opts Options) (*Notifier, error) {
	if opts.DigestInterval <= 0 {
		opts.DigestInterval = 10 * time.Minute
	}
	n := &Notifier{
		log:      log.With(sl.Module("alert")),
		admins:   opts.AdminIDs,
		interval: opts.DigestInterval,
	}
	api, err := tgbotapi.NewBot(apiKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating api instance: %v", err)
	}
	n.api = api
	n.digest = NewDigestBuffer(n.flushTo, opts.DigestInterval)
	return n, nil
}

func (n *Notifier) SetStatusSource(s StatusSource) {
	n.status = s
}

// Start begins polling for admin commands and blocks until Stop.
func (n *Notifier) Start() error {
	n.digest.StartTicker()

	dispatcher := ext.NewDispatcher(&ext.DispatcherOpts{
		Error: func(b *tgbotapi.Bot, ctx *ext.Context, err error) ext.DispatcherAction {
			n.log.Error("handling update:", sl.Err(err))
			return ext.DispatcherActionNoop
		},
		MaxRoutines: ext.DefaultMaxRoutines,
	})
	n.updater = ext.NewUpdater(dispatcher, nil)

	dispatcher.AddHandler(handlers.NewCommand("status", n.statusCmd))
	dispatcher.AddHandler(handlers.NewCommand("flush", n.flushCmd))

	err := n.updater.StartPolling(n.api, &ext.PollingOpts{
		DropPendingUpdates: true,
		GetUpdatesOpts: &tgbotapi.GetUpdatesOpts{
			Timeout: 9,
			RequestOpts: &tgbotapi.RequestOpts{
				Timeout: time.Second * 10,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to start polling: %w", err)
	}
	n.log.With(slog.Int("admins", len(n.admins))).Info("telegram alerts started")

	n.updater.Idle()
	return nil
}

func (n *Notifier) Stop() {
	n.digest.Stop()
	if n.updater != nil {
		n.log.Info("stopping telegram alerts")
		n.updater.Stop()
	}
}

// SendMessageWithLevel routes an already formatted MarkdownV2 message.
func (n *Notifier) SendMessageWithLevel(msg string, level slog.Level) {
	if level >= slog.LevelError {
		for _, id := range n.admins {
			n.plainResponse(id, msg)
		}
		return
	}
	n.digest.Add(msg, level)
}

func (n *Notifier) flushTo(text string) {
	for _, part := range splitMessage(text, maxTelegramMessageLen) {
		for _, id := range n.admins {
			n.plainResponse(id, part)
		}
	}
}

func (n *Notifier) isAdmin(id int64) bool {
	return slices.Contains(n.admins, id)
}

func (n *Notifier) statusCmd(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveUser.Id
	if !n.isAdmin(chatId) {
		return nil
	}
	if n.status == nil {
		n.plainResponse(chatId, "Status is not available")
		return nil
	}
	n.plainResponse(chatId, formatSnapshot(n.status.Snapshot()))
	return nil
}

func (n *Notifier) flushCmd(_ *tgbotapi.Bot, ctx *ext.Context) error {
	if !n.isAdmin(ctx.EffectiveUser.Id) {
		return nil
	}
	n.digest.Flush()
	return nil
}

func formatSnapshot(s Snapshot) string {
	connected := "yes"
	if !s.BotConnected {
		connected = "no"
	}
	category := s.CategoryID
	if category == "" {
		category = "not set"
	}
	return fmt.Sprintf("*Status*\nDiscord connected: %s\nCategory: `%s`\nPending codes: %d\nActive grants: %d",
		connected, category, s.PendingCodes, s.ActiveGrants)
}
