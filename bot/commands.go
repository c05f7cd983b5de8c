package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/skylinesee/reeQute/entity"
	"github.com/skylinesee/reeQute/internal/bridge"
	"github.com/skylinesee/reeQute/internal/provision"
	"github.com/skylinesee/reeQute/internal/verification"
	"github.com/skylinesee/reeQute/lib/clock"
	"github.com/skylinesee/reeQute/lib/sl"
)

const auditLimit = 10

// Service is the part of the verification service the commands drive.
type Service interface {
	CategoryID() string
	SetCategory(ctx context.Context, id string) (*entity.Category, error)
	Resolve(ctx context.Context, handle string) (*entity.Member, error)
	GrantManual(ctx context.Context, actor string, member entity.Member, minutes int) (*verification.GrantOutcome, error)
	RevokeAndCleanup(ctx context.Context, actor string, member entity.Member) verification.RevokeReport
	RequestClearAll(actorID, channelID string, onDone func(ctx context.Context, r verification.ClearReport, err error), onCancel func(ctx context.Context, reason verification.CancelReason))
	ConfirmClearAll(actorID, channelID, content string) bool
	PendingCodes() []entity.PendingCode
	ActiveGrants() []entity.Grant
}

// Chat is how commands read permissions and answer.
type Chat interface {
	Send(ctx context.Context, channelID, text string) (string, error)
	Edit(ctx context.Context, channelID, messageID, text string) error
	Permissions(ctx context.Context, userID, channelID string) (Permission, error)
}

type Loop interface {
	Submit(name string, fn bridge.Func) (string, error)
}

// AuditSource is optional; without it the audit command is unavailable.
type AuditSource interface {
	AuditEvents(userID string, limit int64) ([]*entity.AuditEvent, error)
}

// Message is an inbound guild message stripped to what commands use.
type Message struct {
	ID        string
	ChannelID string
	GuildID   string
	Author    entity.Member
	Content   string
	Mentions  []entity.Member
}

type CommandsOptions struct {
	Prefix         string
	ConfirmTimeout time.Duration
	Clock          clock.Clock
}

type Commands struct {
	log      *slog.Logger
	service  Service
	chat     Chat
	loop     Loop
	audit    AuditSource
	clock    clock.Clock
	prefix   string
	timeout  time.Duration
	handlers map[string]commandHandler
}

type commandHandler struct {
	perm Permission
	run  func(ctx context.Context, msg Message, args []string)
}

func NewCommands(service Service, chat Chat, loop Loop, log *slog.Logger, opts CommandsOptions) *Commands {
	if opts.Prefix == "" {
		opts.Prefix = "!"
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = verification.DefaultConfirmTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	c := &Commands{
		log:     log.With(sl.Module("commands")),
		service: service,
		chat:    chat,
		loop:    loop,
		clock:   opts.Clock,
		prefix:  opts.Prefix,
		timeout: opts.ConfirmTimeout,
	}
	c.handlers = map[string]commandHandler{
		"setcategory":  {perm: PermManageRoles, run: c.setCategory},
		"verify":       {perm: PermManageRoles, run: c.verify},
		"listverify":   {perm: PermManageRoles, run: c.listVerify},
		"listtemp":     {perm: PermManageRoles, run: c.listTemp},
		"removeverify": {perm: PermManageRoles, run: c.removeVerify},
		"clearverify":  {perm: PermAdministrator, run: c.clearVerify},
		"audit":        {perm: PermManageRoles, run: c.auditCmd},
		"help":         {run: c.help},
	}
	return c
}

func (c *Commands) SetAuditSource(a AuditSource) {
	c.audit = a
}

// Dispatch hands a message to the loop. Only known commands and a bare
// "confirm" are queued; everything else is ignored here so task names stay
// within the command set.
func (c *Commands) Dispatch(msg Message) {
	name, _, isCommand := parseCommand(msg.Content, c.prefix)
	if !isCommand && !isConfirm(msg.Content) {
		return
	}
	task := "message"
	if isCommand {
		if _, known := c.handlers[name]; !known {
			return
		}
		task = "command:" + name
	}
	if _, err := c.loop.Submit(task, func(ctx context.Context) error {
		c.Handle(ctx, msg)
		return nil
	}); err != nil {
		c.log.With(slog.String("task", task)).Warn("message not queued", sl.Err(err))
	}
}

// Handle runs on the loop.
func (c *Commands) Handle(ctx context.Context, msg Message) {
	name, args, ok := parseCommand(msg.Content, c.prefix)
	if !ok {
		c.service.ConfirmClearAll(msg.Author.ID, msg.ChannelID, msg.Content)
		return
	}
	h, known := c.handlers[name]
	if !known {
		return
	}
	if h.perm != 0 && !c.allowed(ctx, msg, h.perm) {
		c.reply(ctx, msg.ChannelID, deniedMessage(name))
		return
	}
	c.log.With(
		slog.String("command", name),
		slog.String("actor", msg.Author.ID),
	).Debug("command received")
	h.run(ctx, msg, args)
}

func (c *Commands) allowed(ctx context.Context, msg Message, need Permission) bool {
	perms, err := c.chat.Permissions(ctx, msg.Author.ID, msg.ChannelID)
	if err != nil {
		c.log.With(slog.String("actor", msg.Author.ID)).Warn("permissions not resolved", sl.Err(err))
		return false
	}
	return perms.Has(need)
}

func (c *Commands) reply(ctx context.Context, channelID, text string) string {
	id, err := c.chat.Send(ctx, channelID, text)
	if err != nil {
		c.log.With(slog.String("channel_id", channelID)).Warn("reply not sent", sl.Err(err))
	}
	return id
}

func (c *Commands) setCategory(ctx context.Context, msg Message, args []string) {
	if len(args) == 0 {
		c.reply(ctx, msg.ChannelID, c.usage("setcategory <category_id>", "Please provide a category ID."))
		return
	}
	cat, err := c.service.SetCategory(ctx, parseChannelID(args[0]))
	switch {
	case errors.Is(err, provision.ErrNotCategory):
		c.reply(ctx, msg.ChannelID, "That channel is not a category.")
	case err != nil:
		c.reply(ctx, msg.ChannelID, "Category not found. Please check the ID.")
	default:
		c.reply(ctx, msg.ChannelID, fmt.Sprintf("Verification category set to **%s**.", cat.Name))
	}
}

func (c *Commands) verify(ctx context.Context, msg Message, args []string) {
	member, rest, ok := c.target(ctx, msg, args)
	if !ok {
		c.reply(ctx, msg.ChannelID, c.usage("verify @user [minutes]", "Please mention a user to verify."))
		return
	}
	minutes, err := parseMinutes(rest)
	if err != nil {
		c.reply(ctx, msg.ChannelID, "Minutes must be a whole number, 0 or more.")
		return
	}
	out, err := c.service.GrantManual(ctx, msg.Author.ID, member, minutes)
	if err != nil {
		c.reply(ctx, msg.ChannelID, fmt.Sprintf("Could not verify %s: %v", member.Mention(), err))
		return
	}
	if out.Permanent {
		c.reply(ctx, msg.ChannelID, fmt.Sprintf("%s has been verified.", member.Mention()))
		return
	}
	c.reply(ctx, msg.ChannelID, fmt.Sprintf("%s has been granted temporary access for %d minutes.", member.Mention(), minutes))
}

func (c *Commands) listVerify(ctx context.Context, msg Message, _ []string) {
	codes := c.service.PendingCodes()
	if len(codes) == 0 {
		c.reply(ctx, msg.ChannelID, "No pending verification codes.")
		return
	}
	c.reply(ctx, msg.ChannelID, formatCodes(codes, c.clock.Now()))
}

func (c *Commands) listTemp(ctx context.Context, msg Message, _ []string) {
	grants := c.service.ActiveGrants()
	if len(grants) == 0 {
		c.reply(ctx, msg.ChannelID, "No users with temporary access.")
		return
	}
	c.reply(ctx, msg.ChannelID, formatGrants(grants, c.clock.Now()))
}

func (c *Commands) removeVerify(ctx context.Context, msg Message, args []string) {
	member, _, ok := c.target(ctx, msg, args)
	if !ok {
		c.reply(ctx, msg.ChannelID, c.usage("removeverify @user", "Please mention a user to remove."))
		return
	}
	report := c.service.RevokeAndCleanup(ctx, msg.Author.ID, member)

	switch {
	case report.Room:
		c.reply(ctx, msg.ChannelID, fmt.Sprintf("Deleted verification channel for %s", member.Mention()))
	case report.RoomErr != nil:
		c.reply(ctx, msg.ChannelID, c.categoryError(report.RoomErr, "Error deleting channel"))
	}

	if report.Empty() {
		c.reply(ctx, msg.ChannelID, fmt.Sprintf("No verification data found for %s", member.Mention()))
		return
	}
	var parts []string
	if report.Grant {
		parts = append(parts, "Removed temporary access")
	}
	if report.Code {
		parts = append(parts, "Removed verification code")
	}
	text := fmt.Sprintf("Removed %s from verification.", member.Mention())
	if len(parts) > 0 {
		text += " " + strings.Join(parts, ", ")
	}
	c.reply(ctx, msg.ChannelID, text)
}

func (c *Commands) clearVerify(ctx context.Context, msg Message, _ []string) {
	promptID := c.reply(ctx, msg.ChannelID,
		"⚠️ This will delete ALL verification channels and data. Type `confirm` to proceed.")

	c.service.RequestClearAll(msg.Author.ID, msg.ChannelID,
		func(ctx context.Context, r verification.ClearReport, err error) {
			if err != nil {
				c.reply(ctx, msg.ChannelID, c.categoryError(err, "Could not clear verification data"))
				return
			}
			for _, name := range r.Rooms.Failed {
				c.reply(ctx, msg.ChannelID, fmt.Sprintf("Error deleting channel %s", name))
			}
			c.reply(ctx, msg.ChannelID, fmt.Sprintf("Verification data cleared. Deleted %d channels.", r.Rooms.Deleted))
		},
		func(ctx context.Context, reason verification.CancelReason) {
			text := fmt.Sprintf("Operation cancelled: No confirmation received within %d seconds.", int(c.timeout.Seconds()))
			if reason == verification.CancelReplaced {
				text = "Operation cancelled: A newer clear request replaced this one."
			}
			if promptID == "" {
				c.reply(ctx, msg.ChannelID, text)
				return
			}
			if err := c.chat.Edit(ctx, msg.ChannelID, promptID, text); err != nil {
				c.log.Warn("prompt not edited", sl.Err(err))
			}
		},
	)
}

func (c *Commands) auditCmd(ctx context.Context, msg Message, args []string) {
	audit := c.audit
	if audit == nil {
		c.reply(ctx, msg.ChannelID, "Audit log is not enabled.")
		return
	}
	member, _, ok := c.target(ctx, msg, args)
	if !ok {
		c.reply(ctx, msg.ChannelID, c.usage("audit @user", "Please mention a user."))
		return
	}
	// the query leaves the loop; only the reply comes back to it
	go func() {
		events, err := audit.AuditEvents(member.ID, auditLimit)
		text := formatAudit(member, events)
		switch {
		case err != nil:
			c.log.Warn("audit query failed", sl.Err(err))
			text = "Could not read the audit log."
		case len(events) == 0:
			text = fmt.Sprintf("No audit events for %s", member.Mention())
		}
		if _, err = c.loop.Submit("audit-reply", func(ctx context.Context) error {
			c.reply(ctx, msg.ChannelID, text)
			return nil
		}); err != nil {
			c.log.Warn("audit reply not queued", sl.Err(err))
		}
	}()
}

func (c *Commands) help(ctx context.Context, msg Message, _ []string) {
	c.reply(ctx, msg.ChannelID, helpText(c.prefix))
}

// target picks the member a command acts on: the first mention, or the
// first argument resolved as a handle. It returns the remaining arguments.
func (c *Commands) target(ctx context.Context, msg Message, args []string) (entity.Member, []string, bool) {
	if len(msg.Mentions) > 0 {
		rest := args
		if len(rest) > 0 && isMention(rest[0]) {
			rest = rest[1:]
		}
		return msg.Mentions[0], rest, true
	}
	if len(args) == 0 {
		return entity.Member{}, nil, false
	}
	m, err := c.service.Resolve(ctx, args[0])
	if err != nil {
		return entity.Member{}, nil, false
	}
	return *m, args[1:], true
}

func (c *Commands) usage(form, lead string) string {
	return fmt.Sprintf("%s Usage: `%s%s`", lead, c.prefix, form)
}

func (c *Commands) categoryError(err error, fallback string) string {
	switch {
	case errors.Is(err, provision.ErrCategoryUnset):
		return fmt.Sprintf("Verification category not set. Please use `%ssetcategory` first.", c.prefix)
	case errors.Is(err, provision.ErrCategoryMissing):
		return fmt.Sprintf("Verification category not found. Please use `%ssetcategory` again.", c.prefix)
	default:
		return fmt.Sprintf("%s: %v", fallback, err)
	}
}
