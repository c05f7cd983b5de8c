package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/skylinesee/reeQute/entity"
)

// Permission holds the moderator permissions commands are gated on.
type Permission int64

const (
	PermManageRoles Permission = 1 << iota
	PermAdministrator
)

// Has treats Administrator as holding every permission.
func (p Permission) Has(need Permission) bool {
	if p&PermAdministrator != 0 {
		return true
	}
	return p&need == need
}

func fromBits(bits int64) Permission {
	var p Permission
	if bits&discordgo.PermissionManageRoles != 0 {
		p |= PermManageRoles
	}
	if bits&discordgo.PermissionAdministrator != 0 {
		p |= PermAdministrator
	}
	return p
}

// parseCommand splits "!name arg ..." into a lower-cased name and its
// arguments.
func parseCommand(content, prefix string) (string, []string, bool) {
	content = strings.TrimSpace(content)
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(content, prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

func isConfirm(content string) bool {
	return strings.EqualFold(strings.TrimSpace(content), "confirm")
}

func parseMinutes(args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative minutes: %d", n)
	}
	return n, nil
}

// isMention reports whether s is a user mention like <@42> or <@!42>.
func isMention(s string) bool {
	return strings.HasPrefix(s, "<@") && strings.HasSuffix(s, ">")
}

// parseChannelID accepts a raw id or a channel mention like <#600>.
func parseChannelID(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "<#") && strings.HasSuffix(s, ">") {
		return s[2 : len(s)-1]
	}
	return s
}

func deniedMessage(command string) string {
	switch command {
	case "clearverify":
		return "You need administrator permissions to clear all verification data."
	case "setcategory":
		return "You need 'Manage Roles' permission to set the verification category."
	case "verify":
		return "You need 'Manage Roles' permission to verify users."
	case "removeverify":
		return "You need 'Manage Roles' permission to remove users from verification."
	default:
		return "You need 'Manage Roles' permission to use this command."
	}
}

func formatCodes(codes []entity.PendingCode, now time.Time) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**Pending verification codes** (%d)\n", len(codes)))
	for _, p := range codes {
		age := now.Sub(p.CreatedAt).Round(time.Minute)
		sb.WriteString(fmt.Sprintf("`%s` requested %s ago", p.Handle, age))
		if !p.ExpiresAt.IsZero() {
			sb.WriteString(fmt.Sprintf(", expires %s", p.ExpiresAt.UTC().Format("15:04 MST")))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatGrants(grants []entity.Grant, now time.Time) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**Temporary access** (%d)\n", len(grants)))
	for _, g := range grants {
		sb.WriteString(fmt.Sprintf("<@%s> (`%s`): %d minutes remaining\n", g.UserID, g.Handle, g.RemainingMinutes(now)))
	}
	return sb.String()
}

func formatAudit(member entity.Member, events []*entity.AuditEvent) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("**Audit log for %s** (latest %d)\n", member.Tag(), len(events)))
	for _, ev := range events {
		sb.WriteString(fmt.Sprintf("`%s` %s", ev.CreatedAt.UTC().Format("2006-01-02 15:04"), ev.Kind))
		if ev.Actor != "" {
			sb.WriteString(fmt.Sprintf(" by <@%s>", ev.Actor))
		}
		if ev.Detail != "" {
			sb.WriteString(" (" + ev.Detail + ")")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func helpText(prefix string) string {
	lines := []string{
		"**Verification commands**",
		"`%[1]ssetcategory <category_id>` set the category for verification channels",
		"`%[1]sverify @user [minutes]` verify a user, or grant temporary access for some minutes",
		"`%[1]slistverify` list pending verification codes",
		"`%[1]slisttemp` list users with temporary access",
		"`%[1]sremoveverify @user` remove a user's code, access and channel",
		"`%[1]sclearverify` delete all verification channels and data (administrators)",
		"`%[1]saudit @user` show recent verification events for a user",
	}
	return fmt.Sprintf(strings.Join(lines, "\n"), prefix)
}
