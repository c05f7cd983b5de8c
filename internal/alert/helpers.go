package alert

import (
	"log/slog"
	"strings"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"

	"github.com/skylinesee/reeQute/lib/sl"
)

func (n *Notifier) plainResponse(chatId int64, text string) {
	if text == "" {
		n.log.With("id", chatId).Debug("empty message")
		return
	}

	_, err := n.api.SendMessage(chatId, text, &tgbotapi.SendMessageOpts{
		ParseMode: "MarkdownV2",
	})
	if err != nil {
		// not logged at warn or above, the handler would loop back here
		n.log.With(slog.Int64("id", chatId)).Debug("sending message", sl.Err(err))
		_, err = n.api.SendMessage(chatId, text, &tgbotapi.SendMessageOpts{})
		if err != nil {
			n.log.With(slog.Int64("id", chatId)).Debug("sending safe message", sl.Err(err))
		}
	}
}

// Sanitize escapes MarkdownV2 reserved characters.
func Sanitize(input string) string {
	reservedChars := "\\_{}#+-.!|()[]=*>~`"
	var sb strings.Builder
	for _, char := range input {
		if strings.ContainsRune(reservedChars, char) {
			sb.WriteByte('\\')
		}
		sb.WriteRune(char)
	}
	return sb.String()
}

func splitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			parts = append(parts, text)
			break
		}
		cutAt := maxLen
		nlIdx := strings.LastIndex(text[:maxLen], "\n")
		if nlIdx > 0 {
			cutAt = nlIdx + 1
		}
		parts = append(parts, text[:cutAt])
		text = text[cutAt:]
	}
	return parts
}
