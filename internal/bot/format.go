package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"newsbot/internal/model"
	"newsbot/internal/preference"
)

const maxSummaryRunes = 300

// FormatNotification formats an entry as a Telegram notification message.
func FormatNotification(entry model.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📰 %s", entry.Title)
	if summary := truncate(entry.Summary, maxSummaryRunes); summary != "" {
		b.WriteString("\n\n")
		b.WriteString(summary)
	}
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Source: %s\nRead more: %s", entry.Source, entry.Link)
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return strings.TrimSpace(string(r[:n])) + "..."
}

// keyboard converts a menu into an inline keyboard whose buttons carry
// encoded actions.
func keyboard(catalog model.Catalog, m preference.Menu) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(m.Rows))
	for _, row := range m.Rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(btn.Label, EncodeAction(catalog, btn.Action)))
		}
		rows = append(rows, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

const helpText = `Commands:
/start - pick sources and categories from scratch
/settings - change your current selection
/mysubs - show what you are subscribed to
/help - this message

You only receive articles whose title or summary mentions one of the categories you selected for a source.`
