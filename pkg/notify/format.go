package notify

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/reelwatch/reelwatch/pkg/storage"
)

// ParseMode is the Telegram formatting every message is written in.
const ParseMode = tgbotapi.ModeMarkdownV2

// EscapeMarkdown makes s safe to place anywhere in a MarkdownV2 message,
// inside bold included. Backslashes are doubled first since EscapeText leaves
// them alone.
func EscapeMarkdown(s string) string {
	return tgbotapi.EscapeText(ParseMode, strings.ReplaceAll(s, `\`, `\\`))
}

// Caption renders the announcement text for m.
func Caption(m storage.Movie) string {
	rating := m.Rating.String()
	if m.Rating.Known {
		rating += "/10"
	}
	return fmt.Sprintf("%s\n*Actors:* %s\n*Director:* %s\n*Rating:* %s\n*Where to Watch:* %s",
		heading(m),
		EscapeMarkdown(m.Actors),
		EscapeMarkdown(m.Director),
		EscapeMarkdown(rating),
		EscapeMarkdown(m.WhereToWatch),
	)
}

// heading is the bold title line, "*Title* (Year)".
func heading(m storage.Movie) string {
	return "*" + EscapeMarkdown(m.Title) + "* " + EscapeMarkdown("("+m.Year+")")
}
