package usecase

import (
	"fmt"
	"html"
	"time"

	"telegram-x-monitor/internal/domain/model"
	"telegram-x-monitor/internal/domain/ports/adapter"
)

const (
	maxPostTextLen  = 200
	truncatedSuffix = "..."
	postTimeLayout  = "03:04 PM"
)

// TruncateText shortens s to at most max runes, ending in "..." when cut.
func TruncateText(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	keep := max - len(truncatedSuffix)
	if keep < 0 {
		keep = 0
	}
	return string(r[:keep]) + truncatedSuffix
}

// FormatPost renders a post as an HTML Telegram message with link buttons.
// The shown time is the post's creation time, or now when the API did not send one.
func FormatPost(p model.Post, loc *time.Location, now time.Time) adapter.SendMessageParams {
	kind, viewLabel := "Tweet", "🔗 View Tweet"
	if p.IsReply {
		kind, viewLabel = "Reply", "💬 View Reply"
	}
	ts := p.CreatedAt
	if ts.IsZero() {
		ts = now
	}
	if loc == nil {
		loc = time.UTC
	}
	text := fmt.Sprintf("<b>%s | @%s</b>\n\n%s\n\n🕒 %s",
		kind,
		html.EscapeString(p.Author.Username),
		html.EscapeString(TruncateText(p.Text, maxPostTextLen)),
		ts.In(loc).Format(postTimeLayout),
	)
	return adapter.SendMessageParams{
		Text:                  text,
		ParseMode:             adapter.ParseModeHTML,
		DisableWebPagePreview: true,
		Buttons: [][]adapter.InlineButton{{
			{Text: viewLabel, URL: p.URL()},
			{Text: "👤 View Profile", URL: p.Author.ProfileURL()},
		}},
	}
}
