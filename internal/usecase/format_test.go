//go:build !integration

package usecase_test

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-x-monitor/internal/domain/model"
	"telegram-x-monitor/internal/domain/ports/adapter"
	"telegram-x-monitor/internal/usecase"
)

func TestTruncateText(t *testing.T) {
	short := strings.Repeat("a", 200)
	assert.Equal(t, short, usecase.TruncateText(short, 200))

	long := strings.Repeat("b", 201)
	got := usecase.TruncateText(long, 200)
	assert.Equal(t, 200, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, strings.Repeat("b", 197), strings.TrimSuffix(got, "..."))

	emoji := strings.Repeat("🐦", 250)
	got = usecase.TruncateText(emoji, 200)
	assert.True(t, utf8.ValidString(got), "must not split runes")
	assert.Equal(t, 200, utf8.RuneCountInString(got))
}

func TestFormatPost(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	post := model.Post{
		ID:        1234,
		Text:      "a <b>bold</b> & risky claim",
		CreatedAt: time.Date(2026, 7, 4, 18, 5, 0, 0, time.UTC),
		Author:    model.EntityKey{Username: "jack", UserID: "12"},
	}

	t.Run("original post", func(t *testing.T) {
		p := usecase.FormatPost(post, ny, time.Time{})
		assert.Equal(t, adapter.ParseModeHTML, p.ParseMode)
		assert.True(t, p.DisableWebPagePreview)
		assert.True(t, strings.HasPrefix(p.Text, "<b>Tweet | @jack</b>\n\n"))
		assert.Contains(t, p.Text, "a &lt;b&gt;bold&lt;/b&gt; &amp; risky claim")
		assert.True(t, strings.HasSuffix(p.Text, "🕒 02:05 PM"), p.Text)

		require.Len(t, p.Buttons, 1)
		require.Len(t, p.Buttons[0], 2)
		assert.Equal(t, "🔗 View Tweet", p.Buttons[0][0].Text)
		assert.Equal(t, "https://twitter.com/jack/status/1234", p.Buttons[0][0].URL)
		assert.Equal(t, "👤 View Profile", p.Buttons[0][1].Text)
		assert.Equal(t, "https://twitter.com/jack", p.Buttons[0][1].URL)
	})

	t.Run("reply uses reply labels", func(t *testing.T) {
		reply := post
		reply.IsReply = true
		p := usecase.FormatPost(reply, ny, time.Time{})
		assert.True(t, strings.HasPrefix(p.Text, "<b>Reply | @jack</b>"))
		assert.Equal(t, "💬 View Reply", p.Buttons[0][0].Text)
	})

	t.Run("missing creation time falls back to now", func(t *testing.T) {
		undated := post
		undated.CreatedAt = time.Time{}
		now := time.Date(2026, 1, 10, 15, 30, 0, 0, time.UTC)
		p := usecase.FormatPost(undated, ny, now)
		assert.True(t, strings.HasSuffix(p.Text, "🕒 10:30 AM"), p.Text)
	})
}
