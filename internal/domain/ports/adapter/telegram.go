// File: internal/domain/ports/adapter/telegram.go
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type InlineButton struct {
	Text string
	Data string
	URL  string
}

const ParseModeHTML = "HTML"

// SendMessageParams is everything needed to deliver one message to one chat.
type SendMessageParams struct {
	ChatID                int64
	Text                  string
	ParseMode             string
	DisableWebPagePreview bool
	Buttons               [][]InlineButton
}

type TelegramBotAdapter interface {
	SendMessage(ctx context.Context, params SendMessageParams) error
	SetMenuCommands(ctx context.Context, chatID int64, isAdmin bool) error
}

// ErrChatUnavailable means the chat cannot receive messages (bot blocked, chat deleted).
// Retrying will not help.
var ErrChatUnavailable = errors.New("telegram chat unavailable")

// RetryAfterError is returned when Telegram asks the caller to slow down.
type RetryAfterError struct {
	After time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("telegram flood control: retry after %s", e.After)
}
