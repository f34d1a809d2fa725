package telegram

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"telegram-x-monitor/internal/domain/ports/adapter"
)

var _ adapter.TelegramBotAdapter = (*NoopBotAdapter)(nil)

// NoopBotAdapter implements adapter.TelegramBotAdapter for local/dev runs.
// It logs messages instead of sending them and keeps the last few for inspection.
type NoopBotAdapter struct {
	log *zerolog.Logger

	mu   sync.Mutex
	sent []adapter.SendMessageParams
}

const noopKeep = 100

func NewNoopBotAdapter(logger *zerolog.Logger) *NoopBotAdapter {
	l := logger.With().Str("component", "noop_telegram").Logger()
	return &NoopBotAdapter{log: &l}
}

func (b *NoopBotAdapter) SendMessage(ctx context.Context, p adapter.SendMessageParams) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	b.sent = append(b.sent, p)
	if len(b.sent) > noopKeep {
		b.sent = b.sent[len(b.sent)-noopKeep:]
	}
	b.mu.Unlock()
	b.log.Info().Int64("chat_id", p.ChatID).Str("parse_mode", p.ParseMode).Int("button_rows", len(p.Buttons)).Msg(p.Text)
	return nil
}

// SetMenuCommands is a no-op that logs the call details.
func (b *NoopBotAdapter) SetMenuCommands(ctx context.Context, chatID int64, isAdmin bool) error {
	b.log.Debug().Int64("chat_id", chatID).Bool("is_admin", isAdmin).Msg("set menu commands")
	return nil
}

// Sent returns a copy of the retained messages.
func (b *NoopBotAdapter) Sent() []adapter.SendMessageParams {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]adapter.SendMessageParams(nil), b.sent...)
}
