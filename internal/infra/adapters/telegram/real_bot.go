package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"telegram-x-monitor/internal/application"
	"telegram-x-monitor/internal/config"
	"telegram-x-monitor/internal/domain/ports/adapter"
	"telegram-x-monitor/internal/infra/logging"
	"telegram-x-monitor/internal/infra/metrics"
	red "telegram-x-monitor/internal/infra/redis"
)

var _ adapter.TelegramBotAdapter = (*RealTelegramBotAdapter)(nil)

// RealTelegramBotAdapter sends messages through the Bot API and, once polling
// starts, routes incoming commands to the BotFacade.
type RealTelegramBotAdapter struct {
	bot         *tgbotapi.BotAPI
	cfg         *config.BotConfig
	translator  application.Translator
	sendLimiter *rate.Limiter
	rateLimiter *red.RateLimiter
	log         *zerolog.Logger

	mu            sync.Mutex
	facade        *application.BotFacade
	cancelPolling context.CancelFunc
}

func NewRealTelegramBotAdapter(cfg *config.BotConfig, translator application.Translator, logger *zerolog.Logger) (*RealTelegramBotAdapter, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	if translator == nil {
		return nil, errors.New("translator is nil")
	}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, &http.Client{Timeout: 75 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	perSec := cfg.SendPerSec
	if perSec <= 0 {
		perSec = 25
	}
	l := logger.With().Str("component", "telegram").Str("bot", bot.Self.UserName).Logger()
	return &RealTelegramBotAdapter{
		bot:         bot,
		cfg:         cfg,
		translator:  translator,
		sendLimiter: rate.NewLimiter(rate.Limit(perSec), int(perSec)+1),
		log:         &l,
	}, nil
}

// SetRateLimiter enables the per-user command budget.
func (r *RealTelegramBotAdapter) SetRateLimiter(rl *red.RateLimiter) { r.rateLimiter = rl }

// StartPolling blocks until ctx is cancelled or StopPolling is called.
// Updates are handled by cfg.Workers goroutines.
func (r *RealTelegramBotAdapter) StartPolling(ctx context.Context, facade *application.BotFacade) error {
	if facade == nil {
		return errors.New("bot facade is nil")
	}
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.facade = facade
	r.cancelPolling = cancel
	r.mu.Unlock()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := r.bot.GetUpdatesChan(u)

	workers := r.cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for up := range updateChan {
				if err := r.handleUpdate(ctx, up); err != nil {
					r.log.Error().Err(err).Int("worker", id).Msg("update handling failed")
				}
			}
		}(i)
	}

	r.log.Info().Int("workers", workers).Msg("telegram polling started")
	defer func() {
		r.bot.StopReceivingUpdates()
		close(updateChan)
		wg.Wait()
		r.log.Info().Msg("telegram polling stopped")
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			select {
			case updateChan <- up:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (r *RealTelegramBotAdapter) StopPolling() {
	r.mu.Lock()
	cancel := r.cancelPolling
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// SendMessage waits for the outbound budget and delivers one message.
func (r *RealTelegramBotAdapter) SendMessage(ctx context.Context, p adapter.SendMessageParams) error {
	if err := r.sendLimiter.Wait(ctx); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(p.ChatID, p.Text)
	msg.ParseMode = p.ParseMode
	msg.DisableWebPagePreview = p.DisableWebPagePreview
	if kb, ok := toKeyboard(p.Buttons); ok {
		msg.ReplyMarkup = kb
	}
	_, err := r.bot.Send(msg)
	return mapSendError(err)
}

// SetMenuCommands publishes the command menu for one chat; admins get the monitoring commands too.
func (r *RealTelegramBotAdapter) SetMenuCommands(ctx context.Context, chatID int64, isAdmin bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cmds := []tgbotapi.BotCommand{
		{Command: "start", Description: r.translator.T("menu_start")},
		{Command: "request_access", Description: r.translator.T("menu_request_access")},
		{Command: "status", Description: r.translator.T("menu_status")},
		{Command: "help", Description: r.translator.T("menu_help")},
	}
	if isAdmin {
		cmds = append(cmds,
			tgbotapi.BotCommand{Command: "list_accounts", Description: r.translator.T("menu_list_accounts")},
			tgbotapi.BotCommand{Command: "start_monitoring", Description: r.translator.T("menu_start_monitoring")},
			tgbotapi.BotCommand{Command: "stop_monitoring", Description: r.translator.T("menu_stop_monitoring")},
		)
	}
	_, err := r.bot.Request(tgbotapi.NewSetMyCommandsWithScope(tgbotapi.NewBotCommandScopeChat(chatID), cmds...))
	return mapSendError(err)
}

func (r *RealTelegramBotAdapter) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	// Only URL buttons are ever sent; answer stray callbacks so clients stop spinning.
	if update.CallbackQuery != nil {
		_, _ = r.bot.Request(tgbotapi.NewCallback(update.CallbackQuery.ID, ""))
		return nil
	}
	message := update.Message
	if message == nil || message.From == nil || !message.IsCommand() {
		return nil
	}

	command := message.Command()
	ctx = logging.WithTgID(ctx, message.From.ID)
	ctx = logging.WithCommand(ctx, command)

	if r.rateLimiter != nil && r.cfg.CommandsPerMinute > 0 {
		d, err := r.rateLimiter.Take(ctx, red.UserCommandKey(message.From.ID, command), r.cfg.CommandsPerMinute, time.Minute)
		if err != nil {
			logging.With(ctx, r.log).Warn().Err(err).Msg("rate limit check failed")
		} else if !d.Allowed {
			metrics.IncRateLimitTriggered()
			logging.With(ctx, r.log).Debug().Int64("count", d.Count).Dur("retry_after", d.RetryAfter).Msg("command rate limited")
			return r.reply(ctx, message.Chat.ID, r.translator.T("error_rate_limited"))
		}
	}

	handler, ok := r.commandRoutes()[command]
	if !ok {
		return r.reply(ctx, message.Chat.ID, r.currentFacade().HandleUnknown())
	}
	metrics.IncTelegramCommand(command)
	return handler(ctx, message)
}

func (r *RealTelegramBotAdapter) currentFacade() *application.BotFacade {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.facade
}

func (r *RealTelegramBotAdapter) reply(ctx context.Context, chatID int64, text string) error {
	return r.SendMessage(ctx, adapter.SendMessageParams{ChatID: chatID, Text: text})
}

func toKeyboard(rows [][]adapter.InlineButton) (tgbotapi.InlineKeyboardMarkup, bool) {
	kbRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		kr := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			label := strings.TrimSpace(btn.Text)
			if label == "" {
				label = "•"
			}
			switch {
			case btn.URL != "":
				kr = append(kr, tgbotapi.NewInlineKeyboardButtonURL(label, btn.URL))
			case btn.Data != "":
				kr = append(kr, tgbotapi.NewInlineKeyboardButtonData(label, btn.Data))
			default:
				kr = append(kr, tgbotapi.NewInlineKeyboardButtonData(label, label))
			}
		}
		kbRows = append(kbRows, kr)
	}
	if len(kbRows) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(kbRows...), true
}

// mapSendError turns Bot API failures into the port's retry signals.
func mapSendError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case apiErr.Code == http.StatusTooManyRequests || apiErr.RetryAfter > 0:
		after := time.Duration(apiErr.RetryAfter) * time.Second
		if after <= 0 {
			after = time.Second
		}
		return &adapter.RetryAfterError{After: after}
	case apiErr.Code == http.StatusForbidden:
		return fmt.Errorf("%w: %s", adapter.ErrChatUnavailable, apiErr.Message)
	case apiErr.Code == http.StatusBadRequest && strings.Contains(strings.ToLower(apiErr.Message), "chat not found"):
		return fmt.Errorf("%w: %s", adapter.ErrChatUnavailable, apiErr.Message)
	}
	return err
}
