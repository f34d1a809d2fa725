package usecase

import (
	"context"
	"errors"
	"time"

	"telegram-x-monitor/internal/domain/model"
	"telegram-x-monitor/internal/domain/ports/adapter"
	"telegram-x-monitor/internal/infra/metrics"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	defaultDeliveryConcurrency = 4
	defaultDeliveryTries       = 3
	defaultRetryInterval       = 500 * time.Millisecond
	maxRetryInterval           = 10 * time.Second
)

// Notifier sends plain notices to a set of chats.
type Notifier interface {
	Notify(ctx context.Context, destinations []int64, text string)
}

var _ Notifier = (*Dispatcher)(nil)

// Dispatcher formats posts and fans messages out to Telegram chats.
// It never returns delivery errors; a failing chat is logged and skipped.
type Dispatcher struct {
	bot         adapter.TelegramBotAdapter
	loc         *time.Location
	concurrency int
	maxTries    uint
	retryEvery  time.Duration
	now         func() time.Time
	log         *zerolog.Logger
}

type DispatcherOption func(*Dispatcher)

// WithDeliveryConcurrency bounds how many chats are sent to at once.
func WithDeliveryConcurrency(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithDeliveryRetry sets the attempts per chat and the first backoff interval.
func WithDeliveryRetry(tries uint, initial time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if tries > 0 {
			d.maxTries = tries
		}
		if initial > 0 {
			d.retryEvery = initial
		}
	}
}

func NewDispatcher(bot adapter.TelegramBotAdapter, loc *time.Location, logger *zerolog.Logger, opts ...DispatcherOption) *Dispatcher {
	if loc == nil {
		loc = time.UTC
	}
	l := logger.With().Str("component", "dispatcher").Logger()
	d := &Dispatcher{
		bot:         bot,
		loc:         loc,
		concurrency: defaultDeliveryConcurrency,
		maxTries:    defaultDeliveryTries,
		retryEvery:  defaultRetryInterval,
		now:         time.Now,
		log:         &l,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Deliver sends one formatted post to every destination.
func (d *Dispatcher) Deliver(ctx context.Context, destinations []int64, post model.Post) {
	d.fanOut(ctx, destinations, FormatPost(post, d.loc, d.now()), "post")
}

// DeliverAll takes posts newest first and delivers them oldest first, one post at a time.
func (d *Dispatcher) DeliverAll(ctx context.Context, destinations []int64, postsNewestFirst []model.Post) {
	for i := len(postsNewestFirst) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			return
		}
		d.Deliver(ctx, destinations, postsNewestFirst[i])
	}
}

// Notify sends a plain-text notice.
func (d *Dispatcher) Notify(ctx context.Context, destinations []int64, text string) {
	d.fanOut(ctx, destinations, adapter.SendMessageParams{Text: text}, "notice")
}

func (d *Dispatcher) fanOut(ctx context.Context, destinations []int64, params adapter.SendMessageParams, kind string) {
	if len(destinations) == 0 {
		return
	}
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for _, chatID := range destinations {
		p := params
		p.ChatID = chatID
		g.Go(func() error {
			if err := d.send(ctx, p); err != nil {
				metrics.IncDelivery(kind, "failed")
				d.log.Warn().Err(err).Int64("chat_id", p.ChatID).Str("kind", kind).Msg("delivery failed")
				return nil
			}
			metrics.IncDelivery(kind, "sent")
			return nil
		})
	}
	_ = g.Wait()
}

func (d *Dispatcher) send(ctx context.Context, p adapter.SendMessageParams) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.retryEvery
	b.MaxInterval = maxRetryInterval
	b.Multiplier = 2

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := d.bot.SendMessage(ctx, p)
		if err == nil {
			return struct{}{}, nil
		}
		if errors.Is(err, adapter.ErrChatUnavailable) {
			return struct{}{}, backoff.Permanent(err)
		}
		var ra *adapter.RetryAfterError
		if errors.As(err, &ra) {
			return struct{}{}, &backoff.RetryAfterError{Duration: ra.After}
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(d.maxTries))
	return err
}
