package sched

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	red "telegram-x-monitor/internal/infra/redis"
)

const statusReportLockKey = "lock:status_report"

// Reporter renders the monitoring summary; *application.BotFacade implements it.
type Reporter interface {
	MonitorReport() string
}

type SuperAdminLister interface {
	SuperAdminChatIDs(ctx context.Context) ([]int64, error)
}

type Notifier interface {
	Notify(ctx context.Context, destinations []int64, text string)
}

type Translator interface {
	T(key string, args ...interface{}) string
}

// StatusReporter sends the monitoring summary to super admins on a schedule.
type StatusReporter struct {
	report   Reporter
	admins   SuperAdminLister
	notifier Notifier
	tr       Translator
	locker   red.Locker
	lockTTL  time.Duration
	log      *zerolog.Logger
}

// NewStatusReporter builds the job. locker may be nil for single-instance deployments.
func NewStatusReporter(report Reporter, admins SuperAdminLister, notifier Notifier, tr Translator, locker red.Locker, logger *zerolog.Logger) *StatusReporter {
	l := logger.With().Str("component", "StatusReporter").Logger()
	return &StatusReporter{
		report:   report,
		admins:   admins,
		notifier: notifier,
		tr:       tr,
		locker:   locker,
		lockTTL:  time.Minute,
		log:      &l,
	}
}

// Run sends one report. With a locker, only the replica that wins the lock sends.
func (r *StatusReporter) Run(ctx context.Context) error {
	if r.locker != nil {
		// The lock is left to expire so replicas firing a little late still skip this slot.
		_, err := r.locker.TryLock(ctx, statusReportLockKey, r.lockTTL)
		if errors.Is(err, red.ErrLockHeld) {
			r.log.Debug().Msg("status report owned by another instance")
			return nil
		}
		if err != nil {
			return fmt.Errorf("status report lock: %w", err)
		}
	}

	ids, err := r.admins.SuperAdminChatIDs(ctx)
	if err != nil {
		return fmt.Errorf("load super admins: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	r.notifier.Notify(ctx, ids, r.tr.T("status_report_header")+"\n\n"+r.report.MonitorReport())
	r.log.Info().Int("recipients", len(ids)).Msg("status report sent")
	return nil
}
