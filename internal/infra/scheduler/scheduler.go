package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"telegram-x-monitor/internal/infra/metrics"
)

// Job is one scheduled run; the context carries the run timeout.
type Job func(ctx context.Context) error

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSpec checks a five-field cron expression or a descriptor such as "@hourly".
func ValidateSpec(spec string) error {
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return nil
}

// Scheduler runs named jobs on cron specs. A job still running when its next slot
// arrives is skipped rather than stacked.
type Scheduler struct {
	cron       *cron.Cron
	jobTimeout time.Duration
	log        *zerolog.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(loc *time.Location, jobTimeout time.Duration, logger *zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if jobTimeout <= 0 {
		jobTimeout = time.Minute
	}
	l := logger.With().Str("component", "scheduler").Logger()
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithParser(parser),
			cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		jobTimeout: jobTimeout,
		log:        &l,
	}
}

// Add registers job under spec.
func (s *Scheduler) Add(name, spec string, job Job) error {
	if err := ValidateSpec(spec); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(spec, s.wrap(name, job)); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.log.Info().Str("job", name).Str("spec", spec).Msg("job scheduled")
	return nil
}

// Every registers job at a fixed interval.
func (s *Scheduler) Every(name string, interval time.Duration, job Job) {
	s.cron.Schedule(cron.Every(interval), cron.FuncJob(s.wrap(name, job)))
	s.log.Info().Str("job", name).Dur("interval", interval).Msg("job scheduled")
}

func (s *Scheduler) wrap(name string, job Job) func() {
	return func() {
		s.mu.Lock()
		parent := s.ctx
		s.mu.Unlock()
		if parent == nil || parent.Err() != nil {
			return
		}
		ctx, cancel := context.WithTimeout(parent, s.jobTimeout)
		defer cancel()

		start := time.Now()
		if err := job(ctx); err != nil {
			metrics.IncJob(name, "failed")
			s.log.Error().Err(err).Str("job", name).Dur("took", time.Since(start)).Msg("scheduled job failed")
			return
		}
		metrics.IncJob(name, "completed")
		s.log.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("scheduled job done")
	}
}

// Start begins firing jobs until Stop or until parent is cancelled. Calling it twice has no effect.
func (s *Scheduler) Start(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(parent)
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-s.cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}
