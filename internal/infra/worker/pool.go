package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"telegram-x-monitor/internal/infra/metrics"
)

// ErrQueueFull is returned by Submit when every worker is busy and the queue is at capacity.
var ErrQueueFull = errors.New("worker queue full")

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("worker pool stopped")

type Task func(ctx context.Context) error

type job struct {
	name string
	run  Task
}

// Pool runs named tasks on a fixed set of goroutines. Submit never blocks.
type Pool struct {
	wg   sync.WaitGroup
	jobs chan job
	n    int
	log  *zerolog.Logger

	mu      sync.RWMutex
	stopped bool
}

func NewPool(workers, queue int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queue <= 0 {
		queue = workers * 4
	}
	l := logger.With().Str("component", "worker_pool").Logger()
	return &Pool{jobs: make(chan job, queue), n: workers, log: &l}
}

// Start launches the workers. Tasks get ctx; cancelling it aborts in-flight work.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for j := range p.jobs {
				p.run(ctx, id, j)
			}
		}(i)
	}
}

func (p *Pool) run(ctx context.Context, id int, j job) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.IncJob(j.name, "failed")
			p.log.Error().Interface("panic", rec).Int("worker", id).Str("job", j.name).Msg("task panicked")
		}
	}()
	if err := j.run(ctx); err != nil {
		metrics.IncJob(j.name, "failed")
		p.log.Error().Err(err).Int("worker", id).Str("job", j.name).Msg("task failed")
		return
	}
	metrics.IncJob(j.name, "completed")
}

// Stop rejects new tasks, lets queued ones finish and waits for the workers.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) Submit(name string, task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.jobs <- job{name: name, run: task}:
		return nil
	default:
		metrics.IncJob(name, "dropped")
		return ErrQueueFull
	}
}
