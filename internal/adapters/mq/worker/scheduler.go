package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/talentsync/pkg/logger"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler calls a Job every interval. Ticks that arrive while the job is
// still running are skipped.
type Scheduler struct {
	interval time.Duration
	job      Job
	logger   logger.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	runCount int
}

// NewScheduler creates a scheduler. It does nothing until Start.
func NewScheduler(interval time.Duration, job Job, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		interval: interval,
		job:      job,
		logger:   logger.Get().Named("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the loop. A non-positive interval disables the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("scheduler already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(runCtx, s.done)
	s.logger.Info(ctx, "scheduler started", logger.Duration("interval", s.interval))
	return nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	s.mu.Lock()
	s.runCount++
	n := s.runCount
	s.mu.Unlock()

	start := time.Now()
	if err := s.job(ctx); err != nil {
		s.logger.Warn(ctx, "scheduled run failed", logger.Int("run", n), logger.Error(err))
		return
	}
	s.logger.Debug(ctx, "scheduled run finished",
		logger.Int("run", n),
		logger.Duration("took", time.Since(start)))
}

// Runs returns how many ticks invoked the job.
func (s *Scheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runCount
}

// Shutdown stops the loop and waits for an in-flight job.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Warn(ctx, "scheduler shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}
