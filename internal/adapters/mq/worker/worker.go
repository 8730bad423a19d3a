// Package worker runs the background loops of the service: change-feed
// consumers and the periodic reconciliation scheduler.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/okian/talentsync/internal/adapters/mq/queue"
	"github.com/okian/talentsync/pkg/logger"
	"github.com/okian/talentsync/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Event is what workers read off the queue.
type Event = queue.Event

// Handler reacts to one change event.
type Handler interface {
	HandleChange(ctx context.Context, e Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, e Event) error

// HandleChange implements Handler.
func (f HandlerFunc) HandleChange(ctx context.Context, e Event) error { return f(ctx, e) }

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// InMemoryWorker drains a queue into a Handler.
type InMemoryWorker struct {
	queue   Queue
	handler Handler
	name    string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, h Handler, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		handler:  h,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run processes events until ctx is done, Shutdown is called or the
// queue is closed.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	events := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			metrics.RecordChangeEvent(event.Table, string(event.Op))
			if err := w.handler.HandleChange(ctx, event); err != nil {
				metrics.RecordErrorByComponent("worker", "handle_change")
				w.logger.Error(ctx, "error handling change event",
					logger.String("table", event.Table),
					logger.String("id", event.RecordID),
					logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker and waits for the current event to finish.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Pool manages several workers on one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a pool of workerCount workers (at least one).
func NewPool(workerCount int, q Queue, h Handler, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewInMemoryWorker(q, h, wopts...)
	}
	return p
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue when it can be closed and waits for every
// worker, giving up after ctx or the pool timeout expires.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var firstErr error
	for i, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
