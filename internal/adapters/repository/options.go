package repository

import (
	"time"

	"github.com/okian/talentsync/internal/domain/model"
	"github.com/okian/talentsync/pkg/logger"
)

// Option applies a configuration option to a store backend.
type Option func(*options)

type options struct {
	notify   func(model.ChangeEvent)
	maxConns int32
	now      func() time.Time
	log      logger.Logger
}

func newOptions(opts []Option) options {
	o := options{
		notify:   func(model.ChangeEvent) {},
		maxConns: 10,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Get().Named("repository")
	}
	return o
}

// WithNotifier receives a ChangeEvent after each committed write. Backends
// with a database change feed deliver events through Listen instead.
func WithNotifier(fn func(model.ChangeEvent)) Option {
	return func(o *options) {
		if fn != nil {
			o.notify = fn
		}
	}
}

// WithMaxConns caps the connection pool of network backends.
func WithMaxConns(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConns = int32(n)
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}
