package reconcile

import (
	"time"

	"github.com/okian/talentsync/internal/domain/model"
	"github.com/okian/talentsync/pkg/logger"
)

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithStatusRetries sets how many extra attempts the post-insert status
// update gets before the item is reported as partial_success.
func WithStatusRetries(n int) Option {
	return func(r *Reconciler) {
		if n >= 0 {
			r.statusRetries = n
		}
	}
}

// WithRetryDelay sets the pause between status update attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(r *Reconciler) {
		if d >= 0 {
			r.retryDelay = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the reconciler logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.log = l
		}
	}
}

// WithOnCreated registers a hook called after each directory insert.
func WithOnCreated(fn func(model.TalentApplication)) Option {
	return func(r *Reconciler) {
		r.onCreated = fn
	}
}
