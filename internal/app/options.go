package service

import (
	"time"

	"github.com/okian/talentsync/internal/adapters/archive"
	"github.com/okian/talentsync/internal/adapters/lock"
	"github.com/okian/talentsync/internal/adapters/mq/queue"
	"github.com/okian/talentsync/internal/domain/authz"
	"github.com/okian/talentsync/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithAuthenticator sets how bearer tokens are verified.
func WithAuthenticator(a authz.Authenticator) Option {
	return func(s *Service) {
		if a != nil {
			s.authn = a
		}
	}
}

// WithLocker sets the run lock backend.
func WithLocker(l lock.Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithLockKey sets the key every replica contends on.
func WithLockKey(key string) Option {
	return func(s *Service) {
		if key != "" {
			s.lockKey = key
		}
	}
}

// WithArchiver sets where run summaries are stored.
func WithArchiver(a archive.Archiver) Option {
	return func(s *Service) {
		if a != nil {
			s.archiver = a
		}
	}
}

// WithStatusRetries sets the reconciler status update retries.
func WithStatusRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.statusRetries = n
		}
	}
}

// WithSyncInterval enables scheduled runs when d > 0.
func WithSyncInterval(d time.Duration) Option {
	return func(s *Service) {
		s.syncInterval = d
	}
}

// WithServiceRoles sets the roles of the scheduler principal.
func WithServiceRoles(roles ...string) Option {
	return func(s *Service) {
		s.serviceRoles = s.serviceRoles[:0]
		for _, r := range roles {
			s.serviceRoles = append(s.serviceRoles, authz.Role(r))
		}
	}
}

// WithCacheSize bounds the directory cache.
func WithCacheSize(n int) Option {
	return func(s *Service) {
		s.cacheSize = n
	}
}

// WithChangeQueue sets the queue that carries store change events. Pass
// the same queue's Publish to the store as its notifier.
func WithChangeQueue(q *queue.InMemoryQueue) Option {
	return func(s *Service) {
		if q != nil {
			s.changes = q
		}
	}
}

// WithChangeQueueSize sizes the default change queue.
func WithChangeQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.changeQueueSize = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source of the reconciler.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
