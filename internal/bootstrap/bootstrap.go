// Package bootstrap turns a loaded Config into the concrete adapters the
// service runs on. Both the server binary and talentctl build through it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/talentsync/internal/adapters/archive"
	"github.com/okian/talentsync/internal/adapters/lock"
	"github.com/okian/talentsync/internal/adapters/mq/queue"
	"github.com/okian/talentsync/internal/adapters/repository"
	service "github.com/okian/talentsync/internal/app"
	"github.com/okian/talentsync/internal/config"
	"github.com/okian/talentsync/internal/domain/authz"
	"github.com/okian/talentsync/pkg/logger"
)

// Components holds every adapter built from a Config.
type Components struct {
	Store         repository.Store
	Changes       *queue.InMemoryQueue
	Locker        lock.Locker
	Archiver      archive.Archiver
	Authenticator authz.Authenticator

	cfg     *config.Config
	log     logger.Logger
	closers []func() error
}

// Build opens the store and constructs the lock, archiver and
// authenticator. On error everything already opened is closed again.
func Build(ctx context.Context, cfg *config.Config, log logger.Logger) (*Components, error) {
	if log == nil {
		log = logger.Get().Named("bootstrap")
	}
	c := &Components{
		cfg:     cfg,
		log:     log,
		Changes: queue.NewInMemoryQueue(queue.WithCapacity(cfg.ChangeQueueSize)),
	}

	store, err := OpenStore(ctx, cfg, repository.WithNotifier(c.Changes.Publish), repository.WithLogger(log.Named("store")))
	if err != nil {
		return nil, err
	}
	c.Store = store

	locker, closeLocker, err := NewLocker(ctx, cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	c.Locker = locker
	if closeLocker != nil {
		c.closers = append(c.closers, closeLocker)
	}

	archiver, err := NewArchiver(cfg)
	if err != nil {
		_ = c.Close()
		_ = store.Close()
		return nil, err
	}
	c.Archiver = archiver
	c.Authenticator = NewAuthenticator(cfg)

	log.Info(ctx, "components ready",
		logger.String("store", cfg.Store.Driver),
		logger.String("lock", cfg.Sync.LockDriver),
		logger.Bool("archive", cfg.Archive.Bucket != ""))
	return c, nil
}

// ServiceOptions returns the service options derived from the config and
// the built adapters. The store itself is passed to service.New.
func (c *Components) ServiceOptions() []service.Option {
	opts := []service.Option{
		service.WithLogger(c.log.Named("service")),
		service.WithAuthenticator(c.Authenticator),
		service.WithLocker(c.Locker),
		service.WithLockKey(c.cfg.Sync.LockKey),
		service.WithArchiver(c.Archiver),
		service.WithStatusRetries(c.cfg.Sync.StatusRetries),
		service.WithSyncInterval(c.cfg.Sync.Interval),
		service.WithCacheSize(c.cfg.CacheSize),
		service.WithChangeQueue(c.Changes),
	}
	if len(c.cfg.Sync.ServiceRoles) > 0 {
		opts = append(opts, service.WithServiceRoles(c.cfg.Sync.ServiceRoles...))
	}
	return opts
}

// Close releases adapters the service does not own. The store is closed by
// Service.Stop.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	c.closers = nil
	return errors.Join(errs...)
}

// OpenStore opens the configured backend and applies migrations when
// store.auto_migrate is set.
func OpenStore(ctx context.Context, cfg *config.Config, opts ...repository.Option) (repository.Store, error) {
	if cfg.Store.MaxConns > 0 {
		opts = append(opts, repository.WithMaxConns(cfg.Store.MaxConns))
	}
	store, err := repository.Open(ctx, cfg.Store.Driver, cfg.Store.DSN, opts...)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	if cfg.Store.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("migrate %s store: %w", cfg.Store.Driver, err)
		}
	}
	return store, nil
}

// NewLocker builds the run lock. The returned close func is nil when the
// lock holds no external resources.
func NewLocker(ctx context.Context, cfg *config.Config) (lock.Locker, func() error, error) {
	switch cfg.Sync.LockDriver {
	case config.LockMemory, "":
		return lock.NewMemory(), nil, nil
	case config.LockFile:
		l, err := lock.NewFile(cfg.Sync.LockPath)
		if err != nil {
			return nil, nil, fmt.Errorf("file lock: %w", err)
		}
		return l, nil, nil
	case config.LockRedis:
		l, err := lock.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Sync.LockTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("redis lock: %w", err)
		}
		return l, l.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown sync.lock_driver %q", config.ErrInvalidConfig, cfg.Sync.LockDriver)
	}
}

// NewArchiver returns the S3 archiver when a bucket is configured and the
// no-op archiver otherwise.
func NewArchiver(cfg *config.Config) (archive.Archiver, error) {
	if cfg.Archive.Bucket == "" {
		return archive.Noop{}, nil
	}
	a, err := archive.NewS3Archiver(archive.S3Config{
		Bucket:    cfg.Archive.Bucket,
		Prefix:    cfg.Archive.Prefix,
		Region:    cfg.Archive.Region,
		Endpoint:  cfg.Archive.Endpoint,
		AccessKey: cfg.Archive.AccessKey,
		SecretKey: cfg.Archive.SecretKey,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 archiver: %w", err)
	}
	return a, nil
}

// NewAuthenticator returns the HS256 JWT verifier for the auth section.
func NewAuthenticator(cfg *config.Config) *authz.JWTAuthenticator {
	opts := []authz.JWTOption{authz.WithLeeway(cfg.Auth.Leeway)}
	if cfg.Auth.Issuer != "" {
		opts = append(opts, authz.WithIssuer(cfg.Auth.Issuer))
	}
	if cfg.Auth.Audience != "" {
		opts = append(opts, authz.WithAudience(cfg.Auth.Audience))
	}
	return authz.NewJWTAuthenticator(cfg.Auth.JWTSecret, opts...)
}
