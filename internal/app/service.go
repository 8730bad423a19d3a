// Package service wires the authorization gate, the run lock and the
// reconciler into the operations exposed over HTTP and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/talentsync/internal/adapters/archive"
	"github.com/okian/talentsync/internal/adapters/lock"
	"github.com/okian/talentsync/internal/adapters/mq/queue"
	"github.com/okian/talentsync/internal/adapters/mq/worker"
	"github.com/okian/talentsync/internal/adapters/repository"
	"github.com/okian/talentsync/internal/domain/authz"
	"github.com/okian/talentsync/internal/domain/dircache"
	"github.com/okian/talentsync/internal/domain/model"
	"github.com/okian/talentsync/internal/domain/reconcile"
	"github.com/okian/talentsync/internal/domain/types"
	"github.com/okian/talentsync/pkg/logger"
	"github.com/okian/talentsync/pkg/metrics"
)

const (
	defaultLockKey         = "talentsync:sync"
	defaultCacheSize       = 10_000
	defaultChangeQueueSize = 1_024
	schedulerPrincipal     = "scheduler"
	unlockTimeout          = 5 * time.Second
)

// Service implements the API dependencies for the talent sync system.
type Service struct {
	mu sync.RWMutex

	store      repository.Store
	authn      authz.Authenticator
	gate       *authz.Gate
	locker     lock.Locker
	archiver   archive.Archiver
	reconciler *reconcile.Reconciler
	cache      *dircache.Cache
	changes    *queue.InMemoryQueue
	consumers  *worker.Pool
	scheduler  *worker.Scheduler

	// Configuration
	lockKey         string
	statusRetries   int
	syncInterval    time.Duration
	serviceRoles    []authz.Role
	cacheSize       int
	changeQueueSize int
	now             func() time.Time

	// State
	runCtx         context.Context
	cancelRuns     context.CancelFunc
	started        bool
	stopListen     context.CancelFunc
	listenDone     chan struct{}
	lastSummary    *types.Summary
	lastRunAt      time.Time
	runs           int
	seenDropped    uint64
	lastArchiveKey string

	logger logger.Logger
}

// New constructs a Service over store. The Service owns the store and
// closes it on Stop.
func New(store repository.Store, opts ...Option) *Service {
	s := &Service{
		store:           store,
		locker:          lock.NewMemory(),
		archiver:        archive.Noop{},
		lockKey:         defaultLockKey,
		statusRetries:   2,
		serviceRoles:    []authz.Role{authz.RoleAdmin},
		cacheSize:       defaultCacheSize,
		changeQueueSize: defaultChangeQueueSize,
		now:             time.Now,
		logger:          logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.runCtx, s.cancelRuns = context.WithCancel(context.Background())

	if s.authn == nil {
		// An empty secret rejects every token.
		s.authn = authz.NewJWTAuthenticator("")
	}
	if s.changes == nil {
		s.changes = queue.NewInMemoryQueue(queue.WithCapacity(s.changeQueueSize))
	}

	policy := authz.NewRolePolicy(store, authz.WithServiceRoles(s.serviceRoles...))
	s.gate = authz.NewGate(s.authn, policy, authz.WithLogger(s.logger.Named("authz")))
	s.cache = dircache.New(store.GetApplication, dircache.WithMaxSize(s.cacheSize))
	s.reconciler = reconcile.New(store, store, store,
		reconcile.WithStatusRetries(s.statusRetries),
		reconcile.WithClock(s.now),
		reconcile.WithLogger(s.logger.Named("reconcile")),
		reconcile.WithOnCreated(func(app model.TalentApplication) {
			s.cache.Invalidate(app.ID)
		}),
	)
	s.consumers = worker.NewPool(1, s.changes, worker.HandlerFunc(s.handleChange),
		worker.WithLogger(s.logger.Named("changes")))
	s.scheduler = worker.NewScheduler(s.syncInterval, s.RunScheduled,
		worker.WithSchedulerLogger(s.logger.Named("scheduler")))
	return s
}

// Start launches the change consumer, the database listener when the store
// has one, and the scheduler.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting talent sync service...")

	s.consumers.Start(ctx)

	if listener, ok := s.store.(repository.ChangeListener); ok {
		lctx, cancel := context.WithCancel(ctx)
		s.stopListen = cancel
		s.listenDone = make(chan struct{})
		go func() {
			defer close(s.listenDone)
			if err := listener.Listen(lctx, s.changes.Publish); err != nil {
				s.logger.Error(lctx, "change listener stopped", logger.Error(err))
			}
		}()
	}

	if err := s.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	s.started = true
	s.logger.Info(ctx, "talent sync service started",
		logger.Int("cacheSize", s.cacheSize),
		logger.Duration("syncInterval", s.syncInterval),
		logger.String("lockKey", s.lockKey),
	)
	return nil
}

// Stop gracefully shuts down background work and closes the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.started = false
	stopListen, listenDone := s.stopListen, s.listenDone
	s.stopListen, s.listenDone = nil, nil
	s.mu.Unlock()

	// Runs in flight stop after their current item.
	s.cancelRuns()
	if !started {
		return s.store.Close()
	}
	s.logger.Info(ctx, "stopping talent sync service...")

	// The scheduler may be inside a run that needs s.mu, so nothing below
	// holds it.
	var errs []error
	if err := s.scheduler.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if stopListen != nil {
		stopListen()
		select {
		case <-listenDone:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("change listener: %w", ctx.Err()))
		}
	}
	if err := s.consumers.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	s.logger.Info(ctx, "talent sync service stopped")
	return errors.Join(errs...)
}

// RunTalentSync authorizes the bearer token for talent.sync and runs one
// reconciliation. Authorization failures are returned unchanged so the
// caller can map authz sentinels; a concurrent run yields
// reconcile.ErrSyncInProgress.
func (s *Service) RunTalentSync(ctx context.Context, token string) (types.Summary, error) {
	p, err := s.gate.Authorize(ctx, token, authz.ActionTalentSync)
	if err != nil {
		return types.Summary{}, err
	}
	return s.run(ctx, p)
}

// RunScheduled runs one reconciliation as the service principal. A run
// already in progress elsewhere is not an error here.
func (s *Service) RunScheduled(ctx context.Context) error {
	p := authz.ServicePrincipal(schedulerPrincipal)
	if err := s.gate.Check(ctx, p, authz.ActionTalentSync); err != nil {
		return err
	}
	_, err := s.run(ctx, p)
	if errors.Is(err, reconcile.ErrSyncInProgress) {
		s.logger.Debug(ctx, "scheduled run skipped, another run holds the lock")
		return nil
	}
	return err
}

func (s *Service) run(ctx context.Context, p authz.Principal) (types.Summary, error) {
	// A run outlives its caller: a dropped request must not interrupt it.
	// Only Stop cancels, and the reconciler honours that between items.
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	defer context.AfterFunc(s.runCtx, cancel)()

	unlock, err := s.locker.TryLock(ctx, s.lockKey)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			metrics.RecordLockContention()
			metrics.RecordSyncRun("locked")
			return types.Summary{}, fmt.Errorf("%w: %w", reconcile.ErrSyncInProgress, err)
		}
		metrics.RecordSyncRun("failed")
		return types.Summary{}, fmt.Errorf("acquire run lock: %w", err)
	}
	defer func() {
		uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unlockTimeout)
		defer cancel()
		if err := unlock(uctx); err != nil {
			s.logger.Warn(ctx, "releasing run lock failed", logger.Error(err))
		}
	}()

	s.logger.Info(ctx, "talent sync started", logger.String("principal", p.UserID))
	start := time.Now()
	summary, err := s.reconciler.Run(ctx)
	metrics.RecordSyncRunDuration(float64(time.Since(start).Milliseconds()))
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		metrics.RecordSyncRun("failed")
		return types.Summary{}, err
	}

	metrics.UpdateSyncLastProcessed(summary.Processed)
	switch {
	case err != nil:
		metrics.RecordSyncRun("cancelled")
	case len(summary.NeedsAttention()) > 0:
		metrics.RecordSyncRun("partial")
	default:
		metrics.RecordSyncRun("success")
		metrics.MarkSyncSuccess(summary.Timestamp.Unix())
	}

	key, aerr := s.archiver.Archive(context.WithoutCancel(ctx), summary)
	if aerr != nil {
		s.logger.Warn(ctx, "archiving run summary failed", logger.Error(aerr))
	}

	s.mu.Lock()
	s.lastSummary = &summary
	s.lastRunAt = summary.Timestamp
	s.runs++
	if key != "" {
		s.lastArchiveKey = key
	}
	s.mu.Unlock()

	return summary, err
}

// handleChange keeps the directory cache coherent with the store.
func (s *Service) handleChange(_ context.Context, e model.ChangeEvent) error {
	if dropped := s.changes.Dropped(); dropped != s.loadSeenDropped() {
		// Some events never reached us; nothing cached can be trusted.
		s.storeSeenDropped(dropped)
		s.cache.InvalidateAll()
		return nil
	}
	if e.Table != model.TableApplications {
		return nil
	}
	if e.RecordID == "" {
		s.cache.InvalidateAll()
		return nil
	}
	s.cache.Invalidate(e.RecordID)
	return nil
}

func (s *Service) loadSeenDropped() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seenDropped
}

func (s *Service) storeSeenDropped(n uint64) {
	s.mu.Lock()
	s.seenDropped = n
	s.mu.Unlock()
}

// ListApplications returns a page of the directory for a talent.read caller.
func (s *Service) ListApplications(ctx context.Context, token string, filter model.ApplicationFilter) ([]model.TalentApplication, error) {
	if _, err := s.gate.Authorize(ctx, token, authz.ActionTalentRead); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFilter, filter.Status)
	}
	return s.store.ListApplications(ctx, filter.Normalize())
}

// GetApplication returns one directory entry for a talent.read caller.
func (s *Service) GetApplication(ctx context.Context, token, id string) (model.TalentApplication, error) {
	if _, err := s.gate.Authorize(ctx, token, authz.ActionTalentRead); err != nil {
		return model.TalentApplication{}, err
	}
	return s.cache.Get(ctx, id)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":        s.started,
		"runs":           s.runs,
		"syncInterval":   s.syncInterval.String(),
		"cache":          s.cache.Stats(),
		"changeQueueLen": s.changes.Len(ctx),
		"changesDropped": s.changes.Dropped(),
		"scheduledRuns":  s.scheduler.Runs(),
		"goroutines":     runtime.NumGoroutine(),
		"lastArchiveKey": s.lastArchiveKey,
	}
	if s.lastSummary != nil {
		stats["lastRunAt"] = s.lastRunAt
		stats["lastProcessed"] = s.lastSummary.Processed
		stats["lastCounts"] = s.lastSummary.Counts()
	}
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	return stats
}
