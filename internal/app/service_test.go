package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/talentsync/internal/adapters/lock"
	"github.com/okian/talentsync/internal/adapters/mq/queue"
	"github.com/okian/talentsync/internal/adapters/repository"
	service "github.com/okian/talentsync/internal/app"
	"github.com/okian/talentsync/internal/domain/authz"
	"github.com/okian/talentsync/internal/domain/dircache"
	"github.com/okian/talentsync/internal/domain/model"
	"github.com/okian/talentsync/internal/domain/reconcile"
	"github.com/okian/talentsync/internal/domain/types"
	"github.com/okian/talentsync/internal/testsupport"
	"github.com/okian/talentsync/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type recordingArchiver struct {
	mu        sync.Mutex
	summaries []types.Summary
	err       error
}

func (a *recordingArchiver) Archive(_ context.Context, s types.Summary) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	a.summaries = append(a.summaries, s)
	return "reports/latest.json", nil
}

func (a *recordingArchiver) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.summaries)
}

func newService(store repository.Store, opts ...service.Option) *service.Service {
	base := []service.Option{
		service.WithAuthenticator(testsupport.Authenticator()),
		service.WithLogger(logger.Nop()),
	}
	return service.New(store, append(base, opts...)...)
}

func directorySize(store repository.Store) int {
	apps, _ := store.ListApplications(context.Background(), model.ApplicationFilter{})
	return len(apps)
}

func pendingCount(store repository.Store) int {
	pending, _ := store.ListPendingSubmissions(context.Background())
	return len(pending)
}

func TestRunTalentSync_Authorization(t *testing.T) {
	Convey("Given pending submissions and the standard roles", t, func() {
		ctx := context.Background()
		store := testsupport.NewFaultyStore(testsupport.NewMemoryStore())
		testsupport.GrantStandardRoles(t, store)
		testsupport.MustInsertSubmission(t, store, testsupport.Submission(1, "a@example.com"))
		testsupport.MustInsertSubmission(t, store, testsupport.Submission(2, "b@example.com"))
		svc := newService(store)

		Convey("When the token is not recognised", func() {
			_, err := svc.RunTalentSync(ctx, "forged")

			Convey("Then the call is unauthorized and nothing changes", func() {
				So(errors.Is(err, authz.ErrUnauthorized), ShouldBeTrue)
				So(pendingCount(store), ShouldEqual, 2)
				So(directorySize(store), ShouldEqual, 0)
			})
		})

		Convey("When the token is empty", func() {
			_, err := svc.RunTalentSync(ctx, "")
			So(errors.Is(err, authz.ErrUnauthorized), ShouldBeTrue)
		})

		Convey("When the caller is a viewer", func() {
			_, err := svc.RunTalentSync(ctx, testsupport.TokenViewer)

			Convey("Then permission is denied and nothing changes", func() {
				So(errors.Is(err, authz.ErrPermissionDenied), ShouldBeTrue)
				So(pendingCount(store), ShouldEqual, 2)
				So(directorySize(store), ShouldEqual, 0)
			})
		})

		Convey("When the caller has no role at all", func() {
			_, err := svc.RunTalentSync(ctx, testsupport.TokenNobody)
			So(errors.Is(err, authz.ErrPermissionDenied), ShouldBeTrue)
		})

		Convey("When the role lookup fails", func() {
			store.FailRoles = true
			_, err := svc.RunTalentSync(ctx, testsupport.TokenAdmin)

			Convey("Then the permission check failure is surfaced", func() {
				So(errors.Is(err, authz.ErrPermissionCheckFailed), ShouldBeTrue)
				So(errors.Is(err, authz.ErrPermissionDenied), ShouldBeFalse)
				So(pendingCount(store), ShouldEqual, 2)
			})
		})

		Convey("When an editor runs the sync", func() {
			summary, err := svc.RunTalentSync(ctx, testsupport.TokenEditor)

			Convey("Then every submission is synced", func() {
				So(err, ShouldBeNil)
				So(summary.Processed, ShouldEqual, 2)
				So(summary.Counts()[types.StatusSynced], ShouldEqual, 2)
				So(pendingCount(store), ShouldEqual, 0)
				So(directorySize(store), ShouldEqual, 2)
			})
		})

		Convey("When the caller goes away during the first item", func() {
			reqCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			store.AfterInsert = func(model.TalentApplication) { cancel() }

			summary, err := svc.RunTalentSync(reqCtx, testsupport.TokenEditor)

			Convey("Then the run still completes every submission", func() {
				So(err, ShouldBeNil)
				So(summary.Processed, ShouldEqual, 2)
				So(summary.Counts()[types.StatusSynced], ShouldEqual, 2)
				So(summary.NeedsAttention(), ShouldBeEmpty)
				So(pendingCount(store), ShouldEqual, 0)
				So(directorySize(store), ShouldEqual, 2)
			})
		})

		Convey("When an admin runs the sync twice", func() {
			_, err := svc.RunTalentSync(ctx, testsupport.TokenAdmin)
			So(err, ShouldBeNil)
			again, err := svc.RunTalentSync(ctx, testsupport.TokenAdmin)

			Convey("Then the second run is a no-op", func() {
				So(err, ShouldBeNil)
				So(again.Processed, ShouldEqual, 0)
				So(directorySize(store), ShouldEqual, 2)
				So(svc.GetStats()["runs"], ShouldEqual, 2)
			})
		})
	})
}

func TestRunTalentSync_Lock(t *testing.T) {
	Convey("Given a run lock already held by another run", t, func() {
		ctx := context.Background()
		store := testsupport.NewMemoryStore()
		testsupport.GrantStandardRoles(t, store)
		testsupport.MustInsertSubmission(t, store, testsupport.Submission(1, "a@example.com"))
		locker := lock.NewMemory()
		unlock, err := locker.TryLock(ctx, "custom-key")
		So(err, ShouldBeNil)

		svc := newService(store, service.WithLocker(locker), service.WithLockKey("custom-key"))

		Convey("When a sync is requested", func() {
			_, err := svc.RunTalentSync(ctx, testsupport.TokenAdmin)

			Convey("Then it is rejected as in progress", func() {
				So(errors.Is(err, reconcile.ErrSyncInProgress), ShouldBeTrue)
				So(pendingCount(store), ShouldEqual, 1)
			})
		})

		Convey("When the scheduler fires", func() {
			err := svc.RunScheduled(ctx)

			Convey("Then it skips quietly", func() {
				So(err, ShouldBeNil)
				So(pendingCount(store), ShouldEqual, 1)
			})
		})

		Convey("When the other run releases the lock", func() {
			So(unlock(ctx), ShouldBeNil)
			summary, err := svc.RunTalentSync(ctx, testsupport.TokenAdmin)

			Convey("Then the sync proceeds", func() {
				So(err, ShouldBeNil)
				So(summary.Processed, ShouldEqual, 1)
			})
		})
	})

	Convey("Given a service after a finished run", t, func() {
		ctx := context.Background()
		store := testsupport.NewMemoryStore()
		testsupport.GrantStandardRoles(t, store)
		locker := lock.NewMemory()
		svc := newService(store, service.WithLocker(locker))
		_, err := svc.RunTalentSync(ctx, testsupport.TokenAdmin)
		So(err, ShouldBeNil)

		Convey("Then the lock has been released", func() {
			unlock, err := locker.TryLock(ctx, "talentsync:sync")
			So(err, ShouldBeNil)
			So(unlock(ctx), ShouldBeNil)
		})
	})
}

func TestRunTalentSync_Archive(t *testing.T) {
	Convey("Given a service with an archiver", t, func() {
		ctx := context.Background()
		store := testsupport.NewMemoryStore()
		testsupport.GrantStandardRoles(t, store)
		testsupport.MustInsertSubmission(t, store, testsupport.Submission(1, "a@example.com"))
		arch := &recordingArchiver{}
		svc := newService(store, service.WithArchiver(arch))

		Convey("When a run finishes", func() {
			summary, err := svc.RunTalentSync(ctx, testsupport.TokenAdmin)

			Convey("Then its summary is archived", func() {
				So(err, ShouldBeNil)
				So(arch.count(), ShouldEqual, 1)
				So(arch.summaries[0].Processed, ShouldEqual, summary.Processed)
				So(svc.GetStats()["lastArchiveKey"], ShouldEqual, "reports/latest.json")
			})
		})

		Convey("When archiving fails", func() {
			arch.err = errors.New("bucket gone")
			summary, err := svc.RunTalentSync(ctx, testsupport.TokenAdmin)

			Convey("Then the run still succeeds", func() {
				So(err, ShouldBeNil)
				So(summary.Counts()[types.StatusSynced], ShouldEqual, 1)
			})
		})
	})
}

func TestRunScheduled(t *testing.T) {
	Convey("Given a service whose principal has the default admin role", t, func() {
		ctx := context.Background()
		store := testsupport.NewMemoryStore()
		testsupport.MustInsertSubmission(t, store, testsupport.Submission(1, "a@example.com"))
		svc := newService(store)

		Convey("When the scheduler runs", func() {
			err := svc.RunScheduled(ctx)

			Convey("Then submissions are synced without a token", func() {
				So(err, ShouldBeNil)
				So(pendingCount(store), ShouldEqual, 0)
			})
		})
	})

	Convey("Given a service principal limited to viewer", t, func() {
		store := testsupport.NewMemoryStore()
		testsupport.MustInsertSubmission(t, store, testsupport.Submission(1, "a@example.com"))
		svc := newService(store, service.WithServiceRoles("viewer"))

		Convey("Then the policy still applies", func() {
			err := svc.RunScheduled(context.Background())
			So(errors.Is(err, authz.ErrPermissionDenied), ShouldBeTrue)
			So(pendingCount(store), ShouldEqual, 1)
		})
	})

	Convey("Given a started service with a short interval", t, func() {
		ctx := context.Background()
		store := testsupport.NewMemoryStore()
		testsupport.MustInsertSubmission(t, store, testsupport.Submission(1, "a@example.com"))
		svc := newService(store, service.WithSyncInterval(10*time.Millisecond))
		So(svc.Start(ctx), ShouldBeNil)

		Convey("Then pending submissions drain on their own", func() {
			deadline := time.Now().Add(3 * time.Second)
			for pendingCount(store) > 0 && time.Now().Before(deadline) {
				time.Sleep(10 * time.Millisecond)
			}
			So(pendingCount(store), ShouldEqual, 0)
			So(svc.Stop(ctx), ShouldBeNil)
		})
	})
}

func TestDirectoryReads(t *testing.T) {
	Convey("Given a started service with a wired change queue", t, func() {
		ctx := context.Background()
		changes := queue.NewInMemoryQueue(queue.WithCapacity(64))
		// Fixture writes stay off the feed so they cannot race the reads.
		var wired atomic.Bool
		store := testsupport.NewMemoryStore(repository.WithNotifier(func(e model.ChangeEvent) {
			if wired.Load() {
				changes.Publish(e)
			}
		}))
		testsupport.GrantStandardRoles(t, store)
		app := testsupport.MustInsertApplication(t, store, "known@example.com")
		wired.Store(true)
		svc := newService(store, service.WithChangeQueue(changes), service.WithCacheSize(8))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(ctx) })

		cacheStats := func() dircache.Stats {
			return svc.GetStats()["cache"].(dircache.Stats)
		}

		Convey("When a viewer reads the same entry twice", func() {
			first, err := svc.GetApplication(ctx, testsupport.TokenViewer, app.ID)
			So(err, ShouldBeNil)
			second, err := svc.GetApplication(ctx, testsupport.TokenViewer, app.ID)
			So(err, ShouldBeNil)

			Convey("Then the second read is served from cache", func() {
				So(second.Email, ShouldEqual, first.Email)
				So(cacheStats().Hits, ShouldEqual, 1)
				So(cacheStats().Entries, ShouldEqual, 1)
			})

			Convey("Then a change event for it evicts the entry", func() {
				changes.Publish(model.ChangeEvent{Table: model.TableApplications, Op: model.OpUpdate, RecordID: app.ID})
				deadline := time.Now().Add(2 * time.Second)
				for cacheStats().Entries > 0 && time.Now().Before(deadline) {
					time.Sleep(5 * time.Millisecond)
				}
				So(cacheStats().Entries, ShouldEqual, 0)
			})
		})

		Convey("When an unknown id is read", func() {
			_, err := svc.GetApplication(ctx, testsupport.TokenAdmin, "missing")
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})

		Convey("When a caller without a role lists the directory", func() {
			_, err := svc.ListApplications(ctx, testsupport.TokenNobody, model.ApplicationFilter{})
			So(errors.Is(err, authz.ErrPermissionDenied), ShouldBeTrue)
		})

		Convey("When the directory is listed with a bad status", func() {
			_, err := svc.ListApplications(ctx, testsupport.TokenViewer, model.ApplicationFilter{Status: "archived"})
			So(errors.Is(err, service.ErrInvalidFilter), ShouldBeTrue)
		})

		Convey("When the directory is listed", func() {
			apps, err := svc.ListApplications(ctx, testsupport.TokenViewer, model.ApplicationFilter{Status: model.ApplicationPending})
			So(err, ShouldBeNil)
			So(len(apps), ShouldEqual, 1)
			So(apps[0].ID, ShouldEqual, app.ID)
		})
	})
}

func TestServiceLifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		ctx := context.Background()
		store := testsupport.NewMemoryStore()
		svc := newService(store)

		Convey("When started twice and stopped", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.GetStats()["started"], ShouldBeTrue)
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then it reports stopped and the store is closed", func() {
				So(svc.GetStats()["started"], ShouldBeFalse)
				_, _, err := store.FindApplicationByEmail(ctx, "x@example.com")
				So(errors.Is(err, repository.ErrClosed), ShouldBeTrue)
			})
		})
	})
}
