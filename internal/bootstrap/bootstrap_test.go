package bootstrap_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/talentsync/internal/adapters/archive"
	"github.com/okian/talentsync/internal/adapters/lock"
	"github.com/okian/talentsync/internal/adapters/repository"
	service "github.com/okian/talentsync/internal/app"
	"github.com/okian/talentsync/internal/bootstrap"
	"github.com/okian/talentsync/internal/config"
	"github.com/okian/talentsync/internal/testsupport"
	"github.com/okian/talentsync/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestBuild(t *testing.T) {
	Convey("Given the default config", t, func() {
		ctx := context.Background()
		cfg := config.New()

		Convey("When the components are built", func() {
			c, err := bootstrap.Build(ctx, cfg, logger.Nop())
			So(err, ShouldBeNil)
			defer func() { _ = c.Close() }()

			Convey("Then memory adapters are selected", func() {
				_, isMemStore := c.Store.(*repository.MemoryStore)
				_, isMemLock := c.Locker.(*lock.Memory)
				_, isNoop := c.Archiver.(archive.Noop)
				So(isMemStore, ShouldBeTrue)
				So(isMemLock, ShouldBeTrue)
				So(isNoop, ShouldBeTrue)
				So(c.Authenticator, ShouldNotBeNil)
			})

			Convey("Then store writes reach the change queue", func() {
				testsupport.MustInsertApplication(t, c.Store, "queued@example.com")
				So(c.Changes.Len(ctx), ShouldEqual, 1)
			})

			Convey("Then the service options run a sync end to end", func() {
				testsupport.MustInsertSubmission(t, c.Store, testsupport.Submission(1, "new@example.com"))
				svc := service.New(c.Store, c.ServiceOptions()...)
				So(svc.RunScheduled(ctx), ShouldBeNil)
				pending, err := c.Store.ListPendingSubmissions(ctx)
				So(err, ShouldBeNil)
				So(pending, ShouldBeEmpty)
			})
		})
	})
}

func TestOpenStore(t *testing.T) {
	Convey("Given a sqlite config", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.Store.Driver = config.DriverSQLite
		cfg.Store.DSN = filepath.Join(t.TempDir(), "talent.db")

		Convey("When the store is opened with auto migrate", func() {
			store, err := bootstrap.OpenStore(ctx, cfg)
			So(err, ShouldBeNil)
			defer func() { _ = store.Close() }()

			Convey("Then the schema is usable", func() {
				testsupport.MustInsertSubmission(t, store, testsupport.Submission(1, "a@example.com"))
				pending, err := store.ListPendingSubmissions(ctx)
				So(err, ShouldBeNil)
				So(len(pending), ShouldEqual, 1)
			})
		})

		Convey("When the driver is unknown", func() {
			cfg.Store.Driver = "mongo"
			_, err := bootstrap.OpenStore(ctx, cfg)
			So(errors.Is(err, repository.ErrUnknownDriver), ShouldBeTrue)
		})
	})
}

func TestNewLocker(t *testing.T) {
	Convey("Given lock driver settings", t, func() {
		ctx := context.Background()
		cfg := config.New()

		Convey("When the file lock is selected", func() {
			cfg.Sync.LockDriver = config.LockFile
			cfg.Sync.LockPath = t.TempDir()
			l, closeFn, err := bootstrap.NewLocker(ctx, cfg)

			Convey("Then a file locker is returned", func() {
				So(err, ShouldBeNil)
				So(closeFn, ShouldBeNil)
				_, ok := l.(*lock.File)
				So(ok, ShouldBeTrue)
			})
		})

		Convey("When redis is unreachable", func() {
			cfg.Sync.LockDriver = config.LockRedis
			cfg.Redis.Addr = "127.0.0.1:1"
			dialCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			_, _, err := bootstrap.NewLocker(dialCtx, cfg)
			So(err, ShouldNotBeNil)
		})

		Convey("When the driver is unknown", func() {
			cfg.Sync.LockDriver = "zookeeper"
			_, _, err := bootstrap.NewLocker(ctx, cfg)
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})
	})
}

func TestNewArchiver(t *testing.T) {
	Convey("Given archive settings", t, func() {
		cfg := config.New()

		Convey("When a bucket is configured", func() {
			cfg.Archive.Bucket = "reports"
			cfg.Archive.Endpoint = "http://127.0.0.1:9000"
			cfg.Archive.AccessKey = "key"
			cfg.Archive.SecretKey = "secret"
			a, err := bootstrap.NewArchiver(cfg)

			Convey("Then the S3 archiver is used", func() {
				So(err, ShouldBeNil)
				_, ok := a.(*archive.S3Archiver)
				So(ok, ShouldBeTrue)
			})
		})
	})
}
