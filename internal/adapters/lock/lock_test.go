package lock_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/talentsync/internal/adapters/lock"
	. "github.com/smartystreets/goconvey/convey"
)

func exerciseLocker(l lock.Locker) {
	ctx := context.Background()

	Convey("When the key is free", func() {
		unlock, err := l.TryLock(ctx, "talentsync:sync")

		Convey("Then it is acquired and a second attempt fails", func() {
			So(err, ShouldBeNil)
			So(unlock, ShouldNotBeNil)
			_, err := l.TryLock(ctx, "talentsync:sync")
			So(errors.Is(err, lock.ErrLocked), ShouldBeTrue)
			So(unlock(ctx), ShouldBeNil)
		})

		Convey("Then other keys are independent", func() {
			other, err := l.TryLock(ctx, "talentsync:other")
			So(err, ShouldBeNil)
			So(other(ctx), ShouldBeNil)
			So(unlock(ctx), ShouldBeNil)
		})

		Convey("Then releasing frees the key", func() {
			So(unlock(ctx), ShouldBeNil)
			So(unlock(ctx), ShouldBeNil)
			again, err := l.TryLock(ctx, "talentsync:sync")
			So(err, ShouldBeNil)
			So(again(ctx), ShouldBeNil)
		})
	})

	Convey("When many goroutines race for the key", func() {
		var winners atomic.Int32
		var wg sync.WaitGroup
		start := make(chan struct{})
		unlocks := make(chan lock.Unlock, 16)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if u, err := l.TryLock(ctx, "talentsync:race"); err == nil {
					winners.Add(1)
					unlocks <- u
				}
			}()
		}
		close(start)
		wg.Wait()
		close(unlocks)

		Convey("Then exactly one wins", func() {
			So(winners.Load(), ShouldEqual, 1)
			for u := range unlocks {
				So(u(ctx), ShouldBeNil)
			}
		})
	})
}

func TestMemoryLocker(t *testing.T) {
	Convey("Given a memory locker", t, func() {
		exerciseLocker(lock.NewMemory())
	})
}

func TestFileLocker(t *testing.T) {
	Convey("Given a file locker", t, func() {
		l, err := lock.NewFile(t.TempDir())
		So(err, ShouldBeNil)
		exerciseLocker(l)
	})
}

// TestRedisLocker runs only when TALENTSYNC_TEST_REDIS_ADDR points at a
// disposable Redis server.
func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("TALENTSYNC_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TALENTSYNC_TEST_REDIS_ADDR not set")
	}
	Convey("Given a redis locker", t, func() {
		l, err := lock.DialRedis(context.Background(), addr, "", 0, time.Minute)
		So(err, ShouldBeNil)
		Reset(func() { _ = l.Close() })
		exerciseLocker(l)
	})
}

func TestRedisLockerOutlivesTTL(t *testing.T) {
	addr := os.Getenv("TALENTSYNC_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TALENTSYNC_TEST_REDIS_ADDR not set")
	}
	Convey("Given a redis locker with a short lease", t, func() {
		ctx := context.Background()
		l, err := lock.DialRedis(ctx, addr, "", 0, 300*time.Millisecond)
		So(err, ShouldBeNil)
		Reset(func() { _ = l.Close() })

		unlock, err := l.TryLock(ctx, "talentsync:long-run")
		So(err, ShouldBeNil)

		Convey("When the holder keeps running past the lease", func() {
			time.Sleep(time.Second)
			_, err := l.TryLock(ctx, "talentsync:long-run")

			Convey("Then nobody else gets in and the holder still releases cleanly", func() {
				So(errors.Is(err, lock.ErrLocked), ShouldBeTrue)
				So(unlock(ctx), ShouldBeNil)
				again, err := l.TryLock(ctx, "talentsync:long-run")
				So(err, ShouldBeNil)
				So(again(ctx), ShouldBeNil)
			})
		})
	})
}
