package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/talentsync/internal/adapters/mq/queue"
	"github.com/okian/talentsync/internal/adapters/mq/worker"
	"github.com/okian/talentsync/internal/domain/model"
	logging "github.com/okian/talentsync/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	eventChan chan queue.Event
	once      sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{eventChan: make(chan queue.Event, 10)}
}

func (mq *mockQueue) Dequeue(context.Context) <-chan queue.Event {
	return mq.eventChan
}

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.eventChan) })
	return nil
}

type recordingHandler struct {
	mu   sync.Mutex
	seen []string
	fail map[string]error
	got  chan string
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{fail: map[string]error{}, got: make(chan string, 64)}
}

func (h *recordingHandler) HandleChange(_ context.Context, e queue.Event) error {
	h.mu.Lock()
	err := h.fail[e.RecordID]
	if err == nil {
		h.seen = append(h.seen, e.RecordID)
	}
	h.mu.Unlock()
	h.got <- e.RecordID
	return err
}

func (h *recordingHandler) handled() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.seen...)
}

func (h *recordingHandler) wait(n int) bool {
	timeout := time.After(2 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-h.got:
		case <-timeout:
			return false
		}
	}
	return true
}

func event(id string) queue.Event {
	return model.ChangeEvent{Table: model.TableApplications, Op: model.OpUpdate, RecordID: id}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a running worker", t, func() {
		q := newMockQueue()
		h := newRecordingHandler()
		w := worker.NewInMemoryWorker(q, h, worker.WithName("test-worker"), worker.WithLogger(logging.Nop()))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When events arrive", func() {
			q.eventChan <- event("app-1")
			q.eventChan <- event("app-2")

			convey.Convey("Then the handler sees them in order", func() {
				convey.So(h.wait(2), convey.ShouldBeTrue)
				convey.So(h.handled(), convey.ShouldResemble, []string{"app-1", "app-2"})
			})
		})

		convey.Convey("When the handler fails", func() {
			h.fail["bad"] = errors.New("handler error")
			q.eventChan <- event("bad")
			q.eventChan <- event("good")

			convey.Convey("Then the worker keeps going", func() {
				convey.So(h.wait(2), convey.ShouldBeTrue)
				convey.So(h.handled(), convey.ShouldResemble, []string{"good"})
			})
		})

		convey.Convey("When shutting down", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutdownCancel()

			convey.Convey("Then it stops gracefully", func() {
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})
	})

	convey.Convey("Given a worker whose context is cancelled", t, func() {
		q := newMockQueue()
		w := worker.NewInMemoryWorker(q, newRecordingHandler(), worker.WithLogger(logging.Nop()))
		ctx, cancel := context.WithCancel(context.Background())
		go w.Run(ctx)
		cancel()

		convey.Convey("Then Shutdown returns promptly", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutdownCancel()
			convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a pool of workers on a real queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(64))
		h := newRecordingHandler()
		pool := worker.NewPool(3, q, h, worker.WithLogger(logging.Nop()))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		convey.Convey("When events are enqueued", func() {
			ids := []string{"a", "b", "c", "d", "e"}
			for _, id := range ids {
				convey.So(q.Enqueue(ctx, event(id)), convey.ShouldBeTrue)
			}

			convey.Convey("Then every event is handled once", func() {
				convey.So(h.wait(len(ids)), convey.ShouldBeTrue)
				convey.So(h.handled(), convey.ShouldHaveLength, len(ids))
			})
		})

		convey.Convey("When shutting down", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutdownCancel()
			err := pool.Shutdown(shutdownCtx)

			convey.Convey("Then the queue is closed and workers stop", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a pool with a non-positive worker count", t, func() {
		pool := worker.NewPool(0, newMockQueue(), newRecordingHandler(), worker.WithLogger(logging.Nop()))

		convey.Convey("Then it still has a worker", func() {
			convey.So(pool, convey.ShouldNotBeNil)
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
		})
	})
}

func TestScheduler(t *testing.T) {
	convey.Convey("Given a scheduler with a short interval", t, func() {
		var calls atomic.Int32
		ran := make(chan struct{}, 16)
		s := worker.NewScheduler(5*time.Millisecond, func(context.Context) error {
			n := calls.Add(1)
			select {
			case ran <- struct{}{}:
			default:
			}
			if n == 1 {
				return errors.New("first run fails")
			}
			return nil
		}, worker.WithSchedulerLogger(logging.Nop()))

		convey.So(s.Start(context.Background()), convey.ShouldBeNil)

		convey.Convey("Then the job runs repeatedly despite failures", func() {
			for i := 0; i < 2; i++ {
				select {
				case <-ran:
				case <-time.After(2 * time.Second):
					t.Fatal("scheduled job did not run")
				}
			}
			convey.So(s.Shutdown(context.Background()), convey.ShouldBeNil)
			convey.So(s.Runs(), convey.ShouldBeGreaterThanOrEqualTo, 2)
		})

		convey.Convey("Then starting twice is an error", func() {
			convey.So(s.Start(context.Background()), convey.ShouldNotBeNil)
			convey.So(s.Shutdown(context.Background()), convey.ShouldBeNil)
		})
	})

	convey.Convey("Given a scheduler without an interval", t, func() {
		s := worker.NewScheduler(0, func(context.Context) error { return nil })

		convey.Convey("Then Start and Shutdown are no-ops", func() {
			convey.So(s.Start(context.Background()), convey.ShouldBeNil)
			convey.So(s.Shutdown(context.Background()), convey.ShouldBeNil)
			convey.So(s.Runs(), convey.ShouldEqual, 0)
		})
	})
}
