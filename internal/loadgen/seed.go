package loadgen

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/okian/talentsync/internal/domain/model"
	"github.com/okian/talentsync/pkg/logger"
)

// SubmissionWriter is the slice of the store that seeding needs.
type SubmissionWriter interface {
	InsertSubmission(ctx context.Context, sub model.Submission) (model.Submission, error)
}

// Seed inserts subs with a pool of workers and returns how many were
// stored and how many failed. It stops early when ctx is cancelled.
func Seed(ctx context.Context, w SubmissionWriter, subs []model.Submission, workers int) (inserted, failed int, err error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	log := logger.Get().Named("loadgen")
	log.Info(ctx, "seeding submissions", logger.Int("count", len(subs)), logger.Int("workers", workers))

	var ok, bad int64
	jobs := make(chan model.Submission, workers*2)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sub := range jobs {
				if _, err := w.InsertSubmission(ctx, sub); err != nil {
					atomic.AddInt64(&bad, 1)
					log.Warn(ctx, "insert submission failed", logger.String("id", sub.ID), logger.Error(err))
					continue
				}
				atomic.AddInt64(&ok, 1)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, sub := range subs {
			select {
			case <-ctx.Done():
				return
			case jobs <- sub:
			}
		}
	}()
	wg.Wait()

	return int(ok), int(bad), ctx.Err()
}
