package loadgen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/talentsync/internal/domain/types"
	"github.com/okian/talentsync/pkg/logger"
)

// Store is what Run needs from the shared database.
type Store interface {
	SubmissionWriter
	Inspector
}

// Syncer triggers a reconciliation run.
type Syncer interface {
	Sync(ctx context.Context) (SyncResponse, error)
}

// ErrInconsistent is returned by Run when verification finds problems.
var ErrInconsistent = errors.New("directory inconsistent after sync")

// Run seeds submissions into store, triggers two sync runs through syncer
// and verifies the directory. The second run must find nothing to do.
func Run(ctx context.Context, cfg Config, store Store, syncer Syncer) (Stats, Report, error) {
	cfg = cfg.withDefaults()
	log := logger.Get().Named("loadgen")
	stats := Stats{StartTime: time.Now()}

	log.Info(ctx, "starting load run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("submissions", cfg.Submissions),
		logger.Float64("dupRatio", cfg.DupRatio),
		logger.Int("workers", cfg.Workers),
		logger.Int64("seed", cfg.Seed))

	subs := Generate(cfg.Submissions, cfg.DupRatio, cfg.Seed)
	stats.Generated = len(subs)
	stats.UniqueKeys = UniqueEmails(subs)

	inserted, failed, err := Seed(ctx, store, subs, cfg.Workers)
	stats.Inserted, stats.Failed = inserted, failed
	if err != nil {
		return stats, Report{}, fmt.Errorf("seed: %w", err)
	}

	first, err := syncer.Sync(ctx)
	if err != nil {
		return stats, Report{}, fmt.Errorf("first sync: %w", err)
	}
	stats.Runs++
	tally(&stats, first.Summary())

	second, err := syncer.Sync(ctx)
	if err != nil {
		return stats, Report{}, fmt.Errorf("second sync: %w", err)
	}
	stats.Runs++
	tally(&stats, second.Summary())

	report, err := Verify(ctx, store, subs)
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	if err != nil {
		return stats, report, fmt.Errorf("verify: %w", err)
	}

	log.Info(ctx, "load run finished",
		logger.Int("synced", stats.Synced),
		logger.Int("alreadyExists", stats.Existing),
		logger.Int("errors", stats.Errors),
		logger.Int("secondRunProcessed", second.Processed),
		logger.Duration("duration", stats.Duration),
		logger.String("report", report.String()))

	if !report.OK() || second.Processed != 0 {
		return stats, report, fmt.Errorf("%w: %s", ErrInconsistent, report)
	}
	return stats, report, nil
}

func tally(stats *Stats, s types.Summary) {
	counts := s.Counts()
	stats.Synced += counts[types.StatusSynced]
	stats.Existing += counts[types.StatusAlreadyExists]
	stats.Errors += counts[types.StatusError] + counts[types.StatusPartialSuccess]
}
