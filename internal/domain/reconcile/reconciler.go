// Package reconcile moves pending submissions into the talent directory.
//
// A run is sequential. Each pending submission is matched against the
// directory by normalized email: a match marks the submission
// already_exists, otherwise a new directory entry is inserted, the
// submission is marked synced and an audit entry is appended. A failure on
// one item never stops the run; the item is reported and left pending so
// the next run retries it.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okian/talentsync/internal/domain/model"
	"github.com/okian/talentsync/internal/domain/types"
	"github.com/okian/talentsync/pkg/logger"
	"github.com/okian/talentsync/pkg/metrics"
)

// SubmissionStore is the intake side of a run.
type SubmissionStore interface {
	ListPendingSubmissions(ctx context.Context) ([]model.Submission, error)
	UpdateSyncStatus(ctx context.Context, id string, status model.SyncStatus) error
	RecordSyncFailure(ctx context.Context, id string, message string) error
}

// Directory is the talent directory side of a run. Inserts must fail with
// model.ErrDuplicateEmail when the normalized email is already present.
type Directory interface {
	FindApplicationByEmail(ctx context.Context, email string) (model.TalentApplication, bool, error)
	InsertApplication(ctx context.Context, app model.TalentApplication) error
}

// AuditLog receives one entry per created directory record.
type AuditLog interface {
	AppendSyncAudit(ctx context.Context, entry model.SyncAuditEntry) error
}

const (
	defaultStatusRetries = 2
	defaultRetryDelay    = 50 * time.Millisecond
)

// Reconciler runs the migration loop.
type Reconciler struct {
	submissions   SubmissionStore
	directory     Directory
	audit         AuditLog
	statusRetries int
	retryDelay    time.Duration
	now           func() time.Time
	log           logger.Logger
	onCreated     func(model.TalentApplication)
}

// New builds a Reconciler.
func New(submissions SubmissionStore, directory Directory, audit AuditLog, opts ...Option) *Reconciler {
	r := &Reconciler{
		submissions:   submissions,
		directory:     directory,
		audit:         audit,
		statusRetries: defaultStatusRetries,
		retryDelay:    defaultRetryDelay,
		now:           time.Now,
		log:           logger.Get().Named("reconcile"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run reconciles every pending submission. It fails only when the pending
// set cannot be read; per-item failures are reported in the summary.
// Cancellation is honoured between items only: an item that has started
// always runs to its final status. When ctx is cancelled the partial
// summary is returned together with ctx.Err().
func (r *Reconciler) Run(ctx context.Context) (types.Summary, error) {
	pending, err := r.submissions.ListPendingSubmissions(ctx)
	if err != nil {
		r.log.Error(ctx, "listing pending submissions failed", logger.Error(err))
		return types.Summary{}, fmt.Errorf("%w: %w", ErrListPending, err)
	}

	summary := types.Summary{Results: make([]types.Result, 0, len(pending))}
	r.log.Info(ctx, "reconciliation started", logger.Int("pending", len(pending)))

	for i := range pending {
		if err := ctx.Err(); err != nil {
			summary.Processed = len(summary.Results)
			summary.Timestamp = r.now().UTC()
			r.log.Warn(ctx, "reconciliation interrupted",
				logger.Int("done", len(summary.Results)),
				logger.Int("pending", len(pending)))
			return summary, err
		}
		res := r.reconcileOne(context.WithoutCancel(ctx), pending[i])
		metrics.RecordSyncItem(string(res.Status))
		summary.Results = append(summary.Results, res)
	}

	summary.Processed = len(pending)
	summary.Timestamp = r.now().UTC()

	counts := summary.Counts()
	r.log.Info(ctx, "reconciliation finished",
		logger.Int("processed", summary.Processed),
		logger.Int("synced", counts[types.StatusSynced]),
		logger.Int("already_exists", counts[types.StatusAlreadyExists]),
		logger.Int("partial_success", counts[types.StatusPartialSuccess]),
		logger.Int("error", counts[types.StatusError]))
	return summary, nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, sub model.Submission) types.Result {
	res := types.Result{SubmissionID: sub.ID, Email: sub.Email}
	email := model.NormalizeEmail(sub.Email)

	if email == "" {
		return r.fail(ctx, sub, res, errors.New("submission has no email"))
	}

	existing, found, err := r.directory.FindApplicationByEmail(ctx, email)
	if err != nil {
		return r.fail(ctx, sub, res, fmt.Errorf("directory lookup: %w", err))
	}
	if found {
		return r.markExisting(ctx, sub, res, existing.ID)
	}

	app := sub.ToTalentApplication(r.now().UTC())
	if err := r.directory.InsertApplication(ctx, app); err != nil {
		if errors.Is(err, model.ErrDuplicateEmail) {
			// Another writer inserted the same email after our lookup.
			existing, found, lerr := r.directory.FindApplicationByEmail(ctx, email)
			if lerr == nil && found {
				return r.markExisting(ctx, sub, res, existing.ID)
			}
		}
		return r.fail(ctx, sub, res, fmt.Errorf("insert talent application: %w", err))
	}

	res.TalentApplicationID = app.ID
	if r.onCreated != nil {
		r.onCreated(app)
	}

	if err := r.updateStatus(ctx, sub.ID, model.SyncSynced); err != nil {
		// The directory entry exists but the submission is still pending.
		// A later run finds it by email and settles on already_exists.
		r.log.Warn(ctx, "directory entry created but submission status not updated",
			logger.String("submission_id", sub.ID),
			logger.String("talent_application_id", app.ID),
			logger.Error(err))
		metrics.RecordErrorByComponent("reconcile", "status_update")
		res.Status = types.StatusPartialSuccess
		res.Error = err.Error()
		return res
	}
	res.Status = types.StatusSynced

	entry := model.SyncAuditEntry{
		ID:                         uuid.NewString(),
		SubmissionID:               sub.ID,
		TalentApplicationID:        app.ID,
		Email:                      app.Email,
		SubmissionDate:             sub.CreatedAt,
		TalentSyncDate:             app.CreatedAt,
		ExistsInTalentApplications: true,
	}
	if err := r.audit.AppendSyncAudit(ctx, entry); err != nil {
		r.log.Warn(ctx, "audit append failed",
			logger.String("submission_id", sub.ID),
			logger.Error(err))
		metrics.RecordErrorByComponent("reconcile", "audit")
	}
	return res
}

func (r *Reconciler) markExisting(ctx context.Context, sub model.Submission, res types.Result, existingID string) types.Result {
	res.Status = types.StatusAlreadyExists
	res.TalentApplicationID = existingID
	if err := r.updateStatus(ctx, sub.ID, model.SyncAlreadyExists); err != nil {
		// Still pending; the next run reaches the same branch.
		r.log.Warn(ctx, "status update to already_exists failed",
			logger.String("submission_id", sub.ID),
			logger.Error(err))
		res.Error = err.Error()
	}
	return res
}

func (r *Reconciler) fail(ctx context.Context, sub model.Submission, res types.Result, err error) types.Result {
	res.Status = types.StatusError
	res.Error = err.Error()
	r.log.Error(ctx, "submission not reconciled",
		logger.String("submission_id", sub.ID),
		logger.Error(err))
	metrics.RecordErrorByComponent("reconcile", "item")

	if rerr := r.submissions.RecordSyncFailure(ctx, sub.ID, err.Error()); rerr != nil {
		r.log.Warn(ctx, "recording sync failure failed",
			logger.String("submission_id", sub.ID),
			logger.Error(rerr))
	}
	return res
}

func (r *Reconciler) updateStatus(ctx context.Context, id string, status model.SyncStatus) error {
	var err error
	for attempt := 0; attempt <= r.statusRetries; attempt++ {
		if attempt > 0 && r.retryDelay > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("update sync status: %w (last error: %v)", ctx.Err(), err)
			case <-time.After(r.retryDelay * time.Duration(attempt)):
			}
		}
		if err = r.submissions.UpdateSyncStatus(ctx, id, status); err == nil {
			return nil
		}
	}
	return fmt.Errorf("update sync status after %d attempts: %w", r.statusRetries+1, err)
}
