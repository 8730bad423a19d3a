// Package repository persists submissions, the talent directory, the sync
// audit log and staff roles. Every backend implements Store.
package repository

import (
	"context"

	"github.com/okian/talentsync/internal/domain/authz"
	"github.com/okian/talentsync/internal/domain/model"
)

// Store provides read/write access to all talentsync tables.
type Store interface {
	// InsertSubmission stores a new intake row. Blank ID, status and
	// timestamps are filled in; the stored row is returned.
	InsertSubmission(ctx context.Context, sub model.Submission) (model.Submission, error)
	// GetSubmission returns ErrNotFound for unknown ids.
	GetSubmission(ctx context.Context, id string) (model.Submission, error)
	// ListPendingSubmissions returns pending rows oldest first.
	ListPendingSubmissions(ctx context.Context) ([]model.Submission, error)
	// UpdateSyncStatus sets the persisted status and clears the last error.
	UpdateSyncStatus(ctx context.Context, id string, status model.SyncStatus) error
	// RecordSyncFailure bumps the attempt counter and keeps the message.
	RecordSyncFailure(ctx context.Context, id string, message string) error

	// FindApplicationByEmail matches on model.NormalizeEmail: ASCII case
	// and surrounding space are ignored, every other character must match.
	FindApplicationByEmail(ctx context.Context, email string) (model.TalentApplication, bool, error)
	// InsertApplication returns ErrDuplicateEmail when the email is taken.
	InsertApplication(ctx context.Context, app model.TalentApplication) error
	GetApplication(ctx context.Context, id string) (model.TalentApplication, error)
	ListApplications(ctx context.Context, filter model.ApplicationFilter) ([]model.TalentApplication, error)
	// DuplicateEmails returns normalized emails held by more than one
	// directory entry, with their counts. Empty when the directory is sound.
	DuplicateEmails(ctx context.Context) (map[string]int, error)

	AppendSyncAudit(ctx context.Context, entry model.SyncAuditEntry) error
	// ListSyncAudit returns the newest entries first.
	ListSyncAudit(ctx context.Context, limit int) ([]model.SyncAuditEntry, error)

	RolesForUser(ctx context.Context, userID string) ([]authz.Role, error)
	GrantRole(ctx context.Context, userID string, role authz.Role) error

	// Migrate creates or upgrades the schema. Safe to call repeatedly.
	Migrate(ctx context.Context) error
	Close() error
}

// ChangeListener is implemented by backends that receive row changes from
// the database itself rather than from their own writes.
type ChangeListener interface {
	Listen(ctx context.Context, fn func(model.ChangeEvent)) error
}
