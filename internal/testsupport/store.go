// Package testsupport holds helpers shared by package tests.
package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/okian/talentsync/internal/adapters/repository"
	"github.com/okian/talentsync/internal/domain/authz"
	"github.com/okian/talentsync/internal/domain/model"
	"github.com/okian/talentsync/pkg/logger"
)

// MustOpenStore opens a migrated SQLite store in a temp dir and registers cleanup.
func MustOpenStore(t testing.TB, opts ...repository.Option) *repository.SQLiteStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "talentsync.db")
	opts = append([]repository.Option{repository.WithLogger(logger.Nop())}, opts...)
	store, err := repository.OpenSQLite(context.Background(), path, opts...)
	if err != nil {
		t.Fatalf("repository.OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("store.Migrate: %v", err)
	}
	return store
}

// NewMemoryStore returns a quiet in-memory store.
func NewMemoryStore(opts ...repository.Option) *repository.MemoryStore {
	opts = append([]repository.Option{repository.WithLogger(logger.Nop())}, opts...)
	return repository.NewMemoryStore(opts...)
}

// MustInsertSubmission stores sub and returns the stored copy.
func MustInsertSubmission(t testing.TB, store repository.Store, sub model.Submission) model.Submission {
	t.Helper()

	stored, err := store.InsertSubmission(context.Background(), sub)
	if err != nil {
		t.Fatalf("store.InsertSubmission(%s): %v", sub.Email, err)
	}
	return stored
}

// MustInsertApplication stores a directory entry for email.
func MustInsertApplication(t testing.TB, store repository.Store, email string) model.TalentApplication {
	t.Helper()

	app := model.Submission{Email: email, FullName: "Existing " + email}.ToTalentApplication(Epoch)
	if err := store.InsertApplication(context.Background(), app); err != nil {
		t.Fatalf("store.InsertApplication(%s): %v", email, err)
	}
	return app
}

// MustGrant assigns role to userID.
func MustGrant(t testing.TB, store repository.Store, userID string, role authz.Role) {
	t.Helper()

	if err := store.GrantRole(context.Background(), userID, role); err != nil {
		t.Fatalf("store.GrantRole: %v", err)
	}
}
