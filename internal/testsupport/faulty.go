package testsupport

import (
	"context"
	"errors"
	"sync"

	"github.com/okian/talentsync/internal/adapters/repository"
	"github.com/okian/talentsync/internal/domain/authz"
	"github.com/okian/talentsync/internal/domain/model"
)

// ErrInjected is returned by FaultyStore for injected failures.
var ErrInjected = errors.New("injected failure")

// FaultyStore wraps a Store and fails selected calls on demand.
type FaultyStore struct {
	repository.Store

	mu sync.Mutex
	// FailList makes ListPendingSubmissions fail.
	FailList bool
	// FailInsertFor fails InsertApplication for these normalized emails.
	FailInsertFor map[string]bool
	// FailStatusFor fails UpdateSyncStatus for these submission ids the
	// given number of times; a negative count fails forever.
	FailStatusFor map[string]int
	// FailAudit makes AppendSyncAudit fail.
	FailAudit bool
	// FailRoles makes RolesForUser fail.
	FailRoles bool
	// HideFromLookup makes FindApplicationByEmail miss for these
	// normalized emails, simulating a concurrent insert after the lookup.
	HideFromLookup map[string]bool
	// AfterInsert runs after every successful InsertApplication.
	AfterInsert func(model.TalentApplication)

	statusCalls map[string]int
}

// NewFaultyStore wraps inner.
func NewFaultyStore(inner repository.Store) *FaultyStore {
	return &FaultyStore{
		Store:          inner,
		FailInsertFor:  make(map[string]bool),
		FailStatusFor:  make(map[string]int),
		HideFromLookup: make(map[string]bool),
		statusCalls:    make(map[string]int),
	}
}

// StatusCalls reports how many times UpdateSyncStatus was called for id.
func (f *FaultyStore) StatusCalls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls[id]
}

// ListPendingSubmissions implements repository.Store.
func (f *FaultyStore) ListPendingSubmissions(ctx context.Context) ([]model.Submission, error) {
	f.mu.Lock()
	fail := f.FailList
	f.mu.Unlock()
	if fail {
		return nil, ErrInjected
	}
	return f.Store.ListPendingSubmissions(ctx)
}

// FindApplicationByEmail implements repository.Store.
func (f *FaultyStore) FindApplicationByEmail(ctx context.Context, email string) (model.TalentApplication, bool, error) {
	f.mu.Lock()
	hide := f.HideFromLookup[model.NormalizeEmail(email)]
	if hide {
		// Only the first lookup misses.
		delete(f.HideFromLookup, model.NormalizeEmail(email))
	}
	f.mu.Unlock()
	if hide {
		return model.TalentApplication{}, false, nil
	}
	return f.Store.FindApplicationByEmail(ctx, email)
}

// InsertApplication implements repository.Store.
func (f *FaultyStore) InsertApplication(ctx context.Context, app model.TalentApplication) error {
	f.mu.Lock()
	fail := f.FailInsertFor[model.NormalizeEmail(app.Email)]
	after := f.AfterInsert
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	if err := f.Store.InsertApplication(ctx, app); err != nil {
		return err
	}
	if after != nil {
		after(app)
	}
	return nil
}

// UpdateSyncStatus implements repository.Store.
func (f *FaultyStore) UpdateSyncStatus(ctx context.Context, id string, status model.SyncStatus) error {
	f.mu.Lock()
	f.statusCalls[id]++
	remaining, ok := f.FailStatusFor[id]
	if ok && remaining != 0 {
		if remaining > 0 {
			f.FailStatusFor[id] = remaining - 1
		}
		f.mu.Unlock()
		return ErrInjected
	}
	f.mu.Unlock()
	return f.Store.UpdateSyncStatus(ctx, id, status)
}

// AppendSyncAudit implements repository.Store.
func (f *FaultyStore) AppendSyncAudit(ctx context.Context, entry model.SyncAuditEntry) error {
	f.mu.Lock()
	fail := f.FailAudit
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return f.Store.AppendSyncAudit(ctx, entry)
}

// RolesForUser implements repository.Store.
func (f *FaultyStore) RolesForUser(ctx context.Context, userID string) ([]authz.Role, error) {
	f.mu.Lock()
	fail := f.FailRoles
	f.mu.Unlock()
	if fail {
		return nil, ErrInjected
	}
	return f.Store.RolesForUser(ctx, userID)
}
