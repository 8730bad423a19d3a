package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/talentsync/internal/domain/authz"
	"github.com/okian/talentsync/internal/domain/model"
	"github.com/okian/talentsync/pkg/metrics"
)

// MemoryStore keeps every table in process memory.
type MemoryStore struct {
	mu           sync.RWMutex
	submissions  map[string]model.Submission
	applications map[string]model.TalentApplication
	byEmail      map[string]string // normalized email -> application id
	audit        []model.SyncAuditEntry
	roles        map[string][]authz.Role
	closed       bool
	opts         options
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		submissions:  make(map[string]model.Submission),
		applications: make(map[string]model.TalentApplication),
		byEmail:      make(map[string]string),
		roles:        make(map[string][]authz.Role),
		opts:         newOptions(opts),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) observe(op string, start time.Time) {
	metrics.RecordStoreLatency("memory", op, float64(time.Since(start).Microseconds())/1000)
}

func (s *MemoryStore) emit(table string, op model.ChangeOp, id string) {
	s.opts.notify(model.ChangeEvent{Table: table, Op: op, RecordID: id, At: s.opts.now().UTC()})
}

// InsertSubmission implements Store.
func (s *MemoryStore) InsertSubmission(_ context.Context, sub model.Submission) (model.Submission, error) {
	defer s.observe("insert_submission", time.Now())
	sub = prepareSubmission(sub, s.opts.now().UTC())
	if !sub.SyncStatus.Valid() {
		return model.Submission{}, fmt.Errorf("%w: %q", ErrInvalidStatus, sub.SyncStatus)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return model.Submission{}, ErrClosed
	}
	if _, exists := s.submissions[sub.ID]; exists {
		s.mu.Unlock()
		return model.Submission{}, fmt.Errorf("%w: submission %s", ErrDuplicateID, sub.ID)
	}
	s.submissions[sub.ID] = sub
	s.mu.Unlock()

	s.emit(model.TableSubmissions, model.OpInsert, sub.ID)
	return sub.Clone(), nil
}

// GetSubmission implements Store.
func (s *MemoryStore) GetSubmission(_ context.Context, id string) (model.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[id]
	if !ok {
		return model.Submission{}, fmt.Errorf("%w: submission %s", ErrNotFound, id)
	}
	return sub.Clone(), nil
}

// ListPendingSubmissions implements Store.
func (s *MemoryStore) ListPendingSubmissions(_ context.Context) ([]model.Submission, error) {
	defer s.observe("list_pending", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]model.Submission, 0)
	for _, sub := range s.submissions {
		if sub.SyncStatus == model.SyncPending {
			out = append(out, sub.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateSyncStatus implements Store.
func (s *MemoryStore) UpdateSyncStatus(_ context.Context, id string, status model.SyncStatus) error {
	defer s.observe("update_status", time.Now())
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	s.mu.Lock()
	sub, ok := s.submissions[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: submission %s", ErrNotFound, id)
	}
	sub.SyncStatus = status
	sub.LastSyncError = ""
	sub.UpdatedAt = s.opts.now().UTC()
	s.submissions[id] = sub
	s.mu.Unlock()

	s.emit(model.TableSubmissions, model.OpUpdate, id)
	return nil
}

// RecordSyncFailure implements Store.
func (s *MemoryStore) RecordSyncFailure(_ context.Context, id string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[id]
	if !ok {
		return fmt.Errorf("%w: submission %s", ErrNotFound, id)
	}
	sub.SyncAttempts++
	sub.LastSyncError = message
	sub.UpdatedAt = s.opts.now().UTC()
	s.submissions[id] = sub
	return nil
}

// FindApplicationByEmail implements Store.
func (s *MemoryStore) FindApplicationByEmail(_ context.Context, email string) (model.TalentApplication, bool, error) {
	defer s.observe("find_by_email", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.TalentApplication{}, false, ErrClosed
	}
	id, ok := s.byEmail[model.NormalizeEmail(email)]
	if !ok {
		return model.TalentApplication{}, false, nil
	}
	return s.applications[id].Clone(), true, nil
}

// InsertApplication implements Store.
func (s *MemoryStore) InsertApplication(_ context.Context, app model.TalentApplication) error {
	defer s.observe("insert_application", time.Now())
	app = prepareApplication(app, s.opts.now().UTC())
	key := model.NormalizeEmail(app.Email)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if _, taken := s.byEmail[key]; taken {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateEmail, app.Email)
	}
	if _, exists := s.applications[app.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: talent application %s", ErrDuplicateID, app.ID)
	}
	s.applications[app.ID] = app
	s.byEmail[key] = app.ID
	s.mu.Unlock()

	s.emit(model.TableApplications, model.OpInsert, app.ID)
	return nil
}

// GetApplication implements Store.
func (s *MemoryStore) GetApplication(_ context.Context, id string) (model.TalentApplication, error) {
	defer s.observe("get_application", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.applications[id]
	if !ok {
		return model.TalentApplication{}, fmt.Errorf("%w: talent application %s", ErrNotFound, id)
	}
	return app.Clone(), nil
}

// ListApplications implements Store. Newest first.
func (s *MemoryStore) ListApplications(_ context.Context, filter model.ApplicationFilter) ([]model.TalentApplication, error) {
	defer s.observe("list_applications", time.Now())
	filter = filter.Normalize()
	s.mu.RLock()
	all := make([]model.TalentApplication, 0, len(s.applications))
	for _, app := range s.applications {
		if filter.Status != "" && app.Status != filter.Status {
			continue
		}
		all = append(all, app.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if filter.Offset >= len(all) {
		return []model.TalentApplication{}, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[filter.Offset:end], nil
}

// DuplicateEmails implements Store. The memory index forbids duplicates, so
// this only recounts from the primary map.
func (s *MemoryStore) DuplicateEmails(_ context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int, len(s.applications))
	for _, app := range s.applications {
		counts[model.NormalizeEmail(app.Email)]++
	}
	dups := make(map[string]int)
	for email, n := range counts {
		if n > 1 {
			dups[email] = n
		}
	}
	return dups, nil
}

// AppendSyncAudit implements Store.
func (s *MemoryStore) AppendSyncAudit(_ context.Context, entry model.SyncAuditEntry) error {
	defer s.observe("append_audit", time.Now())
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.audit = append(s.audit, entry)
	return nil
}

// ListSyncAudit implements Store.
func (s *MemoryStore) ListSyncAudit(_ context.Context, limit int) ([]model.SyncAuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.audit)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]model.SyncAuditEntry, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.audit[i])
	}
	return out, nil
}

// RolesForUser implements Store and authz.RoleLookup.
func (s *MemoryStore) RolesForUser(_ context.Context, userID string) ([]authz.Role, error) {
	defer s.observe("roles_for_user", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return append([]authz.Role(nil), s.roles[userID]...), nil
}

// GrantRole implements Store.
func (s *MemoryStore) GrantRole(_ context.Context, userID string, role authz.Role) error {
	role = authz.Role(strings.ToLower(strings.TrimSpace(string(role))))
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, have := range s.roles[userID] {
		if have == role {
			return nil
		}
	}
	s.roles[userID] = append(s.roles[userID], role)
	return nil
}

// Migrate implements Store.
func (s *MemoryStore) Migrate(context.Context) error { return nil }

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
