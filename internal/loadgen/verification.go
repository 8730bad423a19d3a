package loadgen

import (
	"context"
	"fmt"
	"sort"

	"github.com/okian/talentsync/internal/domain/model"
)

// Inspector is the read side of the store that verification needs.
type Inspector interface {
	ListPendingSubmissions(ctx context.Context) ([]model.Submission, error)
	FindApplicationByEmail(ctx context.Context, email string) (model.TalentApplication, bool, error)
	DuplicateEmails(ctx context.Context) (map[string]int, error)
}

// Report is the outcome of Verify.
type Report struct {
	Pending         int
	DuplicateEmails map[string]int
	// Missing lists emails of seeded submissions with no directory entry.
	Missing []string
}

// OK reports whether the directory is consistent.
func (r Report) OK() bool {
	return r.Pending == 0 && len(r.DuplicateEmails) == 0 && len(r.Missing) == 0
}

func (r Report) String() string {
	if r.OK() {
		return "directory consistent"
	}
	return fmt.Sprintf("pending=%d duplicate_emails=%d missing=%d", r.Pending, len(r.DuplicateEmails), len(r.Missing))
}

// Verify checks that nothing is left pending, that no email appears twice
// in the directory and that every email in seeded has an entry. seeded may
// be nil to skip the last check.
func Verify(ctx context.Context, store Inspector, seeded []model.Submission) (Report, error) {
	var rep Report

	pending, err := store.ListPendingSubmissions(ctx)
	if err != nil {
		return rep, fmt.Errorf("list pending: %w", err)
	}
	rep.Pending = len(pending)

	dups, err := store.DuplicateEmails(ctx)
	if err != nil {
		return rep, fmt.Errorf("duplicate emails: %w", err)
	}
	rep.DuplicateEmails = dups

	checked := make(map[string]struct{}, len(seeded))
	for _, sub := range seeded {
		key := model.NormalizeEmail(sub.Email)
		if _, done := checked[key]; done {
			continue
		}
		checked[key] = struct{}{}
		_, found, err := store.FindApplicationByEmail(ctx, sub.Email)
		if err != nil {
			return rep, fmt.Errorf("find %s: %w", sub.Email, err)
		}
		if !found {
			rep.Missing = append(rep.Missing, key)
		}
	}
	sort.Strings(rep.Missing)
	return rep, nil
}
