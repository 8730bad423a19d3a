package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okian/talentsync/internal/domain/model"
)

func fromUnixNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func nullableText(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func socialOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func expectOneRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return nil
}

func prepareSubmission(sub model.Submission, now time.Time) model.Submission {
	sub = sub.Clone()
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.SyncStatus == "" {
		sub.SyncStatus = model.SyncPending
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = sub.CreatedAt
	}
	sub.CreatedAt = sub.CreatedAt.UTC()
	sub.UpdatedAt = sub.UpdatedAt.UTC()
	return sub
}

func prepareApplication(app model.TalentApplication, now time.Time) model.TalentApplication {
	app = app.Clone()
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if app.Status == "" {
		app.Status = model.ApplicationPending
	}
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	if app.UpdatedAt.IsZero() {
		app.UpdatedAt = app.CreatedAt
	}
	app.CreatedAt = app.CreatedAt.UTC()
	app.UpdatedAt = app.UpdatedAt.UTC()
	return app
}
