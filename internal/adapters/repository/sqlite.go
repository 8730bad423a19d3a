package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/okian/talentsync/internal/domain/authz"
	"github.com/okian/talentsync/internal/domain/model"
	"github.com/okian/talentsync/pkg/logger"
	"github.com/okian/talentsync/pkg/metrics"
)

const (
	sqliteBusyCode            = 5
	sqliteConstraintUnique    = 2067
	sqliteConstraintPK        = 1555
	busyRetryAttempts         = 5
	busyRetryInitialBackoff   = 10 * time.Millisecond
	busyRetryMaxBackoff       = 200 * time.Millisecond
	sqliteEmailKeyColumn      = "talent_applications.email_key"
	sqliteDefaultPragmaSuffix = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
)

// SQLiteStore persists everything in a single SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
	opts options
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path. The schema is
// not touched until Migrate is called.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("open sqlite: empty path")
	}
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return &SQLiteStore{db: db, path: path, opts: newOptions(opts)}, nil
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "_pragma=") {
		return path
	}
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + sqliteDefaultPragmaSuffix
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// classifySQLiteInsert maps unique violations onto store sentinels.
func classifySQLiteInsert(err error, what string) error {
	if err == nil {
		return nil
	}
	var coder interface{ Code() int }
	unique := errors.As(err, &coder) && (coder.Code() == sqliteConstraintUnique || coder.Code() == sqliteConstraintPK)
	msg := err.Error()
	if !unique && !strings.Contains(msg, "UNIQUE constraint failed") {
		return err
	}
	if strings.Contains(msg, sqliteEmailKeyColumn) {
		return fmt.Errorf("%w: %s", ErrDuplicateEmail, what)
	}
	return fmt.Errorf("%w: %s", ErrDuplicateID, what)
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *SQLiteStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *SQLiteStore) observe(op string, start time.Time) {
	metrics.RecordStoreLatency("sqlite", op, float64(time.Since(start).Microseconds())/1000)
}

func (s *SQLiteStore) emit(table string, op model.ChangeOp, id string) {
	s.opts.notify(model.ChangeEvent{Table: table, Op: op, RecordID: id, At: s.opts.now().UTC()})
}

// Migrate applies embedded migrations inside one transaction.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	migrations, err := loadMigrations("sqlite")
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	for _, m := range migrations {
		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", m.version).Scan(&count); err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}
		if count > 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.version, err)
		}
		if backfillsEmailKey(m.version) {
			if err := backfillSQLiteEmailKeys(ctx, tx); err != nil {
				return fmt.Errorf("apply migration %s: %w", m.version, err)
			}
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			return fmt.Errorf("record migration %s: %w", m.version, err)
		}
		s.opts.log.Info(ctx, "applied migration", logger.String("version", m.version), logger.String("path", s.path))
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}

func backfillSQLiteEmailKeys(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, `SELECT id, email FROM talent_applications WHERE email_key = ''`)
	if err != nil {
		return fmt.Errorf("select email keys: %w", err)
	}
	var pending []emailKeyRow
	for rows.Next() {
		var r emailKeyRow
		if err := rows.Scan(&r.id, &r.email); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan email key: %w", err)
		}
		pending = append(pending, r)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	for _, r := range pending {
		if _, err := tx.ExecContext(ctx, `UPDATE talent_applications SET email_key = ? WHERE id = ?`,
			model.NormalizeEmail(r.email), r.id); err != nil {
			return fmt.Errorf("backfill email key for %s: %w", r.id, err)
		}
	}
	return nil
}

const submissionColumns = `id, email, full_name, phone_number, age, country, category, gender,
	instagram, tiktok, telegram, portfolio_url, measurements, talent_description,
	sync_status, sync_attempts, last_sync_error, created_at, updated_at`

const applicationColumns = `id, email, full_name, phone, age, country, category_type, gender,
	social_media, notes, portfolio_url, measurements, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSubmission(row rowScanner) (model.Submission, error) {
	var (
		sub          model.Submission
		age          sql.NullInt64
		measurements sql.NullString
		status       string
		created      int64
		updated      int64
	)
	err := row.Scan(&sub.ID, &sub.Email, &sub.FullName, &sub.PhoneNumber, &age, &sub.Country,
		&sub.Category, &sub.Gender, &sub.Instagram, &sub.TikTok, &sub.Telegram, &sub.PortfolioURL,
		&measurements, &sub.TalentDescription, &status, &sub.SyncAttempts, &sub.LastSyncError,
		&created, &updated)
	if err != nil {
		return model.Submission{}, err
	}
	if age.Valid {
		v := int(age.Int64)
		sub.Age = &v
	}
	if measurements.Valid && measurements.String != "" {
		sub.Measurements = json.RawMessage(measurements.String)
	}
	sub.SyncStatus = model.SyncStatus(status)
	sub.CreatedAt = fromUnixNanos(created)
	sub.UpdatedAt = fromUnixNanos(updated)
	return sub, nil
}

func scanSQLiteApplication(row rowScanner) (model.TalentApplication, error) {
	var (
		app          model.TalentApplication
		age          sql.NullInt64
		social       string
		measurements sql.NullString
		status       string
		created      int64
		updated      int64
	)
	err := row.Scan(&app.ID, &app.Email, &app.FullName, &app.Phone, &age, &app.Country,
		&app.CategoryType, &app.Gender, &social, &app.Notes, &app.PortfolioURL, &measurements,
		&status, &created, &updated)
	if err != nil {
		return model.TalentApplication{}, err
	}
	if age.Valid {
		v := int(age.Int64)
		app.Age = &v
	}
	if social != "" {
		if err := json.Unmarshal([]byte(social), &app.SocialMedia); err != nil {
			return model.TalentApplication{}, fmt.Errorf("decode social_media for %s: %w", app.ID, err)
		}
	}
	if measurements.Valid && measurements.String != "" {
		app.Measurements = json.RawMessage(measurements.String)
	}
	app.Status = model.ApplicationStatus(status)
	app.CreatedAt = fromUnixNanos(created)
	app.UpdatedAt = fromUnixNanos(updated)
	return app, nil
}

// InsertSubmission implements Store.
func (s *SQLiteStore) InsertSubmission(ctx context.Context, sub model.Submission) (model.Submission, error) {
	defer s.observe("insert_submission", time.Now())
	sub = prepareSubmission(sub, s.opts.now().UTC())
	if !sub.SyncStatus.Valid() {
		return model.Submission{}, fmt.Errorf("%w: %q", ErrInvalidStatus, sub.SyncStatus)
	}
	_, err := s.exec(ctx, `INSERT INTO emerge_submissions (`+submissionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.Email, sub.FullName, sub.PhoneNumber, nullableInt(sub.Age), sub.Country,
		sub.Category, sub.Gender, sub.Instagram, sub.TikTok, sub.Telegram, sub.PortfolioURL,
		nullableText(sub.Measurements), sub.TalentDescription, string(sub.SyncStatus),
		sub.SyncAttempts, sub.LastSyncError, sub.CreatedAt.UnixNano(), sub.UpdatedAt.UnixNano())
	if err != nil {
		return model.Submission{}, classifySQLiteInsert(err, "submission "+sub.ID)
	}
	s.emit(model.TableSubmissions, model.OpInsert, sub.ID)
	return sub, nil
}

// GetSubmission implements Store.
func (s *SQLiteStore) GetSubmission(ctx context.Context, id string) (model.Submission, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM emerge_submissions WHERE id = ?`, id)
	sub, err := scanSQLiteSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Submission{}, fmt.Errorf("%w: submission %s", ErrNotFound, id)
	}
	return sub, err
}

// ListPendingSubmissions implements Store.
func (s *SQLiteStore) ListPendingSubmissions(ctx context.Context) ([]model.Submission, error) {
	defer s.observe("list_pending", time.Now())
	rows, err := s.db.QueryContext(ctx, `SELECT `+submissionColumns+` FROM emerge_submissions
		WHERE sync_status = ? ORDER BY created_at, id`, string(model.SyncPending))
	if err != nil {
		return nil, fmt.Errorf("query pending submissions: %w", err)
	}
	defer rows.Close()

	out := make([]model.Submission, 0)
	for rows.Next() {
		sub, err := scanSQLiteSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// UpdateSyncStatus implements Store.
func (s *SQLiteStore) UpdateSyncStatus(ctx context.Context, id string, status model.SyncStatus) error {
	defer s.observe("update_status", time.Now())
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	res, err := s.exec(ctx, `UPDATE emerge_submissions
		SET sync_status = ?, last_sync_error = '', updated_at = ? WHERE id = ?`,
		string(status), s.opts.now().UTC().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("update sync status: %w", err)
	}
	if err := expectOneRow(res, "submission "+id); err != nil {
		return err
	}
	s.emit(model.TableSubmissions, model.OpUpdate, id)
	return nil
}

// RecordSyncFailure implements Store.
func (s *SQLiteStore) RecordSyncFailure(ctx context.Context, id string, message string) error {
	res, err := s.exec(ctx, `UPDATE emerge_submissions
		SET sync_attempts = sync_attempts + 1, last_sync_error = ?, updated_at = ? WHERE id = ?`,
		message, s.opts.now().UTC().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("record sync failure: %w", err)
	}
	return expectOneRow(res, "submission "+id)
}

// FindApplicationByEmail implements Store.
func (s *SQLiteStore) FindApplicationByEmail(ctx context.Context, email string) (model.TalentApplication, bool, error) {
	defer s.observe("find_by_email", time.Now())
	row := s.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM talent_applications
		WHERE email_key = ? LIMIT 1`, model.NormalizeEmail(email))
	app, err := scanSQLiteApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TalentApplication{}, false, nil
	}
	if err != nil {
		return model.TalentApplication{}, false, fmt.Errorf("find application by email: %w", err)
	}
	return app, true, nil
}

// InsertApplication implements Store.
func (s *SQLiteStore) InsertApplication(ctx context.Context, app model.TalentApplication) error {
	defer s.observe("insert_application", time.Now())
	app = prepareApplication(app, s.opts.now().UTC())
	social, err := json.Marshal(socialOrEmpty(app.SocialMedia))
	if err != nil {
		return fmt.Errorf("encode social_media: %w", err)
	}
	_, err = s.exec(ctx, `INSERT INTO talent_applications (`+applicationColumns+`, email_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		app.ID, app.Email, app.FullName, app.Phone, nullableInt(app.Age), app.Country,
		app.CategoryType, app.Gender, string(social), app.Notes, app.PortfolioURL,
		nullableText(app.Measurements), string(app.Status), app.CreatedAt.UnixNano(), app.UpdatedAt.UnixNano(),
		model.NormalizeEmail(app.Email))
	if err != nil {
		return classifySQLiteInsert(err, app.Email)
	}
	s.emit(model.TableApplications, model.OpInsert, app.ID)
	return nil
}

// GetApplication implements Store.
func (s *SQLiteStore) GetApplication(ctx context.Context, id string) (model.TalentApplication, error) {
	defer s.observe("get_application", time.Now())
	row := s.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM talent_applications WHERE id = ?`, id)
	app, err := scanSQLiteApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TalentApplication{}, fmt.Errorf("%w: talent application %s", ErrNotFound, id)
	}
	return app, err
}

// ListApplications implements Store. Newest first.
func (s *SQLiteStore) ListApplications(ctx context.Context, filter model.ApplicationFilter) ([]model.TalentApplication, error) {
	defer s.observe("list_applications", time.Now())
	filter = filter.Normalize()
	query := `SELECT ` + applicationColumns + ` FROM talent_applications`
	args := []any{}
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	out := make([]model.TalentApplication, 0)
	for rows.Next() {
		app, err := scanSQLiteApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		out = append(out, app)
	}
	return out, rows.Err()
}

// DuplicateEmails implements Store.
func (s *SQLiteStore) DuplicateEmails(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT email_key, COUNT(1) FROM talent_applications
		GROUP BY email_key HAVING COUNT(1) > 1`)
	if err != nil {
		return nil, fmt.Errorf("count duplicate emails: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var email string
		var n int
		if err := rows.Scan(&email, &n); err != nil {
			return nil, err
		}
		out[email] = n
	}
	return out, rows.Err()
}

// AppendSyncAudit implements Store.
func (s *SQLiteStore) AppendSyncAudit(ctx context.Context, entry model.SyncAuditEntry) error {
	defer s.observe("append_audit", time.Now())
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	_, err := s.exec(ctx, `INSERT INTO emerge_talent_sync (id, emerge_submission_id, talent_application_id,
		email, submission_date, talent_sync_date, exists_in_talent_applications) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.SubmissionID, entry.TalentApplicationID, entry.Email,
		entry.SubmissionDate.UnixNano(), entry.TalentSyncDate.UnixNano(), entry.ExistsInTalentApplications)
	if err != nil {
		return fmt.Errorf("append sync audit: %w", err)
	}
	return nil
}

// ListSyncAudit implements Store.
func (s *SQLiteStore) ListSyncAudit(ctx context.Context, limit int) ([]model.SyncAuditEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, emerge_submission_id, talent_application_id, email,
		submission_date, talent_sync_date, exists_in_talent_applications
		FROM emerge_talent_sync ORDER BY talent_sync_date DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sync audit: %w", err)
	}
	defer rows.Close()
	out := make([]model.SyncAuditEntry, 0)
	for rows.Next() {
		var e model.SyncAuditEntry
		var submitted, synced int64
		if err := rows.Scan(&e.ID, &e.SubmissionID, &e.TalentApplicationID, &e.Email,
			&submitted, &synced, &e.ExistsInTalentApplications); err != nil {
			return nil, err
		}
		e.SubmissionDate = fromUnixNanos(submitted)
		e.TalentSyncDate = fromUnixNanos(synced)
		out = append(out, e)
	}
	return out, rows.Err()
}

// RolesForUser implements Store and authz.RoleLookup.
func (s *SQLiteStore) RolesForUser(ctx context.Context, userID string) ([]authz.Role, error) {
	defer s.observe("roles_for_user", time.Now())
	rows, err := s.db.QueryContext(ctx, `SELECT role FROM user_roles WHERE user_id = ? ORDER BY role`, userID)
	if err != nil {
		return nil, fmt.Errorf("query user roles: %w", err)
	}
	defer rows.Close()
	var roles []authz.Role
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, authz.Role(role))
	}
	return roles, rows.Err()
}

// GrantRole implements Store.
func (s *SQLiteStore) GrantRole(ctx context.Context, userID string, role authz.Role) error {
	_, err := s.exec(ctx, `INSERT OR IGNORE INTO user_roles (user_id, role) VALUES (?, ?)`,
		userID, strings.ToLower(strings.TrimSpace(string(role))))
	if err != nil {
		return fmt.Errorf("grant role: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
