package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/talentsync/internal/domain/authz"
	"github.com/okian/talentsync/internal/domain/model"
	"github.com/okian/talentsync/pkg/logger"
	"github.com/okian/talentsync/pkg/metrics"
)

const (
	pgUniqueViolation   = "23505"
	pgEmailIndex        = "ux_talent_applications_email_key"
	pgMigrationLockKey  = 7_420_011
	changeChannel       = "talent_changes"
	listenRetryInitial  = 500 * time.Millisecond
	listenRetryMaxDelay = 30 * time.Second
	listenCloseTimeout  = 5 * time.Second
)

// PostgresStore talks to a Postgres database such as the one behind a
// Supabase project.
type PostgresStore struct {
	pool *pgxpool.Pool
	opts options
}

var (
	_ Store          = (*PostgresStore)(nil)
	_ ChangeListener = (*PostgresStore)(nil)
)

// OpenPostgres connects a pool to dsn. The statement cache is disabled so
// the store works behind PgBouncer in transaction mode.
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*PostgresStore, error) {
	o := newOptions(opts)
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = o.maxConns
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeExec

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool, opts: o}, nil
}

func (s *PostgresStore) observe(op string, start time.Time) {
	metrics.RecordStoreLatency("postgres", op, float64(time.Since(start).Microseconds())/1000)
}

func classifyPgInsert(err error, what string) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return err
	}
	if pgErr.ConstraintName == pgEmailIndex {
		return fmt.Errorf("%w: %s", ErrDuplicateEmail, what)
	}
	return fmt.Errorf("%w: %s", ErrDuplicateID, what)
}

// Migrate applies embedded migrations. A transaction-scoped advisory lock
// keeps concurrent deployments from racing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	migrations, err := loadMigrations("postgres")
	if err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", pgMigrationLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	if _, err := tx.Exec(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version text PRIMARY KEY, applied_at timestamptz NOT NULL DEFAULT now())"); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	for _, m := range migrations {
		var count int
		if err := tx.QueryRow(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = $1", m.version).Scan(&count); err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}
		if count > 0 {
			continue
		}
		if _, err := tx.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.version, err)
		}
		if backfillsEmailKey(m.version) {
			if err := backfillPgEmailKeys(ctx, tx); err != nil {
				return fmt.Errorf("apply migration %s: %w", m.version, err)
			}
		}
		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.version); err != nil {
			return fmt.Errorf("record migration %s: %w", m.version, err)
		}
		s.opts.log.Info(ctx, "applied migration", logger.String("version", m.version))
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}

func backfillPgEmailKeys(ctx context.Context, tx pgx.Tx) error {
	rows, err := tx.Query(ctx, `SELECT id::text, email FROM talent_applications WHERE email_key = ''`)
	if err != nil {
		return fmt.Errorf("select email keys: %w", err)
	}
	var pending []emailKeyRow
	for rows.Next() {
		var r emailKeyRow
		if err := rows.Scan(&r.id, &r.email); err != nil {
			rows.Close()
			return fmt.Errorf("scan email key: %w", err)
		}
		pending = append(pending, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, r := range pending {
		if _, err := tx.Exec(ctx, `UPDATE talent_applications SET email_key = $1 WHERE id::text = $2`,
			model.NormalizeEmail(r.email), r.id); err != nil {
			return fmt.Errorf("backfill email key for %s: %w", r.id, err)
		}
	}
	return nil
}

const pgSubmissionColumns = `id::text, email, full_name, phone_number, age, country, category, gender,
	instagram, tiktok, telegram, portfolio_url, COALESCE(measurements::text, ''), talent_description,
	sync_status, sync_attempts, last_sync_error, created_at, updated_at`

const pgApplicationColumns = `id::text, email, full_name, phone, age, country, category_type, gender,
	social_media::text, notes, portfolio_url, COALESCE(measurements::text, ''), status, created_at, updated_at`

func scanPgSubmission(row pgx.Row) (model.Submission, error) {
	var (
		sub          model.Submission
		measurements string
		status       string
	)
	err := row.Scan(&sub.ID, &sub.Email, &sub.FullName, &sub.PhoneNumber, &sub.Age, &sub.Country,
		&sub.Category, &sub.Gender, &sub.Instagram, &sub.TikTok, &sub.Telegram, &sub.PortfolioURL,
		&measurements, &sub.TalentDescription, &status, &sub.SyncAttempts, &sub.LastSyncError,
		&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return model.Submission{}, err
	}
	if measurements != "" {
		sub.Measurements = json.RawMessage(measurements)
	}
	sub.SyncStatus = model.SyncStatus(status)
	sub.CreatedAt = sub.CreatedAt.UTC()
	sub.UpdatedAt = sub.UpdatedAt.UTC()
	return sub, nil
}

func scanPgApplication(row pgx.Row) (model.TalentApplication, error) {
	var (
		app          model.TalentApplication
		social       string
		measurements string
		status       string
	)
	err := row.Scan(&app.ID, &app.Email, &app.FullName, &app.Phone, &app.Age, &app.Country,
		&app.CategoryType, &app.Gender, &social, &app.Notes, &app.PortfolioURL, &measurements,
		&status, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		return model.TalentApplication{}, err
	}
	if social != "" {
		if err := json.Unmarshal([]byte(social), &app.SocialMedia); err != nil {
			return model.TalentApplication{}, fmt.Errorf("decode social_media for %s: %w", app.ID, err)
		}
	}
	if measurements != "" {
		app.Measurements = json.RawMessage(measurements)
	}
	app.Status = model.ApplicationStatus(status)
	app.CreatedAt = app.CreatedAt.UTC()
	app.UpdatedAt = app.UpdatedAt.UTC()
	return app, nil
}

// InsertSubmission implements Store.
func (s *PostgresStore) InsertSubmission(ctx context.Context, sub model.Submission) (model.Submission, error) {
	defer s.observe("insert_submission", time.Now())
	sub = prepareSubmission(sub, s.opts.now().UTC())
	if !sub.SyncStatus.Valid() {
		return model.Submission{}, fmt.Errorf("%w: %q", ErrInvalidStatus, sub.SyncStatus)
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO emerge_submissions (id, email, full_name, phone_number, age,
		country, category, gender, instagram, tiktok, telegram, portfolio_url, measurements,
		talent_description, sync_status, sync_attempts, last_sync_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::jsonb, $14, $15, $16, $17, $18, $19)`,
		sub.ID, sub.Email, sub.FullName, sub.PhoneNumber, nullableInt(sub.Age), sub.Country,
		sub.Category, sub.Gender, sub.Instagram, sub.TikTok, sub.Telegram, sub.PortfolioURL,
		nullableText(sub.Measurements), sub.TalentDescription, string(sub.SyncStatus),
		sub.SyncAttempts, sub.LastSyncError, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return model.Submission{}, classifyPgInsert(err, "submission "+sub.ID)
	}
	return sub, nil
}

// GetSubmission implements Store.
func (s *PostgresStore) GetSubmission(ctx context.Context, id string) (model.Submission, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgSubmissionColumns+` FROM emerge_submissions WHERE id::text = $1`, id)
	sub, err := scanPgSubmission(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Submission{}, fmt.Errorf("%w: submission %s", ErrNotFound, id)
	}
	return sub, err
}

// ListPendingSubmissions implements Store.
func (s *PostgresStore) ListPendingSubmissions(ctx context.Context) ([]model.Submission, error) {
	defer s.observe("list_pending", time.Now())
	rows, err := s.pool.Query(ctx, `SELECT `+pgSubmissionColumns+` FROM emerge_submissions
		WHERE sync_status = $1 ORDER BY created_at, id`, string(model.SyncPending))
	if err != nil {
		return nil, fmt.Errorf("query pending submissions: %w", err)
	}
	defer rows.Close()

	out := make([]model.Submission, 0)
	for rows.Next() {
		sub, err := scanPgSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// UpdateSyncStatus implements Store.
func (s *PostgresStore) UpdateSyncStatus(ctx context.Context, id string, status model.SyncStatus) error {
	defer s.observe("update_status", time.Now())
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	tag, err := s.pool.Exec(ctx, `UPDATE emerge_submissions
		SET sync_status = $1, last_sync_error = '', updated_at = $2 WHERE id::text = $3`,
		string(status), s.opts.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update sync status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: submission %s", ErrNotFound, id)
	}
	return nil
}

// RecordSyncFailure implements Store.
func (s *PostgresStore) RecordSyncFailure(ctx context.Context, id string, message string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE emerge_submissions
		SET sync_attempts = sync_attempts + 1, last_sync_error = $1, updated_at = $2 WHERE id::text = $3`,
		message, s.opts.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("record sync failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: submission %s", ErrNotFound, id)
	}
	return nil
}

// FindApplicationByEmail implements Store.
func (s *PostgresStore) FindApplicationByEmail(ctx context.Context, email string) (model.TalentApplication, bool, error) {
	defer s.observe("find_by_email", time.Now())
	row := s.pool.QueryRow(ctx, `SELECT `+pgApplicationColumns+` FROM talent_applications
		WHERE email_key = $1 LIMIT 1`, model.NormalizeEmail(email))
	app, err := scanPgApplication(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.TalentApplication{}, false, nil
	}
	if err != nil {
		return model.TalentApplication{}, false, fmt.Errorf("find application by email: %w", err)
	}
	return app, true, nil
}

// InsertApplication implements Store.
func (s *PostgresStore) InsertApplication(ctx context.Context, app model.TalentApplication) error {
	defer s.observe("insert_application", time.Now())
	app = prepareApplication(app, s.opts.now().UTC())
	social, err := json.Marshal(socialOrEmpty(app.SocialMedia))
	if err != nil {
		return fmt.Errorf("encode social_media: %w", err)
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO talent_applications (id, email, full_name, phone, age, country,
		category_type, gender, social_media, notes, portfolio_url, measurements, status, created_at, updated_at,
		email_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10, $11, $12::jsonb, $13, $14, $15, $16)`,
		app.ID, app.Email, app.FullName, app.Phone, nullableInt(app.Age), app.Country,
		app.CategoryType, app.Gender, string(social), app.Notes, app.PortfolioURL,
		nullableText(app.Measurements), string(app.Status), app.CreatedAt, app.UpdatedAt,
		model.NormalizeEmail(app.Email))
	if err != nil {
		return classifyPgInsert(err, app.Email)
	}
	return nil
}

// GetApplication implements Store.
func (s *PostgresStore) GetApplication(ctx context.Context, id string) (model.TalentApplication, error) {
	defer s.observe("get_application", time.Now())
	row := s.pool.QueryRow(ctx, `SELECT `+pgApplicationColumns+` FROM talent_applications WHERE id::text = $1`, id)
	app, err := scanPgApplication(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.TalentApplication{}, fmt.Errorf("%w: talent application %s", ErrNotFound, id)
	}
	return app, err
}

// ListApplications implements Store. Newest first.
func (s *PostgresStore) ListApplications(ctx context.Context, filter model.ApplicationFilter) ([]model.TalentApplication, error) {
	defer s.observe("list_applications", time.Now())
	filter = filter.Normalize()
	rows, err := s.pool.Query(ctx, `SELECT `+pgApplicationColumns+` FROM talent_applications
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`,
		string(filter.Status), filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	out := make([]model.TalentApplication, 0)
	for rows.Next() {
		app, err := scanPgApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		out = append(out, app)
	}
	return out, rows.Err()
}

// DuplicateEmails implements Store.
func (s *PostgresStore) DuplicateEmails(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT email_key, COUNT(1)::int FROM talent_applications
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
func (s *PostgresStore) AppendSyncAudit(ctx context.Context, entry model.SyncAuditEntry) error {
	defer s.observe("append_audit", time.Now())
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO emerge_talent_sync (id, emerge_submission_id, talent_application_id,
		email, submission_date, talent_sync_date, exists_in_talent_applications)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.SubmissionID, entry.TalentApplicationID, entry.Email,
		entry.SubmissionDate.UTC(), entry.TalentSyncDate.UTC(), entry.ExistsInTalentApplications)
	if err != nil {
		return fmt.Errorf("append sync audit: %w", err)
	}
	return nil
}

// ListSyncAudit implements Store.
func (s *PostgresStore) ListSyncAudit(ctx context.Context, limit int) ([]model.SyncAuditEntry, error) {
	query := `SELECT id::text, emerge_submission_id::text, talent_application_id::text, email,
		submission_date, talent_sync_date, exists_in_talent_applications
		FROM emerge_talent_sync ORDER BY talent_sync_date DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sync audit: %w", err)
	}
	defer rows.Close()
	out := make([]model.SyncAuditEntry, 0)
	for rows.Next() {
		var e model.SyncAuditEntry
		if err := rows.Scan(&e.ID, &e.SubmissionID, &e.TalentApplicationID, &e.Email,
			&e.SubmissionDate, &e.TalentSyncDate, &e.ExistsInTalentApplications); err != nil {
			return nil, err
		}
		e.SubmissionDate = e.SubmissionDate.UTC()
		e.TalentSyncDate = e.TalentSyncDate.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// RolesForUser implements Store and authz.RoleLookup.
func (s *PostgresStore) RolesForUser(ctx context.Context, userID string) ([]authz.Role, error) {
	defer s.observe("roles_for_user", time.Now())
	rows, err := s.pool.Query(ctx, `SELECT role FROM user_roles WHERE user_id = $1 ORDER BY role`, userID)
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
func (s *PostgresStore) GrantRole(ctx context.Context, userID string, role authz.Role) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO user_roles (user_id, role) VALUES ($1, $2)
		ON CONFLICT (user_id, role) DO NOTHING`,
		userID, strings.ToLower(strings.TrimSpace(string(role))))
	if err != nil {
		return fmt.Errorf("grant role: %w", err)
	}
	return nil
}

// Listen subscribes to the talent_changes channel fed by table triggers
// and calls fn for every notification until ctx is cancelled. Lost
// connections are re-established with backoff. The DSN must reach Postgres
// in session mode; transaction poolers drop LISTEN.
func (s *PostgresStore) Listen(ctx context.Context, fn func(model.ChangeEvent)) error {
	delay := listenRetryInitial
	for {
		err := s.listenOnce(ctx, fn)
		if ctx.Err() != nil {
			return nil
		}
		s.opts.log.Warn(ctx, "change listener disconnected", logger.Error(err), logger.Duration("retry_in", delay))
		metrics.RecordErrorByComponent("repository", "listen")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		if delay *= 2; delay > listenRetryMaxDelay {
			delay = listenRetryMaxDelay
		}
	}
}

func (s *PostgresStore) listenOnce(ctx context.Context, fn func(model.ChangeEvent)) error {
	pooled, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	// The session keeps its LISTEN subscription, so it never goes back to
	// the pool.
	conn := pooled.Hijack()
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), listenCloseTimeout)
		defer cancel()
		_ = conn.Close(cctx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+changeChannel); err != nil {
		return fmt.Errorf("listen %s: %w", changeChannel, err)
	}
	s.opts.log.Info(ctx, "listening for changes", logger.String("channel", changeChannel))

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		var ev model.ChangeEvent
		if err := json.Unmarshal([]byte(n.Payload), &ev); err != nil {
			s.opts.log.Warn(ctx, "dropping malformed change payload", logger.String("payload", n.Payload), logger.Error(err))
			continue
		}
		fn(ev)
	}
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
