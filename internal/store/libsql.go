package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/catalog/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/catalog.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	if !strings.Contains(dbPath, ":") {
		dbPath = "file:" + dbPath
	}
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "open libsql %s: %v", dbPath, err).WithCause(err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	if err := runMigrations(ctx, s.db); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "migrate: %v", err).WithCause(err)
	}
	return nil
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Runs ---

// RecordRun inserts a run and its issues in one transaction.
func (s *LibSQLStore) RecordRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		return schema.NewError(schema.ErrCodeStore, "run id is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, pipeline_id, kind, status, trigger_name, pr_number, base_branch, total_count, changed, errors, warnings, blocking, advisory, scan_ran, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, nullStr(run.PipelineID), string(run.Kind), string(run.Status), triggerOrDefault(run.Trigger), nullInt(run.PRNumber), nullStr(run.BaseBranch),
		run.Total, run.Changed, run.Errors, run.Warnings, run.Blocking, run.Advisory, boolInt(run.ScanRan), run.DurationMs,
		timeOrNow(run.CreatedAt),
	)
	if err != nil {
		_ = tx.Rollback()
		return schema.NewErrorf(schema.ErrCodeStore, "insert run %s: %v", run.ID, err).WithCause(err)
	}

	for _, is := range run.Issues {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO issues (run_id, severity, code, plugin_id, field, path, message) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.ID, string(is.Severity), is.Code, nullStr(is.PluginID), nullStr(is.Field), nullStr(is.Path), is.Message,
		)
		if err != nil {
			_ = tx.Rollback()
			return schema.NewErrorf(schema.ErrCodeStore, "insert issue for run %s: %v", run.ID, err).WithCause(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

const runColumns = `id, pipeline_id, kind, status, trigger_name, pr_number, base_branch, total_count, changed, errors, warnings, blocking, advisory, scan_ran, duration_ms, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	r := &Run{}
	var (
		kind, status string
		pr           sql.NullInt64
		base         sql.NullString
		pipeline     sql.NullString
		scanRan      int
	)
	if err := row.Scan(&r.ID, &pipeline, &kind, &status, &r.Trigger, &pr, &base, &r.Total, &r.Changed, &r.Errors,
		&r.Warnings, &r.Blocking, &r.Advisory, &scanRan, &r.DurationMs, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Kind = RunKind(kind)
	r.Status = RunStatus(status)
	r.PRNumber = int(pr.Int64)
	r.BaseBranch = base.String
	r.PipelineID = pipeline.String
	r.ScanRan = scanRan != 0
	return r, nil
}

// GetRun returns a run with its issues.
func (s *LibSQLStore) GetRun(ctx context.Context, id string) (*Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, storeNotFound("run", id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, severity, code, plugin_id, field, path, message FROM issues WHERE run_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	r.Issues, err = scanIssues(rows)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListRuns returns runs newest first, without issues.
func (s *LibSQLStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var where []string
	var args []any

	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.PRNumber > 0 {
		where = append(where, "pr_number = ?")
		args = append(args, filter.PRNumber)
	}
	if filter.PipelineID != "" {
		where = append(where, "pipeline_id = ?")
		args = append(args, filter.PipelineID)
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.Since)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// PruneRuns deletes runs created before the cutoff, with their issues.
func (s *LibSQLStore) PruneRuns(ctx context.Context, before time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM issues WHERE run_id IN (SELECT id FROM runs WHERE created_at < ?)`, before); err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE created_at < ?`, before)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Issues ---

// ListIssues returns recorded issues, newest runs first.
func (s *LibSQLStore) ListIssues(ctx context.Context, filter IssueFilter) ([]Issue, error) {
	query := `SELECT i.run_id, i.severity, i.code, i.plugin_id, i.field, i.path, i.message
		FROM issues i JOIN runs r ON r.id = i.run_id`
	var where []string
	var args []any
	if filter.PluginID != "" {
		where = append(where, "i.plugin_id = ?")
		args = append(args, filter.PluginID)
	}
	if filter.Code != "" {
		where = append(where, "i.code = ?")
		args = append(args, filter.Code)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY r.created_at DESC, i.id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIssues(rows)
}

func scanIssues(rows *sql.Rows) ([]Issue, error) {
	var out []Issue
	for rows.Next() {
		var is Issue
		var severity string
		var plugin, field, path sql.NullString
		if err := rows.Scan(&is.RunID, &severity, &is.Code, &plugin, &field, &path, &is.Message); err != nil {
			return nil, err
		}
		is.Severity = schema.ValidationSeverity(severity)
		is.PluginID = plugin.String
		is.Field = field.String
		is.Path = path.String
		out = append(out, is)
	}
	return out, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.CatalogError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func triggerOrDefault(t string) string {
	if t == "" {
		return "cli"
	}
	return t
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Store = (*LibSQLStore)(nil)
