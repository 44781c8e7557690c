// Package history persists the outcome of repository scans in SQLite.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNoHistory indicates a repository has never been scanned.
var ErrNoHistory = errors.New("no scan history")

// Trigger values.
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
	TriggerStartup   = "startup"
)

// Problem is a persisted per-file scan problem.
type Problem struct {
	Path     string `json:"path"`
	Consumer string `json:"consumer,omitempty"`
	Message  string `json:"message"`
}

// Scan is one recorded scan run.
type Scan struct {
	ID            string    `json:"id"`
	RepositoryID  string    `json:"repository_id"`
	TriggeredBy   string    `json:"triggered_by"`
	Incremental   bool      `json:"incremental"`
	State         string    `json:"state"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at,omitzero"`
	FilesIncluded int64     `json:"files_included"`
	FilesConsumed int64     `json:"files_consumed"`
	FilesSkipped  int64     `json:"files_skipped"`
	ProblemCount  int       `json:"problem_count"`
	Error         string    `json:"error,omitempty"`
	Problems      []Problem `json:"problems,omitempty"`
}

// Store records scans in a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// Single writer prevents SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("pragma %q: %w", p, err)
		}
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("goose set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Record stores s and its problems. An empty ID is replaced by a new UUID, which
// is returned.
func (s *Store) Record(ctx context.Context, scan Scan) (string, error) {
	if scan.ID == "" {
		scan.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO scan_history (id, repository_id, triggered_by, incremental, state, started_at, finished_at,
		                          files_included, files_consumed, files_skipped, problem_count, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		scan.ID, scan.RepositoryID, scan.TriggeredBy, scan.Incremental, scan.State,
		millis(scan.StartedAt), millis(scan.FinishedAt),
		scan.FilesIncluded, scan.FilesConsumed, scan.FilesSkipped, len(scan.Problems), scan.Error)
	if err != nil {
		return "", fmt.Errorf("insert scan: %w", err)
	}

	if len(scan.Problems) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO scan_problems (scan_id, seq, path, consumer, message) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return "", fmt.Errorf("prepare problems: %w", err)
		}
		defer func() { _ = stmt.Close() }()
		for i, p := range scan.Problems {
			if _, err := stmt.ExecContext(ctx, scan.ID, i, p.Path, p.Consumer, p.Message); err != nil {
				return "", fmt.Errorf("insert problem: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return scan.ID, nil
}

// Recent returns up to limit scans of a repository, newest first, without problems.
func (s *Store) Recent(ctx context.Context, repoID string, limit int) ([]Scan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, repository_id, triggered_by, incremental, state, started_at, finished_at,
		       files_included, files_consumed, files_skipped, problem_count, error
		FROM scan_history
		WHERE repository_id = ?
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`, repoID, limit)
	if err != nil {
		return nil, fmt.Errorf("query scans: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var scans []Scan
	for rows.Next() {
		var sc Scan
		var started, finished int64
		if err := rows.Scan(&sc.ID, &sc.RepositoryID, &sc.TriggeredBy, &sc.Incremental, &sc.State,
			&started, &finished, &sc.FilesIncluded, &sc.FilesConsumed, &sc.FilesSkipped,
			&sc.ProblemCount, &sc.Error); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		sc.StartedAt = fromMillis(started)
		sc.FinishedAt = fromMillis(finished)
		scans = append(scans, sc)
	}
	return scans, rows.Err()
}

// Last returns the newest scan of a repository with its problems.
func (s *Store) Last(ctx context.Context, repoID string) (Scan, error) {
	scans, err := s.Recent(ctx, repoID, 1)
	if err != nil {
		return Scan{}, err
	}
	if len(scans) == 0 {
		return Scan{}, fmt.Errorf("%w for repository %q", ErrNoHistory, repoID)
	}
	last := scans[0]
	last.Problems, err = s.Problems(ctx, last.ID)
	return last, err
}

// Problems returns the problems recorded for a scan in report order.
func (s *Store) Problems(ctx context.Context, scanID string) ([]Problem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, consumer, message FROM scan_problems WHERE scan_id = ? ORDER BY seq`, scanID)
	if err != nil {
		return nil, fmt.Errorf("query problems: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var problems []Problem
	for rows.Next() {
		var p Problem
		if err := rows.Scan(&p.Path, &p.Consumer, &p.Message); err != nil {
			return nil, fmt.Errorf("scan problem: %w", err)
		}
		problems = append(problems, p)
	}
	return problems, rows.Err()
}

// Prune keeps the newest keep scans of a repository and deletes the rest.
// keep <= 0 keeps everything.
func (s *Store) Prune(ctx context.Context, repoID string, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM scan_history
		WHERE repository_id = ?
		  AND id NOT IN (
		      SELECT id FROM scan_history
		      WHERE repository_id = ?
		      ORDER BY started_at DESC, rowid DESC
		      LIMIT ?)`, repoID, repoID, keep)
	if err != nil {
		return 0, fmt.Errorf("prune scans: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
