// Package store persists run history and REPL input history in SQLite.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/holla2040/loxr/internal/script/result"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// SQLite requires single-connection mode for :memory: databases
	// (each pool connection gets its own in-memory DB otherwise).
	// For file-based DBs this also avoids "database is locked" errors.
	db.SetMaxOpenConns(1)

	schema := `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    status TEXT NOT NULL,
    exit_code INTEGER NOT NULL,
    output TEXT DEFAULT '',
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL,
    duration_ms INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS diagnostics (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES runs(id),
    phase TEXT NOT NULL,
    line INTEGER NOT NULL,
    col INTEGER DEFAULT 0,
    lexeme TEXT DEFAULT '',
    severity TEXT NOT NULL,
    message TEXT NOT NULL,
    context TEXT DEFAULT ''
);

CREATE TABLE IF NOT EXISTS repl_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    line TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_diagnostics_run ON diagnostics(run_id);`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by packages that need direct access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

// RecordRun stores a finished run and its diagnostics in one transaction.
func (s *Store) RecordRun(r *result.RunReport) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (id, name, status, exit_code, output, started_at, finished_at, duration_ms) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Name, r.Status, r.ExitCode, r.Output,
		r.StartTime.UTC().Format(time.RFC3339Nano), r.EndTime.UTC().Format(time.RFC3339Nano), r.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.RunID, err)
	}

	for _, d := range r.Diagnostics {
		_, err := tx.Exec(
			`INSERT INTO diagnostics (run_id, phase, line, col, lexeme, severity, message, context) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RunID, d.Phase, d.Line, d.Column, d.Lexeme, d.Severity, d.Message, d.Context,
		)
		if err != nil {
			return fmt.Errorf("insert diagnostic for run %s: %w", r.RunID, err)
		}
	}
	return tx.Commit()
}

// GetRun returns the run with the given ID, or nil if there is none.
func (s *Store) GetRun(id string) (*result.RunReport, error) {
	var r result.RunReport
	var startedAt, finishedAt string
	err := s.db.QueryRow(
		`SELECT id, name, status, exit_code, output, started_at, finished_at, duration_ms
		 FROM runs WHERE id = ?`, id,
	).Scan(&r.RunID, &r.Name, &r.Status, &r.ExitCode, &r.Output, &startedAt, &finishedAt, &r.DurationMs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := parseTimes(&r, startedAt, finishedAt); err != nil {
		return nil, err
	}
	r.Diagnostics, err = s.queryDiagnostics(id)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRuns returns up to limit runs, newest first. A limit of zero or less
// returns every run.
func (s *Store) ListRuns(limit int) ([]result.RunReport, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT id, name, status, exit_code, output, started_at, finished_at, duration_ms
		 FROM runs ORDER BY started_at DESC, _rowid_ DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}

	runs := []result.RunReport{}
	for rows.Next() {
		var r result.RunReport
		var startedAt, finishedAt string
		if err := rows.Scan(&r.RunID, &r.Name, &r.Status, &r.ExitCode, &r.Output, &startedAt, &finishedAt, &r.DurationMs); err != nil {
			rows.Close()
			return nil, err
		}
		if err := parseTimes(&r, startedAt, finishedAt); err != nil {
			rows.Close()
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Diagnostics are loaded after the cursor is closed; the pool holds a
	// single connection.
	for i := range runs {
		runs[i].Diagnostics, err = s.queryDiagnostics(runs[i].RunID)
		if err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// DeleteRun removes a run and its diagnostics.
func (s *Store) DeleteRun(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM diagnostics WHERE run_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM runs WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) queryDiagnostics(runID string) ([]result.Diagnostic, error) {
	rows, err := s.db.Query(
		`SELECT phase, line, col, lexeme, severity, message, context FROM diagnostics WHERE run_id = ? ORDER BY id ASC`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var diags []result.Diagnostic
	for rows.Next() {
		var d result.Diagnostic
		if err := rows.Scan(&d.Phase, &d.Line, &d.Column, &d.Lexeme, &d.Severity, &d.Message, &d.Context); err != nil {
			return nil, err
		}
		diags = append(diags, d)
	}
	return diags, rows.Err()
}

func parseTimes(r *result.RunReport, startedAt, finishedAt string) error {
	var err error
	r.StartTime, err = time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return err
	}
	r.EndTime, err = time.Parse(time.RFC3339Nano, finishedAt)
	return err
}

// ---------------------------------------------------------------------------
// REPL history
// ---------------------------------------------------------------------------

// AppendHistory records one line entered at the REPL.
func (s *Store) AppendHistory(line string) error {
	_, err := s.db.Exec(
		`INSERT INTO repl_history (line, created_at) VALUES (?, ?)`,
		line, time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// History returns the most recent limit lines, oldest first. A limit of
// zero or less returns every line.
func (s *Store) History(limit int) ([]string, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT line FROM (SELECT id, line FROM repl_history ORDER BY id DESC LIMIT ?) ORDER BY id ASC`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := []string{}
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// TrimHistory deletes all but the newest keep lines.
func (s *Store) TrimHistory(keep int) error {
	_, err := s.db.Exec(
		`DELETE FROM repl_history WHERE id NOT IN (SELECT id FROM repl_history ORDER BY id DESC LIMIT ?)`,
		keep,
	)
	return err
}
