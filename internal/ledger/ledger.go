// Package ledger keeps a local history of micro-app executions in SQLite.
// Every run is recorded with its outcome, fuel accounting, and full audit
// trail so past executions stay inspectable after the process exits.
package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Ledger is the SQLite-backed run history.
type Ledger struct {
	db   *sql.DB
	path string
}

// Run is one recorded execution.
type Run struct {
	ID           string
	Module       string
	OK           bool
	Outcome      string
	FuelConsumed uint64
	StartedAt    time.Time
	FinishedAt   time.Time
}

// AuditEvent is one recorded audit record of a run.
type AuditEvent struct {
	Seq      int
	Event    string
	Resource string
	Detail   string
	At       time.Time
}

// Open opens (or creates) the ledger database at the given path.
func Open(path string) (*Ledger, error) {
	// WAL mode for concurrent reads while a run is being recorded.
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping ledger: %w", err)
	}

	l := &Ledger{db: db, path: path}
	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init ledger schema: %w", err)
	}
	return l, nil
}

// Path returns the database file path.
func (l *Ledger) Path() string {
	return l.path
}

// Close shuts the ledger down, checkpointing the WAL first.
func (l *Ledger) Close() error {
	_, _ = l.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return l.db.Close()
}

func (l *Ledger) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		module TEXT NOT NULL,
		ok INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		fuel_consumed INTEGER NOT NULL DEFAULT 0,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);

	CREATE TABLE IF NOT EXISTS run_audit (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		event TEXT NOT NULL,
		resource TEXT NOT NULL,
		detail TEXT,
		at INTEGER NOT NULL,

		PRIMARY KEY (run_id, seq),
		FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
	);
	`
	_, err := l.db.Exec(schema)
	return err
}

// RecordRun stores one execution and its audit trail, returning the new
// run id.
func (l *Ledger) RecordRun(run Run, events []AuditEvent) (string, error) {
	id := run.ID
	if id == "" {
		id = uuid.New().String()
	}

	tx, err := l.db.Begin()
	if err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}
	defer tx.Rollback()

	okInt := 0
	if run.OK {
		okInt = 1
	}
	_, err = tx.Exec(`
		INSERT INTO runs (run_id, module, ok, outcome, fuel_consumed, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, run.Module, okInt, run.Outcome, int64(run.FuelConsumed),
		run.StartedAt.UnixNano(), run.FinishedAt.UnixNano())
	if err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}

	for i, ev := range events {
		_, err = tx.Exec(`
			INSERT INTO run_audit (run_id, seq, event, resource, detail, at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, id, i, ev.Event, ev.Resource, ev.Detail, ev.At.UnixNano())
		if err != nil {
			return "", fmt.Errorf("record audit event %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}
	return id, nil
}

// RecentRuns returns the most recent n runs, newest first.
func (l *Ledger) RecentRuns(n int) ([]Run, error) {
	rows, err := l.db.Query(`
		SELECT run_id, module, ok, outcome, fuel_consumed, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var ok int
		var fuel, started, finished int64
		if err := rows.Scan(&r.ID, &r.Module, &ok, &r.Outcome, &fuel, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.OK = ok != 0
		r.FuelConsumed = uint64(fuel)
		r.StartedAt = time.Unix(0, started)
		r.FinishedAt = time.Unix(0, finished)
		out = append(out, r)
	}
	return out, rows.Err()
}

// AuditFor returns the audit trail of one run in append order.
func (l *Ledger) AuditFor(runID string) ([]AuditEvent, error) {
	rows, err := l.db.Query(`
		SELECT seq, event, resource, detail, at
		FROM run_audit WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("audit for %s: %w", runID, err)
	}
	defer rows.Close()

	var out []AuditEvent
	for rows.Next() {
		var ev AuditEvent
		var detail sql.NullString
		var at int64
		if err := rows.Scan(&ev.Seq, &ev.Event, &ev.Resource, &detail, &at); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		ev.Detail = detail.String
		ev.At = time.Unix(0, at)
		out = append(out, ev)
	}
	return out, rows.Err()
}
