// Package store is the DuckDB storage layer for the legislation hot path and
// analytical path.
//
// The hot path (legislation table) stores one row per law so single-row
// lookups need no joins. The analytical path (law_edges table) is a flattened
// edge table for vectorised joins and multi-hop graph traversal. Query
// results come back as Arrow record batches so they can cross the sandbox
// boundary through the codec without another conversion.
//
// A Store supports both in-memory (ephemeral) and file-backed (persistent)
// modes. Operations on one handle are mutually exclusive; a handle lent to a
// sandbox execution belongs to that execution until the run ends.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/apache/arrow/go/v15/arrow"
	duckdb "github.com/duckdb/duckdb-go/v2"
	"go.uber.org/zap"
)

var (
	// ErrNoResults reports a query that returned no rows where one was required.
	ErrNoResults = errors.New("store: no results for query")
	// ErrSnapshotNotFound reports a missing parquet snapshot file.
	ErrSnapshotNotFound = errors.New("store: snapshot file not found")
	// ErrInvalidIdentifier reports a table or column name outside [A-Za-z0-9_].
	ErrInvalidIdentifier = errors.New("store: invalid identifier")
	// ErrUnknownTable reports an insert into a table that does not exist.
	ErrUnknownTable = errors.New("store: unknown table")
	// ErrSchemaMismatch reports a batch whose columns cannot be inserted into
	// the target table.
	ErrSchemaMismatch = errors.New("store: schema mismatch")
)

// identRe is the full identifier rule: alphanumeric plus underscore, not
// starting with a digit. Checked before any statement text is composed.
var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store owns one DuckDB connection. All operations serialise on an internal
// mutex; see the package comment for the handle-ownership rules.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// Open opens an in-memory DuckDB database.
func Open(logger *zap.Logger) (*Store, error) {
	return open("", logger)
}

// OpenPersistent opens or creates a file-backed DuckDB database at path.
//
// If the file already exists its tables are available immediately without
// re-importing from parquet; use HasTables to check whether import is needed.
func OpenPersistent(path string, logger *zap.Logger) (*Store, error) {
	return open(path, logger)
}

func open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	connector, err := duckdb.NewConnector(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open duckdb %q: %w", path, err)
	}
	db := sql.OpenDB(connector)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open duckdb %q: %w", path, err)
	}
	return &Store{db: db, path: path, logger: logger}, nil
}

// Path returns the database file path; empty for in-memory stores.
func (s *Store) Path() string {
	return s.path
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// HasTables reports whether the legislation and law_edges tables exist.
// False on a fresh store tells the loader to import.
func (s *Store) HasTables() bool {
	_, err1 := s.LegislationCount()
	_, err2 := s.LawEdgesCount()
	return err1 == nil && err2 == nil
}

// Execute runs a statement and returns a coarse row count (0 for DDL).
func (s *Store) Execute(stmt string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(stmt)
	if err != nil {
		return 0, fmt.Errorf("execute: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// Query runs a statement and returns the result as Arrow record batches.
// The caller owns the records and must Release them.
func (s *Store) Query(stmt string) ([]arrow.Record, error) {
	return s.queryRecords(stmt)
}

// InsertBatch appends one Arrow record batch to the named table, returning
// the row count. The table name and every column name are validated against
// the identifier rule before any statement is composed.
func (s *Store) InsertBatch(table string, rec arrow.Record) (int64, error) {
	if !identRe.MatchString(table) {
		return 0, fmt.Errorf("%w: table %q", ErrInvalidIdentifier, table)
	}
	schema := rec.Schema()
	for _, f := range schema.Fields() {
		if !identRe.MatchString(f.Name) {
			return 0, fmt.Errorf("%w: column %q", ErrInvalidIdentifier, f.Name)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.tableExists(table)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	return s.insertLocked(table, rec)
}

func (s *Store) tableExists(table string) (bool, error) {
	var n int
	err := s.db.QueryRow(
		"SELECT count(*) FROM information_schema.tables WHERE table_name = ?", table,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("probe table %q: %w", table, err)
	}
	return n > 0, nil
}

// ── Counts ──

// LegislationCount returns the number of rows in the legislation table.
func (s *Store) LegislationCount() (int64, error) {
	return s.countTable("legislation")
}

// LawEdgesCount returns the number of rows in the law_edges table.
func (s *Store) LawEdgesCount() (int64, error) {
	return s.countTable("law_edges")
}

func (s *Store) countTable(table string) (int64, error) {
	if !identRe.MatchString(table) {
		return 0, fmt.Errorf("%w: table %q", ErrInvalidIdentifier, table)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	if err := s.db.QueryRow("SELECT count(*) FROM " + table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// ── Hot path ──

// GetLegislation fetches a single legislation record by exact name match.
func (s *Store) GetLegislation(name string) (arrow.Record, error) {
	recs, err := s.queryRecords("SELECT * FROM legislation WHERE name = ?", name)
	if err != nil {
		return nil, err
	}
	for i, r := range recs {
		if r.NumRows() > 0 {
			for j, other := range recs {
				if j != i {
					other.Release()
				}
			}
			return r, nil
		}
	}
	for _, r := range recs {
		r.Release()
	}
	return nil, ErrNoResults
}

// ── Analytical path ──

// EdgesForLaw returns all edges where the named law is source or target.
func (s *Store) EdgesForLaw(name string) ([]arrow.Record, error) {
	return s.queryRecords(
		"SELECT * FROM law_edges WHERE source_name = ? OR target_name = ?", name, name)
}

// LawsWithinHops finds all laws reachable within maxHops of the named law.
// Rows come back as (law_name VARCHAR, hop INTEGER) ordered by hop distance.
func (s *Store) LawsWithinHops(name string, maxHops uint32) ([]arrow.Record, error) {
	stmt := fmt.Sprintf(`WITH RECURSIVE reachable(law_name, hop) AS (
		SELECT ?::VARCHAR, 0
		UNION
		SELECT CASE
			WHEN e.source_name = r.law_name THEN e.target_name
			ELSE e.source_name
		END,
		r.hop + 1
		FROM reachable r
		JOIN law_edges e ON e.source_name = r.law_name OR e.target_name = r.law_name
		WHERE r.hop < %d
	)
	SELECT law_name, min(hop) AS hop
	FROM reachable
	GROUP BY law_name
	ORDER BY hop, law_name`, maxHops)
	return s.queryRecords(stmt, name)
}
