package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// LoadLegislation loads legislation.parquet into the legislation table,
// replacing any existing contents.
func (s *Store) LoadLegislation(path string) error {
	return s.loadSnapshot("legislation", path)
}

// LoadLawEdges loads law_edges.parquet into the law_edges table.
func (s *Store) LoadLawEdges(path string) error {
	return s.loadSnapshot("law_edges", path)
}

// LoadAll loads both tables from a data directory containing
// legislation.parquet and law_edges.parquet.
func (s *Store) LoadAll(dataDir string) error {
	if err := s.LoadLegislation(filepath.Join(dataDir, "legislation.parquet")); err != nil {
		return err
	}
	return s.LoadLawEdges(filepath.Join(dataDir, "law_edges.parquet"))
}

func (s *Store) loadSnapshot(table, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s", ErrSnapshotNotFound, path)
	}
	// Paths come from the CLI, not from guests, but single quotes still need
	// doubling before landing in the statement.
	escaped := strings.ReplaceAll(path, "'", "''")
	stmt := fmt.Sprintf(
		"CREATE OR REPLACE TABLE %s AS SELECT * FROM read_parquet('%s')", table, escaped)
	if _, err := s.Execute(stmt); err != nil {
		return fmt.Errorf("load %s: %w", table, err)
	}
	count, err := s.countTable(table)
	if err != nil {
		return err
	}
	s.logger.Info("loaded snapshot table",
		zap.String("table", table),
		zap.Int64("count", count))
	return nil
}
