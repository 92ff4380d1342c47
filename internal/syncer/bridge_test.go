package syncer

import (
	"testing"

	"go.uber.org/zap"

	"github.com/fractalaw/fractalaw/internal/schema"
	"github.com/fractalaw/fractalaw/internal/store"
)

func TestAnnotationsRoundTripThroughStore(t *testing.T) {
	s, err := store.Open(zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	if _, err := s.Execute(AnnotationsDDL); err != nil {
		t.Fatalf("create table: %v", err)
	}

	anns := []schema.Annotation{
		{LawName: "UK_ukpga_1974_37", Provision: "s.2(1)", DrrpType: "duty",
			SourceText: "duty of employer", Confidence: 0.85, ScrapedAt: "2026-02-21T10:00:00Z"},
		{LawName: "UK_ukpga_1974_37", Provision: "s.7(a)", DrrpType: "duty",
			SourceText: "duty of employee", Confidence: 0.80, ScrapedAt: "2026-02-21T10:00:00Z"},
	}
	rec := AnnotationsToRecord(anns)
	defer rec.Release()

	n, err := s.InsertBatch(AnnotationsTable, rec)
	if err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}
	if n != 2 {
		t.Errorf("inserted %d rows, want 2", n)
	}

	recs, err := s.Query("SELECT * FROM drrp_annotations ORDER BY provision")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	defer func() {
		for _, r := range recs {
			r.Release()
		}
	}()
	var total int64
	for _, r := range recs {
		total += r.NumRows()
	}
	if total != 2 {
		t.Errorf("read back %d rows, want 2", total)
	}
}

func TestRecordsToPolished(t *testing.T) {
	s, err := store.Open(zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	stmts := []string{
		`CREATE TABLE polished_drrp (
			law_name VARCHAR, provision VARCHAR, drrp_type VARCHAR,
			holder VARCHAR, text VARCHAR, qualifier VARCHAR,
			clause_ref VARCHAR, confidence FLOAT, polished_at VARCHAR, model VARCHAR)`,
		`INSERT INTO polished_drrp VALUES
			('UK_ukpga_1974_37', 's.2(1)', 'duty', 'every employer',
			 'ensure health safety and welfare', 'so far as is reasonably practicable',
			 's.2(1)', 0.95, '2026-02-21T13:00:00Z', 'test-model'),
			('UK_ukpga_1974_37', 's.3', 'duty', 'every employer',
			 'conduct undertaking without risk', NULL,
			 's.3', 0.90, '2026-02-21T13:00:00Z', 'test-model')`,
	}
	for _, stmt := range stmts {
		if _, err := s.Execute(stmt); err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
	}

	recs, err := s.Query("SELECT * FROM polished_drrp ORDER BY provision")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	defer func() {
		for _, r := range recs {
			r.Release()
		}
	}()

	entries, err := RecordsToPolished(recs)
	if err != nil {
		t.Fatalf("RecordsToPolished failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Holder != "every employer" {
		t.Errorf("holder = %q", entries[0].Holder)
	}
	if entries[0].Qualifier == nil || *entries[0].Qualifier != "so far as is reasonably practicable" {
		t.Errorf("qualifier = %v", entries[0].Qualifier)
	}
	if entries[1].Qualifier != nil {
		t.Errorf("null qualifier should stay nil, got %v", *entries[1].Qualifier)
	}
}

func TestRecordsToPolishedMissingColumn(t *testing.T) {
	s, err := store.Open(zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	recs, err := s.Query("SELECT 'x' AS law_name")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	defer func() {
		for _, r := range recs {
			r.Release()
		}
	}()
	if _, err := RecordsToPolished(recs); err == nil {
		t.Error("expected error for missing columns")
	}
}
