package schema

import (
	"github.com/apache/arrow/go/v15/arrow"
)

// EmbeddingDim is the dimensionality of section embeddings
// (all-MiniLM-L6-v2 style sentence models).
const EmbeddingDim = 384

// Legislation returns the schema of the per-law hot-path table: one row per
// law, single-row lookups need no joins. This is the subset of columns the
// display card, the label extractor, and the tests rely on; snapshot imports
// may carry more.
func Legislation() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "name", Type: arrow.BinaryTypes.String},
		{Name: "jurisdiction", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "type_code", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "year", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
		{Name: "number", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "title", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "family", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "sub_family", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "domain", Type: arrow.ListOf(arrow.BinaryTypes.String), Nullable: true},
		{Name: "subjects", Type: arrow.ListOf(arrow.BinaryTypes.String), Nullable: true},
		{Name: "status", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "in_force_date", Type: arrow.FixedWidthTypes.Date32, Nullable: true},
		{Name: "extent_code", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
}

// LawEdges returns the schema of the flattened edge table used for
// vectorised joins and multi-hop graph traversal.
func LawEdges() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "source_name", Type: arrow.BinaryTypes.String},
		{Name: "target_name", Type: arrow.BinaryTypes.String},
		{Name: "edge_type", Type: arrow.BinaryTypes.String},
		{Name: "provision", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "sort_key", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
}

// LawSections returns the schema of the per-section text table consumed by
// the embedding pipeline: structural units of legal text plus the embedding
// column populated by the pipeline.
func LawSections() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "law_name", Type: arrow.BinaryTypes.String},
		{Name: "provision", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "sort_key", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "text", Type: arrow.BinaryTypes.String},
		{Name: "embedding", Type: arrow.FixedSizeListOf(EmbeddingDim, arrow.PrimitiveTypes.Float32), Nullable: true},
		{Name: "embedding_model", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "embedded_at", Type: arrow.FixedWidthTypes.Timestamp_ns, Nullable: true},
	}, nil)
}

// AuditLog returns the schema of the immutable audit log table.
func AuditLog() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "entry_id", Type: arrow.PrimitiveTypes.Uint64},
		{Name: "timestamp", Type: arrow.FixedWidthTypes.Timestamp_ns},
		{Name: "event_type", Type: arrow.BinaryTypes.String},
		{Name: "resource", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "detail", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
}
