package syncer

import (
	"fmt"

	"github.com/apache/arrow/go/v15/arrow"
	"github.com/apache/arrow/go/v15/arrow/array"
	"github.com/apache/arrow/go/v15/arrow/memory"

	"github.com/fractalaw/fractalaw/internal/schema"
)

// AnnotationsTable is where pulled annotations land in the table store.
const AnnotationsTable = "drrp_annotations"

// PolishedTable is where the drrp-polisher micro-app leaves its output.
const PolishedTable = "polished_drrp"

// AnnotationsSchema is the columnar layout of the drrp_annotations table.
func AnnotationsSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "law_name", Type: arrow.BinaryTypes.String},
		{Name: "provision", Type: arrow.BinaryTypes.String},
		{Name: "drrp_type", Type: arrow.BinaryTypes.String},
		{Name: "source_text", Type: arrow.BinaryTypes.String},
		{Name: "confidence", Type: arrow.PrimitiveTypes.Float32},
		{Name: "scraped_at", Type: arrow.BinaryTypes.String},
	}, nil)
}

// AnnotationsDDL creates the drrp_annotations table if needed.
const AnnotationsDDL = `CREATE TABLE IF NOT EXISTS drrp_annotations (
	law_name VARCHAR, provision VARCHAR, drrp_type VARCHAR,
	source_text VARCHAR, confidence FLOAT, scraped_at VARCHAR)`

// AnnotationsToRecord builds one record batch from pulled annotations,
// ready for a bulk insert.
func AnnotationsToRecord(anns []schema.Annotation) arrow.Record {
	b := array.NewRecordBuilder(memory.DefaultAllocator, AnnotationsSchema())
	defer b.Release()

	for _, a := range anns {
		b.Field(0).(*array.StringBuilder).Append(a.LawName)
		b.Field(1).(*array.StringBuilder).Append(a.Provision)
		b.Field(2).(*array.StringBuilder).Append(a.DrrpType)
		b.Field(3).(*array.StringBuilder).Append(a.SourceText)
		b.Field(4).(*array.Float32Builder).Append(a.Confidence)
		b.Field(5).(*array.StringBuilder).Append(a.ScrapedAt)
	}
	return b.NewRecord()
}

// RecordsToPolished reads polished_drrp query results back into the push
// payload shape. Column order follows the polisher's insert statement.
func RecordsToPolished(recs []arrow.Record) ([]schema.PolishedEntry, error) {
	var out []schema.PolishedEntry
	for _, rec := range recs {
		get := func(name string) (arrow.Array, error) {
			idx := rec.Schema().FieldIndices(name)
			if len(idx) == 0 {
				return nil, fmt.Errorf("polished batch missing %q column", name)
			}
			return rec.Column(idx[0]), nil
		}

		cols := map[string]arrow.Array{}
		for _, name := range []string{
			"law_name", "provision", "drrp_type", "holder", "text",
			"qualifier", "clause_ref", "confidence", "polished_at", "model",
		} {
			col, err := get(name)
			if err != nil {
				return nil, err
			}
			cols[name] = col
		}

		for row := 0; row < int(rec.NumRows()); row++ {
			entry := schema.PolishedEntry{
				LawName:    stringCell(cols["law_name"], row),
				Provision:  stringCell(cols["provision"], row),
				DrrpType:   stringCell(cols["drrp_type"], row),
				Holder:     stringCell(cols["holder"], row),
				Text:       stringCell(cols["text"], row),
				ClauseRef:  stringCell(cols["clause_ref"], row),
				Confidence: floatCell(cols["confidence"], row),
				PolishedAt: stringCell(cols["polished_at"], row),
				Model:      stringCell(cols["model"], row),
			}
			if !cols["qualifier"].IsNull(row) {
				q := stringCell(cols["qualifier"], row)
				entry.Qualifier = &q
			}
			out = append(out, entry)
		}
	}
	return out, nil
}

func stringCell(col arrow.Array, row int) string {
	if col.IsNull(row) {
		return ""
	}
	switch a := col.(type) {
	case *array.String:
		return a.Value(row)
	case *array.LargeString:
		return a.Value(row)
	default:
		return col.ValueStr(row)
	}
}

func floatCell(col arrow.Array, row int) float32 {
	if col.IsNull(row) {
		return 0
	}
	switch a := col.(type) {
	case *array.Float32:
		return a.Value(row)
	case *array.Float64:
		return float32(a.Value(row))
	default:
		return 0
	}
}
