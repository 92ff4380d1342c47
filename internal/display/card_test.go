package display

import (
	"bytes"
	"strings"
	"testing"

	"github.com/apache/arrow/go/v15/arrow"
	"github.com/apache/arrow/go/v15/arrow/array"
	"github.com/apache/arrow/go/v15/arrow/memory"
)

func cardRecord(t *testing.T) arrow.Record {
	t.Helper()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "name", Type: arrow.BinaryTypes.String},
		{Name: "title", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "year", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
		{Name: "family", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "is_amending", Type: arrow.FixedWidthTypes.Boolean, Nullable: true},
		{Name: "subjects", Type: arrow.ListOf(arrow.BinaryTypes.String), Nullable: true},
		{Name: "custom_metric", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	}, nil)

	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()
	b.Field(0).(*array.StringBuilder).Append("UK_ukpga_1974_37")
	b.Field(1).(*array.StringBuilder).Append("Health and Safety at Work etc. Act 1974")
	b.Field(2).(*array.Int32Builder).Append(1974)
	b.Field(3).(*array.StringBuilder).AppendNull()
	b.Field(4).(*array.BooleanBuilder).Append(true)
	lb := b.Field(5).(*array.ListBuilder)
	vb := lb.ValueBuilder().(*array.StringBuilder)
	lb.Append(true)
	for i := 0; i < 12; i++ {
		vb.Append("subject")
	}
	b.Field(6).(*array.Float64Builder).Append(0.5)
	return b.NewRecord()
}

func TestRenderCardSectionsAndValues(t *testing.T) {
	rec := cardRecord(t)
	defer rec.Release()

	var buf bytes.Buffer
	if err := RenderCard(&buf, rec); err != nil {
		t.Fatalf("RenderCard failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"Identity", "UK_ukpga_1974_37", "1974",
		"Function", "yes",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	// Null family is skipped.
	if strings.Contains(out, "family") {
		t.Errorf("null column should be skipped:\n%s", out)
	}
}

func TestRenderCardCapsListItems(t *testing.T) {
	rec := cardRecord(t)
	defer rec.Release()

	var buf bytes.Buffer
	if err := RenderCard(&buf, rec); err != nil {
		t.Fatalf("RenderCard failed: %v", err)
	}
	if !strings.Contains(buf.String(), "(2 more)") {
		t.Errorf("long list should be truncated with a remainder note:\n%s", buf.String())
	}
}

func TestRenderCardUngroupedColumnsLandInOther(t *testing.T) {
	rec := cardRecord(t)
	defer rec.Release()

	var buf bytes.Buffer
	if err := RenderCard(&buf, rec); err != nil {
		t.Fatalf("RenderCard failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Other") || !strings.Contains(out, "custom_metric") {
		t.Errorf("ungrouped column should appear under Other:\n%s", out)
	}
}

func TestRenderCardEmptyRecord(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{{Name: "name", Type: arrow.BinaryTypes.String}}, nil)
	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	rec := b.NewRecord()
	b.Release()
	defer rec.Release()

	var buf bytes.Buffer
	if err := RenderCard(&buf, rec); err == nil {
		t.Error("expected error for zero-row record")
	}
}
