// Package display renders legislation records for the terminal.
//
// RenderCard turns a single-row record batch into a grouped, human-readable
// vertical card with type-aware formatting for scalars and list columns.
package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/apache/arrow/go/v15/arrow"
	"github.com/apache/arrow/go/v15/arrow/array"
)

const maxListItems = 10

// ── Schema section groupings ──

var sections = []struct {
	title   string
	columns []string
}{
	{"Identity", []string{
		"name", "jurisdiction", "source_authority", "source_url",
		"type_code", "type_desc", "type_class", "year", "number",
		"old_style_number", "title", "language",
	}},
	{"Classification", []string{
		"domain", "family", "sub_family", "si_code", "description", "subjects",
	}},
	{"Dates", []string{
		"primary_date", "made_date", "enactment_date", "in_force_date",
		"valid_date", "modified_date", "restrict_start_date",
		"latest_amend_date", "latest_rescind_date",
	}},
	{"Extent", []string{
		"extent_code", "extent_regions", "extent_national", "extent_detail",
		"restrict_extent",
	}},
	{"Document", []string{
		"total_paras", "body_paras", "schedule_paras", "attachment_paras", "images",
	}},
	{"Status", []string{
		"status", "status_source", "status_conflict", "status_conflict_detail",
	}},
	{"Function", []string{
		"function", "is_making", "is_commencing", "is_amending",
		"is_enacting", "is_rescinding",
	}},
	{"Relationships", []string{
		"enacted_by", "enacting", "amending", "amended_by",
		"rescinding", "rescinded_by",
	}},
	{"Amendment stats", []string{
		"self_affects_count", "affects_count", "affected_laws_count",
		"affected_by_count", "affected_by_laws_count",
		"rescinding_laws_count", "rescinded_by_laws_count",
	}},
}

// RenderCard writes a vertical card for the first row of rec. Columns are
// grouped into sections and null cells are skipped; columns outside the
// groupings land in a trailing "Other" section so nothing silently
// disappears.
func RenderCard(w io.Writer, rec arrow.Record) error {
	if rec.NumRows() == 0 {
		return fmt.Errorf("display: empty record")
	}

	schema := rec.Schema()
	colIdx := make(map[string]int, len(schema.Fields()))
	for i, f := range schema.Fields() {
		colIdx[f.Name] = i
	}
	shown := make(map[string]bool, len(colIdx))

	for _, sec := range sections {
		var lines []string
		for _, name := range sec.columns {
			i, ok := colIdx[name]
			if !ok {
				continue
			}
			shown[name] = true
			if rec.Column(i).IsNull(0) {
				continue
			}
			lines = append(lines, fmt.Sprintf("  %-24s %s", name, formatCell(rec.Column(i), 0)))
		}
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintf(w, "%s\n", sec.title)
		for _, l := range lines {
			fmt.Fprintln(w, l)
		}
		fmt.Fprintln(w)
	}

	var other []string
	for _, f := range schema.Fields() {
		if shown[f.Name] || rec.Column(colIdx[f.Name]).IsNull(0) {
			continue
		}
		other = append(other, fmt.Sprintf("  %-24s %s", f.Name, formatCell(rec.Column(colIdx[f.Name]), 0)))
	}
	if len(other) > 0 {
		fmt.Fprintln(w, "Other")
		for _, l := range other {
			fmt.Fprintln(w, l)
		}
	}
	return nil
}

// formatCell renders one cell for the card.
func formatCell(col arrow.Array, row int) string {
	if col.IsNull(row) {
		return ""
	}
	switch a := col.(type) {
	case *array.Boolean:
		if a.Value(row) {
			return "yes"
		}
		return "no"
	case *array.Int32:
		return fmt.Sprintf("%d", a.Value(row))
	case *array.Int64:
		return fmt.Sprintf("%d", a.Value(row))
	case *array.Float32:
		return fmt.Sprintf("%g", a.Value(row))
	case *array.Float64:
		return fmt.Sprintf("%g", a.Value(row))
	case *array.String:
		return a.Value(row)
	case *array.LargeString:
		return a.Value(row)
	case *array.Date32:
		return a.Value(row).ToTime().Format("2006-01-02")
	case *array.Timestamp:
		return a.ValueStr(row)
	case *array.List:
		start, end := a.ValueOffsets(row)
		return formatList(a.ListValues(), start, end)
	case *array.LargeList:
		start, end := a.ValueOffsets(row)
		return formatList(a.ListValues(), start, end)
	default:
		return col.ValueStr(row)
	}
}

func formatList(values arrow.Array, start, end int64) string {
	n := int(end - start)
	shown := n
	if shown > maxListItems {
		shown = maxListItems
	}
	items := make([]string, 0, shown)
	for i := 0; i < shown; i++ {
		items = append(items, formatCell(values, int(start)+i))
	}
	s := strings.Join(items, ", ")
	if n > shown {
		s += fmt.Sprintf(", … (%d more)", n-shown)
	}
	return s
}
