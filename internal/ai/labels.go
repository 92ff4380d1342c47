// Package ai holds the inference-adjacent analytics: ground-truth label
// extraction, the centroid classifier, and the embedding client used by the
// offline pipeline.
package ai

import (
	"fmt"

	"github.com/apache/arrow/go/v15/arrow"
	"github.com/apache/arrow/go/v15/arrow/array"
)

// ExcludeFamilies lists family labels excluded from centroid computation
// (noise/placeholder values).
var ExcludeFamilies = []string{"X: No Family", "_todo"}

// LabelSet holds ground-truth classification labels keyed by law name.
// Family and sub_family are single-select; domain and subjects are
// multi-select. Built from legislation-table record batches.
type LabelSet struct {
	// LawFamily maps law_name to family (single-select).
	LawFamily map[string]string
	// LawSubFamily maps law_name to sub_family (single-select).
	LawSubFamily map[string]string
	// LawDomain maps law_name to domain values (multi-select).
	LawDomain map[string][]string
	// LawSubjects maps law_name to subject tags (multi-select).
	LawSubjects map[string][]string
}

// LabelSummary holds summary statistics for a LabelSet.
type LabelSummary struct {
	TotalLaws           int
	WithFamily          int
	WithSubFamily       int
	WithDomain          int
	WithSubjects        int
	DistinctFamilies    int
	DistinctSubFamilies int
	DistinctDomains     int
	DistinctSubjects    int
}

// LabelSetFromLegislation builds a LabelSet from legislation batches.
// Expects columns name, domain, family, sub_family, subjects; all but name
// are optional.
func LabelSetFromLegislation(batches []arrow.Record) (*LabelSet, error) {
	ls := &LabelSet{
		LawFamily:    make(map[string]string),
		LawSubFamily: make(map[string]string),
		LawDomain:    make(map[string][]string),
		LawSubjects:  make(map[string][]string),
	}

	for _, batch := range batches {
		nameCol := columnByName(batch, "name")
		if nameCol == nil {
			return nil, fmt.Errorf("missing 'name' column")
		}
		familyCol := columnByName(batch, "family")
		subFamilyCol := columnByName(batch, "sub_family")
		domainCol := columnByName(batch, "domain")
		subjectsCol := columnByName(batch, "subjects")

		for row := 0; row < int(batch.NumRows()); row++ {
			name, ok := stringAt(nameCol, row)
			if !ok {
				return nil, fmt.Errorf("null name at row %d", row)
			}

			if v, ok := stringAt(familyCol, row); ok {
				ls.LawFamily[name] = v
			}
			if v, ok := stringAt(subFamilyCol, row); ok {
				ls.LawSubFamily[name] = v
			}
			if vs := stringListAt(domainCol, row); len(vs) > 0 {
				ls.LawDomain[name] = vs
			}
			if vs := stringListAt(subjectsCol, row); len(vs) > 0 {
				ls.LawSubjects[name] = vs
			}
		}
	}

	return ls, nil
}

// TrainableLaws iterates (law, family) pairs whose family is not in the
// exclusion list.
func (ls *LabelSet) TrainableLaws() map[string]string {
	out := make(map[string]string, len(ls.LawFamily))
	for name, family := range ls.LawFamily {
		if !excluded(family) {
			out[name] = family
		}
	}
	return out
}

// Summary computes summary statistics.
func (ls *LabelSet) Summary() LabelSummary {
	all := make(map[string]struct{})
	for k := range ls.LawFamily {
		all[k] = struct{}{}
	}
	for k := range ls.LawSubFamily {
		all[k] = struct{}{}
	}
	for k := range ls.LawDomain {
		all[k] = struct{}{}
	}
	for k := range ls.LawSubjects {
		all[k] = struct{}{}
	}

	families := make(map[string]struct{})
	for _, v := range ls.LawFamily {
		families[v] = struct{}{}
	}
	subFamilies := make(map[string]struct{})
	for _, v := range ls.LawSubFamily {
		subFamilies[v] = struct{}{}
	}
	domains := make(map[string]struct{})
	for _, vs := range ls.LawDomain {
		for _, v := range vs {
			domains[v] = struct{}{}
		}
	}
	subjects := make(map[string]struct{})
	for _, vs := range ls.LawSubjects {
		for _, v := range vs {
			subjects[v] = struct{}{}
		}
	}

	return LabelSummary{
		TotalLaws:           len(all),
		WithFamily:          len(ls.LawFamily),
		WithSubFamily:       len(ls.LawSubFamily),
		WithDomain:          len(ls.LawDomain),
		WithSubjects:        len(ls.LawSubjects),
		DistinctFamilies:    len(families),
		DistinctSubFamilies: len(subFamilies),
		DistinctDomains:     len(domains),
		DistinctSubjects:    len(subjects),
	}
}

func excluded(family string) bool {
	for _, f := range ExcludeFamilies {
		if f == family {
			return true
		}
	}
	return false
}

func columnByName(batch arrow.Record, name string) arrow.Array {
	idx := batch.Schema().FieldIndices(name)
	if len(idx) == 0 {
		return nil
	}
	return batch.Column(idx[0])
}

// stringAt reads a utf8 or large_utf8 cell.
func stringAt(col arrow.Array, row int) (string, bool) {
	if col == nil || col.IsNull(row) {
		return "", false
	}
	switch a := col.(type) {
	case *array.String:
		return a.Value(row), true
	case *array.LargeString:
		return a.Value(row), true
	default:
		return "", false
	}
}

// stringListAt reads a list<utf8> or large_list<utf8> cell.
func stringListAt(col arrow.Array, row int) []string {
	if col == nil || col.IsNull(row) {
		return nil
	}

	var values arrow.Array
	var start, end int64
	switch a := col.(type) {
	case *array.List:
		values = a.ListValues()
		s, e := a.ValueOffsets(row)
		start, end = s, e
	case *array.LargeList:
		values = a.ListValues()
		s, e := a.ValueOffsets(row)
		start, end = s, e
	default:
		return nil
	}

	out := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		if s, ok := stringAt(values, int(i)); ok {
			out = append(out, s)
		}
	}
	return out
}
