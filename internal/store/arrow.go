package store

import (
	"fmt"
	"strings"

	"github.com/apache/arrow/go/v15/arrow"
	"github.com/apache/arrow/go/v15/arrow/array"
	"github.com/apache/arrow/go/v15/arrow/memory"
)

// queryBatchRows caps how many rows go into one record batch when rebuilding
// query results as Arrow.
const queryBatchRows = 1024

// colKind is the scan/coerce strategy chosen per result column from the
// driver's reported database type.
type colKind int

const (
	kindBool colKind = iota
	kindInt32
	kindInt64
	kindFloat32
	kindFloat64
	kindString
	kindStringList
	kindOther // stringified fallback
)

func kindFor(dbType string) (colKind, arrow.DataType) {
	switch strings.ToUpper(dbType) {
	case "BOOLEAN":
		return kindBool, arrow.FixedWidthTypes.Boolean
	case "TINYINT", "SMALLINT", "INTEGER":
		return kindInt32, arrow.PrimitiveTypes.Int32
	case "BIGINT", "UBIGINT", "UINTEGER":
		return kindInt64, arrow.PrimitiveTypes.Int64
	case "FLOAT", "REAL":
		return kindFloat32, arrow.PrimitiveTypes.Float32
	case "DOUBLE":
		return kindFloat64, arrow.PrimitiveTypes.Float64
	case "VARCHAR", "UUID":
		return kindString, arrow.BinaryTypes.String
	case "VARCHAR[]":
		return kindStringList, arrow.ListOf(arrow.BinaryTypes.String)
	default:
		return kindOther, arrow.BinaryTypes.String
	}
}

// queryRecords runs a statement and rebuilds the result set as Arrow record
// batches with the codec's canonical logical types.
func (s *Store) queryRecords(stmt string, args ...any) ([]arrow.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}

	kinds := make([]colKind, len(colTypes))
	fields := make([]arrow.Field, len(colTypes))
	for i, ct := range colTypes {
		kind, dt := kindFor(ct.DatabaseTypeName())
		kinds[i] = kind
		fields[i] = arrow.Field{Name: ct.Name(), Type: dt, Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()

	var out []arrow.Record
	flush := func() {
		rec := b.NewRecord()
		out = append(out, rec)
	}

	pending := 0
	dest := make([]any, len(colTypes))
	vals := make([]any, len(colTypes))
	for i := range vals {
		dest[i] = &vals[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			releaseAll(out)
			return nil, fmt.Errorf("query scan: %w", err)
		}
		for i, v := range vals {
			if err := appendValue(b.Field(i), kinds[i], v); err != nil {
				releaseAll(out)
				return nil, err
			}
		}
		pending++
		if pending == queryBatchRows {
			flush()
			pending = 0
		}
	}
	if err := rows.Err(); err != nil {
		releaseAll(out)
		return nil, fmt.Errorf("query rows: %w", err)
	}
	if pending > 0 || len(out) == 0 {
		flush()
	}
	return out, nil
}

func releaseAll(recs []arrow.Record) {
	for _, r := range recs {
		r.Release()
	}
}

func appendValue(fb array.Builder, kind colKind, v any) error {
	if v == nil {
		fb.AppendNull()
		return nil
	}
	switch kind {
	case kindBool:
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("query: unexpected %T for boolean column", v)
		}
		fb.(*array.BooleanBuilder).Append(b)
	case kindInt32:
		switch n := v.(type) {
		case int8:
			fb.(*array.Int32Builder).Append(int32(n))
		case int16:
			fb.(*array.Int32Builder).Append(int32(n))
		case int32:
			fb.(*array.Int32Builder).Append(n)
		case int64:
			fb.(*array.Int32Builder).Append(int32(n))
		default:
			return fmt.Errorf("query: unexpected %T for integer column", v)
		}
	case kindInt64:
		switch n := v.(type) {
		case int32:
			fb.(*array.Int64Builder).Append(int64(n))
		case int64:
			fb.(*array.Int64Builder).Append(n)
		case uint32:
			fb.(*array.Int64Builder).Append(int64(n))
		case uint64:
			fb.(*array.Int64Builder).Append(int64(n))
		default:
			return fmt.Errorf("query: unexpected %T for bigint column", v)
		}
	case kindFloat32:
		switch f := v.(type) {
		case float32:
			fb.(*array.Float32Builder).Append(f)
		case float64:
			fb.(*array.Float32Builder).Append(float32(f))
		default:
			return fmt.Errorf("query: unexpected %T for float column", v)
		}
	case kindFloat64:
		switch f := v.(type) {
		case float32:
			fb.(*array.Float64Builder).Append(float64(f))
		case float64:
			fb.(*array.Float64Builder).Append(f)
		default:
			return fmt.Errorf("query: unexpected %T for double column", v)
		}
	case kindString:
		s, ok := v.(string)
		if !ok {
			s = fmt.Sprint(v)
		}
		fb.(*array.StringBuilder).Append(s)
	case kindStringList:
		lb := fb.(*array.ListBuilder)
		vb := lb.ValueBuilder().(*array.StringBuilder)
		items, ok := v.([]any)
		if !ok {
			return fmt.Errorf("query: unexpected %T for list column", v)
		}
		lb.Append(true)
		for _, it := range items {
			if it == nil {
				vb.AppendNull()
				continue
			}
			if s, ok := it.(string); ok {
				vb.Append(s)
			} else {
				vb.Append(fmt.Sprint(it))
			}
		}
	default:
		fb.(*array.StringBuilder).Append(fmt.Sprint(v))
	}
	return nil
}

// insertLocked appends a record batch with a prepared statement inside one
// transaction. Caller holds the mutex and has validated all identifiers.
func (s *Store) insertLocked(table string, rec arrow.Record) (int64, error) {
	schema := rec.Schema()
	ncols := int(rec.NumCols())

	cols := make([]string, ncols)
	marks := make([]string, ncols)
	for i := 0; i < ncols; i++ {
		cols[i] = schema.Field(i).Name
		marks[i] = "?"
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(marks, ", "))

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("insert begin: %w", err)
	}
	prep, err := tx.Prepare(stmt)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}

	nrows := int(rec.NumRows())
	args := make([]any, ncols)
	for row := 0; row < nrows; row++ {
		for col := 0; col < ncols; col++ {
			v, err := cellValue(rec.Column(col), row)
			if err != nil {
				prep.Close()
				tx.Rollback()
				return 0, err
			}
			args[col] = v
		}
		if _, err := prep.Exec(args...); err != nil {
			prep.Close()
			tx.Rollback()
			return 0, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
		}
	}
	prep.Close()
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("insert commit: %w", err)
	}
	return int64(nrows), nil
}

// cellValue extracts a driver value from one arrow cell. Only the codec's
// canonical scalar types are insertable; anything else is a schema mismatch.
func cellValue(col arrow.Array, row int) (any, error) {
	if col.IsNull(row) {
		return nil, nil
	}
	switch a := col.(type) {
	case *array.Boolean:
		return a.Value(row), nil
	case *array.Int32:
		return a.Value(row), nil
	case *array.Int64:
		return a.Value(row), nil
	case *array.Float32:
		return a.Value(row), nil
	case *array.Float64:
		return a.Value(row), nil
	case *array.String:
		return a.Value(row), nil
	case *array.LargeString:
		return a.Value(row), nil
	default:
		return nil, fmt.Errorf("%w: unsupported column type %s", ErrSchemaMismatch, col.DataType())
	}
}
