// Package codec translates between in-memory Arrow record batches and the
// Arrow IPC streaming format. The byte stream is the only typed channel
// across the sandbox boundary: hosts encode query results and guests decode
// them (or hand bytes back for bulk insert), so both sides must agree on one
// canonical form per logical type.
//
// Canonical forms: strings are utf8 with 32-bit offsets (large_utf8 is
// accepted on decode), embedding vectors are fixed_size_list<float32>,
// validity bitmaps are written only for columns that contain nulls (the IPC
// writer's default), and buffers carry the IPC default 8-byte alignment. An
// empty byte stream is valid and means "no schema, no rows".
package codec

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/apache/arrow/go/v15/arrow"
	"github.com/apache/arrow/go/v15/arrow/ipc"
	"github.com/apache/arrow/go/v15/arrow/memory"
)

var (
	// ErrEncode reports a batch sequence that cannot be written as one stream.
	ErrEncode = errors.New("codec: encode")
	// ErrDecode reports a malformed, truncated, or schema-inconsistent stream.
	ErrDecode = errors.New("codec: decode")
)

// Encode writes a possibly-empty sequence of record batches sharing one
// schema as an Arrow IPC stream. Empty input produces empty bytes.
func Encode(batches []arrow.Record) ([]byte, error) {
	if len(batches) == 0 {
		return nil, nil
	}

	schema := batches[0].Schema()
	for _, b := range batches[1:] {
		if !b.Schema().Equal(schema) {
			return nil, fmt.Errorf("%w: batches do not share one schema", ErrEncode)
		}
	}

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema), ipc.WithAllocator(memory.DefaultAllocator))
	for _, b := range batches {
		if err := w.Write(b); err != nil {
			w.Close()
			return nil, fmt.Errorf("%w: %v", ErrEncode, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return buf.Bytes(), nil
}

// Decode reads an Arrow IPC stream back into record batches. Empty bytes
// yield an empty sequence. The caller owns the returned records and must
// Release them.
func Decode(b []byte) ([]arrow.Record, error) {
	if len(b) == 0 {
		return nil, nil
	}

	r, err := ipc.NewReader(bytes.NewReader(b), ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer r.Release()

	var out []arrow.Record
	for r.Next() {
		rec := r.Record()
		rec.Retain()
		out = append(out, rec)
	}
	if err := r.Err(); err != nil {
		Release(out)
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return out, nil
}

// Release releases every record in the slice. Convenience for callers that
// decoded a stream and are done with it.
func Release(recs []arrow.Record) {
	for _, r := range recs {
		r.Release()
	}
}

// TotalRows sums the row counts of a batch sequence.
func TotalRows(recs []arrow.Record) int64 {
	var n int64
	for _, r := range recs {
		n += r.NumRows()
	}
	return n
}
