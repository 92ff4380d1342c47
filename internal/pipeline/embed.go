// Package pipeline is the offline embedding pipeline: it reads the
// per-section text snapshot, generates sentence embeddings through an
// Embedder, and writes an Arrow IPC snapshot with the embedding columns
// populated for the classifier to consume.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/apache/arrow/go/v15/arrow"
	"github.com/apache/arrow/go/v15/arrow/array"
	"github.com/apache/arrow/go/v15/arrow/memory"
	"github.com/apache/arrow/go/v15/parquet/file"
	"github.com/apache/arrow/go/v15/parquet/pqarrow"
	"go.uber.org/zap"

	"github.com/fractalaw/fractalaw/internal/ai"
	"github.com/fractalaw/fractalaw/internal/codec"
	"github.com/fractalaw/fractalaw/internal/schema"
)

// embedChunkSize is how many texts go to the embedder per request.
const embedChunkSize = 256

// readBatchSize is the parquet record-reader batch size.
const readBatchSize = 1024

// Stats summarises one pipeline run.
type Stats struct {
	Rows    int
	Elapsed time.Duration
}

// RunEmbed reads sections from parquetPath, embeds their text with e, and
// writes the populated section batches as one Arrow IPC stream at outPath.
func RunEmbed(ctx context.Context, e ai.Embedder, parquetPath, outPath, modelName string, logger *zap.Logger) (*Stats, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	start := time.Now()

	source, err := readParquet(ctx, parquetPath)
	if err != nil {
		return nil, err
	}
	defer codec.Release(source)

	totalRows := int(codec.TotalRows(source))
	logger.Info("read section snapshot",
		zap.String("path", parquetPath), zap.Int("rows", totalRows))

	if totalRows == 0 {
		if err := os.WriteFile(outPath, nil, 0o644); err != nil {
			return nil, fmt.Errorf("write output: %w", err)
		}
		return &Stats{Rows: 0, Elapsed: time.Since(start)}, nil
	}

	embeddedAt := time.Now().UTC().UnixNano()
	out := make([]arrow.Record, 0, len(source))
	defer codec.Release(out)

	for _, batch := range source {
		texts, err := columnStrings(batch, "text")
		if err != nil {
			return nil, err
		}

		embeddings := make([][]float32, 0, len(texts))
		for i := 0; i < len(texts); i += embedChunkSize {
			end := i + embedChunkSize
			if end > len(texts) {
				end = len(texts)
			}
			vecs, err := e.EmbedBatch(ctx, texts[i:end])
			if err != nil {
				return nil, fmt.Errorf("embed rows %d..%d: %w", i, end, err)
			}
			embeddings = append(embeddings, vecs...)
		}

		rec, err := buildSectionBatch(batch, embeddings, modelName, embeddedAt, e.Dim())
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}

	raw, err := codec.Encode(out)
	if err != nil {
		return nil, fmt.Errorf("encode output: %w", err)
	}
	if err := os.WriteFile(outPath, raw, 0o644); err != nil {
		return nil, fmt.Errorf("write output: %w", err)
	}

	stats := &Stats{Rows: totalRows, Elapsed: time.Since(start)}
	logger.Info("embedding pipeline complete",
		zap.Int("rows", stats.Rows), zap.Duration("elapsed", stats.Elapsed))
	return stats, nil
}

func readParquet(ctx context.Context, path string) ([]arrow.Record, error) {
	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, fmt.Errorf("open parquet %s: %w", path, err)
	}
	defer rdr.Close()

	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{BatchSize: readBatchSize}, memory.DefaultAllocator)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	rr, err := fr.GetRecordReader(ctx, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	defer rr.Release()

	var out []arrow.Record
	for rr.Next() {
		rec := rr.Record()
		rec.Retain()
		out = append(out, rec)
	}
	if err := rr.Err(); err != nil {
		codec.Release(out)
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	return out, nil
}

// columnStrings extracts a utf8/large_utf8 column as a string slice; null
// cells become empty strings so row alignment is preserved.
func columnStrings(batch arrow.Record, name string) ([]string, error) {
	idx := batch.Schema().FieldIndices(name)
	if len(idx) == 0 {
		return nil, fmt.Errorf("missing %q column", name)
	}
	col := batch.Column(idx[0])

	out := make([]string, batch.NumRows())
	for row := range out {
		if col.IsNull(row) {
			continue
		}
		switch a := col.(type) {
		case *array.String:
			out[row] = a.Value(row)
		case *array.LargeString:
			out[row] = a.Value(row)
		default:
			return nil, fmt.Errorf("%q column is %s, not a string type", name, col.DataType())
		}
	}
	return out, nil
}

// buildSectionBatch rebuilds one batch on the canonical section schema with
// the embedding columns populated.
func buildSectionBatch(src arrow.Record, embeddings [][]float32, modelName string, embeddedAt int64, dim int) (arrow.Record, error) {
	if dim != schema.EmbeddingDim {
		return nil, fmt.Errorf("embedder dim %d does not match schema dim %d", dim, schema.EmbeddingDim)
	}
	if int(src.NumRows()) != len(embeddings) {
		return nil, fmt.Errorf("have %d embeddings for %d rows", len(embeddings), src.NumRows())
	}

	lawNames, err := columnStrings(src, "law_name")
	if err != nil {
		return nil, err
	}
	texts, err := columnStrings(src, "text")
	if err != nil {
		return nil, err
	}
	provisions := optionalStrings(src, "provision")
	sortKeys := optionalStrings(src, "sort_key")

	b := array.NewRecordBuilder(memory.DefaultAllocator, schema.LawSections())
	defer b.Release()

	names := b.Field(0).(*array.StringBuilder)
	provB := b.Field(1).(*array.StringBuilder)
	keyB := b.Field(2).(*array.StringBuilder)
	textB := b.Field(3).(*array.StringBuilder)
	embB := b.Field(4).(*array.FixedSizeListBuilder)
	embVals := embB.ValueBuilder().(*array.Float32Builder)
	modelB := b.Field(5).(*array.StringBuilder)
	atB := b.Field(6).(*array.TimestampBuilder)

	for row := range lawNames {
		names.Append(lawNames[row])
		appendOptional(provB, provisions, row)
		appendOptional(keyB, sortKeys, row)
		textB.Append(texts[row])
		embB.Append(true)
		embVals.AppendValues(embeddings[row], nil)
		modelB.Append(modelName)
		atB.Append(arrow.Timestamp(embeddedAt))
	}

	return b.NewRecord(), nil
}

func optionalStrings(batch arrow.Record, name string) []string {
	vals, err := columnStrings(batch, name)
	if err != nil {
		return nil
	}
	return vals
}

func appendOptional(b *array.StringBuilder, vals []string, row int) {
	if vals == nil || vals[row] == "" {
		b.AppendNull()
		return
	}
	b.Append(vals[row])
}
