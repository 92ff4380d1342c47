package host

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fractalaw/fractalaw/internal/codec"
	"github.com/fractalaw/fractalaw/internal/inference"
	"github.com/fractalaw/fractalaw/internal/store"
)

// AuditRecord is one guest-recorded event with a host-stamped timestamp.
type AuditRecord struct {
	EventType string
	Resource  string
	Detail    string
	Timestamp time.Time
}

// RunResult is the sole observable artifact of one execution.
type RunResult struct {
	// OK is true when the guest returned success-text from run(); false for
	// guest error-text and for traps.
	OK bool
	// Output is the guest's success or error text, or the trap description.
	Output string
	// Audit is the append-ordered audit trail collected before the run ended.
	Audit []AuditRecord
	// FuelConsumed is initial fuel minus remaining, saturating at zero.
	FuelConsumed uint64
}

// RunState is the per-execution state behind the capability bridge. It is
// exclusively owned by its execution and never reused.
type RunState struct {
	ctx    context.Context
	logger *zap.Logger

	audit []AuditRecord

	// Optional borrows; nil means the capability answers CodeNotConfigured.
	store     *store.Store
	inference *inference.Config
	gateway   *inference.Gateway
}

func newRunState(ctx context.Context, logger *zap.Logger, s *store.Store, inf *inference.Config, gw *inference.Gateway) *RunState {
	return &RunState{
		ctx:       ctx,
		logger:    logger,
		store:     s,
		inference: inf,
		gateway:   gw,
	}
}

// RecordEvent appends one audit record. Infallible; append order matches
// invocation order within the execution.
func (s *RunState) RecordEvent(eventType, resource, detail string) {
	rec := AuditRecord{
		EventType: eventType,
		Resource:  resource,
		Detail:    detail,
		Timestamp: time.Now(),
	}
	s.logger.Info("audit event recorded",
		zap.String("event_type", rec.EventType),
		zap.String("resource", rec.Resource))
	s.audit = append(s.audit, rec)
}

// Query submits a statement to the table store and returns the result
// batches encoded as one byte stream. Empty bytes mean an empty result set.
func (s *RunState) Query(stmt string) ([]byte, *CapError) {
	if s.store == nil {
		return nil, capErr(CodeNotConfigured, "no table store attached")
	}
	recs, err := s.store.Query(stmt)
	if err != nil {
		return nil, capErr(CodeDownstream, "query failed: %v", err)
	}
	defer codec.Release(recs)

	raw, err := codec.Encode(recs)
	if err != nil {
		return nil, capErr(CodeCodec, "encode result: %v", err)
	}
	return raw, nil
}

// Exec runs a statement and returns a coarse row count (0 for DDL).
func (s *RunState) Exec(stmt string) (uint64, *CapError) {
	if s.store == nil {
		return 0, capErr(CodeNotConfigured, "no table store attached")
	}
	n, err := s.store.Execute(stmt)
	if err != nil {
		return 0, capErr(CodeDownstream, "execute failed: %v", err)
	}
	if n < 0 {
		n = 0
	}
	return uint64(n), nil
}

// Insert decodes a byte stream and appends every batch to the named table,
// returning the total row count.
func (s *RunState) Insert(table string, raw []byte) (uint64, *CapError) {
	if s.store == nil {
		return 0, capErr(CodeNotConfigured, "no table store attached")
	}
	recs, err := codec.Decode(raw)
	if err != nil {
		return 0, capErr(CodeDownstream, "decode batches: %v", err)
	}
	defer codec.Release(recs)

	var total uint64
	for _, rec := range recs {
		n, err := s.store.InsertBatch(table, rec)
		if err != nil {
			return 0, capErr(CodeCodec, "insert into %s: %v", table, err)
		}
		total += uint64(n)
	}
	return total, nil
}

// Generate delegates one generation request to the inference gateway.
func (s *RunState) Generate(req inference.Request) (*inference.Response, *CapError) {
	if s.inference == nil {
		return nil, capErr(CodeNotConfigured, "no inference endpoint configured")
	}
	resp, err := s.gateway.Generate(s.ctx, *s.inference, req)
	if err != nil {
		switch {
		case errors.Is(err, inference.ErrDecode):
			return nil, capErr(CodeCodec, "inference response: %v", err)
		default:
			return nil, capErr(CodeDownstream, "inference failed: %v", err)
		}
	}
	return resp, nil
}

// Embed is declared in the guest interface but never configured in the
// core: embedding is an offline pipeline, not an in-sandbox capability.
func (s *RunState) Embed(string) ([]float32, *CapError) {
	return nil, capErr(CodeNotConfigured, "embedding is not configured in the sandbox")
}

// EmbedBatch mirrors Embed.
func (s *RunState) EmbedBatch([]string) ([][]float32, *CapError) {
	return nil, capErr(CodeNotConfigured, "embedding is not configured in the sandbox")
}
