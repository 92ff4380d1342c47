package host

import (
	"encoding/json"

	"github.com/bytecodealliance/wasmtime-go/v25"
	"go.uber.org/zap"

	"github.com/fractalaw/fractalaw/internal/inference"
)

// registerCaps wires the capability bridge into the linker, each function
// bound to the per-execution state. Panics inside capability code are
// recovered and surfaced to the guest as downstream errors; they never tear
// the engine down.
func registerCaps(linker *wasmtime.Linker, state *RunState) error {
	funcs := map[string]any{
		"audit_record": func(c *wasmtime.Caller, evPtr, evLen, resPtr, resLen, detPtr, detLen int32) {
			defer state.recoverPanic(nil)
			event, err1 := readGuestString(c, evPtr, evLen)
			resource, err2 := readGuestString(c, resPtr, resLen)
			detail, err3 := readGuestString(c, detPtr, detLen)
			if err1 != nil || err2 != nil || err3 != nil {
				// A garbled entry is still an entry; record what was readable.
				state.logger.Warn("audit entry with unreadable fields")
			}
			state.RecordEvent(event, resource, detail)
		},

		"query": func(c *wasmtime.Caller, sqlPtr, sqlLen, retPtr int32) (code int32) {
			defer state.recoverPanic(&code)
			stmt, err := readGuestString(c, sqlPtr, sqlLen)
			if err != nil {
				return state.reply(c, retPtr, nil, capErr(CodeDownstream, "%v", err))
			}
			raw, cerr := state.Query(stmt)
			return state.reply(c, retPtr, raw, cerr)
		},

		"exec": func(c *wasmtime.Caller, sqlPtr, sqlLen, rowsPtr, retPtr int32) (code int32) {
			defer state.recoverPanic(&code)
			stmt, err := readGuestString(c, sqlPtr, sqlLen)
			if err != nil {
				return state.reply(c, retPtr, nil, capErr(CodeDownstream, "%v", err))
			}
			rows, cerr := state.Exec(stmt)
			if cerr != nil {
				return state.reply(c, retPtr, nil, cerr)
			}
			if err := writeGuestU64(c, rowsPtr, rows); err != nil {
				return state.reply(c, retPtr, nil, capErr(CodeDownstream, "%v", err))
			}
			return state.reply(c, retPtr, nil, nil)
		},

		"insert": func(c *wasmtime.Caller, tblPtr, tblLen, dataPtr, dataLen, rowsPtr, retPtr int32) (code int32) {
			defer state.recoverPanic(&code)
			table, err := readGuestString(c, tblPtr, tblLen)
			if err != nil {
				return state.reply(c, retPtr, nil, capErr(CodeDownstream, "%v", err))
			}
			raw, err := readGuestBytes(c, dataPtr, dataLen)
			if err != nil {
				return state.reply(c, retPtr, nil, capErr(CodeDownstream, "%v", err))
			}
			rows, cerr := state.Insert(table, raw)
			if cerr != nil {
				return state.reply(c, retPtr, nil, cerr)
			}
			if err := writeGuestU64(c, rowsPtr, rows); err != nil {
				return state.reply(c, retPtr, nil, capErr(CodeDownstream, "%v", err))
			}
			return state.reply(c, retPtr, nil, nil)
		},

		"generate": func(c *wasmtime.Caller, reqPtr, reqLen, retPtr int32) (code int32) {
			defer state.recoverPanic(&code)
			raw, err := readGuestBytes(c, reqPtr, reqLen)
			if err != nil {
				return state.reply(c, retPtr, nil, capErr(CodeDownstream, "%v", err))
			}
			var req inference.Request
			if err := json.Unmarshal(raw, &req); err != nil {
				return state.reply(c, retPtr, nil, capErr(CodeCodec, "parse request: %v", err))
			}
			resp, cerr := state.Generate(req)
			if cerr != nil {
				return state.reply(c, retPtr, nil, cerr)
			}
			payload, err := json.Marshal(resp)
			if err != nil {
				return state.reply(c, retPtr, nil, capErr(CodeCodec, "marshal response: %v", err))
			}
			return state.reply(c, retPtr, payload, nil)
		},

		"embed": func(c *wasmtime.Caller, textPtr, textLen, retPtr int32) (code int32) {
			defer state.recoverPanic(&code)
			_, cerr := state.Embed("")
			return state.reply(c, retPtr, nil, cerr)
		},

		"embed_batch": func(c *wasmtime.Caller, reqPtr, reqLen, retPtr int32) (code int32) {
			defer state.recoverPanic(&code)
			_, cerr := state.EmbedBatch(nil)
			return state.reply(c, retPtr, nil, cerr)
		},
	}

	for name, fn := range funcs {
		if err := linker.FuncWrap(abiModule, name, fn); err != nil {
			return err
		}
	}
	return nil
}

// reply writes either the success payload or the error message at retPtr and
// returns the ABI code.
func (s *RunState) reply(c *wasmtime.Caller, retPtr int32, payload []byte, cerr *CapError) int32 {
	if cerr != nil {
		if err := writePayload(c, retPtr, []byte(cerr.Message)); err != nil {
			s.logger.Warn("failed to deliver capability error", zap.Error(err))
		}
		return int32(cerr.Code)
	}
	if err := writePayload(c, retPtr, payload); err != nil {
		s.logger.Warn("failed to deliver capability payload", zap.Error(err))
		return int32(CodeDownstream)
	}
	return 0
}

// recoverPanic converts a host-side panic into a downstream error code so a
// misbehaving capability cannot kill the engine.
func (s *RunState) recoverPanic(code *int32) {
	if r := recover(); r != nil {
		s.logger.Error("capability panicked", zap.Any("panic", r))
		if code != nil {
			*code = int32(CodeDownstream)
		}
	}
}
