package host

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytecodealliance/wasmtime-go/v25"
	"go.uber.org/zap"

	"github.com/fractalaw/fractalaw/internal/inference"
	"github.com/fractalaw/fractalaw/internal/store"
)

// Options is the caller-provided envelope for one execution.
type Options struct {
	// Fuel is the deterministic instruction budget.
	Fuel uint64
	// DeadlineTicks is the wall-clock backstop in epoch ticks (one tick per
	// second). Zero interrupts the guest before it makes observable
	// progress.
	DeadlineTicks uint64
	// Store, when non-nil, is lent to the execution for its duration. No
	// other caller may mutate through this handle until Run returns.
	Store *store.Store
	// Inference, when non-nil, enables the generate capability.
	Inference *inference.Config
}

// Run executes one module's run() entry against fresh per-run state and
// drains it into a RunResult.
//
// Termination is guaranteed by fuel exhaustion, the epoch deadline, a guest
// return, or a propagated capability failure. Traps still produce a
// RunResult carrying the audit collected before the trap; compile and link
// failures happen before any guest code and produce an error instead.
func (e *Engine) Run(ctx context.Context, mod *Module, opts Options) (*RunResult, error) {
	release, err := e.pool.acquire()
	if err != nil {
		return nil, fmt.Errorf("%w: instance pool exhausted", ErrLink)
	}
	defer release()

	// The run context is cancelled when the tick budget is spent so that
	// in-flight capability work (an inference request mid-transport) is
	// abandoned, not just the wasm interrupted.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	st := wasmtime.NewStore(e.engine)
	st.Limiter(maxMemoryBytes, -1, 1, -1, 2)

	wasiCfg := wasmtime.NewWasiConfig()
	wasiCfg.InheritStdout()
	wasiCfg.InheritStderr()
	st.SetWasi(wasiCfg)

	if err := st.SetFuel(opts.Fuel); err != nil {
		return nil, fmt.Errorf("set fuel: %w", err)
	}
	st.SetEpochDeadline(opts.DeadlineTicks)

	state := newRunState(runCtx, e.logger, opts.Store, opts.Inference, e.gateway)

	// Per-execution epoch ticker; stopped on every return path before the
	// RunResult is handed back.
	tickerDone := make(chan struct{})
	tickerStopped := make(chan struct{})
	go func() {
		defer close(tickerStopped)
		ticker := time.NewTicker(epochPeriod)
		defer ticker.Stop()
		var ticks uint64
		for {
			select {
			case <-tickerDone:
				return
			case <-ticker.C:
				e.engine.IncrementEpoch()
				ticks++
				if ticks >= opts.DeadlineTicks {
					cancel()
				}
			}
		}
	}()
	defer func() {
		close(tickerDone)
		<-tickerStopped
	}()

	linker := wasmtime.NewLinker(e.engine)
	if err := linker.DefineWasi(); err != nil {
		return nil, fmt.Errorf("%w: wasi: %v", ErrLink, err)
	}
	if err := registerCaps(linker, state); err != nil {
		return nil, fmt.Errorf("%w: capabilities: %v", ErrLink, err)
	}

	instance, err := linker.Instantiate(st, mod.mod)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLink, err)
	}
	runFn := instance.GetFunc(st, "run")
	if runFn == nil {
		return nil, fmt.Errorf("%w: module exports no run()", ErrLink)
	}

	ret, callErr := runFn.Call(st)

	remaining, fuelErr := st.GetFuel()
	var consumed uint64
	if fuelErr == nil && opts.Fuel >= remaining {
		consumed = opts.Fuel - remaining
	}

	if callErr != nil {
		cause, ok := trapCause(callErr)
		if !ok {
			return nil, fmt.Errorf("call run(): %w", callErr)
		}
		e.logger.Warn("guest trapped",
			zap.String("cause", cause),
			zap.Uint64("fuel_consumed", consumed))
		return &RunResult{
			OK:           false,
			Output:       "trap: " + cause,
			Audit:        state.audit,
			FuelConsumed: consumed,
		}, nil
	}

	retPtr, ok := ret.(int32)
	if !ok {
		return nil, fmt.Errorf("run() returned %T, want i32 outcome pointer", ret)
	}
	oc, err := readOutcome(st, instance, retPtr)
	if err != nil {
		return nil, fmt.Errorf("read outcome: %w", err)
	}

	return &RunResult{
		OK:           oc.tag == 0,
		Output:       oc.text,
		Audit:        state.audit,
		FuelConsumed: consumed,
	}, nil
}

// trapCause classifies a trap into the error taxonomy's cause names.
func trapCause(err error) (string, bool) {
	var trap *wasmtime.Trap
	if !errors.As(err, &trap) {
		return "", false
	}
	if code := trap.Code(); code != nil {
		switch *code {
		case wasmtime.OutOfFuel:
			return "fuel", true
		case wasmtime.Interrupt:
			return "deadline", true
		}
	}
	return "trap", true
}
