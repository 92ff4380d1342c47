package host

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(zap.NewNop())
	require.NoError(t, err)
	return e
}

func TestLoadModuleCompileError(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.LoadModule([]byte("definitely not wasm"))
	assert.ErrorIs(t, err, ErrCompile)
}

func TestLoadModuleFileMissing(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.LoadModuleFile("/nonexistent/app.wasm")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCompile)
}

func TestLoadModuleCachesByContent(t *testing.T) {
	e := newTestEngine(t)
	image := helloGuest()

	m1, err := e.LoadModule(image)
	require.NoError(t, err)
	m2, err := e.LoadModule(image)
	require.NoError(t, err)

	assert.Equal(t, m1.Hash(), m2.Hash())
	assert.Same(t, m1.mod, m2.mod, "second load should reuse the cached compilation")
}

func TestRunHello(t *testing.T) {
	e := newTestEngine(t)
	mod, err := e.LoadModule(helloGuest())
	require.NoError(t, err)

	budget := uint64(1_000_000_000)
	res, err := e.Run(context.Background(), mod, Options{
		Fuel:          budget,
		DeadlineTicks: DefaultDeadlineTicks,
	})
	require.NoError(t, err)

	assert.True(t, res.OK)
	assert.Equal(t, "Hello", res.Output)

	require.Len(t, res.Audit, 1)
	entry := res.Audit[0]
	assert.Equal(t, "app-started", entry.EventType)
	assert.Equal(t, "hello", entry.Resource)
	assert.Equal(t, "bootstrap", entry.Detail)
	assert.False(t, entry.Timestamp.IsZero())

	assert.Greater(t, res.FuelConsumed, uint64(0), "should have consumed some fuel")
	assert.Less(t, res.FuelConsumed, budget, "should not have exhausted the budget")
}

func TestRunMissingRunExport(t *testing.T) {
	e := newTestEngine(t)
	mod, err := e.LoadModule(noRunGuest())
	require.NoError(t, err)

	_, err = e.Run(context.Background(), mod, Options{Fuel: 1000, DeadlineTicks: 10})
	assert.ErrorIs(t, err, ErrLink)
}

func TestRunFuelExhaustion(t *testing.T) {
	e := newTestEngine(t)
	mod, err := e.LoadModule(loopGuest())
	require.NoError(t, err)

	budget := uint64(10_000)
	res, err := e.Run(context.Background(), mod, Options{
		Fuel:          budget,
		DeadlineTicks: DefaultDeadlineTicks,
	})
	require.NoError(t, err, "a trap still yields a RunResult")

	assert.False(t, res.OK)
	assert.Contains(t, res.Output, "fuel")
	assert.Equal(t, budget, res.FuelConsumed)
	assert.Empty(t, res.Audit, "no post-trap audit")
}

func TestRunZeroFuelTrapsImmediately(t *testing.T) {
	e := newTestEngine(t)
	mod, err := e.LoadModule(helloGuest())
	require.NoError(t, err)

	res, err := e.Run(context.Background(), mod, Options{
		Fuel:          0,
		DeadlineTicks: DefaultDeadlineTicks,
	})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Contains(t, res.Output, "fuel")
}

func TestRunEpochDeadline(t *testing.T) {
	e := newTestEngine(t)
	mod, err := e.LoadModule(loopGuest())
	require.NoError(t, err)

	start := time.Now()
	res, err := e.Run(context.Background(), mod, Options{
		Fuel:          math.MaxUint64 / 2,
		DeadlineTicks: 1,
	})
	require.NoError(t, err)

	assert.False(t, res.OK)
	assert.Contains(t, res.Output, "deadline")
	assert.Less(t, time.Since(start), 30*time.Second, "the engine must not hang")
}

func TestRunZeroDeadlineInterruptsBeforeProgress(t *testing.T) {
	e := newTestEngine(t)
	mod, err := e.LoadModule(loopGuest())
	require.NoError(t, err)

	res, err := e.Run(context.Background(), mod, Options{
		Fuel:          math.MaxUint64 / 2,
		DeadlineTicks: 0,
	})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Contains(t, res.Output, "deadline")
}

func TestRunPoolExhaustedIsLinkError(t *testing.T) {
	e := newTestEngine(t)
	mod, err := e.LoadModule(helloGuest())
	require.NoError(t, err)

	// Hold every slot.
	var releases []func()
	for {
		release, err := e.pool.acquire()
		if err != nil {
			break
		}
		releases = append(releases, release)
	}
	defer func() {
		for _, r := range releases {
			r()
		}
	}()

	_, err = e.Run(context.Background(), mod, Options{Fuel: 1000, DeadlineTicks: 10})
	assert.ErrorIs(t, err, ErrLink)
}

func TestSlotPool(t *testing.T) {
	p := newSlotPool(2)
	r1, err := p.acquire()
	require.NoError(t, err)
	r2, err := p.acquire()
	require.NoError(t, err)
	_, err = p.acquire()
	assert.ErrorIs(t, err, ErrLink)

	r1()
	r3, err := p.acquire()
	require.NoError(t, err)
	r3()
	r2()
	assert.Equal(t, 2, p.available())
}

func TestRunReusableModule(t *testing.T) {
	e := newTestEngine(t)
	mod, err := e.LoadModule(helloGuest())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		res, err := e.Run(context.Background(), mod, Options{
			Fuel:          1_000_000_000,
			DeadlineTicks: DefaultDeadlineTicks,
		})
		require.NoError(t, err)
		assert.True(t, res.OK)
		assert.Len(t, res.Audit, 1, "fresh run state per execution")
	}
}

func TestTrapCauseClassification(t *testing.T) {
	// Non-trap errors are not classified.
	_, ok := trapCause(context.Canceled)
	assert.False(t, ok)
}

func TestCapErrorMessage(t *testing.T) {
	err := capErr(CodeNotConfigured, "no %s attached", "table store")
	assert.Equal(t, uint32(1), err.Code)
	assert.True(t, strings.Contains(err.Error(), "no table store attached"))
}
