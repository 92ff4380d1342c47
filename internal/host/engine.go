package host

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/bytecodealliance/wasmtime-go/v25"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/fractalaw/fractalaw/internal/inference"
)

const (
	// defaultInstanceSlots is the pooled allocator's live-instance cap.
	defaultInstanceSlots = 16
	// maxMemoryBytes caps each instance's linear memory.
	maxMemoryBytes = 64 << 20
	// moduleCacheSize bounds the compiled-module cache.
	moduleCacheSize = 64
	// epochPeriod is the engine-level ticker period.
	epochPeriod = time.Second
	// DefaultDeadlineTicks is the recommended epoch deadline.
	DefaultDeadlineTicks = 100
)

// Engine owns the wasmtime engine, the compiled-module cache, and the
// instance slot pool. It is shared read-only across executions.
type Engine struct {
	engine  *wasmtime.Engine
	pool    *slotPool
	cache   *lru.Cache[string, *wasmtime.Module]
	gateway *inference.Gateway
	logger  *zap.Logger
}

// Module is an immutable compiled guest program, reusable across executions.
type Module struct {
	mod  *wasmtime.Module
	hash string
}

// Hash is the content hash the module cache keys on.
func (m *Module) Hash() string {
	return m.hash
}

// NewEngine creates an engine configured for micro-app execution:
// fuel metering and epoch interruption on, instances pooled, per-instance
// memory capped.
func NewEngine(logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg := wasmtime.NewConfig()
	cfg.SetConsumeFuel(true)
	cfg.SetEpochInterruption(true)

	cache, err := lru.New[string, *wasmtime.Module](moduleCacheSize)
	if err != nil {
		return nil, fmt.Errorf("module cache: %w", err)
	}

	return &Engine{
		engine:  wasmtime.NewEngineWithConfig(cfg),
		pool:    newSlotPool(defaultInstanceSlots),
		cache:   cache,
		gateway: inference.NewGateway(),
		logger:  logger,
	}, nil
}

// LoadModule compiles a guest from its byte image, reusing the cached
// compilation when the same bytes were seen before.
func (e *Engine) LoadModule(image []byte) (*Module, error) {
	sum := sha256.Sum256(image)
	hash := hex.EncodeToString(sum[:])

	if mod, ok := e.cache.Get(hash); ok {
		return &Module{mod: mod, hash: hash}, nil
	}

	mod, err := wasmtime.NewModule(e.engine, image)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompile, err)
	}
	e.cache.Add(hash, mod)
	e.logger.Info("compiled module", zap.String("hash", hash[:12]), zap.Int("bytes", len(image)))
	return &Module{mod: mod, hash: hash}, nil
}

// LoadModuleFile reads and compiles a guest from disk.
func (e *Engine) LoadModuleFile(path string) (*Module, error) {
	image, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read module %s: %w", path, err)
	}
	return e.LoadModule(image)
}
