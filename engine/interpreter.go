package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasmbind/errors"
	"github.com/wippyai/wasmbind/internal/wasm"
)

// MaxMemoryLimitPages is the largest memory a 32-bit module can address.
const MaxMemoryLimitPages = 65536

// Config holds configuration for interpreter creation
type Config struct {
	// Logger receives debug output for this interpreter and everything
	// created from it. Nil uses the process-wide logger.
	Logger *zap.Logger

	// CompilationCacheDir enables an on-disk compilation cache private to
	// this interpreter. Empty falls back to the cache configured by Init,
	// or to an in-memory cache.
	CompilationCacheDir string

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32

	// Features selects the enabled WebAssembly proposals. 0 means
	// api.CoreFeaturesV2.
	Features api.CoreFeatures

	// CloseOnContextDone aborts running guest code when the call context
	// is canceled or its deadline passes. The aborted instance is closed.
	CloseOnContextDone bool
}

// Interpreter is an interpreter configuration from which machines are
// created. It also validates module binaries independently of any machine.
type Interpreter struct {
	cache     wazero.CompilationCache
	shared    *sharedCache
	validator wazero.Runtime
	cfg       wazero.RuntimeConfig
	log       *zap.Logger
	mu        sync.Mutex
	ownsCache bool
	closed    bool
}

// NewInterpreter creates an interpreter with the given configuration. A nil
// config uses defaults.
func NewInterpreter(ctx context.Context, cfg *Config) (*Interpreter, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.MemoryLimitPages > MaxMemoryLimitPages {
		return nil, errors.New(errors.PhaseEnv, errors.KindAllocation).
			Want(fmt.Sprintf("at most %d pages", MaxMemoryLimitPages)).
			Got(fmt.Sprintf("%d", cfg.MemoryLimitPages)).
			Detail("memory limit out of range").
			Build()
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.AllocationFailed(errors.PhaseEnv, "interpreter configuration", err)
	}

	interp := &Interpreter{log: cfg.Logger}
	if interp.log == nil {
		interp.log = Logger()
	}

	if cfg.CompilationCacheDir == "" {
		interp.shared = acquireSharedCache()
	}
	switch {
	case cfg.CompilationCacheDir != "":
		cache, err := wazero.NewCompilationCacheWithDir(cfg.CompilationCacheDir)
		if err != nil {
			return nil, errors.AllocationFailed(errors.PhaseEnv,
				fmt.Sprintf("compilation cache at %s", cfg.CompilationCacheDir), err)
		}
		interp.cache = cache
		interp.ownsCache = true
	case interp.shared != nil:
		interp.cache = interp.shared.cache
	default:
		interp.cache = wazero.NewCompilationCache()
		interp.ownsCache = true
	}

	features := cfg.Features
	if features == 0 {
		features = api.CoreFeaturesV2
	}

	rc := wazero.NewRuntimeConfigInterpreter().
		WithCoreFeatures(features).
		WithCompilationCache(interp.cache).
		WithCloseOnContextDone(cfg.CloseOnContextDone)
	if cfg.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	interp.cfg = rc

	interp.log.Debug("interpreter created",
		zap.Uint32("memory_limit_pages", cfg.MemoryLimitPages),
		zap.String("features", features.String()),
		zap.Bool("close_on_context_done", cfg.CloseOnContextDone))
	return interp, nil
}

// Logger returns the logger used by this interpreter.
func (i *Interpreter) Logger() *zap.Logger {
	return i.log
}

// Parse reads and validates a module binary without instantiating it.
// Failures carry the interpreter's diagnostic text as a KindModuleLoad error.
func (i *Interpreter) Parse(ctx context.Context, data []byte) (*wasm.Metadata, error) {
	if len(data) == 0 {
		return nil, errors.ModuleLoad("empty module binary", nil)
	}
	meta, err := wasm.ReadMetadata(data)
	if err != nil {
		return nil, errors.ModuleLoad(err.Error(), err)
	}

	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return nil, errors.Closed(errors.PhaseLoad, "interpreter")
	}
	if i.validator == nil {
		i.validator = wazero.NewRuntimeWithConfig(ctx, i.cfg)
	}
	validator := i.validator
	i.mu.Unlock()

	compiled, err := validator.CompileModule(ctx, data)
	if err != nil {
		return nil, errors.ModuleLoad(diagnostic(err), err)
	}
	if err := compiled.Close(ctx); err != nil {
		i.log.Debug("release validated module", zap.Error(err))
	}

	i.log.Debug("module parsed",
		zap.String("name", meta.Name),
		zap.Int("imports", len(meta.Imports)),
		zap.Int("exports", len(meta.Exports)))
	return meta, nil
}

// NewMachine creates an isolated machine sharing this interpreter's
// configuration and compilation cache.
func (i *Interpreter) NewMachine(ctx context.Context) (*Machine, error) {
	i.mu.Lock()
	closed := i.closed
	i.mu.Unlock()
	if closed {
		return nil, errors.Closed(errors.PhaseAlloc, "interpreter")
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.AllocationFailed(errors.PhaseAlloc, "machine", err)
	}
	m := &Machine{
		rt:  wazero.NewRuntimeWithConfig(ctx, i.cfg),
		log: i.log,
	}
	i.log.Debug("machine created")
	return m, nil
}

// Close releases the validator and the compilation cache: an owned cache is
// closed, a reference on the cache shared through Init is dropped.
// Machines already created must be closed by their owners. Close is
// idempotent.
func (i *Interpreter) Close(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil
	}
	i.closed = true

	var firstErr error
	if i.validator != nil {
		if err := i.validator.Close(ctx); err != nil {
			firstErr = err
		}
		i.validator = nil
	}
	if i.ownsCache && i.cache != nil {
		if err := i.cache.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if i.shared != nil {
		if err := i.shared.release(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		i.shared = nil
	}
	i.cache = nil
	i.log.Debug("interpreter closed")
	if firstErr != nil {
		return errors.Wrap(errors.PhaseEnv, errors.KindInternal, firstErr, "close interpreter")
	}
	return nil
}

// diagnostic extracts the first line of an interpreter error, dropping
// stack traces.
func diagnostic(err error) string {
	msg := err.Error()
	if idx := strings.IndexByte(msg, '\n'); idx >= 0 {
		msg = msg[:idx]
	}
	return msg
}
