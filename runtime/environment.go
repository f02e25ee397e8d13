package runtime

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasmbind/engine"
	"github.com/wippyai/wasmbind/errors"
	"github.com/wippyai/wasmbind/internal/handle"
	"github.com/wippyai/wasmbind/marshal"
)

// Signature is the shape of a function: parameter and result kinds.
type Signature = marshal.Signature

// EnvironmentConfig holds configuration for environment creation
type EnvironmentConfig struct {
	// Logger receives debug output. Nil uses the engine's process-wide
	// logger.
	Logger *zap.Logger

	// CompilationCacheDir enables an on-disk compilation cache for this
	// environment.
	CompilationCacheDir string

	// MemoryLimitPages caps every module memory, in 64KiB pages.
	// 0 means the 4GiB maximum.
	MemoryLimitPages uint32

	// Features selects the enabled WebAssembly proposals. 0 means
	// api.CoreFeaturesV2.
	Features api.CoreFeatures

	// CloseOnContextDone aborts running guest code when the call context
	// ends. The aborted module becomes unusable.
	CloseOnContextDone bool
}

// Environment is the top-level interpreter context. It owns the interpreter
// configuration, a registry of named function signatures, and every Runtime
// created from it.
type Environment struct {
	h        *handle.Handle[*engine.Interpreter]
	log      *zap.Logger
	types    map[string]Signature
	runtimes map[*Runtime]struct{}
	mu       sync.Mutex
}

// NewEnvironment creates an environment. A nil config uses defaults.
func NewEnvironment(ctx context.Context, cfg *EnvironmentConfig) (*Environment, error) {
	if cfg == nil {
		cfg = &EnvironmentConfig{}
	}
	interp, err := engine.NewInterpreter(ctx, &engine.Config{
		Logger:              cfg.Logger,
		CompilationCacheDir: cfg.CompilationCacheDir,
		MemoryLimitPages:    cfg.MemoryLimitPages,
		Features:            cfg.Features,
		CloseOnContextDone:  cfg.CloseOnContextDone,
	})
	if err != nil {
		return nil, err
	}

	h, err := handle.New("environment", interp, nil, func(i *engine.Interpreter) error {
		return i.Close(context.Background())
	})
	if err != nil {
		return nil, err
	}

	return &Environment{
		h:        h,
		log:      interp.Logger(),
		types:    make(map[string]Signature),
		runtimes: make(map[*Runtime]struct{}),
	}, nil
}

// Alive reports whether the environment is open.
func (e *Environment) Alive() bool {
	return e.h.Alive()
}

// LinkFunctionType registers sig under name. Registering the same shape
// again is a no-op; registering a different shape under a taken name fails
// with KindSignatureMismatch. A name of the form "module.function" also
// constrains host functions linked to that import in every module of the
// environment.
func (e *Environment) LinkFunctionType(name string, sig Signature) error {
	if _, err := e.h.Raw(errors.PhaseEnv); err != nil {
		return err
	}
	if name == "" {
		return errors.InvalidInput(errors.PhaseEnv, "function type name cannot be empty")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prev, ok := e.types[name]; ok {
		if prev.Equal(sig) {
			return nil
		}
		return errors.SignatureMismatch(errors.PhaseEnv, name, prev.String(), sig.String())
	}
	e.types[name] = Signature{
		Params:  append([]marshal.Kind(nil), sig.Params...),
		Results: append([]marshal.Kind(nil), sig.Results...),
	}
	return nil
}

// FunctionType returns the signature registered under name.
func (e *Environment) FunctionType(name string) (Signature, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sig, ok := e.types[name]
	return sig, ok
}

// ParseModule validates a module binary without loading it into a runtime.
// The result can be loaded into any Runtime of this environment.
func (e *Environment) ParseModule(ctx context.Context, data []byte) (*ParsedModule, error) {
	interp, err := e.h.Raw(errors.PhaseLoad)
	if err != nil {
		return nil, err
	}
	meta, err := interp.Parse(ctx, data)
	if err != nil {
		return nil, err
	}
	return &ParsedModule{
		env:   e,
		data:  append([]byte(nil), data...),
		meta:  meta,
		token: handle.NewToken(e.h),
	}, nil
}

// NewRuntime creates a runtime whose value stack holds stackSize bytes.
func (e *Environment) NewRuntime(ctx context.Context, stackSize uint32) (*Runtime, error) {
	interp, err := e.h.Raw(errors.PhaseAlloc)
	if err != nil {
		return nil, err
	}
	if stackSize < MinStackSize || stackSize > MaxStackSize {
		return nil, errors.New(errors.PhaseAlloc, errors.KindAllocation).
			Want(sizeRange()).
			Got(formatBytes(stackSize)).
			Detail("stack size out of range").
			Build()
	}

	machine, err := interp.NewMachine(ctx)
	if err != nil {
		return nil, errors.AllocationFailed(errors.PhaseAlloc, "runtime", err)
	}
	h, err := handle.New("runtime", machine, e.h, func(m *engine.Machine) error {
		return m.Close(context.Background())
	})
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		env:   e,
		h:     h,
		log:   e.log,
		stack: newStackArena(stackSize),
	}

	e.mu.Lock()
	e.runtimes[rt] = struct{}{}
	e.mu.Unlock()

	e.log.Debug("runtime created", zap.Uint32("stack_size", stackSize))
	return rt, nil
}

func (e *Environment) forget(rt *Runtime) {
	e.mu.Lock()
	delete(e.runtimes, rt)
	e.mu.Unlock()
}

// Close closes every runtime created from the environment, then the
// environment itself. Close is idempotent.
func (e *Environment) Close(ctx context.Context) error {
	if !e.h.Alive() {
		return nil
	}

	e.mu.Lock()
	runtimes := make([]*Runtime, 0, len(e.runtimes))
	for rt := range e.runtimes {
		runtimes = append(runtimes, rt)
	}
	e.mu.Unlock()

	var firstErr error
	for _, rt := range runtimes {
		if err := rt.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := e.h.Release(); err != nil && firstErr == nil {
		firstErr = err
	}
	e.log.Debug("environment closed", zap.Int("runtimes", len(runtimes)))
	return firstErr
}
