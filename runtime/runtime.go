package runtime

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasmbind/engine"
	"github.com/wippyai/wasmbind/errors"
	"github.com/wippyai/wasmbind/internal/handle"
	"github.com/wippyai/wasmbind/internal/wasm"
)

// Stack sizes are in bytes. Each value slot takes 8 bytes.
const (
	MinStackSize     = 256
	MaxStackSize     = 64 << 20
	DefaultStackSize = 64 << 10

	slotSize = 8
	// frameOverhead is the number of slots each call frame reserves on top
	// of its parameters and results.
	frameOverhead = 4
)

// Runtime is one execution context: an isolated interpreter instance with
// its own value stack and its own set of loaded modules.
type Runtime struct {
	env     *Environment
	h       *handle.Handle[*engine.Machine]
	log     *zap.Logger
	stack   *stackArena
	modules []*Module
	mu      sync.Mutex
	nextID  int
}

// Alive reports whether the runtime and its environment are open.
func (r *Runtime) Alive() bool {
	return r.h.Alive()
}

// Environment returns the environment the runtime belongs to.
func (r *Runtime) Environment() *Environment {
	return r.env
}

// StackSize returns the value stack size in bytes.
func (r *Runtime) StackSize() uint32 {
	return uint32(len(r.stack.slots) * slotSize)
}

// StackInUse returns the bytes of value stack held by calls in progress.
func (r *Runtime) StackInUse() uint32 {
	return uint32(r.stack.sp * slotSize)
}

// LoadModule parses, validates and registers a module binary. On failure
// nothing is registered.
func (r *Runtime) LoadModule(ctx context.Context, data []byte) (*Module, error) {
	if _, err := r.h.Raw(errors.PhaseLoad); err != nil {
		return nil, err
	}
	parsed, err := r.env.ParseModule(ctx, data)
	if err != nil {
		return nil, err
	}
	return r.Load(ctx, parsed)
}

// Load registers a module parsed by this runtime's environment. A parsed
// module can be loaded once.
func (r *Runtime) Load(ctx context.Context, p *ParsedModule) (*Module, error) {
	machine, err := r.h.Raw(errors.PhaseLoad)
	if err != nil {
		return nil, err
	}
	if p.env != r.env {
		return nil, errors.InvalidInput(errors.PhaseLoad, "parsed module belongs to a different environment")
	}
	if !p.token.Alive() {
		return nil, errors.Closed(errors.PhaseLoad, "parsed module")
	}
	if !p.loaded.CompareAndSwap(false, true) {
		return nil, errors.InvalidInput(errors.PhaseLoad, "parsed module is already loaded")
	}

	m, err := r.load(ctx, machine, p)
	if err != nil {
		p.loaded.Store(false)
		return nil, err
	}
	return m, nil
}

func (r *Runtime) load(ctx context.Context, machine *engine.Machine, p *ParsedModule) (*Module, error) {
	for _, imp := range p.meta.Imports {
		if imp.Kind != wasm.ExternFunc {
			return nil, errors.New(errors.PhaseLoad, errors.KindUnsupported).
				Name(imp.Module + "." + imp.Name).
				Detail("%s imports are not supported", imp.Kind).
				Build()
		}
	}

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.mu.Unlock()

	m, err := newModule(r, id, p)
	if err != nil {
		return nil, err
	}
	compiled, err := machine.Compile(ctx, m.binary)
	if err != nil {
		return nil, err
	}
	m.compiled = compiled

	r.mu.Lock()
	r.modules = append(r.modules, m)
	r.mu.Unlock()

	r.log.Debug("module loaded",
		zap.String("name", m.name),
		zap.Int("id", id),
		zap.Int("exports", len(m.meta.Exports)))
	return m, nil
}

// Modules returns the loaded modules in load order.
func (r *Runtime) Modules() []*Module {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Module, 0, len(r.modules))
	for _, m := range r.modules {
		if m.token.Alive() {
			out = append(out, m)
		}
	}
	return out
}

// FindModule returns the first loaded module with the given name.
func (r *Runtime) FindModule(name string) (*Module, error) {
	if _, err := r.h.Raw(errors.PhaseLookup); err != nil {
		return nil, err
	}
	for _, m := range r.Modules() {
		if m.name == name {
			return m, nil
		}
	}
	return nil, errors.New(errors.PhaseLookup, errors.KindInvalidInput).
		Name(name).
		Detail("no module named %q", name).
		Build()
}

func (r *Runtime) forget(m *Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, mod := range r.modules {
		if mod == m {
			r.modules = append(r.modules[:i], r.modules[i+1:]...)
			return
		}
	}
}

func (r *Runtime) resolveFunction(phase errors.Phase, name string) (*Module, int, error) {
	if _, err := r.h.Raw(phase); err != nil {
		return nil, 0, err
	}
	for _, m := range r.Modules() {
		if idx, ok := m.funcIndex[name]; ok {
			return m, idx, nil
		}
	}
	return nil, 0, errors.FunctionNotFound(phase, name)
}

// Close releases every module, function and global of the runtime, then
// the interpreter instance. Close is idempotent.
func (r *Runtime) Close(ctx context.Context) error {
	if r.h.Released() {
		return nil
	}
	r.mu.Lock()
	modules := r.modules
	r.modules = nil
	r.mu.Unlock()

	var firstErr error
	for _, m := range modules {
		if err := m.close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := r.h.Release(); err != nil && firstErr == nil {
		firstErr = err
	}
	r.env.forget(r)
	r.log.Debug("runtime closed", zap.Int("modules", len(modules)))
	return firstErr
}

// stackArena hands out call frames from a fixed slot budget. Frames are
// released in reverse order of reservation, which holds because calls on
// one runtime nest on a single goroutine.
type stackArena struct {
	slots []uint64
	sp    int
}

func newStackArena(stackSize uint32) *stackArena {
	return &stackArena{slots: make([]uint64, stackSize/slotSize)}
}

// reserve returns a zeroed frame of n slots, or a stack overflow trap when
// the budget is exhausted.
func (a *stackArena) reserve(n int, fn string) ([]uint64, error) {
	need := n + frameOverhead
	if a.sp+need > len(a.slots) {
		return nil, errors.New(errors.PhaseCall, errors.KindTrap).
			Trap(errors.TrapStackOverflow).
			Name(fn).
			Detail("value stack exhausted: %d of %d slots in use, %d more needed", a.sp, len(a.slots), need).
			Build()
	}
	frame := a.slots[a.sp : a.sp+n : a.sp+n]
	clear(frame)
	a.sp += need
	return frame, nil
}

func (a *stackArena) release(n int) {
	a.sp -= n + frameOverhead
}

func sizeRange() string {
	return fmt.Sprintf("%s..%s", formatBytes(MinStackSize), formatBytes(MaxStackSize))
}

func formatBytes(n uint32) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%dMiB", n>>20)
	case n >= 1<<10 && n%(1<<10) == 0:
		return fmt.Sprintf("%dKiB", n>>10)
	default:
		return fmt.Sprintf("%dB", n)
	}
}
