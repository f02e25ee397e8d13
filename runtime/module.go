package runtime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/wasmbind/engine"
	"github.com/wippyai/wasmbind/errors"
	"github.com/wippyai/wasmbind/internal/handle"
	"github.com/wippyai/wasmbind/internal/wasm"
	"github.com/wippyai/wasmbind/marshal"
)

// GlobalType is the value kind and mutability of a global.
type GlobalType struct {
	Kind    marshal.Kind
	Mutable bool
}

func (g GlobalType) String() string {
	if g.Mutable {
		return "mut " + g.Kind.String()
	}
	return g.Kind.String()
}

// Export describes one module export. Signature is set for functions,
// Global for globals.
type Export struct {
	Name      string
	Kind      string
	Signature Signature
	Global    GlobalType
	// Supported is false when the export uses value types outside i32, i64,
	// f32 and f64.
	Supported bool
}

// Import describes one module import.
type Import struct {
	Module    string
	Name      string
	Kind      string
	Signature Signature
	Linked    bool
}

// exportedFunc is one entry of a module's export-function table.
type exportedFunc struct {
	name   string
	sig    Signature
	sigErr error
	index  uint32
}

// Module is a module loaded into a Runtime. It is instantiated lazily, on
// the first call or on the first access to its memory or globals; host
// functions can be linked only before that.
type Module struct {
	rt       *Runtime
	token    *handle.Token
	meta     *wasm.Metadata
	compiled *engine.Compiled
	inst     *engine.Instance
	instErr  error
	log      *zap.Logger

	name      string
	binary    []byte
	renames   map[string]string
	funcs     []exportedFunc
	funcIndex map[string]int
	globals   map[string]GlobalType
	hosts     map[[2]string]engine.HostFunc

	id            int
	mu            sync.Mutex
	sealed        bool
	instantiating bool
	poisoned      atomic.Bool
}

func newModule(r *Runtime, id int, p *ParsedModule) (*Module, error) {
	m := &Module{
		rt:        r,
		token:     handle.NewToken(r.h),
		meta:      p.meta,
		log:       r.log,
		name:      p.meta.Name,
		renames:   make(map[string]string),
		funcIndex: make(map[string]int),
		globals:   make(map[string]GlobalType),
		hosts:     make(map[[2]string]engine.HostFunc),
		id:        id,
	}

	binary, err := wasm.RewriteImportModules(p.data, func(module string) string {
		renamed, ok := m.renames[module]
		if !ok {
			renamed = fmt.Sprintf("%s@%d", module, id)
			m.renames[module] = renamed
		}
		return renamed
	})
	if err != nil {
		return nil, errors.ModuleLoad("rewrite imports: "+err.Error(), err)
	}
	m.binary = binary

	for _, exp := range p.meta.Exports {
		switch exp.Kind {
		case wasm.ExternFunc:
			ft, ok := p.meta.FuncType(exp.Index)
			if !ok {
				return nil, errors.ModuleLoad(fmt.Sprintf("export %q refers to unknown function %d", exp.Name, exp.Index), nil)
			}
			sig, sigErr := signatureOf(ft)
			if sigErr != nil {
				sigErr = errors.New(errors.PhaseLookup, errors.KindUnsupported).
					Name(exp.Name).
					Detail("signature %s", ft).
					Cause(sigErr).
					Build()
			}
			m.funcIndex[exp.Name] = len(m.funcs)
			m.funcs = append(m.funcs, exportedFunc{name: exp.Name, sig: sig, sigErr: sigErr, index: exp.Index})
		case wasm.ExternGlobal:
			gt, ok := p.meta.GlobalType(exp.Index)
			if !ok {
				return nil, errors.ModuleLoad(fmt.Sprintf("export %q refers to unknown global %d", exp.Name, exp.Index), nil)
			}
			if kind, err := kindOf(gt.Type); err == nil {
				m.globals[exp.Name] = GlobalType{Kind: kind, Mutable: gt.Mutable}
			}
		}
	}
	return m, nil
}

// Name returns the module name from the name section, or "".
func (m *Module) Name() string {
	return m.name
}

// Runtime returns the runtime the module is loaded into.
func (m *Module) Runtime() *Runtime {
	return m.rt
}

// Alive reports whether the module is usable: loaded into an open runtime
// and not terminated by an exit or a canceled call.
func (m *Module) Alive() bool {
	return m.token.Alive() && !m.poisoned.Load()
}

// Instantiated reports whether the module has been instantiated.
func (m *Module) Instantiated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inst != nil
}

// Exports describes the module's exports in declaration order.
func (m *Module) Exports() []Export {
	return describeExports(m.meta)
}

// Imports describes the module's imports in declaration order, with the
// functions linked so far marked.
func (m *Module) Imports() []Import {
	m.mu.Lock()
	defer m.mu.Unlock()
	return describeImports(m.meta, func(module, name string) bool {
		_, ok := m.hosts[[2]string{m.renames[module], name}]
		return ok
	})
}

// FunctionCount returns the number of exported functions. Valid indexes
// for FunctionAt run from 0 to FunctionCount()-1.
func (m *Module) FunctionCount() int {
	return len(m.funcs)
}

func (m *Module) label() string {
	if m.name != "" {
		return fmt.Sprintf("module %q", m.name)
	}
	return fmt.Sprintf("module #%d", m.id)
}

func (m *Module) check(phase errors.Phase) error {
	if !m.token.Alive() {
		return errors.Closed(phase, m.label())
	}
	if m.poisoned.Load() {
		return errors.New(phase, errors.KindClosed).
			Name(m.name).
			Detail("%s was terminated and can no longer be used", m.label()).
			Build()
	}
	return nil
}

func (m *Module) resolveFunction(phase errors.Phase, name string) (*Module, int, error) {
	if err := m.check(phase); err != nil {
		return nil, 0, err
	}
	idx, ok := m.funcIndex[name]
	if !ok {
		return nil, 0, errors.FunctionNotFound(phase, name)
	}
	return m, idx, nil
}

// Instantiate instantiates the module now instead of on first use. It runs
// the start section, if any. Calling it again returns the first result.
func (m *Module) Instantiate(ctx context.Context) error {
	_, err := m.instance(ctx, errors.PhaseLink)
	return err
}

func (m *Module) instance(ctx context.Context, phase errors.Phase) (*engine.Instance, error) {
	if err := m.check(phase); err != nil {
		return nil, err
	}
	machine, err := m.rt.h.Raw(phase)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.inst != nil || m.instErr != nil {
		inst, err := m.inst, m.instErr
		m.mu.Unlock()
		return inst, err
	}
	if m.instantiating {
		m.mu.Unlock()
		return nil, errors.New(phase, errors.KindInvalidInput).
			Name(m.name).
			Detail("%s is still being instantiated", m.label()).
			Build()
	}
	m.instantiating = true
	m.sealed = true
	hosts := m.linkedHosts()
	m.mu.Unlock()

	inst, err := machine.Instantiate(ctx, m.compiled, hosts)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.instantiating = false
	if err != nil {
		m.instErr = err
		m.log.Warn("instantiate failed", zap.String("module", m.label()), zap.Error(err))
		return nil, err
	}
	m.inst = inst
	m.log.Debug("module instantiated",
		zap.String("module", m.label()),
		zap.Int("linked", len(hosts)))
	return inst, nil
}

// linkedHosts returns the linked host functions in import order.
// m.mu must be held.
func (m *Module) linkedHosts() []engine.HostFunc {
	hosts := make([]engine.HostFunc, 0, len(m.hosts))
	for _, imp := range m.meta.Imports {
		if h, ok := m.hosts[[2]string{m.renames[imp.Module], imp.Name}]; ok {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

// Memory returns a view of the module's linear memory, instantiating the
// module if needed. The view fails with KindClosed once the module is gone.
func (m *Module) Memory(ctx context.Context) (*MemoryView, error) {
	inst, err := m.instance(ctx, errors.PhaseMemory)
	if err != nil {
		return nil, err
	}
	mem := inst.Memory()
	if mem == nil {
		return nil, errors.New(errors.PhaseMemory, errors.KindMemoryAccess).
			Name(m.name).
			Detail("%s has no memory", m.label()).
			Build()
	}
	return &MemoryView{mem: mem, alive: m.Alive}, nil
}

// poison terminates the module after an exit or a canceled call. Later use
// fails with KindClosed.
func (m *Module) poison(ctx context.Context, reason string) {
	if m.poisoned.Swap(true) {
		return
	}
	m.mu.Lock()
	inst := m.inst
	m.mu.Unlock()
	if inst != nil && !inst.Closed() {
		_ = inst.Close(ctx)
	}
	m.log.Debug("module terminated", zap.String("module", m.label()), zap.String("reason", reason))
}

// Close unloads the module from its runtime. Functions and globals found
// on it fail with KindClosed afterwards. Close is idempotent.
func (m *Module) Close(ctx context.Context) error {
	if !m.token.Alive() {
		return nil
	}
	m.rt.forget(m)
	return m.close(ctx)
}

func (m *Module) close(ctx context.Context) error {
	m.token.Kill()

	m.mu.Lock()
	inst, compiled := m.inst, m.compiled
	m.inst, m.compiled = nil, nil
	m.hosts = nil
	m.mu.Unlock()

	var firstErr error
	if inst != nil {
		if err := inst.Close(ctx); err != nil {
			firstErr = err
		}
	}
	if compiled != nil {
		if err := compiled.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.log.Debug("module closed", zap.String("module", m.label()))
	return firstErr
}

func kindOf(vt wasm.ValType) (marshal.Kind, error) {
	k := marshal.Kind(vt)
	if !k.Valid() {
		return 0, errors.Unsupported(errors.PhaseLookup, "value type "+vt.String())
	}
	return k, nil
}

func kindsOf(vts []wasm.ValType) ([]marshal.Kind, error) {
	out := make([]marshal.Kind, len(vts))
	for i, vt := range vts {
		k, err := kindOf(vt)
		if err != nil {
			return nil, err
		}
		out[i] = k
	}
	return out, nil
}

func signatureOf(ft wasm.FuncType) (Signature, error) {
	params, err := kindsOf(ft.Params)
	if err != nil {
		return Signature{}, err
	}
	results, err := kindsOf(ft.Results)
	if err != nil {
		return Signature{}, err
	}
	return Signature{Params: params, Results: results}, nil
}

func describeExports(meta *wasm.Metadata) []Export {
	out := make([]Export, 0, len(meta.Exports))
	for _, exp := range meta.Exports {
		e := Export{Name: exp.Name, Kind: exp.Kind.String(), Supported: true}
		switch exp.Kind {
		case wasm.ExternFunc:
			ft, _ := meta.FuncType(exp.Index)
			sig, err := signatureOf(ft)
			e.Signature, e.Supported = sig, err == nil
		case wasm.ExternGlobal:
			gt, _ := meta.GlobalType(exp.Index)
			kind, err := kindOf(gt.Type)
			e.Global, e.Supported = GlobalType{Kind: kind, Mutable: gt.Mutable}, err == nil
		}
		out = append(out, e)
	}
	return out
}

func describeImports(meta *wasm.Metadata, linked func(module, name string) bool) []Import {
	out := make([]Import, 0, len(meta.Imports))
	for _, imp := range meta.Imports {
		i := Import{Module: imp.Module, Name: imp.Name, Kind: imp.Kind.String()}
		if imp.Kind == wasm.ExternFunc && int(imp.TypeIdx) < len(meta.Types) {
			i.Signature, _ = signatureOf(meta.Types[imp.TypeIdx])
			if linked != nil {
				i.Linked = linked(imp.Module, imp.Name)
			}
		}
		out = append(out, i)
	}
	return out
}
