package engine

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasmbind/errors"
)

// Machine is one isolated interpreter instance: its own module namespace,
// its own instances and its own host modules.
type Machine struct {
	rt     wazero.Runtime
	log    *zap.Logger
	closed atomic.Bool
}

// Compiled is a module compiled by a Machine, ready to be instantiated in
// that same Machine.
type Compiled struct {
	mod     wazero.CompiledModule
	machine *Machine
}

// HostFunc binds a Go function to one function import.
type HostFunc struct {
	Fn      api.GoModuleFunc
	Module  string
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

// Compile compiles a module binary. Failures carry the interpreter's
// diagnostic as a KindModuleLoad error.
func (m *Machine) Compile(ctx context.Context, data []byte) (*Compiled, error) {
	if m.closed.Load() {
		return nil, errors.Closed(errors.PhaseLoad, "machine")
	}
	mod, err := m.rt.CompileModule(ctx, data)
	if err != nil {
		return nil, errors.ModuleLoad(diagnostic(err), err)
	}
	return &Compiled{mod: mod, machine: m}, nil
}

// Close releases the compiled code.
func (c *Compiled) Close(ctx context.Context) error {
	return c.mod.Close(ctx)
}

// Instantiate links hosts into fresh host modules and instantiates c
// against them. Function imports with no matching HostFunc are bound to
// stubs that trap with TrapMissingImport when called. The start section
// runs; exported _start functions do not.
func (m *Machine) Instantiate(ctx context.Context, c *Compiled, hosts []HostFunc) (*Instance, error) {
	if m.closed.Load() {
		return nil, errors.Closed(errors.PhaseLink, "machine")
	}
	if c.machine != m {
		return nil, errors.Internal(errors.PhaseLink, "module compiled by a different machine")
	}

	byModule := make(map[string][]HostFunc)
	var order []string
	add := func(h HostFunc) {
		if _, ok := byModule[h.Module]; !ok {
			order = append(order, h.Module)
		}
		byModule[h.Module] = append(byModule[h.Module], h)
	}

	linked := make(map[[2]string]bool, len(hosts))
	for _, h := range hosts {
		add(h)
		linked[[2]string{h.Module, h.Name}] = true
	}
	for _, def := range c.mod.ImportedFunctions() {
		modName, name, _ := def.Import()
		if linked[[2]string{modName, name}] {
			continue
		}
		add(HostFunc{
			Module:  modName,
			Name:    name,
			Params:  def.ParamTypes(),
			Results: def.ResultTypes(),
			Fn:      MissingImport(modName, name),
		})
		debugf("import %s.%s left unlinked", modName, name)
	}

	inst := &Instance{log: m.log}
	for _, modName := range order {
		builder := m.rt.NewHostModuleBuilder(modName)
		for _, h := range byModule[modName] {
			builder = builder.NewFunctionBuilder().
				WithGoModuleFunction(h.Fn, h.Params, h.Results).
				WithName(h.Name).
				Export(h.Name)
		}
		hostMod, err := builder.Instantiate(ctx)
		if err != nil {
			_ = inst.Close(ctx)
			return nil, errors.New(errors.PhaseLink, errors.KindInterpreter).
				Name(modName).
				Detail("instantiate host module: %s", diagnostic(err)).
				Cause(err).
				Build()
		}
		inst.hosts = append(inst.hosts, hostMod)
	}

	mod, err := m.rt.InstantiateModule(ctx, c.mod, wazero.NewModuleConfig().WithName("").WithStartFunctions())
	if err != nil {
		_ = inst.Close(ctx)
		out := Classify(err)
		if out.Status == StatusHost {
			return nil, out.Host
		}
		if out.Status == StatusTrap {
			return nil, errors.Trap(out.Trap, "start function: "+out.Message, err)
		}
		return nil, errors.New(errors.PhaseLink, errors.KindInterpreter).
			Status(int(out.Status)).
			Detail("instantiate: %s", out.Message).
			Cause(err).
			Build()
	}
	inst.mod = mod
	m.log.Debug("module instantiated", zap.Int("host_modules", len(inst.hosts)))
	return inst, nil
}

// MissingImport returns a function that traps with TrapMissingImport.
func MissingImport(module, name string) api.GoModuleFunc {
	return func(context.Context, api.Module, []uint64) {
		panic(errors.New(errors.PhaseCall, errors.KindTrap).
			Trap(errors.TrapMissingImport).
			Name(module + "." + name).
			Detail("import %s.%s is not linked", module, name).
			Build())
	}
}

// Close closes every instance and host module of the machine. Close is
// idempotent.
func (m *Machine) Close(ctx context.Context) error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := m.rt.Close(ctx); err != nil {
		return errors.Wrap(errors.PhaseAlloc, errors.KindInternal, err, fmt.Sprintf("close machine: %v", err))
	}
	m.log.Debug("machine closed")
	return nil
}

// Closed reports whether Close has been called.
func (m *Machine) Closed() bool {
	return m.closed.Load()
}
