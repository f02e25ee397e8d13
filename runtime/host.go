package runtime

import (
	"context"
	stderrors "errors"
	"sync/atomic"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/wasmbind/engine"
	"github.com/wippyai/wasmbind/errors"
	"github.com/wippyai/wasmbind/marshal"
)

// RawHostFunc is an untyped host function working on the raw value stack:
// parameters arrive in stack[0:len(params)] and results are written to
// stack[0:len(results)].
type RawHostFunc func(cc *CallContext, stack []uint64) error

// LinkHostFunction binds fn to the function import moduleName.functionName
// of m. A is a marshal tuple matching the import's parameters and R its
// result; the signature they imply must match the import and, when the
// environment has a type registered under "moduleName.functionName" with
// LinkFunctionType, that type too. A non-nil error from fn aborts the guest
// call and is returned by the Function.Call that entered the guest. Linking
// is only possible before the module is instantiated.
func LinkHostFunction[A any, PA marshal.ArgsPtr[A], R marshal.Result](m *Module, moduleName, functionName string, fn func(cc *CallContext, args A) (R, error)) error {
	var zero A
	sig := Signature{Params: PA(&zero).Kinds(), Results: marshal.ResultKinds[R]()}
	return m.link(moduleName, functionName, sig, func(cc *CallContext, stack []uint64) error {
		var args A
		PA(&args).Load(stack)
		res, err := fn(cc, args)
		if err != nil {
			return err
		}
		marshal.EncodeResult(res, stack)
		return nil
	})
}

// LinkRawHostFunction binds fn to the function import
// moduleName.functionName of m with an explicit signature.
func (m *Module) LinkRawHostFunction(moduleName, functionName string, sig Signature, fn RawHostFunc) error {
	return m.link(moduleName, functionName, sig, fn)
}

func (m *Module) link(moduleName, functionName string, sig Signature, fn RawHostFunc) error {
	if err := m.check(errors.PhaseLink); err != nil {
		return err
	}
	key := moduleName + "." + functionName

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sealed {
		return errors.New(errors.PhaseLink, errors.KindSealed).
			Name(key).
			Detail("%s is already instantiated", m.label()).
			Build()
	}

	imp, _, ok := m.meta.FindImport(moduleName, functionName)
	if !ok {
		return errors.New(errors.PhaseLink, errors.KindFunctionNotFound).
			Name(key).
			Detail("%s has no function import %s", m.label(), key).
			Build()
	}
	if int(imp.TypeIdx) >= len(m.meta.Types) {
		panic(errors.Internal(errors.PhaseLink, "import %s refers to type %d of %d", key, imp.TypeIdx, len(m.meta.Types)))
	}
	want, err := signatureOf(m.meta.Types[imp.TypeIdx])
	if err != nil {
		return err
	}
	if !want.Equal(sig) {
		return errors.SignatureMismatch(errors.PhaseLink, key, want.String(), sig.String())
	}

	renamed := m.renames[moduleName]
	slot := [2]string{renamed, functionName}
	if _, dup := m.hosts[slot]; dup {
		return errors.DuplicateLinkage(moduleName, functionName)
	}
	if registered, ok := m.rt.env.FunctionType(key); ok && !registered.Equal(sig) {
		return errors.SignatureMismatch(errors.PhaseLink, key, registered.String(), sig.String())
	}

	m.hosts[slot] = engine.HostFunc{
		Module:  renamed,
		Name:    functionName,
		Params:  marshal.ValueTypes(sig.Params),
		Results: marshal.ValueTypes(sig.Results),
		Fn:      m.trampoline(key, fn),
	}
	m.log.Debug("host function linked", zap.String("module", m.label()), zap.String("import", key), zap.Stringer("signature", sig))
	return nil
}

// trampoline adapts fn to the interpreter's host calling convention.
// Errors cross the guest frames as panics, which the interpreter recovers
// and returns from the outermost call.
func (m *Module) trampoline(key string, fn RawHostFunc) api.GoModuleFunc {
	return func(ctx context.Context, caller api.Module, stack []uint64) {
		if err := m.invokeHost(ctx, caller, stack, fn); err != nil {
			panic(hostError(key, err))
		}
	}
}

func (m *Module) invokeHost(ctx context.Context, caller api.Module, stack []uint64, fn RawHostFunc) error {
	cc := &CallContext{ctx: ctx, mod: m, caller: caller}
	defer cc.done.Store(true)
	return fn(cc, stack)
}

// hostError keeps exits and binding errors intact so they reach the caller
// of Function.Call unchanged. Anything else becomes a host trap.
func hostError(key string, err error) error {
	var exit *sys.ExitError
	if stderrors.As(err, &exit) {
		return exit
	}
	if e, ok := errors.As(err); ok {
		return e
	}
	return errors.New(errors.PhaseHost, errors.KindTrap).
		Trap(errors.TrapHost).
		Name(key).
		Detail("%s", err.Error()).
		Cause(err).
		Build()
}

// CallContext is handed to host functions. It is valid only while the host
// function runs; afterwards every method fails with KindClosed.
type CallContext struct {
	ctx    context.Context
	mod    *Module
	caller api.Module
	done   atomic.Bool
}

func (c *CallContext) check(phase errors.Phase) error {
	if c.done.Load() {
		return errors.Closed(phase, "call context")
	}
	return c.mod.check(phase)
}

// Valid reports whether the host function is still running.
func (c *CallContext) Valid() bool {
	return c.check(errors.PhaseHost) == nil
}

// Context returns the context of the guest call. After the host function
// returns it is a canceled context whose cause is a KindClosed error.
func (c *CallContext) Context() context.Context {
	if err := c.check(errors.PhaseHost); err != nil {
		ctx, cancel := context.WithCancelCause(context.Background())
		cancel(err)
		return ctx
	}
	return c.ctx
}

// Memory returns a view of the calling module's memory, valid for the
// duration of the host function.
func (c *CallContext) Memory() (*MemoryView, error) {
	if err := c.check(errors.PhaseMemory); err != nil {
		return nil, err
	}
	mem := c.caller.Memory()
	if mem == nil {
		return nil, errors.New(errors.PhaseMemory, errors.KindMemoryAccess).
			Name(c.mod.name).
			Detail("%s has no memory", c.mod.label()).
			Build()
	}
	return &MemoryView{mem: mem, alive: c.Valid}, nil
}

// Module returns the calling module.
func (c *CallContext) Module() (*Module, error) {
	if err := c.check(errors.PhaseHost); err != nil {
		return nil, err
	}
	return c.mod, nil
}

// ModuleName returns the calling module's name.
func (c *CallContext) ModuleName() (string, error) {
	if err := c.check(errors.PhaseHost); err != nil {
		return "", err
	}
	return c.mod.name, nil
}

// Runtime returns the runtime the calling module is loaded into. Guest
// functions of that runtime can be called from the host function.
func (c *CallContext) Runtime() (*Runtime, error) {
	if err := c.check(errors.PhaseHost); err != nil {
		return nil, err
	}
	return c.mod.rt, nil
}

// Exit terminates the calling module with code. The host function must
// return the error Exit returns; the guest call then fails with TrapExit
// and the module can no longer be used.
func (c *CallContext) Exit(code uint32) error {
	if err := c.check(errors.PhaseHost); err != nil {
		return err
	}
	_ = c.caller.CloseWithExitCode(c.ctx, code)
	return sys.NewExitError(code)
}
