package runtime

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasmbind/engine"
	"github.com/wippyai/wasmbind/errors"
	"github.com/wippyai/wasmbind/marshal"
)

// FunctionSource is where exported functions are looked up: a single
// *Module, or a *Runtime, which searches its modules in load order.
type FunctionSource interface {
	resolveFunction(phase errors.Phase, name string) (*Module, int, error)
}

var (
	_ FunctionSource = (*Module)(nil)
	_ FunctionSource = (*Runtime)(nil)
)

// binding is the untyped core shared by Function and DynamicFunction.
type binding struct {
	mod    *Module
	fn     api.Function
	name   string
	sig    Signature
	idx    int
	active int
}

func bindAt(m *Module, idx int) (*binding, error) {
	if err := m.check(errors.PhaseLookup); err != nil {
		return nil, err
	}
	if idx < 0 || idx >= len(m.funcs) {
		return nil, errors.New(errors.PhaseLookup, errors.KindFunctionNotFound).
			Name(fmt.Sprintf("#%d", idx)).
			Detail("%s exports %d functions", m.label(), len(m.funcs)).
			Build()
	}
	ef := m.funcs[idx]
	if ef.sigErr != nil {
		return nil, ef.sigErr
	}
	return &binding{mod: m, name: ef.name, sig: ef.sig, idx: idx}, nil
}

func (b *binding) call(ctx context.Context, put func([]uint64), get func([]uint64)) error {
	m := b.mod
	inst, err := m.instance(ctx, errors.PhaseCall)
	if err != nil {
		return err
	}
	// A nested call through a host function gets its own call engine.
	fn := b.fn
	if fn == nil || b.active > 0 {
		if fn = inst.Function(b.name); fn == nil {
			return errors.FunctionNotFound(errors.PhaseCall, b.name)
		}
		if b.fn == nil {
			b.fn = fn
		}
	}
	b.active++
	defer func() { b.active-- }()

	n := max(len(b.sig.Params), len(b.sig.Results))
	arena := m.rt.stack
	frame, err := arena.reserve(n, b.name)
	if err != nil {
		return err
	}
	defer arena.release(n)

	put(frame)
	out := engine.Call(ctx, fn, frame)
	if out.Status != engine.StatusOK {
		return b.fail(ctx, out)
	}
	get(frame)
	return nil
}

// fail maps a failed call outcome to the error returned by Call.
func (b *binding) fail(ctx context.Context, out engine.Outcome) error {
	m := b.mod
	if out.Trap.Poisoning() {
		m.poison(ctx, string(out.Trap))
	}
	switch out.Status {
	case engine.StatusTrap:
		if out.Host != nil {
			return out.Host
		}
		m.log.Warn("trap",
			zap.String("function", b.name),
			zap.String("reason", string(out.Trap)),
			zap.String("message", out.Message))
		return errors.New(errors.PhaseCall, errors.KindTrap).
			Trap(out.Trap).
			Name(b.name).
			Detail("%s", out.Message).
			Cause(out.Err).
			Build()
	case engine.StatusHost:
		return out.Host
	case engine.StatusExit:
		return errors.New(errors.PhaseCall, errors.KindTrap).
			Trap(errors.TrapExit).
			Name(b.name).
			Status(int(out.ExitCode)).
			Detail("guest exited with code %d", out.ExitCode).
			Cause(out.Err).
			Build()
	case engine.StatusCanceled:
		m.poison(ctx, "canceled")
		e := errors.Interpreter(int(out.Status), "call aborted: "+out.Message, out.Err)
		e.Name = b.name
		return e
	default:
		e := errors.Interpreter(int(out.Status), out.Message, out.Err)
		e.Name = b.name
		return e
	}
}

// Function is an exported function with a statically checked signature.
// A is one of the marshal tuples T0..T8, R a scalar or marshal.Void.
type Function[A marshal.Args, R marshal.Result] struct {
	b *binding
}

// FindFunction looks up an exported function by exact name and checks its
// signature against A and R. src is a *Module, or a *Runtime to search
// every loaded module in load order.
func FindFunction[A marshal.Args, R marshal.Result](src FunctionSource, name string) (*Function[A, R], error) {
	m, idx, err := src.resolveFunction(errors.PhaseLookup, name)
	if err != nil {
		return nil, err
	}
	return typed[A, R](m, idx)
}

// FunctionAt looks up the index-th exported function of m, counting
// function exports only, in declaration order.
func FunctionAt[A marshal.Args, R marshal.Result](m *Module, index int) (*Function[A, R], error) {
	return typed[A, R](m, index)
}

func typed[A marshal.Args, R marshal.Result](m *Module, idx int) (*Function[A, R], error) {
	b, err := bindAt(m, idx)
	if err != nil {
		return nil, err
	}
	if got := marshal.SignatureOf[A, R](); !got.Equal(b.sig) {
		return nil, errors.SignatureMismatch(errors.PhaseLookup, b.name, b.sig.String(), got.String())
	}
	return &Function[A, R]{b: b}, nil
}

// Name returns the export name.
func (f *Function[A, R]) Name() string {
	return f.b.name
}

// Index returns the position of the function among the module's function
// exports.
func (f *Function[A, R]) Index() int {
	return f.b.idx
}

// Signature returns the function's signature.
func (f *Function[A, R]) Signature() Signature {
	return f.b.sig
}

// Module returns the module exporting the function.
func (f *Function[A, R]) Module() *Module {
	return f.b.mod
}

// Call invokes the function. Traps come back as KindTrap errors and leave
// the module usable; an exit or a canceled context terminates the module.
func (f *Function[A, R]) Call(ctx context.Context, args A) (R, error) {
	var res R
	err := f.b.call(ctx,
		args.Put,
		func(stack []uint64) {
			res = marshal.DecodeResult[R](stack, len(f.b.sig.Results))
		})
	return res, err
}

// CallValues invokes the function with dynamically typed arguments.
func (f *Function[A, R]) CallValues(ctx context.Context, args ...marshal.Value) ([]marshal.Value, error) {
	return f.b.callValues(ctx, args)
}

func (b *binding) callValues(ctx context.Context, args []marshal.Value) ([]marshal.Value, error) {
	if len(args) != len(b.sig.Params) {
		return nil, errors.New(errors.PhaseEncode, errors.KindSignatureMismatch).
			Name(b.name).
			Want(fmt.Sprintf("%d arguments", len(b.sig.Params))).
			Got(fmt.Sprintf("%d arguments", len(args))).
			Build()
	}
	for i, arg := range args {
		if arg.Kind() != b.sig.Params[i] {
			return nil, errors.New(errors.PhaseEncode, errors.KindSignatureMismatch).
				Name(b.name).
				Want(b.sig.Params[i].String()).
				Got(arg.Kind().String()).
				Detail("argument %d", i).
				Build()
		}
	}

	results := make([]marshal.Value, len(b.sig.Results))
	err := b.call(ctx,
		func(stack []uint64) {
			for i, arg := range args {
				stack[i] = arg.Bits()
			}
		},
		func(stack []uint64) {
			for i, k := range b.sig.Results {
				results[i] = marshal.FromBits(k, stack[i])
			}
		})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// DynamicFunction is an exported function called with marshal.Value
// arguments, for callers that learn signatures at run time.
type DynamicFunction struct {
	b *binding
}

// FindDynamicFunction looks up an exported function by exact name without
// a static signature.
func FindDynamicFunction(src FunctionSource, name string) (*DynamicFunction, error) {
	m, idx, err := src.resolveFunction(errors.PhaseLookup, name)
	if err != nil {
		return nil, err
	}
	b, err := bindAt(m, idx)
	if err != nil {
		return nil, err
	}
	return &DynamicFunction{b: b}, nil
}

// Name returns the export name.
func (f *DynamicFunction) Name() string {
	return f.b.name
}

// Signature returns the function's signature.
func (f *DynamicFunction) Signature() Signature {
	return f.b.sig
}

// Call invokes the function. Arguments must match the signature exactly.
func (f *DynamicFunction) Call(ctx context.Context, args ...marshal.Value) ([]marshal.Value, error) {
	return f.b.callValues(ctx, args)
}
