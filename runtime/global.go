package runtime

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasmbind/errors"
	"github.com/wippyai/wasmbind/internal/wasm"
	"github.com/wippyai/wasmbind/marshal"
)

// Global is an exported global of a module.
type Global struct {
	mod  *Module
	g    api.Global
	name string
	typ  GlobalType
}

// FindGlobal looks up an exported global by exact name, instantiating the
// module if needed.
func (m *Module) FindGlobal(ctx context.Context, name string) (*Global, error) {
	if err := m.check(errors.PhaseLookup); err != nil {
		return nil, err
	}
	typ, ok := m.globals[name]
	if !ok {
		for _, exp := range m.meta.Exports {
			if exp.Name == name && exp.Kind == wasm.ExternGlobal {
				return nil, errors.Unsupported(errors.PhaseLookup, "global "+name+" has a non-scalar type")
			}
		}
		return nil, errors.GlobalNotFound(name)
	}
	inst, err := m.instance(ctx, errors.PhaseLookup)
	if err != nil {
		return nil, err
	}
	g := inst.Global(name)
	if g == nil {
		return nil, errors.GlobalNotFound(name)
	}
	return &Global{mod: m, g: g, name: name, typ: typ}, nil
}

// Name returns the export name.
func (g *Global) Name() string {
	return g.name
}

// Type returns the global's kind and mutability.
func (g *Global) Type() GlobalType {
	return g.typ
}

// Get reads the current value.
func (g *Global) Get() (marshal.Value, error) {
	if err := g.mod.check(errors.PhaseLookup); err != nil {
		return marshal.Value{}, err
	}
	return marshal.FromBits(g.typ.Kind, g.g.Get()), nil
}

// Set writes v. It fails with KindImmutableGlobal for immutable globals
// and KindSignatureMismatch when v has a different kind.
func (g *Global) Set(v marshal.Value) error {
	if err := g.mod.check(errors.PhaseLookup); err != nil {
		return err
	}
	if !g.typ.Mutable {
		return errors.New(errors.PhaseLookup, errors.KindImmutableGlobal).
			Name(g.name).
			Detail("global %s is immutable", g.name).
			Build()
	}
	if v.Kind() != g.typ.Kind {
		return errors.SignatureMismatch(errors.PhaseLookup, g.name, g.typ.Kind.String(), v.Kind().String())
	}
	mg, ok := g.g.(api.MutableGlobal)
	if !ok {
		panic(errors.Internal(errors.PhaseLookup, "mutable global %s has no setter", g.name))
	}
	mg.Set(v.Bits())
	return nil
}

// GetGlobal reads g as T. T must match the global's kind.
func GetGlobal[T marshal.Scalar](g *Global) (T, error) {
	var zero T
	if k := marshal.KindOf[T](); k != g.typ.Kind {
		return zero, errors.SignatureMismatch(errors.PhaseDecode, g.name, g.typ.Kind.String(), k.String())
	}
	v, err := g.Get()
	if err != nil {
		return zero, err
	}
	return marshal.Decode[T](v.Bits()), nil
}

// SetGlobal writes v to g. T must match the global's kind.
func SetGlobal[T marshal.Scalar](g *Global, v T) error {
	return g.Set(marshal.FromBits(marshal.KindOf[T](), marshal.Encode(v)))
}
