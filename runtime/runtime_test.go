package runtime

import (
	"context"
	"testing"

	"github.com/wippyai/wasmbind/errors"
	"github.com/wippyai/wasmbind/internal/wasmtest"
	"github.com/wippyai/wasmbind/marshal"
)

func newEnv(t *testing.T, cfg *EnvironmentConfig) *Environment {
	t.Helper()
	ctx := context.Background()
	env, err := NewEnvironment(ctx, cfg)
	if err != nil {
		t.Fatalf("NewEnvironment failed: %v", err)
	}
	t.Cleanup(func() { _ = env.Close(ctx) })
	return env
}

func newRuntime(t *testing.T, stackSize uint32) *Runtime {
	t.Helper()
	env := newEnv(t, nil)
	rt, err := env.NewRuntime(context.Background(), stackSize)
	if err != nil {
		t.Fatalf("NewRuntime failed: %v", err)
	}
	return rt
}

func loadModule(t *testing.T, rt *Runtime, data []byte) *Module {
	t.Helper()
	mod, err := rt.LoadModule(context.Background(), data)
	if err != nil {
		t.Fatalf("LoadModule failed: %v", err)
	}
	return mod
}

func TestNewEnvironment(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *EnvironmentConfig
		wantErr errors.Kind
	}{
		{"nil config", nil, ""},
		{"memory limit", &EnvironmentConfig{MemoryLimitPages: 16}, ""},
		{"cache dir", &EnvironmentConfig{CompilationCacheDir: t.TempDir()}, ""},
		{"memory limit too large", &EnvironmentConfig{MemoryLimitPages: 1 << 20}, errors.KindAllocation},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			env, err := NewEnvironment(ctx, tc.cfg)
			if tc.wantErr != "" {
				if !errors.IsKind(err, tc.wantErr) {
					t.Fatalf("expected %s, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewEnvironment failed: %v", err)
			}
			if !env.Alive() {
				t.Error("new environment should be alive")
			}
			if err := env.Close(ctx); err != nil {
				t.Errorf("Close failed: %v", err)
			}
			if env.Alive() {
				t.Error("closed environment should not be alive")
			}
			if err := env.Close(ctx); err != nil {
				t.Errorf("second Close failed: %v", err)
			}
		})
	}
}

func TestNewRuntime_StackSize(t *testing.T) {
	env := newEnv(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		size uint32
		ok   bool
	}{
		{"zero", 0, false},
		{"below minimum", MinStackSize - 1, false},
		{"minimum", MinStackSize, true},
		{"default", DefaultStackSize, true},
		{"one mebibyte", 1 << 20, true},
		{"above maximum", MaxStackSize + 1, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rt, err := env.NewRuntime(ctx, tc.size)
			if !tc.ok {
				if !errors.IsKind(err, errors.KindAllocation) {
					t.Fatalf("expected allocation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewRuntime failed: %v", err)
			}
			defer rt.Close(ctx)
			if got := rt.StackSize(); got != tc.size/slotSize*slotSize {
				t.Errorf("StackSize = %d, want %d", got, tc.size)
			}
		})
	}
}

func TestLinkFunctionType(t *testing.T) {
	env := newEnv(t, nil)
	sig := Signature{Params: []marshal.Kind{marshal.I32, marshal.I32}, Results: []marshal.Kind{marshal.I32}}

	if err := env.LinkFunctionType("binop", sig); err != nil {
		t.Fatalf("LinkFunctionType failed: %v", err)
	}
	if err := env.LinkFunctionType("binop", sig); err != nil {
		t.Errorf("relinking the same shape should succeed: %v", err)
	}
	other := Signature{Params: []marshal.Kind{marshal.I64}, Results: []marshal.Kind{marshal.I64}}
	if err := env.LinkFunctionType("binop", other); !errors.IsKind(err, errors.KindSignatureMismatch) {
		t.Errorf("expected signature mismatch, got %v", err)
	}
	if err := env.LinkFunctionType("", sig); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}

	got, ok := env.FunctionType("binop")
	if !ok || !got.Equal(sig) {
		t.Errorf("FunctionType = %s, %v; want %s", got, ok, sig)
	}
}

func TestLoadModule(t *testing.T) {
	rt := newRuntime(t, DefaultStackSize)
	mod := loadModule(t, rt, wasmtest.Arith())

	if mod.Name() != "arith" {
		t.Errorf("Name = %q, want arith", mod.Name())
	}
	if got, err := rt.FindModule("arith"); err != nil || got != mod {
		t.Errorf("FindModule = %v, %v", got, err)
	}
	if _, err := rt.FindModule("nope"); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Errorf("expected invalid input for unknown module, got %v", err)
	}
	if n := len(rt.Modules()); n != 1 {
		t.Errorf("Modules() has %d entries, want 1", n)
	}
}

func TestLoadModule_Invalid(t *testing.T) {
	rt := newRuntime(t, DefaultStackSize)
	arith := wasmtest.Arith()

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte("not a wasm module")},
		{"truncated", arith[:len(arith)-3]},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := rt.LoadModule(context.Background(), tc.data)
			if !errors.IsKind(err, errors.KindModuleLoad) {
				t.Fatalf("expected module load error, got %v", err)
			}
			if n := len(rt.Modules()); n != 0 {
				t.Errorf("failed load registered %d modules", n)
			}
		})
	}
}

func TestParsedModule(t *testing.T) {
	env := newEnv(t, nil)
	ctx := context.Background()
	rt, err := env.NewRuntime(ctx, DefaultStackSize)
	if err != nil {
		t.Fatalf("NewRuntime failed: %v", err)
	}

	p, err := env.ParseModule(ctx, wasmtest.Arith())
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}
	if p.Name() != "arith" {
		t.Errorf("Name = %q, want arith", p.Name())
	}
	if len(p.Exports()) == 0 {
		t.Error("expected exports")
	}

	other := newEnv(t, nil)
	otherRT, err := other.NewRuntime(ctx, DefaultStackSize)
	if err != nil {
		t.Fatalf("NewRuntime failed: %v", err)
	}
	if _, err := otherRT.Load(ctx, p); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Errorf("expected invalid input for foreign environment, got %v", err)
	}

	if _, err := rt.Load(ctx, p); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := rt.Load(ctx, p); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Errorf("expected invalid input for second load, got %v", err)
	}
	p.Close()
	if n := len(rt.Modules()); n != 1 {
		t.Errorf("closing a loaded parsed module affected the runtime: %d modules", n)
	}

	closed, err := env.ParseModule(ctx, wasmtest.Arith())
	if err != nil {
		t.Fatalf("ParseModule failed: %v", err)
	}
	closed.Close()
	if _, err := rt.Load(ctx, closed); !errors.IsKind(err, errors.KindClosed) {
		t.Errorf("expected closed error, got %v", err)
	}
}

func TestLoadModule_UnsupportedImport(t *testing.T) {
	b := wasmtest.New()
	b.ImportGlobal("env", "base", wasmtest.I32, false)
	b.Func("noop", nil, nil, nil)

	rt := newRuntime(t, DefaultStackSize)
	_, err := rt.LoadModule(context.Background(), b.Bytes())
	if !errors.IsKind(err, errors.KindUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
}

func TestRuntime_FindFunctionAcrossModules(t *testing.T) {
	rt := newRuntime(t, DefaultStackSize)
	loadModule(t, rt, wasmtest.Imports())
	arith := loadModule(t, rt, wasmtest.Arith())

	add, err := FindFunction[marshal.T2[int32, int32], int32](rt, "add")
	if err != nil {
		t.Fatalf("FindFunction failed: %v", err)
	}
	if add.Module() != arith {
		t.Error("add should resolve to the arith module")
	}
	got, err := add.Call(context.Background(), marshal.Tuple2(int32(40), int32(2)))
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if got != 42 {
		t.Errorf("add(40, 2) = %d, want 42", got)
	}

	if _, err := FindFunction[marshal.T0, marshal.Void](rt, "missing"); !errors.IsKind(err, errors.KindFunctionNotFound) {
		t.Errorf("expected function not found, got %v", err)
	}
}

func TestRuntime_Close(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, DefaultStackSize)
	mod := loadModule(t, rt, wasmtest.Arith())

	add, err := FindFunction[marshal.T2[int32, int32], int32](mod, "add")
	if err != nil {
		t.Fatalf("FindFunction failed: %v", err)
	}
	if _, err := add.Call(ctx, marshal.Tuple2(int32(1), int32(1))); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	counter, err := mod.FindGlobal(ctx, "counter")
	if err != nil {
		t.Fatalf("FindGlobal failed: %v", err)
	}

	if err := rt.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := rt.Close(ctx); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	if rt.Alive() || mod.Alive() {
		t.Error("runtime and module should be dead after Close")
	}
	if _, err := add.Call(ctx, marshal.Tuple2(int32(1), int32(1))); !errors.IsKind(err, errors.KindClosed) {
		t.Errorf("expected closed error from Call, got %v", err)
	}
	if _, err := counter.Get(); !errors.IsKind(err, errors.KindClosed) {
		t.Errorf("expected closed error from Global.Get, got %v", err)
	}
	if _, err := FindFunction[marshal.T2[int32, int32], int32](mod, "add"); !errors.IsKind(err, errors.KindClosed) {
		t.Errorf("expected closed error from FindFunction, got %v", err)
	}
	if _, err := rt.LoadModule(ctx, wasmtest.Arith()); !errors.IsKind(err, errors.KindClosed) {
		t.Errorf("expected closed error from LoadModule, got %v", err)
	}
}

func TestEnvironment_CloseCascades(t *testing.T) {
	ctx := context.Background()
	env, err := NewEnvironment(ctx, nil)
	if err != nil {
		t.Fatalf("NewEnvironment failed: %v", err)
	}
	rt, err := env.NewRuntime(ctx, DefaultStackSize)
	if err != nil {
		t.Fatalf("NewRuntime failed: %v", err)
	}
	mod := loadModule(t, rt, wasmtest.Arith())
	add, err := FindFunction[marshal.T2[int32, int32], int32](mod, "add")
	if err != nil {
		t.Fatalf("FindFunction failed: %v", err)
	}

	if err := env.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if rt.Alive() {
		t.Error("runtime should be dead after environment Close")
	}
	if _, err := add.Call(ctx, marshal.Tuple2(int32(1), int32(2))); !errors.IsKind(err, errors.KindClosed) {
		t.Errorf("expected closed error, got %v", err)
	}
	if _, err := env.NewRuntime(ctx, DefaultStackSize); !errors.IsKind(err, errors.KindClosed) {
		t.Errorf("expected closed error from NewRuntime, got %v", err)
	}
	if _, err := env.ParseModule(ctx, wasmtest.Arith()); !errors.IsKind(err, errors.KindClosed) {
		t.Errorf("expected closed error from ParseModule, got %v", err)
	}
}

func TestStackArena(t *testing.T) {
	a := newStackArena(MinStackSize)
	slots := MinStackSize / slotSize

	frame, err := a.reserve(3, "f")
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if len(frame) != 3 {
		t.Errorf("frame has %d slots, want 3", len(frame))
	}
	if a.sp != 3+frameOverhead {
		t.Errorf("sp = %d, want %d", a.sp, 3+frameOverhead)
	}

	if _, err := a.reserve(slots, "g"); !errors.IsTrap(err, errors.TrapStackOverflow) {
		t.Errorf("expected stack overflow trap, got %v", err)
	}
	a.release(3)
	if a.sp != 0 {
		t.Errorf("sp = %d after release, want 0", a.sp)
	}
}
