package runtime

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/wippyai/wasmbind/errors"
	"github.com/wippyai/wasmbind/internal/wasmtest"
	"github.com/wippyai/wasmbind/marshal"
)

func arith(t *testing.T) *Module {
	t.Helper()
	return loadModule(t, newRuntime(t, DefaultStackSize), wasmtest.Arith())
}

func TestFunction_Call(t *testing.T) {
	mod := arith(t)
	ctx := context.Background()

	add, err := FindFunction[marshal.T2[int32, int32], int32](mod, "add")
	if err != nil {
		t.Fatalf("FindFunction failed: %v", err)
	}
	got, err := add.Call(ctx, marshal.Tuple2(int32(2), int32(3)))
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if got != 5 {
		t.Errorf("add(2, 3) = %d, want 5", got)
	}
	if add.Name() != "add" || add.Signature().String() != "(i32, i32) -> i32" {
		t.Errorf("unexpected binding %s %s", add.Name(), add.Signature())
	}

	add64, err := FindFunction[marshal.T2[int64, int64], int64](mod, "add64")
	if err != nil {
		t.Fatalf("FindFunction add64 failed: %v", err)
	}
	if got, err := add64.Call(ctx, marshal.Tuple2(int64(math.MaxInt64), int64(1))); err != nil || got != math.MinInt64 {
		t.Errorf("add64 wraparound = %d, %v", got, err)
	}

	addf64, err := FindFunction[marshal.T2[float64, float64], float64](mod, "addf64")
	if err != nil {
		t.Fatalf("FindFunction addf64 failed: %v", err)
	}
	if got, err := addf64.Call(ctx, marshal.Tuple2(1.5, 2.25)); err != nil || got != 3.75 {
		t.Errorf("addf64(1.5, 2.25) = %v, %v", got, err)
	}

	noop, err := FindFunction[marshal.T0, marshal.Void](mod, "noop")
	if err != nil {
		t.Fatalf("FindFunction noop failed: %v", err)
	}
	if _, err := noop.Call(ctx, marshal.T0{}); err != nil {
		t.Errorf("noop failed: %v", err)
	}
}

func TestFunction_IdentityRoundTrip(t *testing.T) {
	mod := arith(t)
	ctx := context.Background()

	idU32, err := FindFunction[marshal.T1[uint32], uint32](mod, "id_i32")
	if err != nil {
		t.Fatalf("FindFunction failed: %v", err)
	}
	for _, v := range []uint32{0, 1, math.MaxInt32, math.MaxUint32} {
		got, err := idU32.Call(ctx, marshal.Tuple1(v))
		if err != nil || got != v {
			t.Errorf("id_i32(%d) = %d, %v", v, got, err)
		}
	}

	idF32, err := FindFunction[marshal.T1[float32], float32](mod, "id_f32")
	if err != nil {
		t.Fatalf("FindFunction failed: %v", err)
	}
	for _, v := range []float32{0, -1.5, math.MaxFloat32, float32(math.Inf(-1))} {
		got, err := idF32.Call(ctx, marshal.Tuple1(v))
		if err != nil || got != v {
			t.Errorf("id_f32(%v) = %v, %v", v, got, err)
		}
	}

	idU64, err := FindFunction[marshal.T1[uint64], uint64](mod, "id_i64")
	if err != nil {
		t.Fatalf("FindFunction failed: %v", err)
	}
	if got, err := idU64.Call(ctx, marshal.Tuple1(uint64(math.MaxUint64))); err != nil || got != math.MaxUint64 {
		t.Errorf("id_i64(max) = %d, %v", got, err)
	}
}

func TestFindFunction_Errors(t *testing.T) {
	mod := arith(t)

	if _, err := FindFunction[marshal.T1[int64], int32](mod, "id_i32"); !errors.IsKind(err, errors.KindSignatureMismatch) {
		t.Errorf("expected signature mismatch for params, got %v", err)
	}
	if _, err := FindFunction[marshal.T1[int32], int64](mod, "id_i32"); !errors.IsKind(err, errors.KindSignatureMismatch) {
		t.Errorf("expected signature mismatch for result, got %v", err)
	}
	if _, err := FindFunction[marshal.T2[int32, int32], int32](mod, "Add"); !errors.IsKind(err, errors.KindFunctionNotFound) {
		t.Errorf("lookup should be case-sensitive, got %v", err)
	}
	if _, err := FindFunction[marshal.T0, marshal.Void](mod, "counter"); !errors.IsKind(err, errors.KindFunctionNotFound) {
		t.Errorf("a global is not a function, got %v", err)
	}
}

func TestFunctionAt(t *testing.T) {
	mod := arith(t)

	add, err := FunctionAt[marshal.T2[int32, int32], int32](mod, 0)
	if err != nil {
		t.Fatalf("FunctionAt failed: %v", err)
	}
	if add.Name() != "add" || add.Index() != 0 {
		t.Errorf("FunctionAt(0) = %s #%d", add.Name(), add.Index())
	}
	if _, err := FunctionAt[marshal.T0, marshal.Void](mod, mod.FunctionCount()); !errors.IsKind(err, errors.KindFunctionNotFound) {
		t.Errorf("expected function not found, got %v", err)
	}
	if _, err := FunctionAt[marshal.T0, marshal.Void](mod, -1); !errors.IsKind(err, errors.KindFunctionNotFound) {
		t.Errorf("expected function not found, got %v", err)
	}
}

func TestFunction_Traps(t *testing.T) {
	mod := arith(t)
	rt := mod.Runtime()
	ctx := context.Background()

	divide, err := FindFunction[marshal.T2[int32, int32], int32](mod, "divide")
	if err != nil {
		t.Fatalf("FindFunction failed: %v", err)
	}
	unreachable, err := FindFunction[marshal.T0, marshal.Void](mod, "unreachable")
	if err != nil {
		t.Fatalf("FindFunction failed: %v", err)
	}
	load, err := FindFunction[marshal.T1[int32], int32](mod, "load")
	if err != nil {
		t.Fatalf("FindFunction failed: %v", err)
	}

	tests := []struct {
		name string
		call func() error
		want errors.TrapReason
	}{
		{"division by zero", func() error {
			_, err := divide.Call(ctx, marshal.Tuple2(int32(10), int32(0)))
			return err
		}, errors.TrapDivisionByZero},
		{"integer overflow", func() error {
			_, err := divide.Call(ctx, marshal.Tuple2(int32(math.MinInt32), int32(-1)))
			return err
		}, errors.TrapIntegerOverflow},
		{"unreachable", func() error {
			_, err := unreachable.Call(ctx, marshal.T0{})
			return err
		}, errors.TrapUnreachable},
		{"out of bounds", func() error {
			_, err := load.Call(ctx, marshal.Tuple1(int32(-1)))
			return err
		}, errors.TrapOutOfBounds},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			if !errors.IsTrap(err, tc.want) {
				t.Fatalf("expected %s trap, got %v", tc.want, err)
			}
			e, _ := errors.As(err)
			if e.Phase != errors.PhaseCall {
				t.Errorf("trap phase = %s, want call", e.Phase)
			}
			if rt.StackInUse() != 0 {
				t.Errorf("stack not released after trap: %d bytes in use", rt.StackInUse())
			}
		})
	}

	got, err := divide.Call(ctx, marshal.Tuple2(int32(10), int32(2)))
	if err != nil {
		t.Fatalf("module should stay usable after traps: %v", err)
	}
	if got != 5 {
		t.Errorf("divide(10, 2) = %d, want 5", got)
	}
}

func TestFunction_CanceledCallTerminatesModule(t *testing.T) {
	env := newEnv(t, &EnvironmentConfig{CloseOnContextDone: true})
	rt, err := env.NewRuntime(context.Background(), DefaultStackSize)
	if err != nil {
		t.Fatalf("NewRuntime failed: %v", err)
	}
	mod := loadModule(t, rt, wasmtest.Spin())
	spin, err := FindFunction[marshal.T0, marshal.Void](mod, "spin")
	if err != nil {
		t.Fatalf("FindFunction failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = spin.Call(ctx, marshal.T0{})
	if !errors.IsKind(err, errors.KindInterpreter) {
		t.Fatalf("expected interpreter error, got %v", err)
	}
	if rt.StackInUse() != 0 {
		t.Errorf("StackInUse = %d after canceled call, want 0", rt.StackInUse())
	}
	if mod.Alive() {
		t.Error("a canceled call should terminate the module")
	}

	_, err = spin.Call(context.Background(), marshal.T0{})
	if !errors.IsKind(err, errors.KindClosed) {
		t.Errorf("expected closed after cancellation, got %v", err)
	}
}

func TestDynamicFunction(t *testing.T) {
	mod := arith(t)
	ctx := context.Background()

	add, err := FindDynamicFunction(mod, "add")
	if err != nil {
		t.Fatalf("FindDynamicFunction failed: %v", err)
	}
	res, err := add.Call(ctx, marshal.I32Value(20), marshal.I32Value(22))
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if len(res) != 1 {
		t.Fatalf("got %d results, want 1", len(res))
	}
	if v, _ := res[0].Int32(); v != 42 {
		t.Errorf("add(20, 22) = %s, want 42", res[0])
	}

	if _, err := add.Call(ctx, marshal.I32Value(1)); !errors.IsKind(err, errors.KindSignatureMismatch) {
		t.Errorf("expected signature mismatch for arity, got %v", err)
	}
	if _, err := add.Call(ctx, marshal.I32Value(1), marshal.I64Value(1)); !errors.IsKind(err, errors.KindSignatureMismatch) {
		t.Errorf("expected signature mismatch for kind, got %v", err)
	}

	typed, err := FindFunction[marshal.T2[float32, float32], float32](mod, "addf32")
	if err != nil {
		t.Fatalf("FindFunction failed: %v", err)
	}
	res, err = typed.CallValues(ctx, marshal.F32Value(0.5), marshal.F32Value(0.25))
	if err != nil {
		t.Fatalf("CallValues failed: %v", err)
	}
	if v, _ := res[0].Float32(); v != 0.75 {
		t.Errorf("addf32(0.5, 0.25) = %s, want 0.75", res[0])
	}
}

func TestGlobals(t *testing.T) {
	mod := arith(t)
	ctx := context.Background()

	counter, err := mod.FindGlobal(ctx, "counter")
	if err != nil {
		t.Fatalf("FindGlobal failed: %v", err)
	}
	if got, err := GetGlobal[int32](counter); err != nil || got != 7 {
		t.Errorf("counter = %d, %v; want 7", got, err)
	}
	if err := SetGlobal(counter, int32(9)); err != nil {
		t.Fatalf("SetGlobal failed: %v", err)
	}
	v, err := counter.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if n, _ := v.Int32(); n != 9 {
		t.Errorf("counter = %s, want 9", v)
	}
	if err := counter.Set(marshal.F64Value(1)); !errors.IsKind(err, errors.KindSignatureMismatch) {
		t.Errorf("expected signature mismatch, got %v", err)
	}
	if _, err := GetGlobal[int64](counter); !errors.IsKind(err, errors.KindSignatureMismatch) {
		t.Errorf("expected signature mismatch, got %v", err)
	}

	limit, err := mod.FindGlobal(ctx, "limit")
	if err != nil {
		t.Fatalf("FindGlobal failed: %v", err)
	}
	if limit.Type().Mutable {
		t.Error("limit should be immutable")
	}
	if got, err := GetGlobal[int64](limit); err != nil || got != 1<<40 {
		t.Errorf("limit = %d, %v", got, err)
	}
	if err := SetGlobal(limit, int64(1)); !errors.IsKind(err, errors.KindImmutableGlobal) {
		t.Errorf("expected immutable global, got %v", err)
	}

	ratio, err := mod.FindGlobal(ctx, "ratio")
	if err != nil {
		t.Fatalf("FindGlobal failed: %v", err)
	}
	if got, err := GetGlobal[float64](ratio); err != nil || got != 0.5 {
		t.Errorf("ratio = %v, %v", got, err)
	}

	if _, err := mod.FindGlobal(ctx, "nope"); !errors.IsKind(err, errors.KindGlobalNotFound) {
		t.Errorf("expected global not found, got %v", err)
	}
}

func TestModuleMemory(t *testing.T) {
	mod := arith(t)
	ctx := context.Background()

	mem, err := mod.Memory(ctx)
	if err != nil {
		t.Fatalf("Memory failed: %v", err)
	}
	if mem.Size() != PageSize {
		t.Errorf("Size = %d, want one page", mem.Size())
	}
	if err := mem.WriteU32(128, 0xdeadbeef); err != nil {
		t.Fatalf("WriteU32 failed: %v", err)
	}

	load, err := FindFunction[marshal.T1[int32], uint32](mod, "load")
	if err != nil {
		t.Fatalf("FindFunction failed: %v", err)
	}
	if got, err := load.Call(ctx, marshal.Tuple1(int32(128))); err != nil || got != 0xdeadbeef {
		t.Errorf("load(128) = %#x, %v", got, err)
	}

	if _, err := mem.Read(PageSize-2, 4); !errors.IsKind(err, errors.KindMemoryAccess) {
		t.Errorf("expected memory access error, got %v", err)
	}
	if err := mem.Write(PageSize, []byte{1}); !errors.IsKind(err, errors.KindMemoryAccess) {
		t.Errorf("expected memory access error, got %v", err)
	}

	prev, err := mem.Grow(1)
	if err != nil || prev != 1 {
		t.Errorf("Grow = %d, %v", prev, err)
	}
	if _, err := mem.Grow(10); !errors.IsKind(err, errors.KindMemoryAccess) {
		t.Errorf("growing past the maximum should fail, got %v", err)
	}

	if err := mod.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if mem.Size() != 0 {
		t.Error("Size should be 0 once the module is closed")
	}
	if _, err := mem.ReadU8(0); !errors.IsKind(err, errors.KindClosed) {
		t.Errorf("expected closed error, got %v", err)
	}
	if n := len(mod.Runtime().Modules()); n != 0 {
		t.Errorf("closed module still listed: %d modules", n)
	}
}

func TestModule_Exports(t *testing.T) {
	mod := arith(t)

	byName := make(map[string]Export)
	for _, e := range mod.Exports() {
		byName[e.Name] = e
	}
	if e := byName["divide"]; e.Kind != "func" || e.Signature.String() != "(i32, i32) -> i32" {
		t.Errorf("divide export = %+v", e)
	}
	if e := byName["ratio"]; e.Kind != "global" || e.Global.String() != "mut f64" {
		t.Errorf("ratio export = %+v", e)
	}
	if e := byName["memory"]; e.Kind != "memory" {
		t.Errorf("memory export = %+v", e)
	}
	if mod.FunctionCount() != 15 {
		t.Errorf("FunctionCount = %d, want 15", mod.FunctionCount())
	}
}
