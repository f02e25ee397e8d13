package runtime

import (
	"context"
	"testing"

	"github.com/wippyai/wasmbind/internal/wasmtest"
	"github.com/wippyai/wasmbind/marshal"
)

func benchModule(b *testing.B, data []byte) *Module {
	b.Helper()
	ctx := context.Background()
	env, err := NewEnvironment(ctx, nil)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = env.Close(ctx) })
	rt, err := env.NewRuntime(ctx, DefaultStackSize)
	if err != nil {
		b.Fatal(err)
	}
	mod, err := rt.LoadModule(ctx, data)
	if err != nil {
		b.Fatal(err)
	}
	return mod
}

// BenchmarkCall_Typed benchmarks a statically typed call
func BenchmarkCall_Typed(b *testing.B) {
	ctx := context.Background()
	add, err := FindFunction[marshal.T2[int32, int32], int32](benchModule(b, wasmtest.Arith()), "add")
	if err != nil {
		b.Fatal(err)
	}
	args := marshal.Tuple2(int32(5), int32(3))

	// Warmup instantiates the module
	if _, err := add.Call(ctx, args); err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := add.Call(ctx, args); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkCall_Dynamic benchmarks a call with marshal.Value arguments
func BenchmarkCall_Dynamic(b *testing.B) {
	ctx := context.Background()
	add, err := FindDynamicFunction(benchModule(b, wasmtest.Arith()), "add")
	if err != nil {
		b.Fatal(err)
	}
	x, y := marshal.I32Value(5), marshal.I32Value(3)

	if _, err := add.Call(ctx, x, y); err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := add.Call(ctx, x, y); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkCall_HostRoundTrip benchmarks guest to host and back
func BenchmarkCall_HostRoundTrip(b *testing.B) {
	ctx := context.Background()
	mod := benchModule(b, wasmtest.Host())
	err := LinkHostFunction(mod, "env", "add", func(cc *CallContext, args marshal.T2[int32, int32]) (int32, error) {
		return args.V1 + args.V2, nil
	})
	if err != nil {
		b.Fatal(err)
	}
	callAdd, err := FindFunction[marshal.T2[int32, int32], int32](mod, "call_add")
	if err != nil {
		b.Fatal(err)
	}
	args := marshal.Tuple2(int32(5), int32(3))

	if _, err := callAdd.Call(ctx, args); err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := callAdd.Call(ctx, args); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkLoadModule benchmarks parse, validate and compile
func BenchmarkLoadModule(b *testing.B) {
	ctx := context.Background()
	env, err := NewEnvironment(ctx, nil)
	if err != nil {
		b.Fatal(err)
	}
	defer env.Close(ctx)
	data := wasmtest.Arith()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rt, err := env.NewRuntime(ctx, DefaultStackSize)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := rt.LoadModule(ctx, data); err != nil {
			b.Fatal(err)
		}
		if err := rt.Close(ctx); err != nil {
			b.Fatal(err)
		}
	}
}
