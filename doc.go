// Package wasmbind provides safe Go bindings over an embeddable WebAssembly
// interpreter.
//
// Modules are loaded into a Runtime, exported functions are bound once to
// statically typed Go signatures, and Go closures are linked as imports.
// Raw interpreter handles, stack slots and status codes never reach the
// caller.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	wasmbind/           Root package with the Memory interfaces
//	├── runtime/        Environment, Runtime, Module, Function, host linking
//	├── marshal/        Go value <-> WebAssembly stack slot conversion
//	├── engine/         Interpreter boundary over wazero
//	├── errors/         Structured error types with phase, kind and trap reason
//	└── cmd/wasmcall/   Command-line harness for inspecting and calling modules
//
// # Quick Start
//
//	env, err := runtime.NewEnvironment(ctx, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer env.Close(ctx)
//
//	rt, err := env.NewRuntime(ctx, runtime.DefaultStackSize)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	mod, err := rt.LoadModule(ctx, wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	add, err := runtime.FindFunction[marshal.T2[int32, int32], int32](mod, "add")
//	if err != nil {
//	    log.Fatal(err) // signature mismatches surface here, not at call time
//	}
//	sum, err := add.Call(ctx, marshal.Tuple2(int32(2), int32(3)))
//
// # Lifetimes
//
// A Runtime never outlives its Environment, a Module never outlives its
// Runtime, and a Function or Global never outlives its Module. Closing an
// owner invalidates everything derived from it; later use fails with a
// KindClosed error instead of touching freed interpreter state.
//
// # Traps
//
// A trap aborts the current call only. The error carries the trap reason
// (errors.IsTrap) and the Runtime stays usable. A guest exit or a canceled
// call context closes the module instance for good.
//
// # Thread Safety
//
// Environment is safe for concurrent use. A Runtime, its Modules and its
// Functions must be driven by one goroutine at a time; host callbacks may
// re-enter the same Runtime on that goroutine.
package wasmbind
