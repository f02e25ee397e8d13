// Package runtime is the safe, typed API over the interpreter.
//
// # Quick Start
//
//	ctx := context.Background()
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
//	    log.Fatal(err)
//	}
//	sum, err := add.Call(ctx, marshal.Tuple2(int32(2), int32(3)))
//
// # Ownership
//
// Handles form a tree: Environment, Runtime, Module, then Function and
// Global. Closing a node invalidates everything below it, synchronously.
// Using an invalidated handle fails with KindClosed; nothing dangles.
//
// A ParsedModule is validated against an Environment and can be loaded into
// any Runtime of it, once. Close frees it if it was never loaded.
//
// # Host Functions
//
// Imports are bound per module before it is instantiated:
//
//	err := runtime.LinkHostFunction(mod, "env", "log",
//	    func(cc *runtime.CallContext, args marshal.T1[int32]) (marshal.Void, error) {
//	        fmt.Println(args.V1)
//	        return marshal.Void{}, nil
//	    })
//
// A module is instantiated on its first call, or by Instantiate, Memory or
// FindGlobal. Linking afterwards fails with KindSealed. Imports left
// unlinked trap with TrapMissingImport when the guest calls them.
//
// The CallContext gives the host function the caller's memory and runtime.
// It is valid only while the host function runs. Host functions may call
// back into guest functions of the same runtime; each nested call takes
// frames from the runtime's value stack, so recursion depth is bounded by
// the stack size passed to NewRuntime.
//
// # Traps
//
// A trap aborts the call and comes back as a KindTrap error carrying a
// TrapReason. The module stays usable. Two outcomes terminate the module
// instead: a guest exit (TrapExit), and a call aborted because its context
// ended while CloseOnContextDone is set (KindInterpreter). Any later use of
// the module fails with KindClosed.
//
// # Concurrency
//
// A Runtime and everything derived from it belong to one goroutine at a
// time. Independent Runtimes of one Environment can run in parallel.
package runtime
