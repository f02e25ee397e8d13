package wasmtest

import (
	"github.com/wippyai/wasmbind/internal/wasm"
)

func vt(types ...wasm.ValType) []wasm.ValType {
	return types
}

// Arith exports scalar arithmetic, identity functions for every value kind,
// trapping functions, a one-page memory, and two globals:
//
//	add(i32, i32) -> i32        divide(i32, i32) -> i32 (div_s)
//	add64(i64, i64) -> i64      addf32(f32, f32) -> f32
//	addf64(f64, f64) -> f64     id_i32, id_i64, id_f32, id_f64
//	noop() -> ()                unreachable() -> ()
//	recurse() -> ()             load(i32) -> i32
//	store(i32, i32) -> ()       grow(i32) -> i32
//	memory                      counter: mut i32 = 7
//	limit: i64 = 1<<40          ratio: mut f64 = 0.5
func Arith() []byte {
	b := New().Name("arith")
	b.Func("add", vt(I32, I32), vt(I32), nil, LocalGet(0), LocalGet(1), Op(OpI32Add))
	b.Func("divide", vt(I32, I32), vt(I32), nil, LocalGet(0), LocalGet(1), Op(OpI32DivS))
	b.Func("add64", vt(I64, I64), vt(I64), nil, LocalGet(0), LocalGet(1), Op(OpI64Add))
	b.Func("addf32", vt(F32, F32), vt(F32), nil, LocalGet(0), LocalGet(1), Op(OpF32Add))
	b.Func("addf64", vt(F64, F64), vt(F64), nil, LocalGet(0), LocalGet(1), Op(OpF64Add))
	b.Func("id_i32", vt(I32), vt(I32), nil, LocalGet(0))
	b.Func("id_i64", vt(I64), vt(I64), nil, LocalGet(0))
	b.Func("id_f32", vt(F32), vt(F32), nil, LocalGet(0))
	b.Func("id_f64", vt(F64), vt(F64), nil, LocalGet(0))
	b.Func("noop", nil, nil, nil)
	b.Func("unreachable", nil, nil, nil, Op(OpUnreachable))
	recurse := uint32(len(b.imports) + len(b.funcs))
	b.Func("recurse", nil, nil, nil, Call(recurse))
	b.Func("load", vt(I32), vt(I32), nil, LocalGet(0), I32Load(0))
	b.Func("store", vt(I32, I32), nil, nil, LocalGet(0), LocalGet(1), I32Store(0))
	b.Func("grow", vt(I32), vt(I32), nil, LocalGet(0), MemoryGrow())
	b.Memory(1, "memory").MemoryMax(4)
	b.Global("counter", I32, true, I32Const(7))
	b.Global("limit", I64, false, I64Const(1<<40))
	b.Global("ratio", F64, true, F64Const(0.5))
	return b.Bytes()
}

// Host imports host callbacks from "env" and exports functions that call
// them:
//
//	import env.add(i32, i32) -> i32     export call_add(i32, i32) -> i32
//	import env.read(i32, i32) -> i32    export call_read(i32, i32) -> i32
//	import env.missing() -> ()          export call_missing() -> ()
//	import env.reenter(i32) -> i32      export fact(i32) -> i32
//
// fact(n) returns 1 for n == 0 and n * env.reenter(n-1) otherwise, so a
// host that calls fact again from reenter computes a factorial through
// mutual recursion. Memory holds "hello" at offset 16.
func Host() []byte {
	b := New().Name("host")
	add := b.Import("env", "add", vt(I32, I32), vt(I32))
	read := b.Import("env", "read", vt(I32, I32), vt(I32))
	missing := b.Import("env", "missing", nil, nil)
	reenter := b.Import("env", "reenter", vt(I32), vt(I32))

	b.Func("call_add", vt(I32, I32), vt(I32), nil, LocalGet(0), LocalGet(1), Call(add))
	b.Func("call_read", vt(I32, I32), vt(I32), nil, LocalGet(0), LocalGet(1), Call(read))
	b.Func("call_missing", nil, nil, nil, Call(missing))
	b.Func("fact", vt(I32), vt(I32), nil,
		LocalGet(0), Op(OpI32Eqz),
		Op(OpIf, byte(I32)),
		I32Const(1),
		Op(OpElse),
		LocalGet(0),
		LocalGet(0), I32Const(1), Op(OpI32Sub),
		Call(reenter),
		Op(OpI32Mul),
		Op(OpEnd),
	)
	b.Memory(1, "memory")
	b.Data(16, []byte("hello"))
	return b.Bytes()
}

// Imports declares a single env.log(i32) -> () import, used to exercise
// linking rules without calls.
func Imports() []byte {
	return ImportsOf(I32)
}

// ImportsOf is Imports with env.log taking a param of type t, and run
// forwarding its param to it.
func ImportsOf(t wasm.ValType) []byte {
	b := New()
	log := b.Import("env", "log", vt(t), nil)
	b.Func("run", vt(t), nil, nil, LocalGet(0), Call(log))
	return b.Bytes()
}

// Spin exports spin() -> (), which loops forever. Only a canceled call
// context stops it.
func Spin() []byte {
	b := New().Name("spin")
	b.Func("spin", nil, nil, nil,
		Op(OpLoop, OpBlockVoid),
		Op(OpBr, 0),
		Op(OpEnd),
	)
	return b.Bytes()
}
