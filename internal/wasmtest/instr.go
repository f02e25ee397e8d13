package wasmtest

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/wippyai/wasmbind/internal/wasm"
)

// Opcodes used by fixtures.
const (
	OpUnreachable byte = 0x00
	OpNop         byte = 0x01
	OpLoop        byte = 0x03
	OpIf          byte = 0x04
	OpElse        byte = 0x05
	OpEnd         byte = 0x0B
	OpBr          byte = 0x0C
	OpReturn      byte = 0x0F
	OpCall        byte = 0x10
	OpDrop        byte = 0x1A
	OpLocalGet    byte = 0x20
	OpLocalSet    byte = 0x21
	OpGlobalGet   byte = 0x23
	OpGlobalSet   byte = 0x24
	OpI32Load     byte = 0x28
	OpI64Load     byte = 0x29
	OpI32Store    byte = 0x36
	OpI32Store8   byte = 0x3A
	OpMemorySize  byte = 0x3F
	OpMemoryGrow  byte = 0x40
	OpI32Const    byte = 0x41
	OpI64Const    byte = 0x42
	OpF32Const    byte = 0x43
	OpF64Const    byte = 0x44
	OpI32Eqz      byte = 0x45
	OpI32LtS      byte = 0x48
	OpI32Add      byte = 0x6A
	OpI32Sub      byte = 0x6B
	OpI32Mul      byte = 0x6C
	OpI32DivS     byte = 0x6D
	OpI32DivU     byte = 0x6E
	OpI64Add      byte = 0x7C
	OpI64Mul      byte = 0x7E
	OpF32Add      byte = 0x92
	OpF64Add      byte = 0xA0
	OpF64Mul      byte = 0xA2
	OpI32WrapI64  byte = 0xA7
	OpI32TruncF64 byte = 0xAA
	OpI64ExtendS  byte = 0xAC
	OpBlockVoid   byte = 0x40
)

// Op emits bare opcodes.
func Op(ops ...byte) []byte {
	return ops
}

// I32Const emits i32.const v.
func I32Const(v int32) []byte {
	var w bytes.Buffer
	w.WriteByte(OpI32Const)
	wasm.WriteLEB128s(&w, v)
	return w.Bytes()
}

// I64Const emits i64.const v.
func I64Const(v int64) []byte {
	var w bytes.Buffer
	w.WriteByte(OpI64Const)
	wasm.WriteLEB128s64(&w, v)
	return w.Bytes()
}

// F32Const emits f32.const v.
func F32Const(v float32) []byte {
	out := []byte{OpF32Const, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(out[1:], math.Float32bits(v))
	return out
}

// F64Const emits f64.const v.
func F64Const(v float64) []byte {
	out := []byte{OpF64Const, 0, 0, 0, 0, 0, 0, 0, 0}
	binary.LittleEndian.PutUint64(out[1:], math.Float64bits(v))
	return out
}

// LocalGet emits local.get idx.
func LocalGet(idx uint32) []byte {
	return withIndex(OpLocalGet, idx)
}

// LocalSet emits local.set idx.
func LocalSet(idx uint32) []byte {
	return withIndex(OpLocalSet, idx)
}

// GlobalGet emits global.get idx.
func GlobalGet(idx uint32) []byte {
	return withIndex(OpGlobalGet, idx)
}

// GlobalSet emits global.set idx.
func GlobalSet(idx uint32) []byte {
	return withIndex(OpGlobalSet, idx)
}

// Call emits call funcIdx.
func Call(funcIdx uint32) []byte {
	return withIndex(OpCall, funcIdx)
}

// I32Load emits i32.load with natural alignment and the given offset.
func I32Load(offset uint32) []byte {
	return memArg(OpI32Load, 2, offset)
}

// I32Store emits i32.store with natural alignment and the given offset.
func I32Store(offset uint32) []byte {
	return memArg(OpI32Store, 2, offset)
}

// MemorySize emits memory.size for memory 0.
func MemorySize() []byte {
	return []byte{OpMemorySize, 0x00}
}

// MemoryGrow emits memory.grow for memory 0.
func MemoryGrow() []byte {
	return []byte{OpMemoryGrow, 0x00}
}

func withIndex(op byte, idx uint32) []byte {
	var w bytes.Buffer
	w.WriteByte(op)
	wasm.WriteLEB128u(&w, idx)
	return w.Bytes()
}

func memArg(op byte, align, offset uint32) []byte {
	var w bytes.Buffer
	w.WriteByte(op)
	wasm.WriteLEB128u(&w, align)
	wasm.WriteLEB128u(&w, offset)
	return w.Bytes()
}
