// Package wasmtest assembles small core WebAssembly binaries in Go so that
// tests and examples need no binary fixtures.
package wasmtest

import (
	"bytes"

	"github.com/wippyai/wasmbind/internal/wasm"
)

// Value types re-exported for brevity in fixtures.
const (
	I32 = wasm.ValI32
	I64 = wasm.ValI64
	F32 = wasm.ValF32
	F64 = wasm.ValF64
)

type importEntry struct {
	global  *wasm.GlobalType
	module  string
	name    string
	typeIdx uint32
}

type funcEntry struct {
	export  string
	locals  []wasm.ValType
	body    []byte
	typeIdx uint32
}

type globalEntry struct {
	export string
	init   []byte
	typ    wasm.GlobalType
}

type dataEntry struct {
	bytes  []byte
	offset uint32
}

// Builder accumulates module contents. Imports must be declared before any
// function so that returned function indices stay stable.
type Builder struct {
	name      string
	memExport string
	types     []wasm.FuncType
	imports   []importEntry
	gimports  []importEntry
	funcs     []funcEntry
	globals   []globalEntry
	data      []dataEntry
	memMin    uint32
	memMax    uint32
	hasMemory bool
	hasMax    bool
}

// New creates an empty builder.
func New() *Builder {
	return &Builder{}
}

// Name sets the module name recorded in the "name" custom section.
func (b *Builder) Name(name string) *Builder {
	b.name = name
	return b
}

func (b *Builder) typeIndex(params, results []wasm.ValType) uint32 {
	ft := wasm.FuncType{Params: params, Results: results}
	for i, t := range b.types {
		if t.Equal(ft) {
			return uint32(i)
		}
	}
	b.types = append(b.types, ft)
	return uint32(len(b.types) - 1)
}

// Import declares a function import and returns its function index.
func (b *Builder) Import(module, name string, params, results []wasm.ValType) uint32 {
	if len(b.funcs) > 0 {
		panic("wasmtest: imports must be declared before functions")
	}
	b.imports = append(b.imports, importEntry{
		module:  module,
		name:    name,
		typeIdx: b.typeIndex(params, results),
	})
	return uint32(len(b.imports) - 1)
}

// ImportGlobal declares a global import. Global imports are encoded after
// function imports and shift defined global indices accordingly.
func (b *Builder) ImportGlobal(module, name string, typ wasm.ValType, mutable bool) *Builder {
	b.gimports = append(b.gimports, importEntry{
		module: module,
		name:   name,
		global: &wasm.GlobalType{Type: typ, Mutable: mutable},
	})
	return b
}

// Func defines a function and returns its function index. An empty export
// name keeps the function private. The trailing end opcode is appended.
func (b *Builder) Func(export string, params, results, locals []wasm.ValType, body ...[]byte) uint32 {
	b.funcs = append(b.funcs, funcEntry{
		export:  export,
		typeIdx: b.typeIndex(params, results),
		locals:  locals,
		body:    bytes.Join(body, nil),
	})
	return uint32(len(b.imports) + len(b.funcs) - 1)
}

// Memory defines the module's memory with min pages, exported under export
// when non-empty.
func (b *Builder) Memory(min uint32, export string) *Builder {
	b.hasMemory = true
	b.memMin = min
	b.memExport = export
	return b
}

// MemoryMax caps the memory at max pages.
func (b *Builder) MemoryMax(max uint32) *Builder {
	b.hasMax = true
	b.memMax = max
	return b
}

// Global defines a global initialised by the constant expression init.
func (b *Builder) Global(export string, typ wasm.ValType, mutable bool, init []byte) uint32 {
	b.globals = append(b.globals, globalEntry{
		export: export,
		typ:    wasm.GlobalType{Type: typ, Mutable: mutable},
		init:   init,
	})
	return uint32(len(b.globals) - 1)
}

// Data places bytes at offset in memory 0.
func (b *Builder) Data(offset uint32, data []byte) *Builder {
	b.data = append(b.data, dataEntry{offset: offset, bytes: data})
	return b
}

// Bytes encodes the module.
func (b *Builder) Bytes() []byte {
	var w bytes.Buffer
	w.Write(wasm.Magic)
	w.Write(wasm.Version)

	if len(b.types) > 0 {
		var sec bytes.Buffer
		wasm.WriteLEB128u(&sec, uint32(len(b.types)))
		for _, ft := range b.types {
			sec.WriteByte(0x60)
			writeValTypes(&sec, ft.Params)
			writeValTypes(&sec, ft.Results)
		}
		writeSection(&w, wasm.SectionType, sec.Bytes())
	}

	if len(b.imports)+len(b.gimports) > 0 {
		var sec bytes.Buffer
		wasm.WriteLEB128u(&sec, uint32(len(b.imports)+len(b.gimports)))
		for _, imp := range b.imports {
			writeName(&sec, imp.module)
			writeName(&sec, imp.name)
			sec.WriteByte(byte(wasm.ExternFunc))
			wasm.WriteLEB128u(&sec, imp.typeIdx)
		}
		for _, imp := range b.gimports {
			writeName(&sec, imp.module)
			writeName(&sec, imp.name)
			sec.WriteByte(byte(wasm.ExternGlobal))
			sec.WriteByte(byte(imp.global.Type))
			if imp.global.Mutable {
				sec.WriteByte(1)
			} else {
				sec.WriteByte(0)
			}
		}
		writeSection(&w, wasm.SectionImport, sec.Bytes())
	}

	if len(b.funcs) > 0 {
		var sec bytes.Buffer
		wasm.WriteLEB128u(&sec, uint32(len(b.funcs)))
		for _, f := range b.funcs {
			wasm.WriteLEB128u(&sec, f.typeIdx)
		}
		writeSection(&w, wasm.SectionFunction, sec.Bytes())
	}

	if b.hasMemory {
		var sec bytes.Buffer
		wasm.WriteLEB128u(&sec, 1)
		if b.hasMax {
			sec.WriteByte(0x01)
			wasm.WriteLEB128u(&sec, b.memMin)
			wasm.WriteLEB128u(&sec, b.memMax)
		} else {
			sec.WriteByte(0x00)
			wasm.WriteLEB128u(&sec, b.memMin)
		}
		writeSection(&w, wasm.SectionMemory, sec.Bytes())
	}

	if len(b.globals) > 0 {
		var sec bytes.Buffer
		wasm.WriteLEB128u(&sec, uint32(len(b.globals)))
		for _, g := range b.globals {
			sec.WriteByte(byte(g.typ.Type))
			if g.typ.Mutable {
				sec.WriteByte(1)
			} else {
				sec.WriteByte(0)
			}
			sec.Write(g.init)
			sec.WriteByte(OpEnd)
		}
		writeSection(&w, wasm.SectionGlobal, sec.Bytes())
	}

	b.writeExports(&w)

	if len(b.funcs) > 0 {
		var sec bytes.Buffer
		wasm.WriteLEB128u(&sec, uint32(len(b.funcs)))
		for _, f := range b.funcs {
			var body bytes.Buffer
			writeLocals(&body, f.locals)
			body.Write(f.body)
			body.WriteByte(OpEnd)
			wasm.WriteLEB128u(&sec, uint32(body.Len()))
			sec.Write(body.Bytes())
		}
		writeSection(&w, wasm.SectionCode, sec.Bytes())
	}

	if len(b.data) > 0 {
		var sec bytes.Buffer
		wasm.WriteLEB128u(&sec, uint32(len(b.data)))
		for _, d := range b.data {
			sec.WriteByte(0x00) // active, memory 0
			sec.Write(I32Const(int32(d.offset)))
			sec.WriteByte(OpEnd)
			wasm.WriteLEB128u(&sec, uint32(len(d.bytes)))
			sec.Write(d.bytes)
		}
		writeSection(&w, wasm.SectionData, sec.Bytes())
	}

	if b.name != "" {
		var sub bytes.Buffer
		writeName(&sub, b.name)
		var sec bytes.Buffer
		writeName(&sec, "name")
		sec.WriteByte(0x00) // module name subsection
		wasm.WriteLEB128u(&sec, uint32(sub.Len()))
		sec.Write(sub.Bytes())
		writeSection(&w, wasm.SectionCustom, sec.Bytes())
	}

	return w.Bytes()
}

func (b *Builder) writeExports(w *bytes.Buffer) {
	var sec bytes.Buffer
	count := uint32(0)

	for i, f := range b.funcs {
		if f.export == "" {
			continue
		}
		writeName(&sec, f.export)
		sec.WriteByte(byte(wasm.ExternFunc))
		wasm.WriteLEB128u(&sec, uint32(len(b.imports)+i))
		count++
	}
	if b.hasMemory && b.memExport != "" {
		writeName(&sec, b.memExport)
		sec.WriteByte(byte(wasm.ExternMemory))
		wasm.WriteLEB128u(&sec, 0)
		count++
	}
	for i, g := range b.globals {
		if g.export == "" {
			continue
		}
		writeName(&sec, g.export)
		sec.WriteByte(byte(wasm.ExternGlobal))
		wasm.WriteLEB128u(&sec, uint32(len(b.gimports)+i))
		count++
	}

	if count == 0 {
		return
	}
	var out bytes.Buffer
	wasm.WriteLEB128u(&out, count)
	out.Write(sec.Bytes())
	writeSection(w, wasm.SectionExport, out.Bytes())
}

func writeSection(w *bytes.Buffer, id byte, data []byte) {
	w.WriteByte(id)
	wasm.WriteLEB128u(w, uint32(len(data)))
	w.Write(data)
}

func writeValTypes(w *bytes.Buffer, types []wasm.ValType) {
	wasm.WriteLEB128u(w, uint32(len(types)))
	for _, t := range types {
		w.WriteByte(byte(t))
	}
}

func writeName(w *bytes.Buffer, s string) {
	wasm.WriteLEB128u(w, uint32(len(s)))
	w.WriteString(s)
}

func writeLocals(w *bytes.Buffer, locals []wasm.ValType) {
	// one group per local keeps the encoding trivial
	wasm.WriteLEB128u(w, uint32(len(locals)))
	for _, l := range locals {
		wasm.WriteLEB128u(w, 1)
		w.WriteByte(byte(l))
	}
}
