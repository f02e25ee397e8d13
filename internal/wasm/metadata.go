package wasm

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// Magic and Version open every core module binary.
var (
	Magic   = []byte{0x00, 0x61, 0x73, 0x6d}
	Version = []byte{0x01, 0x00, 0x00, 0x00}
)

// Section IDs
const (
	SectionCustom   byte = 0
	SectionType     byte = 1
	SectionImport   byte = 2
	SectionFunction byte = 3
	SectionTable    byte = 4
	SectionMemory   byte = 5
	SectionGlobal   byte = 6
	SectionExport   byte = 7
	SectionStart    byte = 8
	SectionElement  byte = 9
	SectionCode     byte = 10
	SectionData     byte = 11
)

// ValType represents a WebAssembly value type.
type ValType byte

const (
	ValI32       ValType = 0x7F
	ValI64       ValType = 0x7E
	ValF32       ValType = 0x7D
	ValF64       ValType = 0x7C
	ValV128      ValType = 0x7B
	ValFuncRef   ValType = 0x70
	ValExternRef ValType = 0x6F
)

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValV128:
		return "v128"
	case ValFuncRef:
		return "funcref"
	case ValExternRef:
		return "externref"
	default:
		return fmt.Sprintf("valtype(0x%02x)", byte(v))
	}
}

// ExternKind is the kind of an import or export.
type ExternKind byte

const (
	ExternFunc   ExternKind = 0x00
	ExternTable  ExternKind = 0x01
	ExternMemory ExternKind = 0x02
	ExternGlobal ExternKind = 0x03
	ExternTag    ExternKind = 0x04
)

func (k ExternKind) String() string {
	switch k {
	case ExternFunc:
		return "func"
	case ExternTable:
		return "table"
	case ExternMemory:
		return "memory"
	case ExternGlobal:
		return "global"
	case ExternTag:
		return "tag"
	default:
		return fmt.Sprintf("extern(0x%02x)", byte(k))
	}
}

// FuncType represents a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Equal reports whether both signatures have the same shape.
func (f FuncType) Equal(o FuncType) bool {
	return equalValTypes(f.Params, o.Params) && equalValTypes(f.Results, o.Results)
}

func (f FuncType) String() string {
	return "(" + joinValTypes(f.Params) + ") -> (" + joinValTypes(f.Results) + ")"
}

// GlobalType describes a global's value type and mutability.
type GlobalType struct {
	Type    ValType
	Mutable bool
}

func (g GlobalType) String() string {
	if g.Mutable {
		return "mut " + g.Type.String()
	}
	return g.Type.String()
}

// Import is one entry of the import section.
type Import struct {
	Global  *GlobalType
	Module  string
	Name    string
	TypeIdx uint32
	Kind    ExternKind
}

// Export is one entry of the export section.
type Export struct {
	Name  string
	Index uint32
	Kind  ExternKind
}

// Metadata is the export/import table of a module binary. Code, data and
// element segments are skipped.
type Metadata struct {
	Name    string
	Types   []FuncType
	Imports []Import
	Funcs   []uint32
	Globals []GlobalType
	Exports []Export
	// Memories counts memories defined by the module.
	Memories int
}

// FuncType resolves the signature of a function index, imports included.
func (m *Metadata) FuncType(funcIdx uint32) (FuncType, bool) {
	var typeIdx uint32
	imported := uint32(0)
	found := false
	for _, imp := range m.Imports {
		if imp.Kind != ExternFunc {
			continue
		}
		if imported == funcIdx {
			typeIdx = imp.TypeIdx
			found = true
			break
		}
		imported++
	}
	if !found {
		local := funcIdx - imported
		if funcIdx < imported || int(local) >= len(m.Funcs) {
			return FuncType{}, false
		}
		typeIdx = m.Funcs[local]
	}
	if int(typeIdx) >= len(m.Types) {
		return FuncType{}, false
	}
	return m.Types[typeIdx], true
}

// GlobalType resolves the type of a global index, imports included.
func (m *Metadata) GlobalType(globalIdx uint32) (GlobalType, bool) {
	imported := uint32(0)
	for _, imp := range m.Imports {
		if imp.Kind != ExternGlobal {
			continue
		}
		if imported == globalIdx {
			return *imp.Global, true
		}
		imported++
	}
	local := globalIdx - imported
	if globalIdx < imported || int(local) >= len(m.Globals) {
		return GlobalType{}, false
	}
	return m.Globals[local], true
}

// FindImport returns the function import with the given module and name.
func (m *Metadata) FindImport(module, name string) (Import, int, bool) {
	funcIdx := 0
	for _, imp := range m.Imports {
		if imp.Kind != ExternFunc {
			continue
		}
		if imp.Module == module && imp.Name == name {
			return imp, funcIdx, true
		}
		funcIdx++
	}
	return Import{}, 0, false
}

// IsModule reports whether data starts with the core module preamble.
func IsModule(data []byte) bool {
	return len(data) >= 8 && bytes.Equal(data[:4], Magic) && bytes.Equal(data[4:8], Version)
}

// ReadMetadata parses the sections of a module binary that describe its
// imports and exports.
func ReadMetadata(data []byte) (*Metadata, error) {
	if len(data) < 8 {
		return nil, &ParseError{Err: errUnexpectedEOF}
	}
	if !bytes.Equal(data[:4], Magic) {
		return nil, &ParseError{Err: errors.New("invalid magic number")}
	}
	if !bytes.Equal(data[4:8], Version) {
		return nil, &ParseError{Position: 4, Err: errors.New("unsupported version")}
	}

	m := &Metadata{}
	r := newReader(data)
	r.pos = 8

	for r.remaining() > 0 {
		id, err := r.readByte()
		if err != nil {
			return nil, err
		}
		size, err := r.readU32()
		if err != nil {
			return nil, &ParseError{Section: "section header", Position: r.pos, Err: err}
		}
		body, err := r.readBytes(int(size))
		if err != nil {
			return nil, &ParseError{Section: "section body", Position: r.pos, Err: err}
		}
		sr := newReader(body)

		switch id {
		case SectionType:
			err = parseTypeSection(sr, m)
		case SectionImport:
			err = parseImportSection(sr, m)
		case SectionFunction:
			err = parseFunctionSection(sr, m)
		case SectionMemory:
			var n uint32
			n, err = sr.readU32()
			m.Memories = int(n)
		case SectionGlobal:
			err = parseGlobalSection(sr, m)
		case SectionExport:
			err = parseExportSection(sr, m)
		case SectionCustom:
			err = parseCustomSection(sr, m)
		}
		if err != nil {
			return nil, &ParseError{Section: sectionName(id), Position: r.pos, Err: err}
		}
	}

	return m, nil
}

func sectionName(id byte) string {
	switch id {
	case SectionCustom:
		return "custom section"
	case SectionType:
		return "type section"
	case SectionImport:
		return "import section"
	case SectionFunction:
		return "function section"
	case SectionMemory:
		return "memory section"
	case SectionGlobal:
		return "global section"
	case SectionExport:
		return "export section"
	default:
		return fmt.Sprintf("section %d", id)
	}
}

func parseTypeSection(r *reader, m *Metadata) error {
	count, err := r.readU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		form, err := r.readByte()
		if err != nil {
			return err
		}
		if form != 0x60 {
			return fmt.Errorf("unsupported type form 0x%02x", form)
		}
		params, err := readValTypes(r)
		if err != nil {
			return err
		}
		results, err := readValTypes(r)
		if err != nil {
			return err
		}
		m.Types = append(m.Types, FuncType{Params: params, Results: results})
	}
	return nil
}

func readValTypes(r *reader) ([]ValType, error) {
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	types := make([]ValType, n)
	for i := range types {
		b, err := r.readByte()
		if err != nil {
			return nil, err
		}
		types[i] = ValType(b)
	}
	return types, nil
}

func parseImportSection(r *reader, m *Metadata) error {
	count, err := r.readU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		var imp Import
		if imp.Module, err = r.readName(); err != nil {
			return err
		}
		if imp.Name, err = r.readName(); err != nil {
			return err
		}
		kind, err := r.readByte()
		if err != nil {
			return err
		}
		imp.Kind = ExternKind(kind)

		switch imp.Kind {
		case ExternFunc:
			if imp.TypeIdx, err = r.readU32(); err != nil {
				return err
			}
		case ExternTable:
			if err := r.skip(1); err != nil {
				return err
			}
			if err := skipLimits(r); err != nil {
				return err
			}
		case ExternMemory:
			if err := skipLimits(r); err != nil {
				return err
			}
		case ExternGlobal:
			gt, err := readGlobalType(r)
			if err != nil {
				return err
			}
			imp.Global = &gt
		case ExternTag:
			if err := r.skip(1); err != nil {
				return err
			}
			if imp.TypeIdx, err = r.readU32(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown import kind 0x%02x", kind)
		}
		m.Imports = append(m.Imports, imp)
	}
	return nil
}

func skipLimits(r *reader) error {
	flags, err := r.readByte()
	if err != nil {
		return err
	}
	if err := r.skipLEB128(); err != nil {
		return err
	}
	if flags&0x01 != 0 {
		return r.skipLEB128()
	}
	return nil
}

func readGlobalType(r *reader) (GlobalType, error) {
	vt, err := r.readByte()
	if err != nil {
		return GlobalType{}, err
	}
	mut, err := r.readByte()
	if err != nil {
		return GlobalType{}, err
	}
	return GlobalType{Type: ValType(vt), Mutable: mut == 0x01}, nil
}

func parseFunctionSection(r *reader, m *Metadata) error {
	count, err := r.readU32()
	if err != nil {
		return err
	}
	m.Funcs = make([]uint32, count)
	for i := range m.Funcs {
		if m.Funcs[i], err = r.readU32(); err != nil {
			return err
		}
	}
	return nil
}

func parseGlobalSection(r *reader, m *Metadata) error {
	count, err := r.readU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		gt, err := readGlobalType(r)
		if err != nil {
			return err
		}
		if err := skipInitExpr(r); err != nil {
			return err
		}
		m.Globals = append(m.Globals, gt)
	}
	return nil
}

// skipInitExpr consumes a constant expression up to and including its end
// opcode, stepping over immediates so that an 0x0B byte inside one is not
// mistaken for the terminator.
func skipInitExpr(r *reader) error {
	for {
		op, err := r.readByte()
		if err != nil {
			return err
		}
		switch op {
		case 0x0B: // end
			return nil
		case 0x41, 0x42, 0x23, 0xD2: // i32.const, i64.const, global.get, ref.func
			err = r.skipLEB128()
		case 0x43: // f32.const
			err = r.skip(4)
		case 0x44: // f64.const
			err = r.skip(8)
		case 0xD0: // ref.null
			err = r.skip(1)
		case 0x6A, 0x6B, 0x6C, 0x7C, 0x7D, 0x7E: // extended-const arithmetic
		case 0xFD: // v128.const
			if err = r.skipLEB128(); err == nil {
				err = r.skip(16)
			}
		default:
			return fmt.Errorf("unsupported opcode 0x%02x in constant expression", op)
		}
		if err != nil {
			return err
		}
	}
}

func parseExportSection(r *reader, m *Metadata) error {
	count, err := r.readU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		var exp Export
		if exp.Name, err = r.readName(); err != nil {
			return err
		}
		kind, err := r.readByte()
		if err != nil {
			return err
		}
		exp.Kind = ExternKind(kind)
		if exp.Index, err = r.readU32(); err != nil {
			return err
		}
		m.Exports = append(m.Exports, exp)
	}
	return nil
}

// parseCustomSection extracts the module name from the "name" section.
// Malformed name sections are ignored, as the core format requires.
func parseCustomSection(r *reader, m *Metadata) error {
	name, err := r.readName()
	if err != nil {
		return err
	}
	if name != "name" {
		return nil
	}
	for r.remaining() > 0 {
		id, err := r.readByte()
		if err != nil {
			return nil
		}
		size, err := r.readU32()
		if err != nil {
			return nil
		}
		if id == 0 {
			modName, err := r.readName()
			if err == nil {
				m.Name = modName
			}
			return nil
		}
		if err := r.skip(int(size)); err != nil {
			return nil
		}
	}
	return nil
}

func equalValTypes(a, b []ValType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func joinValTypes(types []ValType) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}
