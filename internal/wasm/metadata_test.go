package wasm_test

import (
	"bytes"
	"testing"

	"github.com/wippyai/wasmbind/internal/wasm"
	"github.com/wippyai/wasmbind/internal/wasmtest"
)

func TestLEB128_RoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 127, 128, 300, 1 << 20, 0xFFFFFFFF} {
		enc := wasm.EncodeLEB128u(v)
		got, n, err := wasm.DecodeLEB128u(enc)
		if err != nil {
			t.Fatalf("decode %d: %v", v, err)
		}
		if got != v || n != len(enc) {
			t.Errorf("decode(%x) = %d, %d; want %d, %d", enc, got, n, v, len(enc))
		}
	}

	if _, _, err := wasm.DecodeLEB128u([]byte{0x80, 0x80}); err == nil {
		t.Error("truncated LEB128 should fail")
	}
	if _, _, err := wasm.DecodeLEB128u([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}); err == nil {
		t.Error("overlong LEB128 should fail")
	}
}

func TestWriteLEB128s(t *testing.T) {
	tests := []struct {
		want []byte
		v    int64
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x7F}, -1},
		{[]byte{0x3F}, 63},
		{[]byte{0xC0, 0x00}, 64},
		{[]byte{0x40}, -64},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		wasm.WriteLEB128s64(&buf, tt.v)
		if !bytes.Equal(buf.Bytes(), tt.want) {
			t.Errorf("WriteLEB128s64(%d) = %x, want %x", tt.v, buf.Bytes(), tt.want)
		}
	}
}

func TestReadMetadata_Arith(t *testing.T) {
	m, err := wasm.ReadMetadata(wasmtest.Arith())
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}

	if m.Name != "arith" {
		t.Errorf("Name = %q, want arith", m.Name)
	}
	if m.Memories != 1 {
		t.Errorf("Memories = %d, want 1", m.Memories)
	}

	exports := make(map[string]wasm.Export)
	for _, e := range m.Exports {
		exports[e.Name] = e
	}

	add, ok := exports["add"]
	if !ok || add.Kind != wasm.ExternFunc {
		t.Fatalf("add export = %+v", add)
	}
	ft, ok := m.FuncType(add.Index)
	if !ok {
		t.Fatal("add type not resolved")
	}
	want := wasm.FuncType{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}}
	if !ft.Equal(want) {
		t.Errorf("add type = %s, want %s", ft, want)
	}

	limit := exports["limit"]
	gt, ok := m.GlobalType(limit.Index)
	if !ok || gt.Type != wasm.ValI64 || gt.Mutable {
		t.Errorf("limit type = %+v, %v", gt, ok)
	}
	counter := exports["counter"]
	gt, ok = m.GlobalType(counter.Index)
	if !ok || gt.Type != wasm.ValI32 || !gt.Mutable {
		t.Errorf("counter type = %+v, %v", gt, ok)
	}
	if exports["memory"].Kind != wasm.ExternMemory {
		t.Errorf("memory export kind = %s", exports["memory"].Kind)
	}
}

func TestReadMetadata_Imports(t *testing.T) {
	m, err := wasm.ReadMetadata(wasmtest.Host())
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if len(m.Imports) != 4 {
		t.Fatalf("imports = %d, want 4", len(m.Imports))
	}

	imp, idx, ok := m.FindImport("env", "read")
	if !ok || idx != 1 {
		t.Fatalf("FindImport(env, read) = %+v, %d, %v", imp, idx, ok)
	}
	ft, ok := m.FuncType(uint32(idx))
	if !ok || len(ft.Params) != 2 || len(ft.Results) != 1 {
		t.Errorf("read type = %s", ft)
	}

	if _, _, ok := m.FindImport("env", "nope"); ok {
		t.Error("FindImport should miss")
	}
	if _, ok := m.FuncType(99); ok {
		t.Error("FuncType(99) should miss")
	}
}

func TestReadMetadata_Malformed(t *testing.T) {
	valid := wasmtest.Arith()
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", append([]byte{0x00, 0x61, 0x73, 0x00}, valid[4:]...)},
		{"bad version", append(append([]byte{}, valid[:4]...), 0x02, 0, 0, 0)},
		{"truncated", valid[:len(valid)-3]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := wasm.ReadMetadata(tt.data); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRewriteImportModules(t *testing.T) {
	orig := wasmtest.Host()
	out, err := wasm.RewriteImportModules(orig, func(mod string) string {
		return mod + "#host"
	})
	if err != nil {
		t.Fatalf("RewriteImportModules: %v", err)
	}

	m, err := wasm.ReadMetadata(out)
	if err != nil {
		t.Fatalf("ReadMetadata after rewrite: %v", err)
	}
	for _, imp := range m.Imports {
		if imp.Module != "env#host" {
			t.Errorf("import %s.%s not rewritten", imp.Module, imp.Name)
		}
	}
	if _, _, ok := m.FindImport("env#host", "reenter"); !ok {
		t.Error("reenter import lost")
	}
	if len(m.Exports) == 0 {
		t.Error("exports lost")
	}

	same, err := wasm.RewriteImportModules(orig, func(mod string) string { return mod })
	if err != nil {
		t.Fatalf("identity rewrite: %v", err)
	}
	if &same[0] != &orig[0] {
		t.Error("identity rewrite should return the input slice")
	}
}
