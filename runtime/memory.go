package runtime

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasmbind"
	"github.com/wippyai/wasmbind/errors"
)

var (
	_ wasmbind.Memory       = (*MemoryView)(nil)
	_ wasmbind.MemorySizer  = (*MemoryView)(nil)
	_ wasmbind.MemoryGrower = (*MemoryView)(nil)
)

// PageSize is the size of one WebAssembly memory page.
const PageSize = 65536

// MemoryView is a bounds-checked view of a module's linear memory. Every
// access is checked against the memory's current size, and every access
// fails with KindClosed once the view's owner is gone: the module for views
// from Module.Memory, the callback for views from CallContext.Memory.
type MemoryView struct {
	mem   api.Memory
	alive func() bool
}

func (m *MemoryView) check() error {
	if !m.alive() {
		return errors.Closed(errors.PhaseMemory, "memory view")
	}
	return nil
}

func (m *MemoryView) outOfRange(offset uint32, length uint64) error {
	return errors.MemoryAccess(uint64(offset), length, m.mem.Size())
}

// Size returns the current memory size in bytes, or 0 once the view is
// no longer valid.
func (m *MemoryView) Size() uint32 {
	if m.check() != nil {
		return 0
	}
	return m.mem.Size()
}

// Pages returns the current memory size in pages.
func (m *MemoryView) Pages() (uint32, error) {
	if err := m.check(); err != nil {
		return 0, err
	}
	return m.mem.Size() / PageSize, nil
}

// Grow grows memory by deltaPages and returns the previous size in pages.
func (m *MemoryView) Grow(deltaPages uint32) (uint32, error) {
	if err := m.check(); err != nil {
		return 0, err
	}
	prev, ok := m.mem.Grow(deltaPages)
	if !ok {
		return 0, errors.New(errors.PhaseMemory, errors.KindMemoryAccess).
			Detail("cannot grow memory of %d pages by %d", m.mem.Size()/PageSize, deltaPages).
			Build()
	}
	return prev, nil
}

// Read returns a copy of length bytes at offset.
func (m *MemoryView) Read(offset uint32, length uint32) ([]byte, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, m.outOfRange(offset, uint64(length))
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// ReadString reads length bytes at offset as a string.
func (m *MemoryView) ReadString(offset uint32, length uint32) (string, error) {
	data, err := m.Read(offset, length)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Write writes data at offset.
func (m *MemoryView) Write(offset uint32, data []byte) error {
	if err := m.check(); err != nil {
		return err
	}
	if !m.mem.Write(offset, data) {
		return m.outOfRange(offset, uint64(len(data)))
	}
	return nil
}

// ReadU8 reads an unsigned 8-bit value.
func (m *MemoryView) ReadU8(offset uint32) (uint8, error) {
	if err := m.check(); err != nil {
		return 0, err
	}
	v, ok := m.mem.ReadByte(offset)
	if !ok {
		return 0, m.outOfRange(offset, 1)
	}
	return v, nil
}

// ReadU16 reads an unsigned 16-bit little-endian value.
func (m *MemoryView) ReadU16(offset uint32) (uint16, error) {
	if err := m.check(); err != nil {
		return 0, err
	}
	v, ok := m.mem.ReadUint16Le(offset)
	if !ok {
		return 0, m.outOfRange(offset, 2)
	}
	return v, nil
}

// ReadU32 reads an unsigned 32-bit little-endian value.
func (m *MemoryView) ReadU32(offset uint32) (uint32, error) {
	if err := m.check(); err != nil {
		return 0, err
	}
	v, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, m.outOfRange(offset, 4)
	}
	return v, nil
}

// ReadU64 reads an unsigned 64-bit little-endian value.
func (m *MemoryView) ReadU64(offset uint32) (uint64, error) {
	if err := m.check(); err != nil {
		return 0, err
	}
	v, ok := m.mem.ReadUint64Le(offset)
	if !ok {
		return 0, m.outOfRange(offset, 8)
	}
	return v, nil
}

// WriteU8 writes an unsigned 8-bit value.
func (m *MemoryView) WriteU8(offset uint32, value uint8) error {
	if err := m.check(); err != nil {
		return err
	}
	if !m.mem.WriteByte(offset, value) {
		return m.outOfRange(offset, 1)
	}
	return nil
}

// WriteU16 writes an unsigned 16-bit little-endian value.
func (m *MemoryView) WriteU16(offset uint32, value uint16) error {
	if err := m.check(); err != nil {
		return err
	}
	if !m.mem.WriteUint16Le(offset, value) {
		return m.outOfRange(offset, 2)
	}
	return nil
}

// WriteU32 writes an unsigned 32-bit little-endian value.
func (m *MemoryView) WriteU32(offset uint32, value uint32) error {
	if err := m.check(); err != nil {
		return err
	}
	if !m.mem.WriteUint32Le(offset, value) {
		return m.outOfRange(offset, 4)
	}
	return nil
}

// WriteU64 writes an unsigned 64-bit little-endian value.
func (m *MemoryView) WriteU64(offset uint32, value uint64) error {
	if err := m.check(); err != nil {
		return err
	}
	if !m.mem.WriteUint64Le(offset, value) {
		return m.outOfRange(offset, 8)
	}
	return nil
}
