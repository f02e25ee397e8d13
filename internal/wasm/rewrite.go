package wasm

import "fmt"

// RewriteImportModules returns a copy of the module binary whose function
// import module names are replaced by rename. Sections other than the import
// section are copied byte for byte. When rename leaves every name unchanged
// the input slice is returned.
func RewriteImportModules(data []byte, rename func(module string) string) ([]byte, error) {
	if !IsModule(data) {
		return data, nil
	}

	result := make([]byte, 0, len(data)+64)
	result = append(result, data[:8]...)
	changed := false

	r := newReader(data)
	r.pos = 8
	for r.remaining() > 0 {
		id, err := r.readByte()
		if err != nil {
			return nil, err
		}
		sizeStart := r.pos
		size, err := r.readU32()
		if err != nil {
			return nil, err
		}
		sizeBytes := data[sizeStart:r.pos]
		body, err := r.readBytes(int(size))
		if err != nil {
			return nil, err
		}

		if id != SectionImport {
			result = append(result, id)
			result = append(result, sizeBytes...)
			result = append(result, body...)
			continue
		}

		rewritten, sectionChanged, err := rewriteImportSection(body, rename)
		if err != nil {
			return nil, &ParseError{Section: "import section", Position: r.pos, Err: err}
		}
		changed = changed || sectionChanged
		result = append(result, id)
		result = append(result, EncodeLEB128u(uint32(len(rewritten)))...)
		result = append(result, rewritten...)
	}

	if !changed {
		return data, nil
	}
	return result, nil
}

func rewriteImportSection(section []byte, rename func(string) string) ([]byte, bool, error) {
	result := make([]byte, 0, len(section)+32)
	changed := false
	r := newReader(section)

	numImports, err := r.readU32()
	if err != nil {
		return nil, false, err
	}
	result = append(result, EncodeLEB128u(numImports)...)

	for i := uint32(0); i < numImports; i++ {
		modName, err := r.readName()
		if err != nil {
			return nil, false, err
		}
		nameStart := r.pos
		if _, err := r.readName(); err != nil {
			return nil, false, err
		}
		importName := section[nameStart:r.pos]

		descStart := r.pos
		kind, err := r.readByte()
		if err != nil {
			return nil, false, err
		}
		switch ExternKind(kind) {
		case ExternFunc:
			err = r.skipLEB128()
		case ExternTable:
			if err = r.skip(1); err == nil {
				err = skipLimits(r)
			}
		case ExternMemory:
			err = skipLimits(r)
		case ExternGlobal:
			err = r.skip(2)
		case ExternTag:
			if err = r.skip(1); err == nil {
				err = r.skipLEB128()
			}
		default:
			err = fmt.Errorf("unknown import kind 0x%02x", kind)
		}
		if err != nil {
			return nil, false, err
		}

		newName := modName
		if ExternKind(kind) == ExternFunc {
			newName = rename(modName)
		}
		if newName != modName {
			changed = true
		}
		result = append(result, EncodeLEB128u(uint32(len(newName)))...)
		result = append(result, newName...)
		result = append(result, importName...)
		result = append(result, section[descStart:r.pos]...)
	}

	return result, changed, nil
}
