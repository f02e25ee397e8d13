package marshal

import (
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasmbind/errors"
)

// Kind is a WebAssembly scalar value kind. Its numeric value is the binary
// encoding of the corresponding value type.
type Kind byte

const (
	I32 Kind = Kind(api.ValueTypeI32)
	I64 Kind = Kind(api.ValueTypeI64)
	F32 Kind = Kind(api.ValueTypeF32)
	F64 Kind = Kind(api.ValueTypeF64)
)

func (k Kind) String() string {
	switch k {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	default:
		return fmt.Sprintf("kind(0x%02x)", byte(k))
	}
}

// Valid reports whether k is one of the four scalar kinds.
func (k Kind) Valid() bool {
	switch k {
	case I32, I64, F32, F64:
		return true
	}
	return false
}

// ValueType returns the interpreter value type for k.
func (k Kind) ValueType() api.ValueType {
	return api.ValueType(k)
}

// ParseKind parses "i32", "i64", "f32" or "f64".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "i32":
		return I32, nil
	case "i64":
		return I64, nil
	case "f32":
		return F32, nil
	case "f64":
		return F64, nil
	}
	return 0, errors.InvalidInput(errors.PhaseValidate, fmt.Sprintf("unknown value kind %q", s))
}

// Signature is the shape of a function: parameter kinds and result kinds.
type Signature struct {
	Params  []Kind
	Results []Kind
}

// Equal reports whether both signatures have identical shapes.
func (s Signature) Equal(o Signature) bool {
	return equalKinds(s.Params, o.Params) && equalKinds(s.Results, o.Results)
}

func (s Signature) String() string {
	var b strings.Builder
	b.WriteByte('(')
	writeKinds(&b, s.Params)
	b.WriteString(") -> ")
	switch len(s.Results) {
	case 0:
		b.WriteString("()")
	case 1:
		b.WriteString(s.Results[0].String())
	default:
		b.WriteByte('(')
		writeKinds(&b, s.Results)
		b.WriteByte(')')
	}
	return b.String()
}

// SignatureOf derives the signature of a typed function from its argument
// tuple and result types.
func SignatureOf[A Args, R Result]() Signature {
	var args A
	return Signature{Params: args.Kinds(), Results: ResultKinds[R]()}
}

// ValueTypes returns the interpreter value types of kinds.
func ValueTypes(kinds []Kind) []api.ValueType {
	out := make([]api.ValueType, len(kinds))
	for i, k := range kinds {
		out[i] = k.ValueType()
	}
	return out
}

func equalKinds(a, b []Kind) bool {
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

func writeKinds(b *strings.Builder, kinds []Kind) {
	for i, k := range kinds {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k.String())
	}
}
