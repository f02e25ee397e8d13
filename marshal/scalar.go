package marshal

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasmbind/errors"
)

// Scalar is the set of Go types that map one-to-one onto a WebAssembly
// value. Signed and unsigned integers of the same width share a kind.
type Scalar interface {
	int32 | uint32 | int64 | uint64 | float32 | float64
}

// Void is the result type of functions that return nothing.
type Void struct{}

// Result is the set of allowed function result types.
type Result interface {
	Scalar | Void
}

// KindOf returns the WebAssembly kind of T.
func KindOf[T Scalar]() Kind {
	var zero T
	k, _ := kindOfValue(zero)
	return k
}

// ResultKinds returns the result kinds of R: none for Void, one otherwise.
func ResultKinds[R Result]() []Kind {
	var zero R
	if k, ok := kindOfValue(zero); ok {
		return []Kind{k}
	}
	return nil
}

// Encode converts v to its raw 64-bit stack slot representation.
func Encode[T Scalar](v T) uint64 {
	raw, _ := encodeValue(v)
	return raw
}

// Decode converts a raw stack slot back to T. Decode(Encode(v)) == v for
// every v, including the bit pattern of NaNs.
func Decode[T Scalar](raw uint64) T {
	var out T
	decodeInto(&out, raw)
	return out
}

// EncodeResult writes r into stack[0] unless R is Void.
func EncodeResult[R Result](r R, stack []uint64) {
	if raw, ok := encodeValue(r); ok {
		stack[0] = raw
	}
}

// DecodeResult reads R from the first slot of stack. It panics with an
// internal error when the slot count does not fit R, which means the
// signature check that bound the function was bypassed.
func DecodeResult[R Result](stack []uint64, count int) R {
	var out R
	want := len(ResultKinds[R]())
	if count != want || len(stack) < want {
		panic(errors.Internal(errors.PhaseDecode,
			"decoding %d result(s) into %T expecting %d", count, out, want))
	}
	if want == 1 {
		decodeInto(&out, stack[0])
	}
	return out
}

func kindOfValue(v any) (Kind, bool) {
	switch v.(type) {
	case int32, uint32:
		return I32, true
	case int64, uint64:
		return I64, true
	case float32:
		return F32, true
	case float64:
		return F64, true
	}
	return 0, false
}

func encodeValue(v any) (uint64, bool) {
	switch x := v.(type) {
	case int32:
		return api.EncodeI32(x), true
	case uint32:
		return api.EncodeU32(x), true
	case int64:
		return api.EncodeI64(x), true
	case uint64:
		return x, true
	case float32:
		return api.EncodeF32(x), true
	case float64:
		return api.EncodeF64(x), true
	}
	return 0, false
}

func decodeInto(dst any, raw uint64) {
	switch p := dst.(type) {
	case *int32:
		*p = api.DecodeI32(raw)
	case *uint32:
		*p = api.DecodeU32(raw)
	case *int64:
		*p = int64(raw)
	case *uint64:
		*p = raw
	case *float32:
		*p = api.DecodeF32(raw)
	case *float64:
		*p = api.DecodeF64(raw)
	case *Void:
	default:
		panic(errors.Internal(errors.PhaseDecode, "cannot decode into %s", fmt.Sprintf("%T", dst)))
	}
}
