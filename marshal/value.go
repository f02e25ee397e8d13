package marshal

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasmbind/errors"
)

// Value is a dynamically typed WebAssembly scalar: a kind plus the raw
// stack slot bits.
type Value struct {
	bits uint64
	kind Kind
}

// I32Value wraps an i32.
func I32Value(v int32) Value { return Value{kind: I32, bits: api.EncodeI32(v)} }

// I64Value wraps an i64.
func I64Value(v int64) Value { return Value{kind: I64, bits: api.EncodeI64(v)} }

// F32Value wraps an f32.
func F32Value(v float32) Value { return Value{kind: F32, bits: api.EncodeF32(v)} }

// F64Value wraps an f64.
func F64Value(v float64) Value { return Value{kind: F64, bits: api.EncodeF64(v)} }

// FromBits reinterprets a raw stack slot as a value of kind k.
func FromBits(k Kind, bits uint64) Value {
	if k == I32 || k == F32 {
		bits &= math.MaxUint32
	}
	return Value{kind: k, bits: bits}
}

// Kind returns the value's kind.
func (v Value) Kind() Kind { return v.kind }

// Bits returns the raw stack slot representation.
func (v Value) Bits() uint64 { return v.bits }

// Int32 returns the value as an i32.
func (v Value) Int32() (int32, error) {
	if err := v.expect(I32); err != nil {
		return 0, err
	}
	return api.DecodeI32(v.bits), nil
}

// Uint32 returns the value of an i32 reinterpreted as unsigned.
func (v Value) Uint32() (uint32, error) {
	if err := v.expect(I32); err != nil {
		return 0, err
	}
	return api.DecodeU32(v.bits), nil
}

// Int64 returns the value as an i64.
func (v Value) Int64() (int64, error) {
	if err := v.expect(I64); err != nil {
		return 0, err
	}
	return int64(v.bits), nil
}

// Float32 returns the value as an f32.
func (v Value) Float32() (float32, error) {
	if err := v.expect(F32); err != nil {
		return 0, err
	}
	return api.DecodeF32(v.bits), nil
}

// Float64 returns the value as an f64.
func (v Value) Float64() (float64, error) {
	if err := v.expect(F64); err != nil {
		return 0, err
	}
	return api.DecodeF64(v.bits), nil
}

// Interface returns the value as int32, int64, float32 or float64.
func (v Value) Interface() any {
	switch v.kind {
	case I32:
		return api.DecodeI32(v.bits)
	case I64:
		return int64(v.bits)
	case F32:
		return api.DecodeF32(v.bits)
	case F64:
		return api.DecodeF64(v.bits)
	}
	return nil
}

func (v Value) String() string {
	switch v.kind {
	case I32:
		return strconv.FormatInt(int64(api.DecodeI32(v.bits)), 10) + ":i32"
	case I64:
		return strconv.FormatInt(int64(v.bits), 10) + ":i64"
	case F32:
		return strconv.FormatFloat(float64(api.DecodeF32(v.bits)), 'g', -1, 32) + ":f32"
	case F64:
		return strconv.FormatFloat(api.DecodeF64(v.bits), 'g', -1, 64) + ":f64"
	}
	return "invalid"
}

func (v Value) expect(k Kind) error {
	if v.kind != k {
		return errors.SignatureMismatch(errors.PhaseDecode, "value", k.String(), v.kind.String())
	}
	return nil
}

// ValueOf converts a Go value to a Value of kind k. Every Go integer, float
// and bool type is accepted. An i32 takes any value that fits either int32 or
// uint32, an i64 any int64 or uint64. Integers converted to a float kind and
// floats converted to an integer kind must survive the conversion exactly.
// Anything that would truncate fails with KindOverflow.
func ValueOf(k Kind, x any) (Value, error) {
	if v, ok := x.(Value); ok {
		if v.kind != k {
			return Value{}, errors.SignatureMismatch(errors.PhaseEncode, "value", k.String(), v.kind.String())
		}
		return v, nil
	}

	switch n := x.(type) {
	case bool:
		if n {
			return fromInt(k, 1, x)
		}
		return fromInt(k, 0, x)
	case int:
		return fromInt(k, int64(n), x)
	case int8:
		return fromInt(k, int64(n), x)
	case int16:
		return fromInt(k, int64(n), x)
	case int32:
		return fromInt(k, int64(n), x)
	case int64:
		return fromInt(k, n, x)
	case uint:
		return fromUint(k, uint64(n), x)
	case uint8:
		return fromUint(k, uint64(n), x)
	case uint16:
		return fromUint(k, uint64(n), x)
	case uint32:
		return fromUint(k, uint64(n), x)
	case uint64:
		return fromUint(k, n, x)
	case uintptr:
		return fromUint(k, uint64(n), x)
	case float32:
		if k == F32 {
			return F32Value(n), nil
		}
		return fromFloat(k, float64(n), x)
	case float64:
		return fromFloat(k, n, x)
	}
	if !k.Valid() {
		return Value{}, errors.InvalidInput(errors.PhaseEncode, fmt.Sprintf("invalid kind %s", k))
	}
	return Value{}, errors.New(errors.PhaseEncode, errors.KindSignatureMismatch).
		Want(k.String()).
		Got(fmt.Sprintf("%T", x)).
		Value(x).
		Build()
}

func fromInt(k Kind, n int64, orig any) (Value, error) {
	switch k {
	case I32:
		if n < math.MinInt32 || n > math.MaxUint32 {
			return Value{}, errors.Overflow(errors.PhaseEncode, orig, "i32")
		}
		return FromBits(I32, uint64(n)), nil
	case I64:
		return I64Value(n), nil
	case F32:
		f := float32(n)
		if math.Abs(float64(f)) >= 1<<63 || int64(f) != n {
			return Value{}, errors.Overflow(errors.PhaseEncode, orig, "f32")
		}
		return F32Value(f), nil
	case F64:
		f := float64(n)
		if f >= 1<<63 || int64(f) != n {
			return Value{}, errors.Overflow(errors.PhaseEncode, orig, "f64")
		}
		return F64Value(f), nil
	}
	return Value{}, errors.InvalidInput(errors.PhaseEncode, fmt.Sprintf("invalid kind %s", k))
}

func fromUint(k Kind, n uint64, orig any) (Value, error) {
	switch k {
	case I32:
		if n > math.MaxUint32 {
			return Value{}, errors.Overflow(errors.PhaseEncode, orig, "i32")
		}
		return FromBits(I32, n), nil
	case I64:
		return Value{kind: I64, bits: n}, nil
	case F32:
		f := float32(n)
		if float64(f) >= 1<<64 || uint64(f) != n {
			return Value{}, errors.Overflow(errors.PhaseEncode, orig, "f32")
		}
		return F32Value(f), nil
	case F64:
		f := float64(n)
		if f >= 1<<64 || uint64(f) != n {
			return Value{}, errors.Overflow(errors.PhaseEncode, orig, "f64")
		}
		return F64Value(f), nil
	}
	return Value{}, errors.InvalidInput(errors.PhaseEncode, fmt.Sprintf("invalid kind %s", k))
}

func fromFloat(k Kind, f float64, orig any) (Value, error) {
	switch k {
	case F64:
		return F64Value(f), nil
	case F32:
		if !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
			return Value{}, errors.Overflow(errors.PhaseEncode, orig, "f32")
		}
		return F32Value(float32(f)), nil
	case I32:
		if f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxUint32 {
			return Value{}, errors.Overflow(errors.PhaseEncode, orig, "i32")
		}
		if f < 0 {
			return FromBits(I32, uint64(int64(f))), nil
		}
		return FromBits(I32, uint64(f)), nil
	case I64:
		if f != math.Trunc(f) || f < math.MinInt64 || f >= 1<<63 {
			return Value{}, errors.Overflow(errors.PhaseEncode, orig, "i64")
		}
		return I64Value(int64(f)), nil
	}
	return Value{}, errors.InvalidInput(errors.PhaseEncode, fmt.Sprintf("invalid kind %s", k))
}

// ParseValue parses the textual form of a value of kind k. Integers accept
// decimal, 0x hex, 0o octal and 0b binary, with an optional sign. Floats
// accept anything strconv.ParseFloat does, including "inf" and "nan".
func ParseValue(k Kind, s string) (Value, error) {
	s = strings.TrimSpace(s)
	switch k {
	case I32, I64:
		if strings.HasPrefix(s, "-") {
			n, err := strconv.ParseInt(s, 0, 64)
			if err != nil {
				return Value{}, parseError(k, s, err)
			}
			return fromInt(k, n, s)
		}
		n, err := strconv.ParseUint(strings.TrimPrefix(s, "+"), 0, 64)
		if err != nil {
			return Value{}, parseError(k, s, err)
		}
		return fromUint(k, n, s)
	case F32:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return Value{}, parseError(k, s, err)
		}
		return F32Value(float32(f)), nil
	case F64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, parseError(k, s, err)
		}
		return F64Value(f), nil
	}
	return Value{}, errors.InvalidInput(errors.PhaseEncode, fmt.Sprintf("invalid kind %s", k))
}

func parseError(k Kind, s string, err error) error {
	if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
		return errors.Overflow(errors.PhaseEncode, s, k.String())
	}
	return errors.New(errors.PhaseEncode, errors.KindInvalidInput).
		Want(k.String()).
		Got(strconv.Quote(s)).
		Cause(err).
		Build()
}

// Values converts a list of Go values to Values of the given kinds, in
// order. The counts must match.
func Values(kinds []Kind, xs ...any) ([]Value, error) {
	if len(kinds) != len(xs) {
		return nil, errors.New(errors.PhaseEncode, errors.KindSignatureMismatch).
			Want(fmt.Sprintf("%d argument(s)", len(kinds))).
			Got(fmt.Sprintf("%d", len(xs))).
			Build()
	}
	out := make([]Value, len(xs))
	for i, x := range xs {
		v, err := ValueOf(kinds[i], x)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
