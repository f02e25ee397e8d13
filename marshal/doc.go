// Package marshal converts between Go values and WebAssembly stack slots.
//
// Every WebAssembly scalar travels through the interpreter as a uint64 slot.
// The Scalar constraint lists the Go types with a lossless mapping:
//
//	int32, uint32 -> i32
//	int64, uint64 -> i64
//	float32       -> f32
//	float64       -> f64
//
// Typed calls describe their arguments with the tuple types T0 through T8
// and their result with a Scalar or Void:
//
//	sig := marshal.SignatureOf[marshal.T2[int32, int32], int32]()
//	// sig.String() == "(i32, i32) -> i32"
//
// Dynamic callers use Value, a kind-tagged slot. ValueOf and ParseValue
// refuse conversions that would lose information and report them as
// KindOverflow errors.
package marshal
