package marshal

// Args is implemented by argument tuples. Kinds reports the parameter kinds
// in order and Put writes each element into its stack slot.
type Args interface {
	Kinds() []Kind
	Put(stack []uint64)
}

// ArgsPtr is a pointer to an argument tuple that can also be filled from
// stack slots. Host functions receive their arguments through it.
type ArgsPtr[A any] interface {
	*A
	Args
	Load(stack []uint64)
}

// T0 is the empty argument tuple.
type T0 struct{}

// Kinds implements Args.
func (T0) Kinds() []Kind { return nil }

// Put implements Args.
func (T0) Put([]uint64) {}

// Load implements ArgsPtr.
func (*T0) Load([]uint64) {}

// T1 is a tuple of a single argument.
type T1[A1 Scalar] struct {
	V1 A1
}

// Kinds implements Args.
func (T1[A1]) Kinds() []Kind {
	return []Kind{KindOf[A1]()}
}

// Put implements Args.
func (t T1[A1]) Put(stack []uint64) {
	stack[0] = Encode(t.V1)
}

// Load implements ArgsPtr.
func (t *T1[A1]) Load(stack []uint64) {
	t.V1 = Decode[A1](stack[0])
}

// Tuple1 builds a T1 with inferred element types.
func Tuple1[A1 Scalar](v1 A1) T1[A1] {
	return T1[A1]{v1}
}

// T2 is a tuple of 2 arguments.
type T2[A1, A2 Scalar] struct {
	V1 A1
	V2 A2
}

// Kinds implements Args.
func (T2[A1, A2]) Kinds() []Kind {
	return []Kind{KindOf[A1](), KindOf[A2]()}
}

// Put implements Args.
func (t T2[A1, A2]) Put(stack []uint64) {
	stack[0] = Encode(t.V1)
	stack[1] = Encode(t.V2)
}

// Load implements ArgsPtr.
func (t *T2[A1, A2]) Load(stack []uint64) {
	t.V1 = Decode[A1](stack[0])
	t.V2 = Decode[A2](stack[1])
}

// Tuple2 builds a T2 with inferred element types.
func Tuple2[A1, A2 Scalar](v1 A1, v2 A2) T2[A1, A2] {
	return T2[A1, A2]{v1, v2}
}

// T3 is a tuple of 3 arguments.
type T3[A1, A2, A3 Scalar] struct {
	V1 A1
	V2 A2
	V3 A3
}

// Kinds implements Args.
func (T3[A1, A2, A3]) Kinds() []Kind {
	return []Kind{KindOf[A1](), KindOf[A2](), KindOf[A3]()}
}

// Put implements Args.
func (t T3[A1, A2, A3]) Put(stack []uint64) {
	stack[0] = Encode(t.V1)
	stack[1] = Encode(t.V2)
	stack[2] = Encode(t.V3)
}

// Load implements ArgsPtr.
func (t *T3[A1, A2, A3]) Load(stack []uint64) {
	t.V1 = Decode[A1](stack[0])
	t.V2 = Decode[A2](stack[1])
	t.V3 = Decode[A3](stack[2])
}

// Tuple3 builds a T3 with inferred element types.
func Tuple3[A1, A2, A3 Scalar](v1 A1, v2 A2, v3 A3) T3[A1, A2, A3] {
	return T3[A1, A2, A3]{v1, v2, v3}
}

// T4 is a tuple of 4 arguments.
type T4[A1, A2, A3, A4 Scalar] struct {
	V1 A1
	V2 A2
	V3 A3
	V4 A4
}

// Kinds implements Args.
func (T4[A1, A2, A3, A4]) Kinds() []Kind {
	return []Kind{KindOf[A1](), KindOf[A2](), KindOf[A3](), KindOf[A4]()}
}

// Put implements Args.
func (t T4[A1, A2, A3, A4]) Put(stack []uint64) {
	stack[0] = Encode(t.V1)
	stack[1] = Encode(t.V2)
	stack[2] = Encode(t.V3)
	stack[3] = Encode(t.V4)
}

// Load implements ArgsPtr.
func (t *T4[A1, A2, A3, A4]) Load(stack []uint64) {
	t.V1 = Decode[A1](stack[0])
	t.V2 = Decode[A2](stack[1])
	t.V3 = Decode[A3](stack[2])
	t.V4 = Decode[A4](stack[3])
}

// Tuple4 builds a T4 with inferred element types.
func Tuple4[A1, A2, A3, A4 Scalar](v1 A1, v2 A2, v3 A3, v4 A4) T4[A1, A2, A3, A4] {
	return T4[A1, A2, A3, A4]{v1, v2, v3, v4}
}

// T5 is a tuple of 5 arguments.
type T5[A1, A2, A3, A4, A5 Scalar] struct {
	V1 A1
	V2 A2
	V3 A3
	V4 A4
	V5 A5
}

// Kinds implements Args.
func (T5[A1, A2, A3, A4, A5]) Kinds() []Kind {
	return []Kind{KindOf[A1](), KindOf[A2](), KindOf[A3](), KindOf[A4](), KindOf[A5]()}
}

// Put implements Args.
func (t T5[A1, A2, A3, A4, A5]) Put(stack []uint64) {
	stack[0] = Encode(t.V1)
	stack[1] = Encode(t.V2)
	stack[2] = Encode(t.V3)
	stack[3] = Encode(t.V4)
	stack[4] = Encode(t.V5)
}

// Load implements ArgsPtr.
func (t *T5[A1, A2, A3, A4, A5]) Load(stack []uint64) {
	t.V1 = Decode[A1](stack[0])
	t.V2 = Decode[A2](stack[1])
	t.V3 = Decode[A3](stack[2])
	t.V4 = Decode[A4](stack[3])
	t.V5 = Decode[A5](stack[4])
}

// Tuple5 builds a T5 with inferred element types.
func Tuple5[A1, A2, A3, A4, A5 Scalar](v1 A1, v2 A2, v3 A3, v4 A4, v5 A5) T5[A1, A2, A3, A4, A5] {
	return T5[A1, A2, A3, A4, A5]{v1, v2, v3, v4, v5}
}

// T6 is a tuple of 6 arguments.
type T6[A1, A2, A3, A4, A5, A6 Scalar] struct {
	V1 A1
	V2 A2
	V3 A3
	V4 A4
	V5 A5
	V6 A6
}

// Kinds implements Args.
func (T6[A1, A2, A3, A4, A5, A6]) Kinds() []Kind {
	return []Kind{KindOf[A1](), KindOf[A2](), KindOf[A3](), KindOf[A4](), KindOf[A5](), KindOf[A6]()}
}

// Put implements Args.
func (t T6[A1, A2, A3, A4, A5, A6]) Put(stack []uint64) {
	stack[0] = Encode(t.V1)
	stack[1] = Encode(t.V2)
	stack[2] = Encode(t.V3)
	stack[3] = Encode(t.V4)
	stack[4] = Encode(t.V5)
	stack[5] = Encode(t.V6)
}

// Load implements ArgsPtr.
func (t *T6[A1, A2, A3, A4, A5, A6]) Load(stack []uint64) {
	t.V1 = Decode[A1](stack[0])
	t.V2 = Decode[A2](stack[1])
	t.V3 = Decode[A3](stack[2])
	t.V4 = Decode[A4](stack[3])
	t.V5 = Decode[A5](stack[4])
	t.V6 = Decode[A6](stack[5])
}

// Tuple6 builds a T6 with inferred element types.
func Tuple6[A1, A2, A3, A4, A5, A6 Scalar](v1 A1, v2 A2, v3 A3, v4 A4, v5 A5, v6 A6) T6[A1, A2, A3, A4, A5, A6] {
	return T6[A1, A2, A3, A4, A5, A6]{v1, v2, v3, v4, v5, v6}
}

// T7 is a tuple of 7 arguments.
type T7[A1, A2, A3, A4, A5, A6, A7 Scalar] struct {
	V1 A1
	V2 A2
	V3 A3
	V4 A4
	V5 A5
	V6 A6
	V7 A7
}

// Kinds implements Args.
func (T7[A1, A2, A3, A4, A5, A6, A7]) Kinds() []Kind {
	return []Kind{KindOf[A1](), KindOf[A2](), KindOf[A3](), KindOf[A4](), KindOf[A5](), KindOf[A6](), KindOf[A7]()}
}

// Put implements Args.
func (t T7[A1, A2, A3, A4, A5, A6, A7]) Put(stack []uint64) {
	stack[0] = Encode(t.V1)
	stack[1] = Encode(t.V2)
	stack[2] = Encode(t.V3)
	stack[3] = Encode(t.V4)
	stack[4] = Encode(t.V5)
	stack[5] = Encode(t.V6)
	stack[6] = Encode(t.V7)
}

// Load implements ArgsPtr.
func (t *T7[A1, A2, A3, A4, A5, A6, A7]) Load(stack []uint64) {
	t.V1 = Decode[A1](stack[0])
	t.V2 = Decode[A2](stack[1])
	t.V3 = Decode[A3](stack[2])
	t.V4 = Decode[A4](stack[3])
	t.V5 = Decode[A5](stack[4])
	t.V6 = Decode[A6](stack[5])
	t.V7 = Decode[A7](stack[6])
}

// Tuple7 builds a T7 with inferred element types.
func Tuple7[A1, A2, A3, A4, A5, A6, A7 Scalar](v1 A1, v2 A2, v3 A3, v4 A4, v5 A5, v6 A6, v7 A7) T7[A1, A2, A3, A4, A5, A6, A7] {
	return T7[A1, A2, A3, A4, A5, A6, A7]{v1, v2, v3, v4, v5, v6, v7}
}

// T8 is a tuple of 8 arguments.
type T8[A1, A2, A3, A4, A5, A6, A7, A8 Scalar] struct {
	V1 A1
	V2 A2
	V3 A3
	V4 A4
	V5 A5
	V6 A6
	V7 A7
	V8 A8
}

// Kinds implements Args.
func (T8[A1, A2, A3, A4, A5, A6, A7, A8]) Kinds() []Kind {
	return []Kind{KindOf[A1](), KindOf[A2](), KindOf[A3](), KindOf[A4](), KindOf[A5](), KindOf[A6](), KindOf[A7](), KindOf[A8]()}
}

// Put implements Args.
func (t T8[A1, A2, A3, A4, A5, A6, A7, A8]) Put(stack []uint64) {
	stack[0] = Encode(t.V1)
	stack[1] = Encode(t.V2)
	stack[2] = Encode(t.V3)
	stack[3] = Encode(t.V4)
	stack[4] = Encode(t.V5)
	stack[5] = Encode(t.V6)
	stack[6] = Encode(t.V7)
	stack[7] = Encode(t.V8)
}

// Load implements ArgsPtr.
func (t *T8[A1, A2, A3, A4, A5, A6, A7, A8]) Load(stack []uint64) {
	t.V1 = Decode[A1](stack[0])
	t.V2 = Decode[A2](stack[1])
	t.V3 = Decode[A3](stack[2])
	t.V4 = Decode[A4](stack[3])
	t.V5 = Decode[A5](stack[4])
	t.V6 = Decode[A6](stack[5])
	t.V7 = Decode[A7](stack[6])
	t.V8 = Decode[A8](stack[7])
}

// Tuple8 builds a T8 with inferred element types.
func Tuple8[A1, A2, A3, A4, A5, A6, A7, A8 Scalar](v1 A1, v2 A2, v3 A3, v4 A4, v5 A5, v6 A6, v7 A7, v8 A8) T8[A1, A2, A3, A4, A5, A6, A7, A8] {
	return T8[A1, A2, A3, A4, A5, A6, A7, A8]{v1, v2, v3, v4, v5, v6, v7, v8}
}
