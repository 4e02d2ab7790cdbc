package graph

import (
	"fmt"

	"github.com/born-ml/teafacto/internal/tensor"
)

// OpType enumerates the operations a graph can contain.
type OpType uint8

// Operation set.
const (
	OpNone OpType = iota
	OpIdentity
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpNeg
	OpAddScalar
	OpMulScalar
	OpPowScalar
	OpExp
	OpLog
	OpSqrt
	OpTanh
	OpSigmoid
	OpReLU
	OpSoftmax
	OpDot
	OpSum
	OpMean
	OpSumAll
	OpMeanAll
	OpReshape
	OpTranspose
	OpSlice
	OpIndex
	OpConcat
	OpRows
	OpPick
	OpOneHot
	OpArgmax
	OpEqualScalar
	OpCast
	OpZeros
	OpClip
	OpExpand
	OpSqueeze
)

var opNames = [...]string{
	OpNone: "none", OpIdentity: "identity", OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div",
	OpNeg: "neg", OpAddScalar: "addscalar", OpMulScalar: "mulscalar", OpPowScalar: "pow",
	OpExp: "exp", OpLog: "log", OpSqrt: "sqrt", OpTanh: "tanh", OpSigmoid: "sigmoid", OpReLU: "relu",
	OpSoftmax: "softmax", OpDot: "dot", OpSum: "sum", OpMean: "mean", OpSumAll: "sumall",
	OpMeanAll: "meanall", OpReshape: "reshape", OpTranspose: "transpose", OpSlice: "slice",
	OpIndex: "index", OpConcat: "concat", OpRows: "rows", OpPick: "pick", OpOneHot: "onehot",
	OpArgmax: "argmax", OpEqualScalar: "eq", OpCast: "cast", OpZeros: "zeros", OpClip: "clip",
	OpExpand: "expand", OpSqueeze: "squeeze",
}

func (o OpType) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", o)
}

func (v Var) op(op OpType, shape tensor.Shape, dtype tensor.DataType, parents ...Var) *node {
	for _, p := range parents {
		if p.g != v.g {
			fail(op.String(), ErrForeign, "%v and %v", v, p)
		}
	}
	ids := make([]NodeID, len(parents))
	for i, p := range parents {
		ids[i] = p.id
	}
	return &node{kind: kindOp, op: op, shape: shape, dtype: dtype, parents: ids}
}

func (v Var) emit(n *node) Var {
	return v.g.add(n)
}

// float returns v, inserting a cast when v holds integers.
func (v Var) float() Var {
	if v.DType() == tensor.Float32 {
		return v
	}
	return v.Cast(tensor.Float32)
}

func (v Var) requireInt(op string) {
	if v.DType().IsFloat() {
		fail(op, ErrDType, "%v must hold integer indices", v)
	}
}

// broadcastStatic applies broadcasting to static shapes with unknown (-1)
// dims. An unknown dim matches anything.
func broadcastStatic(op string, a, b tensor.Shape) tensor.Shape {
	n := max(len(a), len(b))
	out := make(tensor.Shape, n)
	for i := range n {
		ad, bd := 1, 1
		if j := len(a) - n + i; j >= 0 {
			ad = a[j]
		}
		if j := len(b) - n + i; j >= 0 {
			bd = b[j]
		}
		switch {
		case ad == bd:
			out[i] = ad
		case ad == 1:
			out[i] = bd
		case bd == 1:
			out[i] = ad
		case ad < 0:
			out[i] = bd
		case bd < 0:
			out[i] = ad
		default:
			fail(op, ErrShape, "cannot broadcast %v and %v", a, b)
		}
	}
	return out
}

func (v Var) binary(op OpType, o Var) Var {
	a, b := v.float(), o.float()
	shape := broadcastStatic(op.String(), a.Shape(), b.Shape())
	return v.emit(v.op(op, shape, tensor.Float32, a, b))
}

// Add returns v + o with broadcasting.
func (v Var) Add(o Var) Var { return v.binary(OpAdd, o) }

// Sub returns v - o with broadcasting.
func (v Var) Sub(o Var) Var { return v.binary(OpSub, o) }

// Mul returns v * o element-wise with broadcasting.
func (v Var) Mul(o Var) Var { return v.binary(OpMul, o) }

// Div returns v / o element-wise with broadcasting.
func (v Var) Div(o Var) Var { return v.binary(OpDiv, o) }

func (v Var) unary(op OpType) Var {
	x := v.float()
	return v.emit(x.op(op, x.Shape().Clone(), tensor.Float32, x))
}

func (v Var) withScalar(op OpType, c float32) Var {
	x := v.float()
	n := x.op(op, x.Shape().Clone(), tensor.Float32, x)
	n.scalar = c
	return v.emit(n)
}

// Neg returns -v.
func (v Var) Neg() Var { return v.unary(OpNeg) }

// AddScalar returns v + c. Literal operands do not create nodes.
func (v Var) AddScalar(c float32) Var { return v.withScalar(OpAddScalar, c) }

// Scale returns v * c.
func (v Var) Scale(c float32) Var { return v.withScalar(OpMulScalar, c) }

// Pow returns v ** c.
func (v Var) Pow(c float32) Var { return v.withScalar(OpPowScalar, c) }

// RSub returns c - v.
func (v Var) RSub(c float32) Var { return v.Neg().AddScalar(c) }

// Exp returns e**v.
func (v Var) Exp() Var { return v.unary(OpExp) }

// Log returns the natural logarithm.
func (v Var) Log() Var { return v.unary(OpLog) }

// Sqrt returns the square root.
func (v Var) Sqrt() Var { return v.unary(OpSqrt) }

// Tanh returns the hyperbolic tangent.
func (v Var) Tanh() Var { return v.unary(OpTanh) }

// Sigmoid returns the logistic function.
func (v Var) Sigmoid() Var { return v.unary(OpSigmoid) }

// ReLU returns max(v, 0).
func (v Var) ReLU() Var { return v.unary(OpReLU) }

// Softmax normalizes the last axis.
func (v Var) Softmax() Var {
	if v.NDim() == 0 {
		fail("softmax", ErrShape, "scalar input")
	}
	return v.unary(OpSoftmax)
}

// Clip clamps values into [lo, hi]. The gradient passes through unchanged
// inside the range and is zero outside.
func (v Var) Clip(lo, hi float32) Var {
	if lo > hi {
		fail("clip", ErrShape, "empty range [%g, %g]", lo, hi)
	}
	x := v.float()
	n := x.op(OpClip, x.Shape().Clone(), tensor.Float32, x)
	n.scalar = lo
	n.hi = hi
	return v.emit(n)
}

// Dot multiplies the last axis of v with a 2-D matrix w:
// (..., K) · (K, N) -> (..., N).
func (v Var) Dot(w Var) Var {
	x := v.float()
	ws := w.Shape()
	if len(ws) != 2 {
		fail("dot", ErrShape, "right operand must be 2D, got %v", ws)
	}
	xs := x.Shape()
	if len(xs) == 0 {
		fail("dot", ErrShape, "left operand is a scalar")
	}
	k := xs[len(xs)-1]
	if k >= 0 && ws[0] >= 0 && k != ws[0] {
		fail("dot", ErrShape, "%v · %v", xs, ws)
	}
	shape := append(xs[:len(xs)-1].Clone(), ws[1])
	return v.emit(x.op(OpDot, shape, tensor.Float32, x, w.float()))
}

func reducedShape(op string, s tensor.Shape, axis int, keep bool) (tensor.Shape, int) {
	ax, err := tensor.NormalizeAxis(axis, len(s))
	if err != nil {
		fail(op, ErrShape, "%v", err)
	}
	out := s.Clone()
	if keep {
		out[ax] = 1
		return out, ax
	}
	return append(out[:ax], out[ax+1:]...), ax
}

func (v Var) reduce(op OpType, axis int, keep bool) Var {
	x := v.float()
	shape, ax := reducedShape(op.String(), x.Shape(), axis, keep)
	n := x.op(op, shape, tensor.Float32, x)
	n.axis = ax
	n.keep = keep
	return v.emit(n)
}

// Sum reduces along axis.
func (v Var) Sum(axis int, keep bool) Var { return v.reduce(OpSum, axis, keep) }

// Mean averages along axis.
func (v Var) Mean(axis int, keep bool) Var { return v.reduce(OpMean, axis, keep) }

// SumAll reduces every element into a scalar.
func (v Var) SumAll() Var {
	x := v.float()
	return v.emit(x.op(OpSumAll, tensor.Shape{}, tensor.Float32, x))
}

// MeanAll averages every element into a scalar.
func (v Var) MeanAll() Var {
	x := v.float()
	return v.emit(x.op(OpMeanAll, tensor.Shape{}, tensor.Float32, x))
}

// Reshape changes the shape. At most one dimension may be -1.
func (v Var) Reshape(dims ...int) Var {
	shape := tensor.Shape(dims).Clone()
	unknown := 0
	for _, d := range shape {
		if d < 0 {
			unknown++
		}
	}
	if unknown > 1 {
		fail("reshape", ErrShape, "more than one unknown dimension in %v", shape)
	}
	if unknown == 0 && !hasUnknown(v.Shape()) && shape.NumElements() != v.Shape().NumElements() {
		fail("reshape", ErrShape, "cannot reshape %v to %v", v.Shape(), shape)
	}
	n := v.op(OpReshape, shape, v.DType(), v)
	n.ints = shape
	return v.emit(n)
}

func hasUnknown(s tensor.Shape) bool {
	for _, d := range s {
		if d < 0 {
			return true
		}
	}
	return false
}

// ExpandDims inserts a unit axis at position axis (counted in the result).
func (v Var) ExpandDims(axis int) Var {
	ax, err := tensor.NormalizeAxis(axis, v.NDim()+1)
	if err != nil {
		fail("expand", ErrShape, "%v", err)
	}
	shape := append(v.Shape()[:ax].Clone(), 1)
	shape = append(shape, v.Shape()[ax:]...)
	n := v.op(OpExpand, shape, v.DType(), v)
	n.axis = ax
	return v.emit(n)
}

// Squeeze removes a unit axis.
func (v Var) Squeeze(axis int) Var {
	ax, err := tensor.NormalizeAxis(axis, v.NDim())
	if err != nil {
		fail("squeeze", ErrShape, "%v", err)
	}
	if d := v.Shape()[ax]; d != 1 && d >= 0 {
		fail("squeeze", ErrShape, "axis %d of %v is not 1", ax, v.Shape())
	}
	shape, _ := reducedShape("squeeze", v.Shape(), ax, false)
	n := v.op(OpSqueeze, shape, v.DType(), v)
	n.axis = ax
	return v.emit(n)
}

// Transpose permutes axes. With no arguments the axes are reversed.
func (v Var) Transpose(perm ...int) Var {
	nd := v.NDim()
	if len(perm) == 0 {
		perm = make([]int, nd)
		for i := range perm {
			perm[i] = nd - 1 - i
		}
	}
	if len(perm) != nd {
		fail("transpose", ErrShape, "permutation %v for %v", perm, v.Shape())
	}
	seen := make([]bool, nd)
	shape := make(tensor.Shape, nd)
	for i, p := range perm {
		if p < 0 || p >= nd || seen[p] {
			fail("transpose", ErrShape, "invalid permutation %v", perm)
		}
		seen[p] = true
		shape[i] = v.Shape()[p]
	}
	n := v.op(OpTranspose, shape, v.DType(), v)
	n.ints = append([]int(nil), perm...)
	return v.emit(n)
}

// DimSwap exchanges two axes.
func (v Var) DimSwap(a, b int) Var {
	perm := make([]int, v.NDim())
	for i := range perm {
		perm[i] = i
	}
	var err error
	if a, err = tensor.NormalizeAxis(a, len(perm)); err != nil {
		fail("dimswap", ErrShape, "%v", err)
	}
	if b, err = tensor.NormalizeAxis(b, len(perm)); err != nil {
		fail("dimswap", ErrShape, "%v", err)
	}
	perm[a], perm[b] = perm[b], perm[a]
	return v.Transpose(perm...)
}

// Slice selects [start, end) along axis.
func (v Var) Slice(axis, start, end int) Var {
	ax, err := tensor.NormalizeAxis(axis, v.NDim())
	if err != nil {
		fail("slice", ErrShape, "%v", err)
	}
	size := v.Shape()[ax]
	if start < 0 || start > end || (size >= 0 && end > size) {
		fail("slice", ErrShape, "range [%d, %d) for axis %d of %v", start, end, ax, v.Shape())
	}
	shape := v.Shape().Clone()
	shape[ax] = end - start
	n := v.op(OpSlice, shape, v.DType(), v)
	n.axis = ax
	n.ints = []int{start, end}
	return v.emit(n)
}

// Index selects position i along axis and drops that axis.
func (v Var) Index(axis, i int) Var {
	ax, err := tensor.NormalizeAxis(axis, v.NDim())
	if err != nil {
		fail("index", ErrShape, "%v", err)
	}
	size := v.Shape()[ax]
	if i < 0 || (size >= 0 && i >= size) {
		fail("index", ErrShape, "index %d for axis %d of %v", i, ax, v.Shape())
	}
	shape, _ := reducedShape("index", v.Shape(), ax, false)
	n := v.op(OpIndex, shape, v.DType(), v)
	n.axis = ax
	n.ints = []int{i}
	return v.emit(n)
}

// Concat joins vars along axis.
func Concat(axis int, vs ...Var) Var {
	if len(vs) == 0 {
		fail("concat", ErrArity, "no operands")
	}
	first := vs[0]
	ax, err := tensor.NormalizeAxis(axis, first.NDim())
	if err != nil {
		fail("concat", ErrShape, "%v", err)
	}
	shape := first.Shape().Clone()
	shape[ax] = 0
	dtype := first.DType()
	for _, v := range vs {
		s := v.Shape()
		if len(s) != len(shape) {
			fail("concat", ErrShape, "%v and %v", first.Shape(), s)
		}
		if v.DType() != dtype {
			fail("concat", ErrDType, "%s and %s", dtype, v.DType())
		}
		for i := range s {
			if i == ax {
				continue
			}
			switch {
			case shape[i] < 0:
				shape[i] = s[i]
			case s[i] >= 0 && s[i] != shape[i]:
				fail("concat", ErrShape, "%v and %v at axis %d", first.Shape(), s, i)
			}
		}
		if shape[ax] >= 0 && s[ax] >= 0 {
			shape[ax] += s[ax]
		} else {
			shape[ax] = -1
		}
	}
	n := first.op(OpConcat, shape, dtype, vs...)
	n.axis = ax
	return first.emit(n)
}

// Rows looks up rows of a 2-D matrix v by the integer indices idx:
// (V, D) and idx (...) -> (..., D).
func (v Var) Rows(idx Var) Var {
	if v.NDim() != 2 {
		fail("rows", ErrShape, "matrix must be 2D, got %v", v.Shape())
	}
	idx.requireInt("rows")
	shape := append(idx.Shape().Clone(), v.Dim(1))
	return v.emit(v.op(OpRows, shape, tensor.Float32, v.float(), idx))
}

// Pick selects, for every position of idx, the element of v's last axis
// named by idx: (..., C) and (...) -> (...).
func (v Var) Pick(idx Var) Var {
	idx.requireInt("pick")
	xs := v.Shape()
	if len(xs) != idx.NDim()+1 {
		fail("pick", ErrShape, "%v with indices %v", xs, idx.Shape())
	}
	shape := broadcastStatic("pick", xs[:len(xs)-1], idx.Shape())
	if len(shape) != idx.NDim() {
		fail("pick", ErrShape, "%v with indices %v", xs, idx.Shape())
	}
	return v.emit(v.op(OpPick, shape, tensor.Float32, v.float(), idx))
}

// OneHot encodes integer indices as float vectors of length n.
func (v Var) OneHot(n int) Var {
	v.requireInt("onehot")
	nd := v.op(OpOneHot, append(v.Shape().Clone(), n), tensor.Float32, v)
	nd.ints = []int{n}
	return v.emit(nd)
}

// Argmax returns the int32 index of the largest element of the last axis.
func (v Var) Argmax() Var {
	if v.NDim() == 0 {
		fail("argmax", ErrShape, "scalar input")
	}
	s := v.Shape()
	return v.emit(v.op(OpArgmax, s[:len(s)-1].Clone(), tensor.Int32, v))
}

// EqualScalar returns a float mask that is 1 where v == c.
func (v Var) EqualScalar(c float32) Var {
	n := v.op(OpEqualScalar, v.Shape().Clone(), tensor.Float32, v)
	n.scalar = c
	return v.emit(n)
}

// Mask returns a float mask that is 1 where v != 0. Index 0 is the padding
// and unknown-word id, so Mask(idx) marks real tokens.
func (v Var) Mask() Var { return v.EqualScalar(0).RSub(1) }

// Cast converts to dtype.
func (v Var) Cast(dtype tensor.DataType) Var {
	if v.DType() == dtype {
		return v
	}
	n := v.op(OpCast, v.Shape().Clone(), dtype, v)
	n.ints = []int{int(dtype)}
	return v.emit(n)
}

// Identity returns a new node with v's value.
func (v Var) Identity() Var {
	return v.emit(v.op(OpIdentity, v.Shape().Clone(), v.DType(), v))
}

// ZerosLike returns float zeros of shape (ref.Dim(0), dims...). The leading
// dimension is taken from ref at run time, which lets recurrent layers
// build batch-sized initial states.
func ZerosLike(ref Var, dims ...int) Var {
	if ref.NDim() == 0 {
		fail("zeros", ErrShape, "reference must have a leading axis")
	}
	shape := append(tensor.Shape{ref.Dim(0)}, dims...)
	n := ref.op(OpZeros, shape, tensor.Float32, ref)
	n.ints = append([]int(nil), dims...)
	return ref.emit(n)
}
