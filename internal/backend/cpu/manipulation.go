package cpu

import (
	"fmt"

	"github.com/born-ml/teafacto/internal/tensor"
)

// Reshape returns a copy of x with a new shape. One dimension may be -1 and
// is inferred from the element count.
func (cpu *CPUBackend) Reshape(x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	resolved, err := ResolveShape(shape, x.NumElements())
	if err != nil {
		panic(fmt.Sprintf("reshape: %v", err))
	}
	view, err := x.Clone().View(resolved)
	if err != nil {
		panic(fmt.Sprintf("reshape: %v", err))
	}
	return view
}

// ResolveShape replaces a single -1 in shape so that it holds n elements.
func ResolveShape(shape tensor.Shape, n int) (tensor.Shape, error) {
	out := shape.Clone()
	unknown := -1
	known := 1
	for i, d := range out {
		if d < 0 {
			if unknown >= 0 {
				return nil, fmt.Errorf("more than one unknown dimension in %v", shape)
			}
			unknown = i
			continue
		}
		known *= d
	}
	if unknown >= 0 {
		if known == 0 || n%known != 0 {
			return nil, fmt.Errorf("cannot infer dimension of %v for %d elements", shape, n)
		}
		out[unknown] = n / known
	}
	if out.NumElements() != n {
		return nil, fmt.Errorf("shape %v does not hold %d elements", shape, n)
	}
	return out, nil
}

// Transpose permutes the axes of x. With no perm the axes are reversed.
func (cpu *CPUBackend) Transpose(x *tensor.RawTensor, perm ...int) *tensor.RawTensor {
	shape := x.Shape()
	ndim := len(shape)
	if len(perm) == 0 {
		perm = make([]int, ndim)
		for i := range perm {
			perm[i] = ndim - 1 - i
		}
	}
	if len(perm) != ndim {
		panic(fmt.Sprintf("transpose: permutation %v for %dD tensor", perm, ndim))
	}
	seen := make([]bool, ndim)
	outShape := make(tensor.Shape, ndim)
	for i, p := range perm {
		if p < 0 || p >= ndim || seen[p] {
			panic(fmt.Sprintf("transpose: invalid permutation %v", perm))
		}
		seen[p] = true
		outShape[i] = shape[p]
	}

	result := tensor.MustRaw(outShape, x.DType())
	inStrides := x.Strides()
	outStrides := outShape.ComputeStrides()
	srcStrides := make([]int, ndim)
	for i, p := range perm {
		srcStrides[i] = inStrides[p]
	}

	size := x.DType().Size()
	src := x.Data()
	dst := result.Data()
	cpu.forRange(x.NumElements(), func(i int) {
		j := flatIndex(i, outStrides, srcStrides)
		copy(dst[i*size:(i+1)*size], src[j*size:(j+1)*size])
	})
	return result
}

// Cat concatenates tensors along dim. All other dimensions must agree.
func (cpu *CPUBackend) Cat(ts []*tensor.RawTensor, dim int) *tensor.RawTensor {
	if len(ts) == 0 {
		panic("cat: no tensors")
	}
	first := ts[0].Shape()
	dim = normalizeDim("cat", dim, len(first))
	outShape := first.Clone()
	outShape[dim] = 0
	for _, t := range ts {
		s := t.Shape()
		if len(s) != len(first) || t.DType() != ts[0].DType() {
			panic(fmt.Sprintf("cat: incompatible %s%v and %s%v", ts[0].DType(), first, t.DType(), s))
		}
		for i := range s {
			if i != dim && s[i] != first[i] {
				panic(fmt.Sprintf("cat: shape mismatch %v vs %v at dim %d", first, s, i))
			}
		}
		outShape[dim] += s[dim]
	}

	result := tensor.MustRaw(outShape, ts[0].DType())
	size := ts[0].DType().Size()
	outer, total, inner := splitAt(outShape, dim)
	dst := result.Data()
	offset := 0
	for _, t := range ts {
		n := t.Shape()[dim]
		src := t.Data()
		chunk := n * inner * size
		for o := range outer {
			start := (o*total + offset) * inner * size
			copy(dst[start:start+chunk], src[o*chunk:(o+1)*chunk])
		}
		offset += n
	}
	return result
}

// Slice returns the range [start, end) of x along dim.
func (cpu *CPUBackend) Slice(x *tensor.RawTensor, dim, start, end int) *tensor.RawTensor {
	shape := x.Shape()
	dim = normalizeDim("slice", dim, len(shape))
	if start < 0 || end > shape[dim] || start > end {
		panic(fmt.Sprintf("slice: range [%d, %d) out of bounds for dim %d of %v", start, end, dim, shape))
	}
	outShape := shape.Clone()
	outShape[dim] = end - start

	result := tensor.MustRaw(outShape, x.DType())
	size := x.DType().Size()
	outer, n, inner := splitAt(shape, dim)
	chunk := (end - start) * inner * size
	src := x.Data()
	dst := result.Data()
	for o := range outer {
		from := (o*n + start) * inner * size
		copy(dst[o*chunk:(o+1)*chunk], src[from:from+chunk])
	}
	return result
}

// PadSlice places x at [start, start+len) along dim of a zero tensor whose
// dim has the given size. It is the adjoint of Slice.
func (cpu *CPUBackend) PadSlice(x *tensor.RawTensor, dim, start, size int) *tensor.RawTensor {
	shape := x.Shape()
	dim = normalizeDim("padslice", dim, len(shape))
	if start < 0 || start+shape[dim] > size {
		panic(fmt.Sprintf("padslice: %v does not fit at %d in size %d", shape, start, size))
	}
	outShape := shape.Clone()
	outShape[dim] = size

	result := tensor.MustRaw(outShape, x.DType())
	elem := x.DType().Size()
	outer, n, inner := splitAt(shape, dim)
	chunk := n * inner * elem
	src := x.Data()
	dst := result.Data()
	for o := range outer {
		to := (o*size + start) * inner * elem
		copy(dst[to:to+chunk], src[o*chunk:(o+1)*chunk])
	}
	return result
}
