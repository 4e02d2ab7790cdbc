package cpu

import (
	"fmt"

	"github.com/born-ml/teafacto/internal/tensor"
)

// splitAt returns the products of the dimensions before dim, at dim and after dim.
func splitAt(shape tensor.Shape, dim int) (outer, n, inner int) {
	outer, inner = 1, 1
	for i, d := range shape {
		switch {
		case i < dim:
			outer *= d
		case i > dim:
			inner *= d
		}
	}
	return outer, shape[dim], inner
}

func normalizeDim(op string, dim, ndim int) int {
	d, err := tensor.NormalizeAxis(dim, ndim)
	if err != nil {
		panic(fmt.Sprintf("%s: %v", op, err))
	}
	return d
}

// Sum adds all elements into a scalar.
func (cpu *CPUBackend) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	var s float64
	for _, v := range floats("sum", x) {
		s += float64(v)
	}
	return tensor.Scalar(float32(s))
}

// SumDim sums tensor elements along dim (negative dims count from the end).
//
//	x: (2, 3, 4)
//	SumDim(x, -1, true)  -> (2, 3, 1)
//	SumDim(x, -1, false) -> (2, 3)
func (cpu *CPUBackend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	shape := x.Shape()
	dim = normalizeDim("sumdim", dim, len(shape))
	src := floats("sumdim", x)

	var outShape tensor.Shape
	if keepDim {
		outShape = shape.Clone()
		outShape[dim] = 1
	} else {
		outShape = make(tensor.Shape, 0, len(shape)-1)
		outShape = append(outShape, shape[:dim]...)
		outShape = append(outShape, shape[dim+1:]...)
	}

	result := tensor.MustRaw(outShape, tensor.Float32)
	dst := result.AsFloat32()
	outer, n, inner := splitAt(shape, dim)
	cpu.forRange(outer, func(o int) {
		for i := range inner {
			var s float32
			for j := range n {
				s += src[(o*n+j)*inner+i]
			}
			dst[o*inner+i] = s
		}
	})
	return result
}

// MeanDim averages tensor elements along dim.
func (cpu *CPUBackend) MeanDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	n := x.Shape()[normalizeDim("meandim", dim, x.NDim())]
	sum := cpu.SumDim(x, dim, keepDim)
	if n == 0 {
		return sum
	}
	return cpu.MulScalar(sum, 1/float32(n))
}

// Argmax returns the int32 index of the largest value along the last axis.
func (cpu *CPUBackend) Argmax(x *tensor.RawTensor) *tensor.RawTensor {
	shape := x.Shape()
	if len(shape) == 0 {
		panic("argmax: scalar input")
	}
	src := x.Float32s()
	n := shape[len(shape)-1]
	result := tensor.MustRaw(shape[:len(shape)-1], tensor.Int32)
	dst := result.AsInt32()
	if n == 0 {
		return result
	}
	for r := range dst {
		row := src[r*n : (r+1)*n]
		best := 0
		for i, v := range row {
			if v > row[best] {
				best = i
			}
		}
		dst[r] = int32(best) //nolint:gosec // bounded by row length
	}
	return result
}
