package cpu

import (
	"fmt"

	"github.com/born-ml/teafacto/internal/tensor"
)

// broadcastStrides computes strides for reading inShape while iterating
// outShape. Dimensions of size 1 and padded dimensions get stride 0.
func broadcastStrides(inShape, outShape tensor.Shape) []int {
	outDim := len(outShape)
	strides := make([]int, outDim)
	offset := outDim - len(inShape)
	orig := inShape.ComputeStrides()

	for i := range outDim {
		inIdx := i - offset
		if inIdx < 0 || inShape[inIdx] == 1 {
			continue
		}
		strides[i] = orig[inIdx]
	}
	return strides
}

// flatIndex maps a flat output index onto the source array.
func flatIndex(outIdx int, outStrides, inStrides []int) int {
	flat := 0
	for i := range outStrides {
		coord := outIdx / outStrides[i]
		outIdx %= outStrides[i]
		flat += coord * inStrides[i]
	}
	return flat
}

// BroadcastTo expands x to shape following broadcasting rules.
func (cpu *CPUBackend) BroadcastTo(x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	out, _, err := tensor.BroadcastShapes(x.Shape(), shape)
	if err != nil || !out.Equal(shape) {
		panic(fmt.Sprintf("broadcast: cannot broadcast %v to %v", x.Shape(), shape))
	}

	src := floats("broadcast", x)
	result := tensor.MustRaw(shape, tensor.Float32)
	dst := result.AsFloat32()
	outStrides := shape.ComputeStrides()
	inStrides := broadcastStrides(x.Shape(), shape)
	cpu.forRange(len(dst), func(i int) {
		dst[i] = src[flatIndex(i, outStrides, inStrides)]
	})
	return result
}

// ReduceTo sums the broadcast dimensions of x away so the result has shape.
// It is the adjoint of BroadcastTo. The result never shares x's buffer.
func (cpu *CPUBackend) ReduceTo(x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	if x.Shape().Equal(shape) {
		return x.Clone()
	}
	out, _, err := tensor.BroadcastShapes(shape, x.Shape())
	if err != nil || !out.Equal(x.Shape()) {
		panic(fmt.Sprintf("reduce: cannot reduce %v to %v", x.Shape(), shape))
	}

	src := floats("reduce", x)
	result := tensor.MustRaw(shape, tensor.Float32)
	dst := result.AsFloat32()
	xStrides := x.Shape().ComputeStrides()
	toStrides := broadcastStrides(shape, x.Shape())
	// Sequential: several source elements accumulate into one destination.
	for i, v := range src {
		dst[flatIndex(i, xStrides, toStrides)] += v
	}
	return result
}
