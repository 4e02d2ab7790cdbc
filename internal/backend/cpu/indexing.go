package cpu

import (
	"fmt"

	"github.com/born-ml/teafacto/internal/tensor"
)

func indicesOf(op string, idx *tensor.RawTensor) []int {
	if idx.DType().IsFloat() {
		panic(fmt.Sprintf("%s: index tensor must be integer, got %s", op, idx.DType()))
	}
	return idx.Indices()
}

// Gather looks up rows of a 2-D weight: weight (V, D), indices of any shape
// -> indices.shape + (D). Indices outside [0, V) give zero rows.
func (cpu *CPUBackend) Gather(weight, indices *tensor.RawTensor) *tensor.RawTensor {
	ws := weight.Shape()
	if len(ws) != 2 {
		panic(fmt.Sprintf("gather: weight must be 2D, got %v", ws))
	}
	rows, d := ws[0], ws[1]
	w := floats("gather", weight)
	idx := indicesOf("gather", indices)

	outShape := append(indices.Shape().Clone(), d)
	result := tensor.MustRaw(outShape, tensor.Float32)
	dst := result.AsFloat32()
	cpu.forRange(len(idx), func(i int) {
		r := idx[i]
		if r < 0 || r >= rows {
			return
		}
		copy(dst[i*d:(i+1)*d], w[r*d:(r+1)*d])
	})
	return result
}

// ScatterAddRows accumulates grad rows into a (rows, D) zero tensor at
// indices. It is the adjoint of Gather: out-of-range indices receive nothing.
func (cpu *CPUBackend) ScatterAddRows(rows int, indices, grad *tensor.RawTensor) *tensor.RawTensor {
	gs := grad.Shape()
	if len(gs) == 0 {
		panic("scatteraddrows: scalar gradient")
	}
	d := gs[len(gs)-1]
	g := floats("scatteraddrows", grad)
	idx := indicesOf("scatteraddrows", indices)
	if len(idx)*d != len(g) {
		panic(fmt.Sprintf("scatteraddrows: %d indices for gradient %v", len(idx), gs))
	}

	result := tensor.MustRaw(tensor.Shape{rows, d}, tensor.Float32)
	dst := result.AsFloat32()
	for i, r := range idx {
		if r < 0 || r >= rows {
			continue
		}
		row := dst[r*d : (r+1)*d]
		for j, v := range g[i*d : (i+1)*d] {
			row[j] += v
		}
	}
	return result
}

// Pick selects one element per row of the last axis:
// x (..., C), indices (...) -> (...).
func (cpu *CPUBackend) Pick(x, indices *tensor.RawTensor) *tensor.RawTensor {
	xs := x.Shape()
	if len(xs) == 0 {
		panic("pick: scalar input")
	}
	c := xs[len(xs)-1]
	if !indices.Shape().Equal(xs[:len(xs)-1]) {
		panic(fmt.Sprintf("pick: indices %v do not match %v", indices.Shape(), xs))
	}
	src := floats("pick", x)
	idx := indicesOf("pick", indices)

	result := tensor.MustRaw(indices.Shape(), tensor.Float32)
	dst := result.AsFloat32()
	for i, k := range idx {
		if k < 0 || k >= c {
			panic(fmt.Sprintf("pick: index %d out of range [0, %d)", k, c))
		}
		dst[i] = src[i*c+k]
	}
	return result
}

// PickGrad scatters grad (...) into a zero tensor (..., n) at indices.
func (cpu *CPUBackend) PickGrad(grad, indices *tensor.RawTensor, n int) *tensor.RawTensor {
	g := floats("pickgrad", grad)
	idx := indicesOf("pickgrad", indices)
	if len(g) != len(idx) {
		panic(fmt.Sprintf("pickgrad: gradient %v for indices %v", grad.Shape(), indices.Shape()))
	}
	result := tensor.MustRaw(append(indices.Shape().Clone(), n), tensor.Float32)
	dst := result.AsFloat32()
	for i, k := range idx {
		dst[i*n+k] += g[i]
	}
	return result
}

// OneHot encodes integer indices as float32 vectors of length n.
func (cpu *CPUBackend) OneHot(indices *tensor.RawTensor, n int) *tensor.RawTensor {
	idx := indicesOf("onehot", indices)
	result := tensor.MustRaw(append(indices.Shape().Clone(), n), tensor.Float32)
	dst := result.AsFloat32()
	for i, k := range idx {
		if k < 0 || k >= n {
			continue
		}
		dst[i*n+k] = 1
	}
	return result
}

// Cast converts x to dtype. Float to integer conversion truncates.
func (cpu *CPUBackend) Cast(x *tensor.RawTensor, dtype tensor.DataType) *tensor.RawTensor {
	if x.DType() == dtype {
		return x
	}
	result := tensor.MustRaw(x.Shape(), dtype)
	switch dtype {
	case tensor.Float32:
		copy(result.AsFloat32(), x.Float32s())
	case tensor.Float64:
		dst := result.AsFloat64()
		for i, v := range x.Float32s() {
			dst[i] = float64(v)
		}
	case tensor.Int32:
		dst := result.AsInt32()
		for i, v := range x.Indices() {
			dst[i] = int32(v) //nolint:gosec // index data
		}
	case tensor.Int64:
		dst := result.AsInt64()
		for i, v := range x.Indices() {
			dst[i] = int64(v)
		}
	default:
		panic(fmt.Sprintf("cast: unsupported dtype %s", dtype))
	}
	return result
}
