package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/teafacto/internal/tensor"
)

func (cpu *CPUBackend) unary(op string, x *tensor.RawTensor, f func(v float32) float32) *tensor.RawTensor {
	src := floats(op, x)
	result := tensor.MustRaw(x.Shape(), tensor.Float32)
	dst := result.AsFloat32()
	cpu.forRange(len(dst), func(i int) {
		dst[i] = f(src[i])
	})
	return result
}

// AddScalar adds c to every element.
func (cpu *CPUBackend) AddScalar(x *tensor.RawTensor, c float32) *tensor.RawTensor {
	return cpu.unary("addscalar", x, func(v float32) float32 { return v + c })
}

// MulScalar multiplies every element by c.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, c float32) *tensor.RawTensor {
	return cpu.unary("mulscalar", x, func(v float32) float32 { return v * c })
}

// PowScalar raises every element to the power c.
func (cpu *CPUBackend) PowScalar(x *tensor.RawTensor, c float32) *tensor.RawTensor {
	switch c {
	case 1:
		return x.Clone()
	case 2:
		return cpu.unary("pow", x, func(v float32) float32 { return v * v })
	}
	return cpu.unary("pow", x, func(v float32) float32 {
		return float32(math.Pow(float64(v), float64(c)))
	})
}

// Neg negates every element.
func (cpu *CPUBackend) Neg(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("neg", x, func(v float32) float32 { return -v })
}

// Exp computes e^x element-wise.
func (cpu *CPUBackend) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("exp", x, func(v float32) float32 { return float32(math.Exp(float64(v))) })
}

// Log computes the natural logarithm element-wise.
func (cpu *CPUBackend) Log(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("log", x, func(v float32) float32 { return float32(math.Log(float64(v))) })
}

// Sqrt computes the square root element-wise.
func (cpu *CPUBackend) Sqrt(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("sqrt", x, func(v float32) float32 { return float32(math.Sqrt(float64(v))) })
}

// Tanh computes the hyperbolic tangent element-wise.
func (cpu *CPUBackend) Tanh(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("tanh", x, func(v float32) float32 { return float32(math.Tanh(float64(v))) })
}

// Sigmoid computes 1 / (1 + e^-x) element-wise.
func (cpu *CPUBackend) Sigmoid(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("sigmoid", x, func(v float32) float32 {
		return float32(1 / (1 + math.Exp(-float64(v))))
	})
}

// ReLU computes max(0, x) element-wise.
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("relu", x, func(v float32) float32 { return max(v, 0) })
}

// Positive returns 1 where x > 0 and 0 elsewhere.
func (cpu *CPUBackend) Positive(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("positive", x, func(v float32) float32 {
		if v > 0 {
			return 1
		}
		return 0
	})
}

// Clip clamps every element into [lo, hi].
func (cpu *CPUBackend) Clip(x *tensor.RawTensor, lo, hi float32) *tensor.RawTensor {
	if lo > hi {
		panic(fmt.Sprintf("clip: empty range [%g, %g]", lo, hi))
	}
	return cpu.unary("clip", x, func(v float32) float32 { return min(max(v, lo), hi) })
}

// EqualScalar returns a float32 mask that is 1 where x == c. Integer inputs
// are compared after conversion.
func (cpu *CPUBackend) EqualScalar(x *tensor.RawTensor, c float32) *tensor.RawTensor {
	src := x.Float32s()
	result := tensor.MustRaw(x.Shape(), tensor.Float32)
	dst := result.AsFloat32()
	for i, v := range src {
		if v == c {
			dst[i] = 1
		}
	}
	return result
}

// Softmax normalizes the last axis into a probability distribution.
func (cpu *CPUBackend) Softmax(x *tensor.RawTensor) *tensor.RawTensor {
	shape := x.Shape()
	if len(shape) == 0 {
		panic("softmax: scalar input")
	}
	src := floats("softmax", x)
	result := tensor.MustRaw(shape, tensor.Float32)
	dst := result.AsFloat32()

	n := shape[len(shape)-1]
	if n == 0 {
		return result
	}
	rows := len(src) / n
	cpu.forRange(rows, func(r int) {
		row := src[r*n : (r+1)*n]
		out := dst[r*n : (r+1)*n]
		m := row[0]
		for _, v := range row[1:] {
			m = max(m, v)
		}
		var sum float64
		for i, v := range row {
			e := math.Exp(float64(v - m))
			out[i] = float32(e)
			sum += e
		}
		for i := range out {
			out[i] = float32(float64(out[i]) / sum)
		}
	})
	return result
}
