// Package cpu implements the CPU backend on plain Go loops and gonum BLAS.
package cpu

import (
	"fmt"

	"github.com/born-ml/teafacto/internal/parallel"
	"github.com/born-ml/teafacto/internal/tensor"
)

// CPUBackend implements tensor.Backend on the CPU.
type CPUBackend struct {
	par parallel.Config
}

// New creates a new CPU backend.
func New() *CPUBackend {
	return &CPUBackend{
		par: parallel.DefaultConfig(),
	}
}

// NewWithConfig creates a CPU backend with explicit parallelism settings.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{par: cfg}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Add performs element-wise addition with NumPy-style broadcasting.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("add", a, b, func(x, y float32) float32 { return x + y })
}

// Sub performs element-wise subtraction with broadcasting.
func (cpu *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("sub", a, b, func(x, y float32) float32 { return x - y })
}

// Mul performs element-wise multiplication with broadcasting.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("mul", a, b, func(x, y float32) float32 { return x * y })
}

// Div performs element-wise division with broadcasting.
func (cpu *CPUBackend) Div(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("div", a, b, func(x, y float32) float32 { return x / y })
}

func (cpu *CPUBackend) binary(op string, a, b *tensor.RawTensor, f func(x, y float32) float32) *tensor.RawTensor {
	outShape, needsBroadcast, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", op, err))
	}

	av := floats(op, a)
	bv := floats(op, b)
	result := tensor.MustRaw(outShape, tensor.Float32)
	out := result.AsFloat32()

	switch {
	case !needsBroadcast:
		cpu.forRange(len(out), func(i int) {
			out[i] = f(av[i], bv[i])
		})
	case len(bv) == 1 && a.Shape().Equal(outShape):
		s := bv[0]
		cpu.forRange(len(out), func(i int) {
			out[i] = f(av[i], s)
		})
	default:
		outStrides := outShape.ComputeStrides()
		aStrides := broadcastStrides(a.Shape(), outShape)
		bStrides := broadcastStrides(b.Shape(), outShape)
		cpu.forRange(len(out), func(i int) {
			out[i] = f(av[flatIndex(i, outStrides, aStrides)], bv[flatIndex(i, outStrides, bStrides)])
		})
	}
	return result
}

// forRange runs f over [0, n), splitting into parallel chunks when worthwhile.
func (cpu *CPUBackend) forRange(n int, f func(i int)) {
	parallel.ForChunks(n, func(start, end int) {
		for i := start; i < end; i++ {
			f(i)
		}
	}, cpu.par)
}

// floats returns the float32 view of x or panics with the op name.
func floats(op string, x *tensor.RawTensor) []float32 {
	if x.DType() != tensor.Float32 {
		panic(fmt.Sprintf("%s: unsupported dtype %s (float32 required)", op, x.DType()))
	}
	return x.AsFloat32()
}
