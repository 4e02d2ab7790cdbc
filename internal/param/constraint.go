package param

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/teafacto/internal/tensor"
)

// Constraint maps a parameter value to a constrained value of the same shape.
type Constraint interface {
	Apply(x *tensor.RawTensor) *tensor.RawTensor
	String() string
}

// ClipConstraint clamps every element into [Lo, Hi].
type ClipConstraint struct {
	Lo, Hi float32
}

// Apply implements Constraint.
func (c ClipConstraint) Apply(x *tensor.RawTensor) *tensor.RawTensor {
	out := x.Clone()
	data := out.AsFloat32()
	for i, v := range data {
		data[i] = min(max(v, c.Lo), c.Hi)
	}
	return out
}

func (c ClipConstraint) String() string { return fmt.Sprintf("clip(%g, %g)", c.Lo, c.Hi) }

// NormalizeConstraint divides every slice along Axis by its Norm-norm.
// With Axis 0 on a matrix every column ends up with unit norm.
type NormalizeConstraint struct {
	Axis    int
	Norm    float64
	Epsilon float32
}

// Apply implements Constraint.
func (c NormalizeConstraint) Apply(x *tensor.RawTensor) *tensor.RawTensor {
	out := x.Clone()
	if out.NDim() == 0 {
		return out
	}
	axis, err := tensor.NormalizeAxis(c.Axis, out.NDim())
	if err != nil {
		panic(fmt.Sprintf("normalize: %v", err))
	}
	data := out.AsFloat32()
	outer, n, inner := split(out.Shape(), axis)
	for o := range outer {
		for i := range inner {
			start := o*n*inner + i
			v := blas32.Vector{N: n, Inc: inner, Data: data[start:]}
			norm := c.norm(v)
			for j := range n {
				data[start+j*inner] /= norm + c.Epsilon
			}
		}
	}
	return out
}

func (c NormalizeConstraint) norm(v blas32.Vector) float32 {
	if c.Norm == 2 {
		return blas32.Nrm2(v)
	}
	if c.Norm == 1 {
		return blas32.Asum(v)
	}
	var s float64
	for j := range v.N {
		s += math.Pow(math.Abs(float64(v.Data[j*v.Inc])), c.Norm)
	}
	return float32(math.Pow(s, 1/c.Norm))
}

func (c NormalizeConstraint) String() string {
	return fmt.Sprintf("normalize(axis=%d, norm=%g)", c.Axis, c.Norm)
}

// MaxNormConstraint rescales slices whose L2 norm over Axes exceeds MaxNorm.
// Empty Axes selects axis 0 for vectors and matrices and all trailing axes
// for higher ranks.
type MaxNormConstraint struct {
	MaxNorm float32
	Axes    []int
	Epsilon float32
}

// Apply implements Constraint.
func (c MaxNormConstraint) Apply(x *tensor.RawTensor) *tensor.RawTensor {
	out := x.Clone()
	shape := out.Shape()
	axes := c.Axes
	if len(axes) == 0 {
		switch {
		case len(shape) <= 2:
			axes = []int{0}
		default:
			for a := 1; a < len(shape); a++ {
				axes = append(axes, a)
			}
		}
	}
	if len(shape) == 0 {
		axes = nil
	}

	groupShape := shape.Clone()
	for _, a := range axes {
		ax, err := tensor.NormalizeAxis(a, len(shape))
		if err != nil {
			panic(fmt.Sprintf("norm constraint: %v", err))
		}
		groupShape[ax] = 1
	}

	data := out.AsFloat32()
	group := groupIndexer(shape, groupShape)
	sums := make([]float64, groupShape.NumElements())
	for i, v := range data {
		sums[group(i)] += float64(v) * float64(v)
	}
	scale := make([]float32, len(sums))
	for g, s := range sums {
		norm := float32(math.Sqrt(s))
		scale[g] = min(norm, c.MaxNorm) / (c.Epsilon + norm)
	}
	for i := range data {
		data[i] *= scale[group(i)]
	}
	return out
}

func (c MaxNormConstraint) String() string {
	return fmt.Sprintf("norm_constraint(max=%g, axes=%v)", c.MaxNorm, c.Axes)
}

func split(shape tensor.Shape, axis int) (outer, n, inner int) {
	outer, inner = 1, 1
	for i, d := range shape {
		switch {
		case i < axis:
			outer *= d
		case i > axis:
			inner *= d
		}
	}
	return outer, shape[axis], inner
}

// groupIndexer maps a flat index in shape onto the flat index of the
// reduced groupShape (size-1 dims collapse).
func groupIndexer(shape, groupShape tensor.Shape) func(int) int {
	strides := shape.ComputeStrides()
	gStrides := groupShape.ComputeStrides()
	for i, d := range groupShape {
		if d == 1 {
			gStrides[i] = 0
		}
	}
	return func(idx int) int {
		g := 0
		for i, s := range strides {
			g += (idx / s) * gStrides[i]
			idx %= s
		}
		return g
	}
}
