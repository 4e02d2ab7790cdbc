package param

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/teafacto/internal/tensor"
)

// Initializer produces the initial value of a parameter.
type Initializer interface {
	// Name returns the registered name of the scheme.
	Name() string
	// Init samples a float32 tensor of the given shape.
	Init(shape tensor.Shape, rng *rand.Rand) (*tensor.RawTensor, error)
}

// shaped is implemented by initializers that can only produce one shape.
type shaped interface {
	Shape() tensor.Shape
}

type initFunc struct {
	name string
	fn   func(shape tensor.Shape, rng *rand.Rand) (*tensor.RawTensor, error)
}

func (f initFunc) Name() string { return f.name }

func (f initFunc) Init(shape tensor.Shape, rng *rand.Rand) (*tensor.RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	return f.fn(shape, rng)
}

func fill(shape tensor.Shape, sample func() float64) *tensor.RawTensor {
	r := tensor.MustRaw(shape, tensor.Float32)
	data := r.AsFloat32()
	for i := range data {
		data[i] = float32(sample())
	}
	return r
}

// Uniform samples from [-rng, rng).
func Uniform(r float64) Initializer {
	return uniformRange("uniform", -r, r)
}

// UniformStd samples uniformly with the given standard deviation around mean.
func UniformStd(std, mean float64) Initializer {
	a := mean - math.Sqrt(3)*std
	b := mean + math.Sqrt(3)*std
	return uniformRange("uniform", a, b)
}

func uniformRange(name string, a, b float64) Initializer {
	return initFunc{name: name, fn: func(shape tensor.Shape, rng *rand.Rand) (*tensor.RawTensor, error) {
		return fill(shape, func() float64 { return a + (b-a)*rng.Float64() }), nil
	}}
}

// Normal samples from N(mean, std²).
func Normal(std, mean float64) Initializer {
	return initFunc{name: "normal", fn: func(shape tensor.Shape, rng *rand.Rand) (*tensor.RawTensor, error) {
		return fill(shape, func() float64 { return mean + std*rng.NormFloat64() }), nil
	}}
}

// Constant fills with v.
func Constant(v float64) Initializer {
	return initFunc{name: "constant", fn: func(shape tensor.Shape, _ *rand.Rand) (*tensor.RawTensor, error) {
		return tensor.Full(shape, float32(v)), nil
	}}
}

// Random samples (U[0,1) - offset) * scale.
func Random(offset, scale float64) Initializer {
	return initFunc{name: "random", fn: func(shape tensor.Shape, rng *rand.Rand) (*tensor.RawTensor, error) {
		return fill(shape, func() float64 { return (rng.Float64() - offset) * scale }), nil
	}}
}

// Eye produces a 2-D matrix with ones on the diagonal shifted by offset.
func Eye(offset int) Initializer {
	return initFunc{name: "eye", fn: func(shape tensor.Shape, _ *rand.Rand) (*tensor.RawTensor, error) {
		if len(shape) != 2 {
			return nil, fmt.Errorf("eye %v: %w", shape, ErrInitShape)
		}
		r := tensor.MustRaw(shape, tensor.Float32)
		data := r.AsFloat32()
		for i := range shape[0] {
			if j := i + offset; j >= 0 && j < shape[1] {
				data[i*shape[1]+j] = 1
			}
		}
		return r, nil
	}}
}

// glorotStd computes gain * sqrt(2 / ((fanIn + fanOut) * receptive)).
func glorotStd(shape tensor.Shape, gain float64) (float64, error) {
	if len(shape) < 2 {
		return 0, fmt.Errorf("glorot %v: %w (needs >= 2 dims)", shape, ErrInitShape)
	}
	receptive := tensor.Shape(shape[2:]).NumElements()
	return gain * math.Sqrt(2/float64((shape[0]+shape[1])*receptive)), nil
}

func heStd(shape tensor.Shape, gain float64) (float64, error) {
	var fanIn int
	switch {
	case len(shape) == 2:
		fanIn = shape[0]
	case len(shape) > 2:
		fanIn = tensor.Shape(shape[1:]).NumElements()
	default:
		return 0, fmt.Errorf("he %v: %w (needs >= 2 dims)", shape, ErrInitShape)
	}
	return gain * math.Sqrt(1/float64(fanIn)), nil
}

func scaled(name string, stdOf func(tensor.Shape, float64) (float64, error), gain float64, uniform bool) Initializer {
	return initFunc{name: name, fn: func(shape tensor.Shape, rng *rand.Rand) (*tensor.RawTensor, error) {
		std, err := stdOf(shape, gain)
		if err != nil {
			return nil, err
		}
		if uniform {
			return UniformStd(std, 0).Init(shape, rng)
		}
		return Normal(std, 0).Init(shape, rng)
	}}
}

// GlorotNormal is Xavier initialization from a normal distribution.
func GlorotNormal(gain float64) Initializer {
	return scaled("glorotnormal", glorotStd, gain, false)
}

// GlorotUniform is Xavier initialization from a uniform distribution.
func GlorotUniform(gain float64) Initializer {
	return scaled("glorotuniform", glorotStd, gain, true)
}

// HeNormal samples N(0, gain²/fanIn).
func HeNormal(gain float64) Initializer {
	return scaled("henormal", heStd, gain, false)
}

// HeUniform samples uniformly with std gain/sqrt(fanIn).
func HeUniform(gain float64) Initializer {
	return scaled("heuniform", heStd, gain, true)
}

// Sparse sets a fraction of every column to N(0, std²) and the rest to 0.
func Sparse(sparsity, std float64) Initializer {
	return initFunc{name: "sparse", fn: func(shape tensor.Shape, rng *rand.Rand) (*tensor.RawTensor, error) {
		if len(shape) != 2 {
			return nil, fmt.Errorf("sparse %v: %w (needs 2 dims)", shape, ErrInitShape)
		}
		rows, cols := shape[0], shape[1]
		size := int(sparsity * float64(rows))
		r := tensor.MustRaw(shape, tensor.Float32)
		data := r.AsFloat32()
		for k := range cols {
			for _, i := range rng.Perm(rows)[:size] {
				data[i*cols+k] = float32(std * rng.NormFloat64())
			}
		}
		return r, nil
	}}
}

// Orthogonal produces a (scaled) orthogonal matrix from the SVD of a
// Gaussian sample flattened to (shape[0], prod(shape[1:])).
func Orthogonal(gain float64) Initializer {
	return initFunc{name: "orthogonal", fn: func(shape tensor.Shape, rng *rand.Rand) (*tensor.RawTensor, error) {
		if len(shape) < 2 {
			return nil, fmt.Errorf("orthogonal %v: %w (needs >= 2 dims)", shape, ErrInitShape)
		}
		rows := shape[0]
		cols := tensor.Shape(shape[1:]).NumElements()
		sample := make([]float64, rows*cols)
		for i := range sample {
			sample[i] = rng.NormFloat64()
		}

		var svd mat.SVD
		if ok := svd.Factorize(mat.NewDense(rows, cols, sample), mat.SVDThin); !ok {
			return nil, fmt.Errorf("orthogonal: svd failed for %v", shape)
		}
		var f mat.Dense
		var q mat.Matrix
		if rows <= cols {
			svd.VTo(&f)
			q = f.T()
		} else {
			svd.UTo(&f)
			q = &f
		}

		r := tensor.MustRaw(shape, tensor.Float32)
		data := r.AsFloat32()
		for i := range rows {
			for j := range cols {
				data[i*cols+j] = float32(gain * q.At(i, j))
			}
		}
		return r, nil
	}}
}

type valueInit struct {
	value *tensor.RawTensor
}

// Value returns an initializer that copies a fixed raw array. Requesting any
// other shape fails with ErrShapeMismatch.
func Value(v *tensor.RawTensor) Initializer {
	return valueInit{value: v.Clone()}
}

func (v valueInit) Name() string        { return "value" }
func (v valueInit) Shape() tensor.Shape { return v.value.Shape() }

func (v valueInit) Init(shape tensor.Shape, _ *rand.Rand) (*tensor.RawTensor, error) {
	if !shape.Equal(v.value.Shape()) {
		return nil, fmt.Errorf("value of shape %v for %v: %w", v.value.Shape(), shape, ErrShapeMismatch)
	}
	out := v.value.Clone()
	if out.DType() != tensor.Float32 {
		out, _ = tensor.FromFloat32(out.Float32s(), out.Shape())
	}
	return out, nil
}

// builders maps scheme names to constructors taking named arguments.
var builders = map[string]func(args map[string]float64) Initializer{
	"uniform": func(a map[string]float64) Initializer {
		if std, ok := a["std"]; ok {
			return UniformStd(std, a["mean"])
		}
		return Uniform(arg(a, "range", 0.01))
	},
	"normal":        func(a map[string]float64) Initializer { return Normal(arg(a, "std", 0.01), a["mean"]) },
	"glorotnormal":  func(a map[string]float64) Initializer { return GlorotNormal(arg(a, "gain", 1)) },
	"glorotuniform": func(a map[string]float64) Initializer { return GlorotUniform(arg(a, "gain", 1)) },
	"henormal":      func(a map[string]float64) Initializer { return HeNormal(arg(a, "gain", 1)) },
	"heuniform":     func(a map[string]float64) Initializer { return HeUniform(arg(a, "gain", 1)) },
	"constant":      func(a map[string]float64) Initializer { return Constant(a["val"]) },
	"sparse": func(a map[string]float64) Initializer {
		return Sparse(arg(a, "sparsity", 0.1), arg(a, "std", 0.01))
	},
	"orthogonal": func(a map[string]float64) Initializer { return Orthogonal(arg(a, "gain", 1)) },
	"random": func(a map[string]float64) Initializer {
		return Random(arg(a, "offset", 0.5), arg(a, "scale", 0.1))
	},
	"eye": func(a map[string]float64) Initializer { return Eye(int(a["offset"])) },
}

func arg(args map[string]float64, key string, def float64) float64 {
	if v, ok := args[key]; ok {
		return v
	}
	return def
}

// ByName resolves an initialization scheme by name. Missing arguments take
// the scheme's defaults.
func ByName(name string, args map[string]float64) (Initializer, error) {
	b, ok := builders[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%q (known: %s): %w", name, strings.Join(Names(), ", "), ErrUnknownInit)
	}
	return b(args), nil
}

// Names lists the registered initializer names in sorted order.
func Names() []string {
	names := make([]string, 0, len(builders))
	for n := range builders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
