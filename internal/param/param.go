// Package param holds trainable parameters: their values, initializers,
// learning-rate and regularization multipliers, and value constraints.
package param

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/born-ml/teafacto/internal/tensor"
)

// Parameter owns one trainable float32 tensor. Its shape is fixed at creation.
type Parameter struct {
	name        string
	shape       tensor.Shape
	value       *tensor.RawTensor
	init        Initializer
	rng         *rand.Rand
	lrmul       float32
	regmul      float32
	constraints []Constraint
}

// Option configures a Parameter.
type Option func(*Parameter)

// WithName sets the parameter name. Empty names are replaced by an
// auto-generated one.
func WithName(name string) Option {
	return func(p *Parameter) { p.name = name }
}

// WithLRMul sets the learning-rate multiplier.
func WithLRMul(m float32) Option {
	return func(p *Parameter) { p.lrmul = m }
}

// WithRegMul sets the regularization multiplier.
func WithRegMul(m float32) Option {
	return func(p *Parameter) { p.regmul = m }
}

// WithRand sets the random source used by the initializer.
func WithRand(rng *rand.Rand) Option {
	return func(p *Parameter) { p.rng = rng }
}

// WithConstraints appends constraints in order.
func WithConstraints(cs ...Constraint) Option {
	return func(p *Parameter) { p.constraints = append(p.constraints, cs...) }
}

func newParameter(shape tensor.Shape, init Initializer, opts []Option) *Parameter {
	p := &Parameter{shape: shape.Clone(), init: init, lrmul: 1, regmul: 1}
	for _, opt := range opts {
		opt(p)
	}
	if p.name == "" {
		p.name = "auto-" + uuid.NewString()[:8]
	}
	if p.rng == nil {
		p.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // weight init
	}
	return p
}

// New creates a parameter of the given shape sampled from init.
func New(shape tensor.Shape, init Initializer, opts ...Option) (*Parameter, error) {
	if s, ok := init.(shaped); ok && !s.Shape().Equal(shape) {
		return nil, fmt.Errorf("parameter of shape %v with %s initializer of shape %v: %w",
			shape, init.Name(), s.Shape(), ErrShapeMismatch)
	}
	p := newParameter(shape, init, opts)
	if err := p.Reset(); err != nil {
		return nil, fmt.Errorf("parameter %s: %w", p.name, err)
	}
	return p, nil
}

// FromValue wraps a raw array. Reset restores the original array.
func FromValue(value *tensor.RawTensor, opts ...Option) (*Parameter, error) {
	return New(value.Shape(), Value(value), opts...)
}

// FromValueWithInit wraps a raw array whose later resets come from init.
// The initializer must be able to produce the value's shape.
func FromValueWithInit(value *tensor.RawTensor, init Initializer, opts ...Option) (*Parameter, error) {
	if s, ok := init.(shaped); ok && !s.Shape().Equal(value.Shape()) {
		return nil, fmt.Errorf("value of shape %v with initializer of shape %v: %w",
			value.Shape(), s.Shape(), ErrShapeMismatch)
	}
	p := newParameter(value.Shape(), init, opts)
	v, err := Value(value).Init(value.Shape(), nil)
	if err != nil {
		return nil, err
	}
	p.value = v
	return p, nil
}

// Name returns the parameter's name.
func (p *Parameter) Name() string { return p.name }

// Shape returns the parameter's fixed shape.
func (p *Parameter) Shape() tensor.Shape { return p.shape }

// Value returns the current value. The tensor is owned by the parameter;
// callers must not retain it across updates.
func (p *Parameter) Value() *tensor.RawTensor { return p.value }

// LRMul returns the learning-rate multiplier.
func (p *Parameter) LRMul() float32 { return p.lrmul }

// RegMul returns the regularization multiplier.
func (p *Parameter) RegMul() float32 { return p.regmul }

// Initializer returns the initializer used by Reset.
func (p *Parameter) Initializer() Initializer { return p.init }

// Constraints returns the constraints in registration order.
func (p *Parameter) Constraints() []Constraint { return p.constraints }

// SetValue copies v into the parameter. Shapes must match.
func (p *Parameter) SetValue(v *tensor.RawTensor) error {
	if !v.Shape().Equal(p.Shape()) {
		return fmt.Errorf("set %s %v from %v: %w", p.name, p.Shape(), v.Shape(), ErrShapeMismatch)
	}
	if v.DType() != tensor.Float32 {
		v, _ = tensor.FromFloat32(v.Float32s(), v.Shape())
	}
	return p.value.CopyFrom(v)
}

// Reset resamples the value from the initializer in place.
func (p *Parameter) Reset() error {
	v, err := p.init.Init(p.shape, p.rng)
	if err != nil {
		return err
	}
	if p.value == nil {
		p.value = v
		return nil
	}
	return p.value.CopyFrom(v)
}

// ApplyOnValue replaces the value with f(value). The result must keep the shape.
func (p *Parameter) ApplyOnValue(f func(*tensor.RawTensor) *tensor.RawTensor) error {
	return p.SetValue(f(p.value.Clone()))
}

// Clip registers a clip constraint.
func (p *Parameter) Clip(lo, hi float32) *Parameter {
	p.constraints = append(p.constraints, ClipConstraint{Lo: lo, Hi: hi})
	return p
}

// Normalize registers a normalization constraint along axis.
func (p *Parameter) Normalize(axis int, norm float64, eps float32) *Parameter {
	p.constraints = append(p.constraints, NormalizeConstraint{Axis: axis, Norm: norm, Epsilon: eps})
	return p
}

// NormConstraint registers a max-norm constraint.
func (p *Parameter) NormConstraint(maxNorm float32, axes []int, eps float32) *Parameter {
	p.constraints = append(p.constraints, MaxNormConstraint{MaxNorm: maxNorm, Axes: axes, Epsilon: eps})
	return p
}

// ApplyConstraints runs every constraint on x in registration order.
func (p *Parameter) ApplyConstraints(x *tensor.RawTensor) *tensor.RawTensor {
	for _, c := range p.constraints {
		x = c.Apply(x)
	}
	return x
}

// Constrain applies the constraints to the parameter's own value. A
// constraint that changes the shape or dtype leaves the value untouched.
func (p *Parameter) Constrain() error {
	if len(p.constraints) == 0 {
		return nil
	}
	if err := p.value.CopyFrom(p.ApplyConstraints(p.value)); err != nil {
		return fmt.Errorf("constrain %s: %w: %w", p.name, ErrShapeMismatch, err)
	}
	return nil
}

func (p *Parameter) String() string {
	return fmt.Sprintf("param::'%s':%s%v", p.name, p.value.DType(), p.value.Shape())
}
