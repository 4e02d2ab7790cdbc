// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/born-ml/teafacto/internal/param"
	"github.com/born-ml/teafacto/tensor"
)

// Parameter is a trainable tensor.
type Parameter = param.Parameter

// Registry declares parameters under scoped names.
type Registry = param.Registry

// NewRegistry returns a registry whose initializers draw from a source
// seeded with seed.
func NewRegistry(seed uint64) *Registry { return param.NewRegistry(seed) }

// ParamOption configures a parameter.
type ParamOption = param.Option

// WithLRMul scales the parameter's learning rate; 0 freezes it.
func WithLRMul(m float32) ParamOption { return param.WithLRMul(m) }

// WithRegMul scales the parameter's regularization weight.
func WithRegMul(m float32) ParamOption { return param.WithRegMul(m) }

// Initializer produces initial parameter values.
type Initializer = param.Initializer

// Uniform draws from [-r, r].
func Uniform(r float64) Initializer { return param.Uniform(r) }

// Normal draws from a normal distribution.
func Normal(std, mean float64) Initializer { return param.Normal(std, mean) }

// GlorotUniform scales a uniform draw by fan-in and fan-out.
func GlorotUniform(gain float64) Initializer { return param.GlorotUniform(gain) }

// Orthogonal draws a random orthogonal matrix.
func Orthogonal(gain float64) Initializer { return param.Orthogonal(gain) }

// FromValue wraps a pretrained tensor in a parameter.
func FromValue(v *tensor.RawTensor, opts ...ParamOption) (*Parameter, error) {
	return param.FromValue(v, opts...)
}
