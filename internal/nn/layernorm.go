package nn

import (
	"fmt"

	"github.com/born-ml/teafacto/internal/graph"
	"github.com/born-ml/teafacto/internal/param"
	"github.com/born-ml/teafacto/internal/tensor"
)

// LayerNormConfig describes a LayerNorm block.
type LayerNormConfig struct {
	Name    string  `json:"name,omitempty"`
	Dim     int     `json:"dim"`
	Epsilon float32 `json:"epsilon,omitempty"`
}

// LayerNorm normalizes the last axis.
//
// Formula: y = g * (x - mean(x)) / sqrt(var(x) + eps) + b
//
// Where:
//   - g is the learnable scale [dim], initialized to ones
//   - b is the learnable shift [dim], initialized to zeros
//   - mean and variance are computed along the last axis
type LayerNorm struct {
	cfg  LayerNormConfig
	g, b *param.Parameter
}

// NewLayerNorm declares the scale and shift in reg. Epsilon defaults to 1e-5.
func NewLayerNorm(reg *param.Registry, cfg LayerNormConfig) (*LayerNorm, error) {
	if cfg.Name == "" {
		cfg.Name = "layernorm"
	}
	if cfg.Dim <= 0 {
		return nil, fmt.Errorf("%w: layernorm %s dim %d", ErrConfig, cfg.Name, cfg.Dim)
	}
	if cfg.Epsilon == 0 {
		cfg.Epsilon = 1e-5
	}
	sub := reg.Sub(cfg.Name)
	l := &LayerNorm{
		cfg: cfg,
		g:   sub.New("g", tensor.Shape{cfg.Dim}, param.Constant(1)),
		b:   sub.New("b", tensor.Shape{cfg.Dim}, param.Constant(0)),
	}
	if err := reg.Err(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *LayerNorm) Name() string               { return l.cfg.Name }
func (l *LayerNorm) Params() []*param.Parameter { return []*param.Parameter{l.g, l.b} }
func (l *LayerNorm) Kind() string               { return "layernorm" }
func (l *LayerNorm) Config() any                { return l.cfg }

// Apply normalizes args[0] ([..., dim]).
func (l *LayerNorm) Apply(args ...graph.Var) graph.Var {
	x := args[0]
	g := x.Graph()
	centered := x.Sub(x.Mean(-1, true))
	variance := centered.Pow(2).Mean(-1, true)
	norm := centered.Div(variance.AddScalar(l.cfg.Epsilon).Sqrt())
	return norm.Mul(g.Param(l.g)).Add(g.Param(l.b))
}
