package nn

import (
	"fmt"

	"github.com/born-ml/teafacto/internal/graph"
	"github.com/born-ml/teafacto/internal/param"
	"github.com/born-ml/teafacto/internal/tensor"
)

// LinearConfig describes a Linear block.
type LinearConfig struct {
	Name       string             `json:"name,omitempty"`
	InDim      int                `json:"indim"`
	Dim        int                `json:"dim"`
	Activation Activation         `json:"activation,omitempty"`
	NoBias     bool               `json:"nobias,omitempty"`
	Init       string             `json:"init,omitempty"`
	InitArgs   map[string]float64 `json:"initargs,omitempty"`
}

// Linear implements a fully connected (dense) layer.
//
// Performs the transformation: y = act(x · W + b)
// where:
//   - x has shape [..., indim]
//   - W is the weight matrix with shape [indim, dim]
//   - b is the bias vector with shape [dim]
//   - y has shape [..., dim]
//
// Weights default to Glorot uniform initialization, biases to zeros.
//
// Example:
//
//	reg := param.NewRegistry(42)
//	out, err := nn.NewLinear(reg, nn.LinearConfig{InDim: 784, Dim: 10, Activation: nn.ActSoftmax})
//	probs := block.Call(out, x) // [batch, 10]
type Linear struct {
	cfg LinearConfig
	w   *param.Parameter // [indim, dim]
	b   *param.Parameter // [dim], nil with NoBias
}

// NewLinear declares a Linear block's parameters in reg.
//
// Parameters:
//   - reg: registry the weight ("<name>.w") and bias ("<name>.b") are declared in
//   - cfg: dimensions, activation and weight initializer (by name)
//
// Returns ErrConfig for non-positive dimensions and ErrUnknownActivation or
// param.ErrUnknownInit for unknown names.
func NewLinear(reg *param.Registry, cfg LinearConfig) (*Linear, error) {
	if cfg.Name == "" {
		cfg.Name = "linear"
	}
	if cfg.InDim <= 0 || cfg.Dim <= 0 {
		return nil, fmt.Errorf("%w: linear %s dims %d -> %d", ErrConfig, cfg.Name, cfg.InDim, cfg.Dim)
	}
	if err := cfg.Activation.Validate(); err != nil {
		return nil, err
	}
	initName := cfg.Init
	if initName == "" {
		initName = "glorotuniform"
	}
	winit, err := param.ByName(initName, cfg.InitArgs)
	if err != nil {
		return nil, err
	}

	sub := reg.Sub(cfg.Name)
	l := &Linear{cfg: cfg}
	l.w = sub.New("w", tensor.Shape{cfg.InDim, cfg.Dim}, winit)
	if !cfg.NoBias {
		l.b = sub.New("b", tensor.Shape{cfg.Dim}, param.Constant(0))
	}
	if err := reg.Err(); err != nil {
		return nil, err
	}
	return l, nil
}

// Name returns the block name.
func (l *Linear) Name() string { return l.cfg.Name }

// Params returns [w, b], or [w] without bias.
func (l *Linear) Params() []*param.Parameter {
	if l.b == nil {
		return []*param.Parameter{l.w}
	}
	return []*param.Parameter{l.w, l.b}
}

// Kind implements block.Configurable.
func (l *Linear) Kind() string { return "linear" }

// Config implements block.Configurable.
func (l *Linear) Config() any { return l.cfg }

// InDim returns the input feature size.
func (l *Linear) InDim() int { return l.cfg.InDim }

// OutDim returns the output feature size.
func (l *Linear) OutDim() int { return l.cfg.Dim }

// Weight returns the weight parameter.
func (l *Linear) Weight() *param.Parameter { return l.w }

// Bias returns the bias parameter, or nil.
func (l *Linear) Bias() *param.Parameter { return l.b }

// Apply computes act(x · W + b) over the last axis of args[0].
func (l *Linear) Apply(args ...graph.Var) graph.Var {
	x := args[0]
	g := x.Graph()
	y := x.Dot(g.Param(l.w))
	if l.b != nil {
		y = y.Add(g.Param(l.b))
	}
	return l.cfg.Activation.Apply(y)
}
