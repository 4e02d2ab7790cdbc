package nn

import (
	"fmt"

	"github.com/born-ml/teafacto/internal/block"
	"github.com/born-ml/teafacto/internal/graph"
	"github.com/born-ml/teafacto/internal/param"
)

// Activation names an element-wise (or last-axis) nonlinearity.
type Activation string

// Supported activations. The empty Activation means "use the block's default".
const (
	ActLinear  Activation = "linear"
	ActTanh    Activation = "tanh"
	ActSigmoid Activation = "sigmoid"
	ActReLU    Activation = "relu"
	ActSoftmax Activation = "softmax"
)

// Validate reports whether a is a known activation.
func (a Activation) Validate() error {
	switch a {
	case "", ActLinear, ActTanh, ActSigmoid, ActReLU, ActSoftmax:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownActivation, string(a))
}

// Or returns a, or def when a is empty.
func (a Activation) Or(def Activation) Activation {
	if a == "" {
		return def
	}
	return a
}

// Apply applies the activation to v. The empty activation is the identity.
func (a Activation) Apply(v graph.Var) graph.Var {
	switch a {
	case ActTanh:
		return v.Tanh()
	case ActSigmoid:
		return v.Sigmoid()
	case ActReLU:
		return v.ReLU()
	case ActSoftmax:
		return v.Softmax()
	case "", ActLinear:
		return v
	}
	panic(&graph.Error{Op: "activation", Err: fmt.Errorf("%w: %q", ErrUnknownActivation, string(a))})
}

// Act is a parameterless block applying one activation.
//
// Example:
//
//	probs := block.Call(nn.NewAct(nn.ActSoftmax), logits)
type Act struct {
	fn Activation
}

// NewAct returns a block applying fn.
func NewAct(fn Activation) *Act { return &Act{fn: fn} }

// NewSoftmax returns the softmax block (normalization over the last axis).
func NewSoftmax() *Act { return &Act{fn: ActSoftmax} }

func (a *Act) Name() string               { return string(a.fn.Or(ActLinear)) }
func (a *Act) Params() []*param.Parameter { return nil }
func (a *Act) Kind() string               { return "act" }
func (a *Act) Config() any                { return actConfig{Fn: a.fn} }

// Apply applies the activation to args[0].
func (a *Act) Apply(args ...graph.Var) graph.Var { return a.fn.Apply(args[0]) }

type actConfig struct {
	Fn Activation `json:"fn"`
}

var _ block.Configurable = (*Act)(nil)
