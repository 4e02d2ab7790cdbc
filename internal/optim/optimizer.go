// Package optim implements the parameter update rules used for training.
//
// This package provides:
//   - Optimizer interface: base interface for all optimizers
//   - SGD: stochastic gradient descent with optional momentum
//   - Adam: adaptive moment estimation
//   - Adadelta: adaptive learning rates from running averages
//
// Every optimizer scales its learning rate per parameter by the parameter's
// lrmul; parameters with lrmul 0 are never updated.
//
// Example usage:
//
//	gf, _ := graph.CompileGrad(inputs, loss, params, nil)
//	opt := optim.NewAdadelta(params, optim.AdadeltaConfig{LR: 1})
//
//	for range epochs {
//	    res, _ := gf.Run(batch...)
//	    opt.Step(res.Grads)
//	}
package optim

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/born-ml/teafacto/internal/param"
	"github.com/born-ml/teafacto/internal/tensor"
)

// ErrUnknownOptimizer is returned by New for an unregistered name.
var ErrUnknownOptimizer = errors.New("unknown optimizer")

// ErrStateMismatch is returned when a state dict does not fit the parameters.
var ErrStateMismatch = errors.New("optimizer state mismatch")

// Optimizer updates parameters from their gradients.
type Optimizer interface {
	// Step applies one update. grads[i] is the gradient of Params()[i]; a
	// nil gradient leaves the parameter untouched.
	Step(grads []*tensor.RawTensor)

	// Params returns the optimized parameters.
	Params() []*param.Parameter

	// Name returns the registered name of the update rule.
	Name() string

	// LR returns the current learning rate.
	LR() float32

	// SetLR changes the learning rate, e.g. for decay schedules.
	SetLR(lr float32)

	// Config returns the hyperparameters by name, for checkpoints.
	Config() map[string]float64

	// StateDict returns the optimizer's buffers keyed by
	// "<buffer>.<parameter name>".
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict restores buffers written by StateDict.
	LoadStateDict(state map[string]*tensor.RawTensor) error
}

// Config is the base configuration for all optimizers.
type Config struct {
	LR float32 // Learning rate
}

// New builds an optimizer by name ("sgd", "momentum", "adam", "adadelta")
// from hyperparameters keyed as in Config(). Missing keys take defaults.
func New(name string, params []*param.Parameter, hp map[string]float64) (Optimizer, error) {
	get := func(key string) float32 { return float32(hp[key]) }
	switch strings.ToLower(name) {
	case "sgd":
		return NewSGD(params, SGDConfig{LR: get("lr"), Momentum: get("momentum")}), nil
	case "momentum":
		m := get("momentum")
		if m == 0 {
			m = 0.9
		}
		return NewSGD(params, SGDConfig{LR: get("lr"), Momentum: m}), nil
	case "adam":
		return NewAdam(params, AdamConfig{
			LR:    get("lr"),
			Betas: [2]float32{get("beta1"), get("beta2")},
			Eps:   get("eps"),
		}), nil
	case "adadelta":
		return NewAdadelta(params, AdadeltaConfig{LR: get("lr"), Rho: get("rho"), Eps: get("eps")}), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOptimizer, name)
	}
}

// Names lists the names New accepts.
func Names() []string { return []string{"adadelta", "adam", "momentum", "sgd"} }

// scaledLR returns the effective learning rate of p, or 0 when p is frozen.
func scaledLR(lr float32, p *param.Parameter) float32 {
	return lr * p.LRMul()
}

// buffers holds one zero-initialized float32 buffer per parameter.
type buffers struct {
	name string
	bufs map[*param.Parameter]*tensor.RawTensor
}

func newBuffers(name string) buffers {
	return buffers{name: name, bufs: make(map[*param.Parameter]*tensor.RawTensor)}
}

// get returns p's buffer, allocating it on first use.
func (b buffers) get(p *param.Parameter) []float32 {
	buf, ok := b.bufs[p]
	if !ok {
		buf = tensor.Zeros(p.Shape(), tensor.Float32)
		b.bufs[p] = buf
	}
	return buf.AsFloat32()
}

func (b buffers) key(p *param.Parameter) string { return b.name + "." + p.Name() }

// export adds the allocated buffers to state.
func (b buffers) export(params []*param.Parameter, state map[string]*tensor.RawTensor) {
	for _, p := range params {
		if buf, ok := b.bufs[p]; ok {
			state[b.key(p)] = buf.Clone()
		}
	}
}

// load replaces the buffers with those found in state.
func (b buffers) load(params []*param.Parameter, state map[string]*tensor.RawTensor) error {
	clear(b.bufs)
	for _, p := range params {
		v, ok := state[b.key(p)]
		if !ok {
			// No buffer yet; allocated on the next step.
			continue
		}
		if !v.Shape().Equal(p.Shape()) {
			return fmt.Errorf("%w: %s is %v, parameter is %v", ErrStateMismatch, b.key(p), v.Shape(), p.Shape())
		}
		if v.DType() != tensor.Float32 {
			return fmt.Errorf("%w: %s has dtype %s", ErrStateMismatch, b.key(p), v.DType())
		}
		b.bufs[p] = v.Clone()
	}
	return nil
}

// checkGrads panics when grads does not line up with params; that is a
// programming error in the caller.
func checkGrads(name string, params []*param.Parameter, grads []*tensor.RawTensor) {
	if len(grads) != len(params) {
		panic(fmt.Sprintf("optim: %s got %d gradients for %d parameters", name, len(grads), len(params)))
	}
}

// Keys returns the sorted keys of a state dict.
func Keys(state map[string]*tensor.RawTensor) []string {
	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
