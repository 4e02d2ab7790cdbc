package optim

import (
	"math"

	"github.com/born-ml/teafacto/internal/param"
	"github.com/born-ml/teafacto/internal/tensor"
)

// Adadelta adapts the step size per element from running averages of the
// squared gradients and of the squared updates:
//
//	acc   = rho * acc + (1-rho) * gradient²
//	delta = gradient * sqrt(dacc + eps) / sqrt(acc + eps)
//	param = param - lr * delta
//	dacc  = rho * dacc + (1-rho) * delta²
//
// Reference: "ADADELTA: An Adaptive Learning Rate Method" (Zeiler, 2012)
type Adadelta struct {
	params []*param.Parameter
	lr     float32
	rho    float32
	eps    float32
	acc    buffers
	dacc   buffers
}

// AdadeltaConfig holds configuration for Adadelta.
type AdadeltaConfig struct {
	LR  float32 // Learning rate (default: 1.0)
	Rho float32 // Decay of the running averages (default: 0.95)
	Eps float32 // Term for numerical stability (default: 1e-6)
}

// NewAdadelta creates a new Adadelta optimizer. Zero fields take the defaults.
func NewAdadelta(params []*param.Parameter, config AdadeltaConfig) *Adadelta {
	if config.LR == 0 {
		config.LR = 1
	}
	if config.Rho == 0 {
		config.Rho = 0.95
	}
	if config.Eps == 0 {
		config.Eps = 1e-6
	}
	return &Adadelta{
		params: params,
		lr:     config.LR,
		rho:    config.Rho,
		eps:    config.Eps,
		acc:    newBuffers("acc"),
		dacc:   newBuffers("dacc"),
	}
}

// Step performs a single optimization step.
func (a *Adadelta) Step(grads []*tensor.RawTensor) {
	checkGrads("adadelta", a.params, grads)
	for i, p := range a.params {
		lr := scaledLR(a.lr, p)
		if grads[i] == nil || lr == 0 {
			continue
		}
		g := grads[i].AsFloat32()
		w := p.Value().AsFloat32()
		acc, dacc := a.acc.get(p), a.dacc.get(p)
		for j := range w {
			acc[j] = a.rho*acc[j] + (1-a.rho)*g[j]*g[j]
			delta := g[j] * float32(math.Sqrt(float64(dacc[j]+a.eps))/math.Sqrt(float64(acc[j]+a.eps)))
			w[j] -= lr * delta
			dacc[j] = a.rho*dacc[j] + (1-a.rho)*delta*delta
		}
	}
}

func (a *Adadelta) Params() []*param.Parameter { return a.params }
func (a *Adadelta) Name() string               { return "adadelta" }
func (a *Adadelta) LR() float32                { return a.lr }
func (a *Adadelta) SetLR(lr float32)           { a.lr = lr }

// Config returns lr, rho and eps.
func (a *Adadelta) Config() map[string]float64 {
	return map[string]float64{"lr": float64(a.lr), "rho": float64(a.rho), "eps": float64(a.eps)}
}

// StateDict exports both running averages.
func (a *Adadelta) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor)
	a.acc.export(a.params, state)
	a.dacc.export(a.params, state)
	return state
}

// LoadStateDict restores the running averages.
func (a *Adadelta) LoadStateDict(state map[string]*tensor.RawTensor) error {
	if err := a.acc.load(a.params, state); err != nil {
		return err
	}
	return a.dacc.load(a.params, state)
}
