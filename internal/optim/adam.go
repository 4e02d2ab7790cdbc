package optim

import (
	"fmt"
	"math"

	"github.com/born-ml/teafacto/internal/param"
	"github.com/born-ml/teafacto/internal/tensor"
)

// Adam implements the Adam (Adaptive Moment Estimation) optimizer.
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * gradient
//	v_t = beta2 * v_{t-1} + (1-beta2) * gradient²
//	m_hat = m_t / (1 - beta1^t)
//	v_hat = v_t / (1 - beta2^t)
//	param = param - lr * m_hat / (sqrt(v_hat) + eps)
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014)
type Adam struct {
	params []*param.Parameter
	lr     float32
	beta1  float32
	beta2  float32
	eps    float32
	t      int     // Timestep for bias correction
	m      buffers // First moment estimates
	v      buffers // Second moment estimates
}

// AdamConfig holds configuration for Adam optimizer.
type AdamConfig struct {
	LR    float32    // Learning rate (default: 0.001)
	Betas [2]float32 // Coefficients for computing running averages (default: [0.9, 0.999])
	Eps   float32    // Term for numerical stability (default: 1e-8)
}

// NewAdam creates a new Adam optimizer. Zero fields take the defaults.
func NewAdam(params []*param.Parameter, config AdamConfig) *Adam {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}
	return &Adam{
		params: params,
		lr:     config.LR,
		beta1:  config.Betas[0],
		beta2:  config.Betas[1],
		eps:    config.Eps,
		m:      newBuffers("m"),
		v:      newBuffers("v"),
	}
}

// Step performs a single optimization step.
func (a *Adam) Step(grads []*tensor.RawTensor) {
	checkGrads("adam", a.params, grads)
	a.t++
	biasCorrection1 := float32(1.0 - math.Pow(float64(a.beta1), float64(a.t)))
	biasCorrection2 := float32(1.0 - math.Pow(float64(a.beta2), float64(a.t)))

	for i, p := range a.params {
		lr := scaledLR(a.lr, p)
		if grads[i] == nil || lr == 0 {
			continue
		}
		g := grads[i].AsFloat32()
		w := p.Value().AsFloat32()
		m, v := a.m.get(p), a.v.get(p)
		for j := range w {
			m[j] = a.beta1*m[j] + (1-a.beta1)*g[j]
			v[j] = a.beta2*v[j] + (1-a.beta2)*g[j]*g[j]
			mHat := m[j] / biasCorrection1
			vHat := v[j] / biasCorrection2
			w[j] -= lr * mHat / (float32(math.Sqrt(float64(vHat))) + a.eps)
		}
	}
}

func (a *Adam) Params() []*param.Parameter { return a.params }
func (a *Adam) Name() string               { return "adam" }
func (a *Adam) LR() float32                { return a.lr }
func (a *Adam) SetLR(lr float32)           { a.lr = lr }

// Timestep returns the number of steps taken.
func (a *Adam) Timestep() int { return a.t }

// Config returns lr, beta1, beta2 and eps.
func (a *Adam) Config() map[string]float64 {
	return map[string]float64{
		"lr":    float64(a.lr),
		"beta1": float64(a.beta1),
		"beta2": float64(a.beta2),
		"eps":   float64(a.eps),
	}
}

// StateDict exports both moment buffers and the timestep ("step").
func (a *Adam) StateDict() map[string]*tensor.RawTensor {
	state := map[string]*tensor.RawTensor{
		"step": tensor.MustFromInt32([]int32{int32(a.t)}, 1),
	}
	a.m.export(a.params, state)
	a.v.export(a.params, state)
	return state
}

// LoadStateDict restores the moments and the timestep.
func (a *Adam) LoadStateDict(state map[string]*tensor.RawTensor) error {
	a.t = 0
	if step, ok := state["step"]; ok {
		if step.DType() != tensor.Int32 || step.NumElements() != 1 {
			return fmt.Errorf("%w: step is %s %v", ErrStateMismatch, step.DType(), step.Shape())
		}
		a.t = int(step.AsInt32()[0])
	}
	if err := a.m.load(a.params, state); err != nil {
		return err
	}
	return a.v.load(a.params, state)
}
