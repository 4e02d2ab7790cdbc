package optim

import (
	"github.com/born-ml/teafacto/internal/param"
	"github.com/born-ml/teafacto/internal/tensor"
)

// SGD implements stochastic gradient descent with optional momentum.
//
// Update rule without momentum:
//
//	param = param - lr * gradient
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
//
// Example:
//
//	opt := optim.NewSGD(model.Params(), optim.SGDConfig{
//	    LR:       0.01,
//	    Momentum: 0.9,
//	})
type SGD struct {
	params     []*param.Parameter
	lr         float32
	momentum   float32
	velocities buffers
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR       float32 // Learning rate (default: 0.01)
	Momentum float32 // Momentum factor (default: 0.0, range: [0, 1))
}

// NewSGD creates a new SGD optimizer.
func NewSGD(params []*param.Parameter, config SGDConfig) *SGD {
	if config.LR == 0 {
		config.LR = 0.01
	}
	return &SGD{
		params:     params,
		lr:         config.LR,
		momentum:   config.Momentum,
		velocities: newBuffers("velocity"),
	}
}

// Step performs a single optimization step.
func (s *SGD) Step(grads []*tensor.RawTensor) {
	checkGrads("sgd", s.params, grads)
	for i, p := range s.params {
		lr := scaledLR(s.lr, p)
		if grads[i] == nil || lr == 0 {
			continue
		}
		g := grads[i].AsFloat32()
		w := p.Value().AsFloat32()
		if s.momentum == 0 {
			for j := range w {
				w[j] -= lr * g[j]
			}
			continue
		}
		v := s.velocities.get(p)
		for j := range w {
			v[j] = s.momentum*v[j] + g[j]
			w[j] -= lr * v[j]
		}
	}
}

func (s *SGD) Params() []*param.Parameter { return s.params }
func (s *SGD) LR() float32                { return s.lr }
func (s *SGD) SetLR(lr float32)           { s.lr = lr }

// Name is "sgd", or "momentum" when momentum is set.
func (s *SGD) Name() string {
	if s.momentum != 0 {
		return "momentum"
	}
	return "sgd"
}

// Config returns lr and momentum.
func (s *SGD) Config() map[string]float64 {
	return map[string]float64{"lr": float64(s.lr), "momentum": float64(s.momentum)}
}

// StateDict exports the velocity buffers. Without momentum it is empty.
func (s *SGD) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor)
	if s.momentum != 0 {
		s.velocities.export(s.params, state)
	}
	return state
}

// LoadStateDict restores velocity buffers. Shapes must match the parameters.
func (s *SGD) LoadStateDict(state map[string]*tensor.RawTensor) error {
	if s.momentum == 0 {
		return nil
	}
	return s.velocities.load(s.params, state)
}
