// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package optim

import (
	"github.com/born-ml/teafacto/internal/optim"
	"github.com/born-ml/teafacto/internal/param"
)

// Optimizer interface defines the common interface for all optimizers.
type Optimizer = optim.Optimizer

// Config represents the base configuration for optimizers.
type Config = optim.Config

// Sentinel errors.
var (
	ErrUnknownOptimizer = optim.ErrUnknownOptimizer
	ErrStateMismatch    = optim.ErrStateMismatch
)

// New builds an optimizer by name from hyperparameters keyed as in
// Optimizer.Config. Missing keys take their defaults.
//
// Example:
//
//	opt, err := optim.New("adam", params, map[string]float64{"lr": 0.01, "beta2": 0.99})
func New(name string, params []*param.Parameter, hp map[string]float64) (Optimizer, error) {
	return optim.New(name, params, hp)
}

// Names lists the optimizer names New accepts.
func Names() []string { return optim.Names() }

// SGD (Stochastic Gradient Descent)

// SGD represents the SGD optimizer with optional momentum.
type SGD = optim.SGD

// SGDConfig contains configuration for SGD optimizer.
type SGDConfig = optim.SGDConfig

// NewSGD creates a new SGD optimizer.
//
// Example:
//
//	opt := optim.NewSGD(model.Params(), optim.SGDConfig{LR: 0.01, Momentum: 0.9})
func NewSGD(params []*param.Parameter, config SGDConfig) *SGD {
	return optim.NewSGD(params, config)
}

// Adam (Adaptive Moment Estimation)

// Adam represents the Adam optimizer.
type Adam = optim.Adam

// AdamConfig contains configuration for Adam optimizer.
type AdamConfig = optim.AdamConfig

// NewAdam creates a new Adam optimizer.
func NewAdam(params []*param.Parameter, config AdamConfig) *Adam {
	return optim.NewAdam(params, config)
}

// Adadelta

// Adadelta represents the Adadelta optimizer.
type Adadelta = optim.Adadelta

// AdadeltaConfig contains configuration for Adadelta optimizer.
type AdadeltaConfig = optim.AdadeltaConfig

// NewAdadelta creates a new Adadelta optimizer.
func NewAdadelta(params []*param.Parameter, config AdadeltaConfig) *Adadelta {
	return optim.NewAdadelta(params, config)
}
