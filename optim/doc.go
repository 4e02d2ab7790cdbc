// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides the parameter update rules.
//
// # Overview
//
// Available optimizers:
//   - SGD: stochastic gradient descent, optionally with momentum
//   - Adam: adaptive moment estimation
//   - Adadelta: per-parameter rates from running averages (lr 1 by default)
//
// The learning rate of each parameter is scaled by its lrmul; parameters
// with lrmul 0 are left untouched.
//
// # Basic Usage
//
// Most code selects an optimizer through train.Trainer. Used directly:
//
//	gf, err := graph.CompileGrad(inputs, loss, params, nil)
//	opt := optim.NewAdam(params, optim.AdamConfig{LR: 0.001})
//	for range steps {
//	    res, err := gf.Run(batch...)
//	    opt.Step(res.Grads)
//	}
package optim
