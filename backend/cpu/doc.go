// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure Go CPU backend.
//
// Element-wise kernels split large tensors across goroutines; matrix
// products use gonum's float32 BLAS.
//
// # Basic Usage
//
//	m := nn.NewModel(encdec, nn.WithBackend(cpu.New()))
//
// Single-threaded execution, useful for reproducible benchmarks:
//
//	b := cpu.NewSequential()
package cpu
