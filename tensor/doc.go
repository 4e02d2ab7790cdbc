// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the dense arrays models consume and produce.
//
// # Overview
//
// A RawTensor is a contiguous row-major buffer with a Shape and a DataType.
// Floating point tensors carry activations and parameters (computations
// run in float32); integer tensors carry token and class indices.
//
// # Basic Usage
//
//	x := tensor.MustFromFloat32([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
//	idx, err := tensor.FromAny([][]int{{1, 2, 0}, {3, 0, 0}})
//	fmt.Println(x.Shape(), idx.DType()) // [2 3] int32
//
// Index 0 of integer sequences is the padding value: models mask it out.
//
// # Backends
//
// Computations are dispatched to a Backend. The CPU backend in
// backend/cpu is the default.
package tensor
