// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import "github.com/born-ml/teafacto/internal/tensor"

// RawTensor is a dense array with a shape and a data type.
type RawTensor = tensor.RawTensor

// Shape lists the sizes of a tensor's dimensions.
type Shape = tensor.Shape

// DataType is the element type of a tensor.
type DataType = tensor.DataType

// Supported data types.
const (
	Float32 = tensor.Float32
	Float64 = tensor.Float64
	Int32   = tensor.Int32
	Int64   = tensor.Int64
)

// Backend executes tensor kernels.
type Backend = tensor.Backend

// Zeros returns a zero tensor.
func Zeros(shape Shape, dtype DataType) *RawTensor { return tensor.Zeros(shape, dtype) }

// Full returns a float32 tensor filled with v.
func Full(shape Shape, v float32) *RawTensor { return tensor.Full(shape, v) }

// Scalar returns a 0-d float32 tensor.
func Scalar(v float32) *RawTensor { return tensor.Scalar(v) }

// FromFloat32 wraps data in a float32 tensor of the given shape.
func FromFloat32(data []float32, shape Shape) (*RawTensor, error) {
	return tensor.FromFloat32(data, shape)
}

// MustFromFloat32 is FromFloat32 that panics on a size mismatch.
//
// Example:
//
//	x := tensor.MustFromFloat32([]float32{1, 2, 3, 4}, 2, 2)
func MustFromFloat32(data []float32, shape ...int) *RawTensor {
	return tensor.MustFromFloat32(data, shape...)
}

// FromInt32 wraps data in an int32 tensor of the given shape.
func FromInt32(data []int32, shape Shape) (*RawTensor, error) {
	return tensor.FromInt32(data, shape)
}

// MustFromInt32 is FromInt32 that panics on a size mismatch.
func MustFromInt32(data []int32, shape ...int) *RawTensor {
	return tensor.MustFromInt32(data, shape...)
}

// FromAny converts nested Go slices of numbers, or a *RawTensor, to a
// tensor. Floats become float32 and integers int32 (int64 stays int64).
// Ragged input is an error.
func FromAny(v any) (*RawTensor, error) { return tensor.FromAny(v) }

// ParseDataType maps a name like "float32" to its DataType.
func ParseDataType(s string) (DataType, error) { return tensor.ParseDataType(s) }
