package tensor

import (
	"fmt"
	"reflect"
)

// Zeros creates a tensor filled with zeros.
func Zeros(shape Shape, dtype DataType) *RawTensor {
	return MustRaw(shape, dtype)
}

// Full creates a float32 tensor filled with value.
func Full(shape Shape, value float32) *RawTensor {
	r := MustRaw(shape, Float32)
	data := r.AsFloat32()
	for i := range data {
		data[i] = value
	}
	return r
}

// Scalar creates a 0-d float32 tensor.
func Scalar(v float32) *RawTensor {
	return Full(Shape{}, v)
}

// FromFloat32 wraps a copy of data in a float32 tensor of the given shape.
func FromFloat32(data []float32, shape Shape) (*RawTensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("from float32: %d values for shape %v", len(data), shape)
	}
	r, err := NewRaw(shape, Float32)
	if err != nil {
		return nil, err
	}
	copy(r.AsFloat32(), data)
	return r, nil
}

// MustFromFloat32 is FromFloat32 that panics on error. Intended for tests and
// literals.
func MustFromFloat32(data []float32, shape ...int) *RawTensor {
	r, err := FromFloat32(data, Shape(shape))
	if err != nil {
		panic(err)
	}
	return r
}

// FromInt32 wraps a copy of data in an int32 tensor of the given shape.
func FromInt32(data []int32, shape Shape) (*RawTensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("from int32: %d values for shape %v", len(data), shape)
	}
	r, err := NewRaw(shape, Int32)
	if err != nil {
		return nil, err
	}
	copy(r.AsInt32(), data)
	return r, nil
}

// MustFromInt32 is FromInt32 that panics on error.
func MustFromInt32(data []int32, shape ...int) *RawTensor {
	r, err := FromInt32(data, Shape(shape))
	if err != nil {
		panic(err)
	}
	return r
}

// FromAny coerces array-like Go values into a RawTensor.
//
// Accepted inputs are *RawTensor (returned as is), numeric scalars, and
// rectangular nested slices or arrays of numeric values. Floating point
// leaves produce Float32 tensors, int64 leaves produce Int64 and all other
// integer leaves produce Int32.
func FromAny(v any) (*RawTensor, error) {
	if r, ok := v.(*RawTensor); ok {
		if r == nil {
			return nil, fmt.Errorf("from any: nil tensor")
		}
		return r, nil
	}

	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, fmt.Errorf("from any: nil value")
	}

	var shape Shape
	leaf := rv
	for leaf.Kind() == reflect.Slice || leaf.Kind() == reflect.Array {
		shape = append(shape, leaf.Len())
		if leaf.Len() == 0 {
			leaf = reflect.Zero(leaf.Type().Elem())
			for leaf.Kind() == reflect.Slice || leaf.Kind() == reflect.Array {
				shape = append(shape, 0)
				leaf = reflect.Zero(leaf.Type().Elem())
			}
			break
		}
		leaf = leaf.Index(0)
	}

	var dtype DataType
	switch leaf.Kind() {
	case reflect.Float32, reflect.Float64:
		dtype = Float32
	case reflect.Int64:
		dtype = Int64
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32,
		reflect.Uint8, reflect.Uint16, reflect.Uint32:
		dtype = Int32
	default:
		return nil, fmt.Errorf("from any: unsupported element type %s", leaf.Type())
	}

	out, err := NewRaw(shape, dtype)
	if err != nil {
		return nil, err
	}

	flat := make([]reflect.Value, 0, shape.NumElements())
	if err := flatten(rv, shape, 0, &flat); err != nil {
		return nil, err
	}

	switch dtype {
	case Float32:
		dst := out.AsFloat32()
		for i, e := range flat {
			dst[i] = float32(e.Float())
		}
	case Int64:
		dst := out.AsInt64()
		for i, e := range flat {
			dst[i] = e.Int()
		}
	case Int32:
		dst := out.AsInt32()
		for i, e := range flat {
			if e.CanUint() {
				dst[i] = int32(e.Uint()) //nolint:gosec // narrow unsigned kinds only
			} else {
				dst[i] = int32(e.Int()) //nolint:gosec // index data
			}
		}
	}
	return out, nil
}

func flatten(v reflect.Value, shape Shape, depth int, out *[]reflect.Value) error {
	if depth == len(shape) {
		if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
			return fmt.Errorf("from any: ragged input at depth %d", depth)
		}
		*out = append(*out, v)
		return nil
	}
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return fmt.Errorf("from any: ragged input at depth %d", depth)
	}
	if v.Len() != shape[depth] {
		return fmt.Errorf("from any: ragged input at depth %d: length %d, expected %d", depth, v.Len(), shape[depth])
	}
	for i := range v.Len() {
		if err := flatten(v.Index(i), shape, depth+1, out); err != nil {
			return err
		}
	}
	return nil
}
