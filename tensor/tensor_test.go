// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"testing"

	"github.com/born-ml/teafacto/backend/cpu"
	"github.com/born-ml/teafacto/tensor"
)

// TestBackendInterface verifies that the CPU backend implements tensor.Backend.
func TestBackendInterface(_ *testing.T) {
	var _ tensor.Backend = cpu.New()
}

func TestFromAny(t *testing.T) {
	x, err := tensor.FromAny([][]int{{1, 2, 0}, {3, 0, 0}})
	if err != nil {
		t.Fatalf("FromAny failed: %v", err)
	}
	if !x.Shape().Equal(tensor.Shape{2, 3}) {
		t.Errorf("Shape() = %v, want [2 3]", x.Shape())
	}
	if x.DType() != tensor.Int32 {
		t.Errorf("DType() = %v, want int32", x.DType())
	}

	if _, err := tensor.FromAny([][]float64{{1, 2}, {3}}); err == nil {
		t.Error("ragged input should fail")
	}
}

func TestConstructors(t *testing.T) {
	z := tensor.Zeros(tensor.Shape{2, 2}, tensor.Float32)
	if z.NumElements() != 4 {
		t.Errorf("NumElements() = %d, want 4", z.NumElements())
	}
	f := tensor.Full(tensor.Shape{3}, 2.5)
	for i, v := range f.AsFloat32() {
		if v != 2.5 {
			t.Errorf("Full[%d] = %v, want 2.5", i, v)
		}
	}
	if s := tensor.Scalar(4); s.NDim() != 0 || s.AsFloat32()[0] != 4 {
		t.Errorf("Scalar(4) = %v", s)
	}
	if _, err := tensor.FromFloat32([]float32{1, 2, 3}, tensor.Shape{2, 2}); err == nil {
		t.Error("size mismatch should fail")
	}
	dt, err := tensor.ParseDataType("int64")
	if err != nil || dt != tensor.Int64 {
		t.Errorf("ParseDataType(int64) = %v, %v", dt, err)
	}
}
