package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFull(t *testing.T) {
	f := Full(Shape{2, 2}, 0.5)
	assert.Equal(t, []float32{0.5, 0.5, 0.5, 0.5}, f.AsFloat32())

	s := Scalar(3)
	assert.Equal(t, 0, s.NDim())
	assert.Equal(t, []float32{3}, s.AsFloat32())

	_, err := FromFloat32([]float32{1, 2, 3}, Shape{2, 2})
	require.Error(t, err)
	_, err = FromInt32([]int32{1}, Shape{2})
	require.Error(t, err)
}

func TestFromAny(t *testing.T) {
	tests := []struct {
		name  string
		in    any
		shape Shape
		dtype DataType
	}{
		{"float matrix", [][]float64{{1, 2}, {3, 4}, {5, 6}}, Shape{3, 2}, Float32},
		{"int32 rows", [][]int32{{1, 0}, {2, 3}}, Shape{2, 2}, Int32},
		{"int slice", []int{4, 5, 6}, Shape{3}, Int32},
		{"int64 slice", []int64{1, 2}, Shape{2}, Int64},
		{"array", [2][3]float32{}, Shape{2, 3}, Float32},
		{"scalar", 2.5, Shape{}, Float32},
		{"empty batch", [][]int32{}, Shape{0, 0}, Int32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := FromAny(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.shape, r.Shape())
			assert.Equal(t, tt.dtype, r.DType())
		})
	}

	r, err := FromAny([][]uint8{{1, 2}, {3, 4}})
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 3, 4}, r.AsInt32())

	same := MustFromFloat32([]float32{1}, 1)
	got, err := FromAny(same)
	require.NoError(t, err)
	assert.Same(t, same, got)
}

func TestFromAny_Errors(t *testing.T) {
	for name, in := range map[string]any{
		"nil":        nil,
		"nil tensor": (*RawTensor)(nil),
		"ragged":     [][]float32{{1, 2}, {3}},
		"strings":    []string{"a"},
		"bools":      []bool{true},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := FromAny(in)
			require.Error(t, err)
		})
	}
}
