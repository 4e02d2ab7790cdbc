package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRaw(t *testing.T) {
	r, err := NewRaw(Shape{2, 3}, Float64)
	require.NoError(t, err)
	assert.Equal(t, 48, r.ByteSize())
	assert.Equal(t, []int{3, 1}, r.Strides())
	assert.Equal(t, 2, r.NDim())
	assert.Equal(t, make([]float64, 6), r.AsFloat64())

	_, err = NewRaw(Shape{2, -1}, Float32)
	require.Error(t, err)

	empty := MustRaw(Shape{0, 4}, Float32)
	assert.Nil(t, empty.AsFloat32())
	assert.Zero(t, empty.NumElements())
}

func TestRawTensor_WrongDTypePanics(t *testing.T) {
	r := MustRaw(Shape{2}, Int32)
	assert.Panics(t, func() { r.AsFloat32() })
	assert.Panics(t, func() { r.AsInt64() })
	assert.NotPanics(t, func() { r.AsInt32() })
}

func TestRawTensor_Conversions(t *testing.T) {
	f := MustFromFloat32([]float32{1.7, -2.2, 3}, 3)
	assert.Equal(t, []int{1, -2, 3}, f.Indices())

	i := MustRaw(Shape{3}, Int64)
	copy(i.AsInt64(), []int64{4, 5, 6})
	assert.Equal(t, []float32{4, 5, 6}, i.Float32s())
	assert.Equal(t, []int{4, 5, 6}, i.Indices())
}

func TestRawTensor_CloneAndView(t *testing.T) {
	a := MustFromFloat32([]float32{1, 2, 3, 4}, 2, 2)
	c := a.Clone()
	c.AsFloat32()[0] = 9
	assert.Equal(t, float32(1), a.AsFloat32()[0])

	v, err := a.View(Shape{4})
	require.NoError(t, err)
	v.AsFloat32()[3] = 7
	assert.Equal(t, []float32{1, 2, 3, 7}, a.AsFloat32())

	_, err = a.View(Shape{3})
	require.Error(t, err)

	require.NoError(t, a.CopyFrom(c))
	assert.Equal(t, []float32{9, 2, 3, 4}, a.AsFloat32())
	require.Error(t, a.CopyFrom(v))
	assert.Equal(t, "RawTensor(float32, (2, 2))", a.String())
}
