package param

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/teafacto/internal/tensor"
)

func testRand() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func TestNew_AutoName(t *testing.T) {
	p, err := New(tensor.Shape{2, 3}, Uniform(0.1))
	require.NoError(t, err)
	assert.Contains(t, p.Name(), "auto-")
	assert.Equal(t, tensor.Shape{2, 3}, p.Shape())
	assert.Equal(t, float32(1), p.LRMul())
	assert.Equal(t, float32(1), p.RegMul())

	q, err := New(tensor.Shape{2, 3}, Uniform(0.1))
	require.NoError(t, err)
	assert.NotEqual(t, p.Name(), q.Name())
}

func TestNew_Options(t *testing.T) {
	p, err := New(tensor.Shape{4}, Constant(0.5), WithName("b"), WithLRMul(0.1), WithRegMul(0))
	require.NoError(t, err)
	assert.Equal(t, "b", p.Name())
	assert.Equal(t, float32(0.1), p.LRMul())
	assert.Equal(t, float32(0), p.RegMul())
	assert.Equal(t, []float32{0.5, 0.5, 0.5, 0.5}, p.Value().AsFloat32())
}

func TestFromValueWithInit_ShapeMismatch(t *testing.T) {
	value := tensor.MustFromFloat32([]float32{1, 2, 3, 4}, 2, 2)
	other := tensor.MustFromFloat32([]float32{1, 2, 3}, 3)

	_, err := FromValueWithInit(value, Value(other))
	require.ErrorIs(t, err, ErrShapeMismatch)

	_, err = New(tensor.Shape{2, 2}, Value(other))
	require.ErrorIs(t, err, ErrShapeMismatch)

	p, err := FromValueWithInit(value, Constant(0))
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, p.Value().AsFloat32())
	require.NoError(t, p.Reset())
	assert.Equal(t, []float32{0, 0, 0, 0}, p.Value().AsFloat32())
}

func TestReset_RestoresWrappedValue(t *testing.T) {
	value := tensor.MustFromFloat32([]float32{1, 2, 3}, 3)
	p, err := FromValue(value)
	require.NoError(t, err)

	require.NoError(t, p.ApplyOnValue(func(x *tensor.RawTensor) *tensor.RawTensor {
		return tensor.MustFromFloat32([]float32{9, 9, 9}, 3)
	}))
	assert.Equal(t, []float32{9, 9, 9}, p.Value().AsFloat32())

	require.NoError(t, p.Reset())
	assert.Equal(t, []float32{1, 2, 3}, p.Value().AsFloat32())

	// Mutating the source array does not leak into the parameter.
	value.AsFloat32()[0] = 100
	require.NoError(t, p.Reset())
	assert.Equal(t, float32(1), p.Value().AsFloat32()[0])
}

func TestSetValue_ShapeFixed(t *testing.T) {
	p, err := New(tensor.Shape{2}, Constant(0))
	require.NoError(t, err)
	err = p.SetValue(tensor.MustFromFloat32([]float32{1, 2, 3}, 3))
	require.ErrorIs(t, err, ErrShapeMismatch)
	assert.Equal(t, tensor.Shape{2}, p.Shape())
}

func TestConstraints_OrderMatters(t *testing.T) {
	value := tensor.MustFromFloat32([]float32{3, 4}, 2, 1)

	clipFirst, err := FromValue(value)
	require.NoError(t, err)
	clipFirst.Clip(-1, 1).Normalize(0, 2, 0)

	normFirst, err := FromValue(value)
	require.NoError(t, err)
	normFirst.Normalize(0, 2, 0).Clip(-1, 1)

	a := clipFirst.ApplyConstraints(clipFirst.Value()).AsFloat32()
	b := normFirst.ApplyConstraints(normFirst.Value()).AsFloat32()

	assert.InDeltaSlice(t, []float32{float32(1 / math.Sqrt2), float32(1 / math.Sqrt2)}, a, 1e-6)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, b, 1e-6)
	assert.NotEqual(t, a, b)

	assert.Equal(t, tensor.Shape{2, 1}, clipFirst.ApplyConstraints(value).Shape())
	assert.Len(t, clipFirst.Constraints(), 2)
	assert.Equal(t, "clip(-1, 1)", clipFirst.Constraints()[0].String())
}

func TestNormalizeConstraint_Axis(t *testing.T) {
	x := tensor.MustFromFloat32([]float32{3, 0, 4, 2}, 2, 2)

	cols := NormalizeConstraint{Axis: 0, Norm: 2}.Apply(x).AsFloat32()
	assert.InDeltaSlice(t, []float32{0.6, 0, 0.8, 1}, cols, 1e-6)

	rows := NormalizeConstraint{Axis: 1, Norm: 2}.Apply(x).AsFloat32()
	assert.InDeltaSlice(t, []float32{1, 0, 0.8944272, 0.4472136}, rows, 1e-6)

	l1 := NormalizeConstraint{Axis: 1, Norm: 1}.Apply(x).AsFloat32()
	assert.InDeltaSlice(t, []float32{1, 0, 4.0 / 6, 2.0 / 6}, l1, 1e-6)
}

func TestMaxNormConstraint(t *testing.T) {
	// Columns have norms 5 and 1.
	x := tensor.MustFromFloat32([]float32{3, 1, 4, 0}, 2, 2)
	out := MaxNormConstraint{MaxNorm: 2}.Apply(x).AsFloat32()
	assert.InDeltaSlice(t, []float32{1.2, 1, 1.6, 0}, out, 1e-6)
}

func TestClip_InPlace(t *testing.T) {
	p, err := FromValue(tensor.MustFromFloat32([]float32{-3, 0.5, 3}, 3))
	require.NoError(t, err)
	p.Clip(-1, 1)
	require.NoError(t, p.Constrain())
	assert.Equal(t, []float32{-1, 0.5, 1}, p.Value().AsFloat32())
}

// flatten is a broken constraint that changes the value's shape.
type flatten struct{}

func (flatten) Apply(x *tensor.RawTensor) *tensor.RawTensor {
	return tensor.Zeros(tensor.Shape{x.NumElements(), 1}, tensor.Float32)
}
func (flatten) String() string { return "flatten" }

func TestConstrain_ShapeChangeIsError(t *testing.T) {
	p, err := FromValue(tensor.MustFromFloat32([]float32{1, 2, 3}, 3), WithName("w"), WithConstraints(flatten{}))
	require.NoError(t, err)
	err = p.Constrain()
	require.ErrorIs(t, err, ErrShapeMismatch)
	assert.Contains(t, err.Error(), "constrain w")
	assert.Equal(t, []float32{1, 2, 3}, p.Value().AsFloat32())
}

func TestInitializers(t *testing.T) {
	rng := testRand()

	t.Run("Uniform", func(t *testing.T) {
		v, err := Uniform(0.1).Init(tensor.Shape{50, 20}, rng)
		require.NoError(t, err)
		for _, x := range v.AsFloat32() {
			assert.True(t, x >= -0.1 && x < 0.1)
		}
	})

	t.Run("Eye", func(t *testing.T) {
		v, err := Eye(1).Init(tensor.Shape{2, 3}, rng)
		require.NoError(t, err)
		assert.Equal(t, []float32{0, 1, 0, 0, 0, 1}, v.AsFloat32())
		_, err = Eye(0).Init(tensor.Shape{3}, rng)
		require.ErrorIs(t, err, ErrInitShape)
	})

	t.Run("GlorotNeedsMatrix", func(t *testing.T) {
		_, err := GlorotUniform(1).Init(tensor.Shape{3}, rng)
		require.ErrorIs(t, err, ErrInitShape)
		v, err := GlorotUniform(1).Init(tensor.Shape{30, 40}, rng)
		require.NoError(t, err)
		bound := float32(math.Sqrt(6.0 / 70))
		for _, x := range v.AsFloat32() {
			assert.LessOrEqual(t, x, bound)
			assert.GreaterOrEqual(t, x, -bound)
		}
	})

	t.Run("Sparse", func(t *testing.T) {
		v, err := Sparse(0.2, 1).Init(tensor.Shape{10, 4}, rng)
		require.NoError(t, err)
		data := v.AsFloat32()
		for k := range 4 {
			nonzero := 0
			for i := range 10 {
				if data[i*4+k] != 0 {
					nonzero++
				}
			}
			assert.LessOrEqual(t, nonzero, 2)
		}
	})

	t.Run("Orthogonal", func(t *testing.T) {
		for _, shape := range []tensor.Shape{{4, 4}, {3, 5}, {5, 3}} {
			v, err := Orthogonal(1).Init(shape, rng)
			require.NoError(t, err)
			q := v.AsFloat32()
			rows, cols := shape[0], shape[1]
			// Rows are orthonormal when rows <= cols, columns otherwise.
			if rows <= cols {
				for i := range rows {
					for j := range rows {
						var dot float64
						for k := range cols {
							dot += float64(q[i*cols+k] * q[j*cols+k])
						}
						want := 0.0
						if i == j {
							want = 1
						}
						assert.InDelta(t, want, dot, 1e-4)
					}
				}
			} else {
				for i := range cols {
					for j := range cols {
						var dot float64
						for k := range rows {
							dot += float64(q[k*cols+i] * q[k*cols+j])
						}
						want := 0.0
						if i == j {
							want = 1
						}
						assert.InDelta(t, want, dot, 1e-4)
					}
				}
			}
		}
	})
}

func TestByName(t *testing.T) {
	ini, err := ByName("GlorotUniform", nil)
	require.NoError(t, err)
	assert.Equal(t, "glorotuniform", ini.Name())

	ini, err = ByName("constant", map[string]float64{"val": 2})
	require.NoError(t, err)
	v, err := ini.Init(tensor.Shape{2}, testRand())
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 2}, v.AsFloat32())

	_, err = ByName("xavier-ish", nil)
	require.ErrorIs(t, err, ErrUnknownInit)
	assert.Contains(t, Names(), "orthogonal")
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(7)
	enc := reg.Sub("encoder")
	w := enc.New("w", tensor.Shape{3, 2}, Uniform(0.1))
	b := enc.Sub("gru").New("b", tensor.Shape{2}, Constant(0))
	require.NoError(t, reg.Err())

	assert.Equal(t, "encoder.w", w.Name())
	assert.Equal(t, "encoder.gru.b", b.Name())
	assert.Equal(t, []*Parameter{w, b}, reg.Params())

	got, ok := reg.Lookup("encoder.gru.b")
	require.True(t, ok)
	assert.Same(t, b, got)

	dup := enc.New("w", tensor.Shape{3, 2}, Uniform(0.1))
	require.NotNil(t, dup)
	require.ErrorIs(t, reg.Err(), ErrDuplicateName)
	assert.Len(t, reg.Params(), 2)
}

func TestRegistry_Deterministic(t *testing.T) {
	a := NewRegistry(42).New("w", tensor.Shape{4, 4}, GlorotNormal(1))
	b := NewRegistry(42).New("w", tensor.Shape{4, 4}, GlorotNormal(1))
	assert.Equal(t, a.Value().AsFloat32(), b.Value().AsFloat32())
}
