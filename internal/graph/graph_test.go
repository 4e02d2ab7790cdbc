package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/teafacto/internal/param"
	"github.com/born-ml/teafacto/internal/tensor"
)

func newParam(t *testing.T, name string, shape ...int) *param.Parameter {
	t.Helper()
	p, err := param.New(tensor.Shape(shape), param.Uniform(0.5), param.WithName(name))
	require.NoError(t, err)
	return p
}

func mustFn(t *testing.T, inputs, outputs []Var) *Function {
	t.Helper()
	fn, err := Compile(inputs, outputs)
	require.NoError(t, err)
	return fn
}

func TestParams_Closure(t *testing.T) {
	g := New()
	w := newParam(t, "w", 3, 2)
	b := newParam(t, "b", 2)
	unused := newParam(t, "unused", 2)

	x := g.Input("x", tensor.Float32, -1, 3)
	h := x.Dot(g.Param(w)).Add(g.Param(b))
	y := h.Add(h).Tanh()
	_ = g.Param(unused).AddScalar(1)

	ps := Params(y)
	require.Len(t, ps, 2)
	assert.Same(t, w, ps[0])
	assert.Same(t, b, ps[1])

	// Each parameter has one node, however often it is referenced.
	assert.Equal(t, g.Param(w).ID(), g.Param(w).ID())
	assert.Len(t, Params(y, y.Scale(2)), 2)
	assert.Empty(t, Params(x))
	assert.Equal(t, []Var{x}, Inputs(y))
}

func TestVar_ParentsAndOps(t *testing.T) {
	g := New()
	a := g.Input("a", tensor.Float32, 2)
	b := g.Input("b", tensor.Float32, 2)
	c := a.Mul(b)

	assert.Equal(t, OpMul, c.Op())
	assert.Equal(t, []Var{a, b}, c.Parents())
	assert.Equal(t, OpNone, a.Op())
	assert.True(t, a.IsInput())
	assert.Less(t, a.ID(), c.ID())
	assert.Equal(t, "mul", c.Op().String())
}

func TestScope(t *testing.T) {
	g := New()
	x := g.Input("x", tensor.Float32, 2)
	g.PushScope("enc")
	y := x.Tanh()
	g.PushScope("inner")
	z := y.Exp()
	g.PopScope()
	g.PopScope()
	w := z.Neg()

	assert.True(t, y.InScope("enc"))
	assert.False(t, y.InScope("inner"))
	assert.Equal(t, []string{"enc", "inner"}, z.Scope())
	assert.Empty(t, w.Scope())
	assert.Panics(t, g.PopScope)
}

func TestStaticShapes(t *testing.T) {
	g := New()
	x := g.Input("x", tensor.Float32, -1, 5, 3)
	w := g.Const(tensor.Zeros(tensor.Shape{3, 4}, tensor.Float32))

	assert.Equal(t, tensor.Shape{-1, 5, 4}, x.Dot(w).Shape())
	assert.Equal(t, tensor.Shape{-1, 3}, x.Sum(1, false).Shape())
	assert.Equal(t, tensor.Shape{-1, 1, 3}, x.Mean(1, true).Shape())
	assert.Equal(t, tensor.Shape{5, -1, 3}, x.DimSwap(0, 1).Shape())
	assert.Equal(t, tensor.Shape{-1, 2, 3}, x.Slice(1, 1, 3).Shape())
	assert.Equal(t, tensor.Shape{-1, 3}, x.Index(1, 4).Shape())
	assert.Equal(t, tensor.Shape{-1, 5, 6}, Concat(-1, x, x).Shape())
	assert.Equal(t, tensor.Shape{-1, 5}, x.Argmax().Shape())
	assert.Equal(t, tensor.Int32, x.Argmax().DType())
	assert.Equal(t, tensor.Shape{}, x.SumAll().Shape())

	idx := g.Input("idx", tensor.Int32, -1, 5)
	assert.Equal(t, tensor.Shape{-1, 5, 4}, idx.OneHot(4).Shape())
	assert.Equal(t, tensor.Shape{-1, 5, 3}, w.Transpose().Rows(idx).Shape())
}

func TestStaticShapes_Errors(t *testing.T) {
	g := New()
	x := g.Input("x", tensor.Float32, 2, 3)
	y := g.Input("y", tensor.Float32, 4)
	idx := g.Input("idx", tensor.Int32, 2)

	cases := map[string]struct {
		fn   func()
		want error
	}{
		"broadcast":   {func() { x.Add(y) }, ErrShape},
		"dot":         {func() { x.Dot(x) }, ErrShape},
		"dot 1d":      {func() { x.Dot(y) }, ErrShape},
		"reshape":     {func() { x.Reshape(4, 2) }, ErrShape},
		"reshape -1":  {func() { x.Reshape(-1, -1) }, ErrShape},
		"slice":       {func() { x.Slice(1, 2, 5) }, ErrShape},
		"axis":        {func() { x.Sum(2, false) }, ErrShape},
		"rows float":  {func() { x.Rows(x) }, ErrDType},
		"pick shape":  {func() { y.Pick(idx) }, ErrShape},
		"concat rank": {func() { Concat(0, x, y) }, ErrShape},
		"clip range":  {func() { x.Clip(1, 0) }, ErrShape},
		"foreign":     {func() { x.Add(New().Input("z", tensor.Float32, 3)) }, ErrForeign},
		"invalid var": {func() { x.Add(Var{}) }, ErrArity},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := Try(tc.fn)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestTry_RethrowsForeignPanics(t *testing.T) {
	assert.PanicsWithValue(t, "boom", func() {
		_ = Try(func() { panic("boom") })
	})
}

func TestCompile_Unbound(t *testing.T) {
	g := New()
	a := g.Input("a", tensor.Float32, 2)
	b := g.Input("b", tensor.Float32, 2)
	y := a.Add(b)

	_, err := Compile([]Var{a}, []Var{y})
	require.ErrorIs(t, err, ErrUnbound)
	assert.Contains(t, err.Error(), `"b"`)

	_, err = Compile([]Var{a, b, a}, []Var{y})
	require.ErrorIs(t, err, ErrArity)

	_, err = Compile([]Var{a, b}, nil)
	require.ErrorIs(t, err, ErrArity)

	_, err = Compile([]Var{a, b, y}, []Var{y})
	require.ErrorIs(t, err, ErrArity)
}

func TestFunction_RunErrors(t *testing.T) {
	g := New()
	x := g.Input("x", tensor.Float32, -1, 2)
	fn := mustFn(t, []Var{x}, []Var{x.Exp()})

	_, err := fn.Run()
	require.ErrorIs(t, err, ErrArity)

	_, err = fn.Run(nil)
	require.ErrorIs(t, err, ErrUnbound)

	_, err = fn.Run(tensor.MustFromInt32([]int32{1, 2}, 1, 2))
	require.ErrorIs(t, err, ErrDType)

	_, err = fn.Run(tensor.MustFromFloat32([]float32{1, 2, 3}, 1, 3))
	require.ErrorIs(t, err, ErrShape)

	out, err := fn.Run(tensor.MustFromFloat32([]float32{0, 0, 0, 0}, 2, 2))
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1, 1, 1}, out[0].AsFloat32())
}

func TestFunction_RuntimeShapeError(t *testing.T) {
	g := New()
	a := g.Input("a", tensor.Float32, -1)
	b := g.Input("b", tensor.Float32, -1)
	fn := mustFn(t, []Var{a, b}, []Var{a.Add(b)})

	_, err := fn.Run(
		tensor.MustFromFloat32([]float32{1, 2}, 2),
		tensor.MustFromFloat32([]float32{1, 2, 3}, 3),
	)
	require.ErrorIs(t, err, ErrExec)
}

func TestFunction_Forward(t *testing.T) {
	g := New()
	x := g.Input("x", tensor.Float32, 2, 2)
	idx := g.Input("idx", tensor.Int32, 2)
	w := g.Const(tensor.MustFromFloat32([]float32{1, 0, 0, 2}, 2, 2))

	outs := []Var{
		x.Dot(w),
		x.Sum(-1, false),
		x.Mean(0, false),
		x.Softmax().Sum(-1, false),
		x.Pick(idx),
		idx.OneHot(3),
		x.Argmax(),
		x.Clip(1.5, 3),
		x.Transpose(),
		Concat(0, x, x).Reshape(-1),
		x.MeanAll(),
		x.AddScalar(1).Scale(2).Pow(2).Sqrt(),
		ZerosLike(x, 3),
		x.Slice(1, 1, 2),
		x.Index(0, 1),
		idx.EqualScalar(1),
		idx.Add(x.Index(0, 0)),
	}
	fn := mustFn(t, []Var{x, idx}, outs)
	res, err := fn.Run(
		tensor.MustFromFloat32([]float32{1, 2, 3, 4}, 2, 2),
		tensor.MustFromInt32([]int32{1, 0}, 2),
	)
	require.NoError(t, err)

	assert.Equal(t, []float32{1, 4, 3, 8}, res[0].AsFloat32())
	assert.Equal(t, []float32{3, 7}, res[1].AsFloat32())
	assert.Equal(t, []float32{2, 3}, res[2].AsFloat32())
	assert.InDeltaSlice(t, []float32{1, 1}, res[3].AsFloat32(), 1e-6)
	assert.Equal(t, []float32{2, 3}, res[4].AsFloat32())
	assert.Equal(t, []float32{0, 1, 0, 1, 0, 0}, res[5].AsFloat32())
	assert.Equal(t, []int32{1, 1}, res[6].AsInt32())
	assert.Equal(t, []float32{1.5, 2, 3, 3}, res[7].AsFloat32())
	assert.Equal(t, []float32{1, 3, 2, 4}, res[8].AsFloat32())
	assert.Equal(t, tensor.Shape{8}, res[9].Shape())
	assert.Equal(t, []float32{2.5}, res[10].AsFloat32())
	assert.InDeltaSlice(t, []float32{4, 6, 8, 10}, res[11].AsFloat32(), 1e-5)
	assert.Equal(t, tensor.Shape{2, 3}, res[12].Shape())
	assert.Equal(t, []float32{2, 4}, res[13].AsFloat32())
	assert.Equal(t, []float32{3, 4}, res[14].AsFloat32())
	assert.Equal(t, []float32{1, 0}, res[15].AsFloat32())
	assert.Equal(t, []float32{2, 2}, res[16].AsFloat32())
}

func TestFunction_ReadsParamsAtCallTime(t *testing.T) {
	g := New()
	p, err := param.New(tensor.Shape{2}, param.Constant(1))
	require.NoError(t, err)
	x := g.Input("x", tensor.Float32, 2)
	fn := mustFn(t, []Var{x}, []Var{x.Mul(g.Param(p))})
	in := tensor.MustFromFloat32([]float32{2, 3}, 2)

	out, err := fn.Run(in)
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 3}, out[0].AsFloat32())

	require.NoError(t, p.SetValue(tensor.MustFromFloat32([]float32{10, 0}, 2)))
	out, err = fn.Run(in)
	require.NoError(t, err)
	assert.Equal(t, []float32{20, 0}, out[0].AsFloat32())
}

func TestExpandSqueeze(t *testing.T) {
	g := New()
	x := g.Input("x", tensor.Float32, -1, 3)
	e := x.ExpandDims(1)
	assert.Equal(t, tensor.Shape{-1, 1, 3}, e.Shape())
	assert.Equal(t, tensor.Shape{-1, 3, 1}, x.ExpandDims(-1).Shape())
	s := e.Squeeze(1)
	assert.Equal(t, tensor.Shape{-1, 3}, s.Shape())

	fn := mustFn(t, []Var{x}, []Var{e, x.ExpandDims(-1), s})
	res, err := fn.Run(tensor.MustFromFloat32([]float32{1, 2, 3, 4, 5, 6}, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 1, 3}, res[0].Shape())
	assert.Equal(t, tensor.Shape{2, 3, 1}, res[1].Shape())
	assert.Equal(t, tensor.Shape{2, 3}, res[2].Shape())
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, res[2].AsFloat32())

	err = Try(func() { x.Squeeze(1) })
	require.ErrorIs(t, err, ErrShape)
}
