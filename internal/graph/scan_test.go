package graph

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/teafacto/internal/param"
	"github.com/born-ml/teafacto/internal/tensor"
)

func rnuStep(g *Graph, w, u, b *param.Parameter) StepFunc {
	return func(x Var, states []Var) Step {
		h := x.Dot(g.Param(w)).Add(states[0].Dot(g.Param(u))).Add(g.Param(b)).Tanh()
		return Step{Out: h, States: []Var{h}}
	}
}

func seqData(b, t, f int) *tensor.RawTensor {
	data := make([]float32, b*t*f)
	for i := range data {
		data[i] = float32(math.Sin(float64(i+1))) * 0.5
	}
	return tensor.MustFromFloat32(data, b, t, f)
}

func TestScan_RNUFirstStep(t *testing.T) {
	const batch, steps, dim = 2, 3, 4
	g := New()
	w := newParam(t, "w", dim, dim)
	u := newParam(t, "u", dim, dim)
	b := newParam(t, "b", dim)

	x := g.Input("x", tensor.Float32, -1, -1, dim)
	out, finals := Scan(rnuStep(g, w, u, b), x, []Var{ZerosLike(x, dim)})
	require.Len(t, finals, 1)
	assert.Equal(t, tensor.Shape{-1, -1, dim}, out.Shape())

	fn := mustFn(t, []Var{x}, []Var{out, finals[0]})
	in := seqData(batch, steps, dim)
	res, err := fn.Run(in)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{batch, steps, dim}, res[0].Shape())
	assert.Equal(t, tensor.Shape{batch, dim}, res[1].Shape())

	xs := in.AsFloat32()
	wv, bv := w.Value().AsFloat32(), b.Value().AsFloat32()
	got := res[0].AsFloat32()
	for n := range batch {
		for j := range dim {
			s := float64(bv[j])
			for k := range dim {
				s += float64(xs[n*steps*dim+k]) * float64(wv[k*dim+j])
			}
			assert.InDelta(t, math.Tanh(s), got[n*steps*dim+j], 1e-5)
		}
	}
	// The final state is the last output.
	assert.InDeltaSlice(t, got[(steps-1)*dim:steps*dim], res[1].AsFloat32()[:dim], 1e-6)
}

func TestScan_MatchesManualUnroll(t *testing.T) {
	const batch, steps, dim = 2, 4, 3
	w := newParam(t, "w", dim, dim)
	u := newParam(t, "u", dim, dim)
	b := newParam(t, "b", dim)
	in := seqData(batch, steps, dim)

	g := New()
	x := g.Input("x", tensor.Float32, batch, steps, dim)
	out, _ := Scan(rnuStep(g, w, u, b), x, []Var{ZerosLike(x, dim)})
	scanned, err := mustFn(t, []Var{x}, []Var{out}).Run(in)
	require.NoError(t, err)

	g2 := New()
	x2 := g2.Input("x", tensor.Float32, batch, steps, dim)
	step := rnuStep(g2, w, u, b)
	h := ZerosLike(x2, dim)
	outs := make([]Var, steps)
	for i := range steps {
		s := step(x2.Index(1, i), []Var{h})
		h = s.States[0]
		outs[i] = s.Out.Reshape(batch, 1, dim)
	}
	unrolled, err := mustFn(t, []Var{x2}, []Var{Concat(1, outs...)}).Run(in)
	require.NoError(t, err)

	assert.InDeltaSlice(t, unrolled[0].AsFloat32(), scanned[0].AsFloat32(), 1e-6)
}

func TestScan_CapturesOuterNodesOnce(t *testing.T) {
	g := New()
	w := newParam(t, "w", 2, 2)
	x := g.Input("x", tensor.Float32, -1, -1, 2)
	wv := g.Param(w)
	bias := g.Const(tensor.MustFromFloat32([]float32{1, 1}, 2)).Scale(0.5)

	out, _ := Scan(func(x Var, s []Var) Step {
		h := x.Dot(wv).Add(s[0].Dot(wv)).Add(bias).Add(bias)
		return Step{Out: h, States: []Var{h}}
	}, x, []Var{ZerosLike(x, 2)})

	scan := out.Parents()[0]
	count := map[NodeID]int{}
	for _, p := range scan.Parents() {
		count[p.ID()]++
	}
	assert.Equal(t, 1, count[wv.ID()])
	assert.Equal(t, 1, count[bias.ID()])
	assert.Equal(t, 1, count[x.ID()])
	assert.Equal(t, []*param.Parameter{w}, Params(out))
}

func TestScan_StepsWithStop(t *testing.T) {
	g := New()
	start := g.Input("start", tensor.Float32, -1, 1)

	out, finals := Scan(func(_ Var, s []Var) Step {
		c := s[0].AddScalar(1)
		return Step{Out: c, States: []Var{c}, Stop: c.EqualScalar(3)}
	}, Var{}, []Var{start}, Steps(10))
	assert.Equal(t, tensor.Shape{-1, -1, 1}, out.Shape())

	fn := mustFn(t, []Var{start}, []Var{out, finals[0]})
	res, err := fn.Run(tensor.MustFromFloat32([]float32{0, 0}, 2, 1))
	require.NoError(t, err)

	// The stopping step is part of the output.
	assert.Equal(t, tensor.Shape{2, 3, 1}, res[0].Shape())
	assert.Equal(t, []float32{1, 2, 3, 1, 2, 3}, res[0].AsFloat32())
	assert.Equal(t, []float32{3, 3}, res[1].AsFloat32())

	// The stop condition needs every element set.
	res, err = fn.Run(tensor.MustFromFloat32([]float32{0, 5}, 2, 1))
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 10, 1}, res[0].Shape())
}

func TestScan_SequenceStop(t *testing.T) {
	g := New()
	x := g.Input("x", tensor.Float32, 1, 5, 1)
	out, _ := Scan(func(x Var, _ []Var) Step {
		return Step{Out: x.Scale(10), Stop: x.EqualScalar(3)}
	}, x, nil)

	res, err := mustFn(t, []Var{x}, []Var{out}).Run(tensor.MustFromFloat32([]float32{1, 2, 3, 4, 5}, 1, 5, 1))
	require.NoError(t, err)
	assert.Equal(t, []float32{10, 20, 30}, res[0].AsFloat32())
}

func TestScan_Reverse(t *testing.T) {
	g := New()
	x := g.Input("x", tensor.Float32, 1, 3, 1)
	sum := func(x Var, s []Var) Step {
		acc := s[0].Add(x)
		return Step{Out: acc, States: []Var{acc}}
	}
	fwd, _ := Scan(sum, x, []Var{ZerosLike(x, 1)})
	rev, final := Scan(sum, x, []Var{ZerosLike(x, 1)}, Reverse())

	res, err := mustFn(t, []Var{x}, []Var{fwd, rev, final[0]}).Run(tensor.MustFromFloat32([]float32{1, 2, 3}, 1, 3, 1))
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 3, 6}, res[0].AsFloat32())
	assert.Equal(t, []float32{6, 5, 3}, res[1].AsFloat32())
	assert.Equal(t, []float32{6}, res[2].AsFloat32())
}

func TestScan_Nested(t *testing.T) {
	g := New()
	x := g.Input("x", tensor.Float32, 1, 2, 3, 1)
	out, _ := Scan(func(xt Var, _ []Var) Step {
		_, inner := Scan(func(xk Var, s []Var) Step {
			acc := s[0].Add(xk)
			return Step{Out: acc, States: []Var{acc}}
		}, xt, []Var{ZerosLike(xt, 1)})
		return Step{Out: inner[0]}
	}, x, nil)

	res, err := mustFn(t, []Var{x}, []Var{out}).Run(tensor.MustFromFloat32([]float32{1, 2, 3, 4, 5, 6}, 1, 2, 3, 1))
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 2, 1}, res[0].Shape())
	assert.Equal(t, []float32{6, 15}, res[0].AsFloat32())
}

func TestScan_Errors(t *testing.T) {
	g := New()
	x := g.Input("x", tensor.Float32, -1, -1, 2)
	h0 := ZerosLike(x, 2)

	err := Try(func() {
		Scan(func(x Var, s []Var) Step {
			return Step{Out: x, States: []Var{s[0], s[0]}}
		}, x, []Var{h0})
	})
	require.ErrorIs(t, err, ErrArity)

	err = Try(func() {
		Scan(func(x Var, s []Var) Step {
			return Step{Out: x, States: []Var{x.Sum(-1, true)}}
		}, x, []Var{h0})
	})
	require.ErrorIs(t, err, ErrShape)

	err = Try(func() {
		Scan(func(x Var, _ []Var) Step { return Step{Out: x, Stop: x} }, x, nil, Reverse())
	})
	require.ErrorIs(t, err, ErrArity)

	err = Try(func() { Scan(func(x Var, _ []Var) Step { return Step{Out: x} }, Var{}, nil) })
	require.ErrorIs(t, err, ErrArity)
}

func TestScan_StepsCapsSequence(t *testing.T) {
	g := New()
	w := fixedParam(t, "w", []float32{2, 3}, 2)
	x := g.Input("x", tensor.Float32, 1, 4, 2)
	out, finals := Scan(func(xt Var, s []Var) Step {
		y := xt.Mul(g.Param(w))
		return Step{Out: y, States: []Var{s[0].Add(y)}}
	}, x, []Var{ZerosLike(x, 2)}, Steps(2))
	assert.Equal(t, tensor.Shape{1, 2, 2}, out.Shape())

	in := tensor.MustFromFloat32([]float32{1, 1, 2, 2, 5, 5, 7, 7}, 1, 4, 2)
	res, err := mustFn(t, []Var{x}, []Var{out, finals[0]}).Run(in)
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 3, 4, 6}, res[0].AsFloat32())
	assert.Equal(t, []float32{6, 9}, res[1].AsFloat32())

	// Steps beyond the sequence length are ignored.
	long, _ := Scan(func(xt Var, _ []Var) Step { return Step{Out: xt} }, x, nil, Steps(9))
	assert.Equal(t, tensor.Shape{1, 4, 2}, long.Shape())

	gf, err := CompileGrad([]Var{x}, finals[0].SumAll(), []*param.Parameter{w}, nil)
	require.NoError(t, err)
	gr, err := gf.Run(in)
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 3}, gr.Grads[0].AsFloat32())
}

func TestScan_EmptySequence(t *testing.T) {
	g := New()
	x := g.Input("x", tensor.Float32, -1, -1, 2)
	out, _ := Scan(func(x Var, _ []Var) Step { return Step{Out: x} }, x, nil)
	fn := mustFn(t, []Var{x}, []Var{out})

	_, err := fn.Run(tensor.Zeros(tensor.Shape{1, 0, 2}, tensor.Float32))
	require.ErrorIs(t, err, ErrEmptySequence)
}
