package block

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/teafacto/internal/graph"
	"github.com/born-ml/teafacto/internal/param"
	"github.com/born-ml/teafacto/internal/tensor"
)

// affine is a minimal configurable block used across the tests.
type affine struct {
	cfg  affineConfig
	w, b *param.Parameter
}

type affineConfig struct {
	Name string `json:"name"`
	In   int    `json:"in"`
	Out  int    `json:"out"`
}

func newAffine(reg *param.Registry, cfg affineConfig) (*affine, error) {
	sub := reg.Sub(cfg.Name)
	a := &affine{
		cfg: cfg,
		w:   sub.New("w", tensor.Shape{cfg.In, cfg.Out}, param.Uniform(0.5)),
		b:   sub.New("b", tensor.Shape{cfg.Out}, param.Constant(0.1)),
	}
	return a, reg.Err()
}

func (a *affine) Name() string               { return a.cfg.Name }
func (a *affine) Params() []*param.Parameter { return []*param.Parameter{a.w, a.b} }
func (a *affine) Kind() string               { return "test.affine" }
func (a *affine) Config() any                { return a.cfg }

func (a *affine) Apply(args ...graph.Var) graph.Var {
	g := args[0].Graph()
	return args[0].Dot(g.Param(a.w)).Add(g.Param(a.b)).Tanh()
}

func init() {
	RegisterKind("test.affine", func(reg *param.Registry, raw json.RawMessage) (Block, error) {
		var cfg affineConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, err
		}
		return newAffine(reg, cfg)
	})
}

func tanh32(x float32) float32 { return float32(math.Tanh(float64(x))) }

func mustAffine(t *testing.T, seed uint64) *affine {
	t.Helper()
	a, err := newAffine(param.NewRegistry(seed), affineConfig{Name: "aff", In: 3, Out: 2})
	require.NoError(t, err)
	return a
}

func TestCall_ScopeAndIdentity(t *testing.T) {
	g := graph.New()
	x := g.Input("x", tensor.Float32, -1, 3)

	out := Call(mustAffine(t, 1), x)
	assert.True(t, out.InScope("aff"))
	assert.Equal(t, tensor.Shape{-1, 2}, out.Shape())

	passthrough := Func("pass", func(args ...graph.Var) graph.Var { return args[0] })
	y := Call(passthrough, x)
	assert.NotEqual(t, x.ID(), y.ID())
	assert.Equal(t, graph.OpIdentity, y.Op())
	assert.True(t, y.InScope("pass"))

	err := graph.Try(func() { Call(passthrough, graph.Var{}) })
	require.ErrorIs(t, err, ErrNoInput)
}

func TestCollect(t *testing.T) {
	a := mustAffine(t, 1)
	f := Func("f", func(args ...graph.Var) graph.Var { return args[0] }, a.w)
	ps := Collect(a, f, nil)
	require.Len(t, ps, 2)
	assert.Same(t, a.w, ps[0])
	assert.Same(t, a.b, ps[1])
}

func TestModel_Lifecycle(t *testing.T) {
	a := mustAffine(t, 2)
	m := NewModel(a)
	assert.Equal(t, Uninitialized, m.State())
	assert.Equal(t, a.Params(), m.Params())

	_, err := m.Compile()
	require.ErrorIs(t, err, ErrNotBuilt)

	require.NoError(t, m.Build(Spec("x", tensor.Float32, -1, 3)))
	assert.Equal(t, Built, m.State())
	assert.Equal(t, "built", m.State().String())
	assert.ElementsMatch(t, a.Params(), m.Params())

	out, err := m.Predict([][]float64{{1, 0, 0}, {0, 1, 0}})
	require.NoError(t, err)
	assert.Equal(t, Compiled, m.State())
	assert.Equal(t, tensor.Shape{2, 2}, out.Shape())

	fn, err := m.Compile()
	require.NoError(t, err)
	again, err := m.Compile()
	require.NoError(t, err)
	assert.Same(t, fn, again)

	before := a.w.Value().Clone()
	m.Reset()
	m.Reset()
	assert.Equal(t, Uninitialized, m.State())
	assert.Nil(t, m.Graph())
	assert.False(t, m.Output().Valid())
	assert.Equal(t, before.AsFloat32(), a.w.Value().AsFloat32())

	// Predicting again rebuilds with the same parameters.
	out2, err := m.Predict([][]float64{{1, 0, 0}, {0, 1, 0}})
	require.NoError(t, err)
	assert.Equal(t, out.AsFloat32(), out2.AsFloat32())
}

func TestModel_PredictMatchesManual(t *testing.T) {
	a := mustAffine(t, 3)
	m := NewModel(a)
	out, err := m.Predict([][]float32{{0.5, -1, 2}})
	require.NoError(t, err)

	w := a.w.Value().AsFloat32()
	for j := range 2 {
		z := 0.5*w[j] - 1*w[2+j] + 2*w[4+j] + 0.1
		assert.InDelta(t, tanh32(z), out.AsFloat32()[j], 1e-5)
	}
}

func TestModel_Errors(t *testing.T) {
	m := NewModel(mustAffine(t, 4))
	require.NoError(t, m.Build(Spec("x", tensor.Float32, -1, 3)))

	_, err := m.Predict([][]float32{{1, 2}})
	require.ErrorIs(t, err, graph.ErrShape)

	_, err = m.Predict([][]float32{{1, 2, 3}}, [][]float32{{1, 2, 3}})
	require.ErrorIs(t, err, graph.ErrArity)

	_, err = m.Predict([]string{"a"})
	require.Error(t, err)

	bad := NewModel(Func("bad", func(args ...graph.Var) graph.Var { return args[0].Dot(args[0]) }))
	err = bad.Build(Spec("x", tensor.Float32, 2, 3))
	require.ErrorIs(t, err, graph.ErrShape)
	assert.Equal(t, Uninitialized, bad.State())
}

func TestModel_ConformCasts(t *testing.T) {
	emb := Func("lookup", func(args ...graph.Var) graph.Var { return args[0].OneHot(4).SumAll() })
	m := NewModel(emb)
	require.NoError(t, m.Build(Spec("idx", tensor.Int32, -1)))

	idx64 := tensor.Zeros(tensor.Shape{3}, tensor.Int64)
	out, err := m.Predict(idx64)
	require.NoError(t, err)
	assert.Equal(t, []float32{3}, out.AsFloat32())
}

func TestModel_AutoBuild(t *testing.T) {
	m := NewModel(mustAffine(t, 5))
	require.NoError(t, m.AutoBuild([][]float32{{1, 2, 3}}))
	require.Len(t, m.Inputs(), 1)
	assert.Equal(t, tensor.Shape{-1, -1}, m.Inputs()[0].Shape())
	assert.Equal(t, tensor.Float32, m.Inputs()[0].DType())
}

func TestTrain_Setup(t *testing.T) {
	m := NewModel(mustAffine(t, 6))
	setup, err := Train(m, func(s TrainSetup) TrainSetup { return s },
		[]int{0, 1}, [][]float32{{1, 2, 3}, {4, 5, 6}})
	require.NoError(t, err)
	assert.Same(t, m, setup.Model)
	assert.Equal(t, Built, m.State())
	assert.True(t, setup.Gold.IsInput())
	assert.Equal(t, tensor.Int32, setup.Gold.DType())
	require.Len(t, setup.Data, 1)
	assert.Equal(t, tensor.Shape{2}, setup.GoldData.Shape())
}

func TestFreeze_RoundTrip(t *testing.T) {
	a := mustAffine(t, 7)
	var buf bytes.Buffer
	require.NoError(t, Freeze(&buf, a))

	b, err := Unfreeze(&buf)
	require.NoError(t, err)
	restored, ok := b.(*affine)
	require.True(t, ok)
	assert.Equal(t, a.cfg, restored.cfg)
	assert.Equal(t, a.w.Value().AsFloat32(), restored.w.Value().AsFloat32())
	assert.Equal(t, a.b.Value().AsFloat32(), restored.b.Value().AsFloat32())

	x := [][]float32{{0.1, 0.2, 0.3}}
	want, err := NewModel(a).Predict(x)
	require.NoError(t, err)
	got, err := NewModel(restored).Predict(x)
	require.NoError(t, err)
	assert.Equal(t, want.AsFloat32(), got.AsFloat32())
}

func TestFreeze_Errors(t *testing.T) {
	var buf bytes.Buffer
	err := Freeze(&buf, Func("f", func(args ...graph.Var) graph.Var { return args[0] }))
	require.ErrorIs(t, err, ErrNotFreezable)

	assert.Panics(t, func() { RegisterKind("test.affine", nil) })
	assert.Panics(t, func() {
		RegisterKind("test.affine", func(*param.Registry, json.RawMessage) (Block, error) { return nil, nil })
	})
	assert.Contains(t, Kinds(), "test.affine")
}

func TestFreeze_ScopedRegistry(t *testing.T) {
	a, err := newAffine(param.NewRegistry(8).Sub("model"), affineConfig{Name: "aff", In: 3, Out: 2})
	require.NoError(t, err)
	assert.Equal(t, "model.aff.w", a.w.Name())

	var buf bytes.Buffer
	require.NoError(t, Freeze(&buf, a))
	b, err := Unfreeze(&buf)
	require.NoError(t, err)
	restored := b.(*affine)
	assert.Equal(t, "aff.w", restored.w.Name())
	assert.Equal(t, a.w.Value().AsFloat32(), restored.w.Value().AsFloat32())
}

func TestBuild_UnknownKind(t *testing.T) {
	_, err := Build(param.NewRegistry(0), "nope", nil)
	require.ErrorIs(t, err, ErrUnknownKind)
}
