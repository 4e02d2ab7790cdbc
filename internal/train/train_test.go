package train_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/teafacto/internal/block"
	"github.com/born-ml/teafacto/internal/ctxlog"
	"github.com/born-ml/teafacto/internal/graph"
	"github.com/born-ml/teafacto/internal/nn"
	"github.com/born-ml/teafacto/internal/optim"
	"github.com/born-ml/teafacto/internal/param"
	"github.com/born-ml/teafacto/internal/tensor"
	"github.com/born-ml/teafacto/internal/train"
)

func quiet() context.Context {
	return ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// classifier is a small two-class MLP.
func classifier(t *testing.T, seed uint64) *nn.Sequential {
	t.Helper()
	reg := param.NewRegistry(seed)
	hidden, err := nn.NewLinear(reg, nn.LinearConfig{Name: "hidden", InDim: 2, Dim: 8, Activation: nn.ActTanh})
	require.NoError(t, err)
	out, err := nn.NewLinear(reg, nn.LinearConfig{Name: "out", InDim: 8, Dim: 2, Activation: nn.ActSoftmax})
	require.NoError(t, err)
	return nn.NewSequential("clf", hidden, out)
}

// dataset labels points by the sign of x0 + x1.
func dataset(n int) ([][]float32, []int32) {
	x := make([][]float32, n)
	y := make([]int32, n)
	for i := range n {
		a := float32(math.Sin(float64(i) * 1.3))
		b := float32(math.Cos(float64(i) * 0.7))
		x[i] = []float32{a, b}
		if a+b > 0 {
			y[i] = 1
		}
	}
	return x, y
}

func trainer(t *testing.T, b block.Block, n int) *train.Trainer {
	t.Helper()
	x, y := dataset(n)
	tr, err := block.Train(block.NewModel(b), train.New, y, x)
	require.NoError(t, err)
	return tr
}

func TestTrainer_ReducesLoss(t *testing.T) {
	tr := trainer(t, classifier(t, 1), 64)
	hist, err := tr.Adam(0.05).CrossEntropy().Accuracy().Batches(4).Epochs(40).Run(quiet())
	require.NoError(t, err)

	require.Equal(t, 40, hist.Epochs())
	assert.Less(t, hist.Train[39], hist.Train[0])
	assert.Less(t, hist.Train[39], 0.3)
	acc := hist.Metrics["train.accuracy"]
	require.Len(t, acc, 40)
	assert.Greater(t, acc[39], 0.9)
	assert.Equal(t, hist.Train, hist.Metrics["train.crossentropy"])
	assert.Equal(t, 40, tr.Epoch())
	assert.Equal(t, "adam", tr.Optim().Name())
}

func TestTrainer_Validation(t *testing.T) {
	t.Run("split", func(t *testing.T) {
		hist, err := trainer(t, classifier(t, 2), 40).
			SGD(0.5).CrossEntropy().
			SplitValidate(4, false).CrossEntropy().Accuracy().
			Epochs(3).Run(quiet())
		require.NoError(t, err)
		assert.Len(t, hist.Valid, 3)
		assert.Equal(t, hist.Valid, hist.Metrics["valid.crossentropy"])
		assert.Len(t, hist.Metrics["valid.accuracy"], 3)
	})

	t.Run("auto uses the training loss", func(t *testing.T) {
		hist, err := trainer(t, classifier(t, 2), 40).
			CrossEntropy().AutoValidate().Epochs(2).Run(quiet())
		require.NoError(t, err)
		assert.Len(t, hist.Metrics["valid.crossentropy"], 2)
	})

	t.Run("separate data", func(t *testing.T) {
		vx, vy := dataset(10)
		hist, err := trainer(t, classifier(t, 2), 40).
			CrossEntropy().Validate(vy, vx).Accuracy().Epochs(2).Run(quiet())
		require.NoError(t, err)
		assert.Len(t, hist.Valid, 2)
		assert.Equal(t, hist.Valid, hist.Metrics["valid.accuracy"])
	})
}

// With the learning rate decayed to zero the parameters stop moving, so
// every later epoch reports the same loss.
func TestTrainer_DecayLR(t *testing.T) {
	hist, err := trainer(t, classifier(t, 3), 32).
		Adadelta(1).DecayLR(2, 0).CrossEntropy().Batches(2).Epochs(5).Run(quiet())
	require.NoError(t, err)
	assert.NotEqual(t, hist.Train[0], hist.Train[1])
	for _, e := range hist.Train[3:] {
		assert.InDelta(t, hist.Train[2], e, 1e-6)
	}
}

func TestTrainer_DecayLRToZeroFreezesParams(t *testing.T) {
	clf := classifier(t, 6)
	hist, err := trainer(t, clf, 32).SGD(0.5).DecayLR(1, 0).CrossEntropy().Epochs(3).Run(quiet())
	require.NoError(t, err)
	require.Len(t, hist.Train, 3)
	assert.NotEqual(t, hist.Train[0], hist.Train[1])
	assert.InDelta(t, hist.Train[1], hist.Train[2], 1e-6)
}

func TestTrainer_ConstraintsAndRegularization(t *testing.T) {
	clf := classifier(t, 4)
	for _, p := range clf.Block(0).Params() {
		p.Clip(-0.05, 0.05)
	}
	_, err := trainer(t, clf, 32).SGD(1).CrossEntropy().Batches(4).Epochs(3).Run(quiet())
	require.NoError(t, err)
	for _, p := range clf.Block(0).Params() {
		for _, v := range p.Value().AsFloat32() {
			assert.LessOrEqual(t, v, float32(0.05))
			assert.GreaterOrEqual(t, v, float32(-0.05))
		}
	}

	sumSq := func(b block.Block) float64 {
		var s float64
		for _, p := range b.Params() {
			for _, v := range p.Value().AsFloat32() {
				s += float64(v * v)
			}
		}
		return s
	}
	plain, decayed := classifier(t, 5), classifier(t, 5)
	_, err = trainer(t, plain, 32).SGD(0.1).CrossEntropy().Epochs(10).Run(quiet())
	require.NoError(t, err)
	_, err = trainer(t, decayed, 32).SGD(0.1).CrossEntropy().Regularize(1).Epochs(10).Run(quiet())
	require.NoError(t, err)
	assert.Less(t, sumSq(decayed), sumSq(plain))
}

func TestTrainer_ClipGradNorm(t *testing.T) {
	// A tiny clip norm bounds every SGD step: with lr 1 no weight moves by
	// more than the norm per batch.
	clf := classifier(t, 6)
	before := make(map[string][]float32)
	for _, p := range clf.Params() {
		before[p.Name()] = append([]float32(nil), p.Value().AsFloat32()...)
	}
	_, err := trainer(t, clf, 16).SGD(1).ClipGradNorm(1e-3).CrossEntropy().Epochs(1).Run(quiet())
	require.NoError(t, err)
	var sq float64
	for _, p := range clf.Params() {
		for i, v := range p.Value().AsFloat32() {
			d := float64(v - before[p.Name()][i])
			sq += d * d
		}
	}
	assert.LessOrEqual(t, math.Sqrt(sq), 1e-3+1e-6)
	assert.Greater(t, sq, 0.0)
}

// Training two epochs, checkpointing and resuming for two more ends in the
// same state as four uninterrupted epochs.
func TestTrainer_ResumeMatchesContinuous(t *testing.T) {
	x, y := dataset(48)
	run := func(tr *train.Trainer) *train.Trainer {
		return tr.Momentum(0.2, 0.9).CrossEntropy().SplitValidate(4, true).CrossEntropy().Batches(3).Seed(7)
	}

	cont := classifier(t, 8)
	want, err := run(trainer(t, cont, 48)).Epochs(4).Run(quiet())
	require.NoError(t, err)

	first := trainer(t, classifier(t, 8), 48)
	_, err = run(first).Epochs(2).Run(quiet())
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, first.Save(&buf))

	cp, err := train.LoadCheckpoint(&buf)
	require.NoError(t, err)
	assert.Equal(t, 2, cp.Epoch)
	assert.Equal(t, int64(6), cp.Step)
	assert.Equal(t, "momentum", cp.OptimizerType)
	assert.NotEmpty(t, cp.OptimizerState)

	resumed, err := block.Train(block.NewModel(cp.Block), train.New, y, x)
	require.NoError(t, err)
	got, err := run(resumed).Resume(cp).Epochs(4).Run(quiet())
	require.NoError(t, err)

	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
	wantParams := cont.Params()
	for i, p := range cp.Block.Params() {
		assert.Equal(t, wantParams[i].Name(), p.Name())
		assert.Equal(t, wantParams[i].Value().AsFloat32(), p.Value().AsFloat32(), p.Name())
	}
}

func TestTrainer_Errors(t *testing.T) {
	_, err := trainer(t, classifier(t, 9), 8).Run(quiet())
	require.ErrorIs(t, err, train.ErrNoLoss)

	_, err = trainer(t, classifier(t, 9), 8).CrossEntropy().Batches(0).Run(quiet())
	require.ErrorIs(t, err, train.ErrConfig)

	_, err = trainer(t, classifier(t, 9), 8).CrossEntropy().SplitValidate(1, false).Run(quiet())
	require.ErrorIs(t, err, train.ErrConfig)

	_, err = trainer(t, classifier(t, 9), 8).Optimizer("rmsprop", nil).CrossEntropy().Run(quiet())
	require.ErrorIs(t, err, optim.ErrUnknownOptimizer)

	x, y := dataset(8)
	tr, err := block.Train(block.NewModel(classifier(t, 9)), train.New, y[:5], x)
	require.NoError(t, err)
	_, err = tr.CrossEntropy().Run(quiet())
	require.ErrorIs(t, err, train.ErrData)

	ctx, cancel := context.WithCancel(quiet())
	cancel()
	_, err = trainer(t, classifier(t, 9), 8).CrossEntropy().Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	_, err = train.LoadCheckpoint(bytes.NewReader(nil))
	require.Error(t, err)

	var frozen bytes.Buffer
	require.NoError(t, block.Freeze(&frozen, classifier(t, 9)))
	_, err = train.LoadCheckpoint(&frozen)
	require.ErrorIs(t, err, train.ErrNotCheckpoint)
}

func evalMetric(t *testing.T, m train.Metric, pred, gold *tensor.RawTensor) float64 {
	t.Helper()
	g := graph.New()
	p := g.Input("pred", pred.DType(), pred.Shape()...)
	y := g.Input("gold", gold.DType(), gold.Shape()...)
	var out graph.Var
	require.NoError(t, graph.Try(func() { out = m.Fn(p, y) }))
	fn, err := graph.Compile([]graph.Var{p, y}, []graph.Var{out})
	require.NoError(t, err)
	res, err := fn.Run(pred, gold)
	require.NoError(t, err)
	return float64(res[0].AsFloat32()[0])
}

func TestMetrics(t *testing.T) {
	probs := tensor.MustFromFloat32([]float32{0.7, 0.2, 0.1, 0.1, 0.3, 0.6}, 2, 3)
	gold := tensor.MustFromInt32([]int32{0, 1}, 2)

	ce := evalMetric(t, train.CrossEntropyLoss(), probs, gold)
	assert.InDelta(t, -(math.Log(0.7)+math.Log(0.3))/2, ce, 1e-5)
	assert.InDelta(t, 0.5, evalMetric(t, train.AccuracyMetric(), probs, gold), 1e-6)

	// Sequence gold: the padding position (0) is ignored.
	seqProbs := tensor.MustFromFloat32([]float32{0.7, 0.2, 0.1, 0.1, 0.3, 0.6}, 1, 2, 3)
	seqGold := tensor.MustFromInt32([]int32{2, 0}, 1, 2)
	assert.InDelta(t, -math.Log(0.1), evalMetric(t, train.CrossEntropyLoss(), seqProbs, seqGold), 1e-4)
	assert.InDelta(t, 0, evalMetric(t, train.AccuracyMetric(), seqProbs, seqGold), 1e-6)

	pred := tensor.MustFromFloat32([]float32{0.5, 1, 0.25}, 3)
	target := tensor.MustFromFloat32([]float32{1, 1, 0}, 3)
	assert.InDelta(t, (0.25+0+0.0625)/3, evalMetric(t, train.MSELoss(), pred, target), 1e-6)
	bce := -(math.Log(0.5) + math.Log(1-1e-7) + math.Log(0.75)) / 3
	assert.InDelta(t, bce, evalMetric(t, train.BinaryCrossEntropyLoss(), pred, target), 1e-5)

	for _, name := range []string{"ce", "mse", "bce", "accuracy"} {
		_, err := train.MetricByName(name)
		require.NoError(t, err)
	}
	_, err := train.MetricByName("hinge")
	require.ErrorIs(t, err, train.ErrUnknownMetric)
}
