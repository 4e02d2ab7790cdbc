// Package train fits a block.Model to data.
//
// A Trainer is configured fluently and run once:
//
//	tr, err := block.Train(model, train.New, gold, inputs...)
//	if err != nil { ... }
//	hist, err := tr.Adadelta(1).CrossEntropy().
//		AutoValidate().CrossEntropy().Accuracy().
//		Batches(100).Epochs(10).Run(ctx)
//
// Metric methods (CrossEntropy, MSE, BinaryCrossEntropy, Accuracy) apply to
// training until a validation method is called and to validation after it.
package train

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/teafacto/internal/block"
	"github.com/born-ml/teafacto/internal/ctxlog"
	"github.com/born-ml/teafacto/internal/graph"
	"github.com/born-ml/teafacto/internal/optim"
	"github.com/born-ml/teafacto/internal/param"
	"github.com/born-ml/teafacto/internal/tensor"
)

// History records per-epoch results.
type History struct {
	Train []float64 `json:"train"`           // training loss
	Valid []float64 `json:"valid,omitempty"` // first validation metric
	// Metrics holds every metric as "train.<name>" or "valid.<name>".
	Metrics map[string][]float64 `json:"metrics,omitempty"`
}

func (h *History) record(key string, v float64) {
	if h.Metrics == nil {
		h.Metrics = make(map[string][]float64)
	}
	h.Metrics[key] = append(h.Metrics[key], v)
}

// Epochs returns the number of recorded epochs.
func (h History) Epochs() int { return len(h.Train) }

type validation struct {
	data    []*tensor.RawTensor
	gold    *tensor.RawTensor
	splits  int
	random  bool
	metrics []Metric
}

// Trainer trains the model of a block.TrainSetup. Configuration errors are
// kept and returned by Run.
type Trainer struct {
	setup block.TrainSetup
	err   error

	optName string
	optHP   map[string]float64
	opt     optim.Optimizer

	loss    *Metric
	metrics []Metric
	valid   *validation

	regularize  float32
	clipNorm    float32
	batches     int
	epochs      int
	seed        uint64
	decay       bool
	decayAfter  int
	decayFactor float32

	epoch    int // epochs completed
	step     int64
	history  History
	optState map[string]*tensor.RawTensor
}

// New returns a trainer with Adadelta (lr 1), one batch per epoch, one
// epoch and seed 0. It is the constructor block.Train expects.
func New(setup block.TrainSetup) *Trainer {
	return &Trainer{
		setup:   setup,
		optName: "adadelta",
		optHP:   map[string]float64{"lr": 1},
		batches: 1,
		epochs:  1,
	}
}

func (t *Trainer) fail(err error) *Trainer {
	if t.err == nil {
		t.err = err
	}
	return t
}

// Optimizer selects an update rule by name (see optim.New).
func (t *Trainer) Optimizer(name string, hp map[string]float64) *Trainer {
	t.optName, t.optHP = name, hp
	return t
}

// SGD selects plain stochastic gradient descent.
func (t *Trainer) SGD(lr float32) *Trainer {
	return t.Optimizer("sgd", map[string]float64{"lr": float64(lr)})
}

// Momentum selects SGD with momentum.
func (t *Trainer) Momentum(lr, momentum float32) *Trainer {
	return t.Optimizer("momentum", map[string]float64{"lr": float64(lr), "momentum": float64(momentum)})
}

// Adam selects Adam with default betas.
func (t *Trainer) Adam(lr float32) *Trainer {
	return t.Optimizer("adam", map[string]float64{"lr": float64(lr)})
}

// Adadelta selects Adadelta with default rho and epsilon.
func (t *Trainer) Adadelta(lr float32) *Trainer {
	return t.Optimizer("adadelta", map[string]float64{"lr": float64(lr)})
}

// Metric adds m to training (as the loss when m.Loss is set) or, once
// validation is configured, to validation.
func (t *Trainer) Metric(m Metric) *Trainer {
	switch {
	case t.valid != nil:
		t.valid.metrics = append(t.valid.metrics, m)
	case m.Loss:
		t.loss = &m
	default:
		t.metrics = append(t.metrics, m)
	}
	return t
}

// CrossEntropy adds the cross-entropy loss.
func (t *Trainer) CrossEntropy() *Trainer { return t.Metric(CrossEntropyLoss()) }

// MSE adds the mean squared error.
func (t *Trainer) MSE() *Trainer { return t.Metric(MSELoss()) }

// BinaryCrossEntropy adds the binary cross-entropy.
func (t *Trainer) BinaryCrossEntropy() *Trainer { return t.Metric(BinaryCrossEntropyLoss()) }

// Accuracy adds classification accuracy.
func (t *Trainer) Accuracy() *Trainer { return t.Metric(AccuracyMetric()) }

// Validate evaluates on separate data after every epoch.
func (t *Trainer) Validate(gold any, data ...any) *Trainer {
	raws, err := block.Coerce(data...)
	if err != nil {
		return t.fail(fmt.Errorf("validation data: %w", err))
	}
	g, err := tensor.FromAny(gold)
	if err != nil {
		return t.fail(fmt.Errorf("validation gold: %w", err))
	}
	t.valid = &validation{data: t.setup.Model.Conform(raws), gold: g}
	return t
}

// SplitValidate holds out one in splits training examples for validation,
// the last of every group or, with random, a seeded random subset.
func (t *Trainer) SplitValidate(splits int, random bool) *Trainer {
	if splits < 2 {
		return t.fail(fmt.Errorf("%w: split validation needs at least 2 splits, got %d", ErrConfig, splits))
	}
	t.valid = &validation{splits: splits, random: random}
	return t
}

// AutoValidate holds out a random fifth of the training data.
func (t *Trainer) AutoValidate() *Trainer { return t.SplitValidate(5, true) }

// Regularize adds an L2 penalty w * sum(regmul * p²) over all parameters.
func (t *Trainer) Regularize(w float32) *Trainer {
	t.regularize = w
	return t
}

// ClipGradNorm rescales the gradients whenever their global L2 norm
// exceeds n.
func (t *Trainer) ClipGradNorm(n float32) *Trainer {
	t.clipNorm = n
	return t
}

// Batches sets the number of batches per epoch.
func (t *Trainer) Batches(n int) *Trainer {
	if n < 1 {
		return t.fail(fmt.Errorf("%w: %d batches", ErrConfig, n))
	}
	t.batches = n
	return t
}

// Epochs sets the total number of epochs, counting resumed ones.
func (t *Trainer) Epochs(n int) *Trainer {
	if n < 0 {
		return t.fail(fmt.Errorf("%w: %d epochs", ErrConfig, n))
	}
	t.epochs = n
	return t
}

// Seed sets the seed of shuffling and random validation splits.
func (t *Trainer) Seed(s uint64) *Trainer {
	t.seed = s
	return t
}

// DecayLR multiplies the learning rate by factor after every epoch from
// epoch after on. A zero factor stops learning from that epoch.
func (t *Trainer) DecayLR(after int, factor float32) *Trainer {
	t.decay, t.decayAfter, t.decayFactor = true, after, factor
	return t
}

// History returns the results recorded so far.
func (t *Trainer) History() History { return t.history }

// Epoch returns the number of completed epochs.
func (t *Trainer) Epoch() int { return t.epoch }

// Optim returns the optimizer once Run has created it.
func (t *Trainer) Optim() optim.Optimizer { return t.opt }

// compiled holds the functions of one Run.
type compiled struct {
	grad  *graph.GradFunction
	eval  *graph.Function
	valid []Metric
}

func (t *Trainer) compile() (*compiled, error) {
	if t.loss == nil {
		return nil, ErrNoLoss
	}
	m := t.setup.Model
	pred, gold := m.Output(), t.setup.Gold
	inputs := append(append([]graph.Var(nil), m.Inputs()...), gold)
	params := m.Params()

	c := &compiled{}
	var total graph.Var
	extra := []graph.Var{}
	validOuts := []graph.Var{}
	err := graph.Try(func() {
		data := t.loss.Fn(pred, gold)
		total = data
		if t.regularize != 0 {
			g := pred.Graph()
			for _, p := range params {
				if p.RegMul() == 0 {
					continue
				}
				total = total.Add(g.Param(p).Pow(2).SumAll().Scale(t.regularize * p.RegMul()))
			}
		}
		extra = append(extra, data)
		for _, mt := range t.metrics {
			extra = append(extra, mt.Fn(pred, gold))
		}
		if t.valid != nil {
			c.valid = t.valid.metrics
			if len(c.valid) == 0 {
				c.valid = []Metric{*t.loss}
			}
			for _, mt := range c.valid {
				validOuts = append(validOuts, mt.Fn(pred, gold))
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("train %s: %w", m.Block().Name(), err)
	}
	if c.grad, err = graph.CompileGrad(inputs, total, params, extra, graph.WithBackend(m.Backend())); err != nil {
		return nil, err
	}
	if len(validOuts) > 0 {
		if c.eval, err = graph.Compile(inputs, validOuts, graph.WithBackend(m.Backend())); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Run trains for the remaining epochs and returns the history. It stops
// with ctx's error when ctx is cancelled between batches.
func (t *Trainer) Run(ctx context.Context) (History, error) {
	if t.err != nil {
		return t.history, t.err
	}
	log := ctxlog.FromContext(ctx)
	name := t.setup.Model.Block().Name()

	n, err := rows(t.setup.GoldData, t.setup.Data)
	if err != nil {
		return t.history, err
	}
	trainIdx := make([]int, n)
	for i := range trainIdx {
		trainIdx[i] = i
	}
	var validData []*tensor.RawTensor
	var validGold *tensor.RawTensor
	if v := t.valid; v != nil {
		if v.splits > 0 {
			var validIdx []int
			trainIdx, validIdx = split(n, v.splits, v.random, t.seed)
			validData, validGold = gather(t.setup.Data, validIdx), takeRows(t.setup.GoldData, validIdx)
		} else {
			if _, err := rows(v.gold, v.data); err != nil {
				return t.history, fmt.Errorf("validation: %w", err)
			}
			validData, validGold = v.data, v.gold
		}
		if len(trainIdx) == 0 {
			return t.history, fmt.Errorf("%w: nothing left to train on", ErrData)
		}
	}

	c, err := t.compile()
	if err != nil {
		return t.history, err
	}
	if t.opt == nil {
		if t.opt, err = optim.New(t.optName, c.grad.Params(), t.optHP); err != nil {
			return t.history, err
		}
		if t.optState != nil {
			if err := t.opt.LoadStateDict(t.optState); err != nil {
				return t.history, fmt.Errorf("resume optimizer: %w", err)
			}
			t.optState = nil
		}
	}
	log.Debug("training", "model", name, "params", len(c.grad.Params()),
		"examples", len(trainIdx), "optimizer", t.opt.Name(), "epochs", t.epochs)

	for t.epoch < t.epochs {
		start := time.Now()
		epoch := t.epoch
		if t.decay && epoch >= t.decayAfter && epoch > 0 {
			t.opt.SetLR(t.opt.LR() * t.decayFactor)
		}
		trainErr, metrics, err := t.runEpoch(ctx, c, trainIdx)
		if err != nil {
			return t.history, err
		}
		t.history.Train = append(t.history.Train, trainErr)
		t.history.record("train."+t.loss.Name, trainErr)
		for i, mt := range t.metrics {
			t.history.record("train."+mt.Name, metrics[i])
		}
		attrs := []any{"model", name, "epoch", epoch + 1, "train", trainErr}

		if c.eval != nil {
			vals, err := evaluate(c.eval, validData, validGold, t.batches)
			if err != nil {
				return t.history, fmt.Errorf("validate epoch %d: %w", epoch+1, err)
			}
			t.history.Valid = append(t.history.Valid, vals[0])
			for i, mt := range c.valid {
				t.history.record("valid."+mt.Name, vals[i])
				attrs = append(attrs, "valid."+mt.Name, vals[i])
			}
		}
		t.epoch++
		attrs = append(attrs, "lr", t.opt.LR(), "elapsed", time.Since(start).Round(time.Millisecond))
		log.Info("epoch", attrs...)
	}
	return t.history, nil
}

// runEpoch performs one pass over the shuffled training examples and
// returns the mean loss and the mean training metrics.
func (t *Trainer) runEpoch(ctx context.Context, c *compiled, idx []int) (float64, []float64, error) {
	log := ctxlog.FromContext(ctx)
	perm := rng(t.seed, streamShuffle, t.epoch).Perm(len(idx))
	order := make([]int, len(idx))
	for i, p := range perm {
		order[i] = idx[p]
	}

	var lossSum float64
	sums := make([]float64, len(t.metrics))
	params := c.grad.Params()
	for b, r := range batchRanges(len(order), t.batches) {
		if err := ctx.Err(); err != nil {
			return 0, nil, err
		}
		sel := order[r[0]:r[1]]
		args := append(gather(t.setup.Data, sel), takeRows(t.setup.GoldData, sel))
		res, err := c.grad.Run(args...)
		if err != nil {
			return 0, nil, fmt.Errorf("epoch %d batch %d: %w", t.epoch+1, b, err)
		}
		loss := float64(res.Outputs[0].AsFloat32()[0])
		if math.IsNaN(loss) {
			return 0, nil, fmt.Errorf("epoch %d batch %d: loss is NaN", t.epoch+1, b)
		}
		if t.clipNorm > 0 {
			clipGrads(res.Grads, t.clipNorm)
		}
		t.opt.Step(res.Grads)
		if err := constrain(params); err != nil {
			return 0, nil, fmt.Errorf("epoch %d batch %d: %w", t.epoch+1, b, err)
		}
		t.step++

		w := float64(len(sel))
		lossSum += loss * w
		for i := range sums {
			sums[i] += float64(res.Outputs[1+i].AsFloat32()[0]) * w
		}
		log.Debug("batch", "epoch", t.epoch+1, "batch", b, "loss", loss)
	}
	for i := range sums {
		sums[i] /= float64(len(order))
	}
	return lossSum / float64(len(order)), sums, nil
}

// evaluate returns the example-weighted means of fn's outputs over data.
func evaluate(fn *graph.Function, data []*tensor.RawTensor, gold *tensor.RawTensor, batches int) ([]float64, error) {
	n := gold.Shape()[0]
	sums := make([]float64, len(fn.Outputs()))
	for _, r := range batchRanges(n, batches) {
		sel := make([]int, 0, r[1]-r[0])
		for i := r[0]; i < r[1]; i++ {
			sel = append(sel, i)
		}
		outs, err := fn.Run(append(gather(data, sel), takeRows(gold, sel))...)
		if err != nil {
			return nil, err
		}
		for i, o := range outs {
			sums[i] += float64(o.AsFloat32()[0]) * float64(len(sel))
		}
	}
	for i := range sums {
		sums[i] /= float64(n)
	}
	return sums, nil
}

// clipGrads rescales grads in place so that their global L2 norm is at
// most maxNorm.
func clipGrads(grads []*tensor.RawTensor, maxNorm float32) {
	var sq float64
	for _, g := range grads {
		if g == nil {
			continue
		}
		d := g.AsFloat32()
		nrm := float64(blas32.Nrm2(blas32.Vector{N: len(d), Inc: 1, Data: d}))
		sq += nrm * nrm
	}
	norm := float32(math.Sqrt(sq))
	if norm <= maxNorm {
		return
	}
	scale := maxNorm / norm
	for _, g := range grads {
		if g == nil {
			continue
		}
		d := g.AsFloat32()
		blas32.Scal(scale, blas32.Vector{N: len(d), Inc: 1, Data: d})
	}
}

func constrain(params []*param.Parameter) error {
	for _, p := range params {
		if err := p.Constrain(); err != nil {
			return err
		}
	}
	return nil
}
