package config

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/born-ml/teafacto/internal/block"
	"github.com/born-ml/teafacto/internal/ctxlog"
	_ "github.com/born-ml/teafacto/internal/nn" // block kinds
	"github.com/born-ml/teafacto/internal/optim"
	"github.com/born-ml/teafacto/internal/param"
	"github.com/born-ml/teafacto/internal/train"
)

func (c *Config) withDefaults() {
	if c.Logging == nil {
		c.Logging = &Logging{}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	t := c.Trainer
	if t == nil {
		return
	}
	if t.Optimizer == "" {
		t.Optimizer = "adadelta"
	}
	if t.Loss == "" {
		t.Loss = "cross_entropy"
	}
	if t.Batches == 0 {
		t.Batches = 1
	}
	if t.Epochs == 0 {
		t.Epochs = 1
	}
	if t.DecayFactor == 0 {
		t.DecayFactor = 0.5
	}
	if v := t.Validation; v != nil && v.Splits == 0 {
		v.Splits = 5
	}
}

// Validate checks names against the registered block kinds, optimizers
// and metrics, and the numeric settings against their ranges.
func (c *Config) Validate() error {
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: logging format %q", ErrInvalid, c.Logging.Format)
	}
	if !slices.Contains(block.Kinds(), c.Model.Kind) {
		return fmt.Errorf("%w: model %q: unknown kind %q (have %v)", ErrInvalid, c.Model.Name, c.Model.Kind, block.Kinds())
	}
	if c.Model.Seed < 0 {
		return fmt.Errorf("%w: model %q: negative seed", ErrInvalid, c.Model.Name)
	}
	if !c.Model.Config.Type().IsObjectType() && !c.Model.Config.Type().IsMapType() {
		return fmt.Errorf("%w: model %q: config must be an object", ErrInvalid, c.Model.Name)
	}
	t := c.Trainer
	if t == nil {
		return nil
	}
	if !slices.Contains(optim.Names(), t.Optimizer) {
		return fmt.Errorf("%w: trainer: unknown optimizer %q (have %v)", ErrInvalid, t.Optimizer, optim.Names())
	}
	loss, err := train.MetricByName(t.Loss)
	if err != nil {
		return fmt.Errorf("%w: trainer loss: %w", ErrInvalid, err)
	}
	if !loss.Loss {
		return fmt.Errorf("%w: trainer: %q is not a loss", ErrInvalid, t.Loss)
	}
	metrics := slices.Clone(t.Metrics)
	if t.Validation != nil {
		metrics = append(metrics, t.Validation.Metrics...)
	}
	for _, name := range metrics {
		if _, err := train.MetricByName(name); err != nil {
			return fmt.Errorf("%w: trainer metric: %w", ErrInvalid, err)
		}
	}
	switch {
	case t.LR < 0:
		return fmt.Errorf("%w: trainer: negative lr", ErrInvalid)
	case t.Batches < 1:
		return fmt.Errorf("%w: trainer: batches must be at least 1", ErrInvalid)
	case t.Epochs < 1:
		return fmt.Errorf("%w: trainer: epochs must be at least 1", ErrInvalid)
	case t.Seed < 0:
		return fmt.Errorf("%w: trainer: negative seed", ErrInvalid)
	case t.Regularize < 0 || t.ClipGradNorm < 0 || t.DecayAfter < 0:
		return fmt.Errorf("%w: trainer: regularize, clip_grad_norm and decay_after must not be negative", ErrInvalid)
	case t.Validation != nil && t.Validation.Splits < 2:
		return fmt.Errorf("%w: trainer: validation needs at least 2 splits", ErrInvalid)
	}
	return nil
}

// Logger builds the configured logger writing to w.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	return ctxlog.New(c.Logging.Level, c.Logging.Format, w)
}

// ModelConfig returns the model's config object as JSON.
func (c *Config) ModelConfig() ([]byte, error) {
	raw, err := ctyjson.Marshal(c.Model.Config, c.Model.Config.Type())
	if err != nil {
		return nil, fmt.Errorf("model %q config: %w", c.Model.Name, err)
	}
	return raw, nil
}

// Block builds the configured block with parameters seeded by the model
// seed.
func (c *Config) Block() (block.Block, error) {
	raw, err := c.ModelConfig()
	if err != nil {
		return nil, err
	}
	return block.Build(param.NewRegistry(uint64(c.Model.Seed)), c.Model.Kind, raw) //nolint:gosec // validated non-negative
}

// Configure applies the trainer settings to tr: the optimizer, the loss
// and metrics, validation, regularization, clipping, batching and decay.
func (c *Config) Configure(tr *train.Trainer) (*train.Trainer, error) {
	t := c.Trainer
	if t == nil {
		return nil, fmt.Errorf("%w: no trainer block", ErrInvalid)
	}
	hp := make(map[string]float64, len(t.Hyper)+1)
	for k, v := range t.Hyper {
		hp[k] = v
	}
	if t.LR > 0 {
		hp["lr"] = t.LR
	}
	tr = tr.Optimizer(t.Optimizer, hp)

	loss, err := train.MetricByName(t.Loss)
	if err != nil {
		return nil, err
	}
	tr = tr.Metric(loss)
	for _, name := range t.Metrics {
		m, err := train.MetricByName(name)
		if err != nil {
			return nil, err
		}
		tr = tr.Metric(m)
	}
	if v := t.Validation; v != nil {
		tr = tr.SplitValidate(v.Splits, v.Random)
		for _, name := range v.Metrics {
			m, err := train.MetricByName(name)
			if err != nil {
				return nil, err
			}
			tr = tr.Metric(m)
		}
	}

	tr = tr.Batches(t.Batches).Epochs(t.Epochs).Seed(uint64(t.Seed)) //nolint:gosec // validated non-negative
	if t.Regularize > 0 {
		tr = tr.Regularize(float32(t.Regularize))
	}
	if t.ClipGradNorm > 0 {
		tr = tr.ClipGradNorm(float32(t.ClipGradNorm))
	}
	if t.DecayAfter > 0 {
		tr = tr.DecayLR(t.DecayAfter, float32(t.DecayFactor))
	}
	return tr, nil
}
