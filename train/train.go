// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package train

import (
	"io"

	"github.com/born-ml/teafacto/internal/block"
	"github.com/born-ml/teafacto/internal/train"
	"github.com/born-ml/teafacto/nn"
)

// Trainer runs training epochs over a model.
type Trainer = train.Trainer

// History records per-epoch losses and metrics.
type History = train.History

// Train prepares m for training on data with targets gold. The model is
// built from the data when it has not been built yet.
func Train(m *nn.Model, gold any, data ...any) (*Trainer, error) {
	return block.Train(m, train.New, gold, data...)
}

// Metrics

// Metric is a named loss or measure comparing predictions with gold.
type Metric = train.Metric

// CrossEntropyLoss is the negative log probability of the gold class;
// gold index 0 is ignored in sequences.
func CrossEntropyLoss() Metric { return train.CrossEntropyLoss() }

// MSELoss is the mean squared error.
func MSELoss() Metric { return train.MSELoss() }

// BinaryCrossEntropyLoss is the logistic loss of probabilities.
func BinaryCrossEntropyLoss() Metric { return train.BinaryCrossEntropyLoss() }

// AccuracyMetric is the share of correct argmax predictions.
func AccuracyMetric() Metric { return train.AccuracyMetric() }

// MetricByName returns a metric by name ("cross_entropy", "mse",
// "binary_cross_entropy", "accuracy").
func MetricByName(name string) (Metric, error) { return train.MetricByName(name) }

// Checkpoints

// Checkpoint is a saved training state.
type Checkpoint = train.Checkpoint

// LoadCheckpoint reads a checkpoint written by Trainer.Save.
func LoadCheckpoint(r io.Reader) (*Checkpoint, error) { return train.LoadCheckpoint(r) }

// Sentinel errors.
var (
	ErrUnknownMetric = train.ErrUnknownMetric
	ErrData          = train.ErrData
	ErrNoLoss        = train.ErrNoLoss
	ErrNotCheckpoint = train.ErrNotCheckpoint
	ErrConfig        = train.ErrConfig
)
