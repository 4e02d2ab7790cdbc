// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package train fits models to data.
//
// # Basic Usage
//
// A Trainer is configured fluently and run with a context carrying the
// logger (see ctxlog in the examples):
//
//	tr, err := train.Train(model, gold, inSeqs, decoderInSeqs)
//	hist, err := tr.Adam(0.01).
//		CrossEntropy().Accuracy().
//		SplitValidate(5, true).Accuracy().
//		Batches(32).Epochs(20).
//		Run(ctx)
//
// Metrics added before validation is configured are tracked on the
// training data; metrics added after it on the validation data.
//
// # Checkpoints
//
// Trainer.Save writes the model, the optimizer state and the history.
// LoadCheckpoint and Trainer.Resume continue a run exactly where it
// stopped.
package train
