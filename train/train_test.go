// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package train_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/teafacto/internal/ctxlog"
	"github.com/born-ml/teafacto/nn"
	"github.com/born-ml/teafacto/train"
)

func TestTrain_SaveAndResume(t *testing.T) {
	ctx := ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	lin, err := nn.NewLinear(nn.NewRegistry(3), nn.LinearConfig{InDim: 2, Dim: 2, Activation: nn.ActSoftmax})
	require.NoError(t, err)
	x := [][]float32{{1, 0}, {0, 1}, {1, 0.2}, {0.1, 1}}
	y := []int32{0, 1, 0, 1}

	tr, err := train.Train(nn.NewModel(lin), y, x)
	require.NoError(t, err)
	hist, err := tr.SGD(0.5).CrossEntropy().Accuracy().Epochs(30).Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 30, hist.Epochs())
	assert.Less(t, hist.Train[29], hist.Train[0])
	assert.Len(t, hist.Metrics["train.accuracy"], 30)

	var buf bytes.Buffer
	require.NoError(t, tr.Save(&buf))
	cp, err := train.LoadCheckpoint(&buf)
	require.NoError(t, err)
	assert.Equal(t, 30, cp.Epoch)
	assert.Equal(t, "sgd", cp.OptimizerType)

	resumed, err := train.Train(nn.NewModel(cp.Block), y, x)
	require.NoError(t, err)
	hist, err = resumed.Resume(cp).CrossEntropy().Epochs(35).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 35, hist.Epochs())

	_, err = train.MetricByName("f1")
	require.ErrorIs(t, err, train.ErrUnknownMetric)
}
