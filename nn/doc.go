// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides neural network blocks for sequence models.
//
// # Overview
//
// This package contains:
//   - Blocks: Linear, LayerNorm, Embedding, activations, Sequential
//   - Recurrence: RNU, GRU, IFGRU and LSTM cells lifted into Recurrent,
//     BiRecurrent and RecStack layers
//   - Sequence to sequence: SeqEncoder, Attention, SeqDecoder, SeqEncDec
//   - Models: Model wraps a block with its inputs, compiles it and runs
//     predictions; Freeze and Unfreeze store and restore blocks
//
// # Basic Usage
//
//	reg := nn.NewRegistry(1)
//	encdec, err := nn.SimpleSeqEncDecAtt(reg, nn.SimpleConfig{
//		InVocab: 20, InEmbDim: 16, OutVocab: 20, OutEmbDim: 16,
//		EncDim: 32, DecDim: 32, AttDim: 16,
//	})
//	m := nn.NewModel(encdec)
//	probs, err := m.Predict(inSeqs, decoderInSeqs) // [batch, time, 20]
//
// Training is done with package train.
//
// # Parameters
//
// Blocks declare their parameters through a Registry when constructed.
// Names are scoped by block ("encdec.enc.emb.w"), initial values are drawn
// from the registry's seeded source, and each parameter carries learning
// rate and regularization multipliers plus optional constraints.
package nn
