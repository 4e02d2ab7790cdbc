// Package nn implements the neural network blocks of the framework.
//
// This package provides building blocks for sequence models:
//   - Linear, LayerNorm, Embedding (and one-hot encoding), activations
//   - recurrent cells (RNU, GRU, IFGRU, LSTM) lifted into layers with
//     graph.Scan: Recurrent, BiRecurrent, RecStack
//   - SeqEncoder, additive Attention, SeqDecoder and the SeqEncDec model
//   - Sequential for chaining blocks
//
// Every block declares its parameters through a param.Registry when it is
// constructed and builds its expression on graph.Vars in Apply. Blocks
// implement block.Configurable, so models can be frozen and rebuilt by kind.
package nn

import (
	"encoding/json"

	"github.com/born-ml/teafacto/internal/block"
	"github.com/born-ml/teafacto/internal/param"
)

// register makes a constructor taking a config of type C available to
// block.Unfreeze under kind.
func register[C any, B block.Block](kind string, build func(*param.Registry, C) (B, error)) {
	block.RegisterKind(kind, func(reg *param.Registry, raw json.RawMessage) (block.Block, error) {
		var cfg C
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, err
		}
		b, err := build(reg, cfg)
		if err != nil {
			return nil, err
		}
		return b, nil
	})
}

func init() {
	register("act", func(_ *param.Registry, c actConfig) (*Act, error) { return NewAct(c.Fn), nil })
	register("linear", NewLinear)
	register("layernorm", NewLayerNorm)
	register("embedding", func(reg *param.Registry, c EmbeddingConfig) (*Embedding, error) {
		return NewEmbedding(reg, c)
	})
	register("recurrent", NewLayer)
	register("recstack", func(reg *param.Registry, c recStackConfig) (*RecStack, error) {
		return NewRecStack(reg, c.Name, 0, c.Layers...)
	})
	register("attention", NewAttention)
	register("seqencoder", NewSeqEncoder)
	register("seqdecoder", NewSeqDecoder)
	register("seqencdec", NewSeqEncDec)
	register("seqencdec.simple", SimpleSeqEncDecAtt)
	block.RegisterKind("sequential", buildSequential)
}
