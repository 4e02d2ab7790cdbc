package nn

import (
	"fmt"

	"github.com/born-ml/teafacto/internal/block"
	"github.com/born-ml/teafacto/internal/graph"
	"github.com/born-ml/teafacto/internal/param"
)

// SeqEncoderConfig describes a SeqEncoder.
type SeqEncoderConfig struct {
	Name      string          `json:"name,omitempty"`
	Embedding EmbeddingConfig `json:"embedding"`
	Layers    []LayerConfig   `json:"layers"`
	// ReturnAll makes Apply return every position instead of the last state.
	ReturnAll bool `json:"returnall,omitempty"`
}

// SeqEncoder embeds integer sequences [batch, time] and runs a stack of
// recurrent layers over them. Index 0 is padding: it is masked out of the
// recurrence.
type SeqEncoder struct {
	cfg   SeqEncoderConfig
	emb   *Embedding
	stack *RecStack
}

// NewSeqEncoder declares the encoder's parameters in reg.Sub(cfg.Name).
func NewSeqEncoder(reg *param.Registry, cfg SeqEncoderConfig) (*SeqEncoder, error) {
	if cfg.Name == "" {
		cfg.Name = "encoder"
	}
	if len(cfg.Layers) == 0 {
		return nil, fmt.Errorf("%w: encoder %s has no layers", ErrConfig, cfg.Name)
	}
	sub := reg.Sub(cfg.Name)
	if cfg.Embedding.Name == "" {
		cfg.Embedding.Name = "emb"
	}
	emb, err := NewEmbedding(sub, cfg.Embedding)
	if err != nil {
		return nil, err
	}
	stack, err := NewRecStack(sub, "rnn", emb.OutDim(), cfg.Layers...)
	if err != nil {
		return nil, err
	}
	cfg.Layers = stack.cfgs
	return &SeqEncoder{cfg: cfg, emb: emb, stack: stack}, nil
}

func (e *SeqEncoder) Name() string               { return e.cfg.Name }
func (e *SeqEncoder) Params() []*param.Parameter { return block.Collect(e.emb, e.stack) }
func (e *SeqEncoder) Kind() string               { return "seqencoder" }
func (e *SeqEncoder) Config() any                { return e.cfg }

// OutDim returns the size of the encoder outputs.
func (e *SeqEncoder) OutDim() int { return e.stack.OutDim() }

// Stack returns the recurrent layers.
func (e *SeqEncoder) Stack() *RecStack { return e.stack }

// Encode returns the last state [batch, outdim], all outputs
// [batch, time, outdim] and the padding mask [batch, time] of idx.
func (e *SeqEncoder) Encode(idx graph.Var) (last, all, mask graph.Var) {
	mask = idx.Mask()
	x := block.Call(e.emb, idx)
	all, last = e.stack.Transduce(x, mask)
	return last, all, mask
}

// Apply returns the last state, or all outputs with ReturnAll.
func (e *SeqEncoder) Apply(args ...graph.Var) graph.Var {
	last, all, _ := e.Encode(args[0])
	if e.cfg.ReturnAll {
		return all
	}
	return last
}
