package nn

import (
	"fmt"

	"github.com/born-ml/teafacto/internal/block"
	"github.com/born-ml/teafacto/internal/graph"
	"github.com/born-ml/teafacto/internal/param"
)

// SeqEncDecConfig describes a SeqEncDec.
type SeqEncDecConfig struct {
	Name    string           `json:"name,omitempty"`
	Encoder SeqEncoderConfig `json:"encoder"`
	Decoder DecoderConfig    `json:"decoder"`
}

// SeqEncDec is an attention-based encoder-decoder. Apply takes the input
// tokens [batch, intime] and the decoder input tokens [batch, outtime] and
// returns output distributions [batch, outtime, outvocab].
type SeqEncDec struct {
	cfg SeqEncDecConfig
	enc *SeqEncoder
	dec *SeqDecoder
}

// NewSeqEncDec declares the encoder and decoder in reg.Sub(cfg.Name). The
// decoder's context size defaults to the encoder's output size.
func NewSeqEncDec(reg *param.Registry, cfg SeqEncDecConfig) (*SeqEncDec, error) {
	if cfg.Name == "" {
		cfg.Name = "encdec"
	}
	sub := reg.Sub(cfg.Name)
	enc, err := NewSeqEncoder(sub, cfg.Encoder)
	if err != nil {
		return nil, fmt.Errorf("encdec %s: %w", cfg.Name, err)
	}
	if cfg.Decoder.CtxDim == 0 {
		cfg.Decoder.CtxDim = enc.OutDim()
	}
	if cfg.Decoder.CtxDim != enc.OutDim() {
		return nil, fmt.Errorf("%w: encdec %s decoder attends over %d, encoder gives %d",
			ErrConfig, cfg.Name, cfg.Decoder.CtxDim, enc.OutDim())
	}
	dec, err := NewSeqDecoder(sub, cfg.Decoder)
	if err != nil {
		return nil, fmt.Errorf("encdec %s: %w", cfg.Name, err)
	}
	cfg.Encoder, cfg.Decoder = enc.cfg, dec.cfg
	return &SeqEncDec{cfg: cfg, enc: enc, dec: dec}, nil
}

// SimpleConfig gives the few sizes SimpleSeqEncDecAtt needs.
type SimpleConfig struct {
	InVocab   int `json:"invocab"`
	InEmbDim  int `json:"inembdim"` // 0 encodes inputs one-hot
	OutVocab  int `json:"outvocab"`
	OutEmbDim int `json:"outembdim"` // 0 encodes decoder inputs one-hot
	EncDim    int `json:"encdim"`
	DecDim    int `json:"decdim"`
	AttDim    int `json:"attdim"`
	// Bidir runs the encoder in both directions; its outputs are then 2*EncDim.
	Bidir      bool     `json:"bidir,omitempty"`
	Cell       CellType `json:"cell,omitempty"` // default GRU
	InConcat   bool     `json:"inconcat,omitempty"`
	OutConcat  bool     `json:"outconcat,omitempty"`
	StateTrans string   `json:"statetrans,omitempty"`
}

// SimpleSeqEncDecAtt builds a one-layer encoder-decoder with attention.
//
// Example:
//
//	m, err := nn.SimpleSeqEncDecAtt(param.NewRegistry(1), nn.SimpleConfig{
//		InVocab: 20, InEmbDim: 16, OutVocab: 20, OutEmbDim: 16,
//		EncDim: 32, DecDim: 32, AttDim: 16, InConcat: true,
//	})
func SimpleSeqEncDecAtt(reg *param.Registry, c SimpleConfig) (*SeqEncDec, error) {
	cell := c.Cell
	if cell == "" {
		cell = CellGRU
	}
	return NewSeqEncDec(reg, SeqEncDecConfig{
		Encoder: SeqEncoderConfig{
			Embedding: EmbeddingConfig{InDim: c.InVocab, Dim: c.InEmbDim},
			Layers:    []LayerConfig{{Cell: CellConfig{Type: cell, Dim: c.EncDim}, Bidir: c.Bidir}},
		},
		Decoder: DecoderConfig{
			Embedding:  EmbeddingConfig{InDim: c.OutVocab, Dim: c.OutEmbDim},
			Layers:     []CellConfig{{Type: cell, Dim: c.DecDim}},
			AttDim:     c.AttDim,
			OutVocab:   c.OutVocab,
			InConcat:   c.InConcat,
			OutConcat:  c.OutConcat,
			StateTrans: c.StateTrans,
		},
	})
}

func (m *SeqEncDec) Name() string               { return m.cfg.Name }
func (m *SeqEncDec) Params() []*param.Parameter { return block.Collect(m.enc, m.dec) }
func (m *SeqEncDec) Kind() string               { return "seqencdec" }
func (m *SeqEncDec) Config() any                { return m.cfg }

// Encoder returns the encoder.
func (m *SeqEncDec) Encoder() *SeqEncoder { return m.enc }

// Decoder returns the decoder.
func (m *SeqEncDec) Decoder() *SeqDecoder { return m.dec }

// Apply takes (inseq, outseq).
func (m *SeqEncDec) Apply(args ...graph.Var) graph.Var {
	if len(args) < 2 {
		panic(&graph.Error{Op: m.Name(), Err: fmt.Errorf("%w: want input and decoder tokens, got %d args",
			graph.ErrArity, len(args))})
	}
	last, ctx, mask := m.enc.Encode(args[0])
	return m.dec.Decode(args[1], ctx, mask, last)
}

// Generator returns a block mapping input tokens [batch, intime] to
// greedily decoded tokens [batch, <=maxLen].
func (m *SeqEncDec) Generator(start, end int32, maxLen int) block.Block {
	return block.Func(m.Name()+".generate", func(args ...graph.Var) graph.Var {
		last, ctx, mask := m.enc.Encode(args[0])
		return m.dec.Generate(ctx, mask, last, start, end, maxLen)
	}, m.Params()...)
}
