package nn

import (
	"fmt"

	"github.com/born-ml/teafacto/internal/block"
	"github.com/born-ml/teafacto/internal/graph"
	"github.com/born-ml/teafacto/internal/param"
	"github.com/born-ml/teafacto/internal/tensor"
)

// State transfer modes between encoder and decoder.
const (
	StateTransNone     = ""
	StateTransIdentity = "identity"
	StateTransLinear   = "linear"
)

// DecoderConfig describes a SeqDecoder.
//
// CtxDim is the size of the encoder outputs attended over. With InConcat
// the previous attention summary is appended to every decoder input; with
// OutConcat the readout sees [h; summary] instead of the summary alone.
// StateTrans initializes the top cell's output state from the encoder's
// last state: "identity" copies it (sizes must agree), "linear" maps it
// through a tanh Linear layer.
type DecoderConfig struct {
	Name       string          `json:"name,omitempty"`
	Embedding  EmbeddingConfig `json:"embedding"`
	Layers     []CellConfig    `json:"layers"`
	CtxDim     int             `json:"ctxdim"`
	AttDim     int             `json:"attdim"`
	OutVocab   int             `json:"outvocab"`
	InConcat   bool            `json:"inconcat,omitempty"`
	OutConcat  bool            `json:"outconcat,omitempty"`
	StateTrans string          `json:"statetrans,omitempty"`
}

// SeqDecoder is an attention decoder. Apply runs it teacher-forced: given
// the decoder input tokens (usually the gold output shifted right behind a
// start token), the encoder outputs and their mask, it returns per-step
// output distributions [batch, time, outvocab]. Generate decodes greedily.
type SeqDecoder struct {
	cfg     DecoderConfig
	emb     *Embedding
	cells   []Cell
	att     *Attention
	readout *Linear
	trans   *Linear
}

// NewSeqDecoder declares the decoder's parameters in reg.Sub(cfg.Name).
func NewSeqDecoder(reg *param.Registry, cfg DecoderConfig) (*SeqDecoder, error) {
	if cfg.Name == "" {
		cfg.Name = "decoder"
	}
	if len(cfg.Layers) == 0 || cfg.CtxDim <= 0 || cfg.OutVocab <= 0 {
		return nil, fmt.Errorf("%w: decoder %s needs layers, ctxdim and outvocab", ErrConfig, cfg.Name)
	}
	sub := reg.Sub(cfg.Name)
	d := &SeqDecoder{cfg: cfg}

	var err error
	if cfg.Embedding.Name == "" {
		cfg.Embedding.Name = "emb"
	}
	if d.emb, err = NewEmbedding(sub, cfg.Embedding); err != nil {
		return nil, err
	}
	prev := d.emb.OutDim()
	if cfg.InConcat {
		prev += cfg.CtxDim
	}
	for i, cc := range cfg.Layers {
		if cc.InDim == 0 {
			cc.InDim = prev
		}
		if cc.InDim != prev {
			return nil, fmt.Errorf("%w: decoder %s layer %d takes %d inputs, previous gives %d",
				ErrConfig, cfg.Name, i, cc.InDim, prev)
		}
		if cc.Name == "" {
			cc.Name = fmt.Sprintf("l%d", i)
		}
		cfg.Layers[i] = cc
		c, err := NewCell(sub, cc)
		if err != nil {
			return nil, fmt.Errorf("decoder %s layer %d: %w", cfg.Name, i, err)
		}
		d.cells = append(d.cells, c)
		prev = c.OutDim()
	}
	top := prev

	attDim := cfg.AttDim
	if attDim == 0 {
		attDim = top
	}
	if d.att, err = NewAttention(sub, AttentionConfig{Name: "att", CtxDim: cfg.CtxDim, CritDim: top, AttDim: attDim}); err != nil {
		return nil, err
	}
	outDim := cfg.CtxDim
	if cfg.OutConcat {
		outDim += top
	}
	if d.readout, err = NewLinear(sub, LinearConfig{Name: "out", InDim: outDim, Dim: cfg.OutVocab, Activation: ActSoftmax}); err != nil {
		return nil, err
	}

	switch cfg.StateTrans {
	case StateTransNone:
	case StateTransIdentity:
		if cfg.CtxDim != top {
			return nil, fmt.Errorf("%w: decoder %s identity state transfer from %d to %d",
				ErrConfig, cfg.Name, cfg.CtxDim, top)
		}
	case StateTransLinear:
		if d.trans, err = NewLinear(sub, LinearConfig{Name: "trans", InDim: cfg.CtxDim, Dim: top, Activation: ActTanh}); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: decoder %s state transfer %q", ErrConfig, cfg.Name, cfg.StateTrans)
	}
	d.cfg = cfg
	return d, nil
}

func (d *SeqDecoder) Name() string { return d.cfg.Name }
func (d *SeqDecoder) Kind() string { return "seqdecoder" }
func (d *SeqDecoder) Config() any  { return d.cfg }

// OutVocab returns the size of the output vocabulary.
func (d *SeqDecoder) OutVocab() int { return d.cfg.OutVocab }

// Params collects the embedding, cell, attention, readout and state
// transfer parameters.
func (d *SeqDecoder) Params() []*param.Parameter {
	ps := block.Collect(d.emb, d.att, d.readout)
	for _, c := range d.cells {
		ps = append(ps, c.Params()...)
	}
	if d.trans != nil {
		ps = append(ps, d.trans.Params()...)
	}
	return ps
}

// initStates returns [summary, cell states...] for a batch like ref.
func (d *SeqDecoder) initStates(ref, last graph.Var) []graph.Var {
	states := []graph.Var{graph.ZerosLike(ref, d.cfg.CtxDim)}
	for i, c := range d.cells {
		for j, dim := range c.StateDims() {
			s := graph.ZerosLike(ref, dim)
			if i == len(d.cells)-1 && j == 0 && last.Valid() {
				switch d.cfg.StateTrans {
				case StateTransIdentity:
					s = last
				case StateTransLinear:
					s = block.Call(d.trans, last)
				}
			}
			states = append(states, s)
		}
	}
	return states
}

// step runs the cells on the embedded input x and attends over ctx. It
// returns the readout input and the next states.
func (d *SeqDecoder) step(x, ctx, mask graph.Var, states []graph.Var) (graph.Var, []graph.Var) {
	summary, rest := states[0], states[1:]
	in := x
	if d.cfg.InConcat {
		in = graph.Concat(-1, x, summary)
	}
	next := []graph.Var{{}}
	for _, c := range d.cells {
		n := len(c.StateDims())
		var cs []graph.Var
		in, cs = c.Step(in, rest[:n])
		rest = rest[n:]
		next = append(next, cs...)
	}
	h := in
	summary = d.att.Attend(ctx, h, mask)
	next[0] = summary
	out := summary
	if d.cfg.OutConcat {
		out = graph.Concat(-1, h, summary)
	}
	return out, next
}

// Decode runs the decoder teacher-forced over the input tokens outseq
// ([batch, time]) and returns output distributions [batch, time, outvocab].
// last is the encoder summary used for state transfer; it may be invalid.
func (d *SeqDecoder) Decode(outseq, ctx, mask, last graph.Var) graph.Var {
	x := block.Call(d.emb, outseq)
	step := func(xt graph.Var, states []graph.Var) graph.Step {
		out, next := d.step(xt, ctx, mask, states)
		return graph.Step{Out: out, States: next}
	}
	outs, _ := graph.Scan(step, x, d.initStates(ctx, last))
	return block.Call(d.readout, outs)
}

// Apply takes (outseq, ctx[, mask[, last]]).
func (d *SeqDecoder) Apply(args ...graph.Var) graph.Var {
	return d.Decode(args[0], args[1], optional(args, 2), optional(args, 3))
}

// Generate decodes greedily for at most maxLen steps, starting from the
// token start. A sequence is finished once it has emitted end; later
// positions hold 0, and decoding stops early when every sequence in the
// batch has finished. The result is [batch, steps] int32.
func (d *SeqDecoder) Generate(ctx, mask, last graph.Var, start, end int32, maxLen int) graph.Var {
	first := graph.ZerosLike(ctx).AddScalar(float32(start)).Cast(tensor.Int32)
	states0 := append([]graph.Var{first, graph.ZerosLike(ctx)}, d.initStates(ctx, last)...)

	step := func(_ graph.Var, states []graph.Var) graph.Step {
		prev, done := states[0], states[1]
		x := block.Call(d.emb, prev)
		out, next := d.step(x, ctx, mask, states[2:])
		tok := block.Call(d.readout, out).Argmax()
		emitted := tok.Cast(tensor.Float32).Mul(done.RSub(1)).Cast(tensor.Int32)
		finished := done.Add(tok.EqualScalar(float32(end))).Clip(0, 1)
		return graph.Step{
			Out:    emitted,
			States: append([]graph.Var{tok, finished}, next...),
			Stop:   finished,
		}
	}
	tokens, _ := graph.Scan(step, graph.Var{}, states0, graph.Steps(maxLen))
	return tokens
}
