package nn

import (
	"fmt"

	"github.com/born-ml/teafacto/internal/graph"
	"github.com/born-ml/teafacto/internal/param"
	"github.com/born-ml/teafacto/internal/tensor"
)

// AttentionConfig describes an Attention block.
type AttentionConfig struct {
	Name      string  `json:"name,omitempty"`
	CtxDim    int     `json:"ctxdim"`
	CritDim   int     `json:"critdim"`
	AttDim    int     `json:"attdim"`
	InitRange float64 `json:"initrange,omitempty"`
}

// Attention is additive (linear-gate) attention over a context sequence.
//
// Given a context [batch, time, ctxdim] and a criterion [batch, critdim],
// the generator scores every position:
//
//	score_t = v · tanh(W · [ctx_t; crit])
//
// normalizes the scores with a softmax over time and zeroes masked
// positions (renormalizing the rest). The consumer sums the context
// weighted by these scores into a summary [batch, ctxdim].
//
// Parameters:
//   - w: [ctxdim+critdim, attdim]; rows [0, ctxdim) see the context
//   - v: [attdim, 1]
type Attention struct {
	cfg  AttentionConfig
	w, v *param.Parameter
}

// NewAttention declares the attention parameters in reg.
func NewAttention(reg *param.Registry, cfg AttentionConfig) (*Attention, error) {
	if cfg.Name == "" {
		cfg.Name = "attention"
	}
	if cfg.CtxDim <= 0 || cfg.CritDim <= 0 || cfg.AttDim <= 0 {
		return nil, fmt.Errorf("%w: attention %s dims ctx=%d crit=%d att=%d",
			ErrConfig, cfg.Name, cfg.CtxDim, cfg.CritDim, cfg.AttDim)
	}
	if cfg.InitRange == 0 {
		cfg.InitRange = 0.1
	}
	sub := reg.Sub(cfg.Name)
	a := &Attention{
		cfg: cfg,
		w:   sub.New("w", tensor.Shape{cfg.CtxDim + cfg.CritDim, cfg.AttDim}, param.Uniform(cfg.InitRange)),
		v:   sub.New("v", tensor.Shape{cfg.AttDim, 1}, param.Uniform(cfg.InitRange)),
	}
	if err := reg.Err(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Attention) Name() string               { return a.cfg.Name }
func (a *Attention) Params() []*param.Parameter { return []*param.Parameter{a.w, a.v} }
func (a *Attention) Kind() string               { return "attention" }
func (a *Attention) Config() any                { return a.cfg }

// Weights returns the attention distribution [batch, time] of crit over ctx.
// mask may be invalid.
func (a *Attention) Weights(ctx, crit, mask graph.Var) graph.Var {
	g := ctx.Graph()
	w := g.Param(a.w)
	fromCtx := ctx.Dot(w.Slice(0, 0, a.cfg.CtxDim))
	fromCrit := crit.Dot(w.Slice(0, a.cfg.CtxDim, a.cfg.CtxDim+a.cfg.CritDim)).ExpandDims(1)
	scores := fromCtx.Add(fromCrit).Tanh().Dot(g.Param(a.v)).Squeeze(-1)

	att := scores.Softmax()
	if mask.Valid() {
		att = att.Mul(mask)
		att = att.Div(att.Sum(-1, true).AddScalar(1e-6))
	}
	return att
}

// Summarize returns the sum of ctx weighted by att: [batch, ctxdim].
func Summarize(ctx, att graph.Var) graph.Var {
	return ctx.Mul(att.ExpandDims(-1)).Sum(1, false)
}

// Attend returns the attention summary of ctx for crit.
func (a *Attention) Attend(ctx, crit, mask graph.Var) graph.Var {
	return Summarize(ctx, a.Weights(ctx, crit, mask))
}

// Apply takes (ctx, crit[, mask]) and returns the summary.
func (a *Attention) Apply(args ...graph.Var) graph.Var {
	return a.Attend(args[0], args[1], optional(args, 2))
}
