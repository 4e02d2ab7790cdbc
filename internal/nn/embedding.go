package nn

import (
	"fmt"

	"github.com/born-ml/teafacto/internal/graph"
	"github.com/born-ml/teafacto/internal/param"
	"github.com/born-ml/teafacto/internal/tensor"
)

// EmbeddingConfig describes an Embedding block.
//
// TrainFrac scales the learning rate of the vectors (0 means 1); Fixed
// freezes them. Dim 0 turns the block into a one-hot encoder of size InDim
// without parameters.
type EmbeddingConfig struct {
	Name      string  `json:"name,omitempty"`
	InDim     int     `json:"indim"`
	Dim       int     `json:"dim"`
	TrainFrac float32 `json:"trainfrac,omitempty"`
	Fixed     bool    `json:"fixed,omitempty"`
	InitRange float64 `json:"initrange,omitempty"`
}

// EmbeddingOption configures NewEmbedding.
type EmbeddingOption func(*embeddingOptions)

type embeddingOptions struct {
	weights *tensor.RawTensor
}

// WithWeights initializes the vectors from a pretrained [indim, dim] matrix.
// Row 0 is ignored: index 0 always maps to the zero vector.
func WithWeights(w *tensor.RawTensor) EmbeddingOption {
	return func(o *embeddingOptions) { o.weights = w }
}

// Embedding is a lookup table that maps integer indices to dense vectors.
//
// Architecture:
//   - Weight: [indim, dim] parameter ("<name>.w")
//   - Apply: indices [batch, ...] -> vectors [batch, ..., dim]
//   - Backward: gradients scatter-add to weight rows
//
// Index 0 is the padding and unknown-word id: it always maps to the zero
// vector and its row never receives a gradient.
//
// Example:
//
//	emb, err := nn.NewEmbedding(reg, nn.EmbeddingConfig{InDim: 10000, Dim: 256})
//	vectors := block.Call(emb, idx) // [batch, seq, 256]
type Embedding struct {
	cfg  EmbeddingConfig
	w    *param.Parameter
	mask *tensor.RawTensor // [indim, 1], row 0 zero
}

// NewEmbedding declares an Embedding block's weights in reg.
func NewEmbedding(reg *param.Registry, cfg EmbeddingConfig, opts ...EmbeddingOption) (*Embedding, error) {
	if cfg.Name == "" {
		cfg.Name = "embedding"
	}
	if cfg.InDim <= 0 || cfg.Dim < 0 {
		return nil, fmt.Errorf("%w: embedding %s dims %d -> %d", ErrConfig, cfg.Name, cfg.InDim, cfg.Dim)
	}
	e := &Embedding{cfg: cfg}
	if cfg.Dim == 0 {
		return e, nil
	}

	var o embeddingOptions
	for _, opt := range opts {
		opt(&o)
	}
	shape := tensor.Shape{cfg.InDim, cfg.Dim}
	initRange := cfg.InitRange
	if initRange == 0 {
		initRange = 0.1
	}
	var winit param.Initializer = param.Uniform(initRange)
	if o.weights != nil {
		if !o.weights.Shape().Equal(shape) {
			return nil, fmt.Errorf("%w: embedding %s weights %v, want %v",
				param.ErrShapeMismatch, cfg.Name, o.weights.Shape(), shape)
		}
		winit = param.Value(o.weights)
	}
	lrmul := cfg.TrainFrac
	if lrmul == 0 {
		lrmul = 1
	}
	if cfg.Fixed {
		lrmul = 0
	}
	e.w = reg.Sub(cfg.Name).New("w", shape, winit, param.WithLRMul(lrmul))
	if err := reg.Err(); err != nil {
		return nil, err
	}

	e.mask = tensor.Full(tensor.Shape{cfg.InDim, 1}, 1)
	e.mask.AsFloat32()[0] = 0
	return e, nil
}

// NewOneHot returns a parameterless block encoding indices as one-hot
// vectors of length n.
func NewOneHot(name string, n int) (*Embedding, error) {
	return NewEmbedding(nil, EmbeddingConfig{Name: name, InDim: n})
}

// Name returns the block name.
func (e *Embedding) Name() string { return e.cfg.Name }

// Params returns the weight, or nothing for one-hot encoding.
func (e *Embedding) Params() []*param.Parameter {
	if e.w == nil {
		return nil
	}
	return []*param.Parameter{e.w}
}

// Kind implements block.Configurable.
func (e *Embedding) Kind() string { return "embedding" }

// Config implements block.Configurable.
func (e *Embedding) Config() any { return e.cfg }

// InDim returns the number of indices.
func (e *Embedding) InDim() int { return e.cfg.InDim }

// OutDim returns the vector size.
func (e *Embedding) OutDim() int {
	if e.cfg.Dim == 0 {
		return e.cfg.InDim
	}
	return e.cfg.Dim
}

// Weight returns the weight parameter, or nil for one-hot encoding.
func (e *Embedding) Weight() *param.Parameter { return e.w }

// Apply looks up the vectors of the integer indices in args[0].
func (e *Embedding) Apply(args ...graph.Var) graph.Var {
	idx := args[0]
	if e.w == nil {
		return idx.OneHot(e.cfg.InDim).Mul(idx.Mask().ExpandDims(-1))
	}
	g := idx.Graph()
	return g.Param(e.w).Mul(g.Const(e.mask)).Rows(idx)
}
