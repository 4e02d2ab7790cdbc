// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/born-ml/teafacto/graph"
	"github.com/born-ml/teafacto/internal/nn"
	"github.com/born-ml/teafacto/tensor"
)

// Sentinel errors returned by block constructors.
var (
	ErrConfig            = nn.ErrConfig
	ErrUnknownActivation = nn.ErrUnknownActivation
	ErrUnknownCell       = nn.ErrUnknownCell
)

// Layers

// Linear is a fully connected layer with an optional activation.
type Linear = nn.Linear

// LinearConfig describes a Linear layer.
type LinearConfig = nn.LinearConfig

// NewLinear declares a linear layer's weights in reg.
//
// Example:
//
//	out, err := nn.NewLinear(reg, nn.LinearConfig{InDim: 32, Dim: 10, Activation: nn.ActSoftmax})
func NewLinear(reg *Registry, cfg LinearConfig) (*Linear, error) { return nn.NewLinear(reg, cfg) }

// LayerNorm normalizes the last axis.
type LayerNorm = nn.LayerNorm

// LayerNormConfig describes a LayerNorm block.
type LayerNormConfig = nn.LayerNormConfig

// NewLayerNorm declares a layer normalization's gain and bias in reg.
func NewLayerNorm(reg *Registry, cfg LayerNormConfig) (*LayerNorm, error) {
	return nn.NewLayerNorm(reg, cfg)
}

// Embedding maps indices to vectors. Index 0 maps to the zero vector.
type Embedding = nn.Embedding

// EmbeddingConfig describes an Embedding block.
type EmbeddingConfig = nn.EmbeddingConfig

// EmbeddingOption configures NewEmbedding.
type EmbeddingOption = nn.EmbeddingOption

// NewEmbedding declares an embedding table in reg.
func NewEmbedding(reg *Registry, cfg EmbeddingConfig, opts ...EmbeddingOption) (*Embedding, error) {
	return nn.NewEmbedding(reg, cfg, opts...)
}

// WithWeights initializes an embedding from a pretrained [indim, dim] table.
func WithWeights(w *tensor.RawTensor) EmbeddingOption { return nn.WithWeights(w) }

// NewOneHot returns a parameterless one-hot encoder of n classes.
func NewOneHot(name string, n int) (*Embedding, error) { return nn.NewOneHot(name, n) }

// Activations

// Activation names a nonlinearity.
type Activation = nn.Activation

// Supported activations.
const (
	ActLinear  = nn.ActLinear
	ActTanh    = nn.ActTanh
	ActSigmoid = nn.ActSigmoid
	ActReLU    = nn.ActReLU
	ActSoftmax = nn.ActSoftmax
)

// Act is a parameterless activation block.
type Act = nn.Act

// NewAct returns an activation block.
func NewAct(fn Activation) *Act { return nn.NewAct(fn) }

// NewSoftmax returns a softmax block over the last axis.
func NewSoftmax() *Act { return nn.NewSoftmax() }

// Sequential chains blocks, feeding each one's output to the next.
type Sequential = nn.Sequential

// NewSequential chains blocks under name.
func NewSequential(name string, blocks ...Block) *Sequential { return nn.NewSequential(name, blocks...) }

// Recurrence

// CellType selects a recurrent cell.
type CellType = nn.CellType

// Cell types.
const (
	CellRNU   = nn.CellRNU
	CellGRU   = nn.CellGRU
	CellIFGRU = nn.CellIFGRU
	CellLSTM  = nn.CellLSTM
)

// Cell is one step of a recurrence.
type Cell = nn.Cell

// CellConfig describes a cell.
type CellConfig = nn.CellConfig

// NewCell declares a cell's weights in reg.
func NewCell(reg *Registry, cfg CellConfig) (Cell, error) { return nn.NewCell(reg, cfg) }

// Transducer maps sequences to sequences and keeps its final states.
type Transducer = nn.Transducer

// LayerConfig describes a recurrent layer.
type LayerConfig = nn.LayerConfig

// Recurrent runs a cell over a sequence.
type Recurrent = nn.Recurrent

// BiRecurrent runs a forward and a backward cell and concatenates them.
type BiRecurrent = nn.BiRecurrent

// RecStack stacks recurrent layers.
type RecStack = nn.RecStack

// NewLayer builds a Recurrent or, with cfg.Bidir, a BiRecurrent layer.
func NewLayer(reg *Registry, cfg LayerConfig) (Transducer, error) { return nn.NewLayer(reg, cfg) }

// NewRecurrent builds a unidirectional recurrent layer.
func NewRecurrent(reg *Registry, cfg LayerConfig) (*Recurrent, error) {
	return nn.NewRecurrent(reg, cfg)
}

// NewBiRecurrent builds a bidirectional recurrent layer.
func NewBiRecurrent(reg *Registry, cfg LayerConfig) (*BiRecurrent, error) {
	return nn.NewBiRecurrent(reg, cfg)
}

// NewRecStack stacks layers; indim is the first layer's input size.
func NewRecStack(reg *Registry, name string, indim int, layers ...LayerConfig) (*RecStack, error) {
	return nn.NewRecStack(reg, name, indim, layers...)
}

// Sequence to sequence

// Attention scores a context sequence against a criterion.
type Attention = nn.Attention

// AttentionConfig describes an Attention block.
type AttentionConfig = nn.AttentionConfig

// NewAttention declares an attention generator in reg.
func NewAttention(reg *Registry, cfg AttentionConfig) (*Attention, error) {
	return nn.NewAttention(reg, cfg)
}

// Summarize weights the context [batch, time, dim] by att [batch, time].
func Summarize(ctx, att graph.Var) graph.Var { return nn.Summarize(ctx, att) }

// SeqEncoder embeds and encodes token sequences.
type SeqEncoder = nn.SeqEncoder

// SeqEncoderConfig describes a SeqEncoder.
type SeqEncoderConfig = nn.SeqEncoderConfig

// NewSeqEncoder declares an encoder in reg.
func NewSeqEncoder(reg *Registry, cfg SeqEncoderConfig) (*SeqEncoder, error) {
	return nn.NewSeqEncoder(reg, cfg)
}

// SeqDecoder is an attention decoder.
type SeqDecoder = nn.SeqDecoder

// DecoderConfig describes a SeqDecoder.
type DecoderConfig = nn.DecoderConfig

// Decoder state transfer modes.
const (
	StateTransNone     = nn.StateTransNone
	StateTransIdentity = nn.StateTransIdentity
	StateTransLinear   = nn.StateTransLinear
)

// NewSeqDecoder declares a decoder in reg.
func NewSeqDecoder(reg *Registry, cfg DecoderConfig) (*SeqDecoder, error) {
	return nn.NewSeqDecoder(reg, cfg)
}

// SeqEncDec is an attention encoder-decoder.
type SeqEncDec = nn.SeqEncDec

// SeqEncDecConfig describes a SeqEncDec.
type SeqEncDecConfig = nn.SeqEncDecConfig

// SimpleConfig gives the sizes of a one-layer encoder-decoder.
type SimpleConfig = nn.SimpleConfig

// NewSeqEncDec declares an encoder-decoder in reg.
func NewSeqEncDec(reg *Registry, cfg SeqEncDecConfig) (*SeqEncDec, error) {
	return nn.NewSeqEncDec(reg, cfg)
}

// SimpleSeqEncDecAtt builds a one-layer encoder-decoder with attention.
func SimpleSeqEncDecAtt(reg *Registry, cfg SimpleConfig) (*SeqEncDec, error) {
	return nn.SimpleSeqEncDecAtt(reg, cfg)
}
