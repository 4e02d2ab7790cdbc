// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"io"

	"github.com/born-ml/teafacto/graph"
	"github.com/born-ml/teafacto/internal/block"
	"github.com/born-ml/teafacto/tensor"
)

// Block is the base interface for all neural network components: a name,
// the parameters it owns and the expression it builds on its arguments.
//
// Blocks compose by calling each other inside Apply:
//
//	func (m *myBlock) Apply(args ...graph.Var) graph.Var {
//		return nn.Call(m.out, nn.Call(m.enc, args[0]))
//	}
type Block = block.Block

// Configurable is a block that can be frozen: it reports a registered kind
// and a JSON-serializable config that rebuilds it.
type Configurable = block.Configurable

// Call applies b to args in a graph scope named after b.
func Call(b Block, args ...graph.Var) graph.Var { return block.Call(b, args...) }

// Func turns fn into a block owning params.
func Func(name string, fn func(args ...graph.Var) graph.Var, params ...*Parameter) Block {
	return block.Func(name, fn, params...)
}

// Collect concatenates the parameters of blocks, skipping duplicates.
func Collect(blocks ...Block) []*Parameter { return block.Collect(blocks...) }

// Model

// Model binds a block to input placeholders and compiles it.
type Model = block.Model

// ModelOption configures NewModel.
type ModelOption = block.ModelOption

// InputSpec describes one model input.
type InputSpec = block.InputSpec

// NewModel wraps b. The model is built on first use from the shapes of the
// data it is given, or explicitly with Build.
//
// Example:
//
//	m := nn.NewModel(clf)
//	if err := m.Build(nn.Spec("x", tensor.Float32, -1, 4)); err != nil { ... }
//	probs, err := m.Predict(x)
func NewModel(b Block, opts ...ModelOption) *Model { return block.NewModel(b, opts...) }

// WithBackend runs the model on backend.
func WithBackend(b tensor.Backend) ModelOption { return block.WithBackend(b) }

// Spec describes an input named name; -1 marks an unknown dimension.
func Spec(name string, dtype tensor.DataType, dims ...int) InputSpec {
	return block.Spec(name, dtype, dims...)
}

// Freezing

// Freeze writes b's kind, config and parameter values to w.
func Freeze(w io.Writer, b Block) error { return block.Freeze(w, b) }

// Unfreeze rebuilds a block written by Freeze.
func Unfreeze(r io.Reader) (Block, error) { return block.Unfreeze(r) }

// Builder rebuilds a block of one kind from its JSON config.
type Builder = block.Builder

// RegisterKind makes a custom block kind available to Unfreeze.
func RegisterKind(kind string, build Builder) { block.RegisterKind(kind, build) }

// Kinds lists the registered block kinds.
func Kinds() []string { return block.Kinds() }
