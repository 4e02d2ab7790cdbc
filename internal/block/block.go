// Package block implements composable computation units on top of the graph
// package, the model lifecycle (build, predict, train, reset), and freezing
// blocks to the serialization container.
package block

import (
	"fmt"

	"github.com/born-ml/teafacto/internal/graph"
	"github.com/born-ml/teafacto/internal/param"
)

// Block is a composable unit of computation.
//
// Parameters are declared when the block is constructed, through a
// param.Registry, and reported by Params. Apply builds the block's
// expression on symbolic arguments; every parameter it uses must be one of
// Params (or a child block's).
type Block interface {
	Name() string
	Params() []*param.Parameter
	Apply(args ...graph.Var) graph.Var
}

// Call applies b to args inside a scope named after b. The returned node is
// always created in that scope: when Apply hands back a node that existed
// before the call, an identity node is added.
func Call(b Block, args ...graph.Var) graph.Var {
	g := graphOf(args)
	if g == nil {
		panic(&graph.Error{Op: "call " + b.Name(), Err: ErrNoInput})
	}
	g.PushScope(b.Name())
	defer g.PopScope()

	start := graph.NodeID(g.Len())
	out := b.Apply(args...)
	if out.Valid() && out.ID() < start {
		out = out.Identity()
	}
	return out
}

func graphOf(args []graph.Var) *graph.Graph {
	for _, a := range args {
		if a.Valid() {
			return a.Graph()
		}
	}
	return nil
}

type funcBlock struct {
	name   string
	params []*param.Parameter
	fn     func(args ...graph.Var) graph.Var
}

// Func turns a function into a block. params lists the parameters fn uses.
func Func(name string, fn func(args ...graph.Var) graph.Var, params ...*param.Parameter) Block {
	return &funcBlock{name: name, params: params, fn: fn}
}

func (f *funcBlock) Name() string                      { return f.name }
func (f *funcBlock) Params() []*param.Parameter        { return f.params }
func (f *funcBlock) Apply(args ...graph.Var) graph.Var { return f.fn(args...) }
func (f *funcBlock) String() string                    { return fmt.Sprintf("Func(%s)", f.name) }

// Collect concatenates the parameters of blocks, dropping repeats.
func Collect(blocks ...Block) []*param.Parameter {
	seen := make(map[*param.Parameter]bool)
	var out []*param.Parameter
	for _, b := range blocks {
		if b == nil {
			continue
		}
		for _, p := range b.Params() {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}
