// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package graph

import (
	"github.com/born-ml/teafacto/internal/graph"
	"github.com/born-ml/teafacto/internal/param"
	"github.com/born-ml/teafacto/tensor"
)

// Graph is an expression graph under construction.
type Graph = graph.Graph

// Var is a handle to a node of a Graph.
type Var = graph.Var

// New returns an empty graph.
func New() *Graph { return graph.New() }

// Concat joins vs along axis.
func Concat(axis int, vs ...Var) Var { return graph.Concat(axis, vs...) }

// ZerosLike returns zeros with ref's leading dimension followed by dims.
func ZerosLike(ref Var, dims ...int) Var { return graph.ZerosLike(ref, dims...) }

// Params returns every parameter reachable from roots, in first-use order.
func Params(roots ...Var) []*param.Parameter { return graph.Params(roots...) }

// Inputs returns the inputs reachable from roots in creation order.
func Inputs(roots ...Var) []Var { return graph.Inputs(roots...) }

// Recurrence

// Step is the result of one step of a Scan.
type Step = graph.Step

// StepFunc computes one step from the current input and the states.
type StepFunc = graph.StepFunc

// ScanOption configures Scan.
type ScanOption = graph.ScanOption

// Scan iterates fn over the time axis of seq starting from init and
// returns the stacked outputs and the final states.
func Scan(fn StepFunc, seq Var, init []Var, opts ...ScanOption) (Var, []Var) {
	return graph.Scan(fn, seq, init, opts...)
}

// Steps scans n times without an input sequence.
func Steps(n int) ScanOption { return graph.Steps(n) }

// Reverse scans from the last time step to the first.
func Reverse() ScanOption { return graph.Reverse() }

// Compilation

// Function is a compiled graph.
type Function = graph.Function

// GradFunction is a compiled graph that also returns parameter gradients.
type GradFunction = graph.GradFunction

// GradResult holds the loss, the gradients and the extra outputs of a
// GradFunction run.
type GradResult = graph.GradResult

// CompileOption configures Compile and CompileGrad.
type CompileOption = graph.CompileOption

// WithBackend selects the backend kernels run on.
func WithBackend(b tensor.Backend) CompileOption { return graph.WithBackend(b) }

// Compile turns the subgraph between inputs and outputs into a Function.
func Compile(inputs, outputs []Var, opts ...CompileOption) (*Function, error) {
	return graph.Compile(inputs, outputs, opts...)
}

// CompileGrad compiles loss and its gradients with respect to wrt. extra
// outputs are computed alongside.
func CompileGrad(inputs []Var, loss Var, wrt []*param.Parameter, extra []Var, opts ...CompileOption) (*GradFunction, error) {
	return graph.CompileGrad(inputs, loss, wrt, extra, opts...)
}

// Errors

// Error is the panic value of graph constructors.
type Error = graph.Error

// Try runs fn and returns a construction panic as an error.
func Try(fn func()) error { return graph.Try(fn) }

// Sentinel errors wrapped by Error.
var (
	ErrShape         = graph.ErrShape
	ErrDType         = graph.ErrDType
	ErrArity         = graph.ErrArity
	ErrUnbound       = graph.ErrUnbound
	ErrForeign       = graph.ErrForeign
	ErrEmptySequence = graph.ErrEmptySequence
	ErrExec          = graph.ErrExec
)
