// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package graph builds symbolic tensor expressions and compiles them into
// callable functions with optional gradients.
//
// # Overview
//
// A Graph holds inputs, parameters, constants and operations. Var is a
// handle to one node; its methods add operations:
//
//	g := graph.New()
//	x := g.Input("x", tensor.Float32, -1, 3)
//	y := x.Dot(g.Param(w)).Tanh().Sum(1, false)
//	fn, err := graph.Compile([]graph.Var{x}, []graph.Var{y})
//	out, err := fn.Run(batch)
//
// Recurrences are expressed with Scan, which traces a step function once
// and iterates it over the time axis, or for a fixed number of steps:
//
//	out, final := graph.Scan(func(x graph.Var, s []graph.Var) graph.Step {
//		h := x.Dot(g.Param(w)).Add(s[0].Dot(g.Param(u))).Tanh()
//		return graph.Step{Out: h, States: []graph.Var{h}}
//	}, seq, []graph.Var{h0})
//
// Gradients of a scalar loss with respect to parameters come from
// CompileGrad; they flow back through Scan steps.
//
// # Errors
//
// Operation constructors panic with *Error when shapes or arities do not
// fit. Compile and Try turn those panics into errors that wrap the
// sentinels below.
package graph
