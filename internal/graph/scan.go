package graph

import (
	"github.com/born-ml/teafacto/internal/tensor"
)

// Step is what a transition function returns for one time step.
type Step struct {
	// Out is the emitted value, collected over time into the output sequence.
	Out Var
	// States are the new states; count, dtypes and shapes must match the
	// states the step received.
	States []Var
	// Stop optionally ends iteration after this step once every element of
	// it is non-zero.
	Stop Var
}

// StepFunc is a per-step transition. x is the current input slice, or an
// invalid Var when scanning without a sequence; states are the previous states.
type StepFunc func(x Var, states []Var) Step

// ScanOption configures Scan.
type ScanOption func(*scanConfig)

type scanConfig struct {
	steps   int
	reverse bool
}

// Steps runs the scan for n steps. Without an input sequence it is
// required; with one it caps the number of time steps consumed.
func Steps(n int) ScanOption {
	return func(c *scanConfig) { c.steps = n }
}

// Reverse iterates the sequence from the last time step to the first. The
// outputs stay aligned with the input positions.
func Reverse() ScanOption {
	return func(c *scanConfig) { c.reverse = true }
}

type scanInfo struct {
	seq       NodeID
	init      []NodeID
	xArg      NodeID
	stateArgs []NodeID
	out       NodeID
	next      []NodeID
	stop      NodeID
	body      []NodeID
	captured  []NodeID
	steps     int
	reverse   bool
}

// Scan lifts fn into a sequence transducer.
//
// seq has shape (batch, time, feature...); it is iterated along time, and fn
// receives slices of shape (batch, feature...). The emitted outputs, each
// (batch, out...), are returned as (batch, time, out...) together with the
// final states. fn is traced once; nodes it references from outside become
// parents of the scan node exactly once, however many steps run.
//
// When fn returns a different number of states than init holds, Scan fails
// with ErrArity.
func Scan(fn StepFunc, seq Var, init []Var, opts ...ScanOption) (Var, []Var) {
	var cfg scanConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	g := graphOf(append([]Var{seq}, init...))
	if g == nil {
		fail("scan", ErrArity, "neither a sequence nor initial states given")
	}
	if !seq.Valid() && cfg.steps <= 0 {
		fail("scan", ErrArity, "no sequence and no step count")
	}
	for _, v := range init {
		if !v.Valid() || v.g != g {
			fail("scan", ErrForeign, "initial state %v", v)
		}
	}

	info := &scanInfo{seq: noNode, xArg: noNode, stop: noNode, steps: cfg.steps, reverse: cfg.reverse}
	start := NodeID(len(g.nodes))

	var x Var
	if seq.Valid() {
		if seq.g != g {
			fail("scan", ErrForeign, "sequence %v", seq)
		}
		s := seq.Shape()
		if len(s) < 2 {
			fail("scan", ErrShape, "sequence must be (batch, time, ...), got %v", s)
		}
		xShape := append(tensor.Shape{s[0]}, s[2:]...)
		x = g.add(&node{kind: kindStepArg, name: "x_t", dtype: seq.DType(), shape: xShape})
		info.seq = seq.id
		info.xArg = x.id
	}
	states := make([]Var, len(init))
	for i, v := range init {
		states[i] = g.add(&node{kind: kindStepArg, name: "state", dtype: v.DType(), shape: v.Shape().Clone()})
		info.init = append(info.init, v.id)
		info.stateArgs = append(info.stateArgs, states[i].id)
	}

	step := fn(x, states)

	if !step.Out.Valid() {
		fail("scan", ErrArity, "step returned no output")
	}
	if len(step.States) != len(init) {
		fail("scan", ErrArity, "step returned %d states, %d initial states given", len(step.States), len(init))
	}
	for i, s := range step.States {
		if !s.Valid() || s.g != g {
			fail("scan", ErrForeign, "state %d", i)
		}
		if s.DType() != init[i].DType() || !compatible(s.Shape(), init[i].Shape()) {
			fail("scan", ErrShape, "state %d changes from %s%v to %s%v",
				i, init[i].DType(), init[i].Shape(), s.DType(), s.Shape())
		}
		info.next = append(info.next, s.id)
	}
	if step.Out.NDim() == 0 {
		fail("scan", ErrShape, "step output must have a batch axis")
	}
	info.out = step.Out.id
	if step.Stop.Valid() {
		if cfg.reverse {
			fail("scan", ErrArity, "stop condition on a reversed scan")
		}
		info.stop = step.Stop.id
	}

	end := NodeID(len(g.nodes))
	var candidates []NodeID
	for id := start; id < end; id++ {
		n := g.nodes[id]
		if n.owner != noNode || n.isLeaf() {
			continue
		}
		n.owner = end
		if n.kind != kindStepArg {
			candidates = append(candidates, id)
		}
	}

	// Keep only the body nodes the step results depend on.
	live := map[NodeID]bool{info.out: true}
	for _, id := range info.next {
		live[id] = true
	}
	if info.stop != noNode {
		live[info.stop] = true
	}
	for i := len(candidates) - 1; i >= 0; i-- {
		if id := candidates[i]; live[id] {
			for _, p := range g.nodes[id].parents {
				live[p] = true
			}
		}
	}
	for _, id := range candidates {
		if live[id] {
			info.body = append(info.body, id)
		}
	}

	captured := make(map[NodeID]bool)
	capture := func(id NodeID) {
		if (id < start || g.nodes[id].isLeaf()) && !captured[id] {
			captured[id] = true
			info.captured = append(info.captured, id)
		}
	}
	for _, id := range info.body {
		for _, p := range g.nodes[id].parents {
			capture(p)
		}
	}
	capture(info.out)
	for _, id := range info.next {
		capture(id)
	}
	if info.stop != noNode {
		capture(info.stop)
	}

	parents := make([]NodeID, 0, 1+len(info.init)+len(info.captured))
	if info.seq != noNode {
		parents = append(parents, info.seq)
	}
	parents = append(parents, info.init...)
	parents = append(parents, info.captured...)
	scanVar := g.add(&node{kind: kindScan, name: "scan", parents: parents, scan: info})

	outShape := step.Out.Shape()
	time := cfg.steps
	if seq.Valid() {
		time = seq.Dim(1)
		if cfg.steps > 0 && time >= 0 {
			time = min(time, cfg.steps)
		}
	}
	if info.stop != noNode {
		time = -1
	}
	seqShape := append(tensor.Shape{outShape[0], time}, outShape[1:]...)
	out := g.add(&node{kind: kindScanOut, parents: []NodeID{scanVar.id}, dtype: step.Out.DType(), shape: seqShape})

	finals := make([]Var, len(init))
	for i, v := range init {
		finals[i] = g.add(&node{
			kind: kindScanOut, parents: []NodeID{scanVar.id}, index: i + 1,
			dtype: v.DType(), shape: v.Shape().Clone(),
		})
	}
	return out, finals
}

// compatible reports whether two static shapes can describe the same tensor.
func compatible(a, b tensor.Shape) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] >= 0 && b[i] >= 0 && a[i] != b[i] {
			return false
		}
	}
	return true
}
