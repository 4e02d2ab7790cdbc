package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/born-ml/teafacto/internal/backend/cpu"
	"github.com/born-ml/teafacto/internal/tensor"
)

// env holds node values for one evaluation level. Scan steps evaluate in a
// child env whose misses fall through to the enclosing one.
type env struct {
	vals   []*tensor.RawTensor
	parent *env
	scans  map[NodeID]*scanRecord
}

func newEnv(n int, parent *env) *env {
	return &env{vals: make([]*tensor.RawTensor, n), parent: parent}
}

func (e *env) get(id NodeID) *tensor.RawTensor {
	for c := e; c != nil; c = c.parent {
		if v := c.vals[id]; v != nil {
			return v
		}
	}
	return nil
}

func (e *env) scan(id NodeID) *scanRecord {
	for c := e; c != nil; c = c.parent {
		if r, ok := c.scans[id]; ok {
			return r
		}
	}
	return nil
}

// scanRecord keeps what a scan produced during one evaluation.
type scanRecord struct {
	outputs []*tensor.RawTensor // output sequence, then final states
	steps   []*env              // per executed step, kept for gradients
	times   []int               // time index of each executed step
	length  int                 // time steps available
}

type executor struct {
	g      *Graph
	b      tensor.Backend
	record bool
}

func (ex *executor) eval(ids []NodeID, e *env) {
	for _, id := range ids {
		ex.evalNode(id, e)
	}
}

func (ex *executor) evalNode(id NodeID, e *env) {
	n := ex.g.nodes[id]
	var out *tensor.RawTensor
	switch n.kind {
	case kindInput, kindStepArg:
		if e.get(id) == nil {
			fail("run", ErrUnbound, "%s %q has no value", n.kind, n.name)
		}
		return
	case kindParam:
		out = n.param.Value()
	case kindConst:
		out = n.value
	case kindOp:
		out = ex.forward(id, n, e)
	case kindScan:
		ex.runScan(id, n, e)
		return
	case kindScanOut:
		rec := e.scan(n.parents[0])
		out = rec.outputs[n.index]
	}
	if !compatible(n.shape, out.Shape()) {
		fail("run", ErrShape, "node %v produced %v", Var{g: ex.g, id: id}, out.Shape())
	}
	e.vals[id] = out
}

func (ex *executor) forward(id NodeID, n *node, e *env) *tensor.RawTensor {
	b := ex.b
	in := func(i int) *tensor.RawTensor { return e.get(n.parents[i]) }

	switch n.op {
	case OpIdentity:
		return in(0)
	case OpAdd:
		return b.Add(in(0), in(1))
	case OpSub:
		return b.Sub(in(0), in(1))
	case OpMul:
		return b.Mul(in(0), in(1))
	case OpDiv:
		return b.Div(in(0), in(1))
	case OpNeg:
		return b.Neg(in(0))
	case OpAddScalar:
		return b.AddScalar(in(0), n.scalar)
	case OpMulScalar:
		return b.MulScalar(in(0), n.scalar)
	case OpPowScalar:
		return b.PowScalar(in(0), n.scalar)
	case OpExp:
		return b.Exp(in(0))
	case OpLog:
		return b.Log(in(0))
	case OpSqrt:
		return b.Sqrt(in(0))
	case OpTanh:
		return b.Tanh(in(0))
	case OpSigmoid:
		return b.Sigmoid(in(0))
	case OpReLU:
		return b.ReLU(in(0))
	case OpSoftmax:
		return b.Softmax(in(0))
	case OpClip:
		return b.Clip(in(0), n.scalar, n.hi)
	case OpDot:
		return dot(b, in(0), in(1))
	case OpSum:
		return b.SumDim(in(0), n.axis, n.keep)
	case OpMean:
		return b.MeanDim(in(0), n.axis, n.keep)
	case OpSumAll:
		return b.Sum(in(0))
	case OpMeanAll:
		x := in(0)
		if x.NumElements() == 0 {
			return tensor.Scalar(0)
		}
		return b.MulScalar(b.Sum(x), 1/float32(x.NumElements()))
	case OpReshape:
		return b.Reshape(in(0), n.ints)
	case OpTranspose:
		return b.Transpose(in(0), n.ints...)
	case OpExpand:
		x := in(0)
		shape := append(x.Shape()[:n.axis].Clone(), 1)
		return b.Reshape(x, append(shape, x.Shape()[n.axis:]...))
	case OpSqueeze:
		x := in(0)
		return b.Reshape(x, append(x.Shape()[:n.axis].Clone(), x.Shape()[n.axis+1:]...))
	case OpSlice:
		return b.Slice(in(0), n.axis, n.ints[0], n.ints[1])
	case OpIndex:
		x := in(0)
		s := b.Slice(x, n.axis, n.ints[0], n.ints[0]+1)
		shape := append(x.Shape()[:n.axis].Clone(), x.Shape()[n.axis+1:]...)
		return b.Reshape(s, shape)
	case OpConcat:
		parts := make([]*tensor.RawTensor, len(n.parents))
		for i := range parts {
			parts[i] = in(i)
		}
		return b.Cat(parts, n.axis)
	case OpRows:
		return b.Gather(in(0), in(1))
	case OpPick:
		return b.Pick(in(0), in(1))
	case OpOneHot:
		return b.OneHot(in(0), n.ints[0])
	case OpArgmax:
		return b.Argmax(in(0))
	case OpEqualScalar:
		return b.EqualScalar(in(0), n.scalar)
	case OpCast:
		return b.Cast(in(0), tensor.DataType(n.ints[0]))
	case OpZeros:
		shape := append(tensor.Shape{in(0).Shape()[0]}, n.ints...)
		return tensor.Zeros(shape, tensor.Float32)
	default:
		fail("run", ErrArity, "no kernel for %s (node %d)", n.op, id)
		return nil
	}
}

// dot computes (..., K) · (K, N) -> (..., N) through a 2-D matmul.
func dot(b tensor.Backend, x, w *tensor.RawTensor) *tensor.RawTensor {
	xs := x.Shape()
	k := xs[len(xs)-1]
	out := b.MatMul(b.Reshape(x, tensor.Shape{-1, k}), w)
	return b.Reshape(out, append(xs[:len(xs)-1].Clone(), w.Shape()[1]))
}

func (ex *executor) runScan(id NodeID, n *node, e *env) {
	info := n.scan
	b := ex.b

	var xs *tensor.RawTensor
	length := info.steps
	if info.seq != noNode {
		seq := e.get(info.seq)
		length = seq.Shape()[1]
		if length == 0 {
			fail("scan", ErrEmptySequence, "sequence of shape %v", seq.Shape())
		}
		// (batch, time, ...) -> (time, batch, ...)
		perm := make([]int, seq.NDim())
		for i := range perm {
			perm[i] = i
		}
		perm[0], perm[1] = 1, 0
		xs = b.Transpose(seq, perm...)
		if info.steps > 0 && info.steps < length {
			length = info.steps
			xs = b.Slice(xs, 0, 0, length)
		}
	}

	states := make([]*tensor.RawTensor, len(info.init))
	for i, iv := range info.init {
		states[i] = e.get(iv)
	}

	rec := &scanRecord{length: length}
	outs := make([]*tensor.RawTensor, length)
	for k := range length {
		t := k
		if info.reverse {
			t = length - 1 - k
		}
		se := newEnv(len(ex.g.nodes), e)
		if xs != nil {
			xt := b.Slice(xs, 0, t, t+1)
			se.vals[info.xArg] = b.Reshape(xt, xs.Shape()[1:])
		}
		for i, sa := range info.stateArgs {
			se.vals[sa] = states[i]
		}

		ex.eval(info.body, se)

		outs[t] = se.get(info.out)
		for i, nx := range info.next {
			states[i] = se.get(nx)
		}
		rec.times = append(rec.times, t)
		if ex.record {
			rec.steps = append(rec.steps, se)
		}
		if info.stop != noNode && allNonZero(se.get(info.stop)) {
			break
		}
	}

	executed := outs
	if !info.reverse {
		executed = outs[:len(rec.times)]
	}
	parts := make([]*tensor.RawTensor, len(executed))
	for t, o := range executed {
		// (batch, out...) -> (batch, 1, out...)
		shape := append(tensor.Shape{o.Shape()[0], 1}, o.Shape()[1:]...)
		parts[t] = b.Reshape(o, shape)
	}
	rec.outputs = append([]*tensor.RawTensor{b.Cat(parts, 1)}, states...)

	if e.scans == nil {
		e.scans = make(map[NodeID]*scanRecord)
	}
	e.scans[id] = rec
}

func allNonZero(x *tensor.RawTensor) bool {
	for _, v := range x.Float32s() {
		if v == 0 {
			return false
		}
	}
	return true
}

// CompileOption configures Compile and CompileGrad.
type CompileOption func(*compileConfig)

type compileConfig struct {
	backend tensor.Backend
}

// WithBackend selects the backend kernels run on. The default is the CPU backend.
func WithBackend(b tensor.Backend) CompileOption {
	return func(c *compileConfig) { c.backend = b }
}

// Function is a compiled mapping from input values to output values. It
// reads parameter values at call time, so it stays valid while parameters
// are trained.
type Function struct {
	g       *Graph
	backend tensor.Backend
	inputs  []Var
	outputs []Var
	plan    []NodeID
}

// Compile prepares outputs for evaluation from inputs. Every input reachable
// from outputs must be listed, otherwise ErrUnbound is returned.
func Compile(inputs, outputs []Var, opts ...CompileOption) (fn *Function, err error) {
	err = Try(func() { fn = compile(inputs, outputs, opts) })
	return fn, err
}

func compile(inputs, outputs []Var, opts []CompileOption) *Function {
	cfg := compileConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.backend == nil {
		cfg.backend = cpu.New()
	}

	if len(outputs) == 0 {
		fail("compile", ErrArity, "no outputs")
	}
	g := graphOf(outputs)
	for _, v := range append(append([]Var(nil), inputs...), outputs...) {
		if !v.Valid() || v.g != g {
			fail("compile", ErrForeign, "%v", v)
		}
	}

	bound := make(map[NodeID]bool, len(inputs))
	for _, in := range inputs {
		if !in.IsInput() {
			fail("compile", ErrArity, "%v is not an input", in)
		}
		if bound[in.id] {
			fail("compile", ErrArity, "input %v listed twice", in)
		}
		bound[in.id] = true
	}
	var missing []string
	for _, in := range Inputs(outputs...) {
		if !bound[in.id] {
			missing = append(missing, fmt.Sprintf("%q", in.Name()))
		}
	}
	if len(missing) > 0 {
		fail("compile", ErrUnbound, "%s", strings.Join(missing, ", "))
	}

	marked := g.reach(outputs)
	var plan []NodeID
	for id, n := range g.nodes {
		if marked[id] && n.owner == noNode {
			plan = append(plan, NodeID(id))
		}
	}

	return &Function{
		g:       g,
		backend: cfg.backend,
		inputs:  append([]Var(nil), inputs...),
		outputs: append([]Var(nil), outputs...),
		plan:    plan,
	}
}

// Inputs returns the inputs in call order.
func (f *Function) Inputs() []Var { return f.inputs }

// Outputs returns the outputs in result order.
func (f *Function) Outputs() []Var { return f.outputs }

// Run evaluates the outputs for args, given in the order of the inputs.
func (f *Function) Run(args ...*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	e, err := f.run(args, false)
	if err != nil {
		return nil, err
	}
	out := make([]*tensor.RawTensor, len(f.outputs))
	for i, v := range f.outputs {
		out[i] = e.get(v.id)
	}
	return out, nil
}

func (f *Function) bind(args []*tensor.RawTensor) (*env, error) {
	if len(args) != len(f.inputs) {
		return nil, fmt.Errorf("graph: run: %w: %d arguments for %d inputs", ErrArity, len(args), len(f.inputs))
	}
	e := newEnv(len(f.g.nodes), nil)
	for i, in := range f.inputs {
		a := args[i]
		if a == nil {
			return nil, fmt.Errorf("graph: run: %w: argument %d is nil", ErrUnbound, i)
		}
		if a.DType() != in.DType() {
			return nil, fmt.Errorf("graph: run: %w: input %q wants %s, got %s", ErrDType, in.Name(), in.DType(), a.DType())
		}
		if !compatible(in.Shape(), a.Shape()) {
			return nil, fmt.Errorf("graph: run: %w: input %q wants %v, got %v", ErrShape, in.Name(), in.Shape(), a.Shape())
		}
		e.vals[in.id] = a
	}
	return e, nil
}

func (f *Function) run(args []*tensor.RawTensor, record bool) (e *env, err error) {
	e, err = f.bind(args)
	if err != nil {
		return nil, err
	}
	ex := &executor{g: f.g, b: f.backend, record: record}
	err = guard(func() { ex.eval(f.plan, e) })
	return e, err
}

// guard converts panics raised by kernels into errors.
func guard(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			var ge *Error
			if e, ok := r.(error); ok && errors.As(e, &ge) {
				err = ge
				return
			}
			err = fmt.Errorf("graph: %w: %v", ErrExec, r)
		}
	}()
	fn()
	return nil
}
