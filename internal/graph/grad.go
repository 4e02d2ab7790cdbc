package graph

import (
	"github.com/born-ml/teafacto/internal/param"
	"github.com/born-ml/teafacto/internal/tensor"
)

// gradState accumulates gradients for one evaluation level.
type gradState struct {
	nodes   []*node
	b       tensor.Backend
	grads   []*tensor.RawTensor
	scanOut map[NodeID][]*tensor.RawTensor
}

func newGradState(g *Graph, b tensor.Backend) *gradState {
	return &gradState{
		nodes:   g.nodes,
		b:       b,
		grads:   make([]*tensor.RawTensor, len(g.nodes)),
		scanOut: make(map[NodeID][]*tensor.RawTensor),
	}
}

// accum adds grad to the node's gradient. Integer nodes take no gradient.
func (gs *gradState) accum(id NodeID, grad *tensor.RawTensor) {
	if grad == nil || gs.nodes[id].dtype != tensor.Float32 {
		return
	}
	if prev := gs.grads[id]; prev != nil {
		gs.grads[id] = gs.b.Add(prev, grad)
		return
	}
	gs.grads[id] = grad
}

// GradFunction evaluates a loss and its gradients with respect to a fixed
// list of parameters.
type GradFunction struct {
	fn   *Function
	loss Var
	wrt  []*param.Parameter
	ids  []NodeID
}

// GradResult holds one evaluation of a GradFunction.
type GradResult struct {
	Loss    *tensor.RawTensor
	Grads   []*tensor.RawTensor // aligned with the parameters passed to CompileGrad
	Outputs []*tensor.RawTensor // values of the extra outputs
}

// CompileGrad compiles loss (and optional extra outputs) together with the
// reverse-mode gradient of loss with respect to wrt. Parameters that loss
// does not depend on receive zero gradients.
func CompileGrad(inputs []Var, loss Var, wrt []*param.Parameter, extra []Var, opts ...CompileOption) (gf *GradFunction, err error) {
	err = Try(func() {
		if loss.Valid() && loss.DType() != tensor.Float32 {
			fail("grad", ErrDType, "loss must be float32, got %s", loss.DType())
		}
		fn := compile(inputs, append([]Var{loss}, extra...), opts)
		ids := make([]NodeID, len(wrt))
		for i, p := range wrt {
			ids[i] = noNode
			if id, ok := fn.g.params[p]; ok {
				ids[i] = id
			}
		}
		gf = &GradFunction{fn: fn, loss: loss, wrt: append([]*param.Parameter(nil), wrt...), ids: ids}
	})
	return gf, err
}

// Params returns the parameters gradients are computed for.
func (gf *GradFunction) Params() []*param.Parameter { return gf.wrt }

// Run evaluates the loss, the extra outputs and the gradients for args.
func (gf *GradFunction) Run(args ...*tensor.RawTensor) (*GradResult, error) {
	f := gf.fn
	e, err := f.run(args, true)
	if err != nil {
		return nil, err
	}

	lossVal := e.get(gf.loss.id)
	gs := newGradState(f.g, f.backend)
	ex := &executor{g: f.g, b: f.backend, record: true}
	err = guard(func() {
		gs.accum(gf.loss.id, tensor.Full(lossVal.Shape(), 1))
		ex.backward(f.plan, gs, e)
	})
	if err != nil {
		return nil, err
	}

	// Callers update gradients in place, so no two may share a buffer.
	res := &GradResult{Loss: lossVal, Grads: make([]*tensor.RawTensor, len(gf.wrt))}
	seen := make(map[*tensor.RawTensor]bool)
	for i, id := range gf.ids {
		if id != noNode && gs.grads[id] != nil {
			grad := gs.grads[id]
			if seen[grad] {
				grad = grad.Clone()
			}
			seen[grad] = true
			res.Grads[i] = grad
			continue
		}
		res.Grads[i] = tensor.Zeros(gf.wrt[i].Shape(), tensor.Float32)
	}
	for _, v := range f.outputs[1:] {
		res.Outputs = append(res.Outputs, e.get(v.id))
	}
	return res, nil
}

// backward propagates gradients through ids (a topologically ordered plan)
// in reverse.
func (ex *executor) backward(ids []NodeID, gs *gradState, e *env) {
	for i := len(ids) - 1; i >= 0; i-- {
		id := ids[i]
		n := ex.g.nodes[id]
		switch n.kind {
		case kindOp:
			if g := gs.grads[id]; g != nil {
				ex.backOp(id, n, g, gs, e)
			}
		case kindScanOut:
			if g := gs.grads[id]; g != nil {
				scanID := n.parents[0]
				outs := gs.scanOut[scanID]
				if outs == nil {
					outs = make([]*tensor.RawTensor, 1+len(ex.g.nodes[scanID].scan.init))
					gs.scanOut[scanID] = outs
				}
				if outs[n.index] != nil {
					g = ex.b.Add(outs[n.index], g)
				}
				outs[n.index] = g
			}
		case kindScan:
			if outs := gs.scanOut[id]; outs != nil {
				ex.backScan(id, n, outs, gs, e)
			}
		}
	}
}

//nolint:gocyclo,cyclop // one case per operation
func (ex *executor) backOp(id NodeID, n *node, g *tensor.RawTensor, gs *gradState, e *env) {
	b := ex.b
	in := func(i int) *tensor.RawTensor { return e.get(n.parents[i]) }
	pass := func(i int, grad *tensor.RawTensor) { gs.accum(n.parents[i], grad) }

	switch n.op {
	case OpIdentity:
		pass(0, g)
	case OpAdd:
		pass(0, b.ReduceTo(g, in(0).Shape()))
		pass(1, b.ReduceTo(g, in(1).Shape()))
	case OpSub:
		pass(0, b.ReduceTo(g, in(0).Shape()))
		pass(1, b.Neg(b.ReduceTo(g, in(1).Shape())))
	case OpMul:
		x, y := in(0), in(1)
		pass(0, b.ReduceTo(b.Mul(g, y), x.Shape()))
		pass(1, b.ReduceTo(b.Mul(g, x), y.Shape()))
	case OpDiv:
		x, y := in(0), in(1)
		pass(0, b.ReduceTo(b.Div(g, y), x.Shape()))
		// d(x/y)/dy = -x / y²
		gy := b.Neg(b.Div(b.Mul(g, x), b.Mul(y, y)))
		pass(1, b.ReduceTo(gy, y.Shape()))
	case OpNeg:
		pass(0, b.Neg(g))
	case OpAddScalar:
		pass(0, g)
	case OpMulScalar:
		pass(0, b.MulScalar(g, n.scalar))
	case OpPowScalar:
		dx := b.MulScalar(b.PowScalar(in(0), n.scalar-1), n.scalar)
		pass(0, b.Mul(g, dx))
	case OpExp:
		pass(0, b.Mul(g, e.get(id)))
	case OpLog:
		pass(0, b.Div(g, in(0)))
	case OpSqrt:
		pass(0, b.Div(b.MulScalar(g, 0.5), e.get(id)))
	case OpTanh:
		y := e.get(id)
		pass(0, b.Mul(g, b.AddScalar(b.Neg(b.Mul(y, y)), 1)))
	case OpSigmoid:
		y := e.get(id)
		pass(0, b.Mul(g, b.Mul(y, b.AddScalar(b.Neg(y), 1))))
	case OpReLU:
		pass(0, b.Mul(g, b.Positive(in(0))))
	case OpClip:
		x := in(0)
		inside := b.Mul(b.Positive(b.AddScalar(x, -n.scalar)), b.Positive(b.AddScalar(b.Neg(x), n.hi)))
		pass(0, b.Mul(g, inside))
	case OpSoftmax:
		y := e.get(id)
		s := b.SumDim(b.Mul(g, y), -1, true)
		pass(0, b.Mul(y, b.Sub(g, s)))
	case OpDot:
		x, w := in(0), in(1)
		xs := x.Shape()
		k, m := w.Shape()[0], w.Shape()[1]
		x2 := b.Reshape(x, tensor.Shape{-1, k})
		g2 := b.Reshape(g, tensor.Shape{-1, m})
		pass(0, b.Reshape(b.MatMul(g2, b.Transpose(w)), xs))
		pass(1, b.MatMul(b.Transpose(x2), g2))
	case OpSum, OpMean:
		x := in(0)
		keep := x.Shape().Clone()
		keep[n.axis] = 1
		gx := b.BroadcastTo(b.Reshape(g, keep), x.Shape())
		if n.op == OpMean && x.Shape()[n.axis] > 0 {
			gx = b.MulScalar(gx, 1/float32(x.Shape()[n.axis]))
		}
		pass(0, gx)
	case OpSumAll, OpMeanAll:
		x := in(0)
		gx := b.BroadcastTo(g, x.Shape())
		if n.op == OpMeanAll && x.NumElements() > 0 {
			gx = b.MulScalar(gx, 1/float32(x.NumElements()))
		}
		pass(0, gx)
	case OpReshape, OpExpand, OpSqueeze:
		pass(0, b.Reshape(g, in(0).Shape()))
	case OpTranspose:
		inv := make([]int, len(n.ints))
		for i, p := range n.ints {
			inv[p] = i
		}
		pass(0, b.Transpose(g, inv...))
	case OpSlice:
		x := in(0)
		pass(0, b.PadSlice(g, n.axis, n.ints[0], x.Shape()[n.axis]))
	case OpIndex:
		x := in(0)
		keep := x.Shape().Clone()
		keep[n.axis] = 1
		pass(0, b.PadSlice(b.Reshape(g, keep), n.axis, n.ints[0], x.Shape()[n.axis]))
	case OpConcat:
		offset := 0
		for i := range n.parents {
			size := in(i).Shape()[n.axis]
			pass(i, b.Slice(g, n.axis, offset, offset+size))
			offset += size
		}
	case OpRows:
		w := in(0)
		pass(0, b.ScatterAddRows(w.Shape()[0], in(1), g))
	case OpPick:
		x := in(0)
		pass(0, b.PickGrad(g, in(1), x.Shape()[x.NDim()-1]))
	case OpCast:
		pass(0, g)
	case OpOneHot, OpArgmax, OpEqualScalar, OpZeros:
		// Not differentiable.
	}
}

// backScan runs backpropagation through time for one scan node.
func (ex *executor) backScan(id NodeID, n *node, outs []*tensor.RawTensor, gs *gradState, e *env) {
	info := n.scan
	b := ex.b
	rec := e.scan(id)
	if rec == nil || len(rec.steps) != len(rec.times) {
		fail("grad", ErrExec, "scan %d was not recorded", id)
	}

	gSeq := outs[0]
	gStates := append([]*tensor.RawTensor(nil), outs[1:]...)
	var gX []*tensor.RawTensor
	if info.xArg != noNode {
		gX = make([]*tensor.RawTensor, rec.length)
	}

	for k := len(rec.steps) - 1; k >= 0; k-- {
		se := rec.steps[k]
		t := rec.times[k]
		sgs := newGradState(ex.g, b)

		if gSeq != nil {
			// Output sequences are stored in time order.
			gt := b.Slice(gSeq, 1, t, t+1)
			shape := append(tensor.Shape{gt.Shape()[0]}, gt.Shape()[2:]...)
			sgs.accum(info.out, b.Reshape(gt, shape))
		}
		for i, nx := range info.next {
			sgs.accum(nx, gStates[i])
		}

		ex.backward(info.body, sgs, se)

		for i, sa := range info.stateArgs {
			gStates[i] = sgs.grads[sa]
		}
		if gX != nil {
			gX[t] = sgs.grads[info.xArg]
		}
		for _, c := range info.captured {
			gs.accum(c, sgs.grads[c])
		}
	}

	for i, iv := range info.init {
		gs.accum(iv, gStates[i])
	}

	if gX == nil || ex.g.nodes[info.seq].dtype != tensor.Float32 {
		return
	}
	seq := e.get(info.seq)
	stepShape := append(tensor.Shape{seq.Shape()[0]}, seq.Shape()[2:]...)
	parts := make([]*tensor.RawTensor, seq.Shape()[1])
	for t := range parts {
		var gt *tensor.RawTensor
		if t < len(gX) {
			gt = gX[t]
		}
		if gt == nil {
			// Steps past the cap or an early stop, or steps x did not influence.
			gt = tensor.Zeros(stepShape, tensor.Float32)
		}
		parts[t] = b.Reshape(gt, append(tensor.Shape{stepShape[0], 1}, stepShape[1:]...))
	}
	gs.accum(info.seq, b.Cat(parts, 1))
}
