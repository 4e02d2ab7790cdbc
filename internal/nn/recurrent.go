package nn

import (
	"fmt"

	"github.com/born-ml/teafacto/internal/block"
	"github.com/born-ml/teafacto/internal/graph"
	"github.com/born-ml/teafacto/internal/param"
)

// Transducer maps a sequence [batch, time, indim] to a sequence
// [batch, time, outdim] and a summary [batch, outdim].
type Transducer interface {
	block.Block
	OutDim() int
	// Transduce runs over x. mask ([batch, time], 1 for real positions) may
	// be invalid; masked positions keep the previous state and emit zeros.
	Transduce(x, mask graph.Var) (all, last graph.Var)
}

// LayerConfig describes one recurrent layer.
type LayerConfig struct {
	Cell    CellConfig `json:"cell"`
	Reverse bool       `json:"reverse,omitempty"`
	Bidir   bool       `json:"bidir,omitempty"`
}

// NewLayer builds a Recurrent layer, or a BiRecurrent one when cfg.Bidir is set.
func NewLayer(reg *param.Registry, cfg LayerConfig) (Transducer, error) {
	if cfg.Bidir {
		return NewBiRecurrent(reg, cfg)
	}
	return NewRecurrent(reg, cfg)
}

// Recurrent lifts a Cell into a sequence transducer with graph.Scan.
//
// Initial states default to zeros; SetInitStates overrides them for the
// following Transduce calls.
type Recurrent struct {
	cfg  LayerConfig
	cell Cell
	init []graph.Var
}

// NewRecurrent declares the layer's cell in reg.
func NewRecurrent(reg *param.Registry, cfg LayerConfig) (*Recurrent, error) {
	cfg.Bidir = false
	cell, err := NewCell(reg, cfg.Cell)
	if err != nil {
		return nil, err
	}
	return &Recurrent{cfg: cfg, cell: cell}, nil
}

func (r *Recurrent) Name() string               { return r.cell.Name() }
func (r *Recurrent) Params() []*param.Parameter { return r.cell.Params() }
func (r *Recurrent) Kind() string               { return "recurrent" }
func (r *Recurrent) Config() any                { return r.cfg }

// Cell returns the wrapped cell.
func (r *Recurrent) Cell() Cell { return r.cell }

// OutDim returns the cell's output size.
func (r *Recurrent) OutDim() int { return r.cell.OutDim() }

// SetInitStates sets the initial states of later scans. The number of
// states must match the cell's; passing none restores the zero default.
func (r *Recurrent) SetInitStates(states ...graph.Var) error {
	if len(states) > 0 && len(states) != len(r.cell.StateDims()) {
		return fmt.Errorf("%w: %s takes %d initial states, got %d",
			graph.ErrArity, r.Name(), len(r.cell.StateDims()), len(states))
	}
	r.init = states
	return nil
}

// Scan runs the cell over x ([batch, time, indim]) from init, or from the
// states set with SetInitStates, or from zeros. It returns the output
// sequence and the final states. States set on another graph than x's,
// such as one dropped by a model reset, are forgotten.
func (r *Recurrent) Scan(x, mask graph.Var, init []graph.Var) (graph.Var, []graph.Var) {
	if len(r.init) > 0 && r.init[0].Graph() != x.Graph() {
		r.init = nil
	}
	if init == nil {
		init = r.init
	}
	if init == nil {
		for _, d := range r.cell.StateDims() {
			init = append(init, graph.ZerosLike(x, d))
		}
	}
	var opts []graph.ScanOption
	if r.cfg.Reverse {
		opts = append(opts, graph.Reverse())
	}

	if !mask.Valid() {
		step := func(xt graph.Var, states []graph.Var) graph.Step {
			out, next := r.cell.Step(xt, states)
			return graph.Step{Out: out, States: next}
		}
		return graph.Scan(step, x, init, opts...)
	}

	in := r.cell.InDim()
	seq := graph.Concat(-1, x.Cast(mask.DType()), mask.ExpandDims(-1))
	step := func(xm graph.Var, states []graph.Var) graph.Step {
		xt, m := xm.Slice(-1, 0, in), xm.Slice(-1, in, in+1)
		out, next := r.cell.Step(xt, states)
		keep := m.RSub(1)
		for i := range next {
			next[i] = next[i].Mul(m).Add(states[i].Mul(keep))
		}
		return graph.Step{Out: out.Mul(m), States: next}
	}
	return graph.Scan(step, seq, init, opts...)
}

// Transduce implements Transducer; last is the final first state (the
// output state of every cell type).
func (r *Recurrent) Transduce(x, mask graph.Var) (graph.Var, graph.Var) {
	all, finals := r.Scan(x, mask, nil)
	return all, finals[0]
}

// Encode returns the last output and the full output sequence.
func (r *Recurrent) Encode(x graph.Var) (graph.Var, graph.Var) {
	all, last := r.Transduce(x, graph.Var{})
	return last, all
}

// Apply returns the output sequence of args[0]; an optional args[1] is the mask.
func (r *Recurrent) Apply(args ...graph.Var) graph.Var {
	all, _ := r.Transduce(args[0], optional(args, 1))
	return all
}

func optional(args []graph.Var, i int) graph.Var {
	if i < len(args) {
		return args[i]
	}
	return graph.Var{}
}

// BiRecurrent runs one cell forward and a second one backward over the
// sequence and concatenates their outputs per position.
type BiRecurrent struct {
	cfg      LayerConfig
	fwd, bwd *Recurrent
}

// NewBiRecurrent declares the forward ("<name>.fwd") and backward
// ("<name>.bwd") cells in reg.
func NewBiRecurrent(reg *param.Registry, cfg LayerConfig) (*BiRecurrent, error) {
	cfg.Bidir = true
	name := cfg.Cell.Name
	if name == "" {
		name = string(cfg.Cell.Type)
		if name == "" {
			name = string(CellGRU)
		}
	}
	sub := reg.Sub(name)
	fc, bc := cfg.Cell, cfg.Cell
	fc.Name, bc.Name = "fwd", "bwd"
	fwd, err := NewRecurrent(sub, LayerConfig{Cell: fc, Reverse: cfg.Reverse})
	if err != nil {
		return nil, err
	}
	bwd, err := NewRecurrent(sub, LayerConfig{Cell: bc, Reverse: !cfg.Reverse})
	if err != nil {
		return nil, err
	}
	cfg.Cell.Name = name
	return &BiRecurrent{cfg: cfg, fwd: fwd, bwd: bwd}, nil
}

func (b *BiRecurrent) Name() string               { return b.cfg.Cell.Name }
func (b *BiRecurrent) Params() []*param.Parameter { return block.Collect(b.fwd, b.bwd) }
func (b *BiRecurrent) Kind() string               { return "recurrent" }
func (b *BiRecurrent) Config() any                { return b.cfg }

// OutDim is twice the cell size.
func (b *BiRecurrent) OutDim() int { return b.fwd.OutDim() + b.bwd.OutDim() }

// Transduce implements Transducer. last joins the forward final state with
// the backward final state (the one at the first position).
func (b *BiRecurrent) Transduce(x, mask graph.Var) (graph.Var, graph.Var) {
	fa, fl := b.fwd.Transduce(x, mask)
	ba, bl := b.bwd.Transduce(x, mask)
	return graph.Concat(-1, fa, ba), graph.Concat(-1, fl, bl)
}

// Apply returns the joined output sequence.
func (b *BiRecurrent) Apply(args ...graph.Var) graph.Var {
	all, _ := b.Transduce(args[0], optional(args, 1))
	return all
}

// RecStack stacks recurrent layers; each layer reads the previous one's
// output sequence.
type RecStack struct {
	name   string
	cfgs   []LayerConfig
	layers []Transducer
}

type recStackConfig struct {
	Name   string        `json:"name"`
	Layers []LayerConfig `json:"layers"`
}

// NewRecStack declares the layers in reg.Sub(name). A layer's input size
// may be left 0 to take the previous layer's output size; indim is the
// first layer's default.
func NewRecStack(reg *param.Registry, name string, indim int, layers ...LayerConfig) (*RecStack, error) {
	if name == "" {
		name = "stack"
	}
	if len(layers) == 0 {
		return nil, fmt.Errorf("%w: recstack %s has no layers", ErrConfig, name)
	}
	sub := reg.Sub(name)
	s := &RecStack{name: name}
	prev := indim
	for i, cfg := range layers {
		if cfg.Cell.InDim == 0 {
			cfg.Cell.InDim = prev
		}
		if prev > 0 && cfg.Cell.InDim != prev {
			return nil, fmt.Errorf("%w: recstack %s layer %d takes %d inputs, previous gives %d",
				ErrConfig, name, i, cfg.Cell.InDim, prev)
		}
		if cfg.Cell.Name == "" {
			cfg.Cell.Name = fmt.Sprintf("l%d", i)
		}
		l, err := NewLayer(sub, cfg)
		if err != nil {
			return nil, fmt.Errorf("recstack %s layer %d: %w", name, i, err)
		}
		s.cfgs = append(s.cfgs, cfg)
		s.layers = append(s.layers, l)
		prev = l.OutDim()
	}
	return s, nil
}

func (s *RecStack) Name() string { return s.name }
func (s *RecStack) Kind() string { return "recstack" }
func (s *RecStack) Config() any  { return recStackConfig{Name: s.name, Layers: s.cfgs} }

// Params collects the parameters of every layer.
func (s *RecStack) Params() []*param.Parameter {
	bs := make([]block.Block, len(s.layers))
	for i, l := range s.layers {
		bs[i] = l
	}
	return block.Collect(bs...)
}

// Layers returns the stacked layers, bottom first.
func (s *RecStack) Layers() []Transducer { return s.layers }

// OutDim returns the top layer's output size.
func (s *RecStack) OutDim() int { return s.layers[len(s.layers)-1].OutDim() }

// Transduce implements Transducer; last is the top layer's.
func (s *RecStack) Transduce(x, mask graph.Var) (graph.Var, graph.Var) {
	var last graph.Var
	for _, l := range s.layers {
		x, last = l.Transduce(x, mask)
	}
	return x, last
}

// Apply returns the top layer's output sequence.
func (s *RecStack) Apply(args ...graph.Var) graph.Var {
	all, _ := s.Transduce(args[0], optional(args, 1))
	return all
}
