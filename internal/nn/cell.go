package nn

import (
	"fmt"

	"github.com/born-ml/teafacto/internal/graph"
	"github.com/born-ml/teafacto/internal/param"
	"github.com/born-ml/teafacto/internal/tensor"
)

// CellType selects a recurrent cell.
type CellType string

// Cell types.
const (
	CellRNU   CellType = "rnu"
	CellGRU   CellType = "gru"
	CellIFGRU CellType = "ifgru"
	CellLSTM  CellType = "lstm"
)

// CellConfig describes a recurrent cell.
//
// Parameters follow one naming scheme: "w*" process the input ([indim,
// dim]), "u*" and "r*" the previous state ([dim, dim]), "b*" are biases and
// "p*" peepholes ([dim]). Every parameter is drawn uniformly from
// [-InitRange, InitRange].
type CellConfig struct {
	Type           CellType   `json:"type"`
	Name           string     `json:"name,omitempty"`
	InDim          int        `json:"indim"`
	Dim            int        `json:"dim"`
	NoBias         bool       `json:"nobias,omitempty"`
	InitRange      float64    `json:"initrange,omitempty"`
	Activation     Activation `json:"activation,omitempty"`
	GateActivation Activation `json:"gateactivation,omitempty"`
}

// Cell is one step of a recurrence: it maps the input at time t and the
// previous states to an output and the next states.
type Cell interface {
	Name() string
	Params() []*param.Parameter
	InDim() int
	OutDim() int
	// StateDims lists the size of every state; states are [batch, dim].
	StateDims() []int
	Step(x graph.Var, states []graph.Var) (graph.Var, []graph.Var)
}

// NewCell declares a cell's parameters in reg.
func NewCell(reg *param.Registry, cfg CellConfig) (Cell, error) {
	if cfg.Type == "" {
		cfg.Type = CellGRU
	}
	if cfg.Name == "" {
		cfg.Name = string(cfg.Type)
	}
	if cfg.InDim <= 0 || cfg.Dim <= 0 {
		return nil, fmt.Errorf("%w: cell %s dims %d -> %d", ErrConfig, cfg.Name, cfg.InDim, cfg.Dim)
	}
	if cfg.InitRange == 0 {
		cfg.InitRange = 0.1
	}
	for _, a := range []Activation{cfg.Activation, cfg.GateActivation} {
		if err := a.Validate(); err != nil {
			return nil, err
		}
	}

	base := cellBase{cfg: cfg, reg: reg.Sub(cfg.Name)}
	var c Cell
	switch cfg.Type {
	case CellRNU:
		c = newRNU(base)
	case CellGRU:
		c = newGRU(base, false)
	case CellIFGRU:
		c = newGRU(base, true)
	case CellLSTM:
		c = newLSTM(base)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCell, string(cfg.Type))
	}
	if err := reg.Err(); err != nil {
		return nil, err
	}
	return c, nil
}

type cellBase struct {
	cfg    CellConfig
	reg    *param.Registry
	params []*param.Parameter
}

// declare creates a parameter, deriving its shape from the first letter of
// its name. Biases are skipped (nil) with NoBias.
func (c *cellBase) declare(name string) *param.Parameter {
	var shape tensor.Shape
	switch name[0] {
	case 'b':
		if c.cfg.NoBias {
			return nil
		}
		shape = tensor.Shape{c.cfg.Dim}
	case 'p':
		shape = tensor.Shape{c.cfg.Dim}
	case 'w':
		shape = tensor.Shape{c.cfg.InDim, c.cfg.Dim}
	default:
		shape = tensor.Shape{c.cfg.Dim, c.cfg.Dim}
	}
	p := c.reg.New(name, shape, param.Uniform(c.cfg.InitRange))
	c.params = append(c.params, p)
	return p
}

func (c *cellBase) Name() string               { return c.cfg.Name }
func (c *cellBase) Params() []*param.Parameter { return c.params }
func (c *cellBase) InDim() int                 { return c.cfg.InDim }
func (c *cellBase) OutDim() int                { return c.cfg.Dim }

func (c *cellBase) act(v graph.Var) graph.Var  { return c.cfg.Activation.Or(ActTanh).Apply(v) }
func (c *cellBase) gate(v graph.Var) graph.Var { return c.cfg.GateActivation.Or(ActSigmoid).Apply(v) }

// affine sums x·w, h·u and the bias b; w, u and b may each be absent.
func affine(x graph.Var, w *param.Parameter, h graph.Var, u, b *param.Parameter) graph.Var {
	g := h.Graph()
	if !h.Valid() {
		g = x.Graph()
	}
	var out graph.Var
	add := func(v graph.Var) {
		if out.Valid() {
			out = out.Add(v)
		} else {
			out = v
		}
	}
	if w != nil {
		add(x.Dot(g.Param(w)))
	}
	if u != nil {
		add(h.Dot(g.Param(u)))
	}
	if b != nil {
		add(g.Param(b))
	}
	return out
}

// RNU is the plain recurrent unit: h' = act(x·w + h·u + b).
type RNU struct {
	cellBase
	u, w, b *param.Parameter
}

func newRNU(base cellBase) *RNU {
	c := &RNU{cellBase: base}
	c.u, c.w, c.b = c.declare("u"), c.declare("w"), c.declare("b")
	return c
}

// StateDims implements Cell.
func (c *RNU) StateDims() []int { return []int{c.cfg.Dim} }

// Step implements Cell.
func (c *RNU) Step(x graph.Var, states []graph.Var) (graph.Var, []graph.Var) {
	h := c.act(affine(x, c.w, states[0], c.u, c.b))
	return h, []graph.Var{h}
}

// GRU is the gated recurrent unit:
//
//	m  = gate(h·um + x·wm + bm)
//	r  = gate(h·uhf + x·whf + bhf)
//	h~ = act((h*r)·u + x·w + b)
//	h' = m*h + (1-m)*h~
//
// The input-filtering variant (IFGRU) adds a gate f = gate(h·uif + x·wif + bif)
// on the input: h~ = act((h*r)·u + (x*f)·w + b). Its wif is [indim, indim].
type GRU struct {
	cellBase
	filter                bool
	um, wm, uhf, whf, u, w *param.Parameter
	bm, bhf, b             *param.Parameter
	uif, wif, bif          *param.Parameter
}

func newGRU(base cellBase, filter bool) *GRU {
	c := &GRU{cellBase: base, filter: filter}
	c.um, c.wm = c.declare("um"), c.declare("wm")
	c.uhf, c.whf = c.declare("uhf"), c.declare("whf")
	c.u, c.w = c.declare("u"), c.declare("w")
	c.bm, c.bhf, c.b = c.declare("bm"), c.declare("bhf"), c.declare("b")
	if filter {
		// The input filter gates every input feature.
		c.uif = c.reg.New("uif", tensor.Shape{c.cfg.Dim, c.cfg.InDim}, param.Uniform(c.cfg.InitRange))
		c.wif = c.reg.New("wif", tensor.Shape{c.cfg.InDim, c.cfg.InDim}, param.Uniform(c.cfg.InitRange))
		c.params = append(c.params, c.uif, c.wif)
		if !c.cfg.NoBias {
			c.bif = c.reg.New("bif", tensor.Shape{c.cfg.InDim}, param.Uniform(c.cfg.InitRange))
			c.params = append(c.params, c.bif)
		}
	}
	return c
}

// StateDims implements Cell.
func (c *GRU) StateDims() []int { return []int{c.cfg.Dim} }

// Step implements Cell.
func (c *GRU) Step(x graph.Var, states []graph.Var) (graph.Var, []graph.Var) {
	h := states[0]
	m := c.gate(affine(x, c.wm, h, c.um, c.bm))
	r := c.gate(affine(x, c.whf, h, c.uhf, c.bhf))
	in := x
	if c.filter {
		in = x.Mul(c.gate(affine(x, c.wif, h, c.uif, c.bif)))
	}
	cand := c.act(affine(in, c.w, h.Mul(r), c.u, c.b))
	next := m.Mul(h).Add(m.RSub(1).Mul(cand))
	return next, []graph.Var{next}
}

// LSTM is the long short-term memory cell with peepholes. Its states are
// [y, c] (output, memory):
//
//	f  = gate(c*pf + x·wf + y·rf + bf)
//	i  = gate(c*pi + x·wi + y·ri + bi)
//	c' = c*f + act(x·w + y·r + b)*i
//	o  = gate(c'*po + x·wo + y·ro + bo)
//	y' = o*act(c')
type LSTM struct {
	cellBase
	wf, rf, bf, wi, ri, bi *param.Parameter
	wo, ro, bo, w, r, b    *param.Parameter
	pf, pi, po             *param.Parameter
}

func newLSTM(base cellBase) *LSTM {
	c := &LSTM{cellBase: base}
	c.wf, c.rf, c.bf = c.declare("wf"), c.declare("rf"), c.declare("bf")
	c.wi, c.ri, c.bi = c.declare("wi"), c.declare("ri"), c.declare("bi")
	c.wo, c.ro, c.bo = c.declare("wo"), c.declare("ro"), c.declare("bo")
	c.w, c.r, c.b = c.declare("w"), c.declare("r"), c.declare("b")
	c.pf, c.pi, c.po = c.declare("pf"), c.declare("pi"), c.declare("po")
	return c
}

// StateDims implements Cell.
func (c *LSTM) StateDims() []int { return []int{c.cfg.Dim, c.cfg.Dim} }

// Step implements Cell.
func (c *LSTM) Step(x graph.Var, states []graph.Var) (graph.Var, []graph.Var) {
	y, mem := states[0], states[1]
	g := y.Graph()
	peep := func(p *param.Parameter, v graph.Var) graph.Var { return v.Mul(g.Param(p)) }

	f := c.gate(peep(c.pf, mem).Add(affine(x, c.wf, y, c.rf, c.bf)))
	i := c.gate(peep(c.pi, mem).Add(affine(x, c.wi, y, c.ri, c.bi)))
	mem = mem.Mul(f).Add(c.act(affine(x, c.w, y, c.r, c.b)).Mul(i))
	o := c.gate(peep(c.po, mem).Add(affine(x, c.wo, y, c.ro, c.bo)))
	y = o.Mul(c.act(mem))
	return y, []graph.Var{y, mem}
}
