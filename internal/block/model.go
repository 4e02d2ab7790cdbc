package block

import (
	"fmt"
	"log/slog"

	"github.com/born-ml/teafacto/internal/backend/cpu"
	"github.com/born-ml/teafacto/internal/graph"
	"github.com/born-ml/teafacto/internal/param"
	"github.com/born-ml/teafacto/internal/tensor"
)

// State is a model's lifecycle state.
type State int

// Lifecycle states. Reset returns a model to Uninitialized.
const (
	Uninitialized State = iota
	Built
	Compiled
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Built:
		return "built"
	case Compiled:
		return "compiled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// InputSpec describes one input placeholder. Dimensions of -1 are unknown
// until data arrives.
type InputSpec struct {
	Name  string
	DType tensor.DataType
	Shape tensor.Shape
}

// Spec is shorthand for an InputSpec.
func Spec(name string, dtype tensor.DataType, dims ...int) InputSpec {
	return InputSpec{Name: name, DType: dtype, Shape: tensor.Shape(dims)}
}

// SpecsFor derives input specs from sample data: the dtype and rank are
// kept, every dimension is left unknown.
func SpecsFor(data ...*tensor.RawTensor) []InputSpec {
	specs := make([]InputSpec, len(data))
	for i, d := range data {
		shape := make(tensor.Shape, d.NDim())
		for j := range shape {
			shape[j] = -1
		}
		specs[i] = InputSpec{Name: fmt.Sprintf("x%d", i), DType: d.DType(), Shape: shape}
	}
	return specs
}

// ModelOption configures a Model.
type ModelOption func(*Model)

// WithBackend selects the backend compiled functions run on.
func WithBackend(b tensor.Backend) ModelOption {
	return func(m *Model) { m.backend = b }
}

// WithLogger sets the logger used for build and compile events.
func WithLogger(l *slog.Logger) ModelOption {
	return func(m *Model) { m.log = l }
}

// Model drives a block through its lifecycle:
//
//	Uninitialized --Build--> Built --Predict--> Compiled --Reset--> Uninitialized
//
// Build allocates input placeholders and applies the block; Predict compiles
// once per build and reuses the compiled function; Reset drops the graph,
// the inputs and the compiled function but keeps every parameter.
//
// A Model is not safe for concurrent use. Training steps and Reset must not
// overlap.
type Model struct {
	block   Block
	backend tensor.Backend
	log     *slog.Logger

	state  State
	g      *graph.Graph
	inputs []graph.Var
	output graph.Var
	fn     *graph.Function
}

// NewModel wraps b.
func NewModel(b Block, opts ...ModelOption) *Model {
	m := &Model{block: b}
	for _, opt := range opts {
		opt(m)
	}
	if m.backend == nil {
		m.backend = cpu.New()
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	return m
}

// Block returns the wrapped block.
func (m *Model) Block() Block { return m.block }

// Backend returns the backend compiled functions use.
func (m *Model) Backend() tensor.Backend { return m.backend }

// State returns the lifecycle state.
func (m *Model) State() State { return m.state }

// Graph returns the current graph, or nil before Build.
func (m *Model) Graph() *graph.Graph { return m.g }

// Inputs returns the input placeholders of the current build.
func (m *Model) Inputs() []graph.Var { return m.inputs }

// Output returns the block's output node, or an invalid Var before Build.
func (m *Model) Output() graph.Var { return m.output }

// Build applies the block to fresh inputs described by specs, replacing any
// previous build.
func (m *Model) Build(specs ...InputSpec) error {
	m.Reset()
	g := graph.New()
	inputs := make([]graph.Var, len(specs))
	for i, s := range specs {
		name := s.Name
		if name == "" {
			name = fmt.Sprintf("x%d", i)
		}
		inputs[i] = g.Input(name, s.DType, s.Shape...)
	}

	var out graph.Var
	if err := graph.Try(func() { out = Call(m.block, inputs...) }); err != nil {
		return fmt.Errorf("build %s: %w", m.block.Name(), err)
	}
	if !out.Valid() {
		return fmt.Errorf("build %s: %w", m.block.Name(), ErrNotBuilt)
	}

	m.g, m.inputs, m.output, m.state = g, inputs, out, Built
	m.log.Debug("model built", "block", m.block.Name(), "nodes", g.Len(), "params", len(graph.Params(out)))
	return nil
}

// AutoBuild builds with inputs matching the dtype and rank of data.
func (m *Model) AutoBuild(data ...any) error {
	raws, err := Coerce(data...)
	if err != nil {
		return err
	}
	return m.Build(SpecsFor(raws...)...)
}

// Params returns the parameter closure of the built output, or the block's
// declared parameters before Build.
func (m *Model) Params() []*param.Parameter {
	if m.state == Uninitialized {
		return m.block.Params()
	}
	return graph.Params(m.output)
}

// Compile returns the prediction function of the current build, compiling
// it on first use.
func (m *Model) Compile() (*graph.Function, error) {
	switch m.state {
	case Uninitialized:
		return nil, ErrNotBuilt
	case Compiled:
		return m.fn, nil
	}
	fn, err := graph.Compile(m.inputs, []graph.Var{m.output}, graph.WithBackend(m.backend))
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", m.block.Name(), err)
	}
	m.fn, m.state = fn, Compiled
	m.log.Debug("model compiled", "block", m.block.Name(), "backend", m.backend.Name())
	return fn, nil
}

// Predict runs the block on data. An unbuilt model is built from the data
// first. Array-like data is coerced with tensor.FromAny; integer and float
// data are converted to the width the inputs expect.
func (m *Model) Predict(data ...any) (*tensor.RawTensor, error) {
	raws, err := Coerce(data...)
	if err != nil {
		return nil, err
	}
	if m.state == Uninitialized {
		if err := m.Build(SpecsFor(raws...)...); err != nil {
			return nil, err
		}
	}
	fn, err := m.Compile()
	if err != nil {
		return nil, err
	}
	outs, err := fn.Run(m.Conform(raws)...)
	if err != nil {
		return nil, fmt.Errorf("predict %s: %w", m.block.Name(), err)
	}
	return outs[0], nil
}

// Conform converts data to the dtypes of the current inputs where the
// conversion keeps the kind (int to int, float to float).
func (m *Model) Conform(data []*tensor.RawTensor) []*tensor.RawTensor {
	out := append([]*tensor.RawTensor(nil), data...)
	for i := range min(len(out), len(m.inputs)) {
		want := m.inputs[i].DType()
		if d := out[i]; d != nil && d.DType() != want && d.DType().IsFloat() == want.IsFloat() {
			out[i] = m.backend.Cast(d, want)
		}
	}
	return out
}

// Reset returns the model to Uninitialized. The graph, inputs, output and
// compiled function are dropped; parameters keep their values. Resetting
// twice is the same as resetting once.
func (m *Model) Reset() {
	m.g = nil
	m.inputs = nil
	m.output = graph.Var{}
	m.fn = nil
	m.state = Uninitialized
}

// Coerce converts array-like values to tensors with tensor.FromAny.
func Coerce(data ...any) ([]*tensor.RawTensor, error) {
	out := make([]*tensor.RawTensor, len(data))
	for i, d := range data {
		r, err := tensor.FromAny(d)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = r
	}
	return out, nil
}

// TrainSetup is what Train hands to the trainer constructor.
type TrainSetup struct {
	Model    *Model
	Gold     graph.Var // gold-output input in the model's graph
	Data     []*tensor.RawTensor
	GoldData *tensor.RawTensor
}

// Train prepares m for training on data with targets gold: it builds the
// model if needed, adds a gold input to the graph and passes everything to
// newTrainer, returning the trainer for configuration.
func Train[T any](m *Model, newTrainer func(TrainSetup) T, gold any, data ...any) (T, error) {
	var zero T
	raws, err := Coerce(data...)
	if err != nil {
		return zero, err
	}
	goldRaw, err := tensor.FromAny(gold)
	if err != nil {
		return zero, fmt.Errorf("gold: %w", err)
	}
	if m.state == Uninitialized {
		if err := m.Build(SpecsFor(raws...)...); err != nil {
			return zero, err
		}
	}
	goldSpec := SpecsFor(goldRaw)[0]
	goldVar := m.g.Input("gold", goldSpec.DType, goldSpec.Shape...)

	return newTrainer(TrainSetup{
		Model:    m,
		Gold:     goldVar,
		Data:     m.Conform(raws),
		GoldData: goldRaw,
	}), nil
}
