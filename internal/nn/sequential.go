package nn

import (
	"encoding/json"
	"fmt"

	"github.com/born-ml/teafacto/internal/block"
	"github.com/born-ml/teafacto/internal/graph"
	"github.com/born-ml/teafacto/internal/param"
)

// Sequential chains blocks: each block's output becomes the next block's
// input.
//
// Example:
//
//	mlp := nn.NewSequential("mlp", hidden, nn.NewAct(nn.ActReLU), out)
//	probs := block.Call(mlp, x)
//
// This is equivalent to calling hidden, the activation and out in turn.
type Sequential struct {
	name   string
	blocks []block.Block
}

// NewSequential creates a chain of blocks.
func NewSequential(name string, blocks ...block.Block) *Sequential {
	if name == "" {
		name = "sequential"
	}
	return &Sequential{name: name, blocks: blocks}
}

// Name returns the block name.
func (s *Sequential) Name() string { return s.name }

// Params collects the parameters of every block, first occurrence first.
func (s *Sequential) Params() []*param.Parameter { return block.Collect(s.blocks...) }

// Add appends a block.
func (s *Sequential) Add(b block.Block) { s.blocks = append(s.blocks, b) }

// Len returns the number of blocks.
func (s *Sequential) Len() int { return len(s.blocks) }

// Block returns the block at index i.
func (s *Sequential) Block(i int) block.Block { return s.blocks[i] }

// Apply calls the blocks in order; extra arguments go to the first block.
func (s *Sequential) Apply(args ...graph.Var) graph.Var {
	if len(s.blocks) == 0 {
		return args[0]
	}
	out := block.Call(s.blocks[0], args...)
	for _, b := range s.blocks[1:] {
		out = block.Call(b, out)
	}
	return out
}

type sequentialConfig struct {
	Name   string        `json:"name"`
	Blocks []frozenChild `json:"blocks"`
}

type frozenChild struct {
	Kind   string          `json:"kind"`
	Config json.RawMessage `json:"config"`
}

// Kind implements block.Configurable.
func (s *Sequential) Kind() string { return "sequential" }

// Config implements block.Configurable. It panics if a child is not
// configurable; Freeze checks Freezable first.
func (s *Sequential) Config() any {
	cfg, err := s.config()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Freezable reports whether every child describes its architecture.
func (s *Sequential) Freezable() error {
	_, err := s.config()
	return err
}

func (s *Sequential) config() (sequentialConfig, error) {
	cfg := sequentialConfig{Name: s.name}
	for i, b := range s.blocks {
		c, ok := b.(block.Configurable)
		if !ok {
			return cfg, fmt.Errorf("%w: %s child %d (%T)", block.ErrNotFreezable, s.name, i, b)
		}
		raw, err := json.Marshal(c.Config())
		if err != nil {
			return cfg, err
		}
		cfg.Blocks = append(cfg.Blocks, frozenChild{Kind: c.Kind(), Config: raw})
	}
	return cfg, nil
}

func buildSequential(reg *param.Registry, raw json.RawMessage) (block.Block, error) {
	var cfg sequentialConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	s := NewSequential(cfg.Name)
	for _, c := range cfg.Blocks {
		b, err := block.Build(reg, c.Kind, c.Config)
		if err != nil {
			return nil, err
		}
		s.Add(b)
	}
	return s, nil
}
