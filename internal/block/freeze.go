package block

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/born-ml/teafacto/internal/param"
	"github.com/born-ml/teafacto/internal/serialization"
	"github.com/born-ml/teafacto/internal/tensor"
)

// Configurable is a block that can describe its architecture. Config must
// marshal to JSON and, passed back to the kind's Builder, rebuild a block
// with identically named parameters. Containers whose children may not be
// configurable also implement Freezable() error, which Freeze checks first.
type Configurable interface {
	Block
	Kind() string
	Config() any
}

// Builder reconstructs a block of one kind from its config.
type Builder func(reg *param.Registry, config json.RawMessage) (Block, error)

var kinds = struct {
	sync.RWMutex
	m map[string]Builder
}{m: make(map[string]Builder)}

// RegisterKind makes a block kind available to Unfreeze. It panics if kind
// is registered twice.
func RegisterKind(kind string, build Builder) {
	kinds.Lock()
	defer kinds.Unlock()
	if build == nil {
		panic("block: RegisterKind builder is nil")
	}
	if _, dup := kinds.m[kind]; dup {
		panic("block: RegisterKind called twice for " + kind)
	}
	kinds.m[kind] = build
}

// Kinds lists the registered block kinds.
func Kinds() []string {
	kinds.RLock()
	defer kinds.RUnlock()
	out := make([]string, 0, len(kinds.m))
	for k := range kinds.m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// FrozenState returns the container header and tensors describing b: its
// kind and config plus every declared parameter by name.
func FrozenState(b Block) (serialization.Header, []serialization.Tensor, error) {
	c, ok := b.(Configurable)
	if !ok {
		return serialization.Header{}, nil, fmt.Errorf("%w: %s (%T)", ErrNotFreezable, b.Name(), b)
	}
	if f, ok := b.(interface{ Freezable() error }); ok {
		if err := f.Freezable(); err != nil {
			return serialization.Header{}, nil, err
		}
	}
	cfg, err := json.Marshal(c.Config())
	if err != nil {
		return serialization.Header{}, nil, fmt.Errorf("marshal %s config: %w", c.Kind(), err)
	}
	params := b.Params()
	tensors := make([]serialization.Tensor, len(params))
	for i, p := range params {
		tensors[i] = serialization.Tensor{Name: p.Name(), Value: p.Value()}
	}
	return serialization.Header{Kind: c.Kind(), Config: cfg}, tensors, nil
}

// Freeze writes b's architecture and parameter values to w.
func Freeze(w io.Writer, b Block) error {
	header, tensors, err := FrozenState(b)
	if err != nil {
		return err
	}
	return serialization.Write(w, header, tensors)
}

// Build constructs a block of a registered kind from its JSON config,
// declaring its parameters in reg.
func Build(reg *param.Registry, kind string, config json.RawMessage) (Block, error) {
	kinds.RLock()
	build, ok := kinds.m[kind]
	kinds.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	b, err := build(reg, config)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", kind, err)
	}
	return b, nil
}

// AuxPrefix marks tensors stored next to the parameters (optimizer state
// in checkpoints). Rebuild never matches them to parameters.
const AuxPrefix = "@"

// Rebuild constructs the block described by f and loads its parameter
// values. Parameters are matched by name; a block frozen from a scoped
// registry ("model.enc.w") matches its rebuilt, unscoped names ("enc.w")
// when the suffix is unambiguous. Tensors that are not parameters of the
// block are ignored.
func Rebuild(f *serialization.File) (Block, error) {
	b, err := Build(param.NewRegistry(0), f.Header.Kind, f.Header.Config)
	if err != nil {
		return nil, err
	}
	names := f.Names()
	for _, p := range b.Params() {
		v, ok := f.Tensor(p.Name())
		if !ok {
			v, ok = bySuffix(f, names, p.Name())
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingParam, p.Name())
		}
		if err := p.SetValue(v); err != nil {
			return nil, fmt.Errorf("load %s: %w", p.Name(), err)
		}
	}
	return b, nil
}

func bySuffix(f *serialization.File, names []string, name string) (*tensor.RawTensor, bool) {
	var match string
	for _, n := range names {
		if strings.HasPrefix(n, AuxPrefix) {
			continue
		}
		if strings.HasSuffix(n, "."+name) {
			if match != "" {
				return nil, false
			}
			match = n
		}
	}
	if match == "" {
		return nil, false
	}
	return f.Tensor(match)
}

// Unfreeze reads a block written by Freeze.
func Unfreeze(r io.Reader) (Block, error) {
	f, err := serialization.Read(r)
	if err != nil {
		return nil, err
	}
	return Rebuild(f)
}
