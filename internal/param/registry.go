package param

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/teafacto/internal/tensor"
)

// Registry is the builder through which blocks declare their parameters.
// Names are scoped hierarchically ("encoder.rnn.w") and must be unique
// within one registry tree. Construction errors are collected and reported
// by Err, so block constructors can declare all parameters and check once.
type Registry struct {
	prefix string
	root   *registryRoot
}

type registryRoot struct {
	params []*Parameter
	byName map[string]*Parameter
	rng    *rand.Rand
	err    error
}

// NewRegistry creates an empty registry whose initializers draw from a
// source seeded with seed.
func NewRegistry(seed uint64) *Registry {
	return &Registry{root: &registryRoot{
		byName: make(map[string]*Parameter),
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), //nolint:gosec // weight init
	}}
}

// Sub returns a view of the registry that prefixes names with scope.
func (r *Registry) Sub(scope string) *Registry {
	return &Registry{prefix: r.qualify(scope), root: r.root}
}

// Prefix returns the registry's scope.
func (r *Registry) Prefix() string { return r.prefix }

func (r *Registry) qualify(name string) string {
	if r.prefix == "" {
		return name
	}
	return r.prefix + "." + name
}

// New declares a parameter. On failure the error is recorded and a zero
// placeholder of the requested shape is returned so construction can
// continue; check Err before using the block.
func (r *Registry) New(name string, shape tensor.Shape, init Initializer, opts ...Option) *Parameter {
	full := r.qualify(name)
	opts = append([]Option{WithRand(r.root.rng)}, opts...)
	opts = append(opts, WithName(full))

	p, err := New(shape, init, opts...)
	if err == nil {
		err = r.add(p)
	}
	if err != nil {
		r.fail(fmt.Errorf("declare %s: %w", full, err))
		if p == nil {
			p, _ = New(shape, Constant(0), WithName(full))
		}
		if p == nil {
			p, _ = New(tensor.Shape{}, Constant(0), WithName(full))
		}
	}
	return p
}

// Adopt registers an existing parameter under the registry's scope.
func (r *Registry) Adopt(p *Parameter) *Parameter {
	if err := r.add(p); err != nil {
		r.fail(err)
	}
	return p
}

func (r *Registry) add(p *Parameter) error {
	if _, dup := r.root.byName[p.Name()]; dup {
		return fmt.Errorf("%s: %w", p.Name(), ErrDuplicateName)
	}
	r.root.byName[p.Name()] = p
	r.root.params = append(r.root.params, p)
	return nil
}

func (r *Registry) fail(err error) {
	r.root.err = errors.Join(r.root.err, err)
}

// Err returns every error recorded so far.
func (r *Registry) Err() error { return r.root.err }

// Lookup finds a parameter by its full name.
func (r *Registry) Lookup(name string) (*Parameter, bool) {
	p, ok := r.root.byName[name]
	return p, ok
}

// Params returns all parameters of the registry tree in declaration order.
func (r *Registry) Params() []*Parameter {
	return append([]*Parameter(nil), r.root.params...)
}

// Rand exposes the registry's random source for initializers built outside it.
func (r *Registry) Rand() *rand.Rand { return r.root.rng }
