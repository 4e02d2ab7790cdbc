// Package graph implements the symbolic expression graph: an arena of nodes
// linked by index, a fixed set of tensor operations that build it, the
// parameter closure query, the recurrent Scan lift, and a compiler that turns
// a graph into a callable function with optional reverse-mode gradients.
//
// Construction is single-threaded. Operation constructors panic with *Error
// on configuration errors; use Try or the block package's lifecycle methods
// to turn those into errors.
package graph

import (
	"fmt"
	"slices"

	"github.com/born-ml/teafacto/internal/param"
	"github.com/born-ml/teafacto/internal/tensor"
)

// NodeID indexes a node in its graph's arena. A node's parents always have
// smaller ids than the node itself.
type NodeID int

const noNode NodeID = -1

type nodeKind uint8

const (
	kindInput nodeKind = iota
	kindParam
	kindConst
	kindStepArg
	kindOp
	kindScan
	kindScanOut
)

func (k nodeKind) String() string {
	return [...]string{"input", "param", "const", "steparg", "op", "scan", "scanout"}[k]
}

type node struct {
	kind    nodeKind
	op      OpType
	parents []NodeID
	shape   tensor.Shape
	dtype   tensor.DataType
	name    string
	scope   []string
	owner   NodeID // scan whose body contains this node, or noNode

	// Operation attributes.
	scalar float32
	hi     float32
	axis   int
	keep   bool
	ints   []int

	param *param.Parameter
	value *tensor.RawTensor
	scan  *scanInfo
	index int // scan output slot
}

func (n *node) isLeaf() bool {
	return n.kind == kindInput || n.kind == kindParam || n.kind == kindConst
}

// Graph is an arena of expression nodes.
type Graph struct {
	nodes  []*node
	params map[*param.Parameter]NodeID
	scope  []string
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{params: make(map[*param.Parameter]NodeID)}
}

// Len returns the number of nodes in the arena.
func (g *Graph) Len() int { return len(g.nodes) }

func (g *Graph) add(n *node) Var {
	for _, p := range n.parents {
		if p < 0 || int(p) >= len(g.nodes) {
			panic(fmt.Sprintf("graph: parent %d out of range", p))
		}
	}
	n.scope = g.scope
	n.owner = noNode
	g.nodes = append(g.nodes, n)
	return Var{g: g, id: NodeID(len(g.nodes) - 1)}
}

// Input creates an external feed slot. Dimensions given as -1 are unknown
// until run time.
func (g *Graph) Input(name string, dtype tensor.DataType, shape ...int) Var {
	return g.add(&node{kind: kindInput, name: name, dtype: dtype, shape: tensor.Shape(shape).Clone()})
}

// Param returns the node for p. Each parameter has exactly one node per graph.
func (g *Graph) Param(p *param.Parameter) Var {
	if id, ok := g.params[p]; ok {
		return Var{g: g, id: id}
	}
	v := g.add(&node{kind: kindParam, name: p.Name(), dtype: tensor.Float32, shape: p.Shape().Clone(), param: p})
	g.params[p] = v.id
	return v
}

// Const embeds a fixed tensor.
func (g *Graph) Const(value *tensor.RawTensor) Var {
	return g.add(&node{kind: kindConst, dtype: value.DType(), shape: value.Shape().Clone(), value: value.Clone()})
}

// PushScope enters a named scope; nodes created until the matching PopScope
// record it.
func (g *Graph) PushScope(name string) {
	g.scope = append(slices.Clip(g.scope), name)
}

// PopScope leaves the innermost scope.
func (g *Graph) PopScope() {
	if len(g.scope) == 0 {
		panic("graph: PopScope without PushScope")
	}
	g.scope = slices.Clip(g.scope[:len(g.scope)-1])
}

// Var is a handle to a node of a graph. The zero Var is invalid and used to
// mean "absent".
type Var struct {
	g  *Graph
	id NodeID
}

// Valid reports whether v refers to a node.
func (v Var) Valid() bool { return v.g != nil }

// Graph returns the owning graph.
func (v Var) Graph() *Graph { return v.g }

// ID returns the node index.
func (v Var) ID() NodeID { return v.id }

func (v Var) node() *node {
	if v.g == nil {
		panic(&Error{Op: "var", Err: fmt.Errorf("%w: use of invalid Var", ErrArity)})
	}
	return v.g.nodes[v.id]
}

// Shape returns the static shape; unknown dimensions are -1.
func (v Var) Shape() tensor.Shape { return v.node().shape }

// NDim returns the number of dimensions.
func (v Var) NDim() int { return len(v.node().shape) }

// Dim returns the static size of axis i (negative counts from the end).
func (v Var) Dim(i int) int {
	s := v.node().shape
	if i < 0 {
		i += len(s)
	}
	return s[i]
}

// DType returns the data type.
func (v Var) DType() tensor.DataType { return v.node().dtype }

// Name returns the node name (inputs and parameters).
func (v Var) Name() string { return v.node().name }

// Op returns the operation that produced v, or OpNone for leaves.
func (v Var) Op() OpType {
	n := v.node()
	if n.kind != kindOp {
		return OpNone
	}
	return n.op
}

// IsInput reports whether v is an external feed slot.
func (v Var) IsInput() bool { return v.node().kind == kindInput }

// Param returns the parameter behind a parameter node, or nil.
func (v Var) Param() *param.Parameter { return v.node().param }

// Parents returns the nodes v was derived from, in operand order.
func (v Var) Parents() []Var {
	n := v.node()
	out := make([]Var, len(n.parents))
	for i, p := range n.parents {
		out[i] = Var{g: v.g, id: p}
	}
	return out
}

// Scope returns the scope stack that was active when v was created.
func (v Var) Scope() []string { return v.node().scope }

// InScope reports whether name is on v's scope stack.
func (v Var) InScope(name string) bool {
	return slices.Contains(v.node().scope, name)
}

func (v Var) String() string {
	if v.g == nil {
		return "Var(<nil>)"
	}
	n := v.node()
	label := n.kind.String()
	if n.kind == kindOp {
		label = n.op.String()
	}
	if n.name != "" {
		label += " " + n.name
	}
	return fmt.Sprintf("Var#%d(%s %s%v)", v.id, label, n.dtype, n.shape)
}

// reach marks every node reachable from roots through parent links. It is a
// single pass over the arena from the highest root down, relying on parents
// having smaller ids.
func (g *Graph) reach(roots []Var) []bool {
	marked := make([]bool, len(g.nodes))
	top := noNode
	for _, r := range roots {
		if !r.Valid() {
			continue
		}
		if r.g != g {
			fail("reach", ErrForeign, "%v", r)
		}
		marked[r.id] = true
		top = max(top, r.id)
	}
	for id := top; id >= 0; id-- {
		if !marked[id] {
			continue
		}
		for _, p := range g.nodes[id].parents {
			marked[p] = true
		}
	}
	return marked
}

// Params returns the parameter closure of roots: every parameter reachable
// through parent links, each once, ordered by first use in the graph.
func Params(roots ...Var) []*param.Parameter {
	g := graphOf(roots)
	if g == nil {
		return nil
	}
	marked := g.reach(roots)
	var out []*param.Parameter
	for id, n := range g.nodes {
		if marked[id] && n.kind == kindParam {
			out = append(out, n.param)
		}
	}
	return out
}

// Inputs returns the inputs reachable from roots in creation order.
func Inputs(roots ...Var) []Var {
	g := graphOf(roots)
	if g == nil {
		return nil
	}
	marked := g.reach(roots)
	var out []Var
	for id, n := range g.nodes {
		if marked[id] && n.kind == kindInput {
			out = append(out, Var{g: g, id: NodeID(id)})
		}
	}
	return out
}

func graphOf(vs []Var) *Graph {
	for _, v := range vs {
		if v.Valid() {
			return v.g
		}
	}
	return nil
}
