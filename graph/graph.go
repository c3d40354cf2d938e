// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package graph builds a directed acyclic graph of typed tensor expressions.
//
// Nodes are owned by their graph and reference their operands by index.
// A node is never modified once it has been created. Identical expressions
// are deduplicated when they are added to the graph, and operators applied
// to scalar literals are folded into a literal.
package graph

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/backend/shape"
	"github.com/gx-org/texpr/ops"
	"github.com/gx-org/texpr/shapeinference"
	"github.com/gx-org/texpr/tensor"
)

// Kind of a node.
type Kind int

// Kinds of nodes.
const (
	InputKind Kind = iota
	ConstantKind
	UnaryKind
	BinaryKind
	TernaryKind
	SplitKind
	ConcatKind
)

var kindNames = map[Kind]string{
	InputKind:    "input",
	ConstantKind: "constant",
	UnaryKind:    "unary",
	BinaryKind:   "binary",
	TernaryKind:  "ternary",
	SplitKind:    "split",
	ConcatKind:   "concat",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Node is an expression of a graph.
type Node struct {
	graph    *Graph
	id       int
	kind     Kind
	op       ops.Op
	operands []int
	shape    shape.Shape
	weak     bool

	// Input index for input nodes.
	input int
	// Value of constant nodes.
	value *tensor.Tensor
	// Scalar literal of weak constant nodes: a float64 or an int64.
	literal any
	// Axis of split and concat nodes.
	axis int
	// Number of chunks and chunk index of split nodes.
	chunks, index int
}

// ID returns the index of the node in its graph.
func (n *Node) ID() int { return n.id }

// Kind returns the kind of the node.
func (n *Node) Kind() Kind { return n.kind }

// Op returns the operator of unary, binary, and ternary nodes.
func (n *Node) Op() ops.Op { return n.op }

// Operands returns the indices of the operands of the node.
func (n *Node) Operands() []int { return n.operands }

// Shape returns the inferred shape and element type of the node.
func (n *Node) Shape() shape.Shape { return n.shape }

// DType returns the inferred element type of the node.
func (n *Node) DType() dtype.DataType { return n.shape.DType }

// Dims returns the inferred axis lengths of the node.
func (n *Node) Dims() []int { return n.shape.AxisLengths }

// Weak returns true if the node is a scalar literal, or is only computed from scalar literals.
func (n *Node) Weak() bool { return n.weak }

// InputIndex returns the index of the graph input of an input node.
func (n *Node) InputIndex() int { return n.input }

// Value returns the value of a constant node.
func (n *Node) Value() *tensor.Tensor { return n.value }

// Literal returns the scalar literal of a weak constant node, or nil.
func (n *Node) Literal() any { return n.literal }

// Axis returns the axis of a split or concat node.
func (n *Node) Axis() int { return n.axis }

// Chunks returns the number of chunks of a split node.
func (n *Node) Chunks() int { return n.chunks }

// Index returns the chunk index of a split node.
func (n *Node) Index() int { return n.index }

// operand returns the shape inference operand of the node.
func (n *Node) operand() shapeinference.Operand {
	return shapeinference.Operand{Shape: n.shape, Weak: n.weak}
}

// String representation of the node.
func (n *Node) String() string {
	args := make([]string, len(n.operands))
	for i, op := range n.operands {
		args[i] = fmt.Sprintf("%%%d", op)
	}
	var expr string
	switch n.kind {
	case InputKind:
		expr = fmt.Sprintf("input(%d)", n.input)
	case ConstantKind:
		if n.literal != nil {
			expr = fmt.Sprintf("literal(%v)", n.literal)
		} else {
			expr = fmt.Sprintf("constant%v", n.Dims())
		}
	case SplitKind:
		expr = fmt.Sprintf("split(%s, axis=%d, chunk=%d/%d)", args[0], n.axis, n.index, n.chunks)
	case ConcatKind:
		expr = fmt.Sprintf("concat(%v, axis=%d)", args, n.axis)
	default:
		expr = fmt.Sprintf("%s%v", n.op, args)
	}
	return fmt.Sprintf("%%%d = %s: %s%v", n.id, expr, tensor.TypeName(n.DType()), n.Dims())
}

// dedupKey indexes candidate nodes with the same kind, operator, and first operand.
type dedupKey struct {
	kind     Kind
	op       ops.Op
	numOps   int
	firstOpd int
}

// Graph is a directed acyclic graph of tensor expressions.
type Graph struct {
	nodes   []*Node
	inputs  []int
	outputs []int
	dedup   map[dedupKey][]*Node
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{dedup: make(map[dedupKey][]*Node)}
}

// Nodes returns all the nodes of the graph in construction order.
func (g *Graph) Nodes() []*Node {
	return g.nodes
}

// Node returns a node given its index.
func (g *Graph) Node(id int) *Node {
	return g.nodes[id]
}

// NumInputs returns the number of inputs of the graph.
func (g *Graph) NumInputs() int {
	return len(g.inputs)
}

// Inputs returns the input nodes in the order of their input index.
func (g *Graph) Inputs() []*Node {
	return g.nodesOf(g.inputs)
}

// Outputs returns the output nodes of the graph.
func (g *Graph) Outputs() []*Node {
	return g.nodesOf(g.outputs)
}

func (g *Graph) nodesOf(ids []int) []*Node {
	nodes := make([]*Node, len(ids))
	for i, id := range ids {
		nodes[i] = g.nodes[id]
	}
	return nodes
}

func (g *Graph) checkOwned(context string, xs ...*Node) error {
	for i, x := range xs {
		if x == nil {
			return errors.Errorf("%s: operand %d is nil", context, i)
		}
		if x.graph != g {
			return errors.Errorf("%s: operand %d (node %d) belongs to another graph", context, i, x.id)
		}
	}
	return nil
}

func ids(xs []*Node) []int {
	out := make([]int, len(xs))
	for i, x := range xs {
		out[i] = x.id
	}
	return out
}

// getOrCreate returns an existing node equal to the template or appends the template to the graph.
func (g *Graph) getOrCreate(n *Node) *Node {
	key := dedupKey{kind: n.kind, op: n.op, numOps: len(n.operands), firstOpd: -1}
	if len(n.operands) > 0 {
		key.firstOpd = n.operands[0]
	}
	for _, candidate := range g.dedup[key] {
		if sameNode(candidate, n) {
			return candidate
		}
	}
	n.graph = g
	n.id = len(g.nodes)
	g.nodes = append(g.nodes, n)
	g.dedup[key] = append(g.dedup[key], n)
	return n
}

func sameNode(a, b *Node) bool {
	if !slices.Equal(a.operands, b.operands) {
		return false
	}
	if a.shape.DType != b.shape.DType || !slices.Equal(a.shape.AxisLengths, b.shape.AxisLengths) {
		return false
	}
	if a.axis != b.axis || a.chunks != b.chunks || a.index != b.index || a.weak != b.weak {
		return false
	}
	if a.kind != ConstantKind {
		return true
	}
	return sameLiteral(a.literal, b.literal)
}

func sameLiteral(a, b any) bool {
	switch aVal := a.(type) {
	case float64:
		bVal, ok := b.(float64)
		return ok && math.Float64bits(aVal) == math.Float64bits(bVal)
	case int64:
		bVal, ok := b.(int64)
		return ok && aVal == bVal
	}
	// Tensor constants are never deduplicated.
	return false
}

// addOp appends an operator node to the graph. Operators applied to scalar
// literals are folded into a literal.
func (g *Graph) addOp(n *Node) *Node {
	if lit, ok := g.fold(n); ok {
		return g.getOrCreate(lit)
	}
	return g.getOrCreate(n)
}

// Input appends a new input to the graph.
func (g *Graph) Input(sh shape.Shape) (*Node, error) {
	if !tensor.IsSupported(sh.DType) {
		return nil, errors.Errorf("input %d: data type %s not supported", len(g.inputs), tensor.TypeName(sh.DType))
	}
	n := &Node{
		graph: g,
		id:    len(g.nodes),
		kind:  InputKind,
		input: len(g.inputs),
		shape: shape.Shape{DType: sh.DType, AxisLengths: slices.Clone(sh.AxisLengths)},
	}
	if n.shape.AxisLengths == nil {
		n.shape.AxisLengths = []int{}
	}
	g.nodes = append(g.nodes, n)
	g.inputs = append(g.inputs, n.id)
	return n, nil
}

// Constant appends a tensor constant to the graph.
// The graph stores a copy of the tensor.
func (g *Graph) Constant(value *tensor.Tensor) (*Node, error) {
	if !tensor.IsSupported(value.DType()) {
		return nil, errors.Errorf("constant: data type %s not supported", tensor.TypeName(value.DType()))
	}
	value = value.Contiguous()
	return g.getOrCreate(&Node{
		kind:  ConstantKind,
		value: value,
		shape: shape.Shape{DType: value.DType(), AxisLengths: slices.Clone(value.Dims())},
	}), nil
}

// Scalar appends a weak scalar literal to the graph.
// Floating point literals are stored as float64, integer literals as int64.
func (g *Graph) Scalar(literal any) (*Node, error) {
	n := &Node{
		kind:  ConstantKind,
		weak:  true,
		shape: shape.Shape{AxisLengths: []int{}},
	}
	switch val := literal.(type) {
	case float64:
		n.literal = val
	case float32:
		n.literal = float64(val)
	case int:
		n.literal = int64(val)
	case int32:
		n.literal = int64(val)
	case int64:
		n.literal = val
	case uint32:
		n.literal = int64(val)
	default:
		return nil, errors.Errorf("scalar literal %v of type %T not supported", literal, literal)
	}
	switch val := n.literal.(type) {
	case float64:
		n.shape.DType = dtype.Float64
		n.value = tensor.Scalar(val)
	case int64:
		n.shape.DType = dtype.Int64
		n.value = tensor.Scalar(val)
	}
	return g.getOrCreate(n), nil
}

// Unary appends a unary operator to the graph.
func (g *Graph) Unary(op ops.Op, x *Node) (*Node, error) {
	if err := g.checkOwned(op.String(), x); err != nil {
		return nil, err
	}
	out, err := shapeinference.UnaryOp(op, x.operand())
	if err != nil {
		return nil, err
	}
	return g.addOp(&Node{
		kind:     UnaryKind,
		op:       op,
		operands: []int{x.id},
		shape:    out.Shape,
		weak:     out.Weak,
	}), nil
}

// Binary appends a binary operator to the graph.
func (g *Graph) Binary(op ops.Op, x, y *Node) (*Node, error) {
	if err := g.checkOwned(op.String(), x, y); err != nil {
		return nil, err
	}
	out, err := shapeinference.BinaryOp(op, x.operand(), y.operand())
	if err != nil {
		return nil, err
	}
	return g.addOp(&Node{
		kind:     BinaryKind,
		op:       op,
		operands: []int{x.id, y.id},
		shape:    out.Shape,
		weak:     out.Weak,
	}), nil
}

// Ternary appends a ternary operator, clamp or where, to the graph.
func (g *Graph) Ternary(op ops.Op, x, y, z *Node) (*Node, error) {
	if err := g.checkOwned(op.String(), x, y, z); err != nil {
		return nil, err
	}
	out, err := shapeinference.TernaryOp(op, x.operand(), y.operand(), z.operand())
	if err != nil {
		return nil, err
	}
	return g.addOp(&Node{
		kind:     TernaryKind,
		op:       op,
		operands: []int{x.id, y.id, z.id},
		shape:    out.Shape,
		weak:     out.Weak,
	}), nil
}

// Split appends the chunks of equal lengths resulting from splitting a node along an axis.
func (g *Graph) Split(x *Node, axis, chunks int) ([]*Node, error) {
	if err := g.checkOwned("split", x); err != nil {
		return nil, err
	}
	out, err := shapeinference.Split(x.operand(), axis, chunks)
	if err != nil {
		return nil, err
	}
	axis, _ = shapeinference.NormalizeAxis(axis, len(x.Dims()))
	nodes := make([]*Node, chunks)
	for i := range nodes {
		nodes[i] = g.getOrCreate(&Node{
			kind:     SplitKind,
			operands: []int{x.id},
			shape:    shape.Shape{DType: out.DType, AxisLengths: slices.Clone(out.AxisLengths)},
			axis:     axis,
			chunks:   chunks,
			index:    i,
		})
	}
	return nodes, nil
}

// Concat appends the concatenation of nodes along an axis.
func (g *Graph) Concat(axis int, xs ...*Node) (*Node, error) {
	if err := g.checkOwned("concat", xs...); err != nil {
		return nil, err
	}
	operands := make([]shapeinference.Operand, len(xs))
	for i, x := range xs {
		operands[i] = x.operand()
	}
	out, err := shapeinference.Concat(axis, operands...)
	if err != nil {
		return nil, err
	}
	axis, _ = shapeinference.NormalizeAxis(axis, len(out.AxisLengths))
	return g.getOrCreate(&Node{
		kind:     ConcatKind,
		operands: ids(xs),
		shape:    out.Shape,
		axis:     axis,
	}), nil
}

// SetOutputs sets the ordered outputs of the graph.
func (g *Graph) SetOutputs(xs ...*Node) error {
	if len(xs) == 0 {
		return errors.Errorf("a graph requires at least one output")
	}
	if err := g.checkOwned("outputs", xs...); err != nil {
		return err
	}
	g.outputs = ids(xs)
	return nil
}

// String representation of the graph.
func (g *Graph) String() string {
	var b strings.Builder
	for _, n := range g.nodes {
		b.WriteString(n.String())
		b.WriteString("\n")
	}
	outs := make([]string, len(g.outputs))
	for i, out := range g.outputs {
		outs[i] = fmt.Sprintf("%%%d", out)
	}
	fmt.Fprintf(&b, "return %s\n", strings.Join(outs, ", "))
	return b.String()
}
