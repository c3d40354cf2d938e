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

package graph

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/gx-org/backend/shape"
	"github.com/gx-org/texpr/ops"
	"github.com/gx-org/texpr/tensor"
	"github.com/gx-org/texpr/trace"
)

// UnsupportedOpError is returned when a trace uses an operation that
// cannot be compiled.
type UnsupportedOpError struct {
	// Op is the name of the operation.
	Op string
	// Index of the operation in the trace.
	Index int
}

func (err *UnsupportedOpError) Error() string {
	return fmt.Sprintf("operation %q (trace op %d) not supported by the compiler", err.Op, err.Index)
}

type config struct {
	interpreted bool
}

// Option configures the conversion of a trace into a graph.
type Option func(*config)

// WithInterpreterOps accepts operations only supported by the interpreter.
func WithInterpreterOps() Option {
	return func(c *config) {
		c.interpreted = true
	}
}

// CheckSupported returns an UnsupportedOpError for the first operation of the
// trace that cannot be compiled.
func CheckSupported(tr *trace.Trace) error {
	for i, op := range tr.Ops {
		if !compilable(op.Name) {
			return errors.WithStack(&UnsupportedOpError{Op: op.Name, Index: i})
		}
	}
	return nil
}

func compilable(name string) bool {
	switch name {
	case trace.ConstantOp, trace.ChunkOp, trace.CatOp:
		return true
	}
	op, ok := ops.Lookup(name)
	return ok && op.Compiled()
}

type builder struct {
	cfg    config
	g      *Graph
	tr     *trace.Trace
	values []*Node
}

// FromTrace converts a trace into a graph given the shapes of its inputs.
func FromTrace(tr *trace.Trace, inputs []shape.Shape, options ...Option) (*Graph, error) {
	b := &builder{
		g:      New(),
		tr:     tr,
		values: make([]*Node, tr.NumValues()),
	}
	for _, opt := range options {
		opt(&b.cfg)
	}
	if len(inputs) != tr.NumInputs {
		return nil, errors.Errorf("got %d input shapes but the trace has %d inputs", len(inputs), tr.NumInputs)
	}
	for i, sh := range inputs {
		var err error
		if b.values[i], err = b.g.Input(sh); err != nil {
			return nil, err
		}
	}
	for i := range tr.Ops {
		if err := b.buildOp(i, &tr.Ops[i]); err != nil {
			return nil, err
		}
	}
	outputs := make([]*Node, len(tr.Outputs))
	for i, val := range tr.Outputs {
		var err error
		if outputs[i], err = b.value(val); err != nil {
			return nil, errors.WithMessagef(err, "output %d", i)
		}
	}
	if err := b.g.SetOutputs(outputs...); err != nil {
		return nil, err
	}
	return b.g, nil
}

func (b *builder) value(v trace.Value) (*Node, error) {
	if int(v) < 0 || int(v) >= len(b.values) || b.values[v] == nil {
		return nil, errors.Errorf("value %s is undefined", v)
	}
	return b.values[v], nil
}

func (b *builder) operands(op *trace.Op) ([]*Node, error) {
	nodes := make([]*Node, len(op.Operands))
	for i, v := range op.Operands {
		var err error
		if nodes[i], err = b.value(v); err != nil {
			return nil, err
		}
	}
	return nodes, nil
}

func (b *builder) setResults(op *trace.Op, nodes ...*Node) error {
	if len(op.Results) != len(nodes) {
		return errors.Errorf("got %d results but want %d", len(op.Results), len(nodes))
	}
	for i, v := range op.Results {
		if int(v) < 0 || int(v) >= len(b.values) || b.values[v] != nil {
			return errors.Errorf("result %s is invalid or already defined", v)
		}
		b.values[v] = nodes[i]
	}
	return nil
}

func (b *builder) buildOp(index int, op *trace.Op) error {
	nodes, err := b.buildNodes(index, op)
	if err != nil {
		var unsupported *UnsupportedOpError
		if errors.As(err, &unsupported) {
			return err
		}
		return errors.WithMessagef(err, "trace op %d (%s)", index, op.Name)
	}
	if err := b.setResults(op, nodes...); err != nil {
		return errors.WithMessagef(err, "trace op %d (%s)", index, op.Name)
	}
	return nil
}

func (b *builder) attr(op *trace.Op, name string) (int, error) {
	val, ok := op.Attrs[name]
	if !ok {
		return 0, errors.Errorf("missing attribute %q", name)
	}
	return val, nil
}

func (b *builder) buildNodes(index int, op *trace.Op) ([]*Node, error) {
	xs, err := b.operands(op)
	if err != nil {
		return nil, err
	}
	switch op.Name {
	case trace.ConstantOp:
		if len(xs) != 0 {
			return nil, errors.Errorf("a constant has no operand")
		}
		n, err := b.constant(op.Literal)
		return []*Node{n}, err
	case trace.ChunkOp:
		if len(xs) != 1 {
			return nil, errors.Errorf("got %d operands but want 1", len(xs))
		}
		chunks, err := b.attr(op, trace.ChunksAttr)
		if err != nil {
			return nil, err
		}
		dim, err := b.attr(op, trace.DimAttr)
		if err != nil {
			return nil, err
		}
		return b.g.Split(xs[0], dim, chunks)
	case trace.CatOp:
		dim, err := b.attr(op, trace.DimAttr)
		if err != nil {
			return nil, err
		}
		n, err := b.g.Concat(dim, xs...)
		return []*Node{n}, err
	}
	prim, ok := ops.Lookup(op.Name)
	if !ok || (!prim.Compiled() && !b.cfg.interpreted) {
		return nil, errors.WithStack(&UnsupportedOpError{Op: op.Name, Index: index})
	}
	if (prim == ops.Add || prim == ops.Sub) && len(xs) == 3 {
		n, err := b.scaled(prim, xs[0], xs[1], xs[2])
		return []*Node{n}, err
	}
	if len(xs) != prim.Arity() {
		return nil, errors.Errorf("got %d operands but want %d", len(xs), prim.Arity())
	}
	var n *Node
	switch prim.Arity() {
	case 1:
		n, err = b.g.Unary(prim, xs[0])
	case 2:
		n, err = b.g.Binary(prim, xs[0], xs[1])
	case 3:
		n, err = b.g.Ternary(prim, xs[0], xs[1], xs[2])
	}
	return []*Node{n}, err
}

func (b *builder) constant(literal any) (*Node, error) {
	if t, ok := literal.(*tensor.Tensor); ok {
		return b.g.Constant(t)
	}
	return b.g.Scalar(literal)
}

// isOne returns true if a node is the scalar literal 1.
func isOne(n *Node) bool {
	switch val := n.Literal().(type) {
	case float64:
		return val == 1
	case int64:
		return val == 1
	}
	return false
}

// scaled builds x + alpha*y or x - alpha*y.
func (b *builder) scaled(op ops.Op, x, y, alpha *Node) (*Node, error) {
	if !isOne(alpha) {
		var err error
		if y, err = b.g.Binary(ops.Mul, alpha, y); err != nil {
			return nil, err
		}
	}
	return b.g.Binary(op, x, y)
}
