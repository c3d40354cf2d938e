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

// Package interp evaluates traces node by node without compiling them.
//
// The interpreter supports every operation of the catalog, including the
// operations the compiler rejects, and every supported element type.
// Bfloat16 nodes are computed in float32 and rounded after each node.
package interp

import (
	"slices"

	"github.com/pkg/errors"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/backend/shape"
	"github.com/gx-org/texpr/graph"
	"github.com/gx-org/texpr/ops"
	"github.com/gx-org/texpr/tensor"
	"github.com/gx-org/texpr/trace"
)

// Interpreter evaluates traces.
type Interpreter struct{}

// New returns a new interpreter.
func New() *Interpreter {
	return &Interpreter{}
}

// Run evaluates a trace given its inputs.
// The outputs are new contiguous tensors.
func (it *Interpreter) Run(tr *trace.Trace, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	shapes := make([]shape.Shape, len(inputs))
	for i, in := range inputs {
		shapes[i] = *in.Shape()
	}
	g, err := graph.FromTrace(tr, shapes, graph.WithInterpreterOps())
	if err != nil {
		return nil, err
	}
	return it.Eval(g, inputs)
}

// Eval evaluates the outputs of a graph given its inputs.
func (it *Interpreter) Eval(g *graph.Graph, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if len(inputs) != g.NumInputs() {
		return nil, errors.Errorf("got %d inputs but want %d", len(inputs), g.NumInputs())
	}
	exec := &executor{
		g:      g,
		args:   inputs,
		values: make([]*tensor.Tensor, len(g.Nodes())),
	}
	return exec.runAll(g.Outputs())
}

type executor struct {
	g      *graph.Graph
	args   []*tensor.Tensor
	values []*tensor.Tensor
}

func (exec *executor) runAll(nodes []*graph.Node) ([]*tensor.Tensor, error) {
	outs := make([]*tensor.Tensor, len(nodes))
	for i, n := range nodes {
		val, err := exec.value(n)
		if err != nil {
			return nil, err
		}
		outs[i] = val.Contiguous()
	}
	return outs, nil
}

// value returns the value of a node, evaluating it if required.
func (exec *executor) value(n *graph.Node) (*tensor.Tensor, error) {
	if val := exec.values[n.ID()]; val != nil {
		return val, nil
	}
	val, err := exec.exec(n)
	if err != nil {
		return nil, errors.WithMessagef(err, "node %s", n)
	}
	exec.values[n.ID()] = val
	return val, nil
}

func (exec *executor) operands(n *graph.Node) ([]*tensor.Tensor, error) {
	vals := make([]*tensor.Tensor, len(n.Operands()))
	for i, id := range n.Operands() {
		var err error
		if vals[i], err = exec.value(exec.g.Node(id)); err != nil {
			return nil, err
		}
	}
	return vals, nil
}

func (exec *executor) exec(n *graph.Node) (*tensor.Tensor, error) {
	switch n.Kind() {
	case graph.InputKind:
		arg := exec.args[n.InputIndex()]
		if arg.DType() != n.DType() || !slices.Equal(arg.Dims(), n.Dims()) {
			return nil, errors.Errorf("input %d: got %s%v but want %s%v", n.InputIndex(), tensor.TypeName(arg.DType()), arg.Dims(), tensor.TypeName(n.DType()), n.Dims())
		}
		return arg, nil
	case graph.ConstantKind:
		return n.Value(), nil
	}
	xs, err := exec.operands(n)
	if err != nil {
		return nil, err
	}
	switch n.Kind() {
	case graph.UnaryKind, graph.BinaryKind, graph.TernaryKind:
		return apply(n, xs)
	case graph.SplitKind:
		step := xs[0].Dims()[n.Axis()] / n.Chunks()
		return xs[0].Narrow(n.Axis(), n.Index()*step, step)
	case graph.ConcatKind:
		return concat(n, xs)
	}
	return nil, errors.Errorf("node kind %s not supported", n.Kind())
}

// computeType returns the type in which the elements of a node are computed.
func computeType(dt dtype.DataType) dtype.DataType {
	if dt == dtype.Bfloat16 {
		return dtype.Float32
	}
	return dt
}

// prepare converts a value to the type of a node, then to its compute type,
// and broadcasts it to the shape of the node.
func prepare(n *graph.Node, x *tensor.Tensor) (*tensor.Tensor, error) {
	x, err := tensor.Convert(x, n.DType())
	if err != nil {
		return nil, err
	}
	if ct := computeType(n.DType()); ct != n.DType() {
		if x, err = tensor.Convert(x, ct); err != nil {
			return nil, err
		}
	}
	return x.Expand(n.Dims())
}

// round converts a result computed in the compute type back to the type of the node.
func round(n *graph.Node, x *tensor.Tensor) (*tensor.Tensor, error) {
	if x.DType() == n.DType() {
		return x, nil
	}
	return tensor.Convert(x, n.DType())
}

func apply(n *graph.Node, xs []*tensor.Tensor) (*tensor.Tensor, error) {
	args := make([]*tensor.Tensor, len(xs))
	for i, x := range xs {
		var err error
		if n.Op() == ops.Where && i == 0 {
			// The condition keeps its own type: any non-zero value selects.
			if x, err = tensor.Convert(x, dtype.Float64); err != nil {
				return nil, err
			}
			args[i], err = x.Expand(n.Dims())
		} else {
			args[i], err = prepare(n, x)
		}
		if err != nil {
			return nil, err
		}
	}
	var out *tensor.Tensor
	var err error
	switch computeType(n.DType()) {
	case dtype.Float32:
		out, err = applyT[float32](n, args)
	case dtype.Float64:
		out, err = applyT[float64](n, args)
	case dtype.Int32:
		out, err = applyT[int32](n, args)
	case dtype.Int64:
		out, err = applyT[int64](n, args)
	case dtype.Uint32:
		out, err = applyT[uint32](n, args)
	case dtype.Uint64:
		out, err = applyT[uint64](n, args)
	default:
		err = errors.Errorf("element type %s not supported", tensor.TypeName(n.DType()))
	}
	if err != nil {
		return nil, err
	}
	return round(n, out)
}

func applyT[T tensor.Element](n *graph.Node, args []*tensor.Tensor) (*tensor.Tensor, error) {
	dst := make([]T, tensor.Size(n.Dims()))
	switch n.Kind() {
	case graph.UnaryKind:
		kernel, err := ops.UnaryKernel[T](n.Op())
		if err != nil {
			return nil, err
		}
		kernel(dst, tensor.Values[T](args[0]))
	case graph.BinaryKind:
		kernel, err := ops.BinaryKernel[T](n.Op())
		if err != nil {
			return nil, err
		}
		kernel(dst, tensor.Values[T](args[0]), tensor.Values[T](args[1]))
	case graph.TernaryKind:
		if n.Op() == ops.Where {
			kernel := ops.SelectKernel[float64, T]()
			kernel(dst, tensor.Values[float64](args[0]), tensor.Values[T](args[1]), tensor.Values[T](args[2]))
			break
		}
		kernel, err := ops.TernaryKernel[T](n.Op())
		if err != nil {
			return nil, err
		}
		kernel(dst, tensor.Values[T](args[0]), tensor.Values[T](args[1]), tensor.Values[T](args[2]))
	}
	return tensor.FromSlice(dst, n.Dims()...), nil
}
