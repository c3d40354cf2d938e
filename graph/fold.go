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
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/texpr/ops"
	"github.com/gx-org/texpr/tensor"
)

// literals returns the scalar literals of the operands of a node.
// It returns false if one operand is not a scalar literal.
func (g *Graph) literals(n *Node) ([]any, bool) {
	lits := make([]any, len(n.operands))
	for i, id := range n.operands {
		x := g.nodes[id]
		if x.kind != ConstantKind || x.literal == nil {
			return nil, false
		}
		lits[i] = x.literal
	}
	return lits, len(lits) > 0
}

// fold replaces an operator applied to scalar literals by the literal it
// evaluates to. The operator is evaluated by the same kernel, and in the same
// element type, as in a loop nest. The result keeps the element type of the
// node and stays weak.
func (g *Graph) fold(n *Node) (*Node, bool) {
	lits, ok := g.literals(n)
	if !ok {
		return nil, false
	}
	var lit any
	var val *tensor.Tensor
	switch n.shape.DType {
	case dtype.Float32:
		lit, val, ok = foldT[float32](n.op, lits)
	case dtype.Float64:
		lit, val, ok = foldT[float64](n.op, lits)
	case dtype.Int32:
		lit, val, ok = foldT[int32](n.op, lits)
	case dtype.Int64:
		lit, val, ok = foldT[int64](n.op, lits)
	case dtype.Uint32:
		lit, val, ok = foldT[uint32](n.op, lits)
	}
	if !ok {
		return nil, false
	}
	return &Node{
		kind:    ConstantKind,
		weak:    true,
		shape:   n.shape,
		literal: lit,
		value:   val,
	}, true
}

func literalAs[T tensor.Element](lit any) T {
	switch val := lit.(type) {
	case float64:
		return T(val)
	case int64:
		return T(val)
	}
	return 0
}

func isTrue(lit any) bool {
	switch val := lit.(type) {
	case float64:
		return val != 0
	case int64:
		return val != 0
	}
	return false
}

func foldT[T tensor.Element](op ops.Op, lits []any) (any, *tensor.Tensor, bool) {
	xs := make([]T, len(lits))
	for i, lit := range lits {
		xs[i] = literalAs[T](lit)
	}
	out := make([]T, 1)
	switch len(lits) {
	case 1:
		kernel, err := ops.UnaryKernel[T](op)
		if err != nil {
			return nil, nil, false
		}
		kernel(out, xs[:1])
	case 2:
		kernel, err := ops.BinaryKernel[T](op)
		if err != nil {
			return nil, nil, false
		}
		kernel(out, xs[:1], xs[1:2])
	case 3:
		if op == ops.Where {
			out[0] = xs[2]
			if isTrue(lits[0]) {
				out[0] = xs[1]
			}
			break
		}
		kernel, err := ops.TernaryKernel[T](op)
		if err != nil {
			return nil, nil, false
		}
		kernel(out, xs[:1], xs[1:2], xs[2:3])
	default:
		return nil, nil, false
	}
	if ops.IsFloat[T]() {
		return float64(out[0]), tensor.Scalar(out[0]), true
	}
	return int64(out[0]), tensor.Scalar(out[0]), true
}
