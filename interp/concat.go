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

package interp

import (
	"github.com/pkg/errors"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/texpr/graph"
	"github.com/gx-org/texpr/tensor"
)

func concat(n *graph.Node, xs []*tensor.Tensor) (*tensor.Tensor, error) {
	parts := make([]*tensor.Tensor, len(xs))
	ct := computeType(n.DType())
	for i, x := range xs {
		var err error
		if parts[i], err = tensor.Convert(x, n.DType()); err != nil {
			return nil, err
		}
		if parts[i], err = tensor.Convert(parts[i], ct); err != nil {
			return nil, err
		}
	}
	var out *tensor.Tensor
	switch ct {
	case dtype.Float32:
		out = concatT[float32](n, parts)
	case dtype.Float64:
		out = concatT[float64](n, parts)
	case dtype.Int32:
		out = concatT[int32](n, parts)
	case dtype.Int64:
		out = concatT[int64](n, parts)
	case dtype.Uint32:
		out = concatT[uint32](n, parts)
	case dtype.Uint64:
		out = concatT[uint64](n, parts)
	default:
		return nil, errors.Errorf("element type %s not supported", tensor.TypeName(n.DType()))
	}
	return round(n, out)
}

// concatT concatenates contiguous tensors along the axis of a node.
func concatT[T tensor.Element](n *graph.Node, parts []*tensor.Tensor) *tensor.Tensor {
	dims := n.Dims()
	axis := n.Axis()
	outer := tensor.Size(dims[:axis])
	inner := tensor.Size(dims[axis+1:])
	vals := make([][]T, len(parts))
	for i, part := range parts {
		vals[i] = tensor.Values[T](part)
	}
	out := make([]T, 0, tensor.Size(dims))
	for o := range outer {
		for i, part := range parts {
			chunk := part.Dims()[axis] * inner
			out = append(out, vals[i][o*chunk:(o+1)*chunk]...)
		}
	}
	return tensor.FromSlice(out, dims...)
}
