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

package texpr

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/gx-org/backend/dtype"
	texprfmt "github.com/gx-org/texpr/base/fmt"
	"github.com/gx-org/texpr/tensor"
)

// TensorSpec is the layout of a tensor in a signature.
type TensorSpec struct {
	DType   dtype.DataType
	Dims    []int
	Strides []int
}

// SpecOf returns the layout of a tensor.
// Strides of axes of length 1 are irrelevant and set to 0.
func SpecOf(t *tensor.Tensor) TensorSpec {
	strides := slices.Clone(t.Strides())
	for i, d := range t.Dims() {
		if d == 1 {
			strides[i] = 0
		}
	}
	return TensorSpec{
		DType:   t.DType(),
		Dims:    slices.Clone(t.Dims()),
		Strides: strides,
	}
}

// Matches returns nil if a tensor has the layout of the spec.
func (s TensorSpec) Matches(t *tensor.Tensor) error {
	got := SpecOf(t)
	if got.DType != s.DType {
		return errors.Errorf("got element type %s but want %s", tensor.TypeName(got.DType), tensor.TypeName(s.DType))
	}
	if !slices.Equal(got.Dims, s.Dims) {
		return errors.Errorf("got axis lengths %s but want %s", texprfmt.Ints(got.Dims), texprfmt.Ints(s.Dims))
	}
	if !slices.Equal(got.Strides, s.Strides) {
		return errors.Errorf("got strides %s but want %s", texprfmt.Ints(got.Strides), texprfmt.Ints(s.Strides))
	}
	return nil
}

func (s TensorSpec) String() string {
	return fmt.Sprintf("%s%s/%s", tensor.TypeName(s.DType), texprfmt.Ints(s.Dims), texprfmt.Ints(s.Strides))
}

// Signature is the concrete layout of the inputs of a call.
// A kernel compiles one artifact per distinct signature.
type Signature struct {
	Inputs     []TensorSpec
	NumOutputs int
}

// SignatureOf returns the signature of a call given its inputs.
func SignatureOf(numOutputs int, inputs ...*tensor.Tensor) Signature {
	sig := Signature{
		Inputs:     make([]TensorSpec, len(inputs)),
		NumOutputs: numOutputs,
	}
	for i, in := range inputs {
		sig.Inputs[i] = SpecOf(in)
	}
	return sig
}

// Key returns a canonical string identifying the signature.
// Two signatures have the same key if and only if they are equal.
func (s Signature) Key() string {
	specs := make([]string, len(s.Inputs))
	for i, in := range s.Inputs {
		specs[i] = in.String()
	}
	return fmt.Sprintf("(%s)->%d", strings.Join(specs, ", "), s.NumOutputs)
}

func (s Signature) String() string {
	return s.Key()
}
