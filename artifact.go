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
	"slices"

	"github.com/pkg/errors"
	"github.com/gx-org/backend/shape"
	"github.com/gx-org/texpr/codegen"
	"github.com/gx-org/texpr/loopir"
	"github.com/gx-org/texpr/tensor"
	"go.uber.org/multierr"
)

// Artifact is a kernel compiled for a signature.
// An artifact is immutable and can be executed concurrently.
type Artifact struct {
	sig     Signature
	key     string
	exe     *codegen.Executable
	outputs []shape.Shape
}

func newArtifact(sig Signature, exe *codegen.Executable) *Artifact {
	prog := exe.Program()
	outputs := make([]shape.Shape, len(prog.Outputs))
	for i, id := range prog.Outputs {
		buf := &prog.Buffers[id]
		outputs[i] = shape.Shape{DType: buf.DType, AxisLengths: buf.Dims}
	}
	return &Artifact{
		sig:     sig,
		key:     sig.Key(),
		exe:     exe,
		outputs: outputs,
	}
}

// Signature returns the signature the artifact has been compiled for.
func (a *Artifact) Signature() Signature {
	return a.sig
}

// Program returns the loop program of the artifact.
func (a *Artifact) Program() *loopir.Program {
	return a.exe.Program()
}

// OutputShapes returns the shapes of the outputs computed by the artifact.
func (a *Artifact) OutputShapes() []shape.Shape {
	return a.outputs
}

func (a *Artifact) checkInputs(inputs []*tensor.Tensor) error {
	var errs error
	if len(inputs) != len(a.sig.Inputs) {
		return errors.Errorf("got %d inputs but want %d", len(inputs), len(a.sig.Inputs))
	}
	for i, in := range inputs {
		if in == nil {
			errs = multierr.Append(errs, errors.Errorf("input %d: nil tensor", i))
			continue
		}
		if err := a.sig.Inputs[i].Matches(in); err != nil {
			errs = multierr.Append(errs, errors.WithMessagef(err, "input %d", i))
		}
	}
	return errs
}

func (a *Artifact) checkOutputs(outputs []*tensor.Tensor) error {
	var errs error
	if len(outputs) != len(a.outputs) {
		return errors.Errorf("got %d outputs but want %d", len(outputs), len(a.outputs))
	}
	for i, out := range outputs {
		want := TensorSpec{
			DType:   a.outputs[i].DType,
			Dims:    a.outputs[i].AxisLengths,
			Strides: tensor.RowMajorStrides(a.outputs[i].AxisLengths),
		}
		switch {
		case out == nil:
			errs = multierr.Append(errs, errors.Errorf("output %d: nil tensor", i))
		case !out.IsContiguous():
			errs = multierr.Append(errs, errors.Errorf("output %d: tensor is not contiguous", i))
		case out.DType() != want.DType:
			errs = multierr.Append(errs, errors.Errorf("output %d: got element type %s but want %s", i, tensor.TypeName(out.DType()), tensor.TypeName(want.DType)))
		case !slices.Equal(out.Dims(), want.Dims):
			errs = multierr.Append(errs, errors.Errorf("output %d: got %s but want %s", i, SpecOf(out), want))
		}
	}
	return errs
}

// Execute runs the artifact. Outputs are allocated if outputs is nil.
// Otherwise, outputs must be contiguous tensors of the expected shapes.
func (a *Artifact) Execute(inputs, outputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if err := a.checkInputs(inputs); err != nil {
		return nil, &SignatureMismatchError{Key: a.key, Err: err}
	}
	if outputs == nil {
		outputs = make([]*tensor.Tensor, len(a.outputs))
		for i, sh := range a.outputs {
			var err error
			if outputs[i], err = tensor.Zeros(sh.DType, sh.AxisLengths...); err != nil {
				return nil, err
			}
		}
	} else if err := a.checkOutputs(outputs); err != nil {
		return nil, &SignatureMismatchError{Key: a.key, Err: err}
	}
	if err := a.exe.Run(inputs, outputs); err != nil {
		return nil, errors.WithMessagef(err, "signature %s", a.key)
	}
	return outputs, nil
}
