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

package trace

// Recorder records operations into a trace.
type Recorder struct {
	tr   Trace
	next Value
}

// NewRecorder returns a recorder for a function with numInputs inputs.
func NewRecorder(numInputs int) *Recorder {
	return &Recorder{
		tr:   Trace{NumInputs: numInputs},
		next: Value(numInputs),
	}
}

// Input returns the value of the ith input.
func (r *Recorder) Input(i int) Value {
	return Value(i)
}

func (r *Recorder) record(op Op, numResults int) []Value {
	op.Results = make([]Value, numResults)
	for i := range op.Results {
		op.Results[i] = r.next
		r.next++
	}
	r.tr.Ops = append(r.tr.Ops, op)
	return op.Results
}

// Constant records a constant. The literal is either a Go scalar, for example
// 2 or 0.5, or a *tensor.Tensor.
func (r *Recorder) Constant(literal any) Value {
	return r.record(Op{Name: ConstantOp, Literal: literal}, 1)[0]
}

// Call records a call to a primitive.
func (r *Recorder) Call(name string, operands ...Value) Value {
	return r.record(Op{Name: name, Operands: operands}, 1)[0]
}

// Chunk records the split of a value into chunks of equal length along an axis.
func (r *Recorder) Chunk(x Value, chunks, dim int) []Value {
	return r.record(Op{
		Name:     ChunkOp,
		Operands: []Value{x},
		Attrs:    map[string]int{ChunksAttr: chunks, DimAttr: dim},
	}, max(chunks, 0))
}

// Cat records the concatenation of values along an axis.
func (r *Recorder) Cat(dim int, xs ...Value) Value {
	return r.record(Op{
		Name:     CatOp,
		Operands: xs,
		Attrs:    map[string]int{DimAttr: dim},
	}, 1)[0]
}

// Output appends values to the outputs of the trace.
func (r *Recorder) Output(xs ...Value) {
	r.tr.Outputs = append(r.tr.Outputs, xs...)
}

// Trace returns the recorded trace.
func (r *Recorder) Trace() *Trace {
	tr := r.tr
	return &tr
}
