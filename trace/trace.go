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

// Package trace defines the ordered list of operations recorded while tracing
// a tensor function. A trace is the input of the compiler.
package trace

import (
	"fmt"
	"sort"
	"strings"
)

// Value references a value of a trace.
// Inputs are numbered from 0 to NumInputs-1.
// The results of operations are numbered in the order they are recorded.
type Value int

// String representation of the value.
func (v Value) String() string {
	return fmt.Sprintf("%%%d", int(v))
}

// Names of the structural operations.
const (
	ConstantOp = "constant"
	ChunkOp    = "chunk"
	CatOp      = "cat"
)

// Names of the integer attributes.
const (
	DimAttr    = "dim"
	ChunksAttr = "chunks"
)

// Op is a recorded operation.
type Op struct {
	// Name of the primitive, for example "add" or "sigmoid".
	Name string
	// Operands of the operation.
	Operands []Value
	// Attrs stores integer attributes like the axis of a concatenation.
	Attrs map[string]int
	// Literal is the value of a constant: a *tensor.Tensor or a Go scalar.
	Literal any
	// Results produced by the operation.
	Results []Value
}

// String representation of the operation.
func (op *Op) String() string {
	var b strings.Builder
	for i, r := range op.Results {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(r.String())
	}
	b.WriteString(" = ")
	b.WriteString(op.Name)
	b.WriteString("(")
	var args []string
	for _, x := range op.Operands {
		args = append(args, x.String())
	}
	if op.Literal != nil {
		args = append(args, fmt.Sprint(op.Literal))
	}
	keys := make([]string, 0, len(op.Attrs))
	for k := range op.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, fmt.Sprintf("%s=%d", k, op.Attrs[k]))
	}
	b.WriteString(strings.Join(args, ", "))
	b.WriteString(")")
	return b.String()
}

// Trace is an ordered list of operations over a given number of inputs.
type Trace struct {
	NumInputs int
	Ops       []Op
	Outputs   []Value
}

// NumValues returns the number of values defined in the trace.
func (tr *Trace) NumValues() int {
	n := tr.NumInputs
	for _, op := range tr.Ops {
		n += len(op.Results)
	}
	return n
}

// Names returns the sorted set of operation names used in the trace.
func (tr *Trace) Names() []string {
	seen := make(map[string]bool)
	var names []string
	for _, op := range tr.Ops {
		if seen[op.Name] {
			continue
		}
		seen[op.Name] = true
		names = append(names, op.Name)
	}
	sort.Strings(names)
	return names
}

// String representation of the trace.
func (tr *Trace) String() string {
	var b strings.Builder
	inputs := make([]string, tr.NumInputs)
	for i := range inputs {
		inputs[i] = Value(i).String()
	}
	fmt.Fprintf(&b, "inputs(%s)\n", strings.Join(inputs, ", "))
	for i := range tr.Ops {
		b.WriteString(tr.Ops[i].String())
		b.WriteString("\n")
	}
	outputs := make([]string, len(tr.Outputs))
	for i, out := range tr.Outputs {
		outputs[i] = out.String()
	}
	fmt.Fprintf(&b, "return %s\n", strings.Join(outputs, ", "))
	return b.String()
}
