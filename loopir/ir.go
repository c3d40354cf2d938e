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

// Package loopir defines the loop intermediate representation of a graph and
// lowers graphs into it.
//
// A program is an ordered list of loop nests. Each nest iterates over a
// shape and evaluates, for every index of the iteration space, a sequence of
// scalar instructions in static single assignment form: instruction i writes
// register i. Memory accesses are affine functions of the loop variables.
package loopir

import (
	"fmt"
	"strings"

	"github.com/gx-org/backend/dtype"
	texprfmt "github.com/gx-org/texpr/base/fmt"
	"github.com/gx-org/texpr/ops"
	"github.com/gx-org/texpr/tensor"
)

// BufferKind is the role of a buffer in a program.
type BufferKind int

// Buffer kinds.
const (
	InputBuffer BufferKind = iota
	ConstantBuffer
	TempBuffer
	OutputBuffer
)

var bufferPrefixes = map[BufferKind]string{
	InputBuffer:    "in",
	ConstantBuffer: "cst",
	TempBuffer:     "tmp",
	OutputBuffer:   "out",
}

// Buffer is a strided array read or written by a program.
type Buffer struct {
	Kind BufferKind
	// Index of the input or output for input and output buffers.
	Index   int
	DType   dtype.DataType
	Dims    []int
	Strides []int
	// Value of a constant buffer.
	Value *tensor.Tensor
}

// Size returns the number of elements in the buffer.
func (b *Buffer) Size() int {
	return tensor.Size(b.Dims)
}

// Name returns the name of the buffer in the IR representation.
func (b *Buffer) Name(id int) string {
	switch b.Kind {
	case InputBuffer, OutputBuffer:
		return fmt.Sprintf("%s%d", bufferPrefixes[b.Kind], b.Index)
	}
	return fmt.Sprintf("%s%d", bufferPrefixes[b.Kind], id)
}

// Access is the affine address offset + sum(i_k*Strides[k]) of an element in a
// buffer where i_k is the kth loop variable of the nest.
type Access struct {
	Buffer  int
	Offset  int
	Strides []int
}

// InstrKind is the kind of a scalar instruction.
type InstrKind int

// Instruction kinds.
const (
	// Load reads an element from a buffer.
	Load InstrKind = iota
	// Const is a scalar literal.
	Const
	// Cast converts a register to another element type.
	Cast
	// Unary applies a unary operator.
	Unary
	// Binary applies a binary operator.
	Binary
	// Ternary applies a ternary operator on operands of the same element type.
	Ternary
	// Select returns Args[1] if Args[0] is not zero, Args[2] otherwise.
	// The condition can have a different element type.
	Select
)

// Instr is a scalar instruction.
// The result of instruction i of a nest is stored in register i.
type Instr struct {
	Kind  InstrKind
	DType dtype.DataType
	Op    ops.Op
	// Args are the registers read by the instruction.
	Args []int
	// Access of a load instruction.
	Access Access
	// Literal of a constant instruction: a float64 or an int64.
	Literal any
}

// Store writes a register into a buffer.
type Store struct {
	Src    int
	Access Access
}

// Nest is a loop nest over Dims.
type Nest struct {
	Dims   []int
	Body   []Instr
	Stores []Store
}

// Program is a sequence of loop nests reading inputs and writing outputs.
type Program struct {
	Buffers []Buffer
	Nests   []Nest
	// Inputs and Outputs map input and output indices to buffers.
	Inputs  []int
	Outputs []int
}

func loopVars(rank int) []string {
	vars := make([]string, rank)
	for i := range vars {
		vars[i] = fmt.Sprintf("i%d", i)
	}
	return vars
}

func (p *Program) access(a Access, vars []string) string {
	return fmt.Sprintf("%s[%s]", p.Buffers[a.Buffer].Name(a.Buffer), texprfmt.Affine(a.Offset, a.Strides, vars))
}

func registers(args []int) string {
	regs := make([]string, len(args))
	for i, arg := range args {
		regs[i] = fmt.Sprintf("r%d", arg)
	}
	return strings.Join(regs, ", ")
}

func (p *Program) instrString(in *Instr, vars []string) string {
	switch in.Kind {
	case Load:
		return "load " + p.access(in.Access, vars)
	case Const:
		return fmt.Sprintf("const %v", in.Literal)
	case Cast:
		return fmt.Sprintf("cast r%d", in.Args[0])
	case Select:
		return fmt.Sprintf("select(%s)", registers(in.Args))
	}
	return fmt.Sprintf("%s(%s)", in.Op, registers(in.Args))
}

func (p *Program) nestString(n *Nest) string {
	vars := loopVars(len(n.Dims))
	var b strings.Builder
	loops := make([]string, len(n.Dims))
	for i, d := range n.Dims {
		loops[i] = fmt.Sprintf("%s < %d", vars[i], d)
	}
	if len(loops) == 0 {
		b.WriteString("do {\n")
	} else {
		fmt.Fprintf(&b, "for %s {\n", strings.Join(loops, ", "))
	}
	var body strings.Builder
	for i := range n.Body {
		in := &n.Body[i]
		fmt.Fprintf(&body, "r%d: %s = %s\n", i, tensor.TypeName(in.DType), p.instrString(in, vars))
	}
	for _, st := range n.Stores {
		fmt.Fprintf(&body, "%s = r%d\n", p.access(st.Access, vars), st.Src)
	}
	b.WriteString(texprfmt.Indent(body.String()))
	b.WriteString("}\n")
	return b.String()
}

// String returns a readable representation of the program.
func (p *Program) String() string {
	var b strings.Builder
	for i := range p.Buffers {
		buf := &p.Buffers[i]
		fmt.Fprintf(&b, "%s: %s%s strides=%s\n", buf.Name(i), tensor.TypeName(buf.DType), texprfmt.Ints(buf.Dims), texprfmt.Ints(buf.Strides))
	}
	for i := range p.Nests {
		b.WriteString(p.nestString(&p.Nests[i]))
	}
	return b.String()
}
