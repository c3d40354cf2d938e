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

// Package codegen compiles loop programs into executable Go closures.
//
// Each instruction of a loop nest is compiled into a step specialized for
// its element type. At execution, the innermost loop of a nest is processed
// by blocks: every step processes all the elements of a block before the
// next step runs.
package codegen

import (
	"github.com/pkg/errors"
	"github.com/gx-org/texpr/loopir"
	"github.com/gx-org/texpr/tensor"
)

// DefaultBlockSize is the default number of elements processed by a step.
const DefaultBlockSize = 4096

// frame stores the state of one execution of a program.
type frame struct {
	bufs  []any
	bases []int
	regs  []any
	outer []int
	start int
	n     int
}

type constant struct {
	reg     int
	literal any
}

type nestCode struct {
	dims      []int
	size      int
	blockSize int
	regTypes  []factory
	consts    []constant
	steps     []step
}

// Executable is a compiled program.
// An executable is immutable and can be run concurrently.
type Executable struct {
	prog      *loopir.Program
	nests     []*nestCode
	bufTypes  []factory
	blockSize int
}

// Compile a loop program. blockSize is the maximum number of elements
// processed at once by the innermost loop. DefaultBlockSize is used if
// blockSize is not positive.
func Compile(prog *loopir.Program, blockSize int) (*Executable, error) {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	exe := &Executable{
		prog:      prog,
		bufTypes:  make([]factory, len(prog.Buffers)),
		blockSize: blockSize,
	}
	for i := range prog.Buffers {
		buf := &prog.Buffers[i]
		var err error
		if exe.bufTypes[i], err = factoryFor(buf.DType); err != nil {
			return nil, errors.WithMessagef(err, "buffer %s", buf.Name(i))
		}
	}
	for i := range prog.Nests {
		nc, err := exe.compileNest(&prog.Nests[i])
		if err != nil {
			return nil, errors.WithMessagef(err, "loop nest %d", i)
		}
		exe.nests = append(exe.nests, nc)
	}
	return exe, nil
}

func compileAccess(acc loopir.Access) access {
	rank := len(acc.Strides)
	if rank == 0 {
		return access{buffer: acc.Buffer, offset: acc.Offset}
	}
	return access{
		buffer: acc.Buffer,
		offset: acc.Offset,
		outer:  acc.Strides[:rank-1],
		inner:  acc.Strides[rank-1],
	}
}

func (exe *Executable) compileNest(nest *loopir.Nest) (*nestCode, error) {
	nc := &nestCode{
		dims:      nest.Dims,
		size:      tensor.Size(nest.Dims),
		blockSize: 1,
		regTypes:  make([]factory, len(nest.Body)),
	}
	if rank := len(nest.Dims); rank > 0 {
		nc.blockSize = min(exe.blockSize, nest.Dims[rank-1])
	}
	for i := range nest.Body {
		in := &nest.Body[i]
		f, err := factoryFor(in.DType)
		if err != nil {
			return nil, errors.WithMessagef(err, "instruction r%d", i)
		}
		nc.regTypes[i] = f
		var st step
		switch in.Kind {
		case loopir.Load:
			if exe.prog.Buffers[in.Access.Buffer].DType != in.DType {
				return nil, errors.Errorf("instruction r%d: loading a %s element as %s", i, tensor.TypeName(exe.prog.Buffers[in.Access.Buffer].DType), tensor.TypeName(in.DType))
			}
			st = f.load(i, compileAccess(in.Access))
		case loopir.Const:
			nc.consts = append(nc.consts, constant{reg: i, literal: in.Literal})
		case loopir.Cast:
			st, err = f.cast(nest.Body[in.Args[0]].DType, i, in.Args[0])
		case loopir.Unary:
			st, err = f.unary(in.Op, i, in.Args[0])
		case loopir.Binary:
			st, err = f.binary(in.Op, i, in.Args[0], in.Args[1])
		case loopir.Ternary:
			st, err = f.ternary(in.Op, i, in.Args[0], in.Args[1], in.Args[2])
		case loopir.Select:
			st, err = f.selectOn(nest.Body[in.Args[0]].DType, i, in.Args[0], in.Args[1], in.Args[2])
		default:
			err = errors.Errorf("unknown instruction kind %d", in.Kind)
		}
		if err != nil {
			return nil, errors.WithMessagef(err, "instruction r%d", i)
		}
		if st != nil {
			nc.steps = append(nc.steps, st)
		}
	}
	for _, store := range nest.Stores {
		buf := &exe.prog.Buffers[store.Access.Buffer]
		if buf.DType != nest.Body[store.Src].DType {
			return nil, errors.Errorf("storing a %s register into %s buffer %s", tensor.TypeName(nest.Body[store.Src].DType), tensor.TypeName(buf.DType), buf.Name(store.Access.Buffer))
		}
		nc.steps = append(nc.steps, exe.bufTypes[store.Access.Buffer].store(store.Src, compileAccess(store.Access)))
	}
	return nc, nil
}

// Program returns the loop program from which the executable has been compiled.
func (exe *Executable) Program() *loopir.Program {
	return exe.prog
}

// lastIndex returns the position of the last element of a buffer accessed
// given a base offset, or -1 if no element is accessed.
func lastIndex(base int, buf *loopir.Buffer, strides []int) int {
	last := base
	for i, d := range buf.Dims {
		if d == 0 {
			return -1
		}
		last += (d - 1) * strides[i]
	}
	return last
}

func (exe *Executable) bind(fr *frame, id int, t *tensor.Tensor) error {
	buf := &exe.prog.Buffers[id]
	name := buf.Name(id)
	if t.DType() != buf.DType {
		return errors.Errorf("buffer %s: got element type %s but want %s", name, tensor.TypeName(t.DType()), tensor.TypeName(buf.DType))
	}
	if t.Size() != buf.Size() {
		return errors.Errorf("buffer %s: got %d elements but want %d", name, t.Size(), buf.Size())
	}
	fr.bufs[id] = t.Data()
	fr.bases[id] = t.Offset()
	if last := lastIndex(t.Offset(), buf, buf.Strides); last >= t.StorageSize() {
		return errors.Errorf("buffer %s: element %d out of the bounds of the storage", name, last)
	}
	return nil
}

// Run executes the program. Inputs are read using the strides of the program,
// not the strides of the tensors. Outputs must be contiguous tensors of the
// expected shape and element type.
func (exe *Executable) Run(inputs, outputs []*tensor.Tensor) error {
	prog := exe.prog
	if len(inputs) != len(prog.Inputs) {
		return errors.Errorf("got %d inputs but want %d", len(inputs), len(prog.Inputs))
	}
	if len(outputs) != len(prog.Outputs) {
		return errors.Errorf("got %d outputs but want %d", len(outputs), len(prog.Outputs))
	}
	fr := &frame{
		bufs:  make([]any, len(prog.Buffers)),
		bases: make([]int, len(prog.Buffers)),
	}
	for i, id := range prog.Inputs {
		if err := exe.bind(fr, id, inputs[i]); err != nil {
			return err
		}
	}
	for i, id := range prog.Outputs {
		if !outputs[i].IsContiguous() {
			return errors.Errorf("output %d is not contiguous", i)
		}
		if err := exe.bind(fr, id, outputs[i]); err != nil {
			return err
		}
	}
	for id := range prog.Buffers {
		buf := &prog.Buffers[id]
		switch buf.Kind {
		case loopir.ConstantBuffer:
			fr.bufs[id] = buf.Value.Data()
			fr.bases[id] = buf.Value.Offset()
		case loopir.TempBuffer:
			fr.bufs[id] = exe.bufTypes[id].newRegister(buf.Size())
		}
	}
	for _, nc := range exe.nests {
		nc.run(fr)
	}
	return nil
}

func (nc *nestCode) run(fr *frame) {
	if nc.size == 0 {
		return
	}
	fr.regs = make([]any, len(nc.regTypes))
	for i, f := range nc.regTypes {
		fr.regs[i] = f.newRegister(nc.blockSize)
	}
	for _, c := range nc.consts {
		nc.regTypes[c.reg].fill(fr.regs[c.reg], c.literal)
	}
	rank := len(nc.dims)
	fr.start = 0
	if rank == 0 {
		fr.n = 1
		fr.outer = nil
		nc.runBlock(fr)
		return
	}
	inner := nc.dims[rank-1]
	fr.outer = make([]int, rank-1)
	for {
		for start := 0; start < inner; start += nc.blockSize {
			fr.start = start
			fr.n = min(nc.blockSize, inner-start)
			nc.runBlock(fr)
		}
		k := rank - 2
		for ; k >= 0; k-- {
			fr.outer[k]++
			if fr.outer[k] < nc.dims[k] {
				break
			}
			fr.outer[k] = 0
		}
		if k < 0 {
			return
		}
	}
}

func (nc *nestCode) runBlock(fr *frame) {
	for _, st := range nc.steps {
		st(fr)
	}
}
