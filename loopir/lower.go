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

package loopir

import (
	"slices"

	"github.com/pkg/errors"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/texpr/graph"
	"github.com/gx-org/texpr/ops"
	"github.com/gx-org/texpr/tensor"
)

type lowerer struct {
	g    *graph.Graph
	prog *Program
	// bufOf maps node indices to the buffer storing their value.
	bufOf map[int]int
	// materialized are the nodes computed in their own buffer.
	materialized map[int]bool
}

// Lower converts a graph into a loop program.
//
// strides gives the element strides of each input. A nil slice, for the
// whole list or for an input, means row-major strides.
//
// All nodes are fused into the loop nest of the outputs consuming them, except
// the concatenations and the sources of splits that are not inputs or
// constants: these are computed in their own buffer first. Outputs of the same
// shape are computed in the same loop nest.
func Lower(g *graph.Graph, strides [][]int) (*Program, error) {
	if err := g.Validate(); err != nil {
		return nil, errors.WithMessage(err, "cannot lower an invalid graph")
	}
	if strides != nil && len(strides) != g.NumInputs() {
		return nil, errors.Errorf("got strides for %d inputs but the graph has %d inputs", len(strides), g.NumInputs())
	}
	l := &lowerer{
		g:            g,
		prog:         &Program{},
		bufOf:        make(map[int]int),
		materialized: make(map[int]bool),
	}
	if err := l.addInputs(strides); err != nil {
		return nil, err
	}
	l.findMaterialized()
	l.addOutputs()
	for _, n := range g.Nodes() {
		if !l.materialized[n.ID()] {
			continue
		}
		if err := l.lowerMaterialized(n); err != nil {
			return nil, err
		}
	}
	if err := l.lowerOutputs(); err != nil {
		return nil, err
	}
	return l.prog, nil
}

func (l *lowerer) addBuffer(buf Buffer) int {
	l.prog.Buffers = append(l.prog.Buffers, buf)
	return len(l.prog.Buffers) - 1
}

func (l *lowerer) addInputs(strides [][]int) error {
	for i, in := range l.g.Inputs() {
		var st []int
		if strides != nil {
			st = strides[i]
		}
		if st == nil {
			st = tensor.RowMajorStrides(in.Dims())
		}
		if len(st) != len(in.Dims()) {
			return errors.Errorf("input %d: got %d strides for %d axes", i, len(st), len(in.Dims()))
		}
		id := l.addBuffer(Buffer{
			Kind:    InputBuffer,
			Index:   i,
			DType:   in.DType(),
			Dims:    slices.Clone(in.Dims()),
			Strides: slices.Clone(st),
		})
		l.prog.Inputs = append(l.prog.Inputs, id)
		l.bufOf[in.ID()] = id
	}
	return nil
}

func (l *lowerer) findMaterialized() {
	for _, n := range l.g.Nodes() {
		switch n.Kind() {
		case graph.SplitKind:
			src := l.g.Node(n.Operands()[0])
			if src.Kind() != graph.InputKind && src.Kind() != graph.ConstantKind {
				l.materialized[src.ID()] = true
			}
		case graph.ConcatKind:
			l.materialized[n.ID()] = true
		}
	}
}

func (l *lowerer) addOutputs() {
	for i, out := range l.g.Outputs() {
		id := l.addBuffer(Buffer{
			Kind:    OutputBuffer,
			Index:   i,
			DType:   out.DType(),
			Dims:    slices.Clone(out.Dims()),
			Strides: tensor.RowMajorStrides(out.Dims()),
		})
		l.prog.Outputs = append(l.prog.Outputs, id)
		if _, done := l.bufOf[out.ID()]; l.materialized[out.ID()] && !done {
			// The output buffer stores the materialized node directly.
			l.bufOf[out.ID()] = id
		}
	}
}

// bufferOf returns the buffer storing the value of an input, a constant, or a materialized node.
func (l *lowerer) bufferOf(n *graph.Node) (int, error) {
	if id, ok := l.bufOf[n.ID()]; ok {
		return id, nil
	}
	if n.Kind() != graph.ConstantKind {
		return 0, errors.Errorf("node %d (%s) has no buffer", n.ID(), n.Kind())
	}
	value := n.Value()
	id := l.addBuffer(Buffer{
		Kind:    ConstantBuffer,
		DType:   value.DType(),
		Dims:    slices.Clone(value.Dims()),
		Strides: slices.Clone(value.Strides()),
		Value:   value,
	})
	l.bufOf[n.ID()] = id
	return id, nil
}

func (l *lowerer) lowerMaterialized(n *graph.Node) error {
	id, ok := l.bufOf[n.ID()]
	if !ok {
		id = l.addBuffer(Buffer{
			Kind:    TempBuffer,
			DType:   n.DType(),
			Dims:    slices.Clone(n.Dims()),
			Strides: tensor.RowMajorStrides(n.Dims()),
		})
		l.bufOf[n.ID()] = id
	}
	buf := &l.prog.Buffers[id]
	if n.Kind() != graph.ConcatKind {
		nb := l.newNest(n.Dims())
		reg, err := nb.emit(n, true)
		if err != nil {
			return err
		}
		nb.store(reg, id, 0)
		l.appendNest(nb)
		return nil
	}
	offset := 0
	for _, opID := range n.Operands() {
		part := l.g.Node(opID)
		nb := l.newNest(part.Dims())
		reg, err := nb.emit(part, false)
		if err != nil {
			return err
		}
		reg = nb.cast(reg, n.DType())
		nb.store(reg, id, offset*buf.Strides[n.Axis()])
		l.appendNest(nb)
		offset += part.Dims()[n.Axis()]
	}
	return nil
}

func (l *lowerer) lowerOutputs() error {
	type group struct {
		dims      []int
		positions []int
	}
	var groups []*group
	outputs := l.g.Outputs()
	for i, out := range outputs {
		if id, ok := l.bufOf[out.ID()]; ok && l.materialized[out.ID()] && id == l.prog.Outputs[i] {
			continue
		}
		var grp *group
		for _, candidate := range groups {
			if slices.Equal(candidate.dims, out.Dims()) {
				grp = candidate
				break
			}
		}
		if grp == nil {
			grp = &group{dims: out.Dims()}
			groups = append(groups, grp)
		}
		grp.positions = append(grp.positions, i)
	}
	for _, grp := range groups {
		nb := l.newNest(grp.dims)
		for _, pos := range grp.positions {
			reg, err := nb.emit(outputs[pos], false)
			if err != nil {
				return err
			}
			nb.store(reg, l.prog.Outputs[pos], 0)
		}
		l.appendNest(nb)
	}
	return nil
}

func (l *lowerer) appendNest(nb *nestBuilder) {
	l.prog.Nests = append(l.prog.Nests, nb.nest)
}

type castKey struct {
	reg int
	dt  dtype.DataType
}

type nestBuilder struct {
	l     *lowerer
	nest  Nest
	regs  map[int]int
	casts map[castKey]int
}

func (l *lowerer) newNest(dims []int) *nestBuilder {
	return &nestBuilder{
		l:     l,
		nest:  Nest{Dims: slices.Clone(dims)},
		regs:  make(map[int]int),
		casts: make(map[castKey]int),
	}
}

func (nb *nestBuilder) add(in Instr) int {
	nb.nest.Body = append(nb.nest.Body, in)
	return len(nb.nest.Body) - 1
}

func (nb *nestBuilder) cast(reg int, dt dtype.DataType) int {
	if nb.nest.Body[reg].DType == dt {
		return reg
	}
	key := castKey{reg: reg, dt: dt}
	if r, ok := nb.casts[key]; ok {
		return r
	}
	r := nb.add(Instr{Kind: Cast, DType: dt, Args: []int{reg}})
	nb.casts[key] = r
	return r
}

// access returns the access to the element of a buffer storing a value of
// shape dims broadcasted to the iteration space of the nest.
// Axes of length 1 have a zero stride.
func (nb *nestBuilder) access(bufID int, dims []int, offset int) Access {
	loops := nb.nest.Dims
	buf := &nb.l.prog.Buffers[bufID]
	shift := len(loops) - len(dims)
	strides := make([]int, len(loops))
	for k := range loops {
		axis := k - shift
		if axis < 0 || dims[axis] == 1 {
			continue
		}
		strides[k] = buf.Strides[axis]
	}
	return Access{Buffer: bufID, Offset: offset, Strides: strides}
}

func (nb *nestBuilder) store(reg, bufID, offset int) {
	nb.nest.Stores = append(nb.nest.Stores, Store{
		Src:    reg,
		Access: nb.access(bufID, nb.l.prog.Buffers[bufID].Dims, offset),
	})
}

func (nb *nestBuilder) load(n *graph.Node) (int, error) {
	bufID, err := nb.l.bufferOf(n)
	if err != nil {
		return 0, err
	}
	return nb.add(Instr{
		Kind:   Load,
		DType:  n.DType(),
		Access: nb.access(bufID, n.Dims(), 0),
	}), nil
}

func (nb *nestBuilder) loadSplit(n *graph.Node) (int, error) {
	src := nb.l.g.Node(n.Operands()[0])
	bufID, err := nb.l.bufferOf(src)
	if err != nil {
		return 0, errors.WithMessagef(err, "node %d (split)", n.ID())
	}
	axis := n.Axis()
	step := n.Dims()[axis]
	offset := n.Index() * step * nb.l.prog.Buffers[bufID].Strides[axis]
	return nb.add(Instr{
		Kind:   Load,
		DType:  n.DType(),
		Access: nb.access(bufID, n.Dims(), offset),
	}), nil
}

// emit appends the instructions computing a node and returns the register
// storing its value. Operands are emitted in order, depth first.
// Materialized nodes are loaded from their buffer unless top is true.
func (nb *nestBuilder) emit(n *graph.Node, top bool) (int, error) {
	if reg, ok := nb.regs[n.ID()]; ok {
		return reg, nil
	}
	var reg int
	var err error
	switch {
	case !top && nb.l.materialized[n.ID()]:
		reg, err = nb.load(n)
	case n.Kind() == graph.InputKind:
		reg, err = nb.load(n)
	case n.Kind() == graph.ConstantKind:
		if n.Literal() != nil {
			reg = nb.add(Instr{Kind: Const, DType: n.DType(), Literal: n.Literal()})
		} else {
			reg, err = nb.load(n)
		}
	case n.Kind() == graph.SplitKind:
		reg, err = nb.loadSplit(n)
	case n.Kind() == graph.UnaryKind, n.Kind() == graph.BinaryKind, n.Kind() == graph.TernaryKind:
		reg, err = nb.emitOp(n)
	default:
		err = errors.Errorf("node %d (%s): cannot be fused in a loop nest", n.ID(), n.Kind())
	}
	if err != nil {
		return 0, err
	}
	nb.regs[n.ID()] = reg
	return reg, nil
}

func (nb *nestBuilder) emitOp(n *graph.Node) (int, error) {
	args := make([]int, len(n.Operands()))
	for i, opID := range n.Operands() {
		var err error
		if args[i], err = nb.emit(nb.l.g.Node(opID), false); err != nil {
			return 0, err
		}
	}
	isSelect := n.Op().Class() == ops.Select
	for i, arg := range args {
		if isSelect && i == 0 {
			continue
		}
		args[i] = nb.cast(arg, n.DType())
	}
	kind := Unary
	switch {
	case isSelect:
		kind = Select
	case len(args) == 2:
		kind = Binary
	case len(args) == 3:
		kind = Ternary
	}
	return nb.add(Instr{Kind: kind, DType: n.DType(), Op: n.Op(), Args: args}), nil
}
