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

package codegen

import (
	"github.com/pkg/errors"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/texpr/ops"
	"github.com/gx-org/texpr/tensor"
)

// step executes an instruction for a block of elements.
type step func(fr *frame)

// access is a compiled affine access.
type access struct {
	buffer int
	offset int
	// outer are the strides of all the loops but the innermost one.
	outer []int
	// inner is the stride of the innermost loop.
	inner int
}

// base returns the position of the first element of the current block.
func (a *access) base(fr *frame) int {
	off := fr.bases[a.buffer] + a.offset + fr.start*a.inner
	for k, stride := range a.outer {
		off += fr.outer[k] * stride
	}
	return off
}

// factory generates the steps operating on a given element type.
type factory interface {
	newRegister(n int) any
	fill(reg any, literal any)
	load(dst int, acc access) step
	store(src int, acc access) step
	unary(op ops.Op, dst, x int) (step, error)
	binary(op ops.Op, dst, x, y int) (step, error)
	ternary(op ops.Op, dst, x, y, z int) (step, error)
	cast(from dtype.DataType, dst, x int) (step, error)
	selectOn(cond dtype.DataType, dst, c, x, y int) (step, error)
}

type factoryT[T ops.Number] struct{}

func factoryFor(dt dtype.DataType) (factory, error) {
	switch dt {
	case dtype.Float32:
		return factoryT[float32]{}, nil
	case dtype.Float64:
		return factoryT[float64]{}, nil
	case dtype.Int32:
		return factoryT[int32]{}, nil
	case dtype.Int64:
		return factoryT[int64]{}, nil
	case dtype.Uint32:
		return factoryT[uint32]{}, nil
	case dtype.Uint64:
		return factoryT[uint64]{}, nil
	}
	return nil, errors.Errorf("element type %s not supported by the compiler", tensor.TypeName(dt))
}

func (factoryT[T]) newRegister(n int) any {
	return make([]T, n)
}

func (factoryT[T]) fill(reg any, literal any) {
	var val T
	switch lit := literal.(type) {
	case float64:
		val = T(lit)
	case int64:
		val = T(lit)
	}
	vals := reg.([]T)
	for i := range vals {
		vals[i] = val
	}
}

func (factoryT[T]) load(dst int, acc access) step {
	return func(fr *frame) {
		src := fr.bufs[acc.buffer].([]T)
		out := fr.regs[dst].([]T)[:fr.n]
		off := acc.base(fr)
		switch acc.inner {
		case 1:
			copy(out, src[off:off+fr.n])
		case 0:
			val := src[off]
			for i := range out {
				out[i] = val
			}
		default:
			for i := range out {
				out[i] = src[off]
				off += acc.inner
			}
		}
	}
}

func (factoryT[T]) store(src int, acc access) step {
	return func(fr *frame) {
		dst := fr.bufs[acc.buffer].([]T)
		in := fr.regs[src].([]T)[:fr.n]
		off := acc.base(fr)
		switch acc.inner {
		case 1:
			copy(dst[off:off+fr.n], in)
		case 0:
			// All the elements of the block are written at the same address.
			dst[off] = in[len(in)-1]
		default:
			for _, v := range in {
				dst[off] = v
				off += acc.inner
			}
		}
	}
}

func (factoryT[T]) unary(op ops.Op, dst, x int) (step, error) {
	kernel, err := ops.UnaryKernel[T](op)
	if err != nil {
		return nil, err
	}
	return func(fr *frame) {
		kernel(fr.regs[dst].([]T)[:fr.n], fr.regs[x].([]T)[:fr.n])
	}, nil
}

func (factoryT[T]) binary(op ops.Op, dst, x, y int) (step, error) {
	kernel, err := ops.BinaryKernel[T](op)
	if err != nil {
		return nil, err
	}
	return func(fr *frame) {
		n := fr.n
		kernel(fr.regs[dst].([]T)[:n], fr.regs[x].([]T)[:n], fr.regs[y].([]T)[:n])
	}, nil
}

func (factoryT[T]) ternary(op ops.Op, dst, x, y, z int) (step, error) {
	kernel, err := ops.TernaryKernel[T](op)
	if err != nil {
		return nil, err
	}
	return func(fr *frame) {
		n := fr.n
		kernel(fr.regs[dst].([]T)[:n], fr.regs[x].([]T)[:n], fr.regs[y].([]T)[:n], fr.regs[z].([]T)[:n])
	}, nil
}

func castStep[S, T ops.Number](dst, x int) step {
	return func(fr *frame) {
		out := fr.regs[dst].([]T)[:fr.n]
		for i, v := range fr.regs[x].([]S)[:fr.n] {
			out[i] = T(v)
		}
	}
}

func (factoryT[T]) cast(from dtype.DataType, dst, x int) (step, error) {
	switch from {
	case dtype.Float32:
		return castStep[float32, T](dst, x), nil
	case dtype.Float64:
		return castStep[float64, T](dst, x), nil
	case dtype.Int32:
		return castStep[int32, T](dst, x), nil
	case dtype.Int64:
		return castStep[int64, T](dst, x), nil
	case dtype.Uint32:
		return castStep[uint32, T](dst, x), nil
	case dtype.Uint64:
		return castStep[uint64, T](dst, x), nil
	}
	return nil, errors.Errorf("cannot cast from %s: element type not supported by the compiler", tensor.TypeName(from))
}

func selectStep[C, T ops.Number](dst, c, x, y int) step {
	kernel := ops.SelectKernel[C, T]()
	return func(fr *frame) {
		n := fr.n
		kernel(fr.regs[dst].([]T)[:n], fr.regs[c].([]C)[:n], fr.regs[x].([]T)[:n], fr.regs[y].([]T)[:n])
	}
}

func (factoryT[T]) selectOn(cond dtype.DataType, dst, c, x, y int) (step, error) {
	switch cond {
	case dtype.Float32:
		return selectStep[float32, T](dst, c, x, y), nil
	case dtype.Float64:
		return selectStep[float64, T](dst, c, x, y), nil
	case dtype.Int32:
		return selectStep[int32, T](dst, c, x, y), nil
	case dtype.Int64:
		return selectStep[int64, T](dst, c, x, y), nil
	case dtype.Uint32:
		return selectStep[uint32, T](dst, c, x, y), nil
	case dtype.Uint64:
		return selectStep[uint64, T](dst, c, x, y), nil
	}
	return nil, errors.Errorf("condition of type %s not supported by the compiler", tensor.TypeName(cond))
}
