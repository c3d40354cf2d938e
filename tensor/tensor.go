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

// Package tensor implements strided multi-dimensional arrays used as inputs
// and outputs of compiled tensor expressions.
package tensor

import (
	"fmt"
	"slices"

	"github.com/pkg/errors"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/backend/shape"
	"github.com/gx-org/texpr/fmt/fmtarray"
)

// Tensor is a multi-dimensional array.
// Elements are addressed by offset + sum(index[i]*strides[i]) in the backing slice.
// The shape of a tensor never changes once the tensor has been created.
type Tensor struct {
	shape   shape.Shape
	strides []int
	offset  int
	data    any
}

// RowMajorStrides returns the strides, in number of elements, of a contiguous array.
func RowMajorStrides(dims []int) []int {
	strides := make([]int, len(dims))
	stride := 1
	for i := len(dims) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= dims[i]
	}
	return strides
}

// Size returns the number of elements given axis lengths.
func Size(dims []int) int {
	size := 1
	for _, d := range dims {
		size *= d
	}
	return size
}

func newTensor(dt dtype.DataType, dims []int, data any) *Tensor {
	if dims == nil {
		dims = []int{}
	}
	dims = slices.Clone(dims)
	return &Tensor{
		shape:   shape.Shape{DType: dt, AxisLengths: dims},
		strides: RowMajorStrides(dims),
		data:    data,
	}
}

func checkDims(dims []int) error {
	for i, d := range dims {
		if d < 0 {
			return errors.Errorf("invalid negative length %d for axis %d", d, i)
		}
	}
	return nil
}

// Zeros returns a contiguous tensor filled with zeros.
func Zeros(dt dtype.DataType, dims ...int) (*Tensor, error) {
	if err := checkDims(dims); err != nil {
		return nil, err
	}
	size := Size(dims)
	switch dt {
	case dtype.Float32:
		return newTensor(dt, dims, make([]float32, size)), nil
	case dtype.Float64:
		return newTensor(dt, dims, make([]float64, size)), nil
	case dtype.Int32:
		return newTensor(dt, dims, make([]int32, size)), nil
	case dtype.Int64:
		return newTensor(dt, dims, make([]int64, size)), nil
	case dtype.Uint32:
		return newTensor(dt, dims, make([]uint32, size)), nil
	case dtype.Uint64:
		return newTensor(dt, dims, make([]uint64, size)), nil
	case dtype.Bfloat16:
		return newTensor(dt, dims, make([]dtype.Bfloat16T, size)), nil
	default:
		return nil, errors.Errorf("cannot create a tensor of data type %s: not supported", TypeName(dt))
	}
}

// FromSlice returns a contiguous tensor backed by values.
// The tensor is one-dimensional when no axis lengths are given.
// It panics if the number of values does not match the axis lengths.
func FromSlice[T Element](values []T, dims ...int) *Tensor {
	if dims == nil {
		dims = []int{len(values)}
	}
	if err := checkDims(dims); err != nil {
		panic(err.Error())
	}
	if len(values) != Size(dims) {
		panic(fmt.Sprintf("mismatch between the number of values (=%d) and the number of elements (=%d) in %v", len(values), Size(dims), dims))
	}
	return newTensor(DTypeOf[T](), dims, values)
}

// Scalar returns a tensor of rank 0 holding a single value.
func Scalar[T Element](val T) *Tensor {
	return newTensor(DTypeOf[T](), []int{}, []T{val})
}

// FromBfloat16 returns a contiguous tensor of bfloat16 values.
func FromBfloat16(values []dtype.Bfloat16T, dims ...int) *Tensor {
	if dims == nil {
		dims = []int{len(values)}
	}
	if len(values) != Size(dims) {
		panic(fmt.Sprintf("mismatch between the number of values (=%d) and the number of elements (=%d) in %v", len(values), Size(dims), dims))
	}
	return newTensor(dtype.Bfloat16, dims, values)
}

// Full returns a contiguous tensor where all elements are set to val.
func Full(dt dtype.DataType, val float64, dims ...int) (*Tensor, error) {
	t, err := Zeros(dt, dims...)
	if err != nil {
		return nil, err
	}
	switch data := t.data.(type) {
	case []float32:
		fill(data, float32(val))
	case []float64:
		fill(data, val)
	case []int32:
		fill(data, int32(val))
	case []int64:
		fill(data, int64(val))
	case []uint32:
		fill(data, uint32(val))
	case []uint64:
		fill(data, uint64(val))
	case []dtype.Bfloat16T:
		fill(data, dtype.BFloat16FromFloat64(val))
	}
	return t, nil
}

func fill[T any](data []T, val T) {
	for i := range data {
		data[i] = val
	}
}

// Shape of the tensor.
func (t *Tensor) Shape() *shape.Shape {
	return &t.shape
}

// DType returns the data type of the elements.
func (t *Tensor) DType() dtype.DataType {
	return t.shape.DType
}

// Dims returns the length of each axis.
func (t *Tensor) Dims() []int {
	return t.shape.AxisLengths
}

// Rank returns the number of axes.
func (t *Tensor) Rank() int {
	return len(t.shape.AxisLengths)
}

// Size returns the number of elements.
func (t *Tensor) Size() int {
	return Size(t.shape.AxisLengths)
}

// Strides returns the strides of each axis in number of elements.
func (t *Tensor) Strides() []int {
	return t.strides
}

// Offset returns the position of the first element in the backing slice.
func (t *Tensor) Offset() int {
	return t.offset
}

// Data returns the backing slice of the tensor, for example a []float32.
// Note that the slice includes elements before Offset.
func (t *Tensor) Data() any {
	return t.data
}

// StorageSize returns the number of elements of the backing slice.
func (t *Tensor) StorageSize() int {
	switch data := t.data.(type) {
	case []float32:
		return len(data)
	case []float64:
		return len(data)
	case []int32:
		return len(data)
	case []int64:
		return len(data)
	case []uint32:
		return len(data)
	case []uint64:
		return len(data)
	case []dtype.Bfloat16T:
		return len(data)
	}
	return 0
}

// IsContiguous returns true if the elements are stored in row-major order
// starting at the beginning of the backing slice.
func (t *Tensor) IsContiguous() bool {
	if t.offset != 0 {
		return false
	}
	want := RowMajorStrides(t.Dims())
	for i, d := range t.Dims() {
		if d > 1 && t.strides[i] != want[i] {
			return false
		}
	}
	return true
}

// walk calls f for each element in row-major order with the position of the
// element in the logical order and in the backing slice.
func (t *Tensor) walk(f func(i, off int)) {
	dims := t.Dims()
	n := Size(dims)
	if n == 0 {
		return
	}
	rank := len(dims)
	if rank == 0 {
		f(0, t.offset)
		return
	}
	idx := make([]int, rank)
	off := t.offset
	for i := range n {
		f(i, off)
		for k := rank - 1; k >= 0; k-- {
			idx[k]++
			off += t.strides[k]
			if idx[k] < dims[k] {
				break
			}
			off -= t.strides[k] * dims[k]
			idx[k] = 0
		}
	}
}

// Narrow returns a view of the tensor restricted to [start, start+length) along an axis.
// The view shares the storage of the tensor.
func (t *Tensor) Narrow(axis, start, length int) (*Tensor, error) {
	if axis < 0 || axis >= t.Rank() {
		return nil, errors.Errorf("axis %d out of range for a tensor of rank %d", axis, t.Rank())
	}
	if start < 0 || length < 0 || start+length > t.Dims()[axis] {
		return nil, errors.Errorf("range [%d, %d) out of bounds for axis %d of length %d", start, start+length, axis, t.Dims()[axis])
	}
	dims := slices.Clone(t.Dims())
	dims[axis] = length
	return &Tensor{
		shape:   shape.Shape{DType: t.DType(), AxisLengths: dims},
		strides: slices.Clone(t.strides),
		offset:  t.offset + start*t.strides[axis],
		data:    t.data,
	}, nil
}

// Permute returns a view of the tensor with its axes reordered.
// Axis i of the result is axis axes[i] of the tensor.
func (t *Tensor) Permute(axes ...int) (*Tensor, error) {
	if len(axes) != t.Rank() {
		return nil, errors.Errorf("permutation %v does not match a tensor of rank %d", axes, t.Rank())
	}
	seen := make([]bool, len(axes))
	dims := make([]int, len(axes))
	strides := make([]int, len(axes))
	for i, axis := range axes {
		if axis < 0 || axis >= len(axes) || seen[axis] {
			return nil, errors.Errorf("invalid permutation %v", axes)
		}
		seen[axis] = true
		dims[i] = t.Dims()[axis]
		strides[i] = t.strides[axis]
	}
	return &Tensor{
		shape:   shape.Shape{DType: t.DType(), AxisLengths: dims},
		strides: strides,
		offset:  t.offset,
		data:    t.data,
	}, nil
}

// Expand returns a view of the tensor broadcasted to the given axis lengths.
// Axes are aligned from the last one. Axes of length 1 are repeated using a stride of 0.
func (t *Tensor) Expand(dims []int) (*Tensor, error) {
	if len(dims) < t.Rank() {
		return nil, errors.Errorf("cannot expand %v to %v: fewer axes", t.Dims(), dims)
	}
	strides := make([]int, len(dims))
	shift := len(dims) - t.Rank()
	for i, d := range t.Dims() {
		switch {
		case d == dims[shift+i]:
			strides[shift+i] = t.strides[i]
		case d == 1:
			strides[shift+i] = 0
		default:
			return nil, errors.Errorf("cannot expand %v to %v: axis %d has length %d", t.Dims(), dims, i, d)
		}
	}
	return &Tensor{
		shape:   shape.Shape{DType: t.DType(), AxisLengths: slices.Clone(dims)},
		strides: strides,
		offset:  t.offset,
		data:    t.data,
	}, nil
}

// Contiguous returns a row-major copy of the tensor.
func (t *Tensor) Contiguous() *Tensor {
	out, err := Convert(t, t.DType())
	if err != nil {
		// The data type of an existing tensor is always supported.
		panic(err)
	}
	return out
}

// CopyFrom copies the elements of src into t.
// t must be contiguous and have the same element type and axis lengths as src.
func (t *Tensor) CopyFrom(src *Tensor) error {
	if !t.IsContiguous() {
		return errors.Errorf("cannot copy into a non-contiguous tensor")
	}
	if t.DType() != src.DType() || !slices.Equal(t.Dims(), src.Dims()) {
		return errors.Errorf("cannot copy a %s%v tensor into a %s%v tensor", TypeName(src.DType()), src.Dims(), TypeName(t.DType()), t.Dims())
	}
	n := t.Size()
	switch data := t.data.(type) {
	case []float32:
		ConvertInto(data[:n], src)
	case []float64:
		ConvertInto(data[:n], src)
	case []int32:
		ConvertInto(data[:n], src)
	case []int64:
		ConvertInto(data[:n], src)
	case []uint32:
		ConvertInto(data[:n], src)
	case []uint64:
		ConvertInto(data[:n], src)
	case []dtype.Bfloat16T:
		vals := src.Contiguous().data.([]dtype.Bfloat16T)
		copy(data[:n], vals)
	}
	return nil
}

// Float64s returns the elements of the tensor in row-major order converted to float64.
func (t *Tensor) Float64s() []float64 {
	vals := make([]float64, t.Size())
	ConvertInto(vals, t)
	return vals
}

// Values returns a row-major copy of the elements of a tensor.
// It panics if T does not match the data type of the tensor.
func Values[T Element](t *Tensor) []T {
	if want := DTypeOf[T](); want != t.DType() {
		panic(fmt.Sprintf("cannot read %s elements as %s", TypeName(t.DType()), TypeName(want)))
	}
	vals := make([]T, t.Size())
	ConvertInto(vals, t)
	return vals
}

// String representation of the tensor.
func (t *Tensor) String() string {
	name := TypeName(t.DType())
	switch t.DType() {
	case dtype.Float32:
		return fmtarray.Sprint(name, Values[float32](t), t.Dims())
	case dtype.Float64:
		return fmtarray.Sprint(name, Values[float64](t), t.Dims())
	case dtype.Int32:
		return fmtarray.Sprint(name, Values[int32](t), t.Dims())
	case dtype.Int64:
		return fmtarray.Sprint(name, Values[int64](t), t.Dims())
	case dtype.Uint32:
		return fmtarray.Sprint(name, Values[uint32](t), t.Dims())
	case dtype.Uint64:
		return fmtarray.Sprint(name, Values[uint64](t), t.Dims())
	default:
		vals := make([]float32, t.Size())
		ConvertInto(vals, t)
		return fmtarray.Sprint(name, vals, t.Dims())
	}
}
