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

// Package shapeinference computes the shape and the element type of the
// result of an operator given the shapes and element types of its operands.
package shapeinference

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/backend/shape"
	"github.com/gx-org/texpr/ops"
	"github.com/gx-org/texpr/tensor"
)

// DefaultFloat is the floating point type integers are promoted to.
const DefaultFloat = dtype.Float32

// Operand of an operator.
type Operand struct {
	shape.Shape

	// Weak is true for scalar literals. A weak operand does not widen
	// the element type of the other operands.
	Weak bool
}

// Strong returns a non-weak operand given a shape.
func Strong(sh shape.Shape) Operand {
	return Operand{Shape: sh}
}

// BroadcastError is returned when the shapes of operands cannot be aligned.
type BroadcastError struct {
	Dims [][]int
	Axis int
}

func (err *BroadcastError) Error() string {
	shapes := make([]string, len(err.Dims))
	for i, dims := range err.Dims {
		shapes[i] = fmt.Sprint(dims)
	}
	return fmt.Sprintf("cannot broadcast shapes %s: incompatible lengths for axis %d (counted from the last axis)", strings.Join(shapes, ", "), err.Axis)
}

// Broadcast returns the shape resulting from broadcasting the given shapes.
// Shapes are aligned from their last axis. Two lengths are compatible if they
// are equal or if one of them is 1.
func Broadcast(dims ...[]int) ([]int, error) {
	rank := 0
	for _, d := range dims {
		rank = max(rank, len(d))
	}
	out := make([]int, rank)
	for i := range out {
		out[i] = 1
	}
	for _, d := range dims {
		shift := rank - len(d)
		for i, length := range d {
			current := out[shift+i]
			switch {
			case current == length:
			case current == 1:
				out[shift+i] = length
			case length == 1:
			default:
				return nil, errors.WithStack(&BroadcastError{
					Dims: cloneAll(dims),
					Axis: len(d) - 1 - i,
				})
			}
		}
	}
	return out, nil
}

func cloneAll(dims [][]int) [][]int {
	out := make([][]int, len(dims))
	for i, d := range dims {
		out[i] = slices.Clone(d)
	}
	return out
}

func checkDType(dt dtype.DataType) error {
	if !tensor.IsSupported(dt) {
		return errors.Errorf("data type %s not supported", tensor.TypeName(dt))
	}
	return nil
}

func floatRank(dt dtype.DataType) int {
	switch dt {
	case dtype.Bfloat16:
		return 1
	case dtype.Float32:
		return 2
	case dtype.Float64:
		return 3
	}
	return 0
}

// Promote returns the element type to which two element types are converted
// before an arithmetic operator is applied.
func Promote(a, b dtype.DataType) (dtype.DataType, error) {
	if err := checkDType(a); err != nil {
		return dtype.Invalid, err
	}
	if err := checkDType(b); err != nil {
		return dtype.Invalid, err
	}
	if a == b {
		return a, nil
	}
	aFloat, bFloat := tensor.IsFloat(a), tensor.IsFloat(b)
	switch {
	case aFloat && bFloat:
		if floatRank(a) > floatRank(b) {
			return a, nil
		}
		return b, nil
	case aFloat:
		return a, nil
	case bFloat:
		return b, nil
	}
	if tensor.IsSigned(a) != tensor.IsSigned(b) {
		return dtype.Int64, nil
	}
	if tensor.Bits(a) > tensor.Bits(b) {
		return a, nil
	}
	return b, nil
}

func promoteAll(dts []dtype.DataType) (dtype.DataType, error) {
	dt := dts[0]
	for _, other := range dts[1:] {
		var err error
		if dt, err = Promote(dt, other); err != nil {
			return dtype.Invalid, err
		}
	}
	return dt, nil
}

// PromoteOperands returns the common element type of operands.
// Strong operands determine the result. A weak floating point operand turns
// an integer result into DefaultFloat.
func PromoteOperands(xs ...Operand) (dtype.DataType, error) {
	var strong, weak []dtype.DataType
	for _, x := range xs {
		if x.Weak {
			weak = append(weak, x.DType)
		} else {
			strong = append(strong, x.DType)
		}
	}
	if len(strong) == 0 {
		return promoteAll(weak)
	}
	dt, err := promoteAll(strong)
	if err != nil {
		return dtype.Invalid, err
	}
	for _, w := range weak {
		if err := checkDType(w); err != nil {
			return dtype.Invalid, err
		}
		if tensor.IsFloat(w) && tensor.IsInteger(dt) {
			dt = DefaultFloat
		}
	}
	return dt, nil
}

func allWeak(xs []Operand) bool {
	for _, x := range xs {
		if !x.Weak {
			return false
		}
	}
	return true
}

func toFloat(dt dtype.DataType) dtype.DataType {
	if tensor.IsInteger(dt) {
		return DefaultFloat
	}
	return dt
}

// UnaryOp infers the result of a unary operator.
func UnaryOp(op ops.Op, x Operand) (Operand, error) {
	if op.Arity() != 1 {
		return Operand{}, errors.Errorf("%s is not a unary operator", op)
	}
	if err := checkDType(x.DType); err != nil {
		return Operand{}, errors.Wrapf(err, "cannot apply %s", op)
	}
	out := Operand{
		Shape: shape.Shape{DType: x.DType, AxisLengths: slices.Clone(x.AxisLengths)},
		Weak:  x.Weak,
	}
	if op.Class() == ops.Floating {
		out.DType = toFloat(x.DType)
	}
	return out, nil
}

func nAry(op ops.Op, xs ...Operand) (Operand, error) {
	dims := make([][]int, len(xs))
	for i, x := range xs {
		dims[i] = x.AxisLengths
	}
	outDims, err := Broadcast(dims...)
	if err != nil {
		return Operand{}, errors.WithMessagef(err, "cannot apply %s", op)
	}
	operands := xs
	if op.Class() == ops.Select {
		if err := checkDType(xs[0].DType); err != nil {
			return Operand{}, errors.Wrapf(err, "cannot apply %s to its condition", op)
		}
		operands = xs[1:]
	}
	dt, err := PromoteOperands(operands...)
	if err != nil {
		return Operand{}, errors.Wrapf(err, "cannot apply %s", op)
	}
	if op.Class() == ops.Division {
		dt = toFloat(dt)
	}
	return Operand{
		Shape: shape.Shape{DType: dt, AxisLengths: outDims},
		Weak:  allWeak(xs),
	}, nil
}

// BinaryOp infers the result of a binary operator.
// Comparison operators return 0 or 1 in the promoted element type.
func BinaryOp(op ops.Op, x, y Operand) (Operand, error) {
	if op.Arity() != 2 {
		return Operand{}, errors.Errorf("%s is not a binary operator", op)
	}
	return nAry(op, x, y)
}

// TernaryOp infers the result of a ternary operator.
// The condition of a select operator does not take part in the type promotion.
func TernaryOp(op ops.Op, x, y, z Operand) (Operand, error) {
	if op.Arity() != 3 {
		return Operand{}, errors.Errorf("%s is not a ternary operator", op)
	}
	return nAry(op, x, y, z)
}

// NormalizeAxis returns the positive index of an axis.
// Negative axes are counted from the last axis.
func NormalizeAxis(axis, rank int) (int, error) {
	if axis < 0 {
		axis += rank
	}
	if axis < 0 || axis >= rank {
		return 0, errors.Errorf("axis %d out of range for rank %d", axis, rank)
	}
	return axis, nil
}

// Split infers the shape of each chunk when splitting an operand into
// chunks of equal lengths along an axis.
func Split(x Operand, axis, chunks int) (Operand, error) {
	axis, err := NormalizeAxis(axis, len(x.AxisLengths))
	if err != nil {
		return Operand{}, errors.WithMessage(err, "cannot split")
	}
	if chunks <= 0 {
		return Operand{}, errors.Errorf("cannot split into %d chunks", chunks)
	}
	length := x.AxisLengths[axis]
	if length%chunks != 0 {
		return Operand{}, errors.Errorf("cannot split axis %d of length %d into %d chunks of equal length", axis, length, chunks)
	}
	dims := slices.Clone(x.AxisLengths)
	dims[axis] = length / chunks
	return Operand{Shape: shape.Shape{DType: x.DType, AxisLengths: dims}}, nil
}

// Concat infers the result of concatenating operands along an axis.
// All operands must have the same rank and the same lengths except along the axis.
func Concat(axis int, xs ...Operand) (Operand, error) {
	if len(xs) == 0 {
		return Operand{}, errors.Errorf("cannot concatenate an empty list of operands")
	}
	rank := len(xs[0].AxisLengths)
	axis, err := NormalizeAxis(axis, rank)
	if err != nil {
		return Operand{}, errors.WithMessage(err, "cannot concatenate")
	}
	dims := slices.Clone(xs[0].AxisLengths)
	dims[axis] = 0
	for i, x := range xs {
		if len(x.AxisLengths) != rank {
			return Operand{}, errors.Errorf("cannot concatenate operand %d of rank %d with operands of rank %d", i, len(x.AxisLengths), rank)
		}
		for a, length := range x.AxisLengths {
			if a == axis {
				dims[a] += length
				continue
			}
			if length != dims[a] {
				return Operand{}, errors.Errorf("cannot concatenate operand %d of shape %v along axis %d: axis %d has length %d but want %d", i, x.AxisLengths, axis, a, length, dims[a])
			}
		}
	}
	dt, err := PromoteOperands(xs...)
	if err != nil {
		return Operand{}, errors.WithMessage(err, "cannot concatenate")
	}
	return Operand{Shape: shape.Shape{DType: dt, AxisLengths: dims}}, nil
}
