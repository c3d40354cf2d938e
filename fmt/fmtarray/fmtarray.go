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

// Package fmtarray formats the values of a tensor into a string.
package fmtarray

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
)

const tab = "\t"

func computeIndex(offsets []int, p []int) int {
	var index int
	for i, v := range p {
		index += offsets[i] * v
	}
	return index
}

type builder[T any] struct {
	w       *strings.Builder
	data    []T
	axes    []int
	offsets []int
}

func newBuilder[T any](data []T, axes []int) (*builder[T], error) {
	b := &builder[T]{
		w:       &strings.Builder{},
		data:    data,
		axes:    axes,
		offsets: axesOffsets(axes),
	}
	total := 1
	for _, size := range b.axes {
		total *= size
	}
	if total != len(data) {
		return b, errors.Errorf("len(data)=%d does not match axes %v=%d", len(data), axes, total)
	}
	return b, nil
}

func formatFloat(x float64, fmtstr string) string {
	switch {
	case math.IsNaN(x):
		return "NaN"
	case math.IsInf(x, 1):
		return "+Inf"
	case math.IsInf(x, -1):
		return "-Inf"
	}
	result := fmt.Sprintf(fmtstr, x)
	if strings.ContainsRune(result, '.') {
		// Remove trailing zeroes after the decimal point, then the point itself
		// if there is no digit left after it.
		result = strings.TrimRight(result, "0")
		result = strings.TrimSuffix(result, ".")
	}
	return result
}

func (b *builder[T]) toValue(x T) string {
	switch xT := any(x).(type) {
	case float32:
		return formatFloat(float64(xT), "%.6f")
	case float64:
		return formatFloat(xT, "%.10f")
	default:
		return fmt.Sprint(x)
	}
}

func (b *builder[T]) printScalar() {
	b.w.WriteString("(")
	b.w.WriteString(b.toValue(b.data[0]))
	b.w.WriteString(")")
}

func (b *builder[T]) printVector(p []int) {
	fullPos := make([]int, len(b.axes))
	copy(fullPos, p)
	vecSize := b.axes[len(b.axes)-1]

	vec := make([]string, vecSize)
	for i := range vecSize {
		fullPos[len(fullPos)-1] = i
		vec[i] = b.toValue(b.data[computeIndex(b.offsets, fullPos)])
	}
	b.w.WriteString(fmt.Sprintf("{%s}", strings.Join(vec, ", ")))
}

func toPosition(parentPosition []int) []int {
	position := append([]int{}, parentPosition...)
	return append(position, 0)
}

func (b *builder[T]) printMatrix(indent string, parentPosition []int) {
	numRows := b.axes[len(b.axes)-2]
	position := toPosition(parentPosition)
	b.w.WriteString(indent + "{\n")
	for i := range numRows {
		b.w.WriteString(indent + tab)
		position[len(position)-1] = i
		b.printVector(position)
		b.w.WriteString(",\n")
	}
	b.w.WriteString(indent + "}")
}

func (b *builder[T]) printRec(indent string, parentPosition []int) {
	if len(b.axes)-len(parentPosition) == 2 {
		b.printMatrix(indent, parentPosition)
		return
	}
	b.w.WriteString(indent + "{\n")
	position := toPosition(parentPosition)
	for i := range b.axes[len(parentPosition)] {
		position[len(position)-1] = i
		b.printRec(indent+tab, position)
		b.w.WriteString(",\n")
	}
	b.w.WriteString(indent + "}")
}

func (b *builder[T]) printType(typeName string) {
	for _, size := range b.axes {
		b.w.WriteString(fmt.Sprintf("[%d]", size))
	}
	b.w.WriteString(typeName)
}

func axesOffsets(axes []int) []int {
	offsets := make([]int, len(axes))
	for i := range offsets {
		offsets[i] = 1
		for _, d := range axes[i+1:] {
			offsets[i] *= d
		}
	}
	return offsets
}

func (b *builder[T]) sDataPrint() {
	for _, size := range b.axes {
		if size == 0 {
			b.w.WriteString("{}")
			return
		}
	}
	switch len(b.axes) {
	case 0:
		b.printScalar()
	case 1:
		b.printVector(nil)
	case 2:
		b.printMatrix("", nil)
	default:
		b.printRec("", nil)
	}
}

// SDataPrint returns a string representation of the content of an array without the type.
// Values are given in row-major order.
func SDataPrint[T any](data []T, axes []int) string {
	b, err := newBuilder(data, axes)
	if err != nil {
		return err.Error()
	}
	b.sDataPrint()
	return b.w.String()
}

// Sprint returns a string representation of an array prefixed by its type.
func Sprint[T any](typeName string, data []T, axes []int) string {
	b, err := newBuilder(data, axes)
	if err != nil {
		return err.Error()
	}
	b.printType(typeName)
	b.sDataPrint()
	return b.w.String()
}
