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

package shapeinference_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/backend/shape"
	"github.com/gx-org/texpr/ops"
	"github.com/gx-org/texpr/shapeinference"
)

func TestBroadcast(t *testing.T) {
	tests := []struct {
		dims [][]int
		want []int
	}{
		{dims: [][]int{{32, 32}, {32}}, want: []int{32, 32}},
		{dims: [][]int{{32}, {32, 32}}, want: []int{32, 32}},
		{dims: [][]int{{4, 1, 3}, {5, 1}}, want: []int{4, 5, 3}},
		{dims: [][]int{{}, {2, 3}}, want: []int{2, 3}},
		{dims: [][]int{{}, {}}, want: []int{}},
		{dims: [][]int{{0, 3}, {1, 3}}, want: []int{0, 3}},
		{dims: [][]int{{2, 1}, {1, 3}, {3}}, want: []int{2, 3}},
	}
	for _, test := range tests {
		got, err := shapeinference.Broadcast(test.dims...)
		if err != nil {
			t.Errorf("Broadcast(%v): %v", test.dims, err)
			continue
		}
		if diff := cmp.Diff(test.want, got); diff != "" {
			t.Errorf("Broadcast(%v) mismatch (-want +got):\n%s", test.dims, diff)
		}
	}
}

func TestBroadcastError(t *testing.T) {
	_, err := shapeinference.Broadcast([]int{2, 3}, []int{4})
	var bErr *shapeinference.BroadcastError
	if !errors.As(err, &bErr) {
		t.Fatalf("got error %v but want a BroadcastError", err)
	}
	if bErr.Axis != 0 {
		t.Errorf("got axis %d but want 0", bErr.Axis)
	}
	if diff := cmp.Diff([][]int{{2, 3}, {4}}, bErr.Dims); diff != "" {
		t.Errorf("shapes mismatch (-want +got):\n%s", diff)
	}
	x := shapeinference.Strong(shape.Shape{DType: dtype.Float32, AxisLengths: []int{2, 3}})
	y := shapeinference.Strong(shape.Shape{DType: dtype.Float32, AxisLengths: []int{2}})
	_, err = shapeinference.BinaryOp(ops.Add, x, y)
	if !errors.As(err, &bErr) {
		t.Errorf("got error %v but want a BroadcastError", err)
	}
	if err != nil && !strings.Contains(err.Error(), "cannot apply add") {
		t.Errorf("error %q does not name the operator", err.Error())
	}
}

func TestPromote(t *testing.T) {
	tests := []struct {
		a, b, want dtype.DataType
	}{
		{a: dtype.Int32, b: dtype.Int32, want: dtype.Int32},
		{a: dtype.Int32, b: dtype.Int64, want: dtype.Int64},
		{a: dtype.Uint32, b: dtype.Uint64, want: dtype.Uint64},
		{a: dtype.Int32, b: dtype.Uint32, want: dtype.Int64},
		{a: dtype.Uint64, b: dtype.Int32, want: dtype.Int64},
		{a: dtype.Int64, b: dtype.Float32, want: dtype.Float32},
		{a: dtype.Float64, b: dtype.Int32, want: dtype.Float64},
		{a: dtype.Float32, b: dtype.Float64, want: dtype.Float64},
		{a: dtype.Bfloat16, b: dtype.Float32, want: dtype.Float32},
		{a: dtype.Bfloat16, b: dtype.Int64, want: dtype.Bfloat16},
	}
	for _, test := range tests {
		got, err := shapeinference.Promote(test.a, test.b)
		if err != nil {
			t.Fatal(err)
		}
		if got != test.want {
			t.Errorf("Promote(%v, %v) = %v but want %v", test.a, test.b, got, test.want)
		}
	}
	if _, err := shapeinference.Promote(dtype.Bool, dtype.Int32); err == nil {
		t.Errorf("expected an error when promoting bool")
	}
}

func operand(dt dtype.DataType, weak bool, dims ...int) shapeinference.Operand {
	if dims == nil {
		dims = []int{}
	}
	return shapeinference.Operand{
		Shape: shape.Shape{DType: dt, AxisLengths: dims},
		Weak:  weak,
	}
}

type summary struct {
	DType dtype.DataType
	Dims  []int
	Weak  bool
}

func summarize(x shapeinference.Operand) summary {
	return summary{DType: x.DType, Dims: x.AxisLengths, Weak: x.Weak}
}

func TestInferOperators(t *testing.T) {
	tests := []struct {
		name string
		op   ops.Op
		xs   []shapeinference.Operand
		want shapeinference.Operand
	}{
		{
			name: "add broadcast",
			op:   ops.Add,
			xs:   []shapeinference.Operand{operand(dtype.Float32, false, 32, 32), operand(dtype.Float32, false, 32)},
			want: operand(dtype.Float32, false, 32, 32),
		},
		{
			name: "weak integer literal keeps int32",
			op:   ops.Mul,
			xs:   []shapeinference.Operand{operand(dtype.Int32, false, 4), operand(dtype.Int64, true)},
			want: operand(dtype.Int32, false, 4),
		},
		{
			name: "weak float literal against integers",
			op:   ops.Add,
			xs:   []shapeinference.Operand{operand(dtype.Int64, false, 4), operand(dtype.Float64, true)},
			want: operand(dtype.Float32, false, 4),
		},
		{
			name: "weak float literal keeps bfloat16",
			op:   ops.Add,
			xs:   []shapeinference.Operand{operand(dtype.Bfloat16, false, 4), operand(dtype.Float64, true)},
			want: operand(dtype.Bfloat16, false, 4),
		},
		{
			name: "comparison keeps the promoted type",
			op:   ops.Lt,
			xs:   []shapeinference.Operand{operand(dtype.Int32, false, 3), operand(dtype.Float64, false, 3)},
			want: operand(dtype.Float64, false, 3),
		},
		{
			name: "integer division",
			op:   ops.Div,
			xs:   []shapeinference.Operand{operand(dtype.Int32, false, 3), operand(dtype.Int32, false, 3)},
			want: operand(dtype.Float32, false, 3),
		},
		{
			name: "integer sin",
			op:   ops.Sin,
			xs:   []shapeinference.Operand{operand(dtype.Int64, false, 2)},
			want: operand(dtype.Float32, false, 2),
		},
		{
			name: "integer abs",
			op:   ops.Abs,
			xs:   []shapeinference.Operand{operand(dtype.Int64, false, 2)},
			want: operand(dtype.Int64, false, 2),
		},
		{
			name: "weak literals",
			op:   ops.Add,
			xs:   []shapeinference.Operand{operand(dtype.Int64, true), operand(dtype.Float64, true)},
			want: operand(dtype.Float64, true),
		},
		{
			name: "clamp",
			op:   ops.Clamp,
			xs:   []shapeinference.Operand{operand(dtype.Float32, false, 2, 3), operand(dtype.Float64, true), operand(dtype.Float64, true)},
			want: operand(dtype.Float32, false, 2, 3),
		},
		{
			name: "where ignores the type of the condition",
			op:   ops.Where,
			xs:   []shapeinference.Operand{operand(dtype.Float64, false, 2, 1), operand(dtype.Int32, false, 3), operand(dtype.Int32, false, 1)},
			want: operand(dtype.Int32, false, 2, 3),
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var got shapeinference.Operand
			var err error
			switch len(test.xs) {
			case 1:
				got, err = shapeinference.UnaryOp(test.op, test.xs[0])
			case 2:
				got, err = shapeinference.BinaryOp(test.op, test.xs[0], test.xs[1])
			case 3:
				got, err = shapeinference.TernaryOp(test.op, test.xs[0], test.xs[1], test.xs[2])
			}
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(summarize(test.want), summarize(got)); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSplitConcat(t *testing.T) {
	x := operand(dtype.Float32, false, 1024, 1024)
	chunk, err := shapeinference.Split(x, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{512, 1024}, chunk.AxisLengths); diff != "" {
		t.Errorf("split mismatch (-want +got):\n%s", diff)
	}
	if _, err := shapeinference.Split(operand(dtype.Float32, false, 5), 0, 2); err == nil {
		t.Errorf("expected an error when splitting 5 elements into 2 chunks")
	}
	cat, err := shapeinference.Concat(-1, x, operand(dtype.Int32, false, 1024, 16))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(summarize(operand(dtype.Float32, false, 1024, 1040)), summarize(cat)); diff != "" {
		t.Errorf("concat mismatch (-want +got):\n%s", diff)
	}
	if _, err := shapeinference.Concat(1, x, operand(dtype.Float32, false, 8, 8)); err == nil {
		t.Errorf("expected an error when concatenating mismatched lengths")
	}
	if _, err := shapeinference.Concat(0, operand(dtype.Float32, false)); err == nil {
		t.Errorf("expected an error when concatenating scalars")
	}
}
