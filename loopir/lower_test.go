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

package loopir_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/backend/shape"
	"github.com/gx-org/texpr/graph"
	"github.com/gx-org/texpr/loopir"
	"github.com/gx-org/texpr/trace"
)

func f32(dims ...int) shape.Shape {
	return shape.Shape{DType: dtype.Float32, AxisLengths: dims}
}

func lower(t *testing.T, r *trace.Recorder, inputs []shape.Shape, strides [][]int) *loopir.Program {
	t.Helper()
	g, err := graph.FromTrace(r.Trace(), inputs)
	if err != nil {
		t.Fatal(err)
	}
	prog, err := loopir.Lower(g, strides)
	if err != nil {
		t.Fatal(err)
	}
	return prog
}

func trim(s string) string {
	return strings.TrimSpace(s) + "\n"
}

func TestLower(t *testing.T) {
	tests := []struct {
		name    string
		record  func(r *trace.Recorder)
		inputs  []shape.Shape
		strides [][]int
		want    string
	}{
		{
			name: "fused broadcast add",
			record: func(r *trace.Recorder) {
				r.Output(r.Call("add", r.Input(0), r.Input(1)))
			},
			inputs: []shape.Shape{f32(2, 3), f32(3)},
			want: `
in0: float32[2 3] strides=[3 1]
in1: float32[3] strides=[1]
out0: float32[2 3] strides=[3 1]
for i0 < 2, i1 < 3 {
	r0: float32 = load in0[i0*3 + i1]
	r1: float32 = load in1[i1]
	r2: float32 = add(r0, r1)
	out0[i0*3 + i1] = r2
}
`,
		},
		{
			name: "transposed input and weak literal",
			record: func(r *trace.Recorder) {
				x := r.Input(0)
				r.Output(r.Call("mul", r.Call("sigmoid", x), r.Constant(2)))
			},
			inputs:  []shape.Shape{f32(3, 2)},
			strides: [][]int{{1, 3}},
			want: `
in0: float32[3 2] strides=[1 3]
out0: float32[3 2] strides=[2 1]
for i0 < 3, i1 < 2 {
	r0: float32 = load in0[i0 + i1*3]
	r1: float32 = sigmoid(r0)
	r2: int64 = const 2
	r3: float32 = cast r2
	r4: float32 = mul(r1, r3)
	out0[i0*2 + i1] = r4
}
`,
		},
		{
			name: "folded literals",
			record: func(r *trace.Recorder) {
				six := r.Call("mul", r.Constant(2.0), r.Constant(3.0))
				r.Output(r.Call("mul", r.Input(0), six))
			},
			inputs: []shape.Shape{f32(3)},
			want: `
in0: float32[3] strides=[1]
out0: float32[3] strides=[1]
for i0 < 3 {
	r0: float32 = load in0[i0]
	r1: float64 = const 6
	r2: float32 = cast r1
	r3: float32 = mul(r0, r2)
	out0[i0] = r3
}
`,
		},
		{
			name: "multiple outputs share a nest",
			record: func(r *trace.Recorder) {
				b := r.Call("add", r.Input(0), r.Constant(1.0))
				r.Output(b, r.Call("add", b, b))
			},
			inputs: []shape.Shape{f32(4)},
			want: `
in0: float32[4] strides=[1]
out0: float32[4] strides=[1]
out1: float32[4] strides=[1]
for i0 < 4 {
	r0: float32 = load in0[i0]
	r1: float64 = const 1
	r2: float32 = cast r1
	r3: float32 = add(r0, r2)
	r4: float32 = add(r3, r3)
	out0[i0] = r3
	out1[i0] = r4
}
`,
		},
		{
			name: "split of an input",
			record: func(r *trace.Recorder) {
				halves := r.Chunk(r.Input(0), 2, 0)
				r.Output(r.Call("add", halves[0], halves[1]))
			},
			inputs: []shape.Shape{f32(4, 3)},
			want: `
in0: float32[4 3] strides=[3 1]
out0: float32[2 3] strides=[3 1]
for i0 < 2, i1 < 3 {
	r0: float32 = load in0[i0*3 + i1]
	r1: float32 = load in0[6 + i0*3 + i1]
	r2: float32 = add(r0, r1)
	out0[i0*3 + i1] = r2
}
`,
		},
		{
			name: "split of a computed value",
			record: func(r *trace.Recorder) {
				halves := r.Chunk(r.Call("neg", r.Input(0)), 2, 1)
				r.Output(r.Call("sub", halves[1], halves[0]))
			},
			inputs: []shape.Shape{f32(2, 4)},
			want: `
in0: float32[2 4] strides=[4 1]
out0: float32[2 2] strides=[2 1]
tmp2: float32[2 4] strides=[4 1]
for i0 < 2, i1 < 4 {
	r0: float32 = load in0[i0*4 + i1]
	r1: float32 = neg(r0)
	tmp2[i0*4 + i1] = r1
}
for i0 < 2, i1 < 2 {
	r0: float32 = load tmp2[2 + i0*4 + i1]
	r1: float32 = load tmp2[i0*4 + i1]
	r2: float32 = sub(r0, r1)
	out0[i0*2 + i1] = r2
}
`,
		},
		{
			name: "concat output",
			record: func(r *trace.Recorder) {
				x, y := r.Input(0), r.Input(1)
				r.Output(r.Cat(1, r.Call("add", x, r.Constant(1.0)), r.Call("add", y, r.Constant(2.0))))
			},
			inputs: []shape.Shape{f32(2, 2), f32(2, 3)},
			want: `
in0: float32[2 2] strides=[2 1]
in1: float32[2 3] strides=[3 1]
out0: float32[2 5] strides=[5 1]
for i0 < 2, i1 < 2 {
	r0: float32 = load in0[i0*2 + i1]
	r1: float64 = const 1
	r2: float32 = cast r1
	r3: float32 = add(r0, r2)
	out0[i0*5 + i1] = r3
}
for i0 < 2, i1 < 3 {
	r0: float32 = load in1[i0*3 + i1]
	r1: float64 = const 2
	r2: float32 = cast r1
	r3: float32 = add(r0, r2)
	out0[2 + i0*5 + i1] = r3
}
`,
		},
		{
			name: "where keeps the type of its condition",
			record: func(r *trace.Recorder) {
				x, y := r.Input(0), r.Input(1)
				r.Output(r.Call("where", r.Call("lt", x, y), x, y))
			},
			inputs: []shape.Shape{
				{DType: dtype.Float64, AxisLengths: []int{2}},
				{DType: dtype.Int32, AxisLengths: []int{1}},
			},
			want: `
in0: float64[2] strides=[1]
in1: int32[1] strides=[1]
out0: float64[2] strides=[1]
for i0 < 2 {
	r0: float64 = load in0[i0]
	r1: int32 = load in1[0]
	r2: float64 = cast r1
	r3: float64 = lt(r0, r2)
	r4: float64 = select(r3, r0, r2)
	out0[i0] = r4
}
`,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			r := trace.NewRecorder(len(test.inputs))
			test.record(r)
			prog := lower(t, r, test.inputs, test.strides)
			if diff := cmp.Diff(trim(test.want), prog.String()); diff != "" {
				t.Errorf("program mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLowerConcatOfSplit(t *testing.T) {
	r := trace.NewRecorder(1)
	halves := r.Chunk(r.Call("exp", r.Input(0)), 2, 0)
	cat := r.Cat(0, halves[1], halves[0])
	r.Output(cat, r.Call("neg", cat))
	prog := lower(t, r, []shape.Shape{f32(4)}, nil)
	if got, want := len(prog.Nests), 4; got != want {
		t.Fatalf("got %d nests but want %d:\n%s", got, want, prog)
	}
	want := []int{4, 2, 2, 4}
	var got []int
	for _, nest := range prog.Nests {
		got = append(got, nest.Dims[0])
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("nest dims mismatch (-want +got):\n%s", diff)
	}
	// The concatenation is stored directly in the first output.
	last := prog.Nests[3]
	if diff := cmp.Diff(loopir.Access{Buffer: prog.Outputs[0], Strides: []int{1}}, last.Body[0].Access); diff != "" {
		t.Errorf("access mismatch (-want +got):\n%s", diff)
	}
}

func TestLowerErrors(t *testing.T) {
	r := trace.NewRecorder(1)
	r.Output(r.Call("neg", r.Input(0)))
	g, err := graph.FromTrace(r.Trace(), []shape.Shape{f32(2, 3)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := loopir.Lower(g, [][]int{{1}}); err == nil {
		t.Errorf("expected an error for strides of the wrong rank")
	}
	if _, err := loopir.Lower(g, [][]int{nil, nil}); err == nil {
		t.Errorf("expected an error for the wrong number of strides")
	}
}
