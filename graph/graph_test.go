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

package graph_test

import (
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/backend/shape"
	"github.com/gx-org/texpr/graph"
	"github.com/gx-org/texpr/ops"
	"github.com/gx-org/texpr/shapeinference"
	"github.com/gx-org/texpr/tensor"
	"github.com/gx-org/texpr/trace"
)

func f32(dims ...int) shape.Shape {
	return shape.Shape{DType: dtype.Float32, AxisLengths: dims}
}

func TestDedup(t *testing.T) {
	g := graph.New()
	x, err := g.Input(f32(4))
	if err != nil {
		t.Fatal(err)
	}
	one, _ := g.Scalar(1.0)
	oneAgain, _ := g.Scalar(1.0)
	if one != oneAgain {
		t.Errorf("scalar literals have not been deduplicated")
	}
	two, _ := g.Scalar(2.0)
	if one == two {
		t.Errorf("different scalar literals have been deduplicated")
	}
	a, _ := g.Binary(ops.Add, x, one)
	b, _ := g.Binary(ops.Add, x, one)
	if a != b {
		t.Errorf("x+1 has not been deduplicated: %v and %v", a, b)
	}
	c, _ := g.Binary(ops.Add, one, x)
	if a == c {
		t.Errorf("x+1 and 1+x have been deduplicated")
	}
	s1, _ := g.Unary(ops.Sin, a)
	s2, _ := g.Unary(ops.Sin, b)
	if s1 != s2 {
		t.Errorf("sin(x+1) has not been deduplicated")
	}
	cst := tensor.FromSlice([]float32{1, 2, 3, 4})
	k1, _ := g.Constant(cst)
	k2, _ := g.Constant(cst)
	if k1 == k2 {
		t.Errorf("tensor constants should not be deduplicated")
	}
	if got, want := len(g.Nodes()), 8; got != want {
		t.Errorf("got %d nodes but want %d:\n%s", got, want, g)
	}
}

func TestConstantFolding(t *testing.T) {
	type literal struct {
		Kind  graph.Kind
		DType dtype.DataType
		Weak  bool
		Value any
	}
	summarize := func(n *graph.Node) literal {
		return literal{Kind: n.Kind(), DType: n.DType(), Weak: n.Weak(), Value: n.Literal()}
	}
	g := graph.New()
	x, err := g.Input(f32(3))
	if err != nil {
		t.Fatal(err)
	}
	two, _ := g.Scalar(2.0)
	three, _ := g.Scalar(3.0)
	intTwo, _ := g.Scalar(2)
	zero, _ := g.Scalar(0)

	six, err := g.Binary(ops.Mul, two, three)
	if err != nil {
		t.Fatal(err)
	}
	sin, err := g.Unary(ops.Sin, intTwo)
	if err != nil {
		t.Fatal(err)
	}
	rem, err := g.Binary(ops.Remainder, intTwo, three)
	if err != nil {
		t.Fatal(err)
	}
	negRem, err := g.Binary(ops.Remainder, mustScalar(t, g, -7), mustScalar(t, g, 3))
	if err != nil {
		t.Fatal(err)
	}
	sel, err := g.Ternary(ops.Where, zero, two, three)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		node *graph.Node
		want literal
	}{
		{
			name: "2.0*3.0",
			node: six,
			want: literal{Kind: graph.ConstantKind, DType: dtype.Float64, Weak: true, Value: 6.0},
		},
		{
			name: "sin(2)",
			node: sin,
			want: literal{Kind: graph.ConstantKind, DType: dtype.Float32, Weak: true, Value: float64(float32(math.Sin(2)))},
		},
		{
			name: "remainder(2, 3.0)",
			node: rem,
			want: literal{Kind: graph.ConstantKind, DType: dtype.Float64, Weak: true, Value: 2.0},
		},
		{
			name: "remainder(-7, 3)",
			node: negRem,
			want: literal{Kind: graph.ConstantKind, DType: dtype.Int64, Weak: true, Value: int64(2)},
		},
		{
			name: "where(0, 2.0, 3.0)",
			node: sel,
			want: literal{Kind: graph.ConstantKind, DType: dtype.Float64, Weak: true, Value: 3.0},
		},
	}
	for _, test := range tests {
		if diff := cmp.Diff(test.want, summarize(test.node)); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", test.name, diff)
		}
	}
	if got, want := tensor.Values[float32](sin.Value()), []float32{float32(math.Sin(2))}; !cmp.Equal(got, want) {
		t.Errorf("sin(2) value = %v but want %v", got, want)
	}
	if sixAgain := mustScalar(t, g, 6.0); sixAgain != six {
		t.Errorf("folded literal %v and literal %v have not been deduplicated", six, sixAgain)
	}
	y, err := g.Binary(ops.Mul, x, six)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{x.ID(), six.ID()}, y.Operands()); diff != "" {
		t.Errorf("x*6 operands mismatch (-want +got):\n%s", diff)
	}
	if got := y.Kind(); got != graph.BinaryKind {
		t.Errorf("x*6 has been folded into a %s node", got)
	}
}

func mustScalar(t *testing.T, g *graph.Graph, literal any) *graph.Node {
	t.Helper()
	n, err := g.Scalar(literal)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestFromTrace(t *testing.T) {
	r := trace.NewRecorder(2)
	x, y := r.Input(0), r.Input(1)
	alpha := r.Constant(2)
	sum := r.Call("add", x, y, alpha)
	one := r.Constant(1)
	diff := r.Call("sub", sum, y, one)
	halves := r.Chunk(diff, 2, 0)
	r.Output(r.Cat(1, halves[0], halves[1]), r.Call("lt", x, y))

	g, err := graph.FromTrace(r.Trace(), []shape.Shape{f32(4, 3), f32(3)})
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Validate(); err != nil {
		t.Fatal(err)
	}
	want := `%0 = input(0): float32[4 3]
%1 = input(1): float32[3]
%2 = literal(2): int64[]
%3 = mul[%2 %1]: float32[3]
%4 = add[%0 %3]: float32[4 3]
%5 = literal(1): int64[]
%6 = sub[%4 %1]: float32[4 3]
%7 = split(%6, axis=0, chunk=0/2): float32[2 3]
%8 = split(%6, axis=0, chunk=1/2): float32[2 3]
%9 = concat([%7 %8], axis=1): float32[2 6]
%10 = lt[%0 %1]: float32[4 3]
return %9, %10
`
	if diff := cmp.Diff(want, g.String()); diff != "" {
		t.Errorf("graph mismatch (-want +got):\n%s", diff)
	}
}

func TestFromTraceUnsupported(t *testing.T) {
	r := trace.NewRecorder(2)
	x, y := r.Input(0), r.Input(1)
	r.Output(r.Call("pow", r.Call("add", x, y), y))
	tr := r.Trace()

	_, err := graph.FromTrace(tr, []shape.Shape{f32(3), f32(3)})
	var unsupported *graph.UnsupportedOpError
	if !errors.As(err, &unsupported) {
		t.Fatalf("got error %v but want an UnsupportedOpError", err)
	}
	if diff := cmp.Diff(&graph.UnsupportedOpError{Op: "pow", Index: 1}, unsupported); diff != "" {
		t.Errorf("error mismatch (-want +got):\n%s", diff)
	}
	if err := graph.CheckSupported(tr); !errors.As(err, &unsupported) {
		t.Errorf("CheckSupported returned %v but want an UnsupportedOpError", err)
	}
	g, err := graph.FromTrace(tr, []shape.Shape{f32(3), f32(3)}, graph.WithInterpreterOps())
	if err != nil {
		t.Fatal(err)
	}
	if got := g.Outputs()[0].Op(); got != ops.Pow {
		t.Errorf("got output operator %s but want pow", got)
	}
}

func TestFromTraceErrors(t *testing.T) {
	tests := []struct {
		name   string
		record func(r *trace.Recorder)
		inputs []shape.Shape
		want   string
	}{
		{
			name: "broadcast",
			record: func(r *trace.Recorder) {
				r.Output(r.Call("mul", r.Input(0), r.Input(1)))
			},
			inputs: []shape.Shape{f32(2, 3), f32(2)},
			want:   "trace op 0 (mul)",
		},
		{
			name: "arity",
			record: func(r *trace.Recorder) {
				r.Output(r.Call("sin", r.Input(0), r.Input(1)))
			},
			inputs: []shape.Shape{f32(2), f32(2)},
			want:   "got 2 operands but want 1",
		},
		{
			name: "undefined value",
			record: func(r *trace.Recorder) {
				r.Output(r.Call("neg", trace.Value(42)))
			},
			inputs: []shape.Shape{f32(2), f32(2)},
			want:   "value %42 is undefined",
		},
		{
			name: "number of inputs",
			record: func(r *trace.Recorder) {
				r.Output(r.Input(0))
			},
			inputs: []shape.Shape{f32(2)},
			want:   "got 1 input shapes but the trace has 2 inputs",
		},
		{
			name: "split",
			record: func(r *trace.Recorder) {
				r.Output(r.Chunk(r.Input(0), 3, 0)...)
			},
			inputs: []shape.Shape{f32(4), f32(2)},
			want:   "into 3 chunks",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			r := trace.NewRecorder(2)
			test.record(r)
			_, err := graph.FromTrace(r.Trace(), test.inputs)
			if err == nil {
				t.Fatalf("expected an error")
			}
			if !strings.Contains(err.Error(), test.want) {
				t.Errorf("got error %q but want an error that contains %q", err.Error(), test.want)
			}
		})
	}
}

func TestBroadcastErrorFromTrace(t *testing.T) {
	r := trace.NewRecorder(2)
	r.Output(r.Call("add", r.Input(0), r.Input(1)))
	_, err := graph.FromTrace(r.Trace(), []shape.Shape{f32(2, 3), f32(4)})
	var bErr *shapeinference.BroadcastError
	if !errors.As(err, &bErr) {
		t.Errorf("got error %v but want a BroadcastError", err)
	}
}

func TestForeignNode(t *testing.T) {
	g1, g2 := graph.New(), graph.New()
	x, _ := g1.Input(f32(2))
	if _, err := g2.Unary(ops.Neg, x); err == nil {
		t.Errorf("expected an error when using a node from another graph")
	}
	if err := g2.SetOutputs(); err == nil {
		t.Errorf("expected an error when setting no outputs")
	}
}
