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

package graph

import (
	"strings"
	"testing"

	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/backend/shape"
	"github.com/gx-org/texpr/ops"
	"go.uber.org/multierr"
)

func TestValidate(t *testing.T) {
	g := New()
	x, err := g.Input(shape.Shape{DType: dtype.Float64, AxisLengths: []int{3}})
	if err != nil {
		t.Fatal(err)
	}
	neg, err := g.Unary(ops.Neg, x)
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Validate(); err == nil || !strings.Contains(err.Error(), "no output") {
		t.Errorf("got error %v but want a missing output error", err)
	}
	if err := g.SetOutputs(neg); err != nil {
		t.Fatal(err)
	}
	if err := g.Validate(); err != nil {
		t.Fatal(err)
	}
	g.nodes = append(g.nodes,
		&Node{graph: g, id: 2, kind: BinaryKind, op: ops.Add, operands: []int{1, 7}},
		&Node{graph: g, id: 3, kind: UnaryKind, op: ops.Sin, operands: []int{3}},
		&Node{graph: g, id: 4, kind: TernaryKind, op: ops.Clamp, operands: []int{0}},
	)
	err = g.Validate()
	errs := multierr.Errors(err)
	if len(errs) != 3 {
		t.Fatalf("got %d errors but want 3: %v", len(errs), err)
	}
	for i, want := range []string{
		"node 2 (binary add): dangling operand 7",
		"node 3 (unary sin): operand 3 is not defined before its use",
		"node 4 (ternary clamp): got 1 operands but want 3",
	} {
		if !strings.Contains(errs[i].Error(), want) {
			t.Errorf("error %d: got %q but want %q", i, errs[i].Error(), want)
		}
	}
}
