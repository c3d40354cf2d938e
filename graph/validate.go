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
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

var wantOperands = map[Kind]int{
	InputKind:    0,
	ConstantKind: 0,
	UnaryKind:    1,
	BinaryKind:   2,
	TernaryKind:  3,
	SplitKind:    1,
}

// Validate checks the structure of the graph and reports all the defects found.
func (g *Graph) Validate() error {
	var errs error
	for i, n := range g.nodes {
		if n.id != i {
			errs = multierr.Append(errs, errors.Errorf("node %d: index mismatch with id %d", i, n.id))
		}
		want, fixed := wantOperands[n.kind]
		switch {
		case fixed && len(n.operands) != want:
			errs = multierr.Append(errs, errors.Errorf("node %d (%s %s): got %d operands but want %d", i, n.kind, n.op, len(n.operands), want))
		case n.kind == ConcatKind && len(n.operands) == 0:
			errs = multierr.Append(errs, errors.Errorf("node %d (concat): no operand", i))
		case !fixed && n.kind != ConcatKind:
			errs = multierr.Append(errs, errors.Errorf("node %d: unknown kind %s", i, n.kind))
		}
		for _, op := range n.operands {
			switch {
			case op < 0 || op >= len(g.nodes):
				errs = multierr.Append(errs, errors.Errorf("node %d (%s %s): dangling operand %d", i, n.kind, n.op, op))
			case op >= i:
				errs = multierr.Append(errs, errors.Errorf("node %d (%s %s): operand %d is not defined before its use (cycle)", i, n.kind, n.op, op))
			}
		}
		if n.kind == ConstantKind && n.value == nil {
			errs = multierr.Append(errs, errors.Errorf("node %d (constant): missing value", i))
		}
	}
	for i, in := range g.inputs {
		if in < 0 || in >= len(g.nodes) || g.nodes[in].kind != InputKind {
			errs = multierr.Append(errs, errors.Errorf("input %d: node %d is not an input node", i, in))
		}
	}
	if len(g.outputs) == 0 {
		errs = multierr.Append(errs, errors.Errorf("graph has no output"))
	}
	for i, out := range g.outputs {
		if out < 0 || out >= len(g.nodes) {
			errs = multierr.Append(errs, errors.Errorf("output %d: dangling node %d", i, out))
		}
	}
	return errs
}
