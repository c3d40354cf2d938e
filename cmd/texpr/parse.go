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

package main

import (
	"go/ast"
	goparser "go/parser"
	"go/token"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/gx-org/texpr/trace"
)

var binaryOps = map[token.Token]string{
	token.ADD: "add",
	token.SUB: "sub",
	token.MUL: "mul",
	token.QUO: "div",
	token.REM: "remainder",
	token.EQL: "eq",
	token.NEQ: "ne",
	token.GEQ: "ge",
	token.GTR: "gt",
	token.LEQ: "le",
	token.LSS: "lt",
}

type parser struct {
	r      *trace.Recorder
	inputs map[string]trace.Value
}

// parseTrace records a trace from Go expressions separated by semicolons.
// Each expression is an output of the trace. Identifiers refer to inputs.
func parseTrace(src string, names []string) (*trace.Trace, error) {
	p := &parser{
		r:      trace.NewRecorder(len(names)),
		inputs: make(map[string]trace.Value),
	}
	for i, name := range names {
		if _, dup := p.inputs[name]; dup {
			return nil, errors.Errorf("input %s declared twice", name)
		}
		p.inputs[name] = p.r.Input(i)
	}
	var outs []trace.Value
	for _, s := range strings.Split(src, ";") {
		if strings.TrimSpace(s) == "" {
			continue
		}
		expr, err := goparser.ParseExpr(s)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot parse %q", s)
		}
		out, err := p.value(expr)
		if err != nil {
			return nil, errors.WithMessagef(err, "in %q", strings.TrimSpace(s))
		}
		outs = append(outs, out)
	}
	if len(outs) == 0 {
		return nil, errors.Errorf("no expression to compile")
	}
	p.r.Output(outs...)
	return p.r.Trace(), nil
}

func (p *parser) value(expr ast.Expr) (trace.Value, error) {
	switch expr := expr.(type) {
	case *ast.ParenExpr:
		return p.value(expr.X)
	case *ast.Ident:
		val, ok := p.inputs[expr.Name]
		if !ok {
			return 0, errors.Errorf("undefined: %s", expr.Name)
		}
		return val, nil
	case *ast.BasicLit:
		return p.literal(expr, false)
	case *ast.UnaryExpr:
		switch expr.Op {
		case token.ADD:
			return p.value(expr.X)
		case token.SUB:
			if lit, ok := expr.X.(*ast.BasicLit); ok {
				return p.literal(lit, true)
			}
			x, err := p.value(expr.X)
			if err != nil {
				return 0, err
			}
			return p.r.Call("neg", x), nil
		}
		return 0, errors.Errorf("unary operator %s not supported", expr.Op)
	case *ast.BinaryExpr:
		name, ok := binaryOps[expr.Op]
		if !ok {
			return 0, errors.Errorf("binary operator %s not supported", expr.Op)
		}
		x, err := p.value(expr.X)
		if err != nil {
			return 0, err
		}
		y, err := p.value(expr.Y)
		if err != nil {
			return 0, err
		}
		return p.r.Call(name, x, y), nil
	case *ast.CallExpr:
		return p.call(expr)
	case *ast.IndexExpr:
		return p.chunk(expr)
	}
	return 0, errors.Errorf("expression %T not supported", expr)
}

func (p *parser) literal(lit *ast.BasicLit, neg bool) (trace.Value, error) {
	val := lit.Value
	if neg {
		val = "-" + val
	}
	switch lit.Kind {
	case token.INT:
		i, err := strconv.ParseInt(val, 0, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "invalid integer literal %s", val)
		}
		return p.r.Constant(i), nil
	case token.FLOAT:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "invalid float literal %s", val)
		}
		return p.r.Constant(f), nil
	}
	return 0, errors.Errorf("literal %s not supported", lit.Value)
}

func intLiteral(expr ast.Expr) (int, error) {
	neg := false
	if un, ok := expr.(*ast.UnaryExpr); ok && un.Op == token.SUB {
		neg = true
		expr = un.X
	}
	lit, ok := expr.(*ast.BasicLit)
	if !ok || lit.Kind != token.INT {
		return 0, errors.Errorf("want an integer literal")
	}
	i, err := strconv.Atoi(lit.Value)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid integer literal %s", lit.Value)
	}
	if neg {
		i = -i
	}
	return i, nil
}

func (p *parser) values(exprs []ast.Expr) ([]trace.Value, error) {
	vals := make([]trace.Value, len(exprs))
	for i, expr := range exprs {
		var err error
		if vals[i], err = p.value(expr); err != nil {
			return nil, err
		}
	}
	return vals, nil
}

// call records a function call. cat(dim, xs...) concatenates its operands.
func (p *parser) call(expr *ast.CallExpr) (trace.Value, error) {
	fun, ok := expr.Fun.(*ast.Ident)
	if !ok {
		return 0, errors.Errorf("cannot call %T", expr.Fun)
	}
	if fun.Name == "chunk" {
		return 0, errors.Errorf("chunk requires an index: chunk(x, chunks, dim)[i]")
	}
	if fun.Name != trace.CatOp {
		args, err := p.values(expr.Args)
		if err != nil {
			return 0, err
		}
		return p.r.Call(fun.Name, args...), nil
	}
	if len(expr.Args) < 2 {
		return 0, errors.Errorf("cat requires an axis and at least one operand")
	}
	dim, err := intLiteral(expr.Args[0])
	if err != nil {
		return 0, errors.WithMessagef(err, "axis of cat")
	}
	args, err := p.values(expr.Args[1:])
	if err != nil {
		return 0, err
	}
	return p.r.Cat(dim, args...), nil
}

// chunk records chunk(x, chunks, dim)[i].
func (p *parser) chunk(expr *ast.IndexExpr) (trace.Value, error) {
	call, ok := expr.X.(*ast.CallExpr)
	if !ok || len(call.Args) != 3 {
		return 0, errors.Errorf("indexing is only supported on chunk(x, chunks, dim)")
	}
	if fun, ok := call.Fun.(*ast.Ident); !ok || fun.Name != "chunk" {
		return 0, errors.Errorf("indexing is only supported on chunk(x, chunks, dim)")
	}
	x, err := p.value(call.Args[0])
	if err != nil {
		return 0, err
	}
	chunks, err := intLiteral(call.Args[1])
	if err != nil {
		return 0, errors.WithMessagef(err, "number of chunks")
	}
	dim, err := intLiteral(call.Args[2])
	if err != nil {
		return 0, errors.WithMessagef(err, "axis of chunk")
	}
	index, err := intLiteral(expr.Index)
	if err != nil {
		return 0, errors.WithMessagef(err, "chunk index")
	}
	if chunks <= 0 || index < 0 || index >= chunks {
		return 0, errors.Errorf("chunk index %d out of range [0, %d)", index, chunks)
	}
	return p.r.Chunk(x, chunks, dim)[index], nil
}
