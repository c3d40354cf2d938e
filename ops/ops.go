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

// Package ops defines the catalog of elementwise operators supported by the
// compiler together with their numerical semantics.
//
// The same vector kernels are used by compiled programs and by the reference
// interpreter so that both produce bit-identical results.
package ops

import (
	"slices"
)

// Op is an elementwise operator.
type Op int

// Operators of the catalog.
const (
	Invalid Op = iota

	Add
	Sub
	Mul
	Div
	Remainder
	Min
	Max

	Eq
	Ne
	Ge
	Gt
	Le
	Lt

	Clamp
	Where

	Sin
	Cos
	Tan
	Asin
	Acos
	Atan
	Sinh
	Cosh
	Tanh
	Sqrt
	Rsqrt
	Log
	Log2
	Log10
	Log1p
	Exp
	Expm1
	Erf
	Erfc
	Lgamma
	Sigmoid
	Reciprocal
	Abs
	Neg
	Relu
	Floor
	Ceil
	Trunc
	Frac
	Round

	// Operators below are only evaluated by the interpreter.
	Pow
	Fmod

	maxOp
)

// Class groups operators sharing the same type promotion rule.
type Class int

const (
	// Arithmetic operators promote their operands to a common type.
	Arithmetic Class = iota
	// Division always computes in floating point.
	Division
	// Comparison operators promote their operands and return 0 or 1 in the promoted type.
	Comparison
	// Floating operators convert integers to the default floating point type.
	Floating
	// Numeric operators keep the type of their operand.
	Numeric
	// Select operators choose between two operands given a condition.
	Select
)

// Info describes an operator.
type Info struct {
	Name     string
	Arity    int
	Class    Class
	Compiled bool
}

var infos = [maxOp]Info{
	Add:       {Name: "add", Arity: 2, Class: Arithmetic, Compiled: true},
	Sub:       {Name: "sub", Arity: 2, Class: Arithmetic, Compiled: true},
	Mul:       {Name: "mul", Arity: 2, Class: Arithmetic, Compiled: true},
	Div:       {Name: "div", Arity: 2, Class: Division, Compiled: true},
	Remainder: {Name: "remainder", Arity: 2, Class: Arithmetic, Compiled: true},
	Min:       {Name: "min", Arity: 2, Class: Arithmetic, Compiled: true},
	Max:       {Name: "max", Arity: 2, Class: Arithmetic, Compiled: true},

	Eq: {Name: "eq", Arity: 2, Class: Comparison, Compiled: true},
	Ne: {Name: "ne", Arity: 2, Class: Comparison, Compiled: true},
	Ge: {Name: "ge", Arity: 2, Class: Comparison, Compiled: true},
	Gt: {Name: "gt", Arity: 2, Class: Comparison, Compiled: true},
	Le: {Name: "le", Arity: 2, Class: Comparison, Compiled: true},
	Lt: {Name: "lt", Arity: 2, Class: Comparison, Compiled: true},

	Clamp: {Name: "clamp", Arity: 3, Class: Arithmetic, Compiled: true},
	Where: {Name: "where", Arity: 3, Class: Select, Compiled: true},

	Sin:        {Name: "sin", Arity: 1, Class: Floating, Compiled: true},
	Cos:        {Name: "cos", Arity: 1, Class: Floating, Compiled: true},
	Tan:        {Name: "tan", Arity: 1, Class: Floating, Compiled: true},
	Asin:       {Name: "asin", Arity: 1, Class: Floating, Compiled: true},
	Acos:       {Name: "acos", Arity: 1, Class: Floating, Compiled: true},
	Atan:       {Name: "atan", Arity: 1, Class: Floating, Compiled: true},
	Sinh:       {Name: "sinh", Arity: 1, Class: Floating, Compiled: true},
	Cosh:       {Name: "cosh", Arity: 1, Class: Floating, Compiled: true},
	Tanh:       {Name: "tanh", Arity: 1, Class: Floating, Compiled: true},
	Sqrt:       {Name: "sqrt", Arity: 1, Class: Floating, Compiled: true},
	Rsqrt:      {Name: "rsqrt", Arity: 1, Class: Floating, Compiled: true},
	Log:        {Name: "log", Arity: 1, Class: Floating, Compiled: true},
	Log2:       {Name: "log2", Arity: 1, Class: Floating, Compiled: true},
	Log10:      {Name: "log10", Arity: 1, Class: Floating, Compiled: true},
	Log1p:      {Name: "log1p", Arity: 1, Class: Floating, Compiled: true},
	Exp:        {Name: "exp", Arity: 1, Class: Floating, Compiled: true},
	Expm1:      {Name: "expm1", Arity: 1, Class: Floating, Compiled: true},
	Erf:        {Name: "erf", Arity: 1, Class: Floating, Compiled: true},
	Erfc:       {Name: "erfc", Arity: 1, Class: Floating, Compiled: true},
	Lgamma:     {Name: "lgamma", Arity: 1, Class: Floating, Compiled: true},
	Sigmoid:    {Name: "sigmoid", Arity: 1, Class: Floating, Compiled: true},
	Reciprocal: {Name: "reciprocal", Arity: 1, Class: Floating, Compiled: true},
	Abs:        {Name: "abs", Arity: 1, Class: Numeric, Compiled: true},
	Neg:        {Name: "neg", Arity: 1, Class: Numeric, Compiled: true},
	Relu:       {Name: "relu", Arity: 1, Class: Numeric, Compiled: true},
	Floor:      {Name: "floor", Arity: 1, Class: Numeric, Compiled: true},
	Ceil:       {Name: "ceil", Arity: 1, Class: Numeric, Compiled: true},
	Trunc:      {Name: "trunc", Arity: 1, Class: Numeric, Compiled: true},
	Frac:       {Name: "frac", Arity: 1, Class: Numeric, Compiled: true},
	Round:      {Name: "round", Arity: 1, Class: Numeric, Compiled: true},

	Pow:  {Name: "pow", Arity: 2, Class: Arithmetic},
	Fmod: {Name: "fmod", Arity: 2, Class: Arithmetic},
}

var byName = func() map[string]Op {
	m := make(map[string]Op, len(infos))
	for op := Invalid + 1; op < maxOp; op++ {
		m[infos[op].Name] = op
	}
	return m
}()

// Lookup returns the operator given its name.
func Lookup(name string) (Op, bool) {
	op, ok := byName[name]
	return op, ok
}

// Info returns the description of the operator.
func (op Op) Info() Info {
	if op <= Invalid || op >= maxOp {
		return Info{Name: "invalid"}
	}
	return infos[op]
}

// String returns the name of the operator.
func (op Op) String() string {
	return op.Info().Name
}

// Arity returns the number of operands.
func (op Op) Arity() int {
	return op.Info().Arity
}

// Class returns the type promotion class of the operator.
func (op Op) Class() Class {
	return op.Info().Class
}

// Compiled returns true if the operator can be lowered into a compiled program.
func (op Op) Compiled() bool {
	return op.Info().Compiled
}

// All returns all the operators, including the ones only supported by the interpreter.
func All() []Op {
	all := make([]Op, 0, int(maxOp)-1)
	for op := Invalid + 1; op < maxOp; op++ {
		all = append(all, op)
	}
	return all
}

// Catalog returns the operators supported by the compiler with a given arity.
func Catalog(arity int) []Op {
	return slices.DeleteFunc(All(), func(op Op) bool {
		return !op.Compiled() || op.Arity() != arity
	})
}
