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

package ops

import (
	"math"

	"github.com/pkg/errors"
)

type (
	// UnaryFunc computes dst[i] = op(x[i]).
	UnaryFunc[T Number] func(dst, x []T)

	// BinaryFunc computes dst[i] = op(x[i], y[i]).
	BinaryFunc[T Number] func(dst, x, y []T)

	// TernaryFunc computes dst[i] = op(x[i], y[i], z[i]).
	TernaryFunc[T Number] func(dst, x, y, z []T)

	// SelectFunc computes dst[i] = cond[i] != 0 ? x[i] : y[i].
	SelectFunc[C, T Number] func(dst []T, cond []C, x, y []T)
)

func kernelize[T Number](f func(float64) float64) UnaryFunc[T] {
	return func(dst, x []T) {
		for i, xi := range x {
			dst[i] = T(f(float64(xi)))
		}
	}
}

func mapUnary[T Number](f func(T) T) UnaryFunc[T] {
	return func(dst, x []T) {
		for i, xi := range x {
			dst[i] = f(xi)
		}
	}
}

func mapBinary[T Number](f func(T, T) T) BinaryFunc[T] {
	return func(dst, x, y []T) {
		for i, xi := range x {
			dst[i] = f(xi, y[i])
		}
	}
}

func compare[T Number](f func(T, T) bool) BinaryFunc[T] {
	return func(dst, x, y []T) {
		for i, xi := range x {
			if f(xi, y[i]) {
				dst[i] = 1
			} else {
				dst[i] = 0
			}
		}
	}
}

var floatFuncs = map[Op]func(float64) float64{
	Sin:        math.Sin,
	Cos:        math.Cos,
	Tan:        math.Tan,
	Asin:       math.Asin,
	Acos:       math.Acos,
	Atan:       math.Atan,
	Sinh:       math.Sinh,
	Cosh:       math.Cosh,
	Tanh:       math.Tanh,
	Sqrt:       math.Sqrt,
	Rsqrt:      RsqrtOf,
	Log:        math.Log,
	Log2:       math.Log2,
	Log10:      math.Log10,
	Log1p:      math.Log1p,
	Exp:        math.Exp,
	Expm1:      math.Expm1,
	Erf:        math.Erf,
	Erfc:       math.Erfc,
	Lgamma:     LgammaOf,
	Sigmoid:    SigmoidOf,
	Reciprocal: ReciprocalOf,
	Floor:      math.Floor,
	Ceil:       math.Ceil,
	Trunc:      math.Trunc,
	Frac:       FracOf,
	Round:      math.RoundToEven,
}

func identity[T Number](dst, x []T) {
	copy(dst, x)
}

// UnaryKernel returns the vector kernel of a unary operator.
func UnaryKernel[T Number](op Op) (UnaryFunc[T], error) {
	if op.Arity() != 1 {
		return nil, errors.Errorf("operator %s is not a unary operator", op)
	}
	switch op {
	case Abs:
		return mapUnary(AbsOf[T]), nil
	case Neg:
		return func(dst, x []T) {
			for i, xi := range x {
				dst[i] = -xi
			}
		}, nil
	case Relu:
		return mapUnary(ReluOf[T]), nil
	}
	if IsFloat[T]() {
		return kernelize[T](floatFuncs[op]), nil
	}
	switch op {
	case Floor, Ceil, Trunc, Round:
		return identity[T], nil
	case Frac:
		return func(dst, x []T) {
			clear(dst[:len(x)])
		}, nil
	}
	return nil, errors.Errorf("operator %s requires floating point elements", op)
}

// BinaryKernel returns the vector kernel of a binary operator.
// Comparison operators write 1 where the comparison holds and 0 otherwise.
func BinaryKernel[T Number](op Op) (BinaryFunc[T], error) {
	if op.Arity() != 2 {
		return nil, errors.Errorf("operator %s is not a binary operator", op)
	}
	isFloat := IsFloat[T]()
	switch op {
	case Add:
		return func(dst, x, y []T) {
			for i, xi := range x {
				dst[i] = xi + y[i]
			}
		}, nil
	case Sub:
		return func(dst, x, y []T) {
			for i, xi := range x {
				dst[i] = xi - y[i]
			}
		}, nil
	case Mul:
		return func(dst, x, y []T) {
			for i, xi := range x {
				dst[i] = xi * y[i]
			}
		}, nil
	case Div:
		if !isFloat {
			return nil, errors.Errorf("operator %s requires floating point elements", op)
		}
		return func(dst, x, y []T) {
			for i, xi := range x {
				dst[i] = xi / y[i]
			}
		}, nil
	case Remainder:
		if isFloat {
			return kernelize2[T](FloatRemainder[float64]), nil
		}
		return intKernel[T](IntRemainder[int64], IntRemainder[uint64]), nil
	case Min:
		return mapBinary(MinOf[T]), nil
	case Max:
		return mapBinary(MaxOf[T]), nil
	case Eq:
		return compare(func(a, b T) bool { return a == b }), nil
	case Ne:
		return compare(func(a, b T) bool { return a != b }), nil
	case Ge:
		return compare(func(a, b T) bool { return a >= b }), nil
	case Gt:
		return compare(func(a, b T) bool { return a > b }), nil
	case Le:
		return compare(func(a, b T) bool { return a <= b }), nil
	case Lt:
		return compare(func(a, b T) bool { return a < b }), nil
	case Pow:
		return kernelize2[T](math.Pow), nil
	case Fmod:
		if isFloat {
			return kernelize2[T](math.Mod), nil
		}
		return intKernel[T](IntFmod[int64], IntFmod[uint64]), nil
	}
	return nil, errors.Errorf("binary operator %s not supported", op)
}

func kernelize2[T Number](f func(float64, float64) float64) BinaryFunc[T] {
	return func(dst, x, y []T) {
		for i, xi := range x {
			dst[i] = T(f(float64(xi), float64(y[i])))
		}
	}
}

// intKernel evaluates an integer operator in 64 bits.
// Signed and unsigned elements are extended with their own signedness so the
// result is exact once truncated back to T.
func intKernel[T Number](signed func(a, b int64) int64, unsigned func(a, b uint64) uint64) BinaryFunc[T] {
	var minusOne T
	minusOne--
	if minusOne < 0 {
		return func(dst, x, y []T) {
			for i, xi := range x {
				dst[i] = T(signed(int64(xi), int64(y[i])))
			}
		}
	}
	return func(dst, x, y []T) {
		for i, xi := range x {
			dst[i] = T(unsigned(uint64(xi), uint64(y[i])))
		}
	}
}

// TernaryKernel returns the vector kernel of a ternary operator taking all
// its operands in the same type.
func TernaryKernel[T Number](op Op) (TernaryFunc[T], error) {
	switch op {
	case Clamp:
		return func(dst, x, lo, hi []T) {
			for i, xi := range x {
				dst[i] = ClampOf(xi, lo[i], hi[i])
			}
		}, nil
	}
	return nil, errors.Errorf("ternary operator %s not supported", op)
}

// SelectKernel returns the kernel choosing between x and y given a condition.
// A condition is true when it is different from zero. NaN is true.
func SelectKernel[C, T Number]() SelectFunc[C, T] {
	return func(dst []T, cond []C, x, y []T) {
		for i, c := range cond {
			if c != 0 {
				dst[i] = x[i]
			} else {
				dst[i] = y[i]
			}
		}
	}
}
