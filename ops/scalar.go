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

	"golang.org/x/exp/constraints"
)

// Number is a numeric Go type on which the operators are defined.
type Number interface {
	constraints.Integer | constraints.Float
}

// IsFloat returns true if T is a floating point type.
func IsFloat[T Number]() bool {
	var one T = 1
	return one/2 != 0
}

// MinOf returns a if a < b, b otherwise.
// As a consequence, a NaN as the second operand is always returned
// and a NaN as the first operand is never returned.
func MinOf[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// MaxOf returns a if a > b, b otherwise.
// NaN operands follow the same rule as MinOf.
func MaxOf[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// ClampOf restricts x to [lo, hi] by computing MaxOf(MinOf(x, hi), lo).
func ClampOf[T constraints.Ordered](x, lo, hi T) T {
	return MaxOf(MinOf(x, hi), lo)
}

// FloatRemainder returns the remainder of the floor division a/b.
// The result has the sign of b. It is NaN if b is zero or if an operand is NaN.
func FloatRemainder[T constraints.Float](a, b T) T {
	fa, fb := float64(a), float64(b)
	r := math.Mod(fa, fb)
	if r != 0 && (r < 0) != (fb < 0) {
		r += fb
	}
	return T(r)
}

// IntRemainder returns the remainder of the floor division a/b.
// The result has the sign of b. It is zero if b is zero.
func IntRemainder[T constraints.Integer](a, b T) T {
	if b == 0 {
		return 0
	}
	r := a % b
	if r != 0 && (r < 0) != (b < 0) {
		r += b
	}
	return r
}

// IntFmod returns the remainder of the truncated division a/b, or zero if b is zero.
func IntFmod[T constraints.Integer](a, b T) T {
	if b == 0 {
		return 0
	}
	return a % b
}

// SigmoidOf computes 1/(1+exp(-x)).
func SigmoidOf(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// RsqrtOf computes 1/sqrt(x).
func RsqrtOf(x float64) float64 {
	return 1 / math.Sqrt(x)
}

// ReciprocalOf computes 1/x.
func ReciprocalOf(x float64) float64 {
	return 1 / x
}

// LgammaOf computes the natural logarithm of the absolute value of Gamma(x).
func LgammaOf(x float64) float64 {
	lg, _ := math.Lgamma(x)
	return lg
}

// FracOf returns the fractional part of x, with the sign of x.
func FracOf(x float64) float64 {
	return x - math.Trunc(x)
}

// ReluOf returns 0 when x is negative, x otherwise.
func ReluOf[T Number](x T) T {
	if x < 0 {
		return 0
	}
	return x
}

// AbsOf returns the absolute value of x.
func AbsOf[T Number](x T) T {
	if IsFloat[T]() {
		return T(math.Abs(float64(x)))
	}
	if x < 0 {
		return -x
	}
	return x
}
