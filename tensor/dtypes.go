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

package tensor

import (
	"github.com/pkg/errors"
	"github.com/gx-org/backend/dtype"
)

// Element is a Go type that can be used directly as the element of a tensor.
type Element interface {
	float32 | float64 | int32 | int64 | uint32 | uint64
}

// DTypeOf returns the data type of a Go element type.
func DTypeOf[T Element]() dtype.DataType {
	var zero T
	switch any(zero).(type) {
	case float32:
		return dtype.Float32
	case float64:
		return dtype.Float64
	case int32:
		return dtype.Int32
	case int64:
		return dtype.Int64
	case uint32:
		return dtype.Uint32
	case uint64:
		return dtype.Uint64
	}
	return dtype.Invalid
}

// TypeName returns the Go name of a data type.
func TypeName(dt dtype.DataType) string {
	switch dt {
	case dtype.Float32:
		return "float32"
	case dtype.Float64:
		return "float64"
	case dtype.Int32:
		return "int32"
	case dtype.Int64:
		return "int64"
	case dtype.Uint32:
		return "uint32"
	case dtype.Uint64:
		return "uint64"
	case dtype.Bfloat16:
		return "bfloat16"
	case dtype.Bool:
		return "bool"
	}
	return "invalid"
}

// ParseTypeName returns the data type given its Go name.
func ParseTypeName(name string) (dtype.DataType, bool) {
	for _, dt := range []dtype.DataType{
		dtype.Float32, dtype.Float64,
		dtype.Int32, dtype.Int64,
		dtype.Uint32, dtype.Uint64,
		dtype.Bfloat16,
	} {
		if TypeName(dt) == name {
			return dt, true
		}
	}
	return dtype.Invalid, false
}

// IsNative returns true if the elements of the data type are a Go Element.
func IsNative(dt dtype.DataType) bool {
	switch dt {
	case dtype.Float32, dtype.Float64, dtype.Int32, dtype.Int64, dtype.Uint32, dtype.Uint64:
		return true
	}
	return false
}

// IsSupported returns true if tensors can store elements of the data type.
func IsSupported(dt dtype.DataType) bool {
	return IsNative(dt) || dt == dtype.Bfloat16
}

// IsFloat returns true for floating point data types.
func IsFloat(dt dtype.DataType) bool {
	return dt == dtype.Float32 || dt == dtype.Float64 || dt == dtype.Bfloat16
}

// IsInteger returns true for integer data types.
func IsInteger(dt dtype.DataType) bool {
	return IsSigned(dt) || IsUnsigned(dt)
}

// IsSigned returns true for signed integer data types.
func IsSigned(dt dtype.DataType) bool {
	return dt == dtype.Int32 || dt == dtype.Int64
}

// IsUnsigned returns true for unsigned integer data types.
func IsUnsigned(dt dtype.DataType) bool {
	return dt == dtype.Uint32 || dt == dtype.Uint64
}

// Bits returns the number of bits used to store an element.
func Bits(dt dtype.DataType) int {
	switch dt {
	case dtype.Bfloat16:
		return 16
	case dtype.Float32, dtype.Int32, dtype.Uint32:
		return 32
	case dtype.Float64, dtype.Int64, dtype.Uint64:
		return 64
	}
	return 0
}

func gather[S, T Element](dst []T, src []S, t *Tensor) {
	t.walk(func(i, off int) {
		dst[i] = T(src[off])
	})
}

// ConvertInto writes the elements of a tensor in row-major order into dst,
// converting them to T.
func ConvertInto[T Element](dst []T, t *Tensor) {
	switch src := t.data.(type) {
	case []float32:
		gather(dst, src, t)
	case []float64:
		gather(dst, src, t)
	case []int32:
		gather(dst, src, t)
	case []int64:
		gather(dst, src, t)
	case []uint32:
		gather(dst, src, t)
	case []uint64:
		gather(dst, src, t)
	case []dtype.Bfloat16T:
		t.walk(func(i, off int) {
			val := src[off]
			dst[i] = T(val.Float32())
		})
	}
}

func convertTo[T Element](t *Tensor) *Tensor {
	vals := make([]T, t.Size())
	ConvertInto(vals, t)
	return FromSlice(vals, t.Dims()...)
}

// Convert returns a contiguous copy of a tensor with its elements converted to a data type.
func Convert(t *Tensor, dt dtype.DataType) (*Tensor, error) {
	switch dt {
	case dtype.Float32:
		return convertTo[float32](t), nil
	case dtype.Float64:
		return convertTo[float64](t), nil
	case dtype.Int32:
		return convertTo[int32](t), nil
	case dtype.Int64:
		return convertTo[int64](t), nil
	case dtype.Uint32:
		return convertTo[uint32](t), nil
	case dtype.Uint64:
		return convertTo[uint64](t), nil
	case dtype.Bfloat16:
		if src, ok := t.data.([]dtype.Bfloat16T); ok {
			vals := make([]dtype.Bfloat16T, t.Size())
			t.walk(func(i, off int) {
				vals[i] = src[off]
			})
			return FromBfloat16(vals, t.Dims()...), nil
		}
		floats := make([]float64, t.Size())
		ConvertInto(floats, t)
		vals := make([]dtype.Bfloat16T, len(floats))
		for i, f := range floats {
			vals[i] = dtype.BFloat16FromFloat64(f)
		}
		return FromBfloat16(vals, t.Dims()...), nil
	default:
		return nil, errors.Errorf("cannot convert a tensor to %s: not supported", TypeName(dt))
	}
}
