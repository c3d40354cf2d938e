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

package texpr

import (
	"fmt"

	"go.uber.org/multierr"
)

// CompilationError is returned when a kernel cannot be compiled for a signature.
// Calls recover from it by interpreting the trace unless the fallback has been disabled.
type CompilationError struct {
	// Key of the signature for which the compilation failed.
	Key string
	Err error
}

func (err *CompilationError) Error() string {
	return fmt.Sprintf("cannot compile kernel for signature %s: %v", err.Key, err.Err)
}

// Unwrap returns the cause of the compilation failure.
func (err *CompilationError) Unwrap() error {
	return err.Err
}

// SignatureMismatchError is returned when the tensors passed to an artifact
// do not match the signature the artifact has been compiled for.
type SignatureMismatchError struct {
	Key string
	// Err combines all the mismatches.
	Err error
}

func (err *SignatureMismatchError) Error() string {
	return fmt.Sprintf("tensors do not match signature %s: %v", err.Key, err.Err)
}

// Unwrap returns the mismatches.
func (err *SignatureMismatchError) Unwrap() error {
	return err.Err
}

// Mismatches returns every mismatch individually.
func (err *SignatureMismatchError) Mismatches() []error {
	return multierr.Errors(err.Err)
}
