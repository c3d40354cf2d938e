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
	"log/slog"

	"github.com/gx-org/texpr/codegen"
	"github.com/gx-org/texpr/interp"
	"github.com/gx-org/texpr/tensor"
	"github.com/gx-org/texpr/trace"
)

// Interpreter evaluates a trace without compiling it.
type Interpreter interface {
	Run(tr *trace.Trace, inputs []*tensor.Tensor) ([]*tensor.Tensor, error)
}

type config struct {
	logger      *slog.Logger
	interpreter Interpreter
	fallback    bool
	blockSize   int
}

func defaultConfig() config {
	return config{
		logger:      slog.New(slog.DiscardHandler),
		interpreter: interp.New(),
		fallback:    true,
		blockSize:   codegen.DefaultBlockSize,
	}
}

// Option configures a kernel.
type Option func(*config)

// WithLogger sets the logger of a kernel.
// Logs are discarded by default.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}

// WithInterpreter replaces the interpreter used when a kernel cannot be compiled.
func WithInterpreter(it Interpreter) Option {
	return func(cfg *config) {
		cfg.interpreter = it
	}
}

// WithFallback enables or disables interpreting traces that cannot be compiled.
// When disabled, calls return the CompilationError.
func WithFallback(enabled bool) Option {
	return func(cfg *config) {
		cfg.fallback = enabled
	}
}

// WithBlockSize sets the number of elements processed at once by the innermost loops.
func WithBlockSize(n int) Option {
	return func(cfg *config) {
		cfg.blockSize = n
	}
}
