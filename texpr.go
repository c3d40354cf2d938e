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

// Package texpr compiles traced tensor expressions.
//
// A kernel is created from a trace. The first call with a given signature,
// that is the element types, axis lengths, and strides of the inputs, builds
// an expression graph, lowers it into loop nests, and compiles the nests
// into an artifact. Later calls with the same signature reuse the artifact.
// Traces that cannot be compiled are evaluated by an interpreter.
package texpr

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/gx-org/backend/shape"
	"github.com/gx-org/texpr/codegen"
	"github.com/gx-org/texpr/graph"
	"github.com/gx-org/texpr/loopir"
	"github.com/gx-org/texpr/tensor"
	"github.com/gx-org/texpr/trace"
	"golang.org/x/sync/singleflight"
)

type entry struct {
	artifact *Artifact
	err      error
}

// Kernel is a compiled trace.
// A kernel can be called concurrently from multiple goroutines.
type Kernel struct {
	tr  *trace.Trace
	cfg config
	// unsupported is set if the trace uses operations the compiler does not support.
	unsupported error

	mu      sync.RWMutex
	entries map[string]*entry
	group   singleflight.Group

	compilations atomic.Int64
	failures     atomic.Int64
	hits         atomic.Int64
	fallbacks    atomic.Int64
}

// Compile returns a kernel for a trace.
// Artifacts are compiled lazily when the kernel is called.
func Compile(tr *trace.Trace, options ...Option) (*Kernel, error) {
	if tr == nil {
		return nil, errors.Errorf("cannot compile a nil trace")
	}
	if len(tr.Outputs) == 0 {
		return nil, errors.Errorf("trace has no output")
	}
	k := &Kernel{
		tr:      tr,
		cfg:     defaultConfig(),
		entries: make(map[string]*entry),
	}
	for _, opt := range options {
		opt(&k.cfg)
	}
	k.cfg.logger.Debug("kernel created",
		"inputs", tr.NumInputs,
		"outputs", len(tr.Outputs),
		"ops", tr.Names())
	if err := graph.CheckSupported(tr); err != nil {
		k.unsupported = err
		k.cfg.logger.Warn("trace cannot be compiled", "error", err)
	}
	return k, nil
}

// Trace returns the trace of the kernel.
func (k *Kernel) Trace() *trace.Trace {
	return k.tr
}

// Stats are counters of a kernel.
type Stats struct {
	// Compilations is the number of compilations, successful or not.
	Compilations int64
	// Failures is the number of compilations that failed.
	Failures int64
	// CacheHits is the number of calls served by a cached artifact or failure.
	CacheHits int64
	// Fallbacks is the number of calls evaluated by the interpreter.
	Fallbacks int64
	// Entries is the number of signatures in the cache.
	Entries int
}

// Stats returns the counters of the kernel.
func (k *Kernel) Stats() Stats {
	k.mu.RLock()
	entries := len(k.entries)
	k.mu.RUnlock()
	return Stats{
		Compilations: k.compilations.Load(),
		Failures:     k.failures.Load(),
		CacheHits:    k.hits.Load(),
		Fallbacks:    k.fallbacks.Load(),
		Entries:      entries,
	}
}

func (k *Kernel) lookup(key string) (*entry, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	e, ok := k.entries[key]
	return e, ok
}

// Artifact returns the artifact compiled for a signature.
// The artifact is compiled once per signature, even when Artifact is called
// concurrently. A compilation failure is returned as a CompilationError and is
// remembered for the signature.
func (k *Kernel) Artifact(sig Signature) (*Artifact, error) {
	key := sig.Key()
	if e, ok := k.lookup(key); ok {
		k.hits.Add(1)
		k.cfg.logger.Debug("kernel cache hit", "signature", key)
		return e.artifact, e.err
	}
	val, _, _ := k.group.Do(key, func() (any, error) {
		if e, ok := k.lookup(key); ok {
			return e, nil
		}
		e := &entry{}
		e.artifact, e.err = k.compile(sig)
		k.mu.Lock()
		k.entries[key] = e
		k.mu.Unlock()
		return e, nil
	})
	e := val.(*entry)
	return e.artifact, e.err
}

func (k *Kernel) compile(sig Signature) (*Artifact, error) {
	key := sig.Key()
	k.compilations.Add(1)
	start := time.Now()
	exe, err := k.buildExecutable(sig)
	if err != nil {
		k.failures.Add(1)
		k.cfg.logger.Warn("kernel compilation failed", "signature", key, "error", err)
		return nil, &CompilationError{Key: key, Err: err}
	}
	k.cfg.logger.Info("kernel compiled",
		"signature", key,
		"nests", len(exe.Program().Nests),
		"duration", time.Since(start))
	return newArtifact(sig, exe), nil
}

func (k *Kernel) buildExecutable(sig Signature) (*codegen.Executable, error) {
	if k.unsupported != nil {
		return nil, k.unsupported
	}
	if sig.NumOutputs != len(k.tr.Outputs) {
		return nil, errors.Errorf("signature has %d outputs but the trace has %d", sig.NumOutputs, len(k.tr.Outputs))
	}
	shapes := make([]shape.Shape, len(sig.Inputs))
	strides := make([][]int, len(sig.Inputs))
	for i, in := range sig.Inputs {
		shapes[i] = shape.Shape{DType: in.DType, AxisLengths: in.Dims}
		strides[i] = in.Strides
	}
	g, err := graph.FromTrace(k.tr, shapes)
	if err != nil {
		return nil, err
	}
	prog, err := loopir.Lower(g, strides)
	if err != nil {
		return nil, err
	}
	return codegen.Compile(prog, k.cfg.blockSize)
}

// Call evaluates the kernel and returns newly allocated outputs.
func (k *Kernel) Call(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	return k.CallInto(nil, inputs...)
}

// CallInto evaluates the kernel and writes the results into outputs.
// Outputs are allocated if outputs is nil.
func (k *Kernel) CallInto(outputs []*tensor.Tensor, inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	if len(inputs) != k.tr.NumInputs {
		return nil, errors.Errorf("got %d inputs but the kernel has %d", len(inputs), k.tr.NumInputs)
	}
	for i, in := range inputs {
		if in == nil {
			return nil, errors.Errorf("input %d: nil tensor", i)
		}
	}
	sig := SignatureOf(len(k.tr.Outputs), inputs...)
	art, err := k.Artifact(sig)
	if err == nil {
		return art.Execute(inputs, outputs)
	}
	var compErr *CompilationError
	if !k.cfg.fallback || !errors.As(err, &compErr) {
		return nil, err
	}
	k.fallbacks.Add(1)
	k.cfg.logger.Debug("interpreting kernel", "signature", compErr.Key)
	results, ierr := k.cfg.interpreter.Run(k.tr, inputs)
	if ierr != nil {
		return nil, errors.WithMessagef(ierr, "interpreting after compilation failure (%v)", compErr.Err)
	}
	if outputs == nil {
		return results, nil
	}
	return copyOutputs(outputs, results)
}

func copyOutputs(outputs, results []*tensor.Tensor) ([]*tensor.Tensor, error) {
	if len(outputs) != len(results) {
		return nil, errors.Errorf("got %d outputs but want %d", len(outputs), len(results))
	}
	for i, out := range outputs {
		if out == nil {
			return nil, errors.Errorf("output %d: nil tensor", i)
		}
		if err := out.CopyFrom(results[i]); err != nil {
			return nil, errors.WithMessagef(err, "output %d", i)
		}
	}
	return outputs, nil
}
