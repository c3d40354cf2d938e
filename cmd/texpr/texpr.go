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

// Command texpr compiles tensor expressions written with a Go syntax.
//
// Inputs are declared with the -input flag and filled with a deterministic
// pattern. The command prints the outputs computed by the compiled kernel
// and compares them with the outputs of the interpreter. For example:
//
//	texpr -input "x=float32[2 3],y=float32[3]" -expr "sigmoid(x) * y + 2" -print_ir
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/pkg/errors"
	"github.com/gx-org/texpr"
	texprfmt "github.com/gx-org/texpr/base/fmt"
	"github.com/gx-org/texpr/interp"
	"github.com/gx-org/texpr/tensor"
	"github.com/gx-org/texpr/tools/texprflag"
)

var (
	expr      = flag.String("expr", "", "expressions to compile, separated by semicolons")
	inputs    = texprflag.InputList("input", "comma separated list of inputs declared as name=dtype[d0 d1 ...]")
	outputs   = texprflag.StringList("outputs", "comma separated list of output names (out0, out1, ... by default)")
	blockSize = flag.Int("block_size", 0, "number of elements processed at once by the innermost loops (0 for the default)")
	printIR   = flag.Bool("print_ir", false, "print the loop program of the kernel")
	compare   = flag.Bool("compare", true, "compare the compiled outputs with the interpreter")
	verbose   = flag.Bool("v", false, "log the kernel compilation")
)

// pattern returns a deterministic tensor for an input.
func pattern(in texprflag.Input) (*tensor.Tensor, error) {
	size := tensor.Size(in.Shape.AxisLengths)
	vals := make([]float64, size)
	for i := range vals {
		vals[i] = float64((i*7)%13-6) / 2
	}
	var x *tensor.Tensor
	if len(in.Shape.AxisLengths) == 0 {
		x = tensor.Scalar(vals[0])
	} else {
		x = tensor.FromSlice(vals, in.Shape.AxisLengths...)
	}
	return tensor.Convert(x, in.Shape.DType)
}

func maxAbsDiff(want, got *tensor.Tensor) float64 {
	diff := 0.0
	gotVals := got.Float64s()
	for i, w := range want.Float64s() {
		g := gotVals[i]
		if w == g || (math.IsNaN(w) && math.IsNaN(g)) {
			continue
		}
		diff = math.Max(diff, math.Abs(w-g))
	}
	return diff
}

// outputNames returns the names of n outputs given the names set on the command line.
func outputNames(names []string, n int) ([]string, error) {
	if len(names) == 0 {
		names = make([]string, n)
		for i := range names {
			names[i] = fmt.Sprintf("out%d", i)
		}
		return names, nil
	}
	if len(names) != n {
		return nil, errors.Errorf("got %d output names but the expressions define %d outputs", len(names), n)
	}
	return names, nil
}

func run() error {
	names := make([]string, len(*inputs))
	args := make([]*tensor.Tensor, len(*inputs))
	for i, in := range *inputs {
		names[i] = in.Name
		var err error
		if args[i], err = pattern(in); err != nil {
			return err
		}
	}
	tr, err := parseTrace(*expr, names)
	if err != nil {
		return err
	}
	outNames, err := outputNames(*outputs, len(tr.Outputs))
	if err != nil {
		return err
	}
	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	kernel, err := texpr.Compile(tr, texpr.WithLogger(logger), texpr.WithBlockSize(*blockSize))
	if err != nil {
		return err
	}
	outs, err := kernel.Call(args...)
	if err != nil {
		return err
	}
	if *printIR {
		art, err := kernel.Artifact(texpr.SignatureOf(len(tr.Outputs), args...))
		if err != nil {
			fmt.Printf("kernel interpreted: %v\n", err)
		} else {
			fmt.Print(texprfmt.Number(art.Program().String()))
		}
	}
	for i, in := range *inputs {
		fmt.Printf("%s = %s\n", in.Name, args[i])
	}
	for i, out := range outs {
		fmt.Printf("%s = %s\n", outNames[i], out)
	}
	if !*compare {
		return nil
	}
	want, err := interp.New().Run(tr, args)
	if err != nil {
		return err
	}
	for i := range want {
		fmt.Printf("%s: max absolute difference with the interpreter: %g\n", outNames[i], maxAbsDiff(want[i], outs[i]))
	}
	return nil
}

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}
