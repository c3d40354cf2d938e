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

// Package texprflag provides flag types for texpr tools.
package texprflag

import (
	"flag"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/gx-org/backend/shape"
	"github.com/gx-org/texpr/tensor"
)

type stringList struct {
	list *[]string
}

func (sl *stringList) String() string {
	if sl.list == nil {
		return ""
	}
	return strings.Join(*sl.list, ",")
}

func (sl *stringList) Set(values string) error {
	for _, value := range strings.Split(values, ",") {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		*sl.list = append(*sl.list, value)
	}
	return nil
}

// StringList returns a flag to pass a list of string from the command line.
func StringList(name, doc string) *[]string {
	return StringListVar(flag.CommandLine, name, doc)
}

// StringListVar defines a string list flag in a flag set.
func StringListVar(fs *flag.FlagSet, name, doc string) *[]string {
	var list []string
	sList := stringList{&list}
	fs.Var(&sList, name, doc)
	return sList.list
}

// Input is a named input declared on the command line.
type Input struct {
	Name  string
	Shape shape.Shape
}

func (in Input) String() string {
	dims := make([]string, len(in.Shape.AxisLengths))
	for i, d := range in.Shape.AxisLengths {
		dims[i] = strconv.Itoa(d)
	}
	return in.Name + "=" + tensor.TypeName(in.Shape.DType) + "[" + strings.Join(dims, " ") + "]"
}

// ParseInput parses an input declaration of the form name=dtype[d0 d1 ...].
// The axis lengths can be omitted for scalars.
func ParseInput(s string) (Input, error) {
	name, typ, ok := strings.Cut(strings.TrimSpace(s), "=")
	if !ok || name == "" {
		return Input{}, errors.Errorf("invalid input %q: want name=dtype[d0 d1 ...]", s)
	}
	typeName, dims, hasDims := strings.Cut(typ, "[")
	dt, ok := tensor.ParseTypeName(typeName)
	if !ok {
		return Input{}, errors.Errorf("invalid input %q: unknown element type %q", s, typeName)
	}
	in := Input{Name: name, Shape: shape.Shape{DType: dt, AxisLengths: []int{}}}
	if !hasDims {
		return in, nil
	}
	dims, ok = strings.CutSuffix(dims, "]")
	if !ok {
		return Input{}, errors.Errorf("invalid input %q: missing ]", s)
	}
	for _, field := range strings.Fields(dims) {
		d, err := strconv.Atoi(field)
		if err != nil || d < 0 {
			return Input{}, errors.Errorf("invalid input %q: invalid axis length %q", s, field)
		}
		in.Shape.AxisLengths = append(in.Shape.AxisLengths, d)
	}
	return in, nil
}

type inputList struct {
	list *[]Input
}

func (il *inputList) String() string {
	if il.list == nil {
		return ""
	}
	ins := make([]string, len(*il.list))
	for i, in := range *il.list {
		ins[i] = in.String()
	}
	return strings.Join(ins, ",")
}

func (il *inputList) Set(values string) error {
	var names []string
	if err := (&stringList{&names}).Set(values); err != nil {
		return err
	}
	for _, name := range names {
		in, err := ParseInput(name)
		if err != nil {
			return err
		}
		*il.list = append(*il.list, in)
	}
	return nil
}

// InputList returns a flag to declare a comma separated list of inputs.
func InputList(name, doc string) *[]Input {
	return InputListVar(flag.CommandLine, name, doc)
}

// InputListVar defines an input list flag in a flag set.
func InputListVar(fs *flag.FlagSet, name, doc string) *[]Input {
	var list []Input
	iList := inputList{&list}
	fs.Var(&iList, name, doc)
	return iList.list
}
