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
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseTrace(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{
			src: "sigmoid(x) * y + 2; cat(0, chunk(x, 2, 0)[1], -y)",
			want: `inputs(%0, %1)
%2 = sigmoid(%0)
%3 = mul(%2, %1)
%4 = constant(2)
%5 = add(%3, %4)
%6, %7 = chunk(%0, chunks=2, dim=0)
%8 = neg(%1)
%9 = cat(%7, %8, dim=0)
return %5, %9
`,
		},
		{
			src: "clamp(x % -1.5, y, 0.5) >= (x)",
			want: `inputs(%0, %1)
%2 = constant(-1.5)
%3 = remainder(%0, %2)
%4 = constant(0.5)
%5 = clamp(%3, %1, %4)
%6 = ge(%5, %0)
return %6
`,
		},
	}
	for _, test := range tests {
		tr, err := parseTrace(test.src, []string{"x", "y"})
		if err != nil {
			t.Errorf("%q: %v", test.src, err)
			continue
		}
		if diff := cmp.Diff(test.want, tr.String()); diff != "" {
			t.Errorf("%q: trace mismatch (-want +got):\n%s", test.src, diff)
		}
	}
}

func TestParseTraceErrors(t *testing.T) {
	for _, src := range []string{
		"",
		"x +",
		"z",
		"x << 2",
		"chunk(x, 2, 0)",
		"chunk(x, 2, 0)[2]",
		"cat(y, x)",
		"x[0]",
		"!x",
	} {
		if _, err := parseTrace(src, []string{"x", "y"}); err == nil {
			t.Errorf("%q: expected an error", src)
		}
	}
	if _, err := parseTrace("x", []string{"x", "x"}); err == nil {
		t.Errorf("expected an error for duplicated inputs")
	}
}

func TestOutputNames(t *testing.T) {
	got, err := outputNames(nil, 2)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"out0", "out1"}, got); diff != "" {
		t.Errorf("default names mismatch (-want +got):\n%s", diff)
	}
	got, err = outputNames([]string{"sum", "diff"}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"sum", "diff"}, got); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
	if _, err := outputNames([]string{"sum"}, 2); err == nil {
		t.Errorf("expected an error for a missing output name")
	}
}
