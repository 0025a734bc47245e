// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rules

import (
	"bytes"
	"errors"
	"testing"

	"github.com/yeetrun/argbridge/pkg/argparse"
)

func newParser(t *testing.T) (*argparse.Parser, *bytes.Buffer) {
	t.Helper()
	t.Setenv("COLUMNS", "80")
	p, err := argparse.New("lv")
	if err != nil {
		t.Fatal(err)
	}
	var stderr bytes.Buffer
	p.SetOutput(&bytes.Buffer{}, &stderr)
	if _, err := p.AddArgument([]string{"--count"}, argparse.Type(argparse.TypeInt), argparse.Default(1)); err != nil {
		t.Fatal(err)
	}
	if _, err := p.AddArgument([]string{"--dry-run"}, argparse.Kind(argparse.ActionStoreTrue)); err != nil {
		t.Fatal(err)
	}
	if _, err := p.AddArgument([]string{"--tag"}, argparse.Kind(argparse.ActionAppend)); err != nil {
		t.Fatal(err)
	}
	return p, &stderr
}

func TestCheck(t *testing.T) {
	rules := []Rule{
		{Expr: "count > 0", Message: "count must be positive"},
		{Expr: "!dry_run || tag == null", Message: "--tag cannot be combined with --dry-run"},
		{Expr: `!has(ns.tag) || ns.tag == null || size(ns.tag) < 3`},
	}
	tests := []struct {
		name string
		argv []string
		want string
	}{
		{"defaults", nil, ""},
		{"negative count", []string{"--count", "-3"}, "usage: lv [-h] [--count COUNT] [--dry-run] [--tag TAG]\nlv: error: count must be positive\n"},
		{"dry run with tag", []string{"--dry-run", "--tag", "a"}, "usage: lv [-h] [--count COUNT] [--dry-run] [--tag TAG]\nlv: error: --tag cannot be combined with --dry-run\n"},
		{"too many tags", []string{"--tag", "a", "--tag", "b", "--tag", "c"}, "usage: lv [-h] [--count COUNT] [--dry-run] [--tag TAG]\nlv: error: rule \"!has(ns.tag) || ns.tag == null || size(ns.tag) < 3\" does not hold\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, stderr := newParser(t)
			if err := Attach(p, rules); err != nil {
				t.Fatalf("Attach() error = %v", err)
			}
			_, err := p.Parse(tt.argv)
			if tt.want == "" {
				if err != nil {
					t.Fatalf("Parse() error = %v", err)
				}
				return
			}
			var exit *argparse.ExitError
			if !errors.As(err, &exit) || exit.Code != argparse.ExitUsage {
				t.Fatalf("Parse() error = %v, want usage exit", err)
			}
			if got := stderr.String(); got != tt.want {
				t.Errorf("stderr = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCompileErrors(t *testing.T) {
	p, _ := newParser(t)
	for _, r := range []Rule{
		{Expr: ""},
		{Expr: "count >"},
		{Expr: "unknown_name > 1"},
		{Expr: `"text"`},
	} {
		if _, err := Compile(p, []Rule{r}); err == nil {
			t.Errorf("Compile(%q) error = nil", r.Expr)
		}
	}
}

func TestAttachWithoutRules(t *testing.T) {
	p, _ := newParser(t)
	if err := Attach(p, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Parse([]string{"--count", "-1"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
}
