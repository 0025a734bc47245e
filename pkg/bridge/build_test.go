// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bridge

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/yeetrun/argbridge/pkg/argparse"
)

func TestEmptyFieldsAreNotApplied(t *testing.T) {
	t.Setenv("COLUMNS", "80")
	bare, err := argparse.New("tool")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := bare.AddArgument([]string{"--level"}); err != nil {
		t.Fatal(err)
	}

	p, err := CreateParser(ParserConfig{Prog: "tool", Usage: "", Description: "", Epilog: "", PrefixChars: ""})
	if err != nil {
		t.Fatal(err)
	}
	_, err = AddArgument(p, []string{"--level"}, ArgumentConfig{
		Help:    "",
		Metavar: "",
		Choices: []any{},
		Default: "",
		Const:   nil,
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(bare.FormatHelp(), p.FormatHelp()); diff != "" {
		t.Errorf("help differs from an unconfigured parser (-want +got):\n%s", diff)
	}
	a, ok := p.Lookup("level")
	if !ok {
		t.Fatal("Lookup(level) not found")
	}
	if a.Default != nil || a.Choices != nil {
		t.Errorf("level = default %v choices %v, want both unset", a.Default, a.Choices)
	}
}

func TestBooleanFieldsApplyWhenFalse(t *testing.T) {
	t.Setenv("COLUMNS", "80")
	p, err := CreateParser(ParserConfig{Prog: "tool", AddHelp: Bool(false), AllowAbbrev: Bool(false)})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := p.FormatUsage(), "usage: tool\n"; got != want {
		t.Errorf("FormatUsage() = %q, want %q", got, want)
	}
	if _, err := AddArgument(p, []string{"--verbose"}, ArgumentConfig{Action: "store_true"}); err != nil {
		t.Fatal(err)
	}
	got, err := Invoke(p, []string{"--verb"})
	if err != nil {
		t.Fatal(err)
	}
	if want := "usage: tool [--verbose]\ntool: error: unrecognized arguments: --verb\n"; got.Stderr != want {
		t.Errorf("abbreviated flag stderr = %q, want %q", got.Stderr, want)
	}
}

func TestConstructionErrors(t *testing.T) {
	newParser := func(t *testing.T) *argparse.Parser {
		p, err := CreateParser(ParserConfig{Prog: "tool"})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := AddArgument(p, []string{"-n", "--name"}, ArgumentConfig{}); err != nil {
			t.Fatal(err)
		}
		return p
	}
	tests := []struct {
		name  string
		build func(t *testing.T) error
	}{
		{"missing prog", func(t *testing.T) error {
			_, err := CreateParser(ParserConfig{})
			return err
		}},
		{"bad conflict handler", func(t *testing.T) error {
			_, err := CreateParser(ParserConfig{Prog: "tool", ConflictHandler: "ignore"})
			return err
		}},
		{"bad prefix chars", func(t *testing.T) error {
			_, err := CreateParser(ParserConfig{Prog: "tool", PrefixChars: "é"})
			return err
		}},
		{"no names", func(t *testing.T) error {
			_, err := AddArgument(newParser(t), nil, ArgumentConfig{})
			return err
		}},
		{"positional mixed with flag", func(t *testing.T) error {
			_, err := AddArgument(newParser(t), []string{"file", "--file"}, ArgumentConfig{})
			return err
		}},
		{"two positional names", func(t *testing.T) error {
			_, err := AddArgument(newParser(t), []string{"src", "dst"}, ArgumentConfig{})
			return err
		}},
		{"dest collision", func(t *testing.T) error {
			_, err := AddArgument(newParser(t), []string{"--other"}, ArgumentConfig{Dest: "name"})
			return err
		}},
		{"positional dest collision", func(t *testing.T) error {
			_, err := AddArgument(newParser(t), []string{"name"}, ArgumentConfig{})
			return err
		}},
		{"conflicting option string", func(t *testing.T) error {
			_, err := AddArgument(newParser(t), []string{"-n"}, ArgumentConfig{Dest: "number"})
			return err
		}},
		{"unknown action", func(t *testing.T) error {
			_, err := AddArgument(newParser(t), []string{"--x"}, ArgumentConfig{Action: "frobnicate"})
			return err
		}},
		{"custom without function", func(t *testing.T) error {
			_, err := AddArgument(newParser(t), []string{"--x"}, ArgumentConfig{Action: "custom"})
			return err
		}},
		{"invalid typed choice", func(t *testing.T) error {
			_, err := AddArgument(newParser(t), []string{"--x"}, ArgumentConfig{Type: "int", Choices: []any{"1", "two"}})
			return err
		}},
		{"subcommand dest collision", func(t *testing.T) error {
			_, _, err := AddSubcommands(newParser(t), SubcommandsConfig{Dest: "name"})
			return err
		}},
		{"second subcommand group", func(t *testing.T) error {
			p := newParser(t)
			if _, _, err := AddSubcommands(p, SubcommandsConfig{Dest: "cmd"}); err != nil {
				t.Fatal(err)
			}
			_, _, err := AddSubcommands(p, SubcommandsConfig{Dest: "verb"})
			return err
		}},
		{"duplicate subcommand", func(t *testing.T) error {
			_, sp, err := AddSubcommands(newParser(t), SubcommandsConfig{})
			if err != nil {
				t.Fatal(err)
			}
			if _, err := AddParser(sp, "read", []string{"r"}, SubparserConfig{}); err != nil {
				t.Fatal(err)
			}
			_, err = AddParser(sp, "read", nil, SubparserConfig{})
			return err
		}},
		{"duplicate alias", func(t *testing.T) error {
			_, sp, err := AddSubcommands(newParser(t), SubcommandsConfig{})
			if err != nil {
				t.Fatal(err)
			}
			if _, err := AddParser(sp, "read", []string{"r"}, SubparserConfig{}); err != nil {
				t.Fatal(err)
			}
			_, err = AddParser(sp, "remove", []string{"r"}, SubparserConfig{})
			return err
		}},
		{"required argument in exclusive group", func(t *testing.T) error {
			_, err := AddMutuallyExclusiveGroup(newParser(t), false).AddArgument([]string{"--a"}, ArgumentConfig{Required: Bool(true)})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build(t)
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("error = %v, want ErrConfiguration", err)
			}
			var cerr *ConfigurationError
			if !errors.As(err, &cerr) || cerr.Op == "" {
				t.Errorf("error %v does not name its operation", err)
			}
		})
	}
}

func TestExistingSubcommandGroupIsReturned(t *testing.T) {
	p, err := CreateParser(ParserConfig{Prog: "tool"})
	if err != nil {
		t.Fatal(err)
	}
	_, first, err := AddSubcommands(p, SubcommandsConfig{Dest: "cmd"})
	if err != nil {
		t.Fatal(err)
	}
	for _, cfg := range []SubcommandsConfig{{}, {Dest: "cmd"}} {
		got, sp, err := AddSubcommands(p, cfg)
		if err != nil {
			t.Fatalf("AddSubcommands(%+v) error = %v", cfg, err)
		}
		if got != p || sp != first {
			t.Errorf("AddSubcommands(%+v) returned a different group", cfg)
		}
	}
}

func TestTypedChoices(t *testing.T) {
	t.Setenv("COLUMNS", "80")
	p, err := CreateParser(ParserConfig{Prog: "tool"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = AddArgument(p, []string{"--level"}, ArgumentConfig{Type: "int", Choices: []any{"1", "2", "3"}, Default: 1})
	if err != nil {
		t.Fatal(err)
	}
	got, err := Invoke(p, []string{"--level", "3"})
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"level":3}`; got.Parsed != want {
		t.Errorf("Parsed = %q, want %q", got.Parsed, want)
	}
	got, err = Invoke(p, []string{"--level", "4"})
	if err != nil {
		t.Fatal(err)
	}
	want := "usage: tool [-h] [--level {1,2,3}]\ntool: error: argument --level: invalid choice: 4 (choose from 1, 2, 3)\n"
	if got.Stderr != want {
		t.Errorf("Stderr = %q, want %q", got.Stderr, want)
	}
}

func TestExclusiveGroup(t *testing.T) {
	t.Setenv("COLUMNS", "80")
	p, err := CreateParser(ParserConfig{Prog: "tool"})
	if err != nil {
		t.Fatal(err)
	}
	g := AddMutuallyExclusiveGroup(p, true)
	if _, err := g.AddArgument([]string{"--json"}, ArgumentConfig{Action: "store_true"}); err != nil {
		t.Fatal(err)
	}
	if _, err := g.AddArgument([]string{"--yaml"}, ArgumentConfig{Action: "store_true"}); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		argv []string
		want Result
	}{
		{[]string{"--json"}, Result{Parsed: `{"json":true,"yaml":false}`}},
		{nil, Result{Stderr: "usage: tool [-h] (--json | --yaml)\ntool: error: one of the arguments --json --yaml is required\n"}},
		{[]string{"--json", "--yaml"}, Result{Stderr: "usage: tool [-h] (--json | --yaml)\ntool: error: argument --yaml: not allowed with argument --json\n"}},
	}
	for _, tt := range tests {
		got, err := Invoke(g.Parser(), tt.argv)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("Invoke(%q) mismatch (-want +got):\n%s", tt.argv, diff)
		}
	}
}

func TestSubparserConfig(t *testing.T) {
	t.Setenv("COLUMNS", "80")
	p, err := CreateParser(ParserConfig{Prog: "lv"})
	if err != nil {
		t.Fatal(err)
	}
	_, sp, err := AddSubcommands(p, SubcommandsConfig{Dest: "cmd", Prog: "lv-tool"})
	if err != nil {
		t.Fatal(err)
	}
	child, err := AddParser(sp, "create", []string{"new"}, SubparserConfig{
		ParserConfig: ParserConfig{Description: "Create a volume."},
		Help:         "create a volume",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := AddArgument(child, []string{"name"}, ArgumentConfig{}); err != nil {
		t.Fatal(err)
	}
	got, err := Invoke(p, []string{"new", "-h"})
	if err != nil {
		t.Fatal(err)
	}
	want := `usage: lv-tool create [-h] name

Create a volume.

positional arguments:
  name

options:
  -h, --help  show this help message and exit
`
	if diff := cmp.Diff(want, got.Stdout); diff != "" {
		t.Errorf("subcommand help mismatch (-want +got):\n%s", diff)
	}
}
