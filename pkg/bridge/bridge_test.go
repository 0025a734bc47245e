// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/yeetrun/argbridge/pkg/argparse"
	"golang.org/x/sync/errgroup"
)

const demoHelp = `usage: parser [-h] [-o] argument {read,r,write,w} ...

positional arguments:
  argument          argument help

options:
  -h, --help        show this help message and exit
  -o, --option      option help

commands:
  commands description

  {read,r,write,w}  commands help
`

const demoUsage = "usage: parser [-h] [-o] argument {read,r,write,w} ...\n"

// demoParser builds the reference command layout: a flag, a positional and
// two aliased subcommands.
func demoParser(t *testing.T) *argparse.Parser {
	t.Helper()
	t.Setenv("COLUMNS", "80")
	p, err := CreateParser(ParserConfig{Prog: "parser"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := AddArgument(p, []string{"-o", "--option"}, ArgumentConfig{Action: "store_true", Help: "option help"}); err != nil {
		t.Fatal(err)
	}
	if _, err := AddArgument(p, []string{"argument"}, ArgumentConfig{Help: "argument help"}); err != nil {
		t.Fatal(err)
	}
	_, sp, err := AddSubcommands(p, SubcommandsConfig{
		Title:       "commands",
		Description: "commands description",
		Dest:        "cmd",
		Help:        "commands help",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := AddParser(sp, "read", []string{"r"}, SubparserConfig{}); err != nil {
		t.Fatal(err)
	}
	if _, err := AddParser(sp, "write", []string{"w"}, SubparserConfig{}); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestInvokeOutcomes(t *testing.T) {
	tests := []struct {
		name string
		argv []string
		want Result
	}{
		{
			name: "help",
			argv: []string{"-h"},
			want: Result{Stdout: demoHelp},
		},
		{
			name: "missing positional",
			argv: nil,
			want: Result{Stderr: demoUsage + "parser: error: the following arguments are required: argument\n"},
		},
		{
			name: "unrecognized flag",
			argv: []string{"-x", "y"},
			want: Result{Stderr: demoUsage + "parser: error: unrecognized arguments: -x\n"},
		},
		{
			name: "positional only",
			argv: []string{"hello"},
			want: Result{Parsed: `{"option":false,"argument":"hello"}`},
		},
		{
			name: "alias resolves to canonical name",
			argv: []string{"-o", "1", "r"},
			want: Result{Parsed: `{"option":true,"argument":"1","cmd":"read"}`},
		},
		{
			name: "subcommand help",
			argv: []string{"x", "write", "-h"},
			want: Result{Stdout: "usage: parser argument write [-h]\n\noptions:\n  -h, --help  show this help message and exit\n"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Invoke(demoParser(t), tt.argv)
			if err != nil {
				t.Fatalf("Invoke(%q) error = %v", tt.argv, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Invoke(%q) mismatch (-want +got):\n%s", tt.argv, diff)
			}
		})
	}
}

func TestInvokeIdempotent(t *testing.T) {
	p := demoParser(t)
	first, err := Invoke(p, []string{"-o", "a", "write"})
	if err != nil {
		t.Fatal(err)
	}
	for range 3 {
		got, err := Invoke(p, []string{"-o", "a", "write"})
		if err != nil {
			t.Fatal(err)
		}
		if got != first {
			t.Fatalf("Invoke() = %+v, want %+v", got, first)
		}
	}
	// An invocation that only printed must not leak into the next one.
	if _, err := Invoke(p, []string{"-h"}); err != nil {
		t.Fatal(err)
	}
	got, err := Invoke(p, []string{"-o", "a", "write"})
	if err != nil {
		t.Fatal(err)
	}
	if got != first {
		t.Errorf("Invoke() after help = %+v, want %+v", got, first)
	}
}

func TestAliasEquivalence(t *testing.T) {
	p := demoParser(t)
	for _, pair := range [][2]string{{"read", "r"}, {"write", "w"}} {
		canon, err := Invoke(p, []string{"v", pair[0]})
		if err != nil {
			t.Fatal(err)
		}
		alias, err := Invoke(p, []string{"v", pair[1]})
		if err != nil {
			t.Fatal(err)
		}
		if canon != alias {
			t.Errorf("alias %s = %+v, canonical %s = %+v", pair[1], alias, pair[0], canon)
		}
	}
}

func TestFatalExit(t *testing.T) {
	p, err := CreateParser(ParserConfig{Prog: "prog"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = AddArgument(p, []string{"--die"}, ArgumentConfig{
		Nargs: "0",
		Custom: func(p *argparse.Parser, ns *argparse.Namespace, values any, opt string) error {
			return p.Exit(3, "dying\n")
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = Invoke(p, []string{"--die"})
	var fatal *FatalExitError
	if !errors.As(err, &fatal) {
		t.Fatalf("Invoke() error = %v, want *FatalExitError", err)
	}
	if fatal.Code() != 3 {
		t.Errorf("Code() = %d, want 3", fatal.Code())
	}
	if fatal.Stderr != "dying\n" {
		t.Errorf("Stderr = %q, want %q", fatal.Stderr, "dying\n")
	}
	if !errors.Is(err, argparse.ErrExit) {
		t.Errorf("errors.Is(%v, ErrExit) = false", err)
	}

	// The grammar's own streams are restored afterwards.
	var out strings.Builder
	p.SetOutput(&out, &out)
	if _, err := Invoke(p, []string{"--die"}); err == nil {
		t.Fatal("second Invoke() error = nil")
	}
	stdout, _ := p.Output()
	if stdout != io.Writer(&out) {
		t.Errorf("stdout writer not restored")
	}
	if out.Len() != 0 {
		t.Errorf("captured text leaked to the grammar's writers: %q", out.String())
	}
}

type panicGrammar struct {
	stdout, stderr io.Writer
}

func (g *panicGrammar) SetOutput(stdout, stderr io.Writer) (io.Writer, io.Writer) {
	prevOut, prevErr := g.stdout, g.stderr
	g.stdout, g.stderr = stdout, stderr
	return prevOut, prevErr
}

func (g *panicGrammar) Parse([]string) (*argparse.Namespace, error) {
	io.WriteString(g.stdout, "partial")
	panic("custom action failed")
}

func TestInvokeRestoresOnPanic(t *testing.T) {
	g := &panicGrammar{}
	func() {
		defer func() {
			if r := recover(); r != "custom action failed" {
				t.Errorf("recover() = %v, want the original panic", r)
			}
		}()
		Invoke(g, nil)
	}()
	if g.stdout != nil || g.stderr != nil {
		t.Errorf("writers = %v, %v after panic, want restored nil writers", g.stdout, g.stderr)
	}
	// The redirect lock is released.
	if _, err := Invoke(demoParser(t), []string{"x"}); err != nil {
		t.Fatal(err)
	}
}

type silentGrammar struct{ panicGrammar }

func (g *silentGrammar) Parse([]string) (*argparse.Namespace, error) {
	io.WriteString(g.stderr, "nothing to report\n")
	return nil, nil
}

func TestInvokeNilNamespace(t *testing.T) {
	got, err := Invoke(&silentGrammar{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Result{Stderr: "nothing to report\n"}, got); diff != "" {
		t.Errorf("Invoke() mismatch (-want +got):\n%s", diff)
	}
}

func TestInvokeParseError(t *testing.T) {
	p, err := CreateParser(ParserConfig{Prog: "prog", ExitOnError: Bool(false)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := AddArgument(p, []string{"--n"}, ArgumentConfig{Type: "int"}); err != nil {
		t.Fatal(err)
	}
	_, err = Invoke(p, []string{"--n", "x"})
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Invoke() error = %v, want *ParseError", err)
	}
	var aerr *argparse.ArgumentError
	if !errors.As(err, &aerr) {
		t.Errorf("errors.As(%v, *ArgumentError) = false", err)
	}
	if got, want := err.Error(), "argument --n: invalid int value: 'x'"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(nil)
	iv := &Invoker{Registry: reg}
	ctx := context.Background()

	if _, err := iv.InvokeNamed(ctx, "missing", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("InvokeNamed(missing) error = %v, want ErrNotFound", err)
	}

	first := reg.Register("demo", demoParser(t))
	other, err := CreateParser(ParserConfig{Prog: "other"})
	if err != nil {
		t.Fatal(err)
	}
	reg.Register("other", other)

	got, err := iv.InvokeNamed(ctx, "demo", []string{"hello"})
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"option":false,"argument":"hello"}`; got.Parsed != want {
		t.Errorf("InvokeNamed(demo) = %q, want %q", got.Parsed, want)
	}
	got, err = iv.InvokeNamed(ctx, "other", []string{"hello"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got.Stderr, "other: error: unrecognized arguments: hello") {
		t.Errorf("InvokeNamed(other) stderr = %q", got.Stderr)
	}

	// Registering again replaces the parser and the revision.
	second := reg.Register("demo", other)
	if second.Revision == first.Revision {
		t.Errorf("revision unchanged after overwrite")
	}
	p, err := reg.Resolve("demo")
	if err != nil || p != other {
		t.Errorf("Resolve(demo) = %v, %v; want the replacement parser", p, err)
	}
	if diff := cmp.Diff([]string{"demo", "other"}, reg.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
	if _, err := reg.RegisterDefinition("x", "x.lua", "parser"); !errors.Is(err, ErrLoad) {
		t.Errorf("RegisterDefinition without loader error = %v, want ErrLoad", err)
	}
}

type fakeLoader map[string]*argparse.Parser

func (f fakeLoader) Load(path, factory string) (*argparse.Parser, error) {
	p, ok := f[path+"#"+factory]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrLoad)
	}
	return p, nil
}

func TestRegisterDefinition(t *testing.T) {
	p := demoParser(t)
	reg := NewRegistry(fakeLoader{"defs/demo.lua#parser": p})
	e, err := reg.RegisterDefinition("demo", "defs/demo.lua", "parser")
	if err != nil {
		t.Fatal(err)
	}
	if e.Path != "defs/demo.lua" || e.Factory != "parser" || e.Parser != p {
		t.Errorf("entry = %+v", e)
	}
	if _, err := reg.RegisterDefinition("bad", "defs/demo.lua", "nope"); !errors.Is(err, ErrLoad) {
		t.Errorf("RegisterDefinition(nope) error = %v, want ErrLoad", err)
	}
	if _, err := reg.Resolve("bad"); !errors.Is(err, ErrNotFound) {
		t.Errorf("failed definition was registered")
	}
}

func TestInvokeLine(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register("demo", demoParser(t))
	iv := &Invoker{Registry: reg}
	got, err := iv.InvokeLine(context.Background(), "demo", `-o "two words" w`)
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"option":true,"argument":"two words","cmd":"write"}`; got.Parsed != want {
		t.Errorf("InvokeLine() = %q, want %q", got.Parsed, want)
	}
	if _, err := iv.InvokeLine(context.Background(), "demo", `"unterminated`); err == nil {
		t.Error("InvokeLine(unterminated quote) error = nil")
	}
}

func TestConcurrentInvoke(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register("a", demoParser(t))
	reg.Register("b", demoParser(t))
	iv := &Invoker{Registry: reg}

	var g errgroup.Group
	for i := range 32 {
		name := "a"
		if i%2 == 1 {
			name = "b"
		}
		g.Go(func() error {
			argv := []string{fmt.Sprint(i)}
			if i%4 == 0 {
				argv = []string{"-h"}
			}
			res, err := iv.InvokeNamed(context.Background(), name, argv)
			if err != nil {
				return err
			}
			if i%4 == 0 {
				if res.Stdout != demoHelp {
					return fmt.Errorf("%d: stdout = %q", i, res.Stdout)
				}
				return nil
			}
			if want := fmt.Sprintf(`{"option":false,"argument":"%d"}`, i); res.Parsed != want {
				return fmt.Errorf("%d: parsed = %q, want %q", i, res.Parsed, want)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestYAMLFormat(t *testing.T) {
	p := demoParser(t)
	if _, err := AddArgument(p, []string{"--tag"}, ArgumentConfig{Action: "append"}); err != nil {
		t.Fatal(err)
	}
	iv := &Invoker{Format: FormatYAML}
	got, err := iv.Invoke(context.Background(), p, []string{"--tag", "a", "--tag", "b", "x", "r"})
	if err != nil {
		t.Fatal(err)
	}
	want := `option: false
argument: x
cmd: read
tag:
    - a
    - b
`
	if diff := cmp.Diff(want, got.Parsed); diff != "" {
		t.Errorf("YAML mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatJSON, "JSON": FormatJSON, "yml": FormatYAML} {
		if got, err := ParseFormat(in); err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) error = nil")
	}
}

func TestInvokeNamedAs(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register("demo", demoParser(t))
	iv := &Invoker{Registry: reg}

	got, err := iv.InvokeNamedAs(context.Background(), "demo", []string{"x", "w"}, FormatYAML)
	if err != nil {
		t.Fatal(err)
	}
	if want := "option: false\nargument: x\ncmd: write\n"; got.Parsed != want {
		t.Errorf("InvokeNamedAs(yaml) = %q, want %q", got.Parsed, want)
	}
	got, err = iv.InvokeNamed(context.Background(), "demo", []string{"x", "w"})
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"option":false,"argument":"x","cmd":"write"}`; got.Parsed != want {
		t.Errorf("InvokeNamed() = %q, want %q", got.Parsed, want)
	}
	if _, err := iv.InvokeNamedAs(context.Background(), "nope", nil, FormatJSON); !errors.Is(err, ErrNotFound) {
		t.Errorf("InvokeNamedAs(nope) error = %v, want ErrNotFound", err)
	}
}

func TestSplitLine(t *testing.T) {
	got, err := SplitLine(`-o 'a b' "c d" e\ f`)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"-o", "a b", "c d", "e f"}, got); diff != "" {
		t.Errorf("SplitLine mismatch (-want +got):\n%s", diff)
	}
}

func ratioParser(t *testing.T, cfg ArgumentConfig) *argparse.Parser {
	t.Helper()
	p, err := CreateParser(ParserConfig{Prog: "prog"})
	if err != nil {
		t.Fatal(err)
	}
	cfg.Type = "float"
	if _, err := AddArgument(p, []string{"--ratio"}, cfg); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestInvokeNonFiniteFloat(t *testing.T) {
	p := ratioParser(t, ArgumentConfig{})
	for _, arg := range []string{"nan", "inf", "-inf", "Infinity"} {
		got, err := Invoke(p, []string{"--ratio=" + arg})
		if err != nil {
			t.Fatalf("Invoke(--ratio=%s) error = %v, want a usage result", arg, err)
		}
		want := fmt.Sprintf("argument --ratio: invalid float value: '%s'", arg)
		if got.Parsed != "" || !strings.Contains(got.Stderr, want) {
			t.Errorf("Invoke(--ratio=%s) = %+v, want stderr containing %q", arg, got, want)
		}
	}
	got, err := Invoke(p, []string{"--ratio", "1.5"})
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"ratio":1.5}`; got.Parsed != want {
		t.Errorf("Parsed = %q, want %q", got.Parsed, want)
	}
}

func TestFloatsKeepTheirType(t *testing.T) {
	tests := []struct {
		name   string
		cfg    ArgumentConfig
		argv   []string
		format Format
		want   string
	}{
		{name: "whole json", argv: []string{"--ratio", "2"}, format: FormatJSON, want: `{"ratio":2.0}`},
		{name: "whole yaml", argv: []string{"--ratio", "2"}, format: FormatYAML, want: "ratio: 2.0\n"},
		{name: "large", argv: []string{"--ratio", "1e20"}, format: FormatJSON, want: `{"ratio":1e+20}`},
		{name: "small", argv: []string{"--ratio", "0.00001"}, format: FormatJSON, want: `{"ratio":1e-05}`},
		{name: "zero", argv: []string{"--ratio", "0"}, format: FormatJSON, want: `{"ratio":0.0}`},
		{
			name:   "list",
			cfg:    ArgumentConfig{Action: "append"},
			argv:   []string{"--ratio", "1", "--ratio", "0.5"},
			format: FormatJSON,
			want:   `{"ratio":[1.0,0.5]}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iv := &Invoker{Format: tt.format}
			got, err := iv.Invoke(context.Background(), ratioParser(t, tt.cfg), tt.argv)
			if err != nil {
				t.Fatal(err)
			}
			if got.Parsed != tt.want {
				t.Errorf("Parsed = %q, want %q", got.Parsed, tt.want)
			}
		})
	}
}
