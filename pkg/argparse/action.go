// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package argparse

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Suppress as a default keeps the destination out of the namespace until
// the argument is seen. As a help string it hides the argument from help and
// usage text.
const Suppress = "==SUPPRESS=="

// ActionKind selects what an argument does when it is encountered.
type ActionKind string

const (
	ActionStore       ActionKind = "store"
	ActionStoreConst  ActionKind = "store_const"
	ActionStoreTrue   ActionKind = "store_true"
	ActionStoreFalse  ActionKind = "store_false"
	ActionAppend      ActionKind = "append"
	ActionAppendConst ActionKind = "append_const"
	ActionExtend      ActionKind = "extend"
	ActionCount       ActionKind = "count"
	ActionHelp        ActionKind = "help"
	ActionVersion     ActionKind = "version"
	ActionCustom      ActionKind = "custom"

	actionParsers ActionKind = "parsers"
)

// Arity values accepted by Nargs. Any non-negative decimal count is also
// accepted.
const (
	NargsOptional   = "?"
	NargsZeroOrMore = "*"
	NargsOneOrMore  = "+"
	NargsRemainder  = "..."

	nargsParser = "A..."
)

// ActionFunc implements a custom action. values is the converted argument
// (a single value or a []any depending on the arity) and optionString is the
// flag that triggered it, empty for positionals.
//
// Returning an *ExitError (see Parser.Exit) ends the parse with that status.
// Any other error is reported as a usage error for the argument.
type ActionFunc func(p *Parser, ns *Namespace, values any, optionString string) error

// Action is one argument of a parser.
type Action struct {
	OptionStrings []string
	Dest          string
	Kind          ActionKind
	Nargs         string
	Const         any
	Default       any
	Type          ValueType
	Choices       []any
	Required      bool
	Help          string
	Metavar       string
	Version       string

	fn         ActionFunc
	container  *Parser
	subparsers *Subparsers
	pseudo     bool
}

// ArgumentOption configures an argument passed to Parser.AddArgument.
type ArgumentOption func(*argumentSettings)

type argumentSettings struct {
	set map[string]bool

	kind     ActionKind
	nargs    string
	constant any
	def      any
	typ      ValueType
	choices  []any
	required bool
	help     string
	metavar  string
	dest     string
	version  string
	fn       ActionFunc
}

func (s *argumentSettings) mark(name string) {
	if s.set == nil {
		s.set = make(map[string]bool)
	}
	s.set[name] = true
}

// Kind sets the action kind. The default is ActionStore.
func Kind(kind ActionKind) ArgumentOption {
	return func(s *argumentSettings) { s.kind = kind; s.mark("action") }
}

// Custom makes the argument a custom action that calls fn.
func Custom(fn ActionFunc) ArgumentOption {
	return func(s *argumentSettings) { s.kind = ActionCustom; s.fn = fn; s.mark("action") }
}

// Nargs sets the arity: "?", "*", "+", "..." or a decimal count.
func Nargs(n string) ArgumentOption {
	return func(s *argumentSettings) { s.nargs = n; s.mark("nargs") }
}

// NargsN sets an exact arity.
func NargsN(n int) ArgumentOption {
	return Nargs(strconv.Itoa(n))
}

func Const(v any) ArgumentOption {
	return func(s *argumentSettings) { s.constant = v; s.mark("const") }
}

func Default(v any) ArgumentOption {
	return func(s *argumentSettings) { s.def = v; s.mark("default") }
}

func Type(t ValueType) ArgumentOption {
	return func(s *argumentSettings) { s.typ = t; s.mark("type") }
}

func Choices(choices ...any) ArgumentOption {
	return func(s *argumentSettings) { s.choices = choices; s.mark("choices") }
}

func Required(v bool) ArgumentOption {
	return func(s *argumentSettings) { s.required = v; s.mark("required") }
}

// Help sets the help text. %(default)s, %(prog)s and the other argument
// attributes are interpolated when help is rendered.
func Help(text string) ArgumentOption {
	return func(s *argumentSettings) { s.help = text; s.mark("help") }
}

func Metavar(name string) ArgumentOption {
	return func(s *argumentSettings) { s.metavar = name; s.mark("metavar") }
}

func Dest(dest string) ArgumentOption {
	return func(s *argumentSettings) { s.dest = dest; s.mark("dest") }
}

// Version sets the text printed by an ActionVersion argument.
func Version(v string) ArgumentOption {
	return func(s *argumentSettings) { s.version = v; s.mark("version") }
}

// accepted lists the settings each action kind takes besides dest and help.
var accepted = map[ActionKind][]string{
	ActionStore:       {"nargs", "const", "default", "type", "choices", "required", "metavar"},
	ActionStoreConst:  {"const", "default", "required", "metavar"},
	ActionStoreTrue:   {"default", "required"},
	ActionStoreFalse:  {"default", "required"},
	ActionAppend:      {"nargs", "const", "default", "type", "choices", "required", "metavar"},
	ActionAppendConst: {"const", "default", "required", "metavar"},
	ActionExtend:      {"nargs", "const", "default", "type", "choices", "required", "metavar"},
	ActionCount:       {"default", "required"},
	ActionHelp:        {"default"},
	ActionVersion:     {"default", "version"},
	ActionCustom:      {"nargs", "const", "default", "type", "choices", "required", "metavar"},
}

func (s *argumentSettings) validate() error {
	ok, known := accepted[s.kind]
	if !known {
		return fmt.Errorf("unknown action %q", s.kind)
	}
	allowed := map[string]bool{"action": true, "dest": true, "help": true}
	for _, name := range ok {
		allowed[name] = true
	}
	var bad []string
	for name := range s.set {
		if !allowed[name] {
			bad = append(bad, name)
		}
	}
	if len(bad) > 0 {
		slices.Sort(bad)
		return fmt.Errorf("action %q does not accept %s", s.kind, strings.Join(bad, ", "))
	}
	if !s.typ.valid() {
		return fmt.Errorf("unknown type %q", s.typ)
	}
	if s.kind == ActionCustom && s.fn == nil {
		return fmt.Errorf("custom action requires a function")
	}
	if s.set["nargs"] {
		if err := validNargs(s.nargs); err != nil {
			return err
		}
	}
	switch s.kind {
	case ActionStore, ActionAppend, ActionExtend:
		kind := "store"
		if s.kind != ActionStore {
			kind = "append"
		}
		if s.set["nargs"] && s.nargs == "0" {
			return fmt.Errorf("nargs for %s actions must be != 0; if you have nothing to store, actions such as store true or store const may be more appropriate", kind)
		}
		if s.set["const"] && s.constant != nil && s.nargs != NargsOptional {
			return fmt.Errorf("nargs must be %s to supply const", repr(NargsOptional))
		}
	}
	return nil
}

func validNargs(n string) error {
	switch n {
	case "", NargsOptional, NargsZeroOrMore, NargsOneOrMore, NargsRemainder:
		return nil
	}
	if v, err := strconv.Atoi(n); err == nil && v >= 0 {
		return nil
	}
	return fmt.Errorf("invalid nargs value %q", n)
}

// takesValues reports whether the action consumes argument strings.
func (a *Action) takesValues() bool {
	return a.Nargs != "0"
}

func (a *Action) isPositional() bool {
	return len(a.OptionStrings) == 0
}

// invoke applies the action to the namespace.
func (a *Action) invoke(p *Parser, st *parseState, ns *Namespace, values any, optionString string) error {
	switch a.Kind {
	case ActionStore:
		ns.Set(a.Dest, values)
	case ActionStoreConst, ActionStoreTrue, ActionStoreFalse:
		ns.Set(a.Dest, a.Const)
	case ActionAppend:
		cur, _ := ns.Get(a.Dest)
		ns.Set(a.Dest, append(copyList(cur), values))
	case ActionAppendConst:
		cur, _ := ns.Get(a.Dest)
		ns.Set(a.Dest, append(copyList(cur), a.Const))
	case ActionExtend:
		cur, _ := ns.Get(a.Dest)
		ns.Set(a.Dest, append(copyList(cur), copyList(values)...))
	case ActionCount:
		cur, _ := ns.Get(a.Dest)
		n, _ := cur.(int)
		ns.Set(a.Dest, n+1)
	case ActionHelp:
		p.PrintHelp()
		return p.Exit(ExitSuccess, "")
	case ActionVersion:
		f := p.newFormatter()
		f.addText(a.Version)
		out, _ := p.Output()
		writeMessage(out, f.formatHelp())
		return p.Exit(ExitSuccess, "")
	case actionParsers:
		return a.subparsers.invoke(st, ns, values)
	case ActionCustom:
		return a.fn(p, ns, values, optionString)
	}
	return nil
}

// actionName is the display name of an argument in error messages.
func actionName(a *Action) string {
	switch {
	case a == nil:
		return ""
	case len(a.OptionStrings) > 0:
		return strings.Join(a.OptionStrings, "/")
	case a.Metavar != "" && a.Metavar != Suppress:
		return a.Metavar
	case a.Dest != "" && a.Dest != Suppress:
		return a.Dest
	case len(a.Choices) > 0:
		parts := make([]string, len(a.Choices))
		for i, c := range a.Choices {
			parts[i] = str(c)
		}
		return "{" + strings.Join(parts, ",") + "}"
	}
	return ""
}
