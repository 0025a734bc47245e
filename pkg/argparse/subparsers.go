// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package argparse

import (
	"slices"
	"strings"
)

// Subparsers is the subcommand argument of a parser: a positional whose
// first value selects a nested parser that consumes the rest of the command
// line.
type Subparsers struct {
	parent     *Parser
	action     *Action
	progPrefix string

	names     []string // canonical names and aliases, registration order
	canonical map[string]string
	parsers   map[string]*Parser
	aliases   map[string][]string

	// choices are the pseudo-arguments listed under the subcommand in help.
	choices []*Action
}

// GroupOption configures the subcommands created by Parser.AddSubparsers.
type GroupOption func(*groupSettings)

type groupSettings struct {
	set map[string]bool

	title       string
	description string
	prog        string
	dest        string
	required    bool
	help        string
	metavar     string
}

func (s *groupSettings) mark(name string) {
	if s.set == nil {
		s.set = make(map[string]bool)
	}
	s.set[name] = true
}

// GroupTitle lists the subcommands in their own help section.
func GroupTitle(title string) GroupOption {
	return func(s *groupSettings) { s.title = title; s.mark("title") }
}

func GroupDescription(text string) GroupOption {
	return func(s *groupSettings) { s.description = text; s.mark("description") }
}

// GroupProg sets the prefix of the subcommand parsers' program names.
func GroupProg(prog string) GroupOption {
	return func(s *groupSettings) { s.prog = prog; s.mark("prog") }
}

// GroupDest stores the selected subcommand name under dest.
func GroupDest(dest string) GroupOption {
	return func(s *groupSettings) { s.dest = dest; s.mark("dest") }
}

func GroupRequired(v bool) GroupOption {
	return func(s *groupSettings) { s.required = v; s.mark("required") }
}

func GroupHelp(text string) GroupOption {
	return func(s *groupSettings) { s.help = text; s.mark("help") }
}

func GroupMetavar(name string) GroupOption {
	return func(s *groupSettings) { s.metavar = name; s.mark("metavar") }
}

// AddSubparsers adds the subcommand argument. A parser has at most one.
func (p *Parser) AddSubparsers(opts ...GroupOption) (*Subparsers, error) {
	if p.subparsers != nil {
		return nil, &ArgumentError{Message: "cannot have multiple subparser arguments"}
	}
	s := groupSettings{dest: Suppress}
	for _, opt := range opts {
		opt(&s)
	}

	group := p.positionals
	if s.set["title"] || s.set["description"] {
		title := s.title
		if !s.set["title"] {
			title = "subcommands"
		}
		group = p.addArgumentGroup(title, s.description)
	}

	prefix := s.prog
	if !s.set["prog"] {
		f := p.newFormatter()
		f.addUsage(p.usage, p.positionalActions(), p.mutexGroups, "")
		prefix = strings.TrimSpace(f.formatHelp())
	}

	a := &Action{
		Dest:     s.dest,
		Kind:     actionParsers,
		Nargs:    nargsParser,
		Required: s.required,
		Help:     s.help,
		Metavar:  s.metavar,
		Choices:  []any{},
	}
	sp := &Subparsers{
		parent:     p,
		action:     a,
		progPrefix: prefix,
		canonical:  make(map[string]string),
		parsers:    make(map[string]*Parser),
		aliases:    make(map[string][]string),
	}
	a.subparsers = sp
	if err := p.addAction(a, group); err != nil {
		return nil, err
	}
	p.subparsers = sp
	return sp, nil
}

// AddParser registers a subcommand parser under name and its aliases. The
// parser's program name defaults to the parent's usage prefix followed by
// name.
func (sp *Subparsers) AddParser(name string, opts ...ParserOption) (*Parser, error) {
	s := defaultParserSettings()
	for _, opt := range opts {
		opt(&s)
	}
	if !s.set["prog"] {
		s.prog = sp.progPrefix + " " + name
	}
	if _, ok := sp.parsers[name]; ok {
		return nil, newArgumentError(sp.action, "conflicting subparser: %s", name)
	}
	for _, alias := range s.aliases {
		if _, ok := sp.parsers[alias]; ok {
			return nil, newArgumentError(sp.action, "conflicting subparser alias: %s", alias)
		}
	}

	child, err := newParser(s.prog, &s)
	if err != nil {
		return nil, err
	}
	child.parent = sp.parent

	if s.set["help"] {
		metavar := name
		if len(s.aliases) > 0 {
			metavar += " (" + strings.Join(s.aliases, ", ") + ")"
		}
		sp.choices = append(sp.choices, &Action{
			Dest:    name,
			Metavar: metavar,
			Help:    s.help,
			Nargs:   "0",
			pseudo:  true,
		})
	}

	for _, n := range append([]string{name}, s.aliases...) {
		if _, ok := sp.parsers[n]; !ok {
			sp.names = append(sp.names, n)
			sp.action.Choices = append(sp.action.Choices, n)
		}
		sp.parsers[n] = child
		sp.canonical[n] = name
	}
	sp.aliases[name] = slices.Clone(s.aliases)
	return child, nil
}

// Dest is the namespace key that receives the selected subcommand name, or
// Suppress.
func (sp *Subparsers) Dest() string { return sp.action.Dest }

func (sp *Subparsers) Required() bool { return sp.action.Required }

// Action returns the positional argument that represents the subcommands.
func (sp *Subparsers) Action() *Action { return sp.action }

// Names returns the canonical subcommand names in registration order.
func (sp *Subparsers) Names() []string {
	var out []string
	for _, n := range sp.names {
		if sp.canonical[n] == n {
			out = append(out, n)
		}
	}
	return out
}

// Aliases returns the aliases registered for a canonical name.
func (sp *Subparsers) Aliases(name string) []string {
	return slices.Clone(sp.aliases[name])
}

// Lookup returns the parser registered under name or one of its aliases,
// and its canonical name.
func (sp *Subparsers) Lookup(name string) (p *Parser, canonical string, ok bool) {
	p, ok = sp.parsers[name]
	return p, sp.canonical[name], ok
}

// invoke runs the selected subcommand parser over the remaining arguments
// and merges its namespace into ns. The destination always receives the
// canonical name, also when an alias was typed.
func (sp *Subparsers) invoke(st *parseState, ns *Namespace, values any) error {
	list, _ := values.([]any)
	if len(list) == 0 {
		return nil
	}
	name, _ := list[0].(string)
	rest := make([]string, 0, len(list)-1)
	for _, v := range list[1:] {
		rest = append(rest, str(v))
	}

	child, ok := sp.parsers[name]
	if !ok {
		return newArgumentError(sp.action, "unknown parser %s (choices: %s)", repr(name), strings.Join(sp.names, ", "))
	}
	if sp.action.Dest != Suppress {
		ns.Set(sp.action.Dest, sp.canonical[name])
	}

	sub, extras := child.parseKnown(rest, nil)
	sub.Range(func(k string, v any) bool {
		ns.Set(k, v)
		return true
	})
	st.unrecognized = append(st.unrecognized, extras...)
	return nil
}
