// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bridge builds argparse parsers from declarative configuration,
// keeps them in a named registry and runs them with their output captured
// and their exits intercepted.
package bridge

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/yeetrun/argbridge/pkg/argparse"
)

// CreateParser builds a root parser from cfg.
func CreateParser(cfg ParserConfig) (*argparse.Parser, error) {
	const op = "create_parser"
	if cfg.Prog == "" {
		return nil, configErrf(op, "", "prog is required")
	}
	opts, err := parserOptions(op, cfg.Prog, cfg)
	if err != nil {
		return nil, err
	}
	p, err := argparse.New(cfg.Prog, opts...)
	if err != nil {
		return nil, configErr(op, cfg.Prog, err)
	}
	return p, nil
}

func parserOptions(op, target string, cfg ParserConfig) ([]argparse.ParserOption, error) {
	var opts []argparse.ParserOption
	if cfg.Usage != "" {
		opts = append(opts, argparse.WithUsage(cfg.Usage))
	}
	if cfg.Description != "" {
		opts = append(opts, argparse.WithDescription(cfg.Description))
	}
	if cfg.Epilog != "" {
		opts = append(opts, argparse.WithEpilog(cfg.Epilog))
	}
	if cfg.PrefixChars != "" {
		opts = append(opts, argparse.WithPrefixChars(cfg.PrefixChars))
	}
	if cfg.FromfilePrefixChars != "" {
		opts = append(opts, argparse.WithFromfilePrefixChars(cfg.FromfilePrefixChars))
	}
	if meaningful(cfg.ArgumentDefault) {
		opts = append(opts, argparse.WithArgumentDefault(cfg.ArgumentDefault))
	}
	if cfg.ConflictHandler != "" {
		switch cfg.ConflictHandler {
		case argparse.ConflictError, argparse.ConflictResolve:
		default:
			return nil, configErrf(op, target, "conflict_handler must be %q or %q, got %q",
				argparse.ConflictError, argparse.ConflictResolve, cfg.ConflictHandler)
		}
		opts = append(opts, argparse.WithConflictHandler(cfg.ConflictHandler))
	}
	if cfg.AddHelp != nil {
		opts = append(opts, argparse.WithAddHelp(*cfg.AddHelp))
	}
	if cfg.AllowAbbrev != nil {
		opts = append(opts, argparse.WithAllowAbbrev(*cfg.AllowAbbrev))
	}
	if cfg.ExitOnError != nil {
		opts = append(opts, argparse.WithExitOnError(*cfg.ExitOnError))
	}
	return opts, nil
}

// AddArgument attaches one argument to p and returns p for chaining.
func AddArgument(p *argparse.Parser, names []string, cfg ArgumentConfig) (*argparse.Parser, error) {
	if err := addArgument(p, names, cfg, p.AddArgument); err != nil {
		return nil, err
	}
	return p, nil
}

type addFunc func(names []string, opts ...argparse.ArgumentOption) (*argparse.Action, error)

func addArgument(p *argparse.Parser, names []string, cfg ArgumentConfig, add addFunc) error {
	const op = "add_argument"
	target := strings.Join(names, ", ")
	if len(names) == 0 {
		return configErrf(op, "", "at least one name or flag is required")
	}
	positional := 0
	for _, n := range names {
		if n == "" {
			return configErrf(op, target, "empty name")
		}
		if !strings.ContainsRune(p.PrefixChars(), rune(n[0])) {
			positional++
		}
	}
	if positional > 0 && len(names) > 1 {
		return configErrf(op, target, "a positional argument takes exactly one name")
	}

	dest := destFor(p, names, cfg)
	for _, a := range p.Actions() {
		if a.Dest == dest && dest != argparse.Suppress {
			return configErrf(op, target, "dest %q is already used by %s", dest, describe(a))
		}
	}

	opts, err := argumentOptions(cfg)
	if err != nil {
		return configErr(op, target, err)
	}
	if _, err := add(names, opts...); err != nil {
		return configErr(op, target, err)
	}
	return nil
}

// destFor predicts the destination the grammar engine derives for names.
func destFor(p *argparse.Parser, names []string, cfg ArgumentConfig) string {
	if cfg.Dest != "" {
		return cfg.Dest
	}
	chars := p.PrefixChars()
	if len(names) == 1 && !strings.ContainsRune(chars, rune(names[0][0])) {
		return names[0]
	}
	src := names[0]
	for _, n := range names {
		if len(n) > 1 && strings.ContainsRune(chars, rune(n[1])) {
			src = n
			break
		}
	}
	return strings.ReplaceAll(strings.TrimLeft(src, chars), "-", "_")
}

func describe(a *argparse.Action) string {
	if len(a.OptionStrings) > 0 {
		return strings.Join(a.OptionStrings, "/")
	}
	if a.Metavar != "" {
		return a.Metavar
	}
	return a.Dest
}

func argumentOptions(cfg ArgumentConfig) ([]argparse.ArgumentOption, error) {
	var opts []argparse.ArgumentOption
	switch {
	case cfg.Custom != nil:
		if cfg.Action != "" && cfg.Action != string(argparse.ActionCustom) {
			return nil, fmt.Errorf("custom function cannot be combined with action %q", cfg.Action)
		}
		opts = append(opts, argparse.Custom(cfg.Custom))
	case cfg.Action == string(argparse.ActionCustom):
		return nil, fmt.Errorf("action %q requires a custom function", cfg.Action)
	case cfg.Action != "":
		opts = append(opts, argparse.Kind(argparse.ActionKind(cfg.Action)))
	}
	if cfg.Nargs != "" {
		opts = append(opts, argparse.Nargs(string(cfg.Nargs)))
	}
	if meaningful(cfg.Const) {
		opts = append(opts, argparse.Const(cfg.Const))
	}
	if meaningful(cfg.Default) {
		opts = append(opts, argparse.Default(cfg.Default))
	}
	if cfg.Type != "" {
		opts = append(opts, argparse.Type(argparse.ValueType(cfg.Type)))
	}
	if len(cfg.Choices) > 0 {
		choices, err := typedChoices(argparse.ValueType(cfg.Type), cfg.Choices)
		if err != nil {
			return nil, err
		}
		opts = append(opts, argparse.Choices(choices...))
	}
	if cfg.Required != nil {
		opts = append(opts, argparse.Required(*cfg.Required))
	}
	if cfg.Help != "" {
		opts = append(opts, argparse.Help(cfg.Help))
	}
	if cfg.Metavar != "" {
		opts = append(opts, argparse.Metavar(cfg.Metavar))
	}
	if cfg.Dest != "" {
		opts = append(opts, argparse.Dest(cfg.Dest))
	}
	if cfg.Version != "" {
		opts = append(opts, argparse.Version(cfg.Version))
	}
	return opts, nil
}

// typedChoices converts textual choices to the argument's value type so
// that they compare equal to converted command-line values.
func typedChoices(t argparse.ValueType, choices []any) ([]any, error) {
	if t != argparse.TypeInt && t != argparse.TypeFloat {
		return choices, nil
	}
	out := make([]any, len(choices))
	for i, c := range choices {
		s, ok := c.(string)
		if !ok {
			out[i] = c
			continue
		}
		var err error
		if t == argparse.TypeInt {
			out[i], err = strconv.Atoi(strings.TrimSpace(s))
		} else {
			out[i], err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		}
		if err != nil {
			return nil, fmt.Errorf("choice %q is not a valid %s", s, t)
		}
	}
	return out, nil
}

// AddSubcommands attaches the subcommand group to p, or returns the group p
// already has.
func AddSubcommands(p *argparse.Parser, cfg SubcommandsConfig) (*argparse.Parser, *argparse.Subparsers, error) {
	const op = "add_subparsers"
	if sp := p.Subparsers(); sp != nil {
		if cfg.Dest != "" && cfg.Dest != sp.Dest() {
			return nil, nil, configErrf(op, p.Prog(), "parser already has subcommands stored as %q", sp.Dest())
		}
		return p, sp, nil
	}
	if cfg.Dest != "" {
		for _, a := range p.Actions() {
			if a.Dest == cfg.Dest {
				return nil, nil, configErrf(op, p.Prog(), "dest %q is already used by %s", cfg.Dest, describe(a))
			}
		}
	}

	var opts []argparse.GroupOption
	if cfg.Title != "" {
		opts = append(opts, argparse.GroupTitle(cfg.Title))
	}
	if cfg.Description != "" {
		opts = append(opts, argparse.GroupDescription(cfg.Description))
	}
	if cfg.Prog != "" {
		opts = append(opts, argparse.GroupProg(cfg.Prog))
	}
	if cfg.Dest != "" {
		opts = append(opts, argparse.GroupDest(cfg.Dest))
	}
	if cfg.Required != nil {
		opts = append(opts, argparse.GroupRequired(*cfg.Required))
	}
	if cfg.Help != "" {
		opts = append(opts, argparse.GroupHelp(cfg.Help))
	}
	if cfg.Metavar != "" {
		opts = append(opts, argparse.GroupMetavar(cfg.Metavar))
	}
	sp, err := p.AddSubparsers(opts...)
	if err != nil {
		return nil, nil, configErr(op, p.Prog(), err)
	}
	return p, sp, nil
}

// AddParser registers a subcommand parser under name and aliases and
// returns it so arguments can be attached.
func AddParser(sp *argparse.Subparsers, name string, aliases []string, cfg SubparserConfig) (*argparse.Parser, error) {
	const op = "add_parser"
	if name == "" {
		return nil, configErrf(op, "", "name is required")
	}
	opts, err := parserOptions(op, name, cfg.ParserConfig)
	if err != nil {
		return nil, err
	}
	if cfg.Prog != "" {
		opts = append(opts, argparse.WithProg(cfg.Prog))
	}
	if len(aliases) > 0 {
		opts = append(opts, argparse.WithAliases(aliases...))
	}
	if cfg.Help != "" {
		opts = append(opts, argparse.WithHelp(cfg.Help))
	}
	child, err := sp.AddParser(name, opts...)
	if err != nil {
		return nil, configErr(op, name, err)
	}
	return child, nil
}

// ExclusiveGroup is a mutually exclusive argument group under construction.
type ExclusiveGroup struct {
	parser *argparse.Parser
	group  *argparse.MutuallyExclusiveGroup
}

// AddMutuallyExclusiveGroup creates a group on p whose arguments exclude
// each other. A required group demands exactly one of them.
func AddMutuallyExclusiveGroup(p *argparse.Parser, required bool) *ExclusiveGroup {
	return &ExclusiveGroup{parser: p, group: p.AddMutuallyExclusiveGroup(required)}
}

// AddArgument attaches an argument to the group and its parser, with the
// same rules as the package-level AddArgument.
func (g *ExclusiveGroup) AddArgument(names []string, cfg ArgumentConfig) (*ExclusiveGroup, error) {
	if err := addArgument(g.parser, names, cfg, g.group.AddArgument); err != nil {
		return nil, err
	}
	return g, nil
}

// Parser returns the parser the group belongs to.
func (g *ExclusiveGroup) Parser() *argparse.Parser { return g.parser }
