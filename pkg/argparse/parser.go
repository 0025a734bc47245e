// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package argparse

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

// Conflict handling policies for option strings registered twice.
const (
	ConflictError   = "error"
	ConflictResolve = "resolve"
)

var negativeNumber = regexp.MustCompile(`^-\d+$|^-\d*\.\d+$`)

// Validator inspects a successfully parsed namespace. A non-nil error is
// reported as a usage error unless it is an *ExitError.
type Validator func(ns *Namespace) error

// Parser is a command-line grammar: an ordered set of arguments, mutually
// exclusive groups and at most one set of subcommands.
//
// A Parser is not safe for concurrent use while it is being built or while
// its output streams are being swapped. Parsing only reads the grammar.
type Parser struct {
	prog                string
	usage               string
	description         string
	epilog              string
	prefixChars         string
	fromfilePrefixChars string
	argumentDefault     any
	hasArgumentDefault  bool
	conflictHandler     string
	addHelp             bool
	allowAbbrev         bool
	exitOnError         bool

	actions       []*Action
	optionStrings []string // registration order, for abbreviation matching
	optionActions map[string]*Action
	hasNegNumOpts bool

	groups      []*argumentGroup
	positionals *argumentGroup
	optionals   *argumentGroup
	mutexGroups []*MutuallyExclusiveGroup
	subparsers  *Subparsers

	defaultOrder []string
	defaults     map[string]any
	validators   []Validator

	parent         *Parser
	stdout, stderr io.Writer
}

type argumentGroup struct {
	title       string
	description string
	actions     []*Action
}

// ParserOption configures a Parser created by New or Subparsers.AddParser.
type ParserOption func(*parserSettings)

type parserSettings struct {
	set map[string]bool

	prog                string
	usage               string
	description         string
	epilog              string
	prefixChars         string
	fromfilePrefixChars string
	argumentDefault     any
	conflictHandler     string
	addHelp             bool
	allowAbbrev         bool
	exitOnError         bool

	// Subcommand registration only.
	aliases []string
	help    string
}

func (s *parserSettings) mark(name string) {
	if s.set == nil {
		s.set = make(map[string]bool)
	}
	s.set[name] = true
}

func defaultParserSettings() parserSettings {
	return parserSettings{
		prefixChars:     "-",
		conflictHandler: ConflictError,
		addHelp:         true,
		allowAbbrev:     true,
		exitOnError:     true,
	}
}

// WithUsage replaces the generated usage line. %(prog)s is interpolated.
func WithUsage(usage string) ParserOption {
	return func(s *parserSettings) { s.usage = usage; s.mark("usage") }
}

func WithDescription(text string) ParserOption {
	return func(s *parserSettings) { s.description = text; s.mark("description") }
}

func WithEpilog(text string) ParserOption {
	return func(s *parserSettings) { s.epilog = text; s.mark("epilog") }
}

// WithPrefixChars sets the characters that introduce optionals. The default
// is "-".
func WithPrefixChars(chars string) ParserOption {
	return func(s *parserSettings) { s.prefixChars = chars; s.mark("prefix_chars") }
}

// WithFromfilePrefixChars enables argument files: an argument starting with
// one of chars is replaced by the lines of the named file.
func WithFromfilePrefixChars(chars string) ParserOption {
	return func(s *parserSettings) { s.fromfilePrefixChars = chars; s.mark("fromfile_prefix_chars") }
}

// WithArgumentDefault sets the default used by arguments that do not set
// their own.
func WithArgumentDefault(v any) ParserOption {
	return func(s *parserSettings) { s.argumentDefault = v; s.mark("argument_default") }
}

// WithConflictHandler selects ConflictError or ConflictResolve.
func WithConflictHandler(policy string) ParserOption {
	return func(s *parserSettings) { s.conflictHandler = policy; s.mark("conflict_handler") }
}

// WithAddHelp controls the automatic -h/--help option.
func WithAddHelp(v bool) ParserOption {
	return func(s *parserSettings) { s.addHelp = v; s.mark("add_help") }
}

// WithAllowAbbrev controls whether long options may be abbreviated.
func WithAllowAbbrev(v bool) ParserOption {
	return func(s *parserSettings) { s.allowAbbrev = v; s.mark("allow_abbrev") }
}

// WithExitOnError controls whether argument errors print usage and end the
// parse with ExitUsage (the default) or are returned as *ArgumentError.
func WithExitOnError(v bool) ParserOption {
	return func(s *parserSettings) { s.exitOnError = v; s.mark("exit_on_error") }
}

// WithProg overrides the program name of a subcommand parser, which
// otherwise is the parent's program name followed by the subcommand name.
func WithProg(prog string) ParserOption {
	return func(s *parserSettings) { s.prog = prog; s.mark("prog") }
}

// WithAliases registers additional names for a subcommand.
func WithAliases(aliases ...string) ParserOption {
	return func(s *parserSettings) { s.aliases = aliases; s.mark("aliases") }
}

// WithHelp sets the one-line description of a subcommand shown in the
// parent's help.
func WithHelp(text string) ParserOption {
	return func(s *parserSettings) { s.help = text; s.mark("help") }
}

// New returns a root parser named prog. An empty prog uses the base name of
// the running executable.
func New(prog string, opts ...ParserOption) (*Parser, error) {
	s := defaultParserSettings()
	for _, opt := range opts {
		opt(&s)
	}
	if prog == "" {
		prog = filepath.Base(os.Args[0])
	}
	return newParser(prog, &s)
}

func newParser(prog string, s *parserSettings) (*Parser, error) {
	if s.prefixChars == "" {
		return nil, errors.New("prefix_chars must not be empty")
	}
	for i := 0; i < len(s.prefixChars); i++ {
		if s.prefixChars[i] >= 0x80 {
			return nil, fmt.Errorf("prefix_chars must be ASCII, got %s", repr(s.prefixChars))
		}
	}
	switch s.conflictHandler {
	case ConflictError, ConflictResolve:
	default:
		return nil, fmt.Errorf("invalid conflict_resolution value: %s", repr(s.conflictHandler))
	}
	p := &Parser{
		prog:                prog,
		usage:               s.usage,
		description:         s.description,
		epilog:              s.epilog,
		prefixChars:         s.prefixChars,
		fromfilePrefixChars: s.fromfilePrefixChars,
		argumentDefault:     s.argumentDefault,
		hasArgumentDefault:  s.set["argument_default"] && s.argumentDefault != nil,
		conflictHandler:     s.conflictHandler,
		addHelp:             s.addHelp,
		allowAbbrev:         s.allowAbbrev,
		exitOnError:         s.exitOnError,
		optionActions:       make(map[string]*Action),
		defaults:            make(map[string]any),
	}
	p.positionals = p.addArgumentGroup("positional arguments", "")
	p.optionals = p.addArgumentGroup("options", "")

	if p.addHelp {
		prefix := "-"
		if !strings.Contains(p.prefixChars, "-") {
			prefix = p.prefixChars[:1]
		}
		_, err := p.AddArgument([]string{prefix + "h", prefix + prefix + "help"},
			Kind(ActionHelp),
			Default(Suppress),
			Help("show this help message and exit"))
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Parser) addArgumentGroup(title, description string) *argumentGroup {
	g := &argumentGroup{title: title, description: description}
	p.groups = append(p.groups, g)
	return g
}

// Prog returns the program name used in usage and error messages.
func (p *Parser) Prog() string { return p.prog }

func (p *Parser) Usage() string       { return p.usage }
func (p *Parser) Description() string { return p.description }
func (p *Parser) Epilog() string      { return p.epilog }
func (p *Parser) PrefixChars() string { return p.prefixChars }

// ExitOnError reports whether argument errors end the parse with ExitUsage.
func (p *Parser) ExitOnError() bool { return p.exitOnError }

// Actions returns the parser's arguments in registration order.
func (p *Parser) Actions() []*Action {
	return slices.Clone(p.actions)
}

// Subparsers returns the parser's subcommands, or nil.
func (p *Parser) Subparsers() *Subparsers { return p.subparsers }

// MutuallyExclusiveGroups returns the parser's groups in creation order.
func (p *Parser) MutuallyExclusiveGroups() []*MutuallyExclusiveGroup {
	return slices.Clone(p.mutexGroups)
}

// Lookup returns the argument that stores into dest.
func (p *Parser) Lookup(dest string) (*Action, bool) {
	for _, a := range p.actions {
		if a.Dest == dest && !a.pseudo {
			return a, true
		}
	}
	return nil, false
}

// AddArgument adds an optional when names start with a prefix character
// and a positional otherwise. A positional takes exactly one name, or none
// when Dest is given.
func (p *Parser) AddArgument(names []string, opts ...ArgumentOption) (*Action, error) {
	a, err := p.newAction(names, opts)
	if err != nil {
		return nil, err
	}
	if err := p.addAction(a, nil); err != nil {
		return nil, err
	}
	return a, nil
}

func (p *Parser) isPrefix(c byte) bool {
	return strings.IndexByte(p.prefixChars, c) >= 0
}

func (p *Parser) newAction(names []string, opts []ArgumentOption) (*Action, error) {
	s := &argumentSettings{kind: ActionStore}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	for _, n := range names {
		if n == "" {
			return nil, errors.New("argument names must not be empty")
		}
	}

	a := &Action{
		Kind:     s.kind,
		Nargs:    s.nargs,
		Const:    s.constant,
		Type:     s.typ,
		Choices:  s.choices,
		Required: s.required,
		Help:     s.help,
		Metavar:  s.metavar,
		Version:  s.version,
		fn:       s.fn,
	}
	switch s.kind {
	case ActionStoreConst, ActionAppendConst, ActionCount, ActionHelp, ActionVersion:
		a.Nargs = "0"
	case ActionStoreTrue:
		a.Nargs, a.Const = "0", true
	case ActionStoreFalse:
		a.Nargs, a.Const = "0", false
	}
	if s.kind == ActionVersion && !s.set["help"] {
		a.Help = "show program's version number and exit"
	}

	if len(names) == 0 || (len(names) == 1 && !p.isPrefix(names[0][0])) {
		if len(names) == 1 && s.set["dest"] {
			return nil, errors.New("dest supplied twice for positional argument")
		}
		if len(names) == 1 {
			a.Dest = names[0]
		} else {
			a.Dest = s.dest
		}
		if a.Dest == "" {
			return nil, errors.New("positional arguments require a name or dest")
		}
		if s.set["required"] {
			return nil, errors.New("'required' is an invalid argument for positionals")
		}
		switch {
		case a.Nargs != NargsOptional && a.Nargs != NargsZeroOrMore:
			a.Required = true
		case a.Nargs == NargsZeroOrMore && !s.set["default"]:
			a.Required = true
		}
	} else {
		var long []string
		for _, n := range names {
			if !p.isPrefix(n[0]) {
				return nil, fmt.Errorf("invalid option string %s: must start with a character %s", repr(n), repr(p.prefixChars))
			}
			if len(n) > 1 && p.isPrefix(n[1]) {
				long = append(long, n)
			}
		}
		a.OptionStrings = slices.Clone(names)
		a.Dest = s.dest
		if !s.set["dest"] {
			src := names[0]
			if len(long) > 0 {
				src = long[0]
			}
			a.Dest = strings.ReplaceAll(strings.TrimLeft(src, p.prefixChars), "-", "_")
			if a.Dest == "" {
				return nil, fmt.Errorf("dest= is required for options like %s", repr(src))
			}
		}
	}

	switch {
	case s.set["default"]:
		a.Default = s.def
	default:
		if v, ok := p.defaults[a.Dest]; ok {
			a.Default = v
		} else if p.hasArgumentDefault {
			a.Default = p.argumentDefault
		} else {
			switch s.kind {
			case ActionStoreTrue:
				a.Default = false
			case ActionStoreFalse:
				a.Default = true
			case ActionHelp, ActionVersion:
				a.Default = Suppress
			}
		}
	}
	return a, nil
}

// addAction registers a. group is nil for the default positional or
// optional section.
func (p *Parser) addAction(a *Action, group *argumentGroup) error {
	if err := p.checkConflict(a); err != nil {
		return err
	}
	p.actions = append(p.actions, a)
	a.container = p
	for _, o := range a.OptionStrings {
		p.optionActions[o] = a
		p.optionStrings = append(p.optionStrings, o)
		if negativeNumber.MatchString(o) {
			p.hasNegNumOpts = true
		}
	}
	if group == nil {
		group = p.optionals
		if a.isPositional() {
			group = p.positionals
		}
	}
	group.actions = append(group.actions, a)
	return nil
}

func (p *Parser) checkConflict(a *Action) error {
	var conflicts []string
	for _, o := range a.OptionStrings {
		if _, ok := p.optionActions[o]; ok {
			conflicts = append(conflicts, o)
		}
	}
	if len(conflicts) == 0 {
		return nil
	}
	if p.conflictHandler == ConflictResolve {
		for _, o := range conflicts {
			old := p.optionActions[o]
			old.OptionStrings = slices.DeleteFunc(old.OptionStrings, func(s string) bool { return s == o })
			delete(p.optionActions, o)
			p.optionStrings = slices.DeleteFunc(p.optionStrings, func(s string) bool { return s == o })
			if len(old.OptionStrings) == 0 {
				p.removeAction(old)
			}
		}
		return nil
	}
	msg := "conflicting option string: %s"
	if len(conflicts) > 1 {
		msg = "conflicting option strings: %s"
	}
	return newArgumentError(a, msg, strings.Join(conflicts, ", "))
}

func (p *Parser) removeAction(a *Action) {
	drop := func(s []*Action) []*Action {
		return slices.DeleteFunc(s, func(x *Action) bool { return x == a })
	}
	p.actions = drop(p.actions)
	for _, g := range p.groups {
		g.actions = drop(g.actions)
	}
	for _, g := range p.mutexGroups {
		g.actions = drop(g.actions)
	}
}

func (p *Parser) positionalActions() []*Action {
	var out []*Action
	for _, a := range p.actions {
		if a.isPositional() {
			out = append(out, a)
		}
	}
	return out
}

// SetDefault assigns a parser-level default. It overrides the default of an
// existing argument with the same dest and seeds the namespace even when no
// argument stores into dest.
func (p *Parser) SetDefault(dest string, v any) {
	if _, ok := p.defaults[dest]; !ok {
		p.defaultOrder = append(p.defaultOrder, dest)
	}
	p.defaults[dest] = v
	for _, a := range p.actions {
		if a.Dest == dest {
			a.Default = v
		}
	}
}

// GetDefault returns the default for dest, from SetDefault or the argument
// that stores into dest.
func (p *Parser) GetDefault(dest string) any {
	for _, a := range p.actions {
		if a.Dest == dest && a.Default != nil {
			return a.Default
		}
	}
	return p.defaults[dest]
}

// AddValidator registers a check run against the namespace after every
// successful parse of this parser.
func (p *Parser) AddValidator(v Validator) {
	p.validators = append(p.validators, v)
}

// MutuallyExclusiveGroup is a set of optionals of which at most one may be
// given, or exactly one when the group is required.
type MutuallyExclusiveGroup struct {
	parser   *Parser
	required bool
	actions  []*Action
}

// AddMutuallyExclusiveGroup creates a group whose arguments exclude each
// other.
func (p *Parser) AddMutuallyExclusiveGroup(required bool) *MutuallyExclusiveGroup {
	g := &MutuallyExclusiveGroup{parser: p, required: required}
	p.mutexGroups = append(p.mutexGroups, g)
	return g
}

// AddArgument adds an argument to the parser and to the group. Required
// arguments are rejected.
func (g *MutuallyExclusiveGroup) AddArgument(names []string, opts ...ArgumentOption) (*Action, error) {
	a, err := g.parser.newAction(names, opts)
	if err != nil {
		return nil, err
	}
	if a.Required {
		return nil, errors.New("mutually exclusive arguments must be optional")
	}
	if err := g.parser.addAction(a, nil); err != nil {
		return nil, err
	}
	g.actions = append(g.actions, a)
	return a, nil
}

func (g *MutuallyExclusiveGroup) Required() bool { return g.required }

func (g *MutuallyExclusiveGroup) Actions() []*Action { return slices.Clone(g.actions) }

// SetOutput redirects the parser's standard output and error streams and
// returns the previously configured writers. A nil writer inherits from the
// parent parser, or falls back to the process streams for a root parser.
func (p *Parser) SetOutput(stdout, stderr io.Writer) (prevStdout, prevStderr io.Writer) {
	prevStdout, prevStderr = p.stdout, p.stderr
	p.stdout, p.stderr = stdout, stderr
	return prevStdout, prevStderr
}

// Output returns the effective standard output and error writers.
func (p *Parser) Output() (stdout, stderr io.Writer) {
	for q := p; q != nil; q = q.parent {
		if stdout == nil {
			stdout = q.stdout
		}
		if stderr == nil {
			stderr = q.stderr
		}
	}
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return stdout, stderr
}

func writeMessage(w io.Writer, msg string) {
	if msg == "" {
		return
	}
	io.WriteString(w, msg)
}

// PrintHelp writes the help text to standard output.
func (p *Parser) PrintHelp() {
	out, _ := p.Output()
	writeMessage(out, p.FormatHelp())
}

// PrintUsage writes the usage line to standard output.
func (p *Parser) PrintUsage() {
	out, _ := p.Output()
	writeMessage(out, p.FormatUsage())
}

// Exit writes message, if any, to standard error and returns the
// *ExitError that ends the current parse with code. Custom actions return
// its result to stop parsing.
func (p *Parser) Exit(code int, message string) error {
	_, errw := p.Output()
	writeMessage(errw, message)
	return &ExitError{Code: code, Message: message}
}

// Error writes the usage line and "prog: error: message" to standard error
// and returns the *ExitError for ExitUsage.
func (p *Parser) Error(message string) error {
	_, errw := p.Output()
	writeMessage(errw, p.FormatUsage())
	return p.Exit(ExitUsage, fmt.Sprintf("%s: error: %s\n", p.prog, message))
}
