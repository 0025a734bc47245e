// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package argparse

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"

	"tailscale.com/util/set"
)

// Parse parses args (without the program name) and returns the resulting
// namespace. Arguments that no part of the grammar accepts are an error.
//
// When the grammar requests an exit (help, version, usage errors) the text
// has already been written to the parser's output streams and the returned
// error is an *ExitError.
func (p *Parser) Parse(args []string) (*Namespace, error) {
	return p.run(func() *Namespace {
		ns, extras := p.parseKnown(args, nil)
		if len(extras) > 0 {
			p.fail(&ArgumentError{Message: "unrecognized arguments: " + strings.Join(extras, " ")})
		}
		return ns
	})
}

// ParseKnown is like Parse but returns unrecognized arguments instead of
// failing on them.
func (p *Parser) ParseKnown(args []string) (ns *Namespace, extras []string, err error) {
	ns, err = p.run(func() *Namespace {
		n, e := p.parseKnown(args, nil)
		extras = e
		return n
	})
	if err != nil {
		return nil, nil, err
	}
	return ns, extras, nil
}

// ParseArgs parses args like Parse and terminates the process with the
// requested status when the grammar asks to exit. Only argument errors of a
// parser created with WithExitOnError(false) are returned.
func (p *Parser) ParseArgs(args []string) (*Namespace, error) {
	ns, err := p.Parse(args)
	var exit *ExitError
	if errors.As(err, &exit) {
		os.Exit(exit.Code)
	}
	return ns, err
}

func (p *Parser) run(fn func() *Namespace) (ns *Namespace, err error) {
	defer func() {
		if r := recover(); r != nil {
			a, ok := r.(abort)
			if !ok {
				panic(r)
			}
			ns, err = nil, a.err
		}
	}()
	return fn(), nil
}

// fail ends the parse with an argument error, reported according to the
// parser's exit-on-error setting.
func (p *Parser) fail(err *ArgumentError) {
	if p.exitOnError {
		raise(p.Error(err.Error()))
	}
	raise(err)
}

func isSuppress(v any) bool {
	s, ok := v.(string)
	return ok && s == Suppress
}

func (p *Parser) parseKnown(args []string, ns *Namespace) (*Namespace, []string) {
	if ns == nil {
		ns = NewNamespace()
	}
	for _, a := range p.actions {
		if a.Dest != Suppress && !ns.Has(a.Dest) && !isSuppress(a.Default) {
			ns.Set(a.Dest, a.Default)
		}
	}
	for _, dest := range p.defaultOrder {
		if !ns.Has(dest) {
			ns.Set(dest, p.defaults[dest])
		}
	}

	if p.exitOnError {
		defer func() {
			if r := recover(); r != nil {
				var ae *ArgumentError
				if a, ok := r.(abort); ok && errors.As(a.err, &ae) {
					raise(p.Error(ae.Error()))
				}
				panic(r)
			}
		}()
	}
	st := &parseState{
		p:              p,
		ns:             ns,
		seen:           make(set.Set[*Action]),
		seenNonDefault: make(set.Set[*Action]),
	}
	extras := st.parse(args)
	return ns, append(extras, st.unrecognized...)
}

type optionTuple struct {
	action       *Action
	optionString string
	explicit     string
	hasExplicit  bool
}

// parseState is the bookkeeping of one parser level during a parse.
type parseState struct {
	p    *Parser
	ns   *Namespace
	args []string

	// pattern classifies each argument: 'O' optional, 'A' argument, '-' for
	// the "--" separator.
	pattern     string
	options     map[int]optionTuple
	conflicts   map[*Action][]*Action
	positionals []*Action

	seen           set.Set[*Action]
	seenNonDefault set.Set[*Action]
	extras         []string
	unrecognized   []string
}

func (st *parseState) parse(args []string) []string {
	p := st.p
	if p.fromfilePrefixChars != "" {
		args = p.readArgsFromFiles(args)
	}
	st.args = args

	st.conflicts = make(map[*Action][]*Action)
	for _, g := range p.mutexGroups {
		for i, a := range g.actions {
			st.conflicts[a] = append(st.conflicts[a], g.actions[:i]...)
			st.conflicts[a] = append(st.conflicts[a], g.actions[i+1:]...)
		}
	}

	st.options = make(map[int]optionTuple)
	var pattern strings.Builder
	for i := 0; i < len(args); i++ {
		if args[i] == "--" {
			pattern.WriteByte('-')
			for i++; i < len(args); i++ {
				pattern.WriteByte('A')
			}
			break
		}
		if opt, ok := p.parseOptional(args[i]); ok {
			st.options[i] = opt
			pattern.WriteByte('O')
		} else {
			pattern.WriteByte('A')
		}
	}
	st.pattern = pattern.String()
	st.positionals = p.positionalActions()

	maxOption := -1
	for i := range st.options {
		maxOption = max(maxOption, i)
	}
	start := 0
	for start <= maxOption {
		next := maxOption
		for i := range st.options {
			if i >= start && i < next {
				next = i
			}
		}
		if start != next {
			end := st.consumePositionals(start)
			if end > start {
				start = end
				continue
			}
			start = end
		}
		if _, ok := st.options[start]; !ok {
			st.extras = append(st.extras, args[start:next]...)
			start = next
		}
		start = st.consumeOptional(start)
	}
	stop := st.consumePositionals(start)
	st.extras = append(st.extras, args[stop:]...)

	var required []string
	for _, a := range p.actions {
		if st.seen.Contains(a) {
			continue
		}
		if a.Required {
			required = append(required, actionName(a))
			continue
		}
		// String defaults go through the argument's type like values from
		// the command line.
		if def, ok := a.Default.(string); ok && def != Suppress && a.Dest != Suppress {
			if cur, ok := st.ns.Get(a.Dest); ok {
				if s, ok := cur.(string); ok && s == def {
					st.ns.Set(a.Dest, p.getValue(a, def))
				}
			}
		}
	}
	if len(required) > 0 {
		raise(&ArgumentError{Message: "the following arguments are required: " + strings.Join(required, ", ")})
	}

	for _, g := range p.mutexGroups {
		if !g.required || slices.ContainsFunc(g.actions, st.seenNonDefault.Contains) {
			continue
		}
		var names []string
		for _, a := range g.actions {
			if a.Help != Suppress {
				names = append(names, actionName(a))
			}
		}
		raise(&ArgumentError{Message: "one of the arguments " + strings.Join(names, " ") + " is required"})
	}

	for _, v := range p.validators {
		if err := v(st.ns); err != nil {
			raise(asParseError(nil, err))
		}
	}
	return st.extras
}

// asParseError classifies an error returned by user code during a parse.
func asParseError(a *Action, err error) error {
	var exit *ExitError
	var ae *ArgumentError
	switch {
	case errors.As(err, &exit):
		return exit
	case errors.As(err, &ae):
		return ae
	case a == nil:
		return &ArgumentError{Message: err.Error()}
	default:
		return newArgumentError(a, "%v", err)
	}
}

func (st *parseState) consumePositionals(start int) int {
	counts := st.p.matchArgumentsPartial(st.positionals, st.pattern[start:])
	for i, n := range counts {
		st.takeAction(st.positionals[i], slices.Clone(st.args[start:start+n]), "")
		start += n
	}
	st.positionals = st.positionals[len(counts):]
	return start
}

func (st *parseState) consumeOptional(start int) int {
	type pending struct {
		action       *Action
		args         []string
		optionString string
	}
	opt := st.options[start]
	a, optionString := opt.action, opt.optionString
	explicit, hasExplicit := opt.explicit, opt.hasExplicit

	var todo []pending
	var stop int
	for {
		if a == nil {
			st.extras = append(st.extras, st.args[start])
			return start + 1
		}
		if !hasExplicit {
			from := start + 1
			n := st.p.matchArgument(a, st.pattern[from:])
			stop = from + n
			todo = append(todo, pending{a, slices.Clone(st.args[from:stop]), optionString})
			break
		}
		n := st.p.matchArgument(a, "A")
		if n == 0 && len(optionString) > 1 && !st.p.isPrefix(optionString[1]) && explicit != "" {
			// Clustered short flags: -xyz is -x -y -z when -x takes no value.
			todo = append(todo, pending{a, nil, optionString})
			optionString = optionString[:1] + explicit[:1]
			next, ok := st.p.optionActions[optionString]
			if !ok {
				raise(newArgumentError(a, "ignored explicit argument %s", repr(explicit)))
			}
			a = next
			explicit = explicit[1:]
			hasExplicit = explicit != ""
			continue
		}
		if n == 1 {
			stop = start + 1
			todo = append(todo, pending{a, []string{explicit}, optionString})
			break
		}
		raise(newArgumentError(a, "ignored explicit argument %s", repr(explicit)))
	}
	for _, t := range todo {
		st.takeAction(t.action, t.args, t.optionString)
	}
	return stop
}

func (st *parseState) takeAction(a *Action, argStrings []string, optionString string) {
	st.seen.Add(a)
	values, fromDefault := st.p.getValues(a, argStrings)
	if !fromDefault && !(values == nil && a.Default == nil) {
		st.seenNonDefault.Add(a)
		for _, c := range st.conflicts[a] {
			if st.seenNonDefault.Contains(c) {
				raise(newArgumentError(a, "not allowed with argument %s", actionName(c)))
			}
		}
	}
	if isSuppress(values) {
		return
	}
	if err := a.invoke(st.p, st, st.ns, values, optionString); err != nil {
		raise(asParseError(a, err))
	}
}

// getValues converts the argument strings consumed by a. fromDefault
// reports that the result is the argument's default rather than something
// derived from the command line.
func (p *Parser) getValues(a *Action, args []string) (value any, fromDefault bool) {
	if a.Nargs != nargsParser && a.Nargs != NargsRemainder {
		if i := slices.Index(args, "--"); i >= 0 {
			args = slices.Delete(args, i, i+1)
		}
	}
	switch {
	case len(args) == 0 && a.Nargs == NargsOptional:
		if a.isPositional() {
			value, fromDefault = a.Default, true
		} else {
			value = a.Const
		}
		if s, ok := value.(string); ok {
			value = p.getValue(a, s)
			p.checkValue(a, value)
		}
		return value, fromDefault
	case len(args) == 0 && a.Nargs == NargsZeroOrMore && a.isPositional():
		if a.Default != nil {
			return a.Default, true
		}
		return []any{}, false
	case len(args) == 1 && (a.Nargs == "" || a.Nargs == NargsOptional):
		value = p.getValue(a, args[0])
		p.checkValue(a, value)
		return value, false
	}
	values := make([]any, len(args))
	for i, s := range args {
		values[i] = p.getValue(a, s)
	}
	switch a.Nargs {
	case NargsRemainder:
	case nargsParser:
		p.checkValue(a, values[0])
	default:
		for _, v := range values {
			p.checkValue(a, v)
		}
	}
	return values, false
}

func (p *Parser) getValue(a *Action, s string) any {
	v, err := a.Type.convert(s)
	if err != nil {
		raise(newArgumentError(a, "invalid %s value: %s", a.Type, repr(s)))
	}
	return v
}

func (p *Parser) checkValue(a *Action, v any) {
	if a.Choices == nil || containsValue(a.Choices, v) {
		return
	}
	choices := make([]string, len(a.Choices))
	for i, c := range a.Choices {
		choices[i] = repr(c)
	}
	raise(newArgumentError(a, "invalid choice: %s (choose from %s)", repr(v), strings.Join(choices, ", ")))
}

var nargsRegexps sync.Map // pattern string -> *regexp.Regexp

func compileNargs(pattern string) *regexp.Regexp {
	if re, ok := nargsRegexps.Load(pattern); ok {
		return re.(*regexp.Regexp)
	}
	re := regexp.MustCompile("^" + pattern)
	nargsRegexps.Store(pattern, re)
	return re
}

// nargsPattern returns the regular expression, over the argument pattern
// alphabet, that a's arity accepts.
func nargsPattern(a *Action) string {
	var pat string
	switch a.Nargs {
	case "":
		pat = "(-*A-*)"
	case NargsOptional:
		pat = "(-*A?-*)"
	case NargsZeroOrMore:
		pat = "(-*[A-]*)"
	case NargsOneOrMore:
		pat = "(-*A[A-]*)"
	case NargsRemainder:
		pat = "([-AO]*)"
	case nargsParser:
		pat = "(-*A[-AO]*)"
	default:
		n, _ := strconv.Atoi(a.Nargs)
		pat = "(-*" + strings.Join(slices.Repeat([]string{"A"}, n), "-*") + "-*)"
	}
	if !a.isPositional() {
		pat = strings.ReplaceAll(pat, "-*", "")
		pat = strings.ReplaceAll(pat, "-", "")
	}
	return pat
}

func (p *Parser) matchArgument(a *Action, pattern string) int {
	m := compileNargs(nargsPattern(a)).FindStringSubmatch(pattern)
	if m != nil {
		return len(m[1])
	}
	var msg string
	switch a.Nargs {
	case "":
		msg = "expected one argument"
	case NargsOptional:
		msg = "expected at most one argument"
	case NargsOneOrMore:
		msg = "expected at least one argument"
	case "1":
		msg = "expected 1 argument"
	default:
		msg = fmt.Sprintf("expected %s arguments", a.Nargs)
	}
	raise(newArgumentError(a, "%s", msg))
	return 0
}

// matchArgumentsPartial matches as many leading positionals as possible
// against pattern and returns the number of strings each one consumes.
func (p *Parser) matchArgumentsPartial(actions []*Action, pattern string) []int {
	for i := len(actions); i > 0; i-- {
		var sb strings.Builder
		for _, a := range actions[:i] {
			sb.WriteString(nargsPattern(a))
		}
		m := compileNargs(sb.String()).FindStringSubmatch(pattern)
		if m == nil {
			continue
		}
		counts := make([]int, i)
		for j := range counts {
			counts[j] = len(m[j+1])
		}
		return counts
	}
	return nil
}

// parseOptional classifies arg. It reports false for arguments that are
// positional values. A returned tuple with a nil action is an option-like
// string that matches nothing.
func (p *Parser) parseOptional(arg string) (optionTuple, bool) {
	if arg == "" || !p.isPrefix(arg[0]) {
		return optionTuple{}, false
	}
	if a, ok := p.optionActions[arg]; ok {
		return optionTuple{action: a, optionString: arg}, true
	}
	if len(arg) == 1 {
		return optionTuple{}, false
	}
	if name, explicit, ok := strings.Cut(arg, "="); ok {
		if a, ok := p.optionActions[name]; ok {
			return optionTuple{action: a, optionString: name, explicit: explicit, hasExplicit: true}, true
		}
	}
	tuples := p.optionTuples(arg)
	if len(tuples) > 1 {
		names := make([]string, len(tuples))
		for i, t := range tuples {
			names[i] = t.optionString
		}
		raise(&ArgumentError{Message: fmt.Sprintf("ambiguous option: %s could match %s", arg, strings.Join(names, ", "))})
	}
	if len(tuples) == 1 {
		return tuples[0], true
	}
	if negativeNumber.MatchString(arg) && !p.hasNegNumOpts {
		return optionTuple{}, false
	}
	if strings.Contains(arg, " ") {
		return optionTuple{}, false
	}
	return optionTuple{optionString: arg}, true
}

// optionTuples finds the registered options arg could abbreviate.
func (p *Parser) optionTuples(arg string) []optionTuple {
	var out []optionTuple
	switch {
	case p.isPrefix(arg[0]) && p.isPrefix(arg[1]):
		if !p.allowAbbrev {
			return nil
		}
		prefix, explicit, hasExplicit := strings.Cut(arg, "=")
		for _, o := range p.optionStrings {
			if strings.HasPrefix(o, prefix) {
				out = append(out, optionTuple{p.optionActions[o], o, explicit, hasExplicit})
			}
		}
	default:
		short, shortExplicit := arg[:2], arg[2:]
		for _, o := range p.optionStrings {
			switch {
			case o == short:
				out = append(out, optionTuple{p.optionActions[o], o, shortExplicit, true})
			case strings.HasPrefix(o, arg):
				out = append(out, optionTuple{action: p.optionActions[o], optionString: o})
			}
		}
	}
	return out
}

// readArgsFromFiles replaces each argument that starts with a fromfile
// prefix character with the lines of the file it names, recursively.
func (p *Parser) readArgsFromFiles(args []string) []string {
	var out []string
	for _, arg := range args {
		if arg == "" || !strings.ContainsRune(p.fromfilePrefixChars, rune(arg[0])) {
			out = append(out, arg)
			continue
		}
		data, err := os.ReadFile(arg[1:])
		if err != nil {
			raise(&ArgumentError{Message: err.Error()})
		}
		out = append(out, p.readArgsFromFiles(splitLines(string(data)))...)
	}
	return out
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
