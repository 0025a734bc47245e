// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package argparse

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/term"
)

const (
	indentIncrement = 2
	maxHelpPosition = 24
)

// terminalWidth is the width help text is wrapped to: $COLUMNS, else the
// size of the terminal on standard output, else 80.
func terminalWidth() int {
	if v, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && v > 0 {
		return v
	}
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}

// FormatHelp returns the full help text.
func (p *Parser) FormatHelp() string {
	f := p.newFormatter()
	f.addUsage(p.usage, p.actions, p.mutexGroups, "usage: ")
	f.addText(p.description)
	for _, g := range p.groups {
		f.startSection(g.title)
		f.addText(g.description)
		f.addArguments(g.actions)
		f.endSection()
	}
	f.addText(p.epilog)
	return f.formatHelp()
}

// FormatUsage returns the usage line.
func (p *Parser) FormatUsage() string {
	f := p.newFormatter()
	f.addUsage(p.usage, p.actions, p.mutexGroups, "usage: ")
	return f.formatHelp()
}

// formatter lays out help text. Items are recorded while the parser is
// walked and rendered afterwards so that the help column can depend on the
// widest argument.
type formatter struct {
	prog            string
	width           int
	maxHelpPosition int
	indent          int
	actionMaxLength int

	root    *section
	current *section
}

type section struct {
	f       *formatter
	parent  *section
	heading string
	items   []func() string
}

func (p *Parser) newFormatter() *formatter {
	width := terminalWidth() - 2
	f := &formatter{
		prog:            p.prog,
		width:           width,
		maxHelpPosition: min(maxHelpPosition, max(width-20, indentIncrement*2)),
	}
	f.root = &section{f: f}
	f.current = f.root
	return f
}

func (s *section) format() string {
	f := s.f
	if s.parent != nil {
		f.indent += indentIncrement
	}
	var sb strings.Builder
	for _, item := range s.items {
		sb.WriteString(item())
	}
	if s.parent != nil {
		f.indent -= indentIncrement
	}
	if sb.Len() == 0 {
		return ""
	}
	heading := ""
	if s.heading != "" && s.heading != Suppress {
		heading = fmt.Sprintf("%*s%s:\n", f.indent, "", s.heading)
	}
	return "\n" + heading + sb.String() + "\n"
}

func (f *formatter) add(item func() string) {
	f.current.items = append(f.current.items, item)
}

func (f *formatter) startSection(heading string) {
	f.indent += indentIncrement
	s := &section{f: f, parent: f.current, heading: heading}
	f.add(s.format)
	f.current = s
}

func (f *formatter) endSection() {
	f.current = f.current.parent
	f.indent -= indentIncrement
}

func (f *formatter) addText(text string) {
	if text == "" || text == Suppress {
		return
	}
	f.add(func() string { return f.formatText(text) })
}

func (f *formatter) addUsage(usage string, actions []*Action, groups []*MutuallyExclusiveGroup, prefix string) {
	if usage == Suppress {
		return
	}
	f.add(func() string { return f.formatUsage(usage, actions, groups, prefix) })
}

func (f *formatter) addArguments(actions []*Action) {
	for _, a := range actions {
		f.addArgument(a)
	}
}

func (f *formatter) addArgument(a *Action) {
	if a.Help == Suppress {
		return
	}
	n := runeLen(f.invocation(a))
	for _, sub := range subactions(a) {
		n = max(n, runeLen(f.invocation(sub)))
	}
	f.actionMaxLength = max(f.actionMaxLength, n+f.indent)
	f.add(func() string { return f.formatAction(a) })
}

var longBreak = regexp.MustCompile(`\n\n\n+`)

func (f *formatter) formatHelp() string {
	help := f.root.format()
	if help == "" {
		return ""
	}
	help = longBreak.ReplaceAllString(help, "\n\n")
	return strings.Trim(help, "\n") + "\n"
}

func (f *formatter) formatText(text string) string {
	text = strings.ReplaceAll(text, "%(prog)s", f.prog)
	width := max(f.width-f.indent, 11)
	return fillText(collapseSpace(text), width, strings.Repeat(" ", f.indent)) + "\n\n"
}

func subactions(a *Action) []*Action {
	if a.subparsers == nil {
		return nil
	}
	return a.subparsers.choices
}

func (f *formatter) formatAction(a *Action) string {
	helpPosition := min(f.actionMaxLength+2, f.maxHelpPosition)
	helpWidth := max(f.width-helpPosition, 11)
	actionWidth := helpPosition - f.indent - 2
	header := f.invocation(a)

	var sb strings.Builder
	indentFirst := 0
	switch {
	case a.Help == "":
		fmt.Fprintf(&sb, "%*s%s\n", f.indent, "", header)
	case runeLen(header) <= actionWidth:
		fmt.Fprintf(&sb, "%*s%s%s  ", f.indent, "", header, strings.Repeat(" ", actionWidth-runeLen(header)))
	default:
		fmt.Fprintf(&sb, "%*s%s\n", f.indent, "", header)
		indentFirst = helpPosition
	}
	if strings.TrimSpace(a.Help) != "" {
		lines := wrapLines(collapseSpace(f.expandHelp(a)), helpWidth)
		if len(lines) == 0 {
			lines = []string{""}
		}
		fmt.Fprintf(&sb, "%*s%s\n", indentFirst, "", lines[0])
		for _, line := range lines[1:] {
			fmt.Fprintf(&sb, "%*s%s\n", helpPosition, "", line)
		}
	} else if !strings.HasSuffix(sb.String(), "\n") {
		sb.WriteString("\n")
	}

	f.indent += indentIncrement
	for _, sub := range subactions(a) {
		if sub.Help != Suppress {
			sb.WriteString(f.formatAction(sub))
		}
	}
	f.indent -= indentIncrement
	return sb.String()
}

var helpParam = regexp.MustCompile(`%\((\w+)\)([srd])|%%`)

// expandHelp interpolates %(name)s references to the argument's attributes
// and %(prog)s.
func (f *formatter) expandHelp(a *Action) string {
	params := map[string]any{
		"option_strings": slices.Clone(a.OptionStrings),
		"dest":           a.Dest,
		"const":          a.Const,
		"default":        a.Default,
		"required":       a.Required,
		"help":           a.Help,
		"prog":           f.prog,
	}
	if a.Type != "" {
		params["type"] = string(a.Type)
	} else {
		params["type"] = nil
	}
	switch a.Nargs {
	case "":
		params["nargs"] = nil
	default:
		if n, err := strconv.Atoi(a.Nargs); err == nil {
			params["nargs"] = n
		} else {
			params["nargs"] = a.Nargs
		}
	}
	if a.Metavar != "" {
		params["metavar"] = a.Metavar
	} else {
		params["metavar"] = nil
	}
	if a.Choices != nil {
		parts := make([]string, len(a.Choices))
		for i, c := range a.Choices {
			parts[i] = str(c)
		}
		params["choices"] = strings.Join(parts, ", ")
	} else {
		params["choices"] = nil
	}
	if a.Kind == ActionVersion {
		params["version"] = a.Version
	}
	for k, v := range params {
		if isSuppress(v) {
			delete(params, k)
		}
	}
	return helpParam.ReplaceAllStringFunc(a.Help, func(m string) string {
		if m == "%%" {
			return "%"
		}
		sub := helpParam.FindStringSubmatch(m)
		v, ok := params[sub[1]]
		if !ok {
			return m
		}
		if sub[2] == "r" {
			return repr(v)
		}
		return str(v)
	})
}

// invocation is how an argument is shown in the left column of help.
func (f *formatter) invocation(a *Action) string {
	if a.isPositional() {
		return metavars(a, a.Dest, 1)[0]
	}
	if !a.takesValues() {
		return strings.Join(a.OptionStrings, ", ")
	}
	args := formatArgs(a, strings.ToUpper(a.Dest))
	parts := make([]string, len(a.OptionStrings))
	for i, o := range a.OptionStrings {
		parts[i] = o + " " + args
	}
	return strings.Join(parts, ", ")
}

func metavars(a *Action, def string, n int) []string {
	m := def
	switch {
	case a.Metavar != "":
		m = a.Metavar
	case a.Choices != nil:
		parts := make([]string, len(a.Choices))
		for i, c := range a.Choices {
			parts[i] = str(c)
		}
		m = "{" + strings.Join(parts, ",") + "}"
	}
	return slices.Repeat([]string{m}, n)
}

// formatArgs renders the values an argument takes, e.g. "FILE [FILE ...]".
func formatArgs(a *Action, def string) string {
	m := metavars(a, def, 1)[0]
	switch a.Nargs {
	case "":
		return m
	case NargsOptional:
		return "[" + m + "]"
	case NargsZeroOrMore:
		return "[" + m + " ...]"
	case NargsOneOrMore:
		return m + " [" + m + " ...]"
	case NargsRemainder:
		return "..."
	case nargsParser:
		return m + " ..."
	}
	n, _ := strconv.Atoi(a.Nargs)
	return strings.Join(metavars(a, def, n), " ")
}

var (
	usageOpenSpace  = regexp.MustCompile(`([\[(]) `)
	usageSpaceClose = regexp.MustCompile(` ([\])])`)
	usageEmpty      = regexp.MustCompile(`[\[(] *[\])]`)
)

func (f *formatter) formatUsage(usage string, actions []*Action, groups []*MutuallyExclusiveGroup, prefix string) string {
	prog := f.prog
	switch {
	case usage != "":
		usage = strings.ReplaceAll(usage, "%(prog)s", prog)
	case len(actions) == 0:
		usage = prog
	default:
		var optionals, positionals []*Action
		for _, a := range actions {
			if a.isPositional() {
				positionals = append(positionals, a)
			} else {
				optionals = append(optionals, a)
			}
		}
		actionUsage := formatActionsUsage(slices.Concat(optionals, positionals), groups)
		usage = prog
		if actionUsage != "" {
			usage += " " + actionUsage
		}

		textWidth := f.width - f.indent
		if runeLen(prefix)+runeLen(usage) > textWidth {
			optParts := splitUsageParts(formatActionsUsage(optionals, groups))
			posParts := splitUsageParts(formatActionsUsage(positionals, groups))
			var lines []string
			if float64(runeLen(prefix)+runeLen(prog)) <= 0.75*float64(textWidth) {
				indent := strings.Repeat(" ", runeLen(prefix)+runeLen(prog)+1)
				switch {
				case len(optParts) > 0:
					lines = usageLines(append([]string{prog}, optParts...), indent, prefix, textWidth)
					lines = append(lines, usageLines(posParts, indent, "", textWidth)...)
				case len(posParts) > 0:
					lines = usageLines(append([]string{prog}, posParts...), indent, prefix, textWidth)
				default:
					lines = []string{prog}
				}
			} else {
				indent := strings.Repeat(" ", runeLen(prefix))
				lines = usageLines(slices.Concat(optParts, posParts), indent, "", textWidth)
				if len(lines) > 1 {
					lines = usageLines(optParts, indent, "", textWidth)
					lines = append(lines, usageLines(posParts, indent, "", textWidth)...)
				}
				lines = append([]string{prog}, lines...)
			}
			usage = strings.Join(lines, "\n")
		}
	}
	return prefix + usage + "\n\n"
}

// usageLines packs parts into lines of textWidth. With a prefix, the first
// line is not indented because the prefix precedes it.
func usageLines(parts []string, indent, prefix string, textWidth int) []string {
	var lines, line []string
	n := runeLen(indent) - 1
	if prefix != "" {
		n = runeLen(prefix) - 1
	}
	for _, part := range parts {
		if n+1+runeLen(part) > textWidth && len(line) > 0 {
			lines = append(lines, indent+strings.Join(line, " "))
			line = nil
			n = runeLen(indent) - 1
		}
		line = append(line, part)
		n += runeLen(part) + 1
	}
	if len(line) > 0 {
		lines = append(lines, indent+strings.Join(line, " "))
	}
	if prefix != "" && len(lines) > 0 {
		lines[0] = lines[0][len(indent):]
	}
	return lines
}

// splitUsageParts splits usage text into words, keeping bracketed groups
// such as "[-x X]" or "(-a | -b)" together.
func splitUsageParts(s string) []string {
	isSpace := func(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v' }
	var parts []string
	for i := 0; i < len(s); {
		if isSpace(s[i]) {
			i++
			continue
		}
		if s[i] == '(' || s[i] == '[' {
			if end := bracketEnd(s, i, isSpace); end > 0 {
				parts = append(parts, s[i:end])
				i = end
				continue
			}
		}
		j := i
		for j < len(s) && !isSpace(s[j]) {
			j++
		}
		parts = append(parts, s[i:j])
		i = j
	}
	return parts
}

// bracketEnd finds the shortest run from s[i] through one or more closing
// brackets that is followed by whitespace or the end of s.
func bracketEnd(s string, i int, isSpace func(byte) bool) int {
	closing := byte(')')
	if s[i] == '[' {
		closing = ']'
	}
	for j := i + 1; j < len(s); j++ {
		if s[j] == '\n' {
			return -1
		}
		if s[j] != closing {
			continue
		}
		k := j + 1
		for k < len(s) && s[k] == closing {
			k++
		}
		if k == len(s) || isSpace(s[k]) {
			return k
		}
	}
	return -1
}

// formatActionsUsage renders the usage of actions, bracketing optional
// arguments and marking mutually exclusive groups.
func formatActionsUsage(actions []*Action, groups []*MutuallyExclusiveGroup) string {
	inGroup := make(map[*Action]bool)
	inserts := make(map[int]string)
	addInsert := func(i int, s string) {
		if cur, ok := inserts[i]; ok {
			inserts[i] = cur + " " + s
		} else {
			inserts[i] = s
		}
	}
	for _, g := range groups {
		if len(g.actions) == 0 {
			continue
		}
		start := slices.Index(actions, g.actions[0])
		if start < 0 {
			continue
		}
		end := start + len(g.actions)
		if end > len(actions) || !slices.Equal(actions[start:end], g.actions) {
			continue
		}
		suppressed := 0
		for _, a := range g.actions {
			inGroup[a] = true
			if a.Help == Suppress {
				suppressed++
			}
		}
		exposed := len(g.actions) - suppressed
		switch {
		case !g.required:
			addInsert(start, "[")
			addInsert(end, "]")
		case exposed > 1:
			addInsert(start, "(")
			addInsert(end, ")")
		}
		for i := start + 1; i < end; i++ {
			inserts[i] = "|"
		}
	}

	type part struct {
		text string
		none bool
	}
	parts := make([]part, 0, len(actions))
	for i, a := range actions {
		switch {
		case a.Help == Suppress:
			parts = append(parts, part{none: true})
			if inserts[i] == "|" {
				delete(inserts, i)
			} else if inserts[i+1] == "|" {
				delete(inserts, i+1)
			}
		case a.isPositional():
			s := formatArgs(a, a.Dest)
			if inGroup[a] && strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
				s = s[1 : len(s)-1]
			}
			parts = append(parts, part{text: s})
		default:
			s := a.OptionStrings[0]
			if a.takesValues() {
				s += " " + formatArgs(a, strings.ToUpper(a.Dest))
			}
			if !a.Required && !inGroup[a] {
				s = "[" + s + "]"
			}
			parts = append(parts, part{text: s})
		}
	}

	positions := make([]int, 0, len(inserts))
	for i := range inserts {
		positions = append(positions, i)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(positions)))
	for _, i := range positions {
		parts = slices.Insert(parts, min(i, len(parts)), part{text: inserts[i]})
	}

	var words []string
	for _, p := range parts {
		if !p.none {
			words = append(words, p.text)
		}
	}
	text := strings.Join(words, " ")
	text = usageOpenSpace.ReplaceAllString(text, "$1")
	text = usageSpaceClose.ReplaceAllString(text, "$1")
	text = usageEmpty.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
