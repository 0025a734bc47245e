// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bridge

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/yeetrun/argbridge/pkg/argparse"
	"gopkg.in/yaml.v3"
)

// ParserConfig describes a root parser. Only Prog is required.
//
// A field is applied only when it is meaningful: strings and lists when
// non-empty, booleans whenever they are set, other values when non-nil.
// Everything else is left to the grammar engine's defaults.
type ParserConfig struct {
	Prog                string `json:"prog,omitempty" yaml:"prog,omitempty" toml:"prog,omitempty"`
	Usage               string `json:"usage,omitempty" yaml:"usage,omitempty" toml:"usage,omitempty"`
	Description         string `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Epilog              string `json:"epilog,omitempty" yaml:"epilog,omitempty" toml:"epilog,omitempty"`
	PrefixChars         string `json:"prefix_chars,omitempty" yaml:"prefix_chars,omitempty" toml:"prefix_chars,omitempty"`
	FromfilePrefixChars string `json:"fromfile_prefix_chars,omitempty" yaml:"fromfile_prefix_chars,omitempty" toml:"fromfile_prefix_chars,omitempty"`
	ArgumentDefault     any    `json:"argument_default,omitempty" yaml:"argument_default,omitempty" toml:"argument_default,omitempty"`
	ConflictHandler     string `json:"conflict_handler,omitempty" yaml:"conflict_handler,omitempty" toml:"conflict_handler,omitempty"`
	AddHelp             *bool  `json:"add_help,omitempty" yaml:"add_help,omitempty" toml:"add_help,omitempty"`
	AllowAbbrev         *bool  `json:"allow_abbrev,omitempty" yaml:"allow_abbrev,omitempty" toml:"allow_abbrev,omitempty"`
	ExitOnError         *bool  `json:"exit_on_error,omitempty" yaml:"exit_on_error,omitempty" toml:"exit_on_error,omitempty"`
}

// ArgumentConfig describes one argument. The same meaningful-field rule as
// ParserConfig applies.
type ArgumentConfig struct {
	Action   string `json:"action,omitempty" yaml:"action,omitempty" toml:"action,omitempty"`
	Nargs    Arity  `json:"nargs,omitempty" yaml:"nargs,omitempty" toml:"nargs,omitempty"`
	Const    any    `json:"const,omitempty" yaml:"const,omitempty" toml:"const,omitempty"`
	Default  any    `json:"default,omitempty" yaml:"default,omitempty" toml:"default,omitempty"`
	Type     string `json:"type,omitempty" yaml:"type,omitempty" toml:"type,omitempty"`
	Choices  []any  `json:"choices,omitempty" yaml:"choices,omitempty" toml:"choices,omitempty"`
	Required *bool  `json:"required,omitempty" yaml:"required,omitempty" toml:"required,omitempty"`
	Help     string `json:"help,omitempty" yaml:"help,omitempty" toml:"help,omitempty"`
	Metavar  string `json:"metavar,omitempty" yaml:"metavar,omitempty" toml:"metavar,omitempty"`
	Dest     string `json:"dest,omitempty" yaml:"dest,omitempty" toml:"dest,omitempty"`
	Version  string `json:"version,omitempty" yaml:"version,omitempty" toml:"version,omitempty"`

	// Custom makes the argument a custom action. It cannot be combined with
	// another Action.
	Custom argparse.ActionFunc `json:"-" yaml:"-" toml:"-"`
}

// SubcommandsConfig describes the subcommand group of a parser.
type SubcommandsConfig struct {
	Title       string `json:"title,omitempty" yaml:"title,omitempty" toml:"title,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Prog        string `json:"prog,omitempty" yaml:"prog,omitempty" toml:"prog,omitempty"`
	Dest        string `json:"dest,omitempty" yaml:"dest,omitempty" toml:"dest,omitempty"`
	Required    *bool  `json:"required,omitempty" yaml:"required,omitempty" toml:"required,omitempty"`
	Help        string `json:"help,omitempty" yaml:"help,omitempty" toml:"help,omitempty"`
	Metavar     string `json:"metavar,omitempty" yaml:"metavar,omitempty" toml:"metavar,omitempty"`
}

// SubparserConfig describes a subcommand parser. Prog is optional here and
// defaults to the parent's program name followed by the subcommand name.
type SubparserConfig struct {
	ParserConfig `yaml:",inline"`

	Help string `json:"help,omitempty" yaml:"help,omitempty" toml:"help,omitempty"`
}

// Arity is an nargs value: "?", "*", "+", "..." or a count. Definition
// documents may write a count as a bare number.
type Arity string

func arityOf(v any) (Arity, error) {
	switch x := v.(type) {
	case string:
		return Arity(x), nil
	case int64:
		return Arity(strconv.FormatInt(x, 10)), nil
	case float64:
		if x != float64(int64(x)) {
			return "", fmt.Errorf("nargs must be a whole number, got %v", x)
		}
		return Arity(strconv.FormatInt(int64(x), 10)), nil
	}
	return "", fmt.Errorf("nargs must be a string or a number, got %T", v)
}

func (a *Arity) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	var err error
	*a, err = arityOf(v)
	return err
}

func (a *Arity) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: nargs must be a scalar", n.Line)
	}
	*a = Arity(n.Value)
	return nil
}

func (a *Arity) UnmarshalTOML(v any) error {
	var err error
	*a, err = arityOf(v)
	return err
}

// Bool returns a pointer to v, for the optional boolean fields.
func Bool(v bool) *bool { return &v }

func meaningful(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case []string:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	return true
}
