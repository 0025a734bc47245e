// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rules checks parsed namespaces against CEL expressions.
//
// Every destination whose name is a valid identifier is bound as a variable
// of the same name. The whole namespace is also available as the map ns, so
// destinations filled in by subcommands can be tested with has(ns.name).
package rules

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/google/cel-go/cel"
	"github.com/yeetrun/argbridge/pkg/argparse"
	"tailscale.com/types/lazy"
)

// Rule is one constraint. Expr must evaluate to a bool; Message is reported
// when it is false.
type Rule struct {
	Expr    string `json:"expr" yaml:"expr" toml:"expr"`
	Message string `json:"message,omitempty" yaml:"message,omitempty" toml:"message,omitempty"`
}

type baseEnv struct {
	env *cel.Env
	err error
}

var base lazy.SyncValue[baseEnv]

func baseEnvironment() (*cel.Env, error) {
	b := base.Get(func() baseEnv {
		env, err := cel.NewEnv(cel.Variable("ns", cel.MapType(cel.StringType, cel.DynType)))
		return baseEnv{env, err}
	})
	return b.env, b.err
}

var ident = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// reserved names cannot be declared as variables.
var reserved = map[string]bool{
	"ns": true, "in": true, "as": true, "break": true, "const": true, "continue": true,
	"else": true, "for": true, "function": true, "if": true, "import": true, "let": true,
	"loop": true, "package": true, "namespace": true, "return": true, "var": true,
	"void": true, "while": true, "true": true, "false": true, "null": true,
}

type compiled struct {
	rule Rule
	prg  cel.Program
}

// Set is a compiled list of rules for one parser.
type Set struct {
	vars  []string
	rules []compiled
}

// Compile type-checks rules against the destinations of p.
func Compile(p *argparse.Parser, rules []Rule) (*Set, error) {
	env, err := baseEnvironment()
	if err != nil {
		return nil, err
	}
	s := &Set{}
	var opts []cel.EnvOption
	seen := map[string]bool{}
	for _, a := range p.Actions() {
		d := a.Dest
		if seen[d] || reserved[d] || !ident.MatchString(d) {
			continue
		}
		seen[d] = true
		s.vars = append(s.vars, d)
		opts = append(opts, cel.Variable(d, cel.DynType))
	}
	if len(opts) > 0 {
		if env, err = env.Extend(opts...); err != nil {
			return nil, err
		}
	}
	for _, r := range rules {
		if r.Expr == "" {
			return nil, errors.New("rule with empty expression")
		}
		ast, iss := env.Compile(r.Expr)
		if iss.Err() != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Expr, iss.Err())
		}
		switch t := ast.OutputType().String(); t {
		case "bool", "dyn":
		default:
			return nil, fmt.Errorf("rule %q: result is %s, want bool", r.Expr, t)
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Expr, err)
		}
		s.rules = append(s.rules, compiled{rule: r, prg: prg})
	}
	return s, nil
}

// Len reports the number of rules.
func (s *Set) Len() int { return len(s.rules) }

// Check evaluates every rule in order and returns the message of the first
// one that does not hold.
func (s *Set) Check(ns *argparse.Namespace) error {
	vars := map[string]any{"ns": ns.Map()}
	for _, v := range s.vars {
		val, _ := ns.Get(v)
		vars[v] = val
	}
	for _, c := range s.rules {
		out, _, err := c.prg.Eval(vars)
		if err != nil {
			return fmt.Errorf("rule %q: %v", c.rule.Expr, err)
		}
		ok, isBool := out.Value().(bool)
		if !isBool {
			return fmt.Errorf("rule %q: result is %s, want bool", c.rule.Expr, out.Type().TypeName())
		}
		if !ok {
			if c.rule.Message != "" {
				return errors.New(c.rule.Message)
			}
			return fmt.Errorf("rule %q does not hold", c.rule.Expr)
		}
	}
	return nil
}

// Attach compiles rules and installs them as a validator on p, so that a
// rule that does not hold fails the parse like any other usage error.
func Attach(p *argparse.Parser, rules []Rule) error {
	if len(rules) == 0 {
		return nil
	}
	s, err := Compile(p, rules)
	if err != nil {
		return err
	}
	p.AddValidator(s.Check)
	return nil
}
