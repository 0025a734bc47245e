// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"
	"github.com/yeetrun/argbridge/pkg/argparse"
	"github.com/yeetrun/argbridge/pkg/bridge"
	"github.com/yeetrun/argbridge/pkg/rules"
	"gopkg.in/yaml.v3"
)

// APIVersions is the range of document api_version values this loader
// understands.
const APIVersions = ">= 1.0.0, < 2.0.0"

var supportedVersions = func() *semver.Constraints {
	c, err := semver.NewConstraint(APIVersions)
	if err != nil {
		panic(err)
	}
	return c
}()

// Document is a declarative definition file. Parsers maps factory names to
// root parser definitions.
type Document struct {
	APIVersion string                `json:"api_version" yaml:"api_version" toml:"api_version"`
	Parsers    map[string]*ParserDef `json:"parsers" yaml:"parsers" toml:"parsers"`
}

// ParserDef is a root parser. Prog defaults to the factory name.
type ParserDef struct {
	bridge.ParserConfig `yaml:",inline"`
	Body                `yaml:",inline"`
}

// Body holds what can be attached to any parser.
type Body struct {
	Arguments   []ArgumentDef   `json:"arguments,omitempty" yaml:"arguments,omitempty" toml:"arguments,omitempty"`
	Groups      []GroupDef      `json:"groups,omitempty" yaml:"groups,omitempty" toml:"groups,omitempty"`
	Subcommands *SubcommandsDef `json:"subcommands,omitempty" yaml:"subcommands,omitempty" toml:"subcommands,omitempty"`
	Defaults    map[string]any  `json:"defaults,omitempty" yaml:"defaults,omitempty" toml:"defaults,omitempty"`
	Rules       []rules.Rule    `json:"rules,omitempty" yaml:"rules,omitempty" toml:"rules,omitempty"`
}

// ArgumentDef is one argument and the names or flags it answers to.
type ArgumentDef struct {
	Names                 []string `json:"names" yaml:"names" toml:"names"`
	bridge.ArgumentConfig `yaml:",inline"`
}

// GroupDef is a mutually exclusive group.
type GroupDef struct {
	Required  bool          `json:"required,omitempty" yaml:"required,omitempty" toml:"required,omitempty"`
	Arguments []ArgumentDef `json:"arguments" yaml:"arguments" toml:"arguments"`
}

// SubcommandsDef is the subcommand group of a parser.
type SubcommandsDef struct {
	bridge.SubcommandsConfig `yaml:",inline"`
	Parsers                  []SubparserDef `json:"parsers" yaml:"parsers" toml:"parsers"`
}

// SubparserDef is one subcommand.
type SubparserDef struct {
	Name                   string   `json:"name" yaml:"name" toml:"name"`
	Aliases                []string `json:"aliases,omitempty" yaml:"aliases,omitempty" toml:"aliases,omitempty"`
	bridge.SubparserConfig `yaml:",inline"`
	Body                   `yaml:",inline"`
}

func decodeDocument(data []byte, ext string) (*Document, error) {
	doc := new(Document)
	switch ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(doc); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), doc)
		if err != nil {
			return nil, fmt.Errorf("decode toml: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("decode toml: unknown field %q", undecoded[0].String())
		}
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		dec.UseNumber()
		if err := dec.Decode(doc); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported document type %q", ext)
	}
	if err := doc.check(); err != nil {
		return nil, err
	}
	doc.normalize()
	return doc, nil
}

func (d *Document) check() error {
	if d.APIVersion == "" {
		return errors.New("api_version is required")
	}
	v, err := semver.NewVersion(d.APIVersion)
	if err != nil {
		return fmt.Errorf("api_version %q: %w", d.APIVersion, err)
	}
	if !supportedVersions.Check(v) {
		return fmt.Errorf("api_version %s is not supported (want %s)", v, APIVersions)
	}
	if len(d.Parsers) == 0 {
		return errors.New("document defines no parsers")
	}
	return nil
}

// Factories returns the parser names the document defines, sorted.
func (d *Document) Factories() []string {
	names := make([]string, 0, len(d.Parsers))
	for n := range d.Parsers {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Build constructs the parser defined under factory.
func (d *Document) Build(factory string) (*argparse.Parser, error) {
	def, ok := d.Parsers[factory]
	if !ok || def == nil {
		return nil, fmt.Errorf("factory %q is not defined (have %s)", factory, strings.Join(d.Factories(), ", "))
	}
	cfg := def.ParserConfig
	if cfg.Prog == "" {
		cfg.Prog = factory
	}
	p, err := bridge.CreateParser(cfg)
	if err != nil {
		return nil, err
	}
	if err := def.Body.apply(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (b *Body) apply(p *argparse.Parser) error {
	for _, a := range b.Arguments {
		if _, err := bridge.AddArgument(p, a.Names, a.ArgumentConfig); err != nil {
			return err
		}
	}
	for _, g := range b.Groups {
		grp := bridge.AddMutuallyExclusiveGroup(p, g.Required)
		for _, a := range g.Arguments {
			if _, err := grp.AddArgument(a.Names, a.ArgumentConfig); err != nil {
				return err
			}
		}
	}
	if sc := b.Subcommands; sc != nil {
		_, sp, err := bridge.AddSubcommands(p, sc.SubcommandsConfig)
		if err != nil {
			return err
		}
		for _, s := range sc.Parsers {
			child, err := bridge.AddParser(sp, s.Name, s.Aliases, s.SubparserConfig)
			if err != nil {
				return err
			}
			if err := s.Body.apply(child); err != nil {
				return err
			}
		}
	}
	keys := make([]string, 0, len(b.Defaults))
	for k := range b.Defaults {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		p.SetDefault(k, b.Defaults[k])
	}
	if err := rules.Attach(p, b.Rules); err != nil {
		return fmt.Errorf("%s: %w", p.Prog(), err)
	}
	return nil
}

// normalize converts decoder specific numbers to int or float64, the
// representations the grammar engine compares and prints.
func (d *Document) normalize() {
	for _, def := range d.Parsers {
		if def == nil {
			continue
		}
		def.ArgumentDefault = number(def.ArgumentDefault)
		def.Body.normalize()
	}
}

func (b *Body) normalize() {
	args := func(list []ArgumentDef) {
		for i := range list {
			a := &list[i].ArgumentConfig
			a.Const = number(a.Const)
			a.Default = number(a.Default)
			for j, c := range a.Choices {
				a.Choices[j] = number(c)
			}
		}
	}
	args(b.Arguments)
	for _, g := range b.Groups {
		args(g.Arguments)
	}
	for k, v := range b.Defaults {
		b.Defaults[k] = number(v)
	}
	if b.Subcommands != nil {
		for i := range b.Subcommands.Parsers {
			s := &b.Subcommands.Parsers[i]
			s.ArgumentDefault = number(s.ArgumentDefault)
			s.Body.normalize()
		}
	}
}

func number(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := strconv.Atoi(x.String()); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case int64:
		return int(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = number(e)
		}
		return out
	case map[string]any:
		for k, e := range x {
			x[k] = number(e)
		}
		return x
	}
	return v
}
