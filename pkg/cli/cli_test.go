// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cli

import (
	"reflect"
	"strings"
	"testing"
)

func TestParseParseFlagsAndArgs(t *testing.T) {
	args := []string{
		"parse",
		"--factory", "lvcli",
		"--format", "yaml",
		"--line", "create vol0",
		"defs/lvcli.lua",
	}
	flags, def, err := ParseParse(args)
	if err != nil {
		t.Fatalf("ParseParse failed: %v", err)
	}
	want := ParseFlags{Factory: "lvcli", Format: "yaml", Line: "create vol0"}
	if flags != want {
		t.Errorf("flags = %+v, want %+v", flags, want)
	}
	if def != "defs/lvcli.lua" {
		t.Errorf("def = %q, want %q", def, "defs/lvcli.lua")
	}
}

func TestParseParseAlias(t *testing.T) {
	_, def, err := ParseParse([]string{"p", "d.yaml"})
	if err != nil {
		t.Fatalf("ParseParse failed: %v", err)
	}
	if def != "d.yaml" {
		t.Errorf("def = %q, want %q", def, "d.yaml")
	}
}

func TestParseArgCounts(t *testing.T) {
	tests := []struct {
		name string
		run  func() error
		want string
	}{
		{
			name: "parse without definition",
			run:  func() error { _, _, err := ParseParse([]string{"parse"}); return err },
			want: "'parse' requires 1 argument(s), got 0",
		},
		{
			name: "check with two definitions",
			run:  func() error { _, _, err := ParseCheck([]string{"check", "a", "b"}); return err },
			want: "'check' requires 1 argument(s), got 2",
		},
		{
			name: "serve with argument",
			run:  func() error { _, err := ParseServe([]string{"serve", "x"}); return err },
			want: "'serve' takes no arguments",
		},
		{
			name: "call without name",
			run:  func() error { _, _, err := ParseCall([]string{"call", "--server", "http://h"}); return err },
			want: "'call' requires 1 argument(s), got 0",
		},
		{
			name: "compress without definition",
			run:  func() error { _, err := ParseCompress([]string{"compress"}); return err },
			want: "'compress' requires 1 argument(s), got 0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestParseCallAndList(t *testing.T) {
	flags, name, err := ParseCall([]string{"call", "--server", "http://h:1", "lvcli"})
	if err != nil {
		t.Fatalf("ParseCall failed: %v", err)
	}
	if flags.Server != "http://h:1" || name != "lvcli" {
		t.Errorf("ParseCall = %+v, %q", flags, name)
	}
	lf, err := ParseList([]string{"ls", "--server", "http://h:2"})
	if err != nil {
		t.Fatalf("ParseList failed: %v", err)
	}
	if lf.Server != "http://h:2" {
		t.Errorf("Server = %q, want %q", lf.Server, "http://h:2")
	}
}

func TestSplitAtDoubleDash(t *testing.T) {
	tests := []struct {
		in        []string
		cli, rest []string
	}{
		{in: []string{"parse", "d.lua"}, cli: []string{"parse", "d.lua"}},
		{in: []string{"parse", "d.lua", "--", "-h"}, cli: []string{"parse", "d.lua"}, rest: []string{"-h"}},
		{in: []string{"parse", "--", "a", "--", "b"}, cli: []string{"parse"}, rest: []string{"a", "--", "b"}},
		{in: []string{"parse", "--"}, cli: []string{"parse"}, rest: []string{}},
	}
	for _, tt := range tests {
		cli, rest := SplitAtDoubleDash(tt.in)
		if !reflect.DeepEqual(cli, tt.cli) {
			t.Errorf("SplitAtDoubleDash(%q) cli = %q, want %q", tt.in, cli, tt.cli)
		}
		if !reflect.DeepEqual(rest, tt.rest) {
			t.Errorf("SplitAtDoubleDash(%q) rest = %q, want %q", tt.in, rest, tt.rest)
		}
	}
}

func TestHelpConfigCoversCommands(t *testing.T) {
	hc := HelpConfig()
	for _, name := range CommandNames() {
		info, ok := hc.SubCommands[name]
		if !ok {
			t.Errorf("help config missing %q", name)
			continue
		}
		if info.Description == "" {
			t.Errorf("%q has no description", name)
		}
	}
}
