// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loader

import (
	"strconv"

	"github.com/yeetrun/argbridge/pkg/bridge"
	lua "github.com/yuin/gopher-lua"
	"tailscale.com/util/set"
)

// fields reads configuration keys out of a Lua table and rejects keys that
// nothing read.
type fields struct {
	L    *lua.LState
	tbl  *lua.LTable
	fn   string
	used set.Set[string]
}

func newFields(L *lua.LState, tbl *lua.LTable, fn string) *fields {
	return &fields{L: L, tbl: tbl, fn: fn, used: make(set.Set[string])}
}

func (f *fields) get(key string) lua.LValue {
	f.used.Add(key)
	return f.tbl.RawGetString(key)
}

func (f *fields) str(key string) string {
	switch v := f.get(key).(type) {
	case lua.LString:
		return string(v)
	case lua.LNumber:
		return v.String()
	case *lua.LNilType:
		return ""
	default:
		f.L.RaiseError("%s: %s must be a string, got %s", f.fn, key, v.Type())
		return ""
	}
}

func (f *fields) boolp(key string) *bool {
	switch v := f.get(key).(type) {
	case lua.LBool:
		return bridge.Bool(bool(v))
	case *lua.LNilType:
		return nil
	default:
		f.L.RaiseError("%s: %s must be a boolean, got %s", f.fn, key, v.Type())
		return nil
	}
}

func (f *fields) value(key string) any {
	return toGo(f.get(key))
}

func (f *fields) list(key string) []any {
	switch v := f.get(key).(type) {
	case *lua.LTable:
		out := make([]any, 0, v.Len())
		for i := 1; i <= v.Len(); i++ {
			out = append(out, toGo(v.RawGetInt(i)))
		}
		return out
	case *lua.LNilType:
		return nil
	default:
		f.L.RaiseError("%s: %s must be a list, got %s", f.fn, key, v.Type())
		return nil
	}
}

// done raises an error for the first key that was never read.
func (f *fields) done() {
	var unknown string
	f.tbl.ForEach(func(k, _ lua.LValue) {
		ks, ok := k.(lua.LString)
		if !ok {
			if unknown == "" {
				unknown = k.String()
			}
			return
		}
		if !f.used.Contains(string(ks)) && unknown == "" {
			unknown = string(ks)
		}
	})
	if unknown != "" {
		f.L.RaiseError("%s: unknown field %s", f.fn, strconv.Quote(unknown))
	}
}

func (f *fields) parserConfig() bridge.ParserConfig {
	return bridge.ParserConfig{
		Prog:                f.str("prog"),
		Usage:               f.str("usage"),
		Description:         f.str("description"),
		Epilog:              f.str("epilog"),
		PrefixChars:         f.str("prefix_chars"),
		FromfilePrefixChars: f.str("fromfile_prefix_chars"),
		ArgumentDefault:     f.value("argument_default"),
		ConflictHandler:     f.str("conflict_handler"),
		AddHelp:             f.boolp("add_help"),
		AllowAbbrev:         f.boolp("allow_abbrev"),
		ExitOnError:         f.boolp("exit_on_error"),
	}
}

func (f *fields) argumentConfig() bridge.ArgumentConfig {
	return bridge.ArgumentConfig{
		Action:   f.str("action"),
		Nargs:    bridge.Arity(f.str("nargs")),
		Const:    f.value("const"),
		Default:  f.value("default"),
		Type:     f.str("type"),
		Choices:  f.list("choices"),
		Required: f.boolp("required"),
		Help:     f.str("help"),
		Metavar:  f.str("metavar"),
		Dest:     f.str("dest"),
		Version:  f.str("version"),
	}
}
