// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/yeetrun/argbridge/pkg/argparse"
	"github.com/yeetrun/argbridge/pkg/bridge"
	"github.com/yeetrun/argbridge/pkg/rules"
	lua "github.com/yuin/gopher-lua"
)

// ModuleName is what a definition script passes to require.
const ModuleName = "argbridge"

const (
	parserType     = "argbridge.parser"
	subparsersType = "argbridge.subparsers"
	groupType      = "argbridge.group"
)

// session is the state of one script execution. The first Go error raised
// by a binding is kept so it can be returned with its type intact.
type session struct {
	err error
}

func (s *session) fail(L *lua.LState, err error) int {
	if s.err == nil {
		s.err = err
	}
	L.RaiseError("%v", err)
	return 0
}

// runLua executes src in a fresh state and calls its factory function.
func runLua(name string, src []byte, factory string, timeout time.Duration) (*argparse.Parser, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	L.SetContext(ctx)

	if err := openSandbox(L); err != nil {
		return nil, err
	}
	s := &session{}
	s.register(L)

	chunk, err := L.Load(bytes.NewReader(src), name)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	L.Push(chunk)
	if err := L.PCall(0, 0, nil); err != nil {
		return nil, s.wrap("run", err)
	}

	fn, ok := L.GetGlobal(factory).(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("factory %q is not a function", factory)
	}
	L.Push(fn)
	if err := L.PCall(0, 1, nil); err != nil {
		return nil, s.wrap(factory, err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	if ud, ok := ret.(*lua.LUserData); ok {
		if p, ok := ud.Value.(*argparse.Parser); ok {
			return p, nil
		}
	}
	return nil, fmt.Errorf("factory %q returned %s, want a parser", factory, ret.Type())
}

func (s *session) wrap(where string, err error) error {
	if s.err != nil {
		return s.err
	}
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) && apiErr.Type == lua.ApiErrorRun {
		return fmt.Errorf("%s: %s", where, apiErr.Object.String())
	}
	return fmt.Errorf("%s: %w", where, err)
}

// openSandbox loads the libraries a definition may use. Nothing that touches
// the file system, the process or the environment is available.
func openSandbox(L *lua.LState) error {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := L.CallByParam(lua.P{Fn: L.NewFunction(lib.fn), NRet: 0, Protect: true}, lua.LString(lib.name)); err != nil {
			return fmt.Errorf("open %s: %w", lib.name, err)
		}
	}
	for _, g := range []string{"dofile", "loadfile", "collectgarbage"} {
		L.SetGlobal(g, lua.LNil)
	}
	if pkg, ok := L.GetGlobal("package").(*lua.LTable); ok {
		pkg.RawSetString("path", lua.LString(""))
	}
	return nil
}

func (s *session) register(L *lua.LState) {
	fns := map[string]lua.LGFunction{
		"create_parser":                s.createParser,
		"add_argument":                 s.addArgument,
		"add_subparsers":               s.addSubparsers,
		"add_parser":                   s.addParser,
		"add_mutually_exclusive_group": s.addGroup,
		"set_defaults":                 s.setDefaults,
		"add_rule":                     s.addRule,
	}
	methods := func(names ...string) *lua.LTable {
		t := L.NewTable()
		for _, n := range names {
			L.SetField(t, n, L.NewFunction(fns[n]))
		}
		return t
	}
	L.SetField(L.NewTypeMetatable(parserType), "__index",
		methods("add_argument", "add_subparsers", "add_mutually_exclusive_group", "set_defaults", "add_rule"))
	L.SetField(L.NewTypeMetatable(subparsersType), "__index", methods("add_parser"))
	L.SetField(L.NewTypeMetatable(groupType), "__index", methods("add_argument"))

	L.PreloadModule(ModuleName, func(L *lua.LState) int {
		mod := L.SetFuncs(L.NewTable(), fns)
		L.SetField(mod, "SUPPRESS", lua.LString(argparse.Suppress))
		L.Push(mod)
		return 1
	})
}

func wrapValue(L *lua.LState, v any, typ string) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = v
	L.SetMetatable(ud, L.GetTypeMetatable(typ))
	return ud
}

func checkParser(L *lua.LState, n int) *argparse.Parser {
	if p, ok := L.CheckUserData(n).Value.(*argparse.Parser); ok {
		return p
	}
	L.ArgError(n, "parser expected")
	return nil
}

// create_parser{prog = ..., description = ...}
func (s *session) createParser(L *lua.LState) int {
	f := newFields(L, L.CheckTable(1), "create_parser")
	cfg := f.parserConfig()
	f.done()
	p, err := bridge.CreateParser(cfg)
	if err != nil {
		return s.fail(L, err)
	}
	L.Push(wrapValue(L, p, parserType))
	return 1
}

// add_argument(parser_or_group, names, {action = ..., ...})
func (s *session) addArgument(L *lua.LState) int {
	target := L.CheckUserData(1)
	names := stringList(L, 2)
	f := newFields(L, L.OptTable(3, L.NewTable()), "add_argument")
	cfg := f.argumentConfig()
	f.done()

	var err error
	switch v := target.Value.(type) {
	case *argparse.Parser:
		_, err = bridge.AddArgument(v, names, cfg)
	case *bridge.ExclusiveGroup:
		_, err = v.AddArgument(names, cfg)
	default:
		L.ArgError(1, "parser or group expected")
	}
	if err != nil {
		return s.fail(L, err)
	}
	L.Push(target)
	return 1
}

// add_subparsers(parser, {title = ..., dest = ...}) returns parser, group.
func (s *session) addSubparsers(L *lua.LState) int {
	p := checkParser(L, 1)
	f := newFields(L, L.OptTable(2, L.NewTable()), "add_subparsers")
	cfg := bridge.SubcommandsConfig{
		Title:       f.str("title"),
		Description: f.str("description"),
		Prog:        f.str("prog"),
		Dest:        f.str("dest"),
		Required:    f.boolp("required"),
		Help:        f.str("help"),
		Metavar:     f.str("metavar"),
	}
	f.done()
	_, sp, err := bridge.AddSubcommands(p, cfg)
	if err != nil {
		return s.fail(L, err)
	}
	L.Push(L.Get(1))
	L.Push(wrapValue(L, sp, subparsersType))
	return 2
}

// add_parser(group, name, {aliases}, {help = ..., ...})
func (s *session) addParser(L *lua.LState) int {
	sp, ok := L.CheckUserData(1).Value.(*argparse.Subparsers)
	if !ok {
		L.ArgError(1, "subparsers expected")
	}
	name := L.CheckString(2)
	var aliases []string
	if L.Get(3) != lua.LNil {
		aliases = stringList(L, 3)
	}
	f := newFields(L, L.OptTable(4, L.NewTable()), "add_parser")
	cfg := bridge.SubparserConfig{ParserConfig: f.parserConfig(), Help: f.str("help")}
	f.done()
	child, err := bridge.AddParser(sp, name, aliases, cfg)
	if err != nil {
		return s.fail(L, err)
	}
	L.Push(wrapValue(L, child, parserType))
	return 1
}

// add_mutually_exclusive_group(parser, required)
func (s *session) addGroup(L *lua.LState) int {
	p := checkParser(L, 1)
	g := bridge.AddMutuallyExclusiveGroup(p, L.OptBool(2, false))
	L.Push(wrapValue(L, g, groupType))
	return 1
}

// set_defaults(parser, {dest = value, ...})
func (s *session) setDefaults(L *lua.LState) int {
	p := checkParser(L, 1)
	tbl := L.CheckTable(2)
	var keys []string
	tbl.ForEach(func(k, _ lua.LValue) {
		if ks, ok := k.(lua.LString); ok {
			keys = append(keys, string(ks))
		}
	})
	slices.Sort(keys)
	for _, k := range keys {
		p.SetDefault(k, toGo(tbl.RawGetString(k)))
	}
	L.Push(L.Get(1))
	return 1
}

// add_rule(parser, expr, message)
func (s *session) addRule(L *lua.LState) int {
	p := checkParser(L, 1)
	r := rules.Rule{Expr: L.CheckString(2), Message: L.OptString(3, "")}
	if err := rules.Attach(p, []rules.Rule{r}); err != nil {
		return s.fail(L, fmt.Errorf("%s: %w", p.Prog(), err))
	}
	L.Push(L.Get(1))
	return 1
}

// stringList accepts a single string or a list of strings at position n.
func stringList(L *lua.LState, n int) []string {
	switch v := L.Get(n).(type) {
	case lua.LString:
		return []string{string(v)}
	case *lua.LTable:
		out := make([]string, 0, v.Len())
		for i := 1; i <= v.Len(); i++ {
			s, ok := v.RawGetInt(i).(lua.LString)
			if !ok {
				L.ArgError(n, "list of strings expected")
			}
			out = append(out, string(s))
		}
		return out
	}
	L.ArgError(n, "string or list of strings expected")
	return nil
}

// toGo converts a Lua value to the representation the grammar engine uses.
// Whole numbers become int; tables with a sequence part become []any and
// other tables map[string]any.
func toGo(v lua.LValue) any {
	switch x := v.(type) {
	case lua.LBool:
		return bool(x)
	case lua.LNumber:
		f := float64(x)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int(f)
		}
		return f
	case lua.LString:
		return string(x)
	case *lua.LTable:
		if n := x.Len(); n > 0 {
			out := make([]any, n)
			for i := range n {
				out[i] = toGo(x.RawGetInt(i + 1))
			}
			return out
		}
		m := map[string]any{}
		x.ForEach(func(k, e lua.LValue) {
			if ks, ok := k.(lua.LString); ok {
				m[string(ks)] = toGo(e)
			}
		})
		return m
	case *lua.LUserData:
		return x.Value
	}
	return nil
}
