// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cli holds the argbridge command table and the flag parsing for
// each command.
package cli

import (
	"fmt"
	"slices"

	"github.com/shayne/yargs"
)

type CommandInfo struct {
	Name        string
	Description string
	Usage       string
	Examples    []string
	Aliases     []string
}

var commandInfos = map[string]CommandInfo{
	"parse": {
		Name:        "parse",
		Description: "Load a definition and parse the arguments after --",
		Usage:       "DEF [--factory NAME] [--format json|yaml] [--line ARGS] [-- ARGV...]",
		Aliases:     []string{"p"},
		Examples: []string{
			"argbridge parse defs/lvcli.lua -- -v create vol0",
			"argbridge parse defs/lvcli.yaml --factory lvcli --line \"create --size 4 vol0\"",
		},
	},
	"check": {
		Name:        "check",
		Description: "Load a definition and print the parser's help",
		Usage:       "DEF [--factory NAME]",
	},
	"serve": {
		Name:        "serve",
		Description: "Serve the configured definitions over JSON-RPC",
		Usage:       "[--listen ADDR]",
	},
	"call": {
		Name:        "call",
		Description: "Invoke a parser registered on a running server",
		Usage:       "NAME [--server URL] [--format json|yaml] [--line ARGS] [-- ARGV...]",
	},
	"list": {
		Name:        "list",
		Description: "List the parsers registered on a running server",
		Usage:       "[--server URL]",
		Aliases:     []string{"ls"},
	},
	"compress": {
		Name:        "compress",
		Description: "Write a zstd compressed copy of a definition next to it",
		Usage:       "DEF",
	},
}

// CommandNames returns the command names in sorted order.
func CommandNames() []string {
	names := make([]string, 0, len(commandInfos))
	for name := range commandInfos {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func CommandInfos() map[string]CommandInfo {
	return commandInfos
}

func HelpConfig() yargs.HelpConfig {
	subcommands := make(map[string]yargs.SubCommandInfo, len(commandInfos))
	for name, info := range commandInfos {
		subcommands[name] = yargs.SubCommandInfo{
			Name:        name,
			Description: info.Description,
			Usage:       info.Usage,
			Examples:    info.Examples,
			Aliases:     info.Aliases,
		}
	}
	return yargs.HelpConfig{
		Command: yargs.CommandInfo{
			Name:        "argbridge",
			Description: "Build command-line parsers from definition files and run them without letting them exit the host.",
			Examples: []string{
				"argbridge parse defs/lvcli.lua -- -v create vol0",
				"argbridge check defs/lvcli.yaml --factory lvcli",
				"argbridge serve --listen 127.0.0.1:7420",
				"argbridge call lvcli -- create vol0",
			},
		},
		SubCommands: subcommands,
	}
}

type ParseFlags struct {
	Factory string
	Format  string
	Line    string
}

type CheckFlags struct {
	Factory string
}

type ServeFlags struct {
	Listen string
}

type CallFlags struct {
	Server string
	Format string
	Line   string
}

type ListFlags struct {
	Server string
}

type parseFlagsParsed struct {
	Factory string `flag:"factory" help:"Factory to call in the definition (default parser)"`
	Format  string `flag:"format" help:"Result format: json or yaml"`
	Line    string `flag:"line" help:"Shell-quoted argument string to parse instead of ARGV"`
}

type checkFlagsParsed struct {
	Factory string `flag:"factory" help:"Factory to call in the definition (default parser)"`
}

type serveFlagsParsed struct {
	Listen string `flag:"listen" help:"Address to listen on (ARGBRIDGE_LISTEN)"`
}

type callFlagsParsed struct {
	Server string `flag:"server" help:"Server URL (ARGBRIDGE_SERVER)"`
	Format string `flag:"format" help:"Result format: json or yaml"`
	Line   string `flag:"line" help:"Shell-quoted argument string to parse instead of ARGV"`
}

type listFlagsParsed struct {
	Server string `flag:"server" help:"Server URL (ARGBRIDGE_SERVER)"`
}

// ParseParse parses the flags of "parse" and requires exactly one
// definition path.
func ParseParse(args []string) (ParseFlags, string, error) {
	parsed, err := parseFlags[parseFlagsParsed]("parse", args)
	if err != nil {
		return ParseFlags{}, "", err
	}
	if err := RequireArgs("parse", parsed.Args, 1); err != nil {
		return ParseFlags{}, "", err
	}
	return ParseFlags(parsed.Flags), parsed.Args[0], nil
}

func ParseCheck(args []string) (CheckFlags, string, error) {
	parsed, err := parseFlags[checkFlagsParsed]("check", args)
	if err != nil {
		return CheckFlags{}, "", err
	}
	if err := RequireArgs("check", parsed.Args, 1); err != nil {
		return CheckFlags{}, "", err
	}
	return CheckFlags(parsed.Flags), parsed.Args[0], nil
}

func ParseServe(args []string) (ServeFlags, error) {
	parsed, err := parseFlags[serveFlagsParsed]("serve", args)
	if err != nil {
		return ServeFlags{}, err
	}
	if err := RequireArgs("serve", parsed.Args, 0); err != nil {
		return ServeFlags{}, err
	}
	return ServeFlags(parsed.Flags), nil
}

func ParseCall(args []string) (CallFlags, string, error) {
	parsed, err := parseFlags[callFlagsParsed]("call", args)
	if err != nil {
		return CallFlags{}, "", err
	}
	if err := RequireArgs("call", parsed.Args, 1); err != nil {
		return CallFlags{}, "", err
	}
	return CallFlags(parsed.Flags), parsed.Args[0], nil
}

func ParseList(args []string) (ListFlags, error) {
	parsed, err := parseFlags[listFlagsParsed]("list", args)
	if err != nil {
		return ListFlags{}, err
	}
	if err := RequireArgs("list", parsed.Args, 0); err != nil {
		return ListFlags{}, err
	}
	return ListFlags(parsed.Flags), nil
}

// ParseCompress returns the single definition path given to "compress".
func ParseCompress(args []string) (string, error) {
	args = StripCommand("compress", args)
	if err := RequireArgs("compress", args, 1); err != nil {
		return "", err
	}
	return args[0], nil
}

type parsedFlags[T any] struct {
	Flags T
	Args  []string
}

func parseFlags[T any](cmd string, args []string) (parsedFlags[T], error) {
	result, err := yargs.ParseFlags[T](StripCommand(cmd, args))
	if err != nil {
		return parsedFlags[T]{}, err
	}
	argsOut := append([]string{}, result.Args...)
	if len(result.RemainingArgs) > 0 {
		argsOut = append(argsOut, result.RemainingArgs...)
	}
	return parsedFlags[T]{Flags: result.Flags, Args: argsOut}, nil
}

// StripCommand drops the command name or alias the router leaves at the
// front of args.
func StripCommand(cmd string, args []string) []string {
	if len(args) == 0 {
		return args
	}
	info := commandInfos[cmd]
	if args[0] == cmd || slices.Contains(info.Aliases, args[0]) {
		return args[1:]
	}
	return args
}

// SplitAtDoubleDash splits args at the first "--". rest is non-nil whenever
// the separator is present.
func SplitAtDoubleDash(args []string) (cli, rest []string) {
	for i, arg := range args {
		if arg == "--" {
			return args[:i], append([]string{}, args[i+1:]...)
		}
	}
	return args, nil
}

func RequireArgs(subcmd string, args []string, count int) error {
	if len(args) == count {
		return nil
	}
	if count == 0 {
		return fmt.Errorf("'%s' takes no arguments, got %q", subcmd, args)
	}
	return fmt.Errorf("'%s' requires %d argument(s), got %d", subcmd, count, len(args))
}
