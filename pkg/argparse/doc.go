// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package argparse is a conventional POSIX-style command-line grammar engine:
// optionals and positionals with arity, choices and defaults, mutually
// exclusive groups, and nested subcommands with aliases, plus generated usage
// and help text.
//
// Its behavior deliberately mirrors the classic "argparse" family of parsers,
// including their terminal habits: help and version actions print to standard
// output and request a zero exit, grammar violations print the usage line and
// an "error:" line to standard error and request exit status 2.
//
// # Building a grammar
//
//	p, err := argparse.New("prog", argparse.WithDescription("Example program."))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	p.AddArgument([]string{"-v", "--verbose"}, argparse.Kind(argparse.ActionStoreTrue))
//	p.AddArgument([]string{"files"}, argparse.Nargs(argparse.NargsOneOrMore))
//
//	sub, _ := p.AddSubparsers(argparse.GroupTitle("commands"), argparse.GroupDest("cmd"))
//	run, _ := sub.AddParser("run", argparse.WithAliases("r"), argparse.WithHelp("run things"))
//	run.AddArgument([]string{"--dry-run"}, argparse.Kind(argparse.ActionStoreTrue))
//
// # Parsing
//
// ParseArgs behaves like a command-line program would: it terminates the
// process with os.Exit when the grammar asks to exit. Parse never exits; it
// returns an *ExitError carrying the requested status after the text has been
// written to the parser's output streams:
//
//	ns, err := p.Parse(os.Args[1:])
//	var exit *argparse.ExitError
//	if errors.As(err, &exit) {
//	    os.Exit(exit.Code)
//	}
//
// Output streams default to os.Stdout and os.Stderr and can be redirected on
// the root parser with SetOutput; subcommand parsers inherit them.
package argparse
