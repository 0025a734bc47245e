// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The argbridge command loads parser definitions, runs them against argument
// vectors and serves them to other processes over JSON-RPC.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/shayne/yargs"
	"github.com/yeetrun/argbridge/pkg/bridge"
	"github.com/yeetrun/argbridge/pkg/cli"
	"tailscale.com/types/logger"
)

var (
	// passthrough holds everything after the first "--" on the command
	// line. It is the argument vector handed to the loaded parser and is
	// kept away from the command router so that a "-h" meant for the
	// parser does not trigger argbridge's own help.
	passthrough []string

	globals globalFlagsParsed
	cfg     *config
)

type globalFlagsParsed struct {
	Config  string `flag:"config" help:"Path to argbridge.toml (default ./argbridge.toml if present)"`
	Verbose bool   `flag:"verbose" short:"v" help:"Log loader and server activity"`
}

func parseGlobalFlags(args []string) (globalFlagsParsed, []string, error) {
	result, err := yargs.ParseKnownFlags[globalFlagsParsed](args, yargs.KnownFlagsOptions{})
	if err != nil {
		return globalFlagsParsed{}, nil, err
	}
	return result.Flags, result.RemainingArgs, nil
}

func logf() logger.Logf {
	if globals.Verbose {
		return log.Printf
	}
	return logger.Discard
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("argbridge: ")

	args, rest := cli.SplitAtDoubleDash(os.Args[1:])
	passthrough = rest
	var err error
	globals, args, err = parseGlobalFlags(args)
	if err != nil {
		printCLIError(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err = loadConfig(globals.Config)
	if err != nil {
		printCLIError(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handlers := map[string]yargs.SubcommandHandler{
		"parse":    handleParse,
		"check":    handleCheck,
		"serve":    handleServe,
		"call":     handleCall,
		"list":     handleList,
		"compress": handleCompress,
	}
	err = yargs.RunSubcommandsWithGroups(ctx, args, cli.HelpConfig(), globalFlagsParsed{}, handlers, nil)
	if err == nil {
		return
	}
	var fatal *bridge.FatalExitError
	if errors.As(err, &fatal) {
		stop()
		os.Exit(fatal.Code())
	}
	printCLIError(os.Stderr, err)
	stop()
	os.Exit(1)
}

func printCLIError(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %v\n", color.New(color.FgRed, color.Bold).Sprint("error:"), err)
}
