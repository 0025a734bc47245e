// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/yeetrun/argbridge/pkg/bridge"
	"github.com/yeetrun/argbridge/pkg/cli"
	"github.com/yeetrun/argbridge/pkg/codecutil"
	"github.com/yeetrun/argbridge/pkg/loader"
)

const bannerWidth = 36

var bannerColor = color.New(color.FgCyan, color.Bold)

func banner(w io.Writer, title string) {
	fill := strings.Repeat("#", bannerWidth)
	bannerColor.Fprintf(w, "%s %s %s\n", fill, title, fill)
}

// printResult writes the three captured sections of an invocation.
func printResult(w io.Writer, res bridge.Result) {
	banner(w, "stdout")
	fmt.Fprintln(w, res.Stdout)
	banner(w, "stderr")
	fmt.Fprintln(w, res.Stderr)
	banner(w, "parsed")
	fmt.Fprintln(w, res.Parsed)
}

// argv returns the vector to parse: the split --line if given, otherwise
// everything after "--".
func argv(line string) ([]string, error) {
	if line == "" {
		return passthrough, nil
	}
	if len(passthrough) > 0 {
		return nil, errors.New("--line cannot be combined with arguments after --")
	}
	return bridge.SplitLine(line)
}

func newLoader() *loader.Loader {
	return &loader.Loader{BaseDir: cfg.BaseDir, Logf: logf()}
}

func handleParse(ctx context.Context, args []string) error {
	flags, def, err := cli.ParseParse(args)
	if err != nil {
		return err
	}
	format, err := cfg.format(flags.Format)
	if err != nil {
		return err
	}
	vec, err := argv(flags.Line)
	if err != nil {
		return err
	}
	p, err := newLoader().Load(def, flags.Factory)
	if err != nil {
		return err
	}
	iv := &bridge.Invoker{Format: format, Logf: logf()}
	res, err := iv.Invoke(ctx, p, vec)
	var fatal *bridge.FatalExitError
	if errors.As(err, &fatal) {
		printResult(os.Stdout, bridge.Result{Stdout: fatal.Stdout, Stderr: fatal.Stderr})
		return err
	}
	if err != nil {
		return err
	}
	printResult(os.Stdout, res)
	return nil
}

func handleCheck(ctx context.Context, args []string) error {
	flags, def, err := cli.ParseCheck(args)
	if err != nil {
		return err
	}
	p, err := newLoader().Load(def, flags.Factory)
	if err != nil {
		return err
	}
	res, err := bridge.Invoke(p, []string{"-h"})
	if err != nil {
		return err
	}
	if res.Stdout == "" {
		return fmt.Errorf("%s has no help flag", p.Prog())
	}
	fmt.Print(res.Stdout)
	return nil
}

func handleCompress(_ context.Context, args []string) error {
	def, err := cli.ParseCompress(args)
	if err != nil {
		return err
	}
	src := newLoader().Resolve(def)
	if strings.HasSuffix(src, codecutil.ZstdExt) {
		return fmt.Errorf("%s is already compressed", src)
	}
	dst := src + codecutil.ZstdExt
	if err := codecutil.ZstdCompress(src, dst); err != nil {
		return err
	}
	fmt.Println(dst)
	return nil
}
