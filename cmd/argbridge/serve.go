// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/yeetrun/argbridge/pkg/bridge"
	"github.com/yeetrun/argbridge/pkg/bridgerpc"
	"github.com/yeetrun/argbridge/pkg/cli"
	"github.com/yeetrun/argbridge/pkg/host"
	"github.com/yeetrun/argbridge/pkg/loader"
)

// newRegistry returns a registry preloaded with the configured definitions.
func newRegistry() (*bridge.Registry, error) {
	reg := bridge.NewRegistry(loader.NewCache(newLoader()))
	for _, d := range cfg.Definitions {
		e, err := reg.RegisterDefinition(d.Name, d.Path, d.Factory)
		if err != nil {
			return nil, err
		}
		log.Printf("registered %s (%s) from %s", e.Name, e.Parser.Prog(), e.Path)
	}
	return reg, nil
}

func handleServe(ctx context.Context, args []string) error {
	flags, err := cli.ParseServe(args)
	if err != nil {
		return err
	}
	listen := cfg.Listen
	if flags.Listen != "" {
		listen = flags.Listen
	}
	format, err := cfg.format("")
	if err != nil {
		return err
	}
	reg, err := newRegistry()
	if err != nil {
		return err
	}
	srv, err := host.NewServer(host.Config{
		Registry: reg,
		Invoker:  &bridge.Invoker{Registry: reg, Format: format, Logf: log.Printf},
		Logf:     logf(),
	})
	if err != nil {
		return err
	}
	log.Printf("serving %d parsers on %s", reg.Len(), listen)
	return srv.ListenAndServe(ctx, listen)
}

func newClient(server string) (*bridgerpc.Client, error) {
	if server == "" {
		server = cfg.Server
	}
	return bridgerpc.NewClient(server)
}

func handleCall(ctx context.Context, args []string) error {
	flags, name, err := cli.ParseCall(args)
	if err != nil {
		return err
	}
	c, err := newClient(flags.Server)
	if err != nil {
		return err
	}
	params := bridgerpc.InvokeParams{
		Name:   name,
		Argv:   passthrough,
		Line:   flags.Line,
		Format: flags.Format,
	}
	if params.Format == "" {
		params.Format = cfg.Format
	}
	if params.Line != "" && len(params.Argv) > 0 {
		return errors.New("--line cannot be combined with arguments after --")
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	res, err := c.Invoke(ctx, params)
	if err != nil {
		return err
	}
	printResult(os.Stdout, bridge.Result{Parsed: res.Parsed, Stdout: res.Stdout, Stderr: res.Stderr})
	return nil
}

func handleList(ctx context.Context, args []string) error {
	flags, err := cli.ParseList(args)
	if err != nil {
		return err
	}
	c, err := newClient(flags.Server)
	if err != nil {
		return err
	}
	entries, err := c.List(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "NAME\tPROG\tSOURCE\tREGISTERED")
	for _, e := range entries {
		src := "-"
		if e.Path != "" {
			src = e.Path
			if e.Factory != "" {
				src += "#" + e.Factory
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Name, e.Prog, src, e.Registered.Local().Format(time.DateTime))
	}
	return nil
}
