// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/google/shlex"
	"github.com/yeetrun/argbridge/pkg/argparse"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"tailscale.com/types/lazy"
	"tailscale.com/types/logger"
)

// Grammar is anything that parses an argument vector while writing its
// messages to swappable output streams. *argparse.Parser implements it.
type Grammar interface {
	SetOutput(stdout, stderr io.Writer) (prevStdout, prevStderr io.Writer)
	Parse(args []string) (*argparse.Namespace, error)
}

// Result is the outcome of one invocation. Parsed holds the serialized
// namespace; Stdout and Stderr hold what the grammar printed when it
// terminated instead. At most one side is non-empty.
type Result struct {
	Parsed string `json:"parsed"`
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// redirectMu serializes output redirection. Writers of nested parsers
// resolve through their parents, so two parses of related grammars must
// not overlap.
var redirectMu sync.Mutex

var errParsePanicked = errors.New("parse panicked")

// Invoker runs registered or live grammars and captures their output.
// The zero value serializes to JSON, logs with log.Printf and reports
// telemetry to the global OpenTelemetry providers.
type Invoker struct {
	// Registry resolves names for InvokeNamed and InvokeLine.
	Registry *Registry
	Format   Format
	Logf     logger.Logf

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider

	tel lazy.SyncValue[*telemetry]
}

var defaultInvoker Invoker

// Invoke runs g on argv with the default Invoker.
func Invoke(g Grammar, argv []string) (Result, error) {
	return defaultInvoker.Invoke(context.Background(), g, argv)
}

func (iv *Invoker) logf(format string, args ...any) {
	if iv.Logf != nil {
		iv.Logf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func (iv *Invoker) telemetry() *telemetry {
	return iv.tel.Get(func() *telemetry {
		return newTelemetry(iv.TracerProvider, iv.MeterProvider, iv.logf)
	})
}

// Invoke parses argv with g.
func (iv *Invoker) Invoke(ctx context.Context, g Grammar, argv []string) (Result, error) {
	name := ""
	if p, ok := g.(interface{ Prog() string }); ok {
		name = p.Prog()
	}
	return iv.invoke(ctx, name, g, argv, iv.Format)
}

// InvokeNamed parses argv with the parser registered as name.
func (iv *Invoker) InvokeNamed(ctx context.Context, name string, argv []string) (Result, error) {
	return iv.InvokeNamedAs(ctx, name, argv, iv.Format)
}

// InvokeNamedAs is InvokeNamed with the namespace serialized as f instead
// of the Invoker's format.
func (iv *Invoker) InvokeNamedAs(ctx context.Context, name string, argv []string, f Format) (Result, error) {
	if iv.Registry == nil {
		return Result{}, &NotFoundError{Name: name}
	}
	p, err := iv.Registry.Resolve(name)
	if err != nil {
		tel := iv.telemetry()
		ctx, span := tel.start(ctx, name, len(argv))
		tel.finish(ctx, span, outcomeNotFound, err)
		return Result{}, err
	}
	return iv.invoke(ctx, name, p, argv, f)
}

// InvokeLine splits line with shell quoting rules and invokes the parser
// registered as name on the resulting words.
func (iv *Invoker) InvokeLine(ctx context.Context, name, line string) (Result, error) {
	argv, err := SplitLine(line)
	if err != nil {
		return Result{}, err
	}
	return iv.InvokeNamed(ctx, name, argv)
}

// SplitLine splits a command line into words using shell quoting rules.
func SplitLine(line string) ([]string, error) {
	argv, err := shlex.Split(line)
	if err != nil {
		return nil, fmt.Errorf("split command line: %w", err)
	}
	return argv, nil
}

func (iv *Invoker) invoke(ctx context.Context, name string, g Grammar, argv []string, f Format) (res Result, err error) {
	tel := iv.telemetry()
	ctx, span := tel.start(ctx, name, len(argv))
	outcome := outcomePanic
	defer func() {
		if outcome == outcomePanic {
			tel.finish(ctx, span, outcome, errParsePanicked)
			return
		}
		tel.finish(ctx, span, outcome, err)
	}()

	ns, stdout, stderr, err := capture(g, argv)
	res, outcome, err = classify(ns, stdout, stderr, err, f)
	if outcome == outcomeFatal {
		iv.logf("bridge: %s: %v", name, err)
	}
	return res, err
}

// capture runs one parse with both output streams redirected to buffers.
// The previous writers are restored on every path, including a panic in a
// custom action, which keeps propagating afterwards.
func capture(g Grammar, argv []string) (ns *argparse.Namespace, stdout, stderr string, err error) {
	redirectMu.Lock()
	defer redirectMu.Unlock()

	var outBuf, errBuf bytes.Buffer
	prevOut, prevErr := g.SetOutput(&outBuf, &errBuf)
	defer g.SetOutput(prevOut, prevErr)

	ns, err = g.Parse(argv)
	return ns, outBuf.String(), errBuf.String(), err
}

func classify(ns *argparse.Namespace, stdout, stderr string, err error, f Format) (Result, string, error) {
	var exit *argparse.ExitError
	switch {
	case err == nil && ns != nil:
		text, ferr := Serialize(ns, f)
		if ferr != nil {
			return Result{}, outcomeError, ferr
		}
		return Result{Parsed: text}, outcomeNamespace, nil
	case err == nil:
		return Result{Stdout: stdout, Stderr: stderr}, outcomeOutput, nil
	case errors.As(err, &exit):
		if Recoverable(exit.Code) {
			return Result{Stdout: stdout, Stderr: stderr}, outcomeExit, nil
		}
		return Result{}, outcomeFatal, &FatalExitError{Exit: exit, Stdout: stdout, Stderr: stderr}
	default:
		return Result{}, outcomeError, &ParseError{Err: err, Stdout: stdout, Stderr: stderr}
	}
}

// Recoverable reports whether an exit status is absorbed into the captured
// output: 0 after help or version, 2 after a usage error.
func Recoverable(code int) bool {
	return code == argparse.ExitSuccess || code == argparse.ExitUsage
}
