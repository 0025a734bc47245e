// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bridge

import (
	"errors"
	"fmt"

	"github.com/yeetrun/argbridge/pkg/argparse"
)

var (
	// ErrConfiguration is matched by every *ConfigurationError.
	ErrConfiguration = errors.New("invalid parser configuration")
	// ErrNotFound is matched by every *NotFoundError.
	ErrNotFound = errors.New("parser not found")
	// ErrLoad is matched by definition loading failures.
	ErrLoad = errors.New("definition load failed")
)

// ConfigurationError reports a parser definition the grammar engine
// rejected or that breaks the construction rules.
type ConfigurationError struct {
	// Op is the construction call, e.g. "add_argument".
	Op string
	// Target names what was being built: a program name, argument names or
	// a subcommand name.
	Target string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Target, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

func configErr(op, target string, err error) error {
	return &ConfigurationError{Op: op, Target: target, Err: err}
}

func configErrf(op, target, format string, args ...any) error {
	return configErr(op, target, fmt.Errorf(format, args...))
}

// NotFoundError is returned when no parser is registered under Name.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no parser registered as %q", e.Name)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// FatalExitError is returned by an invocation whose grammar requested an
// exit status other than 0 or 2. It carries whatever the grammar printed
// before exiting.
type FatalExitError struct {
	Exit   *argparse.ExitError
	Stdout string
	Stderr string
}

func (e *FatalExitError) Error() string {
	return fmt.Sprintf("parser terminated with status %d", e.Exit.Code)
}

func (e *FatalExitError) Unwrap() error { return e.Exit }

// Code returns the requested exit status.
func (e *FatalExitError) Code() int { return e.Exit.Code }

// ParseError wraps an error returned by a grammar that does not exit on
// errors, together with any captured output.
type ParseError struct {
	Err    error
	Stdout string
	Stderr string
}

func (e *ParseError) Error() string { return e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }
