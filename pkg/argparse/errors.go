// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package argparse

import (
	"errors"
	"fmt"
	"strings"
)

// Exit statuses requested by the built-in actions.
const (
	ExitSuccess = 0
	ExitUsage   = 2
)

// ErrExit is matched by every *ExitError via errors.Is.
var ErrExit = errors.New("exit requested")

// ExitError is returned by Parse when the grammar requested process
// termination: help and version display (ExitSuccess), usage errors
// (ExitUsage), or an explicit Parser.Exit from a custom action.
//
// Any message associated with the exit has already been written to the
// parser's standard error stream when the ExitError is returned.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return fmt.Sprintf("exit status %d: %s", e.Code, msg)
}

func (e *ExitError) Is(target error) bool {
	return target == ErrExit
}

// ArgumentError describes a problem with a single argument, either while
// building the grammar (conflicting option strings, invalid settings) or while
// parsing (invalid choice, missing value).
//
// During Parse it is only returned directly when the parser was created with
// WithExitOnError(false); otherwise it is reported as a usage error.
type ArgumentError struct {
	// Argument is the display name of the argument ("-o/--option", "FILE",
	// "{run,r}"), empty for errors that concern the whole command line.
	Argument string
	Message  string
}

func (e *ArgumentError) Error() string {
	if e.Argument == "" {
		return e.Message
	}
	return fmt.Sprintf("argument %s: %s", e.Argument, e.Message)
}

func newArgumentError(a *Action, format string, args ...any) *ArgumentError {
	return &ArgumentError{Argument: actionName(a), Message: fmt.Sprintf(format, args...)}
}

// abort carries an early termination through the panic/recover boundary of
// a parse. It never escapes Parse.
type abort struct {
	err error
}

func raise(err error) {
	panic(abort{err: err})
}
