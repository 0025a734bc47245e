// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bridgerpc holds the JSON-RPC 2.0 wire types spoken between a host
// and an argbridge server, and a client for them.
package bridgerpc

import (
	"encoding/json"
	"fmt"
	"time"
)

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object. It is also returned by Client calls so
// callers can inspect Code with errors.As.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("rpc error %d: %s: %v", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

const (
	ErrParseError     = -32700
	ErrInvalidRequest = -32600
	ErrMethodNotFound = -32601
	ErrInvalidParams  = -32602
	ErrInternal       = -32603

	// ErrNotFound means no parser is registered under the requested name.
	ErrNotFound = -32001
	// ErrLoad means a definition could not be loaded or built.
	ErrLoad = -32002
	// ErrFatalExit means the parser requested an exit status other than
	// 0 or 2. Data is a FatalExit.
	ErrFatalExit = -32003
	// ErrParse means a parser that does not exit on errors reported one.
	ErrParse = -32004
)

const (
	MethodRegister = "bridge.Register"
	MethodInvoke   = "bridge.Invoke"
	MethodList     = "bridge.List"
)

type RegisterParams struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Factory string `json:"factory,omitempty"`
}

// InvokeParams selects a registered parser and the arguments to parse.
// Line, when set, is split with shell quoting rules and Argv is ignored.
type InvokeParams struct {
	Name   string   `json:"name"`
	Argv   []string `json:"argv,omitempty"`
	Line   string   `json:"line,omitempty"`
	Format string   `json:"format,omitempty"`
}

type InvokeResult struct {
	Parsed string `json:"parsed"`
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

type FatalExit struct {
	Code   int    `json:"code"`
	Stdout string `json:"stdout,omitempty"`
	Stderr string `json:"stderr,omitempty"`
}

type EntryInfo struct {
	Name       string    `json:"name"`
	Prog       string    `json:"prog"`
	Revision   string    `json:"revision"`
	Path       string    `json:"path,omitempty"`
	Factory    string    `json:"factory,omitempty"`
	Registered time.Time `json:"registered"`
}

type ListResult struct {
	Entries []EntryInfo `json:"entries"`
}

// EventsRequest is the first message a client sends on /rpc/events. An
// empty Name subscribes to every parser.
type EventsRequest struct {
	Name string `json:"name,omitempty"`
}

type EventType string

const (
	EventRegistered EventType = "Registered"
	EventInvoked    EventType = "Invoked"
)

type Event struct {
	// Time is the time the event was created in milliseconds since the epoch.
	Time int64     `json:"time"`
	Name string    `json:"name"`
	Type EventType `json:"type"`
	// Outcome is set on EventInvoked: "parsed", "output" or "error".
	Outcome string `json:"outcome,omitempty"`
	// Revision is set on EventRegistered.
	Revision string `json:"revision,omitempty"`
}
