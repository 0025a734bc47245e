// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/yeetrun/argbridge/pkg/bridge"
	"github.com/yeetrun/argbridge/pkg/bridgerpc"
)

func writeRPCResponse(w http.ResponseWriter, resp *bridgerpc.Response) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func errorResponse(id json.RawMessage, code int, msg string, data any) *bridgerpc.Response {
	return &bridgerpc.Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &bridgerpc.Error{
			Code:    code,
			Message: msg,
			Data:    data,
		},
	}
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.Body == nil {
		writeRPCResponse(w, errorResponse([]byte("null"), bridgerpc.ErrInvalidRequest, "empty body", nil))
		return
	}
	defer r.Body.Close()

	body := http.MaxBytesReader(w, r.Body, MaxRequestBytes)
	var raw bytes.Buffer
	if _, err := raw.ReadFrom(body); err != nil {
		writeRPCResponse(w, errorResponse([]byte("null"), bridgerpc.ErrParseError, "parse error", err.Error()))
		return
	}
	resp := s.handleMessage(r.Context(), raw.Bytes())
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeRPCResponse(w, resp)
}

// handleMessage decodes and runs one request. It returns nil for
// notifications.
func (s *Server) handleMessage(ctx context.Context, msg []byte) *bridgerpc.Response {
	dec := json.NewDecoder(bytes.NewReader(msg))
	dec.DisallowUnknownFields()
	var req bridgerpc.Request
	if err := dec.Decode(&req); err != nil {
		return errorResponse([]byte("null"), bridgerpc.ErrParseError, "parse error", err.Error())
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		return errorResponse(req.ID, bridgerpc.ErrInvalidRequest, "invalid request", nil)
	}
	result, rpcErr := s.dispatch(ctx, req)
	if len(req.ID) == 0 {
		return nil // notification
	}
	if rpcErr != nil {
		return &bridgerpc.Response{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
	}
	return &bridgerpc.Response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func decodeParams(req bridgerpc.Request, v any) *bridgerpc.Error {
	if len(req.Params) == 0 {
		return &bridgerpc.Error{Code: bridgerpc.ErrInvalidParams, Message: "missing params"}
	}
	dec := json.NewDecoder(bytes.NewReader(req.Params))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &bridgerpc.Error{Code: bridgerpc.ErrInvalidParams, Message: "invalid params", Data: err.Error()}
	}
	return nil
}

func (s *Server) dispatch(ctx context.Context, req bridgerpc.Request) (any, *bridgerpc.Error) {
	switch req.Method {
	case bridgerpc.MethodRegister:
		var params bridgerpc.RegisterParams
		if err := decodeParams(req, &params); err != nil {
			return nil, err
		}
		return s.register(params)
	case bridgerpc.MethodInvoke:
		var params bridgerpc.InvokeParams
		if err := decodeParams(req, &params); err != nil {
			return nil, err
		}
		return s.invoke(ctx, params)
	case bridgerpc.MethodList:
		return s.list(), nil
	default:
		return nil, &bridgerpc.Error{Code: bridgerpc.ErrMethodNotFound, Message: "method not found", Data: req.Method}
	}
}

func (s *Server) register(p bridgerpc.RegisterParams) (any, *bridgerpc.Error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" || p.Path == "" {
		return nil, &bridgerpc.Error{Code: bridgerpc.ErrInvalidParams, Message: "name and path are required"}
	}
	e, err := s.cfg.Registry.RegisterDefinition(p.Name, p.Path, p.Factory)
	if err != nil {
		return nil, rpcError(err)
	}
	s.logf("host: registered %s from %s (%s)", e.Name, e.Path, e.Revision)
	s.PublishEvent(bridgerpc.Event{Name: e.Name, Type: bridgerpc.EventRegistered, Revision: e.Revision.String()})
	return entryInfo(e), nil
}

func (s *Server) invoke(ctx context.Context, p bridgerpc.InvokeParams) (any, *bridgerpc.Error) {
	format, err := bridge.ParseFormat(p.Format)
	if err != nil {
		return nil, &bridgerpc.Error{Code: bridgerpc.ErrInvalidParams, Message: "invalid params", Data: err.Error()}
	}
	argv := p.Argv
	if p.Line != "" {
		if argv, err = bridge.SplitLine(p.Line); err != nil {
			return nil, &bridgerpc.Error{Code: bridgerpc.ErrInvalidParams, Message: "invalid params", Data: err.Error()}
		}
	}
	if argv == nil {
		argv = []string{}
	}
	res, err := s.invoker.InvokeNamedAs(ctx, p.Name, argv, format)
	ev := bridgerpc.Event{Name: p.Name, Type: bridgerpc.EventInvoked}
	switch {
	case err != nil:
		ev.Outcome = "error"
	case res.Parsed != "":
		ev.Outcome = "parsed"
	default:
		ev.Outcome = "output"
	}
	if !errors.Is(err, bridge.ErrNotFound) {
		s.PublishEvent(ev)
	}
	if err != nil {
		return nil, rpcError(err)
	}
	return bridgerpc.InvokeResult{Parsed: res.Parsed, Stdout: res.Stdout, Stderr: res.Stderr}, nil
}

func (s *Server) list() bridgerpc.ListResult {
	out := bridgerpc.ListResult{Entries: []bridgerpc.EntryInfo{}}
	for _, name := range s.cfg.Registry.Names() {
		e, err := s.cfg.Registry.Entry(name)
		if err != nil {
			continue
		}
		out.Entries = append(out.Entries, entryInfo(e))
	}
	return out
}

func entryInfo(e *bridge.Entry) bridgerpc.EntryInfo {
	return bridgerpc.EntryInfo{
		Name:       e.Name,
		Prog:       e.Parser.Prog(),
		Revision:   e.Revision.String(),
		Path:       e.Path,
		Factory:    e.Factory,
		Registered: e.Registered,
	}
}

// rpcError maps bridge errors to JSON-RPC error objects.
func rpcError(err error) *bridgerpc.Error {
	var (
		nf    *bridge.NotFoundError
		fatal *bridge.FatalExitError
		perr  *bridge.ParseError
	)
	switch {
	case errors.As(err, &nf):
		return &bridgerpc.Error{Code: bridgerpc.ErrNotFound, Message: err.Error(), Data: nf.Name}
	case errors.Is(err, bridge.ErrLoad), errors.Is(err, bridge.ErrConfiguration):
		return &bridgerpc.Error{Code: bridgerpc.ErrLoad, Message: err.Error()}
	case errors.As(err, &fatal):
		return &bridgerpc.Error{Code: bridgerpc.ErrFatalExit, Message: err.Error(), Data: bridgerpc.FatalExit{
			Code:   fatal.Code(),
			Stdout: fatal.Stdout,
			Stderr: fatal.Stderr,
		}}
	case errors.As(err, &perr):
		return &bridgerpc.Error{Code: bridgerpc.ErrParse, Message: err.Error()}
	}
	return &bridgerpc.Error{Code: bridgerpc.ErrInternal, Message: err.Error()}
}

// handleSessionWS serves one JSON-RPC request per text message until the
// client closes the connection.
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.SetReadLimit(MaxRequestBytes)

	id := uuid.New()
	s.logf("host: session %s opened from %s", id, r.RemoteAddr)
	defer s.logf("host: session %s closed", id)

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logf("host: session %s: %v", id, err)
			}
			return
		}
		var resp *bridgerpc.Response
		if mt != websocket.TextMessage {
			resp = errorResponse([]byte("null"), bridgerpc.ErrInvalidRequest, "expected a text message", nil)
		} else {
			resp = s.handleMessage(r.Context(), msg)
		}
		if resp == nil {
			continue
		}
		if err := conn.WriteJSON(resp); err != nil {
			s.logf("host: session %s: write: %v", id, err)
			return
		}
	}
}

func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var sub bridgerpc.EventsRequest
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return
	}
	if len(msg) > 0 {
		_ = json.Unmarshal(msg, &sub)
	}

	// Detect the client going away; nothing else is expected from it.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ch := make(chan bridgerpc.Event, 16)
	name := sub.Name
	h := s.AddEventListener(ch, func(ev bridgerpc.Event) bool {
		return name == "" || ev.Name == name
	})
	defer s.RemoveEventListener(h)

	for {
		select {
		case event := <-ch:
			if err := conn.WriteJSON(event); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					s.logf("host: event write failed: %v", err)
				}
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
