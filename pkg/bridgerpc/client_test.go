// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bridgerpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yeetrun/argbridge/pkg/compress"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		in      string
		base    string
		ws      string
		wantErr bool
	}{
		{in: "127.0.0.1:7420", base: "http://127.0.0.1:7420", ws: "ws://127.0.0.1:7420"},
		{in: "https://bridge.example/", base: "https://bridge.example", ws: "wss://bridge.example"},
		{in: "ftp://bridge.example", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			c, err := NewClient(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if c.baseURL != tt.base || c.wsURL != tt.ws {
				t.Fatalf("got %q %q, want %q %q", c.baseURL, c.wsURL, tt.base, tt.ws)
			}
		})
	}
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestClientInvoke(t *testing.T) {
	var gotMethod string
	var gotParams InvokeParams
	h := compress.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept-Encoding"); got != compress.AcceptHeader {
			t.Errorf("Accept-Encoding = %q", got)
		}
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		gotMethod = req.Method
		if err := json.Unmarshal(req.Params, &gotParams); err != nil {
			t.Errorf("decode params: %v", err)
		}
		_ = json.NewEncoder(w).Encode(Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  InvokeResult{Parsed: `{"option":false,"argument":"hello"}`},
		})
	}))
	c := newTestClient(t, h)

	res, err := c.Invoke(context.Background(), InvokeParams{Name: "demo", Argv: []string{"hello"}})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if gotMethod != MethodInvoke || gotParams.Name != "demo" || len(gotParams.Argv) != 1 {
		t.Fatalf("unexpected request %s %#v", gotMethod, gotParams)
	}
	if res.Parsed != `{"option":false,"argument":"hello"}` || res.Stdout != "" || res.Stderr != "" {
		t.Fatalf("unexpected result %#v", res)
	}
}

func TestClientCallError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &Error{Code: ErrNotFound, Message: "not found", Data: "demo"},
		})
	}))

	_, err := c.List(context.Background())
	var rpcErr *Error
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if rpcErr.Code != ErrNotFound {
		t.Fatalf("code = %d", rpcErr.Code)
	}
}

func TestClientCallHTTPStatus(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusUnauthorized)
	}))
	err := c.Call(context.Background(), MethodList, nil, nil)
	if err == nil || err.Error() != "rpc status 401: denied" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSession(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rpc/ws" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			var req Request
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			var p InvokeParams
			_ = json.Unmarshal(req.Params, &p)
			_ = conn.WriteJSON(Response{JSONRPC: "2.0", ID: req.ID, Result: InvokeResult{Stderr: p.Line}})
		}
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := c.Dial(ctx)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer s.Close()

	for _, line := range []string{"first", "second"} {
		res, err := s.Invoke(ctx, InvokeParams{Name: "demo", Line: line})
		if err != nil {
			t.Fatalf("invoke: %v", err)
		}
		if res.Stderr != line {
			t.Fatalf("got %q, want %q", res.Stderr, line)
		}
	}
}

func TestClientEvents(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var sub EventsRequest
		if err := conn.ReadJSON(&sub); err != nil {
			t.Errorf("read events request: %v", err)
			return
		}
		ev := Event{Time: time.Now().UnixMilli(), Name: sub.Name, Type: EventInvoked, Outcome: "parsed"}
		if err := conn.WriteJSON(ev); err != nil {
			t.Errorf("write event: %v", err)
		}
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var got []Event
	if err := c.Events(ctx, EventsRequest{Name: "demo"}, func(ev Event) {
		got = append(got, ev)
	}); err != nil {
		t.Fatalf("events failed: %v", err)
	}
	if len(got) != 1 || got[0].Name != "demo" || got[0].Type != EventInvoked {
		t.Fatalf("unexpected events: %#v", got)
	}
}
