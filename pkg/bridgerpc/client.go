// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bridgerpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yeetrun/argbridge/pkg/compress"
)

type Client struct {
	baseURL string
	wsURL   string

	httpClient *http.Client
	wsDialer   *websocket.Dialer

	nextID atomic.Uint64
}

// NewClient returns a client for the server at baseURL, e.g.
// "http://127.0.0.1:7420". A bare host:port is treated as http.
func NewClient(baseURL string) (*Client, error) {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	ws := *u
	switch u.Scheme {
	case "http":
		ws.Scheme = "ws"
	case "https":
		ws.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	base := strings.TrimSuffix(u.String(), "/")
	return &Client{
		baseURL: base,
		wsURL:   strings.TrimSuffix(ws.String(), "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		wsDialer: websocket.DefaultDialer,
	}, nil
}

type rawResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

func (r *rawResponse) decodeInto(out any) error {
	if r.Error != nil {
		return r.Error
	}
	if out == nil || len(r.Result) == 0 {
		return nil
	}
	return json.Unmarshal(r.Result, out)
}

func newRequest(id uint64, method string, params any) (Request, error) {
	req := Request{
		JSONRPC: "2.0",
		Method:  method,
		ID:      json.RawMessage(strconv.FormatUint(id, 10)),
	}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return Request{}, err
		}
		req.Params = b
	}
	return req, nil
}

// Call sends one request over HTTP and decodes the result into out. A
// JSON-RPC error is returned as *Error.
func (c *Client) Call(ctx context.Context, method string, params any, out any) error {
	req, err := newRequest(c.nextID.Add(1), method, params)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept-Encoding", compress.AcceptHeader)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := compress.NewReader(resp.Header.Get("Content-Encoding"), resp.Body)
	if err != nil {
		return err
	}
	defer body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(body)
		return fmt.Errorf("rpc status %d: %s", resp.StatusCode, bytes.TrimSpace(b))
	}
	var rpcResp rawResponse
	if err := json.NewDecoder(body).Decode(&rpcResp); err != nil {
		return err
	}
	return rpcResp.decodeInto(out)
}

func (c *Client) Register(ctx context.Context, p RegisterParams) (EntryInfo, error) {
	var out EntryInfo
	err := c.Call(ctx, MethodRegister, p, &out)
	return out, err
}

func (c *Client) Invoke(ctx context.Context, p InvokeParams) (InvokeResult, error) {
	var out InvokeResult
	err := c.Call(ctx, MethodInvoke, p, &out)
	return out, err
}

func (c *Client) List(ctx context.Context) ([]EntryInfo, error) {
	var out ListResult
	if err := c.Call(ctx, MethodList, nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// Session is a websocket connection to /rpc/ws. Each call is one text
// message each way. Calls on a Session are serialized.
type Session struct {
	conn *websocket.Conn

	mu     sync.Mutex
	nextID uint64
}

// Dial opens a Session.
func (c *Client) Dial(ctx context.Context) (*Session, error) {
	conn, _, err := c.wsDialer.DialContext(ctx, c.wsURL+"/rpc/ws", nil)
	if err != nil {
		return nil, err
	}
	return &Session{conn: conn}, nil
}

// Call sends one request and waits for its response. The context deadline,
// if any, bounds the round trip.
func (s *Session) Call(ctx context.Context, method string, params any, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	req, err := newRequest(s.nextID, method, params)
	if err != nil {
		return err
	}
	deadline, _ := ctx.Deadline()
	_ = s.conn.SetWriteDeadline(deadline)
	_ = s.conn.SetReadDeadline(deadline)
	if err := s.conn.WriteJSON(req); err != nil {
		return err
	}
	var resp rawResponse
	if err := s.conn.ReadJSON(&resp); err != nil {
		return err
	}
	if !bytes.Equal(resp.ID, req.ID) {
		return fmt.Errorf("response id %s does not match request id %s", resp.ID, req.ID)
	}
	return resp.decodeInto(out)
}

func (s *Session) Invoke(ctx context.Context, p InvokeParams) (InvokeResult, error) {
	var out InvokeResult
	err := s.Call(ctx, MethodInvoke, p, &out)
	return out, err
}

// Close sends a normal closure and closes the connection.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return s.conn.Close()
}

// Events streams server events to onEvent until ctx is done or the server
// closes the stream.
func (c *Client) Events(ctx context.Context, req EventsRequest, onEvent func(Event)) error {
	conn, _, err := c.wsDialer.DialContext(ctx, c.wsURL+"/rpc/events", nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteJSON(req); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()
	defer close(done)

	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				errors.Is(err, websocket.ErrCloseSent) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		onEvent(ev)
	}
}
