// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package host serves a parser registry to other processes over JSON-RPC.
package host

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yeetrun/argbridge/pkg/bridge"
	"github.com/yeetrun/argbridge/pkg/bridgerpc"
	"github.com/yeetrun/argbridge/pkg/compress"
	"tailscale.com/types/logger"
	"tailscale.com/util/set"
)

// MaxRequestBytes bounds a single JSON-RPC request body or websocket
// message.
const MaxRequestBytes = 1 << 20

// Config contains the server dependencies.
type Config struct {
	// Registry is required.
	Registry *bridge.Registry
	// Invoker runs parses. If nil, one using Registry is created. An Invoker
	// with a nil Registry is pointed at Registry.
	Invoker *bridge.Invoker
	// Authorize, if set, is consulted before every request. A non-nil error
	// rejects the request with 401.
	Authorize func(*http.Request) error
	Logf      logger.Logf
}

// Server hosts the RPC handlers that register and invoke parsers.
type Server struct {
	cfg      Config
	invoker  *bridge.Invoker
	upgrader websocket.Upgrader

	eventListeners struct {
		mu sync.Mutex
		s  set.HandleSet[*eventListener]
	}
}

type eventListener struct {
	ch     chan<- bridgerpc.Event
	filter func(bridgerpc.Event) bool
}

// NewServer returns a Server for cfg.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, errors.New("host: Config.Registry is required")
	}
	iv := cfg.Invoker
	if iv == nil {
		iv = &bridge.Invoker{Registry: cfg.Registry, Logf: cfg.Logf}
	} else if iv.Registry == nil {
		iv.Registry = cfg.Registry
	}
	return &Server{
		cfg:     cfg,
		invoker: iv,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}, nil
}

func (s *Server) logf(format string, args ...any) {
	if s.cfg.Logf != nil {
		s.cfg.Logf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// PublishEvent delivers event to every matching listener. Listeners that
// are not keeping up miss the event.
func (s *Server) PublishEvent(event bridgerpc.Event) {
	event.Time = time.Now().UnixMilli()
	els := &s.eventListeners
	els.mu.Lock()
	defer els.mu.Unlock()
	for _, el := range els.s {
		if el.filter != nil && !el.filter(event) {
			continue
		}
		select {
		case el.ch <- event:
		default:
		}
	}
}

func (s *Server) AddEventListener(ch chan<- bridgerpc.Event, filter func(bridgerpc.Event) bool) set.Handle {
	els := &s.eventListeners
	els.mu.Lock()
	defer els.mu.Unlock()
	return els.s.Add(&eventListener{ch: ch, filter: filter})
}

func (s *Server) RemoveEventListener(h set.Handle) {
	els := &s.eventListeners
	els.mu.Lock()
	defer els.mu.Unlock()
	delete(els.s, h)
}

// Handler returns the HTTP handler serving /rpc, /rpc/ws, /rpc/events and
// /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/rpc", s.authZ(compress.Middleware(http.HandlerFunc(s.handleRPC))))
	mux.Handle("/rpc/ws", s.authZ(http.HandlerFunc(s.handleSessionWS)))
	mux.Handle("/rpc/events", s.authZ(http.HandlerFunc(s.handleEventsWS)))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "ok %d\n", s.cfg.Registry.Len())
	})
	return mux
}

func (s *Server) authZ(next http.Handler) http.Handler {
	if s.cfg.Authorize == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.cfg.Authorize(r); err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hs := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() { errc <- hs.Serve(ln) }()
	s.logf("host: serving on %s", ln.Addr())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}
