// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package compress negotiates and applies HTTP content encodings for the
// RPC transport. zstd, gzip and deflate are supported, preferred in that
// order when the client weighs them equally.
//
//	handler = compress.Middleware(handler)
//
// compresses responses for clients that send a matching Accept-Encoding
// and transparently decodes compressed request bodies.
package compress

import (
	"compress/flate"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Supported lists the encodings in order of preference.
var Supported = []string{"zstd", "gzip", "deflate"}

// AcceptHeader is the Accept-Encoding value clients of this package send.
const AcceptHeader = "zstd, gzip, deflate"

// SelectEncoding picks the encoding to answer a request that carried the
// given Accept-Encoding header with, or "" for an uncompressed response.
func SelectEncoding(acceptEncoding string) string {
	weights := map[string]float64{}
	wildcard := -1.0
	for _, part := range strings.Split(acceptEncoding, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		name = strings.ToLower(strings.TrimSpace(name))
		q := 1.0
		if v, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				q = f
			}
		}
		if name == "*" {
			wildcard = q
			continue
		}
		weights[name] = q
	}
	best, bestQ := "", 0.0
	for _, enc := range Supported {
		q, ok := weights[enc]
		if !ok {
			q = wildcard
		}
		if q > bestQ {
			best, bestQ = enc, q
		}
	}
	return best
}

// ResponseWriter compresses everything written through it. Headers are
// adjusted when the status is written: Content-Encoding is set, Vary gains
// Accept-Encoding and Content-Length is dropped.
type ResponseWriter struct {
	http.ResponseWriter
	enc         io.WriteCloser
	encoding    string
	wroteHeader bool
}

// NewResponseWriter wraps w in an encoder for encoding. An unknown or
// empty encoding writes through unchanged.
func NewResponseWriter(w http.ResponseWriter, encoding string) (*ResponseWriter, error) {
	cw := &ResponseWriter{ResponseWriter: w, encoding: encoding}
	var err error
	switch encoding {
	case "zstd":
		cw.enc, err = zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedFastest))
	case "gzip":
		cw.enc = gzip.NewWriter(w)
	case "deflate":
		cw.enc, err = flate.NewWriter(w, flate.DefaultCompression)
	default:
		cw.encoding = ""
	}
	if err != nil {
		return nil, fmt.Errorf("create %s writer: %w", encoding, err)
	}
	return cw, nil
}

// Encoding returns the applied encoding, "" when writing through.
func (cw *ResponseWriter) Encoding() string { return cw.encoding }

func (cw *ResponseWriter) WriteHeader(code int) {
	if cw.wroteHeader {
		return
	}
	cw.wroteHeader = true
	if code == http.StatusNoContent || code == http.StatusNotModified {
		cw.enc, cw.encoding = nil, ""
	}
	if cw.encoding != "" {
		h := cw.Header()
		h.Set("Content-Encoding", cw.encoding)
		h.Add("Vary", "Accept-Encoding")
		h.Del("Content-Length")
	}
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *ResponseWriter) Write(p []byte) (int, error) {
	if !cw.wroteHeader {
		cw.WriteHeader(http.StatusOK)
	}
	if cw.enc == nil {
		return cw.ResponseWriter.Write(p)
	}
	return cw.enc.Write(p)
}

// Close flushes the encoder. It does not close the underlying writer.
func (cw *ResponseWriter) Close() error {
	if cw.enc == nil {
		return nil
	}
	return cw.enc.Close()
}

// NewReader returns a reader that decodes r according to encoding.
// "" and "identity" return r unchanged.
func NewReader(encoding string, r io.Reader) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return io.NopCloser(r), nil
	case "gzip":
		return gzip.NewReader(r)
	case "deflate":
		return flate.NewReader(r), nil
	case "zstd":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	}
	return nil, fmt.Errorf("unsupported content encoding %q", encoding)
}

// DecompressRequest replaces a compressed request body with its decoded
// form and removes the headers that described the encoded body.
func DecompressRequest(r *http.Request) error {
	ce := r.Header.Get("Content-Encoding")
	if ce == "" || r.Body == nil {
		return nil
	}
	body, err := NewReader(ce, r.Body)
	if err != nil {
		return err
	}
	r.Body = &bodyCloser{ReadCloser: body, orig: r.Body}
	r.Header.Del("Content-Encoding")
	r.Header.Del("Content-Length")
	r.ContentLength = -1
	return nil
}

type bodyCloser struct {
	io.ReadCloser
	orig io.Closer
}

func (b *bodyCloser) Close() error {
	return errors.Join(b.ReadCloser.Close(), b.orig.Close())
}

// Middleware decodes compressed request bodies and compresses responses
// for clients that accept it. Connection upgrades pass through untouched
// so websocket handlers keep access to the hijacker.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := DecompressRequest(r); err != nil {
			http.Error(w, err.Error(), http.StatusUnsupportedMediaType)
			return
		}
		if r.Header.Get("Upgrade") != "" {
			next.ServeHTTP(w, r)
			return
		}
		enc := SelectEncoding(r.Header.Get("Accept-Encoding"))
		if enc == "" {
			next.ServeHTTP(w, r)
			return
		}
		cw, err := NewResponseWriter(w, enc)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		defer cw.Close()
		next.ServeHTTP(cw, r)
	})
}
