// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package loader materializes parsers from definition files.
//
// A definition is either a Lua script whose factory function builds a parser
// through the argbridge module, or a YAML, TOML or JSON document describing
// one or more parsers declaratively. Any of them may be zstd compressed, in
// which case the file name carries an additional .zst suffix.
package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/yeetrun/argbridge/pkg/argparse"
	"github.com/yeetrun/argbridge/pkg/bridge"
	"github.com/yeetrun/argbridge/pkg/codecutil"
	"tailscale.com/types/logger"
)

// DefaultFactory is used when no factory name is given.
const DefaultFactory = "parser"

// DefaultTimeout bounds the execution of a Lua definition.
const DefaultTimeout = 10 * time.Second

// LoadError reports a definition that could not be turned into a parser.
type LoadError struct {
	Path    string
	Factory string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s (factory %q): %v", e.Path, e.Factory, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) Is(target error) bool { return target == bridge.ErrLoad }

// Loader reads definitions from disk.
type Loader struct {
	// BaseDir anchors relative paths. Empty means the working directory.
	BaseDir string
	// Timeout bounds a Lua definition's execution. Zero means
	// DefaultTimeout.
	Timeout time.Duration
	Logf    logger.Logf
}

var _ bridge.DefinitionLoader = (*Loader)(nil)

func (l *Loader) logf(format string, args ...any) {
	if l.Logf != nil {
		l.Logf(format, args...)
	}
}

// Resolve returns the file Load would read for path.
func (l *Loader) Resolve(path string) string {
	if filepath.IsAbs(path) || l.BaseDir == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(l.BaseDir, path)
}

// Load builds the parser produced by factory in the definition at path.
func (l *Loader) Load(path, factory string) (*argparse.Parser, error) {
	if factory == "" {
		factory = DefaultFactory
	}
	full := l.Resolve(path)
	p, err := l.load(full, factory)
	if err != nil {
		return nil, &LoadError{Path: full, Factory: factory, Err: err}
	}
	l.logf("loader: loaded %s from %s", factory, full)
	return p, nil
}

func (l *Loader) load(path, factory string) (*argparse.Parser, error) {
	data, ext, err := codecutil.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("definition %w", fs.ErrNotExist)
		}
		return nil, err
	}
	switch ext {
	case ".lua":
		timeout := l.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		return runLua(path, data, factory, timeout)
	case ".yaml", ".yml", ".toml", ".json":
		doc, err := decodeDocument(data, ext)
		if err != nil {
			return nil, err
		}
		return doc.Build(factory)
	}
	return nil, fmt.Errorf("unsupported definition type %q", ext)
}
