// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bridge

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yeetrun/argbridge/pkg/argparse"
	"tailscale.com/util/mak"
)

// DefinitionLoader materializes a parser from a definition file. The path is
// interpreted by the loader; factory names the entry point inside the file.
type DefinitionLoader interface {
	Load(path, factory string) (*argparse.Parser, error)
}

// Entry is a registered parser and where it came from.
type Entry struct {
	Name   string
	Parser *argparse.Parser

	// Revision changes every time the name is registered again.
	Revision uuid.UUID
	// Path and Factory are set for entries added by RegisterDefinition.
	Path    string
	Factory string

	Registered time.Time
}

// Registry maps names to parsers. It is safe for concurrent use.
// Registering an existing name replaces the previous entry; entries are
// never evicted.
type Registry struct {
	loader DefinitionLoader

	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewRegistry returns an empty registry. loader is used by
// RegisterDefinition and may be nil if definitions are never loaded.
func NewRegistry(loader DefinitionLoader) *Registry {
	return &Registry{loader: loader}
}

// Register stores p under name, replacing any previous parser.
func (r *Registry) Register(name string, p *argparse.Parser) *Entry {
	return r.store(&Entry{Name: name, Parser: p})
}

func (r *Registry) store(e *Entry) *Entry {
	e.Revision = uuid.New()
	e.Registered = time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	mak.Set(&r.entries, e.Name, e)
	return e
}

// RegisterDefinition loads factory from the definition at path and stores
// the resulting parser under name.
func (r *Registry) RegisterDefinition(name, path, factory string) (*Entry, error) {
	if r.loader == nil {
		return nil, fmt.Errorf("register %q: %w: no definition loader configured", name, ErrLoad)
	}
	p, err := r.loader.Load(path, factory)
	if err != nil {
		return nil, err
	}
	return r.store(&Entry{Name: name, Parser: p, Path: path, Factory: factory}), nil
}

// Resolve returns the parser registered as name.
func (r *Registry) Resolve(name string) (*argparse.Parser, error) {
	e, err := r.Entry(name)
	if err != nil {
		return nil, err
	}
	return e.Parser, nil
}

// Entry returns the registration record for name.
func (r *Registry) Entry(name string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return e, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}

// Len reports the number of registered names.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
