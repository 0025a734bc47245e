// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loader

import (
	"github.com/yeetrun/argbridge/pkg/argparse"
	"github.com/yeetrun/argbridge/pkg/bridge"
	"golang.org/x/sync/singleflight"
)

// Cache collapses concurrent loads of the same definition and factory into
// one, so that registering a definition under several names at once yields
// a single parser. Completed loads are not remembered; a later Load reads
// the file again.
type Cache struct {
	Loader bridge.DefinitionLoader

	group singleflight.Group
}

var _ bridge.DefinitionLoader = (*Cache)(nil)

// NewCache returns a Cache in front of l.
func NewCache(l bridge.DefinitionLoader) *Cache {
	return &Cache{Loader: l}
}

// Load implements bridge.DefinitionLoader.
func (c *Cache) Load(path, factory string) (*argparse.Parser, error) {
	if factory == "" {
		factory = DefaultFactory
	}
	key := path + "\x00" + factory
	if r, ok := c.Loader.(interface{ Resolve(string) string }); ok {
		key = r.Resolve(path) + "\x00" + factory
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.Loader.Load(path, factory)
	})
	if err != nil {
		return nil, err
	}
	return v.(*argparse.Parser), nil
}
