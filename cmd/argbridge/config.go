// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/yeetrun/argbridge/pkg/bridge"
)

const (
	defaultConfigFile = "argbridge.toml"
	defaultListen     = "127.0.0.1:7420"
)

// config is the contents of argbridge.toml.
type config struct {
	// BaseDir anchors relative definition paths.
	BaseDir string `toml:"base_dir"`
	// Listen is the address serve listens on.
	Listen string `toml:"listen"`
	// Server is the URL call and list talk to.
	Server string `toml:"server"`
	// Format is the default result format.
	Format      string             `toml:"format"`
	Definitions []definitionConfig `toml:"definitions"`
}

type definitionConfig struct {
	Name    string `toml:"name"`
	Path    string `toml:"path"`
	Factory string `toml:"factory"`
}

// loadConfig reads path, or ./argbridge.toml when path is empty and the file
// exists, then applies the ARGBRIDGE_* environment overrides.
func loadConfig(path string) (*config, error) {
	c := &config{}
	explicit := path != ""
	if !explicit {
		path = defaultConfigFile
	}
	md, err := toml.DecodeFile(path, c)
	switch {
	case err == nil:
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if v := os.Getenv("ARGBRIDGE_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("ARGBRIDGE_BASE_DIR"); v != "" {
		c.BaseDir = v
	}
	if v := os.Getenv("ARGBRIDGE_SERVER"); v != "" {
		c.Server = v
	}
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Server == "" {
		c.Server = "http://" + c.Listen
	}
	if _, err := bridge.ParseFormat(c.Format); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	seen := map[string]bool{}
	for i, d := range c.Definitions {
		if d.Name == "" || d.Path == "" {
			return nil, fmt.Errorf("%s: definitions[%d]: name and path are required", path, i)
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("%s: definition %q listed twice", path, d.Name)
		}
		seen[d.Name] = true
	}
	return c, nil
}

// format resolves a --format flag against the configured default.
func (c *config) format(flag string) (bridge.Format, error) {
	if flag == "" {
		flag = c.Format
	}
	return bridge.ParseFormat(flag)
}
