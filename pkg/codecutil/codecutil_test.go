// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package codecutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "demo.YAML")
	body := []byte("api_version: \"1.0\"\n")
	if err := os.WriteFile(plain, body, 0o644); err != nil {
		t.Fatal(err)
	}
	packed := plain + ZstdExt
	if err := ZstdCompress(plain, packed); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{plain, packed} {
		got, ext, err := ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile(%s) error = %v", path, err)
		}
		if string(got) != string(body) {
			t.Errorf("ReadFile(%s) = %q, want %q", path, got, body)
		}
		if ext != ".yaml" {
			t.Errorf("ReadFile(%s) ext = %q, want .yaml", path, ext)
		}
	}
}

func TestReadFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.lua.zst")
	if err := os.WriteFile(path, []byte("not zstd"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := ReadFile(path); err == nil {
		t.Fatal("ReadFile(corrupt) error = nil")
	}
	if _, _, err := ReadFile(filepath.Join(t.TempDir(), "missing.lua")); !os.IsNotExist(err) {
		t.Fatalf("ReadFile(missing) error = %v, want not exist", err)
	}
}
