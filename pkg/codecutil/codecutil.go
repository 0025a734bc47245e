// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package codecutil reads and writes zstd compressed definition files.
package codecutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// ZstdExt is the suffix of compressed definition files.
const ZstdExt = ".zst"

// ReadFile returns the contents of path, decompressed when the name ends in
// ZstdExt, along with the extension that describes the contents.
func ReadFile(path string) (data []byte, ext string, err error) {
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	ext = strings.ToLower(filepath.Ext(path))
	if ext != ZstdExt {
		return data, ext, nil
	}
	data, err = ZstdDecode(data)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", path, err)
	}
	inner := strings.TrimSuffix(path, filepath.Ext(path))
	return data, strings.ToLower(filepath.Ext(inner)), nil
}

// ZstdDecode decompresses a complete zstd stream.
func ZstdDecode(src []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(src, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress: %w", err)
	}
	return out, nil
}

// ZstdCompress writes a compressed copy of src to dst.
func ZstdCompress(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	if err := ZstdCopy(dstFile, srcFile); err != nil {
		dstFile.Close()
		return err
	}
	return dstFile.Close()
}

// ZstdCopy compresses everything read from r into w.
func ZstdCopy(w io.Writer, r io.Reader) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	if _, err := io.Copy(enc, r); err != nil {
		enc.Close()
		return fmt.Errorf("failed to compress: %w", err)
	}
	return enc.Close()
}
