// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build tools

// Package tools pins addlicense, which stamps the BSD header onto new
// source files:
//
//	go run github.com/google/addlicense -c AUTHORS -l bsd ./pkg ./cmd
package tools

import (
	_ "github.com/google/addlicense"
)
