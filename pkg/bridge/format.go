// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bridge

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/yeetrun/argbridge/pkg/argparse"
	"gopkg.in/yaml.v3"
)

// Format selects how a parsed namespace is rendered.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat maps a user supplied name to a Format. The empty string is
// FormatJSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown result format %q", s)
}

// Serialize renders ns in namespace order, leaving out destinations whose
// value is nil.
func Serialize(ns *argparse.Namespace, f Format) (string, error) {
	switch f {
	case FormatJSON, "":
		set := argparse.NewNamespace()
		ns.Range(func(k string, v any) bool {
			if v != nil {
				set.Set(k, floatsOf(v))
			}
			return true
		})
		b, err := json.Marshal(set)
		if err != nil {
			return "", fmt.Errorf("encode json: %w", err)
		}
		return string(b), nil
	case FormatYAML:
		doc := &yaml.Node{Kind: yaml.MappingNode}
		var encErr error
		ns.Range(func(k string, v any) bool {
			if v == nil {
				return true
			}
			var val yaml.Node
			if err := val.Encode(floatsOf(v)); err != nil {
				encErr = fmt.Errorf("encode %s: %w", k, err)
				return false
			}
			doc.Content = append(doc.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
				&val)
			return true
		})
		if encErr != nil {
			return "", encErr
		}
		if len(doc.Content) == 0 {
			doc.Style = yaml.FlowStyle
		}
		b, err := yaml.Marshal(doc)
		if err != nil {
			return "", fmt.Errorf("encode yaml: %w", err)
		}
		return string(b), nil
	}
	return "", fmt.Errorf("unknown result format %q", f)
}

// pyFloat keeps a float looking like a float once serialized: whole numbers
// keep their ".0". YAML writes non-finite values as .nan and .inf; JSON has
// no spelling for them.
type pyFloat float64

func (f pyFloat) repr() string {
	v := float64(f)
	if a := math.Abs(v); a != 0 && (a < 1e-4 || a >= 1e16) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func (f pyFloat) MarshalJSON() ([]byte, error) {
	if v := float64(f); math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("unsupported float value %v", v)
	}
	return []byte(f.repr()), nil
}

func (f pyFloat) MarshalYAML() (any, error) {
	v := float64(f)
	val := f.repr()
	switch {
	case math.IsNaN(v):
		val = ".nan"
	case math.IsInf(v, 1):
		val = ".inf"
	case math.IsInf(v, -1):
		val = "-.inf"
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: val}, nil
}

// floatsOf wraps the floats in v, descending into lists.
func floatsOf(v any) any {
	switch x := v.(type) {
	case float64:
		return pyFloat(x)
	case float32:
		return pyFloat(x)
	case []float64:
		out := make([]any, len(x))
		for i, f := range x {
			out[i] = pyFloat(f)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = floatsOf(e)
		}
		return out
	}
	return v
}
