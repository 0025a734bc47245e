// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package argparse

import (
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Namespace is the result of a parse: destination names mapped to values in
// the order the destinations were first assigned.
//
// Values are one of nil, string, int, float64, bool, []any or whatever a
// custom action stored.
type Namespace struct {
	m *orderedmap.OrderedMap[string, any]
}

// NewNamespace returns an empty namespace.
func NewNamespace() *Namespace {
	return &Namespace{m: orderedmap.New[string, any]()}
}

// Get returns the value stored under dest.
func (n *Namespace) Get(dest string) (any, bool) {
	return n.m.Get(dest)
}

// Set assigns dest. An existing key keeps its position.
func (n *Namespace) Set(dest string, v any) {
	n.m.Set(dest, v)
}

// Has reports whether dest has been assigned, even to nil.
func (n *Namespace) Has(dest string) bool {
	_, ok := n.m.Get(dest)
	return ok
}

// Delete removes dest.
func (n *Namespace) Delete(dest string) {
	n.m.Delete(dest)
}

// Len returns the number of destinations.
func (n *Namespace) Len() int {
	return n.m.Len()
}

// Keys returns the destinations in insertion order.
func (n *Namespace) Keys() []string {
	keys := make([]string, 0, n.m.Len())
	for pair := n.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Range calls fn for each destination in insertion order until fn returns
// false.
func (n *Namespace) Range(fn func(dest string, v any) bool) {
	for pair := n.m.Oldest(); pair != nil; pair = pair.Next() {
		if !fn(pair.Key, pair.Value) {
			return
		}
	}
}

// Map returns an unordered copy of the namespace.
func (n *Namespace) Map() map[string]any {
	out := make(map[string]any, n.m.Len())
	n.Range(func(k string, v any) bool {
		out[k] = v
		return true
	})
	return out
}

// String returns the value of dest if it is a string.
func (n *Namespace) String(dest string) (string, bool) {
	v, _ := n.m.Get(dest)
	s, ok := v.(string)
	return s, ok
}

// Bool returns the value of dest if it is a bool.
func (n *Namespace) Bool(dest string) (bool, bool) {
	v, _ := n.m.Get(dest)
	b, ok := v.(bool)
	return b, ok
}

// MarshalJSON encodes the namespace as a JSON object in insertion order.
func (n *Namespace) MarshalJSON() ([]byte, error) {
	return n.m.MarshalJSON()
}

// Repr renders the namespace the way an interactive interpreter would print
// it, e.g. Namespace(cmd='read', option=False).
func (n *Namespace) Repr() string {
	var sb strings.Builder
	sb.WriteString("Namespace(")
	first := true
	n.Range(func(k string, v any) bool {
		if !first {
			sb.WriteString(", ")
		}
		first = false
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(repr(v))
		return true
	})
	sb.WriteByte(')')
	return sb.String()
}
