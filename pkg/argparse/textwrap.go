// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package argparse

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var whitespace = regexp.MustCompile(`[ \t\n\r\f\v]+`)

func runeLen(s string) int { return utf8.RuneCountInString(s) }

// collapseSpace turns every run of whitespace into a single space and trims
// the ends.
func collapseSpace(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// wrapLines greedily breaks text into lines of at most width runes. Runs of
// whitespace must already be collapsed. Words longer than width are split,
// preferably after a hyphen, and hyphenated words may break after the
// hyphen.
func wrapLines(text string, width int) []string {
	if width < 1 {
		width = 1
	}
	chunks := splitChunks(text)
	var lines []string
	for len(chunks) > 0 {
		if len(lines) > 0 && chunks[0] == " " {
			chunks = chunks[1:]
		}
		var line []string
		n := 0
		for len(chunks) > 0 && n+runeLen(chunks[0]) <= width {
			n += runeLen(chunks[0])
			line = append(line, chunks[0])
			chunks = chunks[1:]
		}
		if len(chunks) > 0 && runeLen(chunks[0]) > width && width-n > 0 {
			head, tail := splitLongWord(chunks[0], width-n)
			line = append(line, head)
			chunks[0] = tail
		}
		if len(line) > 0 && line[len(line)-1] == " " {
			line = line[:len(line)-1]
		}
		if len(line) > 0 {
			lines = append(lines, strings.Join(line, ""))
		}
	}
	return lines
}

// fillText wraps text and prefixes every line with indent.
func fillText(text string, width int, indent string) string {
	lines := wrapLines(text, width-runeLen(indent))
	for i := range lines {
		lines[i] = indent + lines[i]
	}
	return strings.Join(lines, "\n")
}

func splitLongWord(word string, space int) (string, string) {
	r := []rune(word)
	end := space
	if len(r) > space {
		if h := strings.LastIndex(string(r[:space]), "-"); h > 0 && strings.Trim(string(r[:h]), "-") != "" {
			end = utf8.RuneCountInString(string(r[:space])[:h]) + 1
		}
	}
	return string(r[:end]), string(r[end:])
}

// splitChunks splits collapsed text into words and single-space separators,
// further splitting words after hyphens that sit between letters.
func splitChunks(text string) []string {
	var chunks []string
	for i, word := range strings.Split(text, " ") {
		if i > 0 {
			chunks = append(chunks, " ")
		}
		if word == "" {
			continue
		}
		chunks = append(chunks, splitHyphens(word)...)
	}
	return chunks
}

func splitHyphens(word string) []string {
	r := []rune(word)
	isLetter := func(i int) bool {
		return i >= 0 && i < len(r) && unicode.IsLetter(r[i])
	}
	var out []string
	start := 0
	for i := 1; i < len(r)-1; i++ {
		if r[i] != '-' {
			continue
		}
		before := (isLetter(i-1) && isLetter(i-2)) || (isLetter(i-1) && i >= 3 && r[i-2] == '-' && isLetter(i-3))
		after := isLetter(i+1) && (isLetter(i+2) || (i+3 < len(r) && r[i+2] == '-' && isLetter(i+3)))
		if before && after {
			out = append(out, string(r[start:i+1]))
			start = i + 1
		}
	}
	return append(out, string(r[start:]))
}
