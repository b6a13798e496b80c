// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package document

import (
	"strings"
)

// AnchorDefinition records one &name occurrence.
type AnchorDefinition struct {
	// Name is the anchor name without the & sigil.
	Name string `json:"name"`

	// Path identifies the defining document.
	Path string `json:"path"`

	// Line is the 1-based line of the definition.
	Line int `json:"line"`
}

// AliasUsage records one *name occurrence.
type AliasUsage struct {
	// Name is the referenced anchor name without the * sigil.
	Name string `json:"name"`

	// Path identifies the using document.
	Path string `json:"path"`

	// Line is the 1-based line of the usage.
	Line int `json:"line"`
}

// ScanReferences lexically extracts anchor definitions and alias usages.
//
// # Description
//
// Runs line by line, independent of the full YAML parse, so malformed
// documents still yield partial reference information. Comments and
// quoted strings are skipped; a sigil counts only when preceded by a
// token boundary (start of line, whitespace, ':', '-', ',', '[', '{').
//
// # Inputs
//
//   - path: Document identity recorded on every hit.
//   - raw: Document text.
//
// # Outputs
//
//   - []AnchorDefinition: All &name occurrences in document order.
//   - []AliasUsage: All *name occurrences in document order.
func ScanReferences(path, raw string) ([]AnchorDefinition, []AliasUsage) {
	var defs []AnchorDefinition
	var uses []AliasUsage

	for i, line := range strings.Split(raw, "\n") {
		names := scanLine(line)
		for _, hit := range names {
			if hit.anchor {
				defs = append(defs, AnchorDefinition{Name: hit.name, Path: path, Line: i + 1})
			} else {
				uses = append(uses, AliasUsage{Name: hit.name, Path: path, Line: i + 1})
			}
		}
	}

	return defs, uses
}

// refHit is one sigil occurrence on a line.
type refHit struct {
	name   string
	anchor bool // true for &name, false for *name
}

// scanLine extracts reference sigils from one line, honoring quotes and
// comments.
func scanLine(line string) []refHit {
	var hits []refHit

	var quote byte // active quote character, 0 when outside quotes
	for i := 0; i < len(line); i++ {
		ch := line[i]

		if quote != 0 {
			if ch == quote {
				quote = 0
			}
			continue
		}

		switch ch {
		case '\'', '"':
			quote = ch
		case '#':
			// Comment to end of line; '#' inside a token is not a comment.
			if i == 0 || isBoundary(line[i-1]) {
				return hits
			}
		case '&', '*':
			if i > 0 && !isBoundary(line[i-1]) {
				continue
			}
			name := scanName(line[i+1:])
			if name == "" {
				continue
			}
			hits = append(hits, refHit{name: name, anchor: ch == '&'})
			i += len(name)
		}
	}

	return hits
}

// isBoundary reports whether ch can precede a reference sigil.
func isBoundary(ch byte) bool {
	switch ch {
	case ' ', '\t', ':', '-', ',', '[', '{':
		return true
	}
	return false
}

// scanName consumes the anchor-name characters at the start of s.
func scanName(s string) string {
	end := 0
	for end < len(s) {
		ch := s[end]
		if ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' ||
			ch >= '0' && ch <= '9' || ch == '_' || ch == '-' {
			end++
			continue
		}
		break
	}
	return s[:end]
}

// anchorSnippet extracts the self-contained YAML block that defines an
// anchor, re-rooted for injection into another document's scope preamble.
//
// For a definition like
//
//	shared: &shared
//	  timeout: 30
//
// the snippet is
//
//	__anchor_shared__: &shared
//	  timeout: 30
//
// which defines the same anchor under a synthetic key that cannot collide
// with user keys and is stripped from the parsed tree afterwards.
func anchorSnippet(raw string, def AnchorDefinition) string {
	lines := strings.Split(raw, "\n")
	if def.Line < 1 || def.Line > len(lines) {
		return ""
	}

	defLine := lines[def.Line-1]
	sigil := "&" + def.Name
	idx := strings.Index(defLine, sigil)
	if idx < 0 {
		return ""
	}

	baseIndent := indentOf(defLine)

	var b strings.Builder
	b.WriteString(syntheticKey(def.Name))
	b.WriteString(": ")
	b.WriteString(strings.TrimRight(defLine[idx:], " \t"))
	b.WriteString("\n")

	for _, line := range lines[def.Line:] {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			b.WriteString("\n")
			continue
		}
		if indentOf(line) <= baseIndent {
			break
		}
		// Dedent relative to the definition line; the synthetic key sits
		// at column zero.
		b.WriteString(line[baseIndent:])
		b.WriteString("\n")
	}

	return b.String()
}

// indentOf counts leading spaces.
func indentOf(line string) int {
	n := 0
	for n < len(line) && line[n] == ' ' {
		n++
	}
	return n
}

// syntheticKey names the preamble key carrying a foreign anchor.
func syntheticKey(anchor string) string {
	return "__anchor_" + anchor + "__"
}

// isSyntheticKey reports whether a top-level key was injected by the
// resolver's scope preamble.
func isSyntheticKey(key string) bool {
	return strings.HasPrefix(key, "__anchor_") && strings.HasSuffix(key, "__")
}
