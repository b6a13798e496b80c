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
	"fmt"

	"gopkg.in/yaml.v3"
)

// ConfigurationTree is the parsed object graph of one document.
//
// Alias expansion happens during parsing: the tree contains the aliased
// values in place, never unresolved markers.
type ConfigurationTree struct {
	// Path identifies the source document.
	Path string

	// Root is the fully expanded top-level mapping.
	Root map[string]any
}

// Parse parses a standalone document against its own anchor scope.
//
// # Description
//
// Scans for anchor definitions and alias usages first, then runs the full
// YAML parse. A usage with no matching definition in the document fails
// with UndefinedReferenceError before the parse is attempted, so the
// error always names the missing anchor. The top level must be a mapping.
//
// # Inputs
//
//   - path: Document identity for diagnostics.
//   - raw: Document text.
//
// # Outputs
//
//   - *ConfigurationTree: Expanded tree on success.
//   - error: *UndefinedReferenceError or *ParseError.
func Parse(path, raw string) (*ConfigurationTree, error) {
	defs, uses := ScanReferences(path, raw)

	defined := make(map[string]bool, len(defs))
	for _, def := range defs {
		defined[def.Name] = true
	}
	for _, use := range uses {
		if !defined[use.Name] {
			return nil, &UndefinedReferenceError{Alias: use.Name, Path: use.Path, Line: use.Line}
		}
	}

	return decodeTree(path, raw)
}

// ParseValue accepts a pre-parsed object in place of markup text.
//
// # Description
//
// Callers that already hold a decoded configuration (e.g. from an API
// payload) pass it through here; the same non-mapping-root rule applies.
//
// # Inputs
//
//   - path: Document identity for diagnostics.
//   - value: Pre-parsed value; must be a string-keyed map.
//
// # Outputs
//
//   - *ConfigurationTree: Tree wrapping the given mapping.
//   - error: *ParseError wrapping ErrNonMappingRoot for non-mapping input.
func ParseValue(path string, value any) (*ConfigurationTree, error) {
	switch m := value.(type) {
	case map[string]any:
		return &ConfigurationTree{Path: path, Root: m}, nil
	case nil:
		return nil, &ParseError{Path: path, Err: ErrNonMappingRoot}
	default:
		return nil, &ParseError{Path: path, Err: fmt.Errorf("%w: got %T", ErrNonMappingRoot, value)}
	}
}

// decodeTree runs the full YAML parse and mapping-root check.
func decodeTree(path, raw string) (*ConfigurationTree, error) {
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(raw), &node); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	root := &node
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return nil, &ParseError{Path: path, Err: ErrNonMappingRoot}
		}
		root = root.Content[0]
	}
	if root.Kind == 0 {
		// Empty document.
		return nil, &ParseError{Path: path, Err: ErrNonMappingRoot}
	}
	if root.Kind != yaml.MappingNode {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("%w: got %s", ErrNonMappingRoot, kindName(root.Kind))}
	}

	var m map[string]any
	if err := root.Decode(&m); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	return &ConfigurationTree{Path: path, Root: m}, nil
}

// kindName names a yaml node kind for diagnostics.
func kindName(kind yaml.Kind) string {
	switch kind {
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.MappingNode:
		return "mapping"
	case yaml.AliasNode:
		return "alias"
	case yaml.DocumentNode:
		return "document"
	default:
		return "unknown"
	}
}
