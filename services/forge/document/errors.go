// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package document parses structured configuration markup into trees and
// resolves internal anchor/alias references.
//
// # Description
//
// Parsing is YAML-based (gopkg.in/yaml.v3) and rejects any document whose
// top level is not a mapping. Reference handling runs two lexical scans
// before the full parse: anchor definitions (&name) and alias usages
// (*name) are extracted line by line, so malformed documents still yield
// partial reference information for diagnostics.
//
// A resolution unit is a set of documents sharing one anchor scope. An
// alias whose anchor is defined in a sibling document resolves against
// that document's definition; an alias with no definition anywhere in the
// unit fails with UndefinedReferenceError. Anchors that are never used
// are warnings, never errors.
//
// # Thread Safety
//
// Parser and Resolver are safe for concurrent use; ConfigurationTree
// values are not safe for concurrent mutation.
package document

import (
	"errors"
	"fmt"
)

// ErrNonMappingRoot is returned when a document's top level is not a mapping.
var ErrNonMappingRoot = errors.New("document root is not a mapping")

// ParseError reports a malformed document.
type ParseError struct {
	// Path identifies the offending document.
	Path string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// UndefinedReferenceError reports an alias usage with no matching anchor
// definition in its resolution unit.
type UndefinedReferenceError struct {
	// Alias is the referenced anchor name.
	Alias string

	// Path identifies the document using the alias.
	Path string

	// Line is the 1-based line of the usage.
	Line int
}

// Error implements the error interface.
func (e *UndefinedReferenceError) Error() string {
	return fmt.Sprintf("%s:%d: undefined reference to anchor %q", e.Path, e.Line, e.Alias)
}
