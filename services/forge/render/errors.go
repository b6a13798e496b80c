// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package render turns configuration trees into output text through a
// shared template environment. Templates are registered once under a
// reference name and executed per artifact; the environment exposes a
// fixed set of transform functions plus caller-supplied globals.
package render

import (
	"errors"
	"fmt"
)

// ErrTemplateNotFound indicates a render was requested for a reference
// that was never registered.
var ErrTemplateNotFound = errors.New("template not found")

// RenderError reports a failure while parsing or executing a template.
// It always names the template reference so batch callers can attribute
// the failure without tracking it themselves.
type RenderError struct {
	// Ref is the template reference that failed.
	Ref string

	// Err is the underlying parse or execution error.
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %q: %v", e.Ref, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}
