// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package depgraph orders module dependencies topologically.
//
// Modules declare the identifiers they depend on; the graph produces an
// order in which every module appears after all of its dependencies.
// Cycles are fatal and reported with the full cycle path; an edge to an
// undeclared module is a distinct unresolved-dependency error, never a
// silently dropped edge.
package depgraph

import (
	"fmt"
	"strings"
)

// CycleError reports a dependency cycle with its full path.
type CycleError struct {
	// Path holds exactly the module ids on the cycle, in edge order.
	// A self-dependency yields a single-element path.
	Path []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	if len(e.Path) == 1 {
		return fmt.Sprintf("dependency cycle: module %s depends on itself", e.Path[0])
	}
	return fmt.Sprintf("dependency cycle: %s -> %s", strings.Join(e.Path, " -> "), e.Path[0])
}

// UnresolvedDependencyError reports an edge to an undeclared module.
type UnresolvedDependencyError struct {
	// From is the module declaring the dependency.
	From string

	// Missing is the undeclared module id.
	Missing string
}

// Error implements the error interface.
func (e *UnresolvedDependencyError) Error() string {
	return fmt.Sprintf("module %s depends on undeclared module %s", e.From, e.Missing)
}
