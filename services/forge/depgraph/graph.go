// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package depgraph

import (
	"fmt"
	"sort"
)

// ModuleNode is one module with its declared dependency identifiers.
type ModuleNode struct {
	// ID is the module identifier.
	ID string `json:"id"`

	// DependsOn lists the ids this module depends on.
	DependsOn []string `json:"depends_on,omitempty"`
}

// Graph is a directed dependency graph over a set of ModuleNodes.
//
// # Thread Safety
//
// Graph is not safe for concurrent mutation; build it fully, then share
// it read-only.
type Graph struct {
	nodes map[string]ModuleNode
}

// NewGraph creates an empty dependency graph.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]ModuleNode)}
}

// Build constructs a graph from a module set.
//
// A duplicate module id is rejected rather than silently merged.
func Build(modules []ModuleNode) (*Graph, error) {
	g := NewGraph()
	for _, m := range modules {
		if err := g.Add(m); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Add inserts one module. Duplicate ids are an error.
func (g *Graph) Add(m ModuleNode) error {
	if _, ok := g.nodes[m.ID]; ok {
		return fmt.Errorf("duplicate module id %s", m.ID)
	}
	g.nodes[m.ID] = m
	return nil
}

// Len returns the number of modules.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// ids returns all module ids in sorted order for deterministic walks.
func (g *Graph) ids() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TopoSort orders modules so every module follows all its dependencies.
//
// # Description
//
// Depth-first post-order traversal over sorted ids. Before traversal,
// every declared edge is checked against the node set: an edge to an
// unknown module yields an UnresolvedDependencyError (never a dropped
// edge). A back edge during traversal yields a CycleError carrying
// exactly the modules on the cycle, in edge order; a self-dependency is
// the one-node degenerate case and is rejected identically.
//
// # Outputs
//
//   - []string: Dependency-first order of all module ids.
//   - error: *UnresolvedDependencyError or *CycleError.
func (g *Graph) TopoSort() ([]string, error) {
	ids := g.ids()

	// Validate edges up front so unresolved references are reported
	// distinctly from cycles.
	for _, id := range ids {
		for _, dep := range sortedDeps(g.nodes[id]) {
			if _, ok := g.nodes[dep]; !ok {
				return nil, &UnresolvedDependencyError{From: id, Missing: dep}
			}
		}
	}

	const (
		white = iota // unvisited
		gray         // on the current path
		black        // done
	)

	color := make(map[string]int, len(ids))
	onPath := make([]string, 0, len(ids))
	order := make([]string, 0, len(ids))

	var visit func(id string) *CycleError
	visit = func(id string) *CycleError {
		color[id] = gray
		onPath = append(onPath, id)

		for _, dep := range sortedDeps(g.nodes[id]) {
			switch color[dep] {
			case black:
				continue
			case gray:
				return extractCycle(onPath, dep)
			default:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}

		onPath = onPath[:len(onPath)-1]
		color[id] = black
		order = append(order, id)
		return nil
	}

	for _, id := range ids {
		if color[id] == white {
			if cycle := visit(id); cycle != nil {
				return nil, cycle
			}
		}
	}

	return order, nil
}

// sortedDeps returns a module's dependencies in sorted order.
func sortedDeps(m ModuleNode) []string {
	deps := make([]string, len(m.DependsOn))
	copy(deps, m.DependsOn)
	sort.Strings(deps)
	return deps
}

// extractCycle slices the traversal path from the revisited node onward,
// which is exactly the set of nodes on the cycle.
func extractCycle(onPath []string, start string) *CycleError {
	for i, id := range onPath {
		if id == start {
			cycle := make([]string, len(onPath)-i)
			copy(cycle, onPath[i:])
			return &CycleError{Path: cycle}
		}
	}
	// Unreachable: start is always on the path when colored gray.
	return &CycleError{Path: []string{start}}
}
