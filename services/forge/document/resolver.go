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
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Warning is a non-fatal finding from reference resolution.
type Warning struct {
	// Path identifies the document, empty for unit-wide findings.
	Path string `json:"path,omitempty"`

	// Line is the 1-based line, zero when not line-specific.
	Line int `json:"line,omitempty"`

	// Message describes the finding.
	Message string `json:"message"`
}

// UnitResult is the outcome of resolving one document set.
//
// Documents are processed independently; a failed document appears in
// Errors while the rest still produce trees.
type UnitResult struct {
	// Trees maps document path to its expanded tree.
	Trees map[string]*ConfigurationTree

	// Errors maps document path to its parse or resolution failure.
	Errors map[string]error

	// Warnings are non-fatal findings, including unused anchors.
	Warnings []Warning
}

// OK reports whether every document resolved cleanly.
func (r *UnitResult) OK() bool {
	return len(r.Errors) == 0
}

// Resolver expands anchor/alias references across a document set.
//
// # Description
//
// The resolution unit's anchor scope is the union of every document's
// anchor definitions. An alias used in one document may reference an
// anchor defined in a sibling; the resolver injects the defining block
// into the using document's scope before the full parse, then strips the
// injection from the resulting tree.
//
// # Thread Safety
//
// Safe for concurrent use.
type Resolver struct {
	concurrency int
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithConcurrency caps the number of documents parsed in parallel.
func WithConcurrency(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// NewResolver creates a Resolver.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{concurrency: runtime.NumCPU()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveAll parses every document in a shared anchor scope.
//
// # Description
//
// Two passes. First, a sequential lexical scan collects the unit-wide
// anchor definitions and per-document alias usages. Second, documents
// are parsed concurrently and independently: a document whose aliases
// all resolve yields a fully expanded tree; a document using an unknown
// alias yields an UndefinedReferenceError naming it; one document's
// failure never blocks the others. Anchors that no document uses are
// reported as warnings.
//
// # Inputs
//
//   - docs: Mapping from document path to raw text.
//
// # Outputs
//
//   - *UnitResult: Trees, per-document errors, and warnings. Never nil.
func (r *Resolver) ResolveAll(docs map[string]string) *UnitResult {
	result := &UnitResult{
		Trees:  make(map[string]*ConfigurationTree, len(docs)),
		Errors: make(map[string]error),
	}

	// Pass one: unit-wide reference scan.
	defsByName := make(map[string]AnchorDefinition)
	localDefs := make(map[string]map[string]bool, len(docs))
	usesByDoc := make(map[string][]AliasUsage, len(docs))
	usedNames := make(map[string]bool)

	paths := make([]string, 0, len(docs))
	for path := range docs {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		defs, uses := ScanReferences(path, docs[path])
		localDefs[path] = make(map[string]bool, len(defs))
		for _, def := range defs {
			localDefs[path][def.Name] = true
			// First definition wins for cross-document lookup.
			if _, ok := defsByName[def.Name]; !ok {
				defsByName[def.Name] = def
			}
		}
		usesByDoc[path] = uses
		for _, use := range uses {
			usedNames[use.Name] = true
		}
	}

	// Pass two: concurrent per-document parse.
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(r.concurrency)

	for _, path := range paths {
		g.Go(func() error {
			tree, err := r.resolveOne(path, docs, localDefs[path], usesByDoc[path], defsByName)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors[path] = err
			} else {
				result.Trees[path] = tree
			}
			return nil
		})
	}
	g.Wait()

	// Unused anchors are a policy concern, not a correctness one.
	names := make([]string, 0, len(defsByName))
	for name := range defsByName {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !usedNames[name] {
			def := defsByName[name]
			result.Warnings = append(result.Warnings, Warning{
				Path:    def.Path,
				Line:    def.Line,
				Message: fmt.Sprintf("anchor %q defined but never used", name),
			})
		}
	}

	return result
}

// resolveOne parses one document against the unit scope.
func (r *Resolver) resolveOne(path string, docs map[string]string, local map[string]bool, uses []AliasUsage, defsByName map[string]AnchorDefinition) (*ConfigurationTree, error) {
	// Validate every usage before parsing so the error names the alias.
	for _, use := range uses {
		if _, ok := defsByName[use.Name]; !ok {
			return nil, &UndefinedReferenceError{Alias: use.Name, Path: use.Path, Line: use.Line}
		}
	}

	preamble, err := r.buildPreamble(path, docs, local, uses, defsByName)
	if err != nil {
		return nil, err
	}

	raw := docs[path]
	tree, err := decodeTree(path, preamble+raw)
	if err != nil {
		return nil, err
	}

	// Strip the injected scope carriers from the visible tree.
	for key := range tree.Root {
		if isSyntheticKey(key) {
			delete(tree.Root, key)
		}
	}

	return tree, nil
}

// buildPreamble assembles foreign anchor definitions needed by a document,
// following alias references inside the injected blocks transitively.
// Blocks are emitted dependencies-first so every anchor is defined before
// any alias that references it.
func (r *Resolver) buildPreamble(path string, docs map[string]string, local map[string]bool, uses []AliasUsage, defsByName map[string]AnchorDefinition) (string, error) {
	var needed []string
	seen := make(map[string]bool)

	var visit func(name string) error
	visit = func(name string) error {
		if seen[name] || local[name] {
			return nil
		}
		seen[name] = true

		def, ok := defsByName[name]
		if !ok {
			return &UndefinedReferenceError{Alias: name, Path: path}
		}
		snippet := anchorSnippet(docs[def.Path], def)
		if snippet == "" {
			return &UndefinedReferenceError{Alias: name, Path: path}
		}

		// An injected block may itself alias further anchors; those must
		// be injected ahead of it.
		_, nested := ScanReferences(def.Path, snippet)
		for _, use := range nested {
			if err := visit(use.Name); err != nil {
				return err
			}
		}

		needed = append(needed, snippet)
		return nil
	}

	for _, use := range uses {
		if err := visit(use.Name); err != nil {
			return "", err
		}
	}

	if len(needed) == 0 {
		return "", nil
	}
	return strings.Join(needed, "") + "\n", nil
}
