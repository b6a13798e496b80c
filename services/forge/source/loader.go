// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultExcludedDirs are directory names skipped during a walk:
// version-control metadata and common build caches.
var DefaultExcludedDirs = []string{
	".git", ".hg", ".svn",
	"node_modules", "vendor",
	"build", "dist", "target",
	"__pycache__", ".cache",
}

// DefaultExtensions are the file extensions loaded by default.
var DefaultExtensions = []string{".yaml", ".yml", ".cfg", ".conf", ".json"}

// LoaderOption is a functional option for configuring Loader.
type LoaderOption func(*Loader)

// WithExcludedDirs replaces the excluded directory name set.
func WithExcludedDirs(names ...string) LoaderOption {
	return func(l *Loader) {
		l.excluded = toSet(names)
	}
}

// WithExtensions replaces the loaded extension set. Extensions are
// matched case-insensitively and must include the leading dot.
func WithExtensions(exts ...string) LoaderOption {
	return func(l *Loader) {
		l.extensions = toSet(exts)
	}
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[strings.ToLower(item)] = struct{}{}
	}
	return set
}

// Loader reads directory trees into document sets.
//
// # Thread Safety
//
// Loader is safe for concurrent use; it holds no mutable state after
// construction.
type Loader struct {
	excluded   map[string]struct{}
	extensions map[string]struct{}
}

// NewLoader creates a Loader with the default exclusion and extension
// sets.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		excluded:   toSet(DefaultExcludedDirs),
		extensions: toSet(DefaultExtensions),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadDirectory reads every matching file under root.
//
// # Description
//
// Walks the tree with an explicit worklist rather than recursion, so
// arbitrarily deep trees cannot exhaust the stack. Excluded directories
// are pruned without descending. Unreadable files are recorded in the
// result's Errors and do not abort the remaining files.
//
// # Inputs
//
//   - ctx: Cancellation stops the walk between directories.
//   - root: Directory to load. Must exist.
//
// # Outputs
//
//   - *LoadResult: Documents keyed by slash-separated relative path.
//     Never nil on success.
//   - error: Non-nil if root cannot be read at all or ctx is cancelled.
func (l *Loader) LoadDirectory(ctx context.Context, root string) (*LoadResult, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", root, err)
	}
	if _, err := os.Stat(absRoot); err != nil {
		return nil, fmt.Errorf("source root %s: %w", root, err)
	}

	result := &LoadResult{
		Root:      absRoot,
		Documents: make(map[string]SourceDocument),
	}

	worklist := []string{absRoot}
	for len(worklist) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dir := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		entries, err := os.ReadDir(dir)
		if err != nil {
			if dir == absRoot {
				return nil, fmt.Errorf("read source root %s: %w", root, err)
			}
			rel, _ := filepath.Rel(absRoot, dir)
			result.Errors = append(result.Errors, LoadError{Path: filepath.ToSlash(rel), Err: err})
			continue
		}

		for _, entry := range entries {
			name := entry.Name()
			full := filepath.Join(dir, name)

			if entry.IsDir() {
				if _, skip := l.excluded[strings.ToLower(name)]; !skip {
					worklist = append(worklist, full)
				}
				continue
			}
			if !entry.Type().IsRegular() {
				continue
			}
			if _, ok := l.extensions[strings.ToLower(filepath.Ext(name))]; !ok {
				continue
			}

			rel, err := filepath.Rel(absRoot, full)
			if err != nil {
				continue
			}
			relPath := filepath.ToSlash(rel)

			doc, err := readDocument(full, relPath)
			if err != nil {
				result.Errors = append(result.Errors, LoadError{Path: relPath, Err: err})
				continue
			}
			result.Documents[relPath] = doc
		}
	}

	sort.Slice(result.Errors, func(i, j int) bool {
		return result.Errors[i].Path < result.Errors[j].Path
	})

	slog.Debug("LoadDirectory: load complete",
		"root", absRoot,
		"documents", len(result.Documents),
		"errors", len(result.Errors))
	return result, nil
}

// readDocument reads one file into a SourceDocument.
func readDocument(fullPath, relPath string) (SourceDocument, error) {
	info, err := os.Stat(fullPath)
	if err != nil {
		return SourceDocument{}, err
	}
	raw, err := os.ReadFile(fullPath)
	if err != nil {
		return SourceDocument{}, err
	}

	sum := sha256.Sum256(raw)
	return SourceDocument{
		Path:    relPath,
		Raw:     raw,
		Digest:  hex.EncodeToString(sum[:]),
		ModTime: info.ModTime(),
	}, nil
}
