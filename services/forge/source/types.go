// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package source reads configuration documents from local directory
// trees or remote git repositories into an in-memory document set.
// Documents are immutable once loaded; re-loading produces a fresh set.
package source

import (
	"fmt"
	"time"
)

// SourceDocument is one loaded file.
type SourceDocument struct {
	// Path is the document's path relative to the load root, with
	// forward slashes.
	Path string

	// Raw is the file content as read.
	Raw []byte

	// Digest is the hex SHA-256 of Raw.
	Digest string

	// ModTime is the file's modification time at load.
	ModTime time.Time
}

// CommitInfo records the resolved commit identity of a remote load.
type CommitInfo struct {
	// Hash is the full commit SHA.
	Hash string `json:"hash"`

	// Message is the commit subject line.
	Message string `json:"message"`

	// Timestamp is the committer time.
	Timestamp time.Time `json:"timestamp"`
}

// LoadError attributes a per-file failure within a load.
type LoadError struct {
	// Path is the file that failed, relative to the load root.
	Path string

	// Err is the underlying failure.
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// LoadResult is the outcome of loading one root. A load with per-file
// failures still returns the documents that did read (partial success);
// only a failed clone/fetch aborts the whole operation.
type LoadResult struct {
	// Root is the absolute directory the documents were read from.
	Root string

	// Documents maps relative path to document.
	Documents map[string]SourceDocument

	// Commit is the resolved commit identity for remote loads, nil for
	// local directory loads.
	Commit *CommitInfo

	// Errors holds per-file load failures.
	Errors []LoadError
}

// OK reports whether the load completed without per-file errors.
func (r *LoadResult) OK() bool {
	return len(r.Errors) == 0
}
