// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package artifact persists rendered output to disk and tracks every
// written artifact in a durable registry keyed by artifact id. The
// registry outlives individual pipeline runs; records are updated on
// write and removed on delete. A manifest is a derived snapshot of the
// registry, recomputed on demand and never persisted incrementally.
package artifact

import "errors"

var (
	// ErrArtifactNotFound indicates the registry has no record for the
	// requested artifact id.
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrEmptyID indicates an operation was called without an artifact id.
	ErrEmptyID = errors.New("artifact id must not be empty")

	// ErrEmptyPath indicates a write was requested without a target path.
	ErrEmptyPath = errors.New("output path must not be empty")

	// ErrPathEscapes indicates a target path would resolve outside the
	// writer's output directory.
	ErrPathEscapes = errors.New("output path escapes output directory")
)
