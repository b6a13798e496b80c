// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lock

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileLockAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.lock")

	l := New(path)
	if err := l.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	// Lock file exists while held.
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("lock file missing: %v", err)
	}

	if err := l.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	// Reacquire after release succeeds.
	if err := l.Acquire(); err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
}

func TestFileLockAcquireIdempotent(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "chain.lock"))
	if err := l.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	// Second acquire on the same instance is a no-op.
	if err := l.Acquire(); err != nil {
		t.Fatalf("repeat Acquire: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
}

func TestFileLockReleaseWithoutAcquire(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "chain.lock"))
	if err := l.Release(); err != nil {
		t.Fatalf("Release without Acquire: %v", err)
	}
}
