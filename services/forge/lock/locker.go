// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lock provides cross-process file locking for single-writer
// resources such as the evidence chain file.
//
// # Description
//
// The evidence chain is append-only and must never see interleaved writers:
// two processes appending concurrently would fork the hash chain and
// silently drop records. FileLock wraps a platform-specific advisory lock
// (flock on Unix, LockFileEx on Windows) held on a sidecar ".lock" file
// next to the guarded resource.
//
// # Thread Safety
//
// A FileLock instance must not be shared between goroutines; in-process
// serialization is the caller's responsibility (the evidence chain holds a
// mutex around Acquire/Release).
package lock

import (
	"errors"
	"fmt"
	"os"
)

// ErrFileLocked is returned when the lock is held by another process.
var ErrFileLocked = errors.New("file is locked by another process")

// FileLocker abstracts platform-specific file locking operations.
//
// Unix uses syscall.Flock, Windows uses LockFileEx.
type FileLocker interface {
	// Lock acquires an exclusive lock on the file.
	// Non-blocking: returns ErrFileLocked immediately if held elsewhere.
	Lock(f *os.File) error

	// Unlock releases the lock. Safe to call even if not locked.
	Unlock(f *os.File) error
}

// FileLock guards a resource with a sidecar lock file.
type FileLock struct {
	path   string
	locker FileLocker
	file   *os.File
}

// New creates a FileLock for the given lock file path.
//
// The lock file is created on first Acquire and left in place afterwards;
// only the advisory lock, not the file's existence, conveys ownership.
func New(path string) *FileLock {
	return &FileLock{
		path:   path,
		locker: newPlatformLocker(),
	}
}

// Acquire takes the exclusive lock.
//
// # Outputs
//
//   - error: nil on success, ErrFileLocked if another process holds the
//     lock, other errors on filesystem failure.
func (l *FileLock) Acquire() error {
	if l.file != nil {
		return nil
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("opening lock file %s: %w", l.path, err)
	}

	if err := l.locker.Lock(f); err != nil {
		f.Close()
		if errors.Is(err, ErrFileLocked) {
			return fmt.Errorf("%w: %s", ErrFileLocked, l.path)
		}
		return fmt.Errorf("locking %s: %w", l.path, err)
	}

	l.file = f
	return nil
}

// Release drops the lock. Safe to call when not held.
func (l *FileLock) Release() error {
	if l.file == nil {
		return nil
	}

	err := l.locker.Unlock(l.file)
	closeErr := l.file.Close()
	l.file = nil

	if err != nil {
		return fmt.Errorf("unlocking %s: %w", l.path, err)
	}
	return closeErr
}
