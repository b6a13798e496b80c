// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build windows

package lock

import (
	"os"

	"golang.org/x/sys/windows"
)

// WindowsFileLocker implements FileLocker using LockFileEx.
type WindowsFileLocker struct{}

// Lock acquires an exclusive lock via LockFileEx with
// LOCKFILE_FAIL_IMMEDIATELY for non-blocking behavior.
func (l *WindowsFileLocker) Lock(f *os.File) error {
	ol := new(windows.Overlapped)
	err := windows.LockFileEx(windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0, 1, 0, ol)
	if err != nil {
		if err == windows.ERROR_LOCK_VIOLATION {
			return ErrFileLocked
		}
		return err
	}
	return nil
}

// Unlock releases the lock via UnlockFileEx.
func (l *WindowsFileLocker) Unlock(f *os.File) error {
	ol := new(windows.Overlapped)
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 1, 0, ol)
}

// newPlatformLocker returns the Windows file locker.
func newPlatformLocker() FileLocker {
	return &WindowsFileLocker{}
}
