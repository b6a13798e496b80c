// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build unix

package lock

import (
	"os"
	"syscall"
)

// UnixFileLocker implements FileLocker using syscall.Flock.
//
// # Description
//
// Uses advisory file locking via flock(2). Locks are:
// - Process-scoped (inherited by child processes)
// - Released on file close or process exit
// - Non-blocking when LOCK_NB is specified
type UnixFileLocker struct{}

// Lock acquires an exclusive lock using flock(2).
//
// Uses LOCK_EX|LOCK_NB for a non-blocking exclusive lock. Returns
// ErrFileLocked immediately if the file is already locked.
func (l *UnixFileLocker) Lock(f *os.File) error {
	err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err != nil {
		if err == syscall.EWOULDBLOCK {
			return ErrFileLocked
		}
		return err
	}
	return nil
}

// Unlock releases the lock using flock(2).
func (l *UnixFileLocker) Unlock(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}

// newPlatformLocker returns the Unix file locker.
func newPlatformLocker() FileLocker {
	return &UnixFileLocker{}
}
