// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package evidence provides the append-only, hash-linked operation ledger.
//
// Every pipeline operation is recorded as an EvidenceRecord whose hash
// covers its own fields plus the previous record's hash. Any insertion,
// deletion, or in-place mutation of a persisted record is detectable by
// Verify, which re-walks the whole chain.
//
// # Storage Format
//
// One JSON record per line, append-only:
//
//	{"id":...,"timestamp":...,"type":...,"source":...,"data":...,"hash":...,"previousHash":...}
//
// # Thread Safety
//
// Chain is safe for concurrent use within a process. Cross-process
// appends are serialized through an advisory file lock; a concurrent
// writer surfaces ErrChainLocked, and a handle that falls behind an
// external append re-syncs to the on-disk tail under the lock instead
// of forking the chain.
package evidence

import (
	"errors"
	"fmt"
)

// Sentinel errors for chain operations.
var (
	// ErrChainLocked is returned when another process holds the chain lock.
	ErrChainLocked = errors.New("evidence chain is locked by another writer")

	// ErrCorruptRecord is returned when a persisted line cannot be decoded.
	ErrCorruptRecord = errors.New("corrupt evidence record")
)

// IntegrityError reports the first record at which chain verification failed.
type IntegrityError struct {
	// RecordID is the id of the first record failing verification.
	RecordID string

	// Index is the zero-based position of the record in the chain.
	Index int

	// Reason describes which check failed.
	Reason string
}

// Error implements the error interface.
func (e *IntegrityError) Error() string {
	return fmt.Sprintf("evidence chain integrity violation at record %s (index %d): %s",
		e.RecordID, e.Index, e.Reason)
}
