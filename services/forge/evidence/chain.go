// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package evidence

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/configforge/services/forge/lock"
)

// GenesisHash is the sentinel previousHash of the first record in a chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Common record types emitted by the pipeline and the governance layer.
const (
	TypeLoad       = "source_load"
	TypeParse      = "document_parse"
	TypeGraph      = "dependency_order"
	TypeRender     = "template_render"
	TypeWrite      = "artifact_write"
	TypeVerify     = "artifact_verify"
	TypeValidate   = "governance_validate"
	TypeTransition = "governance_transition"
	TypeFix        = "governance_fix"
	TypeManifest   = "manifest_generate"
)

// EvidenceRecord is one immutable, hash-linked ledger entry.
//
// The hash covers (id, timestamp, type, source, data, previousHash). Data
// is kept as raw JSON so verification hashes the exact persisted bytes.
type EvidenceRecord struct {
	ID           string          `json:"id"`
	Timestamp    string          `json:"timestamp"`
	Type         string          `json:"type"`
	Source       string          `json:"source"`
	Data         json.RawMessage `json:"data"`
	Hash         string          `json:"hash"`
	PreviousHash string          `json:"previousHash"`
}

// computeHash derives a record's hash from its hashed fields.
func computeHash(id, timestamp, recordType, source string, data json.RawMessage, previousHash string) string {
	h := sha256.New()
	for _, field := range []string{id, timestamp, recordType, source, string(data), previousHash} {
		h.Write([]byte(field))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyResult reports the outcome of a full chain walk.
type VerifyResult struct {
	// Valid is true when every record verified clean.
	Valid bool `json:"valid"`

	// RecordCount is the number of records examined.
	RecordCount int `json:"record_count"`

	// FailedID is the id of the first bad record when Valid is false.
	FailedID string `json:"failed_id,omitempty"`

	// FailedIndex is the zero-based position of the first bad record.
	FailedIndex int `json:"failed_index,omitempty"`

	// Reason describes the first failed check when Valid is false.
	Reason string `json:"reason,omitempty"`
}

// Err converts an invalid result into an *IntegrityError, or nil when valid.
func (r VerifyResult) Err() error {
	if r.Valid {
		return nil
	}
	return &IntegrityError{RecordID: r.FailedID, Index: r.FailedIndex, Reason: r.Reason}
}

// Summary is a compact chain status report.
type Summary struct {
	RecordCount int    `json:"record_count"`
	HeadHash    string `json:"head_hash,omitempty"`
	TailHash    string `json:"tail_hash,omitempty"`
	Verified    bool   `json:"verified"`
}

// Chain is the append-only evidence ledger backed by a JSONL file.
//
// # Description
//
// Appends are O(1): the chain caches the in-memory tail hash and writes
// each new record with O_APPEND, instead of reloading and rewriting the
// whole file per append. The full chain is re-validated only on explicit
// Verify calls.
//
// # Thread Safety
//
// Safe for concurrent use. Appends are serialized by an internal mutex
// and, across processes, by an advisory lock on a sidecar file.
type Chain struct {
	mu       sync.Mutex
	path     string
	flock    *lock.FileLock
	tailHash string
	count    int
	size     int64
	now      func() time.Time
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithClock overrides the timestamp source. Intended for tests.
func WithClock(now func() time.Time) ChainOption {
	return func(c *Chain) {
		c.now = now
	}
}

// Open creates or resumes the evidence chain at the given file path.
//
// # Description
//
// When the file exists, the chain is scanned once to recover the tail
// hash and record count; when it does not, an empty chain is initialized
// and the file is created on first append.
//
// # Inputs
//
//   - path: Chain file location. The parent directory is created if missing.
//
// # Outputs
//
//   - *Chain: Ready-to-append chain.
//   - error: Non-nil if the existing file cannot be read or decoded.
func Open(path string, opts ...ChainOption) (*Chain, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating chain directory: %w", err)
	}

	c := &Chain{
		path:     path,
		flock:    lock.New(path + ".lock"),
		tailHash: GenesisHash,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	records, err := c.load()
	if err != nil {
		return nil, err
	}
	if n := len(records); n > 0 {
		c.tailHash = records[n-1].Hash
		c.count = n
	}
	if info, err := os.Stat(path); err == nil {
		c.size = info.Size()
	}

	return c, nil
}

// Append records one pipeline operation and links it to the chain tail.
//
// # Inputs
//
//   - recordType: Operation category (see the Type constants).
//   - source: Component or path that produced the record.
//   - data: Arbitrary JSON-serializable payload. May be nil.
//
// # Outputs
//
//   - *EvidenceRecord: The persisted record, including its hash.
//   - error: ErrChainLocked if another process is appending, other errors
//     on serialization or filesystem failure.
func (c *Chain) Append(recordType, source string, data any) (*EvidenceRecord, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshaling evidence data: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.flock.Acquire(); err != nil {
		if errors.Is(err, lock.ErrFileLocked) {
			return nil, fmt.Errorf("%w: %s", ErrChainLocked, c.path)
		}
		return nil, err
	}
	defer c.flock.Release()

	if err := c.resyncLocked(); err != nil {
		return nil, err
	}

	record := &EvidenceRecord{
		ID:           uuid.NewString(),
		Timestamp:    c.now().UTC().Format(time.RFC3339Nano),
		Type:         recordType,
		Source:       source,
		Data:         payload,
		PreviousHash: c.tailHash,
	}
	record.Hash = computeHash(record.ID, record.Timestamp, record.Type, record.Source, record.Data, record.PreviousHash)

	line, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshaling evidence record: %w", err)
	}

	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening chain file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return nil, fmt.Errorf("appending evidence record: %w", err)
	}

	c.tailHash = record.Hash
	c.count++
	c.size += int64(len(line) + 1)
	return record, nil
}

// resyncLocked re-reads the on-disk tail when another handle has grown
// the file since this handle last synced, so the next record links to
// the true tail instead of forking the chain. Caller holds c.mu and the
// file lock.
func (c *Chain) resyncLocked() error {
	info, err := os.Stat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			c.tailHash = GenesisHash
			c.count = 0
			c.size = 0
			return nil
		}
		return fmt.Errorf("stat chain file: %w", err)
	}
	if info.Size() == c.size {
		return nil
	}

	records, err := c.load()
	if err != nil {
		return err
	}
	c.tailHash = GenesisHash
	if n := len(records); n > 0 {
		c.tailHash = records[n-1].Hash
	}
	c.count = len(records)
	c.size = info.Size()
	return nil
}

// Records returns every persisted record in chain order.
func (c *Chain) Records() ([]EvidenceRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load()
}

// Len returns the number of records appended so far.
func (c *Chain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Verify re-walks the entire chain and checks every link.
//
// # Description
//
// For each record, the hash is recomputed from the persisted fields and
// compared to the stored hash, and the stored previousHash is compared to
// the prior record's stored hash (GenesisHash for the first record). The
// walk stops at the first failure.
//
// # Outputs
//
//   - VerifyResult: Valid=true when the walk completes clean; otherwise
//     FailedID and Reason identify the first bad record.
//   - error: Non-nil only on read failure, never for integrity findings.
func (c *Chain) Verify() (VerifyResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := c.load()
	if err != nil {
		return VerifyResult{}, err
	}

	result := VerifyResult{Valid: true, RecordCount: len(records)}

	previous := GenesisHash
	for i, record := range records {
		if record.PreviousHash != previous {
			result.Valid = false
			result.FailedID = record.ID
			result.FailedIndex = i
			result.Reason = fmt.Sprintf("previousHash %s does not match prior record hash %s", record.PreviousHash, previous)
			return result, nil
		}

		recomputed := computeHash(record.ID, record.Timestamp, record.Type, record.Source, record.Data, record.PreviousHash)
		if recomputed != record.Hash {
			result.Valid = false
			result.FailedID = record.ID
			result.FailedIndex = i
			result.Reason = fmt.Sprintf("stored hash %s does not match recomputed hash %s", record.Hash, recomputed)
			return result, nil
		}

		previous = record.Hash
	}

	return result, nil
}

// Summarize returns a compact status report including a verification pass.
func (c *Chain) Summarize() (Summary, error) {
	result, err := c.Verify()
	if err != nil {
		return Summary{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	summary := Summary{
		RecordCount: result.RecordCount,
		Verified:    result.Valid,
	}

	records, err := c.load()
	if err != nil {
		return Summary{}, err
	}
	if len(records) > 0 {
		summary.HeadHash = records[0].Hash
		summary.TailHash = records[len(records)-1].Hash
	}

	return summary, nil
}

// load reads and decodes every persisted record. Caller holds c.mu.
func (c *Chain) load() ([]EvidenceRecord, error) {
	f, err := os.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening chain file: %w", err)
	}
	defer f.Close()

	var records []EvidenceRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var record EvidenceRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrCorruptRecord, lineNo, err)
		}
		records = append(records, record)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading chain file: %w", err)
	}
	return records, nil
}
