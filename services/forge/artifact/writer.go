// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/configforge/services/forge/render"
)

// DefaultBatchConcurrency bounds parallel writes in WriteBatch.
const DefaultBatchConcurrency = 8

// WriterOption is a functional option for configuring Writer.
type WriterOption func(*Writer)

// WithClock overrides the writer's time source. Used by tests.
func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) {
		w.now = now
	}
}

// WithBatchConcurrency sets the parallel write limit for WriteBatch.
func WithBatchConcurrency(n int) WriterOption {
	return func(w *Writer) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// Writer persists rendered artifacts under a fixed output directory and
// records every write in the registry.
//
// # Thread Safety
//
// Writer is safe for concurrent use. The registry serializes record
// updates; file writes for distinct artifacts are independent.
type Writer struct {
	outputDir   string
	registry    *Registry
	concurrency int
	now         func() time.Time
}

// NewWriter creates a Writer rooted at outputDir.
//
// # Inputs
//
//   - outputDir: Directory all artifact paths resolve under. Created
//     on first write if missing.
//   - registry: The durable artifact registry. Must not be nil.
//
// # Outputs
//
//   - *Writer: Configured writer.
//   - error: Non-nil if outputDir is empty or registry is nil.
func NewWriter(outputDir string, registry *Registry, opts ...WriterOption) (*Writer, error) {
	if outputDir == "" {
		return nil, errors.New("output directory must not be empty")
	}
	if registry == nil {
		return nil, errors.New("registry must not be nil")
	}

	w := &Writer{
		outputDir:   filepath.Clean(outputDir),
		registry:    registry,
		concurrency: DefaultBatchConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// OutputDir returns the directory artifact paths resolve under.
func (w *Writer) OutputDir() string {
	return w.outputDir
}

// resolvePath joins outputPath onto the output directory and rejects
// paths that escape it.
func (w *Writer) resolvePath(outputPath string) (string, error) {
	abs := filepath.Clean(filepath.Join(w.outputDir, outputPath))
	rel, err := filepath.Rel(w.outputDir, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, outputPath)
	}
	return abs, nil
}

// hashContent returns the hex SHA-256 digest of content.
func hashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// WriteResult describes one completed write.
type WriteResult struct {
	// Path is the absolute output path.
	Path string `json:"path"`

	// Hash is the hex SHA-256 digest of the written content.
	Hash string `json:"hash"`

	// Size is the content length in bytes.
	Size int64 `json:"size"`
}

// Write persists content for artifactID at outputPath (relative to the
// output directory), creating missing directories, and upserts the
// registry record. Overwriting an existing artifact keeps its original
// Created time.
//
// # Outputs
//
//   - WriteResult: Path, digest, and size of the written artifact.
//   - error: Non-nil on invalid input or I/O failure. The registry is
//     not updated if the file write fails.
func (w *Writer) Write(artifactID string, content []byte, outputPath string) (WriteResult, error) {
	if artifactID == "" {
		return WriteResult{}, ErrEmptyID
	}
	if outputPath == "" {
		return WriteResult{}, ErrEmptyPath
	}

	abs, err := w.resolvePath(outputPath)
	if err != nil {
		return WriteResult{}, err
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0750); err != nil {
		return WriteResult{}, fmt.Errorf("create output directory for %s: %w", artifactID, err)
	}
	if err := os.WriteFile(abs, content, 0644); err != nil {
		return WriteResult{}, fmt.Errorf("write artifact %s: %w", artifactID, err)
	}

	now := w.now()
	rec := ArtifactRecord{
		ID:       artifactID,
		Path:     abs,
		Hash:     hashContent(content),
		Size:     int64(len(content)),
		Modified: now,
		Created:  now,
	}
	if prev, err := w.registry.Get(artifactID); err == nil {
		rec.Created = prev.Created
	}

	if err := w.registry.Put(rec); err != nil {
		return WriteResult{}, err
	}

	slog.Debug("Write: artifact persisted",
		"artifact_id", artifactID, "path", abs, "size", rec.Size)
	return WriteResult{Path: abs, Hash: rec.Hash, Size: rec.Size}, nil
}

// WriteRendered persists a render.RenderedArtifact, carrying its
// metadata into the registry record.
func (w *Writer) WriteRendered(a render.RenderedArtifact) (WriteResult, error) {
	res, err := w.Write(a.ID, []byte(a.Content), a.TargetPath)
	if err != nil {
		return WriteResult{}, err
	}
	if len(a.Metadata) > 0 {
		rec, err := w.registry.Get(a.ID)
		if err != nil {
			return WriteResult{}, err
		}
		rec.Metadata = a.Metadata
		if err := w.registry.Put(rec); err != nil {
			return WriteResult{}, err
		}
	}
	return res, nil
}

// VerifyResult reports whether an artifact on disk still matches its
// recorded digest.
type VerifyResult struct {
	// Valid is true when the recomputed digest matches the record.
	Valid bool `json:"valid"`

	// Expected is the digest stored in the registry.
	Expected string `json:"expected"`

	// Actual is the recomputed digest, empty if the file is missing.
	Actual string `json:"actual,omitempty"`

	// Reason explains a failed verification.
	Reason string `json:"reason,omitempty"`
}

// Verify recomputes the digest of the artifact currently on disk and
// compares it against the registry record.
//
// # Outputs
//
//   - VerifyResult: Valid=false covers both digest mismatch and a
//     missing file.
//   - error: ErrArtifactNotFound if the id has no registry record.
func (w *Writer) Verify(artifactID string) (VerifyResult, error) {
	rec, err := w.registry.Get(artifactID)
	if err != nil {
		return VerifyResult{}, err
	}

	content, err := os.ReadFile(rec.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return VerifyResult{
				Valid:    false,
				Expected: rec.Hash,
				Reason:   fmt.Sprintf("artifact file missing: %s", rec.Path),
			}, nil
		}
		return VerifyResult{}, fmt.Errorf("read artifact %s: %w", artifactID, err)
	}

	actual := hashContent(content)
	if actual != rec.Hash {
		return VerifyResult{
			Valid:    false,
			Expected: rec.Hash,
			Actual:   actual,
			Reason:   "content digest mismatch",
		}, nil
	}
	return VerifyResult{Valid: true, Expected: rec.Hash, Actual: actual}, nil
}

// Delete removes the artifact file and its registry record.
//
// The record is removed even if the file is already gone; a missing
// file is not an error on delete.
func (w *Writer) Delete(artifactID string) error {
	rec, err := w.registry.Get(artifactID)
	if err != nil {
		return err
	}

	if err := os.Remove(rec.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove artifact %s: %w", artifactID, err)
	}
	return w.registry.Delete(artifactID)
}

// BatchItem is one write in a WriteBatch call.
type BatchItem struct {
	ArtifactID string
	Content    []byte
	OutputPath string
}

// BatchItemResult reports the outcome of one batch item.
type BatchItemResult struct {
	ArtifactID string      `json:"artifactId"`
	Result     WriteResult `json:"result,omitempty"`
	Err        error       `json:"-"`
	Error      string      `json:"error,omitempty"`
}

// BatchResult aggregates a WriteBatch call.
type BatchResult struct {
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Items     []BatchItemResult `json:"items"`
}

// WriteBatch applies writes independently per item: one item's failure
// does not abort the others. Items run concurrently up to the writer's
// configured limit.
//
// # Outputs
//
//   - BatchResult: Per-item outcomes in input order plus aggregate
//     counts. Never nil items for a non-empty batch.
//   - error: Non-nil only if ctx is cancelled before all items finish.
func (w *Writer) WriteBatch(ctx context.Context, items []BatchItem) (BatchResult, error) {
	results := make([]BatchItemResult, len(items))

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)

	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := w.Write(item.ArtifactID, item.Content, item.OutputPath)

			mu.Lock()
			defer mu.Unlock()
			results[i] = BatchItemResult{ArtifactID: item.ArtifactID, Result: res, Err: err}
			if err != nil {
				results[i].Error = err.Error()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BatchResult{Items: results}, err
	}

	var batch BatchResult
	batch.Items = results
	for _, r := range results {
		if r.Err != nil {
			batch.Failed++
		} else {
			batch.Succeeded++
		}
	}

	slog.Debug("WriteBatch: completed",
		"total", len(items), "succeeded", batch.Succeeded, "failed", batch.Failed)
	return batch, nil
}

// Manifest is a point-in-time snapshot of the artifact inventory.
// It is derived from the registry on demand and not persisted
// incrementally.
type Manifest struct {
	Timestamp     time.Time        `json:"timestamp"`
	OutputDir     string           `json:"outputDir"`
	ArtifactCount int              `json:"artifactCount"`
	Artifacts     []ArtifactRecord `json:"artifacts"`
}

// Checksum returns an aggregate digest over the manifest's artifact
// digests, in id order. Two manifests with identical inventories have
// identical checksums regardless of generation time.
func (m *Manifest) Checksum() string {
	ids := make([]string, len(m.Artifacts))
	byID := make(map[string]string, len(m.Artifacts))
	for i, a := range m.Artifacts {
		ids[i] = a.ID
		byID[a.ID] = a.Hash
	}
	sort.Strings(ids)

	h := sha256.New()
	for _, id := range ids {
		fmt.Fprintf(h, "%s:%s\n", id, byID[id])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// BuildManifest snapshots the current registry contents.
func (w *Writer) BuildManifest() (*Manifest, error) {
	records, err := w.registry.List()
	if err != nil {
		return nil, err
	}
	return &Manifest{
		Timestamp:     w.now(),
		OutputDir:     w.outputDir,
		ArtifactCount: len(records),
		Artifacts:     records,
	}, nil
}
