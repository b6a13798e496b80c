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
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// keyPrefix namespaces registry entries within the database.
const keyPrefix = "artifact:"

// ArtifactRecord is the registry entry for one written artifact.
type ArtifactRecord struct {
	// ID identifies the artifact; registry entries are keyed by it.
	ID string `json:"id"`

	// Path is the absolute output path of the artifact on disk.
	Path string `json:"path"`

	// Hash is the SHA-256 digest of the content at write time, hex encoded.
	Hash string `json:"hash"`

	// Size is the content length in bytes.
	Size int64 `json:"size"`

	// Modified is the time of the most recent write for this id.
	Modified time.Time `json:"modified"`

	// Created is the time of the first write for this id. Preserved
	// across overwrites.
	Created time.Time `json:"created"`

	// Metadata carries optional caller annotations.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Registry is the durable store of ArtifactRecords.
//
// # Thread Safety
//
// Registry is safe for concurrent use; BadgerDB transactions provide
// the isolation.
type Registry struct {
	db *badger.DB
}

// NewRegistry wraps an open database as an artifact registry.
func NewRegistry(db *badger.DB) *Registry {
	return &Registry{db: db}
}

func recordKey(id string) []byte {
	return []byte(keyPrefix + id)
}

// Put stores or overwrites the record for rec.ID.
func (r *Registry) Put(rec ArtifactRecord) error {
	if rec.ID == "" {
		return ErrEmptyID
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal artifact record %s: %w", rec.ID, err)
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec.ID), data)
	})
	if err != nil {
		return fmt.Errorf("store artifact record %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns the record for id, or ErrArtifactNotFound.
func (r *Registry) Get(id string) (ArtifactRecord, error) {
	if id == "" {
		return ArtifactRecord{}, ErrEmptyID
	}

	var rec ArtifactRecord
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ArtifactRecord{}, fmt.Errorf("artifact %s: %w", id, ErrArtifactNotFound)
	}
	if err != nil {
		return ArtifactRecord{}, fmt.Errorf("load artifact record %s: %w", id, err)
	}
	return rec, nil
}

// Delete removes the record for id. Deleting an unknown id returns
// ErrArtifactNotFound so callers can distinguish it from a clean delete.
func (r *Registry) Delete(id string) error {
	if id == "" {
		return ErrEmptyID
	}

	err := r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(recordKey(id)); err != nil {
			return err
		}
		return txn.Delete(recordKey(id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("artifact %s: %w", id, ErrArtifactNotFound)
	}
	if err != nil {
		return fmt.Errorf("delete artifact record %s: %w", id, err)
	}
	return nil
}

// List returns every record in the registry, sorted by artifact id.
func (r *Registry) List() ([]ArtifactRecord, error) {
	var records []ArtifactRecord

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec ArtifactRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("decode record %s: %w", it.Item().Key(), err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list artifact records: %w", err)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}
