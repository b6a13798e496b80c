// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package governance

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/AleutianAI/configforge/services/forge/artifact"
	"github.com/AleutianAI/configforge/services/forge/evidence"
	"github.com/AleutianAI/configforge/services/forge/rules"
)

// GovernanceInfo names the charter context a manifest was generated
// under.
type GovernanceInfo struct {
	Charter        string      `json:"charter"`
	SemanticAnchor string      `json:"semanticAnchor"`
	Enforcement    Enforcement `json:"enforcement"`
}

// ManifestMetadata summarizes the compliance posture of the inventory.
type ManifestMetadata struct {
	TotalArtifacts    int     `json:"totalArtifacts"`
	GovernedArtifacts int     `json:"governedArtifacts"`
	ComplianceRate    float64 `json:"complianceRate"`
	Checksum          string  `json:"checksum"`
}

// Manifest is the governance snapshot of the artifact inventory. It is
// derived on demand, never persisted incrementally.
type Manifest struct {
	ID         string                    `json:"id"`
	Version    string                    `json:"version"`
	Timestamp  time.Time                 `json:"timestamp"`
	Governance GovernanceInfo            `json:"governance"`
	Artifacts  []artifact.ArtifactRecord `json:"artifacts"`
	Metadata   ManifestMetadata          `json:"metadata"`
}

// BuildManifest snapshots the artifact inventory against the current
// violation set.
//
// # Description
//
// An artifact counts as governed when no violation targets it. The
// compliance rate is governed over total (1.0 for an empty inventory).
// The checksum folds every artifact's digest in id order, so manifests
// over identical inventories agree regardless of generation time. A
// manifest-generation record is appended to the evidence chain.
//
// # Inputs
//
//   - records: The artifact inventory, as listed by the registry.
//   - violations: Current violations; targets are matched against
//     artifact ids and paths.
//
// # Outputs
//
//   - *Manifest: The snapshot.
//   - error: Non-nil only if the evidence append fails.
func (o *Orchestrator) BuildManifest(records []artifact.ArtifactRecord, violations []rules.Violation) (*Manifest, error) {
	flagged := make(map[string]struct{}, len(violations))
	for _, v := range violations {
		flagged[v.Target] = struct{}{}
	}

	governed := 0
	h := sha256.New()
	for _, rec := range records {
		_, badID := flagged[rec.ID]
		_, badPath := flagged[rec.Path]
		if !badID && !badPath {
			governed++
		}
		fmt.Fprintf(h, "%s:%s\n", rec.ID, rec.Hash)
	}

	rate := 1.0
	if len(records) > 0 {
		rate = float64(governed) / float64(len(records))
	}

	m := &Manifest{
		ID:        o.charter.ID,
		Version:   o.charter.Version,
		Timestamp: o.now(),
		Governance: GovernanceInfo{
			Charter:        o.charter.ID,
			SemanticAnchor: o.charter.SemanticAnchor,
			Enforcement:    o.charter.Enforcement,
		},
		Artifacts: records,
		Metadata: ManifestMetadata{
			TotalArtifacts:    len(records),
			GovernedArtifacts: governed,
			ComplianceRate:    rate,
			Checksum:          hex.EncodeToString(h.Sum(nil)),
		},
	}

	if _, err := o.chain.Append(evidence.TypeManifest, o.charter.ID, map[string]any{
		"artifacts":      m.Metadata.TotalArtifacts,
		"governed":       m.Metadata.GovernedArtifacts,
		"complianceRate": m.Metadata.ComplianceRate,
	}); err != nil {
		return nil, fmt.Errorf("record manifest generation: %w", err)
	}
	return m, nil
}
