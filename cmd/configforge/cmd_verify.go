// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/configforge/services/forge/artifact"
	forgebadger "github.com/AleutianAI/configforge/services/forge/storage/badger"
)

// VerifyOutput combines chain and artifact verification results.
type VerifyOutput struct {
	Chain     ChainVerifyOutput     `json:"chain"`
	Artifacts *ArtifactVerifyOutput `json:"artifacts,omitempty"`
}

// runVerify is the CLI handler for the "configforge verify" command.
//
// # Exit Codes
//
//   - 0: Chain (and artifacts, with --artifacts) verified intact
//   - 1: Integrity findings
//   - 2: Error
func runVerify(cmd *cobra.Command, args []string) {
	start := time.Now()
	root := sourceRoot(args)

	chain, err := openChain(root)
	if err != nil {
		OutputError(jsonOutput, "Failed to open evidence chain", err)
		os.Exit(CLIExitError)
	}

	result, err := chain.Verify()
	if err != nil {
		OutputError(jsonOutput, "Chain verification failed", err)
		os.Exit(CLIExitError)
	}

	out := VerifyOutput{
		Chain: ChainVerifyOutput{
			Path:        chainPath(root),
			Valid:       result.Valid,
			RecordCount: result.RecordCount,
			FailedID:    result.FailedID,
			FailedIndex: result.FailedIndex,
			Reason:      result.Reason,
		},
	}
	if result.Valid {
		if summary, err := chain.Summarize(); err == nil {
			out.Chain.HeadHash = summary.HeadHash
			out.Chain.TailHash = summary.TailHash
		}
	}

	hasFindings := !result.Valid

	if verifyArtifacts {
		artifactOut, err := verifyArtifactStore(root)
		if err != nil {
			OutputError(jsonOutput, "Artifact verification failed", err)
			os.Exit(CLIExitError)
		}
		out.Artifacts = artifactOut
		if artifactOut.Invalid > 0 {
			hasFindings = true
		}
	}

	if !jsonOutput {
		printVerifyReport(out)
	}
	os.Exit(OutputResult(jsonOutput, "verify", start, out, hasFindings, nil))
}

// verifyArtifactStore re-hashes every registered artifact against its
// recorded digest.
func verifyArtifactStore(root string) (*ArtifactVerifyOutput, error) {
	db, err := forgebadger.OpenWithPath(resolveUnder(root, stateDir, filepath.Join(".forge", "registry")))
	if err != nil {
		return nil, fmt.Errorf("opening artifact registry: %w", err)
	}
	defer db.Close()

	registry := artifact.NewRegistry(db)
	writer, err := artifact.NewWriter(resolveUnder(root, outputDir, "rendered"), registry)
	if err != nil {
		return nil, err
	}

	records, err := registry.List()
	if err != nil {
		return nil, err
	}

	out := &ArtifactVerifyOutput{Checked: len(records)}
	for _, rec := range records {
		vr, err := writer.Verify(rec.ID)
		if err != nil {
			return nil, fmt.Errorf("verifying %s: %w", rec.ID, err)
		}
		if vr.Valid {
			out.Valid++
			continue
		}
		out.Invalid++
		out.Findings = append(out.Findings, ArtifactVerifyFinding{
			ID:       rec.ID,
			Path:     rec.Path,
			Expected: vr.Expected,
			Actual:   vr.Actual,
			Reason:   vr.Reason,
		})
	}
	return out, nil
}

// printVerifyReport writes a human-readable verification summary.
func printVerifyReport(out VerifyOutput) {
	if out.Chain.Valid {
		fmt.Printf("Evidence chain OK: %d records, tail %s\n", out.Chain.RecordCount, out.Chain.TailHash)
	} else {
		fmt.Printf("Evidence chain BROKEN at record %d (%s): %s\n",
			out.Chain.FailedIndex, out.Chain.FailedID, out.Chain.Reason)
	}

	if out.Artifacts == nil {
		return
	}
	if out.Artifacts.Invalid == 0 {
		fmt.Printf("Artifact store OK: %d artifacts verified\n", out.Artifacts.Checked)
		return
	}
	fmt.Printf("Artifact store: %d of %d artifacts failed verification\n",
		out.Artifacts.Invalid, out.Artifacts.Checked)
	for _, f := range out.Artifacts.Findings {
		fmt.Printf("  %s (%s): %s\n", f.ID, f.Path, f.Reason)
	}
}
