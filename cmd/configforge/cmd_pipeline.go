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
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/configforge/services/forge/artifact"
	"github.com/AleutianAI/configforge/services/forge/evidence"
	"github.com/AleutianAI/configforge/services/forge/governance"
	"github.com/AleutianAI/configforge/services/forge/pipeline"
	forgebadger "github.com/AleutianAI/configforge/services/forge/storage/badger"
	"github.com/AleutianAI/configforge/services/forge/telemetry"
)

// runPipeline is the CLI handler for the "configforge pipeline" command.
//
// # Description
//
// Wires the full stack: template renderer, badger-backed artifact
// registry, content-addressed writer, evidence chain, and the
// governance orchestrator. Validation gates rendering per the
// charter's enforcement mode; --full remediates auto-fixable
// violations first.
//
// # Exit Codes
//
//   - 0: Pipeline completed, all artifacts written
//   - 1: Violations or per-item stage errors
//   - 2: Fatal error (unreadable tree, dependency cycle, bad charter)
func runPipeline(cmd *cobra.Command, args []string) {
	start := time.Now()
	root := sourceRoot(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx, telemetry.DefaultConfig())
	if err != nil {
		logger.Warn("Telemetry disabled", "error", err)
	} else {
		defer shutdown(context.Background())
	}

	if metricsAddr != "" {
		go func() {
			if err := http.ListenAndServe(metricsAddr, telemetry.MetricsHandler()); err != nil {
				logger.Warn("Metrics endpoint stopped", "addr", metricsAddr, "error", err)
			}
		}()
	}

	renderer, err := buildRenderer(root)
	if err != nil {
		OutputError(jsonOutput, "Failed to load templates", err)
		os.Exit(CLIExitError)
	}

	db, err := forgebadger.OpenWithPath(resolveUnder(root, stateDir, filepath.Join(".forge", "registry")))
	if err != nil {
		OutputError(jsonOutput, "Failed to open artifact registry", err)
		os.Exit(CLIExitError)
	}
	defer db.Close()

	writer, err := artifact.NewWriter(resolveUnder(root, outputDir, "rendered"), artifact.NewRegistry(db))
	if err != nil {
		OutputError(jsonOutput, "Failed to create artifact writer", err)
		os.Exit(CLIExitError)
	}

	var chain *evidence.Chain
	var report *pipeline.RunReport
	runFn := func(ctx context.Context) error {
		runner := pipeline.NewRunner(renderer, writer, chain)
		r, err := runner.Run(ctx, root)
		report = r
		return err
	}

	orchestrator, evaluator, evidenceChain, err := buildGovernance(root, governance.WithPipelineRunner(runFn))
	if err != nil {
		OutputError(jsonOutput, "Failed to initialize governance", err)
		os.Exit(CLIExitError)
	}
	chain = evidenceChain
	if fullPipeline {
		registerBuiltinFixers(orchestrator, evaluator.Rules())
	}

	result, err := orchestrator.Pipeline(ctx, fullPipeline)
	if err != nil && !errors.Is(err, governance.ErrCriticalViolations) {
		OutputError(jsonOutput, "Pipeline failed", err)
		os.Exit(CLIExitError)
	}

	gov := governanceOutput(orchestrator, result, orchestrator.Charter().Strict())
	data := PipelineOutput{Governance: &gov}
	if report != nil {
		data.Documents = report.Documents
		data.Order = report.Order
		data.Artifacts = report.Artifacts
		data.Warnings = len(report.Warnings)
		data.Errors = report.Errors
		if report.Manifest != nil {
			data.ManifestChecksum = report.Manifest.Checksum()
		}
	}

	hasFindings := !result.Success || (report != nil && !report.OK())
	if !jsonOutput {
		printPipelineReport(root, result, report)
	}
	os.Exit(OutputResult(jsonOutput, "pipeline", start, data, hasFindings, nil))
}

// printPipelineReport writes a human-readable pipeline summary.
func printPipelineReport(root string, result *governance.Result, report *pipeline.RunReport) {
	printViolations(result.Violations)
	if report == nil {
		fmt.Println("Rendering skipped: validation did not pass.")
		return
	}
	fmt.Printf("Documents loaded:  %d\n", report.Documents)
	fmt.Printf("Render order:      %s\n", strings.Join(report.Order, " -> "))
	fmt.Printf("Artifacts written: %d\n", report.Artifacts)
	if report.Manifest != nil {
		fmt.Printf("Manifest checksum: %s\n", report.Manifest.Checksum())
	}
	for _, w := range report.Warnings {
		fmt.Printf("  warning: %s: %s\n", w.Path, w.Message)
	}
	for _, e := range report.Errors {
		fmt.Printf("  %s error [%s]: %s\n", e.Stage, e.Target, e.Error)
	}
	fmt.Printf("Evidence chain:    %s\n", chainPath(root))
}
