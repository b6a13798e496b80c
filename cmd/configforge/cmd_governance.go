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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/configforge/services/forge/governance"
	"github.com/AleutianAI/configforge/services/forge/rules"
	"github.com/AleutianAI/configforge/services/forge/source"
)

// governanceOutput converts an orchestrator result into CLI output.
func governanceOutput(o *governance.Orchestrator, result *governance.Result, strict bool) GovernanceOutput {
	critical := 0
	for _, v := range result.Violations {
		if v.Severity.Critical() {
			critical++
		}
	}
	return GovernanceOutput{
		Charter:    o.Charter().ID,
		State:      string(o.State()),
		Success:    result.Success,
		Strict:     strict,
		Violations: result.Violations,
		Critical:   critical,
		Events:     result.Events,
		Evidence:   len(result.AuditTrail),
	}
}

// runValidate is the CLI handler for the "configforge validate" command.
//
// # Exit Codes
//
//   - 0: No violations found
//   - 1: Violations found (including strict-mode critical failures)
//   - 2: Error
func runValidate(cmd *cobra.Command, args []string) {
	start := time.Now()
	root := sourceRoot(args)

	orchestrator, _, _, err := buildGovernance(root)
	if err != nil {
		OutputError(jsonOutput, "Failed to initialize governance", err)
		os.Exit(CLIExitError)
	}

	strict := strictMode || orchestrator.Charter().Strict()
	result, err := orchestrator.Validate(context.Background(), strict)
	if err != nil && !errors.Is(err, governance.ErrCriticalViolations) {
		OutputError(jsonOutput, "Validation failed", err)
		os.Exit(CLIExitError)
	}

	if !jsonOutput {
		fmt.Printf("Charter: %s (%s enforcement)\n", orchestrator.Charter().ID, orchestrator.Charter().Enforcement)
		printViolations(result.Violations)
		if err != nil {
			fmt.Printf("FAILED: %v\n", err)
		}
	}

	data := governanceOutput(orchestrator, result, strict)
	os.Exit(OutputResult(jsonOutput, "validate", start, data, !result.Success, nil))
}

// runCheck reports compliance without enforcing it. Never fails on
// violations; the exit code still distinguishes findings from clean.
func runCheck(cmd *cobra.Command, args []string) {
	start := time.Now()
	root := sourceRoot(args)

	orchestrator, _, _, err := buildGovernance(root)
	if err != nil {
		OutputError(jsonOutput, "Failed to initialize governance", err)
		os.Exit(CLIExitError)
	}

	result, err := orchestrator.Check(context.Background())
	if err != nil {
		OutputError(jsonOutput, "Check failed", err)
		os.Exit(CLIExitError)
	}

	if !jsonOutput {
		printViolations(result.Violations)
	}

	data := governanceOutput(orchestrator, result, false)
	os.Exit(OutputResult(jsonOutput, "check", start, data, !result.Success, nil))
}

// runFix applies auto-fixable remediations and re-validates once.
//
// # Exit Codes
//
//   - 0: Tree compliant after remediation
//   - 1: Violations remain
//   - 2: Error
func runFix(cmd *cobra.Command, args []string) {
	start := time.Now()
	root := sourceRoot(args)

	orchestrator, evaluator, _, err := buildGovernance(root)
	if err != nil {
		OutputError(jsonOutput, "Failed to initialize governance", err)
		os.Exit(CLIExitError)
	}
	registerBuiltinFixers(orchestrator, evaluator.Rules())

	result, err := orchestrator.Fix(context.Background(), autoFix)
	if err != nil {
		OutputError(jsonOutput, "Fix failed", err)
		os.Exit(CLIExitError)
	}

	if !jsonOutput {
		printViolations(result.Violations)
	}

	data := governanceOutput(orchestrator, result, false)
	os.Exit(OutputResult(jsonOutput, "fix", start, data, !result.Success, nil))
}

// registerBuiltinFixers wires the standard remediations.
//
// Required-marker rules remediate by appending the missing marker line;
// other rule shapes have no generic remediation and stay manual.
func registerBuiltinFixers(o *governance.Orchestrator, ruleSet []rules.Rule) {
	for _, rule := range ruleSet {
		required, ok := rule.Check.(rules.RequiredMarker)
		if !ok {
			continue
		}
		marker := required.Marker
		o.RegisterFixer(rule.ID, func(content []byte, _ rules.Violation) ([]byte, bool) {
			if len(content) > 0 && content[len(content)-1] != '\n' {
				content = append(content, '\n')
			}
			return append(content, []byte(marker+"\n")...), true
		})
	}
}

// runWatch re-validates the tree whenever a configuration file changes.
// Blocks until interrupted.
func runWatch(cmd *cobra.Command, args []string) {
	root := sourceRoot(args)

	orchestrator, _, _, err := buildGovernance(root)
	if err != nil {
		OutputError(jsonOutput, "Failed to initialize governance", err)
		os.Exit(CLIExitError)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := source.NewWatcher(root, func(path string) {
		result, err := orchestrator.Check(ctx)
		if err != nil {
			logger.Error("Re-validation failed", "path", path, "error", err)
			return
		}
		logger.Info("Re-validation complete",
			"path", path,
			"success", result.Success,
			"violations", len(result.Violations))
		if !jsonOutput {
			fmt.Printf("--- change: %s ---\n", path)
			printViolations(result.Violations)
		}
	}, source.WithThrottle(time.Duration(watchThrottle)*time.Second))
	if err != nil {
		OutputError(jsonOutput, "Failed to start watcher", err)
		os.Exit(CLIExitError)
	}
	defer watcher.Stop()

	logger.Info("Watching source tree", "root", root)
	watcher.Start(ctx)
}
