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
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/configforge/services/forge/governance"
	"github.com/AleutianAI/configforge/services/forge/pipeline"
	"github.com/AleutianAI/configforge/services/forge/rules"
)

// Exit codes for CLI commands.
const (
	CLIExitSuccess  = 0 // Operation completed successfully
	CLIExitFindings = 1 // Operation completed with violations or integrity findings
	CLIExitError    = 2 // Operation failed
)

// stdoutIsTerminal reports whether stdout is an interactive terminal.
// Piped invocations default to JSON output so scripts get structured
// data without passing --json.
func stdoutIsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// CommandResult wraps command output with metadata.
type CommandResult struct {
	APIVersion string      `json:"api_version"`
	Command    string      `json:"command"`
	Timestamp  time.Time   `json:"timestamp"`
	DurationMs int64       `json:"duration_ms"`
	Success    bool        `json:"success"`
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// OutputJSON writes structured data as JSON to stdout.
//
// # Inputs
//
//   - data: The data to encode. Must be JSON-serializable.
//   - compact: If true, output without indentation.
//
// # Outputs
//
//   - error: Non-nil if encoding fails.
func OutputJSON(data interface{}, compact bool) error {
	encoder := json.NewEncoder(os.Stdout)
	if !compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// OutputError writes an error in the appropriate format.
//
// # Inputs
//
//   - jsonMode: If true, output as JSON to stdout.
//   - msg: Human-readable error message.
//   - err: The underlying error.
func OutputError(jsonMode bool, msg string, err error) {
	if jsonMode {
		result := CommandResult{
			APIVersion: "1.0",
			Timestamp:  time.Now(),
			Success:    false,
			Error:      fmt.Sprintf("%s: %v", msg, err),
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		encoder.Encode(result)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	}
}

// OutputResult handles all output scenarios with proper formatting.
//
// # Inputs
//
//   - jsonMode: If true, wrap data in a CommandResult envelope on stdout.
//   - cmd: Command name for metadata.
//   - start: Start time for duration calculation.
//   - data: The data to output.
//   - hasFindings: Whether the operation found issues (for exit code).
//   - err: Any error that occurred.
//
// # Outputs
//
//   - int: The exit code to use.
func OutputResult(jsonMode bool, cmd string, start time.Time, data interface{}, hasFindings bool, err error) int {
	if err != nil {
		OutputError(jsonMode, "Command failed", err)
		return CLIExitError
	}

	if jsonMode {
		result := CommandResult{
			APIVersion: "1.0",
			Command:    cmd,
			Timestamp:  time.Now(),
			DurationMs: time.Since(start).Milliseconds(),
			Success:    !hasFindings,
			Data:       data,
		}
		if encErr := OutputJSON(result, false); encErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", encErr)
			return CLIExitError
		}
	}

	if hasFindings {
		return CLIExitFindings
	}
	return CLIExitSuccess
}

// GovernanceOutput holds validate/check/fix command output.
type GovernanceOutput struct {
	Charter    string             `json:"charter"`
	State      string             `json:"state"`
	Success    bool               `json:"success"`
	Strict     bool               `json:"strict"`
	Violations []rules.Violation  `json:"violations"`
	Critical   int                `json:"critical"`
	Events     []governance.Event `json:"events"`
	Evidence   int                `json:"evidence_records"`
}

// PipelineOutput holds pipeline command output.
type PipelineOutput struct {
	Documents        int                   `json:"documents"`
	Order            []string              `json:"order"`
	Artifacts        int                   `json:"artifacts"`
	ManifestChecksum string                `json:"manifest_checksum,omitempty"`
	Warnings         int                   `json:"warnings"`
	Errors           []pipeline.StageError `json:"errors,omitempty"`
	Governance       *GovernanceOutput     `json:"governance,omitempty"`
}

// ChainVerifyOutput holds evidence chain verification output.
type ChainVerifyOutput struct {
	Path        string `json:"path"`
	Valid       bool   `json:"valid"`
	RecordCount int    `json:"record_count"`
	HeadHash    string `json:"head_hash,omitempty"`
	TailHash    string `json:"tail_hash,omitempty"`
	FailedID    string `json:"failed_id,omitempty"`
	FailedIndex int    `json:"failed_index,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// ArtifactVerifyOutput holds artifact store verification output.
type ArtifactVerifyOutput struct {
	Checked  int                     `json:"checked"`
	Valid    int                     `json:"valid"`
	Invalid  int                     `json:"invalid"`
	Findings []ArtifactVerifyFinding `json:"findings,omitempty"`
}

// ArtifactVerifyFinding identifies one artifact that failed verification.
type ArtifactVerifyFinding struct {
	ID       string `json:"id"`
	Path     string `json:"path"`
	Expected string `json:"expected"`
	Actual   string `json:"actual,omitempty"`
	Reason   string `json:"reason"`
}

// printViolations writes violations in human-readable form to stdout.
func printViolations(violations []rules.Violation) {
	if len(violations) == 0 {
		fmt.Println("No violations found.")
		return
	}
	fmt.Printf("Violations (%d):\n", len(violations))
	for _, v := range violations {
		marker := " "
		if v.Severity.Critical() {
			marker = "!"
		}
		fmt.Printf("  %s [%s] %s: %s (%s)\n", marker, v.Severity, v.Target, v.Message, v.RuleID)
	}
}
