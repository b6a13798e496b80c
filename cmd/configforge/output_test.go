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
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/AleutianAI/configforge/pkg/logging"
	"github.com/AleutianAI/configforge/services/forge/rules"
)

// TestGovernanceOutputJSON tests that GovernanceOutput serializes correctly.
func TestGovernanceOutputJSON(t *testing.T) {
	out := GovernanceOutput{
		Charter: "platform-config",
		State:   "failed",
		Success: false,
		Strict:  true,
		Violations: []rules.Violation{
			{RuleID: "require-owner", Target: "app.yaml", Message: "required marker \"owner:\" not found", Severity: rules.SeverityError},
		},
		Critical: 0,
		Evidence: 3,
	}

	data, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("Failed to marshal GovernanceOutput: %v", err)
	}

	var decoded GovernanceOutput
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal GovernanceOutput: %v", err)
	}

	if decoded.Charter != out.Charter {
		t.Errorf("Charter = %s, want %s", decoded.Charter, out.Charter)
	}
	if decoded.Success != out.Success {
		t.Errorf("Success = %v, want %v", decoded.Success, out.Success)
	}
	if len(decoded.Violations) != 1 {
		t.Fatalf("Violations len = %d, want 1", len(decoded.Violations))
	}
	if decoded.Violations[0].RuleID != "require-owner" {
		t.Errorf("Violations[0].RuleID = %s, want require-owner", decoded.Violations[0].RuleID)
	}
}

// TestChainVerifyOutputJSON tests that ChainVerifyOutput serializes correctly.
func TestChainVerifyOutputJSON(t *testing.T) {
	out := ChainVerifyOutput{
		Path:        ".forge/evidence.jsonl",
		Valid:       false,
		RecordCount: 12,
		FailedID:    "rec-7",
		FailedIndex: 7,
		Reason:      "stored hash does not match recomputed hash",
	}

	data, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("Failed to marshal ChainVerifyOutput: %v", err)
	}

	var decoded ChainVerifyOutput
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal ChainVerifyOutput: %v", err)
	}

	if decoded.Valid != out.Valid {
		t.Errorf("Valid = %v, want %v", decoded.Valid, out.Valid)
	}
	if decoded.FailedIndex != out.FailedIndex {
		t.Errorf("FailedIndex = %d, want %d", decoded.FailedIndex, out.FailedIndex)
	}
}

// TestOutputResult_Success tests OutputResult with no error and no findings.
func TestOutputResult_Success(t *testing.T) {
	exitCode := OutputResult(false, "test", time.Now(), map[string]string{"test": "value"}, false, nil)

	if exitCode != CLIExitSuccess {
		t.Errorf("Exit code = %d, want %d", exitCode, CLIExitSuccess)
	}
}

// TestOutputResult_Findings tests OutputResult with findings.
func TestOutputResult_Findings(t *testing.T) {
	exitCode := OutputResult(false, "test", time.Now(), map[string]string{"test": "value"}, true, nil)

	if exitCode != CLIExitFindings {
		t.Errorf("Exit code = %d, want %d", exitCode, CLIExitFindings)
	}
}

// TestOutputResult_Error tests OutputResult with error.
func TestOutputResult_Error(t *testing.T) {
	exitCode := OutputResult(false, "test", time.Now(), nil, false, bytes.ErrTooLarge)

	if exitCode != CLIExitError {
		t.Errorf("Exit code = %d, want %d", exitCode, CLIExitError)
	}
}

// TestExitCodeConstants tests exit code constant values.
func TestExitCodeConstants(t *testing.T) {
	if CLIExitSuccess != 0 {
		t.Errorf("CLIExitSuccess = %d, want 0", CLIExitSuccess)
	}
	if CLIExitFindings != 1 {
		t.Errorf("CLIExitFindings = %d, want 1", CLIExitFindings)
	}
	if CLIExitError != 2 {
		t.Errorf("CLIExitError = %d, want 2", CLIExitError)
	}
}

// TestSourceRoot tests the positional root argument default.
func TestSourceRoot(t *testing.T) {
	if got := sourceRoot(nil); got != "." {
		t.Errorf("sourceRoot(nil) = %s, want .", got)
	}
	if got := sourceRoot([]string{"configs"}); got != "configs" {
		t.Errorf("sourceRoot = %s, want configs", got)
	}
}

// TestResolveUnder tests path resolution against the source root.
func TestResolveUnder(t *testing.T) {
	if got := resolveUnder("/srv/configs", "", "rendered"); got != filepath.Join("/srv/configs", "rendered") {
		t.Errorf("empty path = %s", got)
	}
	if got := resolveUnder("/srv/configs", "out", ""); got != filepath.Join("/srv/configs", "out") {
		t.Errorf("relative path = %s", got)
	}
	if got := resolveUnder("/srv/configs", "/var/out", ""); got != "/var/out" {
		t.Errorf("absolute path = %s", got)
	}
}

// TestParseLogLevel tests the log level name mapping.
func TestParseLogLevel(t *testing.T) {
	cases := map[string]logging.Level{
		"debug":   logging.LevelDebug,
		"info":    logging.LevelInfo,
		"warn":    logging.LevelWarn,
		"warning": logging.LevelWarn,
		"error":   logging.LevelError,
		"bogus":   logging.LevelInfo,
	}
	for name, want := range cases {
		if got := parseLogLevel(name); got != want {
			t.Errorf("parseLogLevel(%s) = %v, want %v", name, got, want)
		}
	}
}
