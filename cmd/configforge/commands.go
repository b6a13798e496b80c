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
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/configforge/pkg/logging"
)

// logger is the process-wide structured logger, built in the root
// command's PersistentPreRun.
var logger *logging.Logger

// --- Global Command Variables ---
var (
	jsonOutput   bool
	compactJSON  bool
	logLevelName string
	logDir       string

	charterPath  string
	policyPath   string
	evidencePath string

	strictMode   bool
	autoFix      bool
	fullPipeline bool

	outputDir    string
	templatesDir string
	stateDir     string
	globalValues []string
	metricsAddr  string

	verifyArtifacts bool
	watchThrottle   int

	rootCmd = &cobra.Command{
		Use:   "configforge",
		Short: "A cli to render governed configuration trees into verified artifacts",
		Long: `Configforge loads a tree of configuration documents, resolves
				cross-document references, renders artifacts in dependency order,
				and records every operation in a tamper-evident evidence chain.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.New(logging.Config{
				Level:   parseLogLevel(logLevelName),
				LogDir:  logDir,
				Service: "configforge",
			})
		},
	}

	// --- Governance Lifecycle ---
	validateCmd = &cobra.Command{
		Use:   "validate [source_root]",
		Short: "Validate the source tree against the charter's policy rules",
		Long: `validate evaluates every configuration document under the source
				root against the registered policy rules. With --strict, critical
				violations make the command fail rather than merely report.`,
		Args: cobra.MaximumNArgs(1),
		Run:  runValidate, // Defined in cmd_governance.go
	}

	checkCmd = &cobra.Command{
		Use:   "check [source_root]",
		Short: "Report compliance without failing on critical violations",
		Args:  cobra.MaximumNArgs(1),
		Run:   runCheck, // Defined in cmd_governance.go
	}

	fixCmd = &cobra.Command{
		Use:   "fix [source_root]",
		Short: "Apply auto-fixable remediations and re-validate once",
		Long: `fix runs a validation pass, applies registered remediations to
				auto-fixable non-critical violations, and re-validates exactly
				once. Critical violations are never auto-fixed.`,
		Args: cobra.MaximumNArgs(1),
		Run:  runFix, // Defined in cmd_governance.go
	}

	pipelineCmd = &cobra.Command{
		Use:   "pipeline [source_root]",
		Short: "Run the full load, resolve, render, write pipeline",
		Long: `pipeline validates the source tree, then loads every document,
				resolves cross-document references, renders each module in
				dependency order, writes the artifacts, and generates a signed
				manifest. With --full, auto-fixable violations are remediated
				before rendering.`,
		Args: cobra.MaximumNArgs(1),
		Run:  runPipeline, // Defined in cmd_pipeline.go
	}

	watchCmd = &cobra.Command{
		Use:   "watch [source_root]",
		Short: "Watch the source tree and re-validate on change",
		Args:  cobra.MaximumNArgs(1),
		Run:   runWatch, // Defined in cmd_governance.go
	}

	// --- Integrity ---
	verifyCmd = &cobra.Command{
		Use:   "verify [source_root]",
		Short: "Verify the integrity of the evidence chain and artifact store",
		Long: `verify re-walks the evidence chain, recomputing every record hash
				and checking every previousHash link. With --artifacts, every
				registered artifact is also re-hashed against its recorded
				digest, detecting external tampering.`,
		Args: cobra.MaximumNArgs(1),
		Run:  runVerify, // Defined in cmd_verify.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", !stdoutIsTerminal(),
		"Output results as JSON (default when stdout is not a terminal)")
	rootCmd.PersistentFlags().BoolVar(&compactJSON, "compact", false, "Compact JSON output without indentation")
	rootCmd.PersistentFlags().StringVar(&logLevelName, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Directory for JSON log files (disabled when empty)")
	rootCmd.PersistentFlags().StringVar(&charterPath, "charter", "",
		"Path to the charter document (default: <root>/forge.charter.yaml)")
	rootCmd.PersistentFlags().StringVar(&policyPath, "policy", "",
		"Path to the policy rules file (default: the charter's policy field)")
	rootCmd.PersistentFlags().StringVar(&evidencePath, "evidence", "",
		"Path to the evidence chain file (default: <root>/.forge/evidence.jsonl)")

	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().BoolVar(&strictMode, "strict", false,
		"Fail with an error when critical violations are found (implied by a strict charter)")

	rootCmd.AddCommand(checkCmd)

	rootCmd.AddCommand(fixCmd)
	fixCmd.Flags().BoolVar(&autoFix, "auto", true,
		"Apply remediations; --auto=false performs a dry-run validation only")

	rootCmd.AddCommand(pipelineCmd)
	pipelineCmd.Flags().BoolVar(&fullPipeline, "full", false,
		"Remediate auto-fixable violations before rendering")
	pipelineCmd.Flags().StringVarP(&outputDir, "output", "o", "",
		"Artifact output directory (default: <root>/rendered)")
	pipelineCmd.Flags().StringVar(&templatesDir, "templates", "",
		"Template directory (default: <root>/templates)")
	pipelineCmd.Flags().StringVar(&stateDir, "state", "",
		"Artifact registry directory (default: <root>/.forge/registry)")
	pipelineCmd.Flags().StringArrayVar(&globalValues, "set", nil,
		"Global template values as key=value (repeatable)")
	pipelineCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "",
		"Serve Prometheus metrics on this address during the run (e.g. :9464)")

	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().IntVar(&watchThrottle, "throttle", 2,
		"Minimum seconds between re-validations")

	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().BoolVar(&verifyArtifacts, "artifacts", false,
		"Also re-hash every registered artifact against its recorded digest")
	verifyCmd.Flags().StringVar(&stateDir, "state", "",
		"Artifact registry directory (default: <root>/.forge/registry)")
	verifyCmd.Flags().StringVarP(&outputDir, "output", "o", "",
		"Artifact output directory (default: <root>/rendered)")
}

// parseLogLevel maps a level name to a logging.Level, defaulting to info.
func parseLogLevel(name string) logging.Level {
	switch strings.ToLower(name) {
	case "debug":
		return logging.LevelDebug
	case "warn", "warning":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
