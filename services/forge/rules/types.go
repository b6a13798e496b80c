// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rules evaluates policy rules against configuration files.
// Each rule carries a typed check; the rule kind exists only at the
// policy-file boundary and is resolved to a concrete check when the
// policy loads.
package rules

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Severity classifies how serious a violation is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// severityRank orders severities for comparison.
var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityWarning:  1,
	SeverityError:    2,
	SeverityCritical: 3,
}

// Critical reports whether the severity is the highest class.
func (s Severity) Critical() bool {
	return s == SeverityCritical
}

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return severityRank[s] >= severityRank[other]
}

func (s *Severity) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	incoming := Severity(raw)
	switch incoming {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		*s = incoming
		return nil
	default:
		return fmt.Errorf("invalid value for Severity: %q", incoming)
	}
}

// Rule pairs an identifier and severity with a typed check.
type Rule struct {
	// ID uniquely identifies the rule within a policy.
	ID string

	// Description explains what the rule enforces.
	Description string

	// Severity classifies violations of this rule.
	Severity Severity

	// AutoFixable marks violations the orchestrator may remediate
	// automatically.
	AutoFixable bool

	// Check is the predicate applied to each file.
	Check Check
}

// Violation is one failed rule application.
type Violation struct {
	RuleID      string   `json:"ruleId"`
	Target      string   `json:"target"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
	AutoFixable bool     `json:"autoFixable"`
}

// RuleResult reports one rule's outcome against one file.
type RuleResult struct {
	// RuleID names the rule that was applied.
	RuleID string `json:"ruleId"`

	// Passed is true when the check succeeded.
	Passed bool `json:"passed"`

	// Violation is set when Passed is false.
	Violation *Violation `json:"violation,omitempty"`
}

// Violations extracts the failed results from a result list.
func Violations(results []RuleResult) []Violation {
	var out []Violation
	for _, r := range results {
		if !r.Passed && r.Violation != nil {
			out = append(out, *r.Violation)
		}
	}
	return out
}
