// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rules

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// RuleKind names a rule variant in a policy file. Kinds exist only at
// this boundary; compilePolicyRule resolves them to typed checks.
type RuleKind string

const (
	KindRequired  RuleKind = "required"
	KindForbidden RuleKind = "forbidden"
	KindPattern   RuleKind = "pattern"
	KindRange     RuleKind = "range"
	KindEnum      RuleKind = "enum"
	KindFanOut    RuleKind = "fanout"
)

func (k *RuleKind) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	incoming := RuleKind(raw)
	switch incoming {
	case KindRequired, KindForbidden, KindPattern, KindRange, KindEnum, KindFanOut:
		*k = incoming
		return nil
	default:
		return fmt.Errorf("invalid value for RuleKind: %q", incoming)
	}
}

// PolicyFile is the on-disk policy document.
type PolicyFile struct {
	Rules []PolicyRule `yaml:"rules"`
}

// PolicyRule is one rule declaration. Which fields apply depends on
// the kind; compilePolicyRule rejects declarations missing theirs.
type PolicyRule struct {
	ID          string   `yaml:"id"`
	Description string   `yaml:"description"`
	Kind        RuleKind `yaml:"kind"`
	Severity    Severity `yaml:"severity"`
	AutoFixable bool     `yaml:"autoFixable"`

	// Marker applies to required and forbidden rules.
	Marker string `yaml:"marker"`

	// Regex and MustMatch apply to pattern rules. MustMatch defaults
	// to true.
	Regex     string `yaml:"regex"`
	MustMatch *bool  `yaml:"mustMatch"`

	// Key applies to range and enum rules, as a dotted path.
	Key string `yaml:"key"`

	// Min and Max apply to range rules.
	Min *float64 `yaml:"min"`
	Max *float64 `yaml:"max"`

	// Values applies to enum rules.
	Values []string `yaml:"values"`

	// MaxReferences applies to fanout rules.
	MaxReferences int `yaml:"maxReferences"`
}

// ParsePolicy decodes a policy document and compiles its rules.
func ParsePolicy(data []byte) ([]Rule, error) {
	var file PolicyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}

	rules := make([]Rule, 0, len(file.Rules))
	for _, pr := range file.Rules {
		rule, err := compilePolicyRule(pr)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// LoadPolicy reads and compiles a policy file.
func LoadPolicy(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy %s: %w", path, err)
	}
	rules, err := ParsePolicy(data)
	if err != nil {
		return nil, fmt.Errorf("policy %s: %w", path, err)
	}
	return rules, nil
}

// compilePolicyRule turns a declaration into a Rule with a typed check.
func compilePolicyRule(pr PolicyRule) (Rule, error) {
	if pr.ID == "" {
		return Rule{}, fmt.Errorf("policy rule missing id")
	}
	if pr.Severity == "" {
		return Rule{}, fmt.Errorf("rule %s: missing severity", pr.ID)
	}

	var check Check
	switch pr.Kind {
	case KindRequired:
		if pr.Marker == "" {
			return Rule{}, fmt.Errorf("rule %s: required rule needs a marker", pr.ID)
		}
		check = RequiredMarker{Marker: pr.Marker}

	case KindForbidden:
		if pr.Marker == "" {
			return Rule{}, fmt.Errorf("rule %s: forbidden rule needs a marker", pr.ID)
		}
		check = ForbiddenMarker{Marker: pr.Marker}

	case KindPattern:
		re, err := regexp.Compile(pr.Regex)
		if err != nil {
			return Rule{}, fmt.Errorf("rule %s: failed to compile the regex %s: %w", pr.ID, pr.Regex, err)
		}
		mustMatch := true
		if pr.MustMatch != nil {
			mustMatch = *pr.MustMatch
		}
		check = PatternCheck{Pattern: re, MustMatch: mustMatch}

	case KindRange:
		if pr.Key == "" || pr.Min == nil || pr.Max == nil {
			return Rule{}, fmt.Errorf("rule %s: range rule needs key, min, and max", pr.ID)
		}
		check = RangeCheck{Key: pr.Key, Min: *pr.Min, Max: *pr.Max}

	case KindEnum:
		if pr.Key == "" || len(pr.Values) == 0 {
			return Rule{}, fmt.Errorf("rule %s: enum rule needs key and values", pr.ID)
		}
		check = EnumCheck{Key: pr.Key, Allowed: pr.Values}

	case KindFanOut:
		if pr.MaxReferences <= 0 {
			return Rule{}, fmt.Errorf("rule %s: fanout rule needs a positive maxReferences", pr.ID)
		}
		check = FanOutCheck{Max: pr.MaxReferences}

	default:
		return Rule{}, fmt.Errorf("rule %s: missing kind", pr.ID)
	}

	return Rule{
		ID:          pr.ID,
		Description: pr.Description,
		Severity:    pr.Severity,
		AutoFixable: pr.AutoFixable,
		Check:       check,
	}, nil
}
