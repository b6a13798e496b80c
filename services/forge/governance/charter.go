// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package governance composes rule evaluation into an enforce/check/fix
// lifecycle anchored on a root charter document. Every state transition
// is recorded in the evidence chain.
package governance

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrCharterMissing indicates the root charter document does not exist.
// A missing charter is fatal: nothing can be governed without one.
var ErrCharterMissing = errors.New("governance charter missing")

// Enforcement selects how validation failures are treated.
type Enforcement string

const (
	// EnforcementStrict makes critical violations fail the operation
	// outright.
	EnforcementStrict Enforcement = "strict"

	// EnforcementAdvisory reports violations without failing.
	EnforcementAdvisory Enforcement = "advisory"
)

// Charter is the root metadata anchor for a governed configuration
// tree.
type Charter struct {
	// ID identifies the governed tree.
	ID string `yaml:"id" validate:"required"`

	// Version is the charter document version.
	Version string `yaml:"version" validate:"required"`

	// SemanticAnchor names the organizational anchor this tree is
	// governed under.
	SemanticAnchor string `yaml:"semanticAnchor" validate:"required"`

	// Enforcement is strict or advisory.
	Enforcement Enforcement `yaml:"enforcement" validate:"required,oneof=strict advisory"`

	// Policy is an optional path to the rule policy file, relative to
	// the charter.
	Policy string `yaml:"policy"`
}

// Strict reports whether the charter demands strict enforcement.
func (c *Charter) Strict() bool {
	return c.Enforcement == EnforcementStrict
}

// LoadCharter reads and validates the charter at path.
//
// # Outputs
//
//   - *Charter: The validated charter.
//   - error: ErrCharterMissing if the file does not exist, a parse or
//     validation error otherwise.
func LoadCharter(path string) (*Charter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrCharterMissing, path)
		}
		return nil, fmt.Errorf("read charter %s: %w", path, err)
	}

	var charter Charter
	if err := yaml.Unmarshal(data, &charter); err != nil {
		return nil, fmt.Errorf("parse charter %s: %w", path, err)
	}

	if err := validator.New().Struct(&charter); err != nil {
		return nil, fmt.Errorf("invalid charter %s: %w", path, err)
	}
	return &charter, nil
}
