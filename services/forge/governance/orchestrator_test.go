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
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/configforge/services/forge/artifact"
	"github.com/AleutianAI/configforge/services/forge/evidence"
	"github.com/AleutianAI/configforge/services/forge/lock"
	"github.com/AleutianAI/configforge/services/forge/rules"
)

const testCharter = `
id: platform-config
version: "1.0"
semanticAnchor: infrastructure
enforcement: strict
`

// newFixture builds a governed tree with one rule requiring an owner
// marker, plus an evidence chain in a scratch directory.
func newFixture(t *testing.T, files map[string]string) (*Orchestrator, *evidence.Chain, string) {
	t.Helper()

	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0750))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}

	charterPath := filepath.Join(t.TempDir(), "charter.yaml")
	require.NoError(t, os.WriteFile(charterPath, []byte(testCharter), 0644))

	e := rules.NewEvaluator()
	require.NoError(t, e.Register(rules.Rule{
		ID:          "require-owner",
		Severity:    rules.SeverityError,
		AutoFixable: true,
		Check:       rules.RequiredMarker{Marker: "owner:"},
	}))
	require.NoError(t, e.Register(rules.Rule{
		ID:       "no-plain-secrets",
		Severity: rules.SeverityCritical,
		Check:    rules.ForbiddenMarker{Marker: "password:"},
	}))

	chain, err := evidence.Open(filepath.Join(t.TempDir(), "evidence.jsonl"))
	require.NoError(t, err)

	o, err := NewOrchestrator(root, charterPath, e, chain)
	require.NoError(t, err)
	return o, chain, root
}

func TestLoadCharter(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "charter.yaml")
		require.NoError(t, os.WriteFile(path, []byte(testCharter), 0644))

		c, err := LoadCharter(path)
		require.NoError(t, err)
		assert.Equal(t, "platform-config", c.ID)
		assert.True(t, c.Strict())
	})

	t.Run("missing is fatal", func(t *testing.T) {
		_, err := LoadCharter(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorIs(t, err, ErrCharterMissing)
	})

	t.Run("invalid enforcement", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "charter.yaml")
		bad := "id: x\nversion: \"1\"\nsemanticAnchor: a\nenforcement: maybe\n"
		require.NoError(t, os.WriteFile(path, []byte(bad), 0644))

		_, err := LoadCharter(path)
		assert.Error(t, err)
	})

	t.Run("missing required field", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "charter.yaml")
		bad := "id: x\nenforcement: strict\n"
		require.NoError(t, os.WriteFile(path, []byte(bad), 0644))

		_, err := LoadCharter(path)
		assert.Error(t, err)
	})
}

func TestValidateClean(t *testing.T) {
	o, chain, _ := newFixture(t, map[string]string{
		"app.yaml": "owner: core\nname: app\n",
	})

	result, err := o.Validate(context.Background(), true)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Empty(t, result.Violations)
	assert.Equal(t, StatePassed, o.State())

	require.Len(t, result.Events, 2)
	assert.Equal(t, StateIdle, result.Events[0].From)
	assert.Equal(t, StateValidating, result.Events[0].To)
	assert.Equal(t, StatePassed, result.Events[1].To)

	// Two transitions and one validation summary were recorded.
	assert.Equal(t, 3, chain.Len())
	assert.NotEmpty(t, result.AuditTrail)
}

func TestValidateNonStrictReturnsViolations(t *testing.T) {
	o, _, _ := newFixture(t, map[string]string{
		"app.yaml": "name: app\n",
	})

	result, err := o.Validate(context.Background(), false)
	require.NoError(t, err)

	assert.False(t, result.Success)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, "require-owner", result.Violations[0].RuleID)
	assert.Equal(t, StateFailed, o.State())
}

func TestValidateStrictFailsOnCritical(t *testing.T) {
	o, _, _ := newFixture(t, map[string]string{
		"db.yaml": "owner: data\npassword: hunter2\n",
	})

	result, err := o.Validate(context.Background(), true)
	assert.ErrorIs(t, err, ErrCriticalViolations)

	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Equal(t, StateFailed, o.State())
}

func TestValidateStrictTolerantOfNonCritical(t *testing.T) {
	o, _, _ := newFixture(t, map[string]string{
		"app.yaml": "name: app\n",
	})

	// Error-severity violations do not trip strict mode; only
	// criticals do.
	result, err := o.Validate(context.Background(), true)
	require.NoError(t, err)
	assert.False(t, result.Success)
}

func TestValidateFailsWhenTransitionCannotBeEvidenced(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.yaml"), []byte("owner: core\n"), 0644))

	charterPath := filepath.Join(t.TempDir(), "charter.yaml")
	require.NoError(t, os.WriteFile(charterPath, []byte(testCharter), 0644))

	e := rules.NewEvaluator()
	require.NoError(t, e.Register(rules.Rule{
		ID:       "require-owner",
		Severity: rules.SeverityError,
		Check:    rules.RequiredMarker{Marker: "owner:"},
	}))

	chainPath := filepath.Join(t.TempDir(), "evidence.jsonl")
	chain, err := evidence.Open(chainPath)
	require.NoError(t, err)

	o, err := NewOrchestrator(root, charterPath, e, chain)
	require.NoError(t, err)

	// Hold the chain's writer lock so no transition record can land.
	holder := lock.New(chainPath + ".lock")
	require.NoError(t, holder.Acquire())
	defer holder.Release()

	result, err := o.Validate(context.Background(), false)
	require.ErrorIs(t, err, evidence.ErrChainLocked)

	require.NotNil(t, result)
	assert.Empty(t, result.AuditTrail)
	assert.Equal(t, 0, chain.Len())
}

func TestFixRemediatesAutoFixable(t *testing.T) {
	o, _, root := newFixture(t, map[string]string{
		"app.yaml": "name: app\n",
	})
	o.RegisterFixer("require-owner", func(content []byte, _ rules.Violation) ([]byte, bool) {
		return append([]byte("owner: unassigned\n"), content...), true
	})

	result, err := o.Fix(context.Background(), true)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Empty(t, result.Violations)

	content, err := os.ReadFile(filepath.Join(root, "app.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "owner: unassigned")
}

func TestFixSkipsCriticalViolations(t *testing.T) {
	o, _, root := newFixture(t, map[string]string{
		"db.yaml": "owner: data\npassword: hunter2\n",
	})
	fixerCalled := false
	o.RegisterFixer("no-plain-secrets", func(content []byte, _ rules.Violation) ([]byte, bool) {
		fixerCalled = true
		return content, true
	})

	result, err := o.Fix(context.Background(), true)
	require.NoError(t, err)

	assert.False(t, fixerCalled, "critical violations must never be auto-fixed")
	assert.False(t, result.Success)

	original, err := os.ReadFile(filepath.Join(root, "db.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(original), "password: hunter2")
}

func TestFixWithoutAutoIsACheck(t *testing.T) {
	o, _, _ := newFixture(t, map[string]string{
		"app.yaml": "name: app\n",
	})
	o.RegisterFixer("require-owner", func(content []byte, _ rules.Violation) ([]byte, bool) {
		t.Fatal("fixer must not run when auto is false")
		return content, true
	})

	result, err := o.Fix(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, result.Success)
}

func TestPipelineRunsAfterCleanValidation(t *testing.T) {
	ran := false
	o, _, _ := newFixture(t, map[string]string{
		"app.yaml": "owner: core\n",
	})
	WithPipelineRunner(func(ctx context.Context) error {
		ran = true
		return nil
	})(o)

	result, err := o.Pipeline(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, ran)
}

func TestPipelineSkipsRunOnStrictFailure(t *testing.T) {
	o, _, _ := newFixture(t, map[string]string{
		"app.yaml": "name: app\n",
	})
	WithPipelineRunner(func(ctx context.Context) error {
		t.Fatal("pipeline must not run when strict validation fails")
		return nil
	})(o)

	result, err := o.Pipeline(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, result.Success)
}

func TestPipelineSurfacesRunFailure(t *testing.T) {
	o, _, _ := newFixture(t, map[string]string{
		"app.yaml": "owner: core\n",
	})
	WithPipelineRunner(func(ctx context.Context) error {
		return errors.New("renderer exploded")
	})(o)

	result, err := o.Pipeline(context.Background(), false)
	assert.Error(t, err)
	assert.False(t, result.Success)
}

func TestBuildManifest(t *testing.T) {
	o, chain, _ := newFixture(t, map[string]string{
		"app.yaml": "owner: core\n",
	})

	records := []artifact.ArtifactRecord{
		{ID: "a", Path: "/out/a.txt", Hash: "h1"},
		{ID: "b", Path: "/out/b.txt", Hash: "h2"},
	}
	violations := []rules.Violation{
		{RuleID: "r", Target: "b", Severity: rules.SeverityError},
	}

	before := chain.Len()
	m, err := o.BuildManifest(records, violations)
	require.NoError(t, err)

	assert.Equal(t, "platform-config", m.ID)
	assert.Equal(t, "infrastructure", m.Governance.SemanticAnchor)
	assert.Equal(t, 2, m.Metadata.TotalArtifacts)
	assert.Equal(t, 1, m.Metadata.GovernedArtifacts)
	assert.InDelta(t, 0.5, m.Metadata.ComplianceRate, 1e-9)
	assert.NotEmpty(t, m.Metadata.Checksum)
	assert.Equal(t, before+1, chain.Len())

	// Identical inventory yields an identical checksum.
	m2, err := o.BuildManifest(records, nil)
	require.NoError(t, err)
	assert.Equal(t, m.Metadata.Checksum, m2.Metadata.Checksum)
	assert.Equal(t, 2, m2.Metadata.GovernedArtifacts)
}

func TestBuildManifestEmptyInventory(t *testing.T) {
	o, _, _ := newFixture(t, map[string]string{})

	m, err := o.BuildManifest(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Metadata.TotalArtifacts)
	assert.InDelta(t, 1.0, m.Metadata.ComplianceRate, 1e-9)
}
