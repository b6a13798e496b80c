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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/configforge/services/forge/evidence"
	"github.com/AleutianAI/configforge/services/forge/rules"
)

// ErrCriticalViolations is returned by strict validation when critical
// violations exist.
var ErrCriticalViolations = errors.New("critical violations found")

// State is the orchestrator lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StatePassed     State = "passed"
	StateFailed     State = "failed"
)

// Event records one state transition.
type Event struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"`
}

// Result is the outcome of one lifecycle operation.
type Result struct {
	// Success is true when no violations remain.
	Success bool `json:"success"`

	// Violations lists every failed rule application, sorted by target.
	Violations []rules.Violation `json:"violations"`

	// Events lists the state transitions the operation went through.
	Events []Event `json:"events"`

	// AuditTrail holds the evidence records appended during the
	// operation, in append order.
	AuditTrail []evidence.EvidenceRecord `json:"auditTrail"`
}

// FixFunc remediates one violation, returning the corrected content and
// whether a fix was applied.
type FixFunc func(content []byte, v rules.Violation) ([]byte, bool)

// RunFunc executes the rendering pipeline on behalf of the Pipeline
// operation.
type RunFunc func(ctx context.Context) error

// OrchestratorOption is a functional option for configuring
// Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithOrchestratorClock overrides the time source. Used by tests.
func WithOrchestratorClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithPipelineRunner wires the rendering pipeline into the Pipeline
// operation.
func WithPipelineRunner(run RunFunc) OrchestratorOption {
	return func(o *Orchestrator) {
		o.run = run
	}
}

// Orchestrator drives the governance lifecycle over one source root.
//
// # Description
//
// Composes the rule evaluator, the evidence chain, and the charter into
// the validate/check/fix/pipeline operations. States move
// Idle → Validating → {Passed, Failed}; every transition appends an
// evidence record.
//
// # Thread Safety
//
// Operations are serialized by an internal mutex; the lifecycle state
// is single-writer.
type Orchestrator struct {
	mu        sync.Mutex
	root      string
	charter   *Charter
	evaluator *rules.Evaluator
	chain     *evidence.Chain
	state     State
	fixers    map[string]FixFunc
	run       RunFunc
	now       func() time.Time
}

// NewOrchestrator creates an orchestrator for the tree at root.
//
// # Inputs
//
//   - root: Governed source root.
//   - charterPath: Location of the charter document. A missing charter
//     is fatal.
//   - evaluator: Rule evaluator with the policy registered.
//   - chain: Evidence chain receiving transition records.
//
// # Outputs
//
//   - *Orchestrator: Orchestrator in the Idle state.
//   - error: ErrCharterMissing or a charter validation error.
func NewOrchestrator(root, charterPath string, evaluator *rules.Evaluator, chain *evidence.Chain, opts ...OrchestratorOption) (*Orchestrator, error) {
	charter, err := LoadCharter(charterPath)
	if err != nil {
		return nil, err
	}
	if evaluator == nil {
		return nil, errors.New("evaluator must not be nil")
	}
	if chain == nil {
		return nil, errors.New("evidence chain must not be nil")
	}

	o := &Orchestrator{
		root:      root,
		charter:   charter,
		evaluator: evaluator,
		chain:     chain,
		state:     StateIdle,
		fixers:    make(map[string]FixFunc),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Charter returns the loaded charter.
func (o *Orchestrator) Charter() *Charter {
	return o.charter
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// RegisterFixer installs a remediation for violations of one rule.
func (o *Orchestrator) RegisterFixer(ruleID string, fn FixFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fixers[ruleID] = fn
}

// transition moves the lifecycle state and records the move in both the
// result and the evidence chain. Caller holds o.mu. A transition that
// cannot be evidenced fails the operation; state changes without a
// ledger record would leave the audit trail incomplete.
func (o *Orchestrator) transition(to State, note string, result *Result) error {
	event := Event{From: o.state, To: to, Timestamp: o.now(), Note: note}
	o.state = to
	result.Events = append(result.Events, event)

	record, err := o.chain.Append(evidence.TypeTransition, o.charter.ID, event)
	if err != nil {
		return fmt.Errorf("record transition %s -> %s: %w", event.From, event.To, err)
	}
	result.AuditTrail = append(result.AuditTrail, *record)
	return nil
}

// collectViolations evaluates the whole tree. Caller holds o.mu.
func (o *Orchestrator) collectViolations(ctx context.Context) ([]rules.Violation, error) {
	results, err := o.evaluator.EvaluateDirectory(ctx, o.root)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", o.root, err)
	}

	var violations []rules.Violation
	for _, fileResults := range results {
		violations = append(violations, rules.Violations(fileResults)...)
	}
	sort.Slice(violations, func(i, j int) bool {
		if violations[i].Target != violations[j].Target {
			return violations[i].Target < violations[j].Target
		}
		return violations[i].RuleID < violations[j].RuleID
	})
	return violations, nil
}

// countCritical returns the number of critical violations.
func countCritical(violations []rules.Violation) int {
	n := 0
	for _, v := range violations {
		if v.Severity.Critical() {
			n++
		}
	}
	return n
}

// Validate scans the tree and classifies every violation.
//
// # Description
//
// In strict mode any critical violation fails the whole operation with
// ErrCriticalViolations; the result is still returned for reporting. In
// non-strict mode the operation never errors on violations: Success is
// false and the list is attached.
//
// # Outputs
//
//   - *Result: Always non-nil, with events and audit trail populated.
//   - error: ErrCriticalViolations in strict mode, an evaluation
//     failure, or a transition record that could not be appended to the
//     evidence chain.
func (o *Orchestrator) Validate(ctx context.Context, strict bool) (*Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.validateLocked(ctx, strict)
}

// validateLocked is Validate without the lock. Caller holds o.mu.
func (o *Orchestrator) validateLocked(ctx context.Context, strict bool) (*Result, error) {
	result := &Result{}
	if err := o.transition(StateValidating, "validation started", result); err != nil {
		return result, err
	}

	violations, err := o.collectViolations(ctx)
	if err != nil {
		if terr := o.transition(StateFailed, err.Error(), result); terr != nil {
			return result, errors.Join(err, terr)
		}
		return result, err
	}
	result.Violations = violations
	result.Success = len(violations) == 0

	critical := countCritical(violations)
	summary := map[string]any{
		"violations": len(violations),
		"critical":   critical,
		"strict":     strict,
	}
	if record, err := o.chain.Append(evidence.TypeValidate, o.charter.ID, summary); err == nil {
		result.AuditTrail = append(result.AuditTrail, *record)
	}

	if result.Success {
		if err := o.transition(StatePassed, "validation clean", result); err != nil {
			return result, err
		}
		return result, nil
	}

	if err := o.transition(StateFailed, fmt.Sprintf("%d violations, %d critical", len(violations), critical), result); err != nil {
		return result, err
	}

	if strict && critical > 0 {
		return result, fmt.Errorf("%w: %d of %d violations are critical", ErrCriticalViolations, critical, len(violations))
	}
	return result, nil
}

// Check reports the tree's compliance without enforcing it. Violations
// never fail a check.
func (o *Orchestrator) Check(ctx context.Context) (*Result, error) {
	return o.Validate(ctx, false)
}

// Fix validates and remediates auto-fixable violations.
//
// # Description
//
// Runs a non-strict validation, then applies registered fixers to
// violations that are auto-fixable and not critical. Files are
// rewritten in place. Validation re-runs exactly once after fixing;
// there is no retry loop.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//   - auto: When false, no remediation is applied; Fix degenerates to
//     Check.
//
// # Outputs
//
//   - *Result: The post-fix validation outcome, with the fix events
//     merged in.
//   - error: Non-nil on evaluation or file I/O failure.
func (o *Orchestrator) Fix(ctx context.Context, auto bool) (*Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	result, err := o.validateLocked(ctx, false)
	if err != nil {
		return result, err
	}
	if result.Success || !auto {
		return result, nil
	}

	fixed := 0
	for _, v := range result.Violations {
		if !v.AutoFixable || v.Severity.Critical() {
			continue
		}
		fn, ok := o.fixers[v.RuleID]
		if !ok {
			continue
		}

		path := filepath.Join(o.root, filepath.FromSlash(v.Target))
		content, err := os.ReadFile(path)
		if err != nil {
			return result, fmt.Errorf("fix %s: %w", v.Target, err)
		}
		corrected, applied := fn(content, v)
		if !applied {
			continue
		}
		if err := os.WriteFile(path, corrected, 0644); err != nil {
			return result, fmt.Errorf("fix %s: %w", v.Target, err)
		}
		fixed++

		if record, err := o.chain.Append(evidence.TypeFix, v.Target, map[string]any{
			"ruleId":   v.RuleID,
			"severity": v.Severity,
		}); err == nil {
			result.AuditTrail = append(result.AuditTrail, *record)
		}
	}

	slog.Info("Fix: remediation applied", "fixed", fixed, "violations", len(result.Violations))
	if fixed == 0 {
		return result, nil
	}

	// One re-validation after fixing, never more.
	revalidated, err := o.validateLocked(ctx, false)
	if err != nil {
		return revalidated, err
	}
	revalidated.Events = append(result.Events, revalidated.Events...)
	revalidated.AuditTrail = append(result.AuditTrail, revalidated.AuditTrail...)
	return revalidated, nil
}

// Pipeline validates and, when the tree complies, runs the rendering
// pipeline.
//
// # Description
//
// Validation strictness follows the charter's enforcement mode. When
// full is set, auto-remediation runs before the final validation. The
// pipeline runner only executes if validation ends in success or the
// charter is advisory.
//
// # Outputs
//
//   - *Result: The validation outcome; Success additionally requires
//     the pipeline run to complete.
//   - error: Validation or pipeline failure.
func (o *Orchestrator) Pipeline(ctx context.Context, full bool) (*Result, error) {
	var result *Result
	var err error

	if full {
		result, err = o.Fix(ctx, true)
	} else {
		result, err = o.Validate(ctx, o.charter.Strict())
	}
	if err != nil {
		return result, err
	}

	if !result.Success && o.charter.Strict() {
		return result, nil
	}
	if o.run == nil {
		return result, errors.New("no pipeline runner configured")
	}

	if err := o.run(ctx); err != nil {
		result.Success = false
		return result, fmt.Errorf("pipeline run: %w", err)
	}
	return result, nil
}
