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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/configforge/services/forge/source"
)

// DefaultEvaluateConcurrency bounds parallel file evaluation in
// EvaluateDirectory.
const DefaultEvaluateConcurrency = 8

// ErrDuplicateRule indicates two registered rules share an id.
var ErrDuplicateRule = errors.New("duplicate rule id")

// EvaluatorOption is a functional option for configuring Evaluator.
type EvaluatorOption func(*Evaluator)

// WithEvaluateConcurrency sets the parallel file limit for
// EvaluateDirectory.
func WithEvaluateConcurrency(n int) EvaluatorOption {
	return func(e *Evaluator) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithLoader sets the loader used to walk directories, controlling
// which files are evaluated.
func WithLoader(l *source.Loader) EvaluatorOption {
	return func(e *Evaluator) {
		e.loader = l
	}
}

// Evaluator applies a registered rule set to files.
//
// # Thread Safety
//
// Registration is not safe concurrently with evaluation; register all
// rules first, then evaluate freely from any goroutine.
type Evaluator struct {
	rules       []Rule
	ids         map[string]struct{}
	loader      *source.Loader
	concurrency int
}

// NewEvaluator creates an Evaluator with no rules registered.
func NewEvaluator(opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		ids:         make(map[string]struct{}),
		loader:      source.NewLoader(),
		concurrency: DefaultEvaluateConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register adds a rule to the evaluator.
//
// # Outputs
//
//   - error: ErrDuplicateRule if the id is taken, or a validation
//     error for an incomplete rule.
func (e *Evaluator) Register(rule Rule) error {
	if rule.ID == "" {
		return errors.New("rule id must not be empty")
	}
	if rule.Check == nil {
		return fmt.Errorf("rule %s: check must not be nil", rule.ID)
	}
	if _, exists := e.ids[rule.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRule, rule.ID)
	}

	e.ids[rule.ID] = struct{}{}
	e.rules = append(e.rules, rule)
	return nil
}

// Rules returns the registered rules in registration order.
func (e *Evaluator) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// EvaluateContent applies every registered rule to content, reporting
// per-rule pass/fail in registration order.
func (e *Evaluator) EvaluateContent(content []byte, path string) []RuleResult {
	results := make([]RuleResult, 0, len(e.rules))
	for _, rule := range e.rules {
		passed, detail := rule.Check.Evaluate(content, path)
		res := RuleResult{RuleID: rule.ID, Passed: passed}
		if !passed {
			res.Violation = &Violation{
				RuleID:      rule.ID,
				Target:      path,
				Message:     detail,
				Severity:    rule.Severity,
				AutoFixable: rule.AutoFixable,
			}
		}
		results = append(results, res)
	}
	return results
}

// Evaluate reads the file at path and applies every registered rule.
//
// # Outputs
//
//   - []RuleResult: One result per rule, in registration order.
//   - error: Non-nil if the file cannot be read.
func (e *Evaluator) Evaluate(path string) ([]RuleResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return e.EvaluateContent(content, path), nil
}

// EvaluateDirectory walks root and applies every rule to each matching
// file, concurrently up to the configured limit.
//
// # Outputs
//
//   - map[string][]RuleResult: Results keyed by relative file path.
//   - error: Non-nil if the walk itself fails; unreadable files are
//     skipped (the loader reports them, and a rule cannot pass or fail
//     content that never loaded).
func (e *Evaluator) EvaluateDirectory(ctx context.Context, root string) (map[string][]RuleResult, error) {
	loaded, err := e.loader.LoadDirectory(ctx, root)
	if err != nil {
		return nil, err
	}

	results := make(map[string][]RuleResult, len(loaded.Documents))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for path, doc := range loaded.Documents {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res := e.EvaluateContent(doc.Raw, path)

			mu.Lock()
			results[path] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.Debug("EvaluateDirectory: evaluation complete",
		"root", root, "files", len(results), "rules", len(e.rules))
	return results, nil
}
