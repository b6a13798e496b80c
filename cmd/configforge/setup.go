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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/configforge/services/forge/evidence"
	"github.com/AleutianAI/configforge/services/forge/governance"
	"github.com/AleutianAI/configforge/services/forge/render"
	"github.com/AleutianAI/configforge/services/forge/rules"
)

// fallbackTemplate renders any document as indented JSON when the
// template directory does not supply a "default" template.
const fallbackTemplate = "{{ toJSON . }}\n"

// sourceRoot returns the positional source root argument, defaulting to
// the current directory.
func sourceRoot(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}

// resolveUnder joins path with root unless path is absolute. An empty
// path selects the fallback, also joined under root.
func resolveUnder(root, path, fallback string) string {
	if path == "" {
		path = fallback
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// openChain opens the evidence chain for the given source root,
// honoring the --evidence flag.
func openChain(root string) (*evidence.Chain, error) {
	path := evidencePath
	if path == "" {
		path = filepath.Join(root, ".forge", "evidence.jsonl")
	}
	return evidence.Open(path)
}

// chainPath reports the evidence chain location for the given root.
func chainPath(root string) string {
	if evidencePath != "" {
		return evidencePath
	}
	return filepath.Join(root, ".forge", "evidence.jsonl")
}

// buildGovernance assembles the governance orchestrator for root.
//
// # Description
//
// The charter is loaded first so its policy field can supply the rule
// set when --policy is not given. A charter without a policy yields an
// empty evaluator: validation passes trivially.
func buildGovernance(root string, opts ...governance.OrchestratorOption) (*governance.Orchestrator, *rules.Evaluator, *evidence.Chain, error) {
	charterFile := resolveUnder(root, charterPath, "forge.charter.yaml")
	charter, err := governance.LoadCharter(charterFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading charter %s: %w", charterFile, err)
	}

	evaluator := rules.NewEvaluator()
	policyFile := policyPath
	if policyFile == "" && charter.Policy != "" {
		policyFile = resolveUnder(root, charter.Policy, "")
	}
	if policyFile != "" {
		ruleSet, err := rules.LoadPolicy(policyFile)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("loading policy %s: %w", policyFile, err)
		}
		for _, rule := range ruleSet {
			if err := evaluator.Register(rule); err != nil {
				return nil, nil, nil, fmt.Errorf("registering rule %s: %w", rule.ID, err)
			}
		}
	}

	chain, err := openChain(root)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening evidence chain: %w", err)
	}

	orchestrator, err := governance.NewOrchestrator(root, charterFile, evaluator, chain, opts...)
	if err != nil {
		return nil, nil, nil, err
	}
	return orchestrator, evaluator, chain, nil
}

// buildRenderer creates the template renderer, loading every template
// from the template directory and applying --set globals.
//
// # Outputs
//
//   - *render.Renderer: Renderer with a "default" template guaranteed.
//   - error: Non-nil on an unreadable template file, a parse failure,
//     or a malformed --set value.
func buildRenderer(root string) (*render.Renderer, error) {
	var opts []render.RendererOption
	for _, kv := range globalValues {
		key, value, found := strings.Cut(kv, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("malformed --set value %q, want key=value", kv)
		}
		opts = append(opts, render.WithGlobal(key, value))
	}

	renderer := render.NewRenderer(opts...)

	dir := resolveUnder(root, templatesDir, "templates")
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading template directory %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".tmpl" && ext != ".gotmpl" {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading template %s: %w", entry.Name(), err)
		}
		ref := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if err := renderer.Register(ref, string(content)); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", entry.Name(), err)
		}
	}

	hasDefault := false
	for _, ref := range renderer.Refs() {
		if ref == "default" {
			hasDefault = true
			break
		}
	}
	if !hasDefault {
		if err := renderer.Register("default", fallbackTemplate); err != nil {
			return nil, err
		}
	}
	return renderer, nil
}
