// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline composes the loader, resolver, dependency mapper,
// renderer, and artifact writer into one staged run. Stages advance
// strictly in order; within a stage, per-item failures aggregate into
// the run report instead of aborting the run. A run does not resume
// partial stages; a fresh run starts its stage over.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/configforge/services/forge/artifact"
	"github.com/AleutianAI/configforge/services/forge/depgraph"
	"github.com/AleutianAI/configforge/services/forge/document"
	"github.com/AleutianAI/configforge/services/forge/evidence"
	"github.com/AleutianAI/configforge/services/forge/render"
	"github.com/AleutianAI/configforge/services/forge/source"
	"github.com/AleutianAI/configforge/services/forge/telemetry"
)

// StageError attributes one non-fatal failure to its stage and item.
type StageError struct {
	Stage  string `json:"stage"`
	Target string `json:"target"`
	Err    error  `json:"-"`
	Error  string `json:"error"`
}

// RunReport summarizes one pipeline run.
type RunReport struct {
	// Documents is the number of source documents loaded.
	Documents int `json:"documents"`

	// Order is the module ids in dependency-first render order.
	Order []string `json:"order"`

	// Artifacts is the number of artifacts written.
	Artifacts int `json:"artifacts"`

	// Warnings carries non-fatal resolution findings.
	Warnings []document.Warning `json:"warnings,omitempty"`

	// Errors aggregates per-item failures across stages.
	Errors []StageError `json:"errors,omitempty"`

	// Manifest is the post-run artifact inventory snapshot.
	Manifest *artifact.Manifest `json:"manifest,omitempty"`
}

// OK reports whether the run completed without per-item errors.
func (r *RunReport) OK() bool {
	return len(r.Errors) == 0
}

func (r *RunReport) addError(stage, target string, err error) {
	r.Errors = append(r.Errors, StageError{Stage: stage, Target: target, Err: err, Error: err.Error()})
}

// RunnerOption is a functional option for configuring Runner.
type RunnerOption func(*Runner)

// WithDefaultTemplate sets the template ref used by documents that do
// not name one.
func WithDefaultTemplate(ref string) RunnerOption {
	return func(r *Runner) {
		r.defaultTemplate = ref
	}
}

// WithRunnerLoader overrides the source loader.
func WithRunnerLoader(l *source.Loader) RunnerOption {
	return func(r *Runner) {
		r.loader = l
	}
}

// Runner executes the rendering pipeline over one source root.
//
// # Description
//
// Documents declare their module identity under a top-level "module"
// mapping:
//
//	module:
//	  id: app
//	  dependsOn: [base]
//	  template: service
//	  output: rendered/app.conf
//
// Documents without a module block render as standalone modules keyed
// by their path. Render order follows the dependency graph; a cycle or
// an edge to an unknown module fails the run before anything renders.
//
// # Thread Safety
//
// A Runner may be shared; each Run is independent.
type Runner struct {
	loader          *source.Loader
	resolver        *document.Resolver
	renderer        *render.Renderer
	writer          *artifact.Writer
	chain           *evidence.Chain
	defaultTemplate string
}

// NewRunner wires the pipeline stages together.
func NewRunner(renderer *render.Renderer, writer *artifact.Writer, chain *evidence.Chain, opts ...RunnerOption) *Runner {
	r := &Runner{
		loader:          source.NewLoader(),
		resolver:        document.NewResolver(),
		renderer:        renderer,
		writer:          writer,
		chain:           chain,
		defaultTemplate: "default",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// moduleSpec is the per-document rendering declaration.
type moduleSpec struct {
	id        string
	dependsOn []string
	template  string
	output    string
	tree      *document.ConfigurationTree
}

// extractModule reads the module block out of a resolved tree, falling
// back to path-derived defaults.
func (r *Runner) extractModule(path string, tree *document.ConfigurationTree) moduleSpec {
	spec := moduleSpec{
		id:       path,
		template: r.defaultTemplate,
		output:   defaultOutputPath(path),
		tree:     tree,
	}

	block, ok := tree.Root["module"].(map[string]any)
	if !ok {
		return spec
	}
	if id, ok := block["id"].(string); ok && id != "" {
		spec.id = id
	}
	if tmpl, ok := block["template"].(string); ok && tmpl != "" {
		spec.template = tmpl
	}
	if out, ok := block["output"].(string); ok && out != "" {
		spec.output = out
	}
	if deps, ok := block["dependsOn"].([]any); ok {
		for _, d := range deps {
			if s, ok := d.(string); ok {
				spec.dependsOn = append(spec.dependsOn, s)
			}
		}
	}
	return spec
}

// defaultOutputPath swaps a document's extension for .rendered.
func defaultOutputPath(path string) string {
	if idx := strings.LastIndex(path, "."); idx > 0 {
		return path[:idx] + ".rendered"
	}
	return path + ".rendered"
}

// Run executes one full pipeline pass over root.
//
// # Outputs
//
//   - *RunReport: Stage outcomes, always non-nil on non-fatal paths.
//   - error: Fatal failures only: unreadable root, dependency cycle,
//     unresolved dependency, or manifest generation failure.
func (r *Runner) Run(ctx context.Context, root string) (*RunReport, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "pipeline.Runner.Run",
		trace.WithAttributes(attribute.String("forge.root", root)))
	defer span.End()

	report := &RunReport{}
	fail := func(err error) error {
		telemetry.RecordError(span, err)
		return err
	}

	// Load.
	loadSpan := stageSpan(ctx, "load")
	loaded, err := r.loader.LoadDirectory(ctx, root)
	if err != nil {
		err = fmt.Errorf("load stage: %w", err)
		endStage(ctx, loadSpan, "load", 0, err)
		return nil, fail(err)
	}
	endStage(ctx, loadSpan, "load", len(loaded.Errors), nil)
	report.Documents = len(loaded.Documents)
	for _, le := range loaded.Errors {
		report.addError("load", le.Path, le.Err)
	}
	r.record(evidence.TypeLoad, root, map[string]any{
		"documents": len(loaded.Documents),
		"errors":    len(loaded.Errors),
	})

	// Parse and resolve as one shared anchor scope.
	docs := make(map[string]string, len(loaded.Documents))
	for path, doc := range loaded.Documents {
		docs[path] = string(doc.Raw)
	}
	resolveSpan := stageSpan(ctx, "resolve")
	resolved := r.resolver.ResolveAll(docs)
	endStage(ctx, resolveSpan, "resolve", len(resolved.Errors), nil)
	report.Warnings = resolved.Warnings
	for path, perr := range resolved.Errors {
		report.addError("parse", path, perr)
	}
	r.record(evidence.TypeParse, root, map[string]any{
		"parsed":   len(resolved.Trees),
		"failed":   len(resolved.Errors),
		"warnings": len(resolved.Warnings),
	})

	// Map dependencies.
	specs := make(map[string]moduleSpec, len(resolved.Trees))
	nodes := make([]depgraph.ModuleNode, 0, len(resolved.Trees))
	for path, tree := range resolved.Trees {
		spec := r.extractModule(path, tree)
		specs[spec.id] = spec
		nodes = append(nodes, depgraph.ModuleNode{ID: spec.id, DependsOn: spec.dependsOn})
	}

	graphSpan := stageSpan(ctx, "graph")
	graph, err := depgraph.Build(nodes)
	if err != nil {
		err = fmt.Errorf("dependency stage: %w", err)
		endStage(ctx, graphSpan, "graph", 0, err)
		return report, fail(err)
	}
	order, err := graph.TopoSort()
	if err != nil {
		err = fmt.Errorf("dependency stage: %w", err)
		endStage(ctx, graphSpan, "graph", 0, err)
		return report, fail(err)
	}
	endStage(ctx, graphSpan, "graph", 0, nil)
	report.Order = order
	r.record(evidence.TypeGraph, root, map[string]any{"order": order})

	// Render and write, dependency-first.
	renderSpan := stageSpan(ctx, "render")
	renderFailures := 0
	for _, id := range order {
		if err := ctx.Err(); err != nil {
			endStage(ctx, renderSpan, "render", renderFailures, err)
			return report, fail(err)
		}
		spec := specs[id]

		text, err := r.renderer.Render(spec.template, spec.tree.Root)
		if err != nil {
			report.addError("render", id, err)
			renderFailures++
			continue
		}
		r.record(evidence.TypeRender, id, map[string]any{"template": spec.template})

		res, err := r.writer.Write(id, []byte(text), spec.output)
		if err != nil {
			report.addError("write", id, err)
			renderFailures++
			continue
		}
		report.Artifacts++
		r.record(evidence.TypeWrite, id, res)
	}
	endStage(ctx, renderSpan, "render", renderFailures, nil)

	// Manifest.
	manifestSpan := stageSpan(ctx, "manifest")
	manifest, err := r.writer.BuildManifest()
	if err != nil {
		err = fmt.Errorf("manifest stage: %w", err)
		endStage(ctx, manifestSpan, "manifest", 0, err)
		return report, fail(err)
	}
	endStage(ctx, manifestSpan, "manifest", 0, nil)
	report.Manifest = manifest
	r.record(evidence.TypeManifest, root, map[string]any{
		"artifactCount": manifest.ArtifactCount,
		"checksum":      manifest.Checksum(),
	})

	if report.OK() {
		telemetry.SetSpanOK(span)
	}
	slog.Info("Run: pipeline complete",
		"documents", report.Documents,
		"artifacts", report.Artifacts,
		"errors", len(report.Errors))
	return report, nil
}

// record appends evidence, downgrading append failures to a warning so
// a locked chain does not kill an otherwise healthy run.
func (r *Runner) record(recordType, source string, data any) {
	if r.chain == nil {
		return
	}
	if _, err := r.chain.Append(recordType, source, data); err != nil {
		slog.Warn("record: evidence append failed", "type", recordType, "error", err)
	}
}
