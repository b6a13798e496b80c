// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"text/template"
)

// RenderedArtifact is the output of one render operation, ready for the
// artifact writer.
type RenderedArtifact struct {
	// ID identifies the artifact across writes and manifest entries.
	ID string

	// Content is the rendered text.
	Content string

	// TargetPath is the intended output location, relative to the
	// writer's output directory.
	TargetPath string

	// Metadata carries optional annotations recorded alongside the
	// artifact.
	Metadata map[string]string
}

// Renderer executes registered templates against configuration data.
//
// # Description
//
// Every template shares one function map and one set of globals, so a
// value transform or constant added to the environment is available to
// all templates uniformly. Globals are reachable in templates through
// the "global" function.
//
// # Thread Safety
//
// Renderer is safe for concurrent use. Registration and rendering may
// interleave; a render sees every template registered before it started.
type Renderer struct {
	mu      sync.RWMutex
	tmpls   map[string]*template.Template
	globals map[string]any
	funcs   template.FuncMap
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithGlobal adds a named constant to the template environment.
func WithGlobal(name string, value any) RendererOption {
	return func(r *Renderer) {
		r.globals[name] = value
	}
}

// WithFunc adds a named transform function to the template environment.
// It overrides a built-in of the same name.
func WithFunc(name string, fn any) RendererOption {
	return func(r *Renderer) {
		r.funcs[name] = fn
	}
}

// NewRenderer creates a Renderer with the built-in transform functions.
//
// # Outputs
//
//   - *Renderer: Configured renderer with no templates registered.
func NewRenderer(opts ...RendererOption) *Renderer {
	r := &Renderer{
		tmpls:   make(map[string]*template.Template),
		globals: make(map[string]any),
		funcs:   builtinFuncs(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.funcs["global"] = func(name string) (any, error) {
		v, ok := r.globals[name]
		if !ok {
			return nil, fmt.Errorf("undefined global %q", name)
		}
		return v, nil
	}
	return r
}

// builtinFuncs returns the default transform function set.
func builtinFuncs() template.FuncMap {
	return template.FuncMap{
		"upper":   strings.ToUpper,
		"lower":   strings.ToLower,
		"trim":    strings.TrimSpace,
		"join":    strings.Join,
		"quote":   func(s string) string { return fmt.Sprintf("%q", s) },
		"replace": strings.ReplaceAll,
		"indent": func(n int, s string) string {
			pad := strings.Repeat(" ", n)
			return pad + strings.ReplaceAll(s, "\n", "\n"+pad)
		},
		"default": func(fallback, v any) any {
			if v == nil || v == "" {
				return fallback
			}
			return v
		},
		"toJSON": func(v any) (string, error) {
			b, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			return string(b), nil
		},
		"sortedKeys": func(m map[string]any) []string {
			keys := make([]string, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			return keys
		},
	}
}

// Register parses templateText and stores it under ref, replacing any
// previous registration.
//
// # Inputs
//
//   - ref: Template reference used by later Render calls.
//   - templateText: The template source.
//
// # Outputs
//
//   - error: *RenderError if the template does not parse.
func (r *Renderer) Register(ref, templateText string) error {
	tmpl, err := template.New(ref).Funcs(r.funcs).Option("missingkey=error").Parse(templateText)
	if err != nil {
		slog.Debug("Register: template parse failed", "ref", ref, "error", err)
		return &RenderError{Ref: ref, Err: err}
	}

	r.mu.Lock()
	r.tmpls[ref] = tmpl
	r.mu.Unlock()

	slog.Debug("Register: template registered", "ref", ref, "length", len(templateText))
	return nil
}

// Refs returns the registered template references in sorted order.
func (r *Renderer) Refs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	refs := make([]string, 0, len(r.tmpls))
	for ref := range r.tmpls {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

// Render executes the template registered under ref against data.
//
// # Inputs
//
//   - ref: A reference previously passed to Register.
//   - data: The value the template executes against, typically a
//     resolved configuration tree root.
//
// # Outputs
//
//   - string: The rendered text. Never silently empty on failure.
//   - error: *RenderError wrapping ErrTemplateNotFound or the
//     execution error.
func (r *Renderer) Render(ref string, data any) (string, error) {
	r.mu.RLock()
	tmpl, ok := r.tmpls[ref]
	r.mu.RUnlock()

	if !ok {
		return "", &RenderError{Ref: ref, Err: ErrTemplateNotFound}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		slog.Debug("Render: execution failed", "ref", ref, "error", err)
		return "", &RenderError{Ref: ref, Err: err}
	}
	return buf.String(), nil
}
