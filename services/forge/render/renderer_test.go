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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderBasic(t *testing.T) {
	r := NewRenderer()
	require.NoError(t, r.Register("greeting", "hello {{.name}}"))

	out, err := r.Render("greeting", map[string]any{"name": "forge"})
	require.NoError(t, err)
	assert.Equal(t, "hello forge", out)
}

func TestRenderTransformFuncs(t *testing.T) {
	r := NewRenderer()

	tests := []struct {
		name string
		tmpl string
		data any
		want string
	}{
		{"upper", `{{upper .name}}`, map[string]any{"name": "svc"}, "SVC"},
		{"lower", `{{lower .name}}`, map[string]any{"name": "SVC"}, "svc"},
		{"quote", `{{quote .name}}`, map[string]any{"name": "svc"}, `"svc"`},
		{"join", `{{join .hosts ","}}`, map[string]any{"hosts": []string{"a", "b"}}, "a,b"},
		{"indent", `{{indent 2 .body}}`, map[string]any{"body": "x\ny"}, "  x\n  y"},
		{"default fallback", `{{default "none" .missing}}`, map[string]any{"missing": ""}, "none"},
		{"default present", `{{default "none" .v}}`, map[string]any{"v": "set"}, "set"},
		{"toJSON", `{{toJSON .v}}`, map[string]any{"v": []int{1, 2}}, "[1,2]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, r.Register(tt.name, tt.tmpl))
			out, err := r.Render(tt.name, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestRenderGlobals(t *testing.T) {
	r := NewRenderer(WithGlobal("env", "production"))
	require.NoError(t, r.Register("banner", `# env: {{global "env"}}`))

	out, err := r.Render("banner", nil)
	require.NoError(t, err)
	assert.Equal(t, "# env: production", out)
}

func TestRenderUndefinedGlobal(t *testing.T) {
	r := NewRenderer()
	require.NoError(t, r.Register("bad", `{{global "nope"}}`))

	_, err := r.Render("bad", nil)
	var renderErr *RenderError
	require.ErrorAs(t, err, &renderErr)
	assert.Equal(t, "bad", renderErr.Ref)
}

func TestRenderUnknownRef(t *testing.T) {
	r := NewRenderer()

	out, err := r.Render("ghost", nil)
	assert.Empty(t, out)

	var renderErr *RenderError
	require.ErrorAs(t, err, &renderErr)
	assert.Equal(t, "ghost", renderErr.Ref)
	assert.True(t, errors.Is(err, ErrTemplateNotFound))
}

func TestRenderMissingKeyFails(t *testing.T) {
	r := NewRenderer()
	require.NoError(t, r.Register("strict", "{{.absent}}"))

	out, err := r.Render("strict", map[string]any{"present": 1})
	assert.Empty(t, out)

	var renderErr *RenderError
	require.ErrorAs(t, err, &renderErr)
}

func TestRegisterParseError(t *testing.T) {
	r := NewRenderer()

	err := r.Register("broken", "{{.unclosed")
	var renderErr *RenderError
	require.ErrorAs(t, err, &renderErr)
	assert.Equal(t, "broken", renderErr.Ref)
}

func TestRegisterReplacesExisting(t *testing.T) {
	r := NewRenderer()
	require.NoError(t, r.Register("t", "v1"))
	require.NoError(t, r.Register("t", "v2"))

	out, err := r.Render("t", nil)
	require.NoError(t, err)
	assert.Equal(t, "v2", out)
	assert.Equal(t, []string{"t"}, r.Refs())
}

func TestWithFuncOverridesBuiltin(t *testing.T) {
	r := NewRenderer(WithFunc("upper", func(s string) string { return "custom:" + s }))
	require.NoError(t, r.Register("t", "{{upper .v}}"))

	out, err := r.Render("t", map[string]any{"v": "x"})
	require.NoError(t, err)
	assert.Equal(t, "custom:x", out)
}
