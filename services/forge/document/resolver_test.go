// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package document

import (
	"errors"
	"strings"
	"testing"
)

func TestResolveAllCrossDocument(t *testing.T) {
	docs := map[string]string{
		"base.cfg": "shared: &shared\n" +
			"  timeout: 30\n",
		"app.cfg": "<<: *shared\n" +
			"name: \"svc\"\n",
	}

	result := NewResolver().ResolveAll(docs)
	if !result.OK() {
		t.Fatalf("Errors = %v, want none", result.Errors)
	}

	app := result.Trees["app.cfg"]
	if app == nil {
		t.Fatal("app.cfg tree missing")
	}
	if app.Root["timeout"] != 30 {
		t.Errorf("timeout = %v, want 30", app.Root["timeout"])
	}
	if app.Root["name"] != "svc" {
		t.Errorf("name = %v, want svc", app.Root["name"])
	}
	if len(app.Root) != 2 {
		t.Errorf("app root = %v, want exactly timeout and name", app.Root)
	}

	base := result.Trees["base.cfg"]
	if base == nil {
		t.Fatal("base.cfg tree missing")
	}
	shared, ok := base.Root["shared"].(map[string]any)
	if !ok || shared["timeout"] != 30 {
		t.Errorf("base shared = %v, want {timeout: 30}", base.Root["shared"])
	}
}

func TestResolveAllMissingAnchorNamesAlias(t *testing.T) {
	docs := map[string]string{
		"app.cfg": "<<: *shared\n" +
			"name: \"svc\"\n",
	}

	result := NewResolver().ResolveAll(docs)
	err := result.Errors["app.cfg"]
	if err == nil {
		t.Fatal("app.cfg error missing")
	}

	var undefErr *UndefinedReferenceError
	if !errors.As(err, &undefErr) {
		t.Fatalf("err = %v, want UndefinedReferenceError", err)
	}
	if undefErr.Alias != "shared" {
		t.Errorf("Alias = %s, want shared", undefErr.Alias)
	}
}

func TestResolveAllIsolatesFailures(t *testing.T) {
	docs := map[string]string{
		"good.cfg": "name: alpha\n",
		"bad.cfg":  "items: [unclosed\n",
		"also.cfg": "name: beta\n",
	}

	result := NewResolver().ResolveAll(docs)

	if len(result.Errors) != 1 {
		t.Fatalf("Errors = %v, want only bad.cfg", result.Errors)
	}
	var parseErr *ParseError
	if !errors.As(result.Errors["bad.cfg"], &parseErr) {
		t.Errorf("bad.cfg err = %v, want ParseError", result.Errors["bad.cfg"])
	}
	if result.Trees["good.cfg"] == nil || result.Trees["also.cfg"] == nil {
		t.Errorf("healthy documents missing from Trees: %v", result.Trees)
	}
}

func TestResolveAllUnusedAnchorWarns(t *testing.T) {
	docs := map[string]string{
		"base.cfg": "orphan: &orphan\n" +
			"  unused: true\n",
	}

	result := NewResolver().ResolveAll(docs)
	if !result.OK() {
		t.Fatalf("Errors = %v, want none", result.Errors)
	}

	if len(result.Warnings) != 1 {
		t.Fatalf("Warnings = %v, want one unused-anchor warning", result.Warnings)
	}
	w := result.Warnings[0]
	if !strings.Contains(w.Message, "orphan") || !strings.Contains(w.Message, "never used") {
		t.Errorf("warning = %q, want unused-anchor mention of orphan", w.Message)
	}
	if w.Path != "base.cfg" || w.Line != 1 {
		t.Errorf("warning location = %s:%d, want base.cfg:1", w.Path, w.Line)
	}
}

func TestResolveAllTransitiveForeignAnchors(t *testing.T) {
	docs := map[string]string{
		"limits.cfg": "limits: &limits\n" +
			"  rps: 100\n",
		"base.cfg": "shared: &shared\n" +
			"  quota: *limits\n",
		"app.cfg": "service:\n" +
			"  <<: *shared\n",
	}

	result := NewResolver().ResolveAll(docs)
	if !result.OK() {
		t.Fatalf("Errors = %v, want none", result.Errors)
	}

	service, ok := result.Trees["app.cfg"].Root["service"].(map[string]any)
	if !ok {
		t.Fatalf("service = %T, want mapping", result.Trees["app.cfg"].Root["service"])
	}
	quota, ok := service["quota"].(map[string]any)
	if !ok {
		t.Fatalf("quota = %v, want expanded limits mapping", service["quota"])
	}
	if quota["rps"] != 100 {
		t.Errorf("rps = %v, want 100", quota["rps"])
	}
}

func TestResolveAllScalarAnchor(t *testing.T) {
	docs := map[string]string{
		"base.cfg": "region: &region us-east-1\n",
		"app.cfg":  "deploy: *region\n",
	}

	result := NewResolver().ResolveAll(docs)
	if !result.OK() {
		t.Fatalf("Errors = %v, want none", result.Errors)
	}
	if result.Trees["app.cfg"].Root["deploy"] != "us-east-1" {
		t.Errorf("deploy = %v, want us-east-1", result.Trees["app.cfg"].Root["deploy"])
	}
}

func TestResolveAllNoSyntheticKeysLeak(t *testing.T) {
	docs := map[string]string{
		"base.cfg": "shared: &shared\n  a: 1\n",
		"app.cfg":  "cfg: *shared\n",
	}

	result := NewResolver().ResolveAll(docs)
	if !result.OK() {
		t.Fatalf("Errors = %v, want none", result.Errors)
	}
	for key := range result.Trees["app.cfg"].Root {
		if strings.HasPrefix(key, "__anchor_") {
			t.Errorf("synthetic key %q leaked into tree", key)
		}
	}
}
