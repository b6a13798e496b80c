// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package source

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// gitFixture runs git in dir, skipping the test when git is not
// installed.
func gitFixture(t *testing.T, dir string, args ...string) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(cmd.Environ(),
		"GIT_AUTHOR_NAME=fixture",
		"GIT_AUTHOR_EMAIL=fixture@example.com",
		"GIT_COMMITTER_NAME=fixture",
		"GIT_COMMITTER_EMAIL=fixture@example.com")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v: %s", args, err, out)
	}
}

// newUpstream builds a two-commit repository: the tag v1 marks the
// first commit, HEAD is the second.
func newUpstream(t *testing.T) string {
	t.Helper()
	upstream := t.TempDir()

	gitFixture(t, upstream, "init", "--initial-branch=main")
	writeFile(t, upstream, "base.yaml", "env: one\n")
	gitFixture(t, upstream, "add", ".")
	gitFixture(t, upstream, "commit", "-m", "first configuration")
	gitFixture(t, upstream, "tag", "v1")

	writeFile(t, upstream, "base.yaml", "env: two\n")
	writeFile(t, upstream, "extra.yaml", "added: true\n")
	gitFixture(t, upstream, "add", ".")
	gitFixture(t, upstream, "commit", "-m", "second configuration")

	return upstream
}

func TestLoadRepository(t *testing.T) {
	upstream := newUpstream(t)
	dest := filepath.Join(t.TempDir(), "checkout")

	result, err := NewLoader().LoadRepository(context.Background(), upstream, "", 0, dest)
	if err != nil {
		t.Fatalf("LoadRepository: %v", err)
	}
	if !result.OK() {
		t.Fatalf("errors = %v, want none", result.Errors)
	}

	doc, ok := result.Documents["base.yaml"]
	if !ok {
		t.Fatalf("base.yaml not loaded; documents = %v", len(result.Documents))
	}
	if string(doc.Raw) != "env: two\n" {
		t.Errorf("raw = %q, want head revision content", doc.Raw)
	}
	if _, ok := result.Documents["extra.yaml"]; !ok {
		t.Error("extra.yaml not loaded")
	}

	if result.Commit == nil {
		t.Fatal("Commit is nil, want resolved head identity")
	}
	if len(result.Commit.Hash) != 40 {
		t.Errorf("hash = %q, want full SHA", result.Commit.Hash)
	}
	if result.Commit.Message != "second configuration" {
		t.Errorf("message = %q", result.Commit.Message)
	}
	if result.Commit.Timestamp.IsZero() {
		t.Error("timestamp is zero")
	}
}

func TestLoadRepositoryNamedRef(t *testing.T) {
	upstream := newUpstream(t)
	dest := filepath.Join(t.TempDir(), "checkout")

	result, err := NewLoader().LoadRepository(context.Background(), upstream, "v1", 0, dest)
	if err != nil {
		t.Fatalf("LoadRepository: %v", err)
	}

	doc, ok := result.Documents["base.yaml"]
	if !ok {
		t.Fatal("base.yaml not loaded")
	}
	if string(doc.Raw) != "env: one\n" {
		t.Errorf("raw = %q, want tagged revision content", doc.Raw)
	}
	if _, ok := result.Documents["extra.yaml"]; ok {
		t.Error("extra.yaml present, want only tagged revision files")
	}
	if result.Commit == nil || result.Commit.Message != "first configuration" {
		t.Errorf("commit = %+v, want tagged commit identity", result.Commit)
	}
}

func TestLoadRepositoryReusesCheckout(t *testing.T) {
	upstream := newUpstream(t)
	dest := filepath.Join(t.TempDir(), "checkout")
	loader := NewLoader()
	ctx := context.Background()

	if _, err := loader.LoadRepository(ctx, upstream, "", 0, dest); err != nil {
		t.Fatalf("first load: %v", err)
	}

	// Second load fetches into the existing checkout instead of cloning.
	result, err := loader.LoadRepository(ctx, upstream, "", 0, dest)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if !strings.HasSuffix(result.Root, "checkout") {
		t.Errorf("root = %q", result.Root)
	}
	if result.Commit == nil {
		t.Fatal("Commit is nil")
	}
}
