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
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
)

// writeFile creates a file under root, making parent directories.
func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return full
}

func TestLoadDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "base.yaml", "shared: 1\n")
	writeFile(t, root, "env/prod.yml", "env: prod\n")
	writeFile(t, root, "README.md", "not config")

	result, err := NewLoader().LoadDirectory(context.Background(), root)
	if err != nil {
		t.Fatalf("LoadDirectory: %v", err)
	}
	if !result.OK() {
		t.Fatalf("errors = %v, want none", result.Errors)
	}
	if len(result.Documents) != 2 {
		t.Fatalf("documents = %d, want 2", len(result.Documents))
	}

	doc, ok := result.Documents["env/prod.yml"]
	if !ok {
		t.Fatal("env/prod.yml not loaded; keys must be slash-separated relative paths")
	}
	if string(doc.Raw) != "env: prod\n" {
		t.Errorf("raw = %q", doc.Raw)
	}

	sum := sha256.Sum256([]byte("env: prod\n"))
	if doc.Digest != hex.EncodeToString(sum[:]) {
		t.Errorf("digest = %s, want sha256 of content", doc.Digest)
	}
	if doc.ModTime.IsZero() {
		t.Error("modtime not recorded")
	}

	if _, ok := result.Documents["README.md"]; ok {
		t.Error("non-config extension was loaded")
	}
}

func TestLoadDirectorySkipsExcluded(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app.yaml", "a: 1\n")
	writeFile(t, root, ".git/config.yaml", "hidden: true\n")
	writeFile(t, root, "node_modules/pkg/cfg.yaml", "dep: true\n")

	result, err := NewLoader().LoadDirectory(context.Background(), root)
	if err != nil {
		t.Fatalf("LoadDirectory: %v", err)
	}
	if len(result.Documents) != 1 {
		t.Fatalf("documents = %v, want only app.yaml", result.Documents)
	}
	if _, ok := result.Documents["app.yaml"]; !ok {
		t.Error("app.yaml missing")
	}
}

func TestLoadDirectoryCustomExtensions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "rules.toml", "x = 1\n")
	writeFile(t, root, "app.yaml", "a: 1\n")

	l := NewLoader(WithExtensions(".toml"))
	result, err := l.LoadDirectory(context.Background(), root)
	if err != nil {
		t.Fatalf("LoadDirectory: %v", err)
	}
	if len(result.Documents) != 1 {
		t.Fatalf("documents = %v, want only rules.toml", result.Documents)
	}
}

func TestLoadDirectoryPartialSuccess(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permission bits are ignored for root")
	}

	root := t.TempDir()
	writeFile(t, root, "good.yaml", "ok: 1\n")
	unreadable := writeFile(t, root, "bad.yaml", "secret: 1\n")
	if err := os.Chmod(unreadable, 0000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(unreadable, 0644) })

	result, err := NewLoader().LoadDirectory(context.Background(), root)
	if err != nil {
		t.Fatalf("LoadDirectory: %v", err)
	}

	if _, ok := result.Documents["good.yaml"]; !ok {
		t.Error("readable document missing from partial result")
	}
	if len(result.Errors) != 1 {
		t.Fatalf("errors = %v, want one for bad.yaml", result.Errors)
	}
	if result.Errors[0].Path != "bad.yaml" {
		t.Errorf("error path = %s, want bad.yaml", result.Errors[0].Path)
	}
	if result.OK() {
		t.Error("OK() must be false with per-file errors")
	}
}

func TestLoadDirectoryMissingRoot(t *testing.T) {
	_, err := NewLoader().LoadDirectory(context.Background(), filepath.Join(t.TempDir(), "absent"))
	if err == nil {
		t.Fatal("missing root must fail the load entirely")
	}
}

func TestLoadDirectoryCancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.yaml", "a: 1\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewLoader().LoadDirectory(ctx, root); err == nil {
		t.Fatal("cancelled context must abort the walk")
	}
}

func TestNewGitClientRejectsRelativePath(t *testing.T) {
	if _, err := NewGitClient("relative/path", 0); err == nil {
		t.Fatal("relative repoPath must be rejected")
	}
}
