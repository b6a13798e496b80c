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
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultGitTimeout bounds each git operation. Remote operations are
// the only network I/O in a load; on timeout the load fails rather than
// retrying.
const DefaultGitTimeout = 60 * time.Second

// GitClient executes git commands against one local checkout.
//
// # Description
//
// Wraps the git command line with a per-operation timeout. The checkout
// directory need not exist before Clone.
//
// # Thread Safety
//
// All methods are safe for concurrent use, though concurrent mutations
// of the same checkout are subject to git's own locking.
type GitClient struct {
	repoPath string
	timeout  time.Duration
}

// NewGitClient creates a git client for the checkout at repoPath.
//
// # Inputs
//
//   - repoPath: Absolute path of the checkout directory.
//   - timeout: Maximum duration per git operation; <= 0 uses
//     DefaultGitTimeout.
//
// # Outputs
//
//   - *GitClient: Ready-to-use client.
//   - error: Non-nil if repoPath is not absolute.
func NewGitClient(repoPath string, timeout time.Duration) (*GitClient, error) {
	if !filepath.IsAbs(repoPath) {
		return nil, fmt.Errorf("repoPath must be absolute: %s", repoPath)
	}
	if timeout <= 0 {
		timeout = DefaultGitTimeout
	}
	return &GitClient{repoPath: repoPath, timeout: timeout}, nil
}

// run executes a git command in dir and returns stdout.
func (g *GitClient) run(ctx context.Context, dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("git %s: timeout after %v", args[0], g.timeout)
		}
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, stderr.String())
	}
	return strings.TrimSpace(stdout.String()), nil
}

// runRepo executes a git command inside the checkout.
func (g *GitClient) runRepo(ctx context.Context, args ...string) (string, error) {
	return g.run(ctx, g.repoPath, args...)
}

// IsRepository reports whether the checkout directory is a git
// repository.
func (g *GitClient) IsRepository(ctx context.Context) bool {
	_, err := g.runRepo(ctx, "rev-parse", "--git-dir")
	return err == nil
}

// Clone clones url into the checkout directory.
//
// # Inputs
//
//   - ctx: Context for timeout and cancellation.
//   - url: Remote repository URL.
//   - depth: Shallow clone depth; <= 0 clones full history.
//
// # Outputs
//
//   - error: Non-nil if the clone fails. Clone failure is fatal to a
//     remote load; nothing downstream can proceed without a checkout.
func (g *GitClient) Clone(ctx context.Context, url string, depth int) error {
	args := []string{"clone"}
	if depth > 0 {
		args = append(args, "--depth", strconv.Itoa(depth))
	}
	args = append(args, url, g.repoPath)

	_, err := g.run(ctx, filepath.Dir(g.repoPath), args...)
	if err != nil {
		return fmt.Errorf("clone %s: %w", url, err)
	}
	return nil
}

// Fetch updates the checkout from its remote.
func (g *GitClient) Fetch(ctx context.Context) error {
	if _, err := g.runRepo(ctx, "fetch", "--all", "--tags"); err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	return nil
}

// Checkout switches the checkout to ref (branch, tag, or commit SHA).
func (g *GitClient) Checkout(ctx context.Context, ref string) error {
	if _, err := g.runRepo(ctx, "checkout", ref); err != nil {
		return fmt.Errorf("checkout %s: %w", ref, err)
	}
	return nil
}

// RevParse resolves a ref to a full commit SHA.
func (g *GitClient) RevParse(ctx context.Context, ref string) (string, error) {
	sha, err := g.runRepo(ctx, "rev-parse", ref)
	if err != nil {
		return "", fmt.Errorf("resolving ref %s: %w", ref, err)
	}
	return sha, nil
}

// Head returns the commit identity of the current HEAD.
//
// # Outputs
//
//   - CommitInfo: Hash, subject line, and committer time.
//   - error: Non-nil if the checkout has no commits or git fails.
func (g *GitClient) Head(ctx context.Context) (CommitInfo, error) {
	out, err := g.runRepo(ctx, "log", "-1", "--format=%H%n%cI%n%s")
	if err != nil {
		return CommitInfo{}, fmt.Errorf("resolving HEAD: %w", err)
	}

	parts := strings.SplitN(out, "\n", 3)
	if len(parts) < 3 {
		return CommitInfo{}, fmt.Errorf("unexpected git log output: %q", out)
	}

	ts, err := time.Parse(time.RFC3339, parts[1])
	if err != nil {
		return CommitInfo{}, fmt.Errorf("parse commit timestamp %q: %w", parts[1], err)
	}

	return CommitInfo{
		Hash:      parts[0],
		Message:   parts[2],
		Timestamp: ts,
	}, nil
}

// LoadRepository materializes a remote ref into dest and loads it.
//
// # Description
//
// Clones url into dest if dest is not already a checkout, otherwise
// fetches. Checks out ref when non-empty, records the resolved commit
// identity, then loads the tree like LoadDirectory. Clone, fetch, and
// checkout failures are fatal; per-file read errors aggregate in the
// result.
//
// # Inputs
//
//   - ctx: Context for timeout and cancellation.
//   - url: Remote repository URL.
//   - ref: Branch, tag, or commit to pin; empty keeps the default head.
//   - depth: Shallow clone depth; <= 0 clones full history.
//   - dest: Absolute checkout directory.
//
// # Outputs
//
//   - *LoadResult: Documents plus the resolved CommitInfo.
//   - error: Non-nil on clone/fetch/checkout failure.
func (l *Loader) LoadRepository(ctx context.Context, url, ref string, depth int, dest string) (*LoadResult, error) {
	git, err := NewGitClient(dest, DefaultGitTimeout)
	if err != nil {
		return nil, err
	}

	if git.IsRepository(ctx) {
		if err := git.Fetch(ctx); err != nil {
			return nil, err
		}
	} else {
		if err := git.Clone(ctx, url, depth); err != nil {
			return nil, err
		}
	}

	if ref != "" {
		if err := git.Checkout(ctx, ref); err != nil {
			return nil, err
		}
	}

	commit, err := git.Head(ctx)
	if err != nil {
		return nil, err
	}

	result, err := l.LoadDirectory(ctx, dest)
	if err != nil {
		return nil, err
	}
	result.Commit = &commit
	return result, nil
}
