// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gitx shells out to git for the diff material the commit-message
// flow feeds to the model.
package gitx

import (
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// gitTimeout is the default timeout for git operations.
const gitTimeout = 10 * time.Second

var (
	// ErrNotGitRepo means the working directory is not inside a git repository.
	ErrNotGitRepo = errors.New("not a git repository")

	// ErrNoChanges means the requested diff is empty.
	ErrNoChanges = errors.New("no changes to diff")
)

// Repo runs git commands in a fixed working directory.
type Repo struct {
	// Dir is the working directory for all git invocations ("" = process cwd)
	Dir string
}

// NewRepo creates a repo handle rooted at dir.
func NewRepo(dir string) *Repo {
	return &Repo{Dir: dir}
}

// IsRepo reports whether Dir is inside a git work tree.
func (r *Repo) IsRepo(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--git-dir")
	cmd.Dir = r.Dir
	return cmd.Run() == nil
}

// Diff returns the working-tree diff, or the staged diff when staged is
// set. Returns ErrNoChanges when the diff is empty.
func (r *Repo) Diff(ctx context.Context, staged bool) (string, error) {
	args := []string{"diff"}
	if staged {
		args = append(args, "--cached")
	}

	out, err := r.run(ctx, args...)
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", ErrNoChanges
	}
	return out, nil
}

// StatusShort returns `git status --short` output.
func (r *Repo) StatusShort(ctx context.Context) (string, error) {
	return r.run(ctx, "status", "--short")
}

// RecentCommits returns the last n commit subjects, one per line.
func (r *Repo) RecentCommits(ctx context.Context, n int) (string, error) {
	if n <= 0 {
		n = 5
	}
	return r.run(ctx, "log", "--oneline", "-n", strconv.Itoa(n))
}

// run executes git with a default timeout when the caller set none.
func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, gitTimeout)
		defer cancel()
	}

	if !r.IsRepo(ctx) {
		return "", ErrNotGitRepo
	}

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.Dir

	output, err := cmd.Output()
	if err != nil {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		return "", err
	}

	return strings.TrimSpace(string(output)), nil
}
