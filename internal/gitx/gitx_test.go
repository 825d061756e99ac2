// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gitx

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func initRepo(t *testing.T) *Repo {
	t.Helper()
	dir := t.TempDir()
	for _, args := range [][]string{
		{"init"},
		{"config", "user.email", "test@example.com"},
		{"config", "user.name", "test"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	return NewRepo(dir)
}

func TestDiff_NotARepo(t *testing.T) {
	requireGit(t)
	r := NewRepo(t.TempDir())
	_, err := r.Diff(context.Background(), false)
	if !errors.Is(err, ErrNotGitRepo) {
		t.Errorf("err = %v, want ErrNotGitRepo", err)
	}
}

func TestDiff_NoChanges(t *testing.T) {
	requireGit(t)
	r := initRepo(t)
	_, err := r.Diff(context.Background(), false)
	if !errors.Is(err, ErrNoChanges) {
		t.Errorf("err = %v, want ErrNoChanges", err)
	}
}

func TestDiff_StagedAndUnstaged(t *testing.T) {
	requireGit(t)
	r := initRepo(t)

	path := filepath.Join(r.Dir, "a.txt")
	if err := os.WriteFile(path, []byte("one\n"), 0644); err != nil {
		t.Fatal(err)
	}
	mustGit(t, r.Dir, "add", "a.txt")
	mustGit(t, r.Dir, "commit", "-m", "initial")

	// Staged change.
	os.WriteFile(path, []byte("one\ntwo\n"), 0644)
	mustGit(t, r.Dir, "add", "a.txt")

	staged, err := r.Diff(context.Background(), true)
	if err != nil {
		t.Fatalf("staged diff failed: %v", err)
	}
	if !strings.Contains(staged, "+two") {
		t.Errorf("staged diff missing change:\n%s", staged)
	}

	// Working tree is clean relative to the index.
	if _, err := r.Diff(context.Background(), false); !errors.Is(err, ErrNoChanges) {
		t.Errorf("unstaged diff = %v, want ErrNoChanges", err)
	}
}

func mustGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}
