// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package contextset

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuild_PythonFileScenario(t *testing.T) {
	dir := t.TempDir()
	content := strings.Repeat("x", 116) + "y\n\n\n" // trailing whitespace trimmed on render
	path := filepath.Join(dir, "foo.py")
	mustWrite(t, path, content)

	a := NewAssembler(true, 0, 0)
	fc, err := a.Build(context.Background(), []string{path})
	if err != nil {
		t.Fatal(err)
	}

	if fc.IncludedFiles != 1 || len(fc.Skipped) != 0 {
		t.Fatalf("included = %d, skipped = %v", fc.IncludedFiles, fc.Skipped)
	}
	if !strings.Contains(fc.Blob, "--- File: "+path+" ---") {
		t.Error("blob missing file header")
	}
	if !strings.Contains(fc.Blob, "```python\n") {
		t.Errorf("blob missing python fence:\n%s", fc.Blob)
	}
	if fc.CharCount != len(fc.Blob) {
		t.Errorf("charCount = %d, want len(blob) = %d", fc.CharCount, len(fc.Blob))
	}
	wantTokens := (fc.CharCount + 3) / 4
	if fc.EstimatedTokens != wantTokens {
		t.Errorf("tokens = %d, want ceil(%d/4) = %d", fc.EstimatedTokens, fc.CharCount, wantTokens)
	}
}

func TestBuild_SkipReasons(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.txt")
	mustWrite(t, empty, "")

	big := filepath.Join(dir, "big.bin")
	mustWrite(t, big, strings.Repeat("a", 200))

	binary := filepath.Join(dir, "image.png")
	if err := os.WriteFile(binary, []byte{0x89, 'P', 'N', 'G', 0x00, 0x01}, 0644); err != nil {
		t.Fatal(err)
	}

	missing := filepath.Join(dir, "gone.txt")

	valid := filepath.Join(dir, "keep.go")
	mustWrite(t, valid, "package keep\n")

	a := NewAssembler(true, 0, 0)
	a.MaxFileBytes = 100

	fc, err := a.Build(context.Background(), []string{empty, big, binary, missing, dir, valid})
	if err != nil {
		t.Fatal(err)
	}

	if fc.IncludedFiles != 1 {
		t.Errorf("included = %d, want 1", fc.IncludedFiles)
	}
	if len(fc.Skipped) != 5 {
		t.Fatalf("skipped = %d, want 5: %v", len(fc.Skipped), fc.Skipped)
	}

	byPath := make(map[string]SkipCategory, len(fc.Skipped))
	for _, s := range fc.Skipped {
		byPath[s.Path] = s.Category
	}
	cases := map[string]SkipCategory{
		empty:   SkipEmpty,
		big:     SkipTooLarge,
		binary:  SkipBinary,
		missing: SkipNotAFile,
		dir:     SkipNotAFile,
	}
	for path, want := range cases {
		if byPath[path] != want {
			t.Errorf("skip[%s] = %q, want %q", path, byPath[path], want)
		}
	}
	if !strings.Contains(fc.Blob, "package keep") {
		t.Error("valid file missing from blob")
	}
}

func TestBuild_EmptyInputIsValid(t *testing.T) {
	a := NewAssembler(true, 0, 0)
	fc, err := a.Build(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !fc.IsEmpty() || fc.Blob != "" || fc.CharCount != 0 || fc.EstimatedTokens != 0 {
		t.Errorf("empty build = %+v", fc)
	}
}

func TestBuild_NoHeaders(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	mustWrite(t, path, "package a\n")

	a := NewAssembler(false, 0, 0)
	fc, err := a.Build(context.Background(), []string{path})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(fc.Blob, "--- File:") {
		t.Error("headers rendered despite IncludeHeaders=false")
	}
}

func TestBuild_CancellationKeepsPartialWork(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.txt")
	mustWrite(t, first, "first")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := NewAssembler(true, 0, 0)
	fc, err := a.Build(ctx, []string{first})
	if err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if fc == nil {
		t.Fatal("partial result discarded on cancellation")
	}
}

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		chars, ratio, want int
	}{
		{0, 4, 0},
		{1, 4, 1},
		{4, 4, 1},
		{5, 4, 2},
		{120, 4, 30},
		{100000, 4, 25000},
		{100001, 4, 25001},
		{9, 3, 3},
		{10, 0, 3}, // bad ratio falls back to 4
	}
	for _, tc := range cases {
		if got := EstimateTokens(tc.chars, tc.ratio); got != tc.want {
			t.Errorf("EstimateTokens(%d, %d) = %d, want %d", tc.chars, tc.ratio, got, tc.want)
		}
	}
}

func TestGuessLanguageTag(t *testing.T) {
	cases := map[string]string{
		"main.go":    "go",
		"script.py":  "python",
		"run.sh":     "bash",
		"conf.yml":   "yaml",
		"lib.rs":     "rust",
		"app.ts":     "typescript",
		"notes.txt":   "",
		"mystery.zzz": "",
	}
	for path, want := range cases {
		if got := GuessLanguageTag(path); got != want {
			t.Errorf("GuessLanguageTag(%q) = %q, want %q", path, got, want)
		}
	}
}
