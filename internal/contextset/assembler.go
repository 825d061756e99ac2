// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package contextset

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
)

// =============================================================================
// FORMATTED CONTEXT
// =============================================================================

// SkipCategory classifies why a file was excluded from the rendered context.
type SkipCategory string

const (
	SkipNotAFile  SkipCategory = "not a file"
	SkipEmpty     SkipCategory = "empty file"
	SkipTooLarge  SkipCategory = "too large"
	SkipBinary    SkipCategory = "likely binary"
	SkipReadError SkipCategory = "read error"
)

// Skip records one excluded file and the reason.
type Skip struct {
	Path     string
	Category SkipCategory
	Message  string
}

// String renders the skip for user-facing warnings.
func (s Skip) String() string {
	if s.Message != "" {
		return s.Path + ": " + s.Message
	}
	return s.Path + ": " + string(s.Category)
}

// FormattedContext is the read-only result of rendering a file set.
// It is rebuilt on every call and never cached, so it always reflects the
// current file system state.
type FormattedContext struct {
	// Blob is the rendered context text
	Blob string
	// IncludedFiles is the number of files rendered into the blob
	IncludedFiles int
	// CharCount is len(Blob)
	CharCount int
	// EstimatedTokens is ceil(CharCount / charsPerToken)
	EstimatedTokens int
	// Skipped lists every excluded file with its reason, in input order
	Skipped []Skip
}

// IsEmpty reports whether no file content made it into the blob.
func (fc *FormattedContext) IsEmpty() bool {
	return fc.IncludedFiles == 0
}

// =============================================================================
// ASSEMBLER
// =============================================================================

// Assembler renders a collection of files into a single bounded prompt blob.
type Assembler struct {
	// IncludeHeaders prepends "--- File: path ---" to each block
	IncludeHeaders bool

	// MaxFileBytes is the per-file size ceiling (default 5 MiB)
	MaxFileBytes int64

	// CharsPerToken is the estimation ratio (default 4)
	CharsPerToken int

	// LanguageTag maps a file path to a fence language tag ("" = untagged).
	// Defaults to the chroma lexer registry lookup.
	LanguageTag func(path string) string
}

// NewAssembler creates an assembler with the given options.
func NewAssembler(includeHeaders bool, maxFileBytes int64, charsPerToken int) *Assembler {
	if maxFileBytes <= 0 {
		maxFileBytes = 5 * 1024 * 1024
	}
	if charsPerToken <= 0 {
		charsPerToken = 4
	}
	return &Assembler{
		IncludeHeaders: includeHeaders,
		MaxFileBytes:   maxFileBytes,
		CharsPerToken:  charsPerToken,
		LanguageTag:    GuessLanguageTag,
	}
}

// Build reads, filters, and formats the given files into a FormattedContext.
// Files are processed in input order. Per-file errors are recorded as skips
// and never abort the pass; an empty result is valid. The walk honors ctx
// cancellation between files, keeping work already done.
func (a *Assembler) Build(ctx context.Context, paths []string) (*FormattedContext, error) {
	result := &FormattedContext{}
	var sb strings.Builder

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return a.finish(result, &sb), err
		}

		block, skip := a.renderFile(path)
		if skip != nil {
			result.Skipped = append(result.Skipped, *skip)
			continue
		}

		sb.WriteString(block)
		result.IncludedFiles++
	}

	return a.finish(result, &sb), nil
}

// finish trims the accumulated blob and computes the size estimates.
func (a *Assembler) finish(result *FormattedContext, sb *strings.Builder) *FormattedContext {
	result.Blob = strings.TrimRight(sb.String(), " \t\n")
	result.CharCount = len(result.Blob)
	result.EstimatedTokens = EstimateTokens(result.CharCount, a.CharsPerToken)
	return result
}

// renderFile produces the fenced block for one file, or a skip reason.
func (a *Assembler) renderFile(path string) (string, *Skip) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &Skip{Path: path, Category: SkipNotAFile, Message: string(SkipNotAFile)}
		}
		return "", &Skip{Path: path, Category: SkipReadError, Message: "read error: " + err.Error()}
	}
	if !info.Mode().IsRegular() {
		return "", &Skip{Path: path, Category: SkipNotAFile, Message: string(SkipNotAFile)}
	}
	if info.Size() == 0 {
		return "", &Skip{Path: path, Category: SkipEmpty, Message: string(SkipEmpty)}
	}
	if info.Size() > a.MaxFileBytes {
		return "", &Skip{
			Path:     path,
			Category: SkipTooLarge,
			Message:  fmt.Sprintf("too large (limit %d bytes)", a.MaxFileBytes),
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", &Skip{Path: path, Category: SkipReadError, Message: "read error: " + err.Error()}
	}

	// Cheap binary heuristic: any NUL byte disqualifies the file.
	// False negatives are acceptable.
	if bytes.IndexByte(data, 0) >= 0 {
		return "", &Skip{Path: path, Category: SkipBinary, Message: string(SkipBinary)}
	}

	var sb strings.Builder
	if a.IncludeHeaders {
		sb.WriteString("--- File: ")
		sb.WriteString(path)
		sb.WriteString(" ---\n")
	}
	sb.WriteString("```")
	sb.WriteString(a.languageTag(path))
	sb.WriteString("\n")
	sb.WriteString(strings.TrimSpace(string(data)))
	sb.WriteString("\n```\n\n")

	return sb.String(), nil
}

func (a *Assembler) languageTag(path string) string {
	if a.LanguageTag == nil {
		return ""
	}
	return a.LanguageTag(path)
}

// EstimateTokens converts a character count to an approximate token count
// using the fixed ratio. Token counts are never exact.
func EstimateTokens(chars, charsPerToken int) int {
	if charsPerToken <= 0 {
		charsPerToken = 4
	}
	return (chars + charsPerToken - 1) / charsPerToken
}
