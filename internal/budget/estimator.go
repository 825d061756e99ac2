// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package budget estimates prompt sizes against the server's context window
// and gates oversized requests behind a user confirmation.
package budget

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// FallbackContextLimit is assumed when the server cannot report its
// context window.
const FallbackContextLimit = 4096

// DefaultWarningThresholdChars is the prompt size above which the user is
// asked to confirm before sending.
const DefaultWarningThresholdChars = 100000

// ErrAborted is returned when the user declines an oversized request.
var ErrAborted = errors.New("request aborted by user")

// LimitSource reports the server's context window. Generation identifies
// the connection the value came from; the cached limit is discarded when
// the generation changes.
type LimitSource interface {
	ContextLength(ctx context.Context) (int, error)
	Generation() uint64
}

// =============================================================================
// ESTIMATOR
// =============================================================================

// Estimator caches the server context limit and assesses prompt sizes.
type Estimator struct {
	mu     sync.Mutex
	source LimitSource

	warningThresholdChars int
	charsPerToken         int

	cachedLimit int
	cachedGen   uint64
	cachedKnown bool
	haveCache   bool
}

// NewEstimator creates an estimator backed by source. Zero values for the
// threshold and ratio select the defaults.
func NewEstimator(source LimitSource, warningThresholdChars, charsPerToken int) *Estimator {
	if warningThresholdChars <= 0 {
		warningThresholdChars = DefaultWarningThresholdChars
	}
	if charsPerToken <= 0 {
		charsPerToken = 4
	}
	return &Estimator{
		source:                source,
		warningThresholdChars: warningThresholdChars,
		charsPerToken:         charsPerToken,
	}
}

// Limit returns the server's context window in tokens. Lookups are cached
// until the source's generation changes; a failed or nonsensical lookup
// caches FallbackContextLimit under the same rule, so only a
// reconfiguration triggers another fetch.
func (e *Estimator) Limit(ctx context.Context) int {
	limit, _ := e.limit(ctx)
	return limit
}

// limit reports the context window and whether it came from the server
// (false = the cached fallback).
func (e *Estimator) limit(ctx context.Context) (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	gen := e.source.Generation()
	if e.haveCache && e.cachedGen == gen {
		return e.cachedLimit, e.cachedKnown
	}

	limit, err := e.source.ContextLength(ctx)
	known := err == nil && limit > 0
	if !known {
		limit = FallbackContextLimit
	}

	e.cachedLimit = limit
	e.cachedGen = gen
	e.cachedKnown = known
	e.haveCache = true
	return limit, known
}

// Invalidate drops the cached limit.
func (e *Estimator) Invalidate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.haveCache = false
}

// SetRatios updates the warning threshold and estimation ratio, used when
// the configuration is reloaded. Zero values select the defaults.
func (e *Estimator) SetRatios(warningThresholdChars, charsPerToken int) {
	if warningThresholdChars <= 0 {
		warningThresholdChars = DefaultWarningThresholdChars
	}
	if charsPerToken <= 0 {
		charsPerToken = 4
	}
	e.mu.Lock()
	e.warningThresholdChars = warningThresholdChars
	e.charsPerToken = charsPerToken
	e.mu.Unlock()
}

// =============================================================================
// SIZE ASSESSMENT
// =============================================================================

// Assessment describes a prompt's size relative to the limits.
type Assessment struct {
	Chars           int
	EstimatedTokens int

	// ContextLimit is the server's window, or FallbackContextLimit when
	// LimitKnown is false
	ContextLimit int
	LimitKnown   bool

	ExceedsWarning bool
	ExceedsLimit   bool
}

// Summary renders the assessment for a confirmation prompt. The message
// distinguishes an unknown limit, an estimate within the limit, and an
// estimate exceeding it.
func (a Assessment) Summary() string {
	size := fmt.Sprintf("prompt is ~%d tokens (%d chars)", a.EstimatedTokens, a.Chars)
	switch {
	case !a.LimitKnown:
		return fmt.Sprintf("%s; server context limit is unknown, assuming %d tokens", size, a.ContextLimit)
	case a.ExceedsLimit:
		return fmt.Sprintf("%s and exceeds the server context limit of %d tokens", size, a.ContextLimit)
	default:
		return fmt.Sprintf("%s; within the server context limit of %d tokens", size, a.ContextLimit)
	}
}

// Assess measures a prompt of the given character count. Token counts are
// approximate: ceil(chars / charsPerToken).
func (e *Estimator) Assess(ctx context.Context, chars int) Assessment {
	e.mu.Lock()
	ratio := e.charsPerToken
	threshold := e.warningThresholdChars
	e.mu.Unlock()

	limit, known := e.limit(ctx)
	tokens := (chars + ratio - 1) / ratio

	return Assessment{
		Chars:           chars,
		EstimatedTokens: tokens,
		ContextLimit:    limit,
		LimitKnown:      known,
		ExceedsWarning:  chars > threshold,
		ExceedsLimit:    tokens > limit,
	}
}

// ConfirmSize gates an outgoing prompt. Prompts at or below the warning
// threshold pass immediately, with no user interaction and no limit
// lookup. Above it, confirm is consulted with the assessment; a false
// answer aborts with ErrAborted. A nil confirm func passes everything
// (non-interactive callers).
func (e *Estimator) ConfirmSize(ctx context.Context, chars int, confirm func(Assessment) bool) error {
	e.mu.Lock()
	threshold := e.warningThresholdChars
	e.mu.Unlock()

	if chars <= threshold {
		return nil
	}
	if confirm == nil {
		return nil
	}
	if !confirm(e.Assess(ctx, chars)) {
		return ErrAborted
	}
	return nil
}
