// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jeranaias/lollms-cli/internal/budget"
	"github.com/jeranaias/lollms-cli/internal/contextset"
	"github.com/jeranaias/lollms-cli/internal/history"
	"github.com/jeranaias/lollms-cli/internal/lollms"
	"github.com/jeranaias/lollms-cli/internal/model"
)

// ConfirmFunc lets a flow ask the user whether an oversized prompt should
// be sent anyway. A nil func sends without asking.
type ConfirmFunc func(budget.Assessment) bool

// =============================================================================
// CONTEXT ASSEMBLY
// =============================================================================

// BuildContext renders the current file set. The result is rebuilt from the
// file system on every call; nothing is cached between generations.
func (a *App) BuildContext(ctx context.Context) (*contextset.FormattedContext, error) {
	return a.assembler.Build(ctx, a.files.Paths())
}

// =============================================================================
// CHAT
// =============================================================================

// ChatTurn sends one user message in the active discussion and appends the
// reply. The user message is persisted before the request goes out, so a
// failed generation never loses input. Errors from the server are also
// recorded in the discussion as error messages.
func (a *App) ChatTurn(ctx context.Context, input string, confirm ConfirmFunc) (*model.Message, error) {
	if err := a.beginGeneration(); err != nil {
		return nil, err
	}
	defer a.endGeneration()

	id, err := a.store.EnsureActive()
	if err != nil {
		return nil, err
	}
	if err := a.store.AppendMessage(id, model.NewUserMessage(input)); err != nil {
		return nil, err
	}

	fc, err := a.BuildContext(ctx)
	if err != nil {
		return nil, err
	}

	cfg := a.Config()
	req := a.builder.Chat(cfg.Prompts.ChatPrefix, cfg.Prompts.ChatSuffix, fc.Blob, a.store.Active().Messages)

	reply, err := a.generate(ctx, "chat", req, confirm)
	if err != nil {
		a.recordFailure(id, err)
		return nil, err
	}

	msg := assistantMessage(reply)
	if err := a.store.AppendMessage(id, msg); err != nil {
		return msg, err
	}
	return msg, nil
}

// recordFailure appends an error message to the discussion, except for
// user aborts, which are not errors worth remembering.
func (a *App) recordFailure(discussionID string, err error) {
	if errors.Is(err, ErrGenerationInFlight) || errors.Is(err, budget.ErrAborted) {
		return
	}
	errMsg := model.NewMessage(model.RoleSystem, model.KindError, err.Error())
	a.store.AppendMessage(discussionID, errMsg)
}

// assistantMessage classifies a reply as code or text based on whether the
// server fenced it.
func assistantMessage(raw string) *model.Message {
	if code, ok := lollms.ExtractCodeBlock(raw); ok {
		return model.NewAssistantMessage(model.KindCode, code, raw)
	}
	return model.NewAssistantMessage(model.KindText, strings.TrimSpace(raw), raw)
}

// =============================================================================
// ONE-SHOT FLOWS
// =============================================================================

// GenerateCode runs the code-generation flow: the request (a task
// description or a comment to expand) goes out with the curated file
// context, and the reply's code payload comes back.
func (a *App) GenerateCode(ctx context.Context, request string, confirm ConfirmFunc) (string, error) {
	if err := a.beginGeneration(); err != nil {
		return "", err
	}
	defer a.endGeneration()

	fc, err := a.BuildContext(ctx)
	if err != nil {
		return "", err
	}

	cfg := a.Config()
	req := a.builder.OneShot(cfg.Prompts.CodePrefix, cfg.Prompts.CodeSuffix, fc.Blob, request)

	raw, err := a.generate(ctx, "generate", req, confirm)
	if err != nil {
		return "", err
	}
	if code, ok := lollms.ExtractCodeBlock(raw); ok {
		return code, nil
	}
	return strings.TrimSpace(raw), nil
}

// CommitMessage generates a commit message from the git diff. The diff is
// the payload; the curated file context is not included.
func (a *App) CommitMessage(ctx context.Context, staged bool, confirm ConfirmFunc) (string, error) {
	if err := a.beginGeneration(); err != nil {
		return "", err
	}
	defer a.endGeneration()

	diff, err := a.repo.Diff(ctx, staged)
	if err != nil {
		return "", err
	}

	cfg := a.Config()
	req := a.builder.OneShot(cfg.Prompts.CommitPrefix, cfg.Prompts.CommitSuffix, "", diff)

	raw, err := a.generate(ctx, "commit", req, confirm)
	if err != nil {
		return "", err
	}
	if code, ok := lollms.ExtractCodeBlock(raw); ok {
		return strings.TrimSpace(code), nil
	}
	return strings.TrimSpace(raw), nil
}

// =============================================================================
// GENERATION CORE
// =============================================================================

// generate sends a built request through the size gate and the client, and
// logs the outcome. Returns the first text item of the reply.
func (a *App) generate(ctx context.Context, flow string, req *lollms.GenerationRequest, confirm ConfirmFunc) (string, error) {
	chars := requestChars(req)
	if err := a.estimator.ConfirmSize(ctx, chars, confirm); err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := a.client.Generate(ctx, req)
	a.logGeneration(flow, chars, time.Since(start), err)
	if err != nil {
		return "", err
	}

	text, ok := resp.FirstText()
	if !ok {
		return "", &lollms.ClientError{
			Type:    lollms.ErrTypeInvalidResponse,
			Message: "response contains no text output",
		}
	}
	return text, nil
}

// requestChars totals the characters of every input item.
func requestChars(req *lollms.GenerationRequest) int {
	total := 0
	for _, item := range req.InputData {
		total += len(item.Data)
	}
	return total
}

// logGeneration records the outcome in the history log, when enabled.
func (a *App) logGeneration(flow string, chars int, elapsed time.Duration, genErr error) {
	if a.log == nil {
		return
	}

	cfg := a.Config()
	entry := history.Entry{
		Flow:        flow,
		Binding:     cfg.Server.BindingName,
		Model:       cfg.Server.ModelName,
		PromptChars: chars,
		EstTokens:   contextset.EstimateTokens(chars, cfg.Context.CharsPerToken),
		DurationMS:  elapsed.Milliseconds(),
		Success:     genErr == nil,
		ErrorType:   errorTypeName(genErr),
	}

	logCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	a.log.Record(logCtx, entry)
}

// errorTypeName classifies an error for the history log.
func errorTypeName(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case lollms.IsTimeout(err):
		return "timeout"
	case lollms.IsUnreachable(err):
		return "unreachable"
	default:
		return "error"
	}
}
