// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package prompt assembles structured generation requests from system
// prompts, curated file context, and discussion history.
package prompt

import (
	"strings"

	"github.com/jeranaias/lollms-cli/internal/lollms"
	"github.com/jeranaias/lollms-cli/internal/model"
)

// =============================================================================
// BUILDER
// =============================================================================

// Builder turns prompt pieces into lollms generation requests. Generation
// parameters are attached to every request it produces.
type Builder struct {
	// Temperature for sampling; zero means greedy and is transmitted.
	// Negative values are omitted from the request.
	Temperature float64

	// MaxTokens caps the reply length; values <= 0 are omitted
	MaxTokens int
}

// parameters renders the set generation parameters.
func (b *Builder) parameters() map[string]any {
	params := make(map[string]any)
	if b.Temperature >= 0 {
		params["temperature"] = b.Temperature
	}
	if b.MaxTokens > 0 {
		params["max_tokens"] = b.MaxTokens
	}
	if len(params) == 0 {
		return nil
	}
	return params
}

// newRequest wraps items in a non-streaming text-to-text request.
func (b *Builder) newRequest(items []lollms.InputDataItem) *lollms.GenerationRequest {
	return &lollms.GenerationRequest{
		InputData:      items,
		GenerationType: lollms.GenerationTypeTTT,
		Parameters:     b.parameters(),
		Stream:         false,
	}
}

// Chat builds a multi-turn request: the system prefix, then the file
// context as system_context (omitted when empty), then the system suffix,
// then the discussion history replayed as user_prompt / assistant_reply
// turns. System-role and error messages in the history are skipped; they
// are local artifacts, not conversation.
func (b *Builder) Chat(prefix, suffix, contextBlob string, history []*model.Message) *lollms.GenerationRequest {
	items := make([]lollms.InputDataItem, 0, len(history)+3)

	if s := strings.TrimSpace(prefix); s != "" {
		items = append(items, textItem(lollms.RoleSystemPrompt, s))
	}
	if contextBlob != "" {
		items = append(items, textItem(lollms.RoleSystemContext, contextBlob))
	}
	if s := strings.TrimSpace(suffix); s != "" {
		items = append(items, textItem(lollms.RoleSystemPrompt, s))
	}

	for _, msg := range history {
		role, ok := wireRole(msg)
		if !ok {
			continue
		}
		items = append(items, textItem(role, messageData(msg)))
	}

	return b.newRequest(items)
}

// OneShot builds a single-turn request: a system prompt made of prefix and
// suffix around the optional file context, then one user payload. Used by
// the generate, commit-message, and code-from-comment flows.
func (b *Builder) OneShot(prefix, suffix, contextBlob, payload string) *lollms.GenerationRequest {
	items := make([]lollms.InputDataItem, 0, 4)

	if s := strings.TrimSpace(prefix); s != "" {
		items = append(items, textItem(lollms.RoleSystemPrompt, s))
	}
	if contextBlob != "" {
		items = append(items, textItem(lollms.RoleSystemContext, contextBlob))
	}
	if s := strings.TrimSpace(suffix); s != "" {
		items = append(items, textItem(lollms.RoleSystemPrompt, s))
	}
	items = append(items, textItem(lollms.RoleUserPrompt, payload))

	return b.newRequest(items)
}

// =============================================================================
// MESSAGE MAPPING
// =============================================================================

// wireRole maps a stored message to its wire role. Only user and assistant
// turns travel to the server.
func wireRole(msg *model.Message) (string, bool) {
	if msg.Kind == model.KindError || msg.Kind == model.KindInfo {
		return "", false
	}
	switch msg.Role {
	case model.RoleUser:
		return lollms.RoleUserPrompt, true
	case model.RoleAssistant:
		return lollms.RoleAssistantReply, true
	default:
		return "", false
	}
}

// messageData picks the text to replay for a message. Assistant messages
// keep their raw model output when it differs from the displayed content.
func messageData(msg *model.Message) string {
	if msg.RawContent != "" {
		return msg.RawContent
	}
	return msg.Content
}

func textItem(role, data string) lollms.InputDataItem {
	return lollms.InputDataItem{
		Type: lollms.InputTypeText,
		Role: role,
		Data: data,
	}
}
