// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package lollms provides the HTTP client for communicating with a
// lollms-server instance.
package lollms

import "strings"

// =============================================================================
// INPUT DATA
// =============================================================================

// Input item types.
const (
	InputTypeText  = "text"
	InputTypeImage = "image"
)

// Input item roles understood by the server.
const (
	RoleSystemPrompt    = "system_prompt"
	RoleSystemContext   = "system_context"
	RoleUserPrompt      = "user_prompt"
	RoleAssistantReply  = "assistant_reply"
)

// GenerationTypeTTT is text-to-text generation. All flows in lollms-cli use it.
const GenerationTypeTTT = "ttt"

// InputDataItem is one typed, role-tagged element of a generation request.
type InputDataItem struct {
	Type     string         `json:"type"`
	Role     string         `json:"role"`
	Data     string         `json:"data"`
	MimeType string         `json:"mime_type,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// GenerationRequest is the structured payload for POST /generate.
type GenerationRequest struct {
	InputData      []InputDataItem `json:"input_data"`
	GenerationType string          `json:"generation_type"`
	BindingName    string          `json:"binding_name,omitempty"`
	ModelName      string          `json:"model_name,omitempty"`
	Parameters     map[string]any  `json:"parameters,omitempty"`
	Stream         bool            `json:"stream"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// Output item types returned by the server.
const (
	OutputTypeText  = "text"
	OutputTypeImage = "image"
)

// OutputItem is one element of a generation response.
type OutputItem struct {
	Type     string         `json:"type"`
	Data     string         `json:"data"`
	MimeType string         `json:"mime_type,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// GenerateResponse is the parsed body of a successful POST /generate.
type GenerateResponse struct {
	Output []OutputItem `json:"output"`
}

// FirstText returns the data of the first text output item.
func (r *GenerateResponse) FirstText() (string, bool) {
	for _, item := range r.Output {
		if item.Type == OutputTypeText {
			return item.Data, true
		}
	}
	return "", false
}

// FirstImage returns the base64 data of the first image output item.
func (r *GenerateResponse) FirstImage() (string, bool) {
	for _, item := range r.Output {
		if item.Type == OutputTypeImage {
			return item.Data, true
		}
	}
	return "", false
}

// TextPayload returns the usable text of the response: the contents of the
// first fenced code block if one is present, otherwise the whole trimmed
// first text item.
func (r *GenerateResponse) TextPayload() (string, bool) {
	text, ok := r.FirstText()
	if !ok {
		return "", false
	}
	if code, found := ExtractCodeBlock(text); found {
		return code, true
	}
	return strings.TrimSpace(text), true
}

// ContextLengthResponse is the body of GET /get_default_ttt_context_length.
type ContextLengthResponse struct {
	ContextLength int `json:"context_length"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status         string `json:"status"`
	APIKeyRequired bool   `json:"api_key_required,omitempty"`
	Version        string `json:"version,omitempty"`
}

// IsOK reports whether the server considers itself healthy.
func (h *HealthResponse) IsOK() bool {
	return h.Status == "ok"
}

// ModelInfo describes one model from GET /list_available_models/{binding}.
type ModelInfo struct {
	Name string `json:"name"`
}

// errorBody is the JSON error shape returned by the server on failure.
type errorBody struct {
	Detail string `json:"detail"`
}

// =============================================================================
// CODE BLOCK EXTRACTION
// =============================================================================

// ExtractCodeBlock returns the contents of the first fenced code block in s.
// The language tag on the opening fence, if any, is discarded. Returns false
// if no complete fenced block is present.
func ExtractCodeBlock(s string) (string, bool) {
	start := strings.Index(s, "```")
	if start < 0 {
		return "", false
	}

	rest := s[start+3:]
	// Drop the language tag line.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	} else {
		return "", false
	}

	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}

	return strings.TrimRight(rest[:end], "\n"), true
}
