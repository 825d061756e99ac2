// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for discussions and messages.
package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// CONTENT KIND
// =============================================================================

// ContentKind tags what a message body holds so the UI can render it
// appropriately.
type ContentKind string

const (
	KindText  ContentKind = "text"
	KindCode  ContentKind = "code"
	KindError ContentKind = "error"
	KindInfo  ContentKind = "info"
)

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single turn in a discussion.
// Messages are immutable once appended to a discussion.
type Message struct {
	ID        string      `json:"id"`
	Role      Role        `json:"role"`
	Kind      ContentKind `json:"kind"`
	Content   string      `json:"content"`
	// RawContent preserves the unprocessed reply when Content holds an
	// extracted code block or otherwise post-processed text.
	RawContent string    `json:"raw_content,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, kind ContentKind, content string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      role,
		Kind:      kind,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a plain text user message.
func NewUserMessage(content string) *Message {
	return NewMessage(RoleUser, KindText, content)
}

// NewAssistantMessage creates an assistant message. raw carries the
// unprocessed server reply when it differs from content.
func NewAssistantMessage(kind ContentKind, content, raw string) *Message {
	msg := NewMessage(RoleAssistant, kind, content)
	if raw != content {
		msg.RawContent = raw
	}
	return msg
}

// NewSystemMessage creates an informational system message.
func NewSystemMessage(content string) *Message {
	return NewMessage(RoleSystem, KindInfo, content)
}

// Preview returns a truncated single-line preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	runes := []rune(m.Content)
	if len(runes) <= maxLen {
		return m.Content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// EstimateTokens gives a rough estimate of token count.
// Uses the approximation of ~4 characters per token.
func (m *Message) EstimateTokens() int {
	return (len(m.Content) + 3) / 4
}

// IsEmpty returns true if the message has no content.
func (m *Message) IsEmpty() bool {
	return len(m.Content) == 0
}
