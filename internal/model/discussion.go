// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// MaxMessages is the maximum number of messages kept in a discussion.
// When exceeded, the oldest messages are evicted first (FIFO).
const MaxMessages = 200

// =============================================================================
// DISCUSSION TYPE
// =============================================================================

// Discussion holds one chat transcript with its identity and metadata.
type Discussion struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Messages []*Message `json:"messages"`

	// titleLocked is set once the title has been derived from the first
	// exchange or set explicitly; it stops further auto-titling.
	titleLocked bool
}

// NewDiscussion creates an empty discussion with a time-derived ID and a
// timestamp-based default title.
func NewDiscussion() *Discussion {
	now := time.Now()
	return &Discussion{
		ID:        generateDiscussionID(now),
		Title:     "Discussion " + now.Format("2006-01-02 15:04:05"),
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  make([]*Message, 0),
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage appends a message, evicting the oldest message first when the
// cap is exceeded. The first user message overwrites the default title.
func (d *Discussion) AddMessage(msg *Message) {
	d.Messages = append(d.Messages, msg)
	d.UpdatedAt = time.Now()
	d.autoTitle(msg)

	if len(d.Messages) > MaxMessages {
		// FIFO eviction: drop from the front.
		excess := len(d.Messages) - MaxMessages
		d.Messages = d.Messages[excess:]
	}
}

// autoTitle replaces the default timestamp title with a preview of the
// first user message.
func (d *Discussion) autoTitle(msg *Message) {
	if d.titleLocked || msg.Role != RoleUser {
		return
	}
	preview := strings.TrimSpace(msg.Preview(50))
	if preview != "" {
		d.Title = preview
		d.titleLocked = true
	}
}

// SetTitle explicitly sets the discussion title.
func (d *Discussion) SetTitle(title string) {
	title = strings.TrimSpace(title)
	if title == "" {
		return
	}
	d.Title = title
	d.titleLocked = true
	d.UpdatedAt = time.Now()
}

// LastMessage returns the most recent message, or nil if empty.
func (d *Discussion) LastMessage() *Message {
	if len(d.Messages) == 0 {
		return nil
	}
	return d.Messages[len(d.Messages)-1]
}

// MessageCount returns the number of messages.
func (d *Discussion) MessageCount() int {
	return len(d.Messages)
}

// IsEmpty returns true if there are no messages.
func (d *Discussion) IsEmpty() bool {
	return len(d.Messages) == 0
}

// EstimateTokens estimates the total token cost of the transcript.
func (d *Discussion) EstimateTokens() int {
	total := 0
	for _, msg := range d.Messages {
		total += msg.EstimateTokens()
	}
	return total
}

// CharCount returns the total character count of all message contents.
func (d *Discussion) CharCount() int {
	total := 0
	for _, msg := range d.Messages {
		total += len(msg.Content)
	}
	return total
}

// Preview returns a short preview for listings.
func (d *Discussion) Preview() string {
	for _, msg := range d.Messages {
		if msg.Role == RoleUser {
			return msg.Preview(80)
		}
	}
	return "Empty discussion"
}

// RestoreTitleLock recomputes the title lock after deserialization.
// A discussion that already holds a user message keeps its title.
func (d *Discussion) RestoreTitleLock() {
	for _, msg := range d.Messages {
		if msg.Role == RoleUser {
			d.titleLocked = true
			return
		}
	}
}

// Clone creates a deep copy of the discussion.
func (d *Discussion) Clone() *Discussion {
	clone := &Discussion{
		ID:          d.ID,
		Title:       d.Title,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		Messages:    make([]*Message, len(d.Messages)),
		titleLocked: d.titleLocked,
	}
	for i, msg := range d.Messages {
		msgCopy := *msg
		clone.Messages[i] = &msgCopy
	}
	return clone
}

// =============================================================================
// METADATA
// =============================================================================

// DiscussionMeta holds lightweight metadata for listing.
type DiscussionMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Preview      string    `json:"preview"`
}

// Meta returns metadata about the discussion.
func (d *Discussion) Meta() DiscussionMeta {
	return DiscussionMeta{
		ID:           d.ID,
		Title:        d.Title,
		MessageCount: len(d.Messages),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
		Preview:      d.Preview(),
	}
}

// =============================================================================
// ID GENERATION
// =============================================================================

var (
	idMu      sync.Mutex
	lastStamp string
	idCounter int
)

// generateDiscussionID derives an ID from wall-clock time at millisecond
// granularity. A monotonic counter suffix keeps rapid successive calls
// within the same millisecond unique.
func generateDiscussionID(t time.Time) string {
	idMu.Lock()
	defer idMu.Unlock()

	stamp := t.Format("20060102_150405.000")
	stamp = strings.Replace(stamp, ".", "", 1)

	if stamp == lastStamp {
		idCounter++
		return stamp + "_" + strconv.Itoa(idCounter)
	}

	lastStamp = stamp
	idCounter = 0
	return stamp
}
