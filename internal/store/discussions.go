// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store provides discussion persistence for lollms-cli.
//
// Each discussion is stored as one pretty-printed JSON file named
// {discussionId}.json under a configurable folder. The store tracks which
// discussion is active; after Load has run once there is always exactly one
// active discussion.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/lollms-cli/internal/model"
	"github.com/jeranaias/lollms-cli/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrDiscussionNotFound is returned when a discussion doesn't exist.
// Use errors.Is(err, ErrDiscussionNotFound) to check for this error.
var ErrDiscussionNotFound = &StoreError{Message: "discussion not found"}

// StoreError represents a discussion-store error.
type StoreError struct {
	Message string
}

func (e *StoreError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing store errors.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// =============================================================================
// DISCUSSION STORE
// =============================================================================

// DiscussionStore owns all discussion records and their message sequences.
type DiscussionStore struct {
	mu sync.Mutex

	// baseDir is the directory holding one JSON file per discussion
	baseDir string

	// maxDiscussions limits stored discussions (0 = unlimited)
	maxDiscussions int

	// discussions is the in-memory collection, keyed by ID
	discussions map[string]*model.Discussion

	// activeID names the currently active discussion ("" only before the
	// first createNew/Load)
	activeID string

	// skippedOnLoad counts records that failed to parse during Load
	skippedOnLoad int
}

// NewDiscussionStore creates a store rooted at baseDir. The directory is
// created on demand, not here; a missing directory simply means no
// discussions yet.
func NewDiscussionStore(baseDir string, maxDiscussions int) *DiscussionStore {
	return &DiscussionStore{
		baseDir:        baseDir,
		maxDiscussions: maxDiscussions,
		discussions:    make(map[string]*model.Discussion),
	}
}

// BaseDir returns the storage directory.
func (s *DiscussionStore) BaseDir() string {
	return s.baseDir
}

// =============================================================================
// LOAD
// =============================================================================

// Load enumerates all persisted discussion records and populates the
// in-memory collection. Corrupt or invalid records are skipped individually
// and counted; one bad file must not block loading the rest. A missing
// folder is treated as "no discussions yet".
func (s *DiscussionStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to list discussions: %w", err)
	}

	s.skippedOnLoad = 0

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(s.baseDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.skippedOnLoad++
			continue
		}

		var d model.Discussion
		if err := json.Unmarshal(data, &d); err != nil {
			s.skippedOnLoad++
			continue
		}

		// Minimal validation: a record without an identity or message
		// sequence is corrupt.
		if d.ID == "" || d.Messages == nil {
			s.skippedOnLoad++
			continue
		}

		d.RestoreTitleLock()
		s.discussions[d.ID] = &d
	}

	// Repair the active pointer: most recently created wins.
	if s.activeID == "" {
		if latest := s.mostRecentLocked(); latest != nil {
			s.activeID = latest.ID
		}
	}

	return nil
}

// SkippedOnLoad returns how many records were skipped by the last Load.
func (s *DiscussionStore) SkippedOnLoad() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skippedOnLoad
}

// mostRecentLocked returns the most recently created discussion, or nil.
// Caller must hold s.mu.
func (s *DiscussionStore) mostRecentLocked() *model.Discussion {
	var latest *model.Discussion
	for _, d := range s.discussions {
		if latest == nil || d.CreatedAt.After(latest.CreatedAt) {
			latest = d
		}
	}
	return latest
}

// =============================================================================
// ACTIVE DISCUSSION LIFECYCLE
// =============================================================================

// CreateNew persists the currently active discussion (if any), creates a new
// empty discussion, marks it active, persists it immediately so it survives
// a crash before the first message, and returns its ID.
func (s *DiscussionStore) CreateNew() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persistActiveLocked(); err != nil {
		return "", err
	}

	d := model.NewDiscussion()
	s.discussions[d.ID] = d
	s.activeID = d.ID

	if err := s.persistLocked(d); err != nil {
		return d.ID, fmt.Errorf("discussion created but not saved: %w", err)
	}

	s.enforceLimitLocked()
	return d.ID, nil
}

// SwitchTo makes the named discussion active. Switching to the already
// active discussion is a no-op. The previously active discussion is
// persisted first.
func (s *DiscussionStore) SwitchTo(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.discussions[id]; !ok {
		return ErrDiscussionNotFound
	}
	if id == s.activeID {
		return nil
	}

	if err := s.persistActiveLocked(); err != nil {
		return err
	}

	s.activeID = id
	return nil
}

// Delete removes a discussion and its persisted record. User confirmation is
// a precondition the caller must satisfy. If the deleted discussion was
// active, the most recently created remaining discussion becomes active, or
// a fresh one is created if none remain.
func (s *DiscussionStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.discussions[id]; !ok {
		return ErrDiscussionNotFound
	}

	delete(s.discussions, id)
	if err := os.Remove(s.filePath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove discussion file: %w", err)
	}

	if s.activeID != id {
		return nil
	}

	// "No active discussion" is transient: repair immediately.
	if latest := s.mostRecentLocked(); latest != nil {
		s.activeID = latest.ID
		return nil
	}

	d := model.NewDiscussion()
	s.discussions[d.ID] = d
	s.activeID = d.ID
	if err := s.persistLocked(d); err != nil {
		return fmt.Errorf("replacement discussion created but not saved: %w", err)
	}
	return nil
}

// Active returns the active discussion, or nil before the first
// CreateNew/Load.
func (s *DiscussionStore) Active() *model.Discussion {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeID == "" {
		return nil
	}
	return s.discussions[s.activeID]
}

// ActiveID returns the active discussion's ID ("" if none yet).
func (s *DiscussionStore) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// EnsureActive guarantees an active discussion exists, creating one when the
// store is empty. Returns the active ID.
func (s *DiscussionStore) EnsureActive() (string, error) {
	if s.ActiveID() != "" {
		return s.ActiveID(), nil
	}
	return s.CreateNew()
}

// =============================================================================
// MUTATION
// =============================================================================

// AppendMessage appends a message to the named discussion and persists
// immediately. The in-memory append always succeeds for a known id; a
// persistence failure is returned so the caller can warn the user, but the
// in-memory state remains authoritative.
func (s *DiscussionStore) AppendMessage(id string, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.discussions[id]
	if !ok {
		return ErrDiscussionNotFound
	}

	d.AddMessage(msg)

	if err := s.persistLocked(d); err != nil {
		return fmt.Errorf("message kept in memory but not saved: %w", err)
	}
	return nil
}

// UpdateTitle trims and sets the discussion title, then persists.
func (s *DiscussionStore) UpdateTitle(id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.discussions[id]
	if !ok {
		return ErrDiscussionNotFound
	}

	d.SetTitle(title)
	if err := s.persistLocked(d); err != nil {
		return fmt.Errorf("title updated in memory but not saved: %w", err)
	}
	return nil
}

// Get returns a discussion by ID.
func (s *DiscussionStore) Get(id string) (*model.Discussion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.discussions[id]
	if !ok {
		return nil, ErrDiscussionNotFound
	}
	return d, nil
}

// List returns metadata for all discussions, most recently updated first.
func (s *DiscussionStore) List() []model.DiscussionMeta {
	s.mu.Lock()
	defer s.mu.Unlock()

	metas := make([]model.DiscussionMeta, 0, len(s.discussions))
	for _, d := range s.discussions {
		metas = append(metas, d.Meta())
	}
	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	return metas
}

// Count returns the number of discussions.
func (s *DiscussionStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.discussions)
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// SaveActive persists the active discussion.
func (s *DiscussionStore) SaveActive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistActiveLocked()
}

// persistActiveLocked saves the active discussion if one exists.
// Caller must hold s.mu.
func (s *DiscussionStore) persistActiveLocked() error {
	if s.activeID == "" {
		return nil
	}
	d, ok := s.discussions[s.activeID]
	if !ok {
		return nil
	}
	return s.persistLocked(d)
}

// persistLocked writes one discussion record atomically.
// Caller must hold s.mu.
func (s *DiscussionStore) persistLocked(d *model.Discussion) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize discussion: %w", err)
	}
	return util.AtomicWriteFile(s.filePath(d.ID), data, 0644)
}

// enforceLimitLocked removes the oldest discussions when over the limit.
// The active discussion is never removed. Caller must hold s.mu.
func (s *DiscussionStore) enforceLimitLocked() {
	if s.maxDiscussions <= 0 || len(s.discussions) <= s.maxDiscussions {
		return
	}

	type entry struct {
		id      string
		updated time.Time
	}
	entries := make([]entry, 0, len(s.discussions))
	for id, d := range s.discussions {
		entries = append(entries, entry{id: id, updated: d.UpdatedAt})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].updated.Before(entries[j].updated)
	})

	excess := len(s.discussions) - s.maxDiscussions
	for _, e := range entries {
		if excess <= 0 {
			break
		}
		if e.id == s.activeID {
			continue
		}
		delete(s.discussions, e.id)
		os.Remove(s.filePath(e.id))
		excess--
	}
}

// filePath returns the record path for a discussion ID.
func (s *DiscussionStore) filePath(id string) string {
	return filepath.Join(s.baseDir, id+".json")
}

// =============================================================================
// EXPORT
// =============================================================================

// ExportMarkdown renders a discussion as a Markdown document.
func (s *DiscussionStore) ExportMarkdown(id string) (string, error) {
	s.mu.Lock()
	d, ok := s.discussions[id]
	s.mu.Unlock()
	if !ok {
		return "", ErrDiscussionNotFound
	}

	var sb strings.Builder
	sb.WriteString("# " + d.Title + "\n\n")
	sb.WriteString("Created: " + d.CreatedAt.Format(time.RFC3339) + "\n\n")
	sb.WriteString("---\n\n")

	for _, msg := range d.Messages {
		sb.WriteString("**" + msg.Role.DisplayName() + "** (" + msg.Timestamp.Format("15:04") + "):\n\n")
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n---\n\n")
	}

	return sb.String(), nil
}

// =============================================================================
// LIST FORMATTING
// =============================================================================

// FormatDiscussionList formats discussion metadata as a table for display.
func FormatDiscussionList(metas []model.DiscussionMeta, activeID string) string {
	if len(metas) == 0 {
		return "No discussions found."
	}

	var sb strings.Builder
	sb.WriteString(util.PadRight("ID", 22) + " " + util.PadRight("Updated", 17) + " " + util.PadRight("Msgs", 5) + " Title\n")
	sb.WriteString(strings.Repeat("-", 70) + "\n")

	for _, m := range metas {
		marker := "  "
		if m.ID == activeID {
			marker = "* "
		}
		title := util.TruncateString(util.CollapseWhitespace(m.Title), 40)
		sb.WriteString(marker +
			util.PadRight(util.TruncateString(m.ID, 20), 20) + " " +
			util.PadRight(m.UpdatedAt.Format("2006-01-02 15:04"), 17) + " " +
			util.PadRight(fmt.Sprintf("%d", m.MessageCount), 5) + " " +
			title + "\n")
	}
	return sb.String()
}
