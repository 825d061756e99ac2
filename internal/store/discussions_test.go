// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jeranaias/lollms-cli/internal/model"
)

func newTestStore(t *testing.T) *DiscussionStore {
	t.Helper()
	return NewDiscussionStore(t.TempDir(), 0)
}

func TestLoad_MissingDirIsEmpty(t *testing.T) {
	s := NewDiscussionStore(filepath.Join(t.TempDir(), "does-not-exist"), 0)
	if err := s.Load(); err != nil {
		t.Fatalf("missing dir should not be an error, got %v", err)
	}
	if s.Count() != 0 {
		t.Errorf("count = %d, want 0", s.Count())
	}
}

func TestCreateNew_PersistsImmediately(t *testing.T) {
	s := newTestStore(t)

	id, err := s.CreateNew()
	if err != nil {
		t.Fatalf("CreateNew failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty ID")
	}
	if s.ActiveID() != id {
		t.Errorf("active = %q, want %q", s.ActiveID(), id)
	}

	// The empty discussion must already be on disk.
	if _, err := os.Stat(filepath.Join(s.BaseDir(), id+".json")); err != nil {
		t.Errorf("new discussion not persisted: %v", err)
	}
}

func TestRoundTripPersistence(t *testing.T) {
	dir := t.TempDir()
	s := NewDiscussionStore(dir, 0)

	id, err := s.CreateNew()
	if err != nil {
		t.Fatal(err)
	}
	msgs := []*model.Message{
		model.NewUserMessage("first"),
		model.NewAssistantMessage(model.KindText, "second", "second"),
		model.NewUserMessage("third"),
	}
	for _, m := range msgs {
		if err := s.AppendMessage(id, m); err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
	}
	orig, _ := s.Get(id)
	origJSON, _ := json.Marshal(orig)

	// Reload into a fresh store.
	s2 := NewDiscussionStore(dir, 0)
	if err := s2.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	loaded, err := s2.Get(id)
	if err != nil {
		t.Fatalf("Get after reload failed: %v", err)
	}

	if loaded.ID != orig.ID || loaded.Title != orig.Title {
		t.Errorf("identity mismatch: %q/%q vs %q/%q", loaded.ID, loaded.Title, orig.ID, orig.Title)
	}
	if !loaded.CreatedAt.Equal(orig.CreatedAt) {
		t.Errorf("createdAt mismatch: %v vs %v", loaded.CreatedAt, orig.CreatedAt)
	}
	if len(loaded.Messages) != 3 {
		t.Fatalf("message count = %d, want 3", len(loaded.Messages))
	}
	for i, m := range loaded.Messages {
		if m.ID != msgs[i].ID || m.Content != msgs[i].Content || m.Role != msgs[i].Role {
			t.Errorf("message %d mismatch: %+v vs %+v", i, m, msgs[i])
		}
	}

	loadedJSON, _ := json.Marshal(loaded)
	if string(loadedJSON) != string(origJSON) {
		t.Errorf("serialized round trip differs:\n%s\nvs\n%s", loadedJSON, origJSON)
	}
}

func TestLoad_SkipsCorruptRecords(t *testing.T) {
	dir := t.TempDir()
	s := NewDiscussionStore(dir, 0)

	id, _ := s.CreateNew()
	s.AppendMessage(id, model.NewUserMessage("keep me"))

	// Drop in garbage next to the valid record.
	os.WriteFile(filepath.Join(dir, "bad1.json"), []byte("{not json"), 0644)
	os.WriteFile(filepath.Join(dir, "bad2.json"), []byte(`{"title":"no id"}`), 0644)

	s2 := NewDiscussionStore(dir, 0)
	if err := s2.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s2.Count() != 1 {
		t.Errorf("count = %d, want 1 (corrupt skipped)", s2.Count())
	}
	if s2.SkippedOnLoad() != 2 {
		t.Errorf("skipped = %d, want 2", s2.SkippedOnLoad())
	}
}

func TestSwitchTo(t *testing.T) {
	s := newTestStore(t)

	first, _ := s.CreateNew()
	second, _ := s.CreateNew()

	if err := s.SwitchTo("unknown"); !errors.Is(err, ErrDiscussionNotFound) {
		t.Errorf("switch to unknown = %v, want ErrDiscussionNotFound", err)
	}
	if err := s.SwitchTo(second); err != nil {
		t.Errorf("switch to active should be a no-op, got %v", err)
	}
	if err := s.SwitchTo(first); err != nil {
		t.Fatalf("SwitchTo failed: %v", err)
	}
	if s.ActiveID() != first {
		t.Errorf("active = %q, want %q", s.ActiveID(), first)
	}
}

func TestDelete_ActiveFallsBack(t *testing.T) {
	s := newTestStore(t)

	first, _ := s.CreateNew()
	second, _ := s.CreateNew()

	if err := s.Delete(second); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if s.ActiveID() != first {
		t.Errorf("active = %q, want fallback to %q", s.ActiveID(), first)
	}
	if _, err := os.Stat(filepath.Join(s.BaseDir(), second+".json")); !os.IsNotExist(err) {
		t.Error("deleted record still on disk")
	}
}

func TestDelete_LastCreatesReplacement(t *testing.T) {
	s := newTestStore(t)

	only, _ := s.CreateNew()
	if err := s.Delete(only); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	// The store repairs itself: a fresh active discussion exists.
	if s.ActiveID() == "" || s.ActiveID() == only {
		t.Errorf("active = %q, want fresh discussion", s.ActiveID())
	}
	if s.Count() != 1 {
		t.Errorf("count = %d, want 1", s.Count())
	}
}

func TestAppendMessage_UnknownID(t *testing.T) {
	s := newTestStore(t)
	err := s.AppendMessage("nope", model.NewUserMessage("hi"))
	if !errors.Is(err, ErrDiscussionNotFound) {
		t.Errorf("err = %v, want ErrDiscussionNotFound", err)
	}
}

func TestUpdateTitle(t *testing.T) {
	s := newTestStore(t)
	id, _ := s.CreateNew()

	if err := s.UpdateTitle(id, "  renamed  "); err != nil {
		t.Fatalf("UpdateTitle failed: %v", err)
	}
	d, _ := s.Get(id)
	if d.Title != "renamed" {
		t.Errorf("title = %q, want trimmed %q", d.Title, "renamed")
	}

	// Persisted too.
	s2 := NewDiscussionStore(s.BaseDir(), 0)
	s2.Load()
	d2, _ := s2.Get(id)
	if d2.Title != "renamed" {
		t.Errorf("persisted title = %q", d2.Title)
	}
}

func TestMaxDiscussionsLimit(t *testing.T) {
	s := NewDiscussionStore(t.TempDir(), 2)

	for i := 0; i < 4; i++ {
		if _, err := s.CreateNew(); err != nil {
			t.Fatal(err)
		}
	}
	if s.Count() != 2 {
		t.Errorf("count = %d, want 2 (limit enforced)", s.Count())
	}
	// The active discussion survives.
	if _, err := s.Get(s.ActiveID()); err != nil {
		t.Errorf("active discussion evicted: %v", err)
	}
}

func TestExportMarkdown(t *testing.T) {
	s := newTestStore(t)
	id, _ := s.CreateNew()
	s.AppendMessage(id, model.NewUserMessage("hello"))
	s.AppendMessage(id, model.NewAssistantMessage(model.KindText, "world", "world"))

	md, err := s.ExportMarkdown(id)
	if err != nil {
		t.Fatalf("ExportMarkdown failed: %v", err)
	}
	for _, want := range []string{"**You**", "**Assistant**", "hello", "world"} {
		if !strings.Contains(md, want) {
			t.Errorf("export missing %q", want)
		}
	}
}
