// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package contextset manages the set of files a user has curated as
// background context for generation requests, and renders that set into a
// bounded prompt blob.
package contextset

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jeranaias/lollms-cli/internal/util"
)

// =============================================================================
// FILE SET
// =============================================================================

// FileSet is a persisted set of unique file paths. Membership operations are
// idempotent: adding an already present path is a no-op reporting "not
// added". Insertion order is preserved for stable rendering.
type FileSet struct {
	mu sync.Mutex

	// statePath is the JSON file the set is persisted to after every mutation
	statePath string

	paths   []string
	members map[string]bool

	// observers are notified after a mutation has been committed to disk
	observers []func()
}

// NewFileSet creates a file set persisted at statePath.
func NewFileSet(statePath string) *FileSet {
	return &FileSet{
		statePath: statePath,
		members:   make(map[string]bool),
	}
}

// Load restores the persisted set. A missing state file means an empty set.
func (fs *FileSet) Load() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := os.ReadFile(fs.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read context state: %w", err)
	}

	var paths []string
	if err := json.Unmarshal(data, &paths); err != nil {
		return fmt.Errorf("failed to parse context state: %w", err)
	}

	fs.paths = fs.paths[:0]
	fs.members = make(map[string]bool, len(paths))
	for _, p := range paths {
		if !fs.members[p] {
			fs.members[p] = true
			fs.paths = append(fs.paths, p)
		}
	}
	return nil
}

// Subscribe registers a callback invoked after every committed mutation.
func (fs *FileSet) Subscribe(fn func()) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.observers = append(fs.observers, fn)
}

// Add inserts a path. Returns false if the path was already present.
func (fs *FileSet) Add(path string) (bool, error) {
	path = normalize(path)

	fs.mu.Lock()
	if fs.members[path] {
		fs.mu.Unlock()
		return false, nil
	}
	fs.members[path] = true
	fs.paths = append(fs.paths, path)
	err := fs.persistLocked()
	observers := fs.observers
	fs.mu.Unlock()

	if err != nil {
		return true, err
	}
	notify(observers)
	return true, nil
}

// AddMany inserts a batch of paths with a single persistence write.
// Returns the number actually added (duplicates are skipped).
func (fs *FileSet) AddMany(paths []string) (int, error) {
	fs.mu.Lock()
	added := 0
	for _, p := range paths {
		p = normalize(p)
		if fs.members[p] {
			continue
		}
		fs.members[p] = true
		fs.paths = append(fs.paths, p)
		added++
	}

	var err error
	if added > 0 {
		err = fs.persistLocked()
	}
	observers := fs.observers
	fs.mu.Unlock()

	if err != nil {
		return added, err
	}
	if added > 0 {
		notify(observers)
	}
	return added, nil
}

// Remove deletes a path. Returns false if the path was not present.
func (fs *FileSet) Remove(path string) (bool, error) {
	path = normalize(path)

	fs.mu.Lock()
	if !fs.members[path] {
		fs.mu.Unlock()
		return false, nil
	}
	delete(fs.members, path)
	for i, p := range fs.paths {
		if p == path {
			fs.paths = append(fs.paths[:i], fs.paths[i+1:]...)
			break
		}
	}
	err := fs.persistLocked()
	observers := fs.observers
	fs.mu.Unlock()

	if err != nil {
		return true, err
	}
	notify(observers)
	return true, nil
}

// Clear empties the set.
func (fs *FileSet) Clear() error {
	fs.mu.Lock()
	fs.paths = fs.paths[:0]
	fs.members = make(map[string]bool)
	err := fs.persistLocked()
	observers := fs.observers
	fs.mu.Unlock()

	if err != nil {
		return err
	}
	notify(observers)
	return nil
}

// Contains reports membership.
func (fs *FileSet) Contains(path string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.members[normalize(path)]
}

// Paths returns the member paths in insertion order.
func (fs *FileSet) Paths() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make([]string, len(fs.paths))
	copy(out, fs.paths)
	return out
}

// Len returns the number of members.
func (fs *FileSet) Len() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.paths)
}

// persistLocked writes the set to disk. Caller must hold fs.mu.
func (fs *FileSet) persistLocked() error {
	data, err := json.MarshalIndent(fs.paths, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize context state: %w", err)
	}
	return util.AtomicWriteFile(fs.statePath, data, 0644)
}

// notify runs observer callbacks outside the lock.
func notify(observers []func()) {
	for _, fn := range observers {
		fn()
	}
}

// normalize cleans a path for stable membership comparison.
func normalize(path string) string {
	return filepath.Clean(path)
}

// =============================================================================
// BULK COLLECTION
// =============================================================================

// CollectFiles walks root and returns all regular files not matched by the
// ignore patterns, for use with AddMany. Patterns match base names,
// gitignore-style for simple names and globs. The walk honors ctx
// cancellation; files collected before cancellation are returned along with
// ctx.Err().
func CollectFiles(ctx context.Context, root string, ignorePatterns []string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		name := d.Name()
		if d.IsDir() {
			if path != root && shouldIgnore(name, ignorePatterns) {
				return filepath.SkipDir
			}
			return nil
		}
		if shouldIgnore(name, ignorePatterns) {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		files = append(files, path)
		return nil
	})

	if err != nil {
		return files, err
	}
	return files, nil
}

// shouldIgnore checks a base name against the ignore patterns.
func shouldIgnore(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if name == pattern {
			return true
		}
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
