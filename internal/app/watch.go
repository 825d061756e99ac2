// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jeranaias/lollms-cli/internal/config"
)

// watchDebounce coalesces the event bursts editors produce on save.
const watchDebounce = 500 * time.Millisecond

// WatchConfig reloads the configuration when the config file changes on
// disk, until ctx is cancelled. The watch is set on the directory, not the
// file, because editors replace files on save and break file-level watches.
func (a *App) WatchConfig(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(a.cfgPath)); err != nil {
		return err
	}

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(a.cfgPath) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
				timerC = timer.C
			} else {
				timer.Reset(watchDebounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			a.reloadConfig()

		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			// Watch errors are non-fatal; the next event may still arrive.
		}
	}
}

// reloadConfig re-reads the config file and applies it. A file that fails
// to load keeps the previous configuration.
func (a *App) reloadConfig() {
	cfg, err := config.LoadFromPath(a.cfgPath)
	if err != nil {
		return
	}
	a.applyConfig(cfg)
}
