// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package source

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

// DefaultWatchThrottle is the minimum interval between change
// notifications. Editors and git checkouts produce bursts of writes; a
// run per write would thrash the pipeline.
const DefaultWatchThrottle = 2 * time.Second

// Watcher observes a source root and notifies when configuration files
// change.
//
// # Description
//
// Watches the root and every non-excluded subdirectory. Change events
// for matching files are throttled through a rate limiter before the
// callback fires, so a burst of writes yields one notification.
//
// # Thread Safety
//
// Safe for concurrent use. Start should only be called once.
type Watcher struct {
	root     string
	loader   *Loader
	watcher  *fsnotify.Watcher
	limiter  *rate.Limiter
	callback func(path string)
}

// WatcherOption is a functional option for configuring Watcher.
type WatcherOption func(*Watcher)

// WithThrottle sets the minimum interval between notifications.
func WithThrottle(interval time.Duration) WatcherOption {
	return func(w *Watcher) {
		if interval > 0 {
			w.limiter = rate.NewLimiter(rate.Every(interval), 1)
		}
	}
}

// WithWatchLoader sets the loader whose exclusion and extension sets
// decide which events count.
func WithWatchLoader(l *Loader) WatcherOption {
	return func(w *Watcher) {
		w.loader = l
	}
}

// NewWatcher creates a watcher over root.
//
// # Inputs
//
//   - root: Directory to watch. Must exist.
//   - callback: Invoked with the changed file's path after throttling.
//
// # Outputs
//
//   - *Watcher: Ready-to-start watcher.
//   - error: Non-nil if the root is missing or watcher creation fails.
func NewWatcher(root string, callback func(path string), opts ...WatcherOption) (*Watcher, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:     root,
		loader:   NewLoader(),
		watcher:  fsw,
		limiter:  rate.NewLimiter(rate.Every(DefaultWatchThrottle), 1),
		callback: callback,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching. Blocks until ctx is cancelled; run in a
// goroutine.
func (w *Watcher) Start(ctx context.Context) {
	w.addTree(w.root)

	slog.Debug("Started watching source root", "root", w.root)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Source watcher error", "error", err)

		case <-ctx.Done():
			slog.Debug("Source watcher stopping")
			return
		}
	}
}

// addTree registers dir and its non-excluded subdirectories.
func (w *Watcher) addTree(dir string) {
	worklist := []string{dir}
	for len(worklist) > 0 {
		current := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		if err := w.watcher.Add(current); err != nil {
			slog.Warn("Failed to watch directory", "path", current, "error", err)
			continue
		}

		entries, err := os.ReadDir(current)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			if _, skip := w.loader.excluded[strings.ToLower(entry.Name())]; skip {
				continue
			}
			worklist = append(worklist, filepath.Join(current, entry.Name()))
		}
	}
}

// handleEvent processes a single fsnotify event.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	// A created directory needs watching before its files change.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if _, skip := w.loader.excluded[strings.ToLower(filepath.Base(event.Name))]; !skip {
				w.addTree(event.Name)
			}
			return
		}
	}

	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if _, ok := w.loader.extensions[strings.ToLower(filepath.Ext(event.Name))]; !ok {
		return
	}
	if !w.limiter.Allow() {
		return
	}

	slog.Info("Source change detected", "path", event.Name, "op", event.Op.String())
	if w.callback != nil {
		w.callback(event.Name)
	}
}

// Stop stops the watcher and releases resources. Safe to call multiple
// times.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}
