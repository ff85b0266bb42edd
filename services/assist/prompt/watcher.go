// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package prompt

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after the last file event
// before reloading.
const DefaultDebounce = 200 * time.Millisecond

// Source hands out the current personas.
type Source interface {
	Current() Personas
}

// Static is a Source that never changes.
type Static Personas

// Current implements Source.
func (s Static) Current() Personas { return Personas(s) }

// Watcher keeps the personas loaded from a YAML file and reloads them when
// the file changes.
//
// # Description
//
// The parent directory is watched rather than the file itself so that
// editors which save by rename, and Kubernetes ConfigMap symlink swaps,
// are still seen. Events are debounced. A reload that fails to read or
// parse is logged and the previous snapshot stays in place.
//
// # Thread Safety
//
// Current is safe for concurrent use. Readers get an immutable snapshot.
type Watcher struct {
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	current  atomic.Pointer[Personas]
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWatcher loads path once and prepares a watcher. Call Start to begin
// watching.
func NewWatcher(path string, debounce time.Duration) (*Watcher, error) {
	personas, err := LoadPersonas(path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create persona watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w := &Watcher{
		path:     filepath.Clean(path),
		debounce: debounce,
		watcher:  fsw,
		done:     make(chan struct{}),
	}
	w.current.Store(&personas)
	return w, nil
}

// Current returns the latest successfully loaded personas.
func (w *Watcher) Current() Personas {
	return *w.current.Load()
}

// Start watches the persona file until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch persona dir: %w", err)
	}
	w.wg.Add(1)
	go w.loop(ctx)
	slog.Info("Watching persona file", "path", w.path)
	return nil
}

// Stop ends the watch loop and waits for it to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.watcher.Close()
	})
	w.wg.Wait()
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C
		case <-timerC:
			timerC = nil
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Persona watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	personas, err := LoadPersonas(w.path)
	if err != nil {
		slog.Warn("Persona reload failed, keeping previous personas", "path", w.path, "error", err)
		return
	}
	w.current.Store(&personas)
	slog.Info("Personas reloaded", "path", w.path)
}
