// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// =============================================================================
// THEME WATCHER
// =============================================================================

// Watcher keeps the most recent theme Result and reloads it when the file
// changes on disk. The web host reads Current per request; the terminal host
// subscribes with OnChange.
//
// The parent directory is watched rather than the file so that the file can
// be created, deleted, or atomically replaced while misterio runs.
type Watcher struct {
	path    string
	parsers []Parser

	mu      sync.RWMutex
	current Result
	subs    []func(Result)
}

// NewWatcher loads path once and returns a watcher for it.
func NewWatcher(path string) *Watcher {
	w := &Watcher{path: path, parsers: ParsersFor(path)}
	w.current = LoadWith(path, w.parsers...)
	logResult(w.current)
	return w
}

// Current returns the latest theme Result.
func (w *Watcher) Current() Result {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers fn to be called after every reload.
func (w *Watcher) OnChange(fn func(Result)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subs = append(w.subs, fn)
}

// Reload re-reads the file and publishes the new Result.
func (w *Watcher) Reload() Result {
	res := LoadWith(w.path, w.parsers...)
	logResult(res)

	w.mu.Lock()
	w.current = res
	subs := append([]func(Result){}, w.subs...)
	w.mu.Unlock()

	for _, fn := range subs {
		fn(res)
	}
	return res
}

// Run watches the theme file until ctx is cancelled. If the parent directory
// cannot be watched, Run logs and waits for cancellation; the initially
// loaded Result stays current.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		log.Debug().Str("component", "config").Str("dir", dir).Err(err).Msg("theme directory not watched")
		<-ctx.Done()
		return nil
	}

	target := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				w.Reload()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn().Str("component", "config").Err(err).Msg("theme watcher error")
		}
	}
}
