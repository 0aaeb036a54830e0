// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jeranaias/arag-cli/internal/logging"
	"github.com/jeranaias/arag-cli/internal/util"
)

// DefaultDebounce coalesces the bursts of events an atomic rewrite produces.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reloads a Manager when another process rewrites the session file.
type Watcher struct {
	manager  *Manager
	target   string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onReload func(Store)

	mu     sync.Mutex
	timer  *time.Timer
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher watches the sessions file of a FileBackend-backed manager.
// onReload, if set, receives each reloaded store.
func NewWatcher(m *Manager, fb *FileBackend, onReload func(Store)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: atomic renames replace the inode of the file.
	if err := fsw.Add(fb.Dir()); err != nil {
		fsw.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		manager:  m,
		target:   filepath.Clean(fb.Path(KeySessions)),
		watcher:  fsw,
		debounce: DefaultDebounce,
		onReload: onReload,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go w.processEvents()
	return w, nil
}

func (w *Watcher) processEvents() {
	defer close(w.done)

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if util.IsTempFile(event.Name) || filepath.Clean(event.Name) != w.target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				w.schedule()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Log().Warnf("session watcher error: %v", err)
		}
	}
}

// schedule (re)arms the debounce timer.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	if w.ctx.Err() != nil {
		return
	}
	store := w.manager.Reload()
	logging.WithFields("debug", "sessions reloaded", logging.Fields{
		"sessions": store.Len(),
		"current":  store.CurrentID,
	})
	if w.onReload != nil {
		w.onReload(store)
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.cancel()
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	err := w.watcher.Close()
	<-w.done
	return err
}
