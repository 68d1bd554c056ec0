// Copyright 2026 © The Chrysalis Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher reloads configuration when the file on disk changes. Change
// detection is mtime polling, which also covers editors and config
// management tools that replace the file rather than rewrite it.
type Watcher struct {
	path     string
	interval time.Duration
	logger   *slog.Logger

	mu        sync.RWMutex
	modTime   time.Time
	current   *Config
	listeners []func(*Config)

	started  bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// WatcherOption configures the watcher.
type WatcherOption func(*Watcher)

// WithWatchInterval sets the polling interval for file changes.
func WithWatchInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatchLogger sets the logger for the watcher.
func WithWatchLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// NewWatcher loads the configuration from the first path and polls it
// for later changes. An empty path list watches nothing and serves
// defaults plus environment overrides.
func NewWatcher(paths []string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		interval: time.Second,
		logger:   slog.Default(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	if len(paths) > 0 {
		w.path = paths[0]
	}
	for _, opt := range opts {
		opt(w)
	}

	if info, err := os.Stat(w.path); err == nil {
		w.modTime = info.ModTime()
	}

	cfg, err := Load(w.path)
	if err != nil {
		return nil, err
	}
	w.current = cfg
	return w, nil
}

// OnChange registers a callback invoked after each successful reload.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Config returns the current configuration.
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start begins polling until ctx is done or Stop is called. Calling it
// more than once has no effect.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	go func() {
		defer close(w.doneCh)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case <-ticker.C:
				w.poll()
			}
		}
	}()
}

// Stop halts polling and waits for the loop to exit. It is safe to call
// repeatedly, and a no-op if Start was never called.
func (w *Watcher) Stop() {
	w.mu.RLock()
	started := w.started
	w.mu.RUnlock()
	if !started {
		return
	}
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.doneCh
}

func (w *Watcher) poll() {
	info, err := os.Stat(w.path)
	if err != nil {
		// Missing between polls; the last good config stays active.
		return
	}

	w.mu.Lock()
	changed := info.ModTime().After(w.modTime)
	if changed {
		w.modTime = info.ModTime()
	}
	w.mu.Unlock()
	if !changed {
		return
	}

	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Error("config reload failed", slog.String("path", w.path), slog.String("error", err.Error()))
		return
	}

	w.mu.Lock()
	w.current = cfg
	listeners := make([]func(*Config), len(w.listeners))
	copy(listeners, w.listeners)
	w.mu.Unlock()

	w.logger.Info("config reloaded", slog.String("path", w.path))
	for _, fn := range listeners {
		fn(cfg)
	}
}
