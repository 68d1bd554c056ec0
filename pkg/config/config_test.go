// Copyright 2026 © The Chrysalis Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Fatalf("log defaults = %+v", cfg.Log)
	}
	if cfg.Store.Backend != "sqlite" || cfg.Store.DSN != "chrysalis.db" {
		t.Fatalf("store defaults = %+v", cfg.Store)
	}
	if cfg.Cache.Shards != 8 || cfg.Cache.TTL != 5*time.Minute {
		t.Fatalf("cache defaults = %+v", cfg.Cache)
	}
	if cfg.Translate.MinRoundTripFidelity != 0.95 || cfg.Translate.Timeout != 30*time.Second {
		t.Fatalf("translate defaults = %+v", cfg.Translate)
	}
	if cfg.Telemetry.Enabled || cfg.Telemetry.Exporter != "stdout" {
		t.Fatalf("telemetry defaults = %+v", cfg.Telemetry)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chrysalis.yaml")
	body := `
log:
  level: debug
  format: json
store:
  backend: memory
cache:
  shards: 4
  ttl: 90s
translate:
  max_fidelity_loss: 0.1
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("log = %+v", cfg.Log)
	}
	if cfg.Store.Backend != "memory" {
		t.Fatalf("store = %+v", cfg.Store)
	}
	if cfg.Cache.Shards != 4 || cfg.Cache.TTL != 90*time.Second {
		t.Fatalf("cache = %+v", cfg.Cache)
	}
	if cfg.Translate.MaxFidelityLoss != 0.1 {
		t.Fatalf("translate = %+v", cfg.Translate)
	}
	// Untouched keys keep their defaults.
	if cfg.Store.DSN != "chrysalis.db" {
		t.Fatalf("dsn = %q, want default", cfg.Store.DSN)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chrysalis.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CHRYSALIS_LOG_LEVEL", "warn")
	t.Setenv("CHRYSALIS_STORE_BACKEND", "memory")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Fatalf("level = %q, want env override", cfg.Log.Level)
	}
	if cfg.Store.Backend != "memory" {
		t.Fatalf("backend = %q, want env override", cfg.Store.Backend)
	}
}

func TestWatcherReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chrysalis.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: info\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	w, err := NewWatcher([]string{path}, WithWatchInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	if w.Config().Log.Level != "info" {
		t.Fatalf("initial level = %q", w.Config().Log.Level)
	}

	reloaded := make(chan *Config, 1)
	w.OnChange(func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	// Ensure the mtime moves forward on coarse-grained filesystems.
	time.Sleep(20 * time.Millisecond)
	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	now := time.Now().Add(time.Second)
	if err := os.Chtimes(path, now, now); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Log.Level != "debug" {
			t.Fatalf("reloaded level = %q, want debug", cfg.Log.Level)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reload never observed")
	}
}

func TestWatcherStopBeforeStart(t *testing.T) {
	w, err := NewWatcher(nil)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}

	done := make(chan struct{})
	go func() {
		w.Stop()
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked without a running watcher")
	}
}
