// Copyright 2026 © The Chrysalis Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads subsystem configuration from YAML files and
// CHRYSALIS_-prefixed environment variables, env taking precedence.
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Store     StoreConfig     `koanf:"store"`
	Cache     CacheConfig     `koanf:"cache"`
	Translate TranslateConfig `koanf:"translate"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type StoreConfig struct {
	Backend string `koanf:"backend"` // sqlite, memory
	DSN     string `koanf:"dsn"`
}

type CacheConfig struct {
	CapacityPerShard int           `koanf:"capacity_per_shard"`
	Shards           int           `koanf:"shards"`
	TTL              time.Duration `koanf:"ttl"`
	SweepInterval    time.Duration `koanf:"sweep_interval"`
}

type TranslateConfig struct {
	MaxFidelityLoss      float64       `koanf:"max_fidelity_loss"`
	MinRoundTripFidelity float64       `koanf:"min_round_trip_fidelity"`
	Timeout              time.Duration `koanf:"timeout"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Exporter    string `koanf:"exporter"` // stdout, otlp
	Endpoint    string `koanf:"endpoint"`
	ServiceName string `koanf:"service_name"`
}

// Load reads configuration with precedence defaults < file < env. Each
// call works on a fresh koanf instance; there is no package-level state.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	k.Set("log.level", "info")
	k.Set("log.format", "text")

	k.Set("store.backend", "sqlite")
	k.Set("store.dsn", "chrysalis.db")

	k.Set("cache.capacity_per_shard", 128)
	k.Set("cache.shards", 8)
	k.Set("cache.ttl", "5m")
	k.Set("cache.sweep_interval", "1m")

	k.Set("translate.max_fidelity_loss", 0.0)
	k.Set("translate.min_round_trip_fidelity", 0.95)
	k.Set("translate.timeout", "30s")

	k.Set("telemetry.enabled", false)
	k.Set("telemetry.exporter", "stdout")
	k.Set("telemetry.endpoint", "localhost:4317")
	k.Set("telemetry.service_name", "chrysalis")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// CHRYSALIS_STORE_BACKEND -> store.backend
	if err := k.Load(env.Provider("CHRYSALIS_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "CHRYSALIS_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
