// Copyright 2026 © The Chrysalis Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestInitAndShutdown(t *testing.T) {
	shutdown, err := Init("chrysalis-test", "0.0.0")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitWithConfigRejectsUnknownExporter(t *testing.T) {
	if _, err := InitWithConfig("chrysalis-test", "0.0.0", Config{Exporter: "carrier-pigeon"}); err == nil {
		t.Fatal("unknown exporter accepted")
	}
}

func TestInitWithConfigOTLPRequiresEndpoint(t *testing.T) {
	if _, err := InitWithConfig("chrysalis-test", "0.0.0", Config{Exporter: "otlp"}); err == nil {
		t.Fatal("otlp without endpoint accepted")
	}
}

func TestConfigureSlogLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "warn", "json")

	logger.Info("hidden")
	logger.Warn("visible", "component", "test")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatal("info record emitted at warn level")
	}
	if !strings.Contains(out, `"msg":"visible"`) || !strings.Contains(out, `"component":"test"`) {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestTranslationAttributes(t *testing.T) {
	attrs := TranslationAttributes("ada", "toolcall", "rolegoal")
	if len(attrs) != 3 {
		t.Fatalf("attrs = %d, want 3", len(attrs))
	}
	if string(attrs[0].Key) != AttrAgentID || attrs[0].Value.AsString() != "ada" {
		t.Fatalf("agent attr = %+v", attrs[0])
	}
	fid := FidelityAttributes(0.9, 0.8, 0.72)
	if fid[2].Value.AsFloat64() != 0.72 {
		t.Fatalf("total fidelity attr = %+v", fid[2])
	}
}
