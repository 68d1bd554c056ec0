// Copyright 2026 © The Chrysalis Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	bridgeMetricsOnce  sync.Once
	translateCounter   metric.Int64Counter
	translateErrors    metric.Int64Counter
	cacheHitCounter    metric.Int64Counter
	translateLatencyMs metric.Float64Histogram
	fidelityHistogram  metric.Float64Histogram
)

func initBridgeMetrics() {
	bridgeMetricsOnce.Do(func() {
		meter := otel.Meter("chrysalis/bridge")
		translateCounter, _ = meter.Int64Counter("chrysalis.bridge.translate.count")
		translateErrors, _ = meter.Int64Counter("chrysalis.bridge.translate.error.count")
		cacheHitCounter, _ = meter.Int64Counter("chrysalis.bridge.cache.hit.count")
		translateLatencyMs, _ = meter.Float64Histogram("chrysalis.bridge.translate.latency_ms")
		fidelityHistogram, _ = meter.Float64Histogram("chrysalis.bridge.translate.fidelity")
	})
}
