// Copyright 2026 © The Chrysalis Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic conventions for translation telemetry. These follow
// OpenTelemetry naming conventions where applicable.
const (
	// Agent attributes
	AttrAgentID         = "chrysalis.agent.id"
	AttrSnapshotVersion = "chrysalis.snapshot.version"

	// Translation attributes
	AttrSourceFormat    = "chrysalis.translate.source_format"
	AttrTargetFormat    = "chrysalis.translate.target_format"
	AttrForwardFidelity = "chrysalis.translate.forward_fidelity"
	AttrReverseFidelity = "chrysalis.translate.reverse_fidelity"
	AttrTotalFidelity   = "chrysalis.translate.total_fidelity"
	AttrCacheHit        = "chrysalis.translate.cache_hit"
	AttrChainHops       = "chrysalis.chain.hops"

	// Migration attributes
	AttrMigrationAgents  = "chrysalis.migration.agents"
	AttrMigrationWorkers = "chrysalis.migration.workers"

	// Error attributes
	AttrErrorCode = "chrysalis.error.code"
)

// TranslationAttributes identifies one translation request on a span.
func TranslationAttributes(agentID, sourceFormat, targetFormat string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrAgentID, agentID),
		attribute.String(AttrSourceFormat, sourceFormat),
		attribute.String(AttrTargetFormat, targetFormat),
	}
}

// FidelityAttributes records the per-direction and composed scores.
func FidelityAttributes(forward, reverse, total float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Float64(AttrForwardFidelity, forward),
		attribute.Float64(AttrReverseFidelity, reverse),
		attribute.Float64(AttrTotalFidelity, total),
	}
}

// MigrationAttributes describes a batch migration job.
func MigrationAttributes(targetFormat string, agents, workers int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrTargetFormat, targetFormat),
		attribute.Int(AttrMigrationAgents, agents),
		attribute.Int(AttrMigrationWorkers, workers),
	}
}

// ErrorAttributes tags a span or metric with a typed error code.
func ErrorAttributes(code string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String(AttrErrorCode, code)}
}
