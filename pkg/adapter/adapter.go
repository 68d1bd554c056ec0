// Copyright 2026 © The Chrysalis Authors
// SPDX-License-Identifier: Apache-2.0

// Package adapter defines the bidirectional contract between one
// protocol's native agent shape and the canonical graph.
//
// An adapter owns its mapping: it declares which native fields map to
// core predicates, preserves the rest under its extension namespace, and
// self-reports the fidelity of every transform. The orchestrator never
// inspects native payloads; it only carries them around as an opaque
// Native value tagged with its protocol id.
package adapter

import (
	"context"
	"time"

	"github.com/replicant-partners/chrysalis/pkg/canonical"
)

// Native is a protocol-tagged opaque payload. Adapters decode Data into
// their own strongly typed structures; nothing else branches on it.
type Native struct {
	Protocol string `json:"protocol"`
	Data     []byte `json:"data"`
}

// Options tunes a single transform.
type Options struct {
	// Timeout bounds network-bound work inside the adapter (for example
	// fetching an external schema). Zero means no bound.
	Timeout time.Duration

	// Strict makes ToCanonical run Validate first and refuse payloads
	// with validation errors.
	Strict bool
}

// Capability describes one declared adapter capability, indexed by the
// registry for discovery.
type Capability struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	Bidirectional bool   `json:"bidirectional"`
}

// ValidationResult reports shape problems in a native payload without
// transforming it.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// TransformResult is the outcome of ToCanonical.
type TransformResult struct {
	Graph   *canonical.Graph
	AgentID string
	Report  Report
}

// NativeResult is the outcome of FromCanonical.
type NativeResult struct {
	Native Native
	Report Report
}

// Adapter translates between one protocol and the canonical graph.
//
// ToCanonical must be deterministic for identical input, excluding
// wall-clock timestamps. It fails with a TRANSFORM_FAILED error when a
// required identity field is absent. Native fields with no canonical
// equivalent must be written into the adapter's extension namespace, or
// recorded as a lossy mapping with a reason; silent drops are mapping
// bugs and show up as round-trip fidelity loss.
//
// FromCanonical fails with TRANSFORM_FAILED when the graph lacks the
// required Agent-typed node, and must restore extension-namespace entries
// owned by its own protocol id back into native shape.
type Adapter interface {
	ProtocolID() string
	ToCanonical(ctx context.Context, native Native, opts Options) (*TransformResult, error)
	FromCanonical(ctx context.Context, graph *canonical.Graph, opts Options) (*NativeResult, error)
	Validate(native Native) ValidationResult
	Capabilities() []Capability
	SupportsFeature(name string) bool
}

// SupportsFeatureIn is the shared SupportsFeature implementation: a
// feature is supported when a capability with that name is declared.
func SupportsFeatureIn(caps []Capability, name string) bool {
	for _, c := range caps {
		if c.Name == name {
			return true
		}
	}
	return false
}
