// Copyright 2026 © The Chrysalis Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry indexes translation adapters by protocol id and by
// declared capability. A Registry is an explicitly constructed, injected
// instance: the hosting service owns it, so tests and multi-tenant
// deployments can run isolated registries side by side.
package registry

import (
	"sort"
	"sync"

	"github.com/replicant-partners/chrysalis/pkg/adapter"
)

// Options controls how an adapter is registered.
type Options struct {
	// Priority orders adapters within a capability index; higher first.
	Priority int

	// Enabled controls whether the adapter resolves. Disabled adapters
	// stay registered but GetAdapter returns nil for them.
	Enabled bool
}

// entry is one registered adapter with its registration state and usage
// accounting. Only the running mean and count are retained so memory
// stays bounded regardless of traffic.
type entry struct {
	adapter      adapter.Adapter
	priority     int
	enabled      bool
	usageCount   int64
	fidelityMean float64
}

// Usage is a snapshot of one adapter's usage accounting.
type Usage struct {
	ProtocolID   string  `json:"protocol_id"`
	Count        int64   `json:"count"`
	MeanFidelity float64 `json:"mean_fidelity"`
	Enabled      bool    `json:"enabled"`
}

// Registry indexes adapters. Safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	byProtocol   map[string]*entry
	byCapability map[string]map[string]int // capability -> protocol id -> priority
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		byProtocol:   make(map[string]*entry),
		byCapability: make(map[string]map[string]int),
	}
}

// Register adds or replaces an adapter, indexing it by protocol id and by
// every declared capability name.
func (r *Registry) Register(a adapter.Adapter, opts Options) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := a.ProtocolID()
	if _, exists := r.byProtocol[id]; exists {
		r.purgeCapabilitiesLocked(id)
	}
	r.byProtocol[id] = &entry{adapter: a, priority: opts.Priority, enabled: opts.Enabled}
	for _, cap := range a.Capabilities() {
		idx := r.byCapability[cap.Name]
		if idx == nil {
			idx = make(map[string]int)
			r.byCapability[cap.Name] = idx
		}
		idx[id] = opts.Priority
	}
}

// GetAdapter returns the adapter for a protocol, or nil when the protocol
// is unregistered or disabled.
func (r *Registry) GetAdapter(protocolID string) adapter.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e := r.byProtocol[protocolID]
	if e == nil || !e.enabled {
		return nil
	}
	return e.adapter
}

// FindByCapability returns the protocol ids of enabled adapters declaring
// the capability, ordered by priority (highest first), ties by id.
func (r *Registry) FindByCapability(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx := r.byCapability[name]
	out := make([]string, 0, len(idx))
	for id := range idx {
		if e := r.byProtocol[id]; e != nil && e.enabled {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := idx[out[i]], idx[out[j]]
		if pi != pj {
			return pi > pj
		}
		return out[i] < out[j]
	})
	return out
}

// CanTranslate reports whether both protocols resolve to enabled adapters.
func (r *Registry) CanTranslate(source, target string) bool {
	return r.GetAdapter(source) != nil && r.GetAdapter(target) != nil
}

// RecordUsage folds one observed fidelity score into the adapter's
// incremental running mean.
func (r *Registry) RecordUsage(protocolID string, fidelityScore float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.byProtocol[protocolID]
	if e == nil {
		return
	}
	e.usageCount++
	e.fidelityMean += (fidelityScore - e.fidelityMean) / float64(e.usageCount)
}

// UsageOf returns the usage snapshot for a protocol.
func (r *Registry) UsageOf(protocolID string) (Usage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e := r.byProtocol[protocolID]
	if e == nil {
		return Usage{}, false
	}
	return Usage{
		ProtocolID:   protocolID,
		Count:        e.usageCount,
		MeanFidelity: e.fidelityMean,
		Enabled:      e.enabled,
	}, true
}

// SetEnabled toggles an adapter without unregistering it. Returns false
// when the protocol is unknown.
func (r *Registry) SetEnabled(protocolID string, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.byProtocol[protocolID]
	if e == nil {
		return false
	}
	e.enabled = enabled
	return true
}

// Unregister removes an adapter and purges its capability-index entries
// so no dangling references remain.
func (r *Registry) Unregister(protocolID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byProtocol[protocolID]; !ok {
		return false
	}
	r.purgeCapabilitiesLocked(protocolID)
	delete(r.byProtocol, protocolID)
	return true
}

// Protocols returns the ids of all registered adapters, sorted, including
// disabled ones.
func (r *Registry) Protocols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byProtocol))
	for id := range r.byProtocol {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) purgeCapabilitiesLocked(protocolID string) {
	for name, idx := range r.byCapability {
		delete(idx, protocolID)
		if len(idx) == 0 {
			delete(r.byCapability, name)
		}
	}
}
