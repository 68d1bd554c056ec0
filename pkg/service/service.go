// Copyright 2026 © The Chrysalis Authors
// SPDX-License-Identifier: Apache-2.0

// Package service is the store-facing API consumed by CLI and dashboard
// tooling. It owns nothing global: registry, store, cache, and
// orchestrator are injected so hosts can run isolated instances.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/replicant-partners/chrysalis/pkg/adapter"
	"github.com/replicant-partners/chrysalis/pkg/bridge"
	"github.com/replicant-partners/chrysalis/pkg/cache"
	"github.com/replicant-partners/chrysalis/pkg/errors"
	"github.com/replicant-partners/chrysalis/pkg/registry"
	"github.com/replicant-partners/chrysalis/pkg/store"
)

// Service exposes agent management over the translation subsystem.
type Service struct {
	registry     *registry.Registry
	store        store.Store
	cache        *cache.Cache
	orchestrator *bridge.Orchestrator
	log          *slog.Logger
	now          func() time.Time
}

// New wires a service over injected collaborators. cache may be nil.
func New(reg *registry.Registry, st store.Store, c *cache.Cache, o *bridge.Orchestrator) *Service {
	return &Service{
		registry:     reg,
		store:        st,
		cache:        c,
		orchestrator: o,
		log:          slog.Default(),
		now:          time.Now,
	}
}

// ImportResult is the outcome of ImportAgent.
type ImportResult struct {
	AgentID  string         `json:"agent_id"`
	Version  int64          `json:"version"`
	Report   adapter.Report `json:"report"`
	Warnings []string       `json:"warnings,omitempty"`
}

// ImportAgent validates and imports a native description, persisting a
// new canonical snapshot version.
func (s *Service) ImportAgent(ctx context.Context, sourceFormat string, data []byte) (*ImportResult, error) {
	a := s.registry.GetAdapter(sourceFormat)
	if a == nil {
		return nil, errors.New(errors.CodeAdapterNotFound, "no adapter for source format", nil).
			WithContext("protocol", sourceFormat)
	}

	native := adapter.Native{Protocol: sourceFormat, Data: data}
	if v := a.Validate(native); !v.Valid {
		return nil, errors.New(errors.CodeInvalidInput, "native description failed validation", nil).
			WithContext("protocol", sourceFormat).
			WithContext("errors", v.Errors)
	}

	result, err := a.ToCanonical(ctx, native, adapter.Options{})
	if err != nil {
		return nil, err
	}
	if !result.Report.Success {
		return nil, errors.New(errors.CodeTransformFailed, "import transform failed", nil).
			WithContext("protocol", sourceFormat).
			WithContext("errors", result.Report.Errors)
	}

	ref, err := s.store.CreateAgentSnapshot(ctx, result.AgentID, result.Graph, store.Metadata{
		Timestamp:    s.now(),
		SourceFormat: sourceFormat,
		Fidelity:     result.Report.FidelityScore,
	})
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ref.AgentID)
	}
	s.log.Info("agent imported",
		slog.String("agent_id", ref.AgentID),
		slog.Int64("version", ref.Version),
		slog.String("source_format", sourceFormat),
		slog.Float64("fidelity", result.Report.FidelityScore),
	)
	return &ImportResult{
		AgentID:  ref.AgentID,
		Version:  ref.Version,
		Report:   result.Report,
		Warnings: result.Report.Warnings,
	}, nil
}

// ExportAgent re-exports a stored snapshot to the target format.
// version 0 exports the latest.
func (s *Service) ExportAgent(ctx context.Context, agentID, targetFormat string, version int64) (*bridge.Response, error) {
	return s.orchestrator.TranslateFromStore(ctx, agentID, targetFormat, version)
}

// GetAgent returns a stored snapshot, latest when version is 0.
func (s *Service) GetAgent(ctx context.Context, agentID string, version int64) (*store.Snapshot, error) {
	snap, err := s.store.GetAgentSnapshot(ctx, agentID, version)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, errors.New(errors.CodeNotFound, "agent not found", nil).
			WithContext("agent_id", agentID).
			WithContext("version", version)
	}
	return snap, nil
}

// GetAgentHistory returns the agent's version history, oldest first.
func (s *Service) GetAgentHistory(ctx context.Context, agentID string) ([]store.HistoryEntry, error) {
	return s.store.GetAgentHistory(ctx, agentID)
}

// ListAgents lists every stored agent at its latest version.
func (s *Service) ListAgents(ctx context.Context) ([]store.AgentSummary, error) {
	return s.store.ListAgents(ctx)
}

// DiscoverAgents filters stored agents by capability, protocol, or text.
func (s *Service) DiscoverAgents(ctx context.Context, criteria store.Criteria) ([]store.AgentSummary, error) {
	return s.store.DiscoverAgents(ctx, criteria)
}

// Stats combines store contents with registry and cache state.
type Stats struct {
	Store        store.Stats `json:"store"`
	Protocols    []string    `json:"protocols"`
	CacheEntries int         `json:"cache_entries"`
}

// GetStats reports subsystem-wide counters.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	storeStats, err := s.store.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	stats := &Stats{Store: storeStats, Protocols: s.registry.Protocols()}
	if s.cache != nil {
		stats.CacheEntries = s.cache.Len()
	}
	return stats, nil
}
