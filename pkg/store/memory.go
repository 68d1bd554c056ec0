// Copyright 2026 © The Chrysalis Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"sort"
	"sync"

	"github.com/replicant-partners/chrysalis/pkg/canonical"
	"github.com/replicant-partners/chrysalis/pkg/errors"
)

// MemoryStore is the in-process store engine. Suitable for tests and
// single-process deployments.
type MemoryStore struct {
	mu         sync.RWMutex
	snapshots  map[string][]*Snapshot // per agent, ascending by version
	activities []Activity

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex // per-agent writer locks
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string][]*Snapshot),
		locks:     make(map[string]*sync.Mutex),
	}
}

// writerLock returns the single writer lock for an agent id.
func (s *MemoryStore) writerLock(agentID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	l := s.locks[agentID]
	if l == nil {
		l = &sync.Mutex{}
		s.locks[agentID] = l
	}
	return l
}

// CreateAgentSnapshot implements Store. The per-agent writer lock keeps
// version numbers monotonic and gap-free under concurrent importers.
func (s *MemoryStore) CreateAgentSnapshot(ctx context.Context, agentID string, graph *canonical.Graph, meta Metadata) (Ref, error) {
	if agentID == "" {
		return Ref{}, errors.New(errors.CodeInvalidInput, "agent id is required", nil)
	}
	if graph == nil {
		return Ref{}, errors.New(errors.CodeInvalidInput, "graph is required", nil)
	}

	lock := s.writerLock(agentID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	var version int64 = 1
	existing := s.snapshots[agentID]
	if n := len(existing); n > 0 {
		version = existing[n-1].Version + 1
	}
	snap := &Snapshot{AgentID: agentID, Version: version, Graph: graph.Clone(), Metadata: meta}
	s.snapshots[agentID] = append(existing, snap)
	return Ref{AgentID: agentID, Version: version}, nil
}

// GetAgentSnapshot implements Store. version LatestVersion selects the
// newest snapshot.
func (s *MemoryStore) GetAgentSnapshot(ctx context.Context, agentID string, version int64) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snaps := s.snapshots[agentID]
	if len(snaps) == 0 {
		return nil, nil
	}
	var found *Snapshot
	if version == LatestVersion {
		found = snaps[len(snaps)-1]
	} else {
		for _, snap := range snaps {
			if snap.Version == version {
				found = snap
				break
			}
		}
	}
	if found == nil {
		return nil, nil
	}
	out := *found
	if found.Graph != nil {
		out.Graph = found.Graph.Clone()
	}
	return &out, nil
}

// GetAgentHistory implements Store, ascending by version.
func (s *MemoryStore) GetAgentHistory(ctx context.Context, agentID string) ([]HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snaps := s.snapshots[agentID]
	out := make([]HistoryEntry, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, HistoryEntry{
			Version:      snap.Version,
			Timestamp:    snap.Metadata.Timestamp,
			SourceFormat: snap.Metadata.SourceFormat,
		})
	}
	return out, nil
}

// ListAgents implements Store.
func (s *MemoryStore) ListAgents(ctx context.Context) ([]AgentSummary, error) {
	return s.DiscoverAgents(ctx, Criteria{})
}

// DiscoverAgents implements Store, matching criteria against each agent's
// latest snapshot.
func (s *MemoryStore) DiscoverAgents(ctx context.Context, criteria Criteria) ([]AgentSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []AgentSummary
	for _, snaps := range s.snapshots {
		latest := snaps[len(snaps)-1]
		if !matches(criteria, latest.Metadata.SourceFormat, latest.Graph) {
			continue
		}
		out = append(out, summaryFor(latest))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}

// RecordTranslation implements Store: unconditional append.
func (s *MemoryStore) RecordTranslation(ctx context.Context, activity Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities = append(s.activities, activity)
	return nil
}

// Activities implements Store. Empty agentID returns everything.
func (s *MemoryStore) Activities(ctx context.Context, agentID string) ([]Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Activity
	for _, a := range s.activities {
		if agentID == "" || a.AgentID == agentID {
			out = append(out, a)
		}
	}
	return out, nil
}

// Compact implements Store: prunes superseded snapshot bodies beyond the
// retention policy. History metadata stays; the activity log is never
// touched.
func (s *MemoryStore) Compact(ctx context.Context, policy CompactionPolicy) (int64, error) {
	if policy.KeepVersions < 1 {
		return 0, errors.New(errors.CodeInvalidInput, "compaction must keep at least one version", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var pruned int64
	for _, snaps := range s.snapshots {
		cutoff := len(snaps) - policy.KeepVersions
		for i := 0; i < cutoff; i++ {
			if snaps[i].Graph != nil {
				snaps[i].Graph = nil
				pruned++
			}
		}
	}
	return pruned, nil
}

// GetStats implements Store.
func (s *MemoryStore) GetStats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := Stats{ByFormat: make(map[string]int64)}
	stats.Agents = int64(len(s.snapshots))
	for _, snaps := range s.snapshots {
		stats.Snapshots += int64(len(snaps))
		stats.ByFormat[snaps[len(snaps)-1].Metadata.SourceFormat]++
	}
	stats.Activities = int64(len(s.activities))
	return stats, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
