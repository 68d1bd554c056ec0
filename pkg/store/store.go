// Copyright 2026 © The Chrysalis Authors
// SPDX-License-Identifier: Apache-2.0

// Package store persists versioned canonical graphs per agent plus an
// immutable translation-activity log.
//
// Snapshots are append-only: a change to an agent always creates a new
// version; versions are strictly increasing integers starting at 1 with
// no gaps, even under concurrent writers. Activity records are appended
// on every translation attempt and are never pruned; snapshot bodies may
// be pruned only through the explicit, opt-in Compact policy.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/replicant-partners/chrysalis/pkg/canonical"
)

// Metadata rides along with a snapshot.
type Metadata struct {
	Timestamp    time.Time `json:"timestamp"`
	SourceFormat string    `json:"source_format"`
	Fidelity     float64   `json:"fidelity"`
}

// Snapshot is an immutable versioned canonical graph for one agent.
// Graph is nil when the body has been compacted away.
type Snapshot struct {
	AgentID  string           `json:"agent_id"`
	Version  int64            `json:"version"`
	Graph    *canonical.Graph `json:"graph,omitempty"`
	Metadata Metadata         `json:"metadata"`
}

// Ref identifies a created snapshot.
type Ref struct {
	AgentID string `json:"agent_id"`
	Version int64  `json:"version"`
}

// HistoryEntry is one row of an agent's version history.
type HistoryEntry struct {
	Version      int64     `json:"version"`
	Timestamp    time.Time `json:"timestamp"`
	SourceFormat string    `json:"source_format"`
}

// Activity is the immutable audit record appended on every translation
// attempt, success or failure.
type Activity struct {
	ID            string        `json:"id"`
	Timestamp     time.Time     `json:"timestamp"`
	AgentID       string        `json:"agent_id"`
	SourceFormat  string        `json:"source_format"`
	TargetFormat  string        `json:"target_format"`
	FidelityScore float64       `json:"fidelity_score"`
	LostFields    []string      `json:"lost_fields"`
	Duration      time.Duration `json:"duration_ms"`
}

// Criteria filters agent discovery. Empty fields match everything.
type Criteria struct {
	Capability string `json:"capability,omitempty"`
	Protocol   string `json:"protocol,omitempty"`
	TextQuery  string `json:"text_query,omitempty"`
}

// AgentSummary is the discovery result row.
type AgentSummary struct {
	AgentID       string    `json:"agent_id"`
	Name          string    `json:"name,omitempty"`
	LatestVersion int64     `json:"latest_version"`
	SourceFormat  string    `json:"source_format"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Stats summarizes store contents.
type Stats struct {
	Agents     int64            `json:"agents"`
	Snapshots  int64            `json:"snapshots"`
	Activities int64            `json:"activities"`
	ByFormat   map[string]int64 `json:"by_format"`
}

// CompactionPolicy controls Compact. KeepVersions is the number of most
// recent snapshot bodies retained per agent; history metadata and the
// activity log are always kept.
type CompactionPolicy struct {
	KeepVersions int
}

// Store is the canonical store contract. Writes to a given agent id are
// serialized by the implementation so concurrent importers never collide
// on version numbers; reads always observe fully committed snapshots.
//
// Lookup methods return (nil, nil) when the requested agent or version
// does not exist; errors are reserved for storage failures.
type Store interface {
	CreateAgentSnapshot(ctx context.Context, agentID string, graph *canonical.Graph, meta Metadata) (Ref, error)
	GetAgentSnapshot(ctx context.Context, agentID string, version int64) (*Snapshot, error)
	GetAgentHistory(ctx context.Context, agentID string) ([]HistoryEntry, error)
	ListAgents(ctx context.Context) ([]AgentSummary, error)
	DiscoverAgents(ctx context.Context, criteria Criteria) ([]AgentSummary, error)
	RecordTranslation(ctx context.Context, activity Activity) error
	Activities(ctx context.Context, agentID string) ([]Activity, error)
	Compact(ctx context.Context, policy CompactionPolicy) (int64, error)
	GetStats(ctx context.Context) (Stats, error)
	Close() error
}

// LatestVersion requests the newest snapshot in GetAgentSnapshot.
const LatestVersion int64 = 0

// matches implements the shared discovery predicate over a decoded graph.
func matches(criteria Criteria, sourceFormat string, graph *canonical.Graph) bool {
	if criteria.Protocol != "" && criteria.Protocol != sourceFormat {
		return false
	}
	if graph == nil {
		return criteria.Capability == "" && criteria.TextQuery == ""
	}
	if criteria.Capability != "" {
		found := false
		for _, t := range graph.ByPredicate(canonical.PredicateToolName) {
			if t.Object.String() == criteria.Capability {
				found = true
				break
			}
		}
		if !found {
			for _, t := range graph.ByPredicate(canonical.PredicateFeature) {
				if t.Object.String() == criteria.Capability {
					found = true
					break
				}
			}
		}
		if !found {
			return false
		}
	}
	if criteria.TextQuery != "" {
		query := strings.ToLower(criteria.TextQuery)
		found := false
		graph.Range(func(t canonical.Triple) bool {
			if !t.Object.IsNode() && strings.Contains(strings.ToLower(t.Object.String()), query) {
				found = true
				return false
			}
			return true
		})
		if !found {
			return false
		}
	}
	return true
}

// summaryFor extracts the discovery row fields from a snapshot.
func summaryFor(snap *Snapshot) AgentSummary {
	summary := AgentSummary{
		AgentID:       snap.AgentID,
		LatestVersion: snap.Version,
		SourceFormat:  snap.Metadata.SourceFormat,
		UpdatedAt:     snap.Metadata.Timestamp,
	}
	if snap.Graph != nil {
		if agent, err := snap.Graph.AgentNode(); err == nil {
			if name, ok := snap.Graph.LiteralOf(agent, canonical.PredicateName); ok {
				summary.Name = name
			}
		}
	}
	return summary
}
