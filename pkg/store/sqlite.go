// Copyright 2026 © The Chrysalis Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/replicant-partners/chrysalis/pkg/canonical"
	"github.com/replicant-partners/chrysalis/pkg/errors"
	"github.com/replicant-partners/chrysalis/pkg/resilience"
)

// SQLiteStore is the durable store engine.
type SQLiteStore struct {
	db    *sql.DB
	retry resilience.RetryConfig

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// OpenSQLite opens (or creates) a SQLite-backed store at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.New(errors.CodeStoreError, "failed to open sqlite database", err)
	}
	return NewSQLiteStore(db)
}

// NewSQLiteStore wraps an existing database handle and ensures schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New(errors.CodeInvalidInput, "db is nil", nil)
	}
	if err := ensureSchema(db); err != nil {
		return nil, errors.New(errors.CodeStoreError, "failed to ensure schema", err)
	}
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 2
	retry.InitialDelay = 10 * time.Millisecond
	return &SQLiteStore{db: db, retry: retry, locks: make(map[string]*sync.Mutex)}, nil
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS agent_snapshots (
			agent_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			graph_json TEXT,
			source_format TEXT NOT NULL,
			fidelity REAL NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (agent_id, version)
		);
		CREATE TABLE IF NOT EXISTS translation_activities (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMP NOT NULL,
			agent_id TEXT NOT NULL,
			source_format TEXT NOT NULL,
			target_format TEXT NOT NULL,
			fidelity REAL NOT NULL,
			lost_fields_json TEXT,
			duration_ms INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_activities_agent ON translation_activities (agent_id, created_at);
	`)
	return err
}

func (s *SQLiteStore) writerLock(agentID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	l := s.locks[agentID]
	if l == nil {
		l = &sync.Mutex{}
		s.locks[agentID] = l
	}
	return l
}

// CreateAgentSnapshot implements Store. The insert runs inside a
// transaction with a fresh max-version lookup; a conflict with a
// concurrent writer (another process on the same file) is a recoverable
// STORE_ERROR and goes through the retry policy before surfacing.
func (s *SQLiteStore) CreateAgentSnapshot(ctx context.Context, agentID string, graph *canonical.Graph, meta Metadata) (Ref, error) {
	if agentID == "" {
		return Ref{}, errors.New(errors.CodeInvalidInput, "agent id is required", nil)
	}
	if graph == nil {
		return Ref{}, errors.New(errors.CodeInvalidInput, "graph is required", nil)
	}
	body, err := json.Marshal(graph)
	if err != nil {
		return Ref{}, errors.New(errors.CodeStoreError, "failed to encode graph", err)
	}

	lock := s.writerLock(agentID)
	lock.Lock()
	defer lock.Unlock()

	var ref Ref
	err = s.retry.Do(ctx, func() error {
		var insErr error
		ref, insErr = s.insertSnapshot(ctx, agentID, string(body), meta)
		return insErr
	})
	if err != nil {
		return Ref{}, errors.New(errors.CodeStoreError, "snapshot insert failed after retry", err).
			WithContext("agent_id", agentID)
	}
	return ref, nil
}

func (s *SQLiteStore) insertSnapshot(ctx context.Context, agentID, body string, meta Metadata) (Ref, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Ref{}, err
	}
	defer tx.Rollback()

	var version int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM agent_snapshots WHERE agent_id = ?`,
		agentID).Scan(&version)
	if err != nil {
		return Ref{}, err
	}

	ts := meta.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO agent_snapshots (agent_id, version, graph_json, source_format, fidelity, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, agentID, version, body, meta.SourceFormat, meta.Fidelity, ts)
	if err != nil {
		return Ref{}, err
	}
	if err := tx.Commit(); err != nil {
		return Ref{}, err
	}
	return Ref{AgentID: agentID, Version: version}, nil
}

// GetAgentSnapshot implements Store.
func (s *SQLiteStore) GetAgentSnapshot(ctx context.Context, agentID string, version int64) (*Snapshot, error) {
	query := `
		SELECT agent_id, version, graph_json, source_format, fidelity, created_at
		FROM agent_snapshots WHERE agent_id = ?`
	args := []any{agentID}
	if version == LatestVersion {
		query += ` ORDER BY version DESC LIMIT 1`
	} else {
		query += ` AND version = ?`
		args = append(args, version)
	}

	row := s.db.QueryRowContext(ctx, query, args...)
	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.New(errors.CodeStoreError, "snapshot lookup failed", err)
	}
	return snap, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*Snapshot, error) {
	var (
		snap Snapshot
		body sql.NullString
	)
	if err := row.Scan(&snap.AgentID, &snap.Version, &body, &snap.Metadata.SourceFormat,
		&snap.Metadata.Fidelity, &snap.Metadata.Timestamp); err != nil {
		return nil, err
	}
	if body.Valid && body.String != "" {
		g := canonical.NewGraph()
		if err := json.Unmarshal([]byte(body.String), g); err != nil {
			return nil, err
		}
		snap.Graph = g
	}
	return &snap, nil
}

// GetAgentHistory implements Store.
func (s *SQLiteStore) GetAgentHistory(ctx context.Context, agentID string) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT version, created_at, source_format FROM agent_snapshots
		WHERE agent_id = ? ORDER BY version ASC
	`, agentID)
	if err != nil {
		return nil, errors.New(errors.CodeStoreError, "history lookup failed", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var entry HistoryEntry
		if err := rows.Scan(&entry.Version, &entry.Timestamp, &entry.SourceFormat); err != nil {
			return nil, errors.New(errors.CodeStoreError, "history scan failed", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// ListAgents implements Store.
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]AgentSummary, error) {
	return s.DiscoverAgents(ctx, Criteria{})
}

// DiscoverAgents implements Store. Criteria that require graph contents
// decode each agent's latest snapshot; protocol filtering happens in SQL.
func (s *SQLiteStore) DiscoverAgents(ctx context.Context, criteria Criteria) ([]AgentSummary, error) {
	query := `
		SELECT s.agent_id, s.version, s.graph_json, s.source_format, s.fidelity, s.created_at
		FROM agent_snapshots s
		JOIN (SELECT agent_id, MAX(version) AS v FROM agent_snapshots GROUP BY agent_id) latest
		ON s.agent_id = latest.agent_id AND s.version = latest.v`
	var args []any
	if criteria.Protocol != "" {
		query += ` WHERE s.source_format = ?`
		args = append(args, criteria.Protocol)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.New(errors.CodeStoreError, "discovery query failed", err)
	}
	defer rows.Close()

	var out []AgentSummary
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, errors.New(errors.CodeStoreError, "discovery scan failed", err)
		}
		if !matches(criteria, snap.Metadata.SourceFormat, snap.Graph) {
			continue
		}
		out = append(out, summaryFor(snap))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.CodeStoreError, "discovery iteration failed", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}

// RecordTranslation implements Store: unconditional append.
func (s *SQLiteStore) RecordTranslation(ctx context.Context, activity Activity) error {
	lost, err := json.Marshal(activity.LostFields)
	if err != nil {
		return errors.New(errors.CodeStoreError, "failed to encode lost fields", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO translation_activities
			(id, created_at, agent_id, source_format, target_format, fidelity, lost_fields_json, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		activity.ID,
		activity.Timestamp,
		activity.AgentID,
		activity.SourceFormat,
		activity.TargetFormat,
		activity.FidelityScore,
		string(lost),
		activity.Duration.Milliseconds(),
	)
	if err != nil {
		return errors.New(errors.CodeStoreError, "activity insert failed", err)
	}
	return nil
}

// Activities implements Store. Empty agentID returns everything,
// ascending by time.
func (s *SQLiteStore) Activities(ctx context.Context, agentID string) ([]Activity, error) {
	query := `
		SELECT id, created_at, agent_id, source_format, target_format, fidelity, lost_fields_json, duration_ms
		FROM translation_activities`
	var args []any
	if agentID != "" {
		query += ` WHERE agent_id = ?`
		args = append(args, agentID)
	}
	query += ` ORDER BY created_at ASC, rowid ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.New(errors.CodeStoreError, "activity query failed", err)
	}
	defer rows.Close()

	var out []Activity
	for rows.Next() {
		var (
			a        Activity
			lostJSON sql.NullString
			millis   int64
		)
		if err := rows.Scan(&a.ID, &a.Timestamp, &a.AgentID, &a.SourceFormat,
			&a.TargetFormat, &a.FidelityScore, &lostJSON, &millis); err != nil {
			return nil, errors.New(errors.CodeStoreError, "activity scan failed", err)
		}
		if lostJSON.Valid && lostJSON.String != "" {
			if err := json.Unmarshal([]byte(lostJSON.String), &a.LostFields); err != nil {
				return nil, errors.New(errors.CodeStoreError, "lost fields decode failed", err)
			}
		}
		a.Duration = time.Duration(millis) * time.Millisecond
		out = append(out, a)
	}
	return out, rows.Err()
}

// Compact implements Store: clears snapshot bodies older than the
// retention window. Rows stay so history remains complete; the activity
// log is never pruned.
func (s *SQLiteStore) Compact(ctx context.Context, policy CompactionPolicy) (int64, error) {
	if policy.KeepVersions < 1 {
		return 0, errors.New(errors.CodeInvalidInput, "compaction must keep at least one version", nil)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE agent_snapshots SET graph_json = NULL
		WHERE graph_json IS NOT NULL AND version <= (
			SELECT MAX(version) - ? FROM agent_snapshots inner_s
			WHERE inner_s.agent_id = agent_snapshots.agent_id
		)
	`, policy.KeepVersions)
	if err != nil {
		return 0, errors.New(errors.CodeStoreError, "compaction failed", err)
	}
	pruned, err := res.RowsAffected()
	if err != nil {
		return 0, errors.New(errors.CodeStoreError, "compaction row count unavailable", err)
	}
	return pruned, nil
}

// GetStats implements Store.
func (s *SQLiteStore) GetStats(ctx context.Context) (Stats, error) {
	stats := Stats{ByFormat: make(map[string]int64)}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT agent_id), COUNT(*) FROM agent_snapshots`).
		Scan(&stats.Agents, &stats.Snapshots)
	if err != nil {
		return Stats{}, errors.New(errors.CodeStoreError, "stats query failed", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM translation_activities`).Scan(&stats.Activities); err != nil {
		return Stats{}, errors.New(errors.CodeStoreError, "stats query failed", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.source_format, COUNT(*)
		FROM agent_snapshots s
		JOIN (SELECT agent_id, MAX(version) AS v FROM agent_snapshots GROUP BY agent_id) latest
		ON s.agent_id = latest.agent_id AND s.version = latest.v
		GROUP BY s.source_format
	`)
	if err != nil {
		return Stats{}, errors.New(errors.CodeStoreError, "stats query failed", err)
	}
	defer rows.Close()
	for rows.Next() {
		var format string
		var count int64
		if err := rows.Scan(&format, &count); err != nil {
			return Stats{}, errors.New(errors.CodeStoreError, "stats scan failed", err)
		}
		stats.ByFormat[format] = count
	}
	return stats, rows.Err()
}

// Close implements Store.
func (s *SQLiteStore) Close() error { return s.db.Close() }
