// Copyright 2026 © The Chrysalis Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/replicant-partners/chrysalis/pkg/errors"
	"github.com/replicant-partners/chrysalis/pkg/telemetry"
)

// MigrationJob re-exports a set of stored agents to a target format.
type MigrationJob struct {
	AgentIDs     []string
	TargetFormat string

	// Workers bounds concurrent per-agent translations. Defaults to 4.
	Workers int
}

// AgentOutcome is one agent's migration result.
type AgentOutcome struct {
	AgentID  string    `json:"agent_id"`
	Response *Response `json:"response,omitempty"`
	Err      string    `json:"error,omitempty"`
}

// MigrationResult summarizes a batch job.
type MigrationResult struct {
	Completed int            `json:"completed"`
	Failed    int            `json:"failed"`
	Canceled  bool           `json:"canceled"`
	Outcomes  []AgentOutcome `json:"outcomes"`
	Duration  time.Duration  `json:"duration_ms"`
}

// RunMigration translates every agent in the job through
// TranslateFromStore with bounded concurrency. Cancellation is
// cooperative: it is checked before each agent is dispatched, and an
// in-flight translation always runs to completion so cache and store
// state stay consistent.
func (o *Orchestrator) RunMigration(ctx context.Context, job MigrationJob) (*MigrationResult, error) {
	if job.TargetFormat == "" {
		return nil, errors.New(errors.CodeInvalidInput, "migration needs a target format", nil)
	}
	if o.registry.GetAdapter(job.TargetFormat) == nil {
		return nil, errors.New(errors.CodeAdapterNotFound, "no adapter for target format", nil).
			WithContext("protocol", job.TargetFormat)
	}
	workers := job.Workers
	if workers <= 0 {
		workers = 4
	}

	ctx, span := o.tracer.Start(ctx, "bridge.RunMigration",
		trace.WithAttributes(telemetry.MigrationAttributes(job.TargetFormat, len(job.AgentIDs), workers)...))
	defer span.End()
	start := o.now()

	result := &MigrationResult{Outcomes: make([]AgentOutcome, len(job.AgentIDs))}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

dispatch:
	for i, agentID := range job.AgentIDs {
		// Cancellation is observed between agents, never mid-translation.
		select {
		case <-ctx.Done():
			result.Canceled = true
			break dispatch
		default:
		}
		select {
		case <-ctx.Done():
			result.Canceled = true
			break dispatch
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int, agentID string) {
			defer wg.Done()
			defer func() { <-sem }()

			// The per-agent translation runs detached from the job
			// context so cancellation never aborts it mid-flight.
			resp, err := o.TranslateFromStore(context.WithoutCancel(ctx), agentID, job.TargetFormat, 0)
			outcome := AgentOutcome{AgentID: agentID, Response: resp}
			if err != nil {
				outcome.Err = err.Error()
			}
			result.Outcomes[i] = outcome
		}(i, agentID)
	}
	wg.Wait()

	for _, out := range result.Outcomes {
		switch {
		case out.AgentID == "":
			// Slot never dispatched before cancellation.
		case out.Err == "" && out.Response != nil && out.Response.Success:
			result.Completed++
		default:
			result.Failed++
		}
	}
	result.Duration = o.now().Sub(start)
	span.SetAttributes(
		attribute.Int("completed", result.Completed),
		attribute.Int("failed", result.Failed),
		attribute.Bool("canceled", result.Canceled),
	)
	if result.Canceled {
		o.log.Warn("migration canceled",
			slog.String("target_format", job.TargetFormat),
			slog.Int("completed", result.Completed),
			slog.Int("failed", result.Failed),
		)
	}
	return result, nil
}
