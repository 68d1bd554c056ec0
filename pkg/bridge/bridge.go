// Copyright 2026 © The Chrysalis Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge hosts the translation orchestrator: it resolves
// adapters from the registry, runs the forward and reverse transforms,
// persists versioned snapshots, and keeps the audit trail. Orchestrator
// instances own injected collaborators and share no package state, so a
// host process can run several isolated instances side by side.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/replicant-partners/chrysalis/pkg/adapter"
	"github.com/replicant-partners/chrysalis/pkg/cache"
	"github.com/replicant-partners/chrysalis/pkg/errors"
	"github.com/replicant-partners/chrysalis/pkg/registry"
	"github.com/replicant-partners/chrysalis/pkg/resilience"
	"github.com/replicant-partners/chrysalis/pkg/store"
	"github.com/replicant-partners/chrysalis/pkg/telemetry"
)

// Options tunes a single translation.
type Options struct {
	// UseCache enables the response cache for this request. Cache hits
	// skip both adapters entirely.
	UseCache bool

	// Persist writes the canonical graph as a new snapshot version.
	Persist bool

	// MaxFidelityLoss, when > 0, rejects translations whose forward
	// fidelity falls below 1 - MaxFidelityLoss before anything is
	// persisted. Zero disables the gate.
	MaxFidelityLoss float64

	// Timeout bounds each adapter transform. Zero means no boundary.
	Timeout time.Duration
}

// Request is one translation request. AgentID is optional for anonymous
// translations; without it, caching is skipped and the id is taken from
// the source adapter's identity mapping.
type Request struct {
	AgentID      string
	SourceFormat string
	TargetFormat string
	SourceData   []byte
	Options      Options
}

// Response is the translation outcome. Data-quality failures come back
// with Success=false and populated Errors; Go errors are reserved for
// malformed requests and adapter/store unavailability.
type Response struct {
	Success       bool           `json:"success"`
	AgentID       string         `json:"agent_id,omitempty"`
	Version       int64          `json:"version,omitempty"`
	Native        adapter.Native `json:"native"`
	ForwardReport adapter.Report `json:"forward_report"`
	ReverseReport adapter.Report `json:"reverse_report"`
	TotalFidelity float64        `json:"total_fidelity"`
	Cached        bool           `json:"cached"`
	Warnings      []string       `json:"warnings,omitempty"`
	Errors        []string       `json:"errors,omitempty"`
	Duration      time.Duration  `json:"duration_ms"`
}

// Orchestrator coordinates adapters, store, and cache for translations.
type Orchestrator struct {
	registry *registry.Registry
	store    store.Store
	cache    *cache.Cache
	tracer   trace.Tracer
	log      *slog.Logger
	now      func() time.Time
}

// New builds an orchestrator over the given collaborators. The cache is
// optional; a nil cache disables caching regardless of request options.
func New(reg *registry.Registry, st store.Store, c *cache.Cache) *Orchestrator {
	initBridgeMetrics()
	return &Orchestrator{
		registry: reg,
		store:    st,
		cache:    c,
		tracer:   otel.Tracer("chrysalis/bridge"),
		log:      slog.Default(),
		now:      time.Now,
	}
}

// Translate runs one source-to-target translation.
func (o *Orchestrator) Translate(ctx context.Context, req Request) (*Response, error) {
	ctx, span := o.tracer.Start(ctx, "bridge.Translate",
		trace.WithAttributes(telemetry.TranslationAttributes(req.AgentID, req.SourceFormat, req.TargetFormat)...))
	defer span.End()
	start := o.now()

	if req.SourceFormat == "" || req.TargetFormat == "" {
		return nil, errors.New(errors.CodeInvalidInput, "source and target formats are required", nil)
	}
	if len(req.SourceData) == 0 {
		return nil, errors.New(errors.CodeInvalidInput, "source data is empty", nil)
	}

	src := o.registry.GetAdapter(req.SourceFormat)
	if src == nil {
		translateErrors.Add(ctx, 1, metric.WithAttributes(telemetry.ErrorAttributes(string(errors.CodeAdapterNotFound))...))
		return nil, errors.New(errors.CodeAdapterNotFound, "no adapter for source format", nil).
			WithContext("protocol", req.SourceFormat)
	}
	dst := o.registry.GetAdapter(req.TargetFormat)
	if dst == nil {
		translateErrors.Add(ctx, 1, metric.WithAttributes(telemetry.ErrorAttributes(string(errors.CodeAdapterNotFound))...))
		return nil, errors.New(errors.CodeAdapterNotFound, "no adapter for target format", nil).
			WithContext("protocol", req.TargetFormat)
	}

	key := cache.Key{AgentID: req.AgentID, SourceFormat: req.SourceFormat, TargetFormat: req.TargetFormat}
	if req.Options.UseCache && req.AgentID != "" && o.cache != nil {
		if cached, ok := o.cache.Get(key); ok {
			if resp, ok := cached.(*Response); ok {
				cacheHitCounter.Add(ctx, 1)
				span.SetAttributes(attribute.Bool(telemetry.AttrCacheHit, true))
				hit := *resp
				hit.Cached = true
				return &hit, nil
			}
		}
	}

	translateCounter.Add(ctx, 1)
	adapterOpts := adapter.Options{Timeout: req.Options.Timeout}

	forward, err := resilience.WithTimeoutResult(ctx, req.Options.Timeout,
		func(ctx context.Context) (*adapter.TransformResult, error) {
			return src.ToCanonical(ctx, adapter.Native{Protocol: req.SourceFormat, Data: req.SourceData}, adapterOpts)
		})
	if err != nil {
		if errors.CodeOf(err) == errors.CodeTimeout {
			return nil, err
		}
		resp := o.failed(req, adapter.FailedReport(err.Error()), adapter.Report{}, start)
		o.recordActivity(ctx, req, resp)
		return resp, nil
	}
	if !forward.Report.Success {
		resp := o.failed(req, forward.Report, adapter.Report{}, start)
		o.recordActivity(ctx, req, resp)
		return resp, nil
	}

	agentID := req.AgentID
	if agentID == "" {
		agentID = forward.AgentID
	}
	span.SetAttributes(attribute.Float64(telemetry.AttrForwardFidelity, forward.Report.FidelityScore))

	if limit := req.Options.MaxFidelityLoss; limit > 0 && forward.Report.FidelityScore < 1-limit {
		resp := o.failed(req, forward.Report, adapter.Report{}, start)
		resp.AgentID = agentID
		resp.Errors = append(resp.Errors, fmt.Sprintf("%s: forward fidelity %.4f below required %.4f",
			errors.CodeFidelityThreshold, forward.Report.FidelityScore, 1-limit))
		o.recordActivity(ctx, req, resp)
		return resp, nil
	}

	var version int64
	if req.Options.Persist {
		ref, err := o.store.CreateAgentSnapshot(ctx, agentID, forward.Graph, store.Metadata{
			Timestamp:    o.now(),
			SourceFormat: req.SourceFormat,
			Fidelity:     forward.Report.FidelityScore,
		})
		if err != nil {
			translateErrors.Add(ctx, 1, metric.WithAttributes(telemetry.ErrorAttributes(string(errors.CodeOf(err)))...))
			return nil, err
		}
		version = ref.Version
		if o.cache != nil {
			o.cache.Invalidate(agentID)
		}
	}

	reverse, err := resilience.WithTimeoutResult(ctx, req.Options.Timeout,
		func(ctx context.Context) (*adapter.NativeResult, error) {
			return dst.FromCanonical(ctx, forward.Graph, adapterOpts)
		})
	if err != nil {
		if errors.CodeOf(err) == errors.CodeTimeout {
			return nil, err
		}
		resp := o.failed(req, forward.Report, adapter.FailedReport(err.Error()), start)
		resp.AgentID = agentID
		resp.Version = version
		o.recordActivity(ctx, req, resp)
		return resp, nil
	}

	resp := &Response{
		Success:       reverse.Report.Success,
		AgentID:       agentID,
		Version:       version,
		Native:        reverse.Native,
		ForwardReport: forward.Report,
		ReverseReport: reverse.Report,
		TotalFidelity: forward.Report.FidelityScore * reverse.Report.FidelityScore,
		Warnings:      collectWarnings(forward.Report, reverse.Report),
		Errors:        collectErrors(forward.Report, reverse.Report),
		Duration:      o.now().Sub(start),
	}
	span.SetAttributes(telemetry.FidelityAttributes(
		forward.Report.FidelityScore, reverse.Report.FidelityScore, resp.TotalFidelity)...)
	fidelityHistogram.Record(ctx, resp.TotalFidelity)
	translateLatencyMs.Record(ctx, float64(resp.Duration)/float64(time.Millisecond))

	o.recordActivity(ctx, req, resp)
	if resp.Success {
		o.registry.RecordUsage(req.SourceFormat, forward.Report.FidelityScore)
		o.registry.RecordUsage(req.TargetFormat, reverse.Report.FidelityScore)
	}

	if req.Options.UseCache && agentID != "" && o.cache != nil && resp.Success {
		stored := *resp
		o.cache.Set(cache.Key{AgentID: agentID, SourceFormat: req.SourceFormat, TargetFormat: req.TargetFormat}, &stored, 0)
	}
	return resp, nil
}

// TranslateFromStore re-exports a persisted snapshot through the target
// adapter without a native source. version 0 requests the latest.
func (o *Orchestrator) TranslateFromStore(ctx context.Context, agentID, targetFormat string, version int64) (*Response, error) {
	ctx, span := o.tracer.Start(ctx, "bridge.TranslateFromStore", trace.WithAttributes(
		attribute.String(telemetry.AttrAgentID, agentID),
		attribute.String(telemetry.AttrTargetFormat, targetFormat),
		attribute.Int64(telemetry.AttrSnapshotVersion, version),
	))
	defer span.End()
	start := o.now()

	dst := o.registry.GetAdapter(targetFormat)
	if dst == nil {
		return nil, errors.New(errors.CodeAdapterNotFound, "no adapter for target format", nil).
			WithContext("protocol", targetFormat)
	}
	snap, err := o.store.GetAgentSnapshot(ctx, agentID, version)
	if err != nil {
		return nil, err
	}
	if snap == nil || snap.Graph == nil {
		return nil, errors.New(errors.CodeNotFound, "agent snapshot not found", nil).
			WithContext("agent_id", agentID).
			WithContext("version", version)
	}

	reverse, err := dst.FromCanonical(ctx, snap.Graph, adapter.Options{})
	if err != nil {
		resp := &Response{
			Success:       false,
			AgentID:       agentID,
			Version:       snap.Version,
			ReverseReport: adapter.FailedReport(err.Error()),
			Errors:        []string{err.Error()},
			Duration:      o.now().Sub(start),
		}
		return resp, nil
	}
	return &Response{
		Success:       reverse.Report.Success,
		AgentID:       agentID,
		Version:       snap.Version,
		Native:        reverse.Native,
		ReverseReport: reverse.Report,
		TotalFidelity: reverse.Report.FidelityScore,
		Warnings:      reverse.Report.Warnings,
		Errors:        reverse.Report.Errors,
		Duration:      o.now().Sub(start),
	}, nil
}

// ChainResult is the outcome of TranslateChain.
type ChainResult struct {
	Success            bool           `json:"success"`
	AgentID            string         `json:"agent_id,omitempty"`
	Version            int64          `json:"version,omitempty"`
	Native             adapter.Native `json:"native"`
	CumulativeFidelity float64        `json:"cumulative_fidelity"`
	Hops               []*Response    `json:"hops"`
	Warnings           []string       `json:"warnings,omitempty"`
	Errors             []string       `json:"errors,omitempty"`
	Duration           time.Duration  `json:"duration_ms"`
}

// TranslateChain translates through a sequence of formats, each hop's
// native output feeding the next hop's input. Cumulative fidelity is the
// product of per-hop total fidelities. Persistence, when requested,
// applies only to the final hop; a hop failure aborts the chain and
// surfaces everything accumulated so far.
func (o *Orchestrator) TranslateChain(ctx context.Context, agentID string, sourceData []byte, formats []string, opts Options) (*ChainResult, error) {
	if len(formats) < 2 {
		return nil, errors.New(errors.CodeInvalidInput, "chain needs at least two formats", nil)
	}
	ctx, span := o.tracer.Start(ctx, "bridge.TranslateChain", trace.WithAttributes(
		attribute.Int(telemetry.AttrChainHops, len(formats)-1),
	))
	defer span.End()
	start := o.now()

	result := &ChainResult{CumulativeFidelity: 1.0, AgentID: agentID}
	data := sourceData
	for i := 0; i+1 < len(formats); i++ {
		hopOpts := opts
		hopOpts.Persist = opts.Persist && i+2 == len(formats)
		resp, err := o.Translate(ctx, Request{
			AgentID:      agentID,
			SourceFormat: formats[i],
			TargetFormat: formats[i+1],
			SourceData:   data,
			Options:      hopOpts,
		})
		if err != nil {
			result.Duration = o.now().Sub(start)
			return result, err
		}
		result.Hops = append(result.Hops, resp)
		result.Warnings = append(result.Warnings, resp.Warnings...)
		result.Errors = append(result.Errors, resp.Errors...)
		if !resp.Success {
			result.Duration = o.now().Sub(start)
			return result, nil
		}
		result.CumulativeFidelity *= resp.TotalFidelity
		if result.AgentID == "" {
			result.AgentID = resp.AgentID
		}
		result.Version = resp.Version
		result.Native = resp.Native
		data = resp.Native.Data
	}
	result.Success = true
	result.Duration = o.now().Sub(start)
	span.SetAttributes(attribute.Float64(telemetry.AttrTotalFidelity, result.CumulativeFidelity))
	return result, nil
}

// failed builds a data-quality failure response.
func (o *Orchestrator) failed(req Request, fwd, rev adapter.Report, start time.Time) *Response {
	return &Response{
		Success:       false,
		AgentID:       req.AgentID,
		ForwardReport: fwd,
		ReverseReport: rev,
		Warnings:      collectWarnings(fwd, rev),
		Errors:        collectErrors(fwd, rev),
		Duration:      o.now().Sub(start),
	}
}

// recordActivity appends the audit record. Audit failures are logged,
// never surfaced: the translation outcome already happened.
func (o *Orchestrator) recordActivity(ctx context.Context, req Request, resp *Response) {
	activity := store.Activity{
		ID:            uuid.NewString(),
		Timestamp:     o.now(),
		AgentID:       resp.AgentID,
		SourceFormat:  req.SourceFormat,
		TargetFormat:  req.TargetFormat,
		FidelityScore: resp.TotalFidelity,
		LostFields:    lostFields(resp.ForwardReport, resp.ReverseReport),
		Duration:      resp.Duration,
	}
	if err := o.store.RecordTranslation(ctx, activity); err != nil {
		o.log.Warn("translation audit record dropped",
			slog.String("agent_id", resp.AgentID),
			slog.String("source_format", req.SourceFormat),
			slog.String("target_format", req.TargetFormat),
			slog.String("error", err.Error()),
		)
	}
}

func lostFields(reports ...adapter.Report) []string {
	var out []string
	for _, r := range reports {
		for _, l := range r.LossyMappings {
			out = append(out, l.Field)
		}
		for _, l := range r.UnmappedFields {
			out = append(out, l.Field)
		}
	}
	return out
}

func collectWarnings(reports ...adapter.Report) []string {
	var out []string
	for _, r := range reports {
		out = append(out, r.Warnings...)
	}
	return out
}

func collectErrors(reports ...adapter.Report) []string {
	var out []string
	for _, r := range reports {
		out = append(out, r.Errors...)
	}
	return out
}
