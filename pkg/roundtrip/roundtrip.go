// Copyright 2026 © The Chrysalis Authors
// SPDX-License-Identifier: Apache-2.0

// Package roundtrip measures translation information loss by driving
// native payloads through adapters and diffing the canonical graphs.
// The cross-framework variant is the acceptance gate for admitting a
// new adapter pair.
package roundtrip

import (
	"context"
	"fmt"
	"time"

	"github.com/replicant-partners/chrysalis/pkg/adapter"
	"github.com/replicant-partners/chrysalis/pkg/fidelity"
)

// CaseResult is one harness run, shaped for CI report output. Failure
// is set only when fidelity fell below the threshold.
type CaseResult struct {
	Name        string        `json:"name"`
	Passed      bool          `json:"passed"`
	Fidelity    float64       `json:"fidelity"`
	Threshold   float64       `json:"threshold"`
	GraphsEqual bool          `json:"graphs_equal"`
	Duration    time.Duration `json:"duration_ms"`
	Failure     string        `json:"failure,omitempty"`
}

// RunTest round-trips a native sample through one adapter: native →
// canonical → native′ → canonical′. Both canonical graphs come from the
// same adapter's ToCanonical so the comparison is fair. The case passes
// when measured fidelity meets the threshold or the graphs are exactly
// equivalent.
func RunTest(ctx context.Context, a adapter.Adapter, sample adapter.Native, minFidelity float64) CaseResult {
	start := time.Now()
	res := CaseResult{Name: a.ProtocolID(), Threshold: minFidelity}

	forward, err := a.ToCanonical(ctx, sample, adapter.Options{})
	if err != nil {
		return res.failed(start, "forward transform: "+err.Error())
	}
	if !forward.Report.Success {
		return res.failed(start, "forward transform failed: "+firstError(forward.Report))
	}

	exported, err := a.FromCanonical(ctx, forward.Graph, adapter.Options{})
	if err != nil {
		return res.failed(start, "export: "+err.Error())
	}
	if !exported.Report.Success {
		return res.failed(start, "export failed: "+firstError(exported.Report))
	}

	again, err := a.ToCanonical(ctx, exported.Native, adapter.Options{})
	if err != nil {
		return res.failed(start, "re-import: "+err.Error())
	}
	if !again.Report.Success {
		return res.failed(start, "re-import failed: "+firstError(again.Report))
	}

	loss := fidelity.CalculateInformationLoss(forward.Graph, again.Graph)
	res.Fidelity = loss.OverallFidelity
	res.GraphsEqual = forward.Graph.Equal(again.Graph)
	res.Duration = time.Since(start)
	res.Passed = res.GraphsEqual || res.Fidelity >= minFidelity
	if !res.Passed {
		res.Failure = belowThreshold(res.Fidelity, minFidelity)
	}
	return res
}

// RunCrossFrameworkTest drives the four-stage chain source → canonical
// → target → canonical → source. Forward fidelity covers the first two
// stages and reverse fidelity the last two; their product must meet
// the threshold.
func RunCrossFrameworkTest(ctx context.Context, src adapter.Adapter, sample adapter.Native, dst adapter.Adapter, minFidelity float64) CaseResult {
	start := time.Now()
	res := CaseResult{Name: src.ProtocolID() + "->" + dst.ProtocolID(), Threshold: minFidelity}

	toCanonical, err := src.ToCanonical(ctx, sample, adapter.Options{})
	if err != nil || !toCanonical.Report.Success {
		return res.failed(start, "stage 1 (source import): "+stageError(err, toCanonical))
	}
	toTarget, err := dst.FromCanonical(ctx, toCanonical.Graph, adapter.Options{})
	if err != nil || !toTarget.Report.Success {
		return res.failed(start, "stage 2 (target export): "+stageNativeError(err, toTarget))
	}
	fromTarget, err := dst.ToCanonical(ctx, toTarget.Native, adapter.Options{})
	if err != nil || !fromTarget.Report.Success {
		return res.failed(start, "stage 3 (target import): "+stageError(err, fromTarget))
	}
	backToSource, err := src.FromCanonical(ctx, fromTarget.Graph, adapter.Options{})
	if err != nil || !backToSource.Report.Success {
		return res.failed(start, "stage 4 (source export): "+stageNativeError(err, backToSource))
	}

	forward := toCanonical.Report.FidelityScore * toTarget.Report.FidelityScore
	reverse := fromTarget.Report.FidelityScore * backToSource.Report.FidelityScore
	res.Fidelity = forward * reverse
	res.GraphsEqual = toCanonical.Graph.Equal(fromTarget.Graph)
	res.Duration = time.Since(start)
	res.Passed = res.GraphsEqual || res.Fidelity >= minFidelity
	if !res.Passed {
		res.Failure = belowThreshold(res.Fidelity, minFidelity)
	}
	return res
}

func (r CaseResult) failed(start time.Time, msg string) CaseResult {
	r.Duration = time.Since(start)
	r.Failure = msg
	return r
}

func firstError(report adapter.Report) string {
	if len(report.Errors) > 0 {
		return report.Errors[0]
	}
	return "no error detail"
}

func stageError(err error, res *adapter.TransformResult) string {
	if err != nil {
		return err.Error()
	}
	return firstError(res.Report)
}

func stageNativeError(err error, res *adapter.NativeResult) string {
	if err != nil {
		return err.Error()
	}
	return firstError(res.Report)
}

func belowThreshold(got, want float64) string {
	return fmt.Sprintf("fidelity %.4f below threshold %.4f", got, want)
}
