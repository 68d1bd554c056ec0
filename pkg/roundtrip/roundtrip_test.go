// Copyright 2026 © The Chrysalis Authors
// SPDX-License-Identifier: Apache-2.0

package roundtrip

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/replicant-partners/chrysalis/pkg/adapter"
	"github.com/replicant-partners/chrysalis/pkg/adapter/rolegoal"
	"github.com/replicant-partners/chrysalis/pkg/adapter/toolcall"
)

var toolcallSample = adapter.Native{
	Protocol: "toolcall",
	Data: []byte(`{
		"name": "Ada",
		"description": "research agent",
		"instructions": "Answer with citations.",
		"model": "gpt-4o",
		"tools": [
			{"name": "search", "description": "web search", "parameters": {"type": "object", "properties": {"q": {"type": "string"}}}}
		]
	}`),
}

var rolegoalSample = adapter.Native{
	Protocol: "rolegoal",
	Data: []byte(`name: Ada
role: Researcher
goal: Find reliable sources
backstory: Veteran librarian
tools:
  - search
memory: true
verbose: false
`),
}

func TestRunTestToolcallRoundTrip(t *testing.T) {
	res := RunTest(context.Background(), toolcall.New(), toolcallSample, 0.95)
	if !res.Passed {
		t.Fatalf("round trip failed: fidelity=%v equal=%v failure=%q", res.Fidelity, res.GraphsEqual, res.Failure)
	}
	if res.Fidelity < 0.95 && !res.GraphsEqual {
		t.Fatalf("fidelity = %v, want >= 0.95 or exact graph equality", res.Fidelity)
	}
}

func TestRunTestRolegoalRoundTrip(t *testing.T) {
	res := RunTest(context.Background(), rolegoal.New(), rolegoalSample, 0.95)
	if !res.Passed {
		t.Fatalf("round trip failed: fidelity=%v equal=%v failure=%q", res.Fidelity, res.GraphsEqual, res.Failure)
	}
}

func TestRunTestMalformedSample(t *testing.T) {
	res := RunTest(context.Background(), toolcall.New(), adapter.Native{
		Protocol: "toolcall",
		Data:     []byte(`{"description": "anonymous"}`),
	}, 0.9)
	if res.Passed {
		t.Fatal("sample without a name must fail")
	}
	if res.Failure == "" {
		t.Fatal("failure message missing")
	}
}

func TestRunCrossFrameworkTest(t *testing.T) {
	res := RunCrossFrameworkTest(context.Background(), toolcall.New(), toolcallSample, rolegoal.New(), 0.4)
	if !res.Passed {
		t.Fatalf("cross-framework pair failed: fidelity=%v failure=%q", res.Fidelity, res.Failure)
	}
	// Tool schemas do not survive the rolegoal leg, so the pair cannot
	// claim near-perfect fidelity.
	strict := RunCrossFrameworkTest(context.Background(), toolcall.New(), toolcallSample, rolegoal.New(), 0.999)
	if strict.Passed && !strict.GraphsEqual {
		t.Fatalf("lossy pair passed a 0.999 threshold: fidelity=%v", strict.Fidelity)
	}
	if !strict.Passed && !strings.Contains(strict.Failure, "below threshold") {
		t.Fatalf("failure = %q, want threshold message", strict.Failure)
	}
}

func TestRunSuiteAggregates(t *testing.T) {
	suite := RunSuite(context.Background(), []Case{
		{Name: "toolcall", Source: toolcall.New(), Sample: toolcallSample, MinFidelity: 0.95},
		{Name: "rolegoal", Source: rolegoal.New(), Sample: rolegoalSample, MinFidelity: 0.95},
		{Name: "broken", Source: toolcall.New(), Sample: adapter.Native{Protocol: "toolcall", Data: []byte(`{}`)}, MinFidelity: 0.9},
	})
	if suite.Passed != 2 || suite.Failed != 1 {
		t.Fatalf("passed=%d failed=%d, want 2/1", suite.Passed, suite.Failed)
	}
	if suite.MeanFidelity <= 0 || suite.MeanFidelity > 1 {
		t.Fatalf("mean fidelity = %v out of range", suite.MeanFidelity)
	}
	if len(suite.Cases) != 3 {
		t.Fatalf("cases = %d, want 3", len(suite.Cases))
	}
}

func TestCheckBaseline(t *testing.T) {
	suite := SuiteResult{
		Passed:       2,
		MeanFidelity: 0.90,
		Cases: []CaseResult{
			{Name: "a", Passed: true, Fidelity: 0.95},
			{Name: "b", Passed: true, Fidelity: 0.85},
		},
	}
	baseline := Baseline{MeanFidelity: 0.90, Cases: map[string]float64{"a": 0.95, "b": 0.85}}
	if err := CheckBaseline(suite, baseline, 0.01); err != nil {
		t.Fatalf("stable suite flagged: %v", err)
	}

	regressed := suite
	regressed.Cases = []CaseResult{
		{Name: "a", Passed: true, Fidelity: 0.95},
		{Name: "b", Passed: true, Fidelity: 0.70},
	}
	regressed.MeanFidelity = 0.825
	err := CheckBaseline(regressed, baseline, 0.01)
	if err == nil {
		t.Fatal("regression not flagged")
	}
	if !strings.Contains(err.Error(), "case b") {
		t.Fatalf("error = %v, want case b regression", err)
	}

	failing := suite
	failing.Cases = []CaseResult{{Name: "a", Passed: false, Failure: "fidelity 0.5000 below threshold 0.9000"}}
	if err := CheckBaseline(failing, baseline, 0.01); err == nil {
		t.Fatal("failed case not flagged")
	}
}

func TestReportArtifacts(t *testing.T) {
	dir := t.TempDir()
	suite := RunSuite(context.Background(), []Case{
		{Name: "toolcall", Source: toolcall.New(), Sample: toolcallSample, MinFidelity: 0.95},
	})

	reportPath := filepath.Join(dir, "report.json")
	if err := WriteReport(reportPath, suite); err != nil {
		t.Fatalf("write report: %v", err)
	}

	baselinePath := filepath.Join(dir, "baseline.json")
	if err := WriteBaseline(baselinePath, BaselineOf(suite)); err != nil {
		t.Fatalf("write baseline: %v", err)
	}
	baseline, err := LoadBaseline(baselinePath)
	if err != nil {
		t.Fatalf("load baseline: %v", err)
	}
	if baseline.MeanFidelity != suite.MeanFidelity {
		t.Fatalf("baseline mean = %v, want %v", baseline.MeanFidelity, suite.MeanFidelity)
	}
	if err := CheckBaseline(suite, baseline, 0.001); err != nil {
		t.Fatalf("fresh baseline flagged: %v", err)
	}
}
