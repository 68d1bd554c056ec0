// Copyright 2026 © The Chrysalis Authors
// SPDX-License-Identifier: Apache-2.0

package roundtrip

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/replicant-partners/chrysalis/pkg/adapter"
)

// Case is one suite entry. A nil Target runs the single-adapter round
// trip; otherwise the four-stage cross-framework chain runs.
type Case struct {
	Name        string
	Source      adapter.Adapter
	Target      adapter.Adapter
	Sample      adapter.Native
	MinFidelity float64
}

// SuiteResult aggregates a harness run.
type SuiteResult struct {
	Passed       int           `json:"passed"`
	Failed       int           `json:"failed"`
	MeanFidelity float64       `json:"mean_fidelity"`
	Cases        []CaseResult  `json:"cases"`
	Duration     time.Duration `json:"duration_ms"`
}

// Baseline is the stored reference a CI run regresses against.
type Baseline struct {
	MeanFidelity float64            `json:"mean_fidelity"`
	Cases        map[string]float64 `json:"cases"`
}

// RunSuite executes every case and aggregates pass/fail counts and the
// mean fidelity across cases.
func RunSuite(ctx context.Context, cases []Case) SuiteResult {
	start := time.Now()
	var suite SuiteResult
	var sum float64
	for _, c := range cases {
		var result CaseResult
		if c.Target == nil {
			result = RunTest(ctx, c.Source, c.Sample, c.MinFidelity)
		} else {
			result = RunCrossFrameworkTest(ctx, c.Source, c.Sample, c.Target, c.MinFidelity)
		}
		if c.Name != "" {
			result.Name = c.Name
		}
		if result.Passed {
			suite.Passed++
		} else {
			suite.Failed++
		}
		sum += result.Fidelity
		suite.Cases = append(suite.Cases, result)
	}
	if len(cases) > 0 {
		suite.MeanFidelity = sum / float64(len(cases))
	}
	suite.Duration = time.Since(start)
	return suite
}

// CheckBaseline fails when any case fell below its own threshold or
// when the suite's mean fidelity regressed against the baseline by more
// than tolerance. A case absent from the baseline is checked against
// its threshold only.
func CheckBaseline(suite SuiteResult, baseline Baseline, tolerance float64) error {
	var problems []string
	for _, c := range suite.Cases {
		if !c.Passed {
			problems = append(problems, fmt.Sprintf("case %s: %s", c.Name, c.Failure))
			continue
		}
		if ref, ok := baseline.Cases[c.Name]; ok && c.Fidelity < ref-tolerance {
			problems = append(problems, fmt.Sprintf("case %s: fidelity %.4f regressed below baseline %.4f",
				c.Name, c.Fidelity, ref))
		}
	}
	if suite.MeanFidelity < baseline.MeanFidelity-tolerance {
		problems = append(problems, fmt.Sprintf("suite mean fidelity %.4f regressed below baseline %.4f",
			suite.MeanFidelity, baseline.MeanFidelity))
	}
	if len(problems) > 0 {
		return fmt.Errorf("round-trip regression:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}

// BaselineOf derives a baseline from a suite run, typically written
// after a reviewed fidelity change.
func BaselineOf(suite SuiteResult) Baseline {
	b := Baseline{MeanFidelity: suite.MeanFidelity, Cases: make(map[string]float64, len(suite.Cases))}
	for _, c := range suite.Cases {
		b.Cases[c.Name] = c.Fidelity
	}
	return b
}

// WriteReport writes the suite result as a JSON CI artifact.
func WriteReport(path string, suite SuiteResult) error {
	data, err := json.MarshalIndent(suite, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// WriteBaseline stores a baseline artifact.
func WriteBaseline(path string, baseline Baseline) error {
	data, err := json.MarshalIndent(baseline, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// LoadBaseline reads a stored baseline artifact.
func LoadBaseline(path string) (Baseline, error) {
	var baseline Baseline
	data, err := os.ReadFile(path)
	if err != nil {
		return baseline, err
	}
	if err := json.Unmarshal(data, &baseline); err != nil {
		return baseline, err
	}
	return baseline, nil
}
