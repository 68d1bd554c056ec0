// Copyright 2026 © The Chrysalis Authors
// SPDX-License-Identifier: Apache-2.0

package fidelity

import (
	"math"
	"strings"
	"testing"

	"github.com/replicant-partners/chrysalis/pkg/canonical"
)

func graphOf(t *testing.T, triples ...canonical.Triple) *canonical.Graph {
	t.Helper()
	g := canonical.NewGraph()
	for _, tr := range triples {
		g.Add(tr)
	}
	return g
}

func lit(t *testing.T, s canonical.ID, p canonical.ID, v string) canonical.Triple {
	t.Helper()
	tr, err := canonical.NewLiteralTriple(s, p, v)
	if err != nil {
		t.Fatalf("literal triple: %v", err)
	}
	return tr
}

func TestDiffIdenticalGraphs(t *testing.T) {
	agent := canonical.AgentID("a1")
	a := graphOf(t,
		lit(t, agent, canonical.PredicateName, "planner"),
		lit(t, agent, canonical.PredicateGoal, "plan trips"),
	)
	d := Diff(a, a.Clone())
	if d.Similarity != 1.0 {
		t.Fatalf("similarity = %v, want 1.0", d.Similarity)
	}
	if len(d.LeftOnly) != 0 || len(d.RightOnly) != 0 || len(d.Common) != 2 {
		t.Fatalf("unexpected partition: left=%d right=%d common=%d",
			len(d.LeftOnly), len(d.RightOnly), len(d.Common))
	}
}

func TestDiffEmptyGraphsAreIdentical(t *testing.T) {
	d := Diff(canonical.NewGraph(), canonical.NewGraph())
	if d.Similarity != 1.0 {
		t.Fatalf("similarity = %v, want 1.0 for two empty graphs", d.Similarity)
	}
}

func TestDiffJaccardAndSymmetry(t *testing.T) {
	agent := canonical.AgentID("a1")
	shared := lit(t, agent, canonical.PredicateName, "planner")
	a := graphOf(t, shared, lit(t, agent, canonical.PredicateGoal, "plan trips"))
	b := graphOf(t, shared, lit(t, agent, canonical.PredicateRole, "assistant"))

	// 1 common, union of 3.
	d := Diff(a, b)
	if math.Abs(d.Similarity-1.0/3.0) > 1e-12 {
		t.Fatalf("similarity = %v, want 1/3", d.Similarity)
	}
	if rev := Diff(b, a); rev.Similarity != d.Similarity {
		t.Fatalf("asymmetric similarity: %v vs %v", d.Similarity, rev.Similarity)
	}
	if len(d.LeftOnly) != 1 || d.LeftOnly[0].Predicate != canonical.PredicateGoal {
		t.Fatalf("left-only = %v", d.LeftOnly)
	}
	if len(d.RightOnly) != 1 || d.RightOnly[0].Predicate != canonical.PredicateRole {
		t.Fatalf("right-only = %v", d.RightOnly)
	}
}

func TestDiffPerPredicateBreakdown(t *testing.T) {
	agent := canonical.AgentID("a1")
	a := graphOf(t,
		lit(t, agent, canonical.PredicateName, "planner"),
		lit(t, agent, canonical.PredicateGoal, "plan trips"),
	)
	b := graphOf(t,
		lit(t, agent, canonical.PredicateName, "planner"),
		lit(t, agent, canonical.PredicateGoal, "book trips"),
	)
	d := Diff(a, b)
	rows := make(map[canonical.ID]PredicateDiff)
	for _, r := range d.PerPredicate {
		rows[r.Predicate] = r
	}
	if got := rows[canonical.PredicateName]; got.Similarity != 1.0 || got.Common != 1 {
		t.Fatalf("name row = %+v", got)
	}
	if got := rows[canonical.PredicateGoal]; got.Similarity != 0.0 || got.LeftCount != 1 || got.RightCount != 1 {
		t.Fatalf("goal row = %+v", got)
	}
	// Worst predicate sorts first.
	if d.PerPredicate[0].Predicate != canonical.PredicateGoal {
		t.Fatalf("per-predicate order: first = %s, want %s",
			d.PerPredicate[0].Predicate, canonical.PredicateGoal)
	}
}

func TestInformationLossSeparatesStructureFromValues(t *testing.T) {
	agent := canonical.AgentID("a1")
	original := graphOf(t,
		lit(t, agent, canonical.PredicateName, "planner"),
		lit(t, agent, canonical.PredicateGoal, "plan trips"),
		lit(t, agent, canonical.PredicateBackstory, "seasoned guide"),
	)
	// Goal survives with a rewritten value; backstory vanishes entirely.
	reconstructed := graphOf(t,
		lit(t, agent, canonical.PredicateName, "planner"),
		lit(t, agent, canonical.PredicateGoal, "book trips"),
	)
	r := CalculateInformationLoss(original, reconstructed)
	if math.Abs(r.TripleRetention-1.0/3.0) > 1e-12 {
		t.Fatalf("triple retention = %v, want 1/3", r.TripleRetention)
	}
	if math.Abs(r.TripleLoss-2.0/3.0) > 1e-12 {
		t.Fatalf("triple loss = %v, want 2/3", r.TripleLoss)
	}
	if math.Abs(r.PredicateRetention-2.0/3.0) > 1e-12 {
		t.Fatalf("predicate retention = %v, want 2/3", r.PredicateRetention)
	}
	if len(r.LostPredicates) != 1 || r.LostPredicates[0] != canonical.PredicateBackstory {
		t.Fatalf("lost predicates = %v", r.LostPredicates)
	}
	if len(r.AddedPredicates) != 0 {
		t.Fatalf("added predicates = %v", r.AddedPredicates)
	}
	want := (1.0/3.0 + 2.0/3.0) / 2
	if math.Abs(r.OverallFidelity-want) > 1e-12 {
		t.Fatalf("overall fidelity = %v, want %v", r.OverallFidelity, want)
	}
}

func TestInformationLossAddedPredicates(t *testing.T) {
	agent := canonical.AgentID("a1")
	original := graphOf(t, lit(t, agent, canonical.PredicateName, "planner"))
	reconstructed := graphOf(t,
		lit(t, agent, canonical.PredicateName, "planner"),
		lit(t, agent, canonical.PredicateSourceProtocol, "toolcall"),
	)
	r := CalculateInformationLoss(original, reconstructed)
	if r.TripleRetention != 1.0 || r.PredicateRetention != 1.0 {
		t.Fatalf("retention = %v/%v, want 1.0/1.0", r.TripleRetention, r.PredicateRetention)
	}
	if len(r.AddedPredicates) != 1 || r.AddedPredicates[0] != canonical.PredicateSourceProtocol {
		t.Fatalf("added predicates = %v", r.AddedPredicates)
	}
}

func TestInformationLossEmptyOriginal(t *testing.T) {
	r := CalculateInformationLoss(canonical.NewGraph(), canonical.NewGraph())
	if r.TripleRetention != 1.0 || r.PredicateRetention != 1.0 || r.OverallFidelity != 1.0 {
		t.Fatalf("empty original should be perfect retention, got %+v", r)
	}
}

func TestFormatReportWorstFirst(t *testing.T) {
	agent := canonical.AgentID("a1")
	a := graphOf(t,
		lit(t, agent, canonical.PredicateName, "planner"),
		lit(t, agent, canonical.PredicateGoal, "plan trips"),
	)
	b := graphOf(t,
		lit(t, agent, canonical.PredicateName, "planner"),
	)
	out := FormatReport(Diff(a, b))
	goalAt := strings.Index(out, string(canonical.PredicateGoal))
	nameAt := strings.Index(out, string(canonical.PredicateName))
	if goalAt < 0 || nameAt < 0 || goalAt > nameAt {
		t.Fatalf("worst predicate should appear first:\n%s", out)
	}
}
