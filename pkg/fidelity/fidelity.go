// Copyright 2026 © The Chrysalis Authors
// SPDX-License-Identifier: Apache-2.0

// Package fidelity measures similarity and information loss between two
// canonical graphs. Similarity is Jaccard over exact-match triples;
// predicate retention is computed independently of triple similarity so
// structural loss (a predicate vanishing entirely) is distinguishable
// from value loss (the predicate survives with different objects).
package fidelity

import (
	"fmt"
	"sort"
	"strings"

	"github.com/replicant-partners/chrysalis/pkg/canonical"
)

// PredicateDiff is the per-predicate breakdown row.
type PredicateDiff struct {
	Predicate  canonical.ID `json:"predicate"`
	LeftCount  int          `json:"left_count"`
	RightCount int          `json:"right_count"`
	Common     int          `json:"common"`
	Similarity float64      `json:"similarity"`
}

// DiffResult is the outcome of Diff.
type DiffResult struct {
	LeftOnly     []canonical.Triple `json:"left_only"`
	RightOnly    []canonical.Triple `json:"right_only"`
	Common       []canonical.Triple `json:"common"`
	Similarity   float64            `json:"similarity"`
	PerPredicate []PredicateDiff    `json:"per_predicate"`
}

// Diff compares two graphs triple by triple. Similarity is
// |common| / |union|; two empty graphs are identical (1.0). Diff is
// symmetric in its similarity: Diff(a,b).Similarity == Diff(b,a).Similarity.
func Diff(a, b *canonical.Graph) *DiffResult {
	res := &DiffResult{}
	perPred := make(map[canonical.ID]*PredicateDiff)

	row := func(p canonical.ID) *PredicateDiff {
		r := perPred[p]
		if r == nil {
			r = &PredicateDiff{Predicate: p}
			perPred[p] = r
		}
		return r
	}

	a.Range(func(t canonical.Triple) bool {
		r := row(t.Predicate)
		r.LeftCount++
		if b.Has(t) {
			res.Common = append(res.Common, t)
			r.Common++
		} else {
			res.LeftOnly = append(res.LeftOnly, t)
		}
		return true
	})
	b.Range(func(t canonical.Triple) bool {
		r := row(t.Predicate)
		r.RightCount++
		if !a.Has(t) {
			res.RightOnly = append(res.RightOnly, t)
		}
		return true
	})

	union := len(res.Common) + len(res.LeftOnly) + len(res.RightOnly)
	if union == 0 {
		res.Similarity = 1.0
	} else {
		res.Similarity = float64(len(res.Common)) / float64(union)
	}

	for _, r := range perPred {
		u := r.LeftCount + r.RightCount - r.Common
		if u == 0 {
			r.Similarity = 1.0
		} else {
			r.Similarity = float64(r.Common) / float64(u)
		}
		res.PerPredicate = append(res.PerPredicate, *r)
	}
	sortTriples(res.LeftOnly)
	sortTriples(res.RightOnly)
	sortTriples(res.Common)
	// Worst predicates first so reports lead with the problems.
	sort.Slice(res.PerPredicate, func(i, j int) bool {
		if res.PerPredicate[i].Similarity != res.PerPredicate[j].Similarity {
			return res.PerPredicate[i].Similarity < res.PerPredicate[j].Similarity
		}
		return res.PerPredicate[i].Predicate < res.PerPredicate[j].Predicate
	})
	return res
}

// LossReport is the outcome of CalculateInformationLoss.
type LossReport struct {
	TripleRetention    float64        `json:"triple_retention"`
	TripleLoss         float64        `json:"triple_loss"`
	PredicateRetention float64        `json:"predicate_retention"`
	LostPredicates     []canonical.ID `json:"lost_predicates"`
	AddedPredicates    []canonical.ID `json:"added_predicates"`
	OverallFidelity    float64        `json:"overall_fidelity"`
}

// CalculateInformationLoss measures what a reconstruction preserved of
// the original. TripleRetention is the fraction of original triples
// present verbatim; PredicateRetention is the fraction of original
// predicates still present with any value. OverallFidelity averages the
// two so structural and value loss both weigh in.
func CalculateInformationLoss(original, reconstructed *canonical.Graph) *LossReport {
	report := &LossReport{}

	kept := 0
	original.Range(func(t canonical.Triple) bool {
		if reconstructed.Has(t) {
			kept++
		}
		return true
	})
	if original.Len() == 0 {
		report.TripleRetention = 1.0
	} else {
		report.TripleRetention = float64(kept) / float64(original.Len())
	}
	report.TripleLoss = 1.0 - report.TripleRetention

	origPreds := predicateSet(original)
	reconPreds := predicateSet(reconstructed)
	keptPreds := 0
	for p := range origPreds {
		if _, ok := reconPreds[p]; ok {
			keptPreds++
		} else {
			report.LostPredicates = append(report.LostPredicates, p)
		}
	}
	for p := range reconPreds {
		if _, ok := origPreds[p]; !ok {
			report.AddedPredicates = append(report.AddedPredicates, p)
		}
	}
	if len(origPreds) == 0 {
		report.PredicateRetention = 1.0
	} else {
		report.PredicateRetention = float64(keptPreds) / float64(len(origPreds))
	}
	sortIDs(report.LostPredicates)
	sortIDs(report.AddedPredicates)

	report.OverallFidelity = (report.TripleRetention + report.PredicateRetention) / 2
	return report
}

// FormatReport renders a diff for humans, worst predicates first.
func FormatReport(d *DiffResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "similarity: %.4f (common %d, left-only %d, right-only %d)\n",
		d.Similarity, len(d.Common), len(d.LeftOnly), len(d.RightOnly))
	for _, r := range d.PerPredicate {
		fmt.Fprintf(&b, "  %-48s %.4f (left %d, right %d, common %d)\n",
			r.Predicate, r.Similarity, r.LeftCount, r.RightCount, r.Common)
	}
	return b.String()
}

func predicateSet(g *canonical.Graph) map[canonical.ID]struct{} {
	out := make(map[canonical.ID]struct{})
	g.Range(func(t canonical.Triple) bool {
		out[t.Predicate] = struct{}{}
		return true
	})
	return out
}

func sortTriples(ts []canonical.Triple) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].Subject != ts[j].Subject {
			return ts[i].Subject < ts[j].Subject
		}
		if ts[i].Predicate != ts[j].Predicate {
			return ts[i].Predicate < ts[j].Predicate
		}
		return ts[i].Object.String() < ts[j].Object.String()
	})
}

func sortIDs(ids []canonical.ID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
