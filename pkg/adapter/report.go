// Copyright 2026 © The Chrysalis Authors
// SPDX-License-Identifier: Apache-2.0

package adapter

import "time"

// FieldLoss records one native or canonical field that could not be
// carried across without loss, and why.
type FieldLoss struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Report is the per-direction transform result. FidelityScore is the
// adapter's self-reported fraction of source information preserved, in
// [0,1].
type Report struct {
	Success        bool          `json:"success"`
	FidelityScore  float64       `json:"fidelity_score"`
	MappedFields   []string      `json:"mapped_fields,omitempty"`
	UnmappedFields []FieldLoss   `json:"unmapped_fields,omitempty"`
	LossyMappings  []FieldLoss   `json:"lossy_mappings,omitempty"`
	Warnings       []string      `json:"warnings,omitempty"`
	Errors         []string      `json:"errors,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// ReportBuilder accumulates mapping outcomes during a transform and
// derives the fidelity self-report at the end.
type ReportBuilder struct {
	report    Report
	preserved int
	start     time.Time
}

// NewReport starts a report at the current time.
func NewReport() *ReportBuilder {
	return &ReportBuilder{start: time.Now()}
}

// Mapped records a field translated to a core predicate without loss.
func (b *ReportBuilder) Mapped(field string) {
	b.report.MappedFields = append(b.report.MappedFields, field)
}

// Preserved records a field carried through the extension namespace. It
// counts as retained information but not as a core mapping.
func (b *ReportBuilder) Preserved(field string) {
	b.preserved++
	b.report.Warnings = append(b.report.Warnings,
		"field "+field+" has no core equivalent; preserved in extension namespace")
}

// Lossy records a field that was translated with information loss.
func (b *ReportBuilder) Lossy(field, reason string) {
	b.report.LossyMappings = append(b.report.LossyMappings, FieldLoss{Field: field, Reason: reason})
}

// Unmapped records a field that could not be carried at all.
func (b *ReportBuilder) Unmapped(field, reason string) {
	b.report.UnmappedFields = append(b.report.UnmappedFields, FieldLoss{Field: field, Reason: reason})
}

// Warn appends a warning.
func (b *ReportBuilder) Warn(msg string) {
	b.report.Warnings = append(b.report.Warnings, msg)
}

// Fail appends an error; any error makes the final report unsuccessful.
func (b *ReportBuilder) Fail(msg string) {
	b.report.Errors = append(b.report.Errors, msg)
}

// Build finalizes the report. Fidelity counts cleanly mapped and
// extension-preserved fields as retained, lossy mappings as half retained,
// and unmapped fields as lost. An empty transform scores 1.0: nothing was
// there to lose.
func (b *ReportBuilder) Build() Report {
	r := b.report
	r.Duration = time.Since(b.start)
	r.Success = len(r.Errors) == 0

	retained := float64(len(r.MappedFields) + b.preserved)
	lossy := float64(len(r.LossyMappings))
	lost := float64(len(r.UnmappedFields))
	total := retained + lossy + lost
	if total == 0 {
		r.FidelityScore = 1.0
	} else {
		r.FidelityScore = (retained + 0.5*lossy) / total
	}
	if !r.Success {
		r.FidelityScore = 0
	}
	return r
}

// FailedReport builds a terminal failure report for errors detected
// before any mapping work happened.
func FailedReport(msg string) Report {
	return Report{Success: false, Errors: []string{msg}}
}
