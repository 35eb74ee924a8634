package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/rendis/catalog/pkg/schema"
)

// RunKind identifies which catalog command produced a run.
type RunKind string

const (
	RunValidate RunKind = "validate"
	RunClone    RunKind = "clone"
	RunReport   RunKind = "report"
	RunAudit    RunKind = "audit"
)

// RunStatus is the outcome of a run.
type RunStatus string

const (
	StatusPassed RunStatus = "passed"
	StatusFailed RunStatus = "failed"
)

// Run is one recorded execution of a catalog check.
type Run struct {
	ID         string    `json:"id"`
	PipelineID string    `json:"pipeline_id,omitempty"`
	Kind       RunKind   `json:"kind"`
	Status     RunStatus `json:"status"`
	Trigger    string    `json:"trigger"`
	PRNumber   int       `json:"pr_number,omitempty"`
	BaseBranch string    `json:"base_branch,omitempty"`
	Total      int       `json:"total"`
	Changed    int       `json:"changed"`
	Errors     int       `json:"errors"`
	Warnings   int       `json:"warnings"`
	Blocking   int       `json:"blocking"`
	Advisory   int       `json:"advisory"`
	ScanRan    bool      `json:"scan_ran"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
	Issues     []Issue   `json:"issues,omitempty"`
}

// Issue is a validation issue recorded with a run.
type Issue struct {
	RunID    string                    `json:"run_id"`
	Severity schema.ValidationSeverity `json:"severity"`
	Code     string                    `json:"code"`
	PluginID string                    `json:"plugin_id,omitempty"`
	Field    string                    `json:"field,omitempty"`
	Path     string                    `json:"path,omitempty"`
	Message  string                    `json:"message"`
}

// RunFilter narrows ListRuns. Zero fields match everything.
type RunFilter struct {
	Kind       RunKind
	Status     RunStatus
	PRNumber   int
	PipelineID string
	Since      *time.Time
	Limit      int
}

// IssueFilter narrows ListIssues.
type IssueFilter struct {
	PluginID string
	Code     string
	Limit    int
}

// NewRun summarizes a validation report, and an optional scan summary, as a
// run. Each run gets a fresh id; the report's run id becomes the pipeline id
// shared by the validate, clone and report steps.
func NewRun(kind RunKind, trigger string, rep *schema.ValidationReport, scan *schema.ScanSummary) *Run {
	r := &Run{
		ID:         uuid.NewString(),
		PipelineID: rep.RunID,
		Kind:       kind,
		Trigger:    trigger,
		PRNumber:   rep.PRNumber,
		BaseBranch: rep.BaseBranch,
		Total:      rep.TotalCount,
		Changed:    len(rep.Changes),
		Errors:     len(rep.Result.Errors),
		Warnings:   len(rep.Result.Warnings),
		CreatedAt:  time.Now().UTC(),
	}
	if scan != nil {
		r.ScanRan = scan.Ran
		r.Blocking = len(scan.Blocking)
		r.Advisory = len(scan.Advisory)
	}
	r.Status = StatusPassed
	if r.Errors > 0 || r.Blocking > 0 {
		r.Status = StatusFailed
	}
	for _, list := range [][]schema.ValidationIssue{rep.Result.Errors, rep.Result.Warnings} {
		for _, is := range list {
			r.Issues = append(r.Issues, Issue{
				RunID:    r.ID,
				Severity: is.Severity,
				Code:     is.Code,
				PluginID: is.PluginID,
				Field:    is.Field,
				Path:     is.Path,
				Message:  is.Message,
			})
		}
	}
	return r
}
