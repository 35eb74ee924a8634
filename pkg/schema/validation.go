package schema

import (
	"fmt"
	"sort"
)

// ValidationSeverity indicates whether an issue is an error or warning.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// Issue codes attached to ValidationIssue.Code.
const (
	IssueMissingField    = "MISSING_FIELD"
	IssueInvalidURL      = "INVALID_URL"
	IssueDuplicateID     = "DUPLICATE_ID"
	IssueInvalidPath     = "INVALID_PATH"
	IssueInvalidID       = "INVALID_ID"
	IssueInvalidBranch   = "INVALID_BRANCH"
	IssueInvalidVersion  = "INVALID_VERSION"
	IssueSchemaViolation = "SCHEMA_VIOLATION"
	IssuePolicyViolation = "POLICY_VIOLATION"
	IssuePathNotFound    = "PATH_NOT_FOUND"
	IssueDuplicateTag    = "DUPLICATE_TAG"
	IssueCloneFailed     = "CLONE_FAILED"
)

// ValidationIssue is a single validation problem with location context.
type ValidationIssue struct {
	Path     string             `json:"path"`
	PluginID string             `json:"plugin_id,omitempty"`
	Field    string             `json:"field,omitempty"`
	Code     string             `json:"code"`
	Message  string             `json:"message"`
	Severity ValidationSeverity `json:"severity"`
}

// String renders the issue as a single report line: "<plugin>: <message>".
func (i ValidationIssue) String() string {
	subject := i.PluginID
	if subject == "" {
		subject = i.Path
	}
	if subject == "" {
		return i.Message
	}
	return subject + ": " + i.Message
}

// ValidationResult aggregates all issues from the validation pipeline.
type ValidationResult struct {
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

// Valid returns true if there are no errors (warnings are acceptable).
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// Add appends an issue to the list matching its severity.
func (r *ValidationResult) Add(issue ValidationIssue) {
	if issue.Severity == SeverityWarning {
		r.Warnings = append(r.Warnings, issue)
		return
	}
	issue.Severity = SeverityError
	r.Errors = append(r.Errors, issue)
}

// AddError appends an error-severity issue.
func (r *ValidationResult) AddError(path, code, message string) {
	r.Errors = append(r.Errors, ValidationIssue{
		Path: path, Code: code, Message: message, Severity: SeverityError,
	})
}

// AddWarning appends a warning-severity issue.
func (r *ValidationResult) AddWarning(path, code, message string) {
	r.Warnings = append(r.Warnings, ValidationIssue{
		Path: path, Code: code, Message: message, Severity: SeverityWarning,
	})
}

// AddPluginError appends an error-severity issue attributed to a plugin field.
func (r *ValidationResult) AddPluginError(path, pluginID, field, code, message string) {
	r.Errors = append(r.Errors, ValidationIssue{
		Path: path, PluginID: pluginID, Field: field, Code: code, Message: message, Severity: SeverityError,
	})
}

// AddPluginWarning appends a warning-severity issue attributed to a plugin field.
func (r *ValidationResult) AddPluginWarning(path, pluginID, field, code, message string) {
	r.Warnings = append(r.Warnings, ValidationIssue{
		Path: path, PluginID: pluginID, Field: field, Code: code, Message: message, Severity: SeverityWarning,
	})
}

// Merge combines another ValidationResult into this one.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// ErrorLines returns one line per error, in insertion order.
func (r *ValidationResult) ErrorLines() []string {
	lines := make([]string, 0, len(r.Errors))
	for _, issue := range r.Errors {
		lines = append(lines, issue.String())
	}
	return lines
}

// ForPlugin returns the errors and warnings attributed to a plugin ID.
func (r *ValidationResult) ForPlugin(id string) []ValidationIssue {
	var out []ValidationIssue
	for _, issue := range r.Errors {
		if issue.PluginID == id {
			out = append(out, issue)
		}
	}
	for _, issue := range r.Warnings {
		if issue.PluginID == id {
			out = append(out, issue)
		}
	}
	return out
}

// CountByCode returns the number of errors per issue code, sorted by code.
func (r *ValidationResult) CountByCode() []CodeCount {
	counts := make(map[string]int)
	for _, issue := range r.Errors {
		counts[issue.Code]++
	}
	out := make([]CodeCount, 0, len(counts))
	for code, n := range counts {
		out = append(out, CodeCount{Code: code, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// CodeCount pairs an issue code with its number of occurrences.
type CodeCount struct {
	Code  string `json:"code"`
	Count int    `json:"count"`
}

// ToError converts the result to a CatalogError if invalid, nil if valid.
func (r *ValidationResult) ToError() error {
	if r.Valid() {
		return nil
	}

	msg := r.Errors[0].String()
	if len(r.Errors) > 1 {
		msg = fmt.Sprintf("validation failed with %d errors", len(r.Errors))
	}

	return NewError(ErrCodeValidation, msg).
		WithDetails(map[string]any{
			"error_count":   len(r.Errors),
			"warning_count": len(r.Warnings),
			"errors":        r.Errors,
			"warnings":      r.Warnings,
		})
}
