package schema

import (
	"strings"
	"time"
)

// ChangeKind describes how a record differs from the base branch.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
)

// Change is a new or modified registry entry. Previous is the base branch
// version of a modified record and nil for added ones.
type Change struct {
	Kind     ChangeKind     `json:"kind"`
	Entry    Entry          `json:"entry"`
	Previous map[string]any `json:"previous,omitempty"`
}

// CloneTarget identifies plugin source to fetch for scanning.
type CloneTarget struct {
	PluginID   string `json:"plugin_id"`
	Repository string `json:"repository"`
	Path       string `json:"path"`
	Branch     string `json:"branch,omitempty"`
}

// String renders the tuple as "<id> <repository> <path> [<branch>]". Fields
// never contain whitespace: validation rejects it and CloneTargets skips such
// records.
func (t CloneTarget) String() string {
	parts := []string{t.PluginID, t.Repository, t.Path}
	if t.Branch != "" {
		parts = append(parts, t.Branch)
	}
	return strings.Join(parts, " ")
}

// ValidationReport is the outcome of the validate step, persisted for the
// clone and report steps.
type ValidationReport struct {
	RunID          string           `json:"run_id"`
	BaseBranch     string           `json:"base_branch,omitempty"`
	PRNumber       int              `json:"pr_number,omitempty"`
	TotalCount     int              `json:"total_count"`
	UnchangedCount int              `json:"unchanged_count"`
	Changes        []Change         `json:"changes"`
	Result         ValidationResult `json:"result"`
	CloneTargets   []CloneTarget    `json:"clone_targets"`
	GeneratedAt    time.Time        `json:"generated_at"`
}

// ChangedIDs returns the labels of the changed entries in order.
func (r *ValidationReport) ChangedIDs() []string {
	out := make([]string, 0, len(r.Changes))
	for _, c := range r.Changes {
		out = append(out, c.Entry.Label())
	}
	return out
}
