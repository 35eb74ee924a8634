package validation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rendis/catalog/internal/registry"
	"github.com/rendis/catalog/pkg/schema"
)

// ReportMeta carries the CI context recorded in a ValidationReport.
type ReportMeta struct {
	RunID      string
	BaseBranch string
	PRNumber   int
}

// NewReport bundles a validation outcome for the clone and report steps.
func NewReport(meta ReportMeta, head *schema.Registry, changes *registry.ChangeSet, result *schema.ValidationResult) *schema.ValidationReport {
	if meta.RunID == "" {
		meta.RunID = uuid.NewString()
	}
	all := changes.Changes()
	return &schema.ValidationReport{
		RunID:          meta.RunID,
		BaseBranch:     meta.BaseBranch,
		PRNumber:       meta.PRNumber,
		TotalCount:     len(head.Plugins),
		UnchangedCount: len(changes.Unchanged),
		Changes:        all,
		Result:         *result,
		CloneTargets:   registry.CloneTargets(all),
		GeneratedAt:    time.Now().UTC(),
	}
}

// SaveReport writes the report as indented JSON, creating parent directories.
func SaveReport(path string, rep *schema.ValidationReport) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadReport reads a report written by SaveReport.
func LoadReport(path string) (*schema.ValidationReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, schema.NewErrorf(schema.ErrCodeNotFound, "validation report %s not found", path).WithCause(err)
		}
		return nil, fmt.Errorf("read report: %w", err)
	}
	var rep schema.ValidationReport
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeParse, "malformed validation report %s: %v", path, err).WithCause(err)
	}
	return &rep, nil
}

// RecordMissingPath appends a PATH_NOT_FOUND error for a cloned target whose
// plugin path is absent from the repository.
func RecordMissingPath(rep *schema.ValidationReport, target schema.CloneTarget) {
	rep.Result.AddPluginError(target.PluginID+".path", target.PluginID, "path", schema.IssuePathNotFound,
		fmt.Sprintf("path %q not found in %s", target.Path, target.Repository))
}

// RecordCloneFailure appends a CLONE_FAILED error for a target that could not be fetched.
func RecordCloneFailure(rep *schema.ValidationReport, target schema.CloneTarget, err error) {
	rep.Result.AddPluginError(target.PluginID+".repository", target.PluginID, "repository", schema.IssueCloneFailed,
		fmt.Sprintf("could not clone %s: %v", target.Repository, err))
}
