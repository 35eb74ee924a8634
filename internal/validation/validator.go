// Package validation checks registry changes before they are merged. It runs
// a staged pipeline over every new or modified record and a duplicate check
// over the whole registry, collecting issues instead of stopping at the first.
package validation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rendis/catalog/internal/registry"
	"github.com/rendis/catalog/pkg/schema"
)

// Options configures a Validator.
type Options struct {
	// Rules are extra CEL policy rules applied to changed records.
	Rules []Rule
	// ExtraSchema is an optional JSON Schema every changed record must also satisfy.
	ExtraSchema []byte
	Logger      *slog.Logger
}

// Validator runs the record validation pipeline:
// 1. Structural (JSON Schema)
// 2. Required fields
// 3. Field formats (repository URL, path, versions, tags)
// 4. Policy rules (CEL)
// followed by the duplicate id check over the full registry.
type Validator struct {
	jsonSchema  *JSONSchemaValidator
	extraSchema []byte
	policy      *policy
	logger      *slog.Logger
}

// New creates a Validator. Invalid rules are reported as CONFIG_ERROR.
func New(opts Options) (*Validator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	if len(opts.ExtraSchema) > 0 {
		if _, err := jsv.getOrCompile(opts.ExtraSchema); err != nil {
			return nil, schema.NewError(schema.ErrCodeConfig, "invalid extra record schema").WithCause(err)
		}
	}
	pol, err := newPolicy(opts.Rules)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{jsonSchema: jsv, extraSchema: opts.ExtraSchema, policy: pol, logger: logger}, nil
}

// Validate checks the changed entries of head and the uniqueness of every id in head.
func (v *Validator) Validate(ctx context.Context, head *schema.Registry, changes *registry.ChangeSet) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	for _, c := range changes.Changes() {
		result.Merge(v.ValidateEntry(ctx, c.Entry, c.Kind))
	}
	checkDuplicates(head, result)

	v.logger.InfoContext(ctx, "validation complete",
		"changed", changes.Len(),
		"unchanged", len(changes.Unchanged),
		"errors", len(result.Errors),
		"warnings", len(result.Warnings),
	)
	return result
}

// ValidateEntry runs the per-record stages on a single entry.
func (v *Validator) ValidateEntry(ctx context.Context, e schema.Entry, kind schema.ChangeKind) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	v.structural(e, result)
	checkRequired(e, result)
	checkID(e, result)
	checkRepository(e, result)
	checkPath(e, result)
	checkBranch(e, result)
	checkVersions(e, result)
	checkTags(e, result)
	v.policy.check(ctx, e, kind, result)

	if !result.Valid() {
		v.logger.DebugContext(ctx, "record failed validation", "plugin", e.Label(), "errors", len(result.Errors))
	}
	return result
}

// structural converts JSON Schema violations into SCHEMA_VIOLATION issues.
func (v *Validator) structural(e schema.Entry, result *schema.ValidationResult) {
	violations, err := v.jsonSchema.ValidateRecord(e.Raw)
	if err != nil {
		result.AddPluginError(entryPath(e), e.Label(), "", schema.IssueSchemaViolation, err.Error())
		return
	}
	if len(v.extraSchema) > 0 {
		extra, err := v.jsonSchema.ValidateWith(e.Raw, v.extraSchema)
		if err != nil {
			result.AddPluginError(entryPath(e), e.Label(), "", schema.IssueSchemaViolation, err.Error())
		}
		violations = append(violations, extra...)
	}
	for _, vi := range violations {
		result.AddPluginError(entryPath(e)+jsonPointerSuffix(vi.Location), e.Label(), vi.Field, schema.IssueSchemaViolation,
			fmt.Sprintf("%s: %s", vi.Location, vi.Message))
	}
}

func jsonPointerSuffix(loc string) string {
	if loc == "/" || loc == "" {
		return ""
	}
	return "." + loc[1:]
}
