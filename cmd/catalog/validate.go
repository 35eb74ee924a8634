package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rendis/catalog/internal/expressions"
	"github.com/rendis/catalog/internal/logging"
	"github.com/rendis/catalog/internal/outputs"
	"github.com/rendis/catalog/internal/registry"
	"github.com/rendis/catalog/internal/store"
	"github.com/rendis/catalog/internal/validation"
	"github.com/rendis/catalog/pkg/schema"
	"github.com/spf13/cobra"
)

func (a *app) validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate registry entries changed relative to the base branch",
		Long: `Validate loads the registry, compares it with its copy on the base branch and
validates every new or modified entry: required fields, repository URL shape,
path and version formats, policy rules. Duplicate ids are checked across the
whole registry.

The report is written to --results for the clone and report steps, and the
changed entries, errors and clone targets are written to $GITHUB_OUTPUT.

Exits 1 when validation errors were found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runValidate(cmd.Context())
		},
	}
	f := cmd.Flags()
	f.String("base", "", "base branch to compare against (env BASE_BRANCH); empty validates every entry")
	f.String("base-file", "", "compare against this registry file instead of the base branch")
	f.String("remote", "", "git remote holding the base branch")
	f.String("repo-dir", "", "repository working directory")
	f.String("output", "", "file receiving step outputs (env GITHUB_OUTPUT); stdout when empty")
	return cmd
}

func (a *app) runValidate(ctx context.Context) error {
	started := time.Now()
	runID := uuid.New().String()
	ctx = logging.WithRun(ctx, runID, a.cfg.PRNumber)

	head, err := registry.Load(a.cfg.Registry)
	if err != nil {
		return err
	}
	base, err := a.baseSource().Fetch(ctx)
	if err != nil {
		return err
	}
	changes, err := registry.NewDiffer(expressions.NewGoJQEngine()).Diff(ctx, head, base)
	if err != nil {
		return err
	}

	v, err := a.newValidator()
	if err != nil {
		return err
	}
	result := v.Validate(ctx, head, changes)

	rep := validation.NewReport(validation.ReportMeta{
		RunID:      runID,
		BaseBranch: a.cfg.BaseBranch,
		PRNumber:   a.cfg.PRNumber,
	}, head, changes, result)
	if err := validation.SaveReport(a.cfg.Results, rep); err != nil {
		return err
	}
	if err := a.writeOutputs(rep); err != nil {
		return err
	}

	a.recordRun(ctx, store.RunValidate, a.trigger(), rep, nil, started)
	printValidationSummary(a.stderr, rep)

	a.logger.InfoContext(ctx, "validation finished",
		"changed", len(rep.Changes),
		"errors", len(result.Errors),
		"warnings", len(result.Warnings),
		"duration", time.Since(started),
	)
	if !result.Valid() {
		return exitError{code: exitCheckFailed}
	}
	return nil
}

// baseSource selects where the base registry comes from: an explicit file,
// the base branch, or nothing.
func (a *app) baseSource() registry.BaseSource {
	switch {
	case a.cfg.BaseFile != "":
		return &registry.FileBase{Path: a.cfg.BaseFile}
	case a.cfg.BaseBranch == "":
		return registry.NoBase{}
	}
	return &registry.GitBase{
		Git:    a.newGit(),
		Dir:    a.cfg.RepoDir,
		Remote: a.cfg.Remote,
		Branch: a.cfg.BaseBranch,
		Path:   repoRelative(a.cfg.RepoDir, a.cfg.Registry),
		Logger: a.logger,
	}
}

// repoRelative returns path relative to the repository root in git's
// slash form. Paths outside dir are returned unchanged.
func repoRelative(dir, path string) string {
	absDir, err1 := filepath.Abs(dir)
	absPath, err2 := filepath.Abs(path)
	if err1 != nil || err2 != nil {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// writeOutputs publishes the report's step outputs.
func (a *app) writeOutputs(rep *schema.ValidationReport) error {
	blocks, err := outputs.FromReport(rep)
	if err != nil {
		return err
	}
	w := outputs.NewWriter(a.cfg.GitHubOutput)
	w.Fallback = a.stdout
	if err := w.Write(blocks); err != nil {
		return fmt.Errorf("write step outputs: %w", err)
	}
	return nil
}
