package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rendis/catalog/internal/gitrepo"
	"github.com/rendis/catalog/internal/logging"
	"github.com/rendis/catalog/internal/store"
	"github.com/rendis/catalog/internal/validation"
	"github.com/rendis/catalog/internal/workers"
	"github.com/rendis/catalog/pkg/schema"
	"github.com/spf13/cobra"
)

func (a *app) cloneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clone",
		Short: "Clone the changed plugins for scanning",
		Long: `Clone reads the validation report and shallow-clones every clone target into
<clone-dir>/<plugin-id>. A plugin whose path does not exist in its repository,
or whose repository cannot be cloned, gets a validation error appended to the
report. Failures do not stop the remaining clones; network failures are
retried with backoff.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runClone(cmd.Context())
		},
	}
	cmd.Flags().String("clone-dir", "", "directory receiving plugin checkouts")
	cmd.Flags().Int("parallel", 0, "concurrent clones")
	cmd.Flags().String("output", "", "file receiving step outputs (env GITHUB_OUTPUT); stdout when empty")
	return cmd
}

func (a *app) runClone(ctx context.Context) error {
	started := time.Now()
	rep, err := validation.LoadReport(a.cfg.Results)
	if err != nil {
		return err
	}
	ctx = logging.WithRun(ctx, rep.RunID, rep.PRNumber)

	root, err := filepath.Abs(a.cfg.CloneDir)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeConfig, "clone dir %s: %v", a.cfg.CloneDir, err)
	}
	git := a.newGit(root)

	type outcome struct {
		res *gitrepo.CloneResult
		err error
	}
	outcomes, err := workers.Map(ctx, a.cfg.Clone.Parallel, rep.CloneTargets,
		func(ctx context.Context, target schema.CloneTarget) outcome {
			tctx := logging.WithPluginID(ctx, target.PluginID)
			var res *gitrepo.CloneResult
			err := workers.Retry(tctx, a.cfg.Clone.Retry, func(ctx context.Context) error {
				var cerr error
				res, cerr = git.Clone(ctx, target, root)
				if cerr != nil && workers.IsRetryable(cerr) {
					a.logger.WarnContext(ctx, "clone failed, retrying", "repository", target.Repository, "error", cerr)
				}
				return cerr
			})
			return outcome{res: res, err: err}
		})
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	// Issues are appended in target order so the report is stable.
	cloned := 0
	for i, target := range rep.CloneTargets {
		tctx := logging.WithPluginID(ctx, target.PluginID)
		o := outcomes[i]
		if o.err != nil {
			a.logger.WarnContext(tctx, "clone failed", "repository", target.Repository, "error", o.err)
			validation.RecordCloneFailure(rep, target, o.err)
			continue
		}
		cloned++
		if !o.res.PathFound {
			a.logger.WarnContext(tctx, "plugin path not found", "path", target.Path)
			validation.RecordMissingPath(rep, target)
		}
	}

	if err := validation.SaveReport(a.cfg.Results, rep); err != nil {
		return err
	}
	if err := a.writeOutputs(rep); err != nil {
		return err
	}
	a.recordRun(ctx, store.RunClone, a.trigger(), rep, nil, started)

	a.logger.InfoContext(ctx, "clone finished",
		"targets", len(rep.CloneTargets),
		"cloned", cloned,
		"errors", len(rep.Result.Errors),
	)
	return nil
}
