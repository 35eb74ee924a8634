package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rendis/catalog/internal/store"
	"github.com/rendis/catalog/pkg/schema"
	"github.com/spf13/cobra"
)

func (a *app) historyCmd() *cobra.Command {
	var (
		kind, status string
		pipeline     string
		limit        int
		asJSON       bool
		pruneAfter   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded catalog check runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := a.requireStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			if pruneAfter > 0 {
				n, err := st.PruneRuns(ctx, time.Now().UTC().Add(-pruneAfter))
				if err != nil {
					return err
				}
				a.logger.InfoContext(ctx, "pruned runs", "deleted", n, "older_than", pruneAfter)
				if n > 0 {
					if err := st.Vacuum(ctx); err != nil {
						return schema.NewError(schema.ErrCodeStore, "vacuum failed").WithCause(err)
					}
				}
			}

			runs, err := st.ListRuns(ctx, store.RunFilter{
				Kind:       store.RunKind(kind),
				Status:     store.RunStatus(status),
				PRNumber:   a.cfg.PRNumber,
				PipelineID: pipeline,
				Limit:      limit,
			})
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}
			printRuns(a.stdout, runs)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&kind, "kind", "", "only runs of this kind (validate, clone, report, audit)")
	f.StringVar(&status, "status", "", "only runs with this status (passed, failed)")
	f.StringVar(&pipeline, "pipeline", "", "only the steps of this pipeline (the validation report's run id)")
	f.IntVarP(&limit, "limit", "n", 20, "maximum runs to list")
	f.BoolVar(&asJSON, "json", false, "print runs as JSON")
	f.DurationVar(&pruneAfter, "prune", 0, "delete runs older than this first (e.g. 720h)")

	cmd.AddCommand(a.issuesCmd())
	return cmd
}

func (a *app) issuesCmd() *cobra.Command {
	var (
		filter store.IssueFilter
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "issues",
		Short: "List validation issues recorded across runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.requireStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			issues, err := st.ListIssues(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(issues)
			}
			printIssues(a.stdout, issues)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&filter.PluginID, "plugin", "", "only issues for this plugin id")
	f.StringVar(&filter.Code, "code", "", "only issues with this code (MISSING_FIELD, DUPLICATE_ID, ...)")
	f.IntVarP(&filter.Limit, "limit", "n", 50, "maximum issues to list")
	f.BoolVar(&asJSON, "json", false, "print issues as JSON")
	return cmd
}

// requireStore opens the run history database, which these commands need.
func (a *app) requireStore(cmd *cobra.Command) (store.Store, error) {
	st, err := a.openStore(cmd.Context())
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, schema.NewError(schema.ErrCodeConfig, fmt.Sprintf("%s needs a run history database (--db or CATALOG_DB)", cmd.CommandPath()))
	}
	return st, nil
}
