package main

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rendis/catalog/internal/logging"
	"github.com/rendis/catalog/internal/registry"
	"github.com/rendis/catalog/internal/scheduler"
	"github.com/rendis/catalog/internal/store"
	"github.com/rendis/catalog/internal/validation"
	"github.com/spf13/cobra"
)

const auditJob = "audit"

func (a *app) auditCmd() *cobra.Command {
	var schedule string
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Validate every registry entry",
		Long: `Audit validates the whole registry without comparing against a base branch.

With --schedule the audit runs on a cron schedule ("0 3 * * *", "@daily")
until interrupted. A run still in progress when the next one is due is
skipped. Runs are recorded when --db is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if schedule == "" {
				return a.runAudit(cmd.Context(), "manual")
			}
			return a.scheduleAudit(cmd.Context(), schedule)
		},
	}
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron expression; run repeatedly instead of once")
	return cmd
}

// runAudit validates every entry once.
func (a *app) runAudit(ctx context.Context, trigger string) error {
	started := time.Now()
	runID := uuid.New().String()
	ctx = logging.WithRunID(ctx, runID)

	head, err := registry.Load(a.cfg.Registry)
	if err != nil {
		return err
	}
	v, err := a.newValidator()
	if err != nil {
		return err
	}
	changes := registry.AllChanged(head)
	result := v.Validate(ctx, head, changes)
	rep := validation.NewReport(validation.ReportMeta{RunID: runID}, head, changes, result)

	a.recordRun(ctx, store.RunAudit, trigger, rep, nil, started)
	printValidationSummary(a.stderr, rep)

	if !result.Valid() {
		return exitError{code: exitCheckFailed}
	}
	return nil
}

// scheduleAudit runs the audit on a cron schedule until ctx is cancelled.
func (a *app) scheduleAudit(ctx context.Context, cronExpr string) error {
	sched := scheduler.NewScheduler(a.logger)
	err := sched.Add(auditJob, cronExpr, func(ctx context.Context) error {
		err := a.runAudit(ctx, "schedule")
		var ee exitError
		if errors.As(err, &ee) {
			// Findings are already reported; the schedule keeps going.
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	for _, j := range sched.Jobs() {
		a.logger.Info("audit scheduled", "cron", j.Cron, "next_run_at", j.NextRunAt)
	}
	<-ctx.Done()
	return sched.Stop()
}
