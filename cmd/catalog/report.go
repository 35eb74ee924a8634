package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/rendis/catalog/internal/github"
	"github.com/rendis/catalog/internal/gitrepo"
	"github.com/rendis/catalog/internal/logging"
	"github.com/rendis/catalog/internal/report"
	"github.com/rendis/catalog/internal/scan"
	"github.com/rendis/catalog/internal/store"
	"github.com/rendis/catalog/internal/validation"
	"github.com/rendis/catalog/internal/workers"
	"github.com/rendis/catalog/pkg/schema"
	"github.com/spf13/cobra"
)

func (a *app) reportCmd() *cobra.Command {
	var preview, dryRun bool
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Post the validation and scan summary to the pull request",
		Long: `Report combines the validation report with the security scanner output
(semgrep JSON or SARIF) and builds one Markdown comment. With a GitHub token,
repository and pull request number the comment is created, or updated in
place when a previous run already posted one. Otherwise it is printed.

Exits 1 when validation errors or blocking findings exist. Advisory findings
never fail the check. A missing scanner output file is reported as "scan did
not run".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runReport(cmd.Context(), preview, dryRun)
		},
	}
	f := cmd.Flags()
	f.String("scan-results", "", "scanner output file (env SCAN_RESULTS)")
	f.String("clone-dir", "", "directory holding plugin checkouts, used to attribute findings")
	f.String("blocking", "", "expr predicate selecting blocking findings")
	f.BoolVar(&preview, "preview", false, "render the comment in the terminal instead of posting it")
	f.String("style", "", "glamour style for --preview (auto, dark, light, notty)")
	f.Int("width", 0, "wrap width for --preview")
	f.BoolVar(&dryRun, "dry-run", false, "print the comment instead of posting it")
	return cmd
}

func (a *app) runReport(ctx context.Context, preview, dryRun bool) error {
	started := time.Now()
	rep, err := validation.LoadReport(a.cfg.Results)
	if err != nil {
		return err
	}
	prNumber := a.cfg.PRNumber
	if prNumber == 0 {
		prNumber = rep.PRNumber
	}
	ctx = logging.WithRun(ctx, rep.RunID, prNumber)

	summary, err := a.loadScan(ctx, rep)
	if err != nil {
		return err
	}

	in := report.Input{Report: rep, Scan: summary, RunURL: a.cfg.RunURL}
	body, err := report.Build(in)
	if err != nil {
		return err
	}

	if preview {
		out, err := report.Preview(body, a.cfg.Report.Style, a.cfg.Report.Width)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(a.stdout, out); err != nil {
			return err
		}
	} else {
		poster, err := a.poster(prNumber, dryRun)
		if err != nil {
			return err
		}
		var url string
		err = workers.Retry(ctx, a.cfg.GitHub.Retry, func(ctx context.Context) error {
			var perr error
			url, perr = poster.Post(ctx, prNumber, report.Marker, body)
			return perr
		})
		if err != nil {
			return err
		}
		if url != "" {
			a.logger.InfoContext(ctx, "comment posted", "url", url)
		}
	}

	a.recordRun(ctx, store.RunReport, a.trigger(), rep, summary, started)

	code := report.ExitCode(in)
	a.logger.InfoContext(ctx, "report finished",
		"errors", len(rep.Result.Errors),
		"blocking", len(summary.Blocking),
		"advisory", len(summary.Advisory),
		"scan_ran", summary.Ran,
		"success", code == 0,
	)
	if code != 0 {
		return exitError{code: code}
	}
	return nil
}

// loadScan reads and classifies the scanner output. Findings are attributed
// to plugins through the checkout directory names of the report's targets.
func (a *app) loadScan(ctx context.Context, rep *schema.ValidationReport) (*schema.ScanSummary, error) {
	if a.cfg.ScanResults == "" {
		return &schema.ScanSummary{}, nil
	}
	classifier, err := scan.NewClassifier(a.cfg.Scan.Blocking)
	if err != nil {
		return nil, err
	}
	dirs := make(map[string]string, len(rep.CloneTargets))
	for _, t := range rep.CloneTargets {
		dirs[filepath.Base(gitrepo.PluginDir(a.cfg.CloneDir, t.PluginID))] = t.PluginID
	}
	return scan.Load(ctx, a.cfg.ScanResults, a.cfg.CloneDir, dirs, classifier)
}

// poster posts to GitHub when credentials and a pull request are known and
// prints the comment otherwise.
func (a *app) poster(prNumber int, dryRun bool) (github.Poster, error) {
	gh := a.cfg.GitHub
	if dryRun || gh.Token == "" || gh.Repository == "" || prNumber <= 0 {
		if !dryRun {
			a.logger.Info("github credentials or pull request missing, printing comment")
		}
		return github.PrintPoster{W: a.stdout}, nil
	}
	client, err := github.NewClient(github.Config{
		APIURL:     gh.APIURL,
		Token:      gh.Token,
		Repository: gh.Repository,
		BotLogin:   gh.BotLogin,
		Timeout:    gh.Timeout,
		UserAgent:  fmt.Sprintf("catalog/%s", version),
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}
