package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rendis/catalog/internal/gitrepo"
	"github.com/rendis/catalog/internal/isolation"
	"github.com/rendis/catalog/internal/logging"
	"github.com/rendis/catalog/internal/store"
	"github.com/rendis/catalog/internal/validation"
	"github.com/rendis/catalog/pkg/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app is the state shared by all subcommands of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     Config
	logger  *slog.Logger
	stdout  io.Writer
	stderr  io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{v: newViper(), stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "catalog",
		Short: "Validate and scan plugin catalog pull requests",
		Long: `catalog checks changes to a community plugin registry.

A pull request check runs three steps:
  catalog validate   diff the registry against the base branch and validate new or modified entries
  catalog clone      shallow-clone the changed plugins for the security scanner
  catalog report     combine validation and scan results into one pull request comment`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVarP(&a.cfgFile, "config", "c", "", "config file (default: ./"+defaultConfigFile+" when present)")
	pf.String("registry", "", "path to the registry JSON file")
	pf.String("results", "", "path of the persisted validation report")
	pf.String("db", "", "libSQL database recording run history")
	pf.Int("pr", 0, "pull request number")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: text or json")

	root.AddCommand(
		a.validateCmd(),
		a.cloneCmd(),
		a.reportCmd(),
		a.auditCmd(),
		a.historyCmd(),
		a.mcpCmd(),
		a.configCmd(),
		a.versionCmd(),
	)
	return root
}

// init loads configuration and sets up logging before any subcommand runs.
func (a *app) init(cmd *cobra.Command) error {
	cfg, err := loadConfig(a.v, a.cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.New(a.stderr, cfg.Log.Format, cfg.Log.Level)
	slog.SetDefault(a.logger)
	return nil
}

// newValidator builds the validation pipeline from config.
func (a *app) newValidator() (*validation.Validator, error) {
	opts := validation.Options{Rules: a.cfg.Validation.Rules, Logger: a.logger}
	if a.cfg.Validation.Schema != "" {
		data, err := os.ReadFile(a.cfg.Validation.Schema)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeConfig, "read record schema %s: %v", a.cfg.Validation.Schema, err).WithCause(err)
		}
		opts.ExtraSchema = data
	}
	return validation.New(opts)
}

// newGit creates a git runner confined to roots.
func (a *app) newGit(roots ...string) *gitrepo.Git {
	return gitrepo.New(gitrepo.Config{
		Binary: a.cfg.Git.Binary,
		Limits: isolation.Limits{
			Timeout:      a.cfg.Git.Timeout,
			AllowedRoots: roots,
		},
	})
}

// openStore opens and migrates the run history database, or returns nil
// when none is configured.
func (a *app) openStore(ctx context.Context) (store.Store, error) {
	if a.cfg.DB == "" {
		return nil, nil
	}
	if dir := filepath.Dir(a.cfg.DB); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "create %s: %v", dir, err).WithCause(err)
		}
	}
	st, err := store.NewLibSQLStore(a.cfg.DB)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// recordRun stores a run when a database is configured. Failures are
// logged and never fail the check itself.
func (a *app) recordRun(ctx context.Context, kind store.RunKind, trigger string, rep *schema.ValidationReport, scanSum *schema.ScanSummary, started time.Time) {
	st, err := a.openStore(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "run history unavailable", "error", err)
		return
	}
	if st == nil {
		return
	}
	defer st.Close()

	run := store.NewRun(kind, trigger, rep, scanSum)
	run.DurationMs = time.Since(started).Milliseconds()
	if err := st.RecordRun(ctx, run); err != nil {
		a.logger.WarnContext(ctx, "failed to record run", "error", err)
		return
	}
	a.logger.DebugContext(ctx, "run recorded", "kind", kind, "status", run.Status)
}

// trigger names what started a run.
func (a *app) trigger() string {
	if a.cfg.PRNumber > 0 {
		return "pull_request"
	}
	return "manual"
}

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the catalog configuration file",
	}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a default " + defaultConfigFile,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			path := defaultConfigFile
			if len(args) == 1 {
				path = args[0]
			}
			if err := writeDefaultConfig(path, force); err != nil {
				return err
			}
			_, err := fmt.Fprintf(a.stdout, "wrote %s\n", path)
			return err
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}
