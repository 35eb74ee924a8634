package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rendis/catalog/internal/github"
	"github.com/rendis/catalog/internal/scan"
	"github.com/rendis/catalog/internal/validation"
	"github.com/rendis/catalog/internal/workers"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// defaultConfigFile is looked up in the working directory when --config is not given.
const defaultConfigFile = ".catalog.yaml"

// Config holds all catalog configuration.
// Priority: flags > env vars > config file > defaults.
type Config struct {
	Registry     string `mapstructure:"registry" yaml:"registry"`
	BaseBranch   string `mapstructure:"base_branch" yaml:"base_branch,omitempty"`
	BaseFile     string `mapstructure:"base_file" yaml:"base_file,omitempty"`
	Remote       string `mapstructure:"remote" yaml:"remote"`
	RepoDir      string `mapstructure:"repo_dir" yaml:"repo_dir"`
	Results      string `mapstructure:"results" yaml:"results"`
	CloneDir     string `mapstructure:"clone_dir" yaml:"clone_dir"`
	ScanResults  string `mapstructure:"scan_results" yaml:"scan_results"`
	PRNumber     int    `mapstructure:"pr_number" yaml:"-"`
	DB           string `mapstructure:"db" yaml:"db,omitempty"`
	GitHubOutput string `mapstructure:"github_output" yaml:"-"`
	RunURL       string `mapstructure:"run_url" yaml:"-"`

	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Git        GitConfig        `mapstructure:"git" yaml:"git"`
	Clone      CloneConfig      `mapstructure:"clone" yaml:"clone"`
	GitHub     GitHubConfig     `mapstructure:"github" yaml:"github"`
	Scan       ScanConfig       `mapstructure:"scan" yaml:"scan"`
	Report     ReportConfig     `mapstructure:"report" yaml:"report"`
	Validation ValidationConfig `mapstructure:"validation" yaml:"validation"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // text or json
}

type GitConfig struct {
	Binary  string        `mapstructure:"binary" yaml:"binary"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type CloneConfig struct {
	Parallel int                 `mapstructure:"parallel" yaml:"parallel"`
	Retry    workers.RetryPolicy `mapstructure:"retry" yaml:"retry"`
}

type GitHubConfig struct {
	APIURL     string              `mapstructure:"api_url" yaml:"api_url"`
	Repository string              `mapstructure:"repository" yaml:"repository,omitempty"`
	Token      string              `mapstructure:"token" yaml:"-"`
	BotLogin   string              `mapstructure:"bot_login" yaml:"bot_login"`
	Timeout    time.Duration       `mapstructure:"timeout" yaml:"timeout"`
	Retry      workers.RetryPolicy `mapstructure:"retry" yaml:"retry"`
}

type ScanConfig struct {
	// Blocking is the expr predicate selecting blocking findings.
	Blocking string `mapstructure:"blocking" yaml:"blocking"`
}

type ReportConfig struct {
	Style string `mapstructure:"style" yaml:"style"`
	Width int    `mapstructure:"width" yaml:"width"`
}

type ValidationConfig struct {
	// Schema is an optional JSON Schema file applied to changed records.
	Schema string            `mapstructure:"schema" yaml:"schema,omitempty"`
	Rules  []validation.Rule `mapstructure:"rules" yaml:"rules,omitempty"`
}

func defaultConfig() Config {
	return Config{
		Registry:    "plugins.json",
		Remote:      "origin",
		RepoDir:     ".",
		Results:     filepath.Join(".catalog", "validation.json"),
		CloneDir:    filepath.Join(".catalog", "plugins"),
		ScanResults: filepath.Join(".catalog", "scan.json"),
		Log:         LogConfig{Level: "info", Format: "text"},
		Git:         GitConfig{Binary: "git", Timeout: 2 * time.Minute},
		Clone: CloneConfig{
			Parallel: 4,
			Retry:    workers.RetryPolicy{Attempts: 3, Delay: 2 * time.Second, MaxDelay: 30 * time.Second, Backoff: workers.BackoffExponential},
		},
		GitHub: GitHubConfig{
			APIURL:   github.DefaultAPIURL,
			BotLogin: github.DefaultBotLogin,
			Timeout:  30 * time.Second,
			Retry:    workers.RetryPolicy{Attempts: 3, Delay: time.Second, MaxDelay: 10 * time.Second, Backoff: workers.BackoffExponential},
		},
		Scan:   ScanConfig{Blocking: scan.DefaultBlockingExpr},
		Report: ReportConfig{Style: "auto", Width: 100},
	}
}

// envAliases are the CI environment variables read in addition to the
// CATALOG_* form of every key. Earlier names win.
var envAliases = map[string][]string{
	"base_branch":       {"CATALOG_BASE_BRANCH", "BASE_BRANCH"},
	"scan_results":      {"CATALOG_SCAN_RESULTS", "SCAN_RESULTS"},
	"pr_number":         {"CATALOG_PR_NUMBER", "PR_NUMBER"},
	"github_output":     {"CATALOG_GITHUB_OUTPUT", "GITHUB_OUTPUT"},
	"github.repository": {"CATALOG_GITHUB_REPOSITORY", "GITHUB_REPOSITORY"},
	"github.token":      {"CATALOG_GITHUB_TOKEN", "GITHUB_TOKEN"},
	"github.api_url":    {"CATALOG_GITHUB_API_URL", "GITHUB_API_URL"},
}

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"registry":     "registry",
	"base":         "base_branch",
	"base-file":    "base_file",
	"remote":       "remote",
	"repo-dir":     "repo_dir",
	"results":      "results",
	"clone-dir":    "clone_dir",
	"scan-results": "scan_results",
	"pr":           "pr_number",
	"db":           "db",
	"output":       "github_output",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"style":        "report.style",
	"width":        "report.width",
	"blocking":     "scan.blocking",
	"parallel":     "clone.parallel",
}

// newViper creates a viper instance with defaults and environment bindings.
func newViper() *viper.Viper {
	v := viper.New()
	d := defaultConfig()
	v.SetDefault("registry", d.Registry)
	v.SetDefault("base_branch", "")
	v.SetDefault("base_file", "")
	v.SetDefault("remote", d.Remote)
	v.SetDefault("repo_dir", d.RepoDir)
	v.SetDefault("results", d.Results)
	v.SetDefault("clone_dir", d.CloneDir)
	v.SetDefault("scan_results", d.ScanResults)
	v.SetDefault("pr_number", 0)
	v.SetDefault("db", "")
	v.SetDefault("github_output", "")
	v.SetDefault("run_url", "")
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("git.binary", d.Git.Binary)
	v.SetDefault("git.timeout", d.Git.Timeout)
	setRetryDefaults(v, "clone.retry", d.Clone.Retry)
	v.SetDefault("clone.parallel", d.Clone.Parallel)
	setRetryDefaults(v, "github.retry", d.GitHub.Retry)
	v.SetDefault("github.api_url", d.GitHub.APIURL)
	v.SetDefault("github.repository", "")
	v.SetDefault("github.token", "")
	v.SetDefault("github.bot_login", d.GitHub.BotLogin)
	v.SetDefault("github.timeout", d.GitHub.Timeout)
	v.SetDefault("scan.blocking", d.Scan.Blocking)
	v.SetDefault("report.style", d.Report.Style)
	v.SetDefault("report.width", d.Report.Width)
	v.SetDefault("validation.schema", "")

	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		_ = v.BindEnv(append([]string{key}, names...)...)
	}
	return v
}

func setRetryDefaults(v *viper.Viper, prefix string, p workers.RetryPolicy) {
	v.SetDefault(prefix+".attempts", p.Attempts)
	v.SetDefault(prefix+".delay", p.Delay)
	v.SetDefault(prefix+".max_delay", p.MaxDelay)
	v.SetDefault(prefix+".backoff", p.Backoff)
}

// loadConfig reads the config file (explicit path, or .catalog.yaml when
// present), binds the command's flags and decodes the result.
func loadConfig(v *viper.Viper, cfgFile string, flags *pflag.FlagSet) (Config, error) {
	if cfgFile == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			cfgFile = defaultConfigFile
		}
	}
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if cfg.RunURL == "" {
		cfg.RunURL = actionsRunURL()
	}
	return cfg, nil
}

// actionsRunURL links to the current GitHub Actions run when the standard
// variables are present.
func actionsRunURL() string {
	server, repo, id := os.Getenv("GITHUB_SERVER_URL"), os.Getenv("GITHUB_REPOSITORY"), os.Getenv("GITHUB_RUN_ID")
	if server == "" || repo == "" || id == "" {
		return ""
	}
	return strings.TrimRight(server, "/") + "/" + repo + "/actions/runs/" + id
}

// marshalDefaultConfig renders the default configuration as commented YAML.
func marshalDefaultConfig() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("# Plugin catalog check configuration\n")
	buf.WriteString("# Every key can be overridden with a CATALOG_<KEY> environment variable,\n")
	buf.WriteString("# nested keys joined by underscores (CATALOG_GIT_TIMEOUT).\n\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(defaultConfig()); err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return buf.Bytes(), nil
}

// writeDefaultConfig writes the default configuration to path. An existing
// file is only replaced when force is set.
func writeDefaultConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	data, err := marshalDefaultConfig()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
