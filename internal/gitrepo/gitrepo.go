// Package gitrepo runs the git operations the catalog checks need: reading the
// registry as it exists on the base branch and shallow-cloning plugin sources.
package gitrepo

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/rendis/catalog/internal/isolation"
	"github.com/rendis/catalog/pkg/schema"
)

const (
	defaultGitTimeout    = 2 * time.Minute
	defaultMaxOutputSize = 10 * 1024 * 1024 // 10MB
)

var (
	// ErrPathNotFound is returned when a file does not exist at the requested ref.
	ErrPathNotFound = errors.New("path not found at ref")
	// ErrRefNotFound is returned when the requested ref cannot be resolved.
	ErrRefNotFound = errors.New("ref not found")
)

// Config configures the git runner.
type Config struct {
	Binary        string
	Isolator      isolation.Isolator
	Limits        isolation.Limits
	MaxOutputSize int64
}

// Git executes git subcommands through an isolator.
type Git struct {
	cfg Config
}

// New creates a Git runner, filling defaults for unset config fields.
func New(cfg Config) *Git {
	if cfg.Binary == "" {
		cfg.Binary = "git"
	}
	if cfg.Isolator == nil {
		cfg.Isolator = isolation.NewFallbackIsolator()
	}
	if cfg.Limits.Timeout <= 0 {
		cfg.Limits.Timeout = defaultGitTimeout
	}
	if cfg.MaxOutputSize <= 0 {
		cfg.MaxOutputSize = defaultMaxOutputSize
	}
	return &Git{cfg: cfg}
}

// Result captures the outcome of a git invocation.
type Result struct {
	Stdout   []byte
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Run executes git with args in dir. A non-zero exit is reported in Result,
// not as an error; errors are reserved for failures to start or time out.
func (g *Git) Run(ctx context.Context, dir string, args ...string) (*Result, error) {
	cmd := exec.Command(g.cfg.Binary, args...)
	cmd.Dir = dir

	wrapped, cleanup, err := g.cfg.Isolator.Wrap(ctx, cmd, g.cfg.Limits)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeGit, "git %s: %v", subcommand(args), err).WithCause(err)
	}
	defer cleanup()

	var stdoutBuf, stderrBuf bytes.Buffer
	wrapped.Stdout = &limitedWriter{w: &stdoutBuf, limit: g.cfg.MaxOutputSize}
	wrapped.Stderr = &limitedWriter{w: &stderrBuf, limit: g.cfg.MaxOutputSize}

	start := time.Now()
	runErr := wrapped.Run()
	res := &Result{
		Stdout:   stdoutBuf.Bytes(),
		Stderr:   strings.TrimSpace(stderrBuf.String()),
		Duration: time.Since(start),
	}

	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, schema.NewErrorf(schema.ErrCodeGit, "git %s: %v", subcommand(args), ctxErr).WithCause(ctxErr)
		}
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, schema.NewErrorf(schema.ErrCodeGit, "git %s: %v", subcommand(args), runErr).WithCause(runErr)
		}
		res.ExitCode = exitErr.ExitCode()
		if res.ExitCode < 0 {
			return nil, schema.NewErrorf(schema.ErrCodeGit, "git %s: killed after %s", subcommand(args), res.Duration.Round(time.Millisecond)).WithCause(runErr)
		}
	}
	return res, nil
}

// Show returns the content of path at ref in the repository at dir.
func (g *Git) Show(ctx context.Context, dir, ref, path string) ([]byte, error) {
	res, err := g.Run(ctx, dir, "show", ref+":"+path)
	if err != nil {
		return nil, err
	}
	if res.ExitCode == 0 {
		return res.Stdout, nil
	}

	switch {
	case strings.Contains(res.Stderr, "does not exist in"),
		strings.Contains(res.Stderr, "exists on disk, but not in"):
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "%s does not exist at %s", path, ref).WithCause(ErrPathNotFound)
	case strings.Contains(res.Stderr, "invalid object name"),
		strings.Contains(res.Stderr, "unknown revision"),
		strings.Contains(res.Stderr, "bad revision"):
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "ref %s not found", ref).WithCause(ErrRefNotFound)
	}
	return nil, schema.NewErrorf(schema.ErrCodeGit, "git show %s:%s exited %d: %s", ref, path, res.ExitCode, res.Stderr)
}

func subcommand(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// limitedWriter wraps a writer and silently discards bytes beyond the limit.
// Write always reports the full len(p) consumed to prevent the subprocess from
// blocking on a full pipe.
type limitedWriter struct {
	w       io.Writer
	limit   int64
	written int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	total := len(p)
	remaining := lw.limit - lw.written
	if remaining <= 0 {
		return total, nil
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := lw.w.Write(p)
	lw.written += int64(n)
	if err != nil {
		return total, err
	}
	return total, nil
}
