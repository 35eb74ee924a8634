package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/rendis/catalog/internal/gitrepo"
	"github.com/rendis/catalog/pkg/schema"
)

// BaseSource fetches the registry as it exists on the base branch.
// A nil registry with a nil error means there is no base version and every
// head record counts as new.
type BaseSource interface {
	Fetch(ctx context.Context) (*schema.Registry, error)
}

// GitBase reads the base registry from a git repository with git show.
type GitBase struct {
	Git    *gitrepo.Git
	Dir    string // repository working directory
	Remote string // defaults to "origin"
	Branch string // base branch; empty means no base
	Path   string // registry path relative to the repository root
	Logger *slog.Logger
}

// Fetch tries <remote>/<branch> first and falls back to the local <branch>.
func (b *GitBase) Fetch(ctx context.Context) (*schema.Registry, error) {
	if b.Branch == "" {
		return nil, nil
	}
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	remote := b.Remote
	if remote == "" {
		remote = "origin"
	}

	refs := []string{remote + "/" + b.Branch, b.Branch}
	var lastErr error
	for _, ref := range refs {
		data, err := b.Git.Show(ctx, b.Dir, ref, b.Path)
		switch {
		case err == nil:
			reg, perr := Parse(data)
			if perr != nil {
				return nil, fmt.Errorf("base registry %s:%s: %w", ref, b.Path, perr)
			}
			logger.Debug("loaded base registry", "ref", ref, "plugins", len(reg.Plugins))
			return reg, nil
		case errors.Is(err, gitrepo.ErrPathNotFound):
			logger.Info("registry not present on base branch, treating all records as new", "ref", ref, "path", b.Path)
			return nil, nil
		case errors.Is(err, gitrepo.ErrRefNotFound):
			lastErr = err
			continue
		default:
			return nil, err
		}
	}
	return nil, schema.NewErrorf(schema.ErrCodeGit, "base branch %q not found", b.Branch).WithCause(lastErr)
}

// FileBase reads the base registry from a file. A missing file means no base.
type FileBase struct {
	Path string
}

// Fetch loads the file, returning nil when it does not exist.
func (b *FileBase) Fetch(_ context.Context) (*schema.Registry, error) {
	if b.Path == "" {
		return nil, nil
	}
	if _, err := os.Stat(b.Path); os.IsNotExist(err) {
		return nil, nil
	}
	return Load(b.Path)
}

// NoBase is a BaseSource without a base version.
type NoBase struct{}

// Fetch always returns nil.
func (NoBase) Fetch(context.Context) (*schema.Registry, error) { return nil, nil }
