// Package isolation runs external tools (git, scanners) against untrusted
// plugin repositories with a deadline, a scrubbed environment and confined
// working directories.
package isolation

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rendis/catalog/pkg/schema"
)

// Limits specifies constraints for an external process.
type Limits struct {
	Timeout time.Duration `json:"timeout,omitempty"`
	// AllowedRoots confines working directories. Empty means unrestricted.
	AllowedRoots []string `json:"allowed_roots,omitempty"`
	// PassEnv lists variables inherited from the parent environment.
	// PATH and HOME are always inherited.
	PassEnv []string `json:"pass_env,omitempty"`
}

// baseEnv disables interactive prompts and repository-provided hooks for git.
var baseEnv = []string{
	"GIT_TERMINAL_PROMPT=0",
	"GIT_CONFIG_NOSYSTEM=1",
	"GIT_LFS_SKIP_SMUDGE=1",
}

// ConfineDir checks that dir is under one of the allowed roots.
func (l Limits) ConfineDir(dir string) error {
	if len(l.AllowedRoots) == 0 {
		return nil
	}
	clean, err := resolveCleanPath(dir)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodePathDenied, "invalid path %q: %v", dir, err)
	}
	for _, root := range l.AllowedRoots {
		base, err := resolveCleanPath(root)
		if err != nil {
			continue
		}
		if isUnderPath(clean, base) {
			return nil
		}
	}
	return schema.NewErrorf(schema.ErrCodePathDenied, "directory %q is outside the workspace", dir)
}

// Environ builds the child environment from the parent environment.
func (l Limits) Environ() []string {
	keep := map[string]bool{"PATH": true, "HOME": true}
	for _, k := range l.PassEnv {
		keep[k] = true
	}
	env := make([]string, 0, len(keep)+len(baseEnv))
	for _, kv := range os.Environ() {
		k, _, ok := strings.Cut(kv, "=")
		if ok && keep[k] {
			env = append(env, kv)
		}
	}
	return append(env, baseEnv...)
}

// Isolator wraps a command with process isolation.
type Isolator interface {
	Wrap(ctx context.Context, cmd *exec.Cmd, limits Limits) (*exec.Cmd, func(), error)
}

// resolveCleanPath cleans and resolves a path to absolute.
// Walks up ancestors to resolve symlinks on the longest existing prefix,
// so clone destinations that do not exist yet resolve consistently.
func resolveCleanPath(path string) (string, error) {
	if strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("path contains null byte")
	}

	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", err
	}

	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}

	return resolveAncestor(abs), nil
}

// resolveAncestor walks up from path until it finds an existing directory,
// resolves symlinks on that ancestor, and re-appends the unresolved suffix.
func resolveAncestor(path string) string {
	dir := path
	for range 256 {
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		resolved, err := filepath.EvalSymlinks(parent)
		if err == nil {
			rel, err := filepath.Rel(parent, path)
			if err != nil {
				return path
			}
			return filepath.Join(resolved, rel)
		}
		dir = parent
	}
	return path
}

// isUnderPath returns true if path is under (or equal to) the base directory.
// Uses filepath.Rel to avoid string-prefix false positives (e.g. /tmp vs /tmpevil).
func isUnderPath(path, base string) bool {
	if path == base {
		return true
	}
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
