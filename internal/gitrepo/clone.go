package gitrepo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rendis/catalog/pkg/schema"
)

var (
	unsafeDirChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
	plainDirName   = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)
)

// CloneResult describes a cloned plugin source tree.
type CloneResult struct {
	Target    schema.CloneTarget `json:"target"`
	Dir       string             `json:"dir"`
	PathFound bool               `json:"path_found"`
}

// PluginDir returns the directory under root a plugin is cloned into.
// Lowercase ids made of safe characters are used as is. Any other id is
// sanitized and suffixed with a hash of the raw id, so distinct ids never
// share a directory, even on case-insensitive filesystems.
func PluginDir(root, pluginID string) string {
	if plainDirName.MatchString(pluginID) && !strings.HasSuffix(pluginID, ".") {
		return filepath.Join(root, pluginID)
	}
	name := strings.Trim(unsafeDirChars.ReplaceAllString(pluginID, "-"), ".-")
	if name == "" {
		name = "plugin"
	}
	sum := sha256.Sum256([]byte(pluginID))
	return filepath.Join(root, name+"-"+hex.EncodeToString(sum[:4]))
}

// Clone shallow-clones target into PluginDir(root, target.PluginID), replacing
// any previous checkout, and checks that the plugin path exists in it.
func (g *Git) Clone(ctx context.Context, target schema.CloneTarget, root string) (*CloneResult, error) {
	dir := PluginDir(root, target.PluginID)
	if err := g.cfg.Limits.ConfineDir(dir); err != nil {
		return nil, err
	}
	if err := os.RemoveAll(dir); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeGit, "clean %s: %v", dir, err).WithPlugin(target.PluginID).WithCause(err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeGit, "create %s: %v", root, err).WithPlugin(target.PluginID).WithCause(err)
	}

	args := []string{"clone", "--depth", "1", "--single-branch", "--no-tags"}
	if target.Branch != "" {
		args = append(args, "--branch", target.Branch)
	}
	args = append(args, "--", target.Repository, dir)

	res, err := g.Run(ctx, root, args...)
	if err != nil {
		var ce *schema.CatalogError
		if errors.As(err, &ce) {
			return nil, ce.WithPlugin(target.PluginID)
		}
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, schema.NewErrorf(schema.ErrCodeGit, "git clone %s exited %d: %s",
			target.Repository, res.ExitCode, res.Stderr).WithPlugin(target.PluginID)
	}

	found, err := PathExists(dir, target.Path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeGit, "check path %q: %v", target.Path, err).WithPlugin(target.PluginID).WithCause(err)
	}
	return &CloneResult{Target: target, Dir: dir, PathFound: found}, nil
}

// PathExists reports whether rel exists inside dir. Paths escaping dir are an error.
func PathExists(dir, rel string) (bool, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return false, fmt.Errorf("path %q escapes the repository", rel)
	}
	_, err := os.Stat(filepath.Join(dir, clean))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
