package registry

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/rendis/catalog/internal/gitrepo"
	"github.com/rendis/catalog/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gitRepoWith(t *testing.T, files map[string]string) (string, *gitrepo.Git) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	g := gitrepo.New(gitrepo.Config{})
	run := func(args ...string) {
		t.Helper()
		res, err := g.Run(context.Background(), dir, args...)
		require.NoError(t, err)
		require.Equal(t, 0, res.ExitCode, res.Stderr)
	}
	run("init", "-q")
	run("checkout", "-q", "-b", "main")
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	run("add", ".")
	run("-c", "user.name=catalog", "-c", "user.email=catalog@example.com", "commit", "-q", "-m", "base")
	return dir, g
}

func TestGitBase_FallsBackToLocalBranch(t *testing.T) {
	dir, g := gitRepoWith(t, map[string]string{"registry.json": sampleRegistry})
	src := &GitBase{Git: g, Dir: dir, Branch: "main", Path: "registry.json"}

	reg, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.NotNil(t, reg)
	assert.Len(t, reg.Plugins, 2)
}

func TestGitBase_MissingFileMeansNoBase(t *testing.T) {
	dir, g := gitRepoWith(t, map[string]string{"README.md": "catalog"})
	src := &GitBase{Git: g, Dir: dir, Branch: "main", Path: "registry.json"}

	reg, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Nil(t, reg)
}

func TestGitBase_UnknownBranch(t *testing.T) {
	dir, g := gitRepoWith(t, map[string]string{"registry.json": sampleRegistry})
	src := &GitBase{Git: g, Dir: dir, Branch: "release", Path: "registry.json"}

	_, err := src.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeGit))
}

func TestGitBase_MalformedBase(t *testing.T) {
	dir, g := gitRepoWith(t, map[string]string{"registry.json": "{"})
	src := &GitBase{Git: g, Dir: dir, Branch: "main", Path: "registry.json"}

	_, err := src.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeParse))
}

func TestGitBase_EmptyBranch(t *testing.T) {
	reg, err := (&GitBase{}).Fetch(context.Background())
	require.NoError(t, err)
	assert.Nil(t, reg)
}

func TestFileBase(t *testing.T) {
	dir := t.TempDir()
	reg, err := (&FileBase{Path: filepath.Join(dir, "nope.json")}).Fetch(context.Background())
	require.NoError(t, err)
	assert.Nil(t, reg)

	path := filepath.Join(dir, "base.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleRegistry), 0o644))
	reg, err = (&FileBase{Path: path}).Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, reg.Plugins, 2)

	reg, err = NoBase{}.Fetch(context.Background())
	require.NoError(t, err)
	assert.Nil(t, reg)
}
