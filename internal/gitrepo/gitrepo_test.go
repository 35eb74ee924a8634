package gitrepo

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/rendis/catalog/internal/isolation"
	"github.com/rendis/catalog/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

// initRepo creates a repository on branch main with the given files committed.
func initRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	requireGit(t)
	dir := t.TempDir()
	g := New(Config{})
	run := func(args ...string) {
		t.Helper()
		res, err := g.Run(context.Background(), dir, args...)
		require.NoError(t, err)
		require.Equal(t, 0, res.ExitCode, res.Stderr)
	}
	run("init", "-q")
	run("checkout", "-q", "-b", "main")
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	run("add", ".")
	run("-c", "user.name=catalog", "-c", "user.email=catalog@example.com", "commit", "-q", "-m", "init")
	return dir
}

func TestShow_ReturnsFileAtRef(t *testing.T) {
	dir := initRepo(t, map[string]string{"registry.json": `{"plugins":[]}`})
	data, err := New(Config{}).Show(context.Background(), dir, "main", "registry.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"plugins":[]}`, string(data))
}

func TestShow_MissingPath(t *testing.T) {
	dir := initRepo(t, map[string]string{"README.md": "hi"})
	_, err := New(Config{}).Show(context.Background(), dir, "main", "registry.json")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPathNotFound), err.Error())
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestShow_MissingRef(t *testing.T) {
	dir := initRepo(t, map[string]string{"registry.json": "{}"})
	_, err := New(Config{}).Show(context.Background(), dir, "origin/nope", "registry.json")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRefNotFound), err.Error())
}

func TestRun_NonZeroExitIsResult(t *testing.T) {
	requireGit(t)
	res, err := New(Config{}).Run(context.Background(), t.TempDir(), "rev-parse", "HEAD")
	require.NoError(t, err)
	assert.NotEqual(t, 0, res.ExitCode)
	assert.NotEmpty(t, res.Stderr)
}

func TestRun_MissingBinary(t *testing.T) {
	_, err := New(Config{Binary: "definitely-not-git-binary"}).Run(context.Background(), t.TempDir(), "status")
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeGit))
}

func TestRun_DirOutsideWorkspace(t *testing.T) {
	g := New(Config{Limits: isolation.Limits{AllowedRoots: []string{t.TempDir()}, Timeout: time.Second}})
	_, err := g.Run(context.Background(), t.TempDir(), "status")
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeGit))
}

func TestClone_PathFound(t *testing.T) {
	src := initRepo(t, map[string]string{"plugins/memory/plugin.py": "print('hi')"})
	root := t.TempDir()

	res, err := New(Config{}).Clone(context.Background(), schema.CloneTarget{
		PluginID:   "memory",
		Repository: "file://" + src,
		Path:       "plugins/memory",
		Branch:     "main",
	}, root)
	require.NoError(t, err)
	assert.True(t, res.PathFound)
	assert.Equal(t, filepath.Join(root, "memory"), res.Dir)
	assert.FileExists(t, filepath.Join(res.Dir, "plugins", "memory", "plugin.py"))
}

func TestClone_PathMissing(t *testing.T) {
	src := initRepo(t, map[string]string{"README.md": "hi"})
	res, err := New(Config{}).Clone(context.Background(), schema.CloneTarget{
		PluginID: "memory", Repository: "file://" + src, Path: "plugins/memory",
	}, t.TempDir())
	require.NoError(t, err)
	assert.False(t, res.PathFound)
}

func TestClone_ReplacesPreviousCheckout(t *testing.T) {
	src := initRepo(t, map[string]string{"a.txt": "a"})
	root := t.TempDir()
	stale := filepath.Join(root, "memory", "stale.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))

	_, err := New(Config{}).Clone(context.Background(), schema.CloneTarget{
		PluginID: "memory", Repository: "file://" + src, Path: ".",
	}, root)
	require.NoError(t, err)
	assert.NoFileExists(t, stale)
}

func TestClone_BadRepository(t *testing.T) {
	requireGit(t)
	_, err := New(Config{}).Clone(context.Background(), schema.CloneTarget{
		PluginID: "ghost", Repository: "file://" + filepath.Join(t.TempDir(), "missing"), Path: ".",
	}, t.TempDir())
	require.Error(t, err)
	var ce *schema.CatalogError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "ghost", ce.PluginID)
}

func TestPluginDir(t *testing.T) {
	assert.Equal(t, filepath.Join("r", "memory"), PluginDir("r", "memory"))
	assert.Equal(t, filepath.Join("r", "a-b"), PluginDir("r", "a-b"))
	assert.Equal(t, filepath.Join("r", "web.tools_2"), PluginDir("r", "web.tools_2"))

	for _, id := range []string{"a/b", "../..", "", "My Plugin", "x."} {
		dir := PluginDir("r", id)
		assert.Equal(t, "r", filepath.Dir(dir), id)
		assert.NotContains(t, filepath.Base(dir), "/", id)
		assert.NotEqual(t, "..", filepath.Base(dir), id)
		assert.Equal(t, dir, PluginDir("r", id), "stable for %q", id)
	}
	assert.Regexp(t, `^a-b-[0-9a-f]{8}$`, filepath.Base(PluginDir("r", "a/b")))
	assert.Regexp(t, `^plugin-[0-9a-f]{8}$`, filepath.Base(PluginDir("r", "../..")))
}

func TestPluginDir_DistinctIDsNeverShareDir(t *testing.T) {
	pairs := [][2]string{
		{"my plugin", "my-plugin"},
		{"a/b", "a-b"},
		{"Clock", "clock"},
		{"../..", "plugin"},
		{"", "plugin"},
		{"x.", "x"},
	}
	for _, p := range pairs {
		assert.NotEqual(t, PluginDir("/w", p[0]), PluginDir("/w", p[1]), "%q vs %q", p[0], p[1])
	}
}

func TestPluginDir_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.String().Draw(t, "a")
		b := rapid.String().Draw(t, "b")
		if a == b {
			return
		}
		if PluginDir("/w", a) == PluginDir("/w", b) {
			t.Fatalf("%q and %q share %s", a, b, PluginDir("/w", a))
		}
	})
}

func TestPathExists(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))

	ok, err := PathExists(dir, "sub")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = PathExists(dir, "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = PathExists(dir, "../etc")
	assert.Error(t, err)
	_, err = PathExists(dir, "/etc")
	assert.Error(t, err)
}

func TestLimitedWriter(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 4}
	n, err := lw.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	n, err = lw.Write([]byte("gh"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "abcd", buf.String())
}
