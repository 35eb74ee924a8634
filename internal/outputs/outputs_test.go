package outputs

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rendis/catalog/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_AppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "github_output")
	require.NoError(t, os.WriteFile(path, []byte("previous=1\n"), 0o644))

	w := NewWriter(path)
	w.newDelimiter = func() string { return "EOF" }
	require.NoError(t, w.Write([]Block{
		{Name: "errors", Value: "a: bad\nb: worse"},
		{Name: "has_errors", Value: "true"},
		{Name: "empty", Value: ""},
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "previous=1\n"+
		"errors<<EOF\na: bad\nb: worse\nEOF\n"+
		"has_errors<<EOF\ntrue\nEOF\n"+
		"empty<<EOF\nEOF\n", string(data))
}

func TestWriter_DelimiterNotInValue(t *testing.T) {
	calls := 0
	var buf bytes.Buffer
	w := &Writer{Fallback: &buf, newDelimiter: func() string {
		calls++
		if calls == 1 {
			return "X1"
		}
		return "X2"
	}}
	require.NoError(t, w.Write([]Block{{Name: "v", Value: "contains X1"}}))
	assert.Equal(t, "v<<X2\ncontains X1\nX2\n", buf.String())
}

func TestWriter_RandomDelimiter(t *testing.T) {
	var buf bytes.Buffer
	w := &Writer{Fallback: &buf}
	require.NoError(t, w.Write([]Block{{Name: "v", Value: "x"}}))
	first, _, _ := strings.Cut(buf.String(), "\n")
	assert.True(t, strings.HasPrefix(first, "v<<ghadelimiter_"))
}

func TestWriter_InvalidName(t *testing.T) {
	w := &Writer{Fallback: &bytes.Buffer{}}
	assert.Error(t, w.Write([]Block{{Name: "a=b", Value: "x"}}))
	assert.Error(t, w.Write([]Block{{Name: "", Value: "x"}}))
}

func TestFromReport(t *testing.T) {
	rep := &schema.ValidationReport{
		Changes: []schema.Change{{Kind: schema.ChangeAdded, Entry: schema.Entry{
			Record: schema.PluginRecord{ID: "memory"},
			Raw:    map[string]any{"id": "memory"},
		}}},
		CloneTargets: []schema.CloneTarget{{PluginID: "memory", Repository: "https://github.com/acme/memory", Path: "p"}},
	}
	rep.Result.AddPluginError("plugins[0].version", "memory", "version", schema.IssueMissingField, `missing required field "version"`)

	blocks, err := FromReport(rep)
	require.NoError(t, err)
	got := map[string]string{}
	for _, b := range blocks {
		got[b.Name] = b.Value
	}
	assert.JSONEq(t, `[{"id":"memory"}]`, got["changed"])
	assert.Equal(t, "1", got["changed_count"])
	assert.Equal(t, `memory: missing required field "version"`, got["errors"])
	assert.Equal(t, "true", got["has_errors"])
	assert.Equal(t, "memory https://github.com/acme/memory p", got["clone_targets"])
}
