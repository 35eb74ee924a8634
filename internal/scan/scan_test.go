package scan

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rendis/catalog/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const semgrepJSON = `{
  "results": [
    {"check_id": "python.lang.security.exec", "path": "plugins/memory/src/run.py",
     "start": {"line": 12}, "extra": {"message": "exec() on input ", "severity": "ERROR"}},
    {"check_id": "python.lang.best-practice.open", "path": "plugins/search/main.py",
     "start": {"line": 3}, "extra": {"message": "use a context manager", "severity": "WARNING"}}
  ],
  "errors": []
}`

const sarifJSON = `{
  "version": "2.1.0",
  "runs": [{
    "tool": {"driver": {"name": "semgrep", "rules": [
      {"id": "r.secret", "defaultConfiguration": {"level": "error"}},
      {"id": "r.note"}
    ]}},
    "results": [
      {"ruleId": "r.secret", "message": {"text": "hardcoded secret"},
       "locations": [{"physicalLocation": {"artifactLocation": {"uri": "file://plugins/memory/cfg.py"}, "region": {"startLine": 4}}}]},
      {"ruleId": "r.note", "message": {"text": "note"}},
      {"ruleId": "r.note", "level": "note", "message": {"text": "explicit"}}
    ]
  }]
}`

func TestParseFindings_Semgrep(t *testing.T) {
	findings, err := ParseFindings([]byte(semgrepJSON))
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, schema.Finding{
		RuleID: "python.lang.security.exec", Message: "exec() on input",
		File: "plugins/memory/src/run.py", Line: 12, Severity: "ERROR",
	}, findings[0])
}

func TestParseFindings_SARIF(t *testing.T) {
	findings, err := ParseFindings([]byte(sarifJSON))
	require.NoError(t, err)
	require.Len(t, findings, 3)
	assert.Equal(t, "error", findings[0].Severity, "rule default level")
	assert.Equal(t, "plugins/memory/cfg.py", findings[0].File)
	assert.Equal(t, 4, findings[0].Line)
	assert.Equal(t, "warning", findings[1].Severity, "SARIF default level")
	assert.Equal(t, "note", findings[2].Severity)
}

func TestParseFindings_Errors(t *testing.T) {
	for name, doc := range map[string]string{
		"malformed": `{"results": [`,
		"unknown":   `{"items": []}`,
		"array":     `[]`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseFindings([]byte(doc))
			require.Error(t, err)
			assert.True(t, schema.HasCode(err, schema.ErrCodeScan), err.Error())
		})
	}

	findings, err := ParseFindings([]byte("  \n"))
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestLoadFindings_Missing(t *testing.T) {
	_, err := LoadFindings(filepath.Join(t.TempDir(), "results.json"))
	assert.True(t, errors.Is(err, ErrNoResults))
}

func TestClassifier_Default(t *testing.T) {
	c, err := NewClassifier("")
	require.NoError(t, err)
	assert.Equal(t, DefaultBlockingExpr, c.Expr())

	out, err := c.Classify(context.Background(), []schema.Finding{
		{Severity: "ERROR"}, {Severity: "WARNING"}, {Severity: "INFO"}, {Severity: "error"}, {Severity: "note"},
	})
	require.NoError(t, err)
	levels := make([]schema.FindingLevel, len(out))
	for i, f := range out {
		levels[i] = f.Level
	}
	assert.Equal(t, []schema.FindingLevel{
		schema.LevelBlocking, schema.LevelAdvisory, schema.LevelAdvisory, schema.LevelBlocking, schema.LevelAdvisory,
	}, levels)
}

func TestClassifier_CustomExpr(t *testing.T) {
	c, err := NewClassifier(`severity == "ERROR" || rule_id startsWith "secrets."`)
	require.NoError(t, err)
	out, err := c.Classify(context.Background(), []schema.Finding{
		{Severity: "INFO", RuleID: "secrets.aws"},
		{Severity: "INFO", RuleID: "style.x"},
	})
	require.NoError(t, err)
	assert.Equal(t, schema.LevelBlocking, out[0].Level)
	assert.Equal(t, schema.LevelAdvisory, out[1].Level)
}

func TestNewClassifier_Invalid(t *testing.T) {
	_, err := NewClassifier(`severity ==`)
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeConfig))

	_, err = NewClassifier(`severity`)
	require.Error(t, err, "non-bool predicate")
}

func TestAttribute(t *testing.T) {
	dirs := map[string]string{"memory": "memory", "web-search": "web/search"}
	out := Attribute([]schema.Finding{
		{File: "plugins/memory/a.py"},
		{File: "./plugins/web-search/b.py"},
		{File: "other/c.py"},
		{File: "plugins/unknown/d.py"},
	}, "plugins", dirs)

	assert.Equal(t, "memory", out[0].PluginID)
	assert.Equal(t, "web/search", out[1].PluginID)
	assert.Empty(t, out[2].PluginID)
	assert.Empty(t, out[3].PluginID)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	c, err := NewClassifier("")
	require.NoError(t, err)

	sum, err := Load(context.Background(), filepath.Join(dir, "none.json"), "plugins", nil, c)
	require.NoError(t, err)
	assert.False(t, sum.Ran)
	assert.False(t, sum.HasBlocking())

	path := filepath.Join(dir, "results.json")
	require.NoError(t, os.WriteFile(path, []byte(semgrepJSON), 0o644))
	sum, err = Load(context.Background(), path, "plugins", map[string]string{"memory": "memory"}, c)
	require.NoError(t, err)
	assert.True(t, sum.Ran)
	require.Len(t, sum.Blocking, 1)
	assert.Equal(t, "memory", sum.Blocking[0].PluginID)
	assert.Len(t, sum.Advisory, 1)
	assert.Equal(t, 2, sum.Total())

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	_, err = Load(context.Background(), bad, "plugins", nil, c)
	assert.True(t, schema.HasCode(err, schema.ErrCodeScan))
}
