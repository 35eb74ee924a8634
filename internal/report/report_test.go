package report

import (
	"fmt"
	"strings"
	"testing"

	"github.com/rendis/catalog/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func entry(id, version string) schema.Entry {
	raw := map[string]any{"id": id, "version": version, "repository": "https://github.com/acme/" + id}
	return schema.Entry{Record: schema.RecordFromRaw(raw), Raw: raw}
}

func cleanReport() *schema.ValidationReport {
	return &schema.ValidationReport{
		TotalCount: 3,
		Changes:    []schema.Change{{Kind: schema.ChangeAdded, Entry: entry("memory", "1.0.0")}},
	}
}

func TestBuild_Success(t *testing.T) {
	in := Input{Report: cleanReport(), Scan: &schema.ScanSummary{Ran: true}}
	md, err := Build(in)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(md, Marker))
	assert.Contains(t, md, "✅ Plugin catalog check passed")
	assert.Contains(t, md, "1 new or modified entry of 3")
	assert.Contains(t, md, "| `memory` | added | 1.0.0 | https://github.com/acme/memory |")
	assert.Contains(t, md, "No validation errors.")
	assert.Contains(t, md, "No findings.")
	assert.NotContains(t, md, "\n\n\n")
	assert.Equal(t, 0, ExitCode(in))
}

func TestBuild_NoChanges(t *testing.T) {
	md, err := Build(Input{Report: &schema.ValidationReport{TotalCount: 5}, Scan: &schema.ScanSummary{Ran: true}})
	require.NoError(t, err)
	assert.Contains(t, md, "No new or modified plugin entries (5 in the registry).")
	assert.NotContains(t, md, "| Plugin | Change |")
}

func TestBuild_ValidationErrors(t *testing.T) {
	rep := cleanReport()
	rep.Result.AddPluginError("plugins[0].repository", "memory", "repository", schema.IssueInvalidURL, "bad | url")
	rep.Result.AddPluginWarning("plugins[0].tags", "memory", "tags", schema.IssueDuplicateTag, "tag twice")
	in := Input{Report: rep, Scan: &schema.ScanSummary{Ran: true}}

	md, err := Build(in)
	require.NoError(t, err)
	assert.Contains(t, md, "❌ Plugin catalog check failed")
	assert.Contains(t, md, "1 error:")
	assert.Contains(t, md, "- ❌ **memory** `repository`: bad | url")
	assert.Contains(t, md, "1 warning:")
	assert.Equal(t, 1, ExitCode(in))
}

func TestBuild_ScanNotRun(t *testing.T) {
	for _, scan := range []*schema.ScanSummary{nil, {Ran: false}} {
		in := Input{Report: cleanReport(), Scan: scan}
		md, err := Build(in)
		require.NoError(t, err)
		assert.Contains(t, md, "security scan did not run")
		assert.Equal(t, 0, ExitCode(in), "a missing scan does not fail the check")
	}
}

func TestBuild_Findings(t *testing.T) {
	scan := &schema.ScanSummary{
		Ran: true,
		Blocking: []schema.Finding{{RuleID: "exec", File: "memory/run.py", Line: 3, Message: "exec\ncall", PluginID: "memory", Level: schema.LevelBlocking}},
		Advisory: []schema.Finding{{RuleID: "style", Message: "nit", Level: schema.LevelAdvisory}},
	}
	md, err := Build(Input{Report: cleanReport(), Scan: scan, RunURL: "https://ci/run/1"})
	require.NoError(t, err)

	assert.Contains(t, md, "**1 blocking finding** must be fixed")
	assert.Contains(t, md, "| memory | `exec` | `memory/run.py:3` | exec call |")
	assert.Contains(t, md, "<summary>1 advisory finding</summary>")
	assert.Contains(t, md, "| - | `style` | - | nit |")
	assert.Contains(t, md, "[View the workflow run](https://ci/run/1)")
}

func TestBuild_TruncatesFindings(t *testing.T) {
	scan := &schema.ScanSummary{Ran: true}
	for i := 0; i < maxFindingRows+7; i++ {
		scan.Advisory = append(scan.Advisory, schema.Finding{RuleID: fmt.Sprintf("r%d", i), Level: schema.LevelAdvisory})
	}
	md, err := Build(Input{Report: cleanReport(), Scan: scan})
	require.NoError(t, err)
	assert.Contains(t, md, "…and 7 more.")
	assert.Contains(t, md, "No blocking findings.")
}

func TestBuild_ModifiedDiff(t *testing.T) {
	rep := cleanReport()
	cur := entry("search", "1.1.0")
	rep.Changes = append(rep.Changes, schema.Change{
		Kind:     schema.ChangeModified,
		Entry:    cur,
		Previous: map[string]any{"id": "search", "version": "1.0.0", "repository": "https://github.com/acme/search"},
	})
	md, err := Build(Input{Report: rep, Scan: &schema.ScanSummary{Ran: true}})
	require.NoError(t, err)
	assert.Contains(t, md, "### Changes to existing entries")
	assert.Contains(t, md, `-   "version": "1.0.0"`)
	assert.Contains(t, md, `+   "version": "1.1.0"`)
}

func TestRecordDiff(t *testing.T) {
	assert.Empty(t, RecordDiff(map[string]any{"a": 1.0}, map[string]any{"a": 1.0}))

	d := RecordDiff(
		map[string]any{"id": "x", "tags": []any{"a"}},
		map[string]any{"id": "x", "tags": []any{"a", "b"}},
	)
	assert.Contains(t, d, `    "a"`)
	assert.Contains(t, d, `+     "b"`)
	assert.Contains(t, d, `    "id": "x",`)
}

func TestCell(t *testing.T) {
	assert.Equal(t, "-", cell(""))
	assert.Equal(t, `a \| b c`, cell("a | b\nc"))
}

func TestPreview(t *testing.T) {
	md, err := Build(Input{Report: cleanReport(), Scan: &schema.ScanSummary{Ran: true}})
	require.NoError(t, err)
	out, err := Preview(md, "notty", 80)
	require.NoError(t, err)
	assert.Contains(t, out, "Plugin catalog check passed")
}

// With no validation errors and no findings the comment reports success.
func TestProperty_CleanRunReportsSuccess(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		rep := &schema.ValidationReport{TotalCount: rapid.IntRange(0, 500).Draw(rt, "total")}
		n := rapid.IntRange(0, 5).Draw(rt, "changes")
		for i := 0; i < n; i++ {
			rep.Changes = append(rep.Changes, schema.Change{Kind: schema.ChangeAdded, Entry: entry(fmt.Sprintf("p%d", i), "1.0.0")})
		}
		warnings := rapid.IntRange(0, 3).Draw(rt, "warnings")
		for i := 0; i < warnings; i++ {
			rep.Result.AddWarning("", schema.IssueDuplicateTag, "w")
		}
		in := Input{Report: rep, Scan: &schema.ScanSummary{Ran: true}}
		md, err := Build(in)
		if err != nil {
			rt.Fatal(err)
		}
		if !strings.Contains(md, "check passed") || ExitCode(in) != 0 {
			rt.Fatalf("clean run not reported as success:\n%s", md)
		}
	})
}

// Any blocking finding fails the check whatever the advisory findings are.
func TestProperty_BlockingFindingFails(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		scan := &schema.ScanSummary{Ran: true}
		for i := rapid.IntRange(1, 4).Draw(rt, "blocking"); i > 0; i-- {
			scan.Blocking = append(scan.Blocking, schema.Finding{RuleID: "b", Level: schema.LevelBlocking})
		}
		for i := rapid.IntRange(0, 10).Draw(rt, "advisory"); i > 0; i-- {
			scan.Advisory = append(scan.Advisory, schema.Finding{RuleID: "a", Level: schema.LevelAdvisory})
		}
		in := Input{Report: cleanReport(), Scan: scan}
		if ExitCode(in) != 1 {
			rt.Fatalf("blocking findings did not fail the check")
		}
		md, err := Build(in)
		if err != nil {
			rt.Fatal(err)
		}
		if !strings.Contains(md, "check failed") {
			rt.Fatalf("comment does not report failure")
		}
	})
}
