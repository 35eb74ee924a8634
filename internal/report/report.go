// Package report renders the pull request comment that summarizes validation
// and security scan results, and decides the check's exit status.
package report

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/rendis/catalog/pkg/schema"
)

// Marker identifies the catalog check comment so it can be updated in place.
const Marker = "<!-- plugin-catalog-check -->"

// maxFindingRows bounds each findings table; the remainder is summarized.
const maxFindingRows = 50

//go:embed comment.md.tmpl
var commentTemplate string

var tmpl = template.Must(template.New("comment").Funcs(template.FuncMap{
	"cell":   cell,
	"plural": plural,
	"loc":    location,
}).Parse(commentTemplate))

// Input is everything the comment is built from.
type Input struct {
	Report *schema.ValidationReport
	// Scan is nil or has Ran false when the scanner produced no output.
	Scan *schema.ScanSummary
	// RunURL links to the CI run, optional.
	RunURL string
}

// Success reports whether the check passes: no validation errors and no
// blocking findings. Advisory findings and warnings never fail it.
func Success(in Input) bool {
	return (in.Report == nil || in.Report.Result.Valid()) && !in.Scan.HasBlocking()
}

// ExitCode returns the process status for the check: 0 on success, 1 otherwise.
func ExitCode(in Input) int {
	if Success(in) {
		return 0
	}
	return 1
}

type findingView struct {
	Rows    []schema.Finding
	Omitted int
}

type diffView struct {
	PluginID string
	Diff     string
}

type view struct {
	Marker       string
	Success      bool
	Report       *schema.ValidationReport
	Changes      []schema.Change
	Errors       []schema.ValidationIssue
	Warnings     []schema.ValidationIssue
	ScanRan      bool
	Blocking     findingView
	Advisory     findingView
	Diffs        []diffView
	RunURL       string
	ChangedCount int
}

// Build renders the Markdown comment.
func Build(in Input) (string, error) {
	rep := in.Report
	if rep == nil {
		rep = &schema.ValidationReport{}
	}
	v := view{
		Marker:       Marker,
		Success:      Success(in),
		Report:       rep,
		Changes:      rep.Changes,
		Errors:       rep.Result.Errors,
		Warnings:     rep.Result.Warnings,
		ScanRan:      in.Scan != nil && in.Scan.Ran,
		RunURL:       in.RunURL,
		ChangedCount: len(rep.Changes),
	}
	if in.Scan != nil {
		v.Blocking = limitFindings(in.Scan.Blocking)
		v.Advisory = limitFindings(in.Scan.Advisory)
	}
	for _, c := range rep.Changes {
		if c.Kind != schema.ChangeModified || c.Previous == nil {
			continue
		}
		if d := RecordDiff(c.Previous, c.Entry.Raw); d != "" {
			v.Diffs = append(v.Diffs, diffView{PluginID: c.Entry.Label(), Diff: d})
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("render comment: %w", err)
	}
	return collapseBlankLines(buf.String()), nil
}

func limitFindings(fs []schema.Finding) findingView {
	if len(fs) <= maxFindingRows {
		return findingView{Rows: fs}
	}
	return findingView{Rows: fs[:maxFindingRows], Omitted: len(fs) - maxFindingRows}
}

// cell escapes text for a Markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "|", `\|`)
	if s == "" {
		return "-"
	}
	return s
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

func location(f schema.Finding) string {
	if f.File == "" {
		return "-"
	}
	if f.Line > 0 {
		return fmt.Sprintf("`%s:%d`", f.File, f.Line)
	}
	return "`" + f.File + "`"
}

// collapseBlankLines squeezes runs of blank lines left by template actions.
func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	inFence := false
	for _, l := range lines {
		if strings.HasPrefix(l, "```") {
			inFence = !inFence
		}
		isBlank := strings.TrimSpace(l) == ""
		if isBlank && blank && !inFence {
			continue
		}
		blank = isBlank
		out = append(out, strings.TrimRight(l, " "))
	}
	return strings.TrimSpace(strings.Join(out, "\n")) + "\n"
}
