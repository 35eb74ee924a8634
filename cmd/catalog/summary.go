package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/rendis/catalog/internal/store"
	"github.com/rendis/catalog/pkg/schema"
)

var (
	successColor = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	warningColor = lipgloss.AdaptiveColor{Light: "#B7950B", Dark: "#FECA57"}
	errorColor   = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF8787"}
	mutedColor   = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#999999"}

	titleStyle   = lipgloss.NewStyle().Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(warningColor)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	labelStyle   = lipgloss.NewStyle().Width(12)
)

// printValidationSummary writes a human readable summary of a validation report.
func printValidationSummary(w io.Writer, rep *schema.ValidationReport) {
	var sb strings.Builder

	status := successStyle.Render("PASS")
	if !rep.Result.Valid() {
		status = errorStyle.Render("FAIL")
	}
	sb.WriteString(titleStyle.Render("Plugin catalog validation") + "  " + status + "\n")
	sb.WriteString(mutedStyle.Render(fmt.Sprintf("%d changed of %d entries, %d unchanged",
		len(rep.Changes), rep.TotalCount, rep.UnchangedCount)) + "\n")

	for _, c := range rep.Changes {
		sb.WriteString("  " + labelStyle.Render(string(c.Kind)) + c.Entry.Label() + "\n")
	}
	for _, is := range rep.Result.Errors {
		sb.WriteString(errorStyle.Render("  error   ") + is.String() + "\n")
	}
	for _, is := range rep.Result.Warnings {
		sb.WriteString(warningStyle.Render("  warning ") + is.String() + "\n")
	}
	if len(rep.CloneTargets) > 0 {
		sb.WriteString(mutedStyle.Render(fmt.Sprintf("%d plugin(s) queued for scanning", len(rep.CloneTargets))) + "\n")
	}
	_, _ = io.WriteString(w, sb.String())
}

// printRuns writes a table of recorded runs.
func printRuns(w io.Writer, runs []*store.Run) {
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(w, mutedStyle.Render("no runs recorded"))
		return
	}
	header := fmt.Sprintf("%-36s  %-8s  %-6s  %-4s  %7s  %6s  %8s  %s",
		"RUN", "KIND", "STATUS", "PR", "CHANGED", "ERRORS", "BLOCKING", "CREATED")
	_, _ = fmt.Fprintln(w, titleStyle.Render(header))
	for _, r := range runs {
		statusStyle := successStyle
		if r.Status == store.StatusFailed {
			statusStyle = errorStyle
		}
		pr := "-"
		if r.PRNumber > 0 {
			pr = strconv.Itoa(r.PRNumber)
		}
		_, _ = fmt.Fprintf(w, "%-36s  %-8s  %s  %-4s  %7d  %6d  %8d  %s\n",
			r.ID, r.Kind, statusStyle.Render(fmt.Sprintf("%-6s", r.Status)), pr,
			r.Changed, r.Errors, r.Blocking, r.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
}

// printIssues writes recorded issues, one per line.
func printIssues(w io.Writer, issues []store.Issue) {
	if len(issues) == 0 {
		_, _ = fmt.Fprintln(w, mutedStyle.Render("no issues recorded"))
		return
	}
	for _, is := range issues {
		style := errorStyle
		if is.Severity == schema.SeverityWarning {
			style = warningStyle
		}
		_, _ = fmt.Fprintf(w, "%s %s  %s  %s\n", style.Render(fmt.Sprintf("%-7s", is.Severity)),
			mutedStyle.Render(is.RunID), is.Code, schema.ValidationIssue{PluginID: is.PluginID, Path: is.Path, Message: is.Message})
	}
}
