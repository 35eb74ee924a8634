package report

import (
	"fmt"

	"github.com/charmbracelet/glamour"
)

// Preview renders the comment Markdown for a terminal. style is a glamour
// style name ("auto", "dark", "light", "notty") or a style file path.
func Preview(markdown, style string, width int) (string, error) {
	if style == "" {
		style = "auto"
	}
	if width <= 0 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("create markdown renderer: %w", err)
	}
	out, err := r.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return out, nil
}
