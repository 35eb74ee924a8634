// Package outputs writes named values for later CI steps in the GitHub
// Actions $GITHUB_OUTPUT multiline format.
package outputs

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rendis/catalog/pkg/schema"
)

// Block is one named output value. Values may span lines.
type Block struct {
	Name  string
	Value string
}

// Writer appends blocks to the output file, or to Fallback when Path is empty.
type Writer struct {
	Path     string
	Fallback io.Writer
	// newDelimiter is replaceable in tests.
	newDelimiter func() string
}

// NewWriter creates a Writer for path with stdout as the fallback.
func NewWriter(path string) *Writer {
	return &Writer{Path: path, Fallback: os.Stdout}
}

// Write appends every block as name<<DELIM / value / DELIM.
func (w *Writer) Write(blocks []Block) error {
	var sb strings.Builder
	for _, b := range blocks {
		if b.Name == "" || strings.ContainsAny(b.Name, "\r\n=<") {
			return fmt.Errorf("invalid output name %q", b.Name)
		}
		delim := w.delimiter(b.Value)
		sb.WriteString(b.Name)
		sb.WriteString("<<")
		sb.WriteString(delim)
		sb.WriteByte('\n')
		sb.WriteString(b.Value)
		if b.Value != "" && !strings.HasSuffix(b.Value, "\n") {
			sb.WriteByte('\n')
		}
		sb.WriteString(delim)
		sb.WriteByte('\n')
	}

	if w.Path == "" {
		out := w.Fallback
		if out == nil {
			out = os.Stdout
		}
		_, err := io.WriteString(out, sb.String())
		return err
	}

	f, err := os.OpenFile(w.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	if _, err := f.WriteString(sb.String()); err != nil {
		f.Close()
		return fmt.Errorf("write output file: %w", err)
	}
	return f.Close()
}

// delimiter returns a random delimiter that does not occur in value.
func (w *Writer) delimiter(value string) string {
	gen := w.newDelimiter
	if gen == nil {
		gen = func() string { return "ghadelimiter_" + uuid.NewString() }
	}
	for {
		d := gen()
		if !strings.Contains(value, d) {
			return d
		}
	}
}

// FromReport builds the blocks consumed by the clone and scan steps.
func FromReport(rep *schema.ValidationReport) ([]Block, error) {
	changed := make([]map[string]any, 0, len(rep.Changes))
	for _, c := range rep.Changes {
		changed = append(changed, c.Entry.Raw)
	}
	changedJSON, err := json.Marshal(changed)
	if err != nil {
		return nil, fmt.Errorf("encode changed entries: %w", err)
	}

	targets := make([]string, len(rep.CloneTargets))
	for i, t := range rep.CloneTargets {
		targets[i] = t.String()
	}

	return []Block{
		{Name: "changed", Value: string(changedJSON)},
		{Name: "changed_count", Value: strconv.Itoa(len(rep.Changes))},
		{Name: "errors", Value: strings.Join(rep.Result.ErrorLines(), "\n")},
		{Name: "has_errors", Value: strconv.FormatBool(!rep.Result.Valid())},
		{Name: "clone_targets", Value: strings.Join(targets, "\n")},
	}, nil
}
