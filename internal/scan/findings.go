// Package scan reads the external security scanner's output and classifies
// each finding as blocking or advisory.
package scan

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rendis/catalog/pkg/schema"
)

// ErrNoResults means the scanner output file does not exist, i.e. the scan did not run.
var ErrNoResults = errors.New("scan results not found")

// semgrepOutput is the subset of `semgrep --json` output the catalog reads.
type semgrepOutput struct {
	Results []struct {
		CheckID string `json:"check_id"`
		Path    string `json:"path"`
		Start   struct {
			Line int `json:"line"`
		} `json:"start"`
		Extra struct {
			Message  string `json:"message"`
			Severity string `json:"severity"`
		} `json:"extra"`
	} `json:"results"`
}

// sarifLog is the subset of a SARIF 2.1.0 log the catalog reads.
type sarifLog struct {
	Version string `json:"version"`
	Runs    []struct {
		Tool struct {
			Driver struct {
				Rules []struct {
					ID                   string `json:"id"`
					DefaultConfiguration struct {
						Level string `json:"level"`
					} `json:"defaultConfiguration"`
				} `json:"rules"`
			} `json:"driver"`
		} `json:"tool"`
		Results []struct {
			RuleID  string `json:"ruleId"`
			Level   string `json:"level"`
			Message struct {
				Text string `json:"text"`
			} `json:"message"`
			Locations []struct {
				PhysicalLocation struct {
					ArtifactLocation struct {
						URI string `json:"uri"`
					} `json:"artifactLocation"`
					Region struct {
						StartLine int `json:"startLine"`
					} `json:"region"`
				} `json:"physicalLocation"`
			} `json:"locations"`
		} `json:"results"`
	} `json:"runs"`
}

// LoadFindings reads scanner output from path. A missing file yields ErrNoResults.
func LoadFindings(path string) ([]schema.Finding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoResults
		}
		return nil, schema.NewErrorf(schema.ErrCodeScan, "read scan results %s: %v", path, err).WithCause(err)
	}
	findings, err := ParseFindings(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return findings, nil
}

// ParseFindings decodes semgrep JSON or SARIF 2.1.0 output. Findings are
// returned unclassified.
func ParseFindings(data []byte) ([]schema.Finding, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}

	var head map[string]json.RawMessage
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeScan, "malformed scan results: %v", err).WithCause(err)
	}

	switch {
	case head["runs"] != nil:
		return parseSARIF(data)
	case head["results"] != nil:
		return parseSemgrep(data)
	default:
		return nil, schema.NewError(schema.ErrCodeScan, "unrecognized scan results: expected semgrep \"results\" or SARIF \"runs\"")
	}
}

func parseSemgrep(data []byte) ([]schema.Finding, error) {
	var out semgrepOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeScan, "malformed semgrep results: %v", err).WithCause(err)
	}
	findings := make([]schema.Finding, 0, len(out.Results))
	for _, r := range out.Results {
		findings = append(findings, schema.Finding{
			RuleID:   r.CheckID,
			Message:  strings.TrimSpace(r.Extra.Message),
			File:     r.Path,
			Line:     r.Start.Line,
			Severity: r.Extra.Severity,
		})
	}
	return findings, nil
}

func parseSARIF(data []byte) ([]schema.Finding, error) {
	var log sarifLog
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeScan, "malformed SARIF results: %v", err).WithCause(err)
	}
	var findings []schema.Finding
	for _, run := range log.Runs {
		defaults := make(map[string]string, len(run.Tool.Driver.Rules))
		for _, rule := range run.Tool.Driver.Rules {
			defaults[rule.ID] = rule.DefaultConfiguration.Level
		}
		for _, r := range run.Results {
			level := r.Level
			if level == "" {
				level = defaults[r.RuleID]
			}
			if level == "" {
				// SARIF's default result level.
				level = "warning"
			}
			f := schema.Finding{
				RuleID:   r.RuleID,
				Message:  strings.TrimSpace(r.Message.Text),
				Severity: level,
			}
			if len(r.Locations) > 0 {
				loc := r.Locations[0].PhysicalLocation
				f.File = strings.TrimPrefix(loc.ArtifactLocation.URI, "file://")
				f.Line = loc.Region.StartLine
			}
			findings = append(findings, f)
		}
	}
	return findings, nil
}
