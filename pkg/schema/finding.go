package schema

// FindingLevel is the merge-gating class of a scan finding.
type FindingLevel string

const (
	// LevelBlocking findings fail the check.
	LevelBlocking FindingLevel = "blocking"
	// LevelAdvisory findings are reported but never fail the check.
	LevelAdvisory FindingLevel = "advisory"
)

// Finding is a single result reported by the external security scanner.
type Finding struct {
	RuleID   string       `json:"rule_id"`
	Message  string       `json:"message"`
	File     string       `json:"file"`
	Line     int          `json:"line,omitempty"`
	Severity string       `json:"severity"`
	PluginID string       `json:"plugin_id,omitempty"`
	Level    FindingLevel `json:"level"`
}

// ScanSummary aggregates classified findings.
type ScanSummary struct {
	// Ran is false when no scanner output was available.
	Ran      bool      `json:"ran"`
	Blocking []Finding `json:"blocking,omitempty"`
	Advisory []Finding `json:"advisory,omitempty"`
}

// HasBlocking reports whether any blocking finding exists.
func (s *ScanSummary) HasBlocking() bool {
	return s != nil && len(s.Blocking) > 0
}

// Total returns the number of findings of both levels.
func (s *ScanSummary) Total() int {
	if s == nil {
		return 0
	}
	return len(s.Blocking) + len(s.Advisory)
}
