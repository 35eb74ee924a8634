package schema

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Required plugin record fields, in report order.
var RequiredFields = []string{"id", "name", "description", "author", "repository", "path", "version"}

// repositoryPattern matches https://github.com/<owner>/<repo> with an optional trailing slash.
var repositoryPattern = regexp.MustCompile(`^https://github\.com/([A-Za-z0-9](?:[A-Za-z0-9-]*[A-Za-z0-9])?)/([A-Za-z0-9._-]+)/?$`)

// IsGitHubRepository reports whether url has the https://github.com/<owner>/<repo> shape.
// Clone URLs (a .git suffix) and dot-only repository names are rejected.
func IsGitHubRepository(url string) bool {
	m := repositoryPattern.FindStringSubmatch(url)
	if m == nil {
		return false
	}
	repo := m[2]
	return strings.Trim(repo, ".") != "" && !strings.HasSuffix(strings.ToLower(repo), ".git")
}

// PluginRecord is one catalog entry describing a single installable plugin.
type PluginRecord struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Author         string   `json:"author"`
	Repository     string   `json:"repository"`
	Path           string   `json:"path"`
	Version        string   `json:"version"`
	Featured       bool     `json:"featured,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Icon           string   `json:"icon,omitempty"`
	MinHostVersion string   `json:"min_host_version,omitempty"`
	Branch         string   `json:"branch,omitempty"`
}

// Entry is a plugin record as it appears in a registry document: its position,
// the typed view and the raw decoded JSON object the submitter wrote.
type Entry struct {
	Index  int            `json:"index"`
	Record PluginRecord   `json:"record"`
	Raw    map[string]any `json:"raw"`
}

// Label identifies the entry in messages: its ID, or "#<index>" when the ID is blank.
func (e Entry) Label() string {
	if e.Record.ID != "" {
		return e.Record.ID
	}
	return "#" + strconv.Itoa(e.Index)
}

// Registry is the parsed catalog document.
type Registry struct {
	Plugins []Entry `json:"plugins"`
	// Document is the whole decoded document, used for jq evaluation.
	Document map[string]any `json:"-"`
}

// Records returns the typed records in document order.
func (r *Registry) Records() []PluginRecord {
	out := make([]PluginRecord, len(r.Plugins))
	for i, e := range r.Plugins {
		out[i] = e.Record
	}
	return out
}

// Find returns the first entry with the given ID.
func (r *Registry) Find(id string) (Entry, bool) {
	for _, e := range r.Plugins {
		if e.Record.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// RecordFromRaw builds the typed view of a raw record. Fields with unexpected
// JSON types are left empty; structural validation reports them.
func RecordFromRaw(raw map[string]any) PluginRecord {
	rec := PluginRecord{
		ID:             stringField(raw, "id"),
		Name:           stringField(raw, "name"),
		Description:    stringField(raw, "description"),
		Author:         stringField(raw, "author"),
		Repository:     stringField(raw, "repository"),
		Path:           stringField(raw, "path"),
		Version:        stringField(raw, "version"),
		Icon:           stringField(raw, "icon"),
		MinHostVersion: stringField(raw, "min_host_version"),
		Branch:         stringField(raw, "branch"),
	}
	if b, ok := raw["featured"].(bool); ok {
		rec.Featured = b
	}
	if tags, ok := raw["tags"].([]any); ok {
		for _, t := range tags {
			if s, ok := t.(string); ok {
				rec.Tags = append(rec.Tags, s)
			}
		}
	}
	return rec
}

// RawFromRecord converts a typed record into its raw JSON object form.
func RawFromRecord(rec PluginRecord) map[string]any {
	data, err := json.Marshal(rec)
	if err != nil {
		return map[string]any{}
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return map[string]any{}
	}
	return raw
}

func stringField(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return s
}
