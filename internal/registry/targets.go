package registry

import (
	"strings"
	"unicode"

	"github.com/rendis/catalog/pkg/schema"
)

// CloneTargets returns the sources to fetch for changed entries. Entries
// without an id, with a repository URL of the wrong shape, or with whitespace
// in a tuple field are skipped.
func CloneTargets(changes []schema.Change) []schema.CloneTarget {
	seen := make(map[string]bool, len(changes))
	out := make([]schema.CloneTarget, 0, len(changes))
	for _, c := range changes {
		rec := c.Entry.Record
		if rec.ID == "" || seen[rec.ID] || !schema.IsGitHubRepository(rec.Repository) ||
			hasSpace(rec.ID) || hasSpace(rec.Path) || hasSpace(rec.Branch) {
			continue
		}
		seen[rec.ID] = true
		out = append(out, schema.CloneTarget{
			PluginID:   rec.ID,
			Repository: rec.Repository,
			Path:       rec.Path,
			Branch:     rec.Branch,
		})
	}
	return out
}

func hasSpace(s string) bool {
	return strings.ContainsFunc(s, unicode.IsSpace)
}
