package validation

import (
	"fmt"
	"path"
	"strings"
	"unicode"

	"github.com/rendis/catalog/pkg/schema"
	"golang.org/x/mod/semver"
)

// entryPath is the location of an entry in the registry document.
func entryPath(e schema.Entry) string {
	return fmt.Sprintf("plugins[%d]", e.Index)
}

// checkRequired reports every absent, null or blank required field. Present
// values of the wrong type are left to the structural check.
func checkRequired(e schema.Entry, result *schema.ValidationResult) {
	for _, field := range schema.RequiredFields {
		v, ok := e.Raw[field]
		missing := !ok || v == nil
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			missing = true
		}
		if missing {
			result.AddPluginError(entryPath(e)+"."+field, e.Label(), field, schema.IssueMissingField,
				fmt.Sprintf("missing required field %q", field))
		}
	}
}

func hasSpace(s string) bool {
	return strings.ContainsFunc(s, unicode.IsSpace)
}

// checkID rejects ids containing whitespace, which would split the
// clone_targets tuple.
func checkID(e schema.Entry, result *schema.ValidationResult) {
	id := e.Record.ID
	if strings.TrimSpace(id) == "" || !hasSpace(id) {
		return
	}
	result.AddPluginError(entryPath(e)+".id", e.Label(), "id", schema.IssueInvalidID,
		fmt.Sprintf("id %q must not contain whitespace", id))
}

// checkBranch requires a usable git branch name when one is given.
func checkBranch(e schema.Entry, result *schema.ValidationResult) {
	b := e.Record.Branch
	if b == "" {
		return
	}
	var reason string
	switch {
	case hasSpace(b) || strings.ContainsFunc(b, unicode.IsControl):
		reason = "must not contain whitespace"
	case strings.HasPrefix(b, "-"):
		reason = "must not start with '-'"
	case strings.ContainsAny(b, `~^:?*[\`) || strings.Contains(b, "..") || strings.Contains(b, "@{"):
		reason = "is not a valid git branch name"
	case strings.HasPrefix(b, "/") || strings.HasSuffix(b, "/") || strings.HasSuffix(b, ".") ||
		strings.HasSuffix(b, ".lock") || strings.Contains(b, "//"):
		reason = "is not a valid git branch name"
	}
	if reason != "" {
		result.AddPluginError(entryPath(e)+".branch", e.Label(), "branch", schema.IssueInvalidBranch,
			fmt.Sprintf("branch %q %s", b, reason))
	}
}

// checkRepository requires the https://github.com/<owner>/<repo> shape.
func checkRepository(e schema.Entry, result *schema.ValidationResult) {
	repo := e.Record.Repository
	if strings.TrimSpace(repo) == "" {
		return
	}
	if !schema.IsGitHubRepository(repo) {
		result.AddPluginError(entryPath(e)+".repository", e.Label(), "repository", schema.IssueInvalidURL,
			fmt.Sprintf("repository %q must look like https://github.com/<owner>/<repo>", repo))
	}
}

// checkPath rejects absolute plugin paths and paths leaving the repository.
func checkPath(e schema.Entry, result *schema.ValidationResult) {
	p := e.Record.Path
	if strings.TrimSpace(p) == "" {
		return
	}
	var reason string
	switch {
	case strings.HasPrefix(p, "/") || strings.HasPrefix(p, `\`):
		reason = "must be relative to the repository root"
	case strings.Contains(p, `\`):
		reason = "must use forward slashes"
	case hasSpace(p):
		reason = "must not contain whitespace"
	case hasDotDot(p):
		reason = "must not contain '..'"
	}
	if reason != "" {
		result.AddPluginError(entryPath(e)+".path", e.Label(), "path", schema.IssueInvalidPath,
			fmt.Sprintf("path %q %s", p, reason))
	}
}

func hasDotDot(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return true
		}
	}
	return strings.HasPrefix(path.Clean(p), "..")
}

// checkVersions validates version (error) and min_host_version (warning).
func checkVersions(e schema.Entry, result *schema.ValidationResult) {
	if v := e.Record.Version; strings.TrimSpace(v) != "" && !IsSemver(v) {
		result.AddPluginError(entryPath(e)+".version", e.Label(), "version", schema.IssueInvalidVersion,
			fmt.Sprintf("version %q is not a semantic version (MAJOR.MINOR.PATCH)", v))
	}
	if v := e.Record.MinHostVersion; strings.TrimSpace(v) != "" && !IsSemver(v) {
		result.AddPluginWarning(entryPath(e)+".min_host_version", e.Label(), "min_host_version", schema.IssueInvalidVersion,
			fmt.Sprintf("min_host_version %q is not a semantic version", v))
	}
}

// IsSemver reports whether v is a full MAJOR.MINOR.PATCH semantic version,
// with an optional leading "v", pre-release and build metadata.
func IsSemver(v string) bool {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return false
	}
	core, _, _ := strings.Cut(v, "+")
	// Canonical expands shorthand like v1.2 to v1.2.0.
	return semver.Canonical(v) == core
}

// checkTags warns about repeated tags.
func checkTags(e schema.Entry, result *schema.ValidationResult) {
	seen := make(map[string]bool, len(e.Record.Tags))
	for _, tag := range e.Record.Tags {
		key := strings.ToLower(strings.TrimSpace(tag))
		if seen[key] {
			result.AddPluginWarning(entryPath(e)+".tags", e.Label(), "tags", schema.IssueDuplicateTag,
				fmt.Sprintf("tag %q listed more than once", tag))
			continue
		}
		seen[key] = true
	}
}
