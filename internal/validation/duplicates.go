package validation

import (
	"fmt"
	"strings"

	"github.com/rendis/catalog/pkg/schema"
)

// checkDuplicates reports each identifier used by more than one entry of the
// whole registry, once per occurrence after the first.
func checkDuplicates(reg *schema.Registry, result *schema.ValidationResult) {
	byID := make(map[string][]schema.Entry)
	var order []string
	for _, e := range reg.Plugins {
		id := e.Record.ID
		if id == "" {
			continue
		}
		if _, ok := byID[id]; !ok {
			order = append(order, id)
		}
		byID[id] = append(byID[id], e)
	}

	for _, id := range order {
		entries := byID[id]
		if len(entries) < 2 {
			continue
		}
		positions := make([]string, len(entries))
		for i, e := range entries {
			positions[i] = fmt.Sprintf("#%d", e.Index)
		}
		for _, e := range entries[1:] {
			result.AddPluginError(entryPath(e)+".id", id, "id", schema.IssueDuplicateID,
				fmt.Sprintf("duplicate id %q (entries %s)", id, strings.Join(positions, ", ")))
		}
	}
}
