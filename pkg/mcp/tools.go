package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rendis/catalog/internal/registry"
	"github.com/rendis/catalog/internal/store"
	"github.com/rendis/catalog/pkg/schema"
)

const defaultHistoryLimit = 20

// handleList returns catalog records matching the optional filters.
func (s *CatalogServer) handleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reg, err := registry.Load(s.registryPath)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load registry: %v", err)), nil
	}

	tag := req.GetString("tag", "")
	author := req.GetString("author", "")
	_, hasFeatured := req.GetArguments()["featured"]
	featured := req.GetBool("featured", false)

	plugins := make([]map[string]any, 0, len(reg.Plugins))
	for _, e := range reg.Plugins {
		if tag != "" && !hasTag(e.Record.Tags, tag) {
			continue
		}
		if author != "" && !strings.EqualFold(e.Record.Author, author) {
			continue
		}
		if hasFeatured && e.Record.Featured != featured {
			continue
		}
		plugins = append(plugins, e.Raw)
	}

	s.logger.DebugContext(ctx, "catalog listed", "matched", len(plugins), "total", len(reg.Plugins))
	return marshalResult(map[string]any{"plugins": plugins, "count": len(plugins)})
}

// handleGet returns one record by id.
func (s *CatalogServer) handleGet(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil
	}
	reg, err := registry.Load(s.registryPath)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load registry: %v", err)), nil
	}
	e, ok := reg.Find(id)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("plugin %q not found", id)), nil
	}
	return marshalResult(e.Raw)
}

// handleValidate audits the whole registry, or checks a candidate record as
// if it were submitted against the current registry.
func (s *CatalogServer) handleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.validator == nil {
		return mcp.NewToolResultError("validator not configured"), nil
	}
	reg, err := registry.Load(s.registryPath)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load registry: %v", err)), nil
	}

	if _, ok := req.GetArguments()["record"]; !ok {
		result := s.validator.Validate(ctx, reg, registry.AllChanged(reg))
		return marshalResult(validateResponse(result, len(reg.Plugins)))
	}

	// Accepts an object or a JSON-encoded string.
	candidate := mcp.ParseStringMap(req, "record", nil)
	head, changes := withCandidate(reg, candidate)
	result := s.validator.Validate(ctx, head, changes)
	resp := validateResponse(result, 1)
	resp["kind"] = changes.Changes()[0].Kind
	return marshalResult(resp)
}

// handleHistory lists recorded runs.
func (s *CatalogServer) handleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("no run history store configured (start with --db)"), nil
	}
	filter := store.RunFilter{
		Kind:     store.RunKind(req.GetString("kind", "")),
		Status:   store.RunStatus(req.GetString("status", "")),
		PRNumber: req.GetInt("pr_number", 0),
		Limit:    req.GetInt("limit", defaultHistoryLimit),
	}
	runs, err := s.store.ListRuns(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"runs": runs, "count": len(runs)})
}

// --- Internal helpers ---

// withCandidate returns a copy of reg in which candidate replaces the entry
// with the same id, or is appended, and the change set holding it.
func withCandidate(reg *schema.Registry, candidate map[string]any) (*schema.Registry, *registry.ChangeSet) {
	rec := schema.RecordFromRaw(candidate)
	head := &schema.Registry{Document: reg.Document}
	head.Plugins = append(head.Plugins, reg.Plugins...)

	change := schema.Change{Kind: schema.ChangeAdded}
	idx := -1
	if rec.ID != "" {
		if prev, ok := reg.Find(rec.ID); ok {
			idx = prev.Index
			change.Kind = schema.ChangeModified
			change.Previous = prev.Raw
		}
	}
	if idx < 0 {
		idx = len(head.Plugins)
		head.Plugins = append(head.Plugins, schema.Entry{})
	}
	entry := schema.Entry{Index: idx, Record: rec, Raw: candidate}
	head.Plugins[idx] = entry
	change.Entry = entry

	cs := &registry.ChangeSet{}
	if change.Kind == schema.ChangeModified {
		cs.Modified = []schema.Change{change}
	} else {
		cs.Added = []schema.Change{change}
	}
	return head, cs
}

func validateResponse(result *schema.ValidationResult, checked int) map[string]any {
	return map[string]any{
		"valid":    result.Valid(),
		"checked":  checked,
		"errors":   result.Errors,
		"warnings": result.Warnings,
	}
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, want) {
			return true
		}
	}
	return false
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
