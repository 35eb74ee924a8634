// Package registry loads the plugin registry document and works out which
// records a pull request adds or changes relative to the base branch.
package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rendis/catalog/pkg/schema"
)

// PluginsKey is the top-level key holding the plugin records.
const PluginsKey = "plugins"

// Load reads and parses the registry file at path.
func Load(path string) (*schema.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, schema.NewErrorf(schema.ErrCodeNotFound, "registry file %s not found", path).WithCause(err)
		}
		return nil, schema.NewErrorf(schema.ErrCodeParse, "read registry %s: %v", path, err).WithCause(err)
	}
	reg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}

// Parse decodes a registry document. Any structural problem that prevents
// locating the records is a PARSE_ERROR; record contents are not checked here.
func Parse(data []byte) (*schema.Registry, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeParse, "malformed registry JSON: %v", err).WithCause(err)
	}
	if dec.More() {
		return nil, schema.NewError(schema.ErrCodeParse, "malformed registry JSON: trailing data after document")
	}
	if doc == nil {
		return nil, schema.NewError(schema.ErrCodeParse, "registry document must be a JSON object")
	}

	rawPlugins, ok := doc[PluginsKey]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeParse, "registry has no %q key", PluginsKey)
	}
	list, ok := rawPlugins.([]any)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeParse, "%q must be an array, got %s", PluginsKey, jsonType(rawPlugins))
	}

	reg := &schema.Registry{Plugins: make([]schema.Entry, 0, len(list)), Document: doc}
	for i, item := range list {
		raw, ok := item.(map[string]any)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeParse, "%s[%d] must be an object, got %s", PluginsKey, i, jsonType(item)).
				WithDetails(map[string]any{"index": i})
		}
		reg.Plugins = append(reg.Plugins, schema.Entry{
			Index:  i,
			Record: schema.RecordFromRaw(raw),
			Raw:    raw,
		})
	}
	return reg, nil
}

// FromRecords builds a registry document from typed records.
func FromRecords(records []schema.PluginRecord) *schema.Registry {
	list := make([]any, len(records))
	reg := &schema.Registry{Plugins: make([]schema.Entry, len(records))}
	for i, rec := range records {
		raw := schema.RawFromRecord(rec)
		list[i] = raw
		reg.Plugins[i] = schema.Entry{Index: i, Record: rec, Raw: raw}
	}
	reg.Document = map[string]any{PluginsKey: list}
	return reg
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
