package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rendis/catalog/pkg/schema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const pluginSchemaURL = "https://catalog.rendis.dev/schemas/plugin.json"

// pluginSchemaJSON describes the JSON types of a plugin record. Presence of
// required fields is checked separately so each missing field gets its own issue.
const pluginSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://catalog.rendis.dev/schemas/plugin.json",
  "type": "object",
  "properties": {
    "id":               { "type": "string", "maxLength": 100 },
    "name":             { "type": "string", "maxLength": 100 },
    "description":      { "type": "string", "maxLength": 2000 },
    "author":           { "type": "string" },
    "repository":       { "type": "string" },
    "path":             { "type": "string" },
    "version":          { "type": "string" },
    "featured":         { "type": "boolean" },
    "tags": {
      "type": "array",
      "items": { "type": "string", "minLength": 1 },
      "maxItems": 20
    },
    "icon":             { "type": "string" },
    "min_host_version": { "type": "string" },
    "branch":           { "type": "string", "minLength": 1 }
  }
}`

// Violation is one JSON Schema failure at an instance location.
type Violation struct {
	Location string `json:"location"`
	Field    string `json:"field,omitempty"`
	Message  string `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Location, v.Message)
}

// JSONSchemaValidator checks plugin records against JSON Schema Draft 2020-12.
// It is safe for concurrent use.
type JSONSchemaValidator struct {
	pluginSchema *jsonschema.Schema

	// mu guards the cache of extra schemas supplied through config.
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewJSONSchemaValidator creates a validator with the plugin schema pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	compiled, err := compileSchema(pluginSchemaURL, pluginSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("plugin schema: %w", err)
	}
	return &JSONSchemaValidator{
		pluginSchema: compiled,
		cache:        make(map[string]*jsonschema.Schema),
	}, nil
}

// ValidateRecord returns the schema violations of a raw plugin record.
// Null members are treated as absent.
func (v *JSONSchemaValidator) ValidateRecord(raw map[string]any) ([]Violation, error) {
	return validateAgainst(v.pluginSchema, withoutNulls(raw))
}

func withoutNulls(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, val := range raw {
		if val != nil {
			out[k] = val
		}
	}
	return out
}

// ValidateWith validates raw against an additional schema document, compiled
// once and cached by its text.
func (v *JSONSchemaValidator) ValidateWith(raw map[string]any, schemaDoc []byte) ([]Violation, error) {
	if len(schemaDoc) == 0 {
		return nil, nil
	}
	compiled, err := v.getOrCompile(schemaDoc)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeConfig, "invalid extra record schema").WithCause(err)
	}
	return validateAgainst(compiled, raw)
}

func validateAgainst(s *jsonschema.Schema, raw map[string]any) ([]Violation, error) {
	doc, err := toJSONValue(raw)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "failed to serialize record").WithCause(err)
	}
	err = s.Validate(doc)
	if err == nil {
		return nil, nil
	}
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeValidation, err.Error()).WithCause(err)
	}
	return collectViolations(verr), nil
}

// getOrCompile returns a cached compiled schema or compiles and caches a new one.
func (v *JSONSchemaValidator) getOrCompile(schemaBytes []byte) (*jsonschema.Schema, error) {
	key := string(schemaBytes)

	v.mu.RLock()
	if cached, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	// Double-check after acquiring write lock.
	if cached, ok := v.cache[key]; ok {
		return cached, nil
	}

	// Each extra schema gets a unique URL to avoid collisions in the compiler.
	url := fmt.Sprintf("catalog://extra-schema/%d", len(v.cache))
	compiled, err := compileSchema(url, key)
	if err != nil {
		return nil, err
	}
	v.cache[key] = compiled
	return compiled, nil
}

func compileSchema(url, text string) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// collectViolations walks a ValidationError tree and collects leaf errors
// with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []Violation {
	if len(verr.Causes) == 0 {
		loc := "/"
		field := ""
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
			field = verr.InstanceLocation[0]
		}
		return []Violation{{Location: loc, Field: field, Message: leafMessage(verr)}}
	}

	var violations []Violation
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}

// leafMessage strips the "at '<location>': " prefix the library adds.
func leafMessage(verr *jsonschema.ValidationError) string {
	msg := verr.Error()
	if _, rest, ok := strings.Cut(msg, "': "); ok && strings.HasPrefix(msg, "at '") {
		return rest
	}
	return msg
}
