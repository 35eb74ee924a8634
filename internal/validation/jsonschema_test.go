package validation

import (
	"testing"

	"github.com/rendis/catalog/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONSchemaValidator(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)
	assert.NotNil(t, v.pluginSchema)
}

func TestValidateRecord_Valid(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	violations, err := v.ValidateRecord(map[string]any{
		"id": "memory", "name": "Memory", "tags": []any{"ai"}, "featured": false, "extra": 1.0,
	})
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestValidateRecord_TypeMismatch(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	violations, err := v.ValidateRecord(map[string]any{
		"id":       "memory",
		"tags":     "ai",
		"featured": "yes",
	})
	require.NoError(t, err)
	require.Len(t, violations, 2)

	fields := []string{violations[0].Field, violations[1].Field}
	assert.ElementsMatch(t, []string{"tags", "featured"}, fields)
	for _, vi := range violations {
		assert.NotContains(t, vi.Message, "at '")
		assert.Contains(t, vi.String(), vi.Location)
	}
}

func TestValidateRecord_NestedLocation(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	violations, err := v.ValidateRecord(map[string]any{"tags": []any{"ok", 3.0}})
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, "/tags/1", violations[0].Location)
	assert.Equal(t, "tags", violations[0].Field)
}

func TestValidateWith_ExtraSchema(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)
	extra := []byte(`{"type": "object", "required": ["icon"]}`)

	violations, err := v.ValidateWith(map[string]any{"id": "x"}, extra)
	require.NoError(t, err)
	assert.Len(t, violations, 1)

	violations, err = v.ValidateWith(map[string]any{"id": "x", "icon": "i.png"}, extra)
	require.NoError(t, err)
	assert.Empty(t, violations)
	assert.Len(t, v.cache, 1, "compiled schema is cached")

	_, err = v.ValidateWith(map[string]any{}, []byte(`{not json`))
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeConfig))
}
