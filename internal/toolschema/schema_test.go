package toolschema

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brgw/gateway/internal/apperrors"
	"github.com/brgw/gateway/internal/model"
)

func TestSanitizeSchemaStripsEmptyRequiredAndAdditionalProperties(t *testing.T) {
	in := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{},
		"properties": map[string]any{
			"name": map[string]any{
				"type":                 "string",
				"additionalProperties": true,
			},
		},
	}
	out := SanitizeSchema(in)
	assert.NotContains(t, out, "additionalProperties")
	assert.NotContains(t, out, "required")
	props := out["properties"].(map[string]any)
	name := props["name"].(map[string]any)
	assert.NotContains(t, name, "additionalProperties")

	// input untouched
	assert.Contains(t, in, "additionalProperties")
}

func TestSanitizeSchemaKeepsNonEmptyRequired(t *testing.T) {
	in := map[string]any{"required": []any{"name"}}
	out := SanitizeSchema(in)
	assert.Contains(t, out, "required")
}

func TestSanitizeSchemaIsIdempotent(t *testing.T) {
	in := map[string]any{
		"additionalProperties": false,
		"required":             []any{},
		"properties":           map[string]any{"a": map[string]any{"additionalProperties": false}},
	}
	once := SanitizeSchema(in)
	twice := SanitizeSchema(once)
	assert.Equal(t, once, twice)
}

func TestValidateNamesRejectsLongNames(t *testing.T) {
	longName := ""
	for i := 0; i < 70; i++ {
		longName += "a"
	}
	err := ValidateNames([]model.Tool{{Name: longName}})
	assert.True(t, apperrors.OfKind(err, apperrors.ToolNameTooLong))
}

func TestValidateNamesAcceptsShortNames(t *testing.T) {
	err := ValidateNames([]model.Tool{{Name: "read_file"}})
	assert.NoError(t, err)
}

func TestProcessLongDescriptionsMovesOversizedText(t *testing.T) {
	longDesc := ""
	for i := 0; i < 20; i++ {
		longDesc += "this is a long description. "
	}
	tools := []model.Tool{{Name: "search", Description: longDesc}}
	result := ProcessLongDescriptions(tools, 50)
	assert.Contains(t, result.Tools[0].Description, "Full documentation in system prompt")
	assert.Contains(t, result.SystemPromptAddendum, "## Tool: search")
}

func TestProcessLongDescriptionsDisabledAtZeroLimit(t *testing.T) {
	tools := []model.Tool{{Name: "search", Description: "short"}}
	result := ProcessLongDescriptions(tools, 0)
	assert.Equal(t, tools, result.Tools)
	assert.Empty(t, result.SystemPromptAddendum)
}

func TestConvertEmitsUpstreamShape(t *testing.T) {
	tools := []model.Tool{{Name: "search", Parameters: map[string]any{"type": "object"}}}
	out := Convert(tools)
	assert.Equal(t, "search", out[0].ToolSpecification.Name)
	assert.Equal(t, "Tool: search", out[0].ToolSpecification.Description)
}
