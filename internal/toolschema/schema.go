// Package toolschema sanitises JSON-Schema tool parameter objects, moves
// oversized descriptions into a system-prompt addendum, validates tool
// names, and converts unified tools into the Upstream wire shape
// (spec.md §4.F).
package toolschema

import (
	"fmt"

	"github.com/brgw/gateway/internal/apperrors"
	"github.com/brgw/gateway/internal/model"
)

const maxNameBytes = 64

// SanitizeSchema recursively deletes an empty `required` list and every
// `additionalProperties` key at any depth, returning a new object (the
// input is never mutated). Idempotent: SanitizeSchema(SanitizeSchema(s))
// == SanitizeSchema(s).
func SanitizeSchema(obj map[string]any) map[string]any {
	if obj == nil {
		return nil
	}
	return sanitizeValue(obj).(map[string]any)
}

func sanitizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if k == "additionalProperties" {
				continue
			}
			if k == "required" {
				if list, ok := val.([]any); ok && len(list) == 0 {
					continue
				}
			}
			out[k] = sanitizeValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = sanitizeValue(el)
		}
		return out
	default:
		return v
	}
}

// LongDescriptionResult is the outcome of ProcessLongDescriptions.
type LongDescriptionResult struct {
	Tools              []model.Tool
	SystemPromptAddendum string // empty when nothing was moved
}

// ProcessLongDescriptions replaces any tool description exceeding limit
// bytes with a reference string, moving the full text into a returned
// Markdown system-prompt addendum. limit == 0 disables the rewrite.
func ProcessLongDescriptions(tools []model.Tool, limit int) LongDescriptionResult {
	if limit <= 0 {
		return LongDescriptionResult{Tools: tools}
	}

	out := make([]model.Tool, len(tools))
	var addendum string
	moved := false
	for i, t := range tools {
		out[i] = t
		if len(t.Description) > limit {
			if !moved {
				addendum = "## Tool Documentation\n"
				moved = true
			}
			addendum += fmt.Sprintf("\n## Tool: %s\n%s\n", t.Name, t.Description)
			out[i].Description = fmt.Sprintf("[Full documentation in system prompt under '## Tool: %s']", t.Name)
		}
	}
	return LongDescriptionResult{Tools: out, SystemPromptAddendum: addendum}
}

// ValidateNames raises ToolNameTooLong listing every tool whose name
// exceeds 64 bytes. Never modifies tools.
func ValidateNames(tools []model.Tool) error {
	var offenders []map[string]any
	for _, t := range tools {
		if len(t.Name) > maxNameBytes {
			offenders = append(offenders, map[string]any{"name": t.Name, "length": len(t.Name)})
		}
	}
	if len(offenders) > 0 {
		return apperrors.WithDetail(apperrors.ToolNameTooLong, "one or more tool names exceed 64 bytes", offenders)
	}
	return nil
}

// Convert emits the Upstream shape for every tool, sanitising its schema
// and substituting a placeholder for an empty description.
func Convert(tools []model.Tool) []model.UpstreamToolSpec {
	out := make([]model.UpstreamToolSpec, len(tools))
	for i, t := range tools {
		spec := model.UpstreamToolSpec{}
		spec.ToolSpecification.Name = t.Name
		desc := t.Description
		if desc == "" {
			desc = "Tool: " + t.Name
		}
		spec.ToolSpecification.Description = desc
		spec.ToolSpecification.InputSchema.JSON = SanitizeSchema(t.Parameters)
		out[i] = spec
	}
	return out
}
