// Package httpapi exposes the gateway's client-facing HTTP surface: an
// OpenAI Chat Completions-compatible endpoint, an Anthropic Messages
// endpoint, and operational endpoints (spec.md §6).
package httpapi

import (
	"encoding/json"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/brgw/gateway/internal/model"
	"github.com/brgw/gateway/internal/streamparser"
)

// splitSystemPrompt pulls every system-role message's text out of msgs,
// joining them into one prompt, and returns the remaining messages. Called
// by both wire adapters so a client that sends a system message inline in
// the turn list (common for OpenAI-style clients) behaves the same as one
// using a dedicated system field (Anthropic-style).
func splitSystemPrompt(msgs []model.Message) (string, []model.Message) {
	var system []string
	var rest []model.Message
	for _, m := range msgs {
		if m.Role == model.RoleSystem {
			if text := m.Content.ExtractText(); text != "" {
				system = append(system, text)
			}
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}

// openAIMessagesToUnified converts an OpenAI-wire message list into the
// unified model, preserving tool calls/results as structured blocks.
func openAIMessagesToUnified(msgs []openai.ChatCompletionMessage) []model.Message {
	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		role := openAIRoleToUnified(m.Role)

		if role == model.RoleTool {
			out = append(out, model.Message{
				Role: model.RoleTool,
				Content: model.NewBlocksContent([]model.Block{
					{Kind: model.BlockToolResult, ToolResultID: m.ToolCallID, ToolResultContent: m.Content},
				}),
			})
			continue
		}

		var blocks []model.Block
		if len(m.MultiContent) > 0 {
			for _, part := range m.MultiContent {
				switch part.Type {
				case openai.ChatMessagePartTypeText:
					blocks = append(blocks, model.Block{Kind: model.BlockText, Text: part.Text})
				case openai.ChatMessagePartTypeImageURL:
					if part.ImageURL != nil {
						blocks = append(blocks, model.Block{Kind: model.BlockImage, Image: imageFromDataURL(part.ImageURL.URL)})
					}
				}
			}
		}
		for _, tc := range m.ToolCalls {
			blocks = append(blocks, model.Block{
				Kind:      model.BlockToolUse,
				ToolUseID: tc.ID,
				ToolName:  tc.Function.Name,
				ToolInput: json.RawMessage(tc.Function.Arguments),
			})
		}

		var content model.Content
		switch {
		case len(blocks) > 0 && m.Content != "":
			content = model.NewBlocksContent(append([]model.Block{{Kind: model.BlockText, Text: m.Content}}, blocks...))
		case len(blocks) > 0:
			content = model.NewBlocksContent(blocks)
		default:
			content = model.NewTextContent(m.Content)
		}

		out = append(out, model.Message{Role: role, Content: content})
	}
	return out
}

func openAIRoleToUnified(role string) model.Role {
	switch role {
	case openai.ChatMessageRoleSystem:
		return model.RoleSystem
	case openai.ChatMessageRoleAssistant:
		return model.RoleAssistant
	case openai.ChatMessageRoleTool, openai.ChatMessageRoleFunction:
		return model.RoleTool
	default:
		return model.RoleUser
	}
}

func imageFromDataURL(url string) model.Image {
	const marker = ";base64,"
	if idx := strings.Index(url, marker); idx >= 0 {
		mediaType := strings.TrimPrefix(url[:idx], "data:")
		return model.Image{MediaType: mediaType, Data: url[idx+len(marker):]}
	}
	return model.Image{Data: url}
}

func openAIToolsToUnified(tools []openai.Tool) []model.Tool {
	out := make([]model.Tool, 0, len(tools))
	for _, t := range tools {
		if t.Function == nil {
			continue
		}
		var params map[string]any
		switch p := t.Function.Parameters.(type) {
		case map[string]any:
			params = p
		case json.RawMessage:
			_ = json.Unmarshal(p, &params)
		default:
			if b, err := json.Marshal(p); err == nil {
				_ = json.Unmarshal(b, &params)
			}
		}
		out = append(out, model.Tool{Name: t.Function.Name, Description: t.Function.Description, Parameters: params})
	}
	return out
}

// renderedText folds every content event into one response string, the
// non-streaming response shape both wire protocols need.
func renderedText(events []streamparser.Event) string {
	var b strings.Builder
	for _, e := range events {
		if e.Kind == streamparser.EventContent {
			b.WriteString(e.Content)
		}
	}
	return b.String()
}

func openAIToolCallsFromFinal(calls []streamparser.FinalToolCall) []openai.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]openai.ToolCall, len(calls))
	for i, c := range calls {
		out[i] = openai.ToolCall{
			ID:   c.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      c.Name,
				Arguments: c.Arguments,
			},
		}
	}
	return out
}

func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}
