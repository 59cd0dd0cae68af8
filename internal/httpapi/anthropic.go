package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/brgw/gateway/internal/apperrors"
	"github.com/brgw/gateway/internal/model"
	"github.com/brgw/gateway/internal/orchestrator"
	"github.com/brgw/gateway/internal/streamparser"
)

// Anthropic Messages API wire types, hand-rolled the way the teacher
// hand-rolls its OpenAI types in openai_handler.go: no ready-made
// server-side encoder exists for this surface (see DESIGN.md).

type anthropicContentBlock struct {
	Type string `json:"type"`

	Text string `json:"text,omitempty"`

	Source *anthropicImageSource `json:"source,omitempty"`

	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicMessageParam struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicMessagesRequest struct {
	Model     string                  `json:"model"`
	MaxTokens int                     `json:"max_tokens"`
	System    json.RawMessage         `json:"system,omitempty"`
	Messages  []anthropicMessageParam `json:"messages"`
	Tools     []anthropicTool         `json:"tools,omitempty"`
	Stream    bool                    `json:"stream,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicMessageResponse struct {
	ID           string                  `json:"id"`
	Type         string                  `json:"type"`
	Role         string                  `json:"role"`
	Model        string                  `json:"model"`
	Content      []anthropicContentBlock `json:"content"`
	StopReason   string                  `json:"stop_reason"`
	StopSequence *string                 `json:"stop_sequence"`
	Usage        anthropicUsage          `json:"usage"`
}

// anthropicHandler serves POST /v1/messages with hand-rolled wire types.
type anthropicHandler struct {
	orch   *orchestrator.Orchestrator
	logger *zap.Logger
}

func newAnthropicHandler(orch *orchestrator.Orchestrator, logger *zap.Logger) *anthropicHandler {
	return &anthropicHandler{orch: orch, logger: logger}
}

func (h *anthropicHandler) messages(c *gin.Context) {
	var req anthropicMessagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.Wrap(apperrors.MalformedRequest, "invalid request body", err))
		return
	}

	messages, err := anthropicMessagesToUnified(req.Messages)
	if err != nil {
		writeError(c, apperrors.Wrap(apperrors.MalformedRequest, "invalid message content", err))
		return
	}
	if len(messages) == 0 {
		writeError(c, apperrors.New(apperrors.NoMessages, "messages must not be empty"))
		return
	}

	system, messages := splitSystemPrompt(messages)
	if len(req.System) > 0 {
		var s string
		if err := json.Unmarshal(req.System, &s); err == nil {
			system = s
		} else {
			var blocks []anthropicContentBlock
			if err := json.Unmarshal(req.System, &blocks); err == nil {
				system = anthropicBlocksToText(blocks)
			}
		}
	}

	chatReq := orchestrator.ChatRequest{
		Model:        h.orch.ResolveModel(req.Model),
		Messages:     messages,
		Tools:        anthropicToolsToUnified(req.Tools),
		SystemPrompt: system,
		Stream:       req.Stream,
	}

	if req.Stream {
		h.streamMessages(c, chatReq)
		return
	}
	h.nonStreamMessages(c, chatReq)
}

func (h *anthropicHandler) nonStreamMessages(c *gin.Context, req orchestrator.ChatRequest) {
	outcome, err := h.orch.Execute(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	text := renderedText(outcome.Events)
	content := []anthropicContentBlock{}
	if text != "" {
		content = append(content, anthropicContentBlock{Type: "text", Text: text})
	}
	stopReason := "end_turn"
	for _, tc := range outcome.ToolCalls {
		content = append(content, anthropicContentBlock{
			Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: json.RawMessage(tc.Arguments),
		})
		stopReason = "tool_use"
	}

	c.JSON(http.StatusOK, anthropicMessageResponse{
		ID:         "msg_" + requestID(c),
		Type:       "message",
		Role:       "assistant",
		Model:      outcome.Model,
		Content:    content,
		StopReason: stopReason,
		Usage: anthropicUsage{
			InputTokens:  estimateTokens(req.SystemPrompt),
			OutputTokens: estimateTokens(text),
		},
	})
}

// streamMessages maps parser events onto the message_start /
// content_block_delta / message_delta / message_stop SSE event sequence
// (the §9 open-question decision: a best-effort adapter, not an exhaustive
// reimplementation of every Anthropic streaming nuance).
func (h *anthropicHandler) streamMessages(c *gin.Context, req orchestrator.ChatRequest) {
	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	id := "msg_" + requestID(c)
	writeAnthropicEvent(w, "message_start", gin.H{
		"type": "message_start",
		"message": gin.H{
			"id": id, "type": "message", "role": "assistant", "model": req.Model,
			"content": []anthropicContentBlock{}, "usage": anthropicUsage{},
		},
	})
	writeAnthropicEvent(w, "content_block_start", gin.H{
		"type": "content_block_start", "index": 0,
		"content_block": anthropicContentBlock{Type: "text", Text: ""},
	})
	if flusher != nil {
		flusher.Flush()
	}

	outcome, err := h.orch.ExecuteStreaming(c.Request.Context(), req, func(ev streamparser.Event) {
		if ev.Kind != streamparser.EventContent || ev.Content == "" {
			return
		}
		writeAnthropicEvent(w, "content_block_delta", gin.H{
			"type": "content_block_delta", "index": 0,
			"delta": gin.H{"type": "text_delta", "text": ev.Content},
		})
		if flusher != nil {
			flusher.Flush()
		}
	})
	if err != nil {
		h.logger.Warn("streaming messages call failed mid-stream", zap.Error(err))
		writeAnthropicEvent(w, "error", anthropicErrorBody(err))
		if flusher != nil {
			flusher.Flush()
		}
		return
	}

	writeAnthropicEvent(w, "content_block_stop", gin.H{"type": "content_block_stop", "index": 0})

	stopReason := "end_turn"
	if len(outcome.ToolCalls) > 0 {
		stopReason = "tool_use"
	}
	writeAnthropicEvent(w, "message_delta", gin.H{
		"type":  "message_delta",
		"delta": gin.H{"stop_reason": stopReason},
		"usage": anthropicUsage{OutputTokens: estimateTokens(renderedText(outcome.Events))},
	})
	writeAnthropicEvent(w, "message_stop", gin.H{"type": "message_stop"})
	if flusher != nil {
		flusher.Flush()
	}
}

func writeAnthropicEvent(w http.ResponseWriter, event string, data any) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, mustMarshal(data))
}

func anthropicBlocksToText(blocks []anthropicContentBlock) string {
	var out string
	for _, b := range blocks {
		if b.Type == "text" {
			if out != "" {
				out += "\n"
			}
			out += b.Text
		}
	}
	return out
}

func anthropicMessagesToUnified(msgs []anthropicMessageParam) ([]model.Message, error) {
	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		role := model.RoleUser
		if m.Role == "assistant" {
			role = model.RoleAssistant
		}

		var asString string
		if err := json.Unmarshal(m.Content, &asString); err == nil {
			out = append(out, model.Message{Role: role, Content: model.NewTextContent(asString)})
			continue
		}

		var blocks []anthropicContentBlock
		if err := json.Unmarshal(m.Content, &blocks); err != nil {
			return nil, fmt.Errorf("message content must be a string or content-block array: %w", err)
		}
		out = append(out, model.Message{Role: role, Content: model.NewBlocksContent(anthropicBlocksToUnified(blocks))})
	}
	return out, nil
}

func anthropicBlocksToUnified(blocks []anthropicContentBlock) []model.Block {
	out := make([]model.Block, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case "text":
			out = append(out, model.Block{Kind: model.BlockText, Text: b.Text})
		case "image":
			if b.Source != nil {
				out = append(out, model.Block{Kind: model.BlockImage, Image: model.Image{MediaType: b.Source.MediaType, Data: b.Source.Data}})
			}
		case "tool_use":
			out = append(out, model.Block{Kind: model.BlockToolUse, ToolUseID: b.ID, ToolName: b.Name, ToolInput: b.Input})
		case "tool_result":
			out = append(out, model.Block{Kind: model.BlockToolResult, ToolResultID: b.ToolUseID, ToolResultContent: b.Content, ToolResultIsError: b.IsError})
		}
	}
	return out
}

func anthropicToolsToUnified(tools []anthropicTool) []model.Tool {
	out := make([]model.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, model.Tool{Name: t.Name, Description: t.Description, Parameters: t.InputSchema})
	}
	return out
}
