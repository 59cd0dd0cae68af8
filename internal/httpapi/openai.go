package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/brgw/gateway/internal/apperrors"
	"github.com/brgw/gateway/internal/orchestrator"
	"github.com/brgw/gateway/internal/streamparser"
)

// openAIHandler serves the OpenAI Chat Completions-compatible surface,
// translating github.com/sashabaranov/go-openai wire types to and from the
// unified orchestrator request/response shape.
type openAIHandler struct {
	orch   *orchestrator.Orchestrator
	logger *zap.Logger
}

func newOpenAIHandler(orch *orchestrator.Orchestrator, logger *zap.Logger) *openAIHandler {
	return &openAIHandler{orch: orch, logger: logger}
}

// chatCompletions implements POST /v1/chat/completions.
func (h *openAIHandler) chatCompletions(c *gin.Context) {
	var req openai.ChatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.Wrap(apperrors.MalformedRequest, "invalid request body", err))
		return
	}

	system, rest := splitSystemPrompt(openAIMessagesToUnified(req.Messages))
	if len(rest) == 0 {
		writeError(c, apperrors.New(apperrors.NoMessages, "messages must not be empty"))
		return
	}

	chatReq := orchestrator.ChatRequest{
		Model:        h.orch.ResolveModel(req.Model),
		Messages:     rest,
		Tools:        openAIToolsToUnified(req.Tools),
		SystemPrompt: system,
		Stream:       req.Stream,
	}

	if req.Stream {
		h.streamChatCompletions(c, chatReq)
		return
	}
	h.nonStreamChatCompletions(c, chatReq)
}

func (h *openAIHandler) nonStreamChatCompletions(c *gin.Context, req orchestrator.ChatRequest) {
	outcome, err := h.orch.Execute(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	text := renderedText(outcome.Events)
	msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: text}
	finish := openai.FinishReasonStop
	if toolCalls := openAIToolCallsFromFinal(outcome.ToolCalls); len(toolCalls) > 0 {
		msg.ToolCalls = toolCalls
		finish = openai.FinishReasonToolCalls
	}

	c.JSON(http.StatusOK, openai.ChatCompletionResponse{
		ID:      "chatcmpl-" + requestID(c),
		Object:  "chat.completion",
		Model:   outcome.Model,
		Choices: []openai.ChatCompletionChoice{{Index: 0, Message: msg, FinishReason: finish}},
		Usage: openai.Usage{
			PromptTokens:     estimateTokens(req.SystemPrompt),
			CompletionTokens: estimateTokens(text),
			TotalTokens:      estimateTokens(req.SystemPrompt) + estimateTokens(text),
		},
	})
}

func (h *openAIHandler) streamChatCompletions(c *gin.Context, req orchestrator.ChatRequest) {
	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	id := "chatcmpl-" + requestID(c)
	flusher, _ := w.(http.Flusher)

	outcome, err := h.orch.ExecuteStreaming(c.Request.Context(), req, func(ev streamparser.Event) {
		if ev.Kind != streamparser.EventContent || ev.Content == "" {
			return
		}
		writeOpenAISSEChunk(w, openai.ChatCompletionStreamResponse{
			ID:      id,
			Object:  "chat.completion.chunk",
			Model:   req.Model,
			Choices: []openai.ChatCompletionStreamChoice{{Index: 0, Delta: openai.ChatCompletionStreamChoiceDelta{Content: ev.Content}}},
		})
		if flusher != nil {
			flusher.Flush()
		}
	})
	if err != nil {
		h.logger.Warn("streaming chat completion failed mid-stream", zap.Error(err))
		fmt.Fprintf(w, "data: %s\n\n", mustMarshal(openAIErrorBody(err)))
		if flusher != nil {
			flusher.Flush()
		}
		return
	}

	finish := openai.FinishReasonStop
	if toolCalls := openAIToolCallsFromFinal(outcome.ToolCalls); len(toolCalls) > 0 {
		finish = openai.FinishReasonToolCalls
		writeOpenAISSEChunk(w, openai.ChatCompletionStreamResponse{
			ID:      id,
			Object:  "chat.completion.chunk",
			Model:   req.Model,
			Choices: []openai.ChatCompletionStreamChoice{{Index: 0, Delta: openai.ChatCompletionStreamChoiceDelta{ToolCalls: toolCalls}}},
		})
	}
	writeOpenAISSEChunk(w, openai.ChatCompletionStreamResponse{
		ID:      id,
		Object:  "chat.completion.chunk",
		Model:   req.Model,
		Choices: []openai.ChatCompletionStreamChoice{{Index: 0, FinishReason: finish}},
	})
	fmt.Fprint(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

func writeOpenAISSEChunk(w http.ResponseWriter, chunk openai.ChatCompletionStreamResponse) {
	fmt.Fprintf(w, "data: %s\n\n", mustMarshal(chunk))
}

// listModels implements GET /v1/models with a static, single-entry catalog:
// this gateway fronts one proprietary upstream, not a multi-model catalog.
func (h *openAIHandler) listModels(c *gin.Context) {
	model := h.orch.ResolveModel("")
	c.JSON(http.StatusOK, openai.ModelsList{
		Models: []openai.Model{{ID: model, Object: "model", OwnedBy: "anthropic"}},
	})
}
