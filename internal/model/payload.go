package model

// UpstreamImage is an image attachment as it rides on a user record.
type UpstreamImage struct {
	Format string `json:"format"`
	Source struct {
		Bytes string `json:"bytes"`
	} `json:"source"`
}

// UpstreamToolSpec is the Upstream shape for a declared tool.
type UpstreamToolSpec struct {
	ToolSpecification struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		InputSchema struct {
			JSON map[string]any `json:"json"`
		} `json:"inputSchema"`
	} `json:"toolSpecification"`
}

// UpstreamToolUse is a tool invocation as recorded in assistant history.
type UpstreamToolUse struct {
	ToolUseID string          `json:"toolUseId"`
	Name      string          `json:"name"`
	Input     map[string]any  `json:"input"`
}

// UpstreamToolResult is a tool return value attached to a user record.
type UpstreamToolResult struct {
	ToolUseID string `json:"toolUseId"`
	Content   []struct {
		Text string `json:"text"`
	} `json:"content"`
	Status string `json:"status,omitempty"`
}

// UpstreamUserInputMessage is one user-role history/current record.
type UpstreamUserInputMessage struct {
	Content               string               `json:"content"`
	UserInputMessageContext *UpstreamUserContext `json:"userInputMessageContext,omitempty"`
	Images                []UpstreamImage      `json:"images,omitempty"`
}

// UpstreamUserContext carries tools/toolResults, never images.
type UpstreamUserContext struct {
	Tools       []UpstreamToolSpec   `json:"tools,omitempty"`
	ToolResults []UpstreamToolResult `json:"toolResults,omitempty"`
}

// UpstreamAssistantResponseMessage is one assistant-role history record.
type UpstreamAssistantResponseMessage struct {
	Content  string            `json:"content"`
	ToolUses []UpstreamToolUse `json:"toolUses,omitempty"`
}

// UpstreamHistoryEntry is a tagged union: exactly one of UserInputMessage /
// AssistantResponseMessage is set, matching the alternating history shape.
type UpstreamHistoryEntry struct {
	UserInputMessage        *UpstreamUserInputMessage        `json:"userInputMessage,omitempty"`
	AssistantResponseMessage *UpstreamAssistantResponseMessage `json:"assistantResponseMessage,omitempty"`
}

// UpstreamCurrentMessage wraps the final user turn being sent upstream.
type UpstreamCurrentMessage struct {
	UserInputMessage UpstreamUserInputMessage `json:"userInputMessage"`
}

// UpstreamConversationState is the history + current-message region.
type UpstreamConversationState struct {
	History        []UpstreamHistoryEntry `json:"history"`
	CurrentMessage UpstreamCurrentMessage `json:"currentMessage"`
}

// UpstreamPayload is the full request body sent to the Upstream chat
// endpoint.
type UpstreamPayload struct {
	ConversationState UpstreamConversationState `json:"conversationState"`
	ProfileArn        string                    `json:"profileArn,omitempty"`
}

const emptyPlaceholder = "(empty)"

// EmptyPlaceholder is the sentinel text substituted for empty content
// anywhere in an Upstream payload.
func EmptyPlaceholder() string { return emptyPlaceholder }
