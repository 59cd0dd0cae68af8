package normalizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brgw/gateway/internal/model"
)

func textMsg(role model.Role, text string) model.Message {
	return model.Message{Role: role, Content: model.NewTextContent(text)}
}

func TestNormalizeSimpleUserMessage(t *testing.T) {
	payload, err := Normalize(Input{Messages: []model.Message{textMsg(model.RoleUser, "hello")}})
	require.NoError(t, err)
	assert.Equal(t, "hello", payload.ConversationState.CurrentMessage.UserInputMessage.Content)
	assert.Empty(t, payload.ConversationState.History)
}

func TestNormalizeSystemPromptMergedIntoFirstHistoryEntry(t *testing.T) {
	payload, err := Normalize(Input{
		SystemPrompt: "You are helpful.",
		Messages: []model.Message{
			textMsg(model.RoleUser, "hi"),
			textMsg(model.RoleAssistant, "hello"),
			textMsg(model.RoleUser, "how are you"),
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, payload.ConversationState.History)
	first := payload.ConversationState.History[0].UserInputMessage
	require.NotNil(t, first)
	assert.True(t, strings.HasPrefix(first.Content, "You are helpful."))
}

func TestNormalizeAlternationInvariant(t *testing.T) {
	payload, err := Normalize(Input{
		Messages: []model.Message{
			textMsg(model.RoleTool, "orphan result"),
			textMsg(model.RoleUser, "question"),
		},
	})
	require.NoError(t, err)
	var roles []string
	for _, h := range payload.ConversationState.History {
		if h.UserInputMessage != nil {
			roles = append(roles, "user")
		} else {
			roles = append(roles, "assistant")
		}
	}
	for i := 1; i < len(roles); i++ {
		assert.NotEqual(t, roles[i-1], roles[i], "no two consecutive entries share a role")
	}
}

func TestNormalizeFirstMessageMustBeUser(t *testing.T) {
	payload, err := Normalize(Input{
		Messages: []model.Message{textMsg(model.RoleAssistant, "unprompted")},
	})
	require.NoError(t, err)
	require.NotEmpty(t, payload.ConversationState.History)
	assert.NotNil(t, payload.ConversationState.History[0].UserInputMessage)
}

func TestNormalizeMergesAdjacentSameRoleMessages(t *testing.T) {
	payload, err := Normalize(Input{
		Messages: []model.Message{
			textMsg(model.RoleUser, "first"),
			textMsg(model.RoleUser, "second"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond", payload.ConversationState.CurrentMessage.UserInputMessage.Content)
}

func TestNormalizeStripsToolBlocksWhenNoToolsDeclared(t *testing.T) {
	msgs := []model.Message{
		textMsg(model.RoleUser, "call a tool"),
		{
			Role: model.RoleAssistant,
			Content: model.NewBlocksContent([]model.Block{
				{Kind: model.BlockToolUse, ToolUseID: "1", ToolName: "search", ToolInput: []byte(`{}`)},
			}),
		},
	}
	payload, err := Normalize(Input{Messages: msgs})
	require.NoError(t, err)
	for _, h := range payload.ConversationState.History {
		if h.AssistantResponseMessage != nil {
			assert.Empty(t, h.AssistantResponseMessage.ToolUses, "no tool-use blocks survive when no tools were declared")
		}
	}
}

func TestNormalizeFlattensOrphanToolResult(t *testing.T) {
	msgs := []model.Message{
		textMsg(model.RoleUser, "do something"),
		{
			Role: model.RoleUser,
			Content: model.NewBlocksContent([]model.Block{
				{Kind: model.BlockToolResult, ToolResultID: "missing-id", ToolResultContent: "42"},
			}),
		},
	}
	payload, err := Normalize(Input{
		Messages: msgs,
		Tools:    []model.Tool{{Name: "search"}},
	})
	require.NoError(t, err)
	assert.Contains(t, payload.ConversationState.CurrentMessage.UserInputMessage.Content, "42")
	if ctx := payload.ConversationState.CurrentMessage.UserInputMessage.UserInputMessageContext; ctx != nil {
		assert.Empty(t, ctx.ToolResults, "an orphan tool-result must not reach the upstream toolResults list")
	}
}

func TestNormalizeKeepsMatchedToolResult(t *testing.T) {
	msgs := []model.Message{
		textMsg(model.RoleUser, "run search"),
		{
			Role: model.RoleAssistant,
			Content: model.NewBlocksContent([]model.Block{
				{Kind: model.BlockToolUse, ToolUseID: "abc", ToolName: "search", ToolInput: []byte(`{"q":"go"}`)},
			}),
		},
		{
			Role: model.RoleUser,
			Content: model.NewBlocksContent([]model.Block{
				{Kind: model.BlockToolResult, ToolResultID: "abc", ToolResultContent: "result text"},
			}),
		},
	}
	payload, err := Normalize(Input{Messages: msgs, Tools: []model.Tool{{Name: "search"}}})
	require.NoError(t, err)
	ctx := payload.ConversationState.CurrentMessage.UserInputMessage.UserInputMessageContext
	require.NotNil(t, ctx)
	require.Len(t, ctx.ToolResults, 1)
	assert.Equal(t, "abc", ctx.ToolResults[0].ToolUseID)
}

func TestNormalizeNoEmptyContentInvariant(t *testing.T) {
	payload, err := Normalize(Input{Messages: nil})
	require.NoError(t, err)
	assert.NotEmpty(t, payload.ConversationState.CurrentMessage.UserInputMessage.Content)
}

func TestNormalizeToolNameTooLongRejected(t *testing.T) {
	longName := strings.Repeat("a", 70)
	_, err := Normalize(Input{
		Messages: []model.Message{textMsg(model.RoleUser, "hi")},
		Tools:    []model.Tool{{Name: longName}},
	})
	assert.Error(t, err)
}

func TestNormalizeIsDeterministicForSameInput(t *testing.T) {
	msgs := []model.Message{
		textMsg(model.RoleUser, "a"),
		textMsg(model.RoleAssistant, "b"),
	}
	p1, err := Normalize(Input{Messages: msgs})
	require.NoError(t, err)
	p2, err := Normalize(Input{Messages: msgs})
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
}

func TestNormalizeThinkingInjection(t *testing.T) {
	payload, err := Normalize(Input{
		Messages:          []model.Message{textMsg(model.RoleUser, "hello")},
		ThinkingEnabled:   true,
		ThinkingMaxLength: 4096,
	})
	require.NoError(t, err)
	assert.Contains(t, payload.ConversationState.CurrentMessage.UserInputMessage.Content, "<thinking_mode>enabled</thinking_mode>")
}
