// Package normalizer implements the 9-step message-normalisation pipeline
// of spec.md §4.E, converting a unified message list into an Upstream
// payload. The step order is load-bearing: breaking it violates Upstream
// acceptance. Grounded step-for-step on
// original_source/kiro/converters_pipeline.py for steps 2-7 (tool
// stripping, orphan flattening, adjacent merge, first-message-is-user,
// role normalisation, alternation) and on spec.md §4.E for steps 1, 8, 9
// (system prompt assembly, payload build, thinking injection), which the
// retrieved original source did not keep function bodies for.
package normalizer

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/brgw/gateway/internal/model"
	"github.com/brgw/gateway/internal/toolschema"
)

const emptyPlaceholder = "(empty)"
const continuePlaceholder = "Continue"

// ThinkingInstruction is the fixed sentinel block legitimising the
// thinking-mode tags (spec.md §4.E step 9).
const ThinkingInstruction = "These tags request an internal reasoning trace before the final answer. " +
	"Use <thinking>...</thinking> for your reasoning, then provide the final answer outside the tags."

// Input is everything Normalize needs to build an Upstream payload.
type Input struct {
	Messages                 []model.Message
	Tools                    []model.Tool
	SystemPrompt             string
	ToolDescriptionMaxLength int
	ThinkingEnabled          bool
	ThinkingMaxLength        int
	ProfileArn               string
}

// Normalize runs the full pipeline and returns the Upstream payload.
func Normalize(in Input) (model.UpstreamPayload, error) {
	if err := toolschema.ValidateNames(in.Tools); err != nil {
		return model.UpstreamPayload{}, err
	}
	longDescResult := toolschema.ProcessLongDescriptions(in.Tools, in.ToolDescriptionMaxLength)
	systemPrompt := in.SystemPrompt
	if longDescResult.SystemPromptAddendum != "" {
		systemPrompt = joinNonEmpty(systemPrompt, longDescResult.SystemPromptAddendum, "\n\n")
	}

	msgs := cloneMessages(in.Messages)
	hasTools := len(in.Tools) > 0

	if !hasTools {
		msgs = stripAllToolContent(msgs)
	} else {
		msgs = flattenOrphanToolResults(msgs)
	}

	msgs = mergeAdjacent(msgs)
	msgs = ensureFirstMessageIsUser(msgs)
	msgs = normalizeRoles(msgs)
	msgs = ensureAlternating(msgs)

	payload := buildPayload(msgs, systemPrompt, longDescResult.Tools, hasTools, in.ProfileArn)

	if in.ThinkingEnabled {
		injectThinking(&payload, in.ThinkingMaxLength)
	}

	return payload, nil
}

func joinNonEmpty(a, b, sep string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + sep + b
}

func cloneMessages(in []model.Message) []model.Message {
	out := make([]model.Message, len(in))
	copy(out, in)
	return out
}

// stripAllToolContent is step 2: when no tools are declared, every
// tool-use/tool-result block in every message is folded into readable text.
func stripAllToolContent(msgs []model.Message) []model.Message {
	out := make([]model.Message, len(msgs))
	for i, m := range msgs {
		m.Content = m.Content.WithoutToolBlocks()
		out[i] = m
	}
	return out
}

// flattenOrphanToolResults is step 3: a tool-result not immediately
// preceded by an assistant message carrying the matching tool-use id is
// flattened to text in place.
func flattenOrphanToolResults(msgs []model.Message) []model.Message {
	out := make([]model.Message, len(msgs))
	copy(out, msgs)

	for i, m := range out {
		results := m.Content.ToolResults()
		if len(results) == 0 {
			continue
		}
		matchedIDs := make(map[string]bool)
		if i > 0 && out[i-1].Role == model.RoleAssistant {
			for _, use := range out[i-1].Content.ToolUses() {
				matchedIDs[use.ToolUseID] = true
			}
		}
		allMatched := true
		for _, r := range results {
			if !matchedIDs[r.ToolResultID] {
				allMatched = false
				break
			}
		}
		if !allMatched {
			out[i].Content = m.Content.WithoutToolBlocks()
		}
	}
	return out
}

// mergeAdjacent is step 4: consecutive same-role messages are merged.
// Never mutates inputs.
func mergeAdjacent(msgs []model.Message) []model.Message {
	if len(msgs) == 0 {
		return msgs
	}
	out := []model.Message{msgs[0]}
	for _, m := range msgs[1:] {
		last := &out[len(out)-1]
		if last.Role == m.Role {
			last.Content = mergeContent(last.Content, m.Content)
			last.Images = append(append([]model.Image{}, last.Images...), m.Images...)
			continue
		}
		out = append(out, m)
	}
	return out
}

func mergeContent(a, b model.Content) model.Content {
	if a.Kind == model.ContentString && b.Kind == model.ContentString {
		return model.NewTextContent(joinNonEmpty(a.Text, b.Text, "\n"))
	}
	return model.NewBlocksContent(append(toBlocks(a), toBlocks(b)...))
}

func toBlocks(c model.Content) []model.Block {
	switch c.Kind {
	case model.ContentString:
		if c.Text == "" {
			return nil
		}
		return []model.Block{{Kind: model.BlockText, Text: c.Text}}
	case model.ContentBlocks:
		return append([]model.Block{}, c.Blocks...)
	default:
		return nil
	}
}

// ensureFirstMessageIsUser is step 5.
func ensureFirstMessageIsUser(msgs []model.Message) []model.Message {
	if len(msgs) > 0 && msgs[0].Role == model.RoleUser {
		return msgs
	}
	synthetic := model.Message{Role: model.RoleUser, Content: model.NewTextContent(emptyPlaceholder)}
	return append([]model.Message{synthetic}, msgs...)
}

// normalizeRoles is step 6: any role outside {user, assistant} becomes
// user. Must run after step 5 and before step 7.
func normalizeRoles(msgs []model.Message) []model.Message {
	out := make([]model.Message, len(msgs))
	for i, m := range msgs {
		if m.Role != model.RoleUser && m.Role != model.RoleAssistant {
			m.Role = model.RoleUser
		}
		out[i] = m
	}
	return out
}

// ensureAlternating is step 7: insert a synthetic assistant "(empty)"
// between any two consecutive user messages.
func ensureAlternating(msgs []model.Message) []model.Message {
	if len(msgs) == 0 {
		return msgs
	}
	out := []model.Message{msgs[0]}
	for _, m := range msgs[1:] {
		last := out[len(out)-1]
		if last.Role == model.RoleUser && m.Role == model.RoleUser {
			out = append(out, model.Message{Role: model.RoleAssistant, Content: model.NewTextContent(emptyPlaceholder)})
		}
		out = append(out, m)
	}
	return out
}

// buildPayload is step 8.
func buildPayload(msgs []model.Message, systemPrompt string, tools []model.Tool, hasTools bool, profileArn string) model.UpstreamPayload {
	var upstreamTools []model.UpstreamToolSpec
	if hasTools {
		upstreamTools = toolschema.Convert(tools)
	}

	if len(msgs) == 0 {
		msgs = []model.Message{{Role: model.RoleUser, Content: model.NewTextContent(emptyPlaceholder)}}
	}

	history := msgs[:len(msgs)-1]
	current := msgs[len(msgs)-1]

	var historyEntries []model.UpstreamHistoryEntry
	for _, m := range history {
		historyEntries = append(historyEntries, toHistoryEntry(m))
	}

	if systemPrompt != "" {
		if len(historyEntries) > 0 && historyEntries[0].UserInputMessage != nil {
			historyEntries[0].UserInputMessage.Content = joinNonEmpty(systemPrompt, historyEntries[0].UserInputMessage.Content, "\n\n")
		} else if len(historyEntries) == 0 {
			current.Content = model.NewTextContent(joinNonEmpty(systemPrompt, current.Content.ExtractText(), "\n\n"))
		}
	}

	if current.Role == model.RoleAssistant {
		historyEntries = append(historyEntries, toHistoryEntry(current))
		current = model.Message{Role: model.RoleUser, Content: model.NewTextContent(continuePlaceholder)}
	}

	currentText := current.Content.ExtractText()
	if currentText == "" {
		currentText = continuePlaceholder
	}

	currentMsg := model.UpstreamUserInputMessage{Content: currentText}
	if hasTools {
		ctx := &model.UpstreamUserContext{Tools: upstreamTools}
		if results := toUpstreamToolResults(current.Content.ToolResults()); len(results) > 0 {
			ctx.ToolResults = results
		}
		currentMsg.UserInputMessageContext = ctx
	}
	currentMsg.Images = toUpstreamImages(current.Images)

	return model.UpstreamPayload{
		ConversationState: model.UpstreamConversationState{
			History:        historyEntries,
			CurrentMessage: model.UpstreamCurrentMessage{UserInputMessage: currentMsg},
		},
		ProfileArn: profileArn,
	}
}

func toHistoryEntry(m model.Message) model.UpstreamHistoryEntry {
	text := m.Content.ExtractText()
	if text == "" {
		text = emptyPlaceholder
	}
	if m.Role == model.RoleAssistant {
		return model.UpstreamHistoryEntry{
			AssistantResponseMessage: &model.UpstreamAssistantResponseMessage{
				Content:  text,
				ToolUses: toUpstreamToolUses(m.Content.ToolUses()),
			},
		}
	}
	u := model.UpstreamUserInputMessage{Content: text, Images: toUpstreamImages(m.Images)}
	if results := toUpstreamToolResults(m.Content.ToolResults()); len(results) > 0 {
		u.UserInputMessageContext = &model.UpstreamUserContext{ToolResults: results}
	}
	return model.UpstreamHistoryEntry{UserInputMessage: &u}
}

func toUpstreamToolUses(blocks []model.Block) []model.UpstreamToolUse {
	var out []model.UpstreamToolUse
	for _, b := range blocks {
		var input map[string]any
		if len(b.ToolInput) > 0 {
			_ = json.Unmarshal(b.ToolInput, &input)
		}
		out = append(out, model.UpstreamToolUse{ToolUseID: b.ToolUseID, Name: b.ToolName, Input: input})
	}
	return out
}

func toUpstreamToolResults(blocks []model.Block) []model.UpstreamToolResult {
	var out []model.UpstreamToolResult
	for _, b := range blocks {
		r := model.UpstreamToolResult{ToolUseID: b.ToolResultID}
		r.Content = append(r.Content, struct {
			Text string `json:"text"`
		}{Text: b.ToolResultContent})
		if b.ToolResultIsError {
			r.Status = "error"
		}
		out = append(out, r)
	}
	return out
}

func toUpstreamImages(images []model.Image) []model.UpstreamImage {
	var out []model.UpstreamImage
	for _, img := range images {
		u := model.UpstreamImage{Format: subtype(img.MediaType)}
		u.Source.Bytes = stripDataURLPrefix(img.Data)
		out = append(out, u)
	}
	return out
}

func subtype(mediaType string) string {
	if idx := strings.IndexByte(mediaType, '/'); idx >= 0 {
		return mediaType[idx+1:]
	}
	return mediaType
}

func stripDataURLPrefix(data string) string {
	if idx := strings.Index(data, "base64,"); idx >= 0 {
		return data[idx+len("base64,"):]
	}
	return data
}

func injectThinking(payload *model.UpstreamPayload, maxLength int) {
	if payload.ConversationState.CurrentMessage.UserInputMessage.UserInputMessageContext != nil &&
		len(payload.ConversationState.CurrentMessage.UserInputMessage.UserInputMessageContext.ToolResults) > 0 {
		return
	}
	tags := "<thinking_mode>enabled</thinking_mode>" +
		"<max_thinking_length>" + strconv.Itoa(maxLength) + "</max_thinking_length>" +
		"<thinking_instruction>" + ThinkingInstruction + "</thinking_instruction>"
	cur := &payload.ConversationState.CurrentMessage.UserInputMessage
	cur.Content = tags + "\n" + cur.Content
}
