// Package model defines the wire-agnostic message and tool types shared by
// the normaliser, stream parser and orchestrator.
package model

import "encoding/json"

// Role is the role of a unified message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
	RoleOther     Role = "other"
)

// BlockKind discriminates a Block's payload.
type BlockKind string

const (
	BlockText       BlockKind = "text"
	BlockImage      BlockKind = "image"
	BlockToolUse    BlockKind = "tool_use"
	BlockToolResult BlockKind = "tool_result"
)

// Image is an inline image attachment (media type + base64 bytes).
type Image struct {
	MediaType string // e.g. "image/png"
	Data      string // base64, no data-URL prefix
}

// Block is one element of a Blocks-variant Content. Exactly one of the
// payload fields is meaningful, selected by Kind.
type Block struct {
	Kind BlockKind

	Text string // BlockText

	Image Image // BlockImage

	// BlockToolUse
	ToolUseID string
	ToolName  string
	ToolInput json.RawMessage

	// BlockToolResult
	ToolResultID      string
	ToolResultContent string
	ToolResultIsError bool
}

// ContentKind discriminates a Content value.
type ContentKind int

const (
	ContentNone ContentKind = iota
	ContentString
	ContentBlocks
)

// Content is the tagged variant Content = Text(string) | Blocks([]Block)
// called out in spec.md §9 as the re-architected replacement for dynamic
// duck-typed content.
type Content struct {
	Kind   ContentKind
	Text   string
	Blocks []Block
}

// NewTextContent builds a string-variant Content.
func NewTextContent(s string) Content {
	return Content{Kind: ContentString, Text: s}
}

// NewBlocksContent builds a blocks-variant Content. Defensive-copies blocks.
func NewBlocksContent(blocks []Block) Content {
	cp := make([]Block, len(blocks))
	copy(cp, blocks)
	return Content{Kind: ContentBlocks, Blocks: cp}
}

// IsEmpty reports whether Content carries no meaningful text or blocks.
func (c Content) IsEmpty() bool {
	switch c.Kind {
	case ContentNone:
		return true
	case ContentString:
		return c.Text == ""
	case ContentBlocks:
		return len(c.Blocks) == 0
	default:
		return true
	}
}

// ExtractText is a total fold over Content extracting a flat text
// representation, inlining tool-use/tool-result blocks as readable markers.
func (c Content) ExtractText() string {
	switch c.Kind {
	case ContentNone:
		return ""
	case ContentString:
		return c.Text
	case ContentBlocks:
		var out string
		for i, b := range c.Blocks {
			if i > 0 {
				out += "\n"
			}
			out += extractBlockText(b)
		}
		return out
	default:
		return ""
	}
}

func extractBlockText(b Block) string {
	switch b.Kind {
	case BlockText:
		return b.Text
	case BlockImage:
		return "[image]"
	case BlockToolUse:
		return "[Tool Use: " + b.ToolName + "]"
	case BlockToolResult:
		return "[Tool Result (" + b.ToolResultID + ")]\n" + b.ToolResultContent
	default:
		return ""
	}
}

// HasToolUse reports whether Content carries at least one tool-use block.
func (c Content) HasToolUse() bool {
	for _, b := range c.Blocks {
		if b.Kind == BlockToolUse {
			return true
		}
	}
	return false
}

// ToolResults returns every tool-result block in Content, in order.
func (c Content) ToolResults() []Block {
	var out []Block
	for _, b := range c.Blocks {
		if b.Kind == BlockToolResult {
			out = append(out, b)
		}
	}
	return out
}

// ToolUses returns every tool-use block in Content, in order.
func (c Content) ToolUses() []Block {
	var out []Block
	for _, b := range c.Blocks {
		if b.Kind == BlockToolUse {
			out = append(out, b)
		}
	}
	return out
}

// WithoutToolBlocks returns Content with tool-use/tool-result blocks folded
// into readable text and removed from the structured list. Used by the
// tool-stripping and orphan-result-flattening normaliser steps.
func (c Content) WithoutToolBlocks() Content {
	if c.Kind != ContentBlocks {
		return c
	}
	var text string
	var kept []Block
	for _, b := range c.Blocks {
		switch b.Kind {
		case BlockToolUse, BlockToolResult:
			if text != "" {
				text += "\n"
			}
			text += extractBlockText(b)
		default:
			kept = append(kept, b)
		}
	}
	textBlocks := 0
	for _, b := range kept {
		if b.Kind == BlockText {
			if text != "" {
				text += "\n"
			}
			text += b.Text
			textBlocks++
		}
	}
	if textBlocks == len(kept) {
		return NewTextContent(text)
	}
	// retain non-text, non-tool blocks (images) alongside folded text.
	var out []Block
	if text != "" {
		out = append(out, Block{Kind: BlockText, Text: text})
	}
	for _, b := range kept {
		if b.Kind != BlockText {
			out = append(out, b)
		}
	}
	return NewBlocksContent(out)
}

// Message is a unified chat message, independent of client wire protocol.
type Message struct {
	Role    Role
	Content Content
	Images  []Image
}

// Tool is a unified tool/function declaration.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON-Schema object
}
