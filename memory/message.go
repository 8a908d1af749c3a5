package memory

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleError marks locally generated failure notices. They are kept in history
	// for observers but never sent upstream.
	RoleError Role = "error"
)

var ErrInvalidRole = errors.New("memory: invalid role")

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleError:
		return true
	}
	return false
}

// BlockType tags a content block.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
	BlockThinking   BlockType = "thinking"
)

// Known reports whether t is one of the block types the loop understands.
func (t BlockType) Known() bool {
	switch t {
	case BlockText, BlockToolUse, BlockToolResult, BlockThinking:
		return true
	}
	return false
}

// Block is a single content block. Which fields are meaningful depends on Type:
//   - text:        Text
//   - tool_use:    ID, Name, Input
//   - tool_result: ToolUseID, Content (absent when empty or pruned), IsError
//   - thinking:    Thinking, Signature
//
// Blocks of an unknown type carry only Type.
type Block struct {
	Type      BlockType       `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	Signature string          `json:"signature,omitempty"`
}

func TextBlock(text string) Block {
	return Block{Type: BlockText, Text: text}
}

func ToolUseBlock(id, name string, input json.RawMessage) Block {
	return Block{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

// ToolResultBlock builds a tool_result. A nil content omits the content field.
func ToolResultBlock(toolUseID string, content json.RawMessage, isError bool) Block {
	return Block{Type: BlockToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

func ThinkingBlock(thinking, signature string) Block {
	return Block{Type: BlockThinking, Thinking: thinking, Signature: signature}
}

// ContentText returns a tool_result payload as text: JSON strings are unquoted,
// any other payload is returned as raw JSON.
func (b Block) ContentText() string {
	if len(b.Content) == 0 {
		return ""
	}
	r := gjson.ParseBytes(b.Content)
	if r.Type == gjson.String {
		return r.String()
	}
	return r.Raw
}

// Message is one entry of the conversation.
// Blocks == nil means a plain text message.
type Message struct {
	Role   Role
	Text   string
	Blocks []Block
}

// IsText reports whether the content is plain text rather than blocks.
func (m Message) IsText() bool { return m.Blocks == nil }

type wireMessage struct {
	Role    Role `json:"role"`
	Content any  `json:"content"`
}

// MarshalJSON encodes the message as {"role", "content"} where content is a string
// or an array of blocks.
func (m Message) MarshalJSON() ([]byte, error) {
	if m.Blocks != nil {
		return json.Marshal(wireMessage{Role: m.Role, Content: m.Blocks})
	}
	return json.Marshal(wireMessage{Role: m.Role, Content: m.Text})
}

func (m *Message) UnmarshalJSON(b []byte) error {
	var w struct {
		Role    Role            `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if !w.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, w.Role)
	}
	*m = Message{Role: w.Role}
	content := gjson.ParseBytes(w.Content)
	switch {
	case content.IsArray():
		blocks := []Block{}
		if err := json.Unmarshal(w.Content, &blocks); err != nil {
			return fmt.Errorf("decode blocks: %w", err)
		}
		m.Blocks = blocks
	case content.Type == gjson.String:
		m.Text = content.String()
	case !content.Exists() || content.Type == gjson.Null:
	default:
		return fmt.Errorf("memory: unsupported content %s", content.Raw)
	}
	return nil
}

// clone copies the message including its block slice.
func (m Message) clone() Message {
	if m.Blocks != nil {
		m.Blocks = append([]Block(nil), m.Blocks...)
		if m.Blocks == nil {
			m.Blocks = []Block{}
		}
	}
	return m
}
