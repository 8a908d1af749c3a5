package windowing_test

import (
	"encoding/json"

	"github.com/petasbytes/vm-agent/memory"
)

// Text block constructor
func T(text string) memory.Block {
	return memory.TextBlock(text)
}

// Tool-use block constructor
func TU(id string) memory.Block {
	return memory.ToolUseBlock(id, "computer", json.RawMessage(`{"action":"screenshot"}`))
}

// Tool-result (no payload), with optional error flag
func TR(id string, isErr bool) memory.Block {
	return memory.ToolResultBlock(id, nil, isErr)
}

// Tool-result (string payload)
func TRString(id, s string) memory.Block {
	b, _ := json.Marshal(s)
	return memory.ToolResultBlock(id, b, false)
}

// Tool-result carrying a single base64 image, the shape a screenshot handler returns
func TRImage(id string) memory.Block {
	return memory.ToolResultBlock(id, json.RawMessage(
		`[{"type":"image","source":{"type":"base64","media_type":"image/png","data":"iVBORw0KGgo="}}]`), false)
}

// Assistant message constructor
func Asst(blocks ...memory.Block) memory.Message {
	return memory.Message{Role: memory.RoleAssistant, Blocks: blocks}
}

// User message constructor
func User(blocks ...memory.Block) memory.Message {
	return memory.Message{Role: memory.RoleUser, Blocks: blocks}
}

// UserText returns a plain text user message
func UserText(text string) memory.Message {
	return memory.Message{Role: memory.RoleUser, Text: text}
}
