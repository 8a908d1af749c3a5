package provider

import (
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/tidwall/gjson"

	"github.com/petasbytes/vm-agent/memory"
)

// resultContent turns a stored tool_result payload into wire content.
// A JSON string becomes one text block, an array is mapped element by element
// (text and image blocks kept, anything else sent as its JSON text), and any
// other value is sent as JSON text. Empty payloads produce no content.
func resultContent(raw json.RawMessage) []anthropic.BetaToolResultBlockParamContentUnion {
	if len(raw) == 0 {
		return nil
	}
	r := gjson.ParseBytes(raw)
	switch {
	case r.Type == gjson.String:
		if r.String() == "" {
			return nil
		}
		return []anthropic.BetaToolResultBlockParamContentUnion{textContent(r.String())}
	case r.Type == gjson.Null:
		return nil
	case r.IsArray():
		var out []anthropic.BetaToolResultBlockParamContentUnion
		r.ForEach(func(_, el gjson.Result) bool {
			out = append(out, contentElement(el))
			return true
		})
		return out
	}
	return []anthropic.BetaToolResultBlockParamContentUnion{textContent(r.Raw)}
}

func contentElement(el gjson.Result) anthropic.BetaToolResultBlockParamContentUnion {
	switch el.Get("type").String() {
	case "text":
		return textContent(el.Get("text").String())
	case "image":
		src := el.Get("source")
		switch src.Get("type").String() {
		case "base64":
			return anthropic.BetaToolResultBlockParamContentUnion{OfImage: &anthropic.BetaImageBlockParam{
				Source: anthropic.BetaImageBlockParamSourceUnion{OfBase64: &anthropic.BetaBase64ImageSourceParam{
					Data:      src.Get("data").String(),
					MediaType: anthropic.BetaBase64ImageSourceMediaType(src.Get("media_type").String()),
				}},
			}}
		case "url":
			return anthropic.BetaToolResultBlockParamContentUnion{OfImage: &anthropic.BetaImageBlockParam{
				Source: anthropic.BetaImageBlockParamSourceUnion{OfURL: &anthropic.BetaURLImageSourceParam{
					URL: src.Get("url").String(),
				}},
			}}
		}
	}
	return textContent(el.Raw)
}

func textContent(s string) anthropic.BetaToolResultBlockParamContentUnion {
	return anthropic.BetaToolResultBlockParamContentUnion{OfText: &anthropic.BetaTextBlockParam{Text: s}}
}

// convertResponse maps SDK content blocks to store blocks. Blocks the loop does
// not understand keep only their type so the caller can log and skip them.
func convertResponse(msg *anthropic.BetaMessage) *Response {
	out := &Response{
		Role:       memory.Role(msg.Role),
		StopReason: string(msg.StopReason),
		Blocks:     make([]memory.Block, 0, len(msg.Content)),
	}
	if out.Role == "" {
		out.Role = memory.RoleAssistant
	}
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.BetaTextBlock:
			out.Blocks = append(out.Blocks, memory.TextBlock(v.Text))
		case anthropic.BetaToolUseBlock:
			input := json.RawMessage(v.JSON.Input.Raw())
			if len(input) == 0 {
				input = json.RawMessage(`{}`)
			}
			out.Blocks = append(out.Blocks, memory.ToolUseBlock(v.ID, v.Name, input))
		case anthropic.BetaThinkingBlock:
			out.Blocks = append(out.Blocks, memory.ThinkingBlock(v.Thinking, v.Signature))
		default:
			out.Blocks = append(out.Blocks, memory.Block{Type: memory.BlockType(block.Type)})
		}
	}
	return out
}
