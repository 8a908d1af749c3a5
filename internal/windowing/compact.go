package windowing

import (
	"github.com/tidwall/gjson"

	"github.com/petasbytes/vm-agent/memory"
)

// Compact removes image payloads from tool_result blocks in place and returns the
// number of blocks it pruned. A block qualifies when it is the first block of its
// message, is a tool_result, and the first element of its content has type "image".
// The tool_use_id and is_error fields are left untouched. Running it twice is a no-op
// the second time.
func Compact(msgs []memory.Message) int {
	pruned := 0
	for i := range msgs {
		if len(msgs[i].Blocks) == 0 {
			continue
		}
		first := &msgs[i].Blocks[0]
		if first.Type != memory.BlockToolResult || !isImagePayload(first.Content) {
			continue
		}
		first.Content = nil
		pruned++
	}
	return pruned
}

// isImagePayload reports whether content is an array whose first element is an image.
func isImagePayload(content []byte) bool {
	if len(content) == 0 {
		return false
	}
	r := gjson.ParseBytes(content)
	if !r.IsArray() {
		return false
	}
	return r.Get("0.type").String() == "image"
}
