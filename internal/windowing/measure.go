package windowing

import "github.com/petasbytes/vm-agent/memory"

// Stats summarizes an outgoing history.
//
// Fields:
// - Messages, Blocks: counts; text messages count as one block.
// - ImageResults: tool_result blocks still carrying an image payload.
// - PrunedResults: tool_result blocks without content.
// - ApproxBytes: payload bytes plus a fixed per-block overhead.
type Stats struct {
	Messages      int
	Blocks        int
	ImageResults  int
	PrunedResults int
	ApproxBytes   int
}

// Fixed per-block overhead for deterministic estimates; tests depend on this value.
const blockOverhead = 4

// Measure computes Stats for msgs without modifying them.
func Measure(msgs []memory.Message) Stats {
	st := Stats{Messages: len(msgs)}
	for _, m := range msgs {
		if m.IsText() {
			st.Blocks++
			st.ApproxBytes += len(m.Text) + blockOverhead
			continue
		}
		for _, blk := range m.Blocks {
			st.Blocks++
			st.ApproxBytes += blockSize(blk)
			if blk.Type != memory.BlockToolResult {
				continue
			}
			switch {
			case len(blk.Content) == 0:
				st.PrunedResults++
			case isImagePayload(blk.Content):
				st.ImageResults++
			}
		}
	}
	return st
}

func blockSize(blk memory.Block) int {
	switch blk.Type {
	case memory.BlockText:
		return len(blk.Text) + blockOverhead
	case memory.BlockToolUse:
		return len(blk.Name) + len(blk.Input) + blockOverhead
	case memory.BlockToolResult:
		return len(blk.Content) + blockOverhead
	case memory.BlockThinking:
		return len(blk.Thinking) + len(blk.Signature) + blockOverhead
	}
	return blockOverhead
}
