package windowing_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petasbytes/vm-agent/internal/windowing"
	"github.com/petasbytes/vm-agent/memory"
)

func TestCompact_PrunesImageResults(t *testing.T) {
	msgs := []memory.Message{
		UserText("take a screenshot"),
		Asst(TU("t1")),
		User(TRImage("t1")),
		Asst(TU("t2")),
		User(TRImage("t2")),
	}

	n := windowing.Compact(msgs)

	assert.Equal(t, 2, n)
	for _, i := range []int{2, 4} {
		blk := msgs[i].Blocks[0]
		assert.Nil(t, blk.Content, "message %d", i)
		assert.Equal(t, memory.BlockToolResult, blk.Type)
		assert.NotEmpty(t, blk.ToolUseID)
	}
}

func TestCompact_KeepsMetadata(t *testing.T) {
	blk := TRImage("t1")
	blk.IsError = true
	msgs := []memory.Message{User(blk)}

	windowing.Compact(msgs)

	got := msgs[0].Blocks[0]
	assert.Nil(t, got.Content)
	assert.Equal(t, "t1", got.ToolUseID)
	assert.True(t, got.IsError)
}

func TestCompact_LeavesNonImagePayloads(t *testing.T) {
	tests := []struct {
		name string
		msg  memory.Message
	}{
		{name: "string result", msg: User(TRString("t1", "a.txt\nb.txt"))},
		{name: "text array result", msg: User(memory.ToolResultBlock("t1", json.RawMessage(`[{"type":"text","text":"ok"}]`), false))},
		{name: "image not first element", msg: User(memory.ToolResultBlock("t1", json.RawMessage(
			`[{"type":"text","text":"x"},{"type":"image","source":{"type":"base64","media_type":"image/png","data":"AA=="}}]`), false))},
		{name: "image result not first block", msg: User(T("note"), TRImage("t1"))},
		{name: "empty result", msg: User(TR("t1", false))},
		{name: "plain text message", msg: UserText("hello")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := []memory.Message{tt.msg}
			before, err := json.Marshal(msgs)
			require.NoError(t, err)

			assert.Zero(t, windowing.Compact(msgs))

			after, err := json.Marshal(msgs)
			require.NoError(t, err)
			assert.JSONEq(t, string(before), string(after))
		})
	}
}

func TestCompact_Idempotent(t *testing.T) {
	msgs := []memory.Message{
		Asst(TU("t1")),
		User(TRImage("t1")),
		Asst(TU("t2")),
		User(TRString("t2", "done")),
	}

	windowing.Compact(msgs)
	once, err := json.Marshal(msgs)
	require.NoError(t, err)

	assert.Zero(t, windowing.Compact(msgs))
	twice, err := json.Marshal(msgs)
	require.NoError(t, err)

	assert.JSONEq(t, string(once), string(twice))
}
