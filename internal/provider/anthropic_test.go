package provider_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/petasbytes/vm-agent/internal/provider"
	"github.com/petasbytes/vm-agent/memory"
)

type capture struct {
	calls  int
	header http.Header
	body   []byte
}

type fakeTransport struct {
	respStatus int
	respBody   []byte
	captured   *capture
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	b, _ := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if f.captured != nil {
		f.captured.calls++
		f.captured.header = req.Header.Clone()
		f.captured.body = b
	}
	resp := &http.Response{
		StatusCode: f.respStatus,
		Body:       io.NopCloser(bytes.NewReader(f.respBody)),
		Header:     make(http.Header),
		Request:    req,
	}
	resp.Header.Set("Content-Type", "application/json")
	return resp, nil
}

func newClient(rt http.RoundTripper) *provider.Client {
	return provider.NewClient("test-key", option.WithHTTPClient(&http.Client{Transport: rt}))
}

const endTurn = `{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-7-sonnet-20250219","content":[{"type":"text","text":"hi"}],"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":1}}`

func TestSend_BashToolWhenNoDisplay(t *testing.T) {
	capReq := &capture{}
	c := newClient(&fakeTransport{respStatus: 200, respBody: []byte(endTurn), captured: capReq})

	resp, err := c.Send(context.Background(), provider.Request{
		Messages: []memory.Message{{Role: memory.RoleUser, Text: "hello"}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, capReq.calls)

	body := gjson.ParseBytes(capReq.body)
	assert.Equal(t, "bash_20250124", body.Get("tools.0.type").String())
	assert.Equal(t, "bash", body.Get("tools.0.name").String())
	assert.Equal(t, int64(1), body.Get("tools.#").Int())
	assert.Equal(t, "auto", body.Get("tool_choice.type").String())
	assert.True(t, body.Get("tool_choice.disable_parallel_tool_use").Bool())
	assert.Equal(t, int64(provider.DefaultMaxTokens), body.Get("max_tokens").Int())
	assert.Equal(t, "claude-3-7-sonnet-20250219", body.Get("model").String())
	assert.Equal(t, provider.DefaultSystemPrompt, body.Get("system.0.text").String())
	assert.False(t, body.Get("thinking").Exists())
	assert.Equal(t, "hello", body.Get("messages.0.content.0.text").String())
	assert.Contains(t, capReq.header.Get("anthropic-beta"), "computer-use-2025-01-24")

	assert.Equal(t, memory.RoleAssistant, resp.Role)
	assert.Equal(t, "end_turn", resp.StopReason)
	require.Len(t, resp.Blocks, 1)
	assert.Equal(t, memory.TextBlock("hi"), resp.Blocks[0])
}

func TestSend_ComputerToolAndThinking(t *testing.T) {
	capReq := &capture{}
	c := newClient(&fakeTransport{respStatus: 200, respBody: []byte(endTurn), captured: capReq})

	_, err := c.Send(context.Background(), provider.Request{
		Display:        &provider.Display{Width: 1024, Height: 768},
		ThinkingBudget: provider.ThinkingBudget,
		Messages:       []memory.Message{{Role: memory.RoleUser, Text: "open firefox"}},
	})
	require.NoError(t, err)

	body := gjson.ParseBytes(capReq.body)
	assert.Equal(t, "computer_20250124", body.Get("tools.0.type").String())
	assert.Equal(t, "computer", body.Get("tools.0.name").String())
	assert.Equal(t, int64(1024), body.Get("tools.0.display_width_px").Int())
	assert.Equal(t, int64(768), body.Get("tools.0.display_height_px").Int())
	assert.Equal(t, int64(1), body.Get("tools.0.display_number").Int())
	assert.Equal(t, "enabled", body.Get("thinking.type").String())
	assert.Equal(t, int64(1024), body.Get("thinking.budget_tokens").Int())
}

func TestSend_HistoryConversion(t *testing.T) {
	capReq := &capture{}
	c := newClient(&fakeTransport{respStatus: 200, respBody: []byte(endTurn), captured: capReq})

	img := json.RawMessage(`[{"type":"image","source":{"type":"base64","media_type":"image/png","data":"AAAA"}}]`)
	history := []memory.Message{
		{Role: memory.RoleUser, Text: "take a screenshot"},
		{Role: memory.RoleAssistant, Blocks: []memory.Block{
			memory.ThinkingBlock("plan", "sig"),
			memory.ToolUseBlock("tu_1", "computer", json.RawMessage(`{"action":"screenshot"}`)),
		}},
		{Role: memory.RoleUser, Blocks: []memory.Block{memory.ToolResultBlock("tu_1", img, false)}},
		{Role: memory.RoleError, Text: "boom"},
		{Role: memory.RoleUser, Blocks: []memory.Block{memory.ToolResultBlock("tu_2", json.RawMessage(`"failed"`), true)}},
		{Role: memory.RoleUser, Blocks: []memory.Block{memory.ToolResultBlock("tu_3", nil, false)}},
	}
	_, err := c.Send(context.Background(), provider.Request{Messages: history})
	require.NoError(t, err)

	msgs := gjson.GetBytes(capReq.body, "messages")
	require.Equal(t, int64(5), msgs.Get("#").Int(), "error-role message must not be sent")
	for _, m := range msgs.Array() {
		assert.NotEqual(t, "error", m.Get("role").String())
	}

	assert.Equal(t, "thinking", msgs.Get("1.content.0.type").String())
	assert.Equal(t, "sig", msgs.Get("1.content.0.signature").String())
	assert.Equal(t, "tool_use", msgs.Get("1.content.1.type").String())
	assert.Equal(t, "screenshot", msgs.Get("1.content.1.input.action").String())

	result := msgs.Get("2.content.0")
	assert.Equal(t, "tu_1", result.Get("tool_use_id").String())
	assert.Equal(t, "image", result.Get("content.0.type").String())
	assert.Equal(t, "AAAA", result.Get("content.0.source.data").String())

	failed := msgs.Get("3.content.0")
	assert.True(t, failed.Get("is_error").Bool())
	assert.Equal(t, "failed", failed.Get("content.0.text").String())

	empty := msgs.Get("4.content.0")
	assert.Equal(t, "tu_3", empty.Get("tool_use_id").String())
	assert.False(t, empty.Get("content").Exists())
	assert.False(t, empty.Get("is_error").Exists())
}

func TestSend_ResponseBlocks(t *testing.T) {
	body := `{"id":"msg_2","type":"message","role":"assistant","model":"m","stop_reason":"tool_use","usage":{"input_tokens":1,"output_tokens":1},"content":[
		{"type":"thinking","thinking":"hmm","signature":"s1"},
		{"type":"redacted_thinking","data":"xyz"},
		{"type":"tool_use","id":"tu_9","name":"bash","input":{"command":"ls"}}
	]}`
	c := newClient(&fakeTransport{respStatus: 200, respBody: []byte(body)})

	resp, err := c.Send(context.Background(), provider.Request{Messages: []memory.Message{{Role: memory.RoleUser, Text: "x"}}})
	require.NoError(t, err)
	assert.Equal(t, "tool_use", resp.StopReason)
	require.Len(t, resp.Blocks, 3)
	assert.Equal(t, memory.ThinkingBlock("hmm", "s1"), resp.Blocks[0])
	assert.Equal(t, memory.BlockType("redacted_thinking"), resp.Blocks[1].Type)
	assert.False(t, resp.Blocks[1].Type.Known())
	assert.Equal(t, memory.BlockToolUse, resp.Blocks[2].Type)
	assert.Equal(t, "tu_9", resp.Blocks[2].ID)
	assert.JSONEq(t, `{"command":"ls"}`, string(resp.Blocks[2].Input))
}

func TestSend_Unauthorized(t *testing.T) {
	capReq := &capture{}
	body := `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`
	c := newClient(&fakeTransport{respStatus: 401, respBody: []byte(body), captured: capReq})

	_, err := c.Send(context.Background(), provider.Request{Messages: []memory.Message{{Role: memory.RoleUser, Text: "x"}}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, provider.ErrInvalidCredential))
	assert.Equal(t, "invalid x-api-key", provider.ErrorMessage(err))
	assert.Equal(t, 1, capReq.calls, "no retries")
}

func TestSend_ServerError(t *testing.T) {
	capReq := &capture{}
	body := `{"type":"error","error":{"type":"api_error","message":"overloaded"}}`
	c := newClient(&fakeTransport{respStatus: 500, respBody: []byte(body), captured: capReq})

	_, err := c.Send(context.Background(), provider.Request{Messages: []memory.Message{{Role: memory.RoleUser, Text: "x"}}})
	require.Error(t, err)
	assert.False(t, errors.Is(err, provider.ErrInvalidCredential))

	var apiErr *provider.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 500, apiErr.StatusCode)
	assert.Equal(t, "overloaded", provider.ErrorMessage(err))
	assert.Equal(t, 1, capReq.calls, "no retries")
}

func TestErrorMessage_PlainError(t *testing.T) {
	assert.Equal(t, "dial tcp: refused", provider.ErrorMessage(errors.New("dial tcp: refused")))
}

func TestSend_UnsupportedHistoryBlock(t *testing.T) {
	capReq := &capture{}
	c := newClient(&fakeTransport{respStatus: 200, respBody: []byte(endTurn), captured: capReq})

	_, err := c.Send(context.Background(), provider.Request{Messages: []memory.Message{
		{Role: memory.RoleAssistant, Blocks: []memory.Block{{Type: "redacted_thinking"}}},
	}})
	require.Error(t, err)
	assert.Equal(t, 0, capReq.calls)
}
