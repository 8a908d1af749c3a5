package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/petasbytes/vm-agent/memory"
)

const (
	DefaultModel     = anthropic.ModelClaude3_7Sonnet20250219
	DefaultMaxTokens = 2048
	// ThinkingBudget is the token budget sent when extended thinking is on.
	ThinkingBudget = 1024
	// DefaultDisplayNumber is the X display the computer tool drives.
	DefaultDisplayNumber = 1
)

const DefaultSystemPrompt = "You are running on a virtualized machine. Wait some extra time after all operations to compensate for slowdown."

// Display is the geometry advertised with the computer-use tool.
type Display struct {
	Width  int64
	Height int64
	Number int64
}

// Request is one round of the turn loop.
type Request struct {
	Model     string
	MaxTokens int64
	System    string
	// Display selects the computer-use tool; nil advertises bash.
	Display *Display
	// ThinkingBudget enables extended thinking when positive.
	ThinkingBudget int64
	Messages       []memory.Message
}

// Response holds the model reply converted back to store blocks.
type Response struct {
	Role       memory.Role
	Blocks     []memory.Block
	StopReason string
}

// Client sends Requests through the SDK beta surface.
type Client struct {
	api *anthropic.Client
}

// NewClient returns a client for apiKey. Retries are disabled; a failed call ends
// the round. Extra options (base URL, HTTP client, timeout) are applied after.
func NewClient(apiKey string, opts ...option.RequestOption) *Client {
	all := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	c := anthropic.NewClient(all...)
	return &Client{api: &c}
}

// Send performs one beta Messages call.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}
	msg, err := c.api.Beta.Messages.New(ctx, params)
	if err != nil {
		return nil, wrapError(err)
	}
	return convertResponse(msg), nil
}

func buildParams(req Request) (anthropic.BetaMessageNewParams, error) {
	model := req.Model
	if model == "" {
		model = string(DefaultModel)
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	system := req.System
	if system == "" {
		system = DefaultSystemPrompt
	}

	msgs, err := toParams(req.Messages)
	if err != nil {
		return anthropic.BetaMessageNewParams{}, err
	}

	params := anthropic.BetaMessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		System:    []anthropic.BetaTextBlockParam{{Text: system}},
		Messages:  msgs,
		Tools:     []anthropic.BetaToolUnionParam{toolFor(req.Display)},
		ToolChoice: anthropic.BetaToolChoiceUnionParam{
			OfAuto: &anthropic.BetaToolChoiceAutoParam{DisableParallelToolUse: anthropic.Bool(true)},
		},
		Betas: []anthropic.AnthropicBeta{anthropic.AnthropicBetaComputerUse2025_01_24},
	}
	if req.ThinkingBudget > 0 {
		params.Thinking = anthropic.BetaThinkingConfigParamOfEnabled(req.ThinkingBudget)
	}
	return params, nil
}

func toolFor(d *Display) anthropic.BetaToolUnionParam {
	if d == nil {
		return anthropic.BetaToolUnionParam{OfBashTool20250124: &anthropic.BetaToolBash20250124Param{}}
	}
	number := d.Number
	if number == 0 {
		number = DefaultDisplayNumber
	}
	return anthropic.BetaToolUnionParam{OfComputerUseTool20250124: &anthropic.BetaToolComputerUse20250124Param{
		DisplayWidthPx:  d.Width,
		DisplayHeightPx: d.Height,
		DisplayNumber:   anthropic.Int(number),
	}}
}

// toParams converts history to wire messages, skipping error-role entries.
func toParams(msgs []memory.Message) ([]anthropic.BetaMessageParam, error) {
	out := make([]anthropic.BetaMessageParam, 0, len(msgs))
	for i, m := range msgs {
		var role anthropic.BetaMessageParamRole
		switch m.Role {
		case memory.RoleUser:
			role = anthropic.BetaMessageParamRoleUser
		case memory.RoleAssistant:
			role = anthropic.BetaMessageParamRoleAssistant
		default:
			continue
		}
		var content []anthropic.BetaContentBlockParamUnion
		if m.IsText() {
			content = []anthropic.BetaContentBlockParamUnion{anthropic.NewBetaTextBlock(m.Text)}
		} else {
			content = make([]anthropic.BetaContentBlockParamUnion, 0, len(m.Blocks))
			for j, b := range m.Blocks {
				p, ok := blockParam(b)
				if !ok {
					return nil, fmt.Errorf("provider: message %d block %d: unsupported type %q", i, j, b.Type)
				}
				content = append(content, p)
			}
		}
		out = append(out, anthropic.BetaMessageParam{Role: role, Content: content})
	}
	return out, nil
}

func blockParam(b memory.Block) (anthropic.BetaContentBlockParamUnion, bool) {
	switch b.Type {
	case memory.BlockText:
		return anthropic.NewBetaTextBlock(b.Text), true
	case memory.BlockToolUse:
		var input any = map[string]any{}
		if len(b.Input) > 0 {
			input = json.RawMessage(b.Input)
		}
		return anthropic.BetaContentBlockParamUnion{OfToolUse: &anthropic.BetaToolUseBlockParam{
			ID:    b.ID,
			Name:  b.Name,
			Input: input,
		}}, true
	case memory.BlockToolResult:
		p := &anthropic.BetaToolResultBlockParam{
			ToolUseID: b.ToolUseID,
			Content:   resultContent(b.Content),
		}
		if b.IsError {
			p.IsError = anthropic.Bool(true)
		}
		return anthropic.BetaContentBlockParamUnion{OfToolResult: p}, true
	case memory.BlockThinking:
		return anthropic.BetaContentBlockParamUnion{OfThinking: &anthropic.BetaThinkingBlockParam{
			Thinking:  b.Thinking,
			Signature: b.Signature,
		}}, true
	}
	return anthropic.BetaContentBlockParamUnion{}, false
}
