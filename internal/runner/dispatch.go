package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/petasbytes/vm-agent/internal/telemetry"
	"github.com/petasbytes/vm-agent/memory"
	"github.com/petasbytes/vm-agent/tools"
)

// dispatch runs one tool_use through h and returns the matching tool_result.
func (r *Runner) dispatch(ctx context.Context, logger zerolog.Logger, h tools.Handler, use memory.Block) memory.Block {
	start := time.Now()
	content, toolErr := invoke(ctx, h, tools.Call{ID: use.ID, Name: use.Name, Input: use.Input})

	fields := map[string]any{
		"tool_name":   use.Name,
		"duration_ms": time.Since(start).Milliseconds(),
		"input_size":  len(use.Input),
		"output_size": len(content),
		"error":       nil,
	}
	if toolErr != nil {
		// Only a generic marker goes to telemetry; the detail stays in history.
		fields["error"] = "tool error"
		fields["output_size"] = 0
		logger.Warn().
			Err(toolErr).
			Str("tool", use.Name).
			Str("tool_use_id", use.ID).
			Msg("tool error")
		msg, _ := json.Marshal(toolErr.Error())
		telemetry.EmitTurn(ctx, "tool_exec", fields)
		return memory.ToolResultBlock(use.ID, msg, true)
	}
	telemetry.EmitTurn(ctx, "tool_exec", fields)
	return memory.ToolResultBlock(use.ID, content, false)
}

// invoke calls the handler and encodes its value. Panics become errors.
func invoke(ctx context.Context, h tools.Handler, call tools.Call) (content json.RawMessage, err error) {
	if h == nil {
		return nil, fmt.Errorf("no tool handler configured")
	}
	defer func() {
		if p := recover(); p != nil {
			content, err = nil, fmt.Errorf("tool %s panicked: %v", call.Name, p)
		}
	}()
	v, err := h.Handle(ctx, call)
	if err != nil {
		return nil, err
	}
	return encodeOutcome(v)
}

func encodeOutcome(v any) (json.RawMessage, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(x) == 0 {
			return nil, nil
		}
		if !json.Valid(x) {
			return nil, fmt.Errorf("tool returned invalid JSON content")
		}
		return x, nil
	case string:
		return json.Marshal(x)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return b, nil
}
