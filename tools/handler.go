package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/petasbytes/vm-agent/internal/safety"
)

// Call is one tool_use as seen by a handler.
type Call struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// Handler executes tool calls. The returned value becomes the tool_result
// content: json.RawMessage is passed through, strings are sent as text and other
// values are JSON-encoded.
type Handler interface {
	Handle(ctx context.Context, call Call) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, call Call) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, call Call) (any, error) { return f(ctx, call) }

// Router dispatches calls by tool name.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRouter() *Router {
	return &Router{handlers: make(map[string]Handler)}
}

// Register binds name to h, replacing any earlier binding.
func (r *Router) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

func (r *Router) Handle(ctx context.Context, call Call) (any, error) {
	r.mu.RLock()
	h, ok := r.handlers[call.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, safety.ToolError{Code: safety.CodeUnsupported, Message: fmt.Sprintf("tool %q not found", call.Name)}
	}
	return h.Handle(ctx, call)
}

// Unsupported returns a handler that fails every call with reason.
func Unsupported(reason string) Handler {
	return HandlerFunc(func(context.Context, Call) (any, error) {
		return nil, safety.ToolError{Code: safety.CodeUnsupported, Message: reason}
	})
}

// ImageResult builds tool_result content holding one base64 image.
func ImageResult(mediaType, data string) json.RawMessage {
	b, _ := json.Marshal([]map[string]any{{
		"type": "image",
		"source": map[string]string{
			"type":       "base64",
			"media_type": mediaType,
			"data":       data,
		},
	}})
	return b
}
