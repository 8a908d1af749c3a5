package runner_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/petasbytes/vm-agent/internal/config"
	"github.com/petasbytes/vm-agent/internal/provider"
	"github.com/petasbytes/vm-agent/internal/runner"
	"github.com/petasbytes/vm-agent/memory"
)

// step scripts one model reply. before runs when the request arrives; block
// makes the call wait for ctx cancellation or release.
type step struct {
	resp    *provider.Response
	err     error
	before  func(req provider.Request)
	block   bool
	release chan struct{}
}

type fakeModel struct {
	mu    sync.Mutex
	steps []step
	reqs  []provider.Request
}

func (f *fakeModel) Send(ctx context.Context, req provider.Request) (*provider.Response, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	i := len(f.reqs) - 1
	f.mu.Unlock()
	if i >= len(f.steps) {
		return nil, fmt.Errorf("unexpected call %d", i+1)
	}
	s := f.steps[i]
	if s.before != nil {
		s.before(req)
	}
	if s.block {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("post: %w", ctx.Err())
		case <-s.release:
		}
	}
	return s.resp, s.err
}

func (f *fakeModel) requests() []provider.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]provider.Request(nil), f.reqs...)
}

func newRunner(t *testing.T, m runner.Model, opts ...runner.Option) (*runner.Runner, *config.Session) {
	t.Helper()
	session := config.NewSession(config.DefaultConfig())
	opts = append([]runner.Option{
		runner.WithLogger(zerolog.New(zerolog.NewTestWriter(t))),
		runner.WithKeyStore(runner.NewMemoryKeyStore("test-key")),
	}, opts...)
	r := runner.New(memory.NewStore(), session, func(string) (runner.Model, error) { return m, nil }, opts...)
	require.True(t, r.Ready())
	return r, session
}

func textResp(text string) *provider.Response {
	return &provider.Response{Role: memory.RoleAssistant, StopReason: "end_turn", Blocks: []memory.Block{memory.TextBlock(text)}}
}

func toolResp(id, name, input string) *provider.Response {
	return &provider.Response{
		Role:       memory.RoleAssistant,
		StopReason: "tool_use",
		Blocks:     []memory.Block{memory.ToolUseBlock(id, name, json.RawMessage(input))},
	}
}
