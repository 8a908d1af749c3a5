package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/petasbytes/vm-agent/internal/provider"
	"github.com/petasbytes/vm-agent/internal/telemetry"
	"github.com/petasbytes/vm-agent/internal/windowing"
	"github.com/petasbytes/vm-agent/memory"
	"github.com/petasbytes/vm-agent/tools"
)

var (
	// ErrBusy is returned when a turn is already in flight.
	ErrBusy = errors.New("runner: a turn is already in progress")
	// ErrCredentialRequired is returned when no API key has been set.
	ErrCredentialRequired = errors.New("runner: api key required")
)

// InvalidKeyMessage is appended to history when the API rejects the credential.
const InvalidKeyMessage = "Invalid API key"

// Model performs one remote call.
type Model interface {
	Send(ctx context.Context, req provider.Request) (*provider.Response, error)
}

// ModelFactory builds a Model for an API key.
type ModelFactory func(apiKey string) (Model, error)

// SessionConfig is read at the start of every round.
type SessionConfig interface {
	DisplaySize() (width, height int64, ok bool)
	ThinkingEnabled() bool
}

// displayNumberer is optionally implemented by SessionConfig.
type displayNumberer interface {
	DisplayNumber() int64
}

// Runner owns one conversation and runs at most one turn at a time.
type Runner struct {
	store   *memory.Store
	session SessionConfig
	factory ModelFactory
	keys    KeyStore
	logger  zerolog.Logger

	modelName      string
	maxTokens      int64
	system         string
	thinkingBudget int64

	mu       sync.Mutex
	client   Model
	state    State
	stateFns map[int]func(State)
	nextID   int

	activity *Activity
	stop     atomic.Bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the diagnostics logger.
func WithLogger(l zerolog.Logger) Option { return func(r *Runner) { r.logger = l } }

// WithKeyStore sets where the API key is loaded from and saved to.
func WithKeyStore(ks KeyStore) Option { return func(r *Runner) { r.keys = ks } }

// WithModel sets the model name sent with every request.
func WithModel(name string) Option { return func(r *Runner) { r.modelName = name } }

// WithMaxTokens sets max_tokens for every request.
func WithMaxTokens(n int64) Option { return func(r *Runner) { r.maxTokens = n } }

// WithSystemPrompt sets the system prompt.
func WithSystemPrompt(s string) Option { return func(r *Runner) { r.system = s } }

// WithThinkingBudget sets the budget used when the session enables thinking.
func WithThinkingBudget(n int64) Option { return func(r *Runner) { r.thinkingBudget = n } }

// New returns a runner over store. When the key store already holds a key the
// model is built right away; a factory failure is logged and leaves the runner
// not ready.
func New(store *memory.Store, session SessionConfig, factory ModelFactory, opts ...Option) *Runner {
	r := &Runner{
		store:          store,
		session:        session,
		factory:        factory,
		keys:           NewMemoryKeyStore(""),
		logger:         log.Logger.With().Str("component", "runner").Logger(),
		modelName:      string(provider.DefaultModel),
		maxTokens:      provider.DefaultMaxTokens,
		system:         provider.DefaultSystemPrompt,
		thinkingBudget: provider.ThinkingBudget,
		stateFns:       make(map[int]func(State)),
		activity:       newActivity(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if key, ok := r.keys.Load(); ok && factory != nil {
		m, err := factory(key)
		if err != nil {
			r.logger.Warn().Err(err).Msg("could not build model from stored key")
		} else {
			r.client = m
		}
	}
	return r
}

// Store returns the conversation.
func (r *Runner) Store() *memory.Store { return r.store }

// Activity returns the in-flight signal.
func (r *Runner) Activity() *Activity { return r.activity }

// Ready reports whether a credential is set.
func (r *Runner) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client != nil
}

// SetAPIKey builds a model for key, clears the conversation and stores the key.
func (r *Runner) SetAPIKey(key string) error {
	if key == "" {
		return ErrCredentialRequired
	}
	if r.activity.Active() {
		return ErrBusy
	}
	if r.factory == nil {
		return fmt.Errorf("runner: no model factory")
	}
	m, err := r.factory(key)
	if err != nil {
		return fmt.Errorf("build model: %w", err)
	}
	r.mu.Lock()
	r.client = m
	r.mu.Unlock()
	r.store.Reset()
	if err := r.keys.Save(key); err != nil {
		r.logger.Warn().Err(err).Msg("could not save api key")
	}
	return nil
}

// ClearHistory empties the conversation when no turn is running.
func (r *Runner) ClearHistory() error {
	if r.activity.Active() {
		return ErrBusy
	}
	r.store.Reset()
	return nil
}

// State returns the last lifecycle state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// OnState registers fn for every state transition.
func (r *Runner) OnState(fn func(State)) (cancel func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.stateFns[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.stateFns, id)
	}
}

func (r *Runner) setState(s State) {
	r.mu.Lock()
	r.state = s
	fns := make([]func(State), 0, len(r.stateFns))
	for i := 1; i <= r.nextID; i++ {
		if fn, ok := r.stateFns[i]; ok {
			fns = append(fns, fn)
		}
	}
	r.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

// RequestStop asks the running turn to stop at its next checkpoint.
func (r *Runner) RequestStop() { r.stop.Store(true) }

// AwaitStopped waits until no turn is active, then clears the stop request.
func (r *Runner) AwaitStopped(ctx context.Context) error {
	select {
	case <-r.activity.Idle():
		r.stop.Store(false)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop is RequestStop followed by AwaitStopped.
func (r *Runner) Stop(ctx context.Context) error {
	r.RequestStop()
	return r.AwaitStopped(ctx)
}

// Send appends text as a user message and runs the turn until the model is done,
// the turn is stopped, or a call fails. A failed call is recorded in history as
// an error message and also returned. Cancelling ctx stops the turn and returns
// ctx.Err().
func (r *Runner) Send(ctx context.Context, text string, h tools.Handler) error {
	model, err := r.begin()
	if err != nil {
		return err
	}
	if err := r.store.Append(memory.RoleUser, text); err != nil {
		r.activity.end()
		return err
	}
	return r.loop(ctx, model, h)
}

// Continue runs the turn loop on the existing history, e.g. after a stop.
func (r *Runner) Continue(ctx context.Context, h tools.Handler) error {
	model, err := r.begin()
	if err != nil {
		return err
	}
	return r.loop(ctx, model, h)
}

func (r *Runner) begin() (Model, error) {
	r.mu.Lock()
	model := r.client
	r.mu.Unlock()
	if model == nil {
		return nil, ErrCredentialRequired
	}
	// A stale stop is dropped before the signal flips on, so a stop requested
	// once the turn is visible as active is kept.
	if !r.activity.begin(func() { r.stop.Store(false) }) {
		return nil, ErrBusy
	}
	return model, nil
}

func (r *Runner) stopRequested(ctx context.Context) bool {
	return r.stop.Load() || ctx.Err() != nil
}

func (r *Runner) loop(ctx context.Context, model Model, h tools.Handler) (err error) {
	ctx, turnID := telemetry.EnsureTurnID(ctx)
	logger := r.logger.With().Str("turn_id", turnID).Logger()

	rounds := 0
	final := StateError
	defer func() {
		r.setState(final)
		r.activity.end()
		fields := map[string]any{"state": final.String(), "rounds": rounds}
		if err != nil {
			fields["error"] = err.Error()
		}
		telemetry.EmitTurn(ctx, "turn_finished", fields)
		logger.Debug().Str("state", final.String()).Int("rounds", rounds).Msg("turn finished")
	}()

	r.setState(StateSending)
	telemetry.EmitTurn(ctx, "turn_started", map[string]any{"messages": r.store.Len()})

	for {
		rounds++
		msgs := r.store.Snapshot()
		if rep := windowing.CheckPairs(msgs); !rep.OK() {
			logger.Warn().
				Strs("orphans", rep.Orphans).
				Strs("dangling", rep.Dangling).
				Strs("duplicates", rep.Duplicates).
				Msg("tool_use/tool_result pairing broken")
		}
		stats := windowing.Measure(msgs)
		telemetry.EmitTurn(ctx, "window_prepared", map[string]any{
			"round":          rounds,
			"messages":       stats.Messages,
			"blocks":         stats.Blocks,
			"image_results":  stats.ImageResults,
			"pruned_results": stats.PrunedResults,
			"approx_bytes":   stats.ApproxBytes,
		})

		resp, sendErr := model.Send(ctx, r.request(msgs))
		if sendErr != nil {
			if ctx.Err() != nil {
				final = StateStopped
				return ctx.Err()
			}
			r.recordFailure(logger, sendErr)
			return sendErr
		}
		if resp == nil {
			resp = &provider.Response{Role: memory.RoleAssistant}
		}

		if r.stopRequested(ctx) {
			logger.Debug().Msg("stop requested; discarding response")
			final = StateStopped
			return ctx.Err()
		}

		if n := r.store.Compact(windowing.Compact); n > 0 {
			logger.Debug().Int("pruned", n).Msg("pruned image payloads")
		}

		dispatched := false
		for _, b := range resp.Blocks {
			switch b.Type {
			case memory.BlockText:
				if err := r.store.Append(resp.Role, b.Text); err != nil {
					return err
				}
			case memory.BlockThinking:
				if err := r.store.AppendBlocks(resp.Role, b); err != nil {
					return err
				}
			case memory.BlockToolUse:
				if err := r.store.AppendBlocks(resp.Role, b); err != nil {
					return err
				}
				result := r.dispatch(ctx, logger, h, b)
				if err := r.store.AppendBlocks(memory.RoleUser, result); err != nil {
					return err
				}
				dispatched = true
				if r.stopRequested(ctx) {
					final = StateStopped
					return ctx.Err()
				}
			default:
				logger.Warn().Str("block_type", string(b.Type)).Msg("skipping unknown content block")
			}
		}

		if !dispatched {
			if resp.StopReason != "end_turn" {
				logger.Info().Str("stop_reason", resp.StopReason).Msg("turn ended without end_turn")
			}
			final = StateDone
			return nil
		}
	}
}

func (r *Runner) request(msgs []memory.Message) provider.Request {
	req := provider.Request{
		Model:     r.modelName,
		MaxTokens: r.maxTokens,
		System:    r.system,
		Messages:  msgs,
	}
	if r.session == nil {
		return req
	}
	if w, h, ok := r.session.DisplaySize(); ok {
		d := &provider.Display{Width: w, Height: h}
		if n, ok := r.session.(displayNumberer); ok {
			d.Number = n.DisplayNumber()
		}
		req.Display = d
	}
	if r.session.ThinkingEnabled() {
		req.ThinkingBudget = r.thinkingBudget
	}
	return req
}

// recordFailure appends the error notice and, on a rejected key, drops the
// credential.
func (r *Runner) recordFailure(logger zerolog.Logger, err error) {
	if errors.Is(err, provider.ErrInvalidCredential) {
		logger.Warn().Msg("api key rejected")
		if cerr := r.keys.Clear(); cerr != nil {
			logger.Warn().Err(cerr).Msg("could not clear api key")
		}
		r.mu.Lock()
		r.client = nil
		r.mu.Unlock()
		_ = r.store.Append(memory.RoleError, InvalidKeyMessage)
		return
	}
	logger.Error().Err(err).Msg("model call failed")
	_ = r.store.Append(memory.RoleError, provider.ErrorMessage(err))
}
