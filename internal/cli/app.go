package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	"github.com/petasbytes/vm-agent/internal/config"
	"github.com/petasbytes/vm-agent/internal/provider"
	"github.com/petasbytes/vm-agent/internal/runner"
	"github.com/petasbytes/vm-agent/internal/telemetry"
	"github.com/petasbytes/vm-agent/memory"
	"github.com/petasbytes/vm-agent/tools"
)

const conversationFile = "conversation.json"

// ComputerToolName is the tool name the model uses for computer_20250124.
const ComputerToolName = "computer"

// app wires the runner, its collaborators and the terminal.
type app struct {
	cfg      *config.Config
	session  *config.Session
	runner   *runner.Runner
	handler  tools.Handler
	convPath string
	logger   zerolog.Logger

	outMu sync.Mutex
	out   io.Writer
	sigs  <-chan os.Signal
}

// providerFactory builds SDK clients from cfg.
func providerFactory(cfg *config.Config) runner.ModelFactory {
	return func(key string) (runner.Model, error) {
		var opts []option.RequestOption
		if cfg.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.BaseURL))
		}
		if cfg.RequestTimeout > 0 {
			opts = append(opts, option.WithRequestTimeout(cfg.RequestTimeout))
		}
		return provider.NewClient(key, opts...), nil
	}
}

func newApp(cfg *config.Config, out io.Writer, lg zerolog.Logger) (*app, error) {
	return newAppWithFactory(cfg, out, lg, providerFactory(cfg))
}

func newAppWithFactory(cfg *config.Config, out io.Writer, lg zerolog.Logger, factory runner.ModelFactory) (*app, error) {
	dataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	telemetry.Configure(cfg.Telemetry.Observe, dataDir)

	convPath := filepath.Join(dataDir, conversationFile)
	persisted, err := memory.LoadConversation(convPath)
	if err != nil {
		lg.Warn().Err(err).Str("path", convPath).Msg("failed to load persisted conversation")
	}

	bash, err := tools.NewBash(cfg.SandboxRoot, dataDir)
	if err != nil {
		return nil, fmt.Errorf("bash tool: %w", err)
	}
	router := tools.NewRouter()
	router.Register(tools.BashName, bash)
	router.Register(ComputerToolName, tools.Unsupported("no display driver is attached to this agent"))

	session := config.NewSession(cfg)
	store := memory.NewStore(persisted...)
	r := runner.New(store, session, factory,
		runner.WithKeyStore(runner.NewMemoryKeyStore(cfg.APIKey)),
		runner.WithLogger(lg.With().Str("component", "runner").Logger()),
		runner.WithModel(cfg.Model),
		runner.WithMaxTokens(cfg.MaxTokens),
		runner.WithSystemPrompt(cfg.SystemPrompt),
		runner.WithThinkingBudget(cfg.Thinking.BudgetTokens),
	)

	a := &app{
		cfg:      cfg,
		session:  session,
		runner:   r,
		handler:  router,
		convPath: convPath,
		logger:   lg,
		out:      out,
	}
	store.Subscribe(a.printEvent)
	return a, nil
}

// applyConfig pushes a reloaded config into the live session.
func (a *app) applyConfig(cfg *config.Config) {
	a.session.Apply(cfg)
	a.logger.Info().
		Bool("display", cfg.Display.Enabled()).
		Bool("thinking", cfg.Thinking.Enabled).
		Msg("session settings reloaded")
}

func (a *app) printf(format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}

// printEvent renders appended messages. User text is not echoed.
func (a *app) printEvent(ev memory.Event) {
	switch ev.Kind {
	case memory.EventReset:
		a.printf("(conversation cleared)\n")
		return
	case memory.EventAppended:
	default:
		return
	}
	m := ev.Message
	if m.IsText() {
		switch m.Role {
		case memory.RoleAssistant:
			a.printf("\u001b[93mClaude\u001b[0m: %s\n", m.Text)
		case memory.RoleError:
			a.printf("\u001b[91merror\u001b[0m: %s\n", m.Text)
		}
		return
	}
	for _, b := range m.Blocks {
		switch b.Type {
		case memory.BlockText:
			a.printf("\u001b[93mClaude\u001b[0m: %s\n", b.Text)
		case memory.BlockThinking:
			a.printf("\u001b[90mthinking: %s\u001b[0m\n", b.Thinking)
		case memory.BlockToolUse:
			a.printf("\u001b[92mtool\u001b[0m: %s %s\n", b.Name, string(b.Input))
		case memory.BlockToolResult:
			if b.IsError {
				a.printf("\u001b[91mtool error\u001b[0m: %s\n", b.ContentText())
			} else {
				a.printf("\u001b[92mresult\u001b[0m: %d bytes\n", len(b.Content))
			}
		}
	}
}

func (a *app) persist() {
	if err := memory.SaveConversation(a.convPath, a.runner.Store().Snapshot()); err != nil {
		a.logger.Warn().Err(err).Str("path", a.convPath).Msg("failed to save conversation")
	}
}

// runTurn runs fn and relays interrupts: the first requests a cooperative stop,
// the second cancels the turn context.
func (a *app) runTurn(ctx context.Context, fn func(context.Context) error) error {
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- fn(turnCtx) }()

	stopping := false
	for {
		select {
		case err := <-done:
			if stopping {
				_ = a.runner.AwaitStopped(ctx)
				a.printf("(stopped)\n")
			}
			a.persist()
			return err
		case <-a.sigs:
			if stopping {
				cancel()
				continue
			}
			stopping = true
			a.printf("\nstopping after the current step (Ctrl-C again to abort)...\n")
			a.runner.RequestStop()
		}
	}
}

func (a *app) send(ctx context.Context, text string) error {
	return a.runTurn(ctx, func(ctx context.Context) error {
		return a.runner.Send(ctx, text, a.handler)
	})
}

func (a *app) runOnce(ctx context.Context, prompt string) error {
	if !a.runner.Ready() {
		return fmt.Errorf("no API key: set ANTHROPIC_API_KEY or api_key in the config file")
	}
	return a.send(ctx, prompt)
}

// handleLine processes one REPL line and reports whether the loop should exit.
func (a *app) handleLine(ctx context.Context, line string) (quit bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		a.report(a.send(ctx, line))
		return false
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/quit", "/exit":
		return true
	case "/clear":
		if err := a.runner.ClearHistory(); err != nil {
			a.report(err)
			return false
		}
		a.persist()
	case "/key":
		if arg == "" {
			a.printf("usage: /key <api key>\n")
			return false
		}
		if err := a.runner.SetAPIKey(arg); err != nil {
			a.report(err)
			return false
		}
		a.persist()
		a.printf("API key set.\n")
	case "/continue":
		a.report(a.runTurn(ctx, func(ctx context.Context) error {
			return a.runner.Continue(ctx, a.handler)
		}))
	case "/thinking":
		switch arg {
		case "on":
			a.session.SetThinking(true)
		case "off":
			a.session.SetThinking(false)
		default:
			a.printf("usage: /thinking on|off\n")
			return false
		}
		a.printf("thinking %s\n", arg)
	case "/display":
		if arg == "off" {
			a.session.ClearDisplay()
			a.printf("display off; bash tool active\n")
			return false
		}
		var w, h int64
		if _, err := fmt.Sscanf(arg, "%dx%d", &w, &h); err != nil || w <= 0 || h <= 0 {
			a.printf("usage: /display <width>x<height> | off\n")
			return false
		}
		a.session.SetDisplay(w, h, a.session.DisplayNumber())
		a.printf("display %dx%d; computer tool active\n", w, h)
	default:
		a.printf("unknown command %s (try /clear, /key, /continue, /thinking, /display, /quit)\n", name)
	}
	return false
}

// report prints turn errors not already visible in history.
func (a *app) report(err error) {
	switch {
	case err == nil:
	case errors.Is(err, runner.ErrCredentialRequired):
		a.printf("no API key set; use /key <value>\n")
	case errors.Is(err, runner.ErrBusy):
		a.printf("a turn is already running\n")
	case errors.Is(err, context.Canceled):
		a.printf("(aborted)\n")
	default:
		// Remote failures are already in history as error messages.
		a.logger.Debug().Err(err).Msg("turn failed")
	}
}
