package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/petasbytes/vm-agent/internal/safety"
)

// BashName is the tool name the model uses for bash_20250124.
const BashName = "bash"

const (
	DefaultBashTimeout = 2 * time.Minute
	outputRuneCap      = 12_000
	truncationSentinel = "\n-- output truncated --"
)

// BashInput mirrors the bash tool input.
type BashInput struct {
	Command string `json:"command"`
	Restart bool   `json:"restart,omitempty"`
}

// Bash runs each command in a fresh `bash -c` inside Root. There is no persistent
// shell, so restart only acknowledges.
type Bash struct {
	Root      string
	Protected []string
	Timeout   time.Duration
}

// NewBash resolves root (empty means the working directory) and returns a handler
// that refuses commands touching any protected path.
func NewBash(root string, protected ...string) (*Bash, error) {
	abs, err := safety.ResolveRoot(root)
	if err != nil {
		return nil, err
	}
	return &Bash{Root: abs, Protected: protected, Timeout: DefaultBashTimeout}, nil
}

func (b *Bash) Handle(ctx context.Context, call Call) (any, error) {
	var in BashInput
	if err := json.Unmarshal(call.Input, &in); err != nil {
		return nil, safety.ToolError{Code: safety.CodeInvalidInput, Message: err.Error()}
	}
	if in.Restart {
		return "tool has been restarted.", nil
	}
	if err := safety.CheckCommand(in.Command, b.Protected...); err != nil {
		return nil, err
	}

	timeout := b.Timeout
	if timeout <= 0 {
		timeout = DefaultBashTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "bash", "-c", in.Command)
	cmd.Dir = b.Root
	// Children that outlive bash keep the output pipe open.
	cmd.WaitDelay = time.Second
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	output, truncated := clampRunes(out.String(), outputRuneCap)
	if truncated {
		output += truncationSentinel
	}

	exitCode := 0
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	log.Debug().
		Str("tool", BashName).
		Str("tool_use_id", call.ID).
		Int("exit_code", exitCode).
		Dur("duration", time.Since(start)).
		Msg("bash command finished")

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		return nil, safety.ToolError{Code: safety.CodeExitStatus, Message: fmt.Sprintf("command timed out after %s\n%s", timeout, output)}
	}
	if err != nil {
		return nil, safety.ToolError{Code: safety.CodeExitStatus, Message: fmt.Sprintf("%v\n%s", err, output)}
	}
	if output == "" {
		return nil, nil
	}
	return output, nil
}

// clampRunes cuts s to at most n runes.
func clampRunes(s string, n int) (string, bool) {
	r := []rune(s)
	if len(r) <= n {
		return s, false
	}
	return string(r[:n]), true
}
