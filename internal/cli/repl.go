package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
)

// repl reads lines from in until EOF, /quit, or an interrupt while idle.
func (a *app) repl(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	a.printf("Chat with Claude (/quit or Ctrl-C to exit)\n")
	if !a.runner.Ready() {
		a.printf("No API key configured; set one with /key <value>.\n")
	}

	// stdin reader goroutine -> lines into channel
	inputCh := make(chan string)
	go func() {
		defer close(inputCh)
		for scanner.Scan() {
			select {
			case inputCh <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		a.printf("\u001b[94mYou\u001b[0m: ")
		select {
		case <-ctx.Done():
			return nil
		case <-a.sigs:
			a.printf("\nExiting...\n")
			return nil
		case line, ok := <-inputCh:
			if !ok {
				if err := scanner.Err(); err != nil {
					return fmt.Errorf("stdin read error: %w", err)
				}
				return nil
			}
			if a.handleLine(ctx, line) {
				return nil
			}
		}
	}
}
