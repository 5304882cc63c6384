// Package console is the runtime console on stdin: single-character commands
// to restart, quit or print help while the proxy is serving.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

type Action int

const (
	ActionNone Action = iota
	ActionRestart
	ActionQuit
	ActionHelp
)

const helpText = `Commands:
  R  restart the proxy (re-exec with the same arguments)
  Q  quit
  H  show this help`

// Console reads commands line by line. Unknown input is ignored so stray
// terminal noise never kills the process.
type Console struct {
	input   io.Reader
	output  io.Writer
	quit    func()
	restart func() error
}

// New wires the console to an input stream and a quit callback that cancels
// the process context. The restart action re-execs the current binary.
func New(input io.Reader, output io.Writer, quit func()) *Console {
	return &Console{
		input:   input,
		output:  output,
		quit:    quit,
		restart: restartProcess,
	}
}

// Run dispatches commands until the context is cancelled or the input
// stream is closed. A closed stdin (detached run) is not an error.
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.input)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch parseCommand(line) {
			case ActionRestart:
				slog.Info("restarting on console command")
				if err := c.restart(); err != nil {
					return fmt.Errorf("restart failed: %w", err)
				}
			case ActionQuit:
				slog.Info("quitting on console command")
				c.quit()
				return nil
			case ActionHelp:
				fmt.Fprintln(c.output, helpText)
			}
		}
	}
}

func parseCommand(line string) Action {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "r":
		return ActionRestart
	case "q":
		return ActionQuit
	case "h":
		return ActionHelp
	default:
		return ActionNone
	}
}
