package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Console runs line commands against the controller:
//
//	start | stop | voice <name> | language <code> | captions | state
type Console struct {
	controller Controller
	out        io.Writer
	logger     *slog.Logger
}

// NewConsole creates a console that reports to out. A nil out discards
// replies.
func NewConsole(controller Controller, out io.Writer, logger *slog.Logger) *Console {
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{controller: controller, out: out, logger: logger}
}

// Run executes lines from in until it is exhausted or ctx is done.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.Execute(ctx, scanner.Text()); err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
	}
	return scanner.Err()
}

// Execute runs one command line. Blank lines are ignored.
func (c *Console) Execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	cmd, args := strings.ToLower(fields[0]), fields[1:]
	switch cmd {
	case "start":
		if err := c.controller.Start(ctx); err != nil {
			return err
		}
	case "stop":
		c.controller.Stop()
	case "voice":
		if len(args) != 1 {
			return fmt.Errorf("usage: voice <name>")
		}
		if err := c.controller.SelectVoice(args[0]); err != nil {
			return err
		}
	case "language":
		if len(args) != 1 {
			return fmt.Errorf("usage: language <code>")
		}
		if err := c.controller.SelectLanguage(args[0]); err != nil {
			return err
		}
	case "captions":
		c.controller.ToggleCaptions()
	case "state":
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}

	c.logger.Debug("Console command", slog.String("command", cmd))
	c.report()
	return nil
}

func (c *Console) report() {
	snap := c.controller.Snapshot()
	fmt.Fprintf(c.out, "state=%s voice=%s language=%s captions=%t\n",
		snap.State, snap.Voice, snap.Language, snap.Captions)
	if snap.Pending.User != "" || snap.Pending.Model != "" {
		fmt.Fprintf(c.out, "  user: %s\n  model: %s\n", snap.Pending.User, snap.Pending.Model)
	}
}
