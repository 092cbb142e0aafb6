// Package console runs plugin commands typed on the host's standard input.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.minekube.com/common/minecraft/component"
	"go.uber.org/zap"

	"github.com/cory-johannsen/foundation/internal/chat"
	"github.com/cory-johannsen/foundation/internal/config"
	"github.com/cory-johannsen/foundation/internal/frontend/handlers"
	"github.com/cory-johannsen/foundation/internal/plugin"
	"github.com/cory-johannsen/foundation/internal/scheduler"
)

// SenderName is the name commands see for the console.
const SenderName = "CONSOLE"

// Console reads command lines from in and prints replies to out.
type Console struct {
	cfg      config.ConsoleConfig
	in       io.Reader
	out      io.Writer
	plugin   *plugin.Plugin
	sched    *scheduler.Scheduler
	shutdown func()
	logger   *zap.Logger

	mu     sync.Mutex
	sender *handlers.Player
}

// New creates a Console. shutdown is called when "stop" is typed.
//
// Precondition: in, out, p, sched and logger must be non-nil.
func New(cfg config.ConsoleConfig, in io.Reader, out io.Writer, p *plugin.Plugin, sched *scheduler.Scheduler, shutdown func(), logger *zap.Logger) *Console {
	c := &Console{
		cfg:      cfg,
		in:       in,
		out:      out,
		plugin:   p,
		sched:    sched,
		shutdown: shutdown,
		logger:   logger,
	}
	c.sender = handlers.NewConsole(SenderName, c.print, cfg.Permissions...)
	return c
}

// Sender returns the console's command sender.
func (c *Console) Sender() *handlers.Player { return c.sender }

func (c *Console) print(msg component.Component) error {
	return c.write(chat.ANSI(msg) + "\n")
}

func (c *Console) write(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := io.WriteString(c.out, s)
	return err
}

// Run reads lines until ctx is cancelled, the input ends, or "stop" is typed.
//
// Postcondition: Returns nil on a clean end of input or stop.
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	c.logger.Info("console ready")
	for {
		if c.cfg.Prompt != "" {
			_ = c.write(c.cfg.Prompt)
		}
		select {
		case <-ctx.Done():
			return nil
		case err := <-scanErr:
			if err != nil {
				return fmt.Errorf("reading console input: %w", err)
			}
			return nil
		case line := <-lines:
			if stop := c.handle(ctx, line); stop {
				return nil
			}
		}
	}
}

// handle runs one input line and reports whether the console should stop.
func (c *Console) handle(ctx context.Context, line string) bool {
	registry := c.plugin.Registry()
	if strings.HasSuffix(line, "\t") {
		partial := strings.TrimLeft(strings.TrimSuffix(line, "\t"), " ")
		var matches []string
		_ = c.sched.Await(ctx, func() error {
			matches = registry.Complete(ctx, c.sender, partial)
			return nil
		})
		if len(matches) > 0 {
			_ = c.write(strings.Join(matches, "  ") + "\n")
		}
		return false
	}

	line = strings.TrimSpace(line)
	switch strings.ToLower(strings.TrimPrefix(line, "/")) {
	case "":
		return false
	case "stop":
		c.logger.Info("console requested stop")
		if c.shutdown != nil {
			c.shutdown()
		}
		return true
	}

	c.logger.Debug("console command", zap.String("line", line))
	err := c.sched.Await(ctx, func() error {
		return registry.Dispatch(ctx, c.sender, line)
	})
	if err != nil {
		if errors.Is(err, scheduler.ErrStopped) || ctx.Err() != nil {
			return true
		}
		c.logger.Error("command dispatch failed",
			zap.String("line", line),
			zap.Error(err),
		)
	}
	return false
}
