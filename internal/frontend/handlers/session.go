package handlers

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/foundation/internal/chat"
	"github.com/cory-johannsen/foundation/internal/frontend/telnet"
	"github.com/cory-johannsen/foundation/internal/plugin"
	"github.com/cory-johannsen/foundation/internal/scheduler"
)

// MaxLoginAttempts is how many invalid names a client may send before it is
// disconnected.
const MaxLoginAttempts = 3

var validName = regexp.MustCompile(`^[A-Za-z0-9_]{3,16}$`)

// PlayerListener is told about players joining and leaving. Errors are
// logged; they never block a session.
type PlayerListener interface {
	PlayerJoined(ctx context.Context, p *Player) error
	PlayerQuit(ctx context.Context, p *Player) error
}

// SessionHandler implements telnet.SessionHandler. It asks for a player
// name, joins the player to the plugin and runs every input line as a
// command on the primary goroutine.
type SessionHandler struct {
	plugin    *plugin.Plugin
	sched     *scheduler.Scheduler
	operators map[string]bool
	listener  PlayerListener
	logger    *zap.Logger
}

// NewSessionHandler creates a SessionHandler. Players named in operators are
// granted every permission.
//
// Precondition: p, sched and logger must be non-nil; listener may be nil.
func NewSessionHandler(p *plugin.Plugin, sched *scheduler.Scheduler, operators []string, listener PlayerListener, logger *zap.Logger) *SessionHandler {
	ops := make(map[string]bool, len(operators))
	for _, op := range operators {
		ops[strings.ToLower(op)] = true
	}
	return &SessionHandler{plugin: p, sched: sched, operators: ops, listener: listener, logger: logger}
}

// HandleSession implements telnet.SessionHandler.
//
// Postcondition: Returns nil on clean quit, or an error if the session ended abnormally.
func (h *SessionHandler) HandleSession(ctx context.Context, conn *telnet.Conn) error {
	start := time.Now()
	addr := conn.RemoteAddr().String()

	if err := h.welcome(conn); err != nil {
		return fmt.Errorf("sending welcome: %w", err)
	}
	name, err := h.login(conn)
	if err != nil || name == "" {
		return err
	}

	var perms []string
	if h.operators[strings.ToLower(name)] {
		perms = append(perms, "*")
	}
	player := NewPlayer(name, conn.WriteComponent, perms...)

	err = h.sched.Await(ctx, func() error { return h.plugin.Players().Join(player) })
	if errors.Is(err, plugin.ErrAlreadyOnline) {
		_ = conn.WriteComponent(chat.Parse("&cA player named " + name + " is already online."))
		return nil
	}
	if err != nil {
		return fmt.Errorf("joining %s: %w", name, err)
	}
	h.logger.Info("player logged in",
		zap.String("remote_addr", addr),
		zap.String("player", name),
	)
	if h.listener != nil {
		if err := h.listener.PlayerJoined(ctx, player); err != nil {
			h.logger.Warn("player join listener failed", zap.String("player", name), zap.Error(err))
		}
	}

	defer func() {
		// ctx may already be cancelled, so leave with a fresh one.
		leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := h.sched.Await(leaveCtx, func() error {
			h.plugin.Players().Leave(player)
			return nil
		})
		switch {
		case errors.Is(err, scheduler.ErrStopped):
			h.plugin.Players().Leave(player)
		case err != nil:
			// The task may still be queued; Leave ignores a repeat.
			h.sched.RunSync(func() { h.plugin.Players().Leave(player) })
		}
		if h.listener != nil {
			if err := h.listener.PlayerQuit(leaveCtx, player); err != nil {
				h.logger.Warn("player quit listener failed", zap.String("player", name), zap.Error(err))
			}
		}
		h.logger.Info("player logged out",
			zap.String("player", name),
			zap.Duration("session_duration", time.Since(start)),
		)
	}()

	return h.commandLoop(ctx, conn, player)
}

func (h *SessionHandler) welcome(conn *telnet.Conn) error {
	return conn.WriteComponent(chat.Lines(
		chat.Parse("&6&l"+h.plugin.Name()+" &7"+h.plugin.Version()),
		chat.Parse("&7The leading slash is optional. End a line with TAB to complete it."),
		chat.Parse("&7Type &aquit &7to disconnect."),
	))
}

// login asks for a name until a valid one is given.
//
// Postcondition: Returns "" with a nil error when the client gave up.
func (h *SessionHandler) login(conn *telnet.Conn) (string, error) {
	for attempt := 0; attempt < MaxLoginAttempts; attempt++ {
		if err := conn.WritePrompt("Name: "); err != nil {
			return "", fmt.Errorf("writing prompt: %w", err)
		}
		line, err := conn.ReadLine()
		if err != nil {
			return "", fmt.Errorf("reading name: %w", err)
		}
		name := strings.TrimSpace(line)
		if strings.EqualFold(name, "quit") {
			return "", nil
		}
		if validName.MatchString(name) {
			return name, nil
		}
		_ = conn.WriteComponent(chat.Parse("&cNames are 3 to 16 letters, digits or underscores."))
	}
	_ = conn.WriteComponent(chat.Parse("&cToo many invalid names. Goodbye!"))
	return "", nil
}

func (h *SessionHandler) commandLoop(ctx context.Context, conn *telnet.Conn, player *Player) error {
	registry := h.plugin.Registry()
	for {
		if err := conn.WritePrompt(chat.Colorize(chat.BrightWhite, "> ")); err != nil {
			return fmt.Errorf("writing prompt: %w", err)
		}
		line, err := conn.ReadLine()
		if errors.Is(err, telnet.ErrLineTooLong) {
			_ = conn.WriteComponent(chat.Parse("&cThat line is too long."))
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading input: %w", err)
		}

		if strings.HasSuffix(line, "\t") {
			partial := strings.TrimLeft(strings.TrimSuffix(line, "\t"), " ")
			var matches []string
			if err := h.sched.Await(ctx, func() error {
				matches = registry.Complete(ctx, player, partial)
				return nil
			}); err != nil {
				return err
			}
			if len(matches) > 0 {
				_ = conn.WriteLine(strings.Join(matches, "  "))
			}
			continue
		}

		line = strings.TrimSpace(line)
		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "exit":
			_ = conn.WriteComponent(chat.Parse("&bGoodbye!"))
			return nil
		}

		err = h.sched.Await(ctx, func() error {
			return registry.Dispatch(ctx, player, line)
		})
		if err != nil {
			if errors.Is(err, scheduler.ErrStopped) || ctx.Err() != nil {
				return err
			}
			h.logger.Error("command dispatch failed",
				zap.String("player", player.Name()),
				zap.String("line", line),
				zap.Error(err),
			)
		}
	}
}
