// Package host holds the pieces the foundation binary adds around a plugin:
// server commands and player data tracking.
package host

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.minekube.com/common/minecraft/component"
	"go.uber.org/zap"

	"github.com/cory-johannsen/foundation/internal/command"
	"github.com/cory-johannsen/foundation/internal/plugin"
	"github.com/cory-johannsen/foundation/internal/scheduler"
	"github.com/cory-johannsen/foundation/internal/storage/postgres"
	"github.com/cory-johannsen/foundation/internal/timeutil"
)

// Commands returns the server commands every host offers: list, say, tell
// and vanish.
//
// Precondition: p must be non-nil.
func Commands(p *plugin.Plugin) []*command.Command {
	return []*command.Command{
		{
			Label:           "list",
			Aliases:         []string{"who", "online"},
			Description:     "List online players.",
			DisableAutoHelp: true,
			Handler: command.HandlerFunc(func(inv *command.Invocation) error {
				names := p.Players().Names(inv.Sender)
				if len(names) == 0 {
					return inv.Tell(inv.Lang("host.list_empty"))
				}
				return inv.Tell(inv.Lang("host.list",
					"count", len(names),
					"players", strings.Join(names, inv.Lang("host.list_separator")),
				))
			}),
			Completer: func(inv *command.Invocation) []string { return []string{} },
		},
		{
			Label:        "say",
			Aliases:      []string{"broadcast"},
			Description:  "Send a message to everyone online.",
			Usage:        "<message...>",
			Permission:   command.DefaultPermission,
			MinArguments: 1,
			Handler: command.HandlerFunc(func(inv *command.Invocation) error {
				p.Players().Broadcast(p.Messages().Component("host.say", "player", inv.Sender.Name(), "message", inv.JoinArgs(0)))
				if !inv.Sender.IsPlayer() {
					return inv.TellSuccess(inv.Lang("host.say_sent"))
				}
				return nil
			}),
		},
		{
			Label:        "tell",
			Aliases:      []string{"msg", "w"},
			Description:  "Send a private message.",
			Usage:        "<player> <message...>",
			MinArguments: 2,
			Handler: command.HandlerFunc(func(inv *command.Invocation) error {
				target, err := inv.FindPlayer(inv.Arg(0))
				if err != nil {
					return err
				}
				if p.Players().IsVanished(target.Name()) && !visible(p, inv.Sender, target) {
					return inv.Fail(inv.Lang("player.not_online", "player", inv.Arg(0)))
				}
				msg := inv.JoinArgs(1)
				if err := target.SendMessage(p.Messages().Component("host.whisper_received", "player", inv.Sender.Name(), "message", msg)); err != nil {
					return err
				}
				return inv.Tell(inv.Lang("host.whisper_sent", "player", target.Name(), "message", msg))
			}),
			Completer: func(inv *command.Invocation) []string {
				if len(inv.Args) > 1 {
					return []string{}
				}
				return nil
			},
		},
		{
			Label:           "vanish",
			Aliases:         []string{"v"},
			Description:     "Hide from other players.",
			Permission:      command.DefaultPermission,
			DisableAutoHelp: true,
			Handler: command.HandlerFunc(func(inv *command.Invocation) error {
				if err := inv.RequirePlayer(); err != nil {
					return err
				}
				name := inv.Sender.Name()
				vanished := !p.Players().IsVanished(name)
				p.Players().SetVanished(name, vanished)
				if vanished {
					return inv.TellSuccess(inv.Lang("host.vanish_on"))
				}
				return inv.TellSuccess(inv.Lang("host.vanish_off"))
			}),
			Completer: func(inv *command.Invocation) []string { return []string{} },
		},
	}
}

func visible(p *plugin.Plugin, viewer, target command.Sender) bool {
	for _, name := range p.Players().Names(viewer) {
		if strings.EqualFold(name, target.Name()) {
			return true
		}
	}
	return false
}

// PlayerLookup finds stored player data by name.
type PlayerLookup interface {
	LoadByName(ctx context.Context, name string) (postgres.PlayerData, error)
}

// SeenCommand reports when a player was last seen. The lookup runs off the
// primary goroutine and the reply is sent back on it.
//
// Precondition: p, store and sched must be non-nil.
func SeenCommand(p *plugin.Plugin, store PlayerLookup, sched *scheduler.Scheduler) *command.Command {
	return &command.Command{
		Label:        "seen",
		Description:  "Show when a player was last online.",
		Usage:        "<player>",
		Permission:   command.DefaultPermission,
		MinArguments: 1,
		Handler: command.HandlerFunc(func(inv *command.Invocation) error {
			name := inv.Arg(0)
			if target, ok := p.Player(name); ok && visible(p, inv.Sender, target) {
				return inv.Tell(inv.Lang("host.seen_online", "player", target.Name()))
			}
			sender := inv.Sender
			ctx := context.WithoutCancel(inv.Context())
			sched.RunAsync(func() {
				lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				defer cancel()
				d, err := store.LoadByName(lookupCtx, name)
				sched.RunSync(func() {
					msgs := p.Messages()
					var msg component.Component
					switch {
					case errors.Is(err, postgres.ErrPlayerNotFound):
						msg = msgs.Component("host.seen_never", "player", name)
					case err != nil:
						p.Logger().Warn("looking up player data", zap.String("player", name), zap.Error(err))
						msg = msgs.Component("host.seen_failed", "player", name)
					default:
						ago := timeutil.FormatSeconds(int64(time.Since(d.UpdatedAt).Seconds()))
						msg = msgs.Component("host.seen_last", "player", d.Name, "duration", ago)
					}
					_ = sender.SendMessage(msg)
				})
			})
			return nil
		}),
	}
}
