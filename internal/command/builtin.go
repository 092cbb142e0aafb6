package command

import (
	"fmt"
	"runtime"
	"strconv"

	"go.uber.org/zap"
)

// ReloadCommand returns the "reload|rl" subcommand. It runs the host's
// reload and reports the outcome.
func ReloadCommand() *SubCommand {
	return &SubCommand{
		Sublabels: []string{"reload", "rl"},
		Command: Command{
			Description:     "Reload the configuration.",
			Permission:      DefaultSubPermission,
			DisableAutoHelp: true,
			Handler:         HandlerFunc(reload),
		},
	}
}

func reload(inv *Invocation) error {
	host := inv.Host()
	if err := inv.Tell(inv.Lang("commands.reload_started", "plugin_name", host.Name())); err != nil {
		return err
	}
	if err := host.Reload(inv.Context()); err != nil {
		host.Logger().Error("reload failed",
			zap.String("plugin", host.Name()),
			zap.Error(err),
		)
		return inv.Tell(inv.Lang("commands.reload_fail", "error", err.Error()))
	}
	return inv.Tell(inv.Lang("commands.reload_success", "plugin_name", host.Name(), "plugin_version", host.Version()))
}

// PermsCommand returns the "perms|permissions" subcommand listing every
// permission of g's subcommands, marked by whether the sender holds it.
func PermsCommand(g *Group) *SubCommand {
	return &SubCommand{
		Sublabels: []string{"perms", "permissions"},
		Command: Command{
			Description:     "List all permissions the plugin has.",
			Permission:      DefaultSubPermission,
			DisableAutoHelp: true,
			Handler: HandlerFunc(func(inv *Invocation) error {
				lines := []string{inv.Lang("commands.perms_header", "plugin_name", inv.Host().Name())}
				for _, s := range g.Subcommands() {
					perm := s.ResolvedPermission()
					if perm == "" {
						continue
					}
					mark := inv.Lang("commands.perms_no")
					if inv.Sender.HasPermission(perm) {
						mark = inv.Lang("commands.perms_yes")
					}
					lines = append(lines, inv.Lang("commands.perms_entry",
						"mark", mark,
						"permission", perm,
						"description", s.Description,
					))
				}
				return inv.Tell(lines...)
			}),
		},
	}
}

// DebugCommand returns the "debug" subcommand. It logs runtime diagnostics
// and sends them to the sender.
func DebugCommand(r *Registry) *SubCommand {
	return &SubCommand{
		Sublabels: []string{"debug"},
		Command: Command{
			Description:     "Show runtime diagnostics.",
			Permission:      DefaultSubPermission,
			DisableAutoHelp: true,
			Handler: HandlerFunc(func(inv *Invocation) error {
				host := inv.Host()
				var mem runtime.MemStats
				runtime.ReadMemStats(&mem)

				entries := [][2]string{
					{"go", runtime.Version()},
					{"goroutines", strconv.Itoa(runtime.NumGoroutine())},
					{"heap", fmt.Sprintf("%.1f MiB", float64(mem.HeapAlloc)/(1<<20))},
					{"commands", strconv.Itoa(len(r.Commands()))},
					{"locale", host.Messages().Locale()},
				}

				fields := make([]zap.Field, 0, len(entries)+1)
				fields = append(fields, zap.String("plugin", host.Name()))
				lines := []string{inv.Lang("commands.debug_header", "plugin_name", host.Name(), "plugin_version", host.Version())}
				for _, e := range entries {
					fields = append(fields, zap.String(e[0], e[1]))
					lines = append(lines, inv.Lang("commands.debug_entry", "key", e[0], "value", e[1]))
				}
				host.Logger().Info("debug report", fields...)
				return inv.Tell(lines...)
			}),
		},
	}
}

// DefaultSubcommands returns the reload, perms and debug subcommands for g.
func DefaultSubcommands(g *Group, r *Registry) []*SubCommand {
	return []*SubCommand{ReloadCommand(), PermsCommand(g), DebugCommand(r)}
}
