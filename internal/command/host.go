// Package command implements the command framework: single commands, groups
// of subcommands under one label, generated help, cooldowns and the command
// map frontends dispatch input lines through.
package command

import (
	"context"

	"go.uber.org/zap"

	"github.com/cory-johannsen/foundation/internal/chat"
	"github.com/cory-johannsen/foundation/internal/lang"
	"github.com/cory-johannsen/foundation/internal/observability"
	"github.com/cory-johannsen/foundation/internal/settings"
	"github.com/cory-johannsen/foundation/internal/variables"
)

// Sender is whoever runs a command: a player or the console.
type Sender interface {
	chat.Recipient
	variables.Subject
}

// Host is the plugin commands run inside of.
type Host interface {
	Name() string
	Version() string
	Authors() []string
	Credits() string

	// Available reports whether commands may run. When they may not, state
	// names the plugin state, such as "disabled" or "reloading".
	Available() (state string, ok bool)

	Settings() *settings.Settings
	Messages() *lang.Messages
	// Variables may return nil when the plugin does not replace variables.
	Variables() *variables.Replacer
	Logger() *zap.Logger
	Lag() *observability.LagCatcher

	// Player finds an online player by name, case-insensitively.
	Player(name string) (Sender, bool)
	// PlayerNames lists online players viewer is allowed to see.
	PlayerNames(viewer Sender) []string

	Reload(ctx context.Context) error
}
