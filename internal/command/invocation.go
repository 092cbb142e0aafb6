package command

import (
	"context"
	"strconv"
	"strings"

	"github.com/cory-johannsen/foundation/internal/chat"
)

// Invocation is one run of a command: who ran it, with which label and
// arguments. Handlers receive it and use its helpers to reply and to
// validate input; helper errors are understood by the command pipeline.
type Invocation struct {
	ctx context.Context
	cmd *Command

	Sender Sender
	// Label is the label or alias that was typed.
	Label string
	// Sublabel is the subcommand's sublabel as typed, empty for a single command.
	Sublabel string
	Args     []string
}

// Context returns the context the command runs under.
func (inv *Invocation) Context() context.Context { return inv.ctx }

// Command returns the command being run.
func (inv *Invocation) Command() *Command { return inv.cmd }

// Host returns the host the command belongs to.
func (inv *Invocation) Host() Host { return inv.cmd.host }

// Arg returns argument i, or "" when there are fewer arguments.
func (inv *Invocation) Arg(i int) string {
	if i < 0 || i >= len(inv.Args) {
		return ""
	}
	return inv.Args[i]
}

// JoinArgs joins the arguments from index from on with spaces.
func (inv *Invocation) JoinArgs(from int) string {
	if from >= len(inv.Args) {
		return ""
	}
	return strings.Join(inv.Args[max(from, 0):], " ")
}

// Lang returns a localized message with {placeholder} pairs replaced.
func (inv *Invocation) Lang(key string, pairs ...any) string {
	return inv.cmd.host.Messages().Of(key, pairs...)
}

// Replace substitutes variables in text for the sender.
func (inv *Invocation) Replace(text string) string {
	if r := inv.cmd.host.Variables(); r != nil {
		return r.Replace(inv.ctx, inv.Sender, text)
	}
	return text
}

// Tell sends each message to the sender after replacing variables.
func (inv *Invocation) Tell(messages ...string) error {
	r := inv.cmd.host.Variables()
	for _, msg := range messages {
		c := chat.Parse(msg)
		if r != nil {
			c = r.ReplaceComponent(inv.ctx, inv.Sender, msg)
		}
		if err := inv.Sender.SendMessage(c); err != nil {
			return err
		}
	}
	return nil
}

// TellLevel sends message with the messenger prefix for level.
func (inv *Invocation) TellLevel(level chat.Level, message string) error {
	return inv.cmd.host.Settings().Messenger.Tell(inv.Sender, level, inv.Replace(message))
}

// TellSuccess sends message as a success.
func (inv *Invocation) TellSuccess(message string) error {
	return inv.TellLevel(chat.LevelSuccess, message)
}

// TellError sends message as an error.
func (inv *Invocation) TellError(message string) error {
	return inv.TellLevel(chat.LevelError, message)
}

// HasPerm reports whether the sender holds permission. {label},
// {sublabel} and {plugin_name} are filled first.
func (inv *Invocation) HasPerm(permission string) bool {
	return inv.Sender.HasPermission(inv.fillPermission(permission))
}

// CheckPerm fails with the no-permission message unless the sender holds
// permission.
func (inv *Invocation) CheckPerm(permission string) error {
	perm := inv.fillPermission(permission)
	if !inv.Sender.HasPermission(perm) {
		return &Error{Message: inv.Lang("commands.no_permission", "permission", perm)}
	}
	return nil
}

// CheckArgs fails with message when fewer than min arguments were given.
func (inv *Invocation) CheckArgs(min int, message string) error {
	if len(inv.Args) < min {
		return &Error{Message: message}
	}
	return nil
}

// CheckBoolean fails with message when ok is false.
func (inv *Invocation) CheckBoolean(ok bool, message string) error {
	if !ok {
		return &Error{Message: message}
	}
	return nil
}

// FindNumber parses argument i as an integer within [min, max].
func (inv *Invocation) FindNumber(i, min, max int) (int, error) {
	raw := inv.Arg(i)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &Error{Message: inv.Lang("commands.invalid_number", "input", raw), Err: err}
	}
	if n < min || n > max {
		return 0, &Error{Message: inv.Lang("commands.invalid_range", "min", min, "max", max, "value", n)}
	}
	return n, nil
}

// FindBoolean parses argument i as true/false, yes/no or on/off.
func (inv *Invocation) FindBoolean(i int) (bool, error) {
	switch raw := strings.ToLower(inv.Arg(i)); raw {
	case "true", "yes", "on":
		return true, nil
	case "false", "no", "off":
		return false, nil
	default:
		return false, &Error{Message: inv.Lang("commands.invalid_boolean", "input", inv.Arg(i))}
	}
}

// FindPlayer returns the online player with the given name.
func (inv *Invocation) FindPlayer(name string) (Sender, error) {
	p, ok := inv.cmd.host.Player(name)
	if !ok {
		return nil, &Error{Message: inv.Lang("player.not_online", "player", name)}
	}
	return p, nil
}

// RequirePlayer fails when the command was run from the console.
func (inv *Invocation) RequirePlayer() error {
	if !inv.Sender.IsPlayer() {
		return &Error{Message: inv.Lang("commands.no_console")}
	}
	return nil
}

// Fail stops the command, sending message as an error. An empty message
// stops silently.
func (inv *Invocation) Fail(message string) error {
	return &Error{Message: message}
}

// InvalidArgs stops the command and shows the sender its usage.
func (inv *Invocation) InvalidArgs() error {
	return &InvalidArgError{}
}

func (inv *Invocation) fillPermission(permission string) string {
	return chat.Replace(permission,
		"label", inv.Label,
		"sublabel", inv.Sublabel,
		"plugin_name", strings.ToLower(inv.cmd.host.Name()),
	)
}
