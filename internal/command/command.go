package command

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/foundation/internal/chat"
	"github.com/cory-johannsen/foundation/internal/timeutil"
)

// Permission templates. {plugin_name} is replaced with the lower-cased plugin
// name, {label} with the command label and {sublabel} with the subcommand's
// primary sublabel.
const (
	DefaultPermission    = "{plugin_name}.command.{label}"
	DefaultSubPermission = "{plugin_name}.command.{sublabel}"
)

// Handler runs a command.
type Handler interface {
	OnCommand(inv *Invocation) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(inv *Invocation) error

// OnCommand calls f.
func (f HandlerFunc) OnCommand(inv *Invocation) error { return f(inv) }

// Completer returns tab completion candidates for the last argument of inv.
// A nil result completes the names of online players the sender can see.
type Completer func(inv *Invocation) []string

// Command is a single command definition. Its fields are read-only once the
// command is registered.
type Command struct {
	Label       string
	Aliases     []string
	Description string
	// Usage is one line of arguments. It is prefixed with "/label " when it
	// does not start with a slash.
	Usage string
	// MultilineUsage replaces Usage when set.
	MultilineUsage []string
	// Permission required to run the command, templated like
	// DefaultPermission. Empty means no permission is needed.
	Permission   string
	MinArguments int
	// Cooldown counts in whole seconds; anything under a second disables it.
	Cooldown time.Duration
	// CooldownBypassPermission lets holders skip the cooldown.
	CooldownBypassPermission string
	// DisableAutoHelp stops a lone "help" or "?" argument from printing usage.
	DisableAutoHelp bool
	HideFromHelp    bool
	Handler         Handler
	Completer       Completer

	host       Host
	now        func() time.Time
	cooldowns  *cooldowns
	main       bool
	sub        bool
	sublabel   string
	registered bool
}

// SetClock replaces the clock used for cooldowns.
func (c *Command) SetClock(now func() time.Time) { c.now = now }

// Registered reports whether the command is in a command map.
func (c *Command) Registered() bool { return c.registered }

// Host returns the host the command was bound to, or nil.
func (c *Command) Host() Host { return c.host }

func (c *Command) bind(h Host) {
	c.host = h
	if c.now == nil {
		c.now = time.Now
	}
	if c.cooldowns == nil {
		c.cooldowns = newCooldowns()
	}
}

// validate checks the definition before registration.
func (c *Command) validate(sublabel string) error {
	switch {
	case c.Label == "":
		return &DefinitionError{Sublabel: sublabel, Err: ErrNoLabel}
	case c.Handler == nil:
		return &DefinitionError{Label: c.Label, Sublabel: sublabel, Err: ErrNoHandler}
	case c.needsUsage() && c.Usage == "" && len(c.MultilineUsage) == 0:
		return &DefinitionError{Label: c.Label, Sublabel: sublabel, Err: ErrNoUsage}
	}
	return nil
}

func (c *Command) needsUsage() bool {
	return !c.main && (c.MinArguments > 0 || !c.DisableAutoHelp)
}

// ResolvedPermission returns the command's permission with placeholders
// filled. A subcommand's {sublabel} is its primary sublabel.
func (c *Command) ResolvedPermission() string {
	if c.Permission == "" {
		return ""
	}
	name := ""
	if c.host != nil {
		name = strings.ToLower(c.host.Name())
	}
	return chat.Replace(c.Permission, "label", c.Label, "sublabel", c.sublabel, "plugin_name", name)
}

// Execute runs the command for sender. label is the label or alias that was
// typed.
//
// Postcondition: Returns a *DefinitionError for mistakes in the command
// definition; every other failure is reported to the sender and yields nil.
func (c *Command) Execute(ctx context.Context, sender Sender, label string, args []string) error {
	return c.run(ctx, sender, label, "", args)
}

func (c *Command) run(ctx context.Context, sender Sender, label, sublabel string, args []string) (err error) {
	if c.host == nil {
		return &DefinitionError{Label: label, Sublabel: sublabel, Err: ErrNotRegistered}
	}
	inv := &Invocation{ctx: ctx, cmd: c, Sender: sender, Label: label, Sublabel: sublabel, Args: args}

	if !c.main {
		section := "command." + c.Label
		if c.sublabel != "" {
			section += "." + c.sublabel
		}
		stop := c.host.Lag().Measure(section)
		defer stop()
	}
	defer func() {
		if r := recover(); r != nil {
			err = c.handleError(inv, fmt.Errorf("panic: %v", r))
		}
	}()

	if state, ok := c.host.Available(); !ok {
		_ = inv.Tell(inv.Lang("commands.cannot_use_while", "state", state))
		return nil
	}

	if perm := c.ResolvedPermission(); perm != "" && !sender.HasPermission(perm) {
		_ = inv.Tell(inv.Lang("commands.no_permission", "permission", perm))
		return nil
	}

	if len(args) < c.MinArguments || (!c.DisableAutoHelp && len(args) == 1 && c.isHelpTrigger(args[0])) {
		return c.sendUsage(inv)
	}

	if c.Cooldown >= time.Second && (c.CooldownBypassPermission == "" || !sender.HasPermission(c.CooldownBypassPermission)) {
		if wait := c.cooldowns.check(sender.UniqueID(), c.Cooldown, c.now()); wait > 0 {
			_ = inv.Tell(inv.Lang("commands.cooldown_wait", "duration", timeutil.FormatSeconds(wait)))
			return nil
		}
	}

	if err := c.Handler.OnCommand(inv); err != nil {
		return c.handleError(inv, err)
	}
	return nil
}

func (c *Command) handleError(inv *Invocation, err error) error {
	var (
		defErr *DefinitionError
		argErr *InvalidArgError
		cmdErr *Error
	)
	switch {
	case errors.As(err, &defErr):
		return err
	case errors.As(err, &argErr):
		return c.invalidArgs(inv, argErr)
	case errors.As(err, &cmdErr):
		if cmdErr.Message != "" {
			_ = inv.TellError(cmdErr.Message)
		}
		return nil
	default:
		c.host.Logger().Error("command failed",
			zap.String("label", inv.Label),
			zap.String("sublabel", inv.Sublabel),
			zap.String("args", strings.Join(inv.Args, " ")),
			zap.Error(err),
		)
		_ = inv.Tell(inv.Lang("commands.error", "error", err.Error()))
		return nil
	}
}

func (c *Command) invalidArgs(inv *Invocation, e *InvalidArgError) error {
	switch {
	case e.Message != "":
		_ = inv.TellError(e.Message)
	case len(c.MultilineUsage) > 0:
		return c.sendUsage(inv)
	case inv.Sublabel != "":
		_ = inv.Tell(inv.Lang("commands.invalid_sub_argument", "label", inv.Label, "sublabel", inv.Sublabel))
	default:
		_ = inv.Tell(inv.Lang("commands.invalid_argument", "label", inv.Label))
	}
	return nil
}

// sendUsage prints the description and usage.
//
// Postcondition: Returns a *DefinitionError when the command has no usage.
func (c *Command) sendUsage(inv *Invocation) error {
	var lines []string
	if c.Description != "" {
		lines = append(lines, inv.Lang("commands.label_description", "description", c.Description))
	}
	switch {
	case len(c.MultilineUsage) > 0:
		lines = append(lines, inv.Lang("commands.label_usages"))
		for _, u := range c.MultilineUsage {
			lines = append(lines, fillLabels(u, inv.Label, inv.Sublabel))
		}
	case c.Usage != "":
		lines = append(lines, inv.Lang("commands.label_usage")+c.usageLine(inv.Label, inv.Sublabel))
	default:
		return &DefinitionError{Label: inv.Label, Sublabel: inv.Sublabel, Err: ErrNoUsage}
	}
	_ = inv.Tell(lines...)
	return nil
}

// usageLine returns the single-line usage as typed by a player.
func (c *Command) usageLine(label, sublabel string) string {
	usage := fillLabels(c.Usage, label, sublabel)
	if strings.HasPrefix(usage, "/") {
		return usage
	}
	prefix := "/" + label + " "
	if sublabel != "" {
		prefix += sublabel + " "
	}
	return prefix + usage
}

func (c *Command) isHelpTrigger(arg string) bool {
	triggers := c.host.Settings().Help.Triggers
	if len(triggers) == 0 {
		triggers = []string{"help", "?"}
	}
	return slices.ContainsFunc(triggers, func(t string) bool { return strings.EqualFold(t, arg) })
}

// Complete returns tab completions for the last of args.
func (c *Command) Complete(ctx context.Context, sender Sender, label string, args []string) []string {
	return c.complete(ctx, sender, label, "", args)
}

func (c *Command) complete(ctx context.Context, sender Sender, label, sublabel string, args []string) []string {
	if c.host == nil {
		return nil
	}
	if perm := c.ResolvedPermission(); perm != "" && !sender.HasPermission(perm) {
		return nil
	}
	inv := &Invocation{ctx: ctx, cmd: c, Sender: sender, Label: label, Sublabel: sublabel, Args: args}
	var candidates []string
	if c.Completer != nil {
		candidates = c.Completer(inv)
	}
	if candidates == nil {
		candidates = c.host.PlayerNames(sender)
	}
	last := ""
	if len(args) > 0 {
		last = args[len(args)-1]
	}
	return filterPrefix(candidates, last)
}

func filterPrefix(candidates []string, prefix string) []string {
	out := []string{}
	for _, cand := range candidates {
		if len(cand) >= len(prefix) && strings.EqualFold(cand[:len(prefix)], prefix) {
			out = append(out, cand)
		}
	}
	return out
}

func fillLabels(s, label, sublabel string) string {
	return chat.Replace(s, "label", label, "sublabel", sublabel)
}
