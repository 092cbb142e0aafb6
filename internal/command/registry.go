package command

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cory-johannsen/foundation/internal/chat"
)

// Registry maps command labels and aliases to commands. It is the command
// map frontends dispatch input lines through.
//
// Registry is safe for concurrent use.
type Registry struct {
	host Host

	mu       sync.RWMutex
	commands map[string]*Command // lower-case label → command
	aliases  map[string]string   // lower-case alias → label
}

// NewRegistry creates a Registry bound to host and registers cmds.
//
// Precondition: host must be non-nil.
// Postcondition: Returns a Registry or the first registration error.
func NewRegistry(host Host, cmds ...*Command) (*Registry, error) {
	r := &Registry{
		host:     host,
		commands: make(map[string]*Command, len(cmds)),
		aliases:  make(map[string]string),
	}
	for _, cmd := range cmds {
		if err := r.Register(cmd); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Host returns the host commands are bound to.
func (r *Registry) Host() Host { return r.host }

// Register adds cmd under its label and aliases.
//
// Precondition: cmd is not a subcommand and is not registered yet.
// Postcondition: Returns an error on a definition mistake or a label/alias collision.
func (r *Registry) Register(cmd *Command) error {
	if cmd.sub {
		return &DefinitionError{Label: cmd.Label, Sublabel: cmd.sublabel, Err: ErrSubcommand}
	}
	if cmd.registered {
		return &DefinitionError{Label: cmd.Label, Err: ErrAlreadyRegistered}
	}
	if err := cmd.validate(""); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	label := strings.ToLower(cmd.Label)
	if _, exists := r.commands[label]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateLabel, label)
	}
	if owner, exists := r.aliases[label]; exists {
		return fmt.Errorf("%w: label %q conflicts with an alias of %q", ErrDuplicateLabel, label, owner)
	}
	seen := map[string]bool{label: true}
	for _, alias := range cmd.Aliases {
		alias = strings.ToLower(alias)
		if _, exists := r.commands[alias]; exists || seen[alias] {
			return fmt.Errorf("%w: alias %q conflicts with command %q", ErrDuplicateLabel, alias, alias)
		}
		if owner, exists := r.aliases[alias]; exists {
			return fmt.Errorf("%w: alias %q used by %q and %q", ErrDuplicateLabel, alias, owner, label)
		}
		seen[alias] = true
	}

	r.commands[label] = cmd
	for _, alias := range cmd.Aliases {
		r.aliases[strings.ToLower(alias)] = label
	}
	cmd.bind(r.host)
	cmd.registered = true
	return nil
}

// MustRegister registers cmds and panics on error. Use it for start-up
// wiring where a failure is a programming mistake.
func (r *Registry) MustRegister(cmds ...*Command) {
	for _, cmd := range cmds {
		if err := r.Register(cmd); err != nil {
			panic(fmt.Sprintf("registering command: %v", err))
		}
	}
}

// Unregister removes cmd and its aliases.
//
// Postcondition: Returns ErrNotRegistered when cmd is not in this registry.
func (r *Registry) Unregister(cmd *Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	label := strings.ToLower(cmd.Label)
	if r.commands[label] != cmd {
		return fmt.Errorf("%w: %q", ErrNotRegistered, label)
	}
	delete(r.commands, label)
	for _, alias := range cmd.Aliases {
		delete(r.aliases, strings.ToLower(alias))
	}
	cmd.registered = false
	return nil
}

// Resolve looks up a command by label or alias, case-insensitively.
//
// Postcondition: Returns (command, true) if found, or (nil, false).
func (r *Registry) Resolve(input string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	input = strings.ToLower(input)
	if cmd, ok := r.commands[input]; ok {
		return cmd, true
	}
	if label, ok := r.aliases[input]; ok {
		return r.commands[label], true
	}
	return nil, false
}

// Commands returns all registered commands sorted by label.
func (r *Registry) Commands() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		result = append(result, cmd)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Label < result[j].Label })
	return result
}

// Dispatch parses line and runs the command it names. An unknown label
// sends the unknown-command message.
//
// Postcondition: Returns only *DefinitionError values from the command run.
func (r *Registry) Dispatch(ctx context.Context, sender Sender, line string) error {
	res := Parse(line)
	if res.Label == "" {
		return nil
	}
	cmd, ok := r.Resolve(res.Label)
	if !ok {
		return sender.SendMessage(chat.Parse(r.host.Messages().Of("commands.unknown")))
	}
	return cmd.Execute(ctx, sender, res.Label, res.Args)
}

// Complete returns tab completions for a partially typed line. Without any
// argument yet, labels and aliases the sender may use are completed.
func (r *Registry) Complete(ctx context.Context, sender Sender, line string) []string {
	res := ParsePartial(line)
	if res.Args == nil {
		var labels []string
		r.mu.RLock()
		for label, cmd := range r.commands {
			if permitted(cmd, sender) {
				labels = append(labels, label)
			}
		}
		for alias, label := range r.aliases {
			if permitted(r.commands[label], sender) {
				labels = append(labels, alias)
			}
		}
		r.mu.RUnlock()
		sort.Strings(labels)
		return filterPrefix(labels, res.Label)
	}
	cmd, ok := r.Resolve(res.Label)
	if !ok {
		return []string{}
	}
	return cmd.Complete(ctx, sender, res.Label, res.Args)
}

func permitted(cmd *Command, sender Sender) bool {
	perm := cmd.ResolvedPermission()
	return perm == "" || sender.HasPermission(perm)
}
