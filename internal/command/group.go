package command

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.minekube.com/common/minecraft/component"

	"github.com/cory-johannsen/foundation/internal/chat"
)

// DefaultHelpPageSize is used when settings do not set a usable page size.
const DefaultHelpPageSize = 12

// SubCommand is a command run as "/label sublabel args…" inside a Group. Its
// Label is set to the group's label on registration.
type SubCommand struct {
	// Sublabels are matched case-insensitively; the first is the primary one.
	Sublabels []string
	Command
}

// Sublabel returns the primary sublabel.
func (s *SubCommand) Sublabel() string {
	if len(s.Sublabels) == 0 {
		return ""
	}
	return s.Sublabels[0]
}

func (s *SubCommand) matches(arg string) bool {
	for _, sl := range s.Sublabels {
		if strings.EqualFold(sl, arg) {
			return true
		}
	}
	return false
}

// Group composes subcommands under one label. Running the label alone shows
// a header, "help" or "?" shows paginated help and anything else is
// dispatched to the subcommand with that sublabel.
type Group struct {
	Label       string
	Aliases     []string
	Description string

	subs []*SubCommand
	main *Command
}

// NewGroup creates a group for label.
func NewGroup(label string, aliases ...string) *Group {
	return &Group{Label: label, Aliases: aliases}
}

// Add appends subcommands. Adding is only allowed before Register.
func (g *Group) Add(subs ...*SubCommand) *Group {
	for _, s := range subs {
		s.sub = true
		s.sublabel = s.Sublabel()
	}
	g.subs = append(g.subs, subs...)
	return g
}

// Subcommands returns the subcommands; after registration they are sorted
// by primary sublabel.
func (g *Group) Subcommands() []*SubCommand {
	return append([]*SubCommand(nil), g.subs...)
}

// Find returns the subcommand answering to sublabel.
func (g *Group) Find(sublabel string) (*SubCommand, bool) {
	for _, s := range g.subs {
		if s.matches(sublabel) {
			return s, true
		}
	}
	return nil, false
}

// Main returns the generated main command, or nil before Register.
func (g *Group) Main() *Command { return g.main }

// Registered reports whether the group's main command is registered.
func (g *Group) Registered() bool { return g.main != nil && g.main.registered }

// Register validates the subcommands and registers the group's main command
// in r.
//
// Postcondition: Returns an error when the group is registered already, two
// subcommands share a sublabel, a subcommand definition is incomplete or the
// label collides in r.
func (g *Group) Register(r *Registry) error {
	if g.Registered() {
		return &DefinitionError{Label: g.Label, Err: ErrAlreadyRegistered}
	}

	owners := make(map[string]string)
	for _, s := range g.subs {
		if len(s.Sublabels) == 0 {
			return &DefinitionError{Label: g.Label, Err: fmt.Errorf("subcommand without sublabel")}
		}
		for _, sl := range s.Sublabels {
			key := strings.ToLower(sl)
			if owner, dup := owners[key]; dup {
				return &DefinitionError{Label: g.Label, Sublabel: s.Sublabel(),
					Err: fmt.Errorf("%w: %q is used by %q and %q", ErrDuplicateSublabel, sl, owner, s.Sublabel())}
			}
			owners[key] = s.Sublabel()
		}
		s.Label = g.Label
		if err := s.validate(s.Sublabel()); err != nil {
			return err
		}
	}
	sort.SliceStable(g.subs, func(i, j int) bool {
		return strings.ToLower(g.subs[i].Sublabel()) < strings.ToLower(g.subs[j].Sublabel())
	})

	main := &Command{
		Label:           g.Label,
		Aliases:         g.Aliases,
		Description:     g.Description,
		DisableAutoHelp: true,
		Handler:         HandlerFunc(g.dispatch),
		Completer:       g.complete,
		main:            true,
	}
	if err := r.Register(main); err != nil {
		return err
	}
	for _, s := range g.subs {
		s.bind(r.Host())
		s.registered = true
	}
	g.main = main
	return nil
}

// MustRegister registers the group and panics on error.
func (g *Group) MustRegister(r *Registry) {
	if err := g.Register(r); err != nil {
		panic(fmt.Sprintf("registering command group /%s: %v", g.Label, err))
	}
}

// Unregister removes the group's main command from r.
func (g *Group) Unregister(r *Registry) error {
	if !g.Registered() {
		return &DefinitionError{Label: g.Label, Err: ErrNotRegistered}
	}
	if err := r.Unregister(g.main); err != nil {
		return err
	}
	for _, s := range g.subs {
		s.registered = false
	}
	g.main = nil
	return nil
}

func (g *Group) dispatch(inv *Invocation) error {
	if len(inv.Args) == 0 {
		return g.sendHeader(inv)
	}
	arg := inv.Args[0]
	if s, ok := g.Find(arg); ok {
		return s.run(inv.ctx, inv.Sender, inv.Label, arg, inv.Args[1:])
	}
	if g.main.isHelpTrigger(arg) {
		page := 1
		if len(inv.Args) > 1 {
			n, err := strconv.Atoi(inv.Args[1])
			if err != nil {
				return &Error{Message: inv.Lang("commands.invalid_number", "input", inv.Args[1]), Err: err}
			}
			page = n
		}
		return g.sendHelp(inv, page)
	}
	return &InvalidArgError{Message: inv.Lang("commands.invalid_sub_argument_unknown", "argument", arg, "label", inv.Label)}
}

// visible returns the subcommands sender may see in help.
func (g *Group) visible(sender Sender) []*SubCommand {
	var out []*SubCommand
	for _, s := range g.subs {
		if !s.HideFromHelp && permitted(&s.Command, sender) {
			out = append(out, s)
		}
	}
	return out
}

func (g *Group) sendHeader(inv *Invocation) error {
	host := inv.Host()
	lines := []string{inv.Lang("commands.header_version", "plugin_name", host.Name(), "plugin_version", host.Version())}
	if authors := host.Authors(); len(authors) > 0 {
		lines = append(lines, inv.Lang("commands.header_authors", "authors", strings.Join(authors, ", ")))
	}
	if credits := host.Credits(); credits != "" {
		lines = append(lines, inv.Lang("commands.header_credits", "credits", credits))
	}
	switch {
	case len(g.subs) == 0:
		lines = append(lines, inv.Lang("commands.header_no_subcommands"))
	case len(g.visible(inv.Sender)) == 0:
		lines = append(lines, inv.Lang("commands.header_no_subcommands_permission"))
	default:
		lines = append(lines, inv.Lang("commands.header_help", "label", inv.Label))
	}
	return inv.Tell(lines...)
}

func (g *Group) sendHelp(inv *Invocation, page int) error {
	subs := g.visible(inv.Sender)
	if len(subs) == 0 {
		return inv.Tell(inv.Lang("commands.header_no_subcommands_permission"))
	}

	lines := make([]component.Component, 0, len(subs))
	for _, s := range subs {
		lines = append(lines, g.helpEntry(inv, s))
	}

	size := inv.Host().Settings().Help.PageSize
	if size < 1 {
		size = DefaultHelpPageSize
	}
	p := chat.NewPaginator(size, lines)
	if page < 1 || page > p.Pages() {
		return &Error{Message: inv.Lang("pages.no_such_page", "page", page)}
	}
	p.Header = []component.Component{chat.Parse(inv.Lang("commands.help_title", "label", inv.Label))}
	if p.Pages() > 1 {
		p.Footer = []component.Component{chat.Parse(inv.Lang("commands.help_page", "page", page, "pages", p.Pages(), "label", inv.Label))}
	}
	return p.Send(inv.Sender, page)
}

func (g *Group) helpEntry(inv *Invocation, s *SubCommand) component.Component {
	sublabel := s.Sublabel()
	usage := ""
	if s.Usage != "" && !strings.HasPrefix(s.Usage, "/") {
		usage = " &7" + fillLabels(s.Usage, inv.Label, sublabel)
	}
	description := ""
	if s.Description != "" {
		description = " &8- &7" + s.Description
	}
	entry := chat.Parse(inv.Lang("commands.help_entry",
		"label", inv.Label,
		"sublabel", sublabel,
		"usage", usage,
		"description", description,
	))

	var hover []string
	if len(s.MultilineUsage) > 0 {
		hover = append(hover, inv.Lang("commands.help_tooltip_usage"))
		for _, u := range s.MultilineUsage {
			hover = append(hover, fillLabels(u, inv.Label, sublabel))
		}
	}
	if s.Description != "" {
		hover = append(hover, inv.Lang("commands.help_tooltip_description", "description", s.Description))
	}
	if perm := s.ResolvedPermission(); perm != "" {
		hover = append(hover, inv.Lang("commands.help_tooltip_permission", "permission", perm))
	}
	if len(s.MultilineUsage) == 0 && s.Usage != "" {
		hover = append(hover, inv.Lang("commands.help_tooltip_usage")+s.usageLine(inv.Label, sublabel))
	}

	var tooltip component.Component
	if len(hover) > 0 {
		tooltip = chat.Parse(strings.Join(hover, "\n"))
	}
	return chat.Suggesting(entry, "/"+inv.Label+" "+sublabel+" ", tooltip)
}

func (g *Group) complete(inv *Invocation) []string {
	if len(inv.Args) <= 1 {
		out := []string{}
		for _, s := range g.subs {
			if !s.HideFromHelp && permitted(&s.Command, inv.Sender) {
				out = append(out, s.Sublabels...)
			}
		}
		return out
	}
	s, ok := g.Find(inv.Args[0])
	if !ok {
		return []string{}
	}
	return s.complete(inv.ctx, inv.Sender, inv.Label, inv.Args[0], inv.Args[1:])
}
