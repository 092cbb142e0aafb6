package command

import (
	"errors"
	"fmt"
)

// Registration errors.
var (
	ErrAlreadyRegistered = errors.New("command already registered")
	ErrNotRegistered     = errors.New("command not registered")
	ErrDuplicateLabel    = errors.New("duplicate command label")
	ErrDuplicateSublabel = errors.New("duplicate sublabel")
	ErrNoUsage           = errors.New("command has no usage")
	ErrNoLabel           = errors.New("command has no label")
	ErrNoHandler         = errors.New("command has no handler")
	ErrSubcommand        = errors.New("subcommands are registered through their group")
)

// Error stops a command. A non-empty Message is sent to the sender as an
// error; an empty one aborts silently.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return "command aborted"
	}
}

func (e *Error) Unwrap() error { return e.Err }

// InvalidArgError reports arguments the command cannot use. Without a
// Message the sender is shown the command's usage.
type InvalidArgError struct {
	Message string
}

func (e *InvalidArgError) Error() string {
	if e.Message == "" {
		return "invalid arguments"
	}
	return e.Message
}

// DefinitionError is a programmer error in a command definition, such as a
// command that needs to print its usage but has none.
type DefinitionError struct {
	Label    string
	Sublabel string
	Err      error
}

func (e *DefinitionError) Error() string {
	if e.Sublabel != "" {
		return fmt.Sprintf("command /%s %s: %v", e.Label, e.Sublabel, e.Err)
	}
	return fmt.Sprintf("command /%s: %v", e.Label, e.Err)
}

func (e *DefinitionError) Unwrap() error { return e.Err }
