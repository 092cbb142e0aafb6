package yamlconfig

import (
	"errors"
	"fmt"
)

// Errors returned by configuration operations.
var (
	// ErrShapeMismatch indicates a stored value and its default disagree on
	// whether the path holds a section.
	ErrShapeMismatch = errors.New("value shape does not match default")

	// ErrCyclicAlias indicates a YAML alias that refers back to one of its
	// own ancestors.
	ErrCyclicAlias = errors.New("cyclic yaml alias")

	// ErrNoFile indicates Save was called on a config that has no backing file.
	ErrNoFile = errors.New("config has no backing file")

	// ErrUnknownType indicates a "==" tagged mapping whose type has not been registered.
	ErrUnknownType = errors.New("unknown serialized type")

	// ErrNotMapping indicates the root of a document is not a mapping.
	ErrNotMapping = errors.New("document root is not a mapping")

	// ErrConversion indicates a stored value cannot be converted to the requested type.
	ErrConversion = errors.New("value conversion failed")
)

// ShapeError describes a path whose stored value and default value have
// incompatible shapes (for example a scalar on disk where the default is a
// section).
type ShapeError struct {
	// File is the backing file of the config being saved.
	File string
	// Path is the full dotted path of the offending key.
	Path string
	// Stored is the value found in the live tree.
	Stored any
	// Default is the value found in the defaults tree.
	Default any
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: key %q holds %s but the default is %s; fix or remove the key",
		e.File, e.Path, describe(e.Stored), describe(e.Default))
}

// Unwrap returns ErrShapeMismatch.
func (e *ShapeError) Unwrap() error {
	return ErrShapeMismatch
}

func describe(v any) string {
	switch v.(type) {
	case *Section:
		return "a section"
	case []any:
		return "a list"
	case nil:
		return "nothing"
	default:
		return fmt.Sprintf("a value (%v)", v)
	}
}
