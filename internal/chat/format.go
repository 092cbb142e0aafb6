package chat

import (
	"fmt"

	"go.minekube.com/common/minecraft/color"
	"go.minekube.com/common/minecraft/component"
)

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case component.Component:
		return Legacy(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

// Colored returns content in a single color.
func Colored(content string, c color.Color) *component.Text {
	return &component.Text{Content: content, S: component.Style{Color: c}}
}

// Suggesting returns a component that fills the chat input with command on
// click and shows hover when hovered.
func Suggesting(c component.Component, command string, hover component.Component) component.Component {
	wrapped := &component.Text{
		Extra: []component.Component{c},
		S:     component.Style{ClickEvent: component.SuggestCommand(command)},
	}
	if hover != nil {
		wrapped.S.HoverEvent = component.ShowText(hover)
	}
	return wrapped
}
