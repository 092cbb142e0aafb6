// Package chat builds, formats and renders chat components: legacy color
// codes, plain and ANSI output, messenger prefixes and pagination.
package chat

import (
	"strings"

	"go.minekube.com/common/minecraft/component"
	"go.minekube.com/common/minecraft/component/codec"
	"go.minekube.com/common/minecraft/component/codec/legacy"
)

var (
	ampersand = &legacy.Legacy{Char: legacy.AmpersandChar}
	plain     = &codec.Plain{}
)

// Parse turns text with &-prefixed color codes into a component. Text the
// legacy codec rejects is returned uncolored.
func Parse(s string) component.Component {
	c, err := ampersand.Unmarshal([]byte(s))
	if err != nil {
		return &component.Text{Content: s}
	}
	return c
}

// Parsef is Parse over a {key} replaced template.
func Parsef(template string, pairs ...any) component.Component {
	return Parse(Replace(template, pairs...))
}

// Legacy renders a component back into &-prefixed color code text.
func Legacy(c component.Component) string {
	var b strings.Builder
	if err := ampersand.Marshal(&b, c); err != nil {
		return Plain(c)
	}
	return b.String()
}

// Plain renders a component's text without any styling. Translations are
// written as "{key}".
func Plain(c component.Component) string {
	var b strings.Builder
	writePlain(&b, c)
	return b.String()
}

func writePlain(b *strings.Builder, c component.Component) {
	switch t := c.(type) {
	case nil:
	case *component.Translation:
		b.WriteString("{" + t.Key + "}")
		for _, with := range t.With {
			writePlain(b, with)
		}
	default:
		_ = plain.Marshal(b, c)
	}
}

// StripColors removes &-prefixed color codes from s.
func StripColors(s string) string {
	return Plain(Parse(s))
}

// Replace substitutes {key} placeholders. pairs alternates keys and values;
// values are formatted with their String method or fmt's default verb.
// A trailing key without a value is ignored.
func Replace(template string, pairs ...any) string {
	if len(pairs) < 2 {
		return template
	}
	args := make([]string, 0, len(pairs))
	for i := 0; i+1 < len(pairs); i += 2 {
		args = append(args, "{"+toString(pairs[i])+"}", toString(pairs[i+1]))
	}
	return strings.NewReplacer(args...).Replace(template)
}

// Join concatenates components into one parent text component.
func Join(parts ...component.Component) component.Component {
	return &component.Text{Extra: parts}
}

// Lines joins components with newlines.
func Lines(parts ...component.Component) component.Component {
	out := make([]component.Component, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			out = append(out, &component.Text{Content: "\n"})
		}
		out = append(out, p)
	}
	return &component.Text{Extra: out}
}
