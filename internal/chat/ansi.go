package chat

import (
	"fmt"
	"strings"

	"go.minekube.com/common/minecraft/component"
)

// ANSI escape code constants for terminal styling.
const (
	Reset     = "\033[0m"
	Bold      = "\033[1m"
	Dim       = "\033[2m"
	Italic    = "\033[3m"
	Underline = "\033[4m"

	// Foreground colors
	Black   = "\033[30m"
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	White   = "\033[37m"

	// Bright foreground colors
	BrightBlack   = "\033[90m"
	BrightRed     = "\033[91m"
	BrightGreen   = "\033[92m"
	BrightYellow  = "\033[93m"
	BrightBlue    = "\033[94m"
	BrightMagenta = "\033[95m"
	BrightCyan    = "\033[96m"
	BrightWhite   = "\033[97m"
)

// namedColors maps chat color names to the closest terminal color.
var namedColors = map[string]string{
	"black":        Black,
	"dark_blue":    Blue,
	"dark_green":   Green,
	"dark_aqua":    Cyan,
	"dark_red":     Red,
	"dark_purple":  Magenta,
	"gold":         Yellow,
	"gray":         White,
	"dark_gray":    BrightBlack,
	"blue":         BrightBlue,
	"green":        BrightGreen,
	"aqua":         BrightCyan,
	"red":          BrightRed,
	"light_purple": BrightMagenta,
	"yellow":       BrightYellow,
	"white":        BrightWhite,
}

// Colorize wraps text with the given ANSI color code and a reset suffix.
//
// Precondition: color must be a valid ANSI escape sequence.
// Postcondition: Returns text wrapped with the color code and Reset.
func Colorize(color, text string) string {
	return color + text + Reset
}

// StripANSI removes all ANSI escape sequences from a string.
//
// Postcondition: Returns text with all \033[...m sequences removed.
func StripANSI(s string) string {
	result := make([]byte, 0, len(s))
	i := 0
	for i < len(s) {
		if s[i] == '\033' && i+1 < len(s) && s[i+1] == '[' {
			// Skip past the 'm' terminator
			j := i + 2
			for j < len(s) && s[j] != 'm' {
				j++
			}
			if j < len(s) {
				i = j + 1
				continue
			}
		}
		result = append(result, s[i])
		i++
	}
	return string(result)
}

type ansiStyle struct {
	color     string
	bold      bool
	italic    bool
	underline bool
}

func (s ansiStyle) apply(st component.Style) ansiStyle {
	if st.Color != nil {
		if code, ok := namedColors[fmt.Sprint(st.Color)]; ok {
			s.color = code
		}
	}
	s.bold = state(st.Bold, s.bold)
	s.italic = state(st.Italic, s.italic)
	s.underline = state(st.Underlined, s.underline)
	return s
}

func (s ansiStyle) codes() string {
	var b strings.Builder
	b.WriteString(s.color)
	if s.bold {
		b.WriteString(Bold)
	}
	if s.italic {
		b.WriteString(Italic)
	}
	if s.underline {
		b.WriteString(Underline)
	}
	return b.String()
}

func state(st component.State, inherited bool) bool {
	switch st {
	case component.True:
		return true
	case component.False:
		return false
	default:
		return inherited
	}
}

// ANSI renders a component for a terminal. Styles are inherited by
// children the way chat clients apply them; click and hover events are
// dropped.
//
// Postcondition: StripANSI(ANSI(c)) equals Plain(c) for text components.
func ANSI(c component.Component) string {
	var b strings.Builder
	writeANSI(&b, c, ansiStyle{})
	if b.Len() > 0 && strings.Contains(b.String(), "\033[") {
		b.WriteString(Reset)
	}
	return b.String()
}

func writeANSI(b *strings.Builder, c component.Component, parent ansiStyle) {
	switch t := c.(type) {
	case *component.Text:
		st := parent.apply(t.S)
		writeStyled(b, st, t.Content)
		for _, child := range t.Extra {
			writeANSI(b, child, st)
		}
	case *component.Translation:
		st := parent.apply(t.S)
		writeStyled(b, st, "{"+t.Key+"}")
		for _, with := range t.With {
			writeANSI(b, with, st)
		}
	case nil:
	default:
		b.WriteString(Plain(c))
	}
}

func writeStyled(b *strings.Builder, st ansiStyle, text string) {
	if text == "" {
		return
	}
	if codes := st.codes(); codes != "" {
		b.WriteString(Reset)
		b.WriteString(codes)
	} else if strings.Contains(b.String(), "\033[") {
		b.WriteString(Reset)
	}
	b.WriteString(text)
}
