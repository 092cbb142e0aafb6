package command

import "strings"

// ParseResult holds the parsed command label and arguments from a text line.
type ParseResult struct {
	// Label is the first word of the input without a leading slash, lowercased.
	Label string
	// Args are the remaining words after the label.
	Args []string
	// RawArgs is the raw text after the label.
	RawArgs string
}

// Parse splits a text line into a label and arguments. A leading slash is
// optional.
//
// Postcondition: Returns a ParseResult. If line is blank, Label is empty.
func Parse(line string) ParseResult {
	line = strings.TrimPrefix(strings.TrimSpace(line), "/")
	if line == "" {
		return ParseResult{}
	}

	spaceIdx := strings.IndexByte(line, ' ')
	if spaceIdx < 0 {
		return ParseResult{Label: strings.ToLower(line)}
	}

	label := strings.ToLower(line[:spaceIdx])
	rest := strings.TrimSpace(line[spaceIdx+1:])

	var args []string
	if rest != "" {
		args = strings.Fields(rest)
	}

	return ParseResult{
		Label:   label,
		Args:    args,
		RawArgs: rest,
	}
}

// ParsePartial parses a line that is still being typed. A trailing space
// starts a new, empty argument.
func ParsePartial(line string) ParseResult {
	res := Parse(line)
	trimmed := strings.TrimLeft(line, " ")
	if res.Label != "" && strings.HasSuffix(line, " ") && strings.Contains(trimmed, " ") {
		res.Args = append(res.Args, "")
	}
	return res
}
