package command

import "strings"

// ParseResult holds the parsed command name and arguments from a console line.
type ParseResult struct {
	// Command is the first word of the input, lowercased.
	Command string
	// Args are the remaining words after the command.
	Args []string
	// RawArgs is the raw text after the command.
	RawArgs string
}

// Parse splits a console line into a command and arguments.
// Everything from an unquoted '#' onward is a comment, so scripted input can
// be annotated.
//
// Postcondition: Returns a ParseResult. If line is empty or a comment, Command is empty.
func Parse(line string) ParseResult {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return ParseResult{}
	}

	spaceIdx := strings.IndexAny(line, " \t")
	if spaceIdx < 0 {
		return ParseResult{Command: strings.ToLower(line)}
	}

	rest := strings.TrimSpace(line[spaceIdx+1:])
	var args []string
	if rest != "" {
		args = strings.Fields(rest)
	}
	return ParseResult{
		Command: strings.ToLower(line[:spaceIdx]),
		Args:    args,
		RawArgs: rest,
	}
}

// ParseToggle interprets an on/off argument.
//
// Postcondition: Returns (value, true) for on/off/true/false/yes/no, else (false, false).
func ParseToggle(arg string) (bool, bool) {
	switch strings.ToLower(arg) {
	case "on", "true", "yes":
		return true, true
	case "off", "false", "no":
		return false, true
	}
	return false, false
}
