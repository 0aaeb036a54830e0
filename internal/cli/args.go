// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// args.go - Argument parsing shared by the arag subcommands.

package cli

import (
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// ARG PARSER
// =============================================================================

// boolFlagNames never consume the following argument as a value, so
// "docs status --watch abc123" keeps abc123 positional.
var boolFlagNames = map[string]bool{
	"confirm": true,
	"new":     true,
	"quick":   true,
	"watch":   true,
	"y":       true,
	"yes":     true,
}

// ArgParser handles flags and positional arguments for a subcommand:
//   - Long flags: --flag value or --flag=value
//   - Short flags: -f value
//   - Boolean flags: --flag (no value needed)
//   - Positional arguments, the first of which is the subcommand
type ArgParser struct {
	subcommand string
	flags      map[string]string
	boolFlags  map[string]bool
	positional []string
}

// NewArgParser parses raw into flags and positional arguments.
//
//	args := NewArgParser([]string{"list", "--page", "2", "--page-size=5"})
//	args.Subcommand()      // "list"
//	args.Flag("page")      // "2"
//	args.Flag("page-size") // "5"
func NewArgParser(raw []string) *ArgParser {
	parser := &ArgParser{
		flags:      make(map[string]string),
		boolFlags:  make(map[string]bool),
		positional: make([]string, 0, len(raw)),
	}

	for i := 0; i < len(raw); i++ {
		arg := raw[i]

		// "--" ends flag parsing; "-" alone is positional.
		if arg == "--" {
			parser.positional = append(parser.positional, raw[i+1:]...)
			break
		}
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			parser.positional = append(parser.positional, arg)
			continue
		}

		if name, value, ok := strings.Cut(arg, "="); ok {
			name = strings.TrimLeft(name, "-")
			if value == "true" || value == "false" {
				parser.boolFlags[name] = value == "true"
			} else {
				parser.flags[name] = value
			}
			continue
		}

		name := strings.TrimLeft(arg, "-")
		if !boolFlagNames[name] && i+1 < len(raw) && !strings.HasPrefix(raw[i+1], "-") {
			parser.flags[name] = raw[i+1]
			i++
			continue
		}
		parser.boolFlags[name] = true
	}

	if len(parser.positional) > 0 {
		parser.subcommand = strings.ToLower(parser.positional[0])
	}
	return parser
}

// Subcommand returns the first positional argument, lower-cased.
func (p *ArgParser) Subcommand() string {
	return p.subcommand
}

// Flag returns the value of a string flag, or "".
func (p *ArgParser) Flag(name string) string {
	return p.flags[strings.TrimLeft(name, "-")]
}

// FlagOrDefault returns the flag value or a default if not found.
func (p *ArgParser) FlagOrDefault(name, defaultValue string) string {
	if val := p.Flag(name); val != "" {
		return val
	}
	return defaultValue
}

// FlagInt returns a positive integer flag, or defaultValue when absent.
// A present but invalid value is an error.
func (p *ArgParser) FlagInt(name string, defaultValue int) (int, error) {
	val := p.Flag(name)
	if val == "" {
		return defaultValue, nil
	}
	return ParseIntWithValidation(val, "--"+strings.TrimLeft(name, "-"))
}

// BoolFlag returns the value of a boolean flag.
func (p *ArgParser) BoolFlag(name string) bool {
	return p.boolFlags[strings.TrimLeft(name, "-")]
}

// Positional returns the positional argument at index, or "".
// Index 0 is the subcommand.
func (p *ArgParser) Positional(index int) string {
	if index < 0 || index >= len(p.positional) {
		return ""
	}
	return p.positional[index]
}

// PositionalFrom returns all positional arguments starting from index.
func (p *ArgParser) PositionalFrom(index int) []string {
	if index < 0 || index >= len(p.positional) {
		return []string{}
	}
	return p.positional[index:]
}

// =============================================================================
// HELPERS
// =============================================================================

// ParseIntWithValidation parses a positive integer.
func ParseIntWithValidation(s string, fieldName string) (int, error) {
	if s == "" {
		return 0, NewValidationError(fieldName, s, "value is required")
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return 0, NewValidationError(fieldName, s, "must be a valid integer")
	}
	if val <= 0 {
		return 0, NewValidationError(fieldName, s, fmt.Sprintf("must be positive, got %d", val))
	}
	return val, nil
}

// JoinPositionalArgs joins positional arguments from startIndex into one string.
func JoinPositionalArgs(parser *ArgParser, startIndex int) string {
	return strings.Join(parser.PositionalFrom(startIndex), " ")
}
