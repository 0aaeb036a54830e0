// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// confirm.go - Confirmation for destructive commands.
//
//  1. --confirm proceeds without prompting
//  2. --json or a non-interactive stdin requires --confirm
//  3. Otherwise the user is asked [y/N]

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
)

// ErrNotConfirmed is returned when the user answers no.
var ErrNotConfirmed = errors.New("cancelled")

// RequireConfirmation checks that a destructive action was confirmed.
func (a *App) RequireConfirmation(action string, confirmFlag bool) error {
	if confirmFlag {
		return nil
	}
	if a.JSON() || !a.Interactive {
		return &ValidationError{
			Field:   "confirmation",
			Reason:  action + " requires --confirm",
			Example: "add --confirm to proceed",
		}
	}

	fmt.Fprintf(a.Out, "%s %s? [y/N]: ", WarningStyle.Render("[CONFIRM]"), action)
	reader := bufio.NewReader(a.In)
	answer, err := reader.ReadString('\n')
	if err != nil && answer == "" {
		return ErrNotConfirmed
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return nil
	}
	return ErrNotConfirmed
}
