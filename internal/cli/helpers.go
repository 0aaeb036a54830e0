// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// helpers.go - Small helpers shared by several commands.

package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// formatDurationShort formats a duration for status lines.
func formatDurationShort(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

// ValidateOutputPath checks that path can be written as a file and returns
// it absolute. The parent directory must exist and path must not be one.
func ValidateOutputPath(path string) (string, error) {
	if path == "" {
		return "", NewValidationError("output", path, "path is empty")
	}
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", NewValidationError("output", path, err.Error())
	}
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		return "", NewValidationError("output", path, "is a directory")
	}
	parent, err := os.Stat(filepath.Dir(abs))
	if err != nil || !parent.IsDir() {
		return "", NewValidationError("output", path, "parent directory does not exist")
	}
	return abs, nil
}
