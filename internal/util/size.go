// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"math"
	"strconv"
)

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatFileSize renders a byte count with 1024-based units and at most two
// decimals, dropping trailing zeros: 1536 -> "1.5 KB".
func FormatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}

	const k = 1024
	i := 0
	scaled := float64(bytes)
	for scaled >= k && i < len(sizeUnits)-1 {
		scaled /= k
		i++
	}

	value := math.Round(scaled*100) / 100
	return strconv.FormatFloat(value, 'f', -1, 64) + " " + sizeUnits[i]
}
