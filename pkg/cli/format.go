// Package cli provides shared output formatting for rosflow commands.
package cli

import (
	"os"
	"strings"
)

// colorEnabled is false when NO_COLOR env var is set (per no-color.org).
var colorEnabled = os.Getenv("NO_COLOR") == ""

// Green wraps s in ANSI green. Returns s unchanged when NO_COLOR is set.
func Green(s string) string {
	if !colorEnabled {
		return s
	}
	return "\033[32m" + s + "\033[0m"
}

// Yellow wraps s in ANSI yellow. Returns s unchanged when NO_COLOR is set.
func Yellow(s string) string {
	if !colorEnabled {
		return s
	}
	return "\033[33m" + s + "\033[0m"
}

// Red wraps s in ANSI red. Returns s unchanged when NO_COLOR is set.
func Red(s string) string {
	if !colorEnabled {
		return s
	}
	return "\033[31m" + s + "\033[0m"
}

// Bold wraps s in ANSI bold. Returns s unchanged when NO_COLOR is set.
func Bold(s string) string {
	if !colorEnabled {
		return s
	}
	return "\033[1m" + s + "\033[0m"
}

// Dim wraps s in ANSI dim. Returns s unchanged when NO_COLOR is set.
func Dim(s string) string {
	if !colorEnabled {
		return s
	}
	return "\033[2m" + s + "\033[0m"
}

// Status colors a workflow status: SUCCESS green, REJECTED yellow,
// everything else (FAILED, ROLLED_BACK) red.
func Status(s string) string {
	switch s {
	case "SUCCESS":
		return Green(s)
	case "REJECTED":
		return Yellow(s)
	default:
		return Red(s)
	}
}

// Tier colors a risk tier: LOW green, MEDIUM yellow, HIGH red.
func Tier(s string) string {
	switch s {
	case "LOW":
		return Green(s)
	case "MEDIUM":
		return Yellow(s)
	default:
		return Red(s)
	}
}

// DotPad pads name with dots to the given width.
// Example: DotPad("edge-r1", 30) → "edge-r1 ......................"
func DotPad(name string, width int) string {
	if width <= 0 || len(name) >= width-1 {
		return name
	}
	dots := width - len(name) - 1
	return name + " " + strings.Repeat(".", dots)
}
