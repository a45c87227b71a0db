package transport

import "strings"

// Outcome classifies a device reply.
type Outcome int

const (
	// OutcomeOK means the device accepted the command.
	OutcomeOK Outcome = iota
	// OutcomeFailed means the device reported an error for the command.
	OutcomeFailed
)

// ResultPattern maps an output substring to an outcome. The table is ordered:
// the first matching pattern wins.
type ResultPattern struct {
	Substring string
	Outcome   Outcome
}

// resultPatterns is the ordered table of reply fragments the engine
// recognizes. The remote CLI reports errors only as free text, so this table
// is the single place where that fragile contract lives. More specific
// fragments come before generic ones.
var resultPatterns = []ResultPattern{
	{"failure:", OutcomeFailed},
	{"syntax error", OutcomeFailed},
	{"bad command name", OutcomeFailed},
	{"expected end of command", OutcomeFailed},
	{"invalid value", OutcomeFailed},
	{"input does not match any value", OutcomeFailed},
	{"no such item", OutcomeFailed},
	{"ambiguous value", OutcomeFailed},
	{"not enough permissions", OutcomeFailed},
	{"interrupted", OutcomeFailed},
	{"action timed out", OutcomeFailed},
}

// Interpret classifies a device reply. Absent any failure pattern the reply
// is success: the CLI prints nothing for most accepted commands.
func Interpret(output string) Outcome {
	return InterpretWith(resultPatterns, output)
}

// InterpretWith classifies output against an explicit pattern table.
// Matching is case-insensitive, first match wins.
func InterpretWith(patterns []ResultPattern, output string) Outcome {
	lower := strings.ToLower(output)
	for _, p := range patterns {
		if strings.Contains(lower, p.Substring) {
			return p.Outcome
		}
	}
	return OutcomeOK
}

// Patterns returns a copy of the default pattern table for inspection.
func Patterns() []ResultPattern {
	out := make([]ResultPattern, len(resultPatterns))
	copy(out, resultPatterns)
	return out
}
