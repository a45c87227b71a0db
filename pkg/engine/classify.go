package engine

import "strings"

// Rule assigns a risk tier to commands whose path matches one of its
// prefixes. Rules are kept as data so the policy is auditable and testable
// in isolation from the engine.
type Rule struct {
	Name     string
	Prefixes []string
	Tier     RiskTier
}

// readVerbs are the verbs that never mutate device state. A command ending
// in one of these is LOW regardless of path: "/ip firewall filter print" is
// a read even though "/ip firewall" writes are HIGH.
var readVerbs = map[string]bool{
	"print":   true,
	"export":  true,
	"get":     true,
	"find":    true,
	"monitor": true,
}

// diagnosticPrefixes are read-only diagnostic commands whose trailing token
// is an argument rather than a verb ("/ping 10.0.0.1").
var diagnosticPrefixes = []string{
	"/ping",
	"/tool ping",
	"/tool traceroute",
}

// DefaultRules is the HIGH-tier rule table: anything that can sever
// management connectivity or destroy unrecoverable state. Mutating commands
// matching none of these are MEDIUM.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: "management addressing",
			Tier: TierHigh,
			Prefixes: []string{
				"/ip address",
				"/ip route",
				"/ip service",
				"/routing",
			},
		},
		{
			Name: "firewall",
			Tier: TierHigh,
			Prefixes: []string{
				"/ip firewall",
			},
		},
		{
			Name: "interfaces",
			Tier: TierHigh,
			Prefixes: []string{
				"/interface",
			},
		},
		{
			Name: "credentials",
			Tier: TierHigh,
			Prefixes: []string{
				"/user",
				"/password",
			},
		},
		{
			Name: "system lifecycle",
			Tier: TierHigh,
			Prefixes: []string{
				"/system reboot",
				"/system shutdown",
				"/system reset-configuration",
				"/system backup",
				"/import",
			},
		},
		{
			Name: "unrecoverable flushes",
			Tier: TierHigh,
			Prefixes: []string{
				"/log",
				"/file remove",
			},
		},
	}
}

// Classifier maps a command to its risk tier. Pure and deterministic: no
// I/O, no device state.
type Classifier struct {
	rules []Rule
}

// NewClassifier creates a classifier with the default rule table.
func NewClassifier() *Classifier {
	return &Classifier{rules: DefaultRules()}
}

// NewClassifierWithRules creates a classifier with an explicit rule table.
// Rules are evaluated in order; on conflict the highest matching tier wins
// (fail-safe bias).
func NewClassifierWithRules(rules []Rule) *Classifier {
	return &Classifier{rules: rules}
}

// Classify returns the risk tier for a command.
//
// Read-only verbs short-circuit to LOW. Otherwise every rule is consulted
// and the highest matching tier wins; a mutating command matching no rule
// is MEDIUM.
func (c *Classifier) Classify(text string) RiskTier {
	path, verb, _ := splitCommand(text)
	if readVerbs[verb] {
		return TierLow
	}
	// A bare command like "/export" carries its verb as the last path word.
	if verb == "" {
		last := path
		if i := strings.LastIndex(path, " "); i >= 0 {
			last = path[i+1:]
		}
		if readVerbs[strings.TrimPrefix(last, "/")] {
			return TierLow
		}
	}

	full := path
	if verb != "" {
		full = path + " " + verb
	}
	for _, prefix := range diagnosticPrefixes {
		if strings.HasPrefix(full, prefix) {
			return TierLow
		}
	}

	tier := TierMedium
	for _, r := range c.rules {
		for _, prefix := range r.Prefixes {
			if strings.HasPrefix(full, prefix) && r.Tier > tier {
				tier = r.Tier
			}
		}
	}
	return tier
}

// Rules returns the classifier's rule table for inspection.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}
