package engine

import (
	"fmt"
	"strings"
)

// Preview renders a textual explanation of what executing the command would
// do, without any network I/O. Used on explicit request and substituted for
// HIGH-risk commands under global dry-run mode.
func Preview(device, text string, tier RiskTier) string {
	path, verb, args := splitCommand(text)

	var b strings.Builder
	fmt.Fprintf(&b, "DRY RUN — no commands sent to %s\n", device)
	fmt.Fprintf(&b, "  command: %s\n", strings.TrimSpace(text))
	fmt.Fprintf(&b, "  risk:    %s — %s\n", tier, tierSafeguard(tier))
	fmt.Fprintf(&b, "  action:  %s", describeAction(path, verb, args))
	return b.String()
}

func tierSafeguard(tier RiskTier) string {
	switch tier {
	case TierLow:
		return "read-only, executes directly"
	case TierMedium:
		return "mutating, requires operator approval"
	case TierHigh:
		return "requires approval and a reversible safe-mode transaction"
	}
	return "unknown"
}

// describeAction derives a one-line explanation from the verb and path.
// The grammar stays opaque: this is phrasing, not parsing.
func describeAction(path, verb, args string) string {
	target := strings.TrimPrefix(path, "/")
	if target == "" {
		target = "device"
	}

	var phrase string
	switch verb {
	case "add":
		phrase = fmt.Sprintf("would create a %s entry", target)
	case "set":
		phrase = fmt.Sprintf("would modify %s", target)
	case "remove":
		phrase = fmt.Sprintf("would remove a %s entry", target)
	case "enable", "disable":
		phrase = fmt.Sprintf("would %s %s", verb, target)
	case "print", "get", "export", "find", "monitor":
		phrase = fmt.Sprintf("would read %s", target)
	case "":
		phrase = fmt.Sprintf("would invoke %s", target)
	default:
		phrase = fmt.Sprintf("would run '%s' on %s", verb, target)
	}

	if args != "" {
		phrase += fmt.Sprintf(" (%s)", args)
	}
	return phrase
}
