// Package engine implements the command safety and workflow engine: risk
// classification, approval gating, idempotent creates, dry-run previews, and
// safe-mode transactions for configuration commands sent to router CLIs.
//
// Callers submit raw command text and receive a structured WorkflowResult;
// all decision logic lives here, none in the callers.
package engine

import (
	"sort"
	"strings"
	"time"
)

// RiskTier classifies a command by potential blast radius. Tiers are ordered:
// a higher tier demands a stronger safeguard.
type RiskTier int

const (
	// TierLow is read-only: always direct-executed, no approval needed.
	TierLow RiskTier = iota
	// TierMedium mutates recoverable state: requires operator approval.
	TierMedium
	// TierHigh can sever management connectivity or destroy unrecoverable
	// state: requires approval and a reversible safe-mode transaction.
	TierHigh
)

func (t RiskTier) String() string {
	switch t {
	case TierLow:
		return "LOW"
	case TierMedium:
		return "MEDIUM"
	case TierHigh:
		return "HIGH"
	}
	return "UNKNOWN"
}

// Status is the terminal outcome of a workflow.
type Status string

const (
	StatusSuccess    Status = "SUCCESS"
	StatusFailed     Status = "FAILED"
	StatusRolledBack Status = "ROLLED_BACK"
	StatusRejected   Status = "REJECTED"
)

// Command is one configuration command bound for a device. Text is opaque
// vendor CLI syntax; the engine never parses beyond path and verb.
type Command struct {
	Device string
	Text   string
	Tier   RiskTier

	// IdempotencyKey is set for create operations gated by the
	// idempotency checker; empty otherwise.
	IdempotencyKey string
}

// WorkflowResult is the uniform result every execution path returns.
type WorkflowResult struct {
	Status  Status        `json:"status"`
	Message string        `json:"message"`
	Elapsed time.Duration `json:"elapsed"`
	Tier    RiskTier      `json:"-"`
	TierStr string        `json:"risk_tier"`
	Output  string        `json:"output,omitempty"`

	// TransactionID identifies the safe-mode transaction, when one ran.
	TransactionID string `json:"transaction_id,omitempty"`

	// Attempted lists the commands issued before a rollback, in order.
	Attempted []string `json:"attempted,omitempty"`

	// DuplicateID is the id of a pre-existing equivalent resource when the
	// idempotency checker skipped a create.
	DuplicateID string `json:"duplicate_id,omitempty"`

	// IdempotencyKey is the key the checker gated on, for create workflows.
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	// DryRun marks results produced without any remote call.
	DryRun bool `json:"dry_run,omitempty"`
}

// OK reports whether the workflow ended in success.
func (r *WorkflowResult) OK() bool {
	return r.Status == StatusSuccess
}

// IdempotencyKey derives a key from caller-declared identifying properties
// only. Derived or generated values must not be included: the key exists to
// recognize "the same resource as declared", not "the same device state".
func IdempotencyKey(resourceType string, props map[string]string) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(resourceType)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(props[k])
	}
	return b.String()
}

// splitCommand breaks a command line into its path (leading bare words),
// verb (last bare word before key=value arguments), and argument tail.
// For "/ip address add address=10.0.0.1/24" it returns
// ("/ip address", "add", "address=10.0.0.1/24").
func splitCommand(text string) (path, verb, args string) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return "", "", ""
	}

	// Bare words up to the first key=value token form the path+verb.
	bare := 0
	for bare < len(fields) && !strings.Contains(fields[bare], "=") {
		bare++
	}

	if bare == 0 {
		return "", "", strings.Join(fields, " ")
	}

	verb = fields[bare-1]
	path = strings.Join(fields[:bare-1], " ")
	args = strings.Join(fields[bare:], " ")

	// A bare path with no verb ("/ip address") has no verb token.
	if path == "" {
		path = verb
		verb = ""
	}
	return path, verb, args
}
