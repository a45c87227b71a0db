package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/rosflow-network/rosflow/pkg/util"
)

// Checker detects a pre-existing equivalent resource before a create
// operation, by issuing a LOW-risk read through the connection manager and
// comparing only the caller-declared identifying properties.
type Checker struct {
	conn *Manager
}

// NewChecker creates an idempotency checker.
func NewChecker(conn *Manager) *Checker {
	return &Checker{conn: conn}
}

// ExistingID looks for a resource of resourceType (a command path such as
// "/ip address") whose declared properties all match. It returns the
// existing item's id and true when found, or "" and false otherwise.
//
// A failed check is an error for the caller to log and ignore: the contract
// is "proceed with create on doubt", never rollback.
func (c *Checker) ExistingID(ctx context.Context, device, resourceType string, props map[string]string) (string, bool, error) {
	if len(props) == 0 {
		return "", false, fmt.Errorf("idempotency check on %s needs declared properties", resourceType)
	}

	out, err := c.conn.Execute(ctx, device, buildQuery(resourceType, props))
	if err != nil {
		return "", false, fmt.Errorf("idempotency check for %s on %s: %w", resourceType, device, err)
	}

	id, ok := parseFirstItemID(out)
	if ok {
		util.WithDevice(device).Debugf("Found existing %s item %s", resourceType, id)
	}
	return id, ok, nil
}

// buildQuery renders the read used to probe for duplicates, e.g.
// `/ip address print terse where address=10.0.0.1/24 && interface=ether1`.
// Property order is sorted so the query is stable.
func buildQuery(resourceType string, props map[string]string) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]string, len(keys))
	for i, k := range keys {
		conds[i] = fmt.Sprintf("%s=%s", k, quoteValue(props[k]))
	}
	return fmt.Sprintf("%s print terse where %s", resourceType, strings.Join(conds, " && "))
}

// quoteValue wraps values containing whitespace in double quotes.
func quoteValue(v string) string {
	if strings.IndexFunc(v, unicode.IsSpace) >= 0 {
		return `"` + v + `"`
	}
	return v
}

// parseFirstItemID extracts the item number from the first entry of terse
// print output. Lines look like:
//
//	0   address=10.0.0.1/24 network=10.0.0.0 interface=ether1
//	1 X address=10.9.0.1/24 network=10.9.0.0 interface=ether9
//
// The leading token is the item number; single-letter flags may follow it.
func parseFirstItemID(out string) (string, bool) {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if isItemNumber(fields[0]) {
			return fields[0], true
		}
	}
	return "", false
}

func isItemNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
