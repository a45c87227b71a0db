// Package transport provides the line-oriented CLI channel to a router and
// the centralized interpretation of its textual replies. The command grammar
// itself is opaque to this package: it writes lines, reads until the prompt,
// and classifies the reply against an ordered pattern table.
package transport

import "context"

// Transport is one interactive CLI session to a device. A Transport is not
// safe for concurrent use; callers serialize access per device.
type Transport interface {
	// Run writes a command line and returns the device's reply up to the
	// next prompt.
	Run(ctx context.Context, line string) (string, error)

	// SendControl writes raw control bytes (no trailing newline) and returns
	// the reply. Used for the device's safe-mode toggle, which is a control
	// character rather than a command line.
	SendControl(ctx context.Context, b []byte) (string, error)

	// Close terminates the session. Closing a session with an uncommitted
	// safe-mode transaction causes the device to revert it.
	Close() error
}

// Dialer opens a Transport to a device. Implementations: SSH (production),
// scripted fakes (tests).
type Dialer interface {
	Dial(ctx context.Context, host string, port int, user, password string) (Transport, error)
}
