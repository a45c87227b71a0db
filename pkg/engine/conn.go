package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rosflow-network/rosflow/pkg/inventory"
	"github.com/rosflow-network/rosflow/pkg/transport"
	"github.com/rosflow-network/rosflow/pkg/util"
)

// SessionState tracks the lifecycle of a pooled device session.
type SessionState int

const (
	StateConnecting SessionState = iota
	StateReady
	StateDegraded
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateReady:
		return "READY"
	case StateDegraded:
		return "DEGRADED"
	case StateClosed:
		return "CLOSED"
	}
	return "UNKNOWN"
}

// Session is one authenticated channel to a device, owned exclusively by the
// Manager. Its mutex serializes in-flight commands: a session serves at most
// one command at a time so concurrent callers never interleave half-applied
// configuration on a device.
type Session struct {
	Device string

	mu        sync.Mutex
	state     SessionState
	transport transport.Transport
}

// State returns the session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Manager owns the session pool: one session per device, created on first
// use, reused across calls, closed on shutdown. Reconnects run under a
// bounded retry budget with exponential backoff.
type Manager struct {
	inv    *inventory.Inventory
	dialer transport.Dialer

	retryBudget int
	baseBackoff time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a connection manager over the given inventory.
func NewManager(inv *inventory.Inventory, dialer transport.Dialer) *Manager {
	return &Manager{
		inv:         inv,
		dialer:      dialer,
		retryBudget: inv.Engine.RetryBudget,
		baseBackoff: 500 * time.Millisecond,
		sessions:    make(map[string]*Session),
	}
}

// Acquire returns the device's session with exclusive use of it. The caller
// must hand the session back via Release (keep pooled) or Drop (discard and
// force a reconnect on the next Acquire). If the session is not connected,
// Acquire dials it, retrying with backoff up to the retry budget.
func (m *Manager) Acquire(ctx context.Context, device string) (*Session, error) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, fmt.Errorf("connection manager is shut down: %w", util.ErrNotConnected)
		}
		sess, ok := m.sessions[device]
		if !ok {
			sess = &Session{Device: device, state: StateConnecting}
			m.sessions[device] = sess
		}
		m.mu.Unlock()

		// Exclusive use begins here; connect (if needed) happens under the
		// session lock so a reconnect never races a command.
		sess.mu.Lock()

		// The session may have been dropped while this caller waited on its
		// mutex. Reconnecting such an orphan would open a second live channel
		// to the device alongside the pooled one, so re-look-up instead.
		m.mu.Lock()
		pooled := m.sessions[device] == sess
		m.mu.Unlock()
		if !pooled {
			sess.mu.Unlock()
			continue
		}

		if sess.state != StateReady {
			if err := m.connect(ctx, sess); err != nil {
				sess.mu.Unlock()
				return nil, err
			}
		}
		return sess, nil
	}
}

// Release hands a session acquired with Acquire back to the pool.
func (m *Manager) Release(sess *Session) {
	sess.mu.Unlock()
}

// Drop closes a held session and removes it from the pool; the next Acquire
// for the device dials a fresh one. Used when the transport is suspect —
// after an I/O failure, or deliberately to trigger a safe-mode revert.
func (m *Manager) Drop(sess *Session) {
	if sess.transport != nil {
		sess.transport.Close()
		sess.transport = nil
	}
	sess.state = StateClosed

	m.mu.Lock()
	if m.sessions[sess.Device] == sess {
		delete(m.sessions, sess.Device)
	}
	m.mu.Unlock()

	sess.mu.Unlock()
	util.WithDevice(sess.Device).Debug("Session dropped")
}

// connect dials the device with bounded retries and exponential backoff.
// Caller holds sess.mu.
func (m *Manager) connect(ctx context.Context, sess *Session) error {
	dev, err := m.inv.Device(sess.Device)
	if err != nil {
		return err
	}
	password, err := dev.ResolvePassword()
	if err != nil {
		return err
	}

	sess.state = StateConnecting

	var lastErr error
	for attempt := 1; attempt <= m.retryBudget; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, dev.ConnectTimeout)
		tr, err := m.dialer.Dial(dialCtx, dev.Host, dev.Port, dev.User, password)
		cancel()
		if err == nil {
			sess.transport = tr
			sess.state = StateReady
			util.WithDevice(sess.Device).Info("Connected")
			return nil
		}
		lastErr = err
		util.WithDevice(sess.Device).Warnf("Connect attempt %d/%d failed: %v", attempt, m.retryBudget, err)

		if attempt < m.retryBudget {
			backoff := m.baseBackoff << (attempt - 1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				sess.state = StateDegraded
				return util.NewConnectionError(sess.Device, attempt, ctx.Err())
			}
		}
	}

	sess.state = StateDegraded
	return util.NewConnectionError(sess.Device, m.retryBudget, lastErr)
}

// Run executes one command line on a held session and interprets the reply
// through the centralized pattern table. Transport failures degrade the
// session; device-reported failures do not.
func (m *Manager) Run(ctx context.Context, sess *Session, command string) (string, error) {
	if sess.state != StateReady {
		return "", fmt.Errorf("session to %s is %s: %w", sess.Device, sess.state, util.ErrNotConnected)
	}

	dev, err := m.inv.Device(sess.Device)
	if err != nil {
		return "", err
	}

	execCtx, cancel := context.WithTimeout(ctx, dev.ExecTimeout)
	defer cancel()

	out, err := sess.transport.Run(execCtx, command)
	if err != nil {
		sess.state = StateDegraded
		if errors.Is(err, util.ErrTimeout) || errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("executing on %s: %w", sess.Device, util.ErrTimeout)
		}
		return "", util.NewConnectionError(sess.Device, 1, err)
	}

	if transport.Interpret(out) == transport.OutcomeFailed {
		return out, util.NewCommandError(sess.Device, command, out)
	}
	return out, nil
}

// SendControl writes raw control bytes on a held session.
func (m *Manager) SendControl(ctx context.Context, sess *Session, b []byte) (string, error) {
	if sess.state != StateReady {
		return "", fmt.Errorf("session to %s is %s: %w", sess.Device, sess.state, util.ErrNotConnected)
	}

	out, err := sess.transport.SendControl(ctx, b)
	if err != nil {
		sess.state = StateDegraded
		return "", util.NewConnectionError(sess.Device, 1, err)
	}
	return out, nil
}

// Execute acquires the device's session, runs one command, and releases it.
// A session degraded by a transport failure is dropped so the next call
// reconnects.
func (m *Manager) Execute(ctx context.Context, device, command string) (string, error) {
	sess, err := m.Acquire(ctx, device)
	if err != nil {
		return "", err
	}

	out, err := m.Run(ctx, sess, command)
	if sess.state != StateReady {
		m.Drop(sess)
	} else {
		m.Release(sess)
	}
	return out, err
}

// Close shuts down every pooled session.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.mu.Lock()
		if s.transport != nil {
			s.transport.Close()
			s.transport = nil
		}
		s.state = StateClosed
		s.mu.Unlock()
	}
}
