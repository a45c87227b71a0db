package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rosflow-network/rosflow/pkg/util"
)

// TxnState is the lifecycle state of a safe-mode transaction.
type TxnState string

const (
	TxnOpen       TxnState = "OPEN"
	TxnVerifying  TxnState = "VERIFYING"
	TxnCommitted  TxnState = "COMMITTED"
	TxnRolledBack TxnState = "ROLLED_BACK"
	TxnExpired    TxnState = "EXPIRED"
)

// safeModeToggle is the device's native safe-mode control character
// (Ctrl-X). Sending it once enters safe mode; sending it again while in
// safe mode commits. Disconnecting without the second toggle makes the
// device revert everything issued since the first.
var safeModeToggle = []byte{0x18}

// Replies the device prints when the toggle is accepted.
const (
	safeModeTakenMarker    = "Safe Mode taken"
	safeModeReleasedMarker = "Safe Mode released"
)

// safeModeProbe is the LOW-risk read used to verify the session still has
// connectivity before committing.
const safeModeProbe = "/system identity print"

// Transaction is one safe-mode transaction: a batch of HIGH-risk commands
// bracketed by the device's reversible mode.
type Transaction struct {
	ID       string
	Device   string
	Start    time.Time
	Deadline time.Time

	// Issued lists the commands sent inside the transaction, in order.
	// After a rollback it is the partial list the caller receives.
	Issued []string

	State TxnState
}

// Controller runs safe-mode transactions. It relies on the device's own
// auto-revert-on-disconnect contract for the rollback itself: dropping the
// controlling session is the rollback, the controller never replays inverse
// commands.
type Controller struct {
	conn    *Manager
	timeout time.Duration
}

// NewController creates a safe-mode controller. timeout is the wall-clock
// transaction deadline, mirroring the device-side unattended expiry.
func NewController(conn *Manager, timeout time.Duration) *Controller {
	return &Controller{conn: conn, timeout: timeout}
}

// Run executes commands on one device inside a safe-mode transaction:
// enter, apply sequentially, verify connectivity, commit. The first failure
// during apply aborts immediately; any I/O error during apply or verify is
// treated as connectivity loss and rolls the transaction back by dropping
// the session. The returned Transaction always carries the final state and
// the issued-command list, also on error.
func (c *Controller) Run(ctx context.Context, device string, commands []string) (*Transaction, error) {
	if len(commands) == 0 {
		return nil, fmt.Errorf("safe-mode transaction on %s: no commands", device)
	}

	sess, err := c.conn.Acquire(ctx, device)
	if err != nil {
		return nil, err
	}

	txn := &Transaction{
		ID:     uuid.NewString(),
		Device: device,
		Start:  time.Now(),
		State:  TxnOpen,
	}
	log := util.WithTransaction(txn.ID).WithField("device", device)

	// The deadline is fixed before anything is issued; every remote call in
	// the transaction runs under it.
	txn.Deadline = txn.Start.Add(c.timeout)
	txnCtx, cancel := context.WithDeadline(ctx, txn.Deadline)
	defer cancel()

	// Enter. A failure here is a plain failure, not a rollback: nothing has
	// been issued yet, so there is nothing to revert.
	out, err := c.conn.SendControl(txnCtx, sess, safeModeToggle)
	if err != nil {
		if errors.Is(txnCtx.Err(), context.DeadlineExceeded) {
			txn.State = TxnExpired
		}
		c.conn.Drop(sess)
		return txn, fmt.Errorf("entering safe mode on %s: %w", device, err)
	}
	if !strings.Contains(out, safeModeTakenMarker) {
		c.conn.Drop(sess)
		return txn, util.NewCommandError(device, "safe-mode enter", out)
	}
	log.Debugf("Safe mode entered, deadline %s", txn.Deadline.Format(time.RFC3339))

	// Apply. Strictly sequential on the same session; first failure aborts.
	for _, cmd := range commands {
		txn.Issued = append(txn.Issued, cmd)
		if _, err := c.conn.Run(txnCtx, sess, cmd); err != nil {
			return txn, c.rollback(txn, sess, cmd, err)
		}
	}

	// Verify. The probe proves the management path survived the changes.
	txn.State = TxnVerifying
	if _, err := c.conn.Run(txnCtx, sess, safeModeProbe); err != nil {
		return txn, c.rollback(txn, sess, "", fmt.Errorf("connectivity probe: %w", err))
	}

	// Commit: second toggle releases safe mode, making the changes final.
	out, err = c.conn.SendControl(txnCtx, sess, safeModeToggle)
	if err != nil {
		return txn, c.rollback(txn, sess, "", fmt.Errorf("commit: %w", err))
	}
	if !strings.Contains(out, safeModeReleasedMarker) {
		return txn, c.rollback(txn, sess, "", util.NewCommandError(device, "safe-mode commit", out))
	}

	txn.State = TxnCommitted
	c.conn.Release(sess)
	log.Infof("Committed %d commands", len(txn.Issued))
	return txn, nil
}

// rollback drops the session, which is what actually reverts the device:
// safe mode discards uncommitted changes when its controlling session
// disconnects. The engine only mirrors that outcome in its own state.
func (c *Controller) rollback(txn *Transaction, sess *Session, failedCmd string, cause error) error {
	if errors.Is(cause, util.ErrTimeout) || errors.Is(cause, context.DeadlineExceeded) {
		txn.State = TxnExpired
	} else {
		txn.State = TxnRolledBack
	}

	c.conn.Drop(sess)

	util.WithTransaction(txn.ID).WithField("device", txn.Device).
		Warnf("Rolled back (%s) after %d commands: %v", txn.State, len(txn.Issued), cause)

	return &util.RollbackError{
		TransactionID: txn.ID,
		Device:        txn.Device,
		FailedCommand: failedCmd,
		Attempted:     append([]string(nil), txn.Issued...),
		Cause:         cause,
	}
}
