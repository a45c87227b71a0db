package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rosflow-network/rosflow/pkg/audit"
	"github.com/rosflow-network/rosflow/pkg/inventory"
	"github.com/rosflow-network/rosflow/pkg/lock"
	"github.com/rosflow-network/rosflow/pkg/transport"
	"github.com/rosflow-network/rosflow/pkg/util"
)

// Config assembles an Orchestrator. Inventory and Dialer are required;
// Locks and Audit are optional collaborators.
type Config struct {
	Inventory *inventory.Inventory
	Dialer    transport.Dialer

	// Locks is the optional distributed device-lock registry. When nil,
	// only this process's own per-device serialization applies.
	Locks *lock.Registry

	// Audit receives one event per workflow outcome. Nil disables auditing.
	Audit audit.Logger

	// User is recorded in audit events and as the lock holder identity.
	// Defaults to $USER.
	User string
}

// Orchestrator routes every command through the tier-appropriate safeguard
// path and returns a uniform WorkflowResult. It is the single entry point:
// callers never talk to the connection manager or the safe-mode controller
// directly.
type Orchestrator struct {
	inv        *inventory.Inventory
	conn       *Manager
	classifier *Classifier
	checker    *Checker
	safeMode   *Controller
	locks      *lock.Registry
	audit      audit.Logger
	user       string
}

// New creates an orchestrator from cfg.
func New(cfg Config) *Orchestrator {
	user := cfg.User
	if user == "" {
		user = os.Getenv("USER")
	}
	if user == "" {
		user = "unknown"
	}

	auditLog := cfg.Audit
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}

	conn := NewManager(cfg.Inventory, cfg.Dialer)
	return &Orchestrator{
		inv:        cfg.Inventory,
		conn:       conn,
		classifier: NewClassifier(),
		checker:    NewChecker(conn),
		safeMode:   NewController(conn, cfg.Inventory.Engine.SafeModeTimeout),
		locks:      cfg.Locks,
		audit:      auditLog,
		user:       user,
	}
}

// Classify returns the risk tier for a command without executing it.
func (o *Orchestrator) Classify(text string) RiskTier {
	return o.classifier.Classify(text)
}

// Execute runs one command on one device through the full safety workflow.
// It always returns a non-nil result; errors are folded into the result's
// status and message so batch callers get a uniform shape.
func (o *Orchestrator) Execute(ctx context.Context, device, command string, approved bool) *WorkflowResult {
	return o.execute(ctx, device, command, approved, "", nil)
}

// ExecuteCreate runs a create command gated by the idempotency checker:
// when a resource of resourceType already matches all declared props, the
// create is skipped and the result carries the existing item's id. A failed
// check degrades to proceed-with-warning, never to rollback.
func (o *Orchestrator) ExecuteCreate(ctx context.Context, device, command, resourceType string, props map[string]string, approved bool) *WorkflowResult {
	return o.execute(ctx, device, command, approved, resourceType, props)
}

func (o *Orchestrator) execute(ctx context.Context, device, command string, approved bool, resourceType string, props map[string]string) (result *WorkflowResult) {
	start := time.Now()
	cmd := Command{Device: device, Text: command, Tier: o.classifier.Classify(command)}
	if resourceType != "" {
		cmd.IdempotencyKey = IdempotencyKey(resourceType, props)
	}
	result = &WorkflowResult{
		Tier:           cmd.Tier,
		TierStr:        cmd.Tier.String(),
		IdempotencyKey: cmd.IdempotencyKey,
	}

	log := util.WithDevice(device).WithField("tier", cmd.Tier.String())

	// A panic anywhere below must surface as a FAILED result, not crash the
	// caller. Batch runs depend on this.
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Workflow panic: %v", r)
			result.Status = StatusFailed
			result.Message = fmt.Sprintf("internal error: %v", r)
		}
		result.Elapsed = time.Since(start)
		o.record(cmd, approved, result)
	}()

	// Approval gate before any remote call.
	if cmd.Tier > TierLow && !approved {
		result.Status = StatusRejected
		result.Message = util.NewRejectionError(command,
			fmt.Sprintf("%s-risk command requires --approve", cmd.Tier)).Error()
		log.Infof("Rejected unapproved command")
		return result
	}

	// Idempotency gate for declared creates.
	if cmd.IdempotencyKey != "" {
		if id, found := o.existingResource(ctx, device, resourceType, props); found {
			result.Status = StatusSuccess
			result.DuplicateID = id
			result.Message = fmt.Sprintf("%s already exists as item %s, create skipped", resourceType, id)
			return result
		}
	}

	// Global dry-run substitutes a preview for HIGH-risk execution.
	if cmd.Tier == TierHigh && o.inv.Engine.DryRun {
		result.Status = StatusSuccess
		result.DryRun = true
		result.Output = Preview(device, command, cmd.Tier)
		result.Message = "dry-run: no commands sent"
		return result
	}

	switch cmd.Tier {
	case TierLow, TierMedium:
		o.executeDirect(ctx, cmd, result)
	case TierHigh:
		o.executeSafeMode(ctx, cmd, result)
	}
	return result
}

// executeDirect runs LOW and approved MEDIUM commands straight through the
// connection manager.
func (o *Orchestrator) executeDirect(ctx context.Context, cmd Command, result *WorkflowResult) {
	out, err := o.conn.Execute(ctx, cmd.Device, cmd.Text)
	if err != nil {
		result.Status = StatusFailed
		result.Message = err.Error()
		var cmdErr *util.CommandError
		if errors.As(err, &cmdErr) {
			result.Output = cmdErr.Output
		}
		return
	}
	result.Status = StatusSuccess
	result.Output = out
	result.Message = "executed"
}

// executeSafeMode runs an approved HIGH command inside a safe-mode
// transaction, bracketed by the distributed device lock when one is
// configured.
func (o *Orchestrator) executeSafeMode(ctx context.Context, cmd Command, result *WorkflowResult) {
	if o.locks != nil {
		ttl := o.inv.Engine.SafeModeTimeout
		if err := o.locks.Acquire(ctx, cmd.Device, o.user, ttl); err != nil {
			result.Status = StatusFailed
			if errors.Is(err, util.ErrDeviceLocked) {
				result.Message = fmt.Sprintf("device %s is locked by another operator", cmd.Device)
			} else {
				result.Message = fmt.Sprintf("acquiring device lock: %v", err)
			}
			return
		}
		defer func() {
			if err := o.locks.Release(context.Background(), cmd.Device, o.user); err != nil {
				util.WithDevice(cmd.Device).Warnf("Releasing device lock: %v", err)
			}
		}()
	}

	txn, err := o.safeMode.Run(ctx, cmd.Device, []string{cmd.Text})
	if txn != nil {
		result.TransactionID = txn.ID
		result.Attempted = append([]string(nil), txn.Issued...)
	}
	if err == nil {
		result.Status = StatusSuccess
		result.Message = "committed"
		return
	}

	var rbErr *util.RollbackError
	switch {
	case errors.As(err, &rbErr):
		result.Status = StatusRolledBack
		if txn != nil && txn.State == TxnExpired {
			result.Message = fmt.Sprintf("transaction expired after %s, device reverted", o.inv.Engine.SafeModeTimeout)
		} else if rbErr.FailedCommand != "" {
			result.Message = fmt.Sprintf("rolled back: %q failed: %v", rbErr.FailedCommand, rbErr.Cause)
		} else {
			result.Message = fmt.Sprintf("rolled back: %v", rbErr.Cause)
		}
	default:
		result.Status = StatusFailed
		result.Message = err.Error()
	}
}

// existingResource wraps the idempotency check with its degrade-on-error
// contract: a check failure is logged and treated as not-found.
func (o *Orchestrator) existingResource(ctx context.Context, device, resourceType string, props map[string]string) (string, bool) {
	id, found, err := o.checker.ExistingID(ctx, device, resourceType, props)
	if err != nil {
		util.WithDevice(device).Warnf("Idempotency check failed, proceeding with create: %v", err)
		return "", false
	}
	return id, found
}

// record emits the audit event for a finished workflow. Audit failures are
// logged, never propagated: auditing must not break the workflow.
func (o *Orchestrator) record(cmd Command, approved bool, result *WorkflowResult) {
	event := audit.NewEvent(o.user, cmd.Device, cmd.Text).
		WithOutcome(result.TierStr, string(result.Status), result.Message).
		WithApproved(approved).
		WithDryRun(result.DryRun).
		WithDuration(result.Elapsed)
	if result.TransactionID != "" {
		event = event.WithTransaction(result.TransactionID)
	}
	if err := o.audit.Log(event); err != nil {
		util.Warnf("Writing audit event: %v", err)
	}
}

// Close releases every pooled session, the lock registry, and the audit log.
func (o *Orchestrator) Close() error {
	o.conn.Close()
	if o.locks != nil {
		o.locks.Close()
	}
	return o.audit.Close()
}
