// Package audit provides audit logging for workflow executions.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Event records one workflow execution: what was submitted, how it was
// classified, and how it ended.
type Event struct {
	ID            string        `json:"id"`
	Timestamp     time.Time     `json:"timestamp"`
	User          string        `json:"user"`
	Device        string        `json:"device"`
	Command       string        `json:"command"`
	RiskTier      string        `json:"risk_tier"`
	Status        string        `json:"status"`
	Message       string        `json:"message,omitempty"`
	TransactionID string        `json:"transaction_id,omitempty"`
	Approved      bool          `json:"approved"`
	DryRun        bool          `json:"dry_run"`
	Duration      time.Duration `json:"duration"`
}

// Filter defines criteria for querying audit events
type Filter struct {
	Device      string
	User        string
	Status      string
	RiskTier    string
	StartTime   time.Time
	EndTime     time.Time
	FailureOnly bool
	Limit       int
	Offset      int
}

// NewEvent creates a new audit event
func NewEvent(user, device, command string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		User:      user,
		Device:    device,
		Command:   command,
	}
}

// WithOutcome sets the classification and result fields
func (e *Event) WithOutcome(tier, status, message string) *Event {
	e.RiskTier = tier
	e.Status = status
	e.Message = message
	return e
}

// WithTransaction sets the safe-mode transaction id
func (e *Event) WithTransaction(id string) *Event {
	e.TransactionID = id
	return e
}

// WithApproved marks whether the operator approved the command
func (e *Event) WithApproved(approved bool) *Event {
	e.Approved = approved
	return e
}

// WithDryRun marks the event as a preview-only execution
func (e *Event) WithDryRun(dryRun bool) *Event {
	e.DryRun = dryRun
	return e
}

// WithDuration sets the workflow duration
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}
