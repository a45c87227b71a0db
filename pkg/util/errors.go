// Package util provides utility functions and common error types.
package util

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the engine's failure taxonomy
var (
	ErrConnection            = errors.New("connection error")
	ErrCommandRejected       = errors.New("command rejected by policy")
	ErrCommandFailed         = errors.New("command failed on device")
	ErrTransactionRolledBack = errors.New("transaction rolled back")
	ErrTimeout               = errors.New("deadline exceeded")
	ErrNotConnected          = errors.New("device not connected")
	ErrDeviceLocked          = errors.New("device locked by another holder")
	ErrInvalidConfig         = errors.New("invalid configuration")
	ErrValidationFailed      = errors.New("validation failed")
)

// ConnectionError represents a failed or lost connection after retries
type ConnectionError struct {
	Device   string
	Attempts int
	Cause    error
}

func (e *ConnectionError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("connection to %s failed after %d attempts: %v", e.Device, e.Attempts, e.Cause)
	}
	return fmt.Sprintf("connection to %s failed: %v", e.Device, e.Cause)
}

func (e *ConnectionError) Unwrap() error {
	return ErrConnection
}

// NewConnectionError creates a connection error
func NewConnectionError(device string, attempts int, cause error) *ConnectionError {
	return &ConnectionError{Device: device, Attempts: attempts, Cause: cause}
}

// CommandError represents a device-reported command failure
type CommandError struct {
	Device  string
	Command string
	Output  string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command failed on %s: %s", e.Device, e.Command)
	if e.Output != "" {
		msg += " (" + strings.TrimSpace(e.Output) + ")"
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return ErrCommandFailed
}

// NewCommandError creates a command error
func NewCommandError(device, command, output string) *CommandError {
	return &CommandError{Device: device, Command: command, Output: output}
}

// RollbackError reports a safe-mode transaction that was reverted.
// Attempted lists the commands issued before the failure, in order;
// FailedCommand is the one that triggered the rollback ("" when the
// connectivity probe failed after all commands were applied).
type RollbackError struct {
	TransactionID string
	Device        string
	FailedCommand string
	Attempted     []string
	Cause         error
}

func (e *RollbackError) Error() string {
	if e.FailedCommand != "" {
		return fmt.Sprintf("transaction %s on %s rolled back: command '%s' failed: %v",
			e.TransactionID, e.Device, e.FailedCommand, e.Cause)
	}
	return fmt.Sprintf("transaction %s on %s rolled back: %v", e.TransactionID, e.Device, e.Cause)
}

func (e *RollbackError) Unwrap() error {
	return ErrTransactionRolledBack
}

// RejectionError represents a policy refusal (not a fault)
type RejectionError struct {
	Command string
	Reason  string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("rejected '%s': %s", e.Command, e.Reason)
}

func (e *RejectionError) Unwrap() error {
	return ErrCommandRejected
}

// NewRejectionError creates a rejection error
func NewRejectionError(command, reason string) *RejectionError {
	return &RejectionError{Command: command, Reason: reason}
}

// ValidationError represents one or more validation failures
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "validation failed: " + e.Errors[0]
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a validation error from messages
func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Errors: messages}
}

// ValidationBuilder helps accumulate validation errors
type ValidationBuilder struct {
	errors []string
}

// Add adds an error message if condition is false
func (v *ValidationBuilder) Add(condition bool, message string) *ValidationBuilder {
	if !condition {
		v.errors = append(v.errors, message)
	}
	return v
}

// AddError adds an error message unconditionally
func (v *ValidationBuilder) AddError(message string) *ValidationBuilder {
	v.errors = append(v.errors, message)
	return v
}

// AddErrorf adds a formatted error message
func (v *ValidationBuilder) AddErrorf(format string, args ...interface{}) *ValidationBuilder {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
	return v
}

// HasErrors returns true if there are validation errors
func (v *ValidationBuilder) HasErrors() bool {
	return len(v.errors) > 0
}

// Build returns the validation error or nil if no errors
func (v *ValidationBuilder) Build() error {
	if len(v.errors) == 0 {
		return nil
	}
	return &ValidationError{Errors: v.errors}
}
