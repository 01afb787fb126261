package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the registry. Structured errors below unwrap to these so
// callers can branch with errors.Is regardless of the context they carry.
var (
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrInvalidRequestState    = errors.New("invalid transfer request state")
	ErrUnknownOwner           = errors.New("unknown owner")
	ErrUnknownAnimal          = errors.New("unknown animal")
	ErrUnknownTransferRequest = errors.New("unknown transfer request")
	ErrDuplicateBiometricHash = errors.New("duplicate biometric hash")
	ErrDuplicateSerialNumber  = errors.New("duplicate serial number")
	ErrInvalidRole            = errors.New("invalid role")
	// ErrPersistenceWrite is logged by durable stores and never returned to engine callers.
	ErrPersistenceWrite = errors.New("persistence write failure")
)

// TransitionError reports an animal whose current status does not permit the requested event.
type TransitionError struct {
	AnimalID string
	Event    string
	From     AnimalStatus
	Required AnimalStatus
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("cannot %s animal %s: status is %s, requires %s", e.Event, e.AnimalID, e.From, e.Required)
}

// Unwrap exposes ErrInvalidStateTransition.
func (e TransitionError) Unwrap() error { return ErrInvalidStateTransition }

// RequestStateError reports a transfer request that is no longer pending.
type RequestStateError struct {
	RequestID string
	Status    TransferStatus
}

func (e RequestStateError) Error() string {
	return fmt.Sprintf("transfer request %s is %s, not %s", e.RequestID, e.Status, TransferPending)
}

// Unwrap exposes ErrInvalidRequestState.
func (e RequestStateError) Unwrap() error { return ErrInvalidRequestState }

// NotFoundError is returned when a referenced record does not exist.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// Unwrap maps the missing entity onto its sentinel.
func (e NotFoundError) Unwrap() error {
	switch e.Entity {
	case EntityUser:
		return ErrUnknownOwner
	case EntityAnimal:
		return ErrUnknownAnimal
	case EntityTransferRequest:
		return ErrUnknownTransferRequest
	}
	return nil
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return fmt.Sprintf("transaction blocked by rule %s: %s", v.Rule, v.Message)
		}
	}
	return "transaction blocked by rules"
}
