package types

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is to classify; the concrete types below carry detail.
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyInState    = errors.New("already in state")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrValidation        = errors.New("validation failed")
	ErrExternalSync      = errors.New("external sync failed")
)

// NotFoundError is returned when a lookup by natural key or id misses.
type NotFoundError struct {
	Kind string // "prd", "epic", "task", "dependency"
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound builds a NotFoundError with a formatted key.
func NotFound(kind string, key any) error {
	return &NotFoundError{Kind: kind, Key: fmt.Sprint(key)}
}

// ValidationError rejects malformed input before any mutation happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// TransitionError describes a task status change the state machine refuses
// or one that would not change anything.
type TransitionError struct {
	Task string
	From TaskStatus
	To   TaskStatus
}

func (e *TransitionError) Error() string {
	if e.From == e.To {
		return fmt.Sprintf("task %s is already %s", e.Task, e.To)
	}
	return fmt.Sprintf("cannot move task %s from %s to %s", e.Task, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	if e.From == e.To {
		return target == ErrAlreadyInState
	}
	return target == ErrInvalidTransition
}

// SyncError wraps a failure talking to the external tracker.
type SyncError struct {
	Op    string
	Issue int64
	Err   error
}

func (e *SyncError) Error() string {
	if e.Issue > 0 {
		return fmt.Sprintf("sync %s #%d: %v", e.Op, e.Issue, e.Err)
	}
	return fmt.Sprintf("sync %s: %v", e.Op, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

func (e *SyncError) Is(target error) bool { return target == ErrExternalSync }

// IsNotFound reports whether err is, or wraps, a not-found error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
