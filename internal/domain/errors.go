package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for simple conditions without extra context.
var (
	ErrDescriptionNotFound = errors.New("description not found")
	ErrStateNotFound       = errors.New("persisted state not found")
	ErrStoreNotReady       = errors.New("store is not loaded")
)

// ValidationError is returned when an allocation input is rejected.
// Allowed is set when the value failed an allow-list check.
type ValidationError struct {
	Field   string
	Value   string
	Allowed []string
	Reason  string
}

func (e *ValidationError) Error() string {
	if len(e.Allowed) > 0 {
		return fmt.Sprintf("invalid %s %q: must be one of [%s]", e.Field, e.Value, strings.Join(e.Allowed, ", "))
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// CorruptionError is returned when a persisted resource exists but cannot be
// parsed or holds an invalid state.
type CorruptionError struct {
	Resource string
	Err      error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("corrupt state in %s: %v", e.Resource, e.Err)
}

func (e *CorruptionError) Unwrap() error {
	return e.Err
}

// IOError is returned when reading or writing a durable resource fails.
type IOError struct {
	Op       string // "read", "write" or "export"
	Resource string
	Err      error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Resource, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// TransitionError is returned when a lifecycle transition is not allowed.
type TransitionError struct {
	Event   Event
	Current Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %q is not valid from state %q", e.Event, e.Current)
}
