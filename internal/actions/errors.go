package actions

import (
	"errors"
	"fmt"
)

// ErrUnknownAction matches any *UnknownActionError via errors.Is.
var ErrUnknownAction = errors.New("unknown action")

// ErrNotConfigured is returned by handlers whose provider was not
// supplied at construction.
var ErrNotConfigured = errors.New("provider not configured")

// UnknownActionError is returned when an action name has no entry in
// the routing table.
type UnknownActionError struct {
	Name string
}

// Error implements the error interface.
func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("Handler for action %s not implemented", e.Name)
}

// Is reports a match against ErrUnknownAction.
func (e *UnknownActionError) Is(target error) bool {
	return target == ErrUnknownAction
}

// ProviderError wraps a capability failure, including recovered panics.
type ProviderError struct {
	Action string
	Err    error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("action %s: %v", e.Action, e.Err)
}

// Unwrap returns the provider's error.
func (e *ProviderError) Unwrap() error { return e.Err }

// MalformedActionError is returned for an action the model proposed in
// a shape that could not be decoded. Name is empty when even the action
// name was unreadable.
type MalformedActionError struct {
	Name   string
	Reason string
}

// Error implements the error interface.
func (e *MalformedActionError) Error() string {
	if e.Name == "" {
		return "malformed action: " + e.Reason
	}
	return fmt.Sprintf("malformed action %s: %s", e.Name, e.Reason)
}

// Rejected is the failed Result for an action that never reached a
// handler.
func Rejected(err *MalformedActionError) Result {
	return fail(Result{Action: err.Name}, err)
}
