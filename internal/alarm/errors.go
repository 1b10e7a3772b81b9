package alarm

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stop when neither the store nor the scheduler
// knows the key.
var ErrNotFound = errors.New("alarm not found")

// ValidationError reports malformed caller input.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func invalid(field, value, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// PersistenceError wraps a store failure. The in-memory schedule is left
// consistent with what the store holds.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return "persist " + e.Op + ": " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }

// DeliveryError is reported (logged and published) when a fired alarm could not
// reach its owner. It never affects scheduling.
type DeliveryError struct {
	Owner int64
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %d: %v", e.Owner, e.Err)
}
func (e *DeliveryError) Unwrap() error { return e.Err }

// RestoreEntryError describes one stored record that restore skipped.
type RestoreEntryError struct {
	Index int
	Entry string
	Err   error
}

func (e *RestoreEntryError) Error() string {
	return fmt.Sprintf("restore entry %d (%s): %v", e.Index, e.Entry, e.Err)
}
func (e *RestoreEntryError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
