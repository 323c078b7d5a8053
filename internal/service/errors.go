// Package service holds the booking rules: inventory, the showing scheduler,
// the seat ledger, the payment workflow and user accounts. Handlers pass the
// calling principal explicitly; nothing here reads request state.
package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// NonFieldErrors is the key under which errors not tied to one field are
// reported.
const NonFieldErrors = "non_field_errors"

var (
	// ErrNotFound means the record does not exist or is not visible to the
	// caller. The two cases are deliberately indistinguishable.
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("permission denied")
	ErrUnauthenticated = errors.New("authentication required")
)

// ValidationError collects messages per JSON field name.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

func (e *ValidationError) AddNonField(msg string) {
	e.Add(NonFieldErrors, msg)
}

// Merge copies every message of other into e.
func (e *ValidationError) Merge(other *ValidationError) {
	if other == nil {
		return
	}
	for f, msgs := range other.Fields {
		for _, m := range msgs {
			e.Add(f, m)
		}
	}
}

func (e *ValidationError) Has(field string) bool {
	return len(e.Fields[field]) > 0
}

func (e *ValidationError) Empty() bool {
	return len(e.Fields) == 0
}

// Err returns e as an error, or nil when nothing was collected.
func (e *ValidationError) Err() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], "; "))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func fieldError(field, msg string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, msg)
	return v
}

// LockedError reports a record that cannot be changed in its current state.
type LockedError struct {
	Reason string
}

func (e *LockedError) Error() string { return e.Reason }

// AlreadyPaidError is returned when payment is requested twice.
type AlreadyPaidError struct {
	TicketID uint64
}

func (e *AlreadyPaidError) Error() string {
	return fmt.Sprintf("Ticket %d is paid already", e.TicketID)
}
