package casefile

import (
	"errors"
	"fmt"
)

// Error represents a failure detected while loading, mutating or persisting a
// case.
//
// Errors include:
//   - Not found: no record with the requested id exists
//   - Lock timeout: the per-case lock could not be acquired in time
//   - Precondition failed: a section the operation reads is missing
//   - Terminal state violation: the record is already decided or withdrawn
//   - Invalid transition: the requested status edge does not exist
//   - Transient / permanent external failure: a collaborator call failed
//   - Persist failure: the store rejected the save
//   - Conflict: the record changed while the lock was released
//
// Error carries structured fields so callers can branch on Kind without
// parsing messages.
type Error struct {
	// Kind identifies the error category.
	Kind ErrorKind

	// Op is the operation that produced the error, when known.
	Op string

	// CaseID identifies the affected case.
	CaseID string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorKind categorizes case errors.
type ErrorKind string

const (
	// KindNotFound indicates no record exists for the id.
	KindNotFound ErrorKind = "NOT_FOUND"

	// KindLockTimeout indicates the per-case lock was not acquired in time.
	KindLockTimeout ErrorKind = "LOCK_TIMEOUT"

	// KindPrecondition indicates a required section is missing.
	KindPrecondition ErrorKind = "PRECONDITION_FAILED"

	// KindTerminalState indicates a mutation was attempted on a terminal record.
	KindTerminalState ErrorKind = "TERMINAL_STATE_VIOLATION"

	// KindInvalidTransition indicates a status edge outside the state machine.
	KindInvalidTransition ErrorKind = "INVALID_TRANSITION"

	// KindTransient indicates a retryable collaborator failure.
	KindTransient ErrorKind = "TRANSIENT_EXTERNAL_FAILURE"

	// KindPermanent indicates a non-retryable collaborator failure.
	KindPermanent ErrorKind = "PERMANENT_EXTERNAL_FAILURE"

	// KindPersist indicates the store failed to save or read the record.
	KindPersist ErrorKind = "PERSIST_FAILURE"

	// KindConflict indicates the record changed between snapshot and commit.
	KindConflict ErrorKind = "CONFLICT"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	switch {
	case e.CaseID != "" && e.Op != "":
		return fmt.Sprintf("%s: %s (case=%s, op=%s)", e.Kind, msg, e.CaseID, e.Op)
	case e.CaseID != "":
		return fmt.Sprintf("%s: %s (case=%s)", e.Kind, msg, e.CaseID)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the engine may retry the operation that failed.
func (k ErrorKind) Retryable() bool {
	return k == KindTransient || k == KindConflict
}

// NewError creates an Error with a formatted message.
func NewError(kind ErrorKind, caseID, format string, args ...any) *Error {
	return &Error{Kind: kind, CaseID: caseID, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to err. If err already is an *Error its kind wins and
// only missing case/op fields are filled in.
func Wrap(kind ErrorKind, caseID, op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		out := *ce
		if out.CaseID == "" {
			out.CaseID = caseID
		}
		if out.Op == "" {
			out.Op = op
		}
		return &out
	}
	return &Error{Kind: kind, CaseID: caseID, Op: op, Err: err}
}

// Transient marks a collaborator failure as retryable.
func Transient(format string, args ...any) error {
	return &Error{Kind: KindTransient, Message: fmt.Sprintf(format, args...)}
}

// Permanent marks a collaborator failure as non-retryable.
func Permanent(format string, args ...any) error {
	return &Error{Kind: KindPermanent, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err. Errors without a kind are treated as
// permanent external failures. Uses errors.As to handle wrapped errors.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindPermanent
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind == kind
}

// IsNotFound returns true if the error is a not-found error.
func IsNotFound(err error) bool {
	return IsKind(err, KindNotFound)
}

// IsTransient returns true if the error may succeed on retry.
func IsTransient(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind.Retryable()
}
