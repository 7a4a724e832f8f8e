// Package domainerrors defines the coded error type shared by all services.
//
// Services translate infrastructure sentinels (pkg/platform/sentinel) and ledger
// reverts into these codes; the HTTP layer maps codes to status lines in exactly
// one place. Nothing outside this package branches on error strings.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for transport mapping and metrics.
type Code string

const (
	// CodeValidation marks malformed input rejected before any side effect:
	// bad addresses, missing profile fields, oversized documents.
	CodeValidation Code = "validation"

	// CodeBadRequest marks requests that cannot be decoded at all.
	CodeBadRequest Code = "bad_request"

	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"

	// CodePrecondition marks a state-dependent rejection: an existing pending
	// application, a transition from the wrong status, or an under-funded
	// guarantee reserve at closure time.
	CodePrecondition Code = "precondition_failed"

	// CodeLedgerRejected marks a ledger transaction that reverted or was never
	// mined. Off-chain writes already performed are NOT rolled back; the
	// disagreement is reconciled explicitly.
	CodeLedgerRejected Code = "ledger_rejected"

	// CodeUnsynced marks a detected disagreement between the ledger and the
	// document store. It is user-visible and never silently resolved.
	CodeUnsynced Code = "unsynced_state"

	// CodeUnavailable marks an unreachable external collaborator.
	CodeUnavailable Code = "unavailable"

	// CodeInvariantViolation marks a broken model invariant. Services convert
	// these to CodeValidation or CodePrecondition at the boundary.
	CodeInvariantViolation Code = "invariant_violation"

	CodeInternal Code = "internal"
)

// Error carries a code, a human-readable message, and an optional cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is match two coded errors by code and message, so tests can
// assert against a freshly constructed expectation.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code && t.Message == e.Message
}

// New builds a coded error with a static message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf builds a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is an alias for HasCode kept for call-site readability
// (dErrors.Is(err, dErrors.CodePrecondition)).
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf extracts the code from err, defaulting to CodeInternal for uncoded
// errors so transports never leak raw internals.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
