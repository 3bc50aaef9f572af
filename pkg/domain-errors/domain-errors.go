package domainerrors

import (
	"errors"
	"strings"
)

// Code represents a domain error category independent of transport layer.
// These codes describe what went wrong in business logic terms, not HTTP terms.
type Code string

const (
	CodeNotFound     Code = "not_found"
	CodeBadRequest   Code = "bad_request"
	CodeInvalidInput Code = "invalid_input"
	CodeValidation   Code = "validation_failed"
	CodeInternal     Code = "internal_error"
	CodeConflict     Code = "conflict"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeTimeout      Code = "timeout"

	// Ledger outcome codes. Callers branch on these instead of message text.
	CodeStaleFulfillment  Code = "stale_fulfillment"  // lost a transition race; refetch the chain and decide
	CodeLedgerRejected    Code = "ledger_rejected"    // malformed transaction or substrate failure
	CodeUnknownOutcome    Code = "unknown_outcome"    // commit timed out and reconciliation could not decide
	CodeInvalidTransition Code = "invalid_transition" // lifecycle forbids the requested transition
)

// Error wraps domain or infrastructure failures with a stable code.
// Op and Ref carry the failing operation and the asset or transaction it
// targeted so ledger failures stay distinguishable across layers.
type Error struct {
	Code    Code
	Op      string
	Ref     string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		if e.Ref != "" {
			b.WriteString("(" + e.Ref + ")")
		}
		b.WriteString(": ")
	}
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		b.WriteString(string(e.Code))
	}
	return b.String()
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap creates a new domain error wrapping an existing error.
// If the wrapped error is already a domain error, the original code is preserved.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Op: existing.Op, Ref: existing.Ref, Message: msg, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// WithOp attaches operation and reference context. Domain errors keep their
// code; anything else is classified with fallback.
func WithOp(err error, fallback Code, op, ref string) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Op: op, Ref: ref, Message: existing.Message, Err: existing.Err}
	}
	return &Error{Code: fallback, Op: op, Ref: ref, Message: err.Error(), Err: err}
}

// HasCode checks if an error is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the domain code of err, or CodeInternal for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
