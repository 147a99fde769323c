package verify

import (
	"errors"
	"fmt"
)

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind rather than matching error strings. Use
// errors.As to extract *Error, or IsKind.
type Kind string

const (
	// KindNotConnected: no signing identity is available.
	KindNotConnected Kind = "NotConnected"
	// KindInvalidInput: missing or malformed request data, including
	// unreadable content.
	KindInvalidInput Kind = "InvalidInput"
	// KindSubmissionFailed: the ledger or network rejected the transaction,
	// the signer refused, or the caller abandoned the wait.
	KindSubmissionFailed Kind = "SubmissionFailed"
	// KindNotFound: the identifier is unknown to the registry.
	KindNotFound Kind = "NotFound"
	// KindTampered: content bytes do not hash to the registered fingerprint.
	KindTampered Kind = "Tampered"
	// KindUnavailable: a read could not reach the ledger.
	KindUnavailable Kind = "Unavailable"
	KindInternal    Kind = "Internal"
)

// Error is the package's structured error. Op names the failing operation
// (submit, lookup, check). Message is for humans; do not match on it.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Message: msg}
}

func wrapError(kind Kind, op, msg string, cause error) error {
	return &Error{Kind: kind, Op: op, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) an *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf returns the Kind of a structured error, or "" if err is not one.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}
