// Package apperr defines the error taxonomy shared by every layer of the
// kernel. Nothing above the database re-interprets an invariant code; this
// package only gives it a typed home.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and retry policy.
type Kind string

const (
	Validation    Kind = "VALIDATION"
	Authn         Kind = "AUTHENTICATION"
	Authz         Kind = "AUTHORIZATION"
	NotFound      Kind = "NOT_FOUND"
	ConflictCode  Kind = "CONFLICT_INVARIANT"
	ConflictState Kind = "CONFLICT_STATE"
	Retryable     Kind = "RETRYABLE"
	FatalProvider Kind = "FATAL_PROVIDER"
	Internal      Kind = "INTERNAL"
	RateLimited   Kind = "RATE_LIMITED"
)

// Error is the sum-type error value that replaces the inheritance-based
// error hierarchies found in the source system.
type Error struct {
	Kind    Kind
	Code    string // machine-readable code, e.g. HX001 or MONEY_LOCK_FAILED; empty for RetryableWrap
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s[%s]: %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func Wrap(kind Kind, code, msg string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Err: err}
}

func Conflict(code, msg string) *Error {
	return &Error{Kind: ConflictCode, Code: code, Message: msg}
}

func ConflictStatef(code, format string, args ...any) *Error {
	return &Error{Kind: ConflictState, Code: code, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(code, format string, args ...any) *Error {
	return &Error{Kind: NotFound, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Validationf(code, format string, args ...any) *Error {
	return &Error{Kind: Validation, Code: code, Message: fmt.Sprintf(format, args...)}
}

func RetryableWrap(err error) *Error {
	return &Error{Kind: Retryable, Message: "retryable", Err: err}
}

// As reports whether err (or any error it wraps) is an *Error, returning it.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err, defaulting to Internal for plain errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Internal
}

// IsRetryable reports whether err should be retried by C2/C8/C9.
func IsRetryable(err error) bool {
	return KindOf(err) == Retryable
}
