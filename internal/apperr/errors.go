// Package apperr is the error taxonomy shared by the user, session and todo
// services, plus its mapping onto HTTP responses.
package apperr

import (
	"errors"
	"fmt"
)

// Kinds. Match with errors.Is.
var (
	ErrValidation      = errors.New("validation_error")
	ErrConflict        = errors.New("conflict")
	ErrWeakCredential  = errors.New("weak_credential")
	ErrAuthentication  = errors.New("authentication_failed")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrNotFound        = errors.New("not_found")
	ErrStorage         = errors.New("storage_error")
)

// Error is a classified failure. Message is safe to return to callers;
// Err is the internal cause and is only logged.
type Error struct {
	Kind    error
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == e.Kind }

// New returns an error of the given kind with a public message.
func New(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Validation reports field-level input problems.
func Validation(fields map[string]string) *Error {
	return &Error{Kind: ErrValidation, Message: "validation failed", Fields: fields}
}

// Storage wraps a backing store failure. The cause never reaches the client.
func Storage(op string, err error) *Error {
	return &Error{Kind: ErrStorage, Message: "internal error", Err: fmt.Errorf("%s: %w", op, err)}
}

// NotFound is the uniform answer for a missing record and for a record owned
// by someone else.
func NotFound(what string) *Error {
	return &Error{Kind: ErrNotFound, Message: what + " not found"}
}

// As extracts the *Error from err, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
