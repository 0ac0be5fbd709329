package app

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by App wraps exactly one of them.
var (
	ErrValidation       = errors.New("validation failed")
	ErrInvalidOperand   = fmt.Errorf("%w: invalid operand", ErrValidation)
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrStorage          = errors.New("storage failure")
)

var (
	// ErrInvalidCredentials is shown to end users and must not reveal which part was wrong.
	ErrInvalidCredentials = &Error{Kind: ErrUnauthenticated, Message: "incorrect username or password"}
	ErrChatNotFound       = &Error{Kind: ErrNotFound, Message: "chat not found"}
	ErrUserNotFound       = &Error{Kind: ErrNotFound, Message: "user not found"}
	ErrHandleTaken        = &Error{Kind: ErrValidation, Message: "username is already taken"}
	ErrSelfChat           = &Error{Kind: ErrInvalidOperand, Message: "cannot start a direct chat with yourself"}
)

// Error is a classified failure whose Message is safe to show to callers.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Kind == ErrStorage {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// InviteDeniedError lists every handle that refused group invites.
type InviteDeniedError struct {
	Handles []string
}

func (e *InviteDeniedError) Error() string {
	return "these users do not accept group invites: " + strings.Join(e.Handles, ", ")
}

func (e *InviteDeniedError) Unwrap() error {
	return ErrPermissionDenied
}

func validationf(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

func unauthenticated(message string) error {
	return &Error{Kind: ErrUnauthenticated, Message: message}
}

func storageErr(op string, err error) error {
	return &Error{Kind: ErrStorage, Message: op, Err: err}
}
