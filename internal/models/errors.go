package models

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the chat and notification services.
var (
	ErrValidation    = errors.New("validation failed")
	ErrAuthorization = errors.New("not authorized")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrTransport     = errors.New("transport failure")
)

// Field validation errors.
var (
	ErrInvalidUserID           = errors.New("user id is required")
	ErrInvalidUsername         = errors.New("username is required")
	ErrSelfConversation        = errors.New("a conversation needs two distinct users")
	ErrEmptyContent            = errors.New("content must not be empty")
	ErrInvalidConversationID   = errors.New("conversation id is required")
	ErrInvalidNotificationType = errors.New("notification type must be one of like, comment, follow, system")
	ErrInvalidNotificationID   = errors.New("notification id is required")
)

// Error tags an underlying failure with the operation that produced it
// and one of the error kinds above.
type Error struct {
	Op   string
	Kind error
	Err  error
}

// E builds a tagged error. A nil err yields an error carrying only the kind.
func E(op string, kind error, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	case e.Kind == nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// KindOf returns the error kind carried by err, or nil if it has none.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{ErrValidation, ErrAuthorization, ErrNotFound, ErrConflict, ErrTransport} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
