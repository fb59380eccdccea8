package domain

import (
	"errors"

	"go.trai.ch/zerr"
)

var (
	// ErrUserNotFound is returned when no user matches a lookup.
	ErrUserNotFound = zerr.New("user not found")

	// ErrUserExists is returned when inserting a user whose id, user name or e-mail is taken.
	ErrUserExists = zerr.New("user already exists")

	// ErrInvalidUser is returned when a user fails validation.
	ErrInvalidUser = zerr.New("invalid user")

	// ErrInvalidEvent is returned when an event payload decodes but fails validation.
	ErrInvalidEvent = zerr.New("invalid event")

	// ErrDecodeFailed is returned when an event payload cannot be decoded.
	ErrDecodeFailed = zerr.New("failed to decode event payload")

	// ErrUnknownEventType is returned for events whose type cannot be determined.
	ErrUnknownEventType = zerr.New("unknown event type")

	// ErrHandlerNotFound is returned when no handler is registered for an event type.
	ErrHandlerNotFound = zerr.New("no handler registered for event type")

	// ErrUnsupportedConnection is returned when a database connection type has no driver.
	ErrUnsupportedConnection = zerr.New("unsupported database connection type")

	// ErrStoreClosed is returned when a store is used after Close.
	ErrStoreClosed = zerr.New("store is closed")
)

// IsPermanent reports whether err can never succeed on retry. Handlers
// surface these for malformed or dangling events, which are skipped.
func IsPermanent(err error) bool {
	for _, target := range []error{
		ErrUserNotFound,
		ErrUserExists,
		ErrInvalidUser,
		ErrInvalidEvent,
		ErrDecodeFailed,
		ErrUnknownEventType,
		ErrHandlerNotFound,
		ErrUnsupportedConnection,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
