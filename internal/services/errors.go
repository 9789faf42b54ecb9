// Package services defines the business logic for message authoring,
// scheduled dispatch, webhook ingestion, and confirmation matching. This file
// centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler/controller layer.
package services

import "errors"

var (
	// ErrEmptyContent is returned when a message is authored with no text.
	ErrEmptyContent = errors.New("content is empty")

	// ErrTooLong is returned when authored content exceeds the configured
	// maximum rune length.
	ErrTooLong = errors.New("content too long")

	// ErrNoRecipients is returned when a send request names no contacts.
	ErrNoRecipients = errors.New("no recipients")

	// ErrInvalidSchedule is returned when a scheduled send carries a zero or
	// past timestamp.
	ErrInvalidSchedule = errors.New("scheduled time must be in the future")

	// ErrInvalidRecurrence is returned when the recurrence value is outside
	// the allowed set.
	ErrInvalidRecurrence = errors.New("unsupported recurrence")

	// ErrInvalidKind is returned when the message kind is outside the
	// allowed set.
	ErrInvalidKind = errors.New("unsupported message kind")

	// ErrMessageNotFound indicates that the requested message does not exist
	// or is not accessible to the current user.
	ErrMessageNotFound = errors.New("message not found")

	// ErrInvalidPhone is returned when a contact phone contains no digits.
	ErrInvalidPhone = errors.New("phone must contain digits")

	// ErrEmptyName is returned when a contact or confirmation is authored
	// without a name.
	ErrEmptyName = errors.New("name is empty")

	// ErrContactNotFound indicates that the requested contact does not exist
	// or is not accessible to the current user.
	ErrContactNotFound = errors.New("contact not found")

	// ErrConfirmationNotFound indicates that the requested confirmation does
	// not exist or is not accessible to the current user.
	ErrConfirmationNotFound = errors.New("confirmation not found")

	// ErrSessionNotReady is returned when a send is attempted while the
	// user's gateway session is not in a connected state.
	ErrSessionNotReady = errors.New("whatsapp session not ready")

	// ErrSessionNotFound indicates that no session state is known for the
	// user, neither mirrored nor via a live probe.
	ErrSessionNotFound = errors.New("whatsapp session not found")

	// ErrNotSendable is returned when a manual send targets a message that is
	// not in a pre-sent state anymore.
	ErrNotSendable = errors.New("message is not in a sendable state")
)
