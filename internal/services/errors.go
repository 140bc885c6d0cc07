// Package services defines the business logic of the trust and access
// enforcement core: content classification, the ban lifecycle, and the
// moderation command dispatcher. This file centralizes common service-level
// error values so that they can be consistently returned by service methods
// and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the
// handler layer.
package services

import "errors"

// Authorization errors.
var (
	// ErrUnauthorized indicates the acting identity does not exist or was
	// not provided.
	ErrUnauthorized = errors.New("unknown acting user")

	// ErrForbidden indicates the actor's role does not meet the command's
	// minimum, the target is protected, or the actor is banned.
	ErrForbidden = errors.New("insufficient privileges")
)

// Validation and precondition errors.
var (
	// ErrValidation indicates a malformed command payload or a missing
	// required metadata field for the requested action.
	ErrValidation = errors.New("invalid command payload")

	// ErrTargetNotFound indicates the command's target user or content does
	// not exist (or is soft-deleted / already removed).
	ErrTargetNotFound = errors.New("target not found")

	// ErrNotBanned is returned by UNBAN when the target is not currently
	// banned.
	ErrNotBanned = errors.New("user is not banned")

	// ErrAlreadyResolved indicates the command would re-apply a state the
	// target is already in.
	ErrAlreadyResolved = errors.New("already resolved")
)

// Content authoring errors.
var (
	// ErrEmptyContent is returned when a request to create content contains
	// no text.
	ErrEmptyContent = errors.New("content is empty")

	// ErrTooLong is returned when a request to create content exceeds the
	// maximum configured length limit.
	ErrTooLong = errors.New("content too long")

	// ErrThreadLocked is returned when posting into a locked thread.
	ErrThreadLocked = errors.New("thread is locked")

	// ErrContentBlocked is returned when the classifier rejected the content
	// outright (BLOCKED at high confidence).
	ErrContentBlocked = errors.New("content rejected by moderation")
)
