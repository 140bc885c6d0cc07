// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP
// responses (via the `fail()` helper in this package). These codes provide
// clients with a stable, machine-readable error taxonomy that supplements
// human-readable messages.
//
// Conventions:
//   - Codes are uppercase snake_case, matching the moderation API contract.
//   - Quota codes (RATE_LIMITED, IP_BLOCKED) are emitted by middleware, but
//     are listed here as part of the public taxonomy.
//   - Clients are expected to branch on these codes for programmatic error
//     handling rather than parsing message text.
package handlers

const (
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyResolved  = "ALREADY_RESOLVED"
	ErrCodeNotBanned        = "NOT_BANNED"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeIPBlocked        = "IP_BLOCKED"
	ErrCodeInternal         = "INTERNAL_ERROR"
	ErrCodeMethodNotAllowed = "METHOD_NOT_ALLOWED"

	// Domain-specific:
	ErrCodeContentBlocked = "CONTENT_BLOCKED"
	ErrCodeThreadLocked   = "THREAD_LOCKED"
)
