package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound     = errors.New("resource not found")
	ErrConflict     = errors.New("resource already exists")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")

	// ErrStoreUnavailable marks a dependency failure: the durable or ephemeral
	// store could not answer, so the caller cannot tell "no" from "unknown".
	ErrStoreUnavailable = errors.New("backing store unavailable")

	// ErrMalformedInput is reported when content cannot be parsed or read,
	// as opposed to content that was read and rejected by policy.
	ErrMalformedInput = errors.New("malformed input")

	// Lifecycle errors
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAccountInactive   = errors.New("account is inactive")
)
