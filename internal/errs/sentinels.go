// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint violation reported by the store.
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation indicates malformed or missing input.
	ErrValidation = errors.New("validation")

	// ErrUnauthorized is the single external signal for any failed login.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTokenInvalid indicates a bearer token that is malformed, expired, revoked or of the wrong type.
	ErrTokenInvalid = errors.New("invalid token")
)

// Credential lifecycle errors. Login failures are distinct here and collapsed
// into ErrUnauthorized before leaving the service layer.
var (
	// ErrDuplicateIdentity indicates registration with an identity that is already taken.
	ErrDuplicateIdentity = errors.New("identity already exists")

	// ErrUsernameTaken indicates registration with a display username that is already taken.
	// It is a form error, not an identity clash.
	ErrUsernameTaken = errors.New("username already exists")

	// ErrUnknownIdentity indicates no account for the presented identity.
	ErrUnknownIdentity = errors.New("unknown identity")

	// ErrInvalidCredential indicates the password did not match the stored credential.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrCorruptCredential indicates a stored credential that cannot be parsed.
	ErrCorruptCredential = errors.New("corrupt credential")
)
