package auth

import "errors"

// Token errors. TokenService.Verify collapses all of them to nil; they are
// exposed through Inspect for internal logging only.
var (
	ErrMalformed         = errors.New("malformed token")
	ErrExpired           = errors.New("token expired")
	ErrSignatureMismatch = errors.New("token signature mismatch")
)

// Credential errors.
var (
	// ErrHashingFailure means the hasher could not produce a hash at all.
	// It is a configuration or environment fault and must not be swallowed.
	ErrHashingFailure = errors.New("password hashing failed")
	// ErrPasswordTooLong is returned for passwords beyond bcrypt's input limit.
	ErrPasswordTooLong = errors.New("password too long")
	// ErrPoolClosed is returned when work is submitted to a closed HashPool.
	ErrPoolClosed = errors.New("hash pool closed")
)
