package errors

import (
	"errors"
	"fmt"
)

// Error kinds shared by the login bridge. Components wrap these with context
// and the HTTP layer maps them onto status codes with errors.Is.
var (
	// Delegation errors
	ErrProviderNotConfigured = errors.New("identity provider not configured")
	ErrDelegation            = errors.New("delegation failed")
	ErrMissingIdentityClaims = errors.New("missing identity claims")
	ErrStateNotFound         = errors.New("login state not found")

	// Credential errors
	ErrInvalidCredential = errors.New("invalid credential")

	// Authentication errors
	ErrUnauthorized      = errors.New("unauthorized")
	ErrPrincipalNotFound = errors.New("principal not found")

	// General errors
	ErrInvalidRequest = errors.New("invalid request")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
