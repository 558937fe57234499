package auth

import (
	apperrors "github.com/jrsteele09/go-login-bridge/internal/errors"
)

// Reasons reported with an UnauthorizedError.
const (
	ReasonMalformedHeader   = "missing or malformed header"
	ReasonInvalidCredential = "invalid credential"
	ReasonPrincipalNotFound = "principal not found"
)

// UnauthorizedError is returned for every authentication failure. Reason is
// safe to show to the caller.
type UnauthorizedError struct {
	Reason string
	Err    error
}

func (e *UnauthorizedError) Error() string {
	return e.Reason
}

func (e *UnauthorizedError) Unwrap() []error {
	if e.Err == nil {
		return []error{apperrors.ErrUnauthorized}
	}
	return []error{apperrors.ErrUnauthorized, e.Err}
}
