package auth

import (
	"fmt"
	"net/http"
	"strings"

	apperrors "github.com/jrsteele09/go-login-bridge/internal/errors"
	"github.com/jrsteele09/go-login-bridge/principals"
	"github.com/jrsteele09/go-login-bridge/token"
)

// CredentialVerifier checks a session credential without side effects.
type CredentialVerifier interface {
	Verify(raw string) (*token.Claims, error)
}

// Authenticator resolves the bearer credential of a request to a principal.
type Authenticator struct {
	credentials CredentialVerifier
	directory   principals.Directory
}

func NewAuthenticator(credentials CredentialVerifier, directory principals.Directory) *Authenticator {
	return &Authenticator{
		credentials: credentials,
		directory:   directory,
	}
}

// Authenticate performs a single directory read. Directory failures are
// returned as plain errors, not as UnauthorizedError.
func (a *Authenticator) Authenticate(r *http.Request) (*principals.Principal, error) {
	raw, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil, &UnauthorizedError{Reason: ReasonMalformedHeader}
	}

	claims, err := a.credentials.Verify(raw)
	if err != nil {
		return nil, &UnauthorizedError{Reason: ReasonInvalidCredential, Err: err}
	}

	p, err := a.directory.FindByID(r.Context(), claims.PrincipalID())
	if err != nil {
		return nil, fmt.Errorf("lookup principal: %w", err)
	}
	if p == nil {
		return nil, &UnauthorizedError{Reason: ReasonPrincipalNotFound, Err: apperrors.ErrPrincipalNotFound}
	}
	return p, nil
}

func bearerToken(header string) (string, bool) {
	scheme, raw, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.ContainsAny(raw, " \t") {
		return "", false
	}
	return raw, true
}
