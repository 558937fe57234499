package server

import (
	"context"
	"net/http"

	"github.com/jrsteele09/go-login-bridge/auth"
	apperrors "github.com/jrsteele09/go-login-bridge/internal/errors"
	"github.com/jrsteele09/go-login-bridge/principals"
	"github.com/rs/zerolog/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeyPrincipal stores the authenticated principal
const ContextKeyPrincipal ContextKey = "principal"

// RequireCredential is middleware for API routes that expect a session
// credential in the Authorization header.
func (s *Server) RequireCredential() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			p, err := s.authenticator.Authenticate(r)
			if err != nil {
				var unauthorized *auth.UnauthorizedError
				if apperrors.As(err, &unauthorized) {
					w.Header().Set("WWW-Authenticate", "Bearer")
					writeDetail(w, http.StatusUnauthorized, unauthorized.Reason)
					return
				}
				log.Error().Err(err).Str("path", r.URL.Path).Msg("authenticate request")
				writeDetail(w, http.StatusInternalServerError, detailInternal)
				return
			}

			next(w, r.WithContext(context.WithValue(r.Context(), ContextKeyPrincipal, p)))
		}
	}
}

// PrincipalFromContext returns the principal stored by RequireCredential.
func PrincipalFromContext(ctx context.Context) (*principals.Principal, bool) {
	p, ok := ctx.Value(ContextKeyPrincipal).(*principals.Principal)
	return p, ok && p != nil
}
