package server

import (
	"fmt"
	"net/http"

	"github.com/jrsteele09/go-login-bridge/auth"
	"github.com/jrsteele09/go-login-bridge/delegation"
	apperrors "github.com/jrsteele09/go-login-bridge/internal/errors"
	"github.com/rs/zerolog/log"
)

// Messages returned to clients. Failure details only go to the log.
const (
	detailNotConfigured   = "Google OAuth client not configured."
	detailProviderFailed  = "Identity provider unavailable"
	detailAuthFailed      = "OAuth authentication failed"
	detailMissingClaims   = "Failed to retrieve user info from Google"
	detailInternal        = "Internal server error"
	detailUnauthenticated = "Not authenticated"
)

// LoginHandler starts a federated login and redirects the browser to the provider.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		redirectURL, state, err := s.flow.Begin(r.Context(), requestOrigin(r))
		switch {
		case apperrors.Is(err, apperrors.ErrProviderNotConfigured):
			writeDetail(w, http.StatusInternalServerError, detailNotConfigured)
			return
		case apperrors.Is(err, apperrors.ErrDelegation):
			writeDetail(w, http.StatusBadGateway, detailProviderFailed)
			return
		case err != nil:
			log.Error().Err(err).Msg("begin login")
			writeDetail(w, http.StatusInternalServerError, detailInternal)
			return
		}

		s.SetLoginStateCookie(w, state, r)
		http.Redirect(w, r, redirectURL, http.StatusFound)
	}
}

// CallbackHandler completes a federated login and hands the credential to
// the front end in the redirect fragment.
func (s *Server) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boundState := loginStateFromCookie(r)
		s.ClearLoginStateCookie(w, r)

		session, err := s.flow.Complete(r.Context(), auth.CallbackRequest{
			Params:     delegation.CallbackParamsFromRequest(r),
			BoundState: boundState,
			Origin:     r.Header.Get("Origin"),
		})
		switch {
		case apperrors.Is(err, apperrors.ErrProviderNotConfigured):
			writeDetail(w, http.StatusInternalServerError, detailNotConfigured)
			return
		case apperrors.Is(err, apperrors.ErrMissingIdentityClaims):
			writeDetail(w, http.StatusBadRequest, detailMissingClaims)
			return
		case apperrors.Is(err, apperrors.ErrDelegation):
			writeDetail(w, http.StatusBadRequest, detailAuthFailed)
			return
		case err != nil:
			log.Error().Err(err).Msg("complete login")
			writeDetail(w, http.StatusInternalServerError, detailInternal)
			return
		}

		w.Header().Set("Cache-Control", "no-store")
		http.Redirect(w, r, session.RedirectURL, http.StatusFound)
	}
}

// CurrentPrincipalHandler returns the principal resolved by RequireCredential.
func (s *Server) CurrentPrincipalHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			writeDetail(w, http.StatusUnauthorized, detailUnauthenticated)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

type uptime struct {
	Days    int `json:"days"`
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
	Seconds int `json:"seconds"`
}

type healthcheckResponse struct {
	Message string `json:"message"`
	Uptime  uptime `json:"uptime"`
}

func (s *Server) HealthcheckHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		elapsed := int(s.nowTime().Sub(s.startedAt).Seconds())
		writeJSON(w, http.StatusOK, healthcheckResponse{
			Message: fmt.Sprintf("%s is healthy!", s.config.AppName),
			Uptime: uptime{
				Days:    elapsed / 86400,
				Hours:   elapsed % 86400 / 3600,
				Minutes: elapsed % 3600 / 60,
				Seconds: elapsed % 60,
			},
		})
	}
}
