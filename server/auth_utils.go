package server

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"
)

const (
	// loginStateCookieName binds a login attempt to the browser that started it
	loginStateCookieName = "__login_state"
	// loginStateCookiePath covers the login and callback routes only
	loginStateCookiePath = APIPrefix + "/auth"

	contentTypeJSON = "application/json"
)

func (s *Server) SetLoginStateCookie(w http.ResponseWriter, state string, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     loginStateCookieName,
		Value:    state,
		Path:     loginStateCookiePath,
		HttpOnly: true,
		Secure:   getScheme(r) == "https",
		// Lax so the cookie survives the top-level redirect back from the provider
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.config.LoginStateTTL.Seconds()),
	})
}

func (s *Server) ClearLoginStateCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     loginStateCookieName,
		Value:    "",
		Path:     loginStateCookiePath,
		HttpOnly: true,
		Secure:   getScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

func loginStateFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(loginStateCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// requestOrigin returns the Origin header, or the origin of the Referer
// for top-level navigations that carry no Origin.
func requestOrigin(r *http.Request) string {
	if origin := r.Header.Get("Origin"); origin != "" && origin != "null" {
		return origin
	}
	ref, err := url.Parse(r.Referer())
	if err != nil || ref.Scheme == "" || ref.Host == "" {
		return ""
	}
	return ref.Scheme + "://" + ref.Host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

// writeDetail writes an error body in the {"detail": "..."} shape the front end expects.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
