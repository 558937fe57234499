package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-login-bridge/auth"
	"github.com/jrsteele09/go-login-bridge/internal/config"
	"github.com/jrsteele09/go-login-bridge/principals"
	"github.com/rs/zerolog/log"
)

// LoginFlow drives the federated login round trip.
type LoginFlow interface {
	Begin(ctx context.Context, returnTarget string) (string, string, error)
	Complete(ctx context.Context, req auth.CallbackRequest) (*auth.Session, error)
}

// Authenticator resolves the caller of an API request.
type Authenticator interface {
	Authenticate(r *http.Request) (*principals.Principal, error)
}

type Server struct {
	env           string // Environment (e.g., "DEV", "PROD")
	mux           *http.ServeMux
	routes        []string
	config        config.Config
	flow          LoginFlow
	authenticator Authenticator
	startedAt     time.Time
	nowTime       func() time.Time
}

type Option func(*Server)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Server) {
		s.nowTime = nowFunc
	}
}

func New(config config.Config, flow LoginFlow, authenticator Authenticator, opts ...Option) *Server {
	s := &Server{
		env:           config.Env,
		mux:           http.NewServeMux(),
		config:        config,
		flow:          flow,
		authenticator: authenticator,
		nowTime:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startedAt = s.nowTime()

	s.initRoutes()
	s.logRoutes()

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if !s.config.IsDev() {
		return
	}
	for _, route := range s.routes {
		method, path, found := strings.Cut(route, " ")
		if !found {
			method, path = "", route
		}
		log.Debug().Str("method", method).Str("path", path).Msg("route registered")
	}
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
