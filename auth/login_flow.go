package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/jrsteele09/go-login-bridge/delegation"
	"github.com/jrsteele09/go-login-bridge/delegation/statestore"
	"github.com/jrsteele09/go-login-bridge/internal/config"
	apperrors "github.com/jrsteele09/go-login-bridge/internal/errors"
	"github.com/jrsteele09/go-login-bridge/principals"
)

// FrontendCallbackPath is where the front end picks the credential out of the URL fragment.
const FrontendCallbackPath = "/auth/callback"

// Phase is a step of the session bootstrap state machine.
type Phase string

const (
	PhaseUnauthenticated  Phase = "unauthenticated"
	PhaseLoginInitiated   Phase = "login_initiated"
	PhaseCallbackReceived Phase = "callback_received"
	PhaseSessionIssued    Phase = "session_issued"
	PhaseError            Phase = "error"
)

// Delegator is the provider round trip the flow drives.
type Delegator interface {
	Configured() bool
	BeginLogin(ctx context.Context, returnTarget string) (string, delegation.State, error)
	CompleteLogin(ctx context.Context, params delegation.CallbackParams, st delegation.State) (delegation.Claims, error)
}

// CredentialIssuer mints the session credential for a principal.
type CredentialIssuer interface {
	Issue(p principals.Principal) (string, error)
}

// LoginFlowConfig carries the startup configuration the flow needs.
type LoginFlowConfig struct {
	AllowedOrigins config.AllowedOrigins
	DefaultOrigin  string
	StateTTL       time.Duration
}

// CallbackRequest is what the HTTP layer extracts from the provider callback.
type CallbackRequest struct {
	Params delegation.CallbackParams
	// BoundState is the state token remembered by the browser that started the attempt.
	BoundState string
	// Origin is the caller's declared Origin header, if any.
	Origin string
}

// Session is the outcome of a successful login.
type Session struct {
	Principal   *principals.Principal
	Credential  string
	RedirectURL string
}

// LoginFlow orchestrates: begin login, handle callback, upsert the principal,
// issue the credential and build the front-end redirect.
type LoginFlow struct {
	delegator   Delegator
	states      statestore.Store
	directory   principals.Directory
	credentials CredentialIssuer
	cfg         LoginFlowConfig
	nowTime     func() time.Time
}

// LoginFlowOption modifies a LoginFlow.
type LoginFlowOption func(*LoginFlow)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) LoginFlowOption {
	return func(f *LoginFlow) {
		f.nowTime = nowFunc
	}
}

func NewLoginFlow(delegator Delegator, states statestore.Store, directory principals.Directory, credentials CredentialIssuer, cfg LoginFlowConfig, opts ...LoginFlowOption) *LoginFlow {
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = statestore.DefaultTTL
	}
	f := &LoginFlow{
		delegator:   delegator,
		states:      states,
		directory:   directory,
		credentials: credentials,
		cfg:         cfg,
		nowTime:     time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Begin starts a login attempt and returns the provider URL plus the state
// token the caller must bind to the browser.
func (f *LoginFlow) Begin(ctx context.Context, returnTarget string) (string, string, error) {
	if !f.cfg.AllowedOrigins.IsAllowedOrigin(returnTarget) {
		returnTarget = ""
	}

	redirectURL, st, err := f.delegator.BeginLogin(ctx, returnTarget)
	if err != nil {
		logTransition(PhaseUnauthenticated, PhaseError).Err(err).Msg("login initiation failed")
		return "", "", err
	}
	if err := f.states.Put(ctx, st, f.cfg.StateTTL); err != nil {
		logTransition(PhaseUnauthenticated, PhaseError).Err(err).Msg("store login state")
		return "", "", fmt.Errorf("store login state: %w", err)
	}

	logTransition(PhaseUnauthenticated, PhaseLoginInitiated).Msg("redirecting to identity provider")
	return redirectURL, st.State, nil
}

// Complete handles the provider callback. Delegation failures leave the
// directory untouched.
func (f *LoginFlow) Complete(ctx context.Context, req CallbackRequest) (*Session, error) {
	if !f.delegator.Configured() {
		logTransition(PhaseLoginInitiated, PhaseError).Msg("identity provider not configured")
		return nil, apperrors.ErrProviderNotConfigured
	}

	st, err := f.takeState(ctx, req)
	if err != nil {
		logTransition(PhaseLoginInitiated, PhaseError).Err(err).Msg("rejected callback state")
		return nil, err
	}
	logTransition(PhaseLoginInitiated, PhaseCallbackReceived).Msg("provider callback received")

	claims, err := f.delegator.CompleteLogin(ctx, req.Params, *st)
	if err != nil {
		logTransition(PhaseCallbackReceived, PhaseError).Err(err).Msg("delegation failed")
		return nil, err
	}

	principal, err := f.directory.UpsertOnLogin(ctx, claims.Email, claims.Name, f.nowTime())
	if err != nil {
		logTransition(PhaseCallbackReceived, PhaseError).Err(err).Msg("directory upsert failed")
		return nil, fmt.Errorf("upsert principal: %w", err)
	}

	credential, err := f.credentials.Issue(*principal)
	if err != nil {
		logTransition(PhaseCallbackReceived, PhaseError).Err(err).Msg("credential issue failed")
		return nil, err
	}

	logTransition(PhaseCallbackReceived, PhaseSessionIssued).
		Str("principal_id", principal.ID).
		Msg("session issued")

	return &Session{
		Principal:   principal,
		Credential:  credential,
		RedirectURL: f.redirectOrigin(req.Origin, st.ReturnTarget) + FrontendCallbackPath + "#token=" + credential,
	}, nil
}

// takeState consumes the stored state for this attempt. The callback state
// must match the one bound to the browser; unknown, expired and replayed
// states are treated as forgery.
func (f *LoginFlow) takeState(ctx context.Context, req CallbackRequest) (*delegation.State, error) {
	state := req.Params.State
	if state == "" {
		return nil, apperrors.Wrapf(apperrors.ErrDelegation, "missing state parameter")
	}
	if subtle.ConstantTimeCompare([]byte(state), []byte(req.BoundState)) != 1 {
		return nil, apperrors.Wrapf(apperrors.ErrDelegation, "state not bound to this browser")
	}

	st, err := f.states.Take(ctx, state)
	if apperrors.Is(err, apperrors.ErrStateNotFound) {
		return nil, apperrors.Wrapf(apperrors.ErrDelegation, "unknown or replayed state: %v", err)
	}
	if err != nil {
		return nil, fmt.Errorf("load login state: %w", err)
	}
	return st, nil
}

// redirectOrigin prefers the caller's Origin, then the origin captured at
// login, then the configured default. Only allowed origins receive a credential.
func (f *LoginFlow) redirectOrigin(requestOrigin, returnTarget string) string {
	for _, origin := range []string{requestOrigin, returnTarget} {
		if origin != "" && f.cfg.AllowedOrigins.IsAllowedOrigin(origin) {
			return trimOrigin(origin)
		}
	}
	return trimOrigin(f.cfg.DefaultOrigin)
}
