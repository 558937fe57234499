// Package delegation drives the authorization-code flow against the upstream
// OpenID Connect provider. It translates a provider round trip into identity
// claims and never touches the directory or issues credentials.
package delegation

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	apperrors "github.com/jrsteele09/go-login-bridge/internal/errors"
	"github.com/jrsteele09/go-login-bridge/internal/utils"
	"golang.org/x/oauth2"
)

const (
	// DefaultIssuer is Google's OpenID Connect issuer.
	DefaultIssuer  = "https://accounts.google.com"
	DefaultTimeout = 10 * time.Second

	stateLength = 32
	nonceLength = 32
)

// Config is built once at startup and handed to New.
type Config struct {
	ClientID     string
	ClientSecret string
	// IssuerURL is the discovery base; metadata is read from
	// IssuerURL + "/.well-known/openid-configuration".
	IssuerURL   string
	RedirectURL string
	Scopes      []string
	// Timeout bounds each provider round trip (discovery, exchange, userinfo).
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Configured reports whether both client credentials are present.
func (c Config) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// State is the per-attempt data that must survive exactly one redirect round trip.
type State struct {
	State        string    `json:"state"`
	Nonce        string    `json:"nonce"`
	CodeVerifier string    `json:"code_verifier"`
	ReturnTarget string    `json:"return_target,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// CallbackParams are the query parameters the provider sends back.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// CallbackParamsFromRequest reads the callback parameters from query or form.
func CallbackParamsFromRequest(r *http.Request) CallbackParams {
	return CallbackParams{
		Code:             r.FormValue("code"),
		State:            r.FormValue("state"),
		Error:            r.FormValue("error"),
		ErrorDescription: r.FormValue("error_description"),
	}
}

// Claims is the narrow identity the login flow consumes. Email is required.
type Claims struct {
	Email string
	Name  string
}

// OidcConfig is the discovered provider wiring.
type OidcConfig struct {
	OidcProvider *oidc.Provider
	OAuth2Config *oauth2.Config
	OidcVerifier *oidc.IDTokenVerifier
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time

	oidcLock sync.RWMutex
	oidc     *OidcConfig
}

// New returns a client for cfg. It performs no network I/O; provider metadata
// is discovered on first use.
func New(cfg Config) *Client {
	if cfg.IssuerURL == "" {
		cfg.IssuerURL = DefaultIssuer
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{oidc.ScopeOpenID, "email", "profile"}
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		now:        time.Now,
	}
}

// Configured reports whether the client holds provider credentials.
func (c *Client) Configured() bool {
	return c.cfg.Configured()
}

// BeginLogin builds the provider authorization URL for a fresh attempt. The
// returned State must be presented to CompleteLogin for the same attempt.
func (c *Client) BeginLogin(ctx context.Context, returnTarget string) (string, State, error) {
	if !c.cfg.Configured() {
		return "", State{}, apperrors.ErrProviderNotConfigured
	}

	ctx, cancel := c.providerContext(ctx)
	defer cancel()

	oc, err := c.discover(ctx)
	if err != nil {
		return "", State{}, err
	}

	state, err := utils.RandomString(stateLength)
	if err != nil {
		return "", State{}, fmt.Errorf("generate state: %w", err)
	}
	nonce, err := utils.RandomString(nonceLength)
	if err != nil {
		return "", State{}, fmt.Errorf("generate nonce: %w", err)
	}
	verifier := oauth2.GenerateVerifier()

	authURL := oc.OAuth2Config.AuthCodeURL(
		state,
		oauth2.AccessTypeOnline,
		oidc.Nonce(nonce),
		oauth2.S256ChallengeOption(verifier),
	)
	return authURL, State{
		State:        state,
		Nonce:        nonce,
		CodeVerifier: verifier,
		ReturnTarget: returnTarget,
		CreatedAt:    c.now().UTC(),
	}, nil
}

// CompleteLogin exchanges the authorization code and returns the identity
// claims. Provider failures wrap ErrDelegation; a missing email wraps
// ErrMissingIdentityClaims.
func (c *Client) CompleteLogin(ctx context.Context, params CallbackParams, st State) (Claims, error) {
	if !c.cfg.Configured() {
		return Claims{}, apperrors.ErrProviderNotConfigured
	}
	if params.Error != "" {
		return Claims{}, apperrors.Wrapf(apperrors.ErrDelegation, "provider returned %q (%s)", params.Error, params.ErrorDescription)
	}
	if params.Code == "" || params.State == "" {
		return Claims{}, apperrors.Wrapf(apperrors.ErrDelegation, "missing code or state parameter")
	}
	if st.State == "" || subtle.ConstantTimeCompare([]byte(params.State), []byte(st.State)) != 1 {
		return Claims{}, apperrors.Wrapf(apperrors.ErrDelegation, "state mismatch")
	}

	ctx, cancel := c.providerContext(ctx)
	defer cancel()

	oc, err := c.discover(ctx)
	if err != nil {
		return Claims{}, err
	}

	oauth2Token, err := oc.OAuth2Config.Exchange(ctx, params.Code, oauth2.VerifierOption(st.CodeVerifier))
	if err != nil {
		return Claims{}, apperrors.Wrapf(apperrors.ErrDelegation, "token exchange: %v", err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return Claims{}, apperrors.Wrapf(apperrors.ErrDelegation, "no id_token in token response")
	}

	idToken, err := oc.OidcVerifier.Verify(ctx, rawIDToken)
	if err != nil {
		return Claims{}, apperrors.Wrapf(apperrors.ErrDelegation, "id_token verification: %v", err)
	}
	if subtle.ConstantTimeCompare([]byte(idToken.Nonce), []byte(st.Nonce)) != 1 {
		return Claims{}, apperrors.Wrapf(apperrors.ErrDelegation, "nonce mismatch")
	}

	var claims struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return Claims{}, apperrors.Wrapf(apperrors.ErrDelegation, "decode id_token claims: %v", err)
	}

	// Some providers only release the email through the userinfo endpoint.
	if claims.Email == "" {
		userInfo, err := oc.OidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(oauth2Token))
		if err != nil {
			return Claims{}, apperrors.Wrapf(apperrors.ErrDelegation, "userinfo: %v", err)
		}
		claims.Email = userInfo.Email
		if claims.Name == "" {
			var extra struct {
				Name string `json:"name"`
			}
			if err := userInfo.Claims(&extra); err == nil {
				claims.Name = extra.Name
			}
		}
	}

	if claims.Email == "" {
		return Claims{}, apperrors.ErrMissingIdentityClaims
	}
	return Claims{Email: claims.Email, Name: claims.Name}, nil
}

// providerContext bounds a provider round trip and routes go-oidc and oauth2
// through the client's HTTP client.
func (c *Client) providerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	return oidc.ClientContext(ctx, c.httpClient), cancel
}

func (c *Client) discover(ctx context.Context) (*OidcConfig, error) {
	c.oidcLock.RLock()
	oc := c.oidc
	c.oidcLock.RUnlock()
	if oc != nil {
		return oc, nil
	}

	provider, err := oidc.NewProvider(ctx, c.cfg.IssuerURL)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrDelegation, "discover provider %s: %v", c.cfg.IssuerURL, err)
	}

	oc = &OidcConfig{
		OidcProvider: provider,
		OAuth2Config: &oauth2.Config{
			ClientID:     c.cfg.ClientID,
			ClientSecret: c.cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  c.cfg.RedirectURL,
			Scopes:       c.cfg.Scopes,
		},
		OidcVerifier: provider.Verifier(&oidc.Config{
			ClientID: c.cfg.ClientID,
			Now:      c.now,
		}),
	}

	c.oidcLock.Lock()
	if c.oidc == nil {
		c.oidc = oc
	}
	oc = c.oidc
	c.oidcLock.Unlock()

	return oc, nil
}
