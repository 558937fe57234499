// Package providerfake runs an in-process OpenID Connect provider for tests.
// It implements discovery, JWKS, authorization (auto-consent), token exchange
// with PKCE and userinfo.
package providerfake

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	ClientID     = "fake-client-id"
	ClientSecret = "fake-client-secret"

	keyID = "fake-key-1"
)

// Identity is the account the fake provider signs in as.
type Identity struct {
	Subject string
	Email   string
	Name    string
}

type grant struct {
	identity      Identity
	nonce         string
	codeChallenge string
	redirectURI   string
}

type Provider struct {
	Server *httptest.Server
	key    *rsa.PrivateKey

	mu               sync.Mutex
	identity         Identity
	codes            map[string]grant
	accessTokens     map[string]Identity
	tokenDelay       time.Duration
	tokenError       string
	idTokenOmitEmail bool
	exchanges        int
}

// New starts a provider that is shut down when t finishes.
func New(t testing.TB) *Provider {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	p := &Provider{
		key:          key,
		identity:     Identity{Subject: "1001", Email: "alice@example.com", Name: "Alice"},
		codes:        make(map[string]grant),
		accessTokens: make(map[string]Identity),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", p.discovery)
	mux.HandleFunc("GET /jwks", p.jwks)
	mux.HandleFunc("GET /authorize", p.authorizeHandler)
	mux.HandleFunc("POST /token", p.token)
	mux.HandleFunc("GET /userinfo", p.userInfo)
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Server.Close)
	return p
}

// Issuer is the discovery base URL.
func (p *Provider) Issuer() string {
	return p.Server.URL
}

// SetIdentity changes the account used for the next authorizations.
func (p *Provider) SetIdentity(id Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.identity = id
}

// FailTokenExchange makes the token endpoint answer with an OAuth error code.
func (p *Provider) FailTokenExchange(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenError = code
}

// DelayTokenExchange stalls the token endpoint.
func (p *Provider) DelayTokenExchange(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenDelay = d
}

// OmitEmailFromIDToken leaves email out of the ID token; it stays on userinfo.
func (p *Provider) OmitEmailFromIDToken(omit bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idTokenOmitEmail = omit
}

// Exchanges counts token endpoint calls.
func (p *Provider) Exchanges() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exchanges
}

// Authorize consents to authURL without HTTP and returns the callback URL the
// browser would be sent to.
func (p *Provider) Authorize(authURL string) (*url.URL, error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return nil, err
	}
	return p.authorize(u.Query())
}

func (p *Provider) authorize(q url.Values) (*url.URL, error) {
	redirect, err := url.Parse(q.Get("redirect_uri"))
	if err != nil {
		return nil, err
	}

	code := uuid.New().String()
	p.mu.Lock()
	p.codes[code] = grant{
		identity:      p.identity,
		nonce:         q.Get("nonce"),
		codeChallenge: q.Get("code_challenge"),
		redirectURI:   q.Get("redirect_uri"),
	}
	p.mu.Unlock()

	rq := redirect.Query()
	rq.Set("code", code)
	rq.Set("state", q.Get("state"))
	redirect.RawQuery = rq.Encode()
	return redirect, nil
}

func (p *Provider) discovery(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                p.Issuer(),
		"authorization_endpoint":                p.Issuer() + "/authorize",
		"token_endpoint":                        p.Issuer() + "/token",
		"userinfo_endpoint":                     p.Issuer() + "/userinfo",
		"jwks_uri":                              p.Issuer() + "/jwks",
		"response_types_supported":              []string{"code"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"code_challenge_methods_supported":      []string{"S256"},
		"token_endpoint_auth_methods_supported": []string{"client_secret_basic"},
	})
}

func (p *Provider) jwks(w http.ResponseWriter, r *http.Request) {
	pub := p.key.PublicKey
	writeJSON(w, http.StatusOK, map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": keyID,
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

func (p *Provider) authorizeHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("client_id") != ClientID {
		http.Error(w, "unknown client", http.StatusBadRequest)
		return
	}
	redirect, err := p.authorize(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, redirect.String(), http.StatusFound)
}

func (p *Provider) token(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.exchanges++
	delay, failWith := p.tokenDelay, p.tokenError
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if failWith != "" {
		oauthError(w, failWith)
		return
	}

	if err := r.ParseForm(); err != nil {
		oauthError(w, "invalid_request")
		return
	}
	clientID, clientSecret, ok := r.BasicAuth()
	if !ok {
		clientID, clientSecret = r.PostForm.Get("client_id"), r.PostForm.Get("client_secret")
	}
	if clientID != ClientID || clientSecret != ClientSecret {
		oauthError(w, "invalid_client")
		return
	}

	code := r.PostForm.Get("code")
	p.mu.Lock()
	g, found := p.codes[code]
	delete(p.codes, code)
	omitEmail := p.idTokenOmitEmail
	p.mu.Unlock()
	if !found || g.redirectURI != r.PostForm.Get("redirect_uri") {
		oauthError(w, "invalid_grant")
		return
	}
	sum := sha256.Sum256([]byte(r.PostForm.Get("code_verifier")))
	if base64.RawURLEncoding.EncodeToString(sum[:]) != g.codeChallenge {
		oauthError(w, "invalid_grant")
		return
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   p.Issuer(),
		"sub":   g.identity.Subject,
		"aud":   ClientID,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
		"nonce": g.nonce,
	}
	if g.identity.Email != "" && !omitEmail {
		claims["email"] = g.identity.Email
	}
	if g.identity.Name != "" {
		claims["name"] = g.identity.Name
	}
	idToken := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	idToken.Header["kid"] = keyID
	signed, err := idToken.SignedString(p.key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	accessToken := uuid.New().String()
	p.mu.Lock()
	p.accessTokens[accessToken] = g.identity
	p.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"expires_in":   3600,
		"id_token":     signed,
	})
}

func (p *Provider) userInfo(w http.ResponseWriter, r *http.Request) {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) <= len(prefix) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	p.mu.Lock()
	id, ok := p.accessTokens[auth[len(prefix):]]
	p.mu.Unlock()
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	body := map[string]any{"sub": id.Subject}
	if id.Email != "" {
		body["email"] = id.Email
		body["email_verified"] = true
	}
	if id.Name != "" {
		body["name"] = id.Name
	}
	writeJSON(w, http.StatusOK, body)
}

func oauthError(w http.ResponseWriter, code string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
