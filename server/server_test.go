package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/go-login-bridge/auth"
	"github.com/jrsteele09/go-login-bridge/delegation"
	"github.com/jrsteele09/go-login-bridge/delegation/providerfake"
	"github.com/jrsteele09/go-login-bridge/delegation/statestore"
	"github.com/jrsteele09/go-login-bridge/internal/config"
	"github.com/jrsteele09/go-login-bridge/principals"
	"github.com/jrsteele09/go-login-bridge/principals/memrepo"
	"github.com/jrsteele09/go-login-bridge/server"
	"github.com/jrsteele09/go-login-bridge/token"
	"github.com/stretchr/testify/require"
)

const (
	testSecret   = "test-signing-secret"
	testFrontend = "http://localhost:3000"
)

type fixtureConfig struct {
	unconfigured bool
	issuerURL    string
	directory    principals.Directory
}

type fixture struct {
	provider  *providerfake.Provider
	directory *memrepo.Repo
	codec     *token.Codec
	server    *httptest.Server
	client    *http.Client
}

func testConfig() config.Config {
	return config.Config{
		EnvVars: config.EnvVars{AppName: "Login Bridge", Env: "TEST"},
		Cors: config.Cors{
			AllowedOrigins: config.NewAllowedOrigins(testFrontend),
			FrontendOrigin: testFrontend,
		},
		Security: config.Security{
			SigningSecret: testSecret,
			TokenTTL:      token.DefaultTTL,
			LoginStateTTL: statestore.DefaultTTL,
		},
	}
}

func newFixture(t *testing.T, opts ...func(*fixtureConfig)) *fixture {
	t.Helper()

	fx := &fixture{
		provider:  providerfake.New(t),
		directory: memrepo.New(),
	}
	fc := fixtureConfig{issuerURL: fx.provider.Issuer(), directory: fx.directory}
	for _, opt := range opts {
		opt(&fc)
	}

	var handler http.Handler
	fx.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(fx.server.Close)

	codec, err := token.NewCodec(testSecret)
	require.NoError(t, err)
	fx.codec = codec

	dc := delegation.Config{
		IssuerURL:   fc.issuerURL,
		RedirectURL: fx.server.URL + server.RouteCallbackGoogle,
		Timeout:     2 * time.Second,
	}
	if !fc.unconfigured {
		dc.ClientID = providerfake.ClientID
		dc.ClientSecret = providerfake.ClientSecret
	}

	cfg := testConfig()
	flow := auth.NewLoginFlow(delegation.New(dc), statestore.NewMemory(), fc.directory, codec, auth.LoginFlowConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		DefaultOrigin:  cfg.GetFrontendOrigin(),
		StateTTL:       cfg.LoginStateTTL,
	})
	handler = server.New(cfg, flow, auth.NewAuthenticator(codec, fc.directory))

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	fx.client = &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return fx
}

func (fx *fixture) do(t *testing.T, method, target string, header http.Header) (*http.Response, []byte) {
	t.Helper()
	if strings.HasPrefix(target, "/") {
		target = fx.server.URL + target
	}
	req, err := http.NewRequest(method, target, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := fx.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

// startLogin follows the login redirect through the provider consent and
// returns the callback URL the browser would visit.
func (fx *fixture) startLogin(t *testing.T) string {
	t.Helper()
	resp, _ := fx.do(t, http.MethodGet, server.RouteLoginGoogle, nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)

	callback, err := fx.provider.Authorize(resp.Header.Get("Location"))
	require.NoError(t, err)
	return callback.String()
}

func (fx *fixture) login(t *testing.T) string {
	t.Helper()
	resp, body := fx.do(t, http.MethodGet, fx.startLogin(t), nil)
	require.Equal(t, http.StatusFound, resp.StatusCode, string(body))

	location := resp.Header.Get("Location")
	prefix := testFrontend + "/auth/callback#token="
	require.True(t, strings.HasPrefix(location, prefix), location)
	return strings.TrimPrefix(location, prefix)
}

func bearer(credential string) http.Header {
	return http.Header{"Authorization": {"Bearer " + credential}}
}

func requireDetail(t *testing.T, body []byte, want string) {
	t.Helper()
	var got struct {
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	require.Equal(t, want, got.Detail)
}

type principalResponse struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	LastLogin *time.Time `json:"last_login"`
	IsActive  bool       `json:"is_active"`
	IsAdmin   bool       `json:"is_admin"`
}

func TestServer_FirstLogin(t *testing.T) {
	fx := newFixture(t)
	fx.provider.SetIdentity(providerfake.Identity{Subject: "g-1", Email: "a@x.io", Name: "Ann"})

	credential := fx.login(t)

	resp, body := fx.do(t, http.MethodGet, server.RouteAuth, bearer(credential))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var p principalResponse
	require.NoError(t, json.Unmarshal(body, &p))
	require.NotEmpty(t, p.ID)
	require.Equal(t, "a@x.io", p.Email)
	require.Equal(t, "Ann", p.Name)
	require.NotNil(t, p.LastLogin)
	require.True(t, p.IsActive)
	require.False(t, p.IsAdmin)

	claims, err := fx.codec.Verify(credential)
	require.NoError(t, err)
	require.Equal(t, p.ID, claims.PrincipalID())
}

func TestServer_SecondLoginUpdatesName(t *testing.T) {
	fx := newFixture(t)
	fx.provider.SetIdentity(providerfake.Identity{Subject: "g-1", Email: "a@x.io", Name: "Ann"})
	first := fx.login(t)

	fx.provider.SetIdentity(providerfake.Identity{Subject: "g-1", Email: "a@x.io", Name: "Ann B"})
	second := fx.login(t)

	var before, after principalResponse
	resp, body := fx.do(t, http.MethodGet, server.RouteAuth, bearer(first))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &before))

	resp, body = fx.do(t, http.MethodGet, server.RouteAuth, bearer(second))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &after))

	require.Equal(t, before.ID, after.ID)
	require.Equal(t, "Ann B", before.Name)
	require.Equal(t, "Ann B", after.Name)
	require.Len(t, fx.directory.List(), 1)
}

func TestServer_AuthRejections(t *testing.T) {
	fx := newFixture(t)
	credential := fx.login(t)

	tests := []struct {
		name   string
		header http.Header
		detail string
	}{
		{name: "no header", detail: auth.ReasonMalformedHeader},
		{name: "wrong scheme", header: http.Header{"Authorization": {"Basic abc"}}, detail: auth.ReasonMalformedHeader},
		{name: "garbage credential", header: bearer("garbage"), detail: auth.ReasonInvalidCredential},
		{name: "tampered credential", header: bearer(credential + "x"), detail: auth.ReasonInvalidCredential},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := fx.do(t, http.MethodGet, server.RouteAuth, tc.header)
			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			require.Equal(t, "Bearer", resp.Header.Get("WWW-Authenticate"))
			requireDetail(t, body, tc.detail)
		})
	}
}

func TestServer_DeletedPrincipal(t *testing.T) {
	fx := newFixture(t)
	fx.provider.SetIdentity(providerfake.Identity{Subject: "g-1", Email: "a@x.io", Name: "Ann"})
	credential := fx.login(t)

	require.NoError(t, fx.directory.Delete(context.Background(), "a@x.io"))

	resp, body := fx.do(t, http.MethodGet, server.RouteAuth, bearer(credential))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	requireDetail(t, body, auth.ReasonPrincipalNotFound)
}

func TestServer_CallbackWithProviderError(t *testing.T) {
	fx := newFixture(t)
	callback := fx.startLogin(t)

	denied := strings.Replace(callback, "code=", "error=access_denied&code=", 1)
	resp, body := fx.do(t, http.MethodGet, denied, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	requireDetail(t, body, "OAuth authentication failed")
	require.Empty(t, fx.directory.List())
}

func TestServer_CallbackMissingEmail(t *testing.T) {
	fx := newFixture(t)
	fx.provider.SetIdentity(providerfake.Identity{Subject: "g-1", Name: "Nobody"})

	resp, body := fx.do(t, http.MethodGet, fx.startLogin(t), nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	requireDetail(t, body, "Failed to retrieve user info from Google")
	require.Empty(t, fx.directory.List())
}

func TestServer_CallbackFromAnotherBrowser(t *testing.T) {
	fx := newFixture(t)
	callback := fx.startLogin(t)

	// A different browser has no login state cookie.
	other := &http.Client{CheckRedirect: fx.client.CheckRedirect}
	resp, err := other.Get(callback)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Empty(t, fx.directory.List())

	// The attempt is still usable by the browser that started it.
	resp, body := fx.do(t, http.MethodGet, callback, nil)
	require.Equal(t, http.StatusFound, resp.StatusCode, string(body))
}

func TestServer_CallbackReplay(t *testing.T) {
	fx := newFixture(t)
	callback := fx.startLogin(t)

	resp, _ := fx.do(t, http.MethodGet, callback, nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)

	resp, _ = fx.do(t, http.MethodGet, callback, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_LoginSetsStateCookie(t *testing.T) {
	fx := newFixture(t)

	resp, _ := fx.do(t, http.MethodGet, server.RouteLoginGoogle, nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)

	var found *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "__login_state" {
			found = c
		}
	}
	require.NotNil(t, found)
	require.True(t, found.HttpOnly)
	require.Equal(t, http.SameSiteLaxMode, found.SameSite)
	require.Contains(t, resp.Header.Get("Location"), "state="+found.Value)
}

func TestServer_ProviderNotConfigured(t *testing.T) {
	fx := newFixture(t, func(c *fixtureConfig) { c.unconfigured = true })

	resp, body := fx.do(t, http.MethodGet, server.RouteLoginGoogle, nil)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	requireDetail(t, body, "Google OAuth client not configured.")
	require.Empty(t, resp.Cookies())

	resp, body = fx.do(t, http.MethodGet, server.RouteCallbackGoogle+"?code=c&state=s", nil)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	requireDetail(t, body, "Google OAuth client not configured.")
	require.Zero(t, fx.provider.Exchanges())
}

func TestServer_ProviderUnreachable(t *testing.T) {
	down := httptest.NewServer(http.NotFoundHandler())
	down.Close()
	fx := newFixture(t, func(c *fixtureConfig) { c.issuerURL = down.URL })

	resp, body := fx.do(t, http.MethodGet, server.RouteLoginGoogle, nil)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	requireDetail(t, body, "Identity provider unavailable")
}

type brokenDirectory struct {
	principals.Directory
}

func (brokenDirectory) UpsertOnLogin(context.Context, string, string, time.Time) (*principals.Principal, error) {
	return nil, errors.New("database is locked")
}

func TestServer_CallbackDirectoryFailure(t *testing.T) {
	fx := newFixture(t, func(c *fixtureConfig) { c.directory = brokenDirectory{} })

	resp, body := fx.do(t, http.MethodGet, fx.startLogin(t), nil)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	requireDetail(t, body, "Internal server error")
	require.NotContains(t, string(body), "database is locked")
}

func TestServer_Cors(t *testing.T) {
	fx := newFixture(t)

	resp, _ := fx.do(t, http.MethodOptions, server.RouteAuth, http.Header{
		"Origin":                        {testFrontend},
		"Access-Control-Request-Method": {"GET"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, testFrontend, resp.Header.Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
	require.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "Authorization")

	resp, _ = fx.do(t, http.MethodOptions, server.RouteAuth, http.Header{"Origin": {"https://evil.example"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))

	resp, _ = fx.do(t, http.MethodGet, server.RouteHealthcheck, http.Header{"Origin": {testFrontend}})
	require.Equal(t, testFrontend, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServer_Healthcheck(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	srv := server.New(testConfig(), nil, nil, server.WithNowTime(func() time.Time { return now }))
	now = now.Add(26*time.Hour + 3*time.Minute + 4*time.Second)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, server.RouteHealthcheck, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Message string         `json:"message"`
		Uptime  map[string]int `json:"uptime"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "Login Bridge is healthy!", got.Message)
	require.Equal(t, map[string]int{"days": 1, "hours": 2, "minutes": 3, "seconds": 4}, got.Uptime)
}

type authenticatorFunc func(r *http.Request) (*principals.Principal, error)

func (f authenticatorFunc) Authenticate(r *http.Request) (*principals.Principal, error) {
	return f(r)
}

func TestRequireCredential(t *testing.T) {
	ann := &principals.Principal{ID: "p-1", Email: "a@x.io", Name: "Ann", IsActive: true}

	tests := []struct {
		name       string
		result     func() (*principals.Principal, error)
		wantStatus int
	}{
		{
			name:       "authenticated",
			result:     func() (*principals.Principal, error) { return ann, nil },
			wantStatus: http.StatusOK,
		},
		{
			name: "unauthorized",
			result: func() (*principals.Principal, error) {
				return nil, &auth.UnauthorizedError{Reason: auth.ReasonInvalidCredential}
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "directory unavailable",
			result:     func() (*principals.Principal, error) { return nil, errors.New("connection refused") },
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := server.New(testConfig(), nil, authenticatorFunc(func(*http.Request) (*principals.Principal, error) {
				return tc.result()
			}))

			var seen *principals.Principal
			handler := srv.RequireCredential()(func(w http.ResponseWriter, r *http.Request) {
				seen, _ = server.PrincipalFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			rec := httptest.NewRecorder()
			handler(rec, httptest.NewRequest(http.MethodGet, server.RouteAuth, nil))
			require.Equal(t, tc.wantStatus, rec.Code)
			if tc.wantStatus == http.StatusOK {
				require.Equal(t, ann, seen)
			} else {
				require.Nil(t, seen)
			}
		})
	}
}

func TestRecoverMiddleware(t *testing.T) {
	srv := server.New(testConfig(), nil, nil)
	handler := server.ChainMiddleware(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}, srv.APIMiddleware()...)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/v1/panic", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	requireDetail(t, rec.Body.Bytes(), "Internal server error")
}
