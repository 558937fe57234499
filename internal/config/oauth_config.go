package config

import (
	"strings"
	"time"
)

const googleIssuer = "https://accounts.google.com"

// OAuth describes the single upstream OpenID Connect provider.
type OAuth struct {
	ClientID     string        `env:"GOOGLE_CLIENT_ID"`
	ClientSecret string        `env:"GOOGLE_CLIENT_SECRET"`
	IssuerURL    string        `env:"OIDC_ISSUER_URL" envDefault:"https://accounts.google.com"`
	RedirectURL  string        `env:"OAUTH_REDIRECT_URL"`
	Scopes       []string      `env:"OAUTH_SCOPES" envDefault:"openid,email,profile" envSeparator:","`
	// ProviderTimeout bounds every outbound call to the provider.
	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`
}

// ProviderConfigured reports whether both client credentials are present.
func (o OAuth) ProviderConfigured() bool {
	return strings.TrimSpace(o.ClientID) != "" && strings.TrimSpace(o.ClientSecret) != ""
}

func (o OAuth) GetIssuerURL() string {
	if o.IssuerURL == "" {
		return googleIssuer
	}
	return o.IssuerURL
}
