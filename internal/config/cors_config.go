package config

import "strings"

type Cors struct {
	AllowedOrigins AllowedOrigins `env:"ALLOW_ORIGINS" envDefault:"http://localhost:3000"`
	// FrontendOrigin receives the login redirect when the caller's origin is unknown.
	FrontendOrigin string `env:"FRONTEND_ORIGIN" envDefault:"http://localhost:3000"`
}

type AllowedOrigins map[string]struct{}
type nullValue = struct{}

// NewAllowedOrigins builds the origin set, ignoring blanks and trailing slashes.
func NewAllowedOrigins(origins ...string) AllowedOrigins {
	a := AllowedOrigins{}
	for _, o := range origins {
		o = normaliseOrigin(o)
		if o == "" {
			continue
		}
		a[o] = nullValue{}
	}
	return a
}

// UnmarshalText parses a comma separated origin list.
func (a *AllowedOrigins) UnmarshalText(text []byte) error {
	*a = NewAllowedOrigins(strings.Split(string(text), ",")...)
	return nil
}

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	_, ok := a[normaliseOrigin(origin)]
	return ok
}

func (a AllowedOrigins) String() string {
	var origins []string
	for k := range a {
		origins = append(origins, k)
	}
	return strings.Join(origins, ", ")
}

func (Cors) GetAllowedMethods() string {
	return "GET, POST, PUT, PATCH, DELETE, OPTIONS"
}

func (Cors) GetAllowedHeaders() string {
	return "Content-Type, Authorization"
}

// GetFrontendOrigin returns the default redirect origin without a trailing slash
func (c Cors) GetFrontendOrigin() string {
	return normaliseOrigin(c.FrontendOrigin)
}

func normaliseOrigin(origin string) string {
	return strings.TrimRight(strings.TrimSpace(origin), "/")
}
