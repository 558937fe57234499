// Package token issues and verifies the stateless session credential handed to
// the front end after a successful federated login.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/go-login-bridge/internal/errors"
	"github.com/jrsteele09/go-login-bridge/principals"
)

// DefaultTTL is the lifetime of a session credential.
const DefaultTTL = 12 * time.Hour

// Claims is the payload of a session credential. The subject is the
// principal's identity key.
type Claims struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	IsAdmin bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// PrincipalID returns the identity key carried by the credential.
func (c *Claims) PrincipalID() string {
	return c.Subject
}

// Codec issues and verifies credentials with one process-wide signer.
type Codec struct {
	signer Signer
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Codec)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Codec) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithNow sets the clock used for issuing and expiry checks.
func WithNow(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCodec returns a codec signing with secret. Changing the secret invalidates
// every credential issued before.
func NewCodec(secret string, opts ...Option) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("signing secret is required")
	}
	c := &Codec{
		signer: NewHMACSigner(secret),
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs a credential for p that expires after the codec's TTL.
func (c *Codec) Issue(p principals.Principal) (string, error) {
	if p.ID == "" {
		return "", errors.New("principal has no identity key")
	}
	now := c.now()
	claims := Claims{
		Email:   p.Email,
		Name:    p.Name,
		IsAdmin: p.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}
	signed, err := c.signer.Sign(claims)
	if err != nil {
		return "", fmt.Errorf("issue credential: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of raw and returns its claims.
// Every failure wraps ErrInvalidCredential.
func (c *Codec) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, c.signer.GetVerificationKey,
		jwt.WithValidMethods([]string{c.signer.GetSigningMethod().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidCredential, "verify credential: %v", err)
	}
	if !parsed.Valid {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidCredential, "verify credential")
	}
	if claims.Subject == "" {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidCredential, "credential has no subject")
	}
	return claims, nil
}
