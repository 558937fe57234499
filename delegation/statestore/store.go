// Package statestore keeps delegation state between the login redirect and the
// provider callback. Entries expire after a TTL and can be taken only once.
package statestore

import (
	"context"
	"time"

	"github.com/jrsteele09/go-login-bridge/delegation"
)

// DefaultTTL bounds how long a login attempt may take.
const DefaultTTL = 10 * time.Minute

// Store is keyed by the attempt's state token.
type Store interface {
	Put(ctx context.Context, st delegation.State, ttl time.Duration) error
	// Take returns and removes the state for key. Missing, expired and already
	// taken entries all wrap ErrStateNotFound.
	Take(ctx context.Context, key string) (*delegation.State, error)
}
