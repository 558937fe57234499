package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-login-bridge/delegation"
	apperrors "github.com/jrsteele09/go-login-bridge/internal/errors"
	"github.com/redis/go-redis/v9"
)

var _ Store = (*Redis)(nil)

// Redis shares login state across replicas. Expiry is delegated to the key TTL
// and GETDEL makes Take single-use even under concurrent callbacks.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{
		client: client,
		prefix: "login_state:",
	}
}

func (r *Redis) key(state string) string {
	return r.prefix + state
}

func (r *Redis) Put(ctx context.Context, st delegation.State, ttl time.Duration) error {
	if st.State == "" {
		return errors.New("state cannot be empty")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("statestore: marshal: %w", err)
	}
	return r.client.Set(ctx, r.key(st.State), data, ttl).Err()
}

func (r *Redis) Take(ctx context.Context, key string) (*delegation.State, error) {
	if key == "" {
		return nil, apperrors.ErrStateNotFound
	}

	val, err := r.client.GetDel(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("statestore: getdel: %w", err)
	}

	var st delegation.State
	if err := json.Unmarshal([]byte(val), &st); err != nil {
		return nil, fmt.Errorf("statestore: unmarshal: %w", err)
	}
	return &st, nil
}
