package statestore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jrsteele09/go-login-bridge/delegation"
	apperrors "github.com/jrsteele09/go-login-bridge/internal/errors"
)

var _ Store = (*Memory)(nil)

type entry struct {
	state     delegation.State
	expiresAt time.Time
}

// Memory is a thread-safe in-process Store. Expired entries are dropped on
// every Put, so the map stays bounded by the attempts of one TTL window.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// WithClock replaces the clock used for expiry.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Put(_ context.Context, st delegation.State, ttl time.Duration) error {
	if st.State == "" {
		return errors.New("state cannot be empty")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
		}
	}
	m.entries[st.State] = entry{state: st, expiresAt: now.Add(ttl)}
	return nil
}

func (m *Memory) Take(_ context.Context, key string) (*delegation.State, error) {
	if key == "" {
		return nil, apperrors.ErrStateNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, apperrors.ErrStateNotFound
	}
	delete(m.entries, key)
	if !m.now().Before(e.expiresAt) {
		return nil, apperrors.Wrapf(apperrors.ErrStateNotFound, "state expired")
	}
	st := e.state
	return &st, nil
}

// Len reports the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
