// Package principals holds the user directory records resolved from session
// credentials and the directory contract used by the login flow.
package principals

import (
	"context"
	"time"
)

// Principal is the durable user record. ID is assigned once at creation and
// never changes; Email is unique across the directory.
type Principal struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	LastLogin *time.Time `json:"last_login"`
	IsActive  bool       `json:"is_active"`
	IsAdmin   bool       `json:"is_admin"`
	CreatedAt time.Time  `json:"-"`
}

// Directory is the identity store the login bridge depends on.
// Lookups return (nil, nil) when nothing matches.
type Directory interface {
	FindByEmail(ctx context.Context, email string) (*Principal, error)
	FindByID(ctx context.Context, id string) (*Principal, error)
	// UpsertOnLogin creates the principal for email, or refreshes the name and
	// last login of the existing one. It must be atomic per email and must not
	// touch ID or IsAdmin of an existing principal.
	UpsertOnLogin(ctx context.Context, email, name string, now time.Time) (*Principal, error)
}

// DisplayName returns the name to store for a newly created principal.
func DisplayName(email, name string) string {
	if name == "" {
		return email
	}
	return name
}
