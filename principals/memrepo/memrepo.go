package memrepo

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-login-bridge/internal/utils"
	"github.com/jrsteele09/go-login-bridge/principals"
)

var _ principals.Directory = (*Repo)(nil)

// Repo is an in-memory directory. Every operation holds the lock for its whole
// read-modify-write so concurrent logins for one email create a single record.
type Repo struct {
	principals map[string]*principals.Principal
	emailIds   map[string]string // email to principal id
	lock       sync.RWMutex
}

func New() *Repo {
	return &Repo{
		principals: make(map[string]*principals.Principal),
		emailIds:   make(map[string]string),
	}
}

func (r *Repo) FindByEmail(_ context.Context, email string) (*principals.Principal, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	id, ok := r.emailIds[email]
	if !ok {
		return nil, nil
	}
	return clone(r.principals[id]), nil
}

func (r *Repo) FindByID(_ context.Context, id string) (*principals.Principal, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return clone(r.principals[id]), nil
}

func (r *Repo) UpsertOnLogin(_ context.Context, email, name string, now time.Time) (*principals.Principal, error) {
	if email == "" {
		return nil, errors.New("email is required")
	}
	r.lock.Lock()
	defer r.lock.Unlock()

	lastLogin := utils.Ptr(now.UTC())
	if id, ok := r.emailIds[email]; ok {
		p := r.principals[id]
		if name != "" {
			p.Name = name
		}
		p.LastLogin = lastLogin
		return clone(p), nil
	}

	p := &principals.Principal{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      principals.DisplayName(email, name),
		LastLogin: lastLogin,
		IsActive:  true,
		IsAdmin:   false,
		CreatedAt: now.UTC(),
	}
	r.principals[p.ID] = p
	r.emailIds[email] = p.ID
	return clone(p), nil
}

// Delete removes the principal for email. It models the administrative path.
func (r *Repo) Delete(_ context.Context, email string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	id, ok := r.emailIds[email]
	if !ok {
		return errors.New("not found")
	}
	delete(r.emailIds, email)
	delete(r.principals, id)
	return nil
}

// SetAdmin flips the privileged flag. It models the administrative path.
func (r *Repo) SetAdmin(_ context.Context, email string, admin bool) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	id, ok := r.emailIds[email]
	if !ok {
		return errors.New("not found")
	}
	r.principals[id].IsAdmin = admin
	return nil
}

// List returns every principal ordered by email.
func (r *Repo) List() []principals.Principal {
	r.lock.RLock()
	defer r.lock.RUnlock()

	list := make([]principals.Principal, 0, len(r.principals))
	for _, p := range r.principals {
		list = append(list, *clone(p))
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Email < list[j].Email
	})
	return list
}

func clone(p *principals.Principal) *principals.Principal {
	if p == nil {
		return nil
	}
	c := *p
	if p.LastLogin != nil {
		c.LastLogin = utils.Ptr(utils.Value(p.LastLogin))
	}
	return &c
}
