// Package directorytest holds behaviour tests every principals.Directory
// implementation must pass.
package directorytest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-login-bridge/principals"
	"github.com/stretchr/testify/require"
)

// AdminDirectory adds the administrative operations the tests need to set up state.
type AdminDirectory interface {
	principals.Directory
	SetAdmin(ctx context.Context, email string, admin bool) error
	Delete(ctx context.Context, email string) error
}

// Run exercises dir against the directory contract.
func Run(t *testing.T, newDirectory func(t *testing.T) AdminDirectory) {
	t.Helper()
	ctx := context.Background()
	firstLogin := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	secondLogin := firstLogin.Add(26 * time.Hour)

	t.Run("lookups miss without error", func(t *testing.T) {
		dir := newDirectory(t)

		p, err := dir.FindByEmail(ctx, "nobody@example.com")
		require.NoError(t, err)
		require.Nil(t, p)

		p, err = dir.FindByID(ctx, "00000000-0000-0000-0000-000000000000")
		require.NoError(t, err)
		require.Nil(t, p)
	})

	t.Run("first login creates an active non admin principal", func(t *testing.T) {
		dir := newDirectory(t)

		p, err := dir.UpsertOnLogin(ctx, "alice@example.com", "Alice", firstLogin)
		require.NoError(t, err)
		require.NotEmpty(t, p.ID)
		require.Equal(t, "alice@example.com", p.Email)
		require.Equal(t, "Alice", p.Name)
		require.True(t, p.IsActive)
		require.False(t, p.IsAdmin)
		require.NotNil(t, p.LastLogin)
		require.True(t, firstLogin.Equal(*p.LastLogin))

		byEmail, err := dir.FindByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		require.Equal(t, p.ID, byEmail.ID)

		byID, err := dir.FindByID(ctx, p.ID)
		require.NoError(t, err)
		require.Equal(t, "alice@example.com", byID.Email)
	})

	t.Run("missing name falls back to email", func(t *testing.T) {
		dir := newDirectory(t)

		p, err := dir.UpsertOnLogin(ctx, "bob@example.com", "", firstLogin)
		require.NoError(t, err)
		require.Equal(t, "bob@example.com", p.Name)
	})

	t.Run("repeat login refreshes name and last login only", func(t *testing.T) {
		dir := newDirectory(t)

		first, err := dir.UpsertOnLogin(ctx, "alice@example.com", "Alice", firstLogin)
		require.NoError(t, err)
		require.NoError(t, dir.SetAdmin(ctx, "alice@example.com", true))

		second, err := dir.UpsertOnLogin(ctx, "alice@example.com", "Alice R.", secondLogin)
		require.NoError(t, err)
		require.Equal(t, first.ID, second.ID)
		require.Equal(t, "Alice R.", second.Name)
		require.True(t, second.IsAdmin)
		require.True(t, second.IsActive)
		require.True(t, secondLogin.Equal(*second.LastLogin))

		third, err := dir.UpsertOnLogin(ctx, "alice@example.com", "", secondLogin.Add(time.Hour))
		require.NoError(t, err)
		require.Equal(t, "Alice R.", third.Name)
	})

	t.Run("email match is case sensitive", func(t *testing.T) {
		dir := newDirectory(t)

		lower, err := dir.UpsertOnLogin(ctx, "carol@example.com", "Carol", firstLogin)
		require.NoError(t, err)
		upper, err := dir.UpsertOnLogin(ctx, "Carol@example.com", "Carol", firstLogin)
		require.NoError(t, err)
		require.NotEqual(t, lower.ID, upper.ID)
	})

	t.Run("concurrent first logins create one principal", func(t *testing.T) {
		dir := newDirectory(t)

		const logins = 16
		ids := make([]string, logins)
		errs := make([]error, logins)
		var wg sync.WaitGroup
		for i := 0; i < logins; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				p, err := dir.UpsertOnLogin(ctx, "dave@example.com", "Dave", firstLogin)
				errs[i] = err
				if p != nil {
					ids[i] = p.ID
				}
			}(i)
		}
		wg.Wait()

		for i := range errs {
			require.NoError(t, errs[i])
			require.Equal(t, ids[0], ids[i])
		}
		p, err := dir.FindByEmail(ctx, "dave@example.com")
		require.NoError(t, err)
		require.Equal(t, ids[0], p.ID)
	})

	t.Run("deleted principal is gone", func(t *testing.T) {
		dir := newDirectory(t)

		p, err := dir.UpsertOnLogin(ctx, "erin@example.com", "Erin", firstLogin)
		require.NoError(t, err)
		require.NoError(t, dir.Delete(ctx, "erin@example.com"))

		found, err := dir.FindByID(ctx, p.ID)
		require.NoError(t, err)
		require.Nil(t, found)
	})
}
