package memrepo_test

import (
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/go-login-bridge/principals/directorytest"
	"github.com/jrsteele09/go-login-bridge/principals/memrepo"
	"github.com/stretchr/testify/require"
)

func TestRepo_Directory(t *testing.T) {
	directorytest.Run(t, func(t *testing.T) directorytest.AdminDirectory {
		return memrepo.New()
	})
}

func TestRepo_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	r := memrepo.New()

	p, err := r.UpsertOnLogin(ctx, "alice@example.com", "Alice", time.Now())
	require.NoError(t, err)
	p.Name = "mutated"
	p.IsAdmin = true

	stored, err := r.FindByID(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, "Alice", stored.Name)
	require.False(t, stored.IsAdmin)
}

func TestRepo_List(t *testing.T) {
	ctx := context.Background()
	r := memrepo.New()

	_, err := r.UpsertOnLogin(ctx, "zed@example.com", "Zed", time.Now())
	require.NoError(t, err)
	_, err = r.UpsertOnLogin(ctx, "amy@example.com", "Amy", time.Now())
	require.NoError(t, err)

	list := r.List()
	require.Len(t, list, 2)
	require.Equal(t, "amy@example.com", list[0].Email)
	require.Equal(t, "zed@example.com", list[1].Email)
}

func TestRepo_AdminOperationsOnUnknownEmail(t *testing.T) {
	ctx := context.Background()
	r := memrepo.New()

	require.Error(t, r.Delete(ctx, "nobody@example.com"))
	require.Error(t, r.SetAdmin(ctx, "nobody@example.com", true))
}
