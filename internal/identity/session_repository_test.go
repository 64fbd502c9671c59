package identity

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"smartchef/internal/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRepository(t *testing.T) {
	db, err := database.NewDB(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	defer db.Close()

	repo := NewSessionRepository(db.SQL)
	ctx := context.Background()

	missing, err := repo.Load(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, repo.Save(ctx, "s1", Credentials{UserID: "u1", IDToken: "t", RefreshToken: "r", Provider: ProviderAnonymous, ExpiresAt: exp}))
	require.NoError(t, repo.Save(ctx, "s1", Credentials{UserID: "u1", IDToken: "t2", RefreshToken: "r2", Provider: ProviderAnonymous, ExpiresAt: exp}))

	got, err := repo.Load(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "r2", got.RefreshToken)
	assert.True(t, got.ExpiresAt.Equal(exp))

	n, err := repo.CleanupStale(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = repo.CleanupStale(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, repo.Delete(ctx, "s1"))
}
