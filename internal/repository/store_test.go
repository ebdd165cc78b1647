package repository_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/qbit/internal/model"
	"github.com/qbit/internal/repository"
	"github.com/qbit/internal/startup"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newStore needs TEST_DATABASE_URL pointing at a disposable database.
func newStore(t *testing.T) *repository.Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping postgres tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("postgres not available: %v", err)
	}
	require.NoError(t, startup.RunMigrations(ctx, pool))
	_, err = pool.Exec(ctx, `TRUNCATE device_claims, bans`)
	require.NoError(t, err)

	s := repository.NewStore(pool)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestClaimRepository(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	got, err := s.GetClaim(ctx, "D1")
	require.NoError(t, err)
	assert.Nil(t, got)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.PutClaim(ctx, model.ClaimRecord{DeviceID: "D1", UserID: "U1", UserName: "Ursula", ClaimedAt: at}))
	require.NoError(t, s.PutClaim(ctx, model.ClaimRecord{DeviceID: "D0", UserID: "U2", ClaimedAt: at}))

	got, err = s.GetClaim(ctx, "D1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Ursula", got.UserName)
	assert.True(t, at.Equal(got.ClaimedAt))

	list, err := s.ListClaims(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "D0", list[0].DeviceID)

	require.NoError(t, s.DeleteClaim(ctx, "D1"))
	got, err = s.GetClaim(ctx, "D1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBanRepository(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.AddBan(ctx, model.BanAddress, "10.0.0.1"))
	require.NoError(t, s.AddBan(ctx, model.BanAddress, "10.0.0.1"))
	require.NoError(t, s.AddBan(ctx, model.BanAccount, "U1"))

	bans, err := s.ListBans(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.BanEntry{
		{Namespace: model.BanAccount, Value: "U1"},
		{Namespace: model.BanAddress, Value: "10.0.0.1"},
	}, bans)

	require.NoError(t, s.RemoveBan(ctx, model.BanAccount, "U1"))
	bans, err = s.ListBans(ctx)
	require.NoError(t, err)
	assert.Len(t, bans, 1)
}
