package redis

import (
	"context"
	"testing"
	"time"

	"github.com/qbit/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *Client {
	cli := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := cli.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	c := NewFromClient(cli)
	require.NoError(t, c.FlushDB(ctx))

	t.Cleanup(func() {
		c.FlushDB(ctx)
		c.Close()
	})
	return c
}

func TestClaimRoundTrip(t *testing.T) {
	c := setupTestRedis(t)
	ctx := context.Background()

	rec, err := c.GetClaim(ctx, "D1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, c.PutClaim(ctx, model.ClaimRecord{DeviceID: "D1", UserID: "U1", UserName: "Ann", ClaimedAt: at}))

	rec, err = c.GetClaim(ctx, "D1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Ann", rec.UserName)
	assert.True(t, at.Equal(rec.ClaimedAt))

	list, err := c.ListClaims(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, c.DeleteClaim(ctx, "D1"))
	rec, err = c.GetClaim(ctx, "D1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestBanSets(t *testing.T) {
	c := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.AddBan(ctx, model.BanDevice, "D9"))
	require.NoError(t, c.AddBan(ctx, model.BanAccount, "U1"))

	bans, err := c.ListBans(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.BanEntry{
		{Namespace: model.BanAccount, Value: "U1"},
		{Namespace: model.BanDevice, Value: "D9"},
	}, bans)

	require.NoError(t, c.RemoveBan(ctx, model.BanDevice, "D9"))
	bans, err = c.ListBans(ctx)
	require.NoError(t, err)
	assert.Len(t, bans, 1)
}
