package memory

import (
	"context"
	"testing"
	"time"

	"github.com/qbit/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaims(t *testing.T) {
	ctx := context.Background()
	c := New()

	rec, err := c.GetClaim(ctx, "D1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, c.PutClaim(ctx, model.ClaimRecord{DeviceID: "D2", UserID: "U1", ClaimedAt: at}))
	require.NoError(t, c.PutClaim(ctx, model.ClaimRecord{DeviceID: "D1", UserID: "U2", ClaimedAt: at}))

	rec, err = c.GetClaim(ctx, "D2")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "U1", rec.UserID)

	list, err := c.ListClaims(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "D1", list[0].DeviceID)

	require.NoError(t, c.DeleteClaim(ctx, "D2"))
	rec, err = c.GetClaim(ctx, "D2")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestBans(t *testing.T) {
	ctx := context.Background()
	c := New()

	require.NoError(t, c.AddBan(ctx, model.BanAddress, "10.0.0.1"))
	require.NoError(t, c.AddBan(ctx, model.BanAccount, "U1"))
	require.NoError(t, c.AddBan(ctx, model.BanAccount, "U1"))

	bans, err := c.ListBans(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.BanEntry{
		{Namespace: model.BanAccount, Value: "U1"},
		{Namespace: model.BanAddress, Value: "10.0.0.1"},
	}, bans)

	require.NoError(t, c.RemoveBan(ctx, model.BanAccount, "U1"))
	bans, err = c.ListBans(ctx)
	require.NoError(t, err)
	assert.Len(t, bans, 1)
}
