package core

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/qbit/internal/model"
	"github.com/qbit/internal/storage/memory"
	"github.com/qbit/internal/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHub(t *testing.T) (*BroadcastHub, *DeviceRegistry, *PresenceTracker, *memory.Client) {
	t.Helper()
	store := memory.New()
	bans := NewBanGuard(store)
	devices := NewDeviceRegistry(bans, nil)
	users := NewPresenceTracker(bans, nil, 0)
	claims := NewClaimCoordinator(devices, store, &fakeScheduler{})
	hub := NewBroadcastHub(devices, users, claims)
	devices.Subscribe(hub)
	users.Subscribe(hub)
	claims.Subscribe(hub)
	return hub, devices, users, store
}

func TestDeviceSnapshotCarriesOwner(t *testing.T) {
	ctx := context.Background()
	hub, devices, _, store := newHub(t)
	require.NoError(t, devices.Register(model.DeviceInfo{ID: "B", Name: "b"}, newConn("c1", "10.0.0.1")))
	require.NoError(t, devices.Register(model.DeviceInfo{ID: "A", Name: "a"}, newConn("c2", "10.0.0.2")))
	require.NoError(t, store.PutClaim(ctx, model.ClaimRecord{DeviceID: "B", UserID: "U1", UserName: "Ursula"}))
	// a record for an offline device is not listed
	require.NoError(t, store.PutClaim(ctx, model.ClaimRecord{DeviceID: "gone", UserID: "U1"}))

	snap, err := hub.DeviceSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 2)
	assert.Equal(t, "A", snap[0].ID)
	assert.Nil(t, snap[0].ClaimedBy)
	assert.Equal(t, "B", snap[1].ID)
	require.NotNil(t, snap[1].ClaimedBy)
	assert.Equal(t, "Ursula", snap[1].ClaimedBy.UserName)
}

func TestSnapshotIdempotent(t *testing.T) {
	ctx := context.Background()
	hub, devices, users, _ := newHub(t)
	require.NoError(t, devices.Register(model.DeviceInfo{ID: "D1"}, newConn("c1", "10.0.0.1")))
	require.NoError(t, users.Add(newConn("u1", "10.0.0.2"), identity("U1")))

	first, err := hub.DeviceSnapshot(ctx)
	require.NoError(t, err)
	second, err := hub.DeviceSnapshot(ctx)
	require.NoError(t, err)
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	assert.JSONEq(t, string(a), string(b))

	a, _ = json.Marshal(hub.UserSnapshot())
	b, _ = json.Marshal(hub.UserSnapshot())
	assert.JSONEq(t, string(a), string(b))
}

func TestBroadcastReachesEveryUserSocket(t *testing.T) {
	_, devices, users, _ := newHub(t)
	tab1 := newConn("u1", "10.0.0.2")
	tab2 := newConn("u2", "10.0.0.2")
	require.NoError(t, users.Add(tab1, identity("U1")))
	require.NoError(t, users.Add(tab2, identity("U2")))
	dev := newConn("c1", "10.0.0.1")

	require.NoError(t, devices.Register(model.DeviceInfo{ID: "D1", Name: "desk"}, dev))
	for _, c := range []*fakeConn{tab1, tab2} {
		msg, ok := c.last(ws.EventDevicesUpdate)
		require.True(t, ok)
		list := msg.Payload.([]model.DevicePublic)
		require.Len(t, list, 1)
		assert.Equal(t, "desk", list[0].Name)

		msg, ok = c.last(ws.EventUsersUpdate)
		require.True(t, ok)
		assert.Len(t, msg.Payload.([]model.UserPresence), 2)
	}
	assert.Empty(t, dev.messages(), "devices do not get snapshots")

	devices.Deregister(dev)
	msg, _ := tab1.last(ws.EventDevicesUpdate)
	assert.Empty(t, msg.Payload.([]model.DevicePublic))
}
