package core

import (
	"context"
	"testing"
	"time"

	"github.com/qbit/internal/model"
	"github.com/qbit/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T) (*DeviceRegistry, *BanGuard, *recorder) {
	t.Helper()
	bans := NewBanGuard(memory.New())
	r := NewDeviceRegistry(bans, nil)
	rec := &recorder{}
	r.Subscribe(rec)
	return r, bans, rec
}

func TestRegistryRegister(t *testing.T) {
	r, _, rec := newRegistry(t)
	c := newConn("c1", "10.0.0.1:5000")

	require.NoError(t, r.Register(model.DeviceInfo{ID: " D1 ", Name: "desk", IP: "192.168.1.20", Version: "1.2"}, c))

	s, ok := r.Lookup("D1")
	require.True(t, ok)
	assert.Equal(t, "desk", s.Name)
	assert.Equal(t, "10.0.0.1", s.PublicIP)
	assert.Same(t, c, s.Conn)
	id, ok := r.DeviceOf(c)
	assert.True(t, ok)
	assert.Equal(t, "D1", id)
	assert.Equal(t, 1, rec.count(TopicDevices))
}

func TestRegistryRejectsEmptyID(t *testing.T) {
	r, _, rec := newRegistry(t)
	err := r.Register(model.DeviceInfo{ID: "  "}, newConn("c1", "10.0.0.1"))
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Zero(t, r.Len())
	assert.Empty(t, rec.topics)
}

func TestRegistrySupersedesOlderConnection(t *testing.T) {
	r, _, _ := newRegistry(t)
	old := newConn("c1", "10.0.0.1")
	cur := newConn("c2", "10.0.0.2")

	require.NoError(t, r.Register(model.DeviceInfo{ID: "D1"}, old))
	require.NoError(t, r.Register(model.DeviceInfo{ID: "D1"}, cur))

	assert.True(t, old.isClosed())
	assert.False(t, cur.isClosed())
	assert.Equal(t, 1, r.Len())
	s, _ := r.Lookup("D1")
	assert.Same(t, cur, s.Conn)

	_, ok := r.DeviceOf(old)
	assert.False(t, ok, "superseded conn owns nothing")

	// the old socket's close handler fires late
	assert.False(t, r.Deregister(old))
	s, ok = r.Lookup("D1")
	require.True(t, ok)
	assert.Same(t, cur, s.Conn)
}

func TestRegistryReRegisterKeepsConnectTime(t *testing.T) {
	r, _, _ := newRegistry(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }
	c := newConn("c1", "10.0.0.1")

	require.NoError(t, r.Register(model.DeviceInfo{ID: "D1", Name: "old"}, c))
	r.now = func() time.Time { return base.Add(time.Minute) }
	require.NoError(t, r.Register(model.DeviceInfo{ID: "D1", Name: "new"}, c))

	s, _ := r.Lookup("D1")
	assert.Equal(t, "new", s.Name)
	assert.Equal(t, base, s.ConnectedAt)
	assert.False(t, c.isClosed())
}

func TestRegistrySameConnNewID(t *testing.T) {
	r, _, _ := newRegistry(t)
	c := newConn("c1", "10.0.0.1")
	require.NoError(t, r.Register(model.DeviceInfo{ID: "D1"}, c))
	require.NoError(t, r.Register(model.DeviceInfo{ID: "D2"}, c))

	_, ok := r.Lookup("D1")
	assert.False(t, ok)
	_, ok = r.Lookup("D2")
	assert.True(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryDeregister(t *testing.T) {
	r, _, rec := newRegistry(t)
	c := newConn("c1", "10.0.0.1")
	require.NoError(t, r.Register(model.DeviceInfo{ID: "D1"}, c))

	assert.True(t, r.Deregister(c))
	assert.False(t, r.Deregister(c))
	assert.Zero(t, r.Len())
	assert.Equal(t, 2, rec.count(TopicDevices))
}

func TestRegistryRejectsBanned(t *testing.T) {
	ctx := context.Background()
	r, bans, rec := newRegistry(t)
	require.NoError(t, bans.Add(ctx, model.BanDevice, "D1"))
	require.NoError(t, bans.Add(ctx, model.BanAddress, "10.0.0.9"))

	c1 := newConn("c1", "10.0.0.1")
	assert.ErrorIs(t, r.Register(model.DeviceInfo{ID: "D1"}, c1), ErrBanned)
	assert.True(t, c1.isClosed())

	c2 := newConn("c2", "[::ffff:10.0.0.9]:4000")
	assert.ErrorIs(t, r.Register(model.DeviceInfo{ID: "D2"}, c2), ErrBanned)
	assert.True(t, c2.isClosed())

	assert.Zero(t, r.Len())
	assert.Empty(t, rec.topics)
}

func TestRegistryDisconnectByAddress(t *testing.T) {
	r, _, _ := newRegistry(t)
	a := newConn("c1", "10.0.0.1:1")
	b := newConn("c2", "10.0.0.1:2")
	other := newConn("c3", "10.0.0.2:1")
	require.NoError(t, r.Register(model.DeviceInfo{ID: "A"}, a))
	require.NoError(t, r.Register(model.DeviceInfo{ID: "B"}, b))
	require.NoError(t, r.Register(model.DeviceInfo{ID: "C"}, other))

	assert.Equal(t, 2, r.DisconnectByAddress("10.0.0.1"))
	assert.True(t, a.isClosed())
	assert.True(t, b.isClosed())
	assert.False(t, other.isClosed())
	assert.Equal(t, 1, r.Len())
}

func TestRegistryHeartbeat(t *testing.T) {
	r, _, rec := newRegistry(t)
	quiet := newConn("c1", "10.0.0.1")
	chatty := newConn("c2", "10.0.0.2")
	require.NoError(t, r.Register(model.DeviceInfo{ID: "quiet"}, quiet))
	require.NoError(t, r.Register(model.DeviceInfo{ID: "chatty"}, chatty))

	assert.Zero(t, r.Heartbeat(), "first round only pings")
	assert.Equal(t, 1, quiet.pings)
	assert.Equal(t, 1, chatty.pings)

	r.MarkAlive(chatty)
	assert.Equal(t, 1, r.Heartbeat())
	assert.True(t, quiet.isClosed())
	assert.False(t, chatty.isClosed())
	assert.Equal(t, 2, chatty.pings)

	_, ok := r.Lookup("quiet")
	assert.False(t, ok)
	assert.Equal(t, 3, rec.count(TopicDevices))
}

func TestRegistrySessionsOrdered(t *testing.T) {
	r, _, _ := newRegistry(t)
	for _, id := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, r.Register(model.DeviceInfo{ID: id}, newConn("conn-"+id, "10.0.0.1")))
	}
	var ids []string
	for _, s := range r.Sessions() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, ids)
}
