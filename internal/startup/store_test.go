package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/qbit/internal/config"
	"github.com/qbit/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStoreMemory(t *testing.T) {
	s, err := OpenStore(context.Background(), &config.Config{StoreDriver: config.StoreMemory})
	require.NoError(t, err)
	assert.IsType(t, &memory.Client{}, s)
	assert.NoError(t, s.Close())
}

func TestOpenStoreUnknown(t *testing.T) {
	_, err := OpenStore(context.Background(), &config.Config{StoreDriver: "etcd"})
	assert.Error(t, err)
}

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, 4*time.Second, nextBackoff(2*time.Second))
	assert.Equal(t, 30*time.Second, nextBackoff(16*time.Second))
	assert.Equal(t, 30*time.Second, nextBackoff(30*time.Second))
}

func TestRetry(t *testing.T) {
	calls := 0
	err := retry(context.Background(), "op", time.Minute, time.Second, func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryGivesUp(t *testing.T) {
	boom := errors.New("boom")
	err := retry(context.Background(), "op", time.Second, time.Second, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := retry(ctx, "op", time.Minute, time.Second, func(context.Context) error { return errors.New("down") })
	assert.ErrorIs(t, err, context.Canceled)
}
