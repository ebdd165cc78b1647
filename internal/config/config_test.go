package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"
)

func TestDefaults(t *testing.T) {
	cfg := fromYAML(defaults())

	assert.Equal(t, ":3000", cfg.ServerAddr)
	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.Equal(t, 100, cfg.MaxDeviceConnections)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 10, cfg.DBMaxConnections())
}

func TestEnvOverridesYAML(t *testing.T) {
	yc := defaults()
	err := yaml.Unmarshal([]byte("store_driver: redis\nmax_device_connections: 5\nredis:\n  url: redis://cache:6379\n"), &yc)
	assert.NoError(t, err)

	t.Setenv("MAX_DEVICE_CONNECTIONS", "7")
	t.Setenv("DEVICE_API_KEY", "k1")
	cfg := fromYAML(yc)

	assert.Equal(t, StoreRedis, cfg.StoreDriver)
	assert.Equal(t, "redis://cache:6379", cfg.Redis.URL)
	assert.Equal(t, 7, cfg.MaxDeviceConnections)
	assert.Equal(t, "k1", cfg.DeviceAPIKey)
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("MAX_DEVICE_CONNECTIONS", "-1")
	t.Setenv("HEARTBEAT_INTERVAL", "abc")
	cfg := fromYAML(defaults())

	assert.Equal(t, 100, cfg.MaxDeviceConnections)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
}
