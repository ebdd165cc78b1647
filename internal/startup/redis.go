package startup

import (
	"context"
	"time"

	redisstorage "github.com/qbit/internal/storage/redis"
)

// ConnectRedis dials the claim/ban store on Redis, retrying while the server comes up.
func ConnectRedis(ctx context.Context, redisURL string, maxWait time.Duration) (*redisstorage.Client, error) {
	var client *redisstorage.Client
	err := retry(ctx, "redis connect", maxWait, 5*time.Second, func(ctx context.Context) error {
		c, err := redisstorage.New(ctx, redisURL)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	return client, err
}
