package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/qbit/internal/model"
	"github.com/redis/go-redis/v9"
)

// Keys: claims is a hash device_id -> JSON ClaimRecord, bans:{namespace} are sets.
const (
	claimsKey = "claims"
	banPrefix = "bans:"
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

// NewFromClient wraps an existing connection (tests use a dedicated DB).
func NewFromClient(cli *redis.Client) *Client {
	return &Client{cli: cli}
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// GetClaim returns nil, nil when the device has no owner.
func (c *Client) GetClaim(ctx context.Context, deviceID string) (*model.ClaimRecord, error) {
	raw, err := c.cli.HGet(ctx, claimsKey, deviceID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis.GetClaim: %w", err)
	}
	var rec model.ClaimRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("redis.GetClaim decode %s: %w", deviceID, err)
	}
	return &rec, nil
}

func (c *Client) PutClaim(ctx context.Context, rec model.ClaimRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redis.PutClaim encode: %w", err)
	}
	if err := c.cli.HSet(ctx, claimsKey, rec.DeviceID, raw).Err(); err != nil {
		return fmt.Errorf("redis.PutClaim: %w", err)
	}
	return nil
}

func (c *Client) DeleteClaim(ctx context.Context, deviceID string) error {
	if err := c.cli.HDel(ctx, claimsKey, deviceID).Err(); err != nil {
		return fmt.Errorf("redis.DeleteClaim: %w", err)
	}
	return nil
}

func (c *Client) ListClaims(ctx context.Context) ([]model.ClaimRecord, error) {
	all, err := c.cli.HGetAll(ctx, claimsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis.ListClaims: %w", err)
	}
	out := make([]model.ClaimRecord, 0, len(all))
	for id, raw := range all {
		var rec model.ClaimRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("redis.ListClaims decode %s: %w", id, err)
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}

func (c *Client) AddBan(ctx context.Context, ns model.BanNamespace, value string) error {
	if err := c.cli.SAdd(ctx, banPrefix+string(ns), value).Err(); err != nil {
		return fmt.Errorf("redis.AddBan: %w", err)
	}
	return nil
}

func (c *Client) RemoveBan(ctx context.Context, ns model.BanNamespace, value string) error {
	if err := c.cli.SRem(ctx, banPrefix+string(ns), value).Err(); err != nil {
		return fmt.Errorf("redis.RemoveBan: %w", err)
	}
	return nil
}

func (c *Client) ListBans(ctx context.Context) ([]model.BanEntry, error) {
	var out []model.BanEntry
	for _, ns := range model.BanNamespaces {
		members, err := c.cli.SMembers(ctx, banPrefix+string(ns)).Result()
		if err != nil {
			return nil, fmt.Errorf("redis.ListBans %s: %w", ns, err)
		}
		sort.Strings(members)
		for _, v := range members {
			out = append(out, model.BanEntry{Namespace: ns, Value: v})
		}
	}
	return out, nil
}

// FlushDB clears the current database (test resets).
func (c *Client) FlushDB(ctx context.Context) error {
	return c.cli.FlushDB(ctx).Err()
}
