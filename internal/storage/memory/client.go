package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/qbit/internal/model"
)

type banKey struct {
	ns    model.BanNamespace
	value string
}

// Client is an in-process Store for -dev runs and tests. Nothing survives a restart.
type Client struct {
	mu     sync.RWMutex
	claims map[string]model.ClaimRecord
	bans   map[banKey]struct{}
}

func New() *Client {
	return &Client{
		claims: make(map[string]model.ClaimRecord),
		bans:   make(map[banKey]struct{}),
	}
}

func (c *Client) Close() error { return nil }

// GetClaim returns nil, nil when the device is unclaimed.
func (c *Client) GetClaim(ctx context.Context, deviceID string) (*model.ClaimRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.claims[deviceID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (c *Client) PutClaim(ctx context.Context, rec model.ClaimRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claims[rec.DeviceID] = rec
	return nil
}

func (c *Client) DeleteClaim(ctx context.Context, deviceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.claims, deviceID)
	return nil
}

func (c *Client) ListClaims(ctx context.Context) ([]model.ClaimRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.ClaimRecord, 0, len(c.claims))
	for _, rec := range c.claims {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}

func (c *Client) AddBan(ctx context.Context, ns model.BanNamespace, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bans[banKey{ns, value}] = struct{}{}
	return nil
}

func (c *Client) RemoveBan(ctx context.Context, ns model.BanNamespace, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.bans, banKey{ns, value})
	return nil
}

func (c *Client) ListBans(ctx context.Context) ([]model.BanEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.BanEntry, 0, len(c.bans))
	for k := range c.bans {
		out = append(out, model.BanEntry{Namespace: k.ns, Value: k.value})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Namespace != out[j].Namespace {
			return out[i].Namespace < out[j].Namespace
		}
		return out[i].Value < out[j].Value
	})
	return out, nil
}
