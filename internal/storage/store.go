package storage

import (
	"context"

	"github.com/qbit/internal/model"
)

// ClaimStore persists device ownership, one record per device id.
// Implementations: redis.Client, memory.Client, repository.ClaimRepository.
type ClaimStore interface {
	GetClaim(ctx context.Context, deviceID string) (*model.ClaimRecord, error)
	PutClaim(ctx context.Context, rec model.ClaimRecord) error
	DeleteClaim(ctx context.Context, deviceID string) error
	ListClaims(ctx context.Context) ([]model.ClaimRecord, error)
}

// BanStore persists ban entries. No expiry.
type BanStore interface {
	AddBan(ctx context.Context, ns model.BanNamespace, value string) error
	RemoveBan(ctx context.Context, ns model.BanNamespace, value string) error
	ListBans(ctx context.Context) ([]model.BanEntry, error)
}

// Store is everything the coordination core persists.
type Store interface {
	ClaimStore
	BanStore
	Close() error
}
