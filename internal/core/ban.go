package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/qbit/internal/model"
	"github.com/qbit/internal/storage"
)

// BanGuard mirrors the persisted ban list in memory. Checks never do I/O;
// Add and Remove write to the store first and only then touch memory.
type BanGuard struct {
	store storage.BanStore
	sets  map[model.BanNamespace]map[string]struct{}
}

func NewBanGuard(store storage.BanStore) *BanGuard {
	g := &BanGuard{store: store, sets: make(map[model.BanNamespace]map[string]struct{}, len(model.BanNamespaces))}
	for _, ns := range model.BanNamespaces {
		g.sets[ns] = make(map[string]struct{})
	}
	return g
}

// Load replaces the in-memory sets with the store's content.
func (g *BanGuard) Load(ctx context.Context) error {
	entries, err := g.store.ListBans(ctx)
	if err != nil {
		return fmt.Errorf("bans.Load: %w", err)
	}
	for _, ns := range model.BanNamespaces {
		g.sets[ns] = make(map[string]struct{})
	}
	for _, e := range entries {
		if set, ok := g.sets[e.Namespace]; ok {
			set[canonicalBanValue(e.Namespace, e.Value)] = struct{}{}
		}
	}
	return nil
}

func (g *BanGuard) Add(ctx context.Context, ns model.BanNamespace, value string) error {
	set, value, err := g.target(ns, value)
	if err != nil {
		return err
	}
	if err := g.store.AddBan(ctx, ns, value); err != nil {
		return fmt.Errorf("bans.Add %s=%s: %w", ns, value, err)
	}
	set[value] = struct{}{}
	return nil
}

func (g *BanGuard) Remove(ctx context.Context, ns model.BanNamespace, value string) error {
	set, value, err := g.target(ns, value)
	if err != nil {
		return err
	}
	if err := g.store.RemoveBan(ctx, ns, value); err != nil {
		return fmt.Errorf("bans.Remove %s=%s: %w", ns, value, err)
	}
	delete(set, value)
	return nil
}

func (g *BanGuard) target(ns model.BanNamespace, value string) (map[string]struct{}, string, error) {
	set, ok := g.sets[ns]
	if !ok {
		return nil, "", fmt.Errorf("%w: unknown ban namespace %q", ErrMalformed, ns)
	}
	value = canonicalBanValue(ns, value)
	if value == "" {
		return nil, "", fmt.Errorf("%w: empty ban value", ErrMalformed)
	}
	return set, value, nil
}

// IsBanned checks an account id and/or an address; empty arguments are skipped.
func (g *BanGuard) IsBanned(accountID, address string) bool {
	if accountID != "" {
		if _, ok := g.sets[model.BanAccount][accountID]; ok {
			return true
		}
	}
	if address != "" {
		if _, ok := g.sets[model.BanAddress][normalizeAddress(address)]; ok {
			return true
		}
	}
	return false
}

func (g *BanGuard) IsBannedDevice(deviceID string) bool {
	_, ok := g.sets[model.BanDevice][deviceID]
	return ok
}

// List returns every entry ordered by namespace, then value.
func (g *BanGuard) List() []model.BanEntry {
	var out []model.BanEntry
	for _, ns := range model.BanNamespaces {
		values := make([]string, 0, len(g.sets[ns]))
		for v := range g.sets[ns] {
			values = append(values, v)
		}
		sort.Strings(values)
		for _, v := range values {
			out = append(out, model.BanEntry{Namespace: ns, Value: v})
		}
	}
	return out
}

func canonicalBanValue(ns model.BanNamespace, value string) string {
	if ns == model.BanAddress {
		return normalizeAddress(value)
	}
	return strings.TrimSpace(value)
}
