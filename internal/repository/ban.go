package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/qbit/internal/logger"
	"github.com/qbit/internal/model"
)

type BanRepository struct {
	pool *pgxpool.Pool
}

func NewBanRepository(pool *pgxpool.Pool) *BanRepository {
	return &BanRepository{pool: pool}
}

func (r *BanRepository) AddBan(ctx context.Context, ns model.BanNamespace, value string) error {
	defer logger.DeferLogDuration("ban.Add", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO bans (namespace, value, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT DO NOTHING`,
		string(ns), value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("banRepo.Add: %w", err)
	}
	return nil
}

func (r *BanRepository) RemoveBan(ctx context.Context, ns model.BanNamespace, value string) error {
	defer logger.DeferLogDuration("ban.Remove", time.Now())()
	if _, err := r.pool.Exec(ctx, `DELETE FROM bans WHERE namespace = $1 AND value = $2`, string(ns), value); err != nil {
		return fmt.Errorf("banRepo.Remove: %w", err)
	}
	return nil
}

func (r *BanRepository) ListBans(ctx context.Context) ([]model.BanEntry, error) {
	defer logger.DeferLogDuration("ban.List", time.Now())()
	rows, err := r.pool.Query(ctx, `SELECT namespace, value FROM bans ORDER BY namespace, value`)
	if err != nil {
		return nil, fmt.Errorf("banRepo.List query: %w", err)
	}
	defer rows.Close()

	var out []model.BanEntry
	for rows.Next() {
		var ns, value string
		if err := rows.Scan(&ns, &value); err != nil {
			return nil, fmt.Errorf("banRepo.List scan: %w", err)
		}
		parsed, err := model.ParseBanNamespace(ns)
		if err != nil {
			logger.Errorf("banRepo.List skip row: %v", err)
			continue
		}
		out = append(out, model.BanEntry{Namespace: parsed, Value: value})
	}
	return out, rows.Err()
}
