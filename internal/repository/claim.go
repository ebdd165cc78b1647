package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/qbit/internal/logger"
	"github.com/qbit/internal/model"
)

const claimCols = `device_id, user_id, user_name, avatar_url, claimed_at`

type ClaimRepository struct {
	pool *pgxpool.Pool
}

func NewClaimRepository(pool *pgxpool.Pool) *ClaimRepository {
	return &ClaimRepository{pool: pool}
}

func scanClaim(s interface{ Scan(dest ...any) error }, c *model.ClaimRecord) error {
	return s.Scan(&c.DeviceID, &c.UserID, &c.UserName, &c.AvatarURL, &c.ClaimedAt)
}

// GetClaim returns nil, nil when the device has no owner.
func (r *ClaimRepository) GetClaim(ctx context.Context, deviceID string) (*model.ClaimRecord, error) {
	defer logger.DeferLogDuration("claim.Get", time.Now())()
	c := &model.ClaimRecord{}
	row := r.pool.QueryRow(ctx, `SELECT `+claimCols+` FROM device_claims WHERE device_id = $1`, deviceID)
	if err := scanClaim(row, c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claimRepo.Get: %w", err)
	}
	return c, nil
}

func (r *ClaimRepository) PutClaim(ctx context.Context, c model.ClaimRecord) error {
	defer logger.DeferLogDuration("claim.Put", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO device_claims (`+claimCols+`)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (device_id) DO UPDATE
		 SET user_id = EXCLUDED.user_id, user_name = EXCLUDED.user_name,
		     avatar_url = EXCLUDED.avatar_url, claimed_at = EXCLUDED.claimed_at`,
		c.DeviceID, c.UserID, c.UserName, c.AvatarURL, c.ClaimedAt,
	)
	if err != nil {
		return fmt.Errorf("claimRepo.Put: %w", err)
	}
	return nil
}

func (r *ClaimRepository) DeleteClaim(ctx context.Context, deviceID string) error {
	defer logger.DeferLogDuration("claim.Delete", time.Now())()
	if _, err := r.pool.Exec(ctx, `DELETE FROM device_claims WHERE device_id = $1`, deviceID); err != nil {
		return fmt.Errorf("claimRepo.Delete: %w", err)
	}
	return nil
}

func (r *ClaimRepository) ListClaims(ctx context.Context) ([]model.ClaimRecord, error) {
	defer logger.DeferLogDuration("claim.List", time.Now())()
	rows, err := r.pool.Query(ctx, `SELECT `+claimCols+` FROM device_claims ORDER BY device_id`)
	if err != nil {
		return nil, fmt.Errorf("claimRepo.List query: %w", err)
	}
	defer rows.Close()

	var out []model.ClaimRecord
	for rows.Next() {
		var c model.ClaimRecord
		if err := scanClaim(rows, &c); err != nil {
			return nil, fmt.Errorf("claimRepo.List scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
