package repository

import "github.com/jackc/pgx/v5/pgxpool"

// Store serves claims and bans from one Postgres pool.
type Store struct {
	*ClaimRepository
	*BanRepository
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		ClaimRepository: NewClaimRepository(pool),
		BanRepository:   NewBanRepository(pool),
		pool:            pool,
	}
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
