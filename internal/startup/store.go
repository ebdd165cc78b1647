package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/qbit/internal/config"
	"github.com/qbit/internal/logger"
	"github.com/qbit/internal/repository"
	"github.com/qbit/internal/storage"
	"github.com/qbit/internal/storage/memory"
)

const connectWait = 60 * time.Second

// OpenStore connects the claim and ban store selected by cfg.StoreDriver.
// Postgres migrations run on every start.
func OpenStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory, "":
		logger.Info("store: in-memory (claims and bans are lost on restart)")
		return memory.New(), nil
	case config.StoreRedis:
		client, err := ConnectRedis(ctx, cfg.Redis.URL, connectWait)
		if err != nil {
			return nil, err
		}
		logger.Infof("store: redis %s", cfg.Redis.URL)
		return client, nil
	case config.StorePostgres:
		poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("parse db config: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.DBMaxConnections())
		pool, err := ConnectDB(ctx, poolCfg, connectWait)
		if err != nil {
			return nil, err
		}
		mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := RunMigrations(mctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("store: postgres")
		return repository.NewStore(pool), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
