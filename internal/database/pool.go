package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/dgnsrekt/tbbo-ingest/internal/config"
)

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.SinkConfig) (*pgxpool.Pool, error) {
	poolCfg, err := PoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// PoolConfig parses the connection string and applies pool sizing. QuestDB
// is queried with the simple protocol.
func PoolConfig(cfg config.SinkConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(BuildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)
	if cfg.TimeoutSec > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.Timeout()
	}
	if cfg.Flavor == config.FlavorQuestDB {
		poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}

	return poolCfg, nil
}

// WaitForSink retries Connect until the sink accepts connections, up to
// attempts tries spaced by delay. Useful when the sink container is still
// starting.
func WaitForSink(ctx context.Context, cfg config.SinkConfig, attempts int, delay time.Duration, logger *zap.Logger) (*pgxpool.Pool, error) {
	var lastErr error
	for i := 1; i <= attempts; i++ {
		pool, err := Connect(ctx, cfg)
		if err == nil {
			if i > 1 {
				logger.Info("sink is ready", zap.Int("attempt", i))
			}
			return pool, nil
		}
		lastErr = err
		logger.Info("waiting for sink",
			zap.String("host", cfg.Host),
			zap.Int("port", cfg.PGPort),
			zap.Int("attempt", i),
			zap.Int("max_attempts", attempts),
			zap.Error(err))

		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("sink not ready after %d attempts: %w", attempts, lastErr)
}
