package db

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// OpenJournal connects to the payout journal database and brings its schema
// up to date. The journal sees a few writes per campaign, so the pool is small.
func OpenJournal(ctx context.Context, dsn string, migrations fs.FS, log *zap.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 4
	cfg.MinConns = 0
	cfg.MaxConnIdleTime = 10 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	applied, err := Migrate(ctx, pool, migrations)
	if err != nil {
		pool.Close()
		return nil, err
	}
	log.Info("payout journal ready",
		zap.String("database", cfg.ConnConfig.Database),
		zap.Strings("migrations_applied", applied),
	)
	return pool, nil
}
