package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"innerlog/internal/config"
)

// OpenPool opens a Postgres connection pool, adapted from the teacher's
// internal/persistence/databases.newPgPool, generalized to take its
// conservative defaults from config instead of hardcoding them.
func OpenPool(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	} else {
		pcfg.MaxConns = 8
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pcfg.MaxConnLifetime = time.Duration(cfg.MaxConnLifetime) * time.Second
	} else {
		pcfg.MaxConnLifetime = time.Hour
	}
	if cfg.MaxConnIdleTime > 0 {
		pcfg.MaxConnIdleTime = time.Duration(cfg.MaxConnIdleTime) * time.Second
	} else {
		pcfg.MaxConnIdleTime = 5 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(cctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
