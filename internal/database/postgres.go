package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stemsi/assessment-runner/internal/config"
	"github.com/stemsi/assessment-runner/internal/logger"
)

// ApplicationName tags runner connections in pg_stat_activity.
const ApplicationName = "assessment-runner"

// NewPostgresPool creates and validates a PostgreSQL connection pool.
func NewPostgresPool(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*pgxpool.Pool, error) {
	log = logger.Component(log, "postgres")

	poolCfg, err := PoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info().
		Int32("max_conns", poolCfg.MaxConns).
		Str("database", poolCfg.ConnConfig.Database).
		Str("host", poolCfg.ConnConfig.Host).
		Msg("PostgreSQL connected")

	return pool, nil
}

// PoolConfig turns the DATABASE_URL and pool settings into a pgx pool config.
// Autosaves hold a connection only for one short transaction, so idle
// connections are recycled quickly and a small floor is kept warm.
func PoolConfig(cfg *config.Config) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	if cfg.MaxDBConns > 0 {
		poolCfg.MaxConns = cfg.MaxDBConns
	}
	poolCfg.MinConns = min(2, poolCfg.MaxConns)
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second
	if _, ok := poolCfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		poolCfg.ConnConfig.RuntimeParams["application_name"] = ApplicationName
	}
	return poolCfg, nil
}

// LogPoolStats writes one line with the pool's connection counters.
func LogPoolStats(log zerolog.Logger, pool *pgxpool.Pool) {
	s := pool.Stat()
	clog := logger.Component(log, "postgres")
	clog.Info().
		Int32("total_conns", s.TotalConns()).
		Int32("idle_conns", s.IdleConns()).
		Int32("acquired_conns", s.AcquiredConns()).
		Int64("acquire_count", s.AcquireCount()).
		Dur("acquire_wait", s.AcquireDuration()).
		Int64("empty_acquires", s.EmptyAcquireCount()).
		Msg("PostgreSQL pool stats")
}
