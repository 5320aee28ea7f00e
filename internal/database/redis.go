package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/assessment-runner/internal/config"
	"github.com/stemsi/assessment-runner/internal/logger"
)

// NewRedisClient creates and validates the client behind the shared rate
// limiters. Returns (nil, nil) when REDIS_URL is not configured.
func NewRedisClient(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*redis.Client, error) {
	log = logger.Component(log, "redis")
	if cfg.RedisURL == "" {
		log.Info().Msg("REDIS_URL not set, rate limits are per process")
		return nil, nil
	}

	opt, err := RedisOptions(cfg)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info().
		Str("addr", opt.Addr).
		Int("db", opt.DB).
		Int("pool_size", opt.PoolSize).
		Msg("Redis connected")

	return rdb, nil
}

// RedisOptions parses REDIS_URL. The limiter issues one short pipeline per
// request and fails open, so timeouts are tight and retries are off.
func RedisOptions(cfg *config.Config) (*redis.Options, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opt.ClientName = ApplicationName
	opt.DialTimeout = 2 * time.Second
	opt.ReadTimeout = 500 * time.Millisecond
	opt.WriteTimeout = 500 * time.Millisecond
	opt.MaxRetries = -1
	return opt, nil
}

// LogRedisStats writes one line with the client's pool counters.
func LogRedisStats(log zerolog.Logger, rdb *redis.Client) {
	s := rdb.PoolStats()
	clog := logger.Component(log, "redis")
	clog.Info().
		Uint32("total_conns", s.TotalConns).
		Uint32("idle_conns", s.IdleConns).
		Uint32("hits", s.Hits).
		Uint32("misses", s.Misses).
		Uint32("timeouts", s.Timeouts).
		Msg("Redis pool stats")
}
