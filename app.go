package main

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"shortlink/allocator"
	"shortlink/cache"
	"shortlink/config"
	"shortlink/db"
	"shortlink/engine"
	"shortlink/links"
	"shortlink/ratelimit"
	"shortlink/workers"
)

// app is every long-lived component built from one Config.
type app struct {
	conn    *sql.DB
	store   links.Store
	cache   *cache.Cache
	limiter *ratelimit.Limiter
	clicks  *workers.ClickWorker
	engine  *engine.Engine
	stats   ratelimit.StatsStore
	redis   *redis.Client
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	if cfg.DatabaseURL == "" {
		if dir := filepath.Dir(cfg.DatabasePath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Wrap(err, "create data dir")
			}
		}
	}

	conn, err := db.Open(ctx, cfg.DatabaseURL, cfg.DatabasePath, log)
	if err != nil {
		return nil, err
	}
	store := links.WithTimeout(db.NewSQLStore(conn, log), cfg.StoreTimeout)

	minter, err := newMinter(cfg)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	c, err := cache.New(cfg.CacheCapacity, cfg.CacheTTL,
		cache.WithShards(cfg.CacheShards),
		cache.WithNegativeTTL(cfg.CacheNegativeTTL),
	)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	limiter := ratelimit.New(
		ratelimit.Profile{Capacity: cfg.RateAnonCapacity, Rate: cfg.RateAnonRefill},
		ratelimit.Profile{Capacity: cfg.RateAuthCapacity, Rate: cfg.RateAuthRefill},
		ratelimit.WithIdleFactor(cfg.RateIdleFactor),
		ratelimit.WithLogger(log),
	)

	clicks := workers.NewClickWorker(store, log, cfg.ClickFlushThreshold, cfg.ClickFlushInterval, cfg.ClickBuffer)
	alloc := allocator.New(store, minter, log, allocator.WithMaxRetries(uint(cfg.AllocMaxRetries)))

	a := &app{
		conn:    conn,
		store:   store,
		cache:   c,
		limiter: limiter,
		clicks:  clicks,
		engine:  engine.New(store, alloc, c, limiter, clicks, log),
	}

	if cfg.RateStatsRedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RateStatsRedisAddr})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			// stats are best effort, the limiter itself is in process
			log.Warn("rate limit stats redis unreachable", zap.String("addr", cfg.RateStatsRedisAddr), zap.Error(err))
		}
		a.stats = ratelimit.NewRedisStats(a.redis)
	}

	return a, nil
}

func newMinter(cfg *config.Config) (allocator.Minter, error) {
	switch cfg.CodeScheme {
	case config.SchemeRandom:
		return allocator.NewRandomMinter(cfg.CodeAlphabet, cfg.CodeLength)
	default:
		return allocator.NewSequenceMinter(cfg.CodeNodeID, cfg.CodeAlphabet, cfg.CodeMaxLength)
	}
}

func (a *app) Close() error {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	return a.conn.Close()
}
