package config

import (
	"context"
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/riskdesk/pkg/domain/interfaces"
	"github.com/secmon-lab/riskdesk/pkg/repository/memory"
	"github.com/secmon-lab/riskdesk/pkg/repository/redis"
	"github.com/secmon-lab/riskdesk/pkg/service/query"
	"github.com/secmon-lab/riskdesk/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Cache holds CLI flags for the query cache backend
type Cache struct {
	backend   string
	redisURL  string
	staleTime time.Duration
	gcTime    time.Duration
}

func (x *Cache) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "cache-backend",
			Usage:       "Query cache backend (memory or redis)",
			Category:    "Cache",
			Sources:     cli.EnvVars("RISKDESK_CACHE_BACKEND"),
			Destination: &x.backend,
		},
		&cli.StringFlag{
			Name:        "redis-url",
			Usage:       "Redis URL (required when using redis backend)",
			Category:    "Cache",
			Sources:     cli.EnvVars("RISKDESK_REDIS_URL"),
			Destination: &x.redisURL,
		},
		&cli.DurationFlag{
			Name:        "stale-time",
			Usage:       "How long a cached query is fresh (default: 30s)",
			Category:    "Cache",
			Sources:     cli.EnvVars("RISKDESK_STALE_TIME"),
			Destination: &x.staleTime,
		},
		&cli.DurationFlag{
			Name:        "gc-time",
			Usage:       "How long a cached query is retained (default: 5m)",
			Category:    "Cache",
			Sources:     cli.EnvVars("RISKDESK_GC_TIME"),
			Destination: &x.gcTime,
		},
	}
}

func (x Cache) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("backend", x.backend),
		slog.Bool("redis_url.set", x.redisURL != ""),
		slog.Duration("stale_time", x.staleTime),
		slog.Duration("gc_time", x.gcTime),
	)
}

// Configure builds the query client on the selected store. The caller is
// responsible for calling Close() on the returned client.
func (x *Cache) Configure(ctx context.Context, profile *Profile) (*query.Client, error) {
	if profile == nil {
		profile = &Profile{}
	}

	staleTime, err := parseDuration("cache.stale_time", profile.Cache.StaleTime)
	if err != nil {
		return nil, err
	}
	gcTime, err := parseDuration("cache.gc_time", profile.Cache.GCTime)
	if err != nil {
		return nil, err
	}

	store, err := x.store(ctx, profile)
	if err != nil {
		return nil, err
	}

	return query.New(store,
		query.WithStaleTime(pick(x.staleTime, staleTime, query.DefaultStaleTime)),
		query.WithGCTime(pick(x.gcTime, gcTime, query.DefaultGCTime)),
	), nil
}

func (x *Cache) store(ctx context.Context, profile *Profile) (interfaces.CacheStore, error) {
	backend := pick(x.backend, profile.Cache.Backend, CacheBackendMemory)

	switch backend {
	case CacheBackendMemory:
		logging.From(ctx).Debug("Using in-memory query cache")
		return memory.NewCacheStore(), nil

	case CacheBackendRedis:
		redisURL := pick(x.redisURL, profile.Cache.RedisURL)
		if redisURL == "" {
			return nil, goerr.Wrap(ErrInvalidConfig, "redis-url is required when using redis backend")
		}
		store, err := redis.New(ctx, redisURL)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize redis cache")
		}
		logging.From(ctx).Debug("Using redis query cache")
		return store, nil

	default:
		return nil, goerr.Wrap(ErrInvalidBackend, "unknown cache backend", goerr.V(ValueKey, backend))
	}
}
