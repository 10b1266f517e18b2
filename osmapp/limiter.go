package osmapp

import (
	"context"
	"time"

	"github.com/advdv/osmhttp/ratelimit"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	breakerFailures = 5
	breakerTimeout  = 30 * time.Second
	secretTimeout   = 10 * time.Second
)

// LimiterParams holds the dependencies for creating the rate limiter.
type LimiterParams struct {
	fx.In

	Lc      fx.Lifecycle
	Env     Environment
	Logger  *zap.Logger
	Secrets SecretReader
}

// NewLimiter creates the rate limiter. Buckets are kept in Redis when OSMAPI_REDIS_URL or
// OSMAPI_REDIS_SECRET is set so that every instance shares them, in memory otherwise.
func NewLimiter(p LimiterParams) (ratelimit.Limiter, error) {
	url, err := redisURL(p.Env, p.Secrets)
	if err != nil {
		return nil, err
	}

	store, err := newLimiterStore(p.Lc, url, p.Logger)
	if err != nil {
		return nil, err
	}

	limiter, err := ratelimit.New(store, p.Env.rateLimitConfig())
	if err != nil {
		return nil, err
	}
	return limiter, nil
}

// redisURL returns the configured url, reading it from Secrets Manager when only a secret is configured.
func redisURL(env Environment, secrets SecretReader) (string, error) {
	if url := env.redisURL(); url != "" {
		return url, nil
	}

	id, path := env.redisSecret()
	if id == "" {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), secretTimeout)
	defer cancel()

	url, err := secretFromReader(ctx, secrets, id, path)
	if err != nil {
		return "", errors.Wrap(err, "read redis url")
	}
	return url, nil
}

func newLimiterStore(lc fx.Lifecycle, url string, logger *zap.Logger) (ratelimit.Store, error) {
	if url == "" {
		return ratelimit.NewMemoryStore(), nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}

	client := redis.NewClient(opts)
	rs := ratelimit.NewRedisStore(client)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := rs.Ping(ctx); err != nil {
				logger.Warn("redis is not reachable, rate limiting fails open until it is", zap.Error(err))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})

	return ratelimit.NewBreakerStore(rs, logger.Named("ratelimit"), breakerFailures, breakerTimeout), nil
}
