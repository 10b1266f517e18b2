// Package ratelimit throttles clients by the number of bytes they downloaded. Every client key owns a leaky
// bucket that fills with the bytes served and drains at a steady rate.
package ratelimit

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// KeyPrefix is put in front of every client key before it reaches a store.
const KeyPrefix = "osmapi:"

// Limits of one class of clients.
type Limits struct {
	// BytesPerSec is the rate at which the bucket drains.
	BytesPerSec int64
	// MaxBytes is the level at which the client gets throttled.
	MaxBytes int64
}

// Config holds the limits for regular clients and for moderators.
type Config struct {
	Default   Limits
	Moderator Limits
}

// DefaultConfig returns the limits of the public API.
func DefaultConfig() Config {
	return Config{
		Default:   Limits{BytesPerSec: 100 * 1024, MaxBytes: 250 * 1024 * 1024},
		Moderator: Limits{BytesPerSec: 1024 * 1024, MaxBytes: 1024 * 1024 * 1024},
	}
}

func (c Config) limits(moderator bool) Limits {
	if moderator {
		return c.Moderator
	}
	return c.Default
}

// Bucket is the stored state of one client.
type Bucket struct {
	// LastUpdate is the unix time in seconds of the last update.
	LastUpdate int64
	// BytesServed is the level of the bucket at LastUpdate.
	BytesServed int64
}

// Level returns the level of the bucket at now, after it drained at the given rate.
func (b Bucket) Level(now, bytesPerSec int64) int64 {
	if drained := (now - b.LastUpdate) * bytesPerSec; drained < b.BytesServed {
		return b.BytesServed - drained
	}
	return 0
}

// Store persists buckets.
type Store interface {
	// Get returns the bucket for key, ok is false when there is none.
	Get(ctx context.Context, key string) (b Bucket, ok bool, err error)
	// Add drains the bucket to now and adds bytes to it in one step.
	Add(ctx context.Context, key string, bytes int64, now time.Time, bytesPerSec int64) error
}

// Limiter decides whether a client may download more.
type Limiter interface {
	// Check reports whether the client is allowed, and if not how many seconds it should wait.
	Check(ctx context.Context, key string, moderator bool) (allowed bool, retryAfter int, err error)
	// Update accounts for bytes sent to the client.
	Update(ctx context.Context, key string, bytes int64, moderator bool) error
}

// BucketLimiter implements [Limiter] on top of a [Store].
type BucketLimiter struct {
	store Store
	cfg   Config
	now   func() time.Time
}

// Option configures the limiter.
type Option func(*BucketLimiter)

// WithClock replaces the clock, for tests.
func WithClock(now func() time.Time) Option { return func(l *BucketLimiter) { l.now = now } }

// New inits a limiter. Limits without a positive rate are rejected.
func New(store Store, cfg Config, opts ...Option) (*BucketLimiter, error) {
	for _, lim := range []Limits{cfg.Default, cfg.Moderator} {
		if lim.BytesPerSec <= 0 || lim.MaxBytes <= 0 {
			return nil, errors.Newf("invalid rate limits: %+v", lim)
		}
	}

	l := &BucketLimiter{store: store, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

func (l *BucketLimiter) Check(ctx context.Context, key string, moderator bool) (bool, int, error) {
	b, ok, err := l.store.Get(ctx, KeyPrefix+key)
	if err != nil {
		return false, 0, errors.Wrapf(err, "get bucket %s", key)
	} else if !ok {
		return true, 0, nil
	}

	lim := l.cfg.limits(moderator)
	level := b.Level(l.now().Unix(), lim.BytesPerSec)
	if level < lim.MaxBytes {
		return true, 0, nil
	}

	return false, int((level-lim.MaxBytes)/lim.BytesPerSec) + 1, nil
}

func (l *BucketLimiter) Update(ctx context.Context, key string, bytes int64, moderator bool) error {
	if err := l.store.Add(ctx, KeyPrefix+key, bytes, l.now(), l.cfg.limits(moderator).BytesPerSec); err != nil {
		return errors.Wrapf(err, "add to bucket %s", key)
	}
	return nil
}

// Unlimited never throttles.
type Unlimited struct{}

func (Unlimited) Check(context.Context, string, bool) (bool, int, error) { return true, 0, nil }
func (Unlimited) Update(context.Context, string, int64, bool) error      { return nil }

var (
	_ Limiter = (*BucketLimiter)(nil)
	_ Limiter = Unlimited{}
)
