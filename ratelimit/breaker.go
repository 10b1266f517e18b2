package ratelimit

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type lookup struct {
	bucket Bucket
	ok     bool
}

// BreakerStore stops calling a failing store for a while. As long as the breaker is open every client is
// allowed and nothing is accounted.
type BreakerStore struct {
	inner Store
	cb    *gobreaker.CircuitBreaker[lookup]
	logs  *zap.Logger
}

// NewBreakerStore wraps inner. The breaker opens after the given number of consecutive failures and tries
// the store again after timeout.
func NewBreakerStore(inner Store, logs *zap.Logger, failures uint32, timeout time.Duration) *BreakerStore {
	s := &BreakerStore{inner: inner, logs: logs}
	s.cb = gobreaker.NewCircuitBreaker[lookup](gobreaker.Settings{
		Name:        "ratelimit",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logs.Warn("rate limiter breaker changed state",
				zap.String("breaker", name), zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})

	return s
}

// State returns the state of the breaker.
func (s *BreakerStore) State() gobreaker.State { return s.cb.State() }

func (s *BreakerStore) Get(ctx context.Context, key string) (Bucket, bool, error) {
	res, err := s.cb.Execute(func() (lookup, error) {
		b, ok, err := s.inner.Get(ctx, key)
		return lookup{bucket: b, ok: ok}, err
	})
	if rejected(err) {
		return Bucket{}, false, nil
	}

	return res.bucket, res.ok, err
}

func (s *BreakerStore) Add(ctx context.Context, key string, bytes int64, now time.Time, bytesPerSec int64) error {
	_, err := s.cb.Execute(func() (lookup, error) {
		return lookup{}, s.inner.Add(ctx, key, bytes, now, bytesPerSec)
	})
	if rejected(err) {
		return nil
	}

	return err
}

func rejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
