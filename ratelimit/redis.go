package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// RedisStore shares buckets between processes. A bucket is a hash that expires once it drained.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore inits a store on top of client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

const (
	fieldLastUpdate  = "last_update"
	fieldBytesServed = "bytes_served"
)

var addScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local bytes = tonumber(ARGV[2])
local rate = tonumber(ARGV[3])
local state = redis.call('HMGET', KEYS[1], 'last_update', 'bytes_served')
local served = bytes
if state[1] and state[2] then
  local drained = (now - tonumber(state[1])) * rate
  local prev = tonumber(state[2])
  if drained < prev then
    served = prev - drained + bytes
  end
end
redis.call('HSET', KEYS[1], 'last_update', now, 'bytes_served', served)
redis.call('EXPIRE', KEYS[1], math.ceil(served / rate) + 1)
return served
`)

func (s *RedisStore) Get(ctx context.Context, key string) (Bucket, bool, error) {
	vals, err := s.client.HMGet(ctx, key, fieldLastUpdate, fieldBytesServed).Result()
	if err != nil {
		return Bucket{}, false, errors.Wrap(err, "hmget")
	}

	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return Bucket{}, false, nil
	}

	var b Bucket
	for i, dst := range []*int64{&b.LastUpdate, &b.BytesServed} {
		str, _ := vals[i].(string)
		if *dst, err = strconv.ParseInt(str, 10, 64); err != nil {
			return Bucket{}, false, errors.Wrapf(err, "parse bucket field %d", i)
		}
	}

	return b, true, nil
}

func (s *RedisStore) Add(ctx context.Context, key string, bytes int64, now time.Time, bytesPerSec int64) error {
	if err := addScript.Run(ctx, s.client, []string{key}, now.Unix(), bytes, bytesPerSec).Err(); err != nil {
		return errors.Wrap(err, "run add script")
	}
	return nil
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return errors.Wrap(s.client.Ping(ctx).Err(), "ping")
}
