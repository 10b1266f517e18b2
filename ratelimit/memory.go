package ratelimit

import (
	"context"
	"sync"
	"time"
)

// sweepInterval is how often Add drops the buckets that drained completely.
const sweepInterval = time.Minute

// MemoryStore keeps buckets in the memory of the process. Like the Redis store a bucket expires once it
// drained, expired buckets are dropped by a sweep that piggybacks on Add.
type MemoryStore struct {
	mu        sync.Mutex
	buckets   map[string]memoryBucket
	lastSweep int64
}

type memoryBucket struct {
	Bucket
	expires int64
}

// NewMemoryStore inits an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: map[string]memoryBucket{}}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Bucket, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	return b.Bucket, ok, nil
}

func (s *MemoryStore) Add(_ context.Context, key string, bytes int64, now time.Time, bytesPerSec int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unix := now.Unix()
	served := s.buckets[key].Level(unix, bytesPerSec) + bytes
	s.buckets[key] = memoryBucket{
		Bucket:  Bucket{LastUpdate: unix, BytesServed: served},
		expires: unix + (served+bytesPerSec-1)/bytesPerSec + 1,
	}

	if unix-s.lastSweep >= int64(sweepInterval/time.Second) {
		s.sweep(unix)
	}

	return nil
}

// Len returns the number of buckets held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

func (s *MemoryStore) sweep(now int64) {
	for key, b := range s.buckets {
		if b.expires <= now {
			delete(s.buckets, key)
		}
	}
	s.lastSweep = now
}
