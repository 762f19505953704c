package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

const (
	defaultExpiration = 24 * time.Hour
	cleanupInterval   = 10 * time.Minute
)

// MemoryStore keeps records in process. Suitable for single-instance
// deployments and tests; entries are lost on restart.
type MemoryStore struct {
	mu    sync.Mutex
	cache *gocache.Cache
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cache: gocache.New(defaultExpiration, cleanupInterval)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Record, bool, error) {
	v, ok := s.cache.Get(recordKey(key))
	if !ok {
		return Record{}, false, nil
	}
	rec, ok := v.(Record)
	return rec, ok, nil
}

func (s *MemoryStore) Lock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	if ttl <= 0 {
		return "", false, ErrInvalidLockTTL
	}
	token := uuid.NewString()
	if err := s.cache.Add(lockKey(key), token, ttl); err != nil {
		return "", false, nil
	}
	return token, true, nil
}

func (s *MemoryStore) Unlock(_ context.Context, key, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.cache.Get(lockKey(key)); ok && v == token {
		s.cache.Delete(lockKey(key))
	}
	return nil
}

func (s *MemoryStore) Save(_ context.Context, key string, rec Record, ttl time.Duration) error {
	s.cache.Set(recordKey(key), rec, ttl)
	return nil
}

func recordKey(key string) string { return "rec:" + key }

func lockKey(key string) string { return "lock:" + key }
