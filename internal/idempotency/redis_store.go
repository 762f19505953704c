package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

type RedisStore struct {
	client *redis.Client
	prefix string
	script *redis.Script
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "idem"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		script: redis.NewScript(unlockScript),
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) (Record, bool, error) {
	if s == nil || s.client == nil {
		return Record{}, false, ErrStoreDisabled
	}
	raw, err := s.client.Get(ctx, s.recordKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (s *RedisStore) Lock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if s == nil || s.client == nil {
		return "", false, ErrStoreDisabled
	}
	if ttl <= 0 {
		return "", false, ErrInvalidLockTTL
	}
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, s.lockKey(key), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (s *RedisStore) Unlock(ctx context.Context, key, token string) error {
	if s == nil || s.client == nil || token == "" {
		return nil
	}
	return s.script.Run(ctx, s.client, []string{s.lockKey(key)}, token).Err()
}

func (s *RedisStore) Save(ctx context.Context, key string, rec Record, ttl time.Duration) error {
	if s == nil || s.client == nil {
		return ErrStoreDisabled
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.recordKey(key), raw, ttl).Err()
}

func (s *RedisStore) recordKey(key string) string { return s.prefix + ":" + key }

func (s *RedisStore) lockKey(key string) string { return s.prefix + ":" + key + ":lock" }
