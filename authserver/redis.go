package authserver

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisCodePrefix    = "oauth:code:"
	redisRefreshPrefix = "oauth:refresh:"
)

// RedisStore is a GrantStore backed by Redis. Expiry is enforced by Redis
// key TTLs, so no sweeper is needed.
type RedisStore struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedisStore creates a store on an existing client. The client remains
// owned by the caller.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, ctx: context.Background()}
}

// StoreCode records the entry under a freshly generated code and returns it.
func (s *RedisStore) StoreCode(entry CodeEntry) string {
	if entry.TTL <= 0 {
		entry.TTL = DefaultCodeTTL
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.Code = NewToken()
	data, err := json.Marshal(&entry)
	if err != nil {
		return ""
	}
	if err := s.client.Set(s.ctx, redisCodePrefix+entry.Code, data, entry.TTL).Err(); err != nil {
		return ""
	}
	return entry.Code
}

// ConsumeCode atomically removes and returns the entry for a code via GETDEL.
func (s *RedisStore) ConsumeCode(code string) *CodeEntry {
	data, err := s.client.GetDel(s.ctx, redisCodePrefix+code).Bytes()
	if err != nil {
		return nil
	}
	entry := &CodeEntry{}
	if err := json.Unmarshal(data, entry); err != nil {
		return nil
	}
	return entry
}

// StoreRefresh records the entry under a freshly generated token.
func (s *RedisStore) StoreRefresh(entry RefreshEntry, ttl time.Duration) string {
	now := time.Now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.ExpiresAt.IsZero() {
		entry.ExpiresAt = now.Add(ttl)
	}
	entry.Token = NewToken()
	data, err := json.Marshal(&entry)
	if err != nil {
		return ""
	}
	if err := s.client.Set(s.ctx, redisRefreshPrefix+entry.Token, data, time.Until(entry.ExpiresAt)).Err(); err != nil {
		return ""
	}
	return entry.Token
}

// GetRefresh returns a live refresh entry, or nil when unknown or expired.
func (s *RedisStore) GetRefresh(token string) *RefreshEntry {
	data, err := s.client.Get(s.ctx, redisRefreshPrefix+token).Bytes()
	if err != nil {
		return nil
	}
	entry := &RefreshEntry{}
	if err := json.Unmarshal(data, entry); err != nil {
		return nil
	}
	if entry.expired(time.Now()) {
		_ = s.client.Del(s.ctx, redisRefreshPrefix+token).Err()
		return nil
	}
	return entry
}

// RevokeRefresh removes a refresh token and reports whether it existed.
func (s *RedisStore) RevokeRefresh(token string) bool {
	removed, err := s.client.Del(s.ctx, redisRefreshPrefix+token).Result()
	return err == nil && removed > 0
}

// Stats returns live entry counts.
func (s *RedisStore) Stats() Stats {
	return Stats{
		Codes:         s.countKeys(redisCodePrefix + "*"),
		RefreshTokens: s.countKeys(redisRefreshPrefix + "*"),
	}
}

// Clear drops all entries.
func (s *RedisStore) Clear() {
	for _, pattern := range []string{redisCodePrefix + "*", redisRefreshPrefix + "*"} {
		iter := s.client.Scan(s.ctx, 0, pattern, 0).Iterator()
		for iter.Next(s.ctx) {
			_ = s.client.Del(s.ctx, iter.Val()).Err()
		}
	}
}

// Close is a no-op; the Redis client is owned by the caller.
func (s *RedisStore) Close() {}

func (s *RedisStore) countKeys(pattern string) int {
	count := 0
	iter := s.client.Scan(s.ctx, 0, pattern, 0).Iterator()
	for iter.Next(s.ctx) {
		count++
	}
	return count
}
