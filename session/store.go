package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/mcpref/mcpserver/internal/collection"
)

// ErrNotFound is returned when a session id does not resolve to a live session.
var ErrNotFound = errors.New("session not found")

// Store abstracts session persistence. The default implementation is
// in-memory; RedisStore provides a durable alternative.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, session *Session) error
	Delete(ctx context.Context, id string) error
	Range(ctx context.Context, f func(session *Session) bool) error
}

type memoryStore struct {
	m *collection.SyncMap[string, *Session]
}

// NewMemoryStore creates an in-memory Store.
func NewMemoryStore() Store {
	return &memoryStore{m: collection.NewSyncMap[string, *Session]()}
}

func (s *memoryStore) Get(_ context.Context, id string) (*Session, error) {
	session, ok := s.m.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return session, nil
}

func (s *memoryStore) Put(_ context.Context, session *Session) error {
	s.m.Put(session.ID(), session)
	return nil
}

func (s *memoryStore) Delete(_ context.Context, id string) error {
	s.m.Delete(id)
	return nil
}

func (s *memoryStore) Range(_ context.Context, f func(session *Session) bool) error {
	s.m.Range(func(_ string, session *Session) bool {
		return f(session)
	})
	return nil
}

// RedisStore is a durable Store backed by Redis. Entries carry a TTL so
// abandoned sessions expire server-side even without the sweeper.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store. The ttl bounds how long an
// untouched session survives; zero disables expiry.
func NewRedisStore(rdb *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "mcp:session:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(id string) string { return s.prefix + id }

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec := &record{}
	if err := json.Unmarshal(raw, rec); err != nil {
		return nil, err
	}
	return rec.session(), nil
}

func (s *RedisStore) Put(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session.snapshot())
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key(session.ID()), data, s.ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, s.key(id)).Err()
}

func (s *RedisStore) Range(ctx context.Context, f func(session *Session) bool) error {
	iter := s.rdb.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		id := iter.Val()[len(s.prefix):]
		session, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return err
		}
		if !f(session) {
			return nil
		}
	}
	return iter.Err()
}
