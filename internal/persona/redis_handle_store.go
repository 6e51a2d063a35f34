package persona

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	handleKeyPrefix = "setup:handle:"
	handleIndexKey  = "setup:handles:by_created"
)

// RedisHandleStore keeps setup-session handles in Redis so multiple API
// instances can route a trial call regardless of which instance ran the
// setup wizard. Values carry their TTL; a sorted set ordered by creation
// time backs MostRecent.
type RedisHandleStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewRedisHandleStore creates a Redis-backed handle store. nowFn may be nil.
func NewRedisHandleStore(rdb *redis.Client, ttl time.Duration, nowFn func() time.Time) *RedisHandleStore {
	if nowFn == nil {
		nowFn = time.Now
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisHandleStore{rdb: rdb, ttl: ttl, now: nowFn}
}

func handleKey(id string) string {
	return handleKeyPrefix + id
}

func (s *RedisHandleStore) Put(ctx context.Context, p Persona) (*Handle, error) {
	p.Normalize()
	now := s.now().UTC()
	h := &Handle{
		ID:         uuid.New().String(),
		Persona:    p,
		CreatedAt:  now,
		LastSeenAt: now,
	}
	data, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("persona handle: marshal: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, handleKey(h.ID), data, s.ttl)
	pipe.ZAdd(ctx, handleIndexKey, redis.Z{Score: float64(now.UnixMilli()), Member: h.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("persona handle: put: %w", err)
	}
	return h, nil
}

func (s *RedisHandleStore) Get(ctx context.Context, id string) (*Handle, error) {
	data, err := s.rdb.Get(ctx, handleKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrHandleNotFound
		}
		return nil, fmt.Errorf("persona handle: get: %w", err)
	}
	var h Handle
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("persona handle: unmarshal: %w", err)
	}
	return &h, nil
}

func (s *RedisHandleStore) Touch(ctx context.Context, id string) error {
	h, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	h.LastSeenAt = s.now().UTC()
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("persona handle: marshal: %w", err)
	}
	return s.rdb.Set(ctx, handleKey(id), data, s.ttl).Err()
}

func (s *RedisHandleStore) Delete(ctx context.Context, id string) error {
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, handleKey(id))
	pipe.ZRem(ctx, handleIndexKey, id)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisHandleStore) MostRecent(ctx context.Context) (*Handle, error) {
	// Newest first; skip index entries whose value key already expired.
	ids, err := s.rdb.ZRevRange(ctx, handleIndexKey, 0, 9).Result()
	if err != nil {
		return nil, fmt.Errorf("persona handle: index scan: %w", err)
	}
	for _, id := range ids {
		h, err := s.Get(ctx, id)
		if err == ErrHandleNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		return h, nil
	}
	return nil, ErrHandleNotFound
}

func (s *RedisHandleStore) SweepExpired(ctx context.Context, now time.Time, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		ttl = s.ttl
	}
	// Redis expires the value keys itself; the sweep only prunes index
	// entries older than the TTL window.
	cutoff := now.Add(-ttl).UnixMilli()
	removed, err := s.rdb.ZRemRangeByScore(ctx, handleIndexKey, "-inf", fmt.Sprintf("%d", cutoff)).Result()
	if err != nil {
		return 0, fmt.Errorf("persona handle: sweep: %w", err)
	}
	return int(removed), nil
}
