package trial

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const trialKeyPrefix = "trial:used:"

// RedisLedger shares the trial ledger across API instances. SETNX gives the
// same atomic check-and-set guarantee as the in-memory ledger.
type RedisLedger struct {
	rdb *redis.Client
}

// NewRedisLedger creates a Redis-backed trial ledger.
func NewRedisLedger(rdb *redis.Client) *RedisLedger {
	return &RedisLedger{rdb: rdb}
}

func trialKey(callerIdentity string) string {
	return trialKeyPrefix + callerIdentity
}

func (l *RedisLedger) Reserve(ctx context.Context, callerIdentity, callID string) (bool, error) {
	// No TTL: a consumed trial stays consumed. The value records which call
	// id holds the reservation so retried start events stay admitted.
	ok, err := l.rdb.SetNX(ctx, trialKey(callerIdentity), callID, 0).Result()
	if err != nil {
		return false, fmt.Errorf("trial ledger: reserve: %w", err)
	}
	if ok {
		return true, nil
	}
	holder, err := l.rdb.Get(ctx, trialKey(callerIdentity)).Result()
	if err != nil {
		return false, fmt.Errorf("trial ledger: reserve: %w", err)
	}
	return holder == callID, nil
}
