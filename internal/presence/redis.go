package presence

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

const redisKeyPrefix = "presence:"

// RedisTracker keeps presence in per-event Redis sorted sets scored by the
// last-seen timestamp. It is the scaling seam for multi-instance
// deployments; single instances default to the in-memory tracker.
type RedisTracker struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisTracker creates a Redis-backed tracker
func NewRedisTracker(client *redis.Client, ttl time.Duration) *RedisTracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisTracker{
		client: client,
		ttl:    ttl,
		now:    time.Now,
	}
}

func redisKey(eventID uint) string {
	return fmt.Sprintf("%s%d", redisKeyPrefix, eventID)
}

func (t *RedisTracker) cutoff(now time.Time) string {
	return strconv.FormatInt(now.Add(-t.ttl).UnixNano(), 10)
}

// Heartbeat refreshes the client's score and returns the pruned live count
func (t *RedisTracker) Heartbeat(ctx context.Context, eventID uint, clientID string) (int, error) {
	now := t.now()
	key := redisKey(eventID)

	pipe := t.client.TxPipeline()
	pipe.ZAdd(ctx, key, &redis.Z{Score: float64(now.UnixNano()), Member: clientID})
	pipe.ZRemRangeByScore(ctx, key, "0", t.cutoff(now))
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, t.ttl+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, errors.Wrap(err, "failed to record heartbeat")
	}
	return int(card.Val()), nil
}

// Leave removes the client and returns the updated count
func (t *RedisTracker) Leave(ctx context.Context, eventID uint, clientID string) (int, error) {
	now := t.now()
	key := redisKey(eventID)

	pipe := t.client.TxPipeline()
	pipe.ZRem(ctx, key, clientID)
	pipe.ZRemRangeByScore(ctx, key, "0", t.cutoff(now))
	card := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, errors.Wrap(err, "failed to record leave")
	}
	count := int(card.Val())
	if count == 0 {
		if err := t.client.Del(ctx, key).Err(); err != nil {
			return 0, errors.Wrap(err, "failed to drop empty registry")
		}
	}
	return count, nil
}

// Count returns the pruned live count for one event
func (t *RedisTracker) Count(ctx context.Context, eventID uint) (int, error) {
	now := t.now()
	key := redisKey(eventID)

	pipe := t.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", t.cutoff(now))
	card := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, errors.Wrap(err, "failed to count presence")
	}
	return int(card.Val()), nil
}

// Snapshot scans all event registries and returns their pruned counts
func (t *RedisTracker) Snapshot(ctx context.Context) (map[uint]int, error) {
	counts := make(map[uint]int)

	var cursor uint64
	for {
		keys, next, err := t.client.Scan(ctx, cursor, redisKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan presence keys")
		}
		for _, key := range keys {
			idStr := strings.TrimPrefix(key, redisKeyPrefix)
			id, err := strconv.ParseUint(idStr, 10, 64)
			if err != nil {
				continue
			}
			n, err := t.Count(ctx, uint(id))
			if err != nil {
				return nil, err
			}
			if n > 0 {
				counts[uint(id)] = n
			}
		}
		if cursor = next; cursor == 0 {
			break
		}
	}
	return counts, nil
}

// Clear drops an event's registry entirely
func (t *RedisTracker) Clear(ctx context.Context, eventID uint) error {
	if err := t.client.Del(ctx, redisKey(eventID)).Err(); err != nil {
		return errors.Wrap(err, "failed to clear presence registry")
	}
	return nil
}
