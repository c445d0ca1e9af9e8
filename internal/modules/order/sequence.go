// README: Per-month order number counter kept in Redis.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// seedTTL keeps month keys around long enough to cover late writes.
const seedTTL = 62 * 24 * time.Hour

// Counter reports how many orders already use a number prefix.
type Counter interface {
	CountWithPrefix(ctx context.Context, prefix string) (int64, error)
}

// RedisSequence issues monotonic per-month numbers with INCR. The first use of
// a month seeds the key from the stored count so restarts continue the series.
type RedisSequence struct {
	rdb     *redis.Client
	counter Counter
}

func NewRedisSequence(rdb *redis.Client, counter Counter) *RedisSequence {
	return &RedisSequence{rdb: rdb, counter: counter}
}

func (q *RedisSequence) Next(ctx context.Context, month time.Time) (int64, error) {
	stamp := month.Format("200601")
	key := fmt.Sprintf("seq:orders:%s", stamp)

	exists, err := q.rdb.Exists(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		seed, err := q.counter.CountWithPrefix(ctx, fmt.Sprintf("ORD-%s-", stamp))
		if err != nil {
			return 0, err
		}
		// SETNX so a concurrent seeder cannot rewind a counter that already moved.
		if err := q.rdb.SetNX(ctx, key, seed, seedTTL).Err(); err != nil {
			return 0, err
		}
	}
	return q.rdb.Incr(ctx, key).Result()
}
