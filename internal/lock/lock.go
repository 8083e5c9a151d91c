// Package lock provides a redis lease used to keep periodic jobs from
// running on two instances at once.
package lock

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lease taken over by another instance is left alone.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// RedisLocker hands out leases backed by SET NX PX.  A nil client grants
// every lease, which suits single-instance deployments.
type RedisLocker struct {
	rdb    *redis.Client
	prefix string
	log    *slog.Logger
}

func NewRedisLocker(rdb *redis.Client, log *slog.Logger) *RedisLocker {
	if log == nil {
		log = slog.Default()
	}
	return &RedisLocker{rdb: rdb, prefix: "lock", log: log}
}

func noop() {}

// TryLock attempts to take key for ttl.  ok is false when another holder
// owns it; the returned unlock is always safe to call.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if l == nil || l.rdb == nil {
		return noop, true, nil
	}
	full := l.prefix + ":" + key
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return noop, false, err
	}
	if !ok {
		return noop, false, nil
	}
	unlock := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.rdb, []string{full}, token).Err(); err != nil {
			l.log.Warn("lock release failed", slog.String("key", full), slog.Any("err", err))
		}
	}
	return unlock, true, nil
}
