package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisOptions tunes how long locks live and how hard acquisition tries.
type RedisOptions struct {
	Expiry     time.Duration // auto-release if the holder dies
	Tries      int           // attempts per key
	RetryDelay time.Duration // pause between attempts
}

// DefaultRedisOptions suits ledger operations that finish well under a second.
func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		Expiry:     10 * time.Second,
		Tries:      32,
		RetryDelay: 50 * time.Millisecond,
	}
}

// RedisLocker is a Locker shared by every service instance, built on redsync's RedLock.
type RedisLocker struct {
	rs   *redsync.Redsync
	opts RedisOptions
}

// NewRedisLocker builds a RedisLocker on top of an existing client.
func NewRedisLocker(client redis.UniversalClient, opts RedisOptions) *RedisLocker {
	return &RedisLocker{
		rs:   redsync.New(goredis.NewPool(client)),
		opts: opts,
	}
}

// Lock acquires every key in order, releasing what it holds if one key cannot be taken.
func (l *RedisLocker) Lock(ctx context.Context, keys ...string) (Unlock, error) {
	keys = normalize(keys)
	held := make([]*redsync.Mutex, 0, len(keys))
	for _, key := range keys {
		m := l.rs.NewMutex(key,
			redsync.WithExpiry(l.opts.Expiry),
			redsync.WithTries(l.opts.Tries),
			redsync.WithRetryDelay(l.opts.RetryDelay),
		)
		if err := m.LockContext(ctx); err != nil {
			unlockAll(held)
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		held = append(held, m)
	}
	return func() { unlockAll(held) }, nil
}

func unlockAll(held []*redsync.Mutex) {
	for i := len(held) - 1; i >= 0; i-- {
		// Background context: release must happen even when the request was cancelled
		if ok, err := held[i].UnlockContext(context.Background()); err != nil || !ok {
			fields := logrus.Fields{"key": held[i].Name()}
			if err != nil {
				fields["error"] = err.Error()
			}
			logrus.WithFields(fields).Warn("Account lock was not released cleanly")
		}
	}
}
