package utils

import (
	"context"       // Context for Redis operations
	"encoding/json" // JSON encoding/decoding
	"errors"
	"strconv" // Key formatting
	"time"    // Time durations

	"github.com/redis/go-redis/v9" // Redis client
)

// CacheTTL is how long cached reads live
const CacheTTL = 60 * time.Second

// AccountCacheKey is the cache key of an owner's account
func AccountCacheKey(ownerID uint) string {
	return "account:owner:" + strconv.FormatUint(uint64(ownerID), 10)
}

// HistoryCachePrefix prefixes every cached history page of an owner
func HistoryCachePrefix(ownerID uint) string {
	return "txhistory:owner:" + strconv.FormatUint(uint64(ownerID), 10) + ":"
}

// HistoryCacheKey is the cache key of one history page
func HistoryCacheKey(ownerID uint, page, pageSize int) string {
	return HistoryCachePrefix(ownerID) + "page:" + strconv.Itoa(page) + ":size:" + strconv.Itoa(pageSize)
}

// GetCache retrieves a value from Redis and unmarshals it into dest.
// A nil client behaves like an empty cache.
func GetCache(ctx context.Context, rdb *redis.Client, key string, dest any) (bool, error) {
	if rdb == nil {
		return false, nil
	}
	val, err := rdb.Get(ctx, key).Result() // Get value from Redis
	if errors.Is(err, redis.Nil) {
		return false, nil // Key does not exist
	} else if err != nil {
		return false, err // Other Redis error
	}
	return true, json.Unmarshal([]byte(val), dest) // Unmarshal JSON into dest
}

// SetCache sets a value in Redis with a specified TTL
func SetCache(ctx context.Context, rdb *redis.Client, key string, value any, ttl time.Duration) error {
	if rdb == nil {
		return nil
	}
	b, err := json.Marshal(value) // Marshal value to JSON
	if err != nil {
		return err // Return error if marshaling fails
	}
	return rdb.Set(ctx, key, b, ttl).Err() // Set value in Redis with TTL
}

// DeleteCache deletes keys from Redis
func DeleteCache(ctx context.Context, rdb *redis.Client, keys ...string) error {
	if rdb == nil || len(keys) == 0 {
		return nil
	}
	return rdb.Del(ctx, keys...).Err() // Delete keys from Redis
}

// DeleteCachePrefix deletes every key starting with prefix
func DeleteCachePrefix(ctx context.Context, rdb *redis.Client, prefix string) error {
	if rdb == nil {
		return nil
	}
	iter := rdb.Scan(ctx, 0, prefix+"*", 100).Iterator() // Walk matching keys in batches
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	return DeleteCache(ctx, rdb, keys...)
}

// InvalidateOwners drops the cached account and history pages of each owner
func InvalidateOwners(ctx context.Context, rdb *redis.Client, ownerIDs ...uint) error {
	var errs []error
	for _, ownerID := range ownerIDs {
		errs = append(errs,
			DeleteCache(ctx, rdb, AccountCacheKey(ownerID)),
			DeleteCachePrefix(ctx, rdb, HistoryCachePrefix(ownerID)),
		)
	}
	return errors.Join(errs...)
}
