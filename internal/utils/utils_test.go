package utils

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT(42, "secret")
	require.NoError(t, err)

	claims, err := ParseJWT(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)

	_, err = ParseJWT(token, "other")
	assert.Error(t, err)
}

func TestJWTRejectsExpiredAndForeignAlgorithms(t *testing.T) {
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	signed, err := expired.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = ParseJWT(signed, "secret")
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	hs512 := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{UserID: 1})
	signed, err = hs512.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = ParseJWT(signed, "secret")
	assert.Error(t, err)

	anonymous := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{})
	signed, err = anonymous.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = ParseJWT(signed, "secret")
	assert.Error(t, err)
}

func TestCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	var got map[string]int
	found, err := GetCache(ctx, rdb, "missing", &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, SetCache(ctx, rdb, AccountCacheKey(1), map[string]int{"a": 1}, CacheTTL))
	found, err = GetCache(ctx, rdb, AccountCacheKey(1), &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, got["a"])

	for _, page := range []int{1, 2, 3} {
		require.NoError(t, SetCache(ctx, rdb, HistoryCacheKey(1, page, 20), page, CacheTTL))
	}
	require.NoError(t, SetCache(ctx, rdb, HistoryCacheKey(11, 1, 20), 1, CacheTTL))
	require.NoError(t, SetCache(ctx, rdb, AccountCacheKey(2), 2, CacheTTL))

	require.NoError(t, InvalidateOwners(ctx, rdb, 1))
	assert.ElementsMatch(t, []string{HistoryCacheKey(11, 1, 20), AccountCacheKey(2)}, mr.Keys())
}

func TestCacheNilClient(t *testing.T) {
	ctx := context.Background()
	var dest int
	found, err := GetCache(ctx, nil, "k", &dest)
	assert.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, SetCache(ctx, nil, "k", 1, CacheTTL))
	assert.NoError(t, InvalidateOwners(ctx, nil, 1, 2))
}
