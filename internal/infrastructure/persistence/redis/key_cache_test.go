package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/keytrust/internal/config"
	"github.com/turtacn/keytrust/internal/domain/models"
	"github.com/turtacn/keytrust/pkg/constants"
	"github.com/turtacn/keytrust/pkg/errors"
	"github.com/turtacn/keytrust/pkg/logger"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func sampleSet(now time.Time) *models.TrustedKeySet {
	return &models.TrustedKeySet{
		Keys: []models.TrustedKey{
			{KeyID: "k2", Algorithm: "RS256", PublicKeyPEM: "pem-2", ExpiresAt: now.Add(90 * 24 * time.Hour)},
			{KeyID: "k1", Algorithm: "RS256", PublicKeyPEM: "pem-1", ExpiresAt: now.Add(24 * time.Hour)},
		},
		GeneratedAt: now,
	}
}

func TestKeyCache_PutGetInvalidate(t *testing.T) {
	mr, client := setupRedis(t)
	cache := NewKeyCache(client)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	_, hit, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, cache.Put(ctx, sampleSet(now), time.Hour))
	assert.Equal(t, time.Hour, mr.TTL(constants.CacheKeyVerificationKeySet))

	got, hit, err := cache.Get(ctx)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, sampleSet(now).Keys, got.Keys)

	require.NoError(t, cache.Invalidate(ctx))
	_, hit, err = cache.Get(ctx)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestKeyCache_EntryExpires(t *testing.T) {
	mr, client := setupRedis(t)
	cache := NewKeyCache(client)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, sampleSet(time.Now()), time.Minute))
	mr.FastForward(2 * time.Minute)

	_, hit, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestKeyCache_CorruptEntryIsMiss(t *testing.T) {
	mr, client := setupRedis(t)
	require.NoError(t, mr.Set(constants.CacheKeyVerificationKeySet, "{broken"))

	_, hit, err := NewKeyCache(client).Get(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestKeyCache_BackendDown(t *testing.T) {
	mr, client := setupRedis(t)
	cache := NewKeyCache(client)
	mr.Close()

	_, _, err := cache.Get(context.Background())
	assert.ErrorIs(t, err, errors.ErrCacheUnavailable)
	assert.ErrorIs(t, cache.Put(context.Background(), sampleSet(time.Now()), time.Minute), errors.ErrCacheUnavailable)
}

func TestLocker(t *testing.T) {
	mr, client := setupRedis(t)
	locker := NewLocker(client)
	ctx := context.Background()

	unlock, ok, err := locker.TryLock(ctx, constants.CacheKeyRotationLock, 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, constants.CacheKeyRotationLock, 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "second holder is refused")

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists(constants.CacheKeyRotationLock))

	_, ok, err = locker.TryLock(ctx, constants.CacheKeyRotationLock, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocker_StaleUnlockDoesNotReleaseNewHolder(t *testing.T) {
	mr, client := setupRedis(t)
	locker := NewLocker(client)
	ctx := context.Background()

	unlockA, ok, err := locker.TryLock(ctx, "lock", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	mr.FastForward(2 * time.Second)

	_, ok, err = locker.TryLock(ctx, "lock", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, unlockA(ctx))
	assert.True(t, mr.Exists("lock"))
}

func TestRedisConnection(t *testing.T) {
	mr := miniredis.RunT(t)
	conn := NewRedisConnection(&config.RedisConfig{Addresses: []string{mr.Addr()}}, logger.NewNoopLogger())
	ctx := context.Background()

	require.NoError(t, conn.Connect(ctx))
	require.NoError(t, conn.Ping(ctx))

	info, err := conn.HealthCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", info["status"])
	require.NoError(t, conn.Close())

	err = NewRedisConnection(&config.RedisConfig{}, logger.NewNoopLogger()).Connect(ctx)
	assert.Error(t, err)
}
