package redis

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/turtacn/keytrust/internal/domain/models"
	"github.com/turtacn/keytrust/internal/domain/service"
	"github.com/turtacn/keytrust/pkg/constants"
	"github.com/turtacn/keytrust/pkg/errors"
)

var _ service.KeyCache = (*KeyCache)(nil)

// KeyCache stores the verification key set as a JSON document under a single key.
type KeyCache struct {
	client redis.UniversalClient
	key    string
}

// NewKeyCache creates a redis backed KeyCache.
func NewKeyCache(client redis.UniversalClient) *KeyCache {
	return &KeyCache{client: client, key: constants.CacheKeyVerificationKeySet}
}

// Get returns the cached set, or a miss.
func (c *KeyCache) Get(ctx context.Context) (*models.TrustedKeySet, bool, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.CacheUnavailable("get", err)
	}
	set, err := models.UnmarshalTrustedKeySet(data)
	if err != nil {
		// a corrupt entry is a miss; the caller reloads and overwrites it
		return nil, false, nil
	}
	return set, true, nil
}

// Put stores the set with ttl.
func (c *KeyCache) Put(ctx context.Context, set *models.TrustedKeySet, ttl time.Duration) error {
	data, err := set.Marshal()
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.key, data, ttl).Err(); err != nil {
		return errors.CacheUnavailable("put", err)
	}
	return nil
}

// Invalidate deletes the cached set.
func (c *KeyCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return errors.CacheUnavailable("invalidate", err)
	}
	return nil
}
