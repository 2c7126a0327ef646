package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/turtacn/keytrust/internal/domain/service"
	"github.com/turtacn/keytrust/pkg/constants"
	"github.com/turtacn/keytrust/pkg/errors"
)

type revocationStore struct{ rdb redis.UniversalClient }

// NewRevocationStore returns a RevocationStore that keeps one expiring key per revoked token id.
func NewRevocationStore(rdb redis.UniversalClient) service.RevocationStore {
	return &revocationStore{rdb: rdb}
}

func revokedKey(jti string) string { return constants.CacheKeyRevokedPrefix + jti }

func (s *revocationStore) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.rdb.Set(ctx, revokedKey(jti), "1", ttl).Err(); err != nil {
		return errors.RevocationUnavailable("revoke", err)
	}
	return nil
}

func (s *revocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.rdb.Exists(ctx, revokedKey(jti)).Result()
	if err != nil {
		return false, errors.RevocationUnavailable("is_revoked", err)
	}
	return n == 1, nil
}
