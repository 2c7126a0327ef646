// Package cache provides in-process implementations of the key caches and the
// revocation store, used when the service runs as a single instance without redis,
// and as the short-lived signing key cache in every deployment.
package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/turtacn/keytrust/internal/domain/models"
	"github.com/turtacn/keytrust/internal/domain/service"
	"github.com/turtacn/keytrust/pkg/constants"
)

var (
	_ service.KeyCache        = (*MemoryKeyCache)(nil)
	_ service.RevocationStore = (*MemoryRevocationStore)(nil)
)

// MemoryKeyCache keeps the verification key set in process memory.
type MemoryKeyCache struct {
	c *gocache.Cache
}

// NewMemoryKeyCache creates an in-process KeyCache.
func NewMemoryKeyCache() *MemoryKeyCache {
	return &MemoryKeyCache{c: gocache.New(constants.DefaultKeyCacheTTL, time.Minute)}
}

func (m *MemoryKeyCache) Get(context.Context) (*models.TrustedKeySet, bool, error) {
	v, ok := m.c.Get(constants.CacheKeyVerificationKeySet)
	if !ok {
		return nil, false, nil
	}
	set, _ := v.(*models.TrustedKeySet)
	return copySet(set), set != nil, nil
}

func (m *MemoryKeyCache) Put(_ context.Context, set *models.TrustedKeySet, ttl time.Duration) error {
	m.c.Set(constants.CacheKeyVerificationKeySet, copySet(set), ttl)
	return nil
}

func (m *MemoryKeyCache) Invalidate(context.Context) error {
	m.c.Delete(constants.CacheKeyVerificationKeySet)
	return nil
}

func copySet(set *models.TrustedKeySet) *models.TrustedKeySet {
	if set == nil {
		return nil
	}
	out := &models.TrustedKeySet{GeneratedAt: set.GeneratedAt, Keys: make([]models.TrustedKey, len(set.Keys))}
	copy(out.Keys, set.Keys)
	return out
}

// MemoryRevocationStore keeps revoked token ids in process memory.
type MemoryRevocationStore struct {
	c *gocache.Cache
}

// NewMemoryRevocationStore creates an in-process RevocationStore.
func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{c: gocache.New(gocache.NoExpiration, time.Minute)}
}

func (m *MemoryRevocationStore) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.c.Set(tokenID, struct{}{}, ttl)
	return nil
}

func (m *MemoryRevocationStore) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	_, ok := m.c.Get(tokenID)
	return ok, nil
}

// SigningKeyCache holds the current signing key for a short time so the hot
// issuance path does not reach the store on every token.
type SigningKeyCache struct {
	c   *gocache.Cache
	ttl time.Duration
}

// NewSigningKeyCache creates a signing key cache with the given ttl.
func NewSigningKeyCache(ttl time.Duration) *SigningKeyCache {
	if ttl <= 0 {
		ttl = constants.DefaultSigningKeyCacheTTL
	}
	return &SigningKeyCache{c: gocache.New(ttl, ttl), ttl: ttl}
}

// Get returns the cached key only while it can still sign at now.
func (s *SigningKeyCache) Get(now time.Time) (*models.SigningKey, bool) {
	v, ok := s.c.Get(constants.LocalKeySigning)
	if !ok {
		return nil, false
	}
	key, _ := v.(*models.SigningKey)
	if key == nil || !key.CanSign(now) {
		s.c.Delete(constants.LocalKeySigning)
		return nil, false
	}
	return key, true
}

// Set caches key, never beyond its own expiry.
func (s *SigningKeyCache) Set(key *models.SigningKey, now time.Time) {
	ttl := s.ttl
	if remaining := key.RemainingValidity(now); remaining < ttl {
		ttl = remaining
	}
	if ttl <= 0 {
		return
	}
	s.c.Set(constants.LocalKeySigning, key, ttl)
}

// Clear drops the cached key.
func (s *SigningKeyCache) Clear() {
	s.c.Delete(constants.LocalKeySigning)
}
