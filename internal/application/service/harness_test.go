package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/keytrust/internal/config"
	"github.com/turtacn/keytrust/internal/domain/repository"
	"github.com/turtacn/keytrust/internal/domain/service/mocks"
	"github.com/turtacn/keytrust/internal/infrastructure/cache"
	"github.com/turtacn/keytrust/internal/infrastructure/crypto"
	"github.com/turtacn/keytrust/internal/infrastructure/persistence/postgres"
	"github.com/turtacn/keytrust/pkg/constants"
	"github.com/turtacn/keytrust/pkg/logger"
)

const day = 24 * time.Hour

var day0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// stepClock is a manually advanced clock shared by every component of a harness.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// instance is one service instance wired the way cmd/server wires it, minus HTTP.
type instance struct {
	cache       *cache.MemoryKeyCache
	lifecycle   KeyLifecycleService
	issuer      TokenIssuer
	verifier    TokenVerifier
	revocation  RevocationService
	publisher   *mocks.RecordingPublisher
	revocations *cache.MemoryRevocationStore
}

type harness struct {
	repo  repository.KeyRepository
	clock *stepClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := &config.DatabaseConfig{
		Driver:     "sqlite",
		SQLitePath: fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	}
	conn, err := postgres.NewDBConnection(context.Background(), cfg, logger.NewNoopLogger())
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	require.NoError(t, conn.Migrate(context.Background()))

	return &harness{
		repo:  postgres.NewKeyRepository(conn.DB()),
		clock: &stepClock{now: day0},
	}
}

var testKeyConfig = &crypto.KeyManagerConfig{
	Algorithm:         constants.DefaultJWTAlgorithm,
	Bits:              1024,
	KeyValidityPeriod: constants.DefaultKeyValidity,
}

func (h *harness) instance(opts ...KeyLifecycleOption) *instance {
	log := logger.NewNoopLogger()
	in := &instance{
		cache:       cache.NewMemoryKeyCache(),
		publisher:   &mocks.RecordingPublisher{},
		revocations: cache.NewMemoryRevocationStore(),
	}
	opts = append([]KeyLifecycleOption{WithClock(h.clock.Now), WithPublisher(in.publisher)}, opts...)
	in.lifecycle = NewKeyLifecycleService(
		h.repo,
		in.cache,
		crypto.NewKeyManager(testKeyConfig, log),
		KeyLifecycleConfig{RefreshInterval: time.Nanosecond},
		log,
		opts...,
	)
	tokenCfg := config.TokenConfig{Issuer: constants.DefaultTokenIssuer, TTL: constants.DefaultTokenTTL}
	in.issuer = NewTokenIssuer(in.lifecycle, tokenCfg, nil, h.clock.Now, log)
	revocations := NewBoundedRevocationStore(in.revocations, 0)
	in.verifier = NewTokenVerifier(in.lifecycle, revocations, tokenCfg, nil, h.clock.Now, log)
	in.revocation = NewRevocationService(in.verifier, revocations, in.publisher, nil, h.clock.Now, log)
	return in
}

func (h *harness) activeCount(t *testing.T) int {
	t.Helper()
	active, err := h.repo.ListActive(context.Background(), h.clock.Now())
	require.NoError(t, err)
	return len(active)
}
