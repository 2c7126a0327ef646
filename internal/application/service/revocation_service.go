package service

import (
	"context"
	"time"

	"github.com/turtacn/keytrust/internal/domain/models"
	domainService "github.com/turtacn/keytrust/internal/domain/service"
	"github.com/turtacn/keytrust/pkg/constants"
	"github.com/turtacn/keytrust/pkg/errors"
	"github.com/turtacn/keytrust/pkg/logger"
)

// RevocationService is the only write path into the revocation store.
type RevocationService interface {
	// Logout verifies token and revokes it for its remaining lifetime.
	// Tokens that have already expired are skipped, since verification rejects them anyway.
	Logout(ctx context.Context, token string) (*models.RevocationEntry, error)
}

// revocationServiceImpl is the concrete implementation of RevocationService
type revocationServiceImpl struct {
	verifier    TokenVerifier
	revocations domainService.RevocationStore
	publisher   domainService.KeyEventPublisher
	metrics     domainService.Metrics
	clock       domainService.Clock
	logger      logger.Logger
}

// NewRevocationService creates a new instance of RevocationService
func NewRevocationService(
	verifier TokenVerifier,
	revocations domainService.RevocationStore,
	publisher domainService.KeyEventPublisher,
	metrics domainService.Metrics,
	clock domainService.Clock,
	log logger.Logger,
) RevocationService {
	if publisher == nil {
		publisher = domainService.NoopPublisher{}
	}
	if metrics == nil {
		metrics = domainService.NoopMetrics{}
	}
	if clock == nil {
		clock = time.Now
	}
	return &revocationServiceImpl{
		verifier:    verifier,
		revocations: revocations,
		publisher:   publisher,
		metrics:     metrics,
		clock:       clock,
		logger:      log.WithComponent("RevocationService"),
	}
}

func (s *revocationServiceImpl) Logout(ctx context.Context, token string) (*models.RevocationEntry, error) {
	identity, err := s.verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.revoke(ctx, identity)
}

func (s *revocationServiceImpl) revoke(ctx context.Context, identity *models.Identity) (*models.RevocationEntry, error) {
	entry := &models.RevocationEntry{TokenID: identity.TokenID, ExpiresAt: identity.ExpiresAt}
	ttl := entry.TTL(s.clock())
	if ttl <= 0 {
		s.logger.Debug(ctx, "Token already expired, nothing to revoke", logger.String("jti", entry.TokenID))
		return entry, nil
	}

	if err := s.revocations.Revoke(ctx, entry.TokenID, ttl); err != nil {
		s.logger.Error(ctx, "Failed to revoke token", err, logger.String("jti", entry.TokenID))
		if _, ok := errors.AsAppError(err); ok {
			return nil, err
		}
		return nil, errors.RevocationUnavailable("revoke", err)
	}
	s.metrics.RecordTokenRevoke()
	s.logger.Info(ctx, "Token revoked",
		logger.String("jti", entry.TokenID),
		logger.String("sub", identity.Subject),
		logger.Duration("ttl", ttl),
	)

	event := &models.KeyEvent{Type: constants.KeyEventRevoked, TokenID: entry.TokenID, ExpiresAt: entry.ExpiresAt}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn(ctx, "Failed to publish revocation event", logger.Error(err))
	}
	return entry, nil
}

// boundedRevocationStore applies a deadline to every revocation store call.
type boundedRevocationStore struct {
	store   domainService.RevocationStore
	timeout time.Duration
}

// NewBoundedRevocationStore wraps store so every call carries timeout.
// A non-positive timeout falls back to constants.DefaultCacheTimeout.
func NewBoundedRevocationStore(store domainService.RevocationStore, timeout time.Duration) domainService.RevocationStore {
	if timeout <= 0 {
		timeout = constants.DefaultCacheTimeout
	}
	return &boundedRevocationStore{store: store, timeout: timeout}
}

func (b *boundedRevocationStore) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.store.Revoke(ctx, tokenID, ttl)
}

func (b *boundedRevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.store.IsRevoked(ctx, tokenID)
}
