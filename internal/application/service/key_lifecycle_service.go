// Package service provides application-level services that orchestrate domain services and repositories
package service

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/keytrust/internal/config"
	"github.com/turtacn/keytrust/internal/domain/models"
	"github.com/turtacn/keytrust/internal/domain/repository"
	domainService "github.com/turtacn/keytrust/internal/domain/service"
	"github.com/turtacn/keytrust/internal/infrastructure/cache"
	"github.com/turtacn/keytrust/pkg/constants"
	"github.com/turtacn/keytrust/pkg/errors"
	"github.com/turtacn/keytrust/pkg/logger"
)

// KeyLifecycleService owns signing key creation, rotation, retirement and the
// verification key set served to verifiers.
type KeyLifecycleService interface {
	// GetVerificationKeySet returns every key still trusted for verification, cache first.
	// An empty store is healed by minting a key before returning.
	GetVerificationKeySet(ctx context.Context) (*models.TrustedKeySet, error)

	// RefreshVerificationKeySet reloads the set from the store, bypassing the cache.
	// Calls closer together than the refresh interval return the current set.
	RefreshVerificationKeySet(ctx context.Context) (*models.TrustedKeySet, error)

	// GetSigningKey returns the active, unexpired key. It rotates inline when none exists.
	GetSigningKey(ctx context.Context) (*models.SigningKey, error)

	// NeedsRotation reports whether a new key should be minted at now.
	NeedsRotation(ctx context.Context, now time.Time) (bool, error)

	// Rotate mints a new active key unless the current one has at least the advance window left.
	Rotate(ctx context.Context) (*RotationResult, error)

	// ForceRotate mints a new active key regardless of the current key's remaining validity.
	ForceRotate(ctx context.Context) (*RotationResult, error)

	// DeactivateExpired clears the active flag of expired keys. It never deletes.
	DeactivateExpired(ctx context.Context, now time.Time) (int, error)

	// PurgeExpired deletes keys that expired more than retention ago.
	// A non-positive retention selects the configured default.
	PurgeExpired(ctx context.Context, retention time.Duration) (int64, error)

	// ListKeys returns the admin view of every stored key.
	ListKeys(ctx context.Context) ([]models.KeyInfo, error)

	// InvalidateLocal drops in-process key state after a peer changed the key set.
	InvalidateLocal(ctx context.Context)
}

// KeyGenerator mints unpersisted signing keys.
type KeyGenerator interface {
	GenerateSigningKey(ctx context.Context, now time.Time) (*models.SigningKey, error)
}

// RotationResult describes the outcome of a rotation request.
type RotationResult struct {
	// Key is the active key after the call.
	Key *models.SigningKey
	// Rotated is false when the call was a no-op or lost a race to a peer.
	Rotated bool
	// PreviousKeyID is the key superseded by this rotation, if any.
	PreviousKeyID string
}

// KeyLifecycleConfig holds the lifecycle windows and timeouts.
type KeyLifecycleConfig struct {
	RotationAdvance time.Duration
	CacheTTL        time.Duration
	PurgeRetention  time.Duration
	SigningCacheTTL time.Duration
	LockTTL         time.Duration
	LockWait        time.Duration
	RefreshInterval time.Duration
	StoreTimeout    time.Duration
	CacheTimeout    time.Duration
}

// NewKeyLifecycleConfig derives the lifecycle configuration from the service configuration.
func NewKeyLifecycleConfig(cfg *config.Config) KeyLifecycleConfig {
	return KeyLifecycleConfig{
		RotationAdvance: cfg.Keys.RotationAdvance,
		CacheTTL:        cfg.Keys.CacheTTL,
		PurgeRetention:  cfg.Keys.PurgeRetention,
		SigningCacheTTL: cfg.Keys.SigningCacheTTL,
		LockTTL:         cfg.Keys.LockTTL,
		StoreTimeout:    cfg.Timeouts.Store,
		CacheTimeout:    cfg.Timeouts.Cache,
	}
}

func (c *KeyLifecycleConfig) applyDefaults() {
	if c.RotationAdvance <= 0 {
		c.RotationAdvance = constants.DefaultRotationAdvance
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = constants.DefaultKeyCacheTTL
	}
	if c.PurgeRetention <= 0 {
		c.PurgeRetention = constants.DefaultPurgeRetention
	}
	if c.SigningCacheTTL <= 0 {
		c.SigningCacheTTL = constants.DefaultSigningKeyCacheTTL
	}
	if c.LockTTL <= 0 {
		c.LockTTL = constants.DefaultRotationLockTTL
	}
	if c.LockWait <= 0 {
		c.LockWait = 2 * time.Second
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = 10 * time.Second
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = constants.DefaultStoreTimeout
	}
	if c.CacheTimeout <= 0 {
		c.CacheTimeout = constants.DefaultCacheTimeout
	}
}

// KeyLifecycleOption customizes optional collaborators.
type KeyLifecycleOption func(*keyLifecycleServiceImpl)

// WithLocker serializes key creation across instances with locker.
func WithLocker(locker domainService.Locker) KeyLifecycleOption {
	return func(s *keyLifecycleServiceImpl) { s.locker = locker }
}

// WithPublisher broadcasts key events through publisher.
func WithPublisher(publisher domainService.KeyEventPublisher) KeyLifecycleOption {
	return func(s *keyLifecycleServiceImpl) { s.publisher = publisher }
}

// WithMetrics records lifecycle metrics.
func WithMetrics(metrics domainService.Metrics) KeyLifecycleOption {
	return func(s *keyLifecycleServiceImpl) { s.metrics = metrics }
}

// WithClock replaces time.Now.
func WithClock(clock domainService.Clock) KeyLifecycleOption {
	return func(s *keyLifecycleServiceImpl) { s.clock = clock }
}

// keyLifecycleServiceImpl is the concrete implementation of KeyLifecycleService
type keyLifecycleServiceImpl struct {
	repo      repository.KeyRepository
	cache     domainService.KeyCache
	generator KeyGenerator
	locker    domainService.Locker
	publisher domainService.KeyEventPublisher
	metrics   domainService.Metrics
	signing   *cache.SigningKeyCache
	clock     domainService.Clock
	cfg       KeyLifecycleConfig
	logger    logger.Logger
	tracer    trace.Tracer

	reload singleflight.Group
	// generation changes whenever the key set changes, so a reload that raced a
	// rotation does not write a stale set back into the cache.
	generation  atomic.Uint64
	lastRefresh atomic.Int64
}

// NewKeyLifecycleService creates a new instance of KeyLifecycleService
func NewKeyLifecycleService(
	repo repository.KeyRepository,
	keyCache domainService.KeyCache,
	generator KeyGenerator,
	cfg KeyLifecycleConfig,
	log logger.Logger,
	opts ...KeyLifecycleOption,
) KeyLifecycleService {
	cfg.applyDefaults()
	s := &keyLifecycleServiceImpl{
		repo:      repo,
		cache:     keyCache,
		generator: generator,
		publisher: domainService.NoopPublisher{},
		metrics:   domainService.NoopMetrics{},
		clock:     time.Now,
		cfg:       cfg,
		logger:    log.WithComponent("KeyLifecycleService"),
		tracer:    otel.Tracer(constants.ServiceName),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.signing = cache.NewSigningKeyCache(cfg.SigningCacheTTL)
	return s
}

// ================================================================================
// Verification key set
// ================================================================================

func (s *keyLifecycleServiceImpl) GetVerificationKeySet(ctx context.Context) (*models.TrustedKeySet, error) {
	now := s.clock()
	if set, ok := s.cachedSet(ctx, now); ok {
		return set, nil
	}

	v, err, _ := s.reload.Do("verification", func() (interface{}, error) {
		return s.loadVerificationSet(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.TrustedKeySet), nil
}

func (s *keyLifecycleServiceImpl) RefreshVerificationKeySet(ctx context.Context) (*models.TrustedKeySet, error) {
	now := s.clock()
	last := s.lastRefresh.Load()
	if last != 0 && now.Sub(time.Unix(0, last)) < s.cfg.RefreshInterval {
		return s.GetVerificationKeySet(ctx)
	}
	if !s.lastRefresh.CompareAndSwap(last, now.UnixNano()) {
		return s.GetVerificationKeySet(ctx)
	}

	s.logger.Debug(ctx, "Refreshing verification key set from store")
	v, err, _ := s.reload.Do("refresh", func() (interface{}, error) {
		return s.loadVerificationSet(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.TrustedKeySet), nil
}

// cachedSet reads the cache under the cache timeout. Errors and timeouts count as a miss.
func (s *keyLifecycleServiceImpl) cachedSet(ctx context.Context, now time.Time) (*models.TrustedKeySet, bool) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.CacheTimeout)
	defer cancel()

	set, hit, err := s.cache.Get(cctx)
	switch {
	case err != nil:
		s.metrics.RecordKeySetLookup("error")
		s.logger.Warn(ctx, "Key cache read failed, falling back to store", logger.Error(err))
		return nil, false
	case !hit || set == nil:
		s.metrics.RecordKeySetLookup("miss")
		return nil, false
	}

	fresh := set.Unexpired(now)
	if fresh.Len() == 0 {
		s.metrics.RecordKeySetLookup("stale")
		return nil, false
	}
	s.metrics.RecordKeySetLookup("hit")
	return fresh, true
}

// loadVerificationSet reads the store, bootstraps a key when it is empty, and repopulates the cache.
func (s *keyLifecycleServiceImpl) loadVerificationSet(ctx context.Context) (*models.TrustedKeySet, error) {
	gen := s.generation.Load()
	now := s.clock()

	keys, err := s.listValidForVerification(ctx, now)
	if err != nil {
		s.logger.Error(ctx, "Failed to load verification keys", err)
		return nil, err
	}

	if len(keys) == 0 {
		s.logger.Warn(ctx, "No eligible key in store, minting one")
		if _, err := s.rotate(ctx, false); err != nil {
			return nil, err
		}
		gen = s.generation.Load()
		now = s.clock()
		if keys, err = s.listValidForVerification(ctx, now); err != nil {
			return nil, err
		}
		if len(keys) == 0 {
			return nil, errors.StoreUnavailable("bootstrap", errors.ErrNoEligibleKey)
		}
	}

	set := models.NewTrustedKeySet(keys, now)
	if s.generation.Load() == gen {
		s.putCache(ctx, set)
	}
	return set, nil
}

func (s *keyLifecycleServiceImpl) putCache(ctx context.Context, set *models.TrustedKeySet) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.CacheTimeout)
	defer cancel()
	if err := s.cache.Put(cctx, set, s.cfg.CacheTTL); err != nil {
		s.logger.Warn(ctx, "Failed to populate key cache", logger.Error(err))
	}
}

// invalidate runs strictly after a committed store change.
func (s *keyLifecycleServiceImpl) invalidate(ctx context.Context) {
	s.generation.Add(1)
	s.signing.Clear()

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CacheTimeout)
	defer cancel()
	if err := s.cache.Invalidate(cctx); err != nil {
		// the cache TTL still bounds staleness
		s.logger.Warn(ctx, "Failed to invalidate key cache", logger.Error(err))
	}
}

func (s *keyLifecycleServiceImpl) InvalidateLocal(ctx context.Context) {
	s.generation.Add(1)
	s.signing.Clear()
	s.logger.Debug(ctx, "Local key state invalidated")
}

// ================================================================================
// Signing key
// ================================================================================

func (s *keyLifecycleServiceImpl) GetSigningKey(ctx context.Context) (*models.SigningKey, error) {
	now := s.clock()
	if key, ok := s.signing.Get(now); ok {
		return key, nil
	}

	key, err := s.activeKey(ctx, now)
	if err != nil {
		return nil, err
	}
	if key == nil {
		s.logger.Warn(ctx, "No signable key, rotating inline")
		result, err := s.rotate(ctx, false)
		if err != nil {
			return nil, err
		}
		key = result.Key
		now = s.clock()
	}
	if key == nil || !key.CanSign(now) {
		return nil, errors.ErrNoEligibleKey
	}

	s.signing.Set(key, now)
	s.metrics.RecordActiveKeyExpiry(key.RemainingValidity(now))
	return key, nil
}

func (s *keyLifecycleServiceImpl) NeedsRotation(ctx context.Context, now time.Time) (bool, error) {
	active, err := s.activeKey(ctx, now)
	if err != nil {
		return false, err
	}
	return s.needsRotation(active, now), nil
}

func (s *keyLifecycleServiceImpl) needsRotation(active *models.SigningKey, now time.Time) bool {
	return active == nil || active.RemainingValidity(now) < s.cfg.RotationAdvance
}

// activeKey returns the newest active, unexpired key, or nil.
func (s *keyLifecycleServiceImpl) activeKey(ctx context.Context, now time.Time) (*models.SigningKey, error) {
	sctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	keys, err := s.repo.ListActive(sctx, now)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	if len(keys) > 1 {
		s.logger.Error(ctx, "Multiple active signing keys found", nil, logger.Int("count", len(keys)))
	}
	return keys[0], nil
}

func (s *keyLifecycleServiceImpl) listValidForVerification(ctx context.Context, now time.Time) ([]*models.SigningKey, error) {
	sctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	return s.repo.ListValidForVerification(sctx, now)
}

// ================================================================================
// Rotation
// ================================================================================

func (s *keyLifecycleServiceImpl) Rotate(ctx context.Context) (*RotationResult, error) {
	return s.rotate(ctx, false)
}

func (s *keyLifecycleServiceImpl) ForceRotate(ctx context.Context) (*RotationResult, error) {
	return s.rotate(ctx, true)
}

func (s *keyLifecycleServiceImpl) rotate(ctx context.Context, force bool) (*RotationResult, error) {
	ctx, span := s.tracer.Start(ctx, "KeyLifecycle.Rotate", trace.WithAttributes(attribute.Bool("force", force)))
	defer span.End()

	if !force {
		current, err := s.activeKey(ctx, s.clock())
		if err != nil {
			s.metrics.RecordKeyRotation("error")
			return nil, err
		}
		if !s.needsRotation(current, s.clock()) {
			s.metrics.RecordKeyRotation("skipped")
			return &RotationResult{Key: current}, nil
		}
	}

	unlock, current, err := s.lock(ctx, force)
	if err != nil {
		s.metrics.RecordKeyRotation("error")
		return nil, err
	}
	defer unlock()
	if current != nil {
		s.metrics.RecordKeyRotation("skipped")
		return &RotationResult{Key: current}, nil
	}

	now := s.clock()
	if _, err := s.deactivateExpired(ctx, now); err != nil {
		s.metrics.RecordKeyRotation("error")
		return nil, err
	}

	newKey, err := s.generator.GenerateSigningKey(ctx, now)
	if err != nil {
		s.metrics.RecordKeyRotation("error")
		return nil, errors.ErrInternal.WithCause(err)
	}
	newKey.IsActive = true

	previous, err := s.activeKey(ctx, now)
	if err != nil {
		s.metrics.RecordKeyRotation("error")
		return nil, err
	}

	result := &RotationResult{Key: newKey, Rotated: true}
	if previous != nil {
		result.PreviousKeyID = previous.KeyID
		if _, err := s.markInactive(ctx, previous.KeyID); err != nil {
			s.metrics.RecordKeyRotation("error")
			return nil, err
		}
		// A false flip means a peer superseded it first; the insert below decides the winner.
	}

	if err := s.insert(ctx, newKey); err != nil {
		if stderrors.Is(err, repository.ErrActiveKeyConflict) {
			return s.lostRace(ctx, newKey.KeyID)
		}
		s.metrics.RecordKeyRotation("error")
		s.logger.Error(ctx, "Failed to persist new signing key", err, logger.String("kid", newKey.KeyID))
		if previous != nil {
			// the previous key still verifies, and the next signing request rotates inline
			s.invalidate(ctx)
		}
		return nil, err
	}

	s.invalidate(ctx)
	s.publish(ctx, &models.KeyEvent{
		Type:       constants.KeyEventRotated,
		KeyID:      newKey.KeyID,
		PreviousID: result.PreviousKeyID,
	})
	s.metrics.RecordKeyRotation("rotated")
	s.metrics.RecordActiveKeyExpiry(newKey.RemainingValidity(now))
	span.SetAttributes(attribute.String("kid", newKey.KeyID))
	s.logger.Info(ctx, "Signing key rotated",
		logger.String("kid", newKey.KeyID),
		logger.String("previous_kid", result.PreviousKeyID),
		logger.Time("expires_at", newKey.ExpiresAt),
		logger.Bool("forced", force),
	)
	return result, nil
}

// lock takes the rotation lock when a locker is configured. When a peer holds it,
// lock waits for the peer's key; a returned current key means rotation is no longer needed.
func (s *keyLifecycleServiceImpl) lock(ctx context.Context, force bool) (func(), *models.SigningKey, error) {
	noop := func() {}
	if s.locker == nil {
		return noop, nil, nil
	}

	release, acquired, err := s.locker.TryLock(ctx, constants.CacheKeyRotationLock, s.cfg.LockTTL)
	if err != nil {
		s.logger.Warn(ctx, "Rotation lock unavailable, relying on store constraint", logger.Error(err))
		return noop, nil, nil
	}
	if acquired {
		unlock := func() {
			uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CacheTimeout)
			defer cancel()
			if err := release(uctx); err != nil {
				s.logger.Warn(ctx, "Failed to release rotation lock", logger.Error(err))
			}
		}
		if force {
			return unlock, nil, nil
		}
		// re-check under the lock, a peer may have just finished
		current, err := s.activeKey(ctx, s.clock())
		if err != nil {
			unlock()
			return noop, nil, err
		}
		if !s.needsRotation(current, s.clock()) {
			return unlock, current, nil
		}
		return unlock, nil, nil
	}

	if force {
		return noop, nil, nil
	}
	deadline := time.NewTimer(s.cfg.LockWait)
	defer deadline.Stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return noop, nil, errors.StoreUnavailable("rotate", ctx.Err())
		case <-deadline.C:
			s.logger.Warn(ctx, "Timed out waiting for peer rotation, proceeding")
			return noop, nil, nil
		case <-tick.C:
			current, err := s.activeKey(ctx, s.clock())
			if err != nil {
				return noop, nil, err
			}
			if !s.needsRotation(current, s.clock()) {
				return noop, current, nil
			}
		}
	}
}

// lostRace returns the key a peer promoted while this instance was rotating.
func (s *keyLifecycleServiceImpl) lostRace(ctx context.Context, discarded string) (*RotationResult, error) {
	s.metrics.RecordKeyRotation("lost_race")
	s.logger.Info(ctx, "Rotation lost to a peer, discarding minted key", logger.String("kid", discarded))
	s.invalidate(ctx)

	for attempt := 0; attempt < 3; attempt++ {
		winner, err := s.activeKey(ctx, s.clock())
		if err != nil {
			return nil, err
		}
		if winner != nil {
			return &RotationResult{Key: winner}, nil
		}
		select {
		case <-ctx.Done():
			return nil, errors.StoreUnavailable("rotate", ctx.Err())
		case <-time.After(50 * time.Millisecond):
		}
	}
	return nil, errors.ErrNoEligibleKey
}

func (s *keyLifecycleServiceImpl) insert(ctx context.Context, key *models.SigningKey) error {
	sctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	return s.repo.Insert(sctx, key)
}

func (s *keyLifecycleServiceImpl) markInactive(ctx context.Context, keyID string) (bool, error) {
	sctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	return s.repo.MarkInactive(sctx, keyID)
}

// ================================================================================
// Retirement
// ================================================================================

func (s *keyLifecycleServiceImpl) DeactivateExpired(ctx context.Context, now time.Time) (int, error) {
	n, err := s.deactivateExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.invalidate(ctx)
	}
	return n, nil
}

func (s *keyLifecycleServiceImpl) deactivateExpired(ctx context.Context, now time.Time) (int, error) {
	sctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	expired, err := s.repo.ListActiveExpired(sctx, now)
	cancel()
	if err != nil {
		return 0, err
	}

	count := 0
	for _, key := range expired {
		flipped, err := s.markInactive(ctx, key.KeyID)
		if err != nil {
			return count, err
		}
		if !flipped {
			continue
		}
		count++
		s.logger.Info(ctx, "Expired signing key deactivated",
			logger.String("kid", key.KeyID),
			logger.Time("expired_at", key.ExpiresAt),
		)
		s.publish(ctx, &models.KeyEvent{Type: constants.KeyEventDeactivated, KeyID: key.KeyID})
	}
	return count, nil
}

func (s *keyLifecycleServiceImpl) PurgeExpired(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		retention = s.cfg.PurgeRetention
	}
	cutoff := s.clock().Add(-retention)

	sctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	n, err := s.repo.DeleteExpiredBefore(sctx, cutoff)
	if err != nil {
		s.logger.Error(ctx, "Failed to purge expired keys", err, logger.Time("cutoff", cutoff))
		return 0, err
	}

	s.metrics.RecordKeysPurged(n)
	if n > 0 {
		s.logger.Info(ctx, "Expired signing keys purged", logger.Int64("count", n), logger.Time("cutoff", cutoff))
		s.publish(ctx, &models.KeyEvent{Type: constants.KeyEventPurged, Count: n})
	}
	return n, nil
}

func (s *keyLifecycleServiceImpl) ListKeys(ctx context.Context) ([]models.KeyInfo, error) {
	sctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	keys, err := s.repo.ListAll(sctx)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	infos := make([]models.KeyInfo, 0, len(keys))
	for _, k := range keys {
		infos = append(infos, k.Info(now))
	}
	return infos, nil
}

func (s *keyLifecycleServiceImpl) publish(ctx context.Context, event *models.KeyEvent) {
	if err := s.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn(ctx, "Failed to publish key event",
			logger.String("type", string(event.Type)),
			logger.Error(err),
		)
	}
}

//Personal.AI order the ending
