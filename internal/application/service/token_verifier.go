package service

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/keytrust/internal/config"
	"github.com/turtacn/keytrust/internal/domain/models"
	domainService "github.com/turtacn/keytrust/internal/domain/service"
	"github.com/turtacn/keytrust/internal/infrastructure/crypto"
	"github.com/turtacn/keytrust/pkg/constants"
	"github.com/turtacn/keytrust/pkg/errors"
	"github.com/turtacn/keytrust/pkg/logger"
)

// VerificationKeySource provides the trusted key set.
type VerificationKeySource interface {
	GetVerificationKeySet(ctx context.Context) (*models.TrustedKeySet, error)
	RefreshVerificationKeySet(ctx context.Context) (*models.TrustedKeySet, error)
}

// TokenVerifier checks tokens against the trusted key set and the revocation store.
// It never mutates state and is safe for concurrent use.
type TokenVerifier interface {
	// Verify returns the caller identity, or an error whose code names the rejection.
	// Backend failures surface as unavailable errors, never as a token rejection.
	Verify(ctx context.Context, token string) (*models.Identity, error)
}

// tokenVerifierImpl is the concrete implementation of TokenVerifier
type tokenVerifierImpl struct {
	keys        VerificationKeySource
	revocations domainService.RevocationStore
	pubkeys     *crypto.PublicKeyCache
	parser      *jwt.Parser
	structure   *jwt.Parser
	issuer      string
	leeway      time.Duration
	clock       domainService.Clock
	metrics     domainService.Metrics
	logger      logger.Logger
	tracer      trace.Tracer
}

// NewTokenVerifier creates a new instance of TokenVerifier
func NewTokenVerifier(
	keys VerificationKeySource,
	revocations domainService.RevocationStore,
	cfg config.TokenConfig,
	metrics domainService.Metrics,
	clock domainService.Clock,
	log logger.Logger,
) TokenVerifier {
	if metrics == nil {
		metrics = domainService.NoopMetrics{}
	}
	if clock == nil {
		clock = time.Now
	}
	return &tokenVerifierImpl{
		keys:        keys,
		revocations: revocations,
		pubkeys:     crypto.NewPublicKeyCache(),
		// time claims are checked below against the injected clock
		parser:    jwt.NewParser(jwt.WithValidMethods([]string{string(constants.DefaultJWTAlgorithm)}), jwt.WithoutClaimsValidation()),
		structure: jwt.NewParser(),
		issuer:    cfg.Issuer,
		leeway:    cfg.Leeway,
		clock:     clock,
		metrics:   metrics,
		logger:    log.WithComponent("TokenVerifier"),
		tracer:    otel.Tracer(constants.ServiceName),
	}
}

func (v *tokenVerifierImpl) Verify(ctx context.Context, raw string) (*models.Identity, error) {
	ctx, span := v.tracer.Start(ctx, "TokenVerifier.Verify")
	defer span.End()
	start := time.Now()

	identity, err := v.verify(ctx, raw)

	result := "ok"
	if err != nil {
		result = string(errors.CodeOf(err))
		span.SetAttributes(attribute.String("result", result))
	}
	v.metrics.RecordTokenVerify(result, time.Since(start))
	return identity, err
}

func (v *tokenVerifierImpl) verify(ctx context.Context, raw string) (*models.Identity, error) {
	if raw == "" {
		return nil, errors.ErrMalformedToken
	}
	// structure first, so garbage never reaches the key store
	if _, _, err := v.structure.ParseUnverified(raw, &models.Claims{}); err != nil {
		return nil, errors.ErrMalformedToken.WithCause(err)
	}

	set, err := v.keys.GetVerificationKeySet(ctx)
	if err != nil {
		return nil, err
	}

	claims, kid, err := v.parse(ctx, raw, set)
	if err != nil && stderrors.Is(err, errUnknownKid) {
		// the cached set may predate a peer's rotation
		refreshed, rerr := v.keys.RefreshVerificationKeySet(ctx)
		if rerr != nil {
			return nil, rerr
		}
		v.pubkeys.Retain(refreshed)
		claims, kid, err = v.parse(ctx, raw, refreshed)
	}
	if err != nil {
		if stderrors.Is(err, errUnknownKid) {
			return nil, errors.ErrSignatureInvalid
		}
		return nil, err
	}

	if err := v.validateClaims(claims); err != nil {
		return nil, err
	}

	revoked, err := v.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		v.logger.Error(ctx, "Revocation lookup failed", err, logger.String("jti", claims.ID))
		if _, ok := errors.AsAppError(err); ok {
			return nil, err
		}
		return nil, errors.RevocationUnavailable("is_revoked", err)
	}
	if revoked {
		return nil, errors.ErrTokenRevoked
	}

	return models.IdentityFromClaims(claims, kid), nil
}

var errUnknownKid = stderrors.New("token signed by a key outside the trusted set")

// parse checks structure and signature. A signature failure after an unknown-kid fallback
// returns errUnknownKid so the caller can retry with a refreshed set.
func (v *tokenVerifierImpl) parse(ctx context.Context, raw string, set *models.TrustedKeySet) (*models.Claims, string, error) {
	claims := &models.Claims{}
	res := &crypto.Resolution{}
	token, err := v.parser.ParseWithClaims(raw, claims, crypto.Keyfunc(set, v.pubkeys, res))

	var kid string
	if token != nil {
		kid, _ = token.Header["kid"].(string)
	}

	if res.Fallback {
		v.metrics.RecordKidFallback(res.Reason)
		v.logger.Warn(ctx, "Token key id not in trusted set, trying every key",
			logger.String("reason", res.Reason),
			logger.String("kid", kid),
			logger.Int("trusted_keys", set.Len()),
		)
	}

	switch {
	case err == nil:
		return claims, kid, nil
	case stderrors.Is(err, jwt.ErrTokenMalformed):
		return nil, "", errors.ErrMalformedToken.WithCause(err)
	case stderrors.Is(err, jwt.ErrTokenSignatureInvalid), stderrors.Is(err, jwt.ErrTokenUnverifiable):
		if res.Fallback && res.Reason == "unknown_kid" {
			return nil, "", errUnknownKid
		}
		return nil, "", errors.ErrSignatureInvalid.WithCause(err)
	default:
		return nil, "", errors.ErrMalformedToken.WithCause(err)
	}
}

func (v *tokenVerifierImpl) validateClaims(c *models.Claims) error {
	if c.ID == "" || c.Subject == "" || c.ExpiresAt == nil {
		return errors.ErrMalformedToken
	}
	if v.issuer != "" && c.Issuer != v.issuer {
		return errors.ErrMalformedToken
	}

	now := v.clock()
	if !now.Before(c.ExpiresAt.Add(v.leeway)) {
		return errors.ErrTokenExpired
	}
	if c.NotBefore != nil && now.Add(v.leeway).Before(c.NotBefore.Time) {
		return errors.ErrTokenNotYetValid
	}
	return nil
}
