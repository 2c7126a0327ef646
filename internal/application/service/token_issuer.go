package service

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/keytrust/internal/application/dto"
	"github.com/turtacn/keytrust/internal/config"
	"github.com/turtacn/keytrust/internal/domain/models"
	domainService "github.com/turtacn/keytrust/internal/domain/service"
	"github.com/turtacn/keytrust/internal/infrastructure/crypto"
	"github.com/turtacn/keytrust/pkg/constants"
	"github.com/turtacn/keytrust/pkg/errors"
	"github.com/turtacn/keytrust/pkg/logger"
	"github.com/turtacn/keytrust/pkg/utils"
)

// SigningKeySource provides the key new tokens are signed with.
type SigningKeySource interface {
	GetSigningKey(ctx context.Context) (*models.SigningKey, error)
}

// TokenIssuer signs access tokens with the active key.
type TokenIssuer interface {
	// Issue signs a token for req.Subject. It has no side effects beyond key access.
	Issue(ctx context.Context, req *dto.TokenIssueRequest) (*models.IssuedToken, error)
}

// tokenIssuerImpl is the concrete implementation of TokenIssuer
type tokenIssuerImpl struct {
	keys    SigningKeySource
	issuer  string
	ttl     time.Duration
	clock   domainService.Clock
	metrics domainService.Metrics
	logger  logger.Logger
	tracer  trace.Tracer
}

// NewTokenIssuer creates a new instance of TokenIssuer
func NewTokenIssuer(keys SigningKeySource, cfg config.TokenConfig, metrics domainService.Metrics, clock domainService.Clock, log logger.Logger) TokenIssuer {
	if cfg.Issuer == "" {
		cfg.Issuer = constants.DefaultTokenIssuer
	}
	if cfg.TTL <= 0 {
		cfg.TTL = constants.DefaultTokenTTL
	}
	if metrics == nil {
		metrics = domainService.NoopMetrics{}
	}
	if clock == nil {
		clock = time.Now
	}
	return &tokenIssuerImpl{
		keys:    keys,
		issuer:  cfg.Issuer,
		ttl:     cfg.TTL,
		clock:   clock,
		metrics: metrics,
		logger:  log.WithComponent("TokenIssuer"),
		tracer:  otel.Tracer(constants.ServiceName),
	}
}

func (s *tokenIssuerImpl) Issue(ctx context.Context, req *dto.TokenIssueRequest) (*models.IssuedToken, error) {
	ctx, span := s.tracer.Start(ctx, "TokenIssuer.Issue")
	defer span.End()
	start := time.Now()

	token, err := s.issue(ctx, req)
	s.metrics.RecordTokenIssue(err == nil, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("kid", token.KeyID))
	return token, nil
}

func (s *tokenIssuerImpl) issue(ctx context.Context, req *dto.TokenIssueRequest) (*models.IssuedToken, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	for _, a := range req.Authorities {
		if strings.ContainsAny(a, " ,\t\r\n") {
			return nil, errors.ErrInvalidRequest("authorities must not contain whitespace or commas")
		}
	}

	key, err := s.keys.GetSigningKey(ctx)
	if err != nil {
		s.logger.Error(ctx, "No signing key available", err)
		return nil, err
	}

	ttl := s.ttl
	if requested := req.TTL(); requested > 0 && requested < ttl {
		ttl = requested
	}

	now := s.clock().UTC().Truncate(time.Second)
	claims := &models.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   req.Subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:      req.UserID,
		Authorities: utils.JoinAuthorities(req.Authorities),
	}

	signed, err := crypto.SignClaims(key, claims)
	if err != nil {
		s.logger.Error(ctx, "Token signing failed", err, logger.String("kid", key.KeyID))
		return nil, errors.ErrInternal.WithCause(err)
	}

	s.logger.Debug(ctx, "Token issued",
		logger.String("sub", req.Subject),
		logger.String("jti", claims.ID),
		logger.String("kid", key.KeyID),
	)
	return &models.IssuedToken{
		Token:     signed,
		TokenType: strings.TrimSpace(constants.BearerPrefix),
		TokenID:   claims.ID,
		KeyID:     key.KeyID,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}, nil
}
