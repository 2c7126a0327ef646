package service

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/keytrust/internal/application/dto"
	"github.com/turtacn/keytrust/internal/config"
	"github.com/turtacn/keytrust/internal/domain/models"
	"github.com/turtacn/keytrust/internal/domain/service/mocks"
	"github.com/turtacn/keytrust/internal/infrastructure/crypto"
	"github.com/turtacn/keytrust/pkg/constants"
	"github.com/turtacn/keytrust/pkg/errors"
	"github.com/turtacn/keytrust/pkg/logger"
)

func issue(t *testing.T, in *instance, sub string, authorities ...string) *models.IssuedToken {
	t.Helper()
	token, err := in.issuer.Issue(context.Background(), &dto.TokenIssueRequest{
		Subject:     sub,
		UserID:      "u-" + sub,
		Authorities: authorities,
	})
	require.NoError(t, err)
	return token
}

func Test_Token_RoundTrip(t *testing.T) {
	h := newHarness(t)
	in := h.instance()

	token := issue(t, in, "alice", constants.PermissionKeyQuery, "system:user:list")
	assert.Equal(t, "Bearer", token.TokenType)
	assert.Equal(t, int64(constants.DefaultTokenTTL.Seconds()), token.ExpiresIn())

	id, err := in.verifier.Verify(context.Background(), token.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", id.Subject)
	assert.Equal(t, "u-alice", id.UserID)
	assert.Equal(t, token.TokenID, id.TokenID)
	assert.Equal(t, token.KeyID, id.KeyID)
	assert.Equal(t, []string{constants.PermissionKeyQuery, "system:user:list"}, id.Authorities)
	assert.True(t, id.ExpiresAt.Equal(token.ExpiresAt))
}

func Test_Token_ClaimsShape(t *testing.T) {
	h := newHarness(t)
	in := h.instance()
	token := issue(t, in, "bob", "a", "b")

	claims := &models.Claims{}
	parsed, _, err := jwt.NewParser().ParseUnverified(token.Token, claims)
	require.NoError(t, err)
	assert.Equal(t, token.KeyID, parsed.Header["kid"])
	assert.Equal(t, "RS256", parsed.Header["alg"])
	assert.Equal(t, constants.DefaultTokenIssuer, claims.Issuer)
	assert.Equal(t, "a b", claims.Authorities)
	assert.NotEmpty(t, claims.ID)
}

func Test_Token_IssueValidation(t *testing.T) {
	h := newHarness(t)
	in := h.instance()
	ctx := context.Background()

	_, err := in.issuer.Issue(ctx, &dto.TokenIssueRequest{})
	assert.Equal(t, errors.CodeInvalidRequest, errors.CodeOf(err))

	_, err = in.issuer.Issue(ctx, &dto.TokenIssueRequest{Subject: "x", Authorities: []string{"a b"}})
	assert.Equal(t, errors.CodeInvalidRequest, errors.CodeOf(err))

	short, err := in.issuer.Issue(ctx, &dto.TokenIssueRequest{Subject: "x", TTLSeconds: 60})
	require.NoError(t, err)
	assert.Equal(t, int64(60), short.ExpiresIn())

	capped, err := in.issuer.Issue(ctx, &dto.TokenIssueRequest{Subject: "x", TTLSeconds: int64((48 * time.Hour).Seconds())})
	require.NoError(t, err)
	assert.Equal(t, int64(constants.DefaultTokenTTL.Seconds()), capped.ExpiresIn())
}

func Test_Token_Rejections(t *testing.T) {
	h := newHarness(t)
	in := h.instance()
	ctx := context.Background()
	token := issue(t, in, "carol")

	parts := strings.Split(token.Token, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	tests := []struct {
		name  string
		token string
		at    time.Time
		want  errors.ErrorCode
	}{
		{"empty", "", day0, errors.CodeMalformedToken},
		{"garbage", "not-a-jwt", day0, errors.CodeMalformedToken},
		{"tampered signature", tampered, day0, errors.CodeSignatureInvalid},
		{"expired", token.Token, token.ExpiresAt, errors.CodeTokenExpired},
		{"not yet valid", token.Token, day0.Add(-time.Minute), errors.CodeTokenNotYetValid},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h.clock.Set(tc.at)
			_, err := in.verifier.Verify(ctx, tc.token)
			require.Error(t, err)
			assert.Equal(t, tc.want, errors.CodeOf(err))
			assert.True(t, errors.IsTokenRejection(err))
		})
	}
}

func Test_Token_ForeignKeyRejected(t *testing.T) {
	h := newHarness(t)
	in := h.instance()
	issue(t, in, "seed")

	foreign, err := crypto.NewKeyManager(testKeyConfig, logger.NewNoopLogger()).GenerateSigningKey(context.Background(), day0)
	require.NoError(t, err)
	foreign.IsActive = true

	signed, err := crypto.SignClaims(foreign, &models.Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    constants.DefaultTokenIssuer,
		Subject:   "mallory",
		ID:        "jti-1",
		ExpiresAt: jwt.NewNumericDate(day0.Add(time.Hour)),
	}})
	require.NoError(t, err)

	_, err = in.verifier.Verify(context.Background(), signed)
	assert.ErrorIs(t, err, errors.ErrSignatureInvalid)
}

func Test_Token_MissingKidFallsBackToEveryKey(t *testing.T) {
	h := newHarness(t)
	in := h.instance()
	ctx := context.Background()

	key, err := in.lifecycle.GetSigningKey(ctx)
	require.NoError(t, err)
	priv, err := key.PrivateKey()
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, &models.Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    constants.DefaultTokenIssuer,
		Subject:   "legacy",
		ID:        "jti-legacy",
		ExpiresAt: jwt.NewNumericDate(day0.Add(time.Hour)),
	}})
	signed, err := token.SignedString(priv)
	require.NoError(t, err)

	id, err := in.verifier.Verify(ctx, signed)
	require.NoError(t, err)
	assert.Equal(t, "legacy", id.Subject)
}

func Test_Token_SurvivesRotation(t *testing.T) {
	h := newHarness(t)
	in := h.instance()
	ctx := context.Background()

	h.clock.Set(day0)
	_, err := in.lifecycle.Rotate(ctx)
	require.NoError(t, err)

	h.clock.Set(day0.Add(84 * day))
	before := issue(t, in, "dave")
	_, err = in.lifecycle.Rotate(ctx)
	require.NoError(t, err)
	after := issue(t, in, "dave")
	assert.NotEqual(t, before.KeyID, after.KeyID)

	_, err = in.verifier.Verify(ctx, before.Token)
	assert.NoError(t, err, "token signed just before rotation still verifies")
	_, err = in.verifier.Verify(ctx, after.Token)
	assert.NoError(t, err)
}

func Test_Token_PeerRotationRefreshesStaleSet(t *testing.T) {
	h := newHarness(t)
	a := h.instance()
	b := h.instance()
	ctx := context.Background()

	issue(t, a, "warm")
	_, err := a.lifecycle.GetVerificationKeySet(ctx)
	require.NoError(t, err)

	_, err = b.lifecycle.ForceRotate(ctx)
	require.NoError(t, err)
	fromPeer := issue(t, b, "erin")

	// a's cached set predates the peer's key
	_, err = a.verifier.Verify(ctx, fromPeer.Token)
	assert.NoError(t, err)
}

func Test_Token_RevocationIsImmediate(t *testing.T) {
	h := newHarness(t)
	in := h.instance()
	ctx := context.Background()
	token := issue(t, in, "frank")

	entry, err := in.revocation.Logout(ctx, token.Token)
	require.NoError(t, err)
	assert.Equal(t, token.TokenID, entry.TokenID)

	_, err = in.verifier.Verify(ctx, token.Token)
	assert.ErrorIs(t, err, errors.ErrTokenRevoked)

	events := in.publisher.Events()
	last := events[len(events)-1]
	assert.Equal(t, constants.KeyEventRevoked, last.Type)
	assert.Equal(t, token.TokenID, last.TokenID)

	// revoking the same token twice is harmless, but it is already rejected
	_, err = in.revocation.Logout(ctx, token.Token)
	assert.ErrorIs(t, err, errors.ErrTokenRevoked)
}

func Test_Token_RevocationTTLMatchesRemainingLifetime(t *testing.T) {
	store := new(mocks.MockRevocationStore)
	clock := &stepClock{now: day0.Add(30 * time.Minute)}
	svc := NewRevocationService(nil, store, nil, nil, clock.Now, logger.NewNoopLogger()).(*revocationServiceImpl)

	id := &models.Identity{TokenID: "jti-9", ExpiresAt: day0.Add(2 * time.Hour)}
	store.On("Revoke", mock.Anything, "jti-9", 90*time.Minute).Return(nil)

	_, err := svc.revoke(context.Background(), id)
	require.NoError(t, err)
	store.AssertExpectations(t)

	clock.Set(day0.Add(3 * time.Hour))
	_, err = svc.revoke(context.Background(), id)
	require.NoError(t, err)
	store.AssertNumberOfCalls(t, "Revoke", 1)
}

func Test_Token_RevocationSurvivesPublishFailure(t *testing.T) {
	store := new(mocks.MockRevocationStore)
	publisher := new(mocks.MockKeyEventPublisher)
	clock := &stepClock{now: day0}
	svc := NewRevocationService(nil, store, publisher, nil, clock.Now, logger.NewNoopLogger()).(*revocationServiceImpl)

	id := &models.Identity{TokenID: "jti-7", ExpiresAt: day0.Add(time.Hour)}
	store.On("Revoke", mock.Anything, "jti-7", time.Hour).Return(nil)
	publisher.On("Publish", mock.Anything, mock.MatchedBy(func(e *models.KeyEvent) bool {
		return e.Type == constants.KeyEventRevoked && e.TokenID == "jti-7"
	})).Return(stderrors.New("kafka: leader not available"))

	entry, err := svc.revoke(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "jti-7", entry.TokenID)
	store.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func Test_Token_RevocationStoreFailureIsUnavailable(t *testing.T) {
	h := newHarness(t)
	seed := h.instance()
	token := issue(t, seed, "grace")

	store := new(mocks.MockRevocationStore)
	store.On("IsRevoked", mock.Anything, token.TokenID).Return(false, stderrors.New("redis: connection refused"))
	verifier := NewTokenVerifier(seed.lifecycle, store, config.TokenConfig{Issuer: constants.DefaultTokenIssuer}, nil, h.clock.Now, logger.NewNoopLogger())

	_, err := verifier.Verify(context.Background(), token.Token)
	require.Error(t, err)
	assert.Equal(t, errors.CodeRevocationUnavailable, errors.CodeOf(err))
	assert.False(t, errors.IsTokenRejection(err))
	assert.True(t, errors.IsUnavailable(err))
}

func Test_Token_RevocationLookupIsBounded(t *testing.T) {
	h := newHarness(t)
	seed := h.instance()
	token := issue(t, seed, "ivan")

	hung := new(mocks.MockRevocationStore)
	hung.On("IsRevoked", mock.Anything, token.TokenID).
		Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
		Return(false, context.DeadlineExceeded)
	hung.On("Revoke", mock.Anything, token.TokenID, mock.Anything).
		Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
		Return(context.DeadlineExceeded)
	bounded := NewBoundedRevocationStore(hung, 20*time.Millisecond)

	verifier := NewTokenVerifier(seed.lifecycle, bounded, config.TokenConfig{Issuer: constants.DefaultTokenIssuer}, nil, h.clock.Now, logger.NewNoopLogger())
	start := time.Now()
	_, err := verifier.Verify(context.Background(), token.Token)
	assert.ErrorIs(t, err, errors.ErrRevocationFailure)
	assert.Less(t, time.Since(start), time.Second)

	svc := NewRevocationService(nil, bounded, nil, nil, h.clock.Now, logger.NewNoopLogger()).(*revocationServiceImpl)
	_, err = svc.revoke(context.Background(), &models.Identity{TokenID: token.TokenID, Subject: "ivan", ExpiresAt: token.ExpiresAt})
	assert.ErrorIs(t, err, errors.ErrRevocationFailure)
}

func Test_Token_RevokedEventMirroredIntoLocalStore(t *testing.T) {
	h := newHarness(t)
	a := h.instance()
	b := h.instance()
	ctx := context.Background()
	token := issue(t, a, "heidi")

	_, err := a.revocation.Logout(ctx, token.Token)
	require.NoError(t, err)

	events := a.publisher.Events()
	handler := NewKeyEventHandler(b.lifecycle, b.cache, b.revocations, logger.NewNoopLogger())
	handler.clock = h.clock.Now
	require.NoError(t, handler.HandleKeyEvent(ctx, events[len(events)-1]))

	_, err = b.verifier.Verify(ctx, token.Token)
	assert.ErrorIs(t, err, errors.ErrTokenRevoked)
}
