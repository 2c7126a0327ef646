package models_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/keytrust/internal/domain/models"
	"github.com/turtacn/keytrust/pkg/constants"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestSigningKey_State(t *testing.T) {
	tests := []struct {
		name      string
		active    bool
		expiresAt time.Time
		state     constants.KeyState
		canSign   bool
		canVerify bool
	}{
		{"active", true, now.Add(time.Hour), constants.KeyStateActive, true, true},
		{"superseded", false, now.Add(time.Hour), constants.KeyStateSuperseded, false, true},
		{"expired but flagged active", true, now.Add(-time.Second), constants.KeyStateExpired, false, false},
		{"borderline", true, now, constants.KeyStateExpired, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := &models.SigningKey{KeyID: "k", IsActive: tt.active, ExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.state, k.State(now))
			assert.Equal(t, tt.canSign, k.CanSign(now))
			assert.Equal(t, tt.canVerify, k.CanVerify(now))
		})
	}
}

func TestSigningKey_RemainingValidity(t *testing.T) {
	k := &models.SigningKey{ExpiresAt: now.Add(36 * time.Hour)}
	assert.Equal(t, 36*time.Hour, k.RemainingValidity(now))
	assert.Zero(t, k.RemainingValidity(now.Add(48*time.Hour)))
}

func TestTrustedKeySet_UnexpiredAndFind(t *testing.T) {
	keys := []*models.SigningKey{
		{KeyID: "new", Algorithm: "RS256", PublicKeyPEM: "pub-new", PrivateKeyPEM: "secret", ExpiresAt: now.Add(time.Hour)},
		{KeyID: "old", Algorithm: "RS256", PublicKeyPEM: "pub-old", ExpiresAt: now.Add(time.Minute)},
	}
	set := models.NewTrustedKeySet(keys, now)
	require.Equal(t, 2, set.Len())

	k, ok := set.Find("old")
	require.True(t, ok)
	assert.Equal(t, "pub-old", k.PublicKeyPEM)

	later := set.Unexpired(now.Add(10 * time.Minute))
	assert.Equal(t, 1, later.Len())
	_, ok = later.Find("old")
	assert.False(t, ok)
	assert.Equal(t, 2, set.Len(), "original set is untouched")
}

func TestTrustedKeySet_CacheFormCarriesNoPrivateMaterial(t *testing.T) {
	set := models.NewTrustedKeySet([]*models.SigningKey{
		{KeyID: "a", Algorithm: "RS256", PublicKeyPEM: "pub", PrivateKeyPEM: "TOP-SECRET", ExpiresAt: now.Add(time.Hour)},
	}, now)

	data, err := set.Marshal()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "TOP-SECRET")

	decoded, err := models.UnmarshalTrustedKeySet(data)
	require.NoError(t, err)
	assert.Equal(t, set.Keys, decoded.Keys)

	_, err = models.UnmarshalTrustedKeySet([]byte("{not json"))
	assert.Error(t, err)
}

func TestIdentity_Authorities(t *testing.T) {
	claims := &models.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			ID:        "jti-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(2 * time.Hour)),
		},
		UserID:      "42",
		Authorities: "system:key:query system:key:rotate",
	}
	id := models.IdentityFromClaims(claims, "kid-1")

	assert.Equal(t, "alice", id.Subject)
	assert.Equal(t, "kid-1", id.KeyID)
	assert.True(t, id.HasAuthority("system:key:query"))
	assert.False(t, id.HasAuthority("system:key"))
	assert.True(t, id.HasAnyAuthority("x", "system:key:rotate"))
	assert.False(t, id.HasAllAuthorities("system:key:query", "x"))
	assert.Equal(t, time.Hour, id.RemainingLifetime(now.Add(time.Hour)))
	assert.Zero(t, id.RemainingLifetime(now.Add(3*time.Hour)))
}

func TestRevocationEntry_TTL(t *testing.T) {
	e := models.RevocationEntry{TokenID: "j", ExpiresAt: now.Add(time.Minute)}
	assert.Equal(t, time.Minute, e.TTL(now))
	assert.Zero(t, e.TTL(now.Add(time.Hour)))
}
