package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/go-jose/go-jose/v4"
	"github.com/turtacn/keytrust/internal/domain/models"
)

// ToJWKS renders the trusted set as an RFC 7517 key set. Keys that fail to decode are skipped.
func ToJWKS(set *models.TrustedKeySet, cache *PublicKeyCache) jose.JSONWebKeySet {
	out := jose.JSONWebKeySet{Keys: make([]jose.JSONWebKey, 0, set.Len())}
	for _, k := range set.Keys {
		pub, err := cache.Get(k)
		if err != nil {
			continue
		}
		out.Keys = append(out.Keys, jose.JSONWebKey{
			Key:       pub,
			KeyID:     k.KeyID,
			Algorithm: k.Algorithm,
			Use:       "sig",
		})
	}
	return out
}

// JWKSETag returns a strong entity tag for the rendered key set.
func JWKSETag(jwks jose.JSONWebKeySet) (string, []byte, error) {
	body, err := json.Marshal(jwks)
	if err != nil {
		return "", nil, err
	}
	sum := sha256.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`, body, nil
}
