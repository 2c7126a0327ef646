package crypto

import (
	"crypto/rsa"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/turtacn/keytrust/internal/domain/models"
)

// SignClaims signs claims with key and stamps the kid header.
func SignClaims(key *models.SigningKey, claims *models.Claims) (string, error) {
	privateKey, err := key.PrivateKey()
	if err != nil {
		return "", err
	}
	method := jwt.GetSigningMethod(key.Algorithm)
	if method == nil {
		return "", fmt.Errorf("key %s: unsupported algorithm %q", key.KeyID, key.Algorithm)
	}

	token := jwt.NewWithClaims(method, claims)
	token.Header["kid"] = key.KeyID

	signed, err := token.SignedString(privateKey)
	if err != nil {
		return "", fmt.Errorf("sign token with key %s: %w", key.KeyID, err)
	}
	return signed, nil
}

// PublicKeyCache memoizes decoded public keys by kid. Key material never
// changes for a given kid, so entries never need invalidation; Retain drops
// kids that left the trusted set.
type PublicKeyCache struct {
	mu   sync.RWMutex
	keys map[string]*rsa.PublicKey
}

// NewPublicKeyCache creates an empty cache.
func NewPublicKeyCache() *PublicKeyCache {
	return &PublicKeyCache{keys: make(map[string]*rsa.PublicKey)}
}

// Get decodes, or returns the memoized, public key of k.
func (c *PublicKeyCache) Get(k models.TrustedKey) (*rsa.PublicKey, error) {
	c.mu.RLock()
	pub, ok := c.keys[k.KeyID]
	c.mu.RUnlock()
	if ok {
		return pub, nil
	}

	pub, err := k.PublicKey()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.keys[k.KeyID] = pub
	c.mu.Unlock()
	return pub, nil
}

// Retain drops every memoized key not present in set.
func (c *PublicKeyCache) Retain(set *models.TrustedKeySet) {
	keep := make(map[string]struct{}, set.Len())
	for _, k := range set.Keys {
		keep[k.KeyID] = struct{}{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for kid := range c.keys {
		if _, ok := keep[kid]; !ok {
			delete(c.keys, kid)
		}
	}
}

// Resolution describes how a token's verification key was chosen.
type Resolution struct {
	// Fallback is set when the token carried no kid, or a kid outside the trusted set,
	// and every trusted key was offered.
	Fallback bool
	// Reason is "missing_kid" or "unknown_kid" on fallback.
	Reason string
}

// Keyfunc builds a jwt.Keyfunc over set. A kid in the set selects exactly that key;
// a missing or unknown kid offers every trusted key via jwt.VerificationKeySet.
// res, when non-nil, records which path was taken.
func Keyfunc(set *models.TrustedKeySet, cache *PublicKeyCache, res *Resolution) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if kid != "" {
			if k, ok := set.Find(kid); ok {
				return cache.Get(k)
			}
		}

		if res != nil {
			res.Fallback = true
			res.Reason = "unknown_kid"
			if kid == "" {
				res.Reason = "missing_kid"
			}
		}

		var all jwt.VerificationKeySet
		for _, k := range set.Keys {
			pub, err := cache.Get(k)
			if err != nil {
				continue
			}
			all.Keys = append(all.Keys, pub)
		}
		if len(all.Keys) == 0 {
			return nil, fmt.Errorf("no trusted verification keys")
		}
		return all, nil
	}
}
