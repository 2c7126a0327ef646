package models

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"time"
)

// TrustedKey is the public, cacheable projection of a SigningKey.
// TrustedKey 是 SigningKey 的公开、可缓存投影。
type TrustedKey struct {
	KeyID        string    `json:"kid"`
	Algorithm    string    `json:"alg"`
	PublicKeyPEM string    `json:"public_key"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// PublicKey decodes the PKIX public key.
func (k TrustedKey) PublicKey() (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(k.PublicKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("key %s: public key is not PEM encoded", k.KeyID)
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("key %s: parse public key: %w", k.KeyID, err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("key %s: public key is not RSA", k.KeyID)
	}
	return rsaPub, nil
}

// TrustedKeySet is the set of keys a verifier accepts, newest first.
// TrustedKeySet 是验证方接受的密钥集合，按新旧排序。
type TrustedKeySet struct {
	Keys        []TrustedKey `json:"keys"`
	GeneratedAt time.Time    `json:"generated_at"`
}

// NewTrustedKeySet projects store rows into a trusted set.
func NewTrustedKeySet(keys []*SigningKey, now time.Time) *TrustedKeySet {
	set := &TrustedKeySet{Keys: make([]TrustedKey, 0, len(keys)), GeneratedAt: now}
	for _, k := range keys {
		set.Keys = append(set.Keys, k.Trusted())
	}
	return set
}

// Unexpired returns a copy holding only keys still trusted at now.
func (s *TrustedKeySet) Unexpired(now time.Time) *TrustedKeySet {
	out := &TrustedKeySet{Keys: make([]TrustedKey, 0, len(s.Keys)), GeneratedAt: s.GeneratedAt}
	for _, k := range s.Keys {
		if now.Before(k.ExpiresAt) {
			out.Keys = append(out.Keys, k)
		}
	}
	return out
}

// Find returns the key with the given id.
func (s *TrustedKeySet) Find(kid string) (TrustedKey, bool) {
	for _, k := range s.Keys {
		if k.KeyID == kid {
			return k, true
		}
	}
	return TrustedKey{}, false
}

// Len returns the number of keys in the set.
func (s *TrustedKeySet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Keys)
}

// Marshal renders the set in its cache form.
func (s *TrustedKeySet) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalTrustedKeySet parses the cache form.
func UnmarshalTrustedKeySet(data []byte) (*TrustedKeySet, error) {
	var set TrustedKeySet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("decode trusted key set: %w", err)
	}
	return &set, nil
}
