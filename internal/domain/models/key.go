package models

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/turtacn/keytrust/pkg/constants"
)

// SigningKey represents an asymmetric key pair used to sign and verify tokens.
// At most one key is active at any time; superseded keys stay trusted for verification until they expire.
// SigningKey 代表用于签署和验证令牌的非对称密钥对。
// 任意时刻最多只有一个活动密钥；被替代的密钥在过期前仍可用于验证。
type SigningKey struct {
	// KeyID is the unique identifier for the key, published as the JWT "kid" header.
	// KeyID 是密钥的唯一标识符，作为 JWT "kid" 头发布。
	KeyID string `gorm:"primaryKey;column:key_id;size:64" json:"kid"`
	// Algorithm is the JWS algorithm this key is used with.
	// Algorithm 是此密钥使用的 JWS 算法。
	Algorithm string `gorm:"size:16;not null" json:"alg"`
	// PublicKeyPEM is the PKIX public key in PEM format.
	// PublicKeyPEM 是 PEM 格式的 PKIX 公钥。
	PublicKeyPEM string `gorm:"type:text;not null" json:"public_key"`
	// PrivateKeyPEM is the PKCS1 private key in PEM format. It never leaves the store.
	// PrivateKeyPEM 是 PEM 格式的 PKCS1 私钥，永不离开存储。
	PrivateKeyPEM string `gorm:"type:text;not null" json:"-"`
	// CreatedAt is the timestamp when the key was minted.
	// CreatedAt 是密钥生成的时间戳。
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	// ExpiresAt is CreatedAt plus the validity window; after it the key is trusted for nothing.
	// ExpiresAt 等于 CreatedAt 加有效期；此后密钥不再被信任。
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	// IsActive marks the single key currently used for signing.
	// IsActive 标记当前用于签名的唯一密钥。
	IsActive bool `gorm:"not null;default:false" json:"is_active"`
}

// TableName binds SigningKey to the signing_keys table.
func (SigningKey) TableName() string {
	return "signing_keys"
}

// IsExpired reports whether the key has passed its expiry at now.
func (k *SigningKey) IsExpired(now time.Time) bool {
	return !now.Before(k.ExpiresAt)
}

// CanSign reports whether the key may sign new tokens at now.
func (k *SigningKey) CanSign(now time.Time) bool {
	return k.IsActive && !k.IsExpired(now)
}

// CanVerify reports whether signatures made by the key are still trusted at now.
func (k *SigningKey) CanVerify(now time.Time) bool {
	return !k.IsExpired(now)
}

// RemainingValidity returns how long the key stays trusted, never negative.
func (k *SigningKey) RemainingValidity(now time.Time) time.Duration {
	if d := k.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// State derives the lifecycle state at now.
func (k *SigningKey) State(now time.Time) constants.KeyState {
	switch {
	case k.IsExpired(now):
		return constants.KeyStateExpired
	case k.IsActive:
		return constants.KeyStateActive
	default:
		return constants.KeyStateSuperseded
	}
}

// Trusted returns the public projection of the key.
func (k *SigningKey) Trusted() TrustedKey {
	return TrustedKey{
		KeyID:        k.KeyID,
		Algorithm:    k.Algorithm,
		PublicKeyPEM: k.PublicKeyPEM,
		ExpiresAt:    k.ExpiresAt,
	}
}

// PrivateKey decodes the PKCS1 private key.
func (k *SigningKey) PrivateKey() (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(k.PrivateKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("key %s: private key is not PEM encoded", k.KeyID)
	}
	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("key %s: parse private key: %w", k.KeyID, err)
	}
	return priv, nil
}

// KeyInfo is the admin view of a key, without private material.
type KeyInfo struct {
	KeyID     string             `json:"kid"`
	Algorithm string             `json:"alg"`
	State     constants.KeyState `json:"state"`
	IsActive  bool               `json:"is_active"`
	CreatedAt time.Time          `json:"created_at"`
	ExpiresAt time.Time          `json:"expires_at"`
}

// Info returns the admin view of the key at now.
func (k *SigningKey) Info(now time.Time) KeyInfo {
	return KeyInfo{
		KeyID:     k.KeyID,
		Algorithm: k.Algorithm,
		State:     k.State(now),
		IsActive:  k.IsActive,
		CreatedAt: k.CreatedAt,
		ExpiresAt: k.ExpiresAt,
	}
}
