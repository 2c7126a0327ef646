// Package models defines the domain models for the keytrust service.
package models

import "time"

// IssuedToken is the result of signing a token.
// IssuedToken 是签发令牌的结果。
type IssuedToken struct {
	// Token is the compact JWS serialization.
	// Token 是紧凑 JWS 序列化形式。
	Token     string    `json:"access_token"`
	TokenType string    `json:"token_type"`
	TokenID   string    `json:"jti"`
	KeyID     string    `json:"kid"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExpiresIn returns the lifetime in whole seconds, as used in token responses.
func (t *IssuedToken) ExpiresIn() int64 {
	return int64(t.ExpiresAt.Sub(t.IssuedAt).Seconds())
}

// RevocationEntry marks a token id as revoked until the token itself would have expired.
// RevocationEntry 将令牌 ID 标记为已撤销，直到该令牌本应过期的时刻。
type RevocationEntry struct {
	TokenID   string    `json:"jti"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TTL returns how long the entry must be retained, zero when the token already expired.
func (e RevocationEntry) TTL(now time.Time) time.Duration {
	if d := e.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
