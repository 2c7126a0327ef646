package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/turtacn/keytrust/pkg/utils"
)

// Claims represents the JWT claims issued by the keytrust service.
// It embeds the standard jwt.RegisteredClaims and adds the user id and authority list.
// Claims 代表 keytrust 服务颁发的 JWT 声明。
// 它嵌入了标准的 jwt.RegisteredClaims，并添加了用户 ID 和权限列表。
type Claims struct {
	jwt.RegisteredClaims
	// UserID is the application level user identifier.
	// UserID 是应用层的用户标识符。
	UserID string `json:"user_id,omitempty"`
	// Authorities is the space-delimited list of granted authorities.
	// Authorities 是以空格分隔的授权列表。
	Authorities string `json:"authorities,omitempty"`
}

// Identity is the verified caller attached to a request after authentication.
// Identity 是认证后附加到请求上的已验证调用方。
type Identity struct {
	Subject     string    `json:"sub"`
	UserID      string    `json:"user_id,omitempty"`
	TokenID     string    `json:"jti"`
	KeyID       string    `json:"kid,omitempty"`
	Authorities []string  `json:"authorities"`
	IssuedAt    time.Time `json:"iat"`
	ExpiresAt   time.Time `json:"exp"`
}

// IdentityFromClaims builds the Identity carried by verified claims.
func IdentityFromClaims(c *Claims, kid string) *Identity {
	id := &Identity{
		Subject:     c.Subject,
		UserID:      c.UserID,
		TokenID:     c.ID,
		KeyID:       kid,
		Authorities: utils.ParseAuthorities(c.Authorities),
	}
	if c.IssuedAt != nil {
		id.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		id.ExpiresAt = c.ExpiresAt.Time
	}
	return id
}

// HasAuthority reports an exact match on a single authority.
func (i *Identity) HasAuthority(authority string) bool {
	return utils.Contains(i.Authorities, authority)
}

// HasAnyAuthority reports whether at least one of the authorities is held.
func (i *Identity) HasAnyAuthority(authorities ...string) bool {
	for _, a := range authorities {
		if i.HasAuthority(a) {
			return true
		}
	}
	return false
}

// HasAllAuthorities reports whether every listed authority is held.
func (i *Identity) HasAllAuthorities(authorities ...string) bool {
	for _, a := range authorities {
		if !i.HasAuthority(a) {
			return false
		}
	}
	return true
}

// RemainingLifetime returns how long the token stays valid, never negative.
func (i *Identity) RemainingLifetime(now time.Time) time.Duration {
	if d := i.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
