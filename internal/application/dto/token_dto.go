// Package dto provides data transfer objects for the application layer.
package dto

import (
	"time"

	"github.com/turtacn/keytrust/internal/domain/models"
)

// TokenIssueRequest 令牌颁发请求 DTO
type TokenIssueRequest struct {
	Subject     string   `json:"subject" validate:"required,min=1,max=256"`
	UserID      string   `json:"user_id" validate:"omitempty,max=128"`
	Authorities []string `json:"authorities" validate:"omitempty,dive,min=1,max=128"`
	// TTLSeconds overrides the configured token lifetime when positive. It is capped by the configured TTL.
	TTLSeconds int64 `json:"ttl_seconds" validate:"omitempty,min=1"`
}

// TTL returns the requested lifetime, zero when none was requested.
func (r *TokenIssueRequest) TTL() time.Duration {
	return time.Duration(r.TTLSeconds) * time.Second
}

// TokenResponse 令牌响应 DTO
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenID     string `json:"jti"`
	KeyID       string `json:"kid"`
	IssuedAt    int64  `json:"issued_at"`
}

// NewTokenResponse maps an issued token to its response form.
func NewTokenResponse(t *models.IssuedToken) *TokenResponse {
	return &TokenResponse{
		AccessToken: t.Token,
		TokenType:   t.TokenType,
		ExpiresIn:   t.ExpiresIn(),
		TokenID:     t.TokenID,
		KeyID:       t.KeyID,
		IssuedAt:    t.IssuedAt.Unix(),
	}
}

// IdentityResponse 当前调用方身份 DTO
type IdentityResponse struct {
	Subject     string   `json:"sub"`
	UserID      string   `json:"user_id,omitempty"`
	TokenID     string   `json:"jti"`
	Authorities []string `json:"authorities"`
	IssuedAt    int64    `json:"iat"`
	ExpiresAt   int64    `json:"exp"`
}

// NewIdentityResponse maps a verified identity to its response form.
func NewIdentityResponse(id *models.Identity) *IdentityResponse {
	authorities := id.Authorities
	if authorities == nil {
		authorities = []string{}
	}
	return &IdentityResponse{
		Subject:     id.Subject,
		UserID:      id.UserID,
		TokenID:     id.TokenID,
		Authorities: authorities,
		IssuedAt:    id.IssuedAt.Unix(),
		ExpiresAt:   id.ExpiresAt.Unix(),
	}
}

// LogoutResponse 注销响应 DTO
type LogoutResponse struct {
	TokenID string `json:"jti"`
	Revoked bool   `json:"revoked"`
}
