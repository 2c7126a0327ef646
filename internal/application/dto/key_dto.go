package dto

import "github.com/turtacn/keytrust/internal/domain/models"

// KeyListResponse 密钥列表响应 DTO
type KeyListResponse struct {
	Keys  []models.KeyInfo `json:"keys"`
	Total int              `json:"total"`
}

// RotationResponse 密钥轮换响应 DTO
type RotationResponse struct {
	Rotated       bool           `json:"rotated"`
	PreviousKeyID string         `json:"previous_kid,omitempty"`
	ActiveKey     models.KeyInfo `json:"active_key"`
}

// PurgeResponse 过期密钥清理响应 DTO
type PurgeResponse struct {
	Purged int64 `json:"purged"`
}
