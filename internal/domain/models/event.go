package models

import (
	"time"

	"github.com/turtacn/keytrust/pkg/constants"
)

// KeyEvent is broadcast to peer instances whenever the trusted key set or the
// revocation list changes, so they can drop their in-process caches.
// KeyEvent 在可信密钥集或撤销列表变化时广播给其他实例，以便其清除本地缓存。
type KeyEvent struct {
	EventID    string                 `json:"event_id"`
	Type       constants.KeyEventType `json:"type"`
	KeyID      string                 `json:"kid,omitempty"`
	PreviousID string                 `json:"previous_kid,omitempty"`
	TokenID    string                 `json:"jti,omitempty"`
	ExpiresAt  time.Time              `json:"expires_at,omitempty"`
	Count      int64                  `json:"count,omitempty"`
	Source     string                 `json:"source"`
	OccurredAt time.Time              `json:"occurred_at"`
}
