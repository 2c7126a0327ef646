package service

import (
	"context"
	"time"

	"github.com/turtacn/keytrust/internal/domain/models"
)

//go:generate mockery --name KeyCache --output mocks --outpkg mocks
// KeyCache is a shared, expiring copy of the verification key set.
// It is an accelerator only; the KeyRepository stays authoritative.
// KeyCache 是验证密钥集的共享、可过期副本，仅用于加速；KeyRepository 仍是权威来源。
type KeyCache interface {
	// Get returns the cached set. A miss is (nil, false, nil).
	Get(ctx context.Context) (*models.TrustedKeySet, bool, error)

	// Put stores the set for ttl.
	Put(ctx context.Context, set *models.TrustedKeySet, ttl time.Duration) error

	// Invalidate drops the cached set.
	Invalidate(ctx context.Context) error
}

//go:generate mockery --name RevocationStore --output mocks --outpkg mocks
// RevocationStore records token ids that must be rejected before their natural expiry.
// RevocationStore 记录必须在自然过期前被拒绝的令牌 ID。
type RevocationStore interface {
	// Revoke marks tokenID revoked for ttl. A non-positive ttl is a no-op.
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error

	// IsRevoked reports whether tokenID is currently revoked.
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Locker serializes key creation across instances.
// Locker 在多个实例间串行化密钥创建。
type Locker interface {
	// TryLock attempts to take the named lock for ttl. It returns an unlock func when acquired.
	TryLock(ctx context.Context, name string, ttl time.Duration) (unlock func(context.Context) error, acquired bool, err error)
}

// KeyEventPublisher broadcasts key lifecycle events to peer instances.
type KeyEventPublisher interface {
	Publish(ctx context.Context, event *models.KeyEvent) error
	Close() error
}

// PermissionLoader resolves the current authorities of a user at request time.
// Implementations return an empty set, not an error, when the user has none.
// PermissionLoader 在请求时解析用户当前的权限集合。
type PermissionLoader interface {
	LoadPermissions(ctx context.Context, identity *models.Identity) ([]string, error)
}

// Clock returns the current time. Tests inject a fixed or stepped clock.
type Clock func() time.Time

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, *models.KeyEvent) error { return nil }
func (NoopPublisher) Close() error                                    { return nil }
