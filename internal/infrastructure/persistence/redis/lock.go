package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/turtacn/keytrust/internal/domain/service"
)

var _ service.Locker = (*Locker)(nil)

// releaseScript deletes the lock only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a single-key SET NX PX lock. It narrows, but does not replace, the
// store level single-active guarantee: an expired lease lets a second holder in.
type Locker struct {
	client redis.UniversalClient
}

// NewLocker creates a redis lock.
func NewLocker(client redis.UniversalClient) *Locker {
	return &Locker{client: client}
}

// TryLock takes the lock without waiting.
func (l *Locker) TryLock(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, name, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	unlock := func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{name}, token).Err()
	}
	return unlock, true, nil
}
