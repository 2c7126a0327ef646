package repository

import (
	"context"
	"errors"
	"time"

	"github.com/turtacn/keytrust/internal/domain/models"
)

// ErrActiveKeyConflict is returned by Insert when another active key already exists.
// Callers treat it as a lost rotation race and re-read.
var ErrActiveKeyConflict = errors.New("another active signing key already exists")

//go:generate mockery --name KeyRepository --output ../service/mocks --outpkg mocks
// KeyRepository is the durable system of record for signing keys.
// Empty results are not errors; driver failures surface as errors.ErrStoreUnavailable.
type KeyRepository interface {
	// Insert persists a new key. When key.IsActive and an active row exists it returns ErrActiveKeyConflict.
	Insert(ctx context.Context, key *models.SigningKey) error

	// ListActive returns active keys that have not expired at now, newest first.
	ListActive(ctx context.Context, now time.Time) ([]*models.SigningKey, error)

	// ListValidForVerification returns every key that has not expired at now, newest first.
	ListValidForVerification(ctx context.Context, now time.Time) ([]*models.SigningKey, error)

	// ListActiveExpired returns keys still flagged active whose expiry has passed.
	ListActiveExpired(ctx context.Context, now time.Time) ([]*models.SigningKey, error)

	// ListAll returns every stored key, newest first.
	ListAll(ctx context.Context) ([]*models.SigningKey, error)

	// MarkInactive clears the active flag of one key if it is still set.
	// It reports false when the key was already inactive or missing.
	MarkInactive(ctx context.Context, keyID string) (bool, error)

	// DeleteExpiredBefore removes keys that expired strictly before cutoff and returns how many.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
