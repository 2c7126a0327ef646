package postgres

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/turtacn/keytrust/internal/domain/models"
	"github.com/turtacn/keytrust/internal/domain/repository"
	"github.com/turtacn/keytrust/pkg/errors"
	"gorm.io/gorm"
)

// KeyRepository is the gorm implementation of repository.KeyRepository.
// All timestamps are stored and compared in UTC.
type KeyRepository struct {
	db *gorm.DB
}

// NewKeyRepository creates a new KeyRepository.
func NewKeyRepository(db *gorm.DB) repository.KeyRepository {
	return &KeyRepository{db: db}
}

// Insert creates a new key. A second active key is rejected by the partial unique index.
func (r *KeyRepository) Insert(ctx context.Context, key *models.SigningKey) error {
	key.CreatedAt = key.CreatedAt.UTC()
	key.ExpiresAt = key.ExpiresAt.UTC()

	err := r.db.WithContext(ctx).Create(key).Error
	if err == nil {
		return nil
	}
	if stderrors.Is(err, gorm.ErrDuplicatedKey) && key.IsActive {
		return repository.ErrActiveKeyConflict
	}
	return errors.StoreUnavailable("insert", err)
}

// ListActive returns active, unexpired keys, newest first.
func (r *KeyRepository) ListActive(ctx context.Context, now time.Time) ([]*models.SigningKey, error) {
	return r.list(ctx, "list_active", "is_active = ? AND expires_at > ?", true, now.UTC())
}

// ListValidForVerification returns every unexpired key, newest first.
func (r *KeyRepository) ListValidForVerification(ctx context.Context, now time.Time) ([]*models.SigningKey, error) {
	return r.list(ctx, "list_valid", "expires_at > ?", now.UTC())
}

// ListActiveExpired returns keys still flagged active after their expiry.
func (r *KeyRepository) ListActiveExpired(ctx context.Context, now time.Time) ([]*models.SigningKey, error) {
	return r.list(ctx, "list_active_expired", "is_active = ? AND expires_at <= ?", true, now.UTC())
}

// ListAll returns every key, newest first.
func (r *KeyRepository) ListAll(ctx context.Context) ([]*models.SigningKey, error) {
	var keys []*models.SigningKey
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&keys).Error; err != nil {
		return nil, errors.StoreUnavailable("list_all", err)
	}
	return keys, nil
}

func (r *KeyRepository) list(ctx context.Context, op string, query string, args ...interface{}) ([]*models.SigningKey, error) {
	var keys []*models.SigningKey
	err := r.db.WithContext(ctx).
		Where(query, args...).
		Order("created_at DESC").
		Find(&keys).Error
	if err != nil {
		return nil, errors.StoreUnavailable(op, err)
	}
	return keys, nil
}

// MarkInactive flips is_active only if it is still set; the row count tells the caller whether it won.
func (r *KeyRepository) MarkInactive(ctx context.Context, keyID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.SigningKey{}).
		Where("key_id = ? AND is_active = ?", keyID, true).
		Update("is_active", false)
	if res.Error != nil {
		return false, errors.StoreUnavailable("mark_inactive", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// DeleteExpiredBefore removes keys whose expiry is strictly before cutoff.
func (r *KeyRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ?", cutoff.UTC()).
		Delete(&models.SigningKey{})
	if res.Error != nil {
		return 0, errors.StoreUnavailable("delete_expired", res.Error)
	}
	return res.RowsAffected, nil
}
