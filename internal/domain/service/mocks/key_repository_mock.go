package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/turtacn/keytrust/internal/domain/models"
)

// MockKeyRepository is a mock implementation of repository.KeyRepository
type MockKeyRepository struct {
	mock.Mock
}

func (m *MockKeyRepository) Insert(ctx context.Context, key *models.SigningKey) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockKeyRepository) ListActive(ctx context.Context, now time.Time) ([]*models.SigningKey, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SigningKey), args.Error(1)
}

func (m *MockKeyRepository) ListValidForVerification(ctx context.Context, now time.Time) ([]*models.SigningKey, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SigningKey), args.Error(1)
}

func (m *MockKeyRepository) ListActiveExpired(ctx context.Context, now time.Time) ([]*models.SigningKey, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SigningKey), args.Error(1)
}

func (m *MockKeyRepository) ListAll(ctx context.Context) ([]*models.SigningKey, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SigningKey), args.Error(1)
}

func (m *MockKeyRepository) MarkInactive(ctx context.Context, keyID string) (bool, error) {
	args := m.Called(ctx, keyID)
	return args.Bool(0), args.Error(1)
}

func (m *MockKeyRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}
