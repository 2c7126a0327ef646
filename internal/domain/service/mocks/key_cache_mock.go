package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/turtacn/keytrust/internal/domain/models"
)

// MockKeyCache is a mock implementation of service.KeyCache
type MockKeyCache struct {
	mock.Mock
}

func (m *MockKeyCache) Get(ctx context.Context) (*models.TrustedKeySet, bool, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.TrustedKeySet), args.Bool(1), args.Error(2)
}

func (m *MockKeyCache) Put(ctx context.Context, set *models.TrustedKeySet, ttl time.Duration) error {
	args := m.Called(ctx, set, ttl)
	return args.Error(0)
}

func (m *MockKeyCache) Invalidate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockRevocationStore is a mock implementation of service.RevocationStore
type MockRevocationStore struct {
	mock.Mock
}

func (m *MockRevocationStore) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	args := m.Called(ctx, tokenID, ttl)
	return args.Error(0)
}

func (m *MockRevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	args := m.Called(ctx, tokenID)
	return args.Bool(0), args.Error(1)
}
