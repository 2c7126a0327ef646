package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
	"github.com/turtacn/keytrust/internal/domain/models"
)

// MockKeyEventPublisher is a mock implementation of service.KeyEventPublisher
type MockKeyEventPublisher struct {
	mock.Mock
}

func (m *MockKeyEventPublisher) Publish(ctx context.Context, event *models.KeyEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockKeyEventPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

// RecordingPublisher keeps every published event in memory.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []*models.KeyEvent
}

func (p *RecordingPublisher) Publish(_ context.Context, event *models.KeyEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *RecordingPublisher) Close() error { return nil }

// Events returns a snapshot of the published events.
func (p *RecordingPublisher) Events() []*models.KeyEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*models.KeyEvent(nil), p.events...)
}

// MockPermissionLoader is a mock implementation of service.PermissionLoader
type MockPermissionLoader struct {
	mock.Mock
}

func (m *MockPermissionLoader) LoadPermissions(ctx context.Context, identity *models.Identity) ([]string, error) {
	args := m.Called(ctx, identity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
