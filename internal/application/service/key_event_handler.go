package service

import (
	"context"
	"time"

	"github.com/turtacn/keytrust/internal/domain/models"
	domainService "github.com/turtacn/keytrust/internal/domain/service"
	"github.com/turtacn/keytrust/pkg/constants"
	"github.com/turtacn/keytrust/pkg/logger"
)

// KeyEventHandler applies events published by peer instances to this instance's
// in-process state. localCache and localRevocations are nil when those stores are shared.
type KeyEventHandler struct {
	lifecycle        KeyLifecycleService
	localCache       domainService.KeyCache
	localRevocations domainService.RevocationStore
	clock            domainService.Clock
	logger           logger.Logger
}

// NewKeyEventHandler creates a handler for peer key events.
func NewKeyEventHandler(lifecycle KeyLifecycleService, localCache domainService.KeyCache, localRevocations domainService.RevocationStore, log logger.Logger) *KeyEventHandler {
	return &KeyEventHandler{
		lifecycle:        lifecycle,
		localCache:       localCache,
		localRevocations: localRevocations,
		clock:            time.Now,
		logger:           log.WithComponent("KeyEventHandler"),
	}
}

// HandleKeyEvent drops local key state on key changes and mirrors revocations into a local store.
func (h *KeyEventHandler) HandleKeyEvent(ctx context.Context, event *models.KeyEvent) error {
	switch event.Type {
	case constants.KeyEventRotated, constants.KeyEventDeactivated, constants.KeyEventPurged:
		h.lifecycle.InvalidateLocal(ctx)
		if h.localCache != nil {
			return h.localCache.Invalidate(ctx)
		}
	case constants.KeyEventRevoked:
		if h.localRevocations == nil || event.TokenID == "" {
			return nil
		}
		entry := models.RevocationEntry{TokenID: event.TokenID, ExpiresAt: event.ExpiresAt}
		return h.localRevocations.Revoke(ctx, entry.TokenID, entry.TTL(h.clock()))
	default:
		h.logger.Warn(ctx, "Ignoring unknown key event", logger.String("type", string(event.Type)))
	}
	return nil
}
