package service

import (
	"context"
	"sync"
	"time"

	"github.com/turtacn/keytrust/internal/config"
	"github.com/turtacn/keytrust/pkg/constants"
	"github.com/turtacn/keytrust/pkg/logger"
)

// RotationScheduler periodically deactivates expired keys, rotates when due,
// and on a slower cadence purges keys past the retention window.
type RotationScheduler struct {
	lifecycle        KeyLifecycleService
	enabled          bool
	rotationInterval time.Duration
	purgeInterval    time.Duration
	retention        time.Duration
	clock            func() time.Time
	logger           logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewRotationScheduler creates a scheduler from the scheduler and key configuration.
func NewRotationScheduler(lifecycle KeyLifecycleService, sched config.SchedulerConfig, keys config.KeysConfig, log logger.Logger) *RotationScheduler {
	s := &RotationScheduler{
		lifecycle:        lifecycle,
		enabled:          sched.Enabled,
		rotationInterval: sched.RotationInterval,
		purgeInterval:    sched.PurgeInterval,
		retention:        keys.PurgeRetention,
		clock:            time.Now,
		logger:           log.WithComponent("RotationScheduler"),
	}
	if s.rotationInterval <= 0 {
		s.rotationInterval = constants.DefaultRotationCheckInterval
	}
	if s.purgeInterval <= 0 {
		s.purgeInterval = constants.DefaultPurgeInterval
	}
	return s
}

// Start runs both passes once and then launches the ticker loop. It returns immediately.
// Starting a disabled or already running scheduler does nothing.
func (s *RotationScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		s.logger.Info(ctx, "Automatic key rotation is disabled")
		return
	}
	if s.running {
		return
	}

	ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.done = make(chan struct{})
	s.running = true

	s.logger.Info(ctx, "Starting rotation scheduler",
		logger.Duration("rotation_interval", s.rotationInterval),
		logger.Duration("purge_interval", s.purgeInterval),
	)
	go s.loop(ctx)
}

// Stop cancels the loop and waits for an in-flight run to finish.
func (s *RotationScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info(context.Background(), "Rotation scheduler stopped")
}

func (s *RotationScheduler) loop(ctx context.Context) {
	defer close(s.done)

	s.RunRotation(ctx)
	s.RunPurge(ctx)

	rotation := time.NewTicker(s.rotationInterval)
	defer rotation.Stop()
	purge := time.NewTicker(s.purgeInterval)
	defer purge.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-rotation.C:
			s.RunRotation(ctx)
		case <-purge.C:
			s.RunPurge(ctx)
		}
	}
}

// RunRotation performs one rotation pass. Errors are logged and never stop the loop.
func (s *RotationScheduler) RunRotation(ctx context.Context) {
	now := s.clock()

	if n, err := s.lifecycle.DeactivateExpired(ctx, now); err != nil {
		s.logger.Error(ctx, "Deactivating expired keys failed", err)
	} else if n > 0 {
		s.logger.Info(ctx, "Deactivated expired keys", logger.Int("count", n))
	}

	due, err := s.lifecycle.NeedsRotation(ctx, now)
	if err != nil {
		s.logger.Error(ctx, "Rotation check failed", err)
		return
	}
	if !due {
		s.logger.Debug(ctx, "Rotation not due")
		return
	}

	result, err := s.lifecycle.Rotate(ctx)
	if err != nil {
		s.logger.Error(ctx, "Scheduled rotation failed", err)
		return
	}
	if result.Rotated {
		s.logger.Info(ctx, "Scheduled rotation completed", logger.String("kid", result.Key.KeyID))
	}
}

// RunPurge performs one retention pass.
func (s *RotationScheduler) RunPurge(ctx context.Context) {
	n, err := s.lifecycle.PurgeExpired(ctx, s.retention)
	if err != nil {
		s.logger.Error(ctx, "Scheduled purge failed", err)
		return
	}
	s.logger.Debug(ctx, "Scheduled purge completed", logger.Int64("purged", n))
}
