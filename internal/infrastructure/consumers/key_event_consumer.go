// Package consumers contains Kafka consumers for background processing tasks.
package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/turtacn/keytrust/internal/config"
	"github.com/turtacn/keytrust/internal/domain/models"
	"github.com/turtacn/keytrust/pkg/logger"
)

// KeyEventHandler applies a key event received from a peer instance.
type KeyEventHandler interface {
	HandleKeyEvent(ctx context.Context, event *models.KeyEvent) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// handleAttempts bounds how often one event is handed to the handler before it is dropped.
const handleAttempts = 3

// KeyEventConsumer listens for key events from peer instances and drops the
// local caches they invalidate. Every host uses its own consumer group so
// each one sees every event. An event the handler keeps failing on is logged
// and committed; the cache TTL bounds the staleness it leaves behind.
type KeyEventConsumer struct {
	reader  messageReader
	handler KeyEventHandler
	source  string
	backoff time.Duration
	logger  logger.Logger
	stop    chan struct{}
}

// NewKeyEventConsumer creates a consumer for the key events topic.
func NewKeyEventConsumer(cfg config.KafkaConfig, source string, handler KeyEventHandler, log logger.Logger) *KeyEventConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        groupID(cfg.GroupID),
		StartOffset:    kafka.LastOffset,
		MinBytes:       1,
		MaxBytes:       1e6,
		MaxWait:        time.Second,
		CommitInterval: time.Second,
	})
	return newConsumer(reader, source, handler, log)
}

// groupID is stable across restarts of the same host.
func groupID(base string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return base
	}
	return base + "-" + host
}

func newConsumer(r messageReader, source string, handler KeyEventHandler, log logger.Logger) *KeyEventConsumer {
	return &KeyEventConsumer{
		reader:  r,
		handler: handler,
		source:  source,
		backoff: 200 * time.Millisecond,
		logger:  log.WithComponent("KeyEventConsumer"),
		stop:    make(chan struct{}),
	}
}

// Start runs the consumer loop until ctx is done or Stop is called. It blocks.
func (c *KeyEventConsumer) Start(ctx context.Context) {
	c.logger.Info(ctx, "starting key event consumer", logger.String("source", c.source))
	for {
		select {
		case <-c.stop:
			c.logger.Info(ctx, "stopping key event consumer")
			return
		case <-ctx.Done():
			return
		default:
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, kafka.ErrGroupClosed) {
				return
			}
			c.logger.Error(ctx, "failed to fetch message from kafka", err)
			select {
			case <-time.After(time.Second):
			case <-c.stop:
				return
			}
			continue
		}

		var event models.KeyEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.logger.Error(ctx, "failed to unmarshal key event", err, logger.Int("bytes", len(msg.Value)))
			// poison message, acknowledge and move on
			c.commit(ctx, msg)
			continue
		}

		if err := c.handleWithRetry(ctx, &event); err != nil {
			if ctx.Err() != nil || c.stopped() {
				// left uncommitted for the next start
				return
			}
			c.logger.Error(ctx, "dropping key event after retries", err,
				logger.String("event_id", event.EventID),
				logger.String("type", string(event.Type)),
				logger.Int("attempts", handleAttempts),
			)
		}
		c.commit(ctx, msg)
	}
}

func (c *KeyEventConsumer) stopped() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

func (c *KeyEventConsumer) handleWithRetry(ctx context.Context, event *models.KeyEvent) error {
	var err error
	for attempt := 1; attempt <= handleAttempts; attempt++ {
		if err = c.handle(ctx, event); err == nil {
			return nil
		}
		if attempt == handleAttempts {
			break
		}
		c.logger.Warn(ctx, "key event handler failed, retrying",
			logger.String("event_id", event.EventID),
			logger.Int("attempt", attempt),
			logger.Error(err),
		)
		select {
		case <-time.After(time.Duration(attempt) * c.backoff):
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stop:
			return err
		}
	}
	return err
}

func (c *KeyEventConsumer) handle(ctx context.Context, event *models.KeyEvent) error {
	if event.Source == c.source {
		return nil
	}
	c.logger.Debug(ctx, "applying key event",
		logger.String("type", string(event.Type)),
		logger.String("kid", event.KeyID),
		logger.String("source", event.Source),
	)
	return c.handler.HandleKeyEvent(ctx, event)
}

func (c *KeyEventConsumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Warn(ctx, "failed to commit kafka message", logger.Error(err))
	}
}

// Stop shuts the consumer down.
func (c *KeyEventConsumer) Stop() {
	close(c.stop)
	if err := c.reader.Close(); err != nil {
		c.logger.Error(context.Background(), "failed to close kafka reader", err)
	}
}
