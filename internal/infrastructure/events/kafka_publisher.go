// Package events publishes key lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/turtacn/keytrust/internal/config"
	"github.com/turtacn/keytrust/internal/domain/models"
	"github.com/turtacn/keytrust/internal/domain/service"
	"github.com/turtacn/keytrust/pkg/logger"
)

var _ service.KeyEventPublisher = (*KafkaPublisher)(nil)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher is a Kafka-backed implementation of the KeyEventPublisher.
type KafkaPublisher struct {
	writer messageWriter
	source string
	logger logger.Logger
}

// NewKafkaPublisher creates a publisher writing to cfg.Topic.
// source identifies this instance so its own events can be skipped by its consumer.
func NewKafkaPublisher(cfg config.KafkaConfig, source string, log logger.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		WriteTimeout:           5 * time.Second,
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return newPublisher(writer, source, log)
}

func newPublisher(w messageWriter, source string, log logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: w,
		source: source,
		logger: log.WithComponent("KafkaPublisher"),
	}
}

// Publish stamps the event with an id, source and time when missing, then writes it keyed by kid.
func (p *KafkaPublisher) Publish(ctx context.Context, event *models.KeyEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.Source == "" {
		event.Source = p.source
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	bytes, err := json.Marshal(event)
	if err != nil {
		p.logger.Error(ctx, "failed to marshal key event", err)
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.KeyID),
		Value: bytes,
	})
	if err != nil {
		p.logger.Error(ctx, "failed to write key event to Kafka", err,
			logger.String("type", string(event.Type)),
			logger.String("event_id", event.EventID),
		)
		return err
	}
	p.logger.Debug(ctx, "key event published",
		logger.String("type", string(event.Type)),
		logger.String("kid", event.KeyID),
	)
	return nil
}

// Close closes the underlying Kafka writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
