package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/keytrust/internal/domain/models"
	"github.com/turtacn/keytrust/pkg/constants"
	"github.com/turtacn/keytrust/pkg/logger"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newPublisher(w, "instance-a", logger.NewNoopLogger())

	err := p.Publish(context.Background(), &models.KeyEvent{Type: constants.KeyEventRotated, KeyID: "kid-2", PreviousID: "kid-1"})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "kid-2", string(w.msgs[0].Key))

	var got models.KeyEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, constants.KeyEventRotated, got.Type)
	assert.Equal(t, "instance-a", got.Source)
	assert.NotEmpty(t, got.EventID)
	assert.False(t, got.OccurredAt.IsZero())

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := newPublisher(w, "instance-a", logger.NewNoopLogger())

	err := p.Publish(context.Background(), &models.KeyEvent{Type: constants.KeyEventPurged})
	assert.Error(t, err)
}
