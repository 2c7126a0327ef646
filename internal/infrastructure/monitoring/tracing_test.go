package monitoring

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/keytrust/internal/config"
	"github.com/turtacn/keytrust/pkg/logger"
)

func TestTracingManager_Disabled(t *testing.T) {
	ctx := context.Background()
	tm, err := NewTracingManager(ctx, &config.Config{}, logger.NewNoopLogger())
	require.NoError(t, err)

	spanCtx, span := tm.StartSpan(ctx, "rotate")
	assert.Empty(t, tm.GetTraceID(spanCtx))
	tm.RecordError(spanCtx, errors.New("boom"))
	span.End()
	assert.NoError(t, tm.Shutdown(ctx))
}
